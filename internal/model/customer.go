package model

import "time"

// Tier is a customer's status level, ordered bronze < silver < gold < platinum.
type Tier string

const (
	TierBronze   Tier = "bronze"
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

// Customer is a merchant's loyalty member. Points and Tier are only ever
// written by the points ledger.
type Customer struct {
	ID          int64      `json:"id"`
	MerchantID  int64      `json:"merchant_id"`
	ExternalID  string     `json:"external_id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Points      int        `json:"points"`
	Tier        Tier       `json:"tier"`
	OrderCount  int        `json:"order_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// DisplayName returns the customer's name, or their email when no name is known.
func (c *Customer) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Email
}

// IsBirthday reports whether day falls on the customer's birthday (month and day).
func (c *Customer) IsBirthday(day time.Time) bool {
	if c.DateOfBirth == nil {
		return false
	}
	return c.DateOfBirth.Month() == day.Month() && c.DateOfBirth.Day() == day.Day()
}
