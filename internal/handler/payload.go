package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// flexString accepts a JSON string or number. Store platforms send IDs and
// phone numbers as either.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number: %w", err)
		}
		*f = flexString(n.String())
	}
	return nil
}

// flexAmount accepts a number, a numeric string, or an {"amount": …} object.
type flexAmount struct {
	decimal.Decimal
}

func (f *flexAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		f.Decimal = decimal.Zero
		return nil
	}
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Amount flexAmount `json:"amount"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		f.Decimal = obj.Amount.Decimal
		return nil
	}
	return f.Decimal.UnmarshalJSON(data)
}

type platformCustomer struct {
	ID          flexString `json:"id"`
	Name        string     `json:"name"`
	FullName    string     `json:"full_name"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email"`
	Mobile      flexString `json:"mobile"`
	Phone       flexString `json:"phone"`
	DateOfBirth string     `json:"date_of_birth"`
}

func (c platformCustomer) displayName() string {
	switch {
	case c.FullName != "":
		return c.FullName
	case c.Name != "":
		return c.Name
	default:
		return strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
}

func (c platformCustomer) phone() string {
	if c.Mobile != "" {
		return string(c.Mobile)
	}
	return string(c.Phone)
}

type orderCreated struct {
	ID          flexString `json:"id"`
	ReferenceID flexString `json:"reference_id"`
	Currency    string     `json:"currency"`
	Amounts     struct {
		Total flexAmount `json:"total"`
	} `json:"amounts"`
	Customer platformCustomer `json:"customer"`
}

// orderChange covers order.deleted and order.refunded.
type orderChange struct {
	ID         flexString `json:"id"`
	CustomerID flexString `json:"customer_id"`
	Customer   *struct {
		ID flexString `json:"id"`
	} `json:"customer"`
	Total        flexAmount `json:"total"`
	RefundAmount flexAmount `json:"refund_amount"`
}

func (o orderChange) customerID() string {
	if o.CustomerID != "" {
		return string(o.CustomerID)
	}
	if o.Customer != nil {
		return string(o.Customer.ID)
	}
	return ""
}

type customerLogin struct {
	Customer struct {
		ID flexString `json:"id"`
	} `json:"customer"`
}

type feedbackCreated struct {
	ID         flexString `json:"id"`
	CustomerID flexString `json:"customer_id"`
	Rating     flexString `json:"rating"`
}

type reviewAdded struct {
	ID       flexString `json:"id"`
	Rating   flexString `json:"rating"`
	Content  string     `json:"content"`
	Customer struct {
		ID flexString `json:"id"`
	} `json:"customer"`
	Product *struct {
		ID flexString `json:"id"`
	} `json:"product"`
}
