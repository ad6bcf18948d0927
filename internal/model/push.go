package model

import "time"

// PushSubscription is an operator device registered for merchant alerts.
type PushSubscription struct {
	ID         int64     `json:"id"`
	MerchantID int64     `json:"merchant_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}
