package model

import "time"

// Activity is an immutable audit entry for one ledger operation.
type Activity struct {
	ID         int64          `json:"id"`
	CustomerID int64          `json:"customer_id"`
	MerchantID int64          `json:"merchant_id"`
	Event      string         `json:"event"`
	Points     int            `json:"points"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ArchiveRun records one export of activity records to object storage.
type ArchiveRun struct {
	ID             int64     `json:"id"`
	MerchantID     int64     `json:"merchant_id"`
	FromActivityID int64     `json:"from_activity_id"`
	ToActivityID   int64     `json:"to_activity_id"`
	RecordCount    int       `json:"record_count"`
	ObjectKey      string    `json:"object_key"`
	CreatedAt      time.Time `json:"created_at"`
}
