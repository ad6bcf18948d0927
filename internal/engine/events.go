package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/dukerupert/loyalty/internal/model"
	"github.com/shopspring/decimal"
)

var ErrInvalidPayload = errors.New("invalid event payload")

// Event is one inbound business event for a customer of a merchant.
type Event struct {
	Name       string
	MerchantID int64
	CustomerID int64
	Payload    Payload
}

// Payload is the typed body of an event. Metadata is what gets written to
// the activity log.
type Payload interface {
	Metadata() map[string]any
}

type PurchasePayload struct {
	OrderID     string
	Amount      decimal.Decimal
	Currency    string
	ReferenceID string
}

func (p PurchasePayload) Metadata() map[string]any {
	m := map[string]any{"amount": p.Amount.String()}
	if p.OrderID != "" {
		m["orderId"] = p.OrderID
	}
	if p.Currency != "" {
		m["currency"] = p.Currency
	}
	if p.ReferenceID != "" {
		m["referenceId"] = p.ReferenceID
	}
	return m
}

// DeductionPayload carries a caller-computed deduction. PointsDeducted is
// applied verbatim.
type DeductionPayload struct {
	OrderID        string
	Amount         decimal.Decimal
	PointsDeducted int
	Reason         string
	OriginalEvent  string
}

func (p DeductionPayload) Metadata() map[string]any {
	m := map[string]any{"pointsDeducted": p.PointsDeducted}
	if p.OrderID != "" {
		m["orderId"] = p.OrderID
	}
	if !p.Amount.IsZero() {
		m["amount"] = p.Amount.String()
	}
	if p.Reason != "" {
		m["reason"] = p.Reason
	}
	if p.OriginalEvent != "" {
		m["originalEvent"] = p.OriginalEvent
	}
	return m
}

type BirthdayPayload struct {
	Date time.Time
}

func (p BirthdayPayload) Metadata() map[string]any {
	if p.Date.IsZero() {
		return map[string]any{}
	}
	return map[string]any{"date": p.Date.Format(time.DateOnly)}
}

// GenericPayload is used by the flat-points events, which read no fields.
type GenericPayload struct {
	Fields map[string]string
}

func (p GenericPayload) Metadata() map[string]any {
	m := make(map[string]any, len(p.Fields))
	for k, v := range p.Fields {
		m[k] = v
	}
	return m
}

// DecodePayload converts a loosely typed map, as produced by JSON decoding,
// into the payload type for the named event.
func DecodePayload(name string, data map[string]any) (Payload, error) {
	switch name {
	case model.EventPurchase:
		amount, err := decimalField(data, "amount")
		if err != nil {
			return nil, err
		}
		return PurchasePayload{
			OrderID:     stringField(data, "orderId"),
			Amount:      amount,
			Currency:    stringField(data, "currency"),
			ReferenceID: stringField(data, "referenceId"),
		}, nil

	case model.EventPointsDeduction:
		amount, err := decimalField(data, "amount")
		if err != nil {
			return nil, err
		}
		pts, err := decimalField(data, "pointsDeducted")
		if err != nil {
			return nil, err
		}
		if pts.Abs().GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
			return nil, fmt.Errorf("%w: pointsDeducted %s out of range", ErrInvalidPayload, pts)
		}
		return DeductionPayload{
			OrderID:        stringField(data, "orderId"),
			Amount:         amount,
			PointsDeducted: int(pts.IntPart()),
			Reason:         stringField(data, "reason"),
			OriginalEvent:  stringField(data, "originalEvent"),
		}, nil

	case model.EventBirthday:
		var p BirthdayPayload
		if s := stringField(data, "date"); s != "" {
			d, err := time.Parse(time.DateOnly, s)
			if err != nil {
				return nil, fmt.Errorf("%w: date %q: %v", ErrInvalidPayload, s, err)
			}
			p.Date = d
		}
		return p, nil

	default:
		fields := make(map[string]string, len(data))
		for k := range data {
			fields[k] = stringField(data, k)
		}
		return GenericPayload{Fields: fields}, nil
	}
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func decimalField(data map[string]any, key string) (decimal.Decimal, error) {
	switch v := data[key].(type) {
	case nil:
		return decimal.Zero, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case decimal.Decimal:
		return v, nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, key, err)
		}
		return d, nil
	case string:
		if v == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %s %q: %v", ErrInvalidPayload, key, v, err)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: %s has type %T", ErrInvalidPayload, key, v)
	}
}
