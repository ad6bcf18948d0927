// Package notify decides whether a loyalty event warrants a customer message
// and builds its bilingual content. Delivery is left to Transports.
package notify

import (
	"fmt"
	"log/slog"

	"github.com/dukerupert/loyalty/internal/model"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Content is the semantic payload of one customer notification. BodyPrimary
// is Arabic and BodySecondary is English.
type Content struct {
	Event         string `json:"event"`
	Recipient     string `json:"recipient"`
	Subject       string `json:"subject"`
	BodyPrimary   string `json:"body_primary"`
	BodySecondary string `json:"body_secondary"`
	Code          string `json:"code,omitempty"`
	StoreLink     string `json:"store_link"`
}

// Details carries the event fields the message table reads.
type Details struct {
	RewardID   int64
	CouponCode string
	Reason     string
}

var english = message.NewPrinter(language.English)

// Build returns the notification for event, or nil when none should be sent:
// no customer email, no merchant notification settings, the gating flag is
// off, or the event has no message.
func Build(event string, m *model.Merchant, c *model.Customer, points int, d Details) (content *Content) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("build notification", "event", event, "panic", fmt.Sprint(r))
			content = nil
		}
	}()

	if c == nil || c.Email == "" || m == nil || m.NotificationSettings == nil {
		return nil
	}
	ns := m.NotificationSettings

	var subject, ar, en, code string
	switch event {
	case model.EventPurchase, model.EventPurchaseThreshold, model.EventFeedback, model.EventRating,
		model.EventProfileCompletion, model.EventRepeatPurchase, model.EventWelcome, model.EventInstallApp:
		if !ns.EarnNewPoints {
			return nil
		}
		subject = "حصلت على نقاط إضافية!"
		ar = fmt.Sprintf("تهانينا! لقد حصلت على %d نقطة إضافية من متجر %s", points, m.Name)
		en = english.Sprintf("Congratulations! You earned %d additional points from %s store", points, m.Name)

	case model.EventManualReward:
		if !ns.EarnNewCoupon || d.RewardID == 0 {
			return nil
		}
		subject = "تم إنشاء كوبون خصم جديد (يدوي)!"
		ar = fmt.Sprintf("تمت إضافة مكافأة يدوية لك من متجر %s. تحقق من الكوبون الجديد في حسابك.", m.Name)
		en = fmt.Sprintf("A manual reward has been added for you from %s. Check your account for the new coupon.", m.Name)
		code = d.CouponCode

	case model.EventBirthday:
		if !ns.Birthday {
			return nil
		}
		arName, enName := c.Name, c.Name
		if c.Name == "" {
			arName, enName = "عزيزنا العميل", "Dear Customer"
		}
		subject = "عيد ميلاد سعيد! 🎉"
		ar = fmt.Sprintf("عيد ميلاد سعيد %s! حصلت على %d نقطة هدية من متجر %s", arName, points, m.Name)
		en = english.Sprintf("Happy Birthday %s! You received %d bonus points from %s store", enName, points, m.Name)

	case model.EventShareReferral:
		if !ns.EarnNewCouponForShare {
			return nil
		}
		subject = "شكراً لمشاركة المتجر!"
		ar = fmt.Sprintf("شكراً لك على مشاركة متجر %s! حصلت على %d نقطة", m.Name, points)
		en = english.Sprintf("Thank you for sharing %s store! You earned %d points", m.Name, points)

	case model.EventCouponGenerated:
		if !ns.EarnNewCoupon || d.CouponCode == "" {
			return nil
		}
		subject = "تم إنشاء كوبون خصم جديد!"
		ar = fmt.Sprintf("تهانينا! تم إنشاء كوبون خصم جديد لك من متجر %s", m.Name)
		en = fmt.Sprintf("Congratulations! A new discount coupon has been created for you from %s store", m.Name)
		code = d.CouponCode

	case model.EventPointsDeduction:
		if !ns.EarnNewPoints {
			return nil
		}
		reasonAr, reasonEn := deductionReason(d.Reason)
		subject = "تم خصم نقاط من رصيدك"
		ar = fmt.Sprintf("تم خصم %d نقطة من رصيدك %s في متجر %s", points, reasonAr, m.Name)
		en = english.Sprintf("%d points have been deducted from your account %s at %s store", points, reasonEn, m.Name)

	default:
		slog.Debug("no notification for event", "event", event)
		return nil
	}

	return &Content{
		Event:         event,
		Recipient:     c.Email,
		Subject:       subject,
		BodyPrimary:   ar,
		BodySecondary: en,
		Code:          code,
		StoreLink:     m.StoreLink(),
	}
}

func deductionReason(reason string) (ar, en string) {
	switch reason {
	case model.ReasonOrderDeleted:
		return "لحذف الطلب", "due to order deletion"
	case model.ReasonOrderRefunded:
		return "لاسترداد الطلب", "due to order refund"
	default:
		return "لإلغاء الطلب", "due to order cancellation"
	}
}

// Alert is an operator-facing message about a merchant's loyalty program.
type Alert struct {
	MerchantID    int64  `json:"merchant_id"`
	Subject       string `json:"subject"`
	BodyPrimary   string `json:"body_primary"`
	BodySecondary string `json:"body_secondary"`
	Code          string `json:"code,omitempty"`
	StoreLink     string `json:"store_link"`
}

// NoRewardAlert tells the operator a threshold was crossed but the merchant
// has no usable reward to back a coupon.
func NoRewardAlert(m *model.Merchant, c *model.Customer) Alert {
	name := c.DisplayName()
	return Alert{
		MerchantID:    m.ID,
		Subject:       "No Active Reward Found",
		BodyPrimary:   fmt.Sprintf("تنبيه: لا يوجد مكافأة نشطة للعميل %s", name),
		BodySecondary: fmt.Sprintf("Alert: No active reward found for customer %s", name),
		StoreLink:     m.StoreLink(),
	}
}

func CouponAlert(m *model.Merchant, c *model.Customer, code string) Alert {
	name := c.DisplayName()
	return Alert{
		MerchantID:    m.ID,
		Subject:       "New Coupon Generated",
		BodyPrimary:   fmt.Sprintf("تم إنشاء كوبون جديد للعميل %s: %s", name, code),
		BodySecondary: fmt.Sprintf("A new coupon has been generated for customer %s: %s", name, code),
		Code:          code,
		StoreLink:     m.StoreLink(),
	}
}
