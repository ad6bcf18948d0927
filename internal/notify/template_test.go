package notify

import (
	"strings"
	"testing"

	"github.com/dukerupert/loyalty/internal/model"
	"github.com/sebdah/goldie/v2"
)

func TestContentMessage(t *testing.T) {
	m := testMerchant(allOn())
	m.Domain = "https://coffee.example.com"
	c := Build(model.EventCouponGenerated, m, testCustomer(), 0, Details{CouponCode: "ABCDEFGH23"})

	msg, err := c.Message()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.To != "sara@example.com" {
		t.Errorf("to = %q", msg.To)
	}
	if msg.Subject != c.Subject {
		t.Errorf("subject = %q, want %q", msg.Subject, c.Subject)
	}
	for _, want := range []string{`dir="rtl"`, c.BodyPrimary, c.BodySecondary, "ABCDEFGH23", `href="https://coffee.example.com"`} {
		if !strings.Contains(msg.HTML, want) {
			t.Errorf("html missing %q", want)
		}
	}

	goldie.New(t).Assert(t, "coupon_generated_text", []byte(msg.Text))
}

func TestMessageEscapesMerchantName(t *testing.T) {
	m := testMerchant(allOn())
	m.Name = "<b>Shop</b>"
	c := Build(model.EventWelcome, m, testCustomer(), 5, Details{})

	msg, err := c.Message()
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(msg.HTML, "<b>Shop</b>") {
		t.Error("merchant name should be escaped in html")
	}
	if strings.Contains(msg.HTML, "Code:") || strings.Contains(msg.Text, "Code:") {
		t.Error("no code block expected")
	}
}

func TestAlertMessage(t *testing.T) {
	a := NoRewardAlert(testMerchant(nil), testCustomer())
	msg, err := a.Message("ops@example.com")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msg.To != "ops@example.com" || msg.Subject != "No Active Reward Found" {
		t.Errorf("msg = %+v", msg)
	}
}
