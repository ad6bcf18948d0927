package model

import (
	"testing"
	"time"
)

func TestSelectReward(t *testing.T) {
	now := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	soon := now.Add(24 * time.Hour)
	later := now.Add(30 * 24 * time.Hour)

	rewards := []Reward{
		{ID: 1, Active: false},
		{ID: 2, Active: true, ExpiryDate: &past},
		{ID: 3, Active: true},
		{ID: 4, Active: true, ExpiryDate: &later},
		{ID: 5, Active: true, ExpiryDate: &soon},
	}

	tests := []struct {
		policy RewardPolicy
		want   int64
	}{
		{RewardPolicyOldest, 3},
		{RewardPolicyNewest, 5},
		{RewardPolicyExpiringSoonest, 5},
		{RewardPolicy("bogus"), 3},
	}
	for _, tt := range tests {
		got := SelectReward(rewards, tt.policy, now)
		if got == nil || got.ID != tt.want {
			t.Errorf("SelectReward(%s) = %+v, want id %d", tt.policy, got, tt.want)
		}
	}
}

func TestSelectRewardNoneUsable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	rewards := []Reward{{ID: 1, Active: false}, {ID: 2, Active: true, ExpiryDate: &past}}

	if got := SelectReward(rewards, RewardPolicyOldest, now); got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
	if got := SelectReward(nil, RewardPolicyNewest, now); got != nil {
		t.Errorf("expected nil for empty list, got %+v", got)
	}
}

func TestExpiringSoonestFallsBackToOldest(t *testing.T) {
	rewards := []Reward{{ID: 8, Active: true}, {ID: 9, Active: true}}
	if got := SelectReward(rewards, RewardPolicyExpiringSoonest, time.Now()); got == nil || got.ID != 8 {
		t.Errorf("got %+v, want id 8", got)
	}
}

func TestParseRewardPolicy(t *testing.T) {
	if ParseRewardPolicy("newest") != RewardPolicyNewest {
		t.Error("newest not parsed")
	}
	if ParseRewardPolicy("expiring_soonest") != RewardPolicyExpiringSoonest {
		t.Error("expiring_soonest not parsed")
	}
	if ParseRewardPolicy("") != RewardPolicyOldest {
		t.Error("empty should default to oldest")
	}
}

func TestMerchantHelpers(t *testing.T) {
	m := &Merchant{Username: "coffee"}
	if got := m.StoreLink(); got != "https://coffee.salla.sa" {
		t.Errorf("StoreLink() = %q", got)
	}
	m.Domain = "https://shop.example.com"
	if got := m.StoreLink(); got != "https://shop.example.com" {
		t.Errorf("StoreLink() = %q", got)
	}
	if got := m.CurrencyUnit().String(); got != "1" {
		t.Errorf("CurrencyUnit() = %s, want 1", got)
	}
}

func TestLoyaltySettingsRule(t *testing.T) {
	s := LoyaltySettings{
		RuleWelcome:  {Enabled: true, Points: 10},
		RuleBirthday: {Enabled: false, Points: 50},
	}
	if r, ok := s.Rule(RuleWelcome); !ok || r.Points != 10 {
		t.Errorf("welcome = %+v, %v", r, ok)
	}
	if _, ok := s.Rule(RuleBirthday); ok {
		t.Error("disabled rule should not be returned")
	}
	if _, ok := s.Rule(RuleRatingApp); ok {
		t.Error("missing rule should not be returned")
	}
	var empty LoyaltySettings
	if _, ok := empty.Rule(RuleWelcome); ok {
		t.Error("nil settings should not return rules")
	}
}

func TestCustomerIsBirthday(t *testing.T) {
	dob := time.Date(1992, time.February, 29, 0, 0, 0, 0, time.UTC)
	c := &Customer{DateOfBirth: &dob}
	if !c.IsBirthday(time.Date(2028, time.February, 29, 10, 0, 0, 0, time.UTC)) {
		t.Error("expected birthday match")
	}
	if c.IsBirthday(time.Date(2027, time.March, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("unexpected birthday match")
	}
	if (&Customer{}).IsBirthday(time.Now()) {
		t.Error("no date of birth should never match")
	}
}
