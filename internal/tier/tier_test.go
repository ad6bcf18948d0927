package tier

import (
	"testing"

	"github.com/dukerupert/loyalty/internal/model"
)

func TestCalculateDefaults(t *testing.T) {
	tests := []struct {
		points int
		want   model.Tier
	}{
		{0, model.TierBronze},
		{999, model.TierBronze},
		{1000, model.TierSilver},
		{1050, model.TierSilver},
		{4999, model.TierSilver},
		{5000, model.TierGold},
		{14999, model.TierGold},
		{15000, model.TierPlatinum},
		{1 << 30, model.TierPlatinum},
	}
	for _, tt := range tests {
		if got := Calculate(tt.points, Thresholds{}); got != tt.want {
			t.Errorf("Calculate(%d) = %q, want %q", tt.points, got, tt.want)
		}
	}
}

func TestCalculateCustomThresholds(t *testing.T) {
	th := Thresholds{Silver: 100, Gold: 200, Platinum: 300}

	tests := []struct {
		points int
		want   model.Tier
	}{
		{99, model.TierBronze},
		{100, model.TierSilver},
		{250, model.TierGold},
		{300, model.TierPlatinum},
	}
	for _, tt := range tests {
		if got := Calculate(tt.points, th); got != tt.want {
			t.Errorf("Calculate(%d) = %q, want %q", tt.points, got, tt.want)
		}
	}
}

func TestCalculatePartialThresholdsFallBack(t *testing.T) {
	// Only gold set; silver and platinum use defaults.
	th := Thresholds{Gold: 2000}

	if got := Calculate(1500, th); got != model.TierSilver {
		t.Errorf("Calculate(1500) = %q, want silver", got)
	}
	if got := Calculate(2000, th); got != model.TierGold {
		t.Errorf("Calculate(2000) = %q, want gold", got)
	}
	if got := Calculate(15000, th); got != model.TierPlatinum {
		t.Errorf("Calculate(15000) = %q, want platinum", got)
	}
}

func TestCalculateIsPure(t *testing.T) {
	th := Thresholds{Silver: 10, Gold: 20, Platinum: 30}
	for p := 0; p < 40; p++ {
		if Calculate(p, th) != Calculate(p, th) {
			t.Fatalf("Calculate(%d) not stable", p)
		}
	}
}

func TestFromMerchant(t *testing.T) {
	m := &model.Merchant{TierSilver: 500, TierGold: 900, TierPlatinum: 1200}
	th := FromMerchant(m)
	if th.Silver != 500 || th.Gold != 900 || th.Platinum != 1200 {
		t.Errorf("thresholds = %+v", th)
	}
	if got := Calculate(950, th); got != model.TierGold {
		t.Errorf("Calculate(950) = %q, want gold", got)
	}
}

func TestRank(t *testing.T) {
	order := []model.Tier{model.TierBronze, model.TierSilver, model.TierGold, model.TierPlatinum}
	for i, tr := range order {
		if Rank(tr) != i {
			t.Errorf("Rank(%q) = %d, want %d", tr, Rank(tr), i)
		}
	}
	if Rank("") != 0 {
		t.Error("empty tier should rank as bronze")
	}
}
