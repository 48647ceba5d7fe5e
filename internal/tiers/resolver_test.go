package tiers

import (
	"testing"

	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	"github.com/nuqtalabs/loyalty-backend/pkg/types"
)

func TestResolve(t *testing.T) {
	thresholds := types.TierThresholds{Bronze: 0, Silver: 100, Gold: 500, Platinum: 1000}

	tests := []struct {
		points int64
		want   enums.Tier
	}{
		{0, enums.TierBronze},
		{99, enums.TierBronze},
		{100, enums.TierSilver},
		{499, enums.TierSilver},
		{500, enums.TierGold},
		{999, enums.TierGold},
		{1000, enums.TierPlatinum},
		{250000, enums.TierPlatinum},
	}
	for _, tt := range tests {
		if got := Resolve(tt.points, thresholds); got != tt.want {
			t.Errorf("Resolve(%d) = %s, want %s", tt.points, got, tt.want)
		}
	}
}

func TestResolveBoundaryIsInclusive(t *testing.T) {
	thresholds := types.TierThresholds{Bronze: 0, Silver: 100, Gold: 500, Platinum: 1000}
	if got := Resolve(100, thresholds); got != enums.TierSilver {
		t.Fatalf("exact threshold should promote, got %s", got)
	}
}
