package tiers

import (
	"github.com/nuqtalabs/loyalty-backend/pkg/enums"
	"github.com/nuqtalabs/loyalty-backend/pkg/types"
)

// Resolve maps a cumulative point balance onto a tier label by checking
// thresholds from highest to lowest. Thresholds arrive from merchant
// configuration and are validated at write time, but the resolver still
// tolerates unordered input by evaluating top-down.
func Resolve(points int64, thresholds types.TierThresholds) enums.Tier {
	switch {
	case points >= int64(thresholds.Platinum):
		return enums.TierPlatinum
	case points >= int64(thresholds.Gold):
		return enums.TierGold
	case points >= int64(thresholds.Silver):
		return enums.TierSilver
	default:
		return enums.TierBronze
	}
}
