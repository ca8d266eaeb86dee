package services

import "github.com/shashiranjanraj/kirana/app/models"

// AdjustmentReason is the closed set of manual stock adjustment reasons.
// Each reason maps to a sign and a ledger action through an exhaustive
// switch, so an unknown reason is a compile-time problem rather than a
// silent nil lookup at runtime.
type AdjustmentReason int

const (
	AdjReturn AdjustmentReason = iota
	AdjDamage
	AdjTheft
	AdjFound
	AdjCorrection
)

// ParseAdjustmentReason maps the wire value to a reason.
func ParseAdjustmentReason(s string) (AdjustmentReason, bool) {
	switch s {
	case "return":
		return AdjReturn, true
	case "damage":
		return AdjDamage, true
	case "theft":
		return AdjTheft, true
	case "found":
		return AdjFound, true
	case "correction":
		return AdjCorrection, true
	default:
		return 0, false
	}
}

func (a AdjustmentReason) String() string {
	switch a {
	case AdjReturn:
		return "return"
	case AdjDamage:
		return "damage"
	case AdjTheft:
		return "theft"
	case AdjFound:
		return "found"
	case AdjCorrection:
		return "correction"
	}
	return "unknown"
}

// Apply resolves the reason to the signed change it applies to the given
// (always positive) quantity, and the ledger action recorded with it.
// AdjCorrection is special: the caller supplies a signed quantity directly.
func (a AdjustmentReason) Apply(quantity int) (change int, action string) {
	switch a {
	case AdjReturn:
		return quantity, models.ActionReturn
	case AdjFound:
		return quantity, models.ActionCorrection
	case AdjDamage:
		return -quantity, models.ActionDamage
	case AdjTheft:
		return -quantity, models.ActionTheft
	case AdjCorrection:
		return quantity, models.ActionCorrection
	}
	return 0, models.ActionCorrection
}
