// Package finance implements the policy-aware financial scenario engine.
// Incentive rates and analysis horizons follow the 2026 federal rules:
// the residential purchase credit is gone, leased residential systems
// keep the full credit through the financing party, and commercial
// projects keep the full credit, with a construction-start deadline to
// lock it in ahead of the statutory phase-out.
package finance

import (
	"fmt"
	"strings"
	"time"
)

// Property and ownership classifications used by the policy rules.
const (
	PropertyResidential = "residential"
	PropertyCommercial  = "commercial"
	PropertyIndustrial  = "industrial"

	OwnershipPurchase = "purchase"
	OwnershipLease    = "lease"
)

// Policy holds the incentive and horizon rules. Immutable once built.
type Policy struct {
	// FullITCRate is the undiminished federal investment tax credit.
	FullITCRate float64

	// CommercialCutoff is the construction-start deadline for commercial
	// and industrial projects to lock in the full rate.
	CommercialCutoff time.Time

	// ResidentialHorizonYears and CommercialHorizonYears are the default
	// analysis horizons per property class.
	ResidentialHorizonYears int
	CommercialHorizonYears  int

	// ForcedHorizonYears overrides the horizon for optimizer runs so that
	// return on investment has time to manifest. Short horizons produce
	// near-zero present values that mislead more than they inform.
	ForcedHorizonYears int
}

// DefaultPolicy returns the 2026 ruleset.
func DefaultPolicy() Policy {
	return Policy{
		FullITCRate:             0.30,
		CommercialCutoff:        time.Date(2026, time.July, 4, 0, 0, 0, 0, time.UTC),
		ResidentialHorizonYears: 25,
		CommercialHorizonYears:  20,
		ForcedHorizonYears:      25,
	}
}

// IncentiveRate computes the federal credit fraction for one scenario.
// It is a pure function of its arguments:
//   - residential purchase: 0, the credit expired.
//   - residential lease: the full rate, retained by the financing party.
//   - commercial/industrial: the full rate. Construction starting on or
//     after the cutoff is subject to the phase-out schedule, which the
//     Notice surfaces; the modeled rate stays at the full credit until
//     the phase-out percentages are law.
func (p Policy) IncentiveRate(property, ownership string, constructionStart, now time.Time) float64 {
	switch normalizeProperty(property) {
	case PropertyCommercial, PropertyIndustrial:
		return p.FullITCRate
	default:
		if normalizeOwnership(ownership) == OwnershipLease {
			return p.FullITCRate
		}
		return 0.0
	}
}

// HorizonYears returns the default analysis horizon for a property class.
func (p Policy) HorizonYears(property string) int {
	switch normalizeProperty(property) {
	case PropertyCommercial, PropertyIndustrial:
		return p.CommercialHorizonYears
	default:
		return p.ResidentialHorizonYears
	}
}

// Notice explains the applied incentive rule in user-facing terms.
func (p Policy) Notice(property, ownership string) string {
	pct := int(p.FullITCRate * 100)
	switch normalizeProperty(property) {
	case PropertyCommercial, PropertyIndustrial:
		return fmt.Sprintf("Commercial and industrial projects qualify for the %d%% federal investment tax credit. Construction starting on or after %s is subject to the phase-out schedule.", pct, p.CommercialCutoff.Format("January 2, 2006"))
	default:
		if normalizeOwnership(ownership) == OwnershipLease {
			return fmt.Sprintf("Leased systems retain the %d%% federal credit through the financing party.", pct)
		}
		return "The federal credit for directly purchased residential systems expired; purchases no longer qualify."
	}
}

// Warning returns the construction-deadline warning for commercial and
// industrial projects while the cutoff is still ahead, and "" otherwise.
func (p Policy) Warning(property string, now time.Time) string {
	switch normalizeProperty(property) {
	case PropertyCommercial, PropertyIndustrial:
		if now.Before(p.CommercialCutoff) {
			return fmt.Sprintf("NOTE: You must commence construction by %s, to lock in this %d%% credit.",
				p.CommercialCutoff.Format("January 2, 2006"), int(p.FullITCRate*100))
		}
	}
	return ""
}

func normalizeProperty(property string) string {
	return strings.ToLower(strings.TrimSpace(property))
}

func normalizeOwnership(ownership string) string {
	return strings.ToLower(strings.TrimSpace(ownership))
}
