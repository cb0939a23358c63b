// Package coinval matches measured coins against the catalog within the
// shared physical tolerances and explains rejections.
package coinval

import (
	"math"

	"vendomat/machine/internal/catalog"
	"vendomat/machine/internal/domain"
)

// Rejection messages surfaced to the customer display. When more than one
// dimension is out of tolerance but not all three, the first failing check in
// diameter, thickness, weight order decides the message.
const (
	ReasonIncorrectDiameter  = "incorrect diameter"
	ReasonIncorrectThickness = "incorrect thickness"
	ReasonIncorrectWeight    = "incorrect weight"
	ReasonNoMatch            = "doesn't match specifications"
	ReasonUnrecognized       = "not recognized"
)

type Validator struct {
	accepted []domain.Coin
}

func New() *Validator {
	return &Validator{accepted: catalog.Accepted()}
}

// IsAccepted reports whether any accepted catalog entry matches the
// candidate on all three physical dimensions. Raw measurements are not
// bounds-checked; zero or negative values simply fail the comparison.
func (v *Validator) IsAccepted(coin domain.Coin) bool {
	_, ok := v.Identify(coin.Diameter, coin.Thickness, coin.Weight)
	return ok
}

// Identify returns the first accepted catalog entry, in declaration order,
// whose diameter, thickness and weight are all within tolerance of the
// measurements.
func (v *Validator) Identify(diameter, thickness, weight float64) (domain.Coin, bool) {
	for _, spec := range v.accepted {
		if withinTolerance(diameter, spec.Diameter, catalog.DiameterTolerance) &&
			withinTolerance(thickness, spec.Thickness, catalog.ThicknessTolerance) &&
			withinTolerance(weight, spec.Weight, catalog.WeightTolerance) {
			return spec, true
		}
	}
	return domain.Coin{}, false
}

// RejectionReason returns an empty string for accepted coins. Otherwise the
// candidate is compared against the catalog entry with the same minor-unit
// value, falling back to the entry with the numerically closest value (first
// minimal distance in declaration order).
func (v *Validator) RejectionReason(coin domain.Coin) string {
	if v.IsAccepted(coin) {
		return ""
	}

	target := v.comparisonTarget(coin.Value)

	diameterOK := withinTolerance(coin.Diameter, target.Diameter, catalog.DiameterTolerance)
	thicknessOK := withinTolerance(coin.Thickness, target.Thickness, catalog.ThicknessTolerance)
	weightOK := withinTolerance(coin.Weight, target.Weight, catalog.WeightTolerance)

	switch {
	case !diameterOK && !thicknessOK && !weightOK:
		return ReasonNoMatch
	case !diameterOK:
		return ReasonIncorrectDiameter
	case !thicknessOK:
		return ReasonIncorrectThickness
	case !weightOK:
		return ReasonIncorrectWeight
	}

	// Unreachable when the precondition holds: the coin failed IsAccepted yet
	// matches its comparison target on every dimension.
	return ReasonUnrecognized
}

func (v *Validator) comparisonTarget(value int) domain.Coin {
	target := v.accepted[0]
	best := math.MaxInt

	for _, spec := range v.accepted {
		if spec.Value == value {
			return spec
		}
		distance := spec.Value - value
		if distance < 0 {
			distance = -distance
		}
		if distance < best {
			best = distance
			target = spec
		}
	}
	return target
}

func withinTolerance(measured, reference, tolerance float64) bool {
	return math.Abs(measured-reference) <= tolerance
}
