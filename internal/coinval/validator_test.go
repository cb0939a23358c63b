package coinval

import (
	"testing"

	"vendomat/machine/internal/catalog"
	"vendomat/machine/internal/domain"
)

func TestIdentifyRoundTripsEveryCatalogCoin(t *testing.T) {
	v := New()
	for _, spec := range catalog.Accepted() {
		identified, ok := v.Identify(spec.Diameter, spec.Thickness, spec.Weight)
		if !ok {
			t.Fatalf("%s: expected exact measurements to identify", spec.Name)
		}
		if identified.Value != spec.Value {
			t.Fatalf("%s: identified as value %d", spec.Name, identified.Value)
		}
	}
}

func TestIdentifyRejectsSingleDimensionOutOfTolerance(t *testing.T) {
	v := New()
	tenSen, _ := catalog.AcceptedByValue(10)

	cases := []struct {
		name      string
		diameter  float64
		thickness float64
		weight    float64
	}{
		{"diameter high", tenSen.Diameter + catalog.DiameterTolerance + 0.01, tenSen.Thickness, tenSen.Weight},
		{"diameter low", tenSen.Diameter - catalog.DiameterTolerance - 0.01, tenSen.Thickness, tenSen.Weight},
		{"thickness high", tenSen.Diameter, tenSen.Thickness + catalog.ThicknessTolerance + 0.01, tenSen.Weight},
		{"weight low", tenSen.Diameter, tenSen.Thickness, tenSen.Weight - catalog.WeightTolerance - 0.01},
	}

	for _, tc := range cases {
		if _, ok := v.Identify(tc.diameter, tc.thickness, tc.weight); ok {
			t.Fatalf("%s: expected identification to fail", tc.name)
		}
	}
}

func TestIdentifyAtExactToleranceBoundary(t *testing.T) {
	v := New()
	tenSen, _ := catalog.AcceptedByValue(10)

	identified, ok := v.Identify(tenSen.Diameter+catalog.DiameterTolerance, tenSen.Thickness, tenSen.Weight)
	if !ok || identified.Value != 10 {
		t.Fatalf("deviation equal to the tolerance must still match")
	}
}

func TestRejectionReasonSingleDimension(t *testing.T) {
	v := New()
	tenSen, _ := catalog.AcceptedByValue(10)

	coin := tenSen
	coin.Diameter += 0.5
	if reason := v.RejectionReason(coin); reason != ReasonIncorrectDiameter {
		t.Fatalf("expected %q, got %q", ReasonIncorrectDiameter, reason)
	}

	coin = tenSen
	coin.Thickness += 0.2
	if reason := v.RejectionReason(coin); reason != ReasonIncorrectThickness {
		t.Fatalf("expected %q, got %q", ReasonIncorrectThickness, reason)
	}

	coin = tenSen
	coin.Weight -= 0.4
	if reason := v.RejectionReason(coin); reason != ReasonIncorrectWeight {
		t.Fatalf("expected %q, got %q", ReasonIncorrectWeight, reason)
	}
}

func TestRejectionReasonDiameterWinsWhenTwoDimensionsFail(t *testing.T) {
	v := New()
	tenSen, _ := catalog.AcceptedByValue(10)

	coin := tenSen
	coin.Diameter += 0.5
	coin.Weight += 0.5
	if reason := v.RejectionReason(coin); reason != ReasonIncorrectDiameter {
		t.Fatalf("expected diameter to win priority, got %q", reason)
	}
}

func TestRejectionReasonAllDimensionsOff(t *testing.T) {
	v := New()

	// The euro shares the 1-ringgit minor-unit value but misses on every
	// physical dimension.
	var euro domain.Coin
	for _, c := range catalog.Rejected() {
		if c.Name == "1 euro" {
			euro = c
		}
	}
	if euro.Name == "" {
		t.Fatalf("missing euro fixture in catalog")
	}
	if reason := v.RejectionReason(euro); reason != ReasonNoMatch {
		t.Fatalf("expected %q, got %q", ReasonNoMatch, reason)
	}
}

func TestRejectionReasonFallsBackToNearestValue(t *testing.T) {
	v := New()

	// A US quarter (value 25) has no value-equal catalog entry; the nearest
	// by value is 20 sen. Its diameter is far off the 20-sen spec.
	var quarter domain.Coin
	for _, c := range catalog.Rejected() {
		if c.Name == "US quarter" {
			quarter = c
		}
	}
	if quarter.Name == "" {
		t.Fatalf("missing quarter fixture in catalog")
	}
	if reason := v.RejectionReason(quarter); reason == "" || reason == ReasonUnrecognized {
		t.Fatalf("expected a concrete rejection reason, got %q", reason)
	}
}

func TestRejectionReasonEmptyForAcceptedCoin(t *testing.T) {
	v := New()
	fiftySen, _ := catalog.AcceptedByValue(50)
	if reason := v.RejectionReason(fiftySen); reason != "" {
		t.Fatalf("accepted coin must have empty rejection reason, got %q", reason)
	}
}

func TestZeroMeasurementsAreComparedNotRejectedOutright(t *testing.T) {
	v := New()

	coin := domain.Coin{Value: 10, Diameter: 0, Thickness: 0, Weight: 0}
	if v.IsAccepted(coin) {
		t.Fatalf("zero-dimension coin must not be accepted")
	}
	if reason := v.RejectionReason(coin); reason != ReasonNoMatch {
		t.Fatalf("expected %q for zero measurements, got %q", ReasonNoMatch, reason)
	}
}
