// Package catalog holds the machine's static coin reference data: the
// physical specifications of the accepted denominations, a set of known
// foreign coins used for negative testing, and the shared measurement
// tolerances. The tables are process-wide constants; there is no mutation
// API and no error condition.
package catalog

import "vendomat/machine/internal/domain"

// Measurement tolerances shared by every catalog entry. A candidate matches
// an entry only when all three physical dimensions fall within tolerance.
const (
	DiameterTolerance  = 0.1
	ThicknessTolerance = 0.05
	WeightTolerance    = 0.1
)

// accepted is ordered by denomination; validators scan it in declaration
// order and first match wins.
var accepted = []domain.Coin{
	{Value: 10, Name: "10 sen", Diameter: 18.50, Thickness: 1.40, Weight: 2.00, Material: "stainless steel"},
	{Value: 20, Name: "20 sen", Diameter: 20.60, Thickness: 1.65, Weight: 2.80, Material: "nickel brass"},
	{Value: 50, Name: "50 sen", Diameter: 22.65, Thickness: 1.90, Weight: 3.50, Material: "nickel brass"},
	{Value: 100, Name: "1 ringgit", Diameter: 24.50, Thickness: 2.15, Weight: 4.80, Material: "bimetal clad"},
}

// rejected lists example foreign coins the machine must refuse. The dime and
// euro deliberately share minor-unit values with accepted denominations so
// the value-equal rejection path is exercised; the quarter matches nothing.
var rejected = []domain.Coin{
	{Value: 10, Name: "US dime", Diameter: 17.91, Thickness: 1.35, Weight: 2.27, Material: "cupronickel"},
	{Value: 25, Name: "US quarter", Diameter: 24.26, Thickness: 1.75, Weight: 5.67, Material: "cupronickel"},
	{Value: 100, Name: "1 euro", Diameter: 23.25, Thickness: 2.33, Weight: 7.50, Material: "bimetal"},
}

// Accepted returns the ordered accepted-coin specifications.
func Accepted() []domain.Coin {
	out := make([]domain.Coin, len(accepted))
	copy(out, accepted)
	return out
}

// Rejected returns the foreign-coin examples.
func Rejected() []domain.Coin {
	out := make([]domain.Coin, len(rejected))
	copy(out, rejected)
	return out
}

// AcceptedByValue looks up the accepted specification for a denomination.
func AcceptedByValue(value int) (domain.Coin, bool) {
	for _, c := range accepted {
		if c.Value == value {
			return c, true
		}
	}
	return domain.Coin{}, false
}

// Denominations returns the accepted minor-unit values in declaration order.
func Denominations() []int {
	values := make([]int, 0, len(accepted))
	for _, c := range accepted {
		values = append(values, c.Value)
	}
	return values
}
