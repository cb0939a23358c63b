// Package money implements the machine's transaction arithmetic. Amounts
// cross package boundaries as decimal strings with exactly two fractional
// digits; internally everything is integer sen, so repeated insert/select/
// change cycles cannot accumulate floating-point drift.
package money

import (
	"math"
	"strconv"
	"strings"

	"vendomat/machine/internal/domain"
)

const Zero = "0.00"

// Total sums the minor-unit values of the inserted coins and formats the
// result as a two-decimal string.
func Total(coins []domain.Coin) string {
	var cents int64
	for _, c := range coins {
		cents += int64(c.Value)
	}
	return FormatAmount(cents)
}

// HasEnoughMoney reports whether the inserted amount covers the price. A
// string that fails to parse yields false, never an error.
func HasEnoughMoney(inserted, price string) bool {
	insertedCents, ok := ParseAmount(inserted)
	if !ok {
		return false
	}
	priceCents, ok := ParseAmount(price)
	if !ok {
		return false
	}
	return insertedCents >= priceCents
}

// Change computes inserted minus price, clamped at zero. Parse failures
// degrade to "0.00".
func Change(inserted, price string) string {
	insertedCents, ok := ParseAmount(inserted)
	if !ok {
		return Zero
	}
	priceCents, ok := ParseAmount(price)
	if !ok {
		return Zero
	}
	diff := insertedCents - priceCents
	if diff < 0 {
		diff = 0
	}
	return FormatAmount(diff)
}

// ParseAmount converts a decimal string to sen, rounding half-up at the cent
// boundary. The ok result is false for anything that is not a number.
func ParseAmount(value string) (int64, bool) {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return int64(math.Round(parsed * 100)), true
}

// FormatAmount renders sen as a decimal string with exactly two fractional
// digits, zero-padded. Negative amounts clamp to "0.00"; the machine never
// displays a negative balance.
func FormatAmount(cents int64) string {
	if cents < 0 {
		cents = 0
	}
	return strconv.FormatInt(cents/100, 10) + "." + pad2(cents%100)
}

func pad2(fraction int64) string {
	if fraction < 10 {
		return "0" + strconv.FormatInt(fraction, 10)
	}
	return strconv.FormatInt(fraction, 10)
}
