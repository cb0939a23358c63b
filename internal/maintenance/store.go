// Package maintenance owns the machine's persisted state (admin credentials,
// stock levels, prices, coin float, transaction history) and the
// authenticated maintenance session that edits it.
package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math"
	"sort"

	"vendomat/machine/internal/catalog"
	"vendomat/machine/internal/domain"
	"vendomat/machine/internal/kvstore"
	"vendomat/machine/internal/money"
)

// Storage keys. The JSON shapes stored under them are a compatibility
// contract with the UI layer; see the field tags in the domain package.
const (
	settingsKey     = "maintenance_settings"
	transactionsKey = "transactions"
	coinFloatKey    = "available_change"
)

// DefaultAdminPassword seeds a fresh machine. It must itself satisfy the
// 6-alphanumeric format rule; TestDefaultPasswordSatisfiesFormatRule guards
// the fixture.
const DefaultAdminPassword = "admin1"

var ErrNotLoggedIn = errors.New("maintainer not logged in")

// defaultDrinks is the machine's drink catalog: names and prices are stable
// unless edited via maintenance, stock counts start at the listed level.
var defaultDrinks = []struct {
	name  string
	price float64
	stock int
}{
	{"Mineral Water", 0.50, 10},
	{"Cola", 0.70, 10},
	{"Orange Juice", 0.85, 10},
	{"Iced Tea", 1.00, 10},
	{"Coffee", 1.20, 10},
}

const (
	MinStock     = 0
	MaxStock     = 20
	MinCoinCount = 0
	MaxCoinCount = 20
)

type Store struct {
	gateway kvstore.Gateway
}

func NewStore(gateway kvstore.Gateway) *Store {
	return &Store{gateway: gateway}
}

// DefaultSettings returns the state of a machine that has never been
// serviced: seed password, catalog stock and prices, zero timestamp.
func DefaultSettings() domain.MaintenanceSettings {
	stock := make(map[string]int, len(defaultDrinks))
	prices := make(map[string]float64, len(defaultDrinks))
	for _, d := range defaultDrinks {
		stock[d.name] = d.stock
		prices[d.name] = d.price
	}
	return domain.MaintenanceSettings{
		AdminPassword:    DefaultAdminPassword,
		DrinkStockLevels: stock,
		PriceSettings:    prices,
	}
}

// DefaultCoinFloat is the factory coin load: twenty of each small
// denomination and ten one-ringgit coins.
func DefaultCoinFloat() map[int]int {
	float := make(map[int]int, 4)
	for _, denom := range catalog.Denominations() {
		float[denom] = 20
	}
	float[100] = 10
	return float
}

// DrinkNames returns the drink catalog names in menu order.
func DrinkNames() []string {
	names := make([]string, 0, len(defaultDrinks))
	for _, d := range defaultDrinks {
		names = append(names, d.name)
	}
	return names
}

// LoadSettings reads the persisted settings record. Absent or corrupt data
// degrades to defaults so the maintenance surface never fails on bad state.
func (s *Store) LoadSettings(ctx context.Context) domain.MaintenanceSettings {
	raw, found, err := s.gateway.Get(ctx, settingsKey)
	if err != nil {
		log.Printf("[maintenance] WARN: settings read failed, using defaults: %v", err)
		return DefaultSettings()
	}
	if !found {
		return DefaultSettings()
	}

	var settings domain.MaintenanceSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		log.Printf("[maintenance] WARN: corrupt settings record, using defaults: %v", err)
		return DefaultSettings()
	}
	if settings.AdminPassword == "" {
		settings.AdminPassword = DefaultAdminPassword
	}
	if settings.DrinkStockLevels == nil {
		settings.DrinkStockLevels = DefaultSettings().DrinkStockLevels
	}
	if settings.PriceSettings == nil {
		settings.PriceSettings = DefaultSettings().PriceSettings
	}
	return settings
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.MaintenanceSettings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return s.gateway.Set(ctx, settingsKey, string(payload))
}

// LoadCoinFloat reads the per-denomination coin counts, falling back to the
// factory load when the record is absent or corrupt. Unknown denominations
// in stored data are dropped; known ones missing from it are zero-filled so
// the result always covers the full closed denomination set.
func (s *Store) LoadCoinFloat(ctx context.Context) map[int]int {
	raw, found, err := s.gateway.Get(ctx, coinFloatKey)
	if err != nil {
		log.Printf("[maintenance] WARN: coin float read failed, using defaults: %v", err)
		return DefaultCoinFloat()
	}
	if !found {
		return DefaultCoinFloat()
	}

	var stored map[int]int
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		log.Printf("[maintenance] WARN: corrupt coin float record, using defaults: %v", err)
		return DefaultCoinFloat()
	}

	float := make(map[int]int, 4)
	for _, denom := range catalog.Denominations() {
		float[denom] = stored[denom]
	}
	return float
}

func (s *Store) SaveCoinFloat(ctx context.Context, float map[int]int) error {
	payload, err := json.Marshal(float)
	if err != nil {
		return err
	}
	return s.gateway.Set(ctx, coinFloatKey, string(payload))
}

// AppendTransaction reads the full history list, appends the record and
// writes the list back. The read-modify-write is safe under this process's
// single-writer model; concurrent writers sharing one gateway are out of
// scope.
func (s *Store) AppendTransaction(ctx context.Context, record domain.Transaction) error {
	history := s.ListTransactions(ctx)
	history = append(history, record)

	payload, err := json.Marshal(history)
	if err != nil {
		return err
	}
	return s.gateway.Set(ctx, transactionsKey, string(payload))
}

// ListTransactions returns the cumulative history, oldest first. Corrupt
// records degrade to an empty list.
func (s *Store) ListTransactions(ctx context.Context) []domain.Transaction {
	raw, found, err := s.gateway.Get(ctx, transactionsKey)
	if err != nil {
		log.Printf("[maintenance] WARN: transaction history read failed: %v", err)
		return []domain.Transaction{}
	}
	if !found {
		return []domain.Transaction{}
	}

	var history []domain.Transaction
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		log.Printf("[maintenance] WARN: corrupt transaction history: %v", err)
		return []domain.Transaction{}
	}
	return history
}

// ValidatePassword accepts a candidate only when it equals the stored admin
// password and satisfies the format rule. Both checks are required: a stored
// password that drifted out of format is unusable rather than special-cased.
func (s *Store) ValidatePassword(ctx context.Context, candidate string) bool {
	if !ValidPasswordFormat(candidate) {
		return false
	}
	return candidate == s.LoadSettings(ctx).AdminPassword
}

// ValidPasswordFormat enforces exactly 6 ASCII alphanumeric characters,
// case-sensitive.
func ValidPasswordFormat(password string) bool {
	if len(password) != 6 {
		return false
	}
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

// ResetDefaults restores settings and coin float to factory values. The
// transaction history is cumulative and deliberately untouched.
func (s *Store) ResetDefaults(ctx context.Context) error {
	if err := s.SaveSettings(ctx, DefaultSettings()); err != nil {
		return err
	}
	return s.SaveCoinFloat(ctx, DefaultCoinFloat())
}

// Drinks builds the current menu: catalog names and default prices overlaid
// with persisted stock and price edits, price formatted as a two-decimal
// string.
func (s *Store) Drinks(ctx context.Context) []domain.DrinkItem {
	settings := s.LoadSettings(ctx)

	drinks := make([]domain.DrinkItem, 0, len(defaultDrinks))
	for _, d := range defaultDrinks {
		price := d.price
		if override, ok := settings.PriceSettings[d.name]; ok {
			price = override
		}
		stock := 0
		if level, ok := settings.DrinkStockLevels[d.name]; ok {
			stock = level
		}
		drinks = append(drinks, domain.DrinkItem{
			Name:    d.name,
			Price:   money.FormatAmount(priceCents(price)),
			InStock: stock > 0,
		})
	}
	return drinks
}

// CoinFloatTotal returns the cash value of the float as a decimal string.
func (s *Store) CoinFloatTotal(ctx context.Context) string {
	var cents int64
	float := s.LoadCoinFloat(ctx)

	denoms := make([]int, 0, len(float))
	for denom := range float {
		denoms = append(denoms, denom)
	}
	sort.Ints(denoms)
	for _, denom := range denoms {
		cents += int64(denom) * int64(float[denom])
	}
	return money.FormatAmount(cents)
}

// priceCents converts a stored float price to sen, rounding half-up at the
// cent so "0.70" stored as 0.7000000001 still prices at 70.
func priceCents(price float64) int64 {
	return int64(math.Round(price * 100))
}
