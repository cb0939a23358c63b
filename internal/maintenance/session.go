package maintenance

import (
	"context"
	"fmt"
	"log"
	"time"

	"vendomat/machine/internal/domain"
	"vendomat/machine/internal/money"
)

// DoorSensor reports the service door state. Logout is refused while the
// door is unlocked.
type DoorSensor interface {
	DoorLocked() bool
}

// Session is one maintainer interaction. Stock, price and coin-float edits
// land in staged working copies and are only persisted by SaveChanges; a
// session abandoned without committing leaves no durable trace.
type Session struct {
	store *Store
	door  DoorSensor
	now   func() time.Time

	loggedIn     bool
	stagedStock  map[string]int
	stagedPrices map[string]float64
	stagedFloat  map[int]int
}

func NewSession(store *Store, door DoorSensor, now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{store: store, door: door, now: now}
}

func (m *Session) LoggedIn() bool {
	return m.loggedIn
}

// Login validates the keypad password, loads the staged working copies from
// committed state and raises the maintenance-active flag.
func (m *Session) Login(ctx context.Context, password string) bool {
	if m.loggedIn {
		return true
	}
	if !m.store.ValidatePassword(ctx, password) {
		return false
	}

	settings := m.store.LoadSettings(ctx)
	defaults := DefaultSettings()

	m.stagedStock = make(map[string]int, len(defaults.DrinkStockLevels))
	for name, level := range defaults.DrinkStockLevels {
		m.stagedStock[name] = level
	}
	for name, level := range settings.DrinkStockLevels {
		if _, known := m.stagedStock[name]; known {
			m.stagedStock[name] = level
		}
	}

	m.stagedPrices = make(map[string]float64, len(defaults.PriceSettings))
	for name, price := range defaults.PriceSettings {
		m.stagedPrices[name] = price
	}
	for name, price := range settings.PriceSettings {
		if _, known := m.stagedPrices[name]; known {
			m.stagedPrices[name] = price
		}
	}

	m.stagedFloat = m.store.LoadCoinFloat(ctx)
	m.loggedIn = true

	settings.MaintenanceActive = true
	if err := m.store.SaveSettings(ctx, settings); err != nil {
		log.Printf("[maintenance] WARN: failed to persist maintenance-active flag: %v", err)
	}
	return true
}

// Logout refuses while the door is unlocked; the caller surfaces that as a
// blocking message. On success staged edits are discarded.
func (m *Session) Logout(ctx context.Context) bool {
	if !m.loggedIn {
		return false
	}
	if !m.door.DoorLocked() {
		return false
	}

	m.discard()

	settings := m.store.LoadSettings(ctx)
	settings.MaintenanceActive = false
	if err := m.store.SaveSettings(ctx, settings); err != nil {
		log.Printf("[maintenance] WARN: failed to clear maintenance-active flag: %v", err)
	}
	return true
}

// ForceLogout ends the session regardless of door state. Used when the
// machine stops.
func (m *Session) ForceLogout(ctx context.Context) {
	if !m.loggedIn {
		return
	}
	m.discard()

	settings := m.store.LoadSettings(ctx)
	settings.MaintenanceActive = false
	if err := m.store.SaveSettings(ctx, settings); err != nil {
		log.Printf("[maintenance] WARN: failed to clear maintenance-active flag: %v", err)
	}
}

func (m *Session) discard() {
	m.loggedIn = false
	m.stagedStock = nil
	m.stagedPrices = nil
	m.stagedFloat = nil
}

// UpdateDrinkStock stages a stock level for a known drink. Guarded no-op
// outside 0-20 or when not logged in.
func (m *Session) UpdateDrinkStock(drink string, qty int) bool {
	if !m.loggedIn || qty < MinStock || qty > MaxStock {
		return false
	}
	if _, known := m.stagedStock[drink]; !known {
		return false
	}
	m.stagedStock[drink] = qty
	return true
}

// UpdateDrinkPrice stages a positive price for a known drink.
func (m *Session) UpdateDrinkPrice(drink string, price float64) bool {
	if !m.loggedIn || price <= 0 {
		return false
	}
	if _, known := m.stagedPrices[drink]; !known {
		return false
	}
	m.stagedPrices[drink] = price
	return true
}

// UpdateCoinQuantity stages a count for a known denomination. Unknown
// denominations are never inserted.
func (m *Session) UpdateCoinQuantity(denomination int, count int) bool {
	if !m.loggedIn || count < MinCoinCount || count > MaxCoinCount {
		return false
	}
	if _, known := m.stagedFloat[denomination]; !known {
		return false
	}
	m.stagedFloat[denomination] = count
	return true
}

func (m *Session) StagedStock() map[string]int {
	out := make(map[string]int, len(m.stagedStock))
	for name, level := range m.stagedStock {
		out[name] = level
	}
	return out
}

func (m *Session) StagedPrices() map[string]float64 {
	out := make(map[string]float64, len(m.stagedPrices))
	for name, price := range m.stagedPrices {
		out[name] = price
	}
	return out
}

func (m *Session) StagedCoinFloat() map[int]int {
	out := make(map[int]int, len(m.stagedFloat))
	for denom, count := range m.stagedFloat {
		out[denom] = count
	}
	return out
}

// SaveChanges commits the staged copies: settings and coin float are
// persisted, the last-maintenance timestamp is stamped and a history record
// is appended.
func (m *Session) SaveChanges(ctx context.Context) error {
	if !m.loggedIn {
		return ErrNotLoggedIn
	}

	settings := m.store.LoadSettings(ctx)
	settings.DrinkStockLevels = m.StagedStock()
	settings.PriceSettings = m.StagedPrices()
	settings.LastMaintenanceDate = m.now().UnixMilli()
	settings.MaintenanceActive = true

	if err := m.store.SaveSettings(ctx, settings); err != nil {
		return err
	}
	if err := m.store.SaveCoinFloat(ctx, m.StagedCoinFloat()); err != nil {
		return err
	}

	record := domain.Transaction{
		Timestamp:         settings.LastMaintenanceDate,
		MaintenanceAction: fmt.Sprintf("settings committed: %d drinks, %d denominations", len(m.stagedStock), len(m.stagedFloat)),
	}
	if err := m.store.AppendTransaction(ctx, record); err != nil {
		log.Printf("[maintenance] WARN: failed to record maintenance history: %v", err)
	}
	return nil
}

// CollectAllCoins empties the coin float (staged and committed), persists
// the empty float and returns the collected cash value as a decimal string.
func (m *Session) CollectAllCoins(ctx context.Context) (string, error) {
	if !m.loggedIn {
		return money.Zero, ErrNotLoggedIn
	}

	collected := m.store.CoinFloatTotal(ctx)

	emptied := make(map[int]int, len(m.stagedFloat))
	for denom := range m.stagedFloat {
		emptied[denom] = 0
	}
	if err := m.store.SaveCoinFloat(ctx, emptied); err != nil {
		return money.Zero, err
	}
	m.stagedFloat = emptied

	record := domain.Transaction{
		Timestamp:         m.now().UnixMilli(),
		MaintenanceAction: "cash collected: " + collected,
	}
	if err := m.store.AppendTransaction(ctx, record); err != nil {
		log.Printf("[maintenance] WARN: failed to record cash collection: %v", err)
	}
	return collected, nil
}
