// Package machine wires the vending session, the maintenance session and the
// persistence layer into one controller with a power switch and a service
// door. All entry points serialize on a single mutex; the physical machine
// has one coin slot and one keypad, so there is no concurrent customer.
package machine

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"vendomat/machine/internal/catalog"
	"vendomat/machine/internal/coinval"
	"vendomat/machine/internal/domain"
	"vendomat/machine/internal/maintenance"
	"vendomat/machine/internal/money"
	"vendomat/machine/internal/vending"
	"vendomat/machine/internal/xid"
)

// Alert thresholds. A drink at or below LowStockThreshold units, a change
// denomination at or below LowChangeThreshold coins, or a maintenance visit
// older than MaintenanceOverdueDays raises an operational alert.
const (
	LowStockThreshold      = 2
	LowChangeThreshold     = 5
	MaintenanceOverdueDays = 30
)

const ReasonMachineStopped = "machine is stopped"

type Machine struct {
	mu sync.Mutex

	machineID string
	store     *maintenance.Store
	maint     *maintenance.Session
	session   *vending.Session
	clock     func() time.Time

	running    bool
	doorLocked bool

	lastPurchase *domain.Purchase
	lastSaleAt   time.Time
}

// doorState exposes the door latch to the maintenance session. It is only
// read from inside Machine methods that already hold the mutex.
type doorState struct {
	m *Machine
}

func (d doorState) DoorLocked() bool {
	return d.m.doorLocked
}

// New returns a machine that is powered on with the service door locked.
// Booting does not reset persisted state; only an explicit stop/start cycle
// does.
func New(store *maintenance.Store, machineID string, clock func() time.Time) *Machine {
	if clock == nil {
		clock = time.Now
	}
	m := &Machine{
		machineID:  machineID,
		store:      store,
		session:    vending.NewSession(coinval.New()),
		clock:      clock,
		running:    true,
		doorLocked: true,
	}
	m.maint = maintenance.NewSession(store, doorState{m: m}, clock)
	return m
}

// Start powers the machine on. The stopped-to-running transition restores
// factory settings and the default change float; transaction history is kept.
// Returns false when already running.
func (m *Machine) Start(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return false
	}

	if err := m.store.ResetDefaults(ctx); err != nil {
		log.Printf("[machine] WARN: reset on start failed: %v", err)
	}
	m.session.Reset()
	m.maint.ForceLogout(ctx)
	m.running = true
	m.doorLocked = true
	m.lastPurchase = nil
	return true
}

// Stop powers the machine off: the customer session is discarded, any
// maintainer is forced out and the door locks. Returns false when already
// stopped.
func (m *Machine) Stop(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return false
	}

	m.session.Reset()
	m.doorLocked = true
	m.maint.ForceLogout(ctx)
	m.running = false
	return true
}

// UnlockDoor opens the service door. Refused while the machine is stopped.
func (m *Machine) UnlockDoor() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return false
	}
	m.doorLocked = false
	return true
}

func (m *Machine) LockDoor() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doorLocked = true
}

// InsertCoin feeds one coin into the slot. Requests that carry only a
// denomination value are expanded to the catalog's physical profile; requests
// with measurements are validated as-is.
func (m *Machine) InsertCoin(req domain.InsertCoinRequest) domain.InsertCoinResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return domain.InsertCoinResponse{
			Accepted: false,
			Reason:   ReasonMachineStopped,
			Total:    m.session.Total(),
			Coins:    m.session.Coins(),
		}
	}

	coin := domain.Coin{
		Value:     req.Value,
		Name:      req.Name,
		Diameter:  req.Diameter,
		Thickness: req.Thickness,
		Weight:    req.Weight,
		Material:  req.Material,
	}
	if req.Diameter == 0 && req.Thickness == 0 && req.Weight == 0 {
		if spec, ok := catalog.AcceptedByValue(req.Value); ok {
			coin = spec
		}
	}

	accepted := m.session.InsertCoin(coin)
	resp := domain.InsertCoinResponse{
		Accepted: accepted,
		Total:    m.session.Total(),
		Coins:    m.session.Coins(),
	}
	if !accepted {
		resp.Reason = m.session.RejectionReason()
	}
	return resp
}

// SelectDrink attempts a purchase. On success the committed stock level
// drops by one, the inserted coins join the change float and a transaction
// record is appended to history.
func (m *Machine) SelectDrink(ctx context.Context, name string) domain.SelectDrinkResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	resp := domain.SelectDrinkResponse{
		Dispensed: false,
		Change:    money.Zero,
		Total:     m.session.Total(),
	}
	if !m.running {
		return resp
	}

	drink, ok := m.findDrink(ctx, name)
	if !ok {
		return resp
	}

	purchase, ok := m.session.SelectDrink(drink)
	if !ok {
		return resp
	}

	m.recordSale(ctx, purchase)

	resp.Dispensed = true
	resp.Change = purchase.ChangeGiven
	resp.Total = m.session.Total()
	resp.Purchase = &purchase
	return resp
}

func (m *Machine) findDrink(ctx context.Context, name string) (domain.DrinkItem, bool) {
	name = strings.TrimSpace(name)
	for _, d := range m.store.Drinks(ctx) {
		if d.Name == name {
			return d, true
		}
	}
	return domain.DrinkItem{}, false
}

func (m *Machine) recordSale(ctx context.Context, purchase domain.Purchase) {
	now := m.clock()

	settings := m.store.LoadSettings(ctx)
	if settings.DrinkStockLevels[purchase.DrinkName] > 0 {
		settings.DrinkStockLevels[purchase.DrinkName]--
	}
	if err := m.store.SaveSettings(ctx, settings); err != nil {
		log.Printf("[machine] WARN: stock decrement not persisted: %v", err)
	}

	float := m.store.LoadCoinFloat(ctx)
	for _, value := range purchase.Coins {
		if _, known := float[value]; known {
			float[value]++
		}
	}
	if err := m.store.SaveCoinFloat(ctx, float); err != nil {
		log.Printf("[machine] WARN: change float not persisted: %v", err)
	}

	record := domain.Transaction{
		Timestamp:      now.UnixMilli(),
		DrinkName:      purchase.DrinkName,
		DrinkPrice:     purchase.DrinkPrice,
		AmountInserted: purchase.AmountInserted,
		ChangeGiven:    purchase.ChangeGiven,
		CoinsInserted:  purchase.Coins,
	}
	if err := m.store.AppendTransaction(ctx, record); err != nil {
		log.Printf("[machine] WARN: transaction not persisted: %v", err)
	}

	m.lastPurchase = &purchase
	m.lastSaleAt = now
}

// ReturnCash refunds the current balance.
func (m *Machine) ReturnCash() domain.ReturnCashResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.ReturnCashResponse{Refund: m.session.ReturnCash()}
}

// ResetSession abandons the current customer interaction without a refund
// record; the hardware has already returned the coins.
func (m *Machine) ResetSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Reset()
}

func (m *Machine) Status(ctx context.Context) domain.MachineStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return domain.MachineStatus{
		Running:            m.running,
		DoorLocked:         m.doorLocked,
		MaintainerLoggedIn: m.maint.LoggedIn(),
		Total:              m.session.Total(),
		ChangeDue:          m.session.ChangeDue(),
		RejectionMessage:   m.session.RejectionReason(),
		Drinks:             m.store.Drinks(ctx),
	}
}

func (m *Machine) Drinks(ctx context.Context) []domain.DrinkItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Drinks(ctx)
}

func (m *Machine) Transactions(ctx context.Context) []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.ListTransactions(ctx)
}

// MaintenanceLogin authenticates the keypad password and opens a staged
// maintenance session.
func (m *Machine) MaintenanceLogin(ctx context.Context, password string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return false
	}
	return m.maint.Login(ctx, password)
}

// MaintenanceLogout ends the maintenance session. Refused while the service
// door is unlocked.
func (m *Machine) MaintenanceLogout(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maint.Logout(ctx)
}

func (m *Machine) UpdateDrinkStock(drink string, qty int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maint.UpdateDrinkStock(drink, qty)
}

func (m *Machine) UpdateDrinkPrice(drink string, price float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maint.UpdateDrinkPrice(drink, price)
}

func (m *Machine) UpdateCoinFloat(denomination, count int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maint.UpdateCoinQuantity(denomination, count)
}

// CommitMaintenance persists all staged edits.
func (m *Machine) CommitMaintenance(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maint.SaveChanges(ctx)
}

// CollectCoins empties the change float and returns the collected total.
func (m *Machine) CollectCoins(ctx context.Context) (domain.CollectCoinsResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	collected, err := m.maint.CollectAllCoins(ctx)
	if err != nil {
		return domain.CollectCoinsResponse{}, err
	}
	return domain.CollectCoinsResponse{Collected: collected}, nil
}

// Alerts scans committed state for operational anomalies: drinks close to
// selling out, change denominations running dry and overdue maintenance.
func (m *Machine) Alerts(ctx context.Context) domain.AlertListResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings := m.store.LoadSettings(ctx)
	float := m.store.LoadCoinFloat(ctx)
	now := m.clock()

	alerts := make([]domain.Alert, 0, 8)

	for _, name := range maintenance.DrinkNames() {
		stock := settings.DrinkStockLevels[name]
		if stock > LowStockThreshold {
			continue
		}
		severity := domain.AlertSeverityMedium
		message := fmt.Sprintf("%s is down to %d units.", name, stock)
		if stock == 0 {
			severity = domain.AlertSeverityHigh
			message = fmt.Sprintf("%s is sold out.", name)
		}
		alerts = append(alerts, domain.Alert{
			ID:          xid.New("alert"),
			Code:        "low_stock",
			Severity:    severity,
			Message:     message,
			MetricValue: float64(stock),
			Threshold:   LowStockThreshold,
		})
	}

	for _, value := range catalog.Denominations() {
		count := float[value]
		if count > LowChangeThreshold {
			continue
		}
		severity := domain.AlertSeverityMedium
		if count == 0 {
			severity = domain.AlertSeverityHigh
		}
		spec, _ := catalog.AcceptedByValue(value)
		alerts = append(alerts, domain.Alert{
			ID:          xid.New("alert"),
			Code:        "change_float_low",
			Severity:    severity,
			Message:     fmt.Sprintf("Change float holds %d x %s coins.", count, spec.Name),
			MetricValue: float64(count),
			Threshold:   LowChangeThreshold,
		})
	}

	if settings.LastMaintenanceDate > 0 {
		age := now.Sub(time.UnixMilli(settings.LastMaintenanceDate))
		days := age.Hours() / 24
		if days > MaintenanceOverdueDays {
			alerts = append(alerts, domain.Alert{
				ID:          xid.New("alert"),
				Code:        "maintenance_overdue",
				Severity:    domain.AlertSeverityLow,
				Message:     fmt.Sprintf("Last maintenance visit was %.0f days ago.", days),
				MetricValue: days,
				Threshold:   MaintenanceOverdueDays,
			})
		}
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Severity == alerts[j].Severity {
			return alerts[i].MetricValue < alerts[j].MetricValue
		}
		return severityRank(alerts[i].Severity) < severityRank(alerts[j].Severity)
	})

	return domain.AlertListResponse{MachineID: m.machineID, Alerts: alerts}
}

func severityRank(severity string) int {
	switch severity {
	case domain.AlertSeverityHigh:
		return 0
	case domain.AlertSeverityMedium:
		return 1
	default:
		return 2
	}
}

// BuildReceipt renders the most recent purchase as an ESC/POS print job,
// base64-encoded for a local printer bridge. ok is false when no purchase
// has completed since the machine came up.
func (m *Machine) BuildReceipt() (domain.ReceiptResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastPurchase == nil {
		return domain.ReceiptResponse{}, false
	}
	p := *m.lastPurchase

	lines := []string{
		"Vendomat",
		"========================",
		"Machine: " + m.machineID,
		"Date: " + m.lastSaleAt.Format("2006-01-02 15:04:05"),
		"------------------------",
		p.DrinkName,
		"------------------------",
		"Price    : " + p.DrinkPrice,
		"Inserted : " + p.AmountInserted,
		"Change   : " + p.ChangeGiven,
		"========================",
		"Thank you",
		"",
	}

	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.ReceiptResponse{
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		PreviewText:  strings.Join(lines, "\n"),
		FileName:     fmt.Sprintf("receipt-%d.bin", m.lastSaleAt.UnixMilli()),
	}, true
}
