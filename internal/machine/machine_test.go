package machine

import (
	"context"
	"strings"
	"testing"
	"time"

	"vendomat/machine/internal/domain"
	"vendomat/machine/internal/kvstore/memory"
	"vendomat/machine/internal/maintenance"
)

func newTestMachine() (*Machine, *maintenance.Store) {
	store := maintenance.NewStore(memory.New())
	m := New(store, "vm-test-1", fixedClock())
	return m, store
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.UnixMilli(1700000000000) }
}

func insertValue(m *Machine, value int) domain.InsertCoinResponse {
	return m.InsertCoin(domain.InsertCoinRequest{Value: value})
}

func TestMachineBootsRunningWithDoorLocked(t *testing.T) {
	m, _ := newTestMachine()

	status := m.Status(context.Background())
	if !status.Running {
		t.Fatal("expected machine to boot in the running state")
	}
	if !status.DoorLocked {
		t.Fatal("expected service door to boot locked")
	}
	if status.MaintainerLoggedIn {
		t.Fatal("expected no maintainer session at boot")
	}
}

func TestBootDoesNotResetPersistedState(t *testing.T) {
	ctx := context.Background()
	store := maintenance.NewStore(memory.New())

	settings := maintenance.DefaultSettings()
	settings.DrinkStockLevels["Cola"] = 3
	if err := store.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	m := New(store, "vm-test-1", fixedClock())
	for _, d := range m.Drinks(ctx) {
		if d.Name == "Cola" && !d.InStock {
			t.Fatal("expected persisted stock to survive a boot")
		}
	}
	if got := store.LoadSettings(ctx).DrinkStockLevels["Cola"]; got != 3 {
		t.Fatalf("Cola stock after boot = %d, want 3", got)
	}
}

func TestStopStartCycleRestoresDefaults(t *testing.T) {
	ctx := context.Background()
	m, store := newTestMachine()

	settings := store.LoadSettings(ctx)
	settings.DrinkStockLevels["Cola"] = 1
	settings.PriceSettings["Cola"] = 9.99
	if err := store.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	if !m.Stop(ctx) {
		t.Fatal("expected Stop to transition running -> stopped")
	}
	if m.Stop(ctx) {
		t.Fatal("expected second Stop to be a no-op")
	}
	if !m.Start(ctx) {
		t.Fatal("expected Start to transition stopped -> running")
	}
	if m.Start(ctx) {
		t.Fatal("expected second Start to be a no-op")
	}

	restored := store.LoadSettings(ctx)
	if restored.DrinkStockLevels["Cola"] != 10 {
		t.Fatalf("Cola stock after restart = %d, want factory default 10", restored.DrinkStockLevels["Cola"])
	}
	if restored.PriceSettings["Cola"] != 0.70 {
		t.Fatalf("Cola price after restart = %v, want factory default 0.70", restored.PriceSettings["Cola"])
	}
}

func TestStopStartCycleKeepsTransactionHistory(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine()

	insertValue(m, 100)
	if resp := m.SelectDrink(ctx, "Cola"); !resp.Dispensed {
		t.Fatal("expected purchase to succeed")
	}

	m.Stop(ctx)
	m.Start(ctx)

	if got := len(m.Transactions(ctx)); got != 1 {
		t.Fatalf("transactions after restart = %d, want 1", got)
	}
}

func TestStopDiscardsCustomerSessionAndForcesLogout(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine()

	insertValue(m, 50)
	if !m.MaintenanceLogin(ctx, maintenance.DefaultAdminPassword) {
		t.Fatal("expected login with default password")
	}

	m.Stop(ctx)

	status := m.Status(ctx)
	if status.Running {
		t.Fatal("expected machine to be stopped")
	}
	if status.Total != "0.00" {
		t.Fatalf("balance after stop = %q, want 0.00", status.Total)
	}
	if status.MaintainerLoggedIn {
		t.Fatal("expected maintainer to be forced out on stop")
	}
	if !status.DoorLocked {
		t.Fatal("expected door to lock on stop")
	}
}

func TestInsertCoinRefusedWhileStopped(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine()
	m.Stop(ctx)

	resp := insertValue(m, 100)
	if resp.Accepted {
		t.Fatal("expected coin to be refused while stopped")
	}
	if resp.Reason != ReasonMachineStopped {
		t.Fatalf("reason = %q, want %q", resp.Reason, ReasonMachineStopped)
	}
}

func TestInsertCoinExpandsDenominationToCatalogProfile(t *testing.T) {
	m, _ := newTestMachine()

	resp := insertValue(m, 50)
	if !resp.Accepted {
		t.Fatalf("expected bare 50 sen request to be accepted, got reason %q", resp.Reason)
	}
	if resp.Total != "0.50" {
		t.Fatalf("total = %q, want 0.50", resp.Total)
	}
}

func TestInsertCoinWithMeasurementsIsValidatedAsIs(t *testing.T) {
	m, _ := newTestMachine()

	resp := m.InsertCoin(domain.InsertCoinRequest{
		Value: 50, Diameter: 22.65, Thickness: 1.90, Weight: 2.00,
	})
	if resp.Accepted {
		t.Fatal("expected underweight measurements to be rejected")
	}
	if resp.Reason == "" {
		t.Fatal("expected a rejection reason")
	}
}

func TestSelectDrinkDecrementsStockAndRecordsTransaction(t *testing.T) {
	ctx := context.Background()
	m, store := newTestMachine()

	insertValue(m, 100)
	resp := m.SelectDrink(ctx, "Cola")
	if !resp.Dispensed {
		t.Fatal("expected dispense")
	}
	if resp.Change != "0.30" {
		t.Fatalf("change = %q, want 0.30", resp.Change)
	}

	if got := store.LoadSettings(ctx).DrinkStockLevels["Cola"]; got != 9 {
		t.Fatalf("Cola stock = %d, want 9", got)
	}

	history := store.ListTransactions(ctx)
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	tx := history[0]
	if tx.Timestamp != 1700000000000 {
		t.Fatalf("timestamp = %d, want fixed clock value", tx.Timestamp)
	}
	if tx.DrinkName != "Cola" || tx.DrinkPrice != "0.70" || tx.AmountInserted != "1.00" || tx.ChangeGiven != "0.30" {
		t.Fatalf("unexpected transaction record: %+v", tx)
	}
	if len(tx.CoinsInserted) != 1 || tx.CoinsInserted[0] != 100 {
		t.Fatalf("coins inserted = %v, want [100]", tx.CoinsInserted)
	}
}

func TestSelectDrinkAddsInsertedCoinsToChangeFloat(t *testing.T) {
	ctx := context.Background()
	m, store := newTestMachine()

	insertValue(m, 50)
	insertValue(m, 20)
	if resp := m.SelectDrink(ctx, "Cola"); !resp.Dispensed {
		t.Fatal("expected dispense")
	}

	float := store.LoadCoinFloat(ctx)
	if float[50] != 21 {
		t.Fatalf("50 sen float = %d, want 21", float[50])
	}
	if float[20] != 21 {
		t.Fatalf("20 sen float = %d, want 21", float[20])
	}
}

func TestSelectDrinkUnknownNameIsNoOp(t *testing.T) {
	ctx := context.Background()
	m, store := newTestMachine()

	insertValue(m, 100)
	if resp := m.SelectDrink(ctx, "Slurm"); resp.Dispensed {
		t.Fatal("expected unknown drink to be refused")
	}
	if got := len(store.ListTransactions(ctx)); got != 0 {
		t.Fatalf("history length = %d, want 0", got)
	}
}

func TestSelectDrinkInsufficientFundsKeepsBalance(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine()

	insertValue(m, 20)
	resp := m.SelectDrink(ctx, "Coffee")
	if resp.Dispensed {
		t.Fatal("expected refusal on insufficient funds")
	}
	if resp.Total != "0.20" {
		t.Fatalf("total = %q, want balance retained", resp.Total)
	}
}

func TestReturnCashRefundsBalance(t *testing.T) {
	m, _ := newTestMachine()

	insertValue(m, 50)
	insertValue(m, 10)
	if resp := m.ReturnCash(); resp.Refund != "0.60" {
		t.Fatalf("refund = %q, want 0.60", resp.Refund)
	}
}

func TestUnlockDoorOnlyWhileRunning(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine()

	if !m.UnlockDoor() {
		t.Fatal("expected unlock while running")
	}
	m.LockDoor()
	m.Stop(ctx)
	if m.UnlockDoor() {
		t.Fatal("expected unlock to be refused while stopped")
	}
}

func TestMaintenanceLogoutBlockedWhileDoorUnlocked(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine()

	if !m.MaintenanceLogin(ctx, maintenance.DefaultAdminPassword) {
		t.Fatal("expected login")
	}
	m.UnlockDoor()

	if m.MaintenanceLogout(ctx) {
		t.Fatal("expected logout to be refused with the door unlocked")
	}
	m.LockDoor()
	if !m.MaintenanceLogout(ctx) {
		t.Fatal("expected logout once the door is locked")
	}
}

func TestMaintenanceEditCommitFlow(t *testing.T) {
	ctx := context.Background()
	m, store := newTestMachine()

	if !m.MaintenanceLogin(ctx, maintenance.DefaultAdminPassword) {
		t.Fatal("expected login")
	}
	if !m.UpdateDrinkStock("Cola", 15) {
		t.Fatal("expected stock edit to stage")
	}
	if !m.UpdateDrinkPrice("Cola", 0.95) {
		t.Fatal("expected price edit to stage")
	}
	if !m.UpdateCoinFloat(100, 5) {
		t.Fatal("expected coin float edit to stage")
	}
	if err := m.CommitMaintenance(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	settings := store.LoadSettings(ctx)
	if settings.DrinkStockLevels["Cola"] != 15 {
		t.Fatalf("Cola stock = %d, want 15", settings.DrinkStockLevels["Cola"])
	}
	if settings.PriceSettings["Cola"] != 0.95 {
		t.Fatalf("Cola price = %v, want 0.95", settings.PriceSettings["Cola"])
	}
	if got := store.LoadCoinFloat(ctx)[100]; got != 5 {
		t.Fatalf("1 ringgit float = %d, want 5", got)
	}
	if settings.LastMaintenanceDate != 1700000000000 {
		t.Fatalf("last maintenance date = %d, want fixed clock value", settings.LastMaintenanceDate)
	}
}

func TestCollectCoinsEmptiesFloat(t *testing.T) {
	ctx := context.Background()
	m, store := newTestMachine()

	if !m.MaintenanceLogin(ctx, maintenance.DefaultAdminPassword) {
		t.Fatal("expected login")
	}
	resp, err := m.CollectCoins(ctx)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if resp.Collected != "26.00" {
		t.Fatalf("collected = %q, want 26.00", resp.Collected)
	}
	for denom, count := range store.LoadCoinFloat(ctx) {
		if count != 0 {
			t.Fatalf("denomination %d still holds %d coins after collection", denom, count)
		}
	}
}

func TestAlertsFlagLowStockLowChangeAndOverdueMaintenance(t *testing.T) {
	ctx := context.Background()
	m, store := newTestMachine()

	settings := store.LoadSettings(ctx)
	settings.DrinkStockLevels["Cola"] = 0
	settings.DrinkStockLevels["Coffee"] = 2
	settings.LastMaintenanceDate = time.UnixMilli(1700000000000).Add(-45 * 24 * time.Hour).UnixMilli()
	if err := store.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	float := store.LoadCoinFloat(ctx)
	float[100] = 0
	if err := store.SaveCoinFloat(ctx, float); err != nil {
		t.Fatalf("save float: %v", err)
	}

	resp := m.Alerts(ctx)
	if resp.MachineID != "vm-test-1" {
		t.Fatalf("machine id = %q, want vm-test-1", resp.MachineID)
	}

	counts := map[string]int{}
	for _, a := range resp.Alerts {
		counts[a.Code]++
	}
	if counts["low_stock"] != 2 {
		t.Fatalf("low_stock alerts = %d, want 2", counts["low_stock"])
	}
	if counts["change_float_low"] != 1 {
		t.Fatalf("change_float_low alerts = %d, want 1", counts["change_float_low"])
	}
	if counts["maintenance_overdue"] != 1 {
		t.Fatalf("maintenance_overdue alerts = %d, want 1", counts["maintenance_overdue"])
	}

	if len(resp.Alerts) == 0 || resp.Alerts[0].Severity != domain.AlertSeverityHigh {
		t.Fatal("expected high-severity alerts to sort first")
	}
	for _, a := range resp.Alerts {
		if a.ID == "" {
			t.Fatal("expected every alert to carry an id")
		}
	}
}

func TestAlertsQuietOnHealthyMachine(t *testing.T) {
	ctx := context.Background()
	m, store := newTestMachine()

	settings := store.LoadSettings(ctx)
	settings.LastMaintenanceDate = 1700000000000
	if err := store.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	if resp := m.Alerts(ctx); len(resp.Alerts) != 0 {
		t.Fatalf("alerts = %+v, want none", resp.Alerts)
	}
}

func TestFullPurchaseScenario(t *testing.T) {
	ctx := context.Background()
	m, store := newTestMachine()

	for _, value := range []int{10, 20, 50, 100} {
		if resp := insertValue(m, value); !resp.Accepted {
			t.Fatalf("expected %d sen coin to be accepted, got reason %q", value, resp.Reason)
		}
	}

	status := m.Status(ctx)
	if status.Total != "1.80" {
		t.Fatalf("total = %q, want 1.80", status.Total)
	}

	resp := m.SelectDrink(ctx, "Cola")
	if !resp.Dispensed {
		t.Fatal("expected dispense")
	}
	if resp.Change != "1.10" {
		t.Fatalf("change = %q, want 1.10", resp.Change)
	}
	if resp.Total != "0.00" {
		t.Fatalf("total after dispense = %q, want 0.00", resp.Total)
	}

	history := store.ListTransactions(ctx)
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
	tx := history[0]
	if tx.DrinkPrice != "0.70" || tx.AmountInserted != "1.80" || tx.ChangeGiven != "1.10" {
		t.Fatalf("unexpected transaction record: %+v", tx)
	}
	want := []int{10, 20, 50, 100}
	if len(tx.CoinsInserted) != len(want) {
		t.Fatalf("coins inserted = %v, want %v", tx.CoinsInserted, want)
	}
	for i := range want {
		if tx.CoinsInserted[i] != want[i] {
			t.Fatalf("coins inserted = %v, want %v", tx.CoinsInserted, want)
		}
	}
}

func TestBuildReceiptRequiresAPurchase(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMachine()

	if _, ok := m.BuildReceipt(); ok {
		t.Fatal("expected no receipt before any purchase")
	}

	insertValue(m, 100)
	m.SelectDrink(ctx, "Cola")

	receipt, ok := m.BuildReceipt()
	if !ok {
		t.Fatal("expected a receipt after a purchase")
	}
	if receipt.EscposBase64 == "" {
		t.Fatal("expected encoded print job")
	}
	if !containsAll(receipt.PreviewText, "Cola", "0.70", "1.00", "0.30", "vm-test-1") {
		t.Fatalf("preview missing purchase details:\n%s", receipt.PreviewText)
	}
	if receipt.FileName != "receipt-1700000000000.bin" {
		t.Fatalf("file name = %q", receipt.FileName)
	}
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
