package domain

// Coin describes one physical coin. Value is in sen (minor currency units);
// two coins are the same denomination iff their values are equal. The
// physical fields feed tolerance validation and never participate in
// identity or arithmetic.
type Coin struct {
	Value     int     `json:"value"`
	Name      string  `json:"name"`
	Diameter  float64 `json:"diameter_mm"`
	Thickness float64 `json:"thickness_mm"`
	Weight    float64 `json:"weight_g"`
	Material  string  `json:"material"`
}

// SameDenomination reports whether both coins carry the same minor-unit value.
func (c Coin) SameDenomination(other Coin) bool {
	return c.Value == other.Value
}

type DrinkItem struct {
	Name    string `json:"name"`
	Price   string `json:"price"`
	InStock bool   `json:"in_stock"`
}

// Transaction is one persisted history record, written when a purchase
// completes or a maintenance action is recorded. The JSON field names are a
// storage contract shared with the machine's UI layer and must not change;
// MaintenanceAction is a forward-compatible optional field.
type Transaction struct {
	Timestamp         int64  `json:"timestamp"`
	DrinkName         string `json:"drinkName"`
	DrinkPrice        string `json:"drinkPrice"`
	AmountInserted    string `json:"amountInserted"`
	ChangeGiven       string `json:"changeGiven"`
	CoinsInserted     []int  `json:"coinsInserted"`
	MaintenanceAction string `json:"maintenanceAction,omitempty"`
}

// MaintenanceSettings is the single persisted machine configuration blob.
// Field names follow the same storage contract as Transaction.
type MaintenanceSettings struct {
	AdminPassword       string             `json:"adminPassword"`
	DrinkStockLevels    map[string]int     `json:"drinkStockLevels"`
	PriceSettings       map[string]float64 `json:"priceSettings"`
	LastMaintenanceDate int64              `json:"lastMaintenanceDate"`
	MaintenanceActive   bool               `json:"maintenanceActive,omitempty"`
}

// Purchase is the outcome of a completed drink selection, handed back to the
// caller so it can record the transaction and hand out change.
type Purchase struct {
	DrinkName      string `json:"drink_name"`
	DrinkPrice     string `json:"drink_price"`
	AmountInserted string `json:"amount_inserted"`
	ChangeGiven    string `json:"change_given"`
	Coins          []int  `json:"coins"`
}

type InsertCoinRequest struct {
	Value     int     `json:"value,omitempty"`
	Name      string  `json:"name,omitempty"`
	Diameter  float64 `json:"diameter_mm,omitempty"`
	Thickness float64 `json:"thickness_mm,omitempty"`
	Weight    float64 `json:"weight_g,omitempty"`
	Material  string  `json:"material,omitempty"`
}

type InsertCoinResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
	Total    string `json:"total"`
	Coins    []int  `json:"coins"`
}

type SelectDrinkRequest struct {
	Drink string `json:"drink"`
}

type SelectDrinkResponse struct {
	Dispensed bool      `json:"dispensed"`
	Change    string    `json:"change"`
	Total     string    `json:"total"`
	Purchase  *Purchase `json:"purchase,omitempty"`
}

type ReturnCashResponse struct {
	Refund string `json:"refund"`
}

type MachineStatus struct {
	Running            bool        `json:"running"`
	DoorLocked         bool        `json:"door_locked"`
	MaintainerLoggedIn bool        `json:"maintainer_logged_in"`
	Total              string      `json:"total"`
	ChangeDue          string      `json:"change_due"`
	RejectionMessage   string      `json:"rejection_message,omitempty"`
	Drinks             []DrinkItem `json:"drinks"`
}

type MaintenanceLoginRequest struct {
	Password string `json:"password"`
}

type UpdateStockRequest struct {
	Drink string `json:"drink"`
	Qty   int    `json:"qty"`
}

type UpdatePriceRequest struct {
	Drink string  `json:"drink"`
	Price float64 `json:"price"`
}

type UpdateCoinFloatRequest struct {
	Denomination int `json:"denomination"`
	Count        int `json:"count"`
}

type CollectCoinsResponse struct {
	Collected string `json:"collected"`
}

type TransactionListResponse struct {
	Transactions []Transaction `json:"transactions"`
}

// Alert is an operational warning surfaced to the maintainer dashboard.
type Alert struct {
	ID          string  `json:"id"`
	Code        string  `json:"code"`
	Severity    string  `json:"severity"`
	Message     string  `json:"message"`
	MetricValue float64 `json:"metric_value"`
	Threshold   float64 `json:"threshold"`
}

type AlertListResponse struct {
	MachineID string  `json:"machine_id"`
	Alerts    []Alert `json:"alerts"`
}

type ReceiptResponse struct {
	EscposBase64 string `json:"escpos_base64"`
	PreviewText  string `json:"preview_text"`
	FileName     string `json:"file_name"`
}

// LoginRequest authenticates a remote operator against the HTTP API. This is
// distinct from the machine's own 6-character maintenance password, which is
// entered on the machine keypad (MaintenanceLoginRequest).
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

const (
	AlertSeverityHigh   = "high"
	AlertSeverityMedium = "medium"
	AlertSeverityLow    = "low"
)
