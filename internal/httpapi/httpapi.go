package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"vendomat/machine/internal/domain"
	"vendomat/machine/internal/machine"
	"vendomat/machine/internal/maintenance"
)

type API struct {
	machine       *machine.Machine
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	maintLimiter  *attemptLimiter
}

func New(m *machine.Machine, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		machine:       m,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		maintLimiter:  newAttemptLimiter(8, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

type actorContextKey struct{}

func withActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext returns the authenticated operator attached by the auth
// middleware, if any.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	// Customer-facing panel endpoints carry no authentication; they mirror
	// the physical coin slot and keypad.
	mux.HandleFunc("/api/v1/vending/coins", a.handleInsertCoin)
	mux.HandleFunc("/api/v1/vending/selection", a.handleSelectDrink)
	mux.HandleFunc("/api/v1/vending/return-cash", a.handleReturnCash)
	mux.HandleFunc("/api/v1/vending/reset", a.handleResetSession)
	mux.HandleFunc("/api/v1/vending/status", a.handleStatus)
	mux.HandleFunc("/api/v1/vending/drinks", a.handleDrinks)
	mux.HandleFunc("/api/v1/vending/receipt", a.handleReceipt)

	mux.HandleFunc("/api/v1/maintenance/login", a.requireAuth(a.handleMaintenanceLogin, "operator"))
	mux.HandleFunc("/api/v1/maintenance/logout", a.requireAuth(a.handleMaintenanceLogout, "operator"))
	mux.HandleFunc("/api/v1/maintenance/stock", a.requireAuth(a.handleUpdateStock, "operator"))
	mux.HandleFunc("/api/v1/maintenance/price", a.requireAuth(a.handleUpdatePrice, "operator"))
	mux.HandleFunc("/api/v1/maintenance/coin-float", a.requireAuth(a.handleUpdateCoinFloat, "operator"))
	mux.HandleFunc("/api/v1/maintenance/commit", a.requireAuth(a.handleCommit, "operator"))
	mux.HandleFunc("/api/v1/maintenance/collect", a.requireAuth(a.handleCollect, "operator"))
	mux.HandleFunc("/api/v1/maintenance/transactions", a.requireAuth(a.handleTransactions, "operator"))
	mux.HandleFunc("/api/v1/maintenance/alerts", a.requireAuth(a.handleAlerts, "operator"))

	mux.HandleFunc("/api/v1/machine/start", a.requireAuth(a.handleMachineStart, "operator"))
	mux.HandleFunc("/api/v1/machine/stop", a.requireAuth(a.handleMachineStop, "operator"))
	mux.HandleFunc("/api/v1/machine/door/lock", a.requireAuth(a.handleDoorLock, "operator"))
	mux.HandleFunc("/api/v1/machine/door/unlock", a.requireAuth(a.handleDoorUnlock, "operator"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(withActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleInsertCoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.InsertCoinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, a.machine.InsertCoin(req))
}

func (a *API) handleSelectDrink(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.SelectDrinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Drink) == "" {
		writeError(w, http.StatusBadRequest, errors.New("drink name required"))
		return
	}

	writeJSON(w, http.StatusOK, a.machine.SelectDrink(r.Context(), req.Drink))
}

func (a *API) handleReturnCash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.machine.ReturnCash())
}

func (a *API) handleResetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	a.machine.ResetSession()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.machine.Status(r.Context()))
}

func (a *API) handleDrinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drinks": a.machine.Drinks(r.Context())})
}

func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	receipt, ok := a.machine.BuildReceipt()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no completed purchase to print"))
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) handleMaintenanceLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.maintLimiter.Allow("maint:" + clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many maintenance login attempts"))
		return
	}

	var req domain.MaintenanceLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if !a.machine.MaintenanceLogin(r.Context(), req.Password) {
		writeError(w, http.StatusUnauthorized, errors.New("maintenance login refused"))
		return
	}
	if actor, ok := ActorFromContext(r.Context()); ok {
		log.Printf("[httpapi] maintenance session opened by %s", actor.Username)
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_in": true})
}

func (a *API) handleMaintenanceLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	if !a.machine.MaintenanceLogout(r.Context()) {
		writeError(w, http.StatusConflict, errors.New("logout refused: lock the service door first"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logged_in": false})
}

func (a *API) handleUpdateStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.UpdateStockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if !a.machine.UpdateDrinkStock(req.Drink, req.Qty) {
		writeError(w, http.StatusUnprocessableEntity, errors.New("stock update refused"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.UpdatePriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if !a.machine.UpdateDrinkPrice(req.Drink, req.Price) {
		writeError(w, http.StatusUnprocessableEntity, errors.New("price update refused"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleUpdateCoinFloat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.UpdateCoinFloatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if !a.machine.UpdateCoinFloat(req.Denomination, req.Count) {
		writeError(w, http.StatusUnprocessableEntity, errors.New("coin float update refused"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleCommit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	if err := a.machine.CommitMaintenance(r.Context()); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, maintenance.ErrNotLoggedIn) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleCollect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	resp, err := a.machine.CollectCoins(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, maintenance.ErrNotLoggedIn) {
			status = http.StatusConflict
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, domain.TransactionListResponse{
		Transactions: a.machine.Transactions(r.Context()),
	})
}

func (a *API) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, a.machine.Alerts(r.Context()))
}

func (a *API) handleMachineStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.machine.Start(r.Context()) {
		writeError(w, http.StatusConflict, errors.New("machine is already running"))
		return
	}
	writeJSON(w, http.StatusOK, a.machine.Status(r.Context()))
}

func (a *API) handleMachineStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.machine.Stop(r.Context()) {
		writeError(w, http.StatusConflict, errors.New("machine is already stopped"))
		return
	}
	writeJSON(w, http.StatusOK, a.machine.Status(r.Context()))
}

func (a *API) handleDoorLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	a.machine.LockDoor()
	writeJSON(w, http.StatusOK, a.machine.Status(r.Context()))
}

func (a *API) handleDoorUnlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.machine.UnlockDoor() {
		writeError(w, http.StatusConflict, errors.New("door cannot be unlocked while the machine is stopped"))
		return
	}
	writeJSON(w, http.StatusOK, a.machine.Status(r.Context()))
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 4xx messages are user-facing; 5xx messages are replaced with a generic
	// body so internal details never leak to clients.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
