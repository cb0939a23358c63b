// Package vending drives one customer interaction: coin insertion,
// balance accumulation, drink selection and change. Session state lives only
// in memory; nothing here touches persistence.
package vending

import (
	"vendomat/machine/internal/coinval"
	"vendomat/machine/internal/domain"
	"vendomat/machine/internal/money"
)

type State int

const (
	StateIdle State = iota
	StateAccumulating
)

func (s State) String() string {
	if s == StateAccumulating {
		return "accumulating"
	}
	return "idle"
}

// Session accepts coins and arbitrates purchases. Every failure is a
// reported condition, never an error: rejected coins surface a reason,
// unaffordable selections are guarded no-ops.
type Session struct {
	validator *coinval.Validator

	state     State
	coins     []domain.Coin
	changeDue string
	rejection string
}

func NewSession(validator *coinval.Validator) *Session {
	return &Session{
		validator: validator,
		state:     StateIdle,
		changeDue: money.Zero,
	}
}

// InsertCoin validates the coin. Accepted coins join the balance; rejected
// coins are returned to the customer with a reason and never touch it.
func (s *Session) InsertCoin(coin domain.Coin) bool {
	if reason := s.validator.RejectionReason(coin); reason != "" {
		s.rejection = reason
		return false
	}

	s.coins = append(s.coins, coin)
	s.rejection = ""
	s.state = StateAccumulating
	return true
}

// SelectDrink dispenses when the session is accumulating, the drink is in
// stock and the balance covers the price. On success the coin list clears,
// change is computed and a Purchase describes the completed sale. Otherwise
// the call is a no-op and ok is false.
func (s *Session) SelectDrink(drink domain.DrinkItem) (domain.Purchase, bool) {
	if s.state != StateAccumulating || !drink.InStock {
		return domain.Purchase{}, false
	}

	total := s.Total()
	if !money.HasEnoughMoney(total, drink.Price) {
		return domain.Purchase{}, false
	}

	purchase := domain.Purchase{
		DrinkName:      drink.Name,
		DrinkPrice:     drink.Price,
		AmountInserted: total,
		ChangeGiven:    money.Change(total, drink.Price),
		Coins:          s.Coins(),
	}

	s.coins = nil
	s.changeDue = purchase.ChangeGiven
	s.rejection = ""
	s.state = StateIdle
	return purchase, true
}

// ReturnCash refunds the full balance and resets the session. No-op when no
// coins have been inserted.
func (s *Session) ReturnCash() string {
	if len(s.coins) == 0 {
		return money.Zero
	}

	refund := s.Total()
	s.coins = nil
	s.changeDue = refund
	s.rejection = ""
	s.state = StateIdle
	return refund
}

// Reset force-returns the session to idle, discarding any balance. Driven
// externally for abandonment or timeout.
func (s *Session) Reset() {
	s.coins = nil
	s.changeDue = money.Zero
	s.rejection = ""
	s.state = StateIdle
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Total() string {
	return money.Total(s.coins)
}

func (s *Session) ChangeDue() string {
	return s.changeDue
}

func (s *Session) RejectionReason() string {
	return s.rejection
}

// Coins returns the minor-unit values of the inserted coins in order.
func (s *Session) Coins() []int {
	values := make([]int, 0, len(s.coins))
	for _, c := range s.coins {
		values = append(values, c.Value)
	}
	return values
}
