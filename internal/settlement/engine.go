package settlement

import (
	"context"
	"log"
	"strings"
	"time"

	"optrade/internal/accounts"
	"optrade/internal/events"
	"optrade/internal/model"
	"optrade/internal/store"
	"optrade/internal/types"

	"github.com/shopspring/decimal"
)

// Request describes one settlement attempt. AdminOverride skips the ownership
// check so operators can close any order; it never bypasses the
// already-settled guard.
type Request struct {
	OrderID       string
	CallerKey     string
	AdminOverride bool
	IsWin         bool
	PayoutPercent string
}

type Result struct {
	Order    model.Order
	Balances map[string]decimal.Decimal
	IsWin    bool
}

// OutcomeAuthority decides the final outcome of a settlement given the order
// owner and the outcome the caller reported. The engine never interprets
// account state itself; a nil authority honors the reported outcome as is.
type OutcomeAuthority interface {
	Outcome(owner model.User, reported bool) bool
}

// OperatorControl pins outcomes for accounts an operator flagged: force_win
// and force_loss override whatever the caller reported, normal passes the
// reported outcome through.
type OperatorControl struct{}

func (OperatorControl) Outcome(owner model.User, reported bool) bool {
	switch owner.ControlMode {
	case types.ControlModeForceWin:
		return true
	case types.ControlModeForceLoss:
		return false
	}
	return reported
}

// Engine closes orders exactly once and credits stake plus profit back to the
// owner.
type Engine struct {
	store     store.Store
	emitter   *events.Emitter
	authority OutcomeAuthority
}

func NewEngine(st store.Store, emitter *events.Emitter, authority OutcomeAuthority) *Engine {
	return &Engine{store: st, emitter: emitter, authority: authority}
}

// coercePercent parses the payout percent the client reported. Anything that
// does not parse as a decimal settles at zero percent rather than failing the
// whole request.
func coercePercent(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	p, err := decimal.NewFromString(raw)
	if err != nil {
		log.Printf("settlement: unparseable payout percent %q, settling at zero", raw)
		return decimal.Zero
	}
	return p
}

// Settle closes the order. The owner is credited amount+profit, so a win pays
// back the stake plus amount*percent and a loss nets to zero. A second settle
// of the same order fails with ErrAlreadySettled whoever asks.
func (e *Engine) Settle(ctx context.Context, req Request) (Result, error) {
	o, err := e.store.GetOrder(ctx, req.OrderID)
	if err != nil {
		return Result{}, err
	}
	if !req.AdminOverride && o.UserKey != req.CallerKey {
		return Result{}, model.ErrForbidden
	}

	isWin := req.IsWin
	if e.authority != nil {
		if u, uerr := e.store.GetUser(ctx, o.UserKey); uerr == nil {
			isWin = e.authority.Outcome(u, isWin)
		}
	}

	var profit decimal.Decimal
	if isWin {
		profit = o.Amount.Mul(coercePercent(req.PayoutPercent))
	} else {
		profit = o.Amount.Neg()
	}

	settled, balances, err := e.store.SettleOrder(ctx, req.OrderID, profit, accounts.BaseAsset, time.Now().UTC())
	if err != nil {
		return Result{}, err
	}

	e.emitter.Emit(types.EventOrderSettled, events.OrderSettledPayload{
		OrderID: settled.ID,
		UserKey: settled.UserKey,
		Profit:  settled.Profit,
		IsWin:   isWin,
	})
	return Result{Order: settled, Balances: balances, IsWin: isWin}, nil
}
