package withdraws

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"optrade/internal/events"
	"optrade/internal/model"
	"optrade/internal/store"
	"optrade/internal/types"

	"github.com/shopspring/decimal"
)

var withdrawSeq atomic.Int64

func newWithdrawID() string {
	return fmt.Sprintf("wd_%d_%d", time.Now().UnixMilli(), withdrawSeq.Add(1))
}

const defaultRejectReason = "rejected by operator"

// Service handles withdraw requests. Funds leave the balance when the request
// is filed, not when an operator approves it; rejection is record keeping and
// deliberately does not refund.
type Service struct {
	store   store.Store
	emitter *events.Emitter
}

func NewService(st store.Store, emitter *events.Emitter) *Service {
	return &Service{store: st, emitter: emitter}
}

func (s *Service) Create(ctx context.Context, userKey, symbol, destination string, amount decimal.Decimal) (model.Withdraw, map[string]decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return model.Withdraw{}, nil, model.Validationf("symbol is required")
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return model.Withdraw{}, nil, model.Validationf("withdraw address is required")
	}
	if !amount.IsPositive() {
		return model.Withdraw{}, nil, model.Validationf("amount must be positive")
	}

	wd := model.Withdraw{
		ID:          newWithdrawID(),
		UserKey:     userKey,
		Symbol:      symbol,
		Amount:      amount,
		Destination: destination,
		Status:      types.WithdrawStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	balances, err := s.store.CreateWithdraw(ctx, wd)
	if err != nil {
		return model.Withdraw{}, nil, err
	}

	s.emitter.Emit(types.EventNewWithdraw, events.NewWithdrawPayload{
		WithdrawID:  wd.ID,
		UserKey:     wd.UserKey,
		Symbol:      wd.Symbol,
		Amount:      wd.Amount,
		Destination: wd.Destination,
	})
	return wd, balances, nil
}

func (s *Service) ListByUser(ctx context.Context, userKey string) ([]model.Withdraw, error) {
	return s.store.ListWithdrawsByUser(ctx, userKey)
}

func (s *Service) ListAll(ctx context.Context) ([]model.Withdraw, error) {
	return s.store.ListWithdraws(ctx)
}

func (s *Service) Approve(ctx context.Context, id string) (model.Withdraw, error) {
	return s.store.SetWithdrawStatus(ctx, id, types.WithdrawStatusApproved, "")
}

// Reject marks the request rejected. The debit taken at request time stays;
// an operator who wants to make the user whole credits the balance explicitly.
func (s *Service) Reject(ctx context.Context, id, reason string) (model.Withdraw, error) {
	if strings.TrimSpace(reason) == "" {
		reason = defaultRejectReason
	}
	return s.store.SetWithdrawStatus(ctx, id, types.WithdrawStatusRejected, reason)
}
