package orders

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"optrade/internal/accounts"
	"optrade/internal/events"
	"optrade/internal/model"
	"optrade/internal/store"
	"optrade/internal/types"

	"github.com/shopspring/decimal"
)

var orderSeq atomic.Int64

func newOrderID() string {
	return fmt.Sprintf("ord_%d_%d", time.Now().UnixMilli(), orderSeq.Add(1))
}

// Service opens and lists derivative positions. Opening an order debits the
// stake up front; the funds come back, plus or minus profit, only when the
// settlement engine closes it.
type Service struct {
	store   store.Store
	emitter *events.Emitter
}

func NewService(st store.Store, emitter *events.Emitter) *Service {
	return &Service{store: st, emitter: emitter}
}

// Open validates the request, debits the stake and creates the order. The
// debit and the insert are atomic: an overdraft leaves no order behind.
func (s *Service) Open(ctx context.Context, userKey, symbol string, amount decimal.Decimal, direction types.OrderDirection) (model.Order, map[string]decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return model.Order{}, nil, model.Validationf("symbol is required")
	}
	if !direction.Valid() {
		return model.Order{}, nil, model.Validationf("direction must be long or short")
	}
	if !amount.IsPositive() {
		return model.Order{}, nil, model.Validationf("amount must be positive")
	}

	o := model.Order{
		ID:        newOrderID(),
		UserKey:   userKey,
		Symbol:    symbol,
		Amount:    amount,
		Direction: direction,
		Status:    types.OrderStatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	balances, err := s.store.OpenOrder(ctx, o, accounts.BaseAsset)
	if err != nil {
		return model.Order{}, nil, err
	}

	u, uerr := s.store.GetUser(ctx, userKey)
	displayID := userKey
	if uerr == nil {
		displayID = u.DisplayID
	}
	s.emitter.Emit(types.EventNewOrder, events.NewOrderPayload{
		OrderID:   o.ID,
		UserKey:   o.UserKey,
		DisplayID: displayID,
		Symbol:    o.Symbol,
		Amount:    o.Amount,
		Direction: string(o.Direction),
	})
	return o, balances, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Order, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userKey string) ([]model.Order, error) {
	return s.store.ListOrdersByUser(ctx, userKey)
}

func (s *Service) ListAll(ctx context.Context) ([]model.Order, error) {
	return s.store.ListOrders(ctx)
}
