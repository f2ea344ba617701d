package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"optrade/internal/model"
	"optrade/internal/types"

	"github.com/shopspring/decimal"
)

// Memory keeps all rows in process. It is the single-node deployment variant
// and the backend the invariant tests run against. The outer mutex only
// guards the maps; every balance mutation runs under the owning user's lock
// and every settlement under the order's lock, so contention stays per key.
type Memory struct {
	mu         sync.RWMutex
	users      map[string]*memUser
	orders     map[string]*memOrder
	withdraws  map[string]*memWithdraw
	displaySeq int64

	auditMu  sync.Mutex
	auditSeq int64
	changes  []model.BalanceChange
}

type memUser struct {
	mu  sync.Mutex
	seq int64
	u   model.User
}

type memOrder struct {
	mu sync.Mutex
	o  model.Order
}

type memWithdraw struct {
	mu sync.Mutex
	w  model.Withdraw
}

func NewMemory() *Memory {
	return &Memory{
		users:      make(map[string]*memUser),
		orders:     make(map[string]*memOrder),
		withdraws:  make(map[string]*memWithdraw),
		displaySeq: 100000,
	}
}

func (m *Memory) GetOrCreateUser(ctx context.Context, address string, grant map[string]decimal.Decimal) (model.User, bool, error) {
	m.mu.RLock()
	mu, ok := m.users[address]
	m.mu.RUnlock()
	if ok {
		return m.snapshotUser(mu), false, nil
	}

	m.mu.Lock()
	if mu, ok = m.users[address]; ok {
		m.mu.Unlock()
		return m.snapshotUser(mu), false, nil
	}
	m.displaySeq++
	u := model.User{
		Address:     address,
		DisplayID:   displayID(m.displaySeq),
		Balances:    copyBalances(grant),
		ControlMode: types.ControlModeNormal,
		CreatedAt:   time.Now().UTC(),
	}
	mu = &memUser{seq: m.displaySeq, u: u}
	m.users[address] = mu
	m.mu.Unlock()

	for symbol, amount := range grant {
		if !amount.IsZero() {
			m.appendChange(address, symbol, amount, amount, types.ChangeReasonGrant, "")
		}
	}
	return m.snapshotUser(mu), true, nil
}

func (m *Memory) GetUser(ctx context.Context, address string) (model.User, error) {
	mu, err := m.user(address)
	if err != nil {
		return model.User{}, err
	}
	return m.snapshotUser(mu), nil
}

func (m *Memory) ListUsers(ctx context.Context) ([]model.User, error) {
	m.mu.RLock()
	entries := make([]*memUser, 0, len(m.users))
	for _, mu := range m.users {
		entries = append(entries, mu)
	}
	m.mu.RUnlock()
	// newest account first; the numeric sequence is immutable after creation
	// and keeps ordering correct when the display id grows a digit
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq > entries[j].seq })
	out := make([]model.User, 0, len(entries))
	for _, mu := range entries {
		out = append(out, m.snapshotUser(mu))
	}
	return out, nil
}

func (m *Memory) RecordLogin(ctx context.Context, address, ip string) error {
	mu, err := m.user(address)
	if err != nil {
		return err
	}
	mu.mu.Lock()
	now := time.Now().UTC()
	mu.u.LoginCount++
	mu.u.LastLogin = &now
	if mu.u.RegisterIP == "" {
		mu.u.RegisterIP = ip
	}
	mu.u.LastLoginIP = ip
	mu.mu.Unlock()
	return nil
}

func (m *Memory) SetControlMode(ctx context.Context, address string, mode types.ControlMode) error {
	mu, err := m.user(address)
	if err != nil {
		return err
	}
	mu.mu.Lock()
	mu.u.ControlMode = mode
	mu.mu.Unlock()
	return nil
}

func (m *Memory) SetRemark(ctx context.Context, address, remark string) error {
	mu, err := m.user(address)
	if err != nil {
		return err
	}
	mu.mu.Lock()
	mu.u.Remark = remark
	mu.mu.Unlock()
	return nil
}

func (m *Memory) SetLanguage(ctx context.Context, address, language string) error {
	mu, err := m.user(address)
	if err != nil {
		return err
	}
	mu.mu.Lock()
	mu.u.Language = language
	mu.mu.Unlock()
	return nil
}

func (m *Memory) SetBankCard(ctx context.Context, address string, card model.BankCard) error {
	mu, err := m.user(address)
	if err != nil {
		return err
	}
	mu.mu.Lock()
	mu.u.BankCard = &card
	mu.mu.Unlock()
	return nil
}

func (m *Memory) AdjustBalance(ctx context.Context, address, symbol string, delta decimal.Decimal, guarded bool, reason types.ChangeReason, ref string) (decimal.Decimal, error) {
	mu, err := m.user(address)
	if err != nil {
		return decimal.Zero, err
	}
	mu.mu.Lock()
	defer mu.mu.Unlock()
	next := mu.u.Balances[symbol].Add(delta)
	if guarded && next.IsNegative() {
		return decimal.Zero, model.ErrInsufficientFunds
	}
	mu.u.Balances[symbol] = next
	m.appendChange(address, symbol, delta, next, reason, ref)
	return next, nil
}

func (m *Memory) OpenOrder(ctx context.Context, o model.Order, baseAsset string) (map[string]decimal.Decimal, error) {
	mu, err := m.user(o.UserKey)
	if err != nil {
		return nil, err
	}
	mu.mu.Lock()
	defer mu.mu.Unlock()
	next := mu.u.Balances[baseAsset].Sub(o.Amount)
	if next.IsNegative() {
		return nil, model.ErrInsufficientFunds
	}
	mu.u.Balances[baseAsset] = next
	m.appendChange(o.UserKey, baseAsset, o.Amount.Neg(), next, types.ChangeReasonOrderOpen, o.ID)

	m.mu.Lock()
	m.orders[o.ID] = &memOrder{o: o}
	m.mu.Unlock()
	return copyBalances(mu.u.Balances), nil
}

func (m *Memory) GetOrder(ctx context.Context, id string) (model.Order, error) {
	mo, err := m.order(id)
	if err != nil {
		return model.Order{}, err
	}
	mo.mu.Lock()
	o := mo.o
	mo.mu.Unlock()
	return o, nil
}

func (m *Memory) ListOrdersByUser(ctx context.Context, address string) ([]model.Order, error) {
	return m.listOrders(func(o model.Order) bool { return o.UserKey == address })
}

func (m *Memory) ListOrders(ctx context.Context) ([]model.Order, error) {
	return m.listOrders(func(model.Order) bool { return true })
}

func (m *Memory) listOrders(keep func(model.Order) bool) ([]model.Order, error) {
	m.mu.RLock()
	entries := make([]*memOrder, 0, len(m.orders))
	for _, mo := range m.orders {
		entries = append(entries, mo)
	}
	m.mu.RUnlock()
	out := make([]model.Order, 0, len(entries))
	for _, mo := range entries {
		mo.mu.Lock()
		o := mo.o
		mo.mu.Unlock()
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) SettleOrder(ctx context.Context, orderID string, profit decimal.Decimal, baseAsset string, closedAt time.Time) (model.Order, map[string]decimal.Decimal, error) {
	mo, err := m.order(orderID)
	if err != nil {
		return model.Order{}, nil, err
	}
	// the order lock serializes concurrent settlement attempts; whoever wins
	// flips the status and the loser sees closed
	mo.mu.Lock()
	defer mo.mu.Unlock()
	if mo.o.Status == types.OrderStatusClosed {
		return model.Order{}, nil, model.ErrAlreadySettled
	}
	mu, err := m.user(mo.o.UserKey)
	if err != nil {
		return model.Order{}, nil, err
	}

	mu.mu.Lock()
	credit := mo.o.Amount.Add(profit)
	next := mu.u.Balances[baseAsset].Add(credit)
	mu.u.Balances[baseAsset] = next
	m.appendChange(mo.o.UserKey, baseAsset, credit, next, types.ChangeReasonOrderSettle, orderID)
	balances := copyBalances(mu.u.Balances)
	mu.mu.Unlock()

	mo.o.Status = types.OrderStatusClosed
	mo.o.Profit = profit
	when := closedAt
	mo.o.ClosedAt = &when
	return mo.o, balances, nil
}

func (m *Memory) CreateWithdraw(ctx context.Context, wd model.Withdraw) (map[string]decimal.Decimal, error) {
	mu, err := m.user(wd.UserKey)
	if err != nil {
		return nil, err
	}
	mu.mu.Lock()
	defer mu.mu.Unlock()
	next := mu.u.Balances[wd.Symbol].Sub(wd.Amount)
	if next.IsNegative() {
		return nil, model.ErrInsufficientFunds
	}
	mu.u.Balances[wd.Symbol] = next
	m.appendChange(wd.UserKey, wd.Symbol, wd.Amount.Neg(), next, types.ChangeReasonWithdraw, wd.ID)

	m.mu.Lock()
	m.withdraws[wd.ID] = &memWithdraw{w: wd}
	m.mu.Unlock()
	return copyBalances(mu.u.Balances), nil
}

func (m *Memory) GetWithdraw(ctx context.Context, id string) (model.Withdraw, error) {
	mw, err := m.withdraw(id)
	if err != nil {
		return model.Withdraw{}, err
	}
	mw.mu.Lock()
	w := mw.w
	mw.mu.Unlock()
	return w, nil
}

func (m *Memory) ListWithdrawsByUser(ctx context.Context, address string) ([]model.Withdraw, error) {
	return m.listWithdraws(func(w model.Withdraw) bool { return w.UserKey == address })
}

func (m *Memory) ListWithdraws(ctx context.Context) ([]model.Withdraw, error) {
	return m.listWithdraws(func(model.Withdraw) bool { return true })
}

func (m *Memory) listWithdraws(keep func(model.Withdraw) bool) ([]model.Withdraw, error) {
	m.mu.RLock()
	entries := make([]*memWithdraw, 0, len(m.withdraws))
	for _, mw := range m.withdraws {
		entries = append(entries, mw)
	}
	m.mu.RUnlock()
	out := make([]model.Withdraw, 0, len(entries))
	for _, mw := range entries {
		mw.mu.Lock()
		w := mw.w
		mw.mu.Unlock()
		if keep(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) SetWithdrawStatus(ctx context.Context, id string, status types.WithdrawStatus, reason string) (model.Withdraw, error) {
	mw, err := m.withdraw(id)
	if err != nil {
		return model.Withdraw{}, err
	}
	mw.mu.Lock()
	mw.w.Status = status
	mw.w.Reason = reason
	w := mw.w
	mw.mu.Unlock()
	return w, nil
}

func (m *Memory) ListBalanceChanges(ctx context.Context, address string, limit int) ([]model.BalanceChange, error) {
	if limit <= 0 {
		limit = 100
	}
	m.auditMu.Lock()
	defer m.auditMu.Unlock()
	out := make([]model.BalanceChange, 0, limit)
	for i := len(m.changes) - 1; i >= 0 && len(out) < limit; i-- {
		if m.changes[i].UserKey == address {
			out = append(out, m.changes[i])
		}
	}
	return out, nil
}

func (m *Memory) user(address string) (*memUser, error) {
	m.mu.RLock()
	mu, ok := m.users[address]
	m.mu.RUnlock()
	if !ok {
		return nil, model.ErrNotFound
	}
	return mu, nil
}

func (m *Memory) order(id string) (*memOrder, error) {
	m.mu.RLock()
	mo, ok := m.orders[id]
	m.mu.RUnlock()
	if !ok {
		return nil, model.ErrNotFound
	}
	return mo, nil
}

func (m *Memory) withdraw(id string) (*memWithdraw, error) {
	m.mu.RLock()
	mw, ok := m.withdraws[id]
	m.mu.RUnlock()
	if !ok {
		return nil, model.ErrNotFound
	}
	return mw, nil
}

func (m *Memory) snapshotUser(mu *memUser) model.User {
	mu.mu.Lock()
	u := mu.u
	u.Balances = copyBalances(mu.u.Balances)
	if mu.u.BankCard != nil {
		card := *mu.u.BankCard
		u.BankCard = &card
	}
	mu.mu.Unlock()
	return u
}

func (m *Memory) appendChange(address, symbol string, delta, balance decimal.Decimal, reason types.ChangeReason, ref string) {
	m.auditMu.Lock()
	m.auditSeq++
	m.changes = append(m.changes, model.BalanceChange{
		Sequence:  m.auditSeq,
		UserKey:   address,
		Symbol:    symbol,
		Delta:     delta,
		Balance:   balance,
		Reason:    reason,
		Ref:       ref,
		CreatedAt: time.Now().UTC(),
	})
	m.auditMu.Unlock()
}

func copyBalances(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
