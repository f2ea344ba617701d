package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"optrade/internal/model"
	"optrade/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grant() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"USDT": decimal.NewFromInt(1000),
		"BTC":  decimal.Zero,
	}
}

func TestGetOrCreateUserAssignsDisplayIDs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, created, err := m.GetOrCreateUser(ctx, "0xaaa", grant())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "U100001", a.DisplayID)

	b, created, err := m.GetOrCreateUser(ctx, "0xbbb", grant())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "U100002", b.DisplayID)

	again, created, err := m.GetOrCreateUser(ctx, "0xaaa", grant())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "U100001", again.DisplayID)
}

func TestGetOrCreateUserConcurrent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	users := make([]model.User, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, _, err := m.GetOrCreateUser(ctx, "0xsame", grant())
			require.NoError(t, err)
			users[i] = u
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, users[0].DisplayID, users[i].DisplayID, "concurrent creation must yield one account")
	}
	u, err := m.GetUser(ctx, "0xsame")
	require.NoError(t, err)
	assert.True(t, u.Balances["USDT"].Equal(decimal.NewFromInt(1000)), "the grant lands exactly once")
}

func TestSnapshotsAreCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	u, _, err := m.GetOrCreateUser(ctx, "0xaaa", grant())
	require.NoError(t, err)
	u.Balances["USDT"] = decimal.NewFromInt(999999)

	fresh, err := m.GetUser(ctx, "0xaaa")
	require.NoError(t, err)
	assert.True(t, fresh.Balances["USDT"].Equal(decimal.NewFromInt(1000)), "mutating a returned snapshot must not touch the store")
}

func TestAdjustBalanceConcurrentNoLostUpdates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, _, err := m.GetOrCreateUser(ctx, "0xaaa", grant())
	require.NoError(t, err)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.AdjustBalance(ctx, "0xaaa", "USDT", decimal.NewFromInt(1), false, types.ChangeReasonAdminAdjust, "")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	u, err := m.GetUser(ctx, "0xaaa")
	require.NoError(t, err)
	assert.True(t, u.Balances["USDT"].Equal(decimal.NewFromInt(1000+n)))
}

func TestGuardedDebitAtBoundary(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, _, err := m.GetOrCreateUser(ctx, "0xaaa", grant())
	require.NoError(t, err)

	// draining the whole balance is allowed, one more unit is not
	got, err := m.AdjustBalance(ctx, "0xaaa", "USDT", decimal.NewFromInt(-1000), true, types.ChangeReasonWithdraw, "")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = m.AdjustBalance(ctx, "0xaaa", "USDT", decimal.NewFromInt(-1), true, types.ChangeReasonWithdraw, "")
	require.ErrorIs(t, err, model.ErrInsufficientFunds)
}

func TestOpenOrderAtomicWithDebit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, _, err := m.GetOrCreateUser(ctx, "0xaaa", grant())
	require.NoError(t, err)

	o := model.Order{
		ID:        "ord_1",
		UserKey:   "0xaaa",
		Symbol:    "BTCUSDT",
		Amount:    decimal.NewFromInt(250),
		Direction: types.DirectionLong,
		Status:    types.OrderStatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	balances, err := m.OpenOrder(ctx, o, "USDT")
	require.NoError(t, err)
	assert.True(t, balances["USDT"].Equal(decimal.NewFromInt(750)))

	// insufficient funds leaves neither an order nor a debit
	big := o
	big.ID = "ord_2"
	big.Amount = decimal.NewFromInt(1000)
	_, err = m.OpenOrder(ctx, big, "USDT")
	require.ErrorIs(t, err, model.ErrInsufficientFunds)

	_, err = m.GetOrder(ctx, "ord_2")
	require.ErrorIs(t, err, model.ErrNotFound)
	u, err := m.GetUser(ctx, "0xaaa")
	require.NoError(t, err)
	assert.True(t, u.Balances["USDT"].Equal(decimal.NewFromInt(750)))
}

func TestSettleOrderConcurrentOneWinner(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, _, err := m.GetOrCreateUser(ctx, "0xaaa", grant())
	require.NoError(t, err)
	o := model.Order{
		ID:        "ord_1",
		UserKey:   "0xaaa",
		Symbol:    "BTCUSDT",
		Amount:    decimal.NewFromInt(100),
		Direction: types.DirectionShort,
		Status:    types.OrderStatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	_, err = m.OpenOrder(ctx, o, "USDT")
	require.NoError(t, err)

	const n = 24
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = m.SettleOrder(ctx, "ord_1", decimal.NewFromInt(80), "USDT", time.Now().UTC())
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, model.ErrAlreadySettled)
		}
	}
	assert.Equal(t, 1, wins)

	u, err := m.GetUser(ctx, "0xaaa")
	require.NoError(t, err)
	assert.True(t, u.Balances["USDT"].Equal(decimal.NewFromInt(1080)), "the credit lands exactly once")
}

func TestSettleOrderRecordsProfitAndClosedAt(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, _, err := m.GetOrCreateUser(ctx, "0xaaa", grant())
	require.NoError(t, err)
	o := model.Order{
		ID:        "ord_1",
		UserKey:   "0xaaa",
		Symbol:    "BTCUSDT",
		Amount:    decimal.NewFromInt(100),
		Direction: types.DirectionLong,
		Status:    types.OrderStatusOpen,
		CreatedAt: time.Now().UTC(),
	}
	_, err = m.OpenOrder(ctx, o, "USDT")
	require.NoError(t, err)

	closedAt := time.Now().UTC()
	settled, _, err := m.SettleOrder(ctx, "ord_1", decimal.NewFromInt(-100), "USDT", closedAt)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusClosed, settled.Status)
	assert.True(t, settled.Profit.Equal(decimal.NewFromInt(-100)))
	require.NotNil(t, settled.ClosedAt)
	assert.True(t, settled.ClosedAt.Equal(closedAt))
}

func TestCreateWithdrawAtomicWithDebit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, _, err := m.GetOrCreateUser(ctx, "0xaaa", grant())
	require.NoError(t, err)

	wd := model.Withdraw{
		ID:          "wd_1",
		UserKey:     "0xaaa",
		Symbol:      "USDT",
		Amount:      decimal.NewFromInt(400),
		Destination: "0xdest",
		Status:      types.WithdrawStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	balances, err := m.CreateWithdraw(ctx, wd)
	require.NoError(t, err)
	assert.True(t, balances["USDT"].Equal(decimal.NewFromInt(600)))

	// rejection flips status only, no refund
	rejected, err := m.SetWithdrawStatus(ctx, "wd_1", types.WithdrawStatusRejected, "nope")
	require.NoError(t, err)
	assert.Equal(t, types.WithdrawStatusRejected, rejected.Status)
	assert.Equal(t, "nope", rejected.Reason)

	u, err := m.GetUser(ctx, "0xaaa")
	require.NoError(t, err)
	assert.True(t, u.Balances["USDT"].Equal(decimal.NewFromInt(600)))
}

func TestBalanceChangesAudit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, _, err := m.GetOrCreateUser(ctx, "0xaaa", grant())
	require.NoError(t, err)
	_, err = m.AdjustBalance(ctx, "0xaaa", "USDT", decimal.NewFromInt(-100), true, types.ChangeReasonWithdraw, "wd_1")
	require.NoError(t, err)

	changes, err := m.ListBalanceChanges(ctx, "0xaaa", 10)
	require.NoError(t, err)
	require.NotEmpty(t, changes)

	latest := changes[0]
	assert.Equal(t, types.ChangeReasonWithdraw, latest.Reason)
	assert.Equal(t, "wd_1", latest.Ref)
	assert.True(t, latest.Delta.Equal(decimal.NewFromInt(-100)))
	assert.True(t, latest.Balance.Equal(decimal.NewFromInt(900)))

	// grant entries from account creation are present too
	var reasons []types.ChangeReason
	for _, c := range changes {
		reasons = append(reasons, c.Reason)
	}
	assert.Contains(t, reasons, types.ChangeReasonGrant)
}

func TestRecordLoginUnknownUser(t *testing.T) {
	m := NewMemory()

	err := m.RecordLogin(context.Background(), "0xghost", "203.0.113.1")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestListUsersNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, _, err := m.GetOrCreateUser(ctx, "0xaaa", grant())
	require.NoError(t, err)
	_, _, err = m.GetOrCreateUser(ctx, "0xbbb", grant())
	require.NoError(t, err)

	users, err := m.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "U100002", users[0].DisplayID)
	assert.Equal(t, "U100001", users[1].DisplayID)
}

func TestListUsersOrderSurvivesDisplayIDWidening(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	// the millionth account grows the display id to seven digits; ordering
	// must follow the sequence, not a string compare
	m.displaySeq = 999998
	older, _, err := m.GetOrCreateUser(ctx, "0xold", grant())
	require.NoError(t, err)
	newer, _, err := m.GetOrCreateUser(ctx, "0xnew", grant())
	require.NoError(t, err)
	assert.Equal(t, "U999999", older.DisplayID)
	assert.Equal(t, "U1000000", newer.DisplayID)

	users, err := m.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "U1000000", users[0].DisplayID)
	assert.Equal(t, "U999999", users[1].DisplayID)
}
