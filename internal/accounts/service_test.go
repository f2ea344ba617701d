package accounts

import (
	"context"
	"testing"

	"optrade/internal/model"
	"optrade/internal/store"
	"optrade/internal/types"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(store.NewMemory())
}

func TestGetOrCreateGrantsStartingBalance(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.GetOrCreate(ctx, "0xABCdef0000000000000000000000000000000001")
	require.NoError(t, err)

	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", u.Address)
	assert.True(t, u.Balances["USDT"].Equal(decimal.NewFromInt(1000)))
	assert.True(t, u.Balances["BTC"].IsZero())
	assert.Equal(t, "U100001", u.DisplayID)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.GetOrCreate(ctx, "0xWallet")
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, "0xWallet", "USDT", decimal.NewFromInt(-400), true, types.ChangeReasonAdminAdjust, "")
	require.NoError(t, err)

	again, err := svc.GetOrCreate(ctx, "0xWALLET")
	require.NoError(t, err)
	assert.Equal(t, first.DisplayID, again.DisplayID)
	assert.True(t, again.Balances["USDT"].Equal(decimal.NewFromInt(600)), "existing balance must not be re-granted")
}

func TestGetOrCreateRejectsEmptyAddress(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetOrCreate(context.Background(), "   ")
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestAdjustGuardedRejectsOverdraft(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "0xWallet")
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, "0xWallet", "USDT", decimal.NewFromInt(-1001), true, types.ChangeReasonWithdraw, "")
	require.ErrorIs(t, err, model.ErrInsufficientFunds)

	balances, err := svc.Balances(ctx, "0xWallet")
	require.NoError(t, err)
	assert.True(t, balances["USDT"].Equal(decimal.NewFromInt(1000)), "failed debit must not move funds")
}

func TestAdjustUnguardedAllowsNegative(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "0xWallet")
	require.NoError(t, err)

	got, err := svc.Adjust(ctx, "0xWallet", "USDT", decimal.NewFromInt(-1500), false, types.ChangeReasonAdminAdjust, "")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(-500)))
}

func TestAdjustUnknownSymbolStartsAtZero(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "0xWallet")
	require.NoError(t, err)

	got, err := svc.Adjust(ctx, "0xWallet", "eth", decimal.NewFromInt(3), false, types.ChangeReasonAdminAdjust, "")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(3)))

	balances, err := svc.Balances(ctx, "0xWallet")
	require.NoError(t, err)
	assert.True(t, balances["ETH"].Equal(decimal.NewFromInt(3)), "symbols are stored uppercased")
}

func TestAdjustUnknownUser(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Adjust(context.Background(), "0xNobody", "USDT", decimal.NewFromInt(1), false, types.ChangeReasonAdminAdjust, "")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestRecordLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "0xWallet")
	require.NoError(t, err)

	require.NoError(t, svc.RecordLogin(ctx, "0xWallet", "203.0.113.9"))
	require.NoError(t, svc.RecordLogin(ctx, "0xWallet", "203.0.113.10"))

	u, err := svc.Get(ctx, "0xWallet")
	require.NoError(t, err)
	assert.Equal(t, 2, u.LoginCount)
	assert.Equal(t, "203.0.113.10", u.LastLoginIP)
	require.NotNil(t, u.LastLogin)
}

func TestSetControlMode(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "0xWallet")
	require.NoError(t, err)

	require.NoError(t, svc.SetControlMode(ctx, "0xWallet", types.ControlModeForceWin))
	u, err := svc.Get(ctx, "0xWallet")
	require.NoError(t, err)
	assert.Equal(t, types.ControlModeForceWin, u.ControlMode)

	err = svc.SetControlMode(ctx, "0xWallet", types.ControlMode("rigged"))
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestSetLanguage(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "0xWallet")
	require.NoError(t, err)

	require.NoError(t, svc.SetLanguage(ctx, "0xWallet", "zh-CN"))
	u, err := svc.Get(ctx, "0xWallet")
	require.NoError(t, err)
	assert.Equal(t, "zh-CN", u.Language)

	err = svc.SetLanguage(ctx, "0xWallet", "  ")
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)

	require.ErrorIs(t, svc.SetLanguage(ctx, "0xNobody", "en"), model.ErrNotFound)
}

func TestBindBankCard(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "0xWallet")
	require.NoError(t, err)

	card, err := svc.BindBankCard(ctx, "0xWallet", "Jane Doe", "6222021234567890", "ICBC")
	require.NoError(t, err)
	assert.False(t, card.UpdatedAt.IsZero())

	u, err := svc.Get(ctx, "0xWallet")
	require.NoError(t, err)
	require.NotNil(t, u.BankCard)
	assert.Equal(t, "6222021234567890", u.BankCard.CardNumber)

	// rebinding replaces the earlier card
	_, err = svc.BindBankCard(ctx, "0xWallet", "Jane Doe", "6222020000000000", "ABC")
	require.NoError(t, err)
	u, err = svc.Get(ctx, "0xWallet")
	require.NoError(t, err)
	assert.Equal(t, "ABC", u.BankCard.BankName)

	_, err = svc.BindBankCard(ctx, "0xWallet", "Jane Doe", "", "ICBC")
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestHistoryRecordsAdjustments(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, "0xWallet")
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, "0xWallet", "USDT", decimal.NewFromInt(50), false, types.ChangeReasonAdminAdjust, "topup")
	require.NoError(t, err)

	changes, err := svc.History(ctx, "0xWallet", 10)
	require.NoError(t, err)
	require.NotEmpty(t, changes)
	latest := changes[0]
	assert.Equal(t, types.ChangeReasonAdminAdjust, latest.Reason)
	assert.True(t, latest.Delta.Equal(decimal.NewFromInt(50)))
	assert.True(t, latest.Balance.Equal(decimal.NewFromInt(1050)))
}
