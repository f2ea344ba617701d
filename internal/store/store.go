package store

import (
	"context"
	"time"

	"optrade/internal/model"
	"optrade/internal/types"

	"github.com/shopspring/decimal"
)

// Store is the persistence substrate behind the account ledger. Operations
// that move funds together with a row mutation (OpenOrder, SettleOrder,
// CreateWithdraw) are atomic as a unit: either the balance change and the row
// land together or neither does. Mutual exclusion is scoped per user key for
// balances and per order id for settlement; implementations must not take a
// global lock across users or orders.
type Store interface {
	// GetOrCreateUser returns the user for the normalized address, creating
	// it with the given starting grant and the next display id on first
	// contact. Concurrent first calls for the same address yield one account.
	GetOrCreateUser(ctx context.Context, address string, grant map[string]decimal.Decimal) (model.User, bool, error)
	GetUser(ctx context.Context, address string) (model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	RecordLogin(ctx context.Context, address, ip string) error
	SetControlMode(ctx context.Context, address string, mode types.ControlMode) error
	SetRemark(ctx context.Context, address, remark string) error
	SetLanguage(ctx context.Context, address, language string) error
	SetBankCard(ctx context.Context, address string, card model.BankCard) error

	// AdjustBalance applies delta to balances[symbol], creating the entry at
	// zero if absent. A guarded adjustment fails with ErrInsufficientFunds
	// instead of going negative. Returns the new balance.
	AdjustBalance(ctx context.Context, address, symbol string, delta decimal.Decimal, guarded bool, reason types.ChangeReason, ref string) (decimal.Decimal, error)

	// OpenOrder debits o.Amount of the base asset from the owner (guarded)
	// and inserts the order row in one critical section. On
	// ErrInsufficientFunds no order exists and no funds moved.
	OpenOrder(ctx context.Context, o model.Order, baseAsset string) (map[string]decimal.Decimal, error)
	GetOrder(ctx context.Context, id string) (model.Order, error)
	ListOrdersByUser(ctx context.Context, address string) ([]model.Order, error)
	ListOrders(ctx context.Context) ([]model.Order, error)

	// SettleOrder transitions the order open -> closed exactly once, records
	// profit and closedAt, and credits amount+profit of the base asset to the
	// owner. A second call, concurrent or not, fails with ErrAlreadySettled
	// and leaves everything untouched.
	SettleOrder(ctx context.Context, orderID string, profit decimal.Decimal, baseAsset string, closedAt time.Time) (model.Order, map[string]decimal.Decimal, error)

	// CreateWithdraw debits wd.Amount of wd.Symbol (guarded) and inserts the
	// pending row atomically. The debit happens at request time; a later
	// rejection is record keeping only and never refunds.
	CreateWithdraw(ctx context.Context, wd model.Withdraw) (map[string]decimal.Decimal, error)
	GetWithdraw(ctx context.Context, id string) (model.Withdraw, error)
	ListWithdrawsByUser(ctx context.Context, address string) ([]model.Withdraw, error)
	ListWithdraws(ctx context.Context) ([]model.Withdraw, error)
	SetWithdrawStatus(ctx context.Context, id string, status types.WithdrawStatus, reason string) (model.Withdraw, error)

	// ListBalanceChanges returns the newest audit entries for a user, most
	// recent first, up to limit.
	ListBalanceChanges(ctx context.Context, address string, limit int) ([]model.BalanceChange, error)
}
