package model

import (
	"time"

	"optrade/internal/types"

	"github.com/shopspring/decimal"
)

type User struct {
	Address     string                     `json:"address"`
	DisplayID   string                     `json:"display_id"`
	Balances    map[string]decimal.Decimal `json:"balances"`
	ControlMode types.ControlMode          `json:"control_mode"`
	Remark      string                     `json:"remark"`
	Language    string                     `json:"language,omitempty"`
	BankCard    *BankCard                  `json:"bank_card,omitempty"`
	LoginCount  int                        `json:"login_count"`
	LastLogin   *time.Time                 `json:"last_login,omitempty"`
	RegisterIP  string                     `json:"register_ip"`
	LastLoginIP string                     `json:"last_login_ip"`
	CreatedAt   time.Time                  `json:"created_at"`
}

// BankCard is the payout card a user binds for off-platform withdrawals.
type BankCard struct {
	HolderName string    `json:"name"`
	CardNumber string    `json:"card_number"`
	BankName   string    `json:"bank_name"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Order struct {
	ID        string               `json:"id"`
	UserKey   string               `json:"wallet"`
	Symbol    string               `json:"symbol"`
	Amount    decimal.Decimal      `json:"amount"`
	Direction types.OrderDirection `json:"direction"`
	Status    types.OrderStatus    `json:"status"`
	Profit    decimal.Decimal      `json:"profit"`
	CreatedAt time.Time            `json:"created_at"`
	ClosedAt  *time.Time           `json:"closed_at,omitempty"`
}

type Withdraw struct {
	ID          string               `json:"id"`
	UserKey     string               `json:"wallet"`
	Symbol      string               `json:"symbol"`
	Amount      decimal.Decimal      `json:"amount"`
	Destination string               `json:"withdraw_address"`
	Status      types.WithdrawStatus `json:"status"`
	Reason      string               `json:"reason,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// BalanceChange is one ledger line of the per-user balance history. Every
// successful adjustment produces exactly one entry; Sequence orders entries
// globally so the history is replayable for audit.
type BalanceChange struct {
	Sequence  int64              `json:"sequence"`
	UserKey   string             `json:"wallet"`
	Symbol    string             `json:"symbol"`
	Delta     decimal.Decimal    `json:"delta"`
	Balance   decimal.Decimal    `json:"balance"`
	Reason    types.ChangeReason `json:"reason"`
	Ref       string             `json:"ref,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}
