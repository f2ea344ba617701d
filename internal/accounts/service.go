package accounts

import (
	"context"
	"strings"
	"time"

	"optrade/internal/model"
	"optrade/internal/store"
	"optrade/internal/types"

	"github.com/shopspring/decimal"
)

// BaseAsset is the asset orders are staked in and the one funded by the
// starting grant.
const BaseAsset = "USDT"

func startingGrant() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"USDT": decimal.NewFromInt(1000),
		"BTC":  decimal.Zero,
	}
}

// Service owns per-user balances. Accounts are created lazily on first
// authenticated contact and never deleted.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// NormalizeKey lowercases and trims an address so the same wallet always
// maps to one account.
func NormalizeKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func (s *Service) GetOrCreate(ctx context.Context, address string) (model.User, error) {
	key := NormalizeKey(address)
	if key == "" {
		return model.User{}, model.Validationf("address is required")
	}
	u, _, err := s.store.GetOrCreateUser(ctx, key, startingGrant())
	return u, err
}

func (s *Service) Get(ctx context.Context, address string) (model.User, error) {
	return s.store.GetUser(ctx, NormalizeKey(address))
}

func (s *Service) Balances(ctx context.Context, address string) (map[string]decimal.Decimal, error) {
	u, err := s.Get(ctx, address)
	if err != nil {
		return nil, err
	}
	return u.Balances, nil
}

// Adjust applies delta to a single balance. Guarded adjustments fail with
// ErrInsufficientFunds instead of going negative; unguarded (administrative)
// adjustments may drive a balance below zero.
func (s *Service) Adjust(ctx context.Context, address, symbol string, delta decimal.Decimal, guarded bool, reason types.ChangeReason, ref string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return decimal.Zero, model.Validationf("symbol is required")
	}
	return s.store.AdjustBalance(ctx, NormalizeKey(address), symbol, delta, guarded, reason, ref)
}

func (s *Service) RecordLogin(ctx context.Context, address, ip string) error {
	return s.store.RecordLogin(ctx, NormalizeKey(address), ip)
}

func (s *Service) SetControlMode(ctx context.Context, address string, mode types.ControlMode) error {
	if !mode.Valid() {
		return model.Validationf("invalid control mode")
	}
	return s.store.SetControlMode(ctx, NormalizeKey(address), mode)
}

func (s *Service) SetRemark(ctx context.Context, address, remark string) error {
	return s.store.SetRemark(ctx, NormalizeKey(address), remark)
}

func (s *Service) SetLanguage(ctx context.Context, address, language string) error {
	language = strings.TrimSpace(language)
	if language == "" {
		return model.Validationf("language is required")
	}
	return s.store.SetLanguage(ctx, NormalizeKey(address), language)
}

// BindBankCard stores the payout card on the account, replacing any earlier
// binding.
func (s *Service) BindBankCard(ctx context.Context, address, holder, number, bank string) (model.BankCard, error) {
	holder = strings.TrimSpace(holder)
	number = strings.TrimSpace(number)
	bank = strings.TrimSpace(bank)
	if holder == "" || number == "" || bank == "" {
		return model.BankCard{}, model.Validationf("name, card number and bank name are required")
	}
	card := model.BankCard{
		HolderName: holder,
		CardNumber: number,
		BankName:   bank,
		UpdatedAt:  time.Now().UTC(),
	}
	if err := s.store.SetBankCard(ctx, NormalizeKey(address), card); err != nil {
		return model.BankCard{}, err
	}
	return card, nil
}

func (s *Service) List(ctx context.Context) ([]model.User, error) {
	return s.store.ListUsers(ctx)
}

// History returns the newest balance-change audit entries for a user.
func (s *Service) History(ctx context.Context, address string, limit int) ([]model.BalanceChange, error) {
	return s.store.ListBalanceChanges(ctx, NormalizeKey(address), limit)
}
