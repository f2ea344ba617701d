package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"optrade/internal/model"
	"optrade/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Postgres persists rows via pgx. Per-user mutual exclusion comes from row
// locks (select ... for update on the users row), per-order exclusion from
// the same lock on the orders row, so concurrent settlement attempts
// serialize in the database instead of on a process-wide mutex.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const userColumns = "address, display_id, balances, control_mode, remark, language, bank_card, login_count, last_login, register_ip, last_login_ip, created_at"

const orderColumns = "id, wallet, symbol, amount, direction, status, profit, created_at, closed_at"

const withdrawColumns = "id, wallet, symbol, amount, withdraw_address, status, reason, created_at"

func (p *Postgres) GetOrCreateUser(ctx context.Context, address string, grant map[string]decimal.Decimal) (model.User, bool, error) {
	u, err := p.GetUser(ctx, address)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.User{}, false, err
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.User{}, false, err
	}
	defer tx.Rollback(ctx)

	var seq int64
	if err := tx.QueryRow(ctx, "select nextval('users_display_seq')").Scan(&seq); err != nil {
		return model.User{}, false, err
	}
	raw, err := json.Marshal(grant)
	if err != nil {
		return model.User{}, false, err
	}
	tag, err := tx.Exec(ctx,
		"insert into users (address, display_id, balances, control_mode, created_at) values ($1, $2, $3, $4, $5) on conflict (address) do nothing",
		address, displayID(seq), raw, string(types.ControlModeNormal), time.Now().UTC())
	if err != nil {
		return model.User{}, false, err
	}
	created := tag.RowsAffected() > 0
	if created {
		for symbol, amount := range grant {
			if amount.IsZero() {
				continue
			}
			if err := insertChange(ctx, tx, address, symbol, amount, amount, types.ChangeReasonGrant, ""); err != nil {
				return model.User{}, false, err
			}
		}
	}
	u, err = scanUserRow(tx.QueryRow(ctx, "select "+userColumns+" from users where address = $1", address))
	if err != nil {
		return model.User{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.User{}, false, err
	}
	return u, created, nil
}

func (p *Postgres) GetUser(ctx context.Context, address string) (model.User, error) {
	return scanUserRow(p.pool.QueryRow(ctx, "select "+userColumns+" from users where address = $1", address))
}

func (p *Postgres) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := p.pool.Query(ctx, "select "+userColumns+" from users order by created_at desc, address")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (p *Postgres) RecordLogin(ctx context.Context, address, ip string) error {
	tag, err := p.pool.Exec(ctx,
		"update users set login_count = login_count + 1, last_login = $1, register_ip = case when register_ip = '' then $2 else register_ip end, last_login_ip = $2 where address = $3",
		time.Now().UTC(), ip, address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (p *Postgres) SetControlMode(ctx context.Context, address string, mode types.ControlMode) error {
	tag, err := p.pool.Exec(ctx, "update users set control_mode = $1 where address = $2", string(mode), address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (p *Postgres) SetRemark(ctx context.Context, address, remark string) error {
	tag, err := p.pool.Exec(ctx, "update users set remark = $1 where address = $2", remark, address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (p *Postgres) SetLanguage(ctx context.Context, address, language string) error {
	tag, err := p.pool.Exec(ctx, "update users set language = $1 where address = $2", language, address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (p *Postgres) SetBankCard(ctx context.Context, address string, card model.BankCard) error {
	raw, err := json.Marshal(card)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, "update users set bank_card = $1 where address = $2", raw, address)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (p *Postgres) AdjustBalance(ctx context.Context, address, symbol string, delta decimal.Decimal, guarded bool, reason types.ChangeReason, ref string) (decimal.Decimal, error) {
	var next decimal.Decimal
	err := p.withTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		balances, err := balancesForUpdate(ctx, tx, address)
		if err != nil {
			return err
		}
		next = balances[symbol].Add(delta)
		if guarded && next.IsNegative() {
			return model.ErrInsufficientFunds
		}
		balances[symbol] = next
		if err := saveBalances(ctx, tx, address, balances); err != nil {
			return err
		}
		return insertChange(ctx, tx, address, symbol, delta, next, reason, ref)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return next, nil
}

func (p *Postgres) OpenOrder(ctx context.Context, o model.Order, baseAsset string) (map[string]decimal.Decimal, error) {
	var out map[string]decimal.Decimal
	err := p.withTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		balances, err := balancesForUpdate(ctx, tx, o.UserKey)
		if err != nil {
			return err
		}
		next := balances[baseAsset].Sub(o.Amount)
		if next.IsNegative() {
			return model.ErrInsufficientFunds
		}
		balances[baseAsset] = next
		if err := saveBalances(ctx, tx, o.UserKey, balances); err != nil {
			return err
		}
		if err := insertChange(ctx, tx, o.UserKey, baseAsset, o.Amount.Neg(), next, types.ChangeReasonOrderOpen, o.ID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			"insert into orders (id, wallet, symbol, amount, direction, status, profit, created_at) values ($1,$2,$3,$4,$5,$6,$7,$8)",
			o.ID, o.UserKey, o.Symbol, o.Amount, string(o.Direction), string(o.Status), o.Profit, o.CreatedAt)
		if err != nil {
			return err
		}
		out = balances
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) GetOrder(ctx context.Context, id string) (model.Order, error) {
	return scanOrderRow(p.pool.QueryRow(ctx, "select "+orderColumns+" from orders where id = $1", id))
}

func (p *Postgres) ListOrdersByUser(ctx context.Context, address string) ([]model.Order, error) {
	return p.queryOrders(ctx, "select "+orderColumns+" from orders where wallet = $1 order by created_at desc, id desc", address)
}

func (p *Postgres) ListOrders(ctx context.Context) ([]model.Order, error) {
	return p.queryOrders(ctx, "select " + orderColumns + " from orders order by created_at desc, id desc")
}

func (p *Postgres) queryOrders(ctx context.Context, query string, args ...any) ([]model.Order, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *Postgres) SettleOrder(ctx context.Context, orderID string, profit decimal.Decimal, baseAsset string, closedAt time.Time) (model.Order, map[string]decimal.Decimal, error) {
	var settled model.Order
	var out map[string]decimal.Decimal
	// read committed, not serializable: a settle blocked on the row lock must
	// re-read the winner's committed status and fail with ErrAlreadySettled
	// rather than abort with a serialization failure
	err := p.withTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		o, err := scanOrderRow(tx.QueryRow(ctx, "select "+orderColumns+" from orders where id = $1 for update", orderID))
		if err != nil {
			return err
		}
		if o.Status == types.OrderStatusClosed {
			return model.ErrAlreadySettled
		}
		balances, err := balancesForUpdate(ctx, tx, o.UserKey)
		if err != nil {
			return err
		}
		credit := o.Amount.Add(profit)
		next := balances[baseAsset].Add(credit)
		balances[baseAsset] = next
		if err := saveBalances(ctx, tx, o.UserKey, balances); err != nil {
			return err
		}
		if err := insertChange(ctx, tx, o.UserKey, baseAsset, credit, next, types.ChangeReasonOrderSettle, orderID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, "update orders set status = $1, profit = $2, closed_at = $3 where id = $4",
			string(types.OrderStatusClosed), profit, closedAt, orderID)
		if err != nil {
			return err
		}
		o.Status = types.OrderStatusClosed
		o.Profit = profit
		when := closedAt
		o.ClosedAt = &when
		settled = o
		out = balances
		return nil
	})
	if err != nil {
		return model.Order{}, nil, err
	}
	return settled, out, nil
}

func (p *Postgres) CreateWithdraw(ctx context.Context, wd model.Withdraw) (map[string]decimal.Decimal, error) {
	var out map[string]decimal.Decimal
	err := p.withTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		balances, err := balancesForUpdate(ctx, tx, wd.UserKey)
		if err != nil {
			return err
		}
		next := balances[wd.Symbol].Sub(wd.Amount)
		if next.IsNegative() {
			return model.ErrInsufficientFunds
		}
		balances[wd.Symbol] = next
		if err := saveBalances(ctx, tx, wd.UserKey, balances); err != nil {
			return err
		}
		if err := insertChange(ctx, tx, wd.UserKey, wd.Symbol, wd.Amount.Neg(), next, types.ChangeReasonWithdraw, wd.ID); err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			"insert into withdraws (id, wallet, symbol, amount, withdraw_address, status, reason, created_at) values ($1,$2,$3,$4,$5,$6,$7,$8)",
			wd.ID, wd.UserKey, wd.Symbol, wd.Amount, wd.Destination, string(wd.Status), wd.Reason, wd.CreatedAt)
		if err != nil {
			return err
		}
		out = balances
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Postgres) GetWithdraw(ctx context.Context, id string) (model.Withdraw, error) {
	return scanWithdrawRow(p.pool.QueryRow(ctx, "select "+withdrawColumns+" from withdraws where id = $1", id))
}

func (p *Postgres) ListWithdrawsByUser(ctx context.Context, address string) ([]model.Withdraw, error) {
	return p.queryWithdraws(ctx, "select "+withdrawColumns+" from withdraws where wallet = $1 order by created_at desc, id desc", address)
}

func (p *Postgres) ListWithdraws(ctx context.Context) ([]model.Withdraw, error) {
	return p.queryWithdraws(ctx, "select " + withdrawColumns + " from withdraws order by created_at desc, id desc")
}

func (p *Postgres) queryWithdraws(ctx context.Context, query string, args ...any) ([]model.Withdraw, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Withdraw
	for rows.Next() {
		w, err := scanWithdrawRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (p *Postgres) SetWithdrawStatus(ctx context.Context, id string, status types.WithdrawStatus, reason string) (model.Withdraw, error) {
	tag, err := p.pool.Exec(ctx, "update withdraws set status = $1, reason = $2 where id = $3", string(status), reason, id)
	if err != nil {
		return model.Withdraw{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Withdraw{}, model.ErrNotFound
	}
	return p.GetWithdraw(ctx, id)
}

func (p *Postgres) ListBalanceChanges(ctx context.Context, address string, limit int) ([]model.BalanceChange, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx,
		"select sequence, wallet, symbol, delta, balance, reason, ref, created_at from balance_changes where wallet = $1 order by sequence desc limit $2",
		address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.BalanceChange
	for rows.Next() {
		var c model.BalanceChange
		var reason string
		if err := rows.Scan(&c.Sequence, &c.UserKey, &c.Symbol, &c.Delta, &c.Balance, &reason, &c.Ref, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Reason = types.ChangeReason(reason)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) withTx(ctx context.Context, iso pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func balancesForUpdate(ctx context.Context, tx pgx.Tx, address string) (map[string]decimal.Decimal, error) {
	var raw []byte
	err := tx.QueryRow(ctx, "select balances from users where address = $1 for update", address).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	balances := make(map[string]decimal.Decimal)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &balances); err != nil {
			return nil, err
		}
	}
	return balances, nil
}

func saveBalances(ctx context.Context, tx pgx.Tx, address string, balances map[string]decimal.Decimal) error {
	raw, err := json.Marshal(balances)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, "update users set balances = $1 where address = $2", raw, address)
	return err
}

func insertChange(ctx context.Context, tx pgx.Tx, address, symbol string, delta, balance decimal.Decimal, reason types.ChangeReason, ref string) error {
	_, err := tx.Exec(ctx,
		"insert into balance_changes (wallet, symbol, delta, balance, reason, ref, created_at) values ($1,$2,$3,$4,$5,$6,$7)",
		address, symbol, delta, balance, string(reason), ref, time.Now().UTC())
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserRow(row rowScanner) (model.User, error) {
	var u model.User
	var raw, cardRaw []byte
	var mode string
	err := row.Scan(&u.Address, &u.DisplayID, &raw, &mode, &u.Remark, &u.Language, &cardRaw, &u.LoginCount, &u.LastLogin, &u.RegisterIP, &u.LastLoginIP, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, err
	}
	u.ControlMode = types.ControlMode(mode)
	u.Balances = make(map[string]decimal.Decimal)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &u.Balances); err != nil {
			return model.User{}, err
		}
	}
	if len(cardRaw) > 0 {
		var card model.BankCard
		if err := json.Unmarshal(cardRaw, &card); err != nil {
			return model.User{}, err
		}
		u.BankCard = &card
	}
	return u, nil
}

func scanOrderRow(row rowScanner) (model.Order, error) {
	var o model.Order
	var direction, status string
	err := row.Scan(&o.ID, &o.UserKey, &o.Symbol, &o.Amount, &direction, &status, &o.Profit, &o.CreatedAt, &o.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Order{}, model.ErrNotFound
		}
		return model.Order{}, err
	}
	o.Direction = types.OrderDirection(direction)
	o.Status = types.OrderStatus(status)
	return o, nil
}

func scanWithdrawRow(row rowScanner) (model.Withdraw, error) {
	var w model.Withdraw
	var status string
	err := row.Scan(&w.ID, &w.UserKey, &w.Symbol, &w.Amount, &w.Destination, &status, &w.Reason, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Withdraw{}, model.ErrNotFound
		}
		return model.Withdraw{}, err
	}
	w.Status = types.WithdrawStatus(status)
	return w, nil
}
