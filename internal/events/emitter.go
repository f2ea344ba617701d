package events

import (
	"time"

	"optrade/internal/types"

	"github.com/shopspring/decimal"
)

type NewOrderPayload struct {
	OrderID   string          `json:"order_id"`
	UserKey   string          `json:"wallet"`
	DisplayID string          `json:"user_id"`
	Symbol    string          `json:"symbol"`
	Amount    decimal.Decimal `json:"amount"`
	Direction string          `json:"direction"`
}

type OrderSettledPayload struct {
	OrderID string          `json:"order_id"`
	UserKey string          `json:"wallet"`
	Profit  decimal.Decimal `json:"profit"`
	IsWin   bool            `json:"is_win"`
}

type NewWithdrawPayload struct {
	WithdrawID  string          `json:"withdraw_id"`
	UserKey     string          `json:"wallet"`
	Symbol      string          `json:"symbol"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"withdraw_address"`
}

type NoticePayload struct {
	Message string `json:"message"`
}

// Emitter is the fire-and-forget boundary between the ledger core and the
// notification fan-out. A nil emitter is valid and drops everything, so core
// paths never need to nil-check before emitting.
type Emitter struct {
	bus *Bus
}

func NewEmitter(bus *Bus) *Emitter {
	return &Emitter{bus: bus}
}

func (e *Emitter) Emit(kind types.EventKind, data any) {
	if e == nil || e.bus == nil {
		return
	}
	e.bus.Publish(Event{Kind: kind, Data: data, TS: time.Now().UnixMilli()})
}
