package types

type OrderDirection string

type OrderStatus string

type WithdrawStatus string

type ControlMode string

type EventKind string

type ChangeReason string

const (
	DirectionLong  OrderDirection = "long"
	DirectionShort OrderDirection = "short"
)

const (
	OrderStatusOpen   OrderStatus = "open"
	OrderStatusClosed OrderStatus = "closed"
)

const (
	WithdrawStatusPending  WithdrawStatus = "pending"
	WithdrawStatusApproved WithdrawStatus = "approved"
	WithdrawStatusRejected WithdrawStatus = "rejected"
)

const (
	ControlModeNormal    ControlMode = "normal"
	ControlModeForceWin  ControlMode = "force_win"
	ControlModeForceLoss ControlMode = "force_loss"
)

const (
	EventNewOrder     EventKind = "NEW_ORDER"
	EventOrderSettled EventKind = "ORDER_SETTLED"
	EventNewWithdraw  EventKind = "NEW_WITHDRAW"
	EventNewNotice    EventKind = "NEW_NOTICE"
)

const (
	ChangeReasonGrant       ChangeReason = "grant"
	ChangeReasonOrderOpen   ChangeReason = "order_open"
	ChangeReasonOrderSettle ChangeReason = "order_settle"
	ChangeReasonWithdraw    ChangeReason = "withdraw"
	ChangeReasonAdminAdjust ChangeReason = "admin_adjust"
)

func (m ControlMode) Valid() bool {
	switch m {
	case ControlModeNormal, ControlModeForceWin, ControlModeForceLoss:
		return true
	}
	return false
}

func (d OrderDirection) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}
