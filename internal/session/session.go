package session

import "context"

type State string

// Conversation states
const (
	StateIdle             State = "idle"
	StateChoosingCurrency State = "choosing_currency" // товар выбран, ждём валюту
	StateWaitingPayment   State = "waiting_payment"   // заказ создан, реквизиты показаны
	StateWaitingProof     State = "waiting_proof"     // ждём чек / скрин / txid
)

// Session is the per-account conversation state.
type Session struct {
	State     State `json:"state"`
	ProductID int64 `json:"product_id,omitempty"`
	OrderID   int64 `json:"order_id,omitempty"`
}

func Idle() Session {
	return Session{State: StateIdle}
}

// Store keeps sessions keyed by the account's external id. Get returns an
// idle session when none is stored.
type Store interface {
	Get(ctx context.Context, externalID int64) (Session, error)
	Set(ctx context.Context, externalID int64, s Session) error
	Clear(ctx context.Context, externalID int64) error
}
