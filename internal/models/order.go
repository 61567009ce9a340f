package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

// Order statuses
const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusWaitingProof  OrderStatus = "waiting_proof"
	OrderStatusWaitingReview OrderStatus = "waiting_review"
	OrderStatusPaid          OrderStatus = "paid"
	OrderStatusCanceled      OrderStatus = "canceled"
)

// OrderStatusNone is the "from" state of an order that does not exist yet.
const OrderStatusNone OrderStatus = ""

// OpenOrderStatuses are the non-terminal statuses, in lifecycle order.
var OpenOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusWaitingProof,
	OrderStatusWaitingReview,
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCanceled
}

func (s OrderStatus) IsOpen() bool {
	for _, o := range OpenOrderStatuses {
		if s == o {
			return true
		}
	}
	return false
}

func (s OrderStatus) Valid() bool {
	return s.IsOpen() || s.IsTerminal()
}

type OrderEvent string

// Order events
const (
	EventCreate      OrderEvent = "create"       // товар + валюта выбраны
	EventMarkPaid    OrderEvent = "mark_paid"    // "Я оплатил(а)"
	EventSubmitProof OrderEvent = "submit_proof" // чек / скрин / txid
	EventConfirm     OrderEvent = "confirm"      // подтверждение админом
	EventCancel      OrderEvent = "cancel"
)

type SideEffect string

const (
	SideEffectNotifyAdmins    SideEffect = "notify_admins"
	SideEffectGrantAndDeliver SideEffect = "grant_and_deliver"
)

var ErrInvalidTransition = errors.New("invalid order transition")

type transitionKey struct {
	from  OrderStatus
	event OrderEvent
}

type transitionRule struct {
	to      OrderStatus
	effects []SideEffect
}

// orderTransitions is the whole lifecycle: (from, event) -> (to, side effects).
var orderTransitions = map[transitionKey]transitionRule{
	{OrderStatusNone, EventCreate}:              {to: OrderStatusPending},
	{OrderStatusPending, EventMarkPaid}:         {to: OrderStatusWaitingProof},
	{OrderStatusWaitingProof, EventSubmitProof}: {to: OrderStatusWaitingReview, effects: []SideEffect{SideEffectNotifyAdmins}},
	{OrderStatusWaitingReview, EventConfirm}:    {to: OrderStatusPaid, effects: []SideEffect{SideEffectGrantAndDeliver}},
	{OrderStatusPending, EventCancel}:           {to: OrderStatusCanceled},
	{OrderStatusWaitingProof, EventCancel}:      {to: OrderStatusCanceled},
	{OrderStatusWaitingReview, EventCancel}:     {to: OrderStatusCanceled},
}

// Transition returns the next status and the side effects that must fire
// for the given event. Pairs missing from the table are rejected.
func Transition(from OrderStatus, event OrderEvent) (OrderStatus, []SideEffect, error) {
	rule, ok := orderTransitions[transitionKey{from, event}]
	if !ok {
		return from, nil, fmt.Errorf("%w: %q on %q", ErrInvalidTransition, event, from)
	}
	return rule.to, rule.effects, nil
}

type Order struct {
	ID            int64           `json:"id"`
	AccountID     int64           `json:"account_id"`
	ProductID     int64           `json:"product_id"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	Status        OrderStatus     `json:"status"`
	WalletAddress string          `json:"wallet_address"`
	TxRef         *string         `json:"tx_ref,omitempty"`
	ProofRef      *string         `json:"proof_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
}

// OrderWithAccount embeds Order and adds the buyer's identity for admin views.
type OrderWithAccount struct {
	Order
	AccountExternalID int64   `json:"account_external_id"`
	AccountHandle     *string `json:"account_handle,omitempty"`
}
