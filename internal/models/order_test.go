package models

import (
	"errors"
	"testing"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from    OrderStatus
		event   OrderEvent
		to      OrderStatus
		effects []SideEffect
		ok      bool
	}{
		// Happy path
		{OrderStatusNone, EventCreate, OrderStatusPending, nil, true},
		{OrderStatusPending, EventMarkPaid, OrderStatusWaitingProof, nil, true},
		{OrderStatusWaitingProof, EventSubmitProof, OrderStatusWaitingReview, []SideEffect{SideEffectNotifyAdmins}, true},
		{OrderStatusWaitingReview, EventConfirm, OrderStatusPaid, []SideEffect{SideEffectGrantAndDeliver}, true},

		// Cancellation paths
		{OrderStatusPending, EventCancel, OrderStatusCanceled, nil, true},
		{OrderStatusWaitingProof, EventCancel, OrderStatusCanceled, nil, true},
		{OrderStatusWaitingReview, EventCancel, OrderStatusCanceled, nil, true},

		// Skipping steps
		{OrderStatusPending, EventSubmitProof, OrderStatusPending, nil, false},
		{OrderStatusPending, EventConfirm, OrderStatusPending, nil, false},
		{OrderStatusWaitingProof, EventConfirm, OrderStatusWaitingProof, nil, false},
		{OrderStatusNone, EventMarkPaid, OrderStatusNone, nil, false},

		// Terminal states
		{OrderStatusPaid, EventConfirm, OrderStatusPaid, nil, false},
		{OrderStatusPaid, EventCancel, OrderStatusPaid, nil, false},
		{OrderStatusCanceled, EventConfirm, OrderStatusCanceled, nil, false},
		{OrderStatusCanceled, EventCancel, OrderStatusCanceled, nil, false},
		{OrderStatusCanceled, EventMarkPaid, OrderStatusCanceled, nil, false},

		// Going back
		{OrderStatusWaitingReview, EventMarkPaid, OrderStatusWaitingReview, nil, false},
		{OrderStatusPending, EventCreate, OrderStatusPending, nil, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"+"+string(tt.event), func(t *testing.T) {
			to, effects, err := Transition(tt.from, tt.event)
			if tt.ok {
				if err != nil {
					t.Fatalf("Transition(%q, %q) unexpected error: %v", tt.from, tt.event, err)
				}
			} else {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("Transition(%q, %q) error = %v, want ErrInvalidTransition", tt.from, tt.event, err)
				}
			}
			if to != tt.to {
				t.Errorf("Transition(%q, %q) = %q, want %q", tt.from, tt.event, to, tt.to)
			}
			if len(effects) != len(tt.effects) {
				t.Fatalf("Transition(%q, %q) effects = %v, want %v", tt.from, tt.event, effects, tt.effects)
			}
			for i := range effects {
				if effects[i] != tt.effects[i] {
					t.Errorf("effect[%d] = %q, want %q", i, effects[i], tt.effects[i])
				}
			}
		})
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	events := []OrderEvent{EventCreate, EventMarkPaid, EventSubmitProof, EventConfirm, EventCancel}
	for _, status := range []OrderStatus{OrderStatusPaid, OrderStatusCanceled} {
		if !status.IsTerminal() {
			t.Errorf("status %q should be terminal", status)
		}
		for _, ev := range events {
			if _, _, err := Transition(status, ev); err == nil {
				t.Errorf("terminal status %q accepted event %q", status, ev)
			}
		}
	}
}

func TestOpenStatuses(t *testing.T) {
	for _, s := range OpenOrderStatuses {
		if !s.IsOpen() || s.IsTerminal() {
			t.Errorf("status %q should be open", s)
		}
		if _, _, err := Transition(s, EventCancel); err != nil {
			t.Errorf("open status %q cannot be canceled: %v", s, err)
		}
	}
	if OrderStatusPaid.IsOpen() || OrderStatusCanceled.IsOpen() {
		t.Error("terminal statuses reported as open")
	}
	if OrderStatus("weird").Valid() {
		t.Error("unknown status reported as valid")
	}
}

func TestAccountDisplayName(t *testing.T) {
	handle := "buyer"
	a := Account{ExternalID: 42, Handle: &handle}
	if got := a.DisplayName(); got != "@buyer" {
		t.Errorf("DisplayName() = %q, want @buyer", got)
	}
	a.Handle = nil
	if got := a.DisplayName(); got != "42" {
		t.Errorf("DisplayName() = %q, want 42", got)
	}
}
