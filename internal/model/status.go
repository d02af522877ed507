package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CardStatus is the lifecycle state of a gift card.
type CardStatus string

const (
	StatusActive    CardStatus = "active"
	StatusDepleted  CardStatus = "depleted"
	StatusExpired   CardStatus = "expired"
	StatusVoided    CardStatus = "voided"
	StatusSuspended CardStatus = "suspended"
)

// ParseCardStatus converts a wire value into a CardStatus.
func ParseCardStatus(s string) (CardStatus, error) {
	switch CardStatus(s) {
	case StatusActive, StatusDepleted, StatusExpired, StatusVoided, StatusSuspended:
		return CardStatus(s), nil
	}
	return "", fmt.Errorf("unknown card status %q", s)
}

// CanTransitionTo reports whether the state machine has an edge from s to next.
//
//	active    -> depleted | expired | voided | suspended
//	depleted  -> active | voided
//	expired   -> active | voided
//	suspended -> active | voided
//	voided    -> active
//
// Balance preconditions (reactivation requires value) are enforced by the ledger.
func (s CardStatus) CanTransitionTo(next CardStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case StatusActive:
		switch next {
		case StatusDepleted, StatusExpired, StatusVoided, StatusSuspended:
			return true
		}
	case StatusDepleted, StatusExpired, StatusSuspended:
		return next == StatusActive || next == StatusVoided
	case StatusVoided:
		return next == StatusActive
	}
	return false
}

// StatusChange is an append-only record of a status transition.
// FromStatus is empty for the issuance record.
type StatusChange struct {
	ID         uuid.UUID  `json:"id"`
	CardID     uuid.UUID  `json:"card_id"`
	FromStatus CardStatus `json:"from_status,omitempty"`
	ToStatus   CardStatus `json:"to_status"`
	Reason     string     `json:"reason,omitempty"`
	ActorID    string     `json:"actor_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewStatusChange builds a transition record for card.
func NewStatusChange(cardID uuid.UUID, from, to CardStatus, reason, actorID string) *StatusChange {
	return &StatusChange{
		ID:         uuid.New(),
		CardID:     cardID,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
		ActorID:    actorID,
	}
}
