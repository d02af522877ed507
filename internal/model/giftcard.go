package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GiftCard is a stored-value card. CurrentBalance is a cache of the last
// ledger entry's BalanceAfter and is only mutated under a row lock.
type GiftCard struct {
	ID             uuid.UUID       `json:"id"`
	BrandID        uuid.UUID       `json:"brand_id"`
	CardNumber     string          `json:"card_number"`
	CardCode       string          `json:"card_code"`
	PINHash        string          `json:"-"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Status         CardStatus      `json:"status"`
	Version        int64           `json:"version"`
	IssuedAt       time.Time       `json:"issued_at"`
	ActivatedAt    *time.Time      `json:"activated_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	OrderReference string          `json:"order_reference,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ExpiredAt reports whether the card's expiry instant has passed at now.
func (c *GiftCard) ExpiredAt(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// IssuedCard is returned exactly once, at issuance. PIN is the only place the
// plaintext PIN ever appears.
type IssuedCard struct {
	Card          *GiftCard   `json:"card"`
	PrintedNumber string      `json:"printed_number"`
	PIN           string      `json:"pin"`
	ScanPayload   ScanPayload `json:"scan_payload"`
}

// CardView is the public projection returned by lookup; it reveals no balance.
type CardView struct {
	CardNumber string     `json:"card_number"`
	BrandID    uuid.UUID  `json:"brand_id"`
	Status     CardStatus `json:"status"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// BalanceView is returned by a PIN-authorized balance check.
type BalanceView struct {
	CardNumber     string          `json:"card_number"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	Status         CardStatus      `json:"status"`
	ActivatedAt    *time.Time      `json:"activated_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// LedgerResult describes a committed balance change (redemption, adjustment, refund).
type LedgerResult struct {
	CardID          uuid.UUID       `json:"card_id"`
	TransactionID   uuid.UUID       `json:"transaction_id"`
	Type            TransactionType `json:"type"`
	Amount          decimal.Decimal `json:"amount"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	Status          CardStatus      `json:"status"`
}

// VoidResult describes the outcome of voiding a card.
type VoidResult struct {
	CardID         uuid.UUID       `json:"card_id"`
	Forfeited      decimal.Decimal `json:"forfeited"`
	PreviousStatus CardStatus      `json:"previous_status"`
	Status         CardStatus      `json:"status"`
	TransactionID  *uuid.UUID      `json:"transaction_id,omitempty"`
}

// IssueCardRequest is the DTO for issuing a card.
type IssueCardRequest struct {
	BrandID        string          `json:"brand_id" validate:"required,uuid"`
	Amount         decimal.Decimal `json:"amount" validate:"gt=0"`
	OrderReference string          `json:"order_reference" validate:"max=255"`
}

// LookupRequest identifies a card by card number or by lookup code. The code
// field also accepts a raw scan payload.
type LookupRequest struct {
	CardNumber string `json:"card_number" validate:"required_without=Code,max=64"`
	Code       string `json:"code" validate:"required_without=CardNumber,max=512"`
}

// BalanceRequest is the DTO for a PIN-authorized balance check.
type BalanceRequest struct {
	CardNumber string `json:"card_number" validate:"required_without=Code,max=64"`
	Code       string `json:"code" validate:"required_without=CardNumber,max=512"`
	PIN        string `json:"pin" validate:"required,pin"`
}

// RedeemRequest is the DTO for redeeming value from a card.
type RedeemRequest struct {
	CardNumber  string          `json:"card_number" validate:"required_without=Code,max=64"`
	Code        string          `json:"code" validate:"required_without=CardNumber,max=512"`
	PIN         string          `json:"pin" validate:"required,pin"`
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	Description string          `json:"description" validate:"max=500"`
}

// VoidRequest is the DTO for voiding a card.
type VoidRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// StatusRequest is the DTO for an administrative status change.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended voided"`
	Reason string `json:"reason" validate:"max=500"`
}

// AdjustRequest is the DTO for a signed administrative balance correction.
type AdjustRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"ne=0"`
	Reason string          `json:"reason" validate:"required,notblank,max=500"`
}

// RefundRequest is the DTO for restoring previously redeemed value.
type RefundRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0"`
	ReferenceID string          `json:"reference_id" validate:"max=255"`
	Reason      string          `json:"reason" validate:"max=500"`
}
