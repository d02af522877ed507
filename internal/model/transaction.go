package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the closed vocabulary of ledger mutations.
type TransactionType string

const (
	TxPurchase   TransactionType = "purchase"
	TxRedemption TransactionType = "redemption"
	TxAdjustment TransactionType = "adjustment"
	TxVoid       TransactionType = "void"
	TxRefund     TransactionType = "refund"
)

// Transaction is an append-only ledger entry. BalanceAfter always equals
// BalanceBefore + Amount.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	CardID        uuid.UUID       `json:"card_id"`
	Type          TransactionType `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Description   string          `json:"description,omitempty"`
	ActorID       string          `json:"actor_id,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewTransaction snapshots before and derives after from the signed amount.
func NewTransaction(cardID uuid.UUID, txType TransactionType, before, amount decimal.Decimal) *Transaction {
	return &Transaction{
		ID:            uuid.New(),
		CardID:        cardID,
		Type:          txType,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  before.Add(amount),
	}
}

// AuditReport is the result of replaying a card's ledger.
type AuditReport struct {
	CardID          uuid.UUID       `json:"card_id"`
	Entries         int             `json:"entries"`
	ReplayedBalance decimal.Decimal `json:"replayed_balance"`
	CurrentBalance  decimal.Decimal `json:"current_balance"`
	Consistent      bool            `json:"consistent"`
	Violations      []string        `json:"violations"`
}
