package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fairyhunter13/giftcard-ledger/internal/model"
	"github.com/fairyhunter13/giftcard-ledger/pkg/database"
)

// TxBeginner defines the interface for beginning transactions.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// BrandRepositoryInterface defines the interface for brand data access.
type BrandRepositoryInterface interface {
	Insert(ctx context.Context, brand *model.Brand) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Brand, error)
	NameTaken(ctx context.Context, name, slug string, excludeID uuid.UUID) (bool, error)
	Update(ctx context.Context, brand *model.Brand) error
	List(ctx context.Context, includeInactive bool) ([]model.Brand, error)
	CountActiveCards(ctx context.Context, id uuid.UUID) (int, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CardRepositoryInterface defines the interface for gift card data access.
// Getters return nil, nil when the card does not exist; GetForUpdate
// returns ErrCardNotFound instead because it runs inside a transaction.
type CardRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, card *model.GiftCard) error
	ExistsByNumber(ctx context.Context, cardNumber string) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.GiftCard, error)
	GetByNumber(ctx context.Context, cardNumber string) (*model.GiftCard, error)
	GetByCode(ctx context.Context, code string) (*model.GiftCard, error)
	GetForUpdate(ctx context.Context, tx database.TxQuerier, id uuid.UUID) (*model.GiftCard, error)
	Save(ctx context.Context, tx database.TxQuerier, card *model.GiftCard) error
}

// TransactionRepositoryInterface defines the interface for ledger entry access.
type TransactionRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, entry *model.Transaction) error
	ListByCard(ctx context.Context, cardID uuid.UUID) ([]model.Transaction, error)
}

// StatusChangeRepositoryInterface defines the interface for status history access.
type StatusChangeRepositoryInterface interface {
	Insert(ctx context.Context, tx database.TxQuerier, change *model.StatusChange) error
	ListByCard(ctx context.Context, cardID uuid.UUID) ([]model.StatusChange, error)
}

// PINAttemptGuard throttles PIN guesses per card. Implementations must not
// block the ledger transaction; they are consulted before it begins.
type PINAttemptGuard interface {
	Locked(ctx context.Context, cardID uuid.UUID) (bool, error)
	RecordFailure(ctx context.Context, cardID uuid.UUID) error
	Reset(ctx context.Context, cardID uuid.UUID) error
}
