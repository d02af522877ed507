package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/giftcard-ledger/internal/model"
	"github.com/fairyhunter13/giftcard-ledger/pkg/database"
)

// TransactionRepository provides access to the append-only card ledger.
type TransactionRepository struct {
	pool PoolInterface
}

// NewTransactionRepository creates a new TransactionRepository with the given pool.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// NewTransactionRepositoryWithPool creates a new TransactionRepository with a custom pool interface.
// This is primarily used for testing.
func NewTransactionRepositoryWithPool(pool PoolInterface) *TransactionRepository {
	return &TransactionRepository{pool: pool}
}

// Insert appends a ledger entry within a transaction and fills in CreatedAt.
func (r *TransactionRepository) Insert(ctx context.Context, tx database.TxQuerier, entry *model.Transaction) error {
	query := `INSERT INTO card_transactions (id, card_id, type, amount, balance_before,
		balance_after, description, actor_id, reference_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err := tx.QueryRow(ctx, query,
		entry.ID, entry.CardID, string(entry.Type), entry.Amount, entry.BalanceBefore,
		entry.BalanceAfter, entry.Description, entry.ActorID, entry.ReferenceID,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert %s entry for card %s: %w", entry.Type, entry.CardID, err)
	}
	return nil
}

// ListByCard returns a card's ledger in the order it was written.
// On success, returns an empty slice (not nil) when no entries exist.
func (r *TransactionRepository) ListByCard(ctx context.Context, cardID uuid.UUID) ([]model.Transaction, error) {
	query := `SELECT id, card_id, type, amount, balance_before, balance_after,
		description, actor_id, reference_id, created_at
		FROM card_transactions WHERE card_id = $1 ORDER BY seq`

	rows, err := r.pool.Query(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("list transactions for card %s: %w", cardID, err)
	}
	defer rows.Close()

	entries := []model.Transaction{}
	for rows.Next() {
		var (
			e      model.Transaction
			txType string
		)
		if err := rows.Scan(
			&e.ID,
			&e.CardID,
			&txType,
			&e.Amount,
			&e.BalanceBefore,
			&e.BalanceAfter,
			&e.Description,
			&e.ActorID,
			&e.ReferenceID,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		e.Type = model.TransactionType(txType)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return entries, nil
}
