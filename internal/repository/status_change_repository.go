package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/giftcard-ledger/internal/model"
	"github.com/fairyhunter13/giftcard-ledger/pkg/database"
)

// StatusChangeRepository records card status transitions.
type StatusChangeRepository struct {
	pool PoolInterface
}

// NewStatusChangeRepository creates a new StatusChangeRepository with the given pool.
func NewStatusChangeRepository(pool *pgxpool.Pool) *StatusChangeRepository {
	return &StatusChangeRepository{pool: pool}
}

// NewStatusChangeRepositoryWithPool creates a new StatusChangeRepository with a custom pool interface.
func NewStatusChangeRepositoryWithPool(pool PoolInterface) *StatusChangeRepository {
	return &StatusChangeRepository{pool: pool}
}

// Insert appends a status change within a transaction.
func (r *StatusChangeRepository) Insert(ctx context.Context, tx database.TxQuerier, change *model.StatusChange) error {
	query := `INSERT INTO card_status_changes (id, card_id, from_status, to_status, reason, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := tx.QueryRow(ctx, query,
		change.ID, change.CardID, string(change.FromStatus), string(change.ToStatus),
		change.Reason, change.ActorID,
	).Scan(&change.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert status change for card %s: %w", change.CardID, err)
	}
	return nil
}

// ListByCard returns a card's status history, oldest first.
func (r *StatusChangeRepository) ListByCard(ctx context.Context, cardID uuid.UUID) ([]model.StatusChange, error) {
	query := `SELECT id, card_id, from_status, to_status, reason, actor_id, created_at
		FROM card_status_changes WHERE card_id = $1 ORDER BY seq`

	rows, err := r.pool.Query(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("list status changes for card %s: %w", cardID, err)
	}
	defer rows.Close()

	changes := []model.StatusChange{}
	for rows.Next() {
		var (
			c        model.StatusChange
			from, to string
		)
		if err := rows.Scan(&c.ID, &c.CardID, &from, &to, &c.Reason, &c.ActorID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		c.FromStatus = model.CardStatus(from)
		c.ToStatus = model.CardStatus(to)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status change rows: %w", err)
	}
	return changes, nil
}
