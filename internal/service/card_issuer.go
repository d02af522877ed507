package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairyhunter13/giftcard-ledger/internal/model"
	"github.com/fairyhunter13/giftcard-ledger/internal/security"
)

const tracerName = "github.com/fairyhunter13/giftcard-ledger/internal/service"

const (
	// maxNumberAttempts bounds the generate/check loop for card numbers.
	maxNumberAttempts = 5
	// maxInsertAttempts is how often issuance is tried when the unique
	// constraints reject identifiers that passed the pre-check.
	maxInsertAttempts = 2
)

// PINHasher hashes PINs one way and verifies candidates against a hash.
type PINHasher interface {
	Hash(pin string) (string, error)
	Verify(hash, pin string) bool
}

// Stores groups the repositories the card services depend on.
type Stores struct {
	Brands        BrandRepositoryInterface
	Cards         CardRepositoryInterface
	Transactions  TransactionRepositoryInterface
	StatusChanges StatusChangeRepositoryInterface
}

// CardIssuer allocates new gift cards.
type CardIssuer struct {
	pool   TxBeginner
	stores Stores
	hasher PINHasher

	newCardNumber func() (string, error)
	newLookupCode func() string
	newPIN        func() (string, error)
	now           func() time.Time
}

// NewCardIssuer creates a CardIssuer backed by pool.
func NewCardIssuer(pool *pgxpool.Pool, stores Stores, hasher PINHasher) *CardIssuer {
	return NewCardIssuerWithTxBeginner(pool, stores, hasher)
}

// NewCardIssuerWithTxBeginner creates a CardIssuer with a custom TxBeginner.
// Primarily used for testing.
func NewCardIssuerWithTxBeginner(pool TxBeginner, stores Stores, hasher PINHasher) *CardIssuer {
	return &CardIssuer{
		pool:          pool,
		stores:        stores,
		hasher:        hasher,
		newCardNumber: security.NewCardNumber,
		newLookupCode: security.NewLookupCode,
		newPIN:        security.NewPIN,
		now:           utcNow,
	}
}

// Issue creates a card for req.Amount under the brand's rules, writes its
// Purchase entry and returns the plaintext PIN. The PIN is not retrievable
// afterwards.
func (s *CardIssuer) Issue(ctx context.Context, req *model.IssueCardRequest, actorID string) (_ *model.IssuedCard, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "CardIssuer.Issue")
	defer func() { endSpan(span, err) }()

	if req == nil {
		return nil, ErrInvalidRequest
	}
	brandID, err := uuid.Parse(req.BrandID)
	if err != nil {
		return nil, fmt.Errorf("%w: brand_id must be a UUID", ErrValidation)
	}
	span.SetAttributes(attribute.String("brand.id", brandID.String()))

	brand, err := s.stores.Brands.GetByID(ctx, brandID)
	if err != nil {
		return nil, fmt.Errorf("get brand: %w", err)
	}
	if brand == nil {
		return nil, ErrBrandNotFound
	}
	if !brand.IsActive {
		return nil, ErrBrandInactive
	}

	amount := req.Amount
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !validMoney(amount) {
		return nil, ErrAmountPrecision
	}
	if !brand.AcceptsAmount(amount) {
		return nil, fmt.Errorf("%w: must be between %s and %s", ErrAmountOutOfRange,
			brand.MinAmount.StringFixed(2), brand.MaxAmount.StringFixed(2))
	}

	pin, err := s.newPIN()
	if err != nil {
		return nil, err
	}
	pinHash, err := s.hasher.Hash(pin)
	if err != nil {
		return nil, err
	}

	issuedAt := s.now()
	for attempt := 1; attempt <= maxInsertAttempts; attempt++ {
		number, err := s.allocateCardNumber(ctx)
		if err != nil {
			return nil, err
		}

		card := &model.GiftCard{
			ID:             uuid.New(),
			BrandID:        brand.ID,
			CardNumber:     number,
			CardCode:       s.newLookupCode(),
			PINHash:        pinHash,
			InitialBalance: amount,
			CurrentBalance: amount,
			Status:         model.StatusActive,
			IssuedAt:       issuedAt,
			ExpiresAt:      addCalendarMonths(issuedAt, brand.ExpiryMonths),
			OrderReference: strings.TrimSpace(req.OrderReference),
		}

		err = s.persist(ctx, card, actorID)
		if err == nil {
			span.SetAttributes(attribute.String("card.id", card.ID.String()))
			log.Info().
				Str("card_id", card.ID.String()).
				Str("brand_id", brand.ID.String()).
				Str("amount", amount.StringFixed(2)).
				Time("expires_at", card.ExpiresAt).
				Msg("card issued")
			return &model.IssuedCard{
				Card:          card,
				PrintedNumber: security.FormatCardNumber(card.CardNumber),
				PIN:           pin,
				ScanPayload:   model.NewScanPayload(card.CardCode),
			}, nil
		}
		if !errors.Is(err, ErrDuplicateIdentifier) {
			return nil, err
		}
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Msg("card identifier collided on insert, regenerating")
	}

	return nil, ErrIdentifierExhausted
}

// allocateCardNumber draws card numbers until one is not yet taken.
func (s *CardIssuer) allocateCardNumber(ctx context.Context) (string, error) {
	for i := 0; i < maxNumberAttempts; i++ {
		number, err := s.newCardNumber()
		if err != nil {
			return "", err
		}
		exists, err := s.stores.Cards.ExistsByNumber(ctx, number)
		if err != nil {
			return "", fmt.Errorf("check card number: %w", err)
		}
		if !exists {
			return number, nil
		}
	}
	log.Error().Int("attempts", maxNumberAttempts).Msg("card number space exhausted")
	return "", ErrIdentifierExhausted
}

// persist writes the card, its Purchase entry and its issuance status
// record in one transaction.
func (s *CardIssuer) persist(ctx context.Context, card *model.GiftCard, actorID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	if err := s.stores.Cards.Insert(ctx, tx, card); err != nil {
		return err
	}

	purchase := model.NewTransaction(card.ID, model.TxPurchase, decimal.Zero, card.InitialBalance)
	purchase.Description = "card issued"
	purchase.ActorID = actorID
	purchase.ReferenceID = card.OrderReference
	if err := s.stores.Transactions.Insert(ctx, tx, purchase); err != nil {
		return fmt.Errorf("insert purchase entry: %w", err)
	}

	issued := model.NewStatusChange(card.ID, "", model.StatusActive, "issued", actorID)
	if err := s.stores.StatusChanges.Insert(ctx, tx, issued); err != nil {
		return fmt.Errorf("insert status change: %w", err)
	}

	return tx.Commit(ctx)
}

// addCalendarMonths adds months to t, clamping the day to the end of the
// target month (Jan 31 + 1 month = Feb 28/29).
func addCalendarMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// utcNow is truncated to the database's timestamp precision so values
// returned to callers match what is stored.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
