package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/giftcard-ledger/internal/model"
	"github.com/fairyhunter13/giftcard-ledger/internal/security"
)

// SystemActor attributes automatic transitions such as lazy expiry.
const SystemActor = "system"

// LedgerService applies every balance and status mutation to a card.
//
// Each mutation locks the card row (SELECT ... FOR UPDATE) for the duration
// of one transaction and writes the card back guarded by its version, so
// two mutations of the same card are strictly serialized and the cached
// balance always matches the ledger. Different cards never contend.
type LedgerService struct {
	pool   TxBeginner
	stores Stores
	hasher PINHasher
	guard  PINAttemptGuard
	now    func() time.Time
}

// NewLedgerService creates a LedgerService backed by pool. guard may be nil,
// in which case PIN attempts are not throttled.
func NewLedgerService(pool *pgxpool.Pool, stores Stores, hasher PINHasher, guard PINAttemptGuard) *LedgerService {
	return NewLedgerServiceWithTxBeginner(pool, stores, hasher, guard)
}

// NewLedgerServiceWithTxBeginner creates a LedgerService with a custom TxBeginner.
// Primarily used for testing.
func NewLedgerServiceWithTxBeginner(pool TxBeginner, stores Stores, hasher PINHasher, guard PINAttemptGuard) *LedgerService {
	if guard == nil {
		guard = noopGuard{}
	}
	return &LedgerService{
		pool:   pool,
		stores: stores,
		hasher: hasher,
		guard:  guard,
		now:    utcNow,
	}
}

// Redeem spends amount from the card after verifying the PIN.
//
// Checks run in this order: card exists, PIN matches, card is active, card
// has not passed its expiry date, balance covers amount. A card found past
// its expiry date is moved to Expired (and that change is committed) before
// the redemption is rejected.
func (s *LedgerService) Redeem(ctx context.Context, cardID uuid.UUID, pin string, amount decimal.Decimal, description, actorID string) (_ *model.LedgerResult, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "LedgerService.Redeem")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("card.id", cardID.String()))

	if err := validatePositive(amount); err != nil {
		return nil, err
	}

	snapshot, err := s.getCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPIN(ctx, snapshot, pin); err != nil {
		return nil, err
	}

	var result *model.LedgerResult
	err = s.withLockedCard(ctx, cardID, func(tx pgx.Tx, card *model.GiftCard) error {
		if card.Status != model.StatusActive {
			return &CardStatusError{Status: card.Status}
		}
		if expired, err := s.expireIfDue(ctx, tx, card); err != nil {
			return err
		} else if expired {
			return commitThenFail(ErrCardExpired)
		}
		if amount.GreaterThan(card.CurrentBalance) {
			return &InsufficientBalanceError{Available: card.CurrentBalance, Requested: amount}
		}

		before := card.CurrentBalance
		card.CurrentBalance = before.Sub(amount)
		if card.ActivatedAt == nil {
			now := s.now()
			card.ActivatedAt = &now
		}
		if !card.CurrentBalance.IsPositive() {
			if err := s.transition(ctx, tx, card, model.StatusDepleted, "balance exhausted", actorID); err != nil {
				return err
			}
		}

		entry := model.NewTransaction(card.ID, model.TxRedemption, before, amount.Neg())
		entry.Description = description
		entry.ActorID = actorID
		if err := s.write(ctx, tx, card, entry); err != nil {
			return err
		}

		result = ledgerResult(card, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("card_id", cardID.String()).
		Str("amount", amount.StringFixed(2)).
		Str("balance_after", result.NewBalance.StringFixed(2)).
		Str("status", string(result.Status)).
		Msg("card redeemed")
	return result, nil
}

// Void forfeits the card's remaining balance and marks it Voided. A card
// with no balance left is voided without a ledger entry.
func (s *LedgerService) Void(ctx context.Context, cardID uuid.UUID, reason, actorID string) (_ *model.VoidResult, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "LedgerService.Void")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("card.id", cardID.String()))

	var result *model.VoidResult
	err = s.withLockedCard(ctx, cardID, func(tx pgx.Tx, card *model.GiftCard) error {
		var err error
		result, err = s.voidLocked(ctx, tx, card, reason, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *LedgerService) voidLocked(ctx context.Context, tx pgx.Tx, card *model.GiftCard, reason, actorID string) (*model.VoidResult, error) {
	if card.Status == model.StatusVoided {
		return nil, &CardStatusError{Status: card.Status}
	}

	result := &model.VoidResult{
		CardID:         card.ID,
		Forfeited:      card.CurrentBalance,
		PreviousStatus: card.Status,
	}

	var entry *model.Transaction
	if card.CurrentBalance.IsPositive() {
		entry = model.NewTransaction(card.ID, model.TxVoid, card.CurrentBalance, card.CurrentBalance.Neg())
		entry.Description = reason
		entry.ActorID = actorID
		card.CurrentBalance = entry.BalanceAfter
		result.TransactionID = &entry.ID
	}
	if err := s.transition(ctx, tx, card, model.StatusVoided, reason, actorID); err != nil {
		return nil, err
	}
	if err := s.write(ctx, tx, card, entry); err != nil {
		return nil, err
	}

	result.Status = card.Status
	log.Info().
		Str("card_id", card.ID.String()).
		Str("forfeited", result.Forfeited.StringFixed(2)).
		Str("previous_status", string(result.PreviousStatus)).
		Str("actor_id", actorID).
		Msg("card voided")
	return result, nil
}

// SetStatus applies an administrative status change. Depleted and Expired
// are reached automatically and cannot be requested. Voided delegates to
// void semantics. Reactivation requires a positive balance and an expiry
// date that has not passed.
func (s *LedgerService) SetStatus(ctx context.Context, cardID uuid.UUID, target model.CardStatus, reason, actorID string) (_ *model.GiftCard, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "LedgerService.SetStatus")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("card.id", cardID.String()),
		attribute.String("card.target_status", string(target)),
	)

	switch target {
	case model.StatusActive, model.StatusSuspended, model.StatusVoided:
	case model.StatusDepleted, model.StatusExpired:
		return nil, fmt.Errorf("%w: %s is applied automatically", ErrInvalidTransition, target)
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, target)
	}

	var result *model.GiftCard
	err = s.withLockedCard(ctx, cardID, func(tx pgx.Tx, card *model.GiftCard) error {
		if target == model.StatusVoided {
			if _, err := s.voidLocked(ctx, tx, card, reason, actorID); err != nil {
				return err
			}
			result = card
			return nil
		}

		if target == model.StatusActive && card.ExpiredAt(s.now()) {
			return fmt.Errorf("%w: expired at %s", ErrPastExpiry, card.ExpiresAt.UTC().Format(time.RFC3339))
		}
		if target == model.StatusActive && !card.CurrentBalance.IsPositive() {
			return ErrCannotReactivate
		}
		from := card.Status
		if err := s.transition(ctx, tx, card, target, reason, actorID); err != nil {
			return err
		}
		if err := s.write(ctx, tx, card, nil); err != nil {
			return err
		}

		log.Info().
			Str("card_id", card.ID.String()).
			Str("from", string(from)).
			Str("to", string(target)).
			Str("actor_id", actorID).
			Msg("card status changed")
		result = card
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Adjust applies a signed administrative correction. The resulting balance
// must stay within [0, initial balance]. Reaching zero depletes an active
// card; regaining value reactivates a depleted one.
func (s *LedgerService) Adjust(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal, reason, actorID string) (_ *model.LedgerResult, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "LedgerService.Adjust")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("card.id", cardID.String()))

	if amount.IsZero() {
		return nil, ErrZeroAdjustment
	}
	if !validMoney(amount) {
		return nil, ErrAmountPrecision
	}

	var result *model.LedgerResult
	err = s.withLockedCard(ctx, cardID, func(tx pgx.Tx, card *model.GiftCard) error {
		if card.Status == model.StatusVoided {
			return &CardStatusError{Status: card.Status}
		}

		before := card.CurrentBalance
		after := before.Add(amount)
		if after.IsNegative() {
			return &InsufficientBalanceError{Available: before, Requested: amount.Neg()}
		}
		if after.GreaterThan(card.InitialBalance) {
			return ErrExceedsInitialBalance
		}
		card.CurrentBalance = after

		if err := s.settleStatus(ctx, tx, card, reason, actorID); err != nil {
			return err
		}

		entry := model.NewTransaction(card.ID, model.TxAdjustment, before, amount)
		entry.Description = reason
		entry.ActorID = actorID
		if err := s.write(ctx, tx, card, entry); err != nil {
			return err
		}
		result = ledgerResult(card, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("card_id", cardID.String()).
		Str("amount", amount.StringFixed(2)).
		Str("balance_after", result.NewBalance.StringFixed(2)).
		Str("actor_id", actorID).
		Msg("card adjusted")
	return result, nil
}

// Refund restores previously redeemed value to an active or depleted card.
// The balance may not exceed the initial balance.
func (s *LedgerService) Refund(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal, referenceID, reason, actorID string) (_ *model.LedgerResult, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "LedgerService.Refund")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("card.id", cardID.String()))

	if err := validatePositive(amount); err != nil {
		return nil, err
	}

	var result *model.LedgerResult
	err = s.withLockedCard(ctx, cardID, func(tx pgx.Tx, card *model.GiftCard) error {
		if card.Status != model.StatusActive && card.Status != model.StatusDepleted {
			return &CardStatusError{Status: card.Status}
		}

		before := card.CurrentBalance
		after := before.Add(amount)
		if after.GreaterThan(card.InitialBalance) {
			return ErrExceedsInitialBalance
		}
		card.CurrentBalance = after

		if err := s.settleStatus(ctx, tx, card, "refund", actorID); err != nil {
			return err
		}

		entry := model.NewTransaction(card.ID, model.TxRefund, before, amount)
		entry.Description = reason
		entry.ActorID = actorID
		entry.ReferenceID = referenceID
		if err := s.write(ctx, tx, card, entry); err != nil {
			return err
		}
		result = ledgerResult(card, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("card_id", cardID.String()).
		Str("amount", amount.StringFixed(2)).
		Str("reference_id", referenceID).
		Str("balance_after", result.NewBalance.StringFixed(2)).
		Msg("card refunded")
	return result, nil
}

// CheckBalance reveals the card's balance after verifying the PIN. An
// active card found past its expiry date is expired first.
func (s *LedgerService) CheckBalance(ctx context.Context, cardID uuid.UUID, pin string) (*model.BalanceView, error) {
	card, err := s.getCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if err := s.checkPIN(ctx, card, pin); err != nil {
		return nil, err
	}

	if card.Status == model.StatusActive && card.ExpiredAt(s.now()) {
		card, err = s.ExpireIfDue(ctx, cardID)
		if err != nil {
			return nil, err
		}
	}

	return &model.BalanceView{
		CardNumber:     card.CardNumber,
		InitialBalance: card.InitialBalance,
		CurrentBalance: card.CurrentBalance,
		Status:         card.Status,
		ActivatedAt:    card.ActivatedAt,
		ExpiresAt:      card.ExpiresAt,
	}, nil
}

// ExpireIfDue moves an active card past its expiry date to Expired and
// returns the card's current state. Calling it again is a no-op.
func (s *LedgerService) ExpireIfDue(ctx context.Context, cardID uuid.UUID) (*model.GiftCard, error) {
	var result *model.GiftCard
	err := s.withLockedCard(ctx, cardID, func(tx pgx.Tx, card *model.GiftCard) error {
		if _, err := s.expireIfDue(ctx, tx, card); err != nil {
			return err
		}
		result = card
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// History returns the card's ledger in the order it was written.
func (s *LedgerService) History(ctx context.Context, cardID uuid.UUID) ([]model.Transaction, error) {
	if _, err := s.getCard(ctx, cardID); err != nil {
		return nil, err
	}
	entries, err := s.stores.Transactions.ListByCard(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return entries, nil
}

// StatusHistory returns the card's status changes, oldest first.
func (s *LedgerService) StatusHistory(ctx context.Context, cardID uuid.UUID) ([]model.StatusChange, error) {
	if _, err := s.getCard(ctx, cardID); err != nil {
		return nil, err
	}
	changes, err := s.stores.StatusChanges.ListByCard(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("list status changes: %w", err)
	}
	return changes, nil
}

// Audit replays the card's ledger and reports any disagreement with the
// stored balance.
func (s *LedgerService) Audit(ctx context.Context, cardID uuid.UUID) (*model.AuditReport, error) {
	card, err := s.getCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	entries, err := s.stores.Transactions.ListByCard(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	report := VerifyLedger(card, entries)
	if !report.Consistent {
		log.Error().
			Str("card_id", cardID.String()).
			Strs("violations", report.Violations).
			Msg("ledger audit failed")
	}
	return report, nil
}

// committedRejection carries an error whose accompanying writes must
// still be committed, such as the Expired transition found during a
// redemption.
type committedRejection struct {
	err error
}

func (e *committedRejection) Error() string { return e.err.Error() }
func (e *committedRejection) Unwrap() error { return e.err }

func commitThenFail(err error) error {
	return &committedRejection{err: err}
}

// withLockedCard runs fn with the card row locked. fn's writes commit when it
// returns nil or a committedRejection; any other error rolls them back.
func (s *LedgerService) withLockedCard(ctx context.Context, cardID uuid.UUID, fn func(tx pgx.Tx, card *model.GiftCard) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // Safe: no-op if committed

	card, err := s.stores.Cards.GetForUpdate(ctx, tx, cardID)
	if err != nil {
		if errors.Is(err, ErrCardNotFound) {
			return ErrCardNotFound
		}
		return fmt.Errorf("get card for update: %w", err)
	}

	err = fn(tx, card)
	var rejection *committedRejection
	if err != nil && !errors.As(err, &rejection) {
		return err
	}

	if cerr := tx.Commit(ctx); cerr != nil {
		return fmt.Errorf("commit tx: %w", cerr)
	}
	if rejection != nil {
		return rejection.err
	}
	return nil
}

// expireIfDue must run with the card locked.
func (s *LedgerService) expireIfDue(ctx context.Context, tx pgx.Tx, card *model.GiftCard) (bool, error) {
	if card.Status != model.StatusActive || !card.ExpiredAt(s.now()) {
		return false, nil
	}
	if err := s.transition(ctx, tx, card, model.StatusExpired, "expiry date passed", SystemActor); err != nil {
		return false, err
	}
	if err := s.write(ctx, tx, card, nil); err != nil {
		return false, err
	}
	log.Info().
		Str("card_id", card.ID.String()).
		Time("expires_at", card.ExpiresAt).
		Msg("card expired")
	return true, nil
}

// settleStatus applies the automatic transitions that follow a balance
// change: an active card with nothing left is depleted, a depleted card
// that regained value is active again.
func (s *LedgerService) settleStatus(ctx context.Context, tx pgx.Tx, card *model.GiftCard, reason, actorID string) error {
	switch {
	case card.Status == model.StatusActive && !card.CurrentBalance.IsPositive():
		return s.transition(ctx, tx, card, model.StatusDepleted, "balance exhausted", actorID)
	case card.Status == model.StatusDepleted && card.CurrentBalance.IsPositive():
		return s.transition(ctx, tx, card, model.StatusActive, reason, actorID)
	}
	return nil
}

// transition records a status change and applies it to card in memory.
func (s *LedgerService) transition(ctx context.Context, tx pgx.Tx, card *model.GiftCard, to model.CardStatus, reason, actorID string) error {
	if !card.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, card.Status, to)
	}
	change := model.NewStatusChange(card.ID, card.Status, to, reason, actorID)
	if err := s.stores.StatusChanges.Insert(ctx, tx, change); err != nil {
		return fmt.Errorf("insert status change: %w", err)
	}
	card.Status = to
	return nil
}

// write saves the card and appends entry (if any) in the current transaction.
func (s *LedgerService) write(ctx context.Context, tx pgx.Tx, card *model.GiftCard, entry *model.Transaction) error {
	if err := s.stores.Cards.Save(ctx, tx, card); err != nil {
		return err
	}
	if entry == nil {
		return nil
	}
	if err := s.stores.Transactions.Insert(ctx, tx, entry); err != nil {
		return fmt.Errorf("insert %s entry: %w", entry.Type, err)
	}
	return nil
}

func (s *LedgerService) getCard(ctx context.Context, cardID uuid.UUID) (*model.GiftCard, error) {
	card, err := s.stores.Cards.GetByID(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("get card: %w", err)
	}
	if card == nil {
		return nil, ErrCardNotFound
	}
	return card, nil
}

// checkPIN verifies pin against the card's hash. The hash never changes
// after issuance, so a snapshot read outside the row lock is sufficient.
func (s *LedgerService) checkPIN(ctx context.Context, card *model.GiftCard, pin string) error {
	locked, err := s.guard.Locked(ctx, card.ID)
	if err != nil {
		log.Warn().Err(err).Str("card_id", card.ID.String()).Msg("pin guard unavailable")
	} else if locked {
		return ErrPINLocked
	}

	if !s.hasher.Verify(card.PINHash, pin) {
		if err := s.guard.RecordFailure(ctx, card.ID); err != nil {
			log.Warn().Err(err).Str("card_id", card.ID.String()).Msg("record pin failure")
		}
		log.Info().
			Str("card_id", card.ID.String()).
			Str("card_number", security.MaskCardNumber(card.CardNumber)).
			Msg("invalid pin")
		return ErrInvalidPIN
	}

	if err := s.guard.Reset(ctx, card.ID); err != nil {
		log.Warn().Err(err).Str("card_id", card.ID.String()).Msg("reset pin failures")
	}
	return nil
}

func validatePositive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !validMoney(amount) {
		return ErrAmountPrecision
	}
	return nil
}

// ledgerResult reports redemptions as the positive amount spent; other
// entry types keep their signed amount.
func ledgerResult(card *model.GiftCard, entry *model.Transaction) *model.LedgerResult {
	amount := entry.Amount
	if entry.Type == model.TxRedemption {
		amount = amount.Neg()
	}
	return &model.LedgerResult{
		CardID:          card.ID,
		TransactionID:   entry.ID,
		Type:            entry.Type,
		Amount:          amount,
		PreviousBalance: entry.BalanceBefore,
		NewBalance:      entry.BalanceAfter,
		Status:          card.Status,
	}
}

type noopGuard struct{}

func (noopGuard) Locked(context.Context, uuid.UUID) (bool, error) { return false, nil }
func (noopGuard) RecordFailure(context.Context, uuid.UUID) error  { return nil }
func (noopGuard) Reset(context.Context, uuid.UUID) error          { return nil }
