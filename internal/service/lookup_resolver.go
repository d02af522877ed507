package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/giftcard-ledger/internal/model"
	"github.com/fairyhunter13/giftcard-ledger/internal/security"
)

// CardExpirer applies lazy expiry to a card and returns its current state.
type CardExpirer interface {
	ExpireIfDue(ctx context.Context, cardID uuid.UUID) (*model.GiftCard, error)
}

// LookupResolver finds cards by card number, lookup code or scan payload.
type LookupResolver struct {
	cards   CardRepositoryInterface
	expirer CardExpirer
	now     func() time.Time
}

// NewLookupResolver creates a LookupResolver. expirer may be nil, in which
// case resolved cards are returned without lazy expiry.
func NewLookupResolver(cards CardRepositoryInterface, expirer CardExpirer) *LookupResolver {
	return &LookupResolver{cards: cards, expirer: expirer, now: utcNow}
}

// ParseIdentifier turns caller input into an Identifier. code takes
// precedence over cardNumber when both are given; a code that does not parse
// falls back to cardNumber. Each field is first parsed as a scan payload and
// then read as a raw lookup code or raw card number, according to the field
// it came from. ok is false when the input cannot name any card.
func ParseIdentifier(cardNumber, code string) (model.Identifier, bool) {
	if id, ok := parseField(code, model.IdentifierLookupCode); ok {
		return id, true
	}
	return parseField(cardNumber, model.IdentifierCardNumber)
}

func parseField(input string, kind model.IdentifierKind) (model.Identifier, bool) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return model.Identifier{}, false
	}

	if lookup, ok := parseScanPayload(raw); ok {
		return model.Identifier{Kind: model.IdentifierLookupCode, Value: lookup}, true
	}

	switch kind {
	case model.IdentifierLookupCode:
		lookup, ok := security.NormalizeLookupCode(raw)
		return model.Identifier{Kind: kind, Value: lookup}, ok
	default:
		number := security.NormalizeCardNumber(raw)
		return model.Identifier{Kind: kind, Value: number}, security.ValidCardNumber(number)
	}
}

// parseScanPayload returns the normalized lookup code carried by a scan
// payload. Unknown types, other versions and missing or malformed codes are
// rejected so the caller falls back to raw resolution.
func parseScanPayload(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "{") {
		return "", false
	}
	var p model.ScanPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return "", false
	}
	if p.Type != model.ScanPayloadType || p.Version != model.ScanPayloadVersion || p.Code == "" {
		return "", false
	}
	return security.NormalizeLookupCode(p.Code)
}

// Resolve returns the card named by id, applying lazy expiry.
// Returns ErrCardNotFound if no card matches.
func (r *LookupResolver) Resolve(ctx context.Context, id model.Identifier) (*model.GiftCard, error) {
	card, err := r.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.expirer != nil && card.Status == model.StatusActive && card.ExpiredAt(r.now()) {
		return r.expirer.ExpireIfDue(ctx, card.ID)
	}
	return card, nil
}

func (r *LookupResolver) find(ctx context.Context, id model.Identifier) (*model.GiftCard, error) {
	var (
		card *model.GiftCard
		err  error
	)
	switch id.Kind {
	case model.IdentifierCardNumber:
		card, err = r.cards.GetByNumber(ctx, id.Value)
	case model.IdentifierLookupCode:
		card, err = r.cards.GetByCode(ctx, id.Value)
	default:
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", id.Kind, err)
	}
	if card == nil {
		return nil, ErrCardNotFound
	}
	return card, nil
}

// ResolveInput parses the caller's fields and resolves the card.
func (r *LookupResolver) ResolveInput(ctx context.Context, cardNumber, code string) (*model.GiftCard, error) {
	id, ok := ParseIdentifier(cardNumber, code)
	if !ok {
		return nil, ErrCardNotFound
	}
	return r.Resolve(ctx, id)
}

// Identify returns the ID of the card named by the caller's fields without
// touching its status. PIN-guarded operations use it so that the PIN is
// checked before anything about the card's state is applied or revealed.
func (r *LookupResolver) Identify(ctx context.Context, cardNumber, code string) (uuid.UUID, error) {
	id, ok := ParseIdentifier(cardNumber, code)
	if !ok {
		return uuid.Nil, ErrCardNotFound
	}
	card, err := r.find(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	return card.ID, nil
}

// Lookup resolves a card and returns its public view, which carries no
// balance and requires no PIN.
func (r *LookupResolver) Lookup(ctx context.Context, cardNumber, code string) (*model.CardView, error) {
	card, err := r.ResolveInput(ctx, cardNumber, code)
	if err != nil {
		return nil, err
	}
	return &model.CardView{
		CardNumber: card.CardNumber,
		BrandID:    card.BrandID,
		Status:     card.Status,
		ExpiresAt:  card.ExpiresAt,
	}, nil
}

// ScanPayload returns the payload to encode into the card's QR artifact.
func (r *LookupResolver) ScanPayload(ctx context.Context, cardID uuid.UUID) (*model.ScanPayload, error) {
	card, err := r.cards.GetByID(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("get card: %w", err)
	}
	if card == nil {
		return nil, ErrCardNotFound
	}
	payload := model.NewScanPayload(card.CardCode)
	return &payload, nil
}
