package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/giftcard-ledger/internal/model"
)

// CardIssuerInterface defines the interface for issuing cards.
type CardIssuerInterface interface {
	Issue(ctx context.Context, req *model.IssueCardRequest, actorID string) (*model.IssuedCard, error)
}

// LedgerServiceInterface defines the interface for balance and status mutations.
type LedgerServiceInterface interface {
	Redeem(ctx context.Context, cardID uuid.UUID, pin string, amount decimal.Decimal, description, actorID string) (*model.LedgerResult, error)
	Void(ctx context.Context, cardID uuid.UUID, reason, actorID string) (*model.VoidResult, error)
	SetStatus(ctx context.Context, cardID uuid.UUID, target model.CardStatus, reason, actorID string) (*model.GiftCard, error)
	Adjust(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal, reason, actorID string) (*model.LedgerResult, error)
	Refund(ctx context.Context, cardID uuid.UUID, amount decimal.Decimal, referenceID, reason, actorID string) (*model.LedgerResult, error)
	CheckBalance(ctx context.Context, cardID uuid.UUID, pin string) (*model.BalanceView, error)
	ExpireIfDue(ctx context.Context, cardID uuid.UUID) (*model.GiftCard, error)
	History(ctx context.Context, cardID uuid.UUID) ([]model.Transaction, error)
	StatusHistory(ctx context.Context, cardID uuid.UUID) ([]model.StatusChange, error)
	Audit(ctx context.Context, cardID uuid.UUID) (*model.AuditReport, error)
}

// CardResolverInterface defines the interface for turning caller input into cards.
type CardResolverInterface interface {
	Lookup(ctx context.Context, cardNumber, code string) (*model.CardView, error)
	Identify(ctx context.Context, cardNumber, code string) (uuid.UUID, error)
	ScanPayload(ctx context.Context, cardID uuid.UUID) (*model.ScanPayload, error)
}

// CardHandler handles HTTP requests for gift cards, both the public
// PIN-guarded endpoints and the administrative ones.
type CardHandler struct {
	issuer    CardIssuerInterface
	ledger    LedgerServiceInterface
	resolver  CardResolverInterface
	validator *validator.Validate
}

// NewCardHandler creates a new CardHandler.
func NewCardHandler(issuer CardIssuerInterface, ledger LedgerServiceInterface, resolver CardResolverInterface, v *validator.Validate) *CardHandler {
	return &CardHandler{
		issuer:    issuer,
		ledger:    ledger,
		resolver:  resolver,
		validator: v,
	}
}

// bind decodes and validates the request body into req and returns the
// message to reject it with, or "" when it is acceptable. An empty body is
// accepted when allowEmpty is set.
func (h *CardHandler) bind(c *fiber.Ctx, req any, allowEmpty bool) string {
	if len(c.Body()) > 0 || !allowEmpty {
		if err := c.BodyParser(req); err != nil {
			return "invalid request body"
		}
	}
	if err := h.validator.Struct(req); err != nil {
		return formatValidationError(err)
	}
	return ""
}

func cardID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	return id, err == nil
}

// IssueCard handles POST /api/admin/cards. The response carries the PIN;
// it is never shown again.
func (h *CardHandler) IssueCard(c *fiber.Ctx) error {
	var req model.IssueCardRequest
	if msg := h.bind(c, &req, false); msg != "" {
		return badRequest(c, msg)
	}

	issued, err := h.issuer.Issue(c.UserContext(), &req, actorID(c))
	if err != nil {
		return writeError(c, err, "issue card")
	}
	return c.Status(fiber.StatusCreated).JSON(issued)
}

// LookupCard handles POST /api/cards/lookup. No PIN is needed and no
// balance is revealed.
func (h *CardHandler) LookupCard(c *fiber.Ctx) error {
	var req model.LookupRequest
	if msg := h.bind(c, &req, false); msg != "" {
		return badRequest(c, msg)
	}

	view, err := h.resolver.Lookup(c.UserContext(), req.CardNumber, req.Code)
	if err != nil {
		return writeError(c, err, "lookup card")
	}
	return c.JSON(view)
}

// CheckBalance handles POST /api/cards/balance.
func (h *CardHandler) CheckBalance(c *fiber.Ctx) error {
	var req model.BalanceRequest
	if msg := h.bind(c, &req, false); msg != "" {
		return badRequest(c, msg)
	}

	id, err := h.resolver.Identify(c.UserContext(), req.CardNumber, req.Code)
	if err != nil {
		return writeError(c, err, "check balance")
	}
	view, err := h.ledger.CheckBalance(c.UserContext(), id, req.PIN)
	if err != nil {
		return writeError(c, err, "check balance")
	}
	return c.JSON(view)
}

// RedeemCard handles POST /api/cards/redeem.
func (h *CardHandler) RedeemCard(c *fiber.Ctx) error {
	var req model.RedeemRequest
	if msg := h.bind(c, &req, false); msg != "" {
		return badRequest(c, msg)
	}

	id, err := h.resolver.Identify(c.UserContext(), req.CardNumber, req.Code)
	if err != nil {
		return writeError(c, err, "redeem card")
	}
	result, err := h.ledger.Redeem(c.UserContext(), id, req.PIN, req.Amount, req.Description, actorID(c))
	if err != nil {
		return writeError(c, err, "redeem card")
	}
	return c.JSON(result)
}

// GetCard handles GET /api/admin/cards/:id.
func (h *CardHandler) GetCard(c *fiber.Ctx) error {
	id, ok := cardID(c)
	if !ok {
		return badRequest(c, "invalid request: id must be a UUID")
	}

	card, err := h.ledger.ExpireIfDue(c.UserContext(), id)
	if err != nil {
		return writeError(c, err, "get card")
	}
	return c.JSON(card)
}

// VoidCard handles POST /api/admin/cards/:id/void.
func (h *CardHandler) VoidCard(c *fiber.Ctx) error {
	id, ok := cardID(c)
	if !ok {
		return badRequest(c, "invalid request: id must be a UUID")
	}
	var req model.VoidRequest
	if msg := h.bind(c, &req, true); msg != "" {
		return badRequest(c, msg)
	}

	result, err := h.ledger.Void(c.UserContext(), id, req.Reason, actorID(c))
	if err != nil {
		return writeError(c, err, "void card")
	}
	return c.JSON(result)
}

// SetStatus handles POST /api/admin/cards/:id/status.
func (h *CardHandler) SetStatus(c *fiber.Ctx) error {
	id, ok := cardID(c)
	if !ok {
		return badRequest(c, "invalid request: id must be a UUID")
	}
	var req model.StatusRequest
	if msg := h.bind(c, &req, false); msg != "" {
		return badRequest(c, msg)
	}

	card, err := h.ledger.SetStatus(c.UserContext(), id, model.CardStatus(req.Status), req.Reason, actorID(c))
	if err != nil {
		return writeError(c, err, "set card status")
	}
	return c.JSON(card)
}

// AdjustCard handles POST /api/admin/cards/:id/adjust.
func (h *CardHandler) AdjustCard(c *fiber.Ctx) error {
	id, ok := cardID(c)
	if !ok {
		return badRequest(c, "invalid request: id must be a UUID")
	}
	var req model.AdjustRequest
	if msg := h.bind(c, &req, false); msg != "" {
		return badRequest(c, msg)
	}

	result, err := h.ledger.Adjust(c.UserContext(), id, req.Amount, req.Reason, actorID(c))
	if err != nil {
		return writeError(c, err, "adjust card")
	}
	return c.JSON(result)
}

// RefundCard handles POST /api/admin/cards/:id/refund.
func (h *CardHandler) RefundCard(c *fiber.Ctx) error {
	id, ok := cardID(c)
	if !ok {
		return badRequest(c, "invalid request: id must be a UUID")
	}
	var req model.RefundRequest
	if msg := h.bind(c, &req, false); msg != "" {
		return badRequest(c, msg)
	}

	result, err := h.ledger.Refund(c.UserContext(), id, req.Amount, req.ReferenceID, req.Reason, actorID(c))
	if err != nil {
		return writeError(c, err, "refund card")
	}
	return c.JSON(result)
}

// ListTransactions handles GET /api/admin/cards/:id/transactions.
func (h *CardHandler) ListTransactions(c *fiber.Ctx) error {
	id, ok := cardID(c)
	if !ok {
		return badRequest(c, "invalid request: id must be a UUID")
	}

	entries, err := h.ledger.History(c.UserContext(), id)
	if err != nil {
		return writeError(c, err, "list transactions")
	}
	return c.JSON(fiber.Map{"card_id": id, "transactions": entries})
}

// StatusHistory handles GET /api/admin/cards/:id/status-history.
func (h *CardHandler) StatusHistory(c *fiber.Ctx) error {
	id, ok := cardID(c)
	if !ok {
		return badRequest(c, "invalid request: id must be a UUID")
	}

	changes, err := h.ledger.StatusHistory(c.UserContext(), id)
	if err != nil {
		return writeError(c, err, "status history")
	}
	return c.JSON(fiber.Map{"card_id": id, "status_changes": changes})
}

// AuditCard handles GET /api/admin/cards/:id/audit.
func (h *CardHandler) AuditCard(c *fiber.Ctx) error {
	id, ok := cardID(c)
	if !ok {
		return badRequest(c, "invalid request: id must be a UUID")
	}

	report, err := h.ledger.Audit(c.UserContext(), id)
	if err != nil {
		return writeError(c, err, "audit card")
	}
	return c.JSON(report)
}

// ScanPayload handles GET /api/admin/cards/:id/scan-payload.
func (h *CardHandler) ScanPayload(c *fiber.Ctx) error {
	id, ok := cardID(c)
	if !ok {
		return badRequest(c, "invalid request: id must be a UUID")
	}

	payload, err := h.resolver.ScanPayload(c.UserContext(), id)
	if err != nil {
		return writeError(c, err, "scan payload")
	}
	return c.JSON(payload)
}
