package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/fairyhunter13/giftcard-ledger/internal/model"
)

// BrandServiceInterface defines the interface for brand catalog operations.
type BrandServiceInterface interface {
	Create(ctx context.Context, req *model.CreateBrandRequest) (*model.Brand, error)
	Update(ctx context.Context, id uuid.UUID, req *model.UpdateBrandRequest) (*model.Brand, error)
	List(ctx context.Context, includeInactive bool) ([]model.Brand, error)
	DeactivateOrDelete(ctx context.Context, id uuid.UUID) (model.BrandRemoval, error)
}

// BrandHandler handles HTTP requests for the brand catalog.
type BrandHandler struct {
	service   BrandServiceInterface
	validator *validator.Validate
}

// NewBrandHandler creates a new BrandHandler with the given service and validator.
func NewBrandHandler(svc BrandServiceInterface, v *validator.Validate) *BrandHandler {
	return &BrandHandler{service: svc, validator: v}
}

// ListBrands handles GET /api/brands. Inactive brands are included only
// with ?include_inactive=true.
func (h *BrandHandler) ListBrands(c *fiber.Ctx) error {
	brands, err := h.service.List(c.UserContext(), c.QueryBool("include_inactive"))
	if err != nil {
		return writeError(c, err, "list brands")
	}
	return c.JSON(fiber.Map{"brands": brands})
}

// CreateBrand handles POST /api/admin/brands.
func (h *BrandHandler) CreateBrand(c *fiber.Ctx) error {
	var req model.CreateBrandRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, formatValidationError(err))
	}

	brand, err := h.service.Create(c.UserContext(), &req)
	if err != nil {
		return writeError(c, err, "create brand")
	}
	return c.Status(fiber.StatusCreated).JSON(brand)
}

// UpdateBrand handles PATCH /api/admin/brands/:id.
func (h *BrandHandler) UpdateBrand(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid request: id must be a UUID")
	}

	var req model.UpdateBrandRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, formatValidationError(err))
	}

	brand, err := h.service.Update(c.UserContext(), id, &req)
	if err != nil {
		return writeError(c, err, "update brand")
	}
	return c.JSON(brand)
}

// DeleteBrand handles DELETE /api/admin/brands/:id. The response says
// whether the brand was deleted or only deactivated.
func (h *BrandHandler) DeleteBrand(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid request: id must be a UUID")
	}

	removal, err := h.service.DeactivateOrDelete(c.UserContext(), id)
	if err != nil {
		return writeError(c, err, "delete brand")
	}
	return c.JSON(fiber.Map{"id": id, "result": removal})
}
