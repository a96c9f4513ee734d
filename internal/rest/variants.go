package rest

import (
	"context"
	"errors"
	"net/http"

	"evoloop/domain"

	"github.com/AMFarhan21/fres"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/datatypes"
)

type (
	VariantHandler struct {
		validate  *validator.Validate
		lifecycle LifecycleService
	}

	LifecycleService interface {
		CreateVariant(ctx context.Context, variant *domain.Variant) error
		Approve(ctx context.Context, variantID uuid.UUID) error
		Reject(ctx context.Context, variantID uuid.UUID) error
		Kill(ctx context.Context, variantID uuid.UUID) error
		Sweep(ctx context.Context, siteID uuid.UUID) ([]uuid.UUID, error)
	}

	CreateVariantRequest struct {
		SiteID string         `json:"site_id" validate:"required,uuid"`
		Patch  map[string]any `json:"patch" validate:"required"`
		Source string         `json:"source" validate:"omitempty,oneof=generated manual"`
	}

	VariantActionRequest struct {
		Action string `json:"action" validate:"required,oneof=approve reject kill"`
	}
)

func NewVariantHandler(lifecycle LifecycleService) *VariantHandler {
	return &VariantHandler{
		validate:  validator.New(),
		lifecycle: lifecycle,
	}
}

// POST /api/v1/variants
//
// The initial status is decided by the owning site's autonomy mode, not the
// caller.
func (h *VariantHandler) Create(c echo.Context) error {
	var req CreateVariantRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	siteID, err := uuid.Parse(req.SiteID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid site_id"})
	}

	variant := domain.Variant{
		SiteID: siteID,
		Patch:  datatypes.JSONMap(req.Patch),
		Source: req.Source,
	}

	if err := h.lifecycle.CreateVariant(c.Request().Context(), &variant); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ResponseError{Message: "unknown site"})
		}
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusCreated, fres.Response.StatusCreated(variant))
}

// PATCH /api/v1/variants/:id
// body: { "action": "approve" | "reject" | "kill" }
func (h *VariantHandler) Action(c echo.Context) error {
	variantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid variant id"})
	}

	var req VariantActionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx := c.Request().Context()

	switch req.Action {
	case "approve":
		err = h.lifecycle.Approve(ctx, variantID)
	case "reject":
		err = h.lifecycle.Reject(ctx, variantID)
	case "kill":
		err = h.lifecycle.Kill(ctx, variantID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ResponseError{Message: "unknown variant"})
		}
		if errors.Is(err, domain.ErrInvalidTransition) {
			return c.JSON(http.StatusConflict, ResponseError{Message: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(echo.Map{
		"variant_id": variantID,
		"action":     req.Action,
	}))
}

// POST /api/v1/sites/:id/sweep — manual trigger of the retirement sweep.
func (h *VariantHandler) Sweep(c echo.Context) error {
	siteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid site id"})
	}

	killed, err := h.lifecycle.Sweep(c.Request().Context(), siteID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	if killed == nil {
		killed = []uuid.UUID{}
	}
	return c.JSON(http.StatusOK, fres.Response.StatusOK(echo.Map{"killed": killed}))
}
