package rest

import (
	"context"
	"errors"
	"net/http"

	"evoloop/business/allocator"
	"evoloop/domain"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type (
	EventsHandler struct {
		validate  *validator.Validate
		allocator AllocatorService
		sites     SiteKeyVerifier
	}

	AllocatorService interface {
		RecordImpression(ctx context.Context, siteID, variantID uuid.UUID, visitorID string, eventCtx map[string]any) error
		RecordConversion(ctx context.Context, siteID, variantID uuid.UUID, visitorID string, eventCtx map[string]any) error
	}

	EventRequest struct {
		SiteID    string         `json:"site_id" validate:"required,uuid"`
		VariantID string         `json:"variant_id" validate:"required,uuid"`
		VisitorID string         `json:"visitor_id" validate:"required"`
		EventType string         `json:"event_type" validate:"required,oneof=impression conversion"`
		Context   map[string]any `json:"context"`
	}
)

func NewEventsHandler(allocator AllocatorService, sites SiteKeyVerifier) *EventsHandler {
	return &EventsHandler{
		validate:  validator.New(),
		allocator: allocator,
		sites:     sites,
	}
}

// POST /api/v1/events
func (h *EventsHandler) Track(c echo.Context) error {
	var req EventRequest
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
	variantID, err := uuid.Parse(req.VariantID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid variant_id"})
	}

	ctx := c.Request().Context()
	if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
		ctx = allocator.WithTraceID(ctx, rid)
	}

	apiKey := c.Request().Header.Get("X-Evoloop-Key")
	if apiKey == "" {
		return c.JSON(http.StatusUnauthorized, ResponseError{Message: "missing api key"})
	}
	if err := h.sites.VerifyAPIKey(ctx, siteID, apiKey); err != nil {
		return c.JSON(http.StatusUnauthorized, ResponseError{Message: "invalid api key"})
	}

	switch req.EventType {
	case domain.EventImpression:
		err = h.allocator.RecordImpression(ctx, siteID, variantID, req.VisitorID, req.Context)
	case domain.EventConversion:
		err = h.allocator.RecordConversion(ctx, siteID, variantID, req.VisitorID, req.Context)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ResponseError{Message: "unknown variant"})
		}
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusAccepted, echo.Map{"status": "recorded"})
}
