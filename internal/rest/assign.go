package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"evoloop/domain"
	"evoloop/pkg/logger"
	"evoloop/pkg/metrics"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/datatypes"
)

type (
	AssignHandler struct {
		validate    *validator.Validate
		assignments AssignmentService
		sites       SiteKeyVerifier
	}

	AssignmentService interface {
		Assign(ctx context.Context, siteID uuid.UUID, visitorID string) (domain.Variant, error)
	}

	SiteKeyVerifier interface {
		VerifyAPIKey(ctx context.Context, siteID uuid.UUID, apiKey string) error
	}

	AssignQuery struct {
		SiteID    string `query:"site_id" validate:"required,uuid"`
		VisitorID string `query:"visitor_id" validate:"required"`
	}

	AssignResponse struct {
		VariantID uuid.UUID         `json:"variant_id"`
		Patch     datatypes.JSONMap `json:"patch"`
	}
)

func NewAssignHandler(assignments AssignmentService, sites SiteKeyVerifier) *AssignHandler {
	return &AssignHandler{
		validate:    validator.New(),
		assignments: assignments,
		sites:       sites,
	}
}

// GET /api/v1/assign?site_id=...&visitor_id=...
//
// Allocation errors never reach the visitor as failures: any problem on this
// path answers 200 with a null body and the caller renders the unmodified
// page (control experience).
func (h *AssignHandler) Assign(c echo.Context) error {
	start := time.Now()
	defer func() {
		metrics.AssignLatency.Observe(time.Since(start).Seconds())
	}()

	var q AssignQuery
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&q); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	siteID, err := uuid.Parse(q.SiteID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid site_id"})
	}

	ctx := c.Request().Context()

	apiKey := c.Request().Header.Get("X-Evoloop-Key")
	if apiKey == "" {
		return c.JSON(http.StatusUnauthorized, ResponseError{Message: "missing api key"})
	}
	if err := h.sites.VerifyAPIKey(ctx, siteID, apiKey); err != nil {
		return c.JSON(http.StatusUnauthorized, ResponseError{Message: "invalid api key"})
	}

	variant, err := h.assignments.Assign(ctx, siteID, q.VisitorID)
	if err != nil {
		if !errors.Is(err, domain.ErrNoActiveVariants) {
			logger.Error("assignment failed, serving control",
				"site_id", siteID,
				"visitor_id", q.VisitorID,
				"error", err,
			)
		}
		metrics.AssignmentsTotal.WithLabelValues("fallback").Inc()
		return c.JSON(http.StatusOK, nil)
	}

	metrics.AssignmentsTotal.WithLabelValues("assigned").Inc()

	return c.JSON(http.StatusOK, AssignResponse{
		VariantID: variant.ID,
		Patch:     variant.Patch,
	})
}
