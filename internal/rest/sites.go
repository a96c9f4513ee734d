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
)

type (
	SiteHandler struct {
		validate *validator.Validate
		sites    SiteService
		reports  ReportService
		variants VariantListService
	}

	SiteService interface {
		CreateSite(ctx context.Context, site *domain.Site) (string, error)
		GetSite(ctx context.Context, id uuid.UUID) (domain.Site, error)
		ListSites(ctx context.Context) ([]domain.Site, error)
		UpdateAutonomy(ctx context.Context, id uuid.UUID, mode string) (domain.Site, error)
		Pause(ctx context.Context, id uuid.UUID) error
		Resume(ctx context.Context, id uuid.UUID) error
	}

	ReportService interface {
		Report(ctx context.Context, siteID uuid.UUID) ([]domain.VariantReport, error)
	}

	VariantListService interface {
		FindBySite(ctx context.Context, siteID uuid.UUID) ([]domain.Variant, error)
	}

	CreateSiteRequest struct {
		Name         string `json:"name" validate:"required"`
		URL          string `json:"url" validate:"required,url"`
		AutonomyMode string `json:"autonomy_mode" validate:"omitempty,oneof=supervised training_wheels full_auto"`
	}

	UpdateSiteRequest struct {
		AutonomyMode string `json:"autonomy_mode" validate:"omitempty,oneof=supervised training_wheels full_auto"`
		Status       string `json:"status" validate:"omitempty,oneof=active paused"`
	}

	CreateSiteResponse struct {
		Site   domain.Site `json:"site"`
		APIKey string      `json:"api_key"`
	}
)

func NewSiteHandler(sites SiteService, reports ReportService, variants VariantListService) *SiteHandler {
	return &SiteHandler{
		validate: validator.New(),
		sites:    sites,
		reports:  reports,
		variants: variants,
	}
}

// POST /api/v1/sites
//
// The api_key in the response is shown exactly once; only its hash survives.
func (h *SiteHandler) Create(c echo.Context) error {
	var req CreateSiteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	s := domain.Site{
		Name:         req.Name,
		URL:          req.URL,
		AutonomyMode: req.AutonomyMode,
	}

	apiKey, err := h.sites.CreateSite(c.Request().Context(), &s)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusCreated, fres.Response.StatusCreated(CreateSiteResponse{
		Site:   s,
		APIKey: apiKey,
	}))
}

// GET /api/v1/sites
func (h *SiteHandler) List(c echo.Context) error {
	sites, err := h.sites.ListSites(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(sites))
}

// GET /api/v1/sites/:id
func (h *SiteHandler) Get(c echo.Context) error {
	siteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid site id"})
	}

	s, err := h.sites.GetSite(c.Request().Context(), siteID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ResponseError{Message: "unknown site"})
		}
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(s))
}

// PATCH /api/v1/sites/:id
func (h *SiteHandler) Update(c echo.Context) error {
	siteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid site id"})
	}

	var req UpdateSiteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}
	if err := h.validate.Struct(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: err.Error()})
	}

	ctx := c.Request().Context()

	if req.AutonomyMode != "" {
		if _, err := h.sites.UpdateAutonomy(ctx, siteID, req.AutonomyMode); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return c.JSON(http.StatusNotFound, ResponseError{Message: "unknown site"})
			}
			return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
		}
	}

	switch req.Status {
	case domain.SiteStatusPaused:
		err = h.sites.Pause(ctx, siteID)
	case domain.SiteStatusActive:
		err = h.sites.Resume(ctx, siteID)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ResponseError{Message: "unknown site"})
		}
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	s, err := h.sites.GetSite(ctx, siteID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(s))
}

// DELETE /api/v1/sites/:id — soft: pauses serving, keeps data.
func (h *SiteHandler) Delete(c echo.Context) error {
	siteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid site id"})
	}

	if err := h.sites.Pause(c.Request().Context(), siteID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ResponseError{Message: "unknown site"})
		}
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK("site paused"))
}

// GET /api/v1/sites/:id/stats
func (h *SiteHandler) Stats(c echo.Context) error {
	siteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid site id"})
	}

	reports, err := h.reports.Report(c.Request().Context(), siteID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(reports))
}

// GET /api/v1/sites/:id/variants
func (h *SiteHandler) Variants(c echo.Context) error {
	siteID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ResponseError{Message: "invalid site id"})
	}

	variants, err := h.variants.FindBySite(c.Request().Context(), siteID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ResponseError{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, fres.Response.StatusOK(variants))
}
