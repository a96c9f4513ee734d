//go:build !integration

package rest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"evoloop/domain"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type fakeAssignmentService struct {
	variant domain.Variant
	err     error
	calls   int
}

func (f *fakeAssignmentService) Assign(_ context.Context, _ uuid.UUID, _ string) (domain.Variant, error) {
	f.calls++
	return f.variant, f.err
}

type fakeAllocatorService struct {
	calls int
}

func (f *fakeAllocatorService) RecordImpression(_ context.Context, _, _ uuid.UUID, _ string, _ map[string]any) error {
	f.calls++
	return nil
}

func (f *fakeAllocatorService) RecordConversion(_ context.Context, _, _ uuid.UUID, _ string, _ map[string]any) error {
	f.calls++
	return nil
}

type fakeKeyVerifier struct {
	key string
}

func (f *fakeKeyVerifier) VerifyAPIKey(_ context.Context, _ uuid.UUID, apiKey string) error {
	if apiKey != f.key {
		return fmt.Errorf("api key mismatch")
	}
	return nil
}

func assignRequest(t *testing.T, handler *AssignHandler, siteID uuid.UUID, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	target := fmt.Sprintf("/api/v1/assign?site_id=%s&visitor_id=visitor-1", siteID)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if apiKey != "" {
		req.Header.Set("X-Evoloop-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	if err := handler.Assign(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestAssignRequiresAPIKey(t *testing.T) {
	siteID := uuid.New()
	svc := &fakeAssignmentService{variant: domain.Variant{ID: uuid.New(), SiteID: siteID}}
	handler := NewAssignHandler(svc, &fakeKeyVerifier{key: "evk_good"})

	rec := assignRequest(t, handler, siteID, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status = %d, want 401", rec.Code)
	}

	rec = assignRequest(t, handler, siteID, "evk_wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status = %d, want 401", rec.Code)
	}

	if svc.calls != 0 {
		t.Fatalf("allocator reached %d times without valid key", svc.calls)
	}

	rec = assignRequest(t, handler, siteID, "evk_good")
	if rec.Code != http.StatusOK {
		t.Fatalf("valid key: status = %d, want 200", rec.Code)
	}
	if svc.calls != 1 {
		t.Fatalf("allocator calls = %d, want 1", svc.calls)
	}
}

func TestAssignServesControlOnAllocationFailure(t *testing.T) {
	siteID := uuid.New()
	svc := &fakeAssignmentService{err: domain.ErrNoActiveVariants}
	handler := NewAssignHandler(svc, &fakeKeyVerifier{key: "evk_good"})

	rec := assignRequest(t, handler, siteID, "evk_good")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 control fallback", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "null" {
		t.Fatalf("body = %q, want null", body)
	}
}

func TestEventsRequireAPIKey(t *testing.T) {
	siteID := uuid.New()
	alloc := &fakeAllocatorService{}
	handler := NewEventsHandler(alloc, &fakeKeyVerifier{key: "evk_good"})

	e := echo.New()
	payload := fmt.Sprintf(
		`{"site_id":%q,"variant_id":%q,"visitor_id":"visitor-1","event_type":"impression"}`,
		siteID, uuid.New(),
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := handler.Track(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: status = %d, want 401", rec.Code)
	}
	if alloc.calls != 0 {
		t.Fatal("counters recorded without a valid key")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Evoloop-Key", "evk_good")
	rec = httptest.NewRecorder()
	if err := handler.Track(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("valid key: status = %d, want 202", rec.Code)
	}
	if alloc.calls != 1 {
		t.Fatalf("allocator calls = %d, want 1", alloc.calls)
	}
}
