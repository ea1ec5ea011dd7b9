package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wb-go/wbf/ginext"

	"studioBooker/internal/dto"
	"studioBooker/internal/mailer"
	"studioBooker/internal/repo"
	"studioBooker/internal/service"
	"studioBooker/internal/slots"
)

type recordingNotifier struct {
	sent []mailer.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n mailer.Notification) error {
	r.sent = append(r.sent, n)
	return nil
}

func newTestServer(t *testing.T, baseURL string, ratePerMin int) (*ginext.Engine, *recordingNotifier) {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "bookings.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	r, err := repo.NewRepository(db, repo.DialectSQLite, nil)
	if err != nil {
		t.Fatalf("NewRepository: %v", err)
	}
	if err := r.MigrateUp(context.Background()); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}

	n := &recordingNotifier{}
	booker := service.NewBooker(r, mailer.NewGateway(n, time.Second, nil), slots.Grid(9, 17), nil)
	app := NewRouters(&Routers{
		Service:        service.NewService(booker, baseURL, nil),
		Mode:           "test",
		CORSOrigins:    []string{"https://studio.example"},
		BookRatePerMin: ratePerMin,
	})
	return app, n
}

func do(t *testing.T, app http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			if err := json.NewEncoder(&buf).Encode(b); err != nil {
				t.Fatal(err)
			}
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)
	return w
}

func bookBody(date string, starts ...string) map[string]any {
	return map[string]any{
		"role":          "student",
		"studentNumber": "S-1",
		"name":          "Linus",
		"phone":         "555",
		"email":         "linus@example.com",
		"date":          date,
		"startTimes":    starts,
		"acceptedTerms": true,
		"invoice":       map[string]any{"address": "Main St 1"},
	}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	app, _ := newTestServer(t, "", 0)
	w := do(t, app, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"ok":true}` {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestAvailability(t *testing.T) {
	app, _ := newTestServer(t, "", 0)

	for _, path := range []string{"/availability", "/availability?date=2025-1-10"} {
		w := do(t, app, http.MethodGet, path, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: code %d", path, w.Code)
		}
		if resp := decode[dto.Response](t, w); resp.OK || resp.Error != dto.ReasonInvalidDate {
			t.Errorf("%s: body %+v", path, resp)
		}
	}

	w := do(t, app, http.MethodGet, "/availability?date=2025-01-10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code %d: %s", w.Code, w.Body.String())
	}
	resp := decode[dto.AvailabilityResponse](t, w)
	if resp.Date != "2025-01-10" || len(resp.Slots) != 8 {
		t.Fatalf("availability = %+v", resp)
	}
	if resp.Slots[0] != (dto.Slot{Start: "09:00", End: "10:00"}) || resp.Slots[7] != (dto.Slot{Start: "16:00", End: "17:00"}) {
		t.Errorf("slots = %+v", resp.Slots)
	}
}

func TestBookingFlow(t *testing.T) {
	app, notes := newTestServer(t, "", 0)

	w := do(t, app, http.MethodPost, "/book", bookBody("2025-01-10", "09:00", "10:00"))
	if w.Code != http.StatusOK {
		t.Fatalf("book: %d %s", w.Code, w.Body.String())
	}
	created := decode[dto.BookingCreatedResponse](t, w)
	if !created.OK || created.ID == 0 || len(created.Token) != 40 {
		t.Fatalf("created = %+v", created)
	}

	avail := decode[dto.AvailabilityResponse](t, do(t, app, http.MethodGet, "/availability?date=2025-01-10", nil))
	for _, s := range avail.Slots {
		if s.Start == "09:00" || s.Start == "10:00" {
			t.Errorf("booked slot %s still available", s.Start)
		}
	}
	if len(avail.Slots) != 6 {
		t.Errorf("slots = %+v", avail.Slots)
	}

	if len(notes.sent) != 1 || notes.sent[0].ApproveURL != "http://example.com/approve/"+created.Token {
		t.Fatalf("notifications = %+v", notes.sent)
	}

	w = do(t, app, http.MethodPost, "/book", bookBody("2025-01-10", "09:00"))
	if w.Code != http.StatusConflict {
		t.Fatalf("double booking: %d %s", w.Code, w.Body.String())
	}
	if resp := decode[dto.Response](t, w); resp.Error != dto.ReasonSlotTaken {
		t.Errorf("conflict body = %+v", resp)
	}

	for i := 0; i < 2; i++ {
		w = do(t, app, http.MethodGet, "/approve/"+created.Token, nil)
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "approved") {
			t.Errorf("approve #%d: %d %s", i, w.Code, w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("approve content type = %q", ct)
		}
	}

	w = do(t, app, http.MethodGet, "/approve/"+strings.Repeat("ab", 20), nil)
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "not found") {
		t.Errorf("unknown token: %d %s", w.Code, w.Body.String())
	}

	w = do(t, app, http.MethodGet, "/reject/"+created.Token, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "rejected") {
		t.Errorf("reject: %d %s", w.Code, w.Body.String())
	}
	w = do(t, app, http.MethodGet, "/reject/unknown", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("reject unknown: %d", w.Code)
	}
}

func TestBookValidation(t *testing.T) {
	app, notes := newTestServer(t, "https://book.example", 0)

	w := do(t, app, http.MethodPost, "/book", "{not json")
	if w.Code != http.StatusBadRequest || decode[dto.Response](t, w).Error != dto.ReasonInvalidJSON {
		t.Errorf("bad json: %d %s", w.Code, w.Body.String())
	}

	body := bookBody("2025-01-10", "09:00")
	delete(body, "studentNumber")
	w = do(t, app, http.MethodPost, "/book", body)
	if w.Code != http.StatusBadRequest || decode[dto.Response](t, w).Error != dto.ReasonStudentNumberRequired {
		t.Errorf("student without number: %d %s", w.Code, w.Body.String())
	}

	avail := decode[dto.AvailabilityResponse](t, do(t, app, http.MethodGet, "/availability?date=2025-01-10", nil))
	if len(avail.Slots) != 8 {
		t.Errorf("invalid request reserved slots: %+v", avail.Slots)
	}
	if len(notes.sent) != 0 {
		t.Errorf("invalid request sent notifications")
	}

	w = do(t, app, http.MethodPost, "/book", bookBody("2025-01-11", "15:00"))
	if w.Code != http.StatusOK {
		t.Fatalf("book: %d %s", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(notes.sent[0].RejectURL, "https://book.example/reject/") {
		t.Errorf("configured base url not used: %s", notes.sent[0].RejectURL)
	}
}

func TestBookAcceptsTruthyTerms(t *testing.T) {
	app, _ := newTestServer(t, "", 0)

	for i, terms := range []any{1, "yes", "true"} {
		body := bookBody("2025-01-10", []string{"09:00", "10:00", "11:00"}[i])
		body["acceptedTerms"] = terms
		body["participants"] = "3"
		if w := do(t, app, http.MethodPost, "/book", body); w.Code != http.StatusOK {
			t.Errorf("acceptedTerms=%v: %d %s", terms, w.Code, w.Body.String())
		}
	}

	for _, terms := range []any{false, 0, "", nil} {
		body := bookBody("2025-01-10", "12:00")
		body["acceptedTerms"] = terms
		w := do(t, app, http.MethodPost, "/book", body)
		if w.Code != http.StatusBadRequest || decode[dto.Response](t, w).Error != dto.ReasonTermsNotAccepted {
			t.Errorf("acceptedTerms=%v: %d %s", terms, w.Code, w.Body.String())
		}
	}

	body := bookBody("2025-01-10", "12:00")
	body["role"] = "pirate"
	body["participants"] = "3"
	w := do(t, app, http.MethodPost, "/book", body)
	if w.Code != http.StatusBadRequest || decode[dto.Response](t, w).Error != dto.ReasonInvalidRole {
		t.Errorf("pirate: %d %s", w.Code, w.Body.String())
	}
}

func TestBookRateLimit(t *testing.T) {
	app, _ := newTestServer(t, "", 1)

	if w := do(t, app, http.MethodPost, "/book", bookBody("2025-01-10", "09:00")); w.Code != http.StatusOK {
		t.Fatalf("first: %d %s", w.Code, w.Body.String())
	}
	w := do(t, app, http.MethodPost, "/book", bookBody("2025-01-10", "10:00"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, app, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("health limited: %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	app, _ := newTestServer(t, "", 0)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://studio.example")
	w := httptest.NewRecorder()
	app.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://studio.example" {
		t.Errorf("allowed origin header = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	app.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign origin code = %d", w.Code)
	}
}

func TestCORSConfigAllowsAllWhenEmpty(t *testing.T) {
	if cfg := corsConfig(nil); !cfg.AllowAllOrigins {
		t.Error("empty list should allow all origins")
	}
	cfg := corsConfig([]string{" https://a.example/ ", ""})
	if cfg.AllowAllOrigins || len(cfg.AllowOrigins) != 1 || cfg.AllowOrigins[0] != "https://a.example" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := newTestServer(t, "", 0)
	do(t, app, http.MethodPost, "/book", bookBody("2025-01-10", "09:00"))

	w := do(t, app, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "studio_booker_booking_requests_total") {
		t.Errorf("metrics: %d", w.Code)
	}
}
