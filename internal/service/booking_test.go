package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"studioBooker/internal/dto"
	"studioBooker/internal/mailer"
	"studioBooker/internal/model"
	"studioBooker/internal/repo"
	"studioBooker/internal/slots"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []mailer.Notification
	err  error
}

func (c *captureNotifier) Notify(_ context.Context, n mailer.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return c.err
}

func newTestBooker(t *testing.T, n mailer.Notifier) (*Booker, repo.Repository) {
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
	g := mailer.NewGateway(n, time.Second, nil)
	return NewBooker(r, g, slots.Grid(slots.DefaultOpen, slots.DefaultClose), nil), r
}

func validRequest(starts ...string) dto.CreateBookingRequest {
	return dto.CreateBookingRequest{
		Role:          "staff",
		Name:          "Grace",
		Phone:         "+39 000",
		Email:         "grace@example.com",
		Date:          "2025-01-10",
		StartTimes:    starts,
		AcceptedTerms: true,
	}
}

func reasonOf(err error) string {
	var inv *InvalidInputError
	if errors.As(err, &inv) {
		return inv.Reason
	}
	return ""
}

func TestValidationOrder(t *testing.T) {
	b, r := newTestBooker(t, &captureNotifier{})
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*dto.CreateBookingRequest)
		reason string
	}{
		{"role", func(q *dto.CreateBookingRequest) { q.Role = "guest"; q.Name = "" }, dto.ReasonInvalidRole},
		{"empty role", func(q *dto.CreateBookingRequest) { q.Role = "" }, dto.ReasonInvalidRole},
		{"student number", func(q *dto.CreateBookingRequest) { q.Role = "student"; q.Date = "bad" }, dto.ReasonStudentNumberRequired},
		{"company", func(q *dto.CreateBookingRequest) { q.Role = "external"; q.Company = "  " }, dto.ReasonCompanyRequired},
		{"contact", func(q *dto.CreateBookingRequest) { q.Email = ""; q.Date = "bad" }, dto.ReasonContactRequired},
		{"date", func(q *dto.CreateBookingRequest) { q.Date = "10/01/2025"; q.StartTimes = nil }, dto.ReasonInvalidDate},
		{"start times", func(q *dto.CreateBookingRequest) { q.StartTimes = nil; q.AcceptedTerms = false }, dto.ReasonStartTimesRequired},
		{"slot off grid", func(q *dto.CreateBookingRequest) { q.StartTimes = []string{"17:00"} }, dto.ReasonInvalidStartTime},
		{"slot format", func(q *dto.CreateBookingRequest) { q.StartTimes = []string{"9"} }, dto.ReasonInvalidStartTime},
		{"terms", func(q *dto.CreateBookingRequest) { q.AcceptedTerms = false }, dto.ReasonTermsNotAccepted},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := validRequest("09:00")
			c.mutate(&req)
			_, _, err := b.CreateBooking(ctx, req, "http://x")
			if got := reasonOf(err); got != c.reason {
				t.Errorf("reason = %q (err %v), want %q", got, err, c.reason)
			}
		})
	}

	taken, err := r.TakenStarts(ctx, "2025-01-10")
	if err != nil {
		t.Fatal(err)
	}
	if len(taken) != 0 {
		t.Errorf("invalid requests persisted rows: %v", taken)
	}
}

func TestCreateBookingMultiSlot(t *testing.T) {
	n := &captureNotifier{}
	b, r := newTestBooker(t, n)
	ctx := context.Background()

	req := validRequest("09:00", "10:00")
	req.Invoice = json.RawMessage(`{"company":"ACME"}`)
	req.Participants = dto.IntOf(5)
	id, token, err := b.CreateBooking(ctx, req, "https://studio.example/")
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if id == 0 {
		t.Error("expected a row id")
	}
	if !regexp.MustCompile(`^[0-9a-f]{40}$`).MatchString(token) {
		t.Errorf("token %q is not 40 hex chars", token)
	}

	rows, err := r.BookingsByToken(ctx, token)
	if err != nil {
		t.Fatalf("BookingsByToken: %v", err)
	}
	if len(rows) != 2 || rows[1].ID != id {
		t.Fatalf("rows = %+v, last id %d", rows, id)
	}
	for _, row := range rows {
		end, _ := slots.End(row.StartTime)
		if row.EndTime != end || row.Status != model.StatusPending || row.Token != token || row.Participants == nil || *row.Participants != 5 {
			t.Errorf("bad row %+v", row)
		}
	}

	free, err := b.Availability(ctx, "2025-01-10")
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if len(free) != 6 || free[0].Start != "11:00" || free[0].End != "12:00" {
		t.Errorf("free = %+v", free)
	}

	if len(n.sent) != 1 {
		t.Fatalf("notifications = %d", len(n.sent))
	}
	sent := n.sent[0]
	if sent.ApproveURL != "https://studio.example/approve/"+token || sent.RejectURL != "https://studio.example/reject/"+token {
		t.Errorf("links = %q %q", sent.ApproveURL, sent.RejectURL)
	}
	if sent.Invoice != `{"company":"ACME"}` || len(sent.Slots) != 2 {
		t.Errorf("notification = %+v", sent)
	}
}

func TestCreateBookingConflict(t *testing.T) {
	b, _ := newTestBooker(t, &captureNotifier{})
	ctx := context.Background()

	if _, _, err := b.CreateBooking(ctx, validRequest("09:00"), "http://x"); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, _, err := b.CreateBooking(ctx, validRequest("09:00"), "http://x"); !errors.Is(err, ErrConflict) {
		t.Fatalf("second booking: %v, want ErrConflict", err)
	}
	if _, _, err := b.CreateBooking(ctx, validRequest("10:00", "09:00"), "http://x"); !errors.Is(err, ErrConflict) {
		t.Fatalf("overlapping multi-slot: %v, want ErrConflict", err)
	}
	free, _ := b.Availability(ctx, "2025-01-10")
	if len(free) != 7 {
		t.Errorf("a failed request reserved slots: %+v", free)
	}
}

func TestNotificationFailureDoesNotFailBooking(t *testing.T) {
	b, _ := newTestBooker(t, &captureNotifier{err: errors.New("smtp down")})
	if _, _, err := b.CreateBooking(context.Background(), validRequest("12:00"), "http://x"); err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
}

func TestAvailabilityRejectsBadDate(t *testing.T) {
	b, _ := newTestBooker(t, nil)
	for _, d := range []string{"", "2025-1-1", "tomorrow"} {
		if _, err := b.Availability(context.Background(), d); reasonOf(err) != dto.ReasonInvalidDate {
			t.Errorf("Availability(%q) err = %v", d, err)
		}
	}
	free, err := b.Availability(context.Background(), "2030-06-01")
	if err != nil || len(free) != 8 {
		t.Errorf("empty day: %v %+v", err, free)
	}
}

func TestSetStatus(t *testing.T) {
	b, r := newTestBooker(t, nil)
	ctx := context.Background()

	_, token, err := b.CreateBooking(ctx, validRequest("09:00", "10:00"), "http://x")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		rows, err := b.SetStatus(ctx, token, "approve")
		if err != nil {
			t.Fatalf("approve #%d: %v", i, err)
		}
		if len(rows) != 2 || rows[0].Status != model.StatusApproved || rows[1].Status != model.StatusApproved {
			t.Errorf("approve #%d rows = %+v", i, rows)
		}
	}

	rows, err := b.SetStatus(ctx, token, "reject")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rows[0].Status != model.StatusRejected {
		t.Errorf("reject did not overwrite: %+v", rows[0])
	}
	taken, _ := r.TakenStarts(ctx, "2025-01-10")
	if len(taken) != 0 {
		t.Errorf("rejected rows still listed as taken: %v", taken)
	}

	if _, err := b.SetStatus(ctx, "0123456789abcdef0123456789abcdef01234567", "approve"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown token: %v", err)
	}
	if _, err := b.SetStatus(ctx, token, "cancel"); reasonOf(err) == "" {
		t.Errorf("unknown action: %v", err)
	}
}
