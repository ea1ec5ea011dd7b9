package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"studioBooker/internal/dto"
	"studioBooker/internal/mailer"
	"studioBooker/internal/metrics"
	"studioBooker/internal/model"
	"studioBooker/internal/repo"
	"studioBooker/internal/slots"
	"studioBooker/pkg/validator"
)

const tokenBytes = 20

var (
	ErrConflict = errors.New("slot already booked")
	ErrNotFound = errors.New("unknown approval token")
)

// InvalidInputError carries the machine-readable reason returned to clients.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

func invalid(reason string) error {
	return &InvalidInputError{Reason: reason}
}

// Booker holds the booking rules; the HTTP handlers are a thin layer on top.
type Booker struct {
	repo    repo.Repository
	gateway *mailer.Gateway
	grid    []string
	log     *zerolog.Logger
}

func NewBooker(r repo.Repository, gateway *mailer.Gateway, grid []string, log *zerolog.Logger) *Booker {
	if gateway == nil {
		gateway = mailer.NewGateway(nil, 0, log)
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Booker{repo: r, gateway: gateway, grid: grid, log: log}
}

// Availability lists the grid slots of date that no pending or approved
// booking holds, in grid order.
func (b *Booker) Availability(ctx context.Context, date string) ([]dto.Slot, error) {
	if !slots.IsDate(date) {
		return nil, invalid(dto.ReasonInvalidDate)
	}

	taken, err := b.repo.TakenStarts(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("availability for %s: %w", date, err)
	}
	held := make(map[string]struct{}, len(taken))
	for _, s := range taken {
		held[s] = struct{}{}
	}

	free := make([]dto.Slot, 0, len(b.grid))
	for _, start := range b.grid {
		if _, ok := held[start]; ok {
			continue
		}
		end, err := slots.End(start)
		if err != nil {
			return nil, err
		}
		free = append(free, dto.Slot{Start: start, End: end})
	}
	return free, nil
}

func (b *Booker) validate(ctx context.Context, req *dto.CreateBookingRequest) error {
	role := model.Role(req.Role)
	if validator.Var(ctx, req.Role, "required") != nil || !role.Valid() {
		return invalid(dto.ReasonInvalidRole)
	}
	if role == model.RoleStudent && validator.Var(ctx, strings.TrimSpace(req.StudentNumber), "required") != nil {
		return invalid(dto.ReasonStudentNumberRequired)
	}
	if role == model.RoleExternal && validator.Var(ctx, strings.TrimSpace(req.Company), "required") != nil {
		return invalid(dto.ReasonCompanyRequired)
	}
	for _, v := range []string{req.Name, req.Phone, req.Email} {
		if validator.Var(ctx, strings.TrimSpace(v), "required") != nil {
			return invalid(dto.ReasonContactRequired)
		}
	}
	if validator.Var(ctx, req.Date, "required,ymd") != nil {
		return invalid(dto.ReasonInvalidDate)
	}
	if len(req.StartTimes) == 0 {
		return invalid(dto.ReasonStartTimesRequired)
	}
	for _, s := range req.StartTimes {
		if validator.Var(ctx, s, "hour") != nil || !slots.Contains(b.grid, s) {
			return invalid(dto.ReasonInvalidStartTime)
		}
	}
	if !bool(req.AcceptedTerms) {
		return invalid(dto.ReasonTermsNotAccepted)
	}
	return nil
}

// CreateBooking reserves every requested slot under one new approval token
// and notifies the administrator. It returns the id of the last stored row.
// Links in the notification are built on baseURL.
func (b *Booker) CreateBooking(ctx context.Context, req dto.CreateBookingRequest, baseURL string) (int64, string, error) {
	if err := b.validate(ctx, &req); err != nil {
		metrics.IncBookingRequest("invalid")
		return 0, "", err
	}

	token, err := newToken()
	if err != nil {
		return 0, "", err
	}

	invoice := ""
	if raw := bytes.TrimSpace(req.Invoice); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		invoice = string(raw)
	}

	rows := make([]*model.Booking, 0, len(req.StartTimes))
	for _, start := range req.StartTimes {
		end, err := slots.End(start)
		if err != nil {
			return 0, "", invalid(dto.ReasonInvalidStartTime)
		}
		rows = append(rows, &model.Booking{
			Role:          model.Role(req.Role),
			StudentNumber: strings.TrimSpace(req.StudentNumber),
			Company:       strings.TrimSpace(req.Company),
			Name:          strings.TrimSpace(req.Name),
			Phone:         strings.TrimSpace(req.Phone),
			Email:         strings.TrimSpace(req.Email),
			Field:         strings.TrimSpace(req.Field),
			Date:          req.Date,
			StartTime:     start,
			EndTime:       end,
			Participants:  req.Participants.Ptr(),
			Reason:        req.Reason,
			Status:        model.StatusPending,
			Token:         token,
			Invoice:       invoice,
		})
	}

	id, err := b.repo.CreateBookingTx(ctx, rows)
	if err != nil {
		if errors.Is(err, repo.ErrSlotTaken) {
			metrics.IncBookingRequest("conflict")
			return 0, "", ErrConflict
		}
		metrics.IncBookingRequest("error")
		return 0, "", fmt.Errorf("create booking: %w", err)
	}

	metrics.IncBookingRequest("created")
	metrics.AddSlotsBooked(len(rows))
	b.log.Info().
		Int64("booking_id", id).
		Str("date", req.Date).
		Strs("slots", req.StartTimes).
		Str("token", shortToken(token)).
		Msg("booking created")

	base := strings.TrimRight(baseURL, "/")
	first := rows[0]
	b.gateway.Send(ctx, mailer.Notification{
		BookingID:     id,
		Role:          string(first.Role),
		StudentNumber: first.StudentNumber,
		Company:       first.Company,
		Name:          first.Name,
		Phone:         first.Phone,
		Email:         first.Email,
		Field:         first.Field,
		Date:          first.Date,
		Slots:         req.StartTimes,
		Participants:  first.Participants,
		Reason:        first.Reason,
		Invoice:       invoice,
		ApproveURL:    base + "/approve/" + token,
		RejectURL:     base + "/reject/" + token,
	})

	return id, token, nil
}

// SetStatus applies an approve or reject decision to every booking sharing
// token. The current status is not checked, so a later call overwrites an
// earlier decision.
func (b *Booker) SetStatus(ctx context.Context, token, action string) ([]model.Booking, error) {
	var status model.Status
	switch action {
	case "approve":
		status = model.StatusApproved
	case "reject":
		status = model.StatusRejected
	default:
		return nil, invalid("invalid_action")
	}

	affected, prev, err := b.repo.SetStatusByToken(ctx, token, status)
	if err != nil {
		if errors.Is(err, repo.ErrTokenNotFound) {
			metrics.IncDecision(action, "not_found")
			return nil, ErrNotFound
		}
		metrics.IncDecision(action, "error")
		return nil, fmt.Errorf("set status %s: %w", status, err)
	}
	metrics.IncDecision(action, "ok")

	for _, p := range prev {
		if p != model.StatusPending && p != status {
			b.log.Warn().
				Str("token", shortToken(token)).
				Str("from", string(p)).
				Str("to", string(status)).
				Msg("overwriting an earlier decision")
			break
		}
	}
	b.log.Info().Str("token", shortToken(token)).Int64("rows", affected).Str("status", string(status)).Msg("booking status updated")

	bookings, err := b.repo.BookingsByToken(ctx, token)
	if err != nil {
		// The update itself is committed; the page just loses its details.
		b.log.Warn().Err(err).Msg("failed to reload bookings after status change")
		return nil, nil
	}
	return bookings, nil
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func shortToken(token string) string {
	if len(token) > 8 {
		return token[:8]
	}
	return token
}
