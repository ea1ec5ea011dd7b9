package service

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"studioBooker/internal/dto"
)

type Service interface {
	Health(ctx *ginext.Context)
	Availability(ctx *ginext.Context)
	Book(ctx *ginext.Context)
	Approve(ctx *ginext.Context)
	Reject(ctx *ginext.Context)
}

type service struct {
	booker  *Booker
	baseURL string
	log     *zerolog.Logger
}

// NewService wires the HTTP handlers. baseURL prefixes approve/reject links;
// when empty it is taken from each request.
func NewService(booker *Booker, baseURL string, logger *zerolog.Logger) Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &service{
		booker:  booker,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		log:     logger,
	}
}

func (s *service) Health(ctx *ginext.Context) {
	dto.OKResponse(ctx)
}

func (s *service) Availability(ctx *ginext.Context) {
	date := ctx.Query("date")

	free, err := s.booker.Availability(ctx.Request.Context(), date)
	if err != nil {
		var inv *InvalidInputError
		if errors.As(err, &inv) {
			dto.BadRequestError(ctx, inv.Reason)
			return
		}
		s.log.Error().Err(err).Str("date", date).Msg("failed to compute availability")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, dto.AvailabilityResponse{Date: date, Slots: free})
}

func (s *service) Book(ctx *ginext.Context) {
	var req dto.CreateBookingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Warn().Err(err).Msg("failed to parse booking request")
		dto.BadRequestError(ctx, dto.ReasonInvalidJSON)
		return
	}

	id, token, err := s.booker.CreateBooking(ctx.Request.Context(), req, s.linkBase(ctx.Request))
	if err != nil {
		var inv *InvalidInputError
		switch {
		case errors.As(err, &inv):
			dto.BadRequestError(ctx, inv.Reason)
		case errors.Is(err, ErrConflict):
			dto.ConflictError(ctx)
		default:
			s.log.Error().Err(err).Msg("failed to create booking")
			dto.InternalServerError(ctx)
		}
		return
	}

	dto.SuccessResponse(ctx, dto.BookingCreatedResponse{OK: true, ID: id, Token: token})
}

func (s *service) Approve(ctx *ginext.Context) {
	s.decide(ctx, "approve")
}

func (s *service) Reject(ctx *ginext.Context) {
	s.decide(ctx, "reject")
}

func (s *service) decide(ctx *ginext.Context, action string) {
	token := ctx.Param("token")

	bookings, err := s.booker.SetStatus(ctx.Request.Context(), token, action)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			renderPage(ctx, http.StatusNotFound, page{
				Title:   "Booking not found",
				Message: "This link does not match any booking request.",
			})
			return
		}
		s.log.Error().Err(err).Str("action", action).Msg("failed to update booking status")
		renderPage(ctx, http.StatusInternalServerError, page{
			Title:   "Something went wrong",
			Message: "The booking could not be updated. Please try again later.",
		})
		return
	}

	p := page{Title: "Booking approved", Message: "The booking request has been approved.", Bookings: bookings}
	if action == "reject" {
		p = page{Title: "Booking rejected", Message: "The booking request has been rejected.", Bookings: bookings}
	}
	renderPage(ctx, http.StatusOK, p)
}

func (s *service) linkBase(r *http.Request) string {
	if s.baseURL != "" {
		return s.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + r.Host
}
