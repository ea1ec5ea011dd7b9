package dto

import (
	"encoding/json"
	"net/http"

	"github.com/wb-go/wbf/ginext"
)

const (
	ReasonInvalidJSON           = "invalid_json"
	ReasonInvalidRole           = "invalid_role"
	ReasonStudentNumberRequired = "student_number_required"
	ReasonCompanyRequired       = "company_required"
	ReasonContactRequired       = "contact_required"
	ReasonInvalidDate           = "invalid_date"
	ReasonStartTimesRequired    = "start_times_required"
	ReasonInvalidStartTime      = "invalid_start_time"
	ReasonTermsNotAccepted      = "terms_not_accepted"
	ReasonSlotTaken             = "slot_taken"
	ReasonRateLimited           = "rate_limited"
	ReasonInternal              = "internal_error"
)

type CreateBookingRequest struct {
	Role          string          `json:"role"`
	StudentNumber string          `json:"studentNumber,omitempty"`
	Company       string          `json:"company,omitempty"`
	Name          string          `json:"name"`
	Phone         string          `json:"phone"`
	Email         string          `json:"email"`
	Field         string          `json:"field,omitempty"`
	Date          string          `json:"date"`
	StartTimes    []string        `json:"startTimes"`
	Participants  OptionalInt     `json:"participants,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	AcceptedTerms Truthy          `json:"acceptedTerms"`
	Invoice       json.RawMessage `json:"invoice,omitempty"`
}

type Slot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type AvailabilityResponse struct {
	Date  string `json:"date"`
	Slots []Slot `json:"slots"`
}

type BookingCreatedResponse struct {
	OK    bool   `json:"ok"`
	ID    int64  `json:"id"`
	Token string `json:"token"`
}

type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func ErrorResponse(c *ginext.Context, status int, reason string) {
	c.JSON(status, Response{OK: false, Error: reason})
}

func BadRequestError(c *ginext.Context, reason string) {
	ErrorResponse(c, http.StatusBadRequest, reason)
}

func ConflictError(c *ginext.Context) {
	ErrorResponse(c, http.StatusConflict, ReasonSlotTaken)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ReasonInternal)
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, data)
}

func OKResponse(c *ginext.Context) {
	c.JSON(http.StatusOK, Response{OK: true})
}
