package validator

import (
	"context"
	"errors"
	"regexp"

	"github.com/go-playground/validator"
)

var (
	global    *validator.Validate
	dateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	hourRegex = regexp.MustCompile(`^([01]\d|2[0-3]):00$`)
)

const (
	ErrInvalidFormat     = "Invalid format"
	ErrFieldRequired     = "Field is required"
	ErrInvalidChoice     = "Field is not one of the allowed values"
	ErrUnknownValidation = "Unknown validation error"
)

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("ymd", validateDate)
	_ = v.RegisterValidation("hour", validateHour)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

func validateDate(fl validator.FieldLevel) bool {
	return dateRegex.MatchString(fl.Field().String())
}

func validateHour(fl validator.FieldLevel) bool {
	return hourRegex.MatchString(fl.Field().String())
}

// Validate checks a tagged struct and reports the first failing field.
func Validate(ctx context.Context, structure any) error {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

// Var checks a single value against tag, e.g. Var(ctx, s, "required,ymd").
func Var(ctx context.Context, field any, tag string) error {
	return parseValidationErrors(Validator().VarCtx(ctx, field, tag))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	if len(vErrors) == 0 {
		return nil
	}
	ve := vErrors[0]
	var msg string
	switch ve.Tag() {
	case "required":
		msg = ErrFieldRequired
	case "ymd", "hour", "email":
		msg = ErrInvalidFormat
	case "oneof":
		msg = ErrInvalidChoice
	default:
		msg = ErrUnknownValidation
	}
	if ns := ve.Namespace(); ns != "" {
		return errors.New(msg + ": " + ns)
	}
	return errors.New(msg)
}
