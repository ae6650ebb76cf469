package validator

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	v := validator.New()

	// Report fields by their JSON names so errors match the request body.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("timeofday", validateTimeOfDay)
	_ = v.RegisterValidation("isodate", validateISODate)

	return &CustomValidator{
		validator: v,
	}
}

// validateTimeOfDay accepts "HH:MM" and "HH:MM:SS" with zero seconds.
func validateTimeOfDay(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if _, err := time.Parse("15:04", s); err == nil {
		return true
	}
	t, err := time.Parse("15:04:05", s)
	return err == nil && t.Second() == 0
}

func validateISODate(fl validator.FieldLevel) bool {
	_, err := time.Parse("2006-01-02", fl.Field().String())
	return err == nil
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func (cv *CustomValidator) FormatValidationErrors(err error) map[string]string {
	errors := make(map[string]string)

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrors {
			field := e.Field()
			switch e.Tag() {
			case "required":
				errors[field] = field + " is required"
			case "min":
				errors[field] = field + " must be at least " + e.Param() + minMaxUnit(e)
			case "max":
				errors[field] = field + " must be at most " + e.Param() + minMaxUnit(e)
			case "gt":
				errors[field] = field + " must be greater than " + e.Param()
			case "gte":
				errors[field] = field + " must be greater than or equal to " + e.Param()
			case "lte":
				errors[field] = field + " must be less than or equal to " + e.Param()
			case "timeofday":
				errors[field] = field + " must be a time in HH:MM format"
			case "isodate":
				errors[field] = field + " must be a date in YYYY-MM-DD format"
			default:
				errors[field] = field + " is invalid"
			}
		}
	}

	return errors
}

func minMaxUnit(e validator.FieldError) string {
	switch e.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return " items"
	default:
		return " characters"
	}
}
