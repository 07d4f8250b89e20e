package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var registerOnce sync.Once

var enums = map[string][]string{
	"role":              {"admin", "doctor", "patient"},
	"visit_status":      {"draft", "completed", "cancelled"},
	"consent_provision": {"permit", "deny"},
	"consent_status":    {"active", "inactive", "entered-in-error"},
}

// RegisterWithGin installs the custom tags and json field naming on gin's
// binding validator. Safe to call more than once.
func RegisterWithGin() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			if err := Register(v); err != nil {
				panic(err)
			}
		}
	})
}

// Register adds the API's custom tags to v.
func Register(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	for tag, allowed := range enums {
		allowed := allowed
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return oneOf(fl.Field().String(), allowed)
		}); err != nil {
			return fmt.Errorf("failed to register %s: %w", tag, err)
		}
	}

	return v.RegisterValidation("dateonly", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if s == "" {
			return true
		}
		_, err := time.Parse("2006-01-02", s)
		return err == nil
	})
}

func oneOf(s string, allowed []string) bool {
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	return false
}

// Fields flattens validator errors into per-field messages. Other errors
// yield nil.
func Fields(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make([]FieldError, 0, len(verrs))
	for _, e := range verrs {
		out = append(out, FieldError{Field: e.Field(), Message: message(e)})
	}
	return out
}

// Message is a single human readable line for a bind or validation error.
func Message(err error) string {
	fields := Fields(err)
	if len(fields) == 0 {
		return "Invalid request body"
	}
	return fields[0].Message
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", e.Field())
	case "email":
		return "Valid email is required"
	case "min":
		if e.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters long", e.Field(), e.Param())
		}
		return fmt.Sprintf("%s must be at least %s", e.Field(), e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", e.Field(), e.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range", e.Field())
	case "uuid", "uuid4":
		return fmt.Sprintf("%s must be a valid UUID", e.Field())
	case "dateonly":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format", e.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", e.Field(), strings.ReplaceAll(e.Param(), " ", ", "))
	}
	if allowed, ok := enums[e.Tag()]; ok {
		return fmt.Sprintf("%s must be one of: %s", e.Field(), strings.Join(allowed, ", "))
	}
	return fmt.Sprintf("%s is invalid", e.Field())
}
