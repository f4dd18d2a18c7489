// Package validation wraps a shared go-playground/validator instance with the
// custom rules used by request and service input structs.
//
// Field names in reported errors are taken from the struct's json tag so they
// match the names clients send.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	minPasswordLength = 6
	minUsernameLength = 3
	maxUsernameLength = 50
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError describes one failed rule on one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// GetValidator returns the singleton validator with custom rules registered.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		_ = validate.RegisterValidation("username", validUsername)
		_ = validate.RegisterValidation("strongpassword", strongPassword)
		_ = validate.RegisterValidation("notblank", notBlank)
	})
	return validate
}

// Struct validates s and returns one FieldError per failed field, or nil.
func Struct(s any) []FieldError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []FieldError{{Field: "unknown", Message: err.Error()}}
	}

	fields := make([]FieldError, len(validationErrs))
	for i, fe := range validationErrs {
		fields[i] = FieldError{Field: fe.Field(), Message: translateError(fe.Field(), fe)}
	}
	return fields
}

// Var validates a single value against tag, reporting failures under name.
func Var(name string, value any, tag string) *FieldError {
	err := GetValidator().Var(value, tag)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return &FieldError{Field: name, Message: err.Error()}
	}
	return &FieldError{Field: name, Message: translateError(name, validationErrs[0])}
}

// ValidUsername reports whether s satisfies the username rule.
func ValidUsername(s string) bool {
	n := len(s)
	return n >= minUsernameLength && n <= maxUsernameLength && usernamePattern.MatchString(s)
}

// StrongPassword reports whether s satisfies the password rule.
func StrongPassword(s string) bool {
	if len([]rune(s)) < minPasswordLength {
		return false
	}
	var lower, upper, digit bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && digit
}

func validUsername(fl validator.FieldLevel) bool {
	return ValidUsername(fl.Field().String())
}

func strongPassword(fl validator.FieldLevel) bool {
	return StrongPassword(fl.Field().String())
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}

var errorMessageTemplates = map[string]string{
	"required":       "%s is required",
	"notblank":       "%s must not be blank",
	"email":          "%s must be a valid email address",
	"username":       "%s must be 3 to 50 characters using only letters, numbers, and underscores",
	"strongpassword": "%s must be at least 6 characters and contain a lowercase letter, an uppercase letter and a number",
}

func translateError(field string, fe validator.FieldError) string {
	if template, ok := errorMessageTemplates[fe.Tag()]; ok {
		return fmt.Sprintf(template, field)
	}

	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
