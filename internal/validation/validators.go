package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/benvon/flowstate/internal/models"
	"github.com/go-playground/validator/v10"
)

const (
	// MaxMainTagLength bounds a main tag after normalization
	MaxMainTagLength = 64
	// MaxUserIDLength bounds the user_id path segment
	MaxUserIDLength = 128
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate

	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._@-]+$`)
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("main_tag", validateMainTag); err != nil {
		panic(fmt.Sprintf("failed to register main_tag validator: %v", err))
	}
	if err := Validate.RegisterValidation("confidence_level", validateConfidenceLevel); err != nil {
		panic(fmt.Sprintf("failed to register confidence_level validator: %v", err))
	}
	if err := Validate.RegisterValidation("session_status", validateSessionStatus); err != nil {
		panic(fmt.Sprintf("failed to register session_status validator: %v", err))
	}
}

// validateMainTag accepts tags that are non-empty once trimmed and contain no '/' (the sub tag separator)
func validateMainTag(fl validator.FieldLevel) bool {
	return ValidateMainTag(fl.Field().String()) == nil
}

func validateConfidenceLevel(fl validator.FieldLevel) bool {
	_, err := models.ParseConfidenceLevel(fl.Field().String())
	return err == nil
}

func validateSessionStatus(fl validator.FieldLevel) bool {
	_, err := models.ParseSessionStatus(fl.Field().String())
	return err == nil
}

// ValidateMainTag validates a raw main tag value
func ValidateMainTag(value string) error {
	normalized := models.NormalizeMainTag(value)
	switch {
	case normalized == "":
		return fmt.Errorf("invalid main_tag: must not be empty")
	case len(normalized) > MaxMainTagLength:
		return fmt.Errorf("invalid main_tag: must be at most %d characters", MaxMainTagLength)
	case strings.ContainsRune(normalized, '/'):
		return fmt.Errorf("invalid main_tag: must not contain '/'")
	}
	return nil
}

// ValidateUserID validates the user_id path segment
func ValidateUserID(value string) error {
	if value == "" || len(value) > MaxUserIDLength || !userIDPattern.MatchString(value) {
		return fmt.Errorf("invalid user_id: %q (letters, digits, '.', '_', '@' and '-', at most %d characters)", value, MaxUserIDLength)
	}
	return nil
}
