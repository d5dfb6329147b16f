// Package validation provides input validation utilities
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail checks basic email format
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	if len(email) > 254 {
		return fmt.Errorf("email must not exceed 254 characters")
	}
	return nil
}

// ValidatePassword checks if a password meets security requirements
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}
	if len(password) > 128 {
		return fmt.Errorf("password must not exceed 128 characters")
	}

	hasUpper := false
	hasLower := false
	hasDigit := false
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasDigit {
		return fmt.Errorf("password must contain at least one digit")
	}

	return nil
}

// ValidateName checks a first or last name field.
func ValidateName(field, name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < 2 {
		return fmt.Errorf("%s must be at least 2 characters long", field)
	}
	if len(trimmed) > 20 {
		return fmt.Errorf("%s must not exceed 20 characters", field)
	}
	return nil
}

// ValidateOTPCode checks the shape of a 6-digit verification code.
func ValidateOTPCode(code string) error {
	if len(code) != 6 {
		return fmt.Errorf("code must be exactly 6 digits")
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return fmt.Errorf("code must contain only digits")
		}
	}
	return nil
}

// ValidateMessageContent checks the message body length bounds.
func ValidateMessageContent(content string, minLen, maxLen int) error {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < minLen {
		return fmt.Errorf("message content is required")
	}
	if len(trimmed) > maxLen {
		return fmt.Errorf("message must not exceed %d characters", maxLen)
	}
	return nil
}
