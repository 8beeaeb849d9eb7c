package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
	controlRegex  = regexp.MustCompile(`[\x00-\x1f\x7f]`)
)

// MaxTextLength bounds free-text invoice fields
const MaxTextLength = 500

// ValidateCurrency validates an ISO 4217 style currency code
func ValidateCurrency(code string) error {
	if !currencyRegex.MatchString(code) {
		return fmt.Errorf("currency must be a 3-letter uppercase code: %q", code)
	}
	return nil
}

// ValidateAmount validates an invoice amount
func ValidateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("amount must not be negative: %s", amount)
	}
	if amount.Exponent() < -2 && !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("amount has more than 2 decimal places: %s", amount)
	}
	return nil
}

// ValidateText checks the length of a free-text field
func ValidateText(field, s string) error {
	if len([]rune(s)) > MaxTextLength {
		return fmt.Errorf("%s exceeds %d characters", field, MaxTextLength)
	}
	return nil
}

// SanitizeString removes control characters and surrounding whitespace
func SanitizeString(s string) string {
	return strings.TrimSpace(controlRegex.ReplaceAllString(s, ""))
}
