package utils

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateCurrency(t *testing.T) {
	assert.NoError(t, ValidateCurrency("EUR"))
	assert.Error(t, ValidateCurrency("eur"))
	assert.Error(t, ValidateCurrency("EURO"))
	assert.Error(t, ValidateCurrency(""))
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		amount  string
		wantErr bool
	}{
		{"0", false},
		{"120.50", false},
		{"120.500", false},
		{"1000000", false},
		{"-0.01", true},
		{"10.005", true},
	}

	for _, tt := range tests {
		err := ValidateAmount(decimal.RequireFromString(tt.amount))
		if tt.wantErr {
			assert.Error(t, err, tt.amount)
		} else {
			assert.NoError(t, err, tt.amount)
		}
	}
}

func TestValidateText(t *testing.T) {
	assert.NoError(t, ValidateText("description", strings.Repeat("é", MaxTextLength)))
	assert.Error(t, ValidateText("description", strings.Repeat("a", MaxTextLength+1)))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "ACME Corp", SanitizeString("  ACME\x00 Corp\x7f\n"))
}
