package duration

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenkit/warden/lib/types"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
	}{
		{"30s", 30 * time.Second},
		{"30m", 30 * time.Minute},
		{"12h", 12 * time.Hour},
		{"1d", 24 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{"30d", 30 * 24 * time.Hour},
		{"30M", 30 * time.Minute},
		{" 5m ", 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			parsed, err := Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, parsed)
		})
	}
}

func TestParseRejectsMalformedTokens(t *testing.T) {
	invalid := []string{
		"",
		"m",
		"5",
		"5x",
		"0m",
		"-5m",
		"+5m",
		"1.5h",
		"5 m",
		"m5",
		"31d",
		"5w",
	}

	for _, input := range invalid {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrValidation))
		})
	}
}

func TestFormatUsesLargestWholeUnit(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m"},
		{time.Hour, "1h"},
		{36 * time.Hour, "1d"},
		{10 * 24 * time.Hour, "1w"},
		{0, "0s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Format(tt.input))
	}
}
