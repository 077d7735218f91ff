// Package duration parses and formats the compact duration tokens used by
// moderation commands, e.g. "30m", "12h", "7d".
package duration

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wardenkit/warden/lib/types"
)

// MaxDuration is the longest sanction duration accepted
const MaxDuration = 30 * 24 * time.Hour

// unitSizes maps a unit suffix to its length, ascending
var unitSizes = []struct {
	suffix string
	size   time.Duration
}{
	{"s", time.Second},
	{"m", time.Minute},
	{"h", time.Hour},
	{"d", 24 * time.Hour},
	{"w", 7 * 24 * time.Hour},
}

// Parse converts a token of the form <positive integer><unit> into a
// duration. Unit is one of s, m, h, d, w, case-insensitive, with no
// whitespace inside the token. Zero amounts, malformed tokens, and totals
// above MaxDuration are rejected.
func Parse(input string) (time.Duration, error) {
	token := strings.ToLower(strings.TrimSpace(input))
	if len(token) < 2 {
		return 0, fmt.Errorf("%w: malformed duration %q", types.ErrValidation, input)
	}

	amountPart := token[:len(token)-1]
	unitPart := token[len(token)-1:]

	var size time.Duration
	for _, u := range unitSizes {
		if u.suffix == unitPart {
			size = u.size
			break
		}
	}
	if size == 0 {
		return 0, fmt.Errorf("%w: unknown duration unit %q", types.ErrValidation, input)
	}

	// ParseInt tolerates a leading sign; the token shape does not
	if amountPart[0] < '0' || amountPart[0] > '9' {
		return 0, fmt.Errorf("%w: malformed duration %q", types.ErrValidation, input)
	}

	amount, err := strconv.ParseInt(amountPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed duration %q", types.ErrValidation, input)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: duration must be positive in %q", types.ErrValidation, input)
	}

	total := time.Duration(amount) * size
	if total > MaxDuration {
		return 0, fmt.Errorf("%w: duration %q exceeds the %s cap", types.ErrValidation, input, Format(MaxDuration))
	}

	return total, nil
}

// Format renders a duration using the largest unit that yields a whole
// value of at least one, e.g. 90s renders as "1m". Purely presentational;
// used for audit and notification text.
func Format(d time.Duration) string {
	for i := len(unitSizes) - 1; i >= 0; i-- {
		u := unitSizes[i]
		if d >= u.size {
			return fmt.Sprintf("%d%s", d/u.size, u.suffix)
		}
	}
	return "0s"
}
