package countdown

import (
	"strconv"
	"time"
)

// MaxDuration bounds a single entry.
const MaxDuration = 24 * time.Hour

// DurationHelp describes the accepted duration format.
const DurationHelp = "use a format like 1h30m, 45m or 30s (between 1s and 24h)"

// ParseDuration reads a compact duration such as "1h30m" or "45s".
//
// The input is one or more (digits)(unit) tokens with unit h, m or s, written
// back to back with nothing else in between; spaces are not allowed. The sum
// must be positive and at most MaxDuration.
func ParseDuration(expr string) (time.Duration, error) {
	if expr == "" {
		return 0, invalid("empty duration; %s", DurationHelp)
	}
	var (
		total int64
		i     int
	)
	for i < len(expr) {
		start := i
		for i < len(expr) && expr[i] >= '0' && expr[i] <= '9' {
			i++
		}
		if i == start || i == len(expr) {
			return 0, invalid("bad duration %q; %s", expr, DurationHelp)
		}
		n, err := strconv.ParseInt(expr[start:i], 10, 64)
		if err != nil || n > int64(MaxDuration/time.Second) {
			return 0, invalid("duration %q out of range; %s", expr, DurationHelp)
		}
		switch expr[i] {
		case 'h', 'H':
			n *= 3600
		case 'm', 'M':
			n *= 60
		case 's', 'S':
		default:
			return 0, invalid("bad duration unit %q; %s", expr[i], DurationHelp)
		}
		i++
		total += n
		if total > int64(MaxDuration/time.Second) {
			return 0, invalid("duration %q exceeds 24h; %s", expr, DurationHelp)
		}
	}
	if total <= 0 {
		return 0, invalid("duration must be greater than zero; %s", DurationHelp)
	}
	return time.Duration(total) * time.Second, nil
}
