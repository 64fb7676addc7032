package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mallardmetrics/mallard/internal/models"
)

const maxStepValueLen = 256

// ParseStep compiles a public step expression into a StepCondition.
// The only accepted forms are "page:<path>" and "event:<name>"; any
// other prefix is rejected. Values are length-capped and single-quote
// escaped before use: there is no string to interpolate into here, but
// the same bound and escaping discipline is kept so a condition can
// never carry an unbounded or quote-breaking value.
func ParseStep(raw string) (StepCondition, error) {
	prefix, value, ok := strings.Cut(raw, ":")
	if !ok {
		return nil, fmt.Errorf("invalid step expression %q: expected \"page:<path>\" or \"event:<name>\"", raw)
	}
	if len(value) > maxStepValueLen {
		value = value[:maxStepValueLen]
	}
	value = strings.ReplaceAll(value, "'", "''")

	switch prefix {
	case "page":
		return func(e models.Event) bool { return e.Pathname == value }, nil
	case "event":
		return func(e models.Event) bool { return e.EventName == value }, nil
	default:
		return nil, fmt.Errorf("invalid step expression %q: unknown prefix %q", raw, prefix)
	}
}

// ParseWindow parses a "<N> <unit>" window expression, N in [1, 365]
// and unit one of second(s)/minute(s)/hour(s)/day(s)/week(s).
func ParseWindow(raw string) (time.Duration, error) {
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return 0, fmt.Errorf("invalid window expression %q: expected \"<N> <unit>\"", raw)
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 || n > 365 {
		return 0, fmt.Errorf("invalid window expression %q: N must be an integer in [1, 365]", raw)
	}

	var unit time.Duration
	switch strings.TrimSuffix(fields[1], "s") {
	case "second":
		unit = time.Second
	case "minute":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	case "week":
		unit = 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid window expression %q: unknown unit %q", raw, fields[1])
	}

	return time.Duration(n) * unit, nil
}
