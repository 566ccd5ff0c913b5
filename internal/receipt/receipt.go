// Package receipt generates the sequential receipt numbers printed on
// sale and return documents.
package receipt

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Next returns the receipt number following latest, keeping the
// PREFIX-NNNNN shape with the counter zero padded to five digits.
// An empty latest starts the sequence at 1.
func Next(prefix, latest string) (string, error) {
	if latest == "" {
		return fmt.Sprintf("%s-%05d", prefix, 1), nil
	}
	idx := strings.LastIndex(latest, "-")
	if idx < 0 || idx == len(latest)-1 {
		return "", fmt.Errorf("receipt number %q has no counter suffix", latest)
	}
	counter, err := strconv.Atoi(latest[idx+1:])
	if err != nil {
		return "", fmt.Errorf("receipt number %q has non-numeric counter: %w", latest, err)
	}
	return fmt.Sprintf("%s-%05d", prefix, counter+1), nil
}

// Fallback builds a timestamp-derived receipt number for when the latest
// persisted number cannot be read. Collisions within the same
// millisecond are acceptable for this degraded path.
func Fallback(prefix string, now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 5 {
		ms = ms[len(ms)-5:]
	}
	return prefix + "-" + ms
}

// ReturnNumber builds a return receipt number from the processing time,
// e.g. RET-20250614 plus the trailing digits of the epoch millisecond
// clock to keep same-day returns distinct.
func ReturnNumber(now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 6 {
		ms = ms[len(ms)-6:]
	}
	return "RET-" + now.Format("20060102") + ms
}
