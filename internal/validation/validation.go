// Package validation implements the primitive checkers:
// integer, positive float, cron string, URI, and RFC 2616 HTTP date. These
// back both query-parameter parsing in internal/httpapi and BRC
// configuration validation in internal/brc.
package validation

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
)

// Integer parses s as a base-10 integer.
func Integer(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", apperr.ErrNotInteger, s)
	}

	return n, nil
}

// PositiveFloat parses s as a float64 strictly greater than zero.
func PositiveFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("%w: %q", apperr.ErrNotPositiveFloat, s)
	}

	return f, nil
}

// ConfidenceRange parses s as a float64 within [0, 1].
func ConfidenceRange(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 1 {
		return 0, fmt.Errorf("%w: %q must be within [0,1]", apperr.ErrNotPositiveFloat, s)
	}

	return f, nil
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronLine validates s as a standard five-field cron expression.
func CronLine(s string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", apperr.ErrNotCronLine, s, err)
	}

	return sched, nil
}

// URI validates s as a well-formed absolute URI.
func URI(s string) (*url.URL, error) {
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("%w: %q", apperr.ErrNotURI, s)
	}

	return u, nil
}

// HTTPDate parses s as an RFC 2616 HTTP-date.
func HTTPDate(s string) (time.Time, error) {
	t, err := http.ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", apperr.ErrNotHTTPDate, s)
	}

	return t, nil
}

// FormatHTTPDate renders t as an RFC 2616 HTTP-date (always GMT/UTC).
func FormatHTTPDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
