package validation_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lerian-labs/icvsb-gateway/internal/validation"
)

func TestInteger(t *testing.T) {
	n, err := validation.Integer("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = validation.Integer("not-a-number")
	assert.Error(t, err)
}

func TestURI(t *testing.T) {
	_, err := validation.URI("https://example.com/a.jpg")
	assert.NoError(t, err)

	_, err = validation.URI("not a uri at all")
	assert.Error(t, err)

	_, err = validation.URI("/relative/path")
	assert.Error(t, err)
}

func TestCronLine(t *testing.T) {
	_, err := validation.CronLine("0 0 * * 0")
	assert.NoError(t, err)

	_, err = validation.CronLine("not a cron line")
	assert.Error(t, err)
}

func TestHTTPDateRoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	formatted := validation.FormatHTTPDate(now)

	parsed, err := validation.HTTPDate(formatted)
	require.NoError(t, err)
	assert.True(t, now.Equal(parsed))
}
