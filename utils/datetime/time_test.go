package datetime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatParseDateTime(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 30, 45, 0, time.Local)
	s := FormatDateTime(at)
	assert.Equal(t, "2025-06-01 12:30:45", s)

	parsed, err := ParseDateTime(s)
	require.NoError(t, err)
	assert.True(t, at.Equal(parsed))
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
		{26 * time.Hour, "1d 2h"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatDuration(c.d), c.d.String())
	}
}
