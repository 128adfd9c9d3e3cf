package cube

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeUnits(t *testing.T) {
	cases := []struct {
		units string
		step  time.Duration
		ref   time.Time
	}{
		{"days since 1970-01-01", 24 * time.Hour, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"hours since 1900-01-01 00:00:00", time.Hour, time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"seconds since 1981-01-01T00:00:00Z", time.Second, time.Date(1981, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"minutes since 2000-1-1 6:0:0", time.Minute, time.Date(2000, 1, 1, 6, 0, 0, 0, time.UTC)},
		{"days since 1950-01-01 00:00:00 UTC", 24 * time.Hour, time.Date(1950, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		step, ref, err := parseTimeUnits(c.units)
		require.NoError(t, err, c.units)
		assert.Equal(t, c.step, step, c.units)
		assert.True(t, c.ref.Equal(ref), "%s: got %s", c.units, ref)
	}

	for _, bad := range []string{"", "days", "fortnights since 1970-01-01", "days since yesterday"} {
		_, _, err := parseTimeUnits(bad)
		assert.Error(t, err, bad)
	}
}

func TestDecodeTimes(t *testing.T) {
	ts, err := decodeTimes([]float64{0, 0.5, 365}, "days since 2001-01-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC), ts[0])
	assert.Equal(t, time.Date(2001, 1, 1, 12, 0, 0, 0, time.UTC), ts[1])
	assert.Equal(t, time.Date(2002, 1, 1, 0, 0, 0, 0, time.UTC), ts[2])

	back := encodeTimes(ts)
	assert.Equal(t, float64(time.Date(2002, 1, 1, 0, 0, 0, 0, time.UTC).Unix())/3600, back[2])
}

func TestWindow(t *testing.T) {
	start, end, ok := window([]float64{30, 20, 10, 0}, 5, 25)
	require.True(t, ok)
	assert.Equal(t, 1, start)
	assert.Equal(t, 3, end)

	_, _, ok = window([]float64{1, 2, 3}, 4, 5)
	assert.False(t, ok)
}
