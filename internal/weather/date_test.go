package weather

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name string
		in   int64
		want int64
	}{
		{"midnight unchanged", day, day},
		{"mid-day truncated", day + 13*time.Hour.Milliseconds(), day},
		{"last millisecond of day", day + DayMillis - 1, day},
		{"epoch", 0, 0},
		{"before epoch floors", -1, -DayMillis},
		{"exactly one day before epoch", -DayMillis, -DayMillis},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
			assert.True(t, IsNormalized(Normalize(tt.in)))
		})
	}
}

func TestIsNormalized(t *testing.T) {
	assert.True(t, IsNormalized(0))
	assert.True(t, IsNormalized(3*DayMillis))
	assert.False(t, IsNormalized(3*DayMillis+1))
	assert.False(t, IsNormalized(-1))
}

func TestDateOfIgnoresZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	// 2024-03-10 08:00 JST is 2024-03-09 23:00 UTC.
	local := time.Date(2024, 3, 10, 8, 0, 0, 0, tokyo)

	assert.Equal(t, "2024-03-09", FormatDate(DateOf(local)))
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC).UnixMilli()

	got, err := ParseDate("2024-03-10")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseDate(" 1710028800000 ")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// millis are returned as given
	got, err = ParseDate("1710028800001")
	require.NoError(t, err)
	assert.Equal(t, want+1, got)

	for _, bad := range []string{"", "10/03/2024", "2024-13-01", "tomorrow"} {
		_, err := ParseDate(bad)
		assert.Error(t, err, bad)
	}
}

func TestTimeOfRoundTrip(t *testing.T) {
	ts := TimeOf(DateOf(time.Date(2030, 12, 31, 23, 59, 59, 0, time.UTC)))
	assert.True(t, time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC).Equal(ts))
	assert.Equal(t, time.UTC, ts.Location())
}
