package periodictask

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAll(t *testing.T) {
	require.Len(t, All, 9)
	seen := make(map[T]bool)
	for _, kind := range All {
		require.NotEqual(t, Invalid, kind)
		require.False(t, seen[kind], "duplicate kind %s", kind)
		seen[kind] = true
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, kind := range All {
		require.Equal(t, kind, New(kind.String()))
	}
	require.Equal(t, Invalid, New("no-such-kind"))
	require.Equal(t, Invalid, New(""))
}

func TestDefaultIntervals(t *testing.T) {
	intervals := DefaultIntervals()
	require.Len(t, intervals, 9)
	expected := map[T]time.Duration{
		CCStatus:      time.Second,
		ClientState:   time.Second,
		DiskUsage:     60 * time.Second,
		FileTransfers: time.Second,
		Messages:      time.Second,
		Notices:       60 * time.Second,
		ProjectStatus: time.Second,
		Statistics:    60 * time.Second,
		Tasks:         time.Second,
	}
	require.Equal(t, expected, map[T]time.Duration(intervals))

	// mutating the copy must not leak into the defaults
	intervals[Tasks] = time.Hour
	require.Equal(t, time.Second, DefaultIntervals()[Tasks])
}

func TestMarshalJSON(t *testing.T) {
	b, err := Tasks.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"tasks"`, string(b))

	var kind T
	require.NoError(t, kind.UnmarshalJSON([]byte(`"notices"`)))
	require.Equal(t, Notices, kind)
}
