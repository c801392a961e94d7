package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 10, hour, min, 0, 0, time.UTC)
}

func iv(startHour, startMin, endHour, endMin int) TimeInterval {
	return TimeInterval{Start: at(startHour, startMin), End: at(endHour, endMin)}
}

func TestOverlaps(t *testing.T) {
	require.True(t, Overlaps(iv(9, 0, 11, 0), iv(10, 0, 12, 0)))
	require.True(t, Overlaps(iv(10, 0, 12, 0), iv(9, 0, 11, 0)))
	require.True(t, Overlaps(iv(9, 0, 12, 0), iv(10, 0, 11, 0)))

	// Touching intervals do not overlap.
	require.False(t, Overlaps(iv(9, 0, 10, 0), iv(10, 0, 11, 0)))
	require.False(t, Overlaps(iv(10, 0, 11, 0), iv(9, 0, 10, 0)))
}

func TestSubtractComplementaryGaps(t *testing.T) {
	working := []TimeInterval{iv(9, 0, 17, 0)}
	busy := []TimeInterval{iv(10, 0, 11, 0), iv(13, 0, 14, 30)}

	got := Subtract(working, busy)

	require.Equal(t, []TimeInterval{
		iv(9, 0, 10, 0),
		iv(11, 0, 13, 0),
		iv(14, 30, 17, 0),
	}, got)

	// Free time plus busy time adds back up to the working interval.
	var total time.Duration
	for _, x := range got {
		total += x.End.Sub(x.Start)
	}
	for _, x := range busy {
		total += x.End.Sub(x.Start)
	}
	require.Equal(t, 8*time.Hour, total)
}

func TestSubtractFullyCovered(t *testing.T) {
	working := []TimeInterval{iv(9, 0, 17, 0)}
	busy := []TimeInterval{iv(8, 0, 13, 0), iv(13, 0, 18, 0)}
	require.Empty(t, Subtract(working, busy))
}

func TestSubtractNoBusy(t *testing.T) {
	working := []TimeInterval{iv(9, 0, 17, 0)}
	require.Equal(t, working, Subtract(working, nil))
}

func TestSubtractOrderIndependent(t *testing.T) {
	working := []TimeInterval{iv(8, 0, 20, 0)}
	busy := []TimeInterval{iv(15, 0, 16, 0), iv(9, 0, 10, 0), iv(12, 0, 12, 45)}
	reversed := []TimeInterval{iv(12, 0, 12, 45), iv(9, 0, 10, 0), iv(15, 0, 16, 0)}

	require.Equal(t, Subtract(working, busy), Subtract(working, reversed))
}

func TestSubtractBusyOverhangsEdges(t *testing.T) {
	working := []TimeInterval{iv(9, 0, 17, 0)}
	busy := []TimeInterval{iv(8, 0, 9, 30), iv(16, 30, 18, 0)}

	require.Equal(t, []TimeInterval{iv(9, 30, 16, 30)}, Subtract(working, busy))
}

func TestSubtractOverlappingBusyIntervals(t *testing.T) {
	working := []TimeInterval{iv(9, 0, 17, 0)}
	busy := []TimeInterval{iv(10, 0, 12, 0), iv(11, 0, 13, 0)}

	require.Equal(t, []TimeInterval{iv(9, 0, 10, 0), iv(13, 0, 17, 0)}, Subtract(working, busy))
}

func TestSubtractMultipleBaseSegments(t *testing.T) {
	working := []TimeInterval{iv(9, 0, 12, 0), iv(14, 0, 18, 0)}
	busy := []TimeInterval{iv(11, 0, 15, 0)}

	require.Equal(t, []TimeInterval{iv(9, 0, 11, 0), iv(15, 0, 18, 0)}, Subtract(working, busy))
}
