package availability

import (
	"sort"
	"time"
)

// TimeInterval is a half-open [Start, End) instant pair.
type TimeInterval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals share any instant.
// Touching intervals do not overlap.
func Overlaps(a, b TimeInterval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Subtract returns the portions of every base interval not covered by any
// busy interval. Zero-length and inverted intervals are dropped from the
// output. The busy slice is not modified.
func Subtract(base, busy []TimeInterval) []TimeInterval {
	if len(busy) == 0 {
		return base
	}

	sortedBusy := make([]TimeInterval, len(busy))
	copy(sortedBusy, busy)
	sort.Slice(sortedBusy, func(i, j int) bool {
		return sortedBusy[i].Start.Before(sortedBusy[j].Start)
	})

	var result []TimeInterval
	for _, segment := range base {
		cursor := segment.Start
		for _, b := range sortedBusy {
			if !Overlaps(segment, b) {
				continue
			}
			if b.Start.After(cursor) {
				result = append(result, TimeInterval{Start: cursor, End: b.Start})
			}
			if b.End.After(cursor) {
				cursor = b.End
			}
			if !cursor.Before(segment.End) {
				break
			}
		}
		if cursor.Before(segment.End) {
			result = append(result, TimeInterval{Start: cursor, End: segment.End})
		}
	}

	out := result[:0]
	for _, x := range result {
		if x.End.After(x.Start) {
			out = append(out, x)
		}
	}
	return out
}
