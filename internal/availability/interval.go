package availability

import "fmt"

// Interval is a half-open [Start, End) range of wall-clock time on one date.
type Interval struct {
	Date  Date      `json:"date"`
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// NewInterval validates that start < end.
func NewInterval(d Date, start, end TimeOfDay) (Interval, error) {
	if start >= end {
		return Interval{}, fmt.Errorf("%w: %s-%s", ErrInvalidTimeRange, start, end)
	}
	return Interval{Date: d, Start: start, End: end}, nil
}

// ParseInterval builds an Interval from wire strings.
func ParseInterval(date, start, end string) (Interval, error) {
	d, err := ParseDate(date)
	if err != nil {
		return Interval{}, err
	}
	s, err := ParseTimeOfDay(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ParseEndTimeOfDay(end)
	if err != nil {
		return Interval{}, err
	}
	return NewInterval(d, s, e)
}

// Overlaps reports whether a and b share any instant. Adjacent intervals
// (one ending exactly where the other starts) do not overlap.
func (a Interval) Overlaps(b Interval) bool {
	return a.Date == b.Date && a.Start < b.End && b.Start < a.End
}

// Contains reports whether t lies in [Start, End).
func (a Interval) Contains(t TimeOfDay) bool {
	return a.Start <= t && t < a.End
}

// Minutes returns the length of the interval.
func (a Interval) Minutes() int { return int(a.End - a.Start) }

func (a Interval) String() string {
	return fmt.Sprintf("%s %s-%s", a.Date, a.Start, a.End)
}

// overlapsRange is the bare overlap test on one day's timeline.
func overlapsRange(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && bStart < aEnd
}
