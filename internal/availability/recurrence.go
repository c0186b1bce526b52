package availability

import (
	"slices"
	"time"
)

// Expand returns the concrete intervals a block produces between from and to
// inclusive. An unknown frequency expands to the base occurrence only.
//
// Monthly occurrences keep the day-of-month of the block date; a month that
// has no such day (the 31st in April, the 30th in February) is skipped.
func Expand(b BlockedInterval, from, to Date) []Interval {
	if to.Before(from) {
		return nil
	}
	last := b.LastDate()
	if last.After(to) {
		last = to
	}

	var out []Interval
	emit := func(d Date) {
		if !d.Before(from) {
			out = append(out, Interval{Date: d, Start: b.Start, End: b.End})
		}
	}

	if b.Recurrence == nil {
		if !b.Date.Before(from) && !b.Date.After(to) {
			emit(b.Date)
		}
		return out
	}

	switch b.Recurrence.Frequency {
	case Weekly:
		d := b.Date
		// Jump close to from instead of walking every week since the series start.
		if gap := b.Date.DaysUntil(from); gap > 7 {
			d = b.Date.AddDays(gap / 7 * 7)
		}
		for ; !d.After(last); d = d.AddDays(7) {
			emit(d)
		}
	case Monthly:
		y, m := b.Date.Year, b.Date.Month
		for {
			first := Date{Year: y, Month: m, Day: 1}
			if first.After(last) {
				break
			}
			if d, ok := dayInMonth(y, m, b.Date.Day); ok && !d.After(last) {
				emit(d)
			}
			m++
			if m > time.December {
				m = time.January
				y++
			}
		}
	default:
		if !b.Date.Before(from) && !b.Date.After(to) {
			emit(b.Date)
		}
	}
	return out
}

// ExpandAll expands every block and orders the result by date then start.
func ExpandAll(blocks []BlockedInterval, from, to Date) []Interval {
	var out []Interval
	for _, b := range blocks {
		out = append(out, Expand(b, from, to)...)
	}
	slices.SortFunc(out, func(a, b Interval) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmpInt(int(a.Start), int(b.Start))
	})
	return out
}

// OccursOn reports whether b produces an occurrence on d.
func OccursOn(b BlockedInterval, d Date) bool {
	return len(Expand(b, d, d)) > 0
}

func dayInMonth(y int, m time.Month, day int) (Date, bool) {
	want := Date{Year: y, Month: m, Day: day}
	got := DateOf(time.Date(y, m, day, 0, 0, 0, 0, time.UTC))
	return want, got == want
}
