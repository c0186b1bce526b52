// Package scheduleview groups evaluator slots into day, week and month
// calendars for display.
package scheduleview

import (
	"iter"
	"time"

	"github.com/hospital/hms/internal/availability"
)

// SlotLister is the only thing the views need from the evaluator.
type SlotLister interface {
	ListSlots(date availability.Date, granularity int) iter.Seq[availability.Slot]
}

// Counts tallies slots by status.
type Counts struct {
	Available  int `json:"available"`
	Booked     int `json:"booked"`
	Blocked    int `json:"blocked"`
	OutOfHours int `json:"out_of_hours"`
}

func (c *Counts) add(s availability.SlotStatus) {
	switch s {
	case availability.SlotAvailable:
		c.Available++
	case availability.SlotBooked:
		c.Booked++
	case availability.SlotBlocked:
		c.Blocked++
	case availability.SlotOutOfHours:
		c.OutOfHours++
	}
}

// Total is the number of slots counted.
func (c Counts) Total() int {
	return c.Available + c.Booked + c.Blocked + c.OutOfHours
}

// DayView is the full slot grid for one date.
type DayView struct {
	Date    availability.Date   `json:"date"`
	Weekday string              `json:"weekday"`
	Slots   []availability.Slot `json:"slots"`
	Counts  Counts              `json:"counts"`
}

// WeekView holds seven days starting on Monday.
type WeekView struct {
	Start availability.Date `json:"start"`
	End   availability.Date `json:"end"`
	Days  []DayView         `json:"days"`
}

// MonthDay is one cell of a month calendar.
type MonthDay struct {
	Date   availability.Date `json:"date"`
	Counts Counts            `json:"counts"`
}

// MonthView summarizes every date of a month.
type MonthView struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Days  []MonthDay `json:"days"`
}

// Day collects the slots of date.
func Day(l SlotLister, date availability.Date, granularity int) DayView {
	v := DayView{Date: date, Weekday: date.Weekday().String()}
	for slot := range l.ListSlots(date, granularity) {
		v.Slots = append(v.Slots, slot)
		v.Counts.add(slot.Status)
	}
	return v
}

// WeekStart returns the Monday on or before d.
func WeekStart(d availability.Date) availability.Date {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

// Week returns the Monday-first week containing anyDate.
func Week(l SlotLister, anyDate availability.Date, granularity int) WeekView {
	start := WeekStart(anyDate)
	v := WeekView{Start: start, End: start.AddDays(6), Days: make([]DayView, 0, 7)}
	for i := 0; i < 7; i++ {
		v.Days = append(v.Days, Day(l, start.AddDays(i), granularity))
	}
	return v
}

// Month returns per-day status counts for the given month.
func Month(l SlotLister, year int, month time.Month, granularity int) MonthView {
	v := MonthView{Year: year, Month: month}
	for d := (availability.Date{Year: year, Month: month, Day: 1}); d.Month == month; d = d.AddDays(1) {
		var c Counts
		for slot := range l.ListSlots(d, granularity) {
			c.add(slot.Status)
		}
		v.Days = append(v.Days, MonthDay{Date: d, Counts: c})
	}
	return v
}
