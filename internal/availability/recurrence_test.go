package availability

import (
	"errors"
	"testing"
)

func TestExpand_WeeklyInclusiveUntil(t *testing.T) {
	b := BlockedInterval{
		Date:       MustDate("2024-01-01"),
		Start:      MustTime("10:00"),
		End:        MustTime("11:00"),
		Recurrence: &RecurrenceRule{Frequency: Weekly, Until: MustDate("2024-01-22")},
	}
	got := Expand(b, MustDate("2023-12-01"), MustDate("2024-12-31"))
	want := []string{"2024-01-01", "2024-01-08", "2024-01-15", "2024-01-22"}
	if len(got) != len(want) {
		t.Fatalf("expected %d occurrences, got %d: %v", len(want), len(got), got)
	}
	for i, iv := range got {
		if iv.Date.Key() != want[i] {
			t.Errorf("occurrence %d: expected %s, got %s", i, want[i], iv.Date)
		}
		if iv.Start != b.Start || iv.End != b.End {
			t.Errorf("occurrence %d: times changed to %s-%s", i, iv.Start, iv.End)
		}
	}
}

func TestExpand_WeeklyClipsToRange(t *testing.T) {
	b := BlockedInterval{
		Date:       MustDate("2024-01-01"),
		Start:      MustTime("10:00"),
		End:        MustTime("11:00"),
		Recurrence: &RecurrenceRule{Frequency: Weekly, Until: MustDate("2024-12-30")},
	}
	got := Expand(b, MustDate("2024-03-01"), MustDate("2024-03-31"))
	want := []string{"2024-03-04", "2024-03-11", "2024-03-18", "2024-03-25"}
	if len(got) != len(want) {
		t.Fatalf("expected %d occurrences, got %v", len(want), got)
	}
	for i, iv := range got {
		if iv.Date.Key() != want[i] {
			t.Errorf("occurrence %d: expected %s, got %s", i, want[i], iv.Date)
		}
	}
}

func TestExpand_MonthlySkipsShortMonths(t *testing.T) {
	b := BlockedInterval{
		Date:       MustDate("2024-01-31"),
		Start:      MustTime("14:00"),
		End:        MustTime("15:00"),
		Recurrence: &RecurrenceRule{Frequency: Monthly, Until: MustDate("2024-06-30")},
	}
	got := Expand(b, MustDate("2024-01-01"), MustDate("2024-12-31"))
	want := []string{"2024-01-31", "2024-03-31", "2024-05-31"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i, iv := range got {
		if iv.Date.Key() != want[i] {
			t.Errorf("occurrence %d: expected %s, got %s", i, want[i], iv.Date)
		}
	}
}

func TestExpand_MonthlyAcrossYear(t *testing.T) {
	b := BlockedInterval{
		Date:       MustDate("2024-11-15"),
		Start:      MustTime("08:00"),
		End:        MustTime("09:00"),
		Recurrence: &RecurrenceRule{Frequency: Monthly, Until: MustDate("2025-02-15")},
	}
	got := Expand(b, MustDate("2024-12-01"), MustDate("2025-03-31"))
	want := []string{"2024-12-15", "2025-01-15", "2025-02-15"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i, iv := range got {
		if iv.Date.Key() != want[i] {
			t.Errorf("occurrence %d: expected %s, got %s", i, want[i], iv.Date)
		}
	}
}

func TestExpand_OneOff(t *testing.T) {
	b := BlockedInterval{Date: MustDate("2024-05-05"), Start: MustTime("10:00"), End: MustTime("12:00")}
	if got := Expand(b, MustDate("2024-05-01"), MustDate("2024-05-31")); len(got) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(got))
	}
	if got := Expand(b, MustDate("2024-05-06"), MustDate("2024-05-31")); len(got) != 0 {
		t.Fatalf("expected no occurrence outside range, got %v", got)
	}
	if got := Expand(b, MustDate("2024-05-31"), MustDate("2024-05-01")); got != nil {
		t.Fatalf("expected nil for inverted range, got %v", got)
	}
}

func TestExpandAll_Sorted(t *testing.T) {
	blocks := []BlockedInterval{
		{Date: MustDate("2024-01-02"), Start: MustTime("15:00"), End: MustTime("16:00")},
		{Date: MustDate("2024-01-02"), Start: MustTime("09:00"), End: MustTime("10:00")},
		{Date: MustDate("2024-01-01"), Start: MustTime("11:00"), End: MustTime("12:00")},
	}
	got := ExpandAll(blocks, MustDate("2024-01-01"), MustDate("2024-01-31"))
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if got[0].Date.Key() != "2024-01-01" || got[1].Start != MustTime("09:00") || got[2].Start != MustTime("15:00") {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestBlockedInterval_Validate(t *testing.T) {
	base := BlockedInterval{Date: MustDate("2024-01-10"), Start: MustTime("10:00"), End: MustTime("11:00")}

	inverted := base
	inverted.End = MustTime("09:00")
	if err := inverted.Validate(); !errors.Is(err, ErrInvalidTimeRange) {
		t.Errorf("expected ErrInvalidTimeRange, got %v", err)
	}

	early := base
	early.Recurrence = &RecurrenceRule{Frequency: Weekly, Until: MustDate("2024-01-09")}
	if err := early.Validate(); !errors.Is(err, ErrInvalidRecurrenceRange) {
		t.Errorf("expected ErrInvalidRecurrenceRange, got %v", err)
	}

	daily := base
	daily.Recurrence = &RecurrenceRule{Frequency: "daily", Until: MustDate("2024-02-01")}
	if err := daily.Validate(); !errors.Is(err, ErrInvalidRecurrence) {
		t.Errorf("expected ErrInvalidRecurrence, got %v", err)
	}

	sameDay := base
	sameDay.Recurrence = &RecurrenceRule{Frequency: Monthly, Until: base.Date}
	if err := sameDay.Validate(); err != nil {
		t.Errorf("until == date should be valid, got %v", err)
	}
}

func TestOccursOn(t *testing.T) {
	b := BlockedInterval{
		Date:       MustDate("2024-01-03"),
		Start:      MustTime("10:00"),
		End:        MustTime("11:00"),
		Recurrence: &RecurrenceRule{Frequency: Weekly, Until: MustDate("2024-02-28")},
	}
	if !OccursOn(b, MustDate("2024-02-28")) {
		t.Error("expected occurrence on until date")
	}
	if OccursOn(b, MustDate("2024-02-27")) {
		t.Error("unexpected occurrence on a Tuesday")
	}
}
