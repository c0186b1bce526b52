package availability

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"9:30", 0, true},
		{"09:60", 0, true},
		{"25:00", 0, true},
		{"ab:cd", 0, true},
		{"", 0, true},
		{"-1:00", 0, true},
		{"+9:00", 0, true},
		{"-0:30", 0, true},
		{"+0:00", 0, true},
		{"09:+5", 0, true},
		{"09 30", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTimeFormat) {
					t.Fatalf("expected ErrInvalidTimeFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestParseEndTimeOfDay_AllowsMidnight(t *testing.T) {
	got, err := ParseEndTimeOfDay("24:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != MinutesPerDay {
		t.Errorf("expected %d, got %d", MinutesPerDay, got)
	}
	if _, err := ParseEndTimeOfDay("24:01"); !errors.Is(err, ErrInvalidTimeFormat) {
		t.Errorf("expected ErrInvalidTimeFormat for 24:01, got %v", err)
	}
}

func TestTimeOfDay_JSON(t *testing.T) {
	b, err := json.Marshal(MustTime("08:05"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"08:05"` {
		t.Errorf("expected \"08:05\", got %s", b)
	}
	var got TimeOfDay
	if err := json.Unmarshal([]byte(`"8am"`), &got); !errors.Is(err, ErrInvalidTimeFormat) {
		t.Errorf("expected ErrInvalidTimeFormat, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Weekday() != time.Thursday {
		t.Errorf("expected Thursday, got %s", d.Weekday())
	}
	for _, bad := range []string{"2024-02-30", "2023-02-29", "2024/01/01", "01-01-2024", ""} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("%q: expected ErrInvalidDate, got %v", bad, err)
		}
	}
}

func TestDate_Arithmetic(t *testing.T) {
	d := MustDate("2024-12-30")
	if got := d.AddDays(3).Key(); got != "2025-01-02" {
		t.Errorf("expected 2025-01-02, got %s", got)
	}
	if got := d.DaysUntil(MustDate("2025-01-06")); got != 7 {
		t.Errorf("expected 7 days, got %d", got)
	}
	if !d.Before(d.AddDays(1)) || d.After(d) || d.Compare(d) != 0 {
		t.Error("comparison helpers disagree")
	}
}

func TestDate_InAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 2024-03-10 is the spring-forward date; wall-clock 09:00 is still 09:00.
	got := MustDate("2024-03-10").In(loc, MustTime("09:00"))
	if got.Hour() != 9 || got.Minute() != 0 {
		t.Errorf("expected 09:00 local, got %s", got)
	}
}

func TestNewInterval_RejectsInverted(t *testing.T) {
	d := MustDate("2024-01-01")
	if _, err := NewInterval(d, MustTime("10:00"), MustTime("10:00")); !errors.Is(err, ErrInvalidTimeRange) {
		t.Errorf("expected ErrInvalidTimeRange, got %v", err)
	}
	if _, err := ParseInterval("2024-01-01", "11:00", "10:00"); !errors.Is(err, ErrInvalidTimeRange) {
		t.Errorf("expected ErrInvalidTimeRange, got %v", err)
	}
}

func TestInterval_OverlapsHalfOpen(t *testing.T) {
	d := MustDate("2024-01-01")
	a := Interval{Date: d, Start: MustTime("09:00"), End: MustTime("09:45")}

	tests := []struct {
		name  string
		b     Interval
		wants bool
	}{
		{"inside", Interval{d, MustTime("09:30"), MustTime("10:00")}, true},
		{"adjacent after", Interval{d, MustTime("09:45"), MustTime("10:15")}, false},
		{"adjacent before", Interval{d, MustTime("08:30"), MustTime("09:00")}, false},
		{"covering", Interval{d, MustTime("08:00"), MustTime("11:00")}, true},
		{"other date", Interval{d.AddDays(1), MustTime("09:00"), MustTime("09:45")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Overlaps(tt.b); got != tt.wants {
				t.Errorf("Overlaps = %v, want %v", got, tt.wants)
			}
			if got := tt.b.Overlaps(a); got != tt.wants {
				t.Errorf("Overlaps is not symmetric")
			}
		})
	}
}

func TestInterval_Contains(t *testing.T) {
	iv := Interval{Date: MustDate("2024-01-01"), Start: MustTime("12:00"), End: MustTime("13:00")}
	if !iv.Contains(MustTime("12:00")) {
		t.Error("expected start to be contained")
	}
	if iv.Contains(MustTime("13:00")) {
		t.Error("expected end to be excluded")
	}
	if iv.Minutes() != 60 {
		t.Errorf("expected 60 minutes, got %d", iv.Minutes())
	}
}

func TestWeeklySchedule_Validate(t *testing.T) {
	s, e := MustTime("09:00"), MustTime("17:00")
	bs, be := MustTime("08:00"), MustTime("09:30")

	ws := NewWeeklySchedule(map[time.Weekday]DaySchedule{
		time.Monday: {Working: true, Start: &s, End: &e, BreakStart: &bs, BreakEnd: &be},
	})
	if len(ws) != 7 {
		t.Fatalf("expected 7 weekdays, got %d", len(ws))
	}
	if err := ws.Validate(); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule for break before start, got %v", err)
	}

	if _, err := WorkingDay("09:00", "17:00", "12:00", ""); err == nil {
		t.Error("expected error for half-specified break")
	}
	if _, err := WorkingDay("17:00", "09:00", "", ""); !errors.Is(err, ErrInvalidSchedule) {
		t.Errorf("expected ErrInvalidSchedule for inverted hours, got %v", err)
	}
	day, err := WorkingDay("09:00", "17:00", "12:00", "13:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !day.HasBreak() {
		t.Error("expected break")
	}
}

func TestVacation_ValidateAndCovers(t *testing.T) {
	v := Vacation{StartDate: MustDate("2024-07-01"), EndDate: MustDate("2024-07-05"), Type: Conference}
	if err := v.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Covers(MustDate("2024-07-01")) || !v.Covers(MustDate("2024-07-05")) {
		t.Error("expected inclusive bounds")
	}
	if v.Covers(MustDate("2024-07-06")) {
		t.Error("expected day after end to be uncovered")
	}

	bad := Vacation{StartDate: MustDate("2024-07-05"), EndDate: MustDate("2024-07-01")}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("expected ErrInvalidDateRange, got %v", err)
	}
	unknown := Vacation{StartDate: v.StartDate, EndDate: v.EndDate, Type: "sabbatical"}
	if err := unknown.Validate(); !errors.Is(err, ErrInvalidVacationType) {
		t.Errorf("expected ErrInvalidVacationType, got %v", err)
	}
}
