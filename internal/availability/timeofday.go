package availability

import (
	"encoding/json"
	"fmt"
)

// MinutesPerDay is the exclusive upper bound of a TimeOfDay.
const MinutesPerDay = 24 * 60

// TimeOfDay is a wall-clock time in minutes since midnight, doctor-local.
type TimeOfDay int

// ParseTimeOfDay parses a 24-hour "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := parseClock(s)
	if err != nil {
		return 0, err
	}
	if t >= MinutesPerDay {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	return t, nil
}

// ParseEndTimeOfDay is ParseTimeOfDay but also accepts "24:00" so that a
// range can end at midnight.
func ParseEndTimeOfDay(s string) (TimeOfDay, error) {
	return parseClock(s)
}

func parseClock(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' || !digits(s[:2]) || !digits(s[3:]) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	h := int(s[0]-'0')*10 + int(s[1]-'0')
	m := int(s[3]-'0')*10 + int(s[4]-'0')
	t := TimeOfDay(h*60 + m)
	if m > 59 || t > MinutesPerDay {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeFormat, s)
	}
	return t, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MustTime is ParseTimeOfDay for constants; it panics on bad input.
func MustTime(s string) TimeOfDay {
	t, err := ParseEndTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Add returns t shifted by the given number of minutes.
func (t TimeOfDay) Add(minutes int) TimeOfDay { return t + TimeOfDay(minutes) }

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTimeFormat, string(data))
	}
	parsed, err := ParseEndTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
