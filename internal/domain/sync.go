package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the provider's query and day format
const DateLayout = "2006-01-02"

// Stream names a provider data stream
type Stream string

const (
	StreamSleep          Stream = "sleep"
	StreamDailyActivity  Stream = "daily_activity"
	StreamDailyReadiness Stream = "daily_readiness"
	StreamHeartRate      Stream = "heart_rate"
	StreamWorkout        Stream = "workout"
)

// Streams is the fixed fetch order
var Streams = []Stream{
	StreamSleep,
	StreamDailyActivity,
	StreamDailyReadiness,
	StreamHeartRate,
	StreamWorkout,
}

// SummaryKey is the key used for the stream's count in sync responses
func (s Stream) SummaryKey() string {
	return string(s) + "_records"
}

// SleepEntry is one sleep period as the provider reports it
type SleepEntry struct {
	ID                 string   `json:"id"`
	Day                string   `json:"day"`
	Type               string   `json:"type,omitempty"`
	BedtimeStart       string   `json:"bedtime_start,omitempty"`
	BedtimeEnd         string   `json:"bedtime_end,omitempty"`
	TotalSleepDuration *int     `json:"total_sleep_duration,omitempty"`
	Efficiency         *int     `json:"efficiency,omitempty"`
	Score              *int     `json:"score,omitempty"`
	AverageHRV         *float64 `json:"average_hrv,omitempty"`
	LowestHeartRate    *int     `json:"lowest_heart_rate,omitempty"`
}

// DailyActivityEntry is one day of activity totals
type DailyActivityEntry struct {
	ID             string `json:"id"`
	Day            string `json:"day"`
	Score          *int   `json:"score,omitempty"`
	Steps          *int   `json:"steps,omitempty"`
	ActiveCalories *int   `json:"active_calories,omitempty"`
	TotalCalories  *int   `json:"total_calories,omitempty"`
}

// DailyReadinessEntry is one day's readiness score
type DailyReadinessEntry struct {
	ID                   string   `json:"id"`
	Day                  string   `json:"day"`
	Score                *int     `json:"score,omitempty"`
	TemperatureDeviation *float64 `json:"temperature_deviation,omitempty"`
}

// HeartRateEntry is a single heart rate sample
type HeartRateEntry struct {
	Timestamp string   `json:"timestamp"`
	BPM       int      `json:"bpm"`
	Source    string   `json:"source,omitempty"`
	HRV       *float64 `json:"hrv,omitempty"`
}

// Day returns the calendar day of the reading, or "" for an unparsable timestamp
func (e HeartRateEntry) Day() string {
	if len(e.Timestamp) >= len(DateLayout) {
		if _, err := time.Parse(DateLayout, e.Timestamp[:len(DateLayout)]); err == nil {
			return e.Timestamp[:len(DateLayout)]
		}
	}
	return ""
}

// WorkoutEntry is one recorded workout
type WorkoutEntry struct {
	ID            string   `json:"id"`
	Day           string   `json:"day"`
	Activity      string   `json:"activity,omitempty"`
	Intensity     string   `json:"intensity,omitempty"`
	StartDatetime string   `json:"start_datetime,omitempty"`
	EndDatetime   string   `json:"end_datetime,omitempty"`
	Calories      *float64 `json:"calories,omitempty"`
	Distance      *float64 `json:"distance,omitempty"`
}

// StreamData holds the typed entries of every stream. Nil slices are
// normalized to empty by Normalize before persisting.
type StreamData struct {
	Sleep          []SleepEntry          `json:"sleep"`
	DailyActivity  []DailyActivityEntry  `json:"daily_activity"`
	DailyReadiness []DailyReadinessEntry `json:"daily_readiness"`
	HeartRate      []HeartRateEntry      `json:"heart_rate"`
	Workout        []WorkoutEntry        `json:"workout"`
}

// Normalize replaces nil slices with empty ones so they encode as []
func (d *StreamData) Normalize() {
	if d.Sleep == nil {
		d.Sleep = []SleepEntry{}
	}
	if d.DailyActivity == nil {
		d.DailyActivity = []DailyActivityEntry{}
	}
	if d.DailyReadiness == nil {
		d.DailyReadiness = []DailyReadinessEntry{}
	}
	if d.HeartRate == nil {
		d.HeartRate = []HeartRateEntry{}
	}
	if d.Workout == nil {
		d.Workout = []WorkoutEntry{}
	}
}

// Count returns the number of entries held for stream
func (d *StreamData) Count(stream Stream) int {
	switch stream {
	case StreamSleep:
		return len(d.Sleep)
	case StreamDailyActivity:
		return len(d.DailyActivity)
	case StreamDailyReadiness:
		return len(d.DailyReadiness)
	case StreamHeartRate:
		return len(d.HeartRate)
	case StreamWorkout:
		return len(d.Workout)
	}
	return 0
}

// DateRange is an inclusive range of UTC calendar days
type DateRange struct {
	Start time.Time
	End   time.Time
}

// DefaultDateRange ends today (UTC) and starts days earlier
func DefaultDateRange(now time.Time, days int) DateRange {
	end := truncateDay(now)
	return DateRange{Start: end.AddDate(0, 0, -days), End: end}
}

// ParseDateRange builds a range from optional YYYY-MM-DD bounds. Missing
// bounds are filled from the default range.
func ParseDateRange(start, end string, now time.Time, defaultDays int) (DateRange, error) {
	rng := DefaultDateRange(now, defaultDays)

	if end != "" {
		t, err := time.Parse(DateLayout, end)
		if err != nil {
			return DateRange{}, &ValidationError{Field: "endDate", Message: fmt.Sprintf("must be YYYY-MM-DD, got %q", end)}
		}
		rng.End = t
		if start == "" {
			rng.Start = t.AddDate(0, 0, -defaultDays)
		}
	}

	if start != "" {
		t, err := time.Parse(DateLayout, start)
		if err != nil {
			return DateRange{}, &ValidationError{Field: "startDate", Message: fmt.Sprintf("must be YYYY-MM-DD, got %q", start)}
		}
		rng.Start = t
	}

	if rng.Start.After(rng.End) {
		return DateRange{}, &ValidationError{Field: "startDate", Message: "must not be after endDate"}
	}

	return rng, nil
}

func (r DateRange) StartDate() string { return r.Start.Format(DateLayout) }
func (r DateRange) EndDate() string   { return r.End.Format(DateLayout) }

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SyncRecord is one append-only sync snapshot
type SyncRecord struct {
	ID        string
	UserEmail string
	Provider  string
	SyncedAt  time.Time
	Range     DateRange
	Data      StreamData
	Raw       map[Stream]json.RawMessage
}

// AnalysisSummary is what the caller sees of a pattern analysis
type AnalysisSummary struct {
	Patterns     int    `json:"patterns"`
	Correlations int    `json:"correlations"`
	Summary      string `json:"summary,omitempty"`
	Status       string `json:"status,omitempty"`
}

const AnalysisStatusPending = "pending"
