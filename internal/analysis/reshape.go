package analysis

import "github.com/prperemyshlev/wearable-sync/internal/domain"

// BuildInput reshapes fetched streams into engine series, one point per entry
func BuildInput(email string, data domain.StreamData) *Input {
	input := &Input{
		UserEmail: email,
		HRV:       make([]HRVPoint, 0, len(data.HeartRate)),
		Sleep:     make([]SleepPoint, 0, len(data.Sleep)),
		Readiness: make([]ReadinessPoint, 0, len(data.DailyReadiness)),
	}

	for _, hr := range data.HeartRate {
		input.HRV = append(input.HRV, HRVPoint{Day: hr.Day(), HRV: hr.HRV})
	}

	for _, s := range data.Sleep {
		input.Sleep = append(input.Sleep, SleepPoint{
			Day:             s.Day,
			DurationSeconds: s.TotalSleepDuration,
			Efficiency:      s.Efficiency,
			Score:           s.Score,
		})
	}

	for _, r := range data.DailyReadiness {
		input.Readiness = append(input.Readiness, ReadinessPoint{Day: r.Day, Score: r.Score})
	}

	return input
}

// Summarize converts an engine result into the caller-facing summary
func Summarize(result *Result) *domain.AnalysisSummary {
	if result == nil {
		return nil
	}
	return &domain.AnalysisSummary{
		Patterns:     len(result.Patterns),
		Correlations: len(result.Correlations),
		Summary:      result.Summary,
	}
}
