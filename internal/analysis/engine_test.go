package analysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestBuildInput(t *testing.T) {
	data := domain.StreamData{
		HeartRate: []domain.HeartRateEntry{
			{Timestamp: "2024-01-01T06:00:00+00:00", BPM: 55, HRV: floatPtr(48.5)},
			{Timestamp: "2024-01-02T06:00:00+00:00", BPM: 57},
		},
		Sleep: []domain.SleepEntry{
			{ID: "s1", Day: "2024-01-01", TotalSleepDuration: intPtr(27000), Efficiency: intPtr(91), Score: intPtr(80)},
		},
		DailyReadiness: []domain.DailyReadinessEntry{
			{ID: "r1", Day: "2024-01-01", Score: intPtr(77)},
		},
	}

	input := BuildInput("a@x.com", data)

	require.Len(t, input.HRV, 2)
	assert.Equal(t, "2024-01-01", input.HRV[0].Day)
	assert.Equal(t, 48.5, *input.HRV[0].HRV)
	assert.Nil(t, input.HRV[1].HRV)

	require.Len(t, input.Sleep, 1)
	assert.Equal(t, 27000, *input.Sleep[0].DurationSeconds)
	assert.Equal(t, 91, *input.Sleep[0].Efficiency)

	require.Len(t, input.Readiness, 1)
	assert.Equal(t, 77, *input.Readiness[0].Score)

	encoded, err := json.Marshal(BuildInput("a@x.com", domain.StreamData{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_email":"a@x.com","hrv":[],"sleep":[],"readiness":[]}`, string(encoded))
}

func TestSummarize(t *testing.T) {
	assert.Nil(t, Summarize(nil))

	summary := Summarize(&Result{
		Patterns:     []json.RawMessage{json.RawMessage(`{}`), json.RawMessage(`{}`)},
		Correlations: []json.RawMessage{json.RawMessage(`{}`)},
		Summary:      "sleep drives readiness",
	})
	assert.Equal(t, 2, summary.Patterns)
	assert.Equal(t, 1, summary.Correlations)
	assert.Equal(t, "sleep drives readiness", summary.Summary)
}

func TestHTTPEngine_Analyze(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/analyze", r.URL.Path)

		var input Input
		require.NoError(t, json.NewDecoder(r.Body).Decode(&input))
		assert.Equal(t, "a@x.com", input.UserEmail)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"patterns":[{"kind":"a"}],"correlations":[],"summary":"ok"}`))
	}))
	defer server.Close()

	engine := NewHTTPEngine(server.URL, time.Second)
	result, err := engine.Analyze(context.Background(), &Input{UserEmail: "a@x.com"})

	require.NoError(t, err)
	assert.Len(t, result.Patterns, 1)
	assert.Equal(t, "ok", result.Summary)
}

func TestHTTPEngine_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	engine := NewHTTPEngine(server.URL, time.Second)
	_, err := engine.Analyze(context.Background(), &Input{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPEngine_Disabled(t *testing.T) {
	engine := NewHTTPEngine("", time.Second)
	_, err := engine.Analyze(context.Background(), &Input{})
	assert.ErrorIs(t, err, ErrEngineDisabled)
}
