package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueCode(t *testing.T) {
	tests := []struct {
		name     string
		formData string
		want     string
	}{
		{"present", `{"uniqueCode":"U1"}`, "U1"},
		{"trimmed", `{"uniqueCode":"  U2 "}`, "U2"},
		{"missing", `{"age":30}`, ""},
		{"empty", `{"uniqueCode":""}`, ""},
		{"not an object", `["U1"]`, ""},
		{"wrong type", `{"uniqueCode":42}`, ""},
		{"malformed", `{"uniqueCode":`, ""},
		{"no data", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &IdentityRecord{FormData: json.RawMessage(tt.formData)}
			assert.Equal(t, tt.want, record.UniqueCode())
		})
	}

	var nilRecord *IdentityRecord
	assert.Equal(t, "", nilRecord.UniqueCode())
}

func TestCredentialIsExpired(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Second)

	assert.False(t, (&Credential{}).IsExpired(now, 0), "no expiry never expires")
	assert.False(t, (&Credential{ExpiresAt: &future}).IsExpired(now, 0))
	assert.True(t, (&Credential{ExpiresAt: &future}).IsExpired(now, 2*time.Hour), "inside margin")
	assert.True(t, (&Credential{ExpiresAt: &past}).IsExpired(now, 0))
	assert.True(t, (&Credential{ExpiresAt: &now}).IsExpired(now, 0), "expiry instant counts as expired")
}

func TestCredentialOwnerKeyAndRefresh(t *testing.T) {
	code := "U1"
	empty := ""
	refresh := "r"

	assert.Equal(t, "U1", (&Credential{UserEmail: "a@x.com", UserCode: &code}).OwnerKey())
	assert.Equal(t, "a@x.com", (&Credential{UserEmail: "a@x.com", UserCode: &empty}).OwnerKey())
	assert.True(t, (&Credential{EncodedRefreshToken: &refresh}).CanRefresh())
	assert.False(t, (&Credential{EncodedRefreshToken: &empty}).CanRefresh())
}

func TestSessionTokens(t *testing.T) {
	var none SessionTokens
	_, ok := none.Token("oura")
	assert.False(t, ok)

	tokens := SessionTokens{"oura": " tok ", "other": ""}
	token, ok := tokens.Token("oura")
	assert.True(t, ok)
	assert.Equal(t, "tok", token)

	_, ok = tokens.Token("other")
	assert.False(t, ok)
}

func TestParseDateRange(t *testing.T) {
	now := time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)

	t.Run("defaults", func(t *testing.T) {
		rng, err := ParseDateRange("", "", now, 30)
		require.NoError(t, err)
		assert.Equal(t, "2024-02-14", rng.StartDate())
		assert.Equal(t, "2024-03-15", rng.EndDate())
	})

	t.Run("explicit", func(t *testing.T) {
		rng, err := ParseDateRange("2024-01-01", "2024-01-31", now, 30)
		require.NoError(t, err)
		assert.Equal(t, "2024-01-01", rng.StartDate())
		assert.Equal(t, "2024-01-31", rng.EndDate())
	})

	t.Run("end only", func(t *testing.T) {
		rng, err := ParseDateRange("", "2024-01-31", now, 30)
		require.NoError(t, err)
		assert.Equal(t, "2024-01-01", rng.StartDate())
	})

	t.Run("same day", func(t *testing.T) {
		_, err := ParseDateRange("2024-01-05", "2024-01-05", now, 30)
		assert.NoError(t, err)
	})

	t.Run("inverted", func(t *testing.T) {
		_, err := ParseDateRange("2024-02-01", "2024-01-01", now, 30)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "startDate", vErr.Field)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := ParseDateRange("2024/01/01", "", now, 30)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "startDate", vErr.Field)

		_, err = ParseDateRange("", "yesterday", now, 30)
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "endDate", vErr.Field)
	})
}

func TestStreamDataCountAndNormalize(t *testing.T) {
	data := StreamData{
		Sleep:     []SleepEntry{{ID: "a"}, {ID: "b"}},
		HeartRate: []HeartRateEntry{{Timestamp: "2024-01-01T00:00:00Z", BPM: 60}},
	}

	assert.Equal(t, 2, data.Count(StreamSleep))
	assert.Equal(t, 1, data.Count(StreamHeartRate))
	assert.Equal(t, 0, data.Count(StreamWorkout))
	assert.Equal(t, 0, data.Count(Stream("unknown")))

	data.Normalize()
	encoded, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"workout":[]`)
	assert.Contains(t, string(encoded), `"daily_activity":[]`)

	assert.Equal(t, "sleep_records", StreamSleep.SummaryKey())
	assert.Equal(t, "heart_rate_records", StreamHeartRate.SummaryKey())
}

func TestHeartRateEntryDay(t *testing.T) {
	assert.Equal(t, "2024-01-02", HeartRateEntry{Timestamp: "2024-01-02T03:04:05+00:00"}.Day())
	assert.Equal(t, "", HeartRateEntry{Timestamp: "garbage"}.Day())
	assert.Equal(t, "", HeartRateEntry{}.Day())
}

func TestNormalizeTier(t *testing.T) {
	assert.Equal(t, TierFree, NormalizeTier(""))
	assert.Equal(t, TierMax, NormalizeTier(" MAX "))
	assert.Equal(t, Tier("enterprise"), NormalizeTier("Enterprise"))
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("boom")

	notConnected := fmt.Errorf("resolve: %w", &NotConnectedError{
		Provider: "oura",
		Owner:    "U1",
		Tried:    []string{"stored", "refresh", "session"},
		Cause:    cause,
	})
	assert.ErrorIs(t, notConnected, ErrNotConnected)
	assert.ErrorIs(t, notConnected, cause)
	assert.Contains(t, notConnected.Error(), "tried: stored, refresh, session")

	storage := fmt.Errorf("persist: %w", &StorageError{Op: "insert sync", Err: cause})
	assert.ErrorIs(t, storage, ErrStorageFailure)
	assert.NotErrorIs(t, storage, ErrNotConnected)

	var fetchErr *UpstreamFetchError
	wrapped := fmt.Errorf("x: %w", &UpstreamFetchError{Stream: StreamWorkout, StatusCode: 500, Err: cause})
	require.ErrorAs(t, wrapped, &fetchErr)
	assert.Equal(t, StreamWorkout, fetchErr.Stream)
	assert.Contains(t, wrapped.Error(), "unexpected status 500")

	refresh := &RefreshError{Provider: "oura", CredentialID: 9, Err: cause}
	assert.ErrorIs(t, refresh, cause)
	assert.ErrorIs(t, &AnalysisError{Err: cause}, cause)
}
