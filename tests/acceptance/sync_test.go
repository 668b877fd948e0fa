//go:build integration

package acceptance

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

type syncResult struct {
	Status int
	Body   map[string]interface{}
}

func (s *Suite) postSync(body string, cookies ...*http.Cookie) syncResult {
	req, err := http.NewRequest(http.MethodPost, s.BaseURL+"/api/v1/sync", bytes.NewBufferString(body))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	result := syncResult{Status: resp.StatusCode}
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&result.Body))
	return result
}

func (s *Suite) seedOnboarding(table, email, code string) {
	_, err := s.Postgres.DB.Exec(
		`INSERT INTO `+table+` (email, form_data) VALUES ($1, $2)`,
		email, `{"uniqueCode":"`+code+`"}`,
	)
	s.Require().NoError(err)
}

func (s *Suite) seedCredential(email, code, token, refreshToken string, expiresAt time.Time) int64 {
	encoded, err := s.Codec.Encode(token)
	s.Require().NoError(err)

	var encodedRefresh interface{}
	if refreshToken != "" {
		value, err := s.Codec.Encode(refreshToken)
		s.Require().NoError(err)
		encodedRefresh = value
	}

	var id int64
	err = s.Postgres.DB.QueryRow(`
		INSERT INTO integration_credentials (provider, user_email, user_code, encoded_token, encoded_refresh_token, expires_at)
		VALUES ('oura', $1, NULLIF($2, ''), $3, $4, $5)
		RETURNING id`,
		email, code, encoded, encodedRefresh, expiresAt,
	).Scan(&id)
	s.Require().NoError(err)
	return id
}

func (s *Suite) seedSubscription(email, tier string) {
	_, err := s.Postgres.DB.Exec(`INSERT INTO subscriptions (email, tier) VALUES ($1, $2)`, email, tier)
	s.Require().NoError(err)
}

func (s *Suite) countSyncs(email string) int {
	var n int
	s.Require().NoError(s.Postgres.DB.QueryRow(`SELECT count(*) FROM wearable_syncs WHERE user_email = $1`, email).Scan(&n))
	return n
}

func (s *Suite) TestSync_StoredTokenPersistsRecord() {
	s.seedOnboarding("onboarding_responses", "member@example.com", "U1")
	s.seedCredential("member@example.com", "U1", liveToken, "refresh-1", time.Now().Add(time.Hour))

	res := s.postSync(`{"email":"Member@Example.com","startDate":"2024-01-01","endDate":"2024-01-31"}`)

	s.Require().Equal(http.StatusOK, res.Status, res.Body)
	s.Equal(true, res.Body["success"])
	s.NotEmpty(res.Body["syncId"])
	s.Equal(map[string]interface{}{
		"sleep_records":           float64(2),
		"daily_activity_records":  float64(1),
		"daily_readiness_records": float64(1),
		"heart_rate_records":      float64(3),
		"workout_records":         float64(0),
	}, res.Body["summary"])
	s.NotContains(res.Body, "analysis")
	s.Zero(s.Upstream.tokenCalls.Load())

	var (
		startDate, endDate string
		sleepCount         int
		workout, raw       []byte
	)
	err := s.Postgres.DB.QueryRow(`
		SELECT start_date::text, end_date::text, jsonb_array_length(sleep_data), workout_data, raw_data
		FROM wearable_syncs WHERE id = $1`, res.Body["syncId"],
	).Scan(&startDate, &endDate, &sleepCount, &workout, &raw)
	s.Require().NoError(err)

	s.Equal("2024-01-01", startDate)
	s.Equal("2024-01-31", endDate)
	s.Equal(2, sleepCount)
	s.JSONEq(`[]`, string(workout))

	var rawStreams map[string]json.RawMessage
	s.Require().NoError(json.Unmarshal(raw, &rawStreams))
	s.Contains(rawStreams, "sleep")
	s.Contains(rawStreams, "heart_rate")
}

func (s *Suite) TestSync_EachCallAppendsRecord() {
	s.seedCredential("member@example.com", "", liveToken, "", time.Now().Add(time.Hour))

	first := s.postSync(`{"email":"member@example.com"}`)
	second := s.postSync(`{"email":"member@example.com"}`)

	s.Require().Equal(http.StatusOK, first.Status)
	s.Require().Equal(http.StatusOK, second.Status)
	s.NotEqual(first.Body["syncId"], second.Body["syncId"])
	s.Equal(2, s.countSyncs("member@example.com"))
}

func (s *Suite) TestSync_ExpiredTokenIsRefreshedAndStored() {
	id := s.seedCredential("member@example.com", "", "stale-token", "refresh-1", time.Now().Add(-time.Hour))

	res := s.postSync(`{"email":"member@example.com"}`)

	s.Require().Equal(http.StatusOK, res.Status, res.Body)
	s.Equal(int32(1), s.Upstream.tokenCalls.Load())

	var encoded, encodedRefresh string
	var expiresAt time.Time
	err := s.Postgres.DB.QueryRow(
		`SELECT encoded_token, encoded_refresh_token, expires_at FROM integration_credentials WHERE id = $1`, id,
	).Scan(&encoded, &encodedRefresh, &expiresAt)
	s.Require().NoError(err)

	token, err := s.Codec.Decode(encoded)
	s.Require().NoError(err)
	s.Equal(refreshedToken, token)

	refresh, err := s.Codec.Decode(encodedRefresh)
	s.Require().NoError(err)
	s.Equal("refresh-2", refresh)
	s.True(expiresAt.After(time.Now()))
}

func (s *Suite) TestSync_ConcurrentRequestsRefreshOnce() {
	s.seedCredential("member@example.com", "", "stale-token", "refresh-1", time.Now().Add(-time.Hour))

	const callers = 5
	statuses := make([]int, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest(http.MethodPost, s.BaseURL+"/api/v1/sync",
				bytes.NewBufferString(`{"email":"member@example.com"}`))
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}()
	}
	wg.Wait()

	for _, status := range statuses {
		s.Equal(http.StatusOK, status)
	}
	s.Equal(int32(1), s.Upstream.tokenCalls.Load())
	s.Equal(callers, s.countSyncs("member@example.com"))
}

func (s *Suite) TestSync_AccountCodeFromSecondSource() {
	s.seedOnboarding("funnel_submissions", "member@example.com", "F7")
	s.seedCredential("someone-else@example.com", "F7", liveToken, "", time.Now().Add(time.Hour))

	res := s.postSync(`{"email":"member@example.com"}`)

	s.Equal(http.StatusOK, res.Status, res.Body)
}

func (s *Suite) TestSync_BlankCodeDoesNotHideOlderCode() {
	s.seedOnboarding("onboarding_responses", "member@example.com", "U1")
	s.seedOnboarding("onboarding_responses", "member@example.com", "   ")
	s.seedCredential("someone-else@example.com", "U1", liveToken, "", time.Now().Add(time.Hour))

	res := s.postSync(`{"email":"member@example.com"}`)

	s.Equal(http.StatusOK, res.Status, res.Body)
}

func (s *Suite) TestSync_SessionTokenFallback() {
	res := s.postSync(`{"email":"member@example.com"}`,
		&http.Cookie{Name: "oura_access_token", Value: sessionToken})

	s.Equal(http.StatusOK, res.Status, res.Body)
	s.Equal(1, s.countSyncs("member@example.com"))
}

func (s *Suite) TestSync_NotConnected() {
	res := s.postSync(`{"email":"member@example.com"}`)

	s.Equal(http.StatusUnauthorized, res.Status)
	s.Equal(false, res.Body["success"])
	s.Equal("oura is not connected", res.Body["error"])
	s.Equal(map[string]interface{}{"tried": []interface{}{"session"}}, res.Body["details"])
	s.Zero(s.countSyncs("member@example.com"))
}

func (s *Suite) TestSync_PartialStreamFailureStillSucceeds() {
	s.seedCredential("member@example.com", "", liveToken, "", time.Now().Add(time.Hour))
	s.Upstream.FailStream("/workout")
	s.Upstream.FailStream("/heartrate")

	res := s.postSync(`{"email":"member@example.com"}`)

	s.Require().Equal(http.StatusOK, res.Status, res.Body)
	summary := res.Body["summary"].(map[string]interface{})
	s.Equal(float64(2), summary["sleep_records"])
	s.Equal(float64(0), summary["heart_rate_records"])
	s.Equal(float64(0), summary["workout_records"])
}

func (s *Suite) TestSync_PremiumOwnerGetsAnalysis() {
	s.seedCredential("member@example.com", "", liveToken, "", time.Now().Add(time.Hour))
	s.seedSubscription("member@example.com", "Pro")

	res := s.postSync(`{"email":"member@example.com"}`)

	s.Require().Equal(http.StatusOK, res.Status, res.Body)
	s.Equal(int32(1), s.Upstream.analysisCalls.Load())
	s.Equal(map[string]interface{}{
		"patterns":     float64(2),
		"correlations": float64(1),
		"summary":      "stable",
	}, res.Body["analysis"])
}

func (s *Suite) TestSync_FreeOwnerSkipsAnalysis() {
	s.seedCredential("member@example.com", "", liveToken, "", time.Now().Add(time.Hour))
	s.seedSubscription("member@example.com", "free")

	res := s.postSync(`{"email":"member@example.com"}`)

	s.Require().Equal(http.StatusOK, res.Status)
	s.Zero(s.Upstream.analysisCalls.Load())
	s.NotContains(res.Body, "analysis")
}

func (s *Suite) TestSync_InvalidRange() {
	res := s.postSync(`{"email":"member@example.com","startDate":"2024-02-01","endDate":"2024-01-01"}`)

	s.Equal(http.StatusBadRequest, res.Status)
	s.Equal(false, res.Body["success"])
}
