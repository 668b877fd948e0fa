package oura

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
)

// streamPaths maps each stream to its usercollection endpoint
var streamPaths = map[domain.Stream]string{
	domain.StreamSleep:          "/sleep",
	domain.StreamDailyActivity:  "/daily_activity",
	domain.StreamDailyReadiness: "/daily_readiness",
	domain.StreamHeartRate:      "/heartrate",
	domain.StreamWorkout:        "/workout",
}

// page is one response envelope. A missing or null data field decodes to a nil slice.
type page[T any] struct {
	Data      []T     `json:"data"`
	NextToken *string `json:"next_token"`
}

// FetchResult holds what FetchAll gathered. Errors has an entry only for
// streams that failed; their Data slice is left empty.
type FetchResult struct {
	Data   domain.StreamData
	Raw    map[domain.Stream]json.RawMessage
	Errors map[domain.Stream]error
}

// Failed reports whether stream failed
func (r *FetchResult) Failed(stream domain.Stream) bool {
	_, ok := r.Errors[stream]
	return ok
}

// FetchAll pulls every stream for rng concurrently. Each stream runs under
// its own timeout and a failure never cancels the others.
func (c *Client) FetchAll(ctx context.Context, accessToken string, rng domain.DateRange) *FetchResult {
	type outcome struct {
		raw json.RawMessage
		err error
	}

	var data domain.StreamData
	outcomes := make([]outcome, len(domain.Streams))

	group := c.pool.NewGroup()
	for i, stream := range domain.Streams {
		group.Submit(func() {
			defer func() {
				if rec := recover(); rec != nil {
					outcomes[i] = outcome{err: &domain.UpstreamFetchError{Stream: stream, Err: fmt.Errorf("panic: %v", rec)}}
					c.logger.Error("Stream fetch panicked",
						zap.String("stream", string(stream)),
						zap.Any("panic", rec),
					)
				}
			}()

			streamCtx, cancel := context.WithTimeout(ctx, c.opts.StreamTimeout)
			defer cancel()

			started := time.Now()
			raw, err := c.fetchInto(streamCtx, stream, accessToken, rng, &data)
			outcomes[i] = outcome{raw: raw, err: err}

			if err != nil {
				c.logger.Warn("Stream fetch failed",
					zap.String("stream", string(stream)),
					zap.Duration("duration", time.Since(started)),
					zap.Error(err),
				)
				return
			}
			c.logger.Debug("Stream fetched",
				zap.String("stream", string(stream)),
				zap.Int("records", data.Count(stream)),
				zap.Duration("duration", time.Since(started)),
			)
		})
	}
	if err := group.Wait(); err != nil {
		c.logger.Error("Stream fetch group failed", zap.Error(err))
	}

	result := &FetchResult{
		Raw:    make(map[domain.Stream]json.RawMessage, len(domain.Streams)),
		Errors: make(map[domain.Stream]error),
	}
	for i, stream := range domain.Streams {
		o := outcomes[i]
		if o.err == nil && o.raw == nil {
			o.err = &domain.UpstreamFetchError{Stream: stream, Err: errors.New("fetch did not complete")}
		}
		if o.err != nil {
			result.Errors[stream] = o.err
			clearStream(&data, stream)
			continue
		}
		result.Raw[stream] = o.raw
	}
	data.Normalize()
	result.Data = data

	return result
}

// fetchInto decodes stream into its typed field of data. Each stream owns a
// distinct field, so concurrent calls for different streams do not race.
func (c *Client) fetchInto(ctx context.Context, stream domain.Stream, token string, rng domain.DateRange, data *domain.StreamData) (json.RawMessage, error) {
	var (
		raw json.RawMessage
		err error
	)

	switch stream {
	case domain.StreamSleep:
		data.Sleep, raw, err = fetchStream[domain.SleepEntry](ctx, c, stream, token, rng)
	case domain.StreamDailyActivity:
		data.DailyActivity, raw, err = fetchStream[domain.DailyActivityEntry](ctx, c, stream, token, rng)
	case domain.StreamDailyReadiness:
		data.DailyReadiness, raw, err = fetchStream[domain.DailyReadinessEntry](ctx, c, stream, token, rng)
	case domain.StreamHeartRate:
		data.HeartRate, raw, err = fetchStream[domain.HeartRateEntry](ctx, c, stream, token, rng)
	case domain.StreamWorkout:
		data.Workout, raw, err = fetchStream[domain.WorkoutEntry](ctx, c, stream, token, rng)
	default:
		err = &domain.UpstreamFetchError{Stream: stream, Err: errors.New("unknown stream")}
	}

	return raw, err
}

// fetchStream follows next_token up to MaxPages. The raw result is the body
// itself for a single page and a JSON array of page bodies otherwise.
func fetchStream[T any](ctx context.Context, c *Client, stream domain.Stream, token string, rng domain.DateRange) ([]T, json.RawMessage, error) {
	var (
		entries []T
		bodies  []json.RawMessage
		next    string
	)

	for pageNum := 0; pageNum < c.opts.MaxPages; pageNum++ {
		req := c.http.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetQueryParam("start_date", rng.StartDate()).
			SetQueryParam("end_date", rng.EndDate())
		if next != "" {
			req.SetQueryParam("next_token", next)
		}

		resp, err := req.Get(streamPaths[stream])
		if err != nil {
			return nil, nil, &domain.UpstreamFetchError{Stream: stream, Err: err}
		}
		if !resp.IsSuccess() {
			return nil, nil, &domain.UpstreamFetchError{
				Stream:     stream,
				StatusCode: resp.StatusCode(),
				Err:        errors.New(truncate(resp.String(), 256)),
			}
		}

		body := resp.Body()
		if len(body) == 0 {
			body = []byte("{}")
		}
		var p page[T]
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, nil, &domain.UpstreamFetchError{Stream: stream, Err: fmt.Errorf("decode response: %w", err)}
		}

		entries = append(entries, p.Data...)
		bodies = append(bodies, json.RawMessage(body))

		if p.NextToken == nil || *p.NextToken == "" {
			break
		}
		next = *p.NextToken
		if pageNum == c.opts.MaxPages-1 {
			c.logger.Warn("Stream page cap reached, remaining pages skipped",
				zap.String("stream", string(stream)),
				zap.Int("max_pages", c.opts.MaxPages),
			)
		}
	}

	if entries == nil {
		entries = []T{}
	}
	if len(bodies) == 1 {
		return entries, bodies[0], nil
	}

	raw, err := json.Marshal(bodies)
	if err != nil {
		return nil, nil, &domain.UpstreamFetchError{Stream: stream, Err: fmt.Errorf("encode raw pages: %w", err)}
	}

	return entries, raw, nil
}

func clearStream(data *domain.StreamData, stream domain.Stream) {
	switch stream {
	case domain.StreamSleep:
		data.Sleep = nil
	case domain.StreamDailyActivity:
		data.DailyActivity = nil
	case domain.StreamDailyReadiness:
		data.DailyReadiness = nil
	case domain.StreamHeartRate:
		data.HeartRate = nil
	case domain.StreamWorkout:
		data.Workout = nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
