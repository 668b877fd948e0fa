package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prperemyshlev/wearable-sync/internal/analysis"
	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/provider/oura"
	"github.com/prperemyshlev/wearable-sync/internal/repository"
)

type fakeOnboarding struct {
	source string
	code   string
	err    error
	delay  time.Duration
	calls  atomic.Int32
}

func (f *fakeOnboarding) Source() string { return f.source }

func (f *fakeOnboarding) LatestWithCode(ctx context.Context, email string) (*domain.IdentityRecord, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.code == "" {
		return nil, fmt.Errorf("no %s record: %w", f.source, repository.ErrNotFound)
	}
	form, _ := json.Marshal(map[string]string{"uniqueCode": f.code})
	return &domain.IdentityRecord{ID: 1, Source: f.source, Email: email, FormData: form, CreatedAt: time.Now()}, nil
}

type fakeCredentials struct {
	mu           sync.Mutex
	rows         map[int64]*domain.Credential
	codeQueries  []string
	emailQueries []string
	updates      int
	updateErr    error
}

func newFakeCredentials(rows ...*domain.Credential) *fakeCredentials {
	f := &fakeCredentials{rows: map[int64]*domain.Credential{}}
	for _, row := range rows {
		f.rows[row.ID] = row
	}
	return f
}

func (f *fakeCredentials) FindActiveByCode(ctx context.Context, provider, code string) (*domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codeQueries = append(f.codeQueries, code)
	for _, row := range f.rows {
		if row.Provider == provider && row.IsActive && row.UserCode != nil && *row.UserCode == code {
			c := *row
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCredentials) FindActiveByEmail(ctx context.Context, provider, email string) (*domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emailQueries = append(f.emailQueries, email)
	for _, row := range f.rows {
		if row.Provider == provider && row.IsActive && row.UserEmail == email {
			c := *row
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeCredentials) GetByID(ctx context.Context, id int64) (*domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *row
	return &c, nil
}

func (f *fakeCredentials) UpdateToken(ctx context.Context, id int64, encodedToken string, encodedRefreshToken *string, expiresAt *time.Time, prevExpiresAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	row, ok := f.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !sameExpiry(row.ExpiresAt, prevExpiresAt) {
		return repository.ErrConflict
	}
	row.EncodedToken = encodedToken
	if encodedRefreshToken != nil {
		row.EncodedRefreshToken = encodedRefreshToken
	}
	row.ExpiresAt = expiresAt
	f.updates++
	return nil
}

func (f *fakeCredentials) set(id int64, mutate func(*domain.Credential)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(f.rows[id])
}

func sameExpiry(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

type fakeRefresher struct {
	calls atomic.Int32
	delay time.Duration
	grant domain.TokenGrant
	err   error
}

func (f *fakeRefresher) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenGrant, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	g := f.grant
	return &g, nil
}

type fakeFetcher struct {
	token  string
	result *oura.FetchResult
}

func (f *fakeFetcher) FetchAll(ctx context.Context, accessToken string, rng domain.DateRange) *oura.FetchResult {
	f.token = accessToken
	return f.result
}

type fakeSyncRepo struct {
	mu      sync.Mutex
	records []domain.SyncRecord
	err     error
}

func (f *fakeSyncRepo) Create(ctx context.Context, record *domain.SyncRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	record.ID = fmt.Sprintf("sync-%d", len(f.records)+1)
	f.records = append(f.records, *record)
	return nil
}

type fakeSubscriptions struct {
	tiers map[string]domain.Tier
	err   error
}

func (f *fakeSubscriptions) GetTier(ctx context.Context, email string) (domain.Tier, error) {
	if f.err != nil {
		return "", f.err
	}
	if tier, ok := f.tiers[email]; ok {
		return tier, nil
	}
	return domain.TierFree, nil
}

type fakeEngine struct {
	calls  atomic.Int32
	result *analysis.Result
	err    error
	panics bool
	done   chan struct{}
}

func (f *fakeEngine) Analyze(ctx context.Context, input *analysis.Input) (*analysis.Result, error) {
	f.calls.Add(1)
	if f.done != nil {
		defer close(f.done)
	}
	if f.panics {
		panic("engine exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

var errBoom = errors.New("boom")

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }
