package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/thefn/internal/metrics"
	"github.com/hitoshi/thefn/internal/model"
)

// memoryRequestRepo はMagicLinkRequestRepositoryのインメモリ実装。
type memoryRequestRepo struct {
	mu        sync.Mutex
	rows      []model.MagicLinkRequest
	deleteErr error
	pruned    []time.Time
}

func (r *memoryRequestRepo) LatestCreatedAtByEmail(_ context.Context, email string) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *time.Time
	for i := range r.rows {
		if r.rows[i].Email != email {
			continue
		}
		if latest == nil || r.rows[i].CreatedAt.After(*latest) {
			t := r.rows[i].CreatedAt
			latest = &t
		}
	}
	return latest, nil
}

func (r *memoryRequestRepo) CountByEmailSince(_ context.Context, email string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if row.Email == email && row.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (r *memoryRequestRepo) CountByIPSince(_ context.Context, ip string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, row := range r.rows {
		if row.IPAddress != nil && *row.IPAddress == ip && row.CreatedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (r *memoryRequestRepo) Insert(_ context.Context, req *model.MagicLinkRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *req)
	return nil
}

func (r *memoryRequestRepo) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruned = append(r.pruned, before)
	if r.deleteErr != nil {
		return 0, r.deleteErr
	}
	kept := r.rows[:0]
	var deleted int64
	for _, row := range r.rows {
		if row.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	r.rows = kept
	return deleted, nil
}

type testClock struct {
	t time.Time
}

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(repo *memoryRequestRepo, clock *testClock) *MagicLinkLimiter {
	l := NewMagicLinkLimiter(repo, DefaultConfig(), nil)
	l.now = clock.now
	return l
}

func strPtr(s string) *string { return &s }

// t=0で許可、t=30sでクールダウン（残り30秒）、t=61sで許可されることを検証
func TestConsume_CooldownScenario(t *testing.T) {
	repo := &memoryRequestRepo{}
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(repo, clock)
	ctx := context.Background()

	d, err := l.Consume(ctx, "a@example.com", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed || d.Reason != model.RateLimitReasonOK {
		t.Fatalf("t=0: got %+v, want allowed", d)
	}

	clock.advance(30 * time.Second)
	d, err = l.Consume(ctx, "a@example.com", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed || d.Reason != model.RateLimitReasonCooldown {
		t.Fatalf("t=30s: got %+v, want cooldown", d)
	}
	if d.RetryAfterSeconds != 30 {
		t.Errorf("t=30s: retryAfterSeconds = %d, want 30", d.RetryAfterSeconds)
	}

	clock.advance(31 * time.Second)
	d, err = l.Consume(ctx, "a@example.com", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("t=61s: got %+v, want allowed", d)
	}

	if len(repo.rows) != 2 {
		t.Errorf("rejected attempts must not be recorded: rows = %d, want 2", len(repo.rows))
	}
}

// 15分以内に5回許可された後の6回目はクールダウン経過後でも拒否されることを検証
func TestConsume_EmailWindowLimit(t *testing.T) {
	repo := &memoryRequestRepo{}
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(repo, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Consume(ctx, "a@example.com", nil)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d: got %+v, want allowed", i+1, d)
		}
		clock.advance(61 * time.Second)
	}

	d, err := l.Consume(ctx, "a@example.com", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed || d.Reason != model.RateLimitReasonEmailWindowLimit {
		t.Fatalf("6th request: got %+v, want email_window_limit", d)
	}
	if d.RetryAfterSeconds != 900 {
		t.Errorf("retryAfterSeconds = %d, want 900", d.RetryAfterSeconds)
	}

	// 他のメールアドレスには影響しない
	other, err := l.Consume(ctx, "b@example.com", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !other.Allowed {
		t.Errorf("other email should be allowed, got %+v", other)
	}
}

// 窓の外に出た古い要求は数えないことを検証
func TestConsume_WindowSlides(t *testing.T) {
	repo := &memoryRequestRepo{}
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(repo, clock)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if d, _ := l.Consume(ctx, "a@example.com", nil); !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		clock.advance(2 * time.Minute)
	}
	// 最初の要求から15分と少し経過
	clock.advance(6 * time.Minute)

	d, err := l.Consume(ctx, "a@example.com", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Errorf("request after oldest left window should be allowed, got %+v", d)
	}
}

// クールダウンは件数上限より先に判定されることを検証
func TestConsume_CooldownCheckedBeforeWindow(t *testing.T) {
	repo := &memoryRequestRepo{}
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	for i := 0; i < 5; i++ {
		repo.rows = append(repo.rows, model.MagicLinkRequest{Email: "a@example.com", CreatedAt: clock.t.Add(-time.Duration(10*i+10) * time.Second)})
	}
	l := newTestLimiter(repo, clock)

	d, err := l.Consume(context.Background(), "a@example.com", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Reason != model.RateLimitReasonCooldown {
		t.Errorf("reason = %s, want cooldown", d.Reason)
	}
	if d.RetryAfterSeconds != 50 {
		t.Errorf("retryAfterSeconds = %d, want 50", d.RetryAfterSeconds)
	}
}

func TestConsume_IPWindowLimit(t *testing.T) {
	repo := &memoryRequestRepo{}
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newTestLimiter(repo, clock)
	ctx := context.Background()
	ip := strPtr("198.51.100.4")

	for i := 0; i < 20; i++ {
		d, err := l.Consume(ctx, "user"+string(rune('a'+i))+"@example.com", ip)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d: got %+v, want allowed", i+1, d)
		}
	}

	d, err := l.Consume(ctx, "fresh@example.com", ip)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed || d.Reason != model.RateLimitReasonIPWindowLimit {
		t.Fatalf("21st request: got %+v, want ip_window_limit", d)
	}

	// IPが不明な場合はIPの上限を判定しない
	d, err = l.Consume(ctx, "fresh@example.com", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Errorf("request without IP should skip ip gate, got %+v", d)
	}
}

func TestConsume_PrunesOnAdmission(t *testing.T) {
	repo := &memoryRequestRepo{}
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	repo.rows = append(repo.rows, model.MagicLinkRequest{Email: "old@example.com", CreatedAt: clock.t.Add(-25 * time.Hour)})
	l := newTestLimiter(repo, clock)

	if _, err := l.Consume(context.Background(), "a@example.com", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.pruned) != 1 || !repo.pruned[0].Equal(clock.t.Add(-24*time.Hour)) {
		t.Errorf("pruned = %v, want one prune at now-24h", repo.pruned)
	}
	for _, row := range repo.rows {
		if row.Email == "old@example.com" {
			t.Error("row older than retention should be pruned")
		}
	}

	// 拒否時は削除しない
	if _, err := l.Consume(context.Background(), "a@example.com", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.pruned) != 1 {
		t.Errorf("rejected request should not prune, pruned = %d", len(repo.pruned))
	}
}

func TestConsume_PruneFailureDoesNotReject(t *testing.T) {
	repo := &memoryRequestRepo{deleteErr: errors.New("delete failed")}
	clock := &testClock{t: time.Now()}
	l := newTestLimiter(repo, clock)

	d, err := l.Consume(context.Background(), "a@example.com", nil)
	if err != nil {
		t.Fatalf("prune failure should not surface, got %v", err)
	}
	if !d.Allowed {
		t.Errorf("got %+v, want allowed", d)
	}
}

type failingRepo struct {
	memoryRequestRepo
	err error
}

func (r *failingRepo) LatestCreatedAtByEmail(context.Context, string) (*time.Time, error) {
	return nil, r.err
}

func TestConsume_StoreErrorPropagates(t *testing.T) {
	dbErr := errors.New("db down")
	l := NewMagicLinkLimiter(&failingRepo{err: dbErr}, DefaultConfig(), nil)

	if _, err := l.Consume(context.Background(), "a@example.com", nil); !errors.Is(err, dbErr) {
		t.Errorf("error = %v, want wrapped dbErr", err)
	}
}

// outcomeMetrics はマジックリンク発行の結果だけを記録する。
type outcomeMetrics struct {
	metrics.Nop
	outcomes []string
}

func (m *outcomeMetrics) RecordMagicLinkRequest(outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

type insertFailingRepo struct {
	memoryRequestRepo
	err error
}

func (r *insertFailingRepo) Insert(context.Context, *model.MagicLinkRequest) error {
	return r.err
}

func TestConsume_RecordsOutcomeMetrics(t *testing.T) {
	t.Run("許可は記録後にカウント", func(t *testing.T) {
		mc := &outcomeMetrics{}
		clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
		l := NewMagicLinkLimiter(&memoryRequestRepo{}, DefaultConfig(), mc)
		l.now = clock.now

		l.Consume(context.Background(), "a@example.com", nil)
		clock.advance(10 * time.Second)
		l.Consume(context.Background(), "a@example.com", nil)

		want := []string{string(model.RateLimitReasonOK), string(model.RateLimitReasonCooldown)}
		if len(mc.outcomes) != 2 || mc.outcomes[0] != want[0] || mc.outcomes[1] != want[1] {
			t.Errorf("outcomes = %v, want %v", mc.outcomes, want)
		}
	})

	t.Run("記録に失敗した場合はカウントしない", func(t *testing.T) {
		mc := &outcomeMetrics{}
		dbErr := errors.New("insert failed")
		l := NewMagicLinkLimiter(&insertFailingRepo{err: dbErr}, DefaultConfig(), mc)

		if _, err := l.Consume(context.Background(), "a@example.com", nil); !errors.Is(err, dbErr) {
			t.Fatalf("error = %v, want wrapped dbErr", err)
		}
		if len(mc.outcomes) != 0 {
			t.Errorf("outcomes = %v, want none", mc.outcomes)
		}
	})
}

func TestReject_RoundsUpToWholeSeconds(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want int
	}{
		{30 * time.Second, 30},
		{29500 * time.Millisecond, 30},
		{100 * time.Millisecond, 1},
		{0, 1},
	}
	for _, tt := range tests {
		if got := reject(model.RateLimitReasonCooldown, tt.wait).RetryAfterSeconds; got != tt.want {
			t.Errorf("reject(%v) = %d, want %d", tt.wait, got, tt.want)
		}
	}
}
