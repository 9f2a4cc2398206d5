package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shy020501/Video-Automation/internal/models"
)

func TestPollStopsWhenDone(t *testing.T) {
	calls := 0
	err := RetryPolicy{MaxAttempts: 5}.Poll(context.Background(), "job", func(attempt int) (bool, error) {
		calls++
		return attempt == 3, nil
	})
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPollTimesOut(t *testing.T) {
	calls := 0
	err := RetryPolicy{MaxAttempts: 4}.Poll(context.Background(), "job", func(int) (bool, error) {
		calls++
		return false, nil
	})
	if !errors.Is(err, models.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4", calls)
	}
}

func TestPollPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := RetryPolicy{MaxAttempts: 4}.Poll(context.Background(), "job", func(int) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected check error, got %v", err)
	}
}

func TestPollHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RetryPolicy{MaxAttempts: 3, Interval: time.Hour}.Poll(ctx, "job", func(int) (bool, error) {
		t.Fatal("check should not run after cancellation")
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
