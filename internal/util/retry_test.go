package util

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fastConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestRetry_Success(t *testing.T) {
	callCount := 0
	result, err := Retry(context.Background(), fastConfig(), func() (string, error) {
		callCount++
		return "success", nil
	})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != "success" {
		t.Errorf("expected 'success', got %q", result)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetry_EventualSuccess(t *testing.T) {
	callCount := 0
	result, err := Retry(context.Background(), fastConfig(), func() (int, error) {
		callCount++
		if callCount < 3 {
			return 0, errors.New("connection refused")
		}
		return 42, nil
	})
	if err != nil || result != 42 {
		t.Errorf("Retry = (%d, %v), want (42, nil)", result, err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetry_MaxAttemptsExceeded(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 4
	callCount := 0
	transient := errors.New("device or resource busy")

	err := Do(context.Background(), cfg, func() error {
		callCount++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Errorf("expected last error, got %v", err)
	}
	if callCount != 4 {
		t.Errorf("expected 4 calls, got %d", callCount)
	}
}

func TestRetry_NonRetryableError(t *testing.T) {
	callCount := 0
	err := Do(context.Background(), fastConfig(), func() error {
		callCount++
		return errors.New("404 not found")
	})
	if err == nil {
		t.Error("expected error")
	}
	if callCount != 1 {
		t.Errorf("expected 1 call for non-retryable error, got %d", callCount)
	}
}

func TestRetry_PermanentError(t *testing.T) {
	cfg := fastConfig()
	cfg.IsRetryable = func(error) bool { return true }
	callCount := 0
	err := Do(context.Background(), cfg, func() error {
		callCount++
		return MarkPermanent(errors.New("connection refused"))
	})
	if !IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastConfig(), func() error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDefaultIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unlinkat world: directory not empty"), true},
		{errors.New("GET https://example.org: 503 Service Unavailable"), true},
		{errors.New("404 Not Found"), false},
		{errors.New("permission denied"), false},
	}
	for _, tt := range tests {
		if got := DefaultIsRetryable(tt.err); got != tt.want {
			t.Errorf("DefaultIsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestMarkPermanent(t *testing.T) {
	if MarkPermanent(nil) != nil {
		t.Error("MarkPermanent(nil) should be nil")
	}
	base := errors.New("base")
	if !errors.Is(MarkPermanent(base), base) {
		t.Error("MarkPermanent should unwrap to the original error")
	}
}

func TestRemoveAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "world")
	if err := os.MkdirAll(filepath.Join(dir, "region"), 0755); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(dir, "region", "r.0.0.mca"), []byte("x"), 0644)

	if err := RemoveAll(context.Background(), dir); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("directory still exists: %v", err)
	}
}

func TestRemoveAllRetriesBusyTree(t *testing.T) {
	old := removeAll
	t.Cleanup(func() { removeAll = old })
	calls := 0
	removeAll = func(path string) error {
		calls++
		if calls < 3 {
			return &os.PathError{Op: "unlinkat", Path: path, Err: errors.New("directory not empty")}
		}
		return old(path)
	}

	dir := filepath.Join(t.TempDir(), "world")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := RemoveAll(context.Background(), dir); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("directory still exists: %v", err)
	}
}

func TestRemoveAllConfig(t *testing.T) {
	busy := errors.New("unlinkat world/region: device or resource busy")
	tests := []struct {
		name  string
		err   error
		calls int
	}{
		{"gives up after five attempts", busy, 5},
		{"missing tree is not retried", os.ErrNotExist, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := RemoveAllConfig()
			if cfg.MaxAttempts != 5 {
				t.Fatalf("MaxAttempts = %d, want 5", cfg.MaxAttempts)
			}
			cfg.InitialDelay = time.Millisecond
			cfg.MaxDelay = 2 * time.Millisecond

			calls := 0
			err := Do(context.Background(), cfg, func() error {
				calls++
				return tt.err
			})
			if !errors.Is(err, tt.err) {
				t.Errorf("Do = %v, want %v", err, tt.err)
			}
			if calls != tt.calls {
				t.Errorf("calls = %d, want %d", calls, tt.calls)
			}
		})
	}
}
