package logtail

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"
)

var startRe = regexp.MustCompile(`Starting minecraft server`)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "latest.log")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLatestSegment(t *testing.T) {
	log := "noise before\n" +
		"[10:00:00] [Server thread/INFO]: Starting minecraft server version 1.11\n" +
		"first run\n" +
		"[11:00:00] [Server thread/INFO]: Starting minecraft server version 1.11\n" +
		"second run line 1\n" +
		"second run line 2\n"
	path := writeLog(t, log)

	got, err := LatestSegment(path, startRe)
	if err != nil {
		t.Fatalf("LatestSegment: %v", err)
	}
	want := "[11:00:00] [Server thread/INFO]: Starting minecraft server version 1.11\n" +
		"second run line 1\n" +
		"second run line 2\n"
	if got != want {
		t.Errorf("LatestSegment =\n%q\nwant\n%q", got, want)
	}
}

func TestLatestSegmentNoBanner(t *testing.T) {
	path := writeLog(t, "a\nb")
	got, err := LatestSegment(path, startRe)
	if err != nil {
		t.Fatalf("LatestSegment: %v", err)
	}
	if got != "a\nb" {
		t.Errorf("LatestSegment = %q, want whole file", got)
	}
}

func TestLatestSegmentMissingFile(t *testing.T) {
	got, err := LatestSegment(filepath.Join(t.TempDir(), "nope.log"), startRe)
	if err != nil || got != "" {
		t.Errorf("LatestSegment(missing) = (%q, %v), want (\"\", nil)", got, err)
	}
}

func TestSizeAndReadFrom(t *testing.T) {
	path := writeLog(t, "hello\n")
	n, err := Size(path)
	if err != nil || n != 6 {
		t.Fatalf("Size = (%d, %v), want 6", n, err)
	}

	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	_, _ = f.WriteString("world\n")
	f.Close()

	got, err := ReadFrom(path, n)
	if err != nil || got != "world\n" {
		t.Errorf("ReadFrom = (%q, %v), want world", got, err)
	}

	if n, err := Size(filepath.Join(t.TempDir(), "nope")); err != nil || n != 0 {
		t.Errorf("Size(missing) = (%d, %v)", n, err)
	}
}

func TestWaitForGrowth(t *testing.T) {
	path := writeLog(t, "old\n")

	go func() {
		time.Sleep(30 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return
		}
		_, _ = f.WriteString("new\n")
		f.Close()
	}()

	got, err := WaitForGrowth(context.Background(), path, 4, 2*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForGrowth: %v", err)
	}
	if got != "new\n" {
		t.Errorf("WaitForGrowth = %q, want %q", got, "new\n")
	}
}

func TestWaitForGrowthTimeout(t *testing.T) {
	path := writeLog(t, "static\n")
	timeout := 100 * time.Millisecond

	start := time.Now()
	_, err := WaitForGrowth(context.Background(), path, 7, timeout, 10*time.Millisecond)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("WaitForGrowth error = %v, want ErrTimeout", err)
	}
	if elapsed > timeout+500*time.Millisecond {
		t.Errorf("WaitForGrowth returned after %s, timeout was %s", elapsed, timeout)
	}
}

func TestWaitForGrowthMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.log")

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(path, []byte("created\n"), 0644)
	}()

	got, err := WaitForGrowth(context.Background(), path, 0, 2*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForGrowth: %v", err)
	}
	if got != "created\n" {
		t.Errorf("WaitForGrowth = %q", got)
	}
}

func TestWaitForGrowthCanceled(t *testing.T) {
	path := writeLog(t, "static\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WaitForGrowth(ctx, path, 7, time.Minute, 10*time.Millisecond)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WaitForGrowth error = %v, want context.Canceled", err)
	}
}

func TestWaitForGrowthPollLongerThanTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.log")
	timeout := 200 * time.Millisecond

	start := time.Now()
	_, err := WaitForGrowth(context.Background(), path, 0, timeout, 3*time.Second)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("WaitForGrowth error = %v, want ErrTimeout", err)
	}
	if elapsed > timeout+time.Second {
		t.Errorf("WaitForGrowth returned after %s, timeout was %s", elapsed, timeout)
	}
}
