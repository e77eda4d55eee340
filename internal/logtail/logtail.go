// Package logtail reads the append-only log files of world processes.
package logtail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

// ErrTimeout is returned when a log did not grow in time.
var ErrTimeout = errors.New("log did not grow before timeout")

// LatestSegment returns the log content written since the last process
// start. Every line matching start resets the accumulator, so the result
// begins with the last start banner. A missing file yields "".
func LatestSegment(path string, start *regexp.Regexp) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	var seg strings.Builder
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			if start != nil && start.MatchString(line) {
				seg.Reset()
			}
			seg.WriteString(line)
		}
		if err == io.EOF {
			return seg.String(), nil
		}
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
	}
}

// Size returns the current size of the log, 0 when it does not exist.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return info.Size(), nil
}

// ReadFrom returns the bytes after offset. A missing file, or a file
// not yet longer than offset, yields "".
func ReadFrom(path string, offset int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", err
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WaitForGrowth polls path every poll until content appears after offset
// and returns that content. It gives up with ErrTimeout after timeout,
// or with the context error when ctx ends first. The last wait is cut
// short at the deadline, so a poll longer than timeout never overruns it.
func WaitForGrowth(ctx context.Context, path string, offset int64, timeout, poll time.Duration) (string, error) {
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	for {
		out, err := ReadFrom(path, offset)
		if err != nil {
			return "", err
		}
		if out != "" {
			return out, nil
		}
		left := time.Until(deadline)
		if left <= 0 {
			return "", fmt.Errorf("%w (%s after %s)", ErrTimeout, path, timeout)
		}
		timer := time.NewTimer(min(poll, left))
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}
