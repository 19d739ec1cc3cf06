package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const (
	pollInterval = 250 * time.Millisecond
	maxLineBytes = 1024 * 1024
)

// TailOptions selects which lines Tail returns.
type TailOptions struct {
	// Offset is a byte cursor from a previous call. A negative offset means
	// "the last Limit lines".
	Offset int64
	Limit  int
	// Follow waits up to Wait for new lines when none are available.
	Follow bool
	Wait   time.Duration
	// Component keeps only lines logged by that component.
	Component string
}

// TailResult carries the lines read and the cursor for the next call.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads path according to opts. A missing file yields no lines and a zero
// offset.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TailResult{}, nil
		}
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	keep := componentFilter(opts.Component)
	var res TailResult
	if opts.Offset < 0 {
		res, err = lastLines(path, opts.Limit, keep)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			// Rotated underneath us; start over on the new file.
			offset = 0
		}
		res, err = readFrom(path, offset, keep)
	}
	if err != nil {
		return res, err
	}
	if len(res.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return res, nil
	}
	return follow(ctx, path, res.Offset, opts.Wait, keep)
}

// componentFilter matches the console header "[component]" or the JSON
// "component" field. Console field lines ("    - key: value") follow the
// verdict of their header.
func componentFilter(component string) func(string) bool {
	component = strings.TrimSpace(component)
	if component == "" {
		return func(string) bool { return true }
	}
	console := " [" + component + "]"
	json := `"component":"` + component + `"`
	lastHeader := false
	return func(line string) bool {
		if strings.HasPrefix(line, "    - ") {
			return lastHeader
		}
		lastHeader = strings.Contains(line, console) || strings.Contains(line, json)
		return lastHeader
	}
}

// lastLines keeps a sliding window of the final limit matching lines. A
// non-positive limit returns no lines, only the end offset.
func lastLines(path string, limit int, keep func(string) bool) (TailResult, error) {
	var window []string
	offset, err := scan(path, 0, func(line string) {
		if limit <= 0 || !keep(line) {
			return
		}
		if len(window) == limit {
			window = window[1:]
		}
		window = append(window, line)
	})
	return TailResult{Lines: window, Offset: offset}, err
}

func readFrom(path string, offset int64, keep func(string) bool) (TailResult, error) {
	var lines []string
	end, err := scan(path, offset, func(line string) {
		if keep(line) {
			lines = append(lines, line)
		}
	})
	if err != nil {
		return TailResult{Offset: offset}, err
	}
	return TailResult{Lines: lines, Offset: end}, nil
}

// scan feeds every line after offset to fn and returns the offset reached.
func scan(path string, offset int64, fn func(string)) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return offset, fmt.Errorf("read log file: %w", err)
	}
	end, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return offset, fmt.Errorf("determine log offset: %w", err)
	}
	return end, nil
}

func follow(ctx context.Context, path string, offset int64, wait time.Duration, keep func(string) bool) (TailResult, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return TailResult{Offset: offset}, ctx.Err()
		case <-deadline.C:
			return TailResult{Offset: offset}, nil
		case <-ticker.C:
		}
		res, err := readFrom(path, offset, keep)
		if err != nil {
			return res, err
		}
		offset = res.Offset
		if len(res.Lines) > 0 {
			return res, nil
		}
	}
}
