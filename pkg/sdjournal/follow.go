package sdjournal

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// pollSlice bounds each poll(2) call so cancellation is noticed promptly.
const pollSlice = 250 * time.Millisecond

// followWait is how long Follow blocks before re-checking the journal on
// its own.
const followWait = 5 * time.Second

// WaitContext is Wait with cancellation. It polls the journal descriptor
// until it is readable, timeout passes, libsystemd's own deadline passes,
// or ctx is done, then lets libsystemd process what changed. A negative
// timeout waits until one of the others happens.
func (j *Journal) WaitContext(ctx context.Context, timeout time.Duration) (Event, error) {
	fd, err := j.FD()
	if err != nil {
		return EventNop, fmt.Errorf("journal fd: %w", err)
	}
	events, err := j.Events()
	if err != nil {
		return EventNop, fmt.Errorf("journal events: %w", err)
	}

	now, err := monotonicNow()
	if err != nil {
		return EventNop, err
	}
	var deadline time.Duration
	hasDeadline := timeout >= 0
	if hasDeadline {
		deadline = now + timeout
	}
	if t, ok, err := j.Timeout(); err != nil {
		return EventNop, fmt.Errorf("journal timeout: %w", err)
	} else if ok && (!hasDeadline || t < deadline) {
		deadline, hasDeadline = t, true
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: int16(events)}}
	for {
		if err := ctx.Err(); err != nil {
			return EventNop, err
		}
		wait := pollSlice
		if hasDeadline {
			if wait > deadline-now {
				wait = deadline - now
			}
			if wait < 0 {
				wait = 0
			}
		}
		n, err := unix.Poll(fds, int((wait+time.Millisecond-1)/time.Millisecond))
		if err != nil && !errors.Is(err, unix.EINTR) {
			return EventNop, fmt.Errorf("poll journal: %w", err)
		}
		if n > 0 {
			break
		}
		if now, err = monotonicNow(); err != nil {
			return EventNop, err
		}
		if hasDeadline && now >= deadline {
			break
		}
	}
	return j.Process()
}

func monotonicNow() (time.Duration, error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0, fmt.Errorf("clock_gettime: %w", err)
	}
	return time.Duration(ts.Nano()), nil
}

// Poll returns the entries after cursor that match the current matches,
// and the cursor of the last one. An empty cursor reads from the head. A
// cursor naming an entry that no longer exists resumes at the nearest
// entry. When nothing is new the returned cursor is the one passed in.
func (j *Journal) Poll(ctx context.Context, cursor string) ([]*Entry, string, error) {
	if _, err := j.Wait(0); err != nil {
		return nil, cursor, fmt.Errorf("process journal: %w", err)
	}

	// pending is set when the journal already sits on an unread entry.
	pending := false
	if cursor == "" {
		if err := j.SeekHead(); err != nil {
			return nil, cursor, err
		}
	} else if err := j.SeekCursor(cursor); err != nil {
		j.log.Debug("poll cursor rejected, reading from head", slog.String("op", "poll"), slog.Any("error", err))
		if err := j.SeekHead(); err != nil {
			return nil, cursor, err
		}
	} else {
		m, err := j.Next()
		if err != nil {
			return nil, cursor, fmt.Errorf("reading journal: %w", err)
		}
		if m.EOF() {
			return nil, cursor, nil
		}
		same, err := j.CursorMatches(cursor)
		if err != nil {
			return nil, cursor, err
		}
		pending = !same
	}

	var entries []*Entry
	last := cursor
	for {
		if err := ctx.Err(); err != nil {
			return entries, last, err
		}
		if !pending {
			m, err := j.Next()
			if err != nil {
				return entries, last, fmt.Errorf("reading journal: %w", err)
			}
			if m.EOF() {
				break
			}
		}
		pending = false
		e, err := j.Entry()
		if err != nil {
			return entries, last, err
		}
		entries = append(entries, e)
		last = e.Cursor
	}
	return entries, last, nil
}

// Follow yields entries from the current position onward, waiting for new
// ones once the end is reached. It returns when ctx is done or after the
// first error, which is yielded.
func (j *Journal) Follow(ctx context.Context) iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		for ctx.Err() == nil {
			m, err := j.Next()
			if err != nil {
				yield(nil, fmt.Errorf("reading journal: %w", err))
				return
			}
			if m.EOF() {
				if _, err := j.WaitContext(ctx, followWait); err != nil {
					if ctx.Err() != nil {
						return
					}
					j.log.Warn("follow wait failed", slog.String("op", "follow"), slog.Any("error", err))
					yield(nil, err)
					return
				}
				continue
			}
			e, err := j.Entry()
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}
