// Package activity turns raw console input into coalesced last-activity
// updates.
package activity

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type EventKind int

const (
	EventUnknown EventKind = iota
	EventPointerDown
	EventPointerMove
	EventKeyDown
	EventScroll
	EventTouch
)

func (k EventKind) String() string {
	switch k {
	case EventPointerDown:
		return "pointerdown"
	case EventPointerMove:
		return "pointermove"
	case EventKeyDown:
		return "keydown"
	case EventScroll:
		return "scroll"
	case EventTouch:
		return "touchstart"
	default:
		return "unknown"
	}
}

// Qualifies reports whether events of this kind count as user activity.
func (k EventKind) Qualifies() bool {
	return k >= EventPointerDown && k <= EventTouch
}

type Event struct {
	Kind EventKind
	At   time.Time
}

// Recorder accepts or rejects an activity instant and shares accepted ones.
// The inactivity guard rejects activity while its warning is showing.
type Recorder interface {
	RecordActivity(ctx context.Context, at time.Time) bool
}

// Tracker observes input events and, after the debounce delay, records one
// activity instant.
type Tracker struct {
	recorder  Recorder
	now       func() time.Time
	debouncer *Debouncer
	log       *logrus.Entry
}

func NewTracker(recorder Recorder, delay time.Duration, now func() time.Time, log *logrus.Entry) *Tracker {
	if now == nil {
		now = time.Now
	}
	t := &Tracker{
		recorder: recorder,
		now:      now,
		log:      log,
	}
	t.debouncer = NewDebouncer(delay, t.record)
	return t
}

// Observe schedules a coalesced update for qualifying events and drops the
// rest.
func (t *Tracker) Observe(evt Event) {
	if !evt.Kind.Qualifies() {
		return
	}
	t.debouncer.Trigger()
}

// Stop cancels the debounce timer. Events observed afterwards are ignored.
func (t *Tracker) Stop() {
	t.debouncer.Stop()
}

func (t *Tracker) record() {
	at := t.now()
	if !t.recorder.RecordActivity(context.Background(), at) {
		t.log.Debug("Activity ignored by guard")
		return
	}
	t.log.WithField("at", at.UnixMilli()).Debug("Activity recorded")
}

// ScanInput reads r line by line. A line naming one of commands runs it;
// any other line counts as a key press. It returns when r is exhausted or
// ctx is done.
func ScanInput(ctx context.Context, r io.Reader, t *Tracker, commands map[string]func()) error {
	lines := make(chan string)
	errs := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			if cmd, ok := commands[line]; ok {
				cmd()
				continue
			}
			t.Observe(Event{Kind: EventKeyDown, At: time.Now()})
		case err := <-errs:
			return err
		}
	}
}
