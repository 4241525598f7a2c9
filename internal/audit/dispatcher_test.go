package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(context.Context, Event) {
	<-s.release
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherCloseFlushes(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)
	for i := 0; i < 32; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success"})
	}
	d.Close()

	if got := sink.count.Load(); got != 32 {
		t.Fatalf("expected 32 delivered events, got %d", got)
	}

	d.Emit(context.Background(), Event{EventType: "late"})
	if got := sink.count.Load(); got != 32 {
		t.Fatalf("emit after close must be ignored, got %d", got)
	}
}

func TestDispatcherDropIfFullCounts(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// Worker holds the first event, buffer holds the second.
	deadline := time.Now().Add(2 * time.Second)
	for d.Dropped() == 0 && time.Now().Before(deadline) {
		d.Emit(context.Background(), Event{EventType: "mfa_failure"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops once the buffer filled")
	}
	close(sink.release)
	d.Close()
}

func TestDispatcherBlockingRespectsContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.release)
		d.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 4; i++ {
			d.Emit(ctx, Event{EventType: "login_failure"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("blocking emit ignored context cancellation")
	}
}

func TestJSONWriterSinkWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "totp_enabled", UserID: "u-1", Success: true})
	sink.Emit(context.Background(), Event{EventType: "logout", UserID: "u-1", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.EventType != "totp_enabled" || ev.UserID != "u-1" || !ev.Success {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestChannelSinkDelivers(t *testing.T) {
	sink := NewChannelSink(0)
	sink.Emit(context.Background(), Event{EventType: "session_expired"})

	select {
	case ev := <-sink.Events():
		if ev.EventType != "session_expired" {
			t.Fatalf("unexpected event %q", ev.EventType)
		}
	default:
		t.Fatal("expected buffered event")
	}
}

type panickingSink struct {
	calls atomic.Int64
}

func (s *panickingSink) Emit(context.Context, Event) {
	if s.calls.Add(1) == 1 {
		panic("sink failure")
	}
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	sink := &panickingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)
	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Emit(context.Background(), Event{EventType: "logout"})
	d.Close()

	if sink.calls.Load() != 2 {
		t.Fatalf("expected both events to reach the sink, got %d", sink.calls.Load())
	}
	if d.Dropped() != 1 || d.Delivered() != 1 {
		t.Fatalf("expected 1 dropped and 1 delivered, got %d/%d", d.Dropped(), d.Delivered())
	}
}

type stampSink struct {
	got chan Event
}

func (s *stampSink) Emit(_ context.Context, e Event) { s.got <- e }

func TestDispatcherStampsMissingTimestamp(t *testing.T) {
	sink := &stampSink{got: make(chan Event, 1)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	d.Emit(context.Background(), Event{EventType: "mfa_required"})
	d.Close()

	ev := <-sink.got
	if ev.Timestamp.IsZero() {
		t.Fatal("expected dispatcher to stamp the event")
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	sink.Emit(context.Background(), Event{EventType: "login_success", UserID: "u-1", Success: true})
	sink.Emit(context.Background(), Event{
		EventType: "mfa_failure",
		Error:     "second_factor_invalid",
		Metadata:  map[string]string{"phase": "second_factor"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %q", buf.String())
	}
	var ok, failed map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &ok); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &failed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ok["level"] != "INFO" || ok["msg"] != "audit login_success" || ok["user_id"] != "u-1" {
		t.Fatalf("unexpected success record: %v", ok)
	}
	if failed["level"] != "WARN" || failed["error"] != "second_factor_invalid" {
		t.Fatalf("unexpected failure record: %v", failed)
	}
	meta, _ := failed["metadata"].(map[string]any)
	if meta["phase"] != "second_factor" {
		t.Fatalf("expected metadata group, got %v", failed["metadata"])
	}
	if _, present := failed["user_id"]; present {
		t.Fatal("empty user id must be omitted")
	}
}

func TestDispatcherCloseTwice(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 2}, &countingSink{})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{EventType: "logout"})
	if d.Delivered() != 0 || d.Dropped() != 0 {
		t.Fatalf("closed dispatcher must ignore events, got %d/%d", d.Delivered(), d.Dropped())
	}
}
