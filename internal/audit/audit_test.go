package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func TestDispatcherDeliversAndFlushesOnClose(t *testing.T) {
	sink := NewChannelSink(10)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink, WithClock(func() time.Time { return at }))

	d.Emit(context.Background(), Event{EventType: EventLogout, UserID: "u1", Success: true})
	d.Close()

	select {
	case e := <-sink.Events():
		if e.EventType != EventLogout || e.UserID != "u1" {
			t.Fatalf("unexpected event: %+v", e)
		}
		if !e.Timestamp.Equal(at) {
			t.Fatalf("expected dispatcher to stamp %v, got %v", at, e.Timestamp)
		}
	default:
		t.Fatal("expected buffered event to be flushed on Close")
	}

	d.Emit(context.Background(), Event{EventType: EventLogout})
	if len(sink.Events()) != 0 {
		t.Fatal("emit after close must be ignored")
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	drops := 0
	var mu sync.Mutex
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink, WithDropHook(func() {
		mu.Lock()
		drops++
		mu.Unlock()
	}))

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: EventAccessDenied})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a blocked sink and a one-slot buffer")
	}
	mu.Lock()
	if uint64(drops) != d.Dropped() {
		t.Fatalf("drop hook count %d != dropped %d", drops, d.Dropped())
	}
	mu.Unlock()

	close(sink.release)
	d.Close()
}

func TestDispatcherBlockingModeHonorsContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	// One event is held by the sink and one fills the buffer.
	d.Emit(context.Background(), Event{EventType: EventLoginFailure})
	d.Emit(context.Background(), Event{EventType: EventLoginFailure})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: EventLoginFailure})
	if d.Dropped() != 1 {
		t.Fatalf("expected the cancelled emit to count as dropped, got %d", d.Dropped())
	}

	close(sink.release)
	d.Close()
	d.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.got) != 2 {
		t.Fatalf("expected 2 delivered events, got %d", len(sink.got))
	}
}

func TestDisabledDispatcherIsNoop(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{EventType: EventAccessDenied, Actor: "a@b.io", Code: "COMPANY_ACCESS_DENIED"})

	var got Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.Actor != "a@b.io" || got.Code != "COMPANY_ACCESS_DENIED" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	s := NewSlogSink(logger)

	s.Emit(context.Background(), Event{EventType: EventAccessDenied, Actor: "x@y.io", Resource: "/reports", Code: "INSUFFICIENT_PERMISSIONS"})
	line := buf.String()
	for _, want := range []string{`"level":"WARN"`, `"actor":"x@y.io"`, `"resource":"/reports"`, `"code":"INSUFFICIENT_PERMISSIONS"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line missing %s: %s", want, line)
		}
	}

	buf.Reset()
	s.Emit(context.Background(), Event{EventType: EventLoginSuccess, Success: true})
	if !strings.Contains(buf.String(), `"level":"INFO"`) {
		t.Fatalf("expected info level for success: %s", buf.String())
	}
}

func TestMultiSink(t *testing.T) {
	a, b := NewChannelSink(1), NewChannelSink(1)
	MultiSink{a, nil, b}.Emit(context.Background(), Event{EventType: EventRegister})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatal("expected fan-out to both sinks")
	}
}
