package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/mcpbot/internal/channels/telegram"
	"github.com/haasonsaas/mcpbot/internal/observability"
	"github.com/haasonsaas/mcpbot/pkg/models"
)

type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *recorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.steps, ",")
}

type fakeTransport struct {
	rec      *recorder
	initErr  error
	stopErr  error
	commands []string
	message  telegram.HandlerFunc
}

func (f *fakeTransport) Init(context.Context) error {
	f.rec.add("init")
	return f.initErr
}

func (f *fakeTransport) Start(context.Context) error {
	f.rec.add("start")
	return nil
}

func (f *fakeTransport) Stop(context.Context) error {
	f.rec.add("stop")
	return f.stopErr
}

func (f *fakeTransport) Close() error {
	f.rec.add("close")
	return nil
}

func (f *fakeTransport) HandleCommand(command string, fn telegram.HandlerFunc) {
	f.commands = append(f.commands, command)
}

func (f *fakeTransport) HandleMessage(fn telegram.HandlerFunc) {
	f.rec.add("handlers")
	f.message = fn
}

type fakeGateway struct{ rec *recorder }

func (f *fakeGateway) Connect(context.Context) error {
	f.rec.add("connect")
	return nil
}

func (f *fakeGateway) Cleanup() { f.rec.add("cleanup") }

type fakeHandlers struct {
	mu     sync.Mutex
	events []*models.InboundEvent
}

func (f *fakeHandlers) HandleMessage(ctx context.Context, event *models.InboundEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeHandlers) Commands() map[string]func(context.Context, *models.InboundEvent) {
	noop := func(context.Context, *models.InboundEvent) {}
	return map[string]func(context.Context, *models.InboundEvent){"help": noop, "start": noop}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessLifecycleOrder(t *testing.T) {
	rec := &recorder{}
	transport := &fakeTransport{rec: rec}
	handlers := &fakeHandlers{}
	p := New(transport, &fakeGateway{rec}, handlers, Config{
		Logger: quietLogger(),
		TracerShutdown: func(context.Context) error {
			rec.add("tracer")
			return nil
		},
	})

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := rec.String(); got != "init,start,connect,handlers" {
		t.Errorf("startup order = %s", got)
	}
	if len(transport.commands) != 2 {
		t.Errorf("registered commands = %v", transport.commands)
	}

	transport.message(context.Background(), &models.InboundEvent{ConversationID: 1, Text: "hi"})
	if len(handlers.events) != 1 {
		t.Error("message handler not wired to router")
	}

	rec.steps = nil
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := rec.String(); got != "stop,close,cleanup,tracer" {
		t.Errorf("shutdown order = %s", got)
	}
}

func TestProcessStopAttemptsEveryStep(t *testing.T) {
	rec := &recorder{}
	stopErr := errors.New("polling stuck")
	tracerErr := errors.New("exporter unreachable")
	p := New(&fakeTransport{rec: rec, stopErr: stopErr}, &fakeGateway{rec}, &fakeHandlers{}, Config{
		Logger:         quietLogger(),
		TracerShutdown: func(context.Context) error { return tracerErr },
	})

	err := p.Stop(context.Background())
	if !errors.Is(err, stopErr) || !errors.Is(err, tracerErr) {
		t.Errorf("Stop() error = %v, want both failures", err)
	}
	if got := rec.String(); got != "stop,close,cleanup" {
		t.Errorf("shutdown steps = %s", got)
	}
}

func TestProcessInitFailure(t *testing.T) {
	rec := &recorder{}
	initErr := errors.New("unauthorized")
	p := New(&fakeTransport{rec: rec, initErr: initErr}, &fakeGateway{rec}, &fakeHandlers{}, Config{Logger: quietLogger()})

	err := p.Run(context.Background(), time.Second)
	if !errors.Is(err, initErr) {
		t.Fatalf("Run() error = %v, want init error", err)
	}
	if got := rec.String(); got != "init,stop,close,cleanup" {
		t.Errorf("steps = %s", got)
	}
}

func TestProcessRunStopsOnCancel(t *testing.T) {
	rec := &recorder{}
	p := New(&fakeTransport{rec: rec}, &fakeGateway{rec}, &fakeHandlers{}, Config{Logger: quietLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, time.Second) }()

	deadline := time.Now().Add(time.Second)
	for !strings.Contains(rec.String(), "handlers") {
		if time.Now().After(deadline) {
			t.Fatal("process did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if !strings.HasSuffix(rec.String(), "stop,close,cleanup") {
		t.Errorf("steps = %s", rec.String())
	}
}

func TestMetricsServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	metrics.EventReceived("handled")

	rec := &recorder{}
	p := New(&fakeTransport{rec: rec}, &fakeGateway{rec}, &fakeHandlers{}, Config{
		MetricsAddr: "127.0.0.1:0",
		Gatherer:    reg,
		Logger:      quietLogger(),
	})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer p.Stop(context.Background())

	base := "http://" + p.Addr()
	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "mcpbot_events_total") {
		t.Errorf("/metrics missing event counter:\n%s", body)
	}
}
