// Package bot wires the transport, gateway and router into a running
// process and owns their startup and shutdown order.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/mcpbot/internal/channels/telegram"
	"github.com/haasonsaas/mcpbot/pkg/models"
)

// Transport is the chat transport lifecycle. *telegram.Adapter implements
// it.
type Transport interface {
	Init(ctx context.Context) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Close() error
	HandleCommand(command string, fn telegram.HandlerFunc)
	HandleMessage(fn telegram.HandlerFunc)
}

// Gateway is the agent lifecycle. *gateway.Gateway implements it.
type Gateway interface {
	Connect(ctx context.Context) error
	Cleanup()
}

// Handlers are the routes registered on the transport. *router.Router
// implements it.
type Handlers interface {
	HandleMessage(ctx context.Context, event *models.InboundEvent)
	Commands() map[string]func(context.Context, *models.InboundEvent)
}

// Config configures a Process.
type Config struct {
	// MetricsAddr enables the /metrics and /healthz server when set.
	MetricsAddr string

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// TracerShutdown flushes spans on Stop.
	TracerShutdown func(context.Context) error

	Logger *slog.Logger
}

// Process runs the bot. Start and Stop are each called once.
type Process struct {
	transport Transport
	gateway   Gateway
	handlers  Handlers
	config    Config
	logger    *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	started    time.Time
}

// New creates a process from its parts.
func New(transport Transport, gw Gateway, handlers Handlers, cfg Config) *Process {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	return &Process{
		transport: transport,
		gateway:   gw,
		handlers:  handlers,
		config:    cfg,
		logger:    logger.With("component", "bot"),
	}
}

// Start initializes the transport, starts receiving updates, connects the
// tool servers and registers the handlers, in that order.
func (p *Process) Start(ctx context.Context) error {
	p.started = time.Now()

	if err := p.transport.Init(ctx); err != nil {
		return fmt.Errorf("init transport: %w", err)
	}
	if err := p.transport.Start(ctx); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	if err := p.gateway.Connect(ctx); err != nil {
		return fmt.Errorf("connect tool servers: %w", err)
	}

	for name, fn := range p.handlers.Commands() {
		p.transport.HandleCommand(name, fn)
	}
	p.transport.HandleMessage(p.handlers.HandleMessage)

	if err := p.startHTTPServer(); err != nil {
		return err
	}
	p.logger.Info("bot started", "startup_ms", time.Since(p.started).Milliseconds())
	return nil
}

// Stop shuts everything down in reverse order. Every step runs even when
// an earlier one fails; the failures are logged and joined.
func (p *Process) Stop(ctx context.Context) error {
	p.logger.Info("stopping bot")
	var errs []error

	if err := p.transport.Stop(ctx); err != nil {
		p.logger.Error("error stopping transport", "error", err)
		errs = append(errs, err)
	}
	if err := p.transport.Close(); err != nil {
		p.logger.Error("error closing transport", "error", err)
		errs = append(errs, err)
	}
	p.gateway.Cleanup()

	if err := p.stopHTTPServer(ctx); err != nil {
		p.logger.Warn("http server shutdown error", "error", err)
		errs = append(errs, err)
	}
	if p.config.TracerShutdown != nil {
		if err := p.config.TracerShutdown(ctx); err != nil {
			p.logger.Warn("tracer shutdown error", "error", err)
			errs = append(errs, err)
		}
	}

	if !p.started.IsZero() {
		p.logger.Info("bot stopped", "uptime", time.Since(p.started).Round(time.Second).String())
	}
	return errors.Join(errs...)
}

// Run starts the process, blocks until ctx is done and then stops it
// within shutdownTimeout. A failed start still runs the shutdown steps.
func (p *Process) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	startErr := p.Start(ctx)
	if startErr == nil {
		<-ctx.Done()
		p.logger.Info("shutdown signal received")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stopErr := p.Stop(stopCtx)
	if startErr != nil {
		return startErr
	}
	if stopErr != nil {
		return fmt.Errorf("shutdown failed: %w", stopErr)
	}
	return nil
}

// Addr returns the metrics server address, or "" when it is not running.
func (p *Process) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.httpServer == nil {
		return ""
	}
	return p.httpServer.Addr
}

func (p *Process) startHTTPServer() error {
	if p.config.MetricsAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.config.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", handleHealthz)

	listener, err := net.Listen("tcp", p.config.MetricsAddr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	server := &http.Server{
		Addr:              listener.Addr().String(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	p.mu.Lock()
	p.httpServer = server
	p.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("http server error", "error", err)
		}
	}()
	p.logger.Info("starting http server", "addr", server.Addr)
	return nil
}

func (p *Process) stopHTTPServer(ctx context.Context) error {
	p.mu.Lock()
	server := p.httpServer
	p.httpServer = nil
	p.mu.Unlock()
	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
}
