package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Recorder receives the outcome of server lifecycle operations.
type Recorder interface {
	RecordToolServer(server, operation string, err error)
}

// Manager owns the clients for every configured server. A server that
// fails to connect or close never affects the others.
type Manager struct {
	servers   []*ServerConfig
	logger    *slog.Logger
	recorder  Recorder
	newClient func(*ServerConfig) *Client

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewManager creates a manager for servers.
func NewManager(servers []*ServerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		servers: servers,
		logger:  logger.With("component", "mcp"),
		clients: make(map[string]*Client),
	}
	m.newClient = func(cfg *ServerConfig) *Client { return NewClient(cfg, m.logger) }
	return m
}

// SetRecorder installs a recorder for connect and cleanup outcomes.
func (m *Manager) SetRecorder(r Recorder) {
	m.recorder = r
}

// Servers returns the configured servers.
func (m *Manager) Servers() []*ServerConfig {
	return m.servers
}

// ConnectAll connects every configured server concurrently. Failures are
// logged and returned per server name; they are never fatal.
func (m *Manager) ConnectAll(ctx context.Context) map[string]error {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed = map[string]error{}
	)
	for _, cfg := range m.servers {
		cfg := cfg
		g.Go(func() error {
			if err := m.Connect(ctx, cfg); err != nil {
				m.logger.ErrorContext(ctx, "failed to connect to MCP server", "server", cfg.Name, "error", err)
				mu.Lock()
				failed[cfg.Name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

// Connect connects a single server. Connecting an already connected
// server is a no-op.
func (m *Manager) Connect(ctx context.Context, cfg *ServerConfig) (err error) {
	defer func() { m.record(cfg.Name, "connect", err) }()

	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.RLock()
	_, exists := m.clients[cfg.Name]
	m.mu.RUnlock()
	if exists {
		return nil
	}

	client := m.newClient(cfg)
	if err := client.Connect(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.clients[cfg.Name] = client
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "MCP server ready", "server", cfg.Name, "tools", len(client.Tools()))
	return nil
}

// CloseAll closes every connected client. Each failure is logged and the
// remaining clients are still closed.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[string]*Client)
	m.mu.Unlock()

	for _, name := range sortedKeys(clients) {
		err := clients[name].Close()
		m.record(name, "cleanup", err)
		if err != nil {
			m.logger.Error("failed to close MCP client", "server", name, "error", err)
			continue
		}
		m.logger.Info("disconnected from MCP server", "server", name)
	}
}

// Client returns the client for a connected server.
func (m *Manager) Client(name string) (*Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[name]
	return client, ok
}

// Clients returns a snapshot of connected clients keyed by server name.
func (m *Manager) Clients() map[string]*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Client, len(m.clients))
	for name, client := range m.clients {
		out[name] = client
	}
	return out
}

// CallTool calls a tool on a specific server.
func (m *Manager) CallTool(ctx context.Context, server, tool string, arguments json.RawMessage) (*ToolCallResult, error) {
	client, ok := m.Client(server)
	if !ok {
		return nil, fmt.Errorf("server %q not connected", server)
	}
	return client.CallTool(ctx, tool, arguments)
}

// ServerStatus describes one configured server.
type ServerStatus struct {
	Name      string         `json:"name"`
	Command   string         `json:"command"`
	Connected bool           `json:"connected"`
	Server    Implementation `json:"server"`
	Tools     int            `json:"tools"`
}

// Status returns the status of all configured servers in config order.
func (m *Manager) Status() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]ServerStatus, 0, len(m.servers))
	for _, cfg := range m.servers {
		status := ServerStatus{Name: cfg.Name, Command: cfg.Command}
		if client, ok := m.clients[cfg.Name]; ok {
			status.Connected = client.Connected()
			status.Server = client.ServerInfo()
			status.Tools = len(client.Tools())
		}
		statuses = append(statuses, status)
	}
	return statuses
}

func (m *Manager) record(server, operation string, err error) {
	if m.recorder != nil {
		m.recorder.RecordToolServer(server, operation, err)
	}
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
