package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// ErrTransportClosed is returned by calls made after or during Close.
var ErrTransportClosed = errors.New("mcp: transport closed")

const maxLineSize = 1024 * 1024

// StdioTransport runs a server as a subprocess and exchanges
// newline-delimited JSON-RPC messages over its stdin and stdout.
type StdioTransport struct {
	config *ServerConfig
	logger *slog.Logger

	process *exec.Cmd
	stdin   io.WriteCloser
	writeMu sync.Mutex

	pending   map[int64]chan *JSONRPCResponse
	pendingMu sync.Mutex
	nextID    atomic.Int64

	connected atomic.Bool
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewStdioTransport creates a transport for cfg. Nothing is started until Connect.
func NewStdioTransport(cfg *ServerConfig, logger *slog.Logger) *StdioTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioTransport{
		config:   cfg,
		logger:   logger.With("mcp_server", cfg.Name, "transport", "stdio"),
		pending:  make(map[int64]chan *JSONRPCResponse),
		stopChan: make(chan struct{}),
	}
}

// Connect starts the subprocess. The process outlives ctx; it is stopped by Close.
func (t *StdioTransport) Connect(ctx context.Context) error {
	if t.config.Command == "" {
		return fmt.Errorf("command is required for stdio transport")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd := exec.Command(t.config.Command, t.config.Args...)
	cmd.Env = os.Environ()
	for k, v := range t.config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	if t.config.WorkDir != "" {
		cmd.Dir = t.config.WorkDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start process: %w", err)
	}
	t.process = cmd
	t.logger.Info("started MCP server process", "command", t.config.Command, "pid", cmd.Process.Pid)

	t.attach(stdin, stdout)

	t.wg.Add(1)
	go t.logStderr(stderr)
	return nil
}

// attach wires the transport to an already running peer.
func (t *StdioTransport) attach(w io.WriteCloser, r io.Reader) {
	t.stdin = w
	t.connected.Store(true)
	t.wg.Add(1)
	go t.readLoop(r)
}

// Close stops the subprocess and fails any in-flight calls.
func (t *StdioTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		t.connected.Store(false)
		close(t.stopChan)

		if t.stdin != nil {
			_ = t.stdin.Close()
		}
		if t.process != nil && t.process.Process != nil {
			if killErr := t.process.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
				err = fmt.Errorf("kill process: %w", killErr)
			}
			_ = t.process.Wait()
		}
		t.wg.Wait()
	})
	return err
}

// Call sends a request and waits for the matching response.
func (t *StdioTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, ErrTransportClosed
	}

	id := t.nextID.Add(1)
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = raw
	}

	respChan := make(chan *JSONRPCResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = respChan
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.write(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	timeout := t.config.timeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respChan:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("%s: request timeout after %v", method, timeout)
	case <-t.stopChan:
		return nil, ErrTransportClosed
	}
}

// Notify sends a notification.
func (t *StdioTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return ErrTransportClosed
	}
	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = raw
	}
	if err := t.write(notif); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

// Connected reports whether the server's stdout is still open.
func (t *StdioTransport) Connected() bool {
	return t.connected.Load()
}

func (t *StdioTransport) write(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_, err = t.stdin.Write(append(data, '\n'))
	return err
}

func (t *StdioTransport) readLoop(r io.Reader) {
	defer t.wg.Done()
	defer t.connected.Store(false)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		select {
		case <-t.stopChan:
			return
		default:
		}
		if line := scanner.Bytes(); len(line) > 0 {
			t.processLine(line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.logger.Error("stdout scanner error", "error", err)
	}
}

// processLine routes a response to its waiting caller. Server-initiated
// notifications are logged and otherwise ignored.
func (t *StdioTransport) processLine(line []byte) {
	var resp JSONRPCResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		t.logger.Warn("discarding malformed message", "error", err)
		return
	}
	if resp.ID == nil {
		var notif JSONRPCNotification
		if err := json.Unmarshal(line, &notif); err == nil && notif.Method != "" {
			t.logger.Debug("server notification", "method", notif.Method)
		}
		return
	}

	id, ok := resp.ID.(float64)
	if !ok {
		t.logger.Warn("unexpected response ID type", "id", resp.ID)
		return
	}

	t.pendingMu.Lock()
	ch, found := t.pending[int64(id)]
	if found {
		delete(t.pending, int64(id))
	}
	t.pendingMu.Unlock()

	if found {
		ch <- &resp
	}
}

func (t *StdioTransport) logStderr(r io.Reader) {
	defer t.wg.Done()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			t.logger.Debug("server stderr", "message", line)
		}
	}
}
