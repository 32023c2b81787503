package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// fakeServer answers JSON-RPC requests read from a pipe.
type fakeServer struct {
	tools   []*Tool
	handler func(method string, params json.RawMessage) (any, *JSONRPCError)

	mu            sync.Mutex
	methods       []string
	notifications []string
}

func (s *fakeServer) serve(in io.Reader, out io.WriteCloser) {
	defer out.Close()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		var req JSONRPCRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		s.mu.Lock()
		if req.ID == nil {
			s.notifications = append(s.notifications, req.Method)
			s.mu.Unlock()
			continue
		}
		s.methods = append(s.methods, req.Method)
		s.mu.Unlock()

		result, rpcErr := s.respond(req.Method, req.Params)
		resp := JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
		if rpcErr == nil {
			resp.Result, _ = json.Marshal(result)
		}
		data, _ := json.Marshal(resp)
		if _, err := out.Write(append(data, '\n')); err != nil {
			return
		}
	}
}

func (s *fakeServer) respond(method string, params json.RawMessage) (any, *JSONRPCError) {
	if s.handler != nil {
		if result, rpcErr := s.handler(method, params); result != nil || rpcErr != nil {
			return result, rpcErr
		}
	}
	switch method {
	case "initialize":
		return InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      Implementation{Name: "fake", Version: "1.0"},
		}, nil
	case "tools/list":
		return ListToolsResult{Tools: s.tools}, nil
	case "tools/call":
		var call CallToolParams
		_ = json.Unmarshal(params, &call)
		return ToolCallResult{Content: []ToolResultContent{{Type: "text", Text: "called " + call.Name + " with " + string(call.Arguments)}}}, nil
	}
	return nil, &JSONRPCError{Code: ErrCodeMethodNotFound, Message: "method not found: " + method}
}

func (s *fakeServer) seen() ([]string, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...), append([]string(nil), s.notifications...)
}

// pipeTransport is a StdioTransport wired to an in-process fakeServer.
type pipeTransport struct {
	*StdioTransport
	server     *fakeServer
	connectErr error
	closeErr   error
}

func (p *pipeTransport) Connect(ctx context.Context) error {
	if p.connectErr != nil {
		return p.connectErr
	}
	serverIn, clientOut := io.Pipe()
	clientIn, serverOut := io.Pipe()
	go p.server.serve(serverIn, serverOut)
	p.attach(clientOut, clientIn)
	return nil
}

func (p *pipeTransport) Close() error {
	err := p.StdioTransport.Close()
	if p.closeErr != nil {
		return p.closeErr
	}
	return err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPipeTransport(cfg *ServerConfig, server *fakeServer) *pipeTransport {
	return &pipeTransport{StdioTransport: NewStdioTransport(cfg, discardLogger()), server: server}
}

func connectedPipe(t *testing.T, server *fakeServer) *pipeTransport {
	t.Helper()
	transport := newPipeTransport(&ServerConfig{Name: "fake", Command: "fake"}, server)
	if err := transport.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = transport.Close() })
	return transport
}

var errBoom = errors.New("boom")
