package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/haasonsaas/mcpbot/internal/mcp"
)

type serversFile struct {
	MCPServers map[string]serverEntry `json:"mcpServers"`
}

type serverEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env"`
	WorkDir string            `json:"workdir"`
	Timeout string            `json:"timeout"`
}

// LoadServers reads the tool server file at path. The file is JSON or JSON5
// with an "mcpServers" object keyed by server name; ${VAR} references are
// expanded from the environment. Servers are returned sorted by name.
// A missing file yields an error wrapping fs.ErrNotExist.
func LoadServers(path string) ([]*mcp.ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read servers config: %w", err)
	}
	return ParseServers([]byte(os.ExpandEnv(string(data))))
}

// ParseServers parses and validates a servers document.
func ParseServers(data []byte) ([]*mcp.ServerConfig, error) {
	var file serversFile
	if err := json5.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse servers config: %w", err)
	}

	names := make([]string, 0, len(file.MCPServers))
	for name := range file.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	servers := make([]*mcp.ServerConfig, 0, len(names))
	for _, name := range names {
		entry := file.MCPServers[name]
		cfg := &mcp.ServerConfig{
			Name:    name,
			Command: entry.Command,
			Args:    entry.Args,
			Env:     entry.Env,
			WorkDir: entry.WorkDir,
		}
		if entry.Timeout != "" {
			timeout, err := time.ParseDuration(entry.Timeout)
			if err != nil {
				return nil, fmt.Errorf("server %s: timeout: %w", name, err)
			}
			cfg.Timeout = timeout
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		servers = append(servers, cfg)
	}
	return servers, nil
}
