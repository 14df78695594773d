package config

import (
	"fmt"
	"strings"
)

// MCPConfig controls the MCP tool endpoint
type MCPConfig struct {
	Enabled bool   `env:"MCP_ENABLED" yaml:"enabled" default:"true"`
	Path    string `env:"MCP_PATH" yaml:"path" default:"/mcp"`
}

// Validate checks the endpoint path
func (m MCPConfig) Validate() error {
	if m.Enabled && !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("mcp path must start with /, got %q", m.Path)
	}
	return nil
}
