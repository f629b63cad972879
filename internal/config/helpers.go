package config

import (
	"fmt"
	"os"
	"path"
)

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Logging.Level == "debug" && c.Logging.Format == "console"
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}

// ResolveHost returns the configured compute host or the machine hostname
func (c *AgentConfig) ResolveHost() (string, error) {
	if c.Host != "" {
		return c.Host, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to determine hostname: %w", err)
	}
	return host, nil
}

// ResolveNodename returns the hypervisor hostname the agent reports for
func (c *AgentConfig) ResolveNodename(host string) string {
	if c.Nodename != "" {
		return c.Nodename
	}
	return host
}

// Key joins parts under the configured etcd prefix
func (c *EtcdConfig) Key(parts ...string) string {
	return path.Join(append([]string{c.Prefix}, parts...)...)
}
