// Package config holds the user configuration and the on-disk layout of a proto root.
package config

import (
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

// FileName is the configuration file inside the proto root.
const FileName = "config.yaml"

// Defaults applied when no configuration is provided.
var (
	DefaultHTTPTimeout           = Timeout(0)
	DefaultTCPDialTimeout        = Timeout(30 * time.Second)
	DefaultTLSHandshakeTimeout   = Timeout(10 * time.Second)
	DefaultResponseHeaderTimeout = Timeout(30 * time.Second)
	DefaultCacheTTL              = Timeout(30 * time.Minute)
	DefaultCacheEntries          = 128
	DefaultSandboxTimeout        = Timeout(5 * time.Minute)
	DefaultSandboxMemoryPages    = uint32(1024)
	DefaultExecTimeout           = Timeout(10 * time.Minute)
	DefaultInstallConcurrency    = 4
)

// Config is the decoded config.yaml.
type Config struct {
	HTTP    HTTP    `json:"http,omitempty"`
	Cache   Cache   `json:"cache,omitempty"`
	Sandbox Sandbox `json:"sandbox,omitempty"`
	Install Install `json:"install,omitempty"`

	// Plugins maps tool ids to plugin locators, see the loader package for the syntax.
	Plugins map[string]string `json:"plugins,omitempty"`
}

type HTTP struct {
	// Timeout is the overall request timeout. Zero disables it.
	Timeout               *Timeout `json:"timeout,omitempty"`
	TCPDialTimeout        *Timeout `json:"tcpDialTimeout,omitempty"`
	TLSHandshakeTimeout   *Timeout `json:"tlsHandshakeTimeout,omitempty"`
	ResponseHeaderTimeout *Timeout `json:"responseHeaderTimeout,omitempty"`
}

type Cache struct {
	// TTL bounds how long fetched version lists are reused.
	TTL     *Timeout `json:"ttl,omitempty"`
	Entries *int     `json:"entries,omitempty"`
}

type Sandbox struct {
	Timeout     *Timeout `json:"timeout,omitempty"`
	MemoryPages *uint32  `json:"memoryPages,omitempty"`
	ExecTimeout *Timeout `json:"execTimeout,omitempty"`
}

type Install struct {
	Concurrency *int `json:"concurrency,omitempty"`
}

// Default returns a fully populated configuration.
func Default() *Config {
	return &Config{
		HTTP: HTTP{
			Timeout:               &DefaultHTTPTimeout,
			TCPDialTimeout:        &DefaultTCPDialTimeout,
			TLSHandshakeTimeout:   &DefaultTLSHandshakeTimeout,
			ResponseHeaderTimeout: &DefaultResponseHeaderTimeout,
		},
		Cache: Cache{
			TTL:     &DefaultCacheTTL,
			Entries: &DefaultCacheEntries,
		},
		Sandbox: Sandbox{
			Timeout:     &DefaultSandboxTimeout,
			MemoryPages: &DefaultSandboxMemoryPages,
			ExecTimeout: &DefaultExecTimeout,
		},
		Install: Install{
			Concurrency: &DefaultInstallConcurrency,
		},
		Plugins: map[string]string{},
	}
}

// Decode parses a YAML or JSON document.
func Decode(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Load reads path and merges it over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return Merge(Default(), cfg), nil
}

// Merge merges the provided configs into a single config.
// The last explicitly set value wins; plugin locators are merged per tool id.
func Merge(configs ...*Config) *Config {
	if len(configs) == 0 {
		return nil
	}

	merged := &Config{Plugins: map[string]string{}}
	for _, config := range configs {
		if config == nil {
			continue
		}
		setIf(&merged.HTTP.Timeout, config.HTTP.Timeout)
		setIf(&merged.HTTP.TCPDialTimeout, config.HTTP.TCPDialTimeout)
		setIf(&merged.HTTP.TLSHandshakeTimeout, config.HTTP.TLSHandshakeTimeout)
		setIf(&merged.HTTP.ResponseHeaderTimeout, config.HTTP.ResponseHeaderTimeout)
		setIf(&merged.Cache.TTL, config.Cache.TTL)
		setIf(&merged.Cache.Entries, config.Cache.Entries)
		setIf(&merged.Sandbox.Timeout, config.Sandbox.Timeout)
		setIf(&merged.Sandbox.MemoryPages, config.Sandbox.MemoryPages)
		setIf(&merged.Sandbox.ExecTimeout, config.Sandbox.ExecTimeout)
		setIf(&merged.Install.Concurrency, config.Install.Concurrency)
		maps.Copy(merged.Plugins, config.Plugins)
	}
	return merged
}

func setIf[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}

// HTTPClient builds the client used for downloads and fetches.
func (c *Config) HTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   c.HTTP.TCPDialTimeout.Value(),
		KeepAlive: 30 * time.Second,
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = c.HTTP.TLSHandshakeTimeout.Value()
	transport.ResponseHeaderTimeout = c.HTTP.ResponseHeaderTimeout.Value()

	return &http.Client{
		Timeout:   c.HTTP.Timeout.Value(),
		Transport: transport,
	}
}

// Concurrency is the number of tools installed in parallel.
func (c *Config) Concurrency() int {
	if c.Install.Concurrency == nil || *c.Install.Concurrency <= 0 {
		return DefaultInstallConcurrency
	}
	return *c.Install.Concurrency
}

// CacheEntries is the in-memory fetch cache size.
func (c *Config) CacheEntries() int {
	if c.Cache.Entries == nil {
		return DefaultCacheEntries
	}
	return *c.Cache.Entries
}

// MemoryPages is the sandbox memory limit in 64 KiB pages.
func (c *Config) MemoryPages() uint32 {
	if c.Sandbox.MemoryPages == nil {
		return DefaultSandboxMemoryPages
	}
	return *c.Sandbox.MemoryPages
}
