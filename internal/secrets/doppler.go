// Package secrets resolves sensitive configuration through the Doppler CLI.
package secrets

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Source looks up a named secret.
type Source interface {
	Lookup(key string) (string, bool)
}

// runner executes the doppler CLI; replaced in tests.
var runner = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// lookPath reports whether the doppler binary is installed; replaced in tests.
var lookPath = exec.LookPath

// DopplerClient reads secrets for one Doppler project/config pair.
// Values already exported into the process environment (doppler run) win.
type DopplerClient struct {
	Project string
	Config  string
	Timeout time.Duration

	mu        sync.Mutex
	available *bool
	cache     map[string]string
}

// NewDopplerClient creates a new Doppler client
func NewDopplerClient(project, config string) *DopplerClient {
	return &DopplerClient{
		Project: project,
		Config:  config,
		Timeout: 3 * time.Second,
		cache:   make(map[string]string),
	}
}

// Available reports whether the doppler CLI can be used. The probe runs once.
func (d *DopplerClient) Available() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.available == nil {
		_, err := lookPath("doppler")
		ok := err == nil
		d.available = &ok
	}
	return *d.available
}

// Lookup implements Source.
func (d *DopplerClient) Lookup(key string) (string, bool) {
	if value := os.Getenv(key); value != "" {
		return value, true
	}
	if !d.Available() {
		return "", false
	}

	d.mu.Lock()
	if value, ok := d.cache[key]; ok {
		d.mu.Unlock()
		return value, value != ""
	}
	d.mu.Unlock()

	value, err := d.fetch(key)
	if err != nil {
		return "", false
	}

	d.mu.Lock()
	d.cache[key] = value
	d.mu.Unlock()
	return value, value != ""
}

// GetSecretWithFallback gets a secret from Doppler with a fallback value
func (d *DopplerClient) GetSecretWithFallback(key, fallback string) string {
	if value, ok := d.Lookup(key); ok {
		return value
	}
	return fallback
}

func (d *DopplerClient) fetch(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.Timeout)
	defer cancel()

	output, err := runner(ctx, "doppler", "secrets", "get", key,
		"--project", d.Project,
		"--config", d.Config,
		"--plain")
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", key, err)
	}
	return strings.TrimSpace(string(output)), nil
}
