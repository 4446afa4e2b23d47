// Command healthcheck is the container health check: it exits 0 when the local
// cruciverba server reports itself healthy and 1 otherwise.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	httphandler "github.com/ericfisherdev/cruciverba/internal/adapter/driving/http"
	"github.com/ericfisherdev/cruciverba/internal/config"
)

const checkTimeout = 2 * time.Second

func main() {
	os.Exit(check())
}

func check() int {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.LoadHealthcheck()
	if err != nil {
		logger.Error("healthcheck config", "error", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	target := healthURL(cfg.ListenAddr)
	if err := checkHealth(ctx, &http.Client{Timeout: checkTimeout}, target); err != nil {
		logger.Error("healthcheck failed", "url", target, "error", err)
		return 1
	}
	return 0
}

// checkHealth returns nil when target answers 200 with status "ok".
func checkHealth(ctx context.Context, client *http.Client, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var health httphandler.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decode health response: %w", err)
	}
	if health.Status != "ok" {
		return errors.New("server reports status " + health.Status)
	}
	return nil
}

// healthURL turns the configured listen address into the /healthz URL on
// loopback. The check runs inside the server's container, so a bind-all
// host is reached through loopback. An unparsable address falls back to the
// default port.
func healthURL(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		host, port = "", "8080"
	}

	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}

	u := url.URL{Scheme: "http", Host: net.JoinHostPort(host, port), Path: "/healthz"}
	return u.String()
}
