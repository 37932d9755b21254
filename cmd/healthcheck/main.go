// Command healthcheck requests the bot's /healthz for container health checks.
// It targets HEALTHCHECK_URL, else the listener address the bot itself would
// bind (HTTP_ADDR, else CALLBACK_PORT on loopback).
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/onnwee/happye-bot/config"
)

func main() {
	u, err := target()
	if err != nil {
		log.Printf("healthcheck: %v", err)
		os.Exit(1)
	}
	client := &http.Client{Timeout: 3 * time.Second}
	ctx := context.Background()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		os.Exit(1)
	}
	resp, err := client.Do(req)
	if err != nil {
		os.Exit(1)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

func target() (string, error) {
	if u := os.Getenv("HEALTHCHECK_URL"); u != "" {
		return u, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	addr := cfg.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return fmt.Sprintf("http://%s/healthz", addr), nil
}
