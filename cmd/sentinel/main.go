// Command sentinel is the CLI front-end for the MCP policy enforcement
// gateway: it loads configuration, constructs the core Sentinel, and
// exposes it over HTTP. It carries none of the pipeline's own decision
// logic — every verdict is produced by pkg/sentinel.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/metrics"
	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/sentinel"
	"github.com/newmar1997ma-coder/mcp-sentinel/pkg/sentinelconfig"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = runStart(os.Args[2:])
	case "check":
		err = runCheck(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "sentinel: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "sentinel: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: sentinel <command> [flags]

commands:
  start --config <path>   run the gateway, serving /health and /metrics
  check --config <path>   validate configuration and exit
  status --addr <addr>    query a running instance's /health endpoint`)
}

// runStart loads configuration, constructs the Sentinel, and serves
// it over HTTP until an interrupt or termination signal arrives.
func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML or YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loaded, err := sentinelconfig.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	s, err := sentinel.New(loaded.Sentinel, sentinel.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("constructing sentinel: %w", err)
	}
	defer s.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(s))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:    loaded.Server.ListenAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("[sentinel] listening on %s (metrics on the same address at /metrics)", loaded.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[sentinel] http server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("[sentinel] shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), loaded.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[sentinel] shutdown error: %v", err)
	}
	log.Printf("[sentinel] stopped")
	return nil
}

// runCheck validates configuration without starting anything, so a
// CI pipeline or deploy script can fail fast on a bad config file.
func runCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML or YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	loaded, err := sentinelconfig.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	fmt.Println("configuration OK")
	return nil
}

// runStatus queries a running instance's /health endpoint.
func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	addr := fs.String("addr", "http://127.0.0.1:8443", "base address of a running sentinel instance")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		return fmt.Errorf("querying %s/health: %w", *addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	fmt.Println(string(body))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("instance reported unhealthy (status %d)", resp.StatusCode)
	}
	return nil
}

type healthResponse struct {
	Status       string `json:"status"`
	Halted       bool   `json:"halted"`
	StepCount    uint64 `json:"step_count"`
	GasRemaining uint64 `json:"gas_remaining"`
}

// healthHandler reports the shared Sentinel's monitor status. A
// halted monitor reports degraded with a 503 so load balancers stop
// routing to this instance.
func healthHandler(s *sentinel.Sentinel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := "ok"
		if s.IsHalted() {
			status = "degraded"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		resp := healthResponse{
			Status:       status,
			Halted:       s.IsHalted(),
			StepCount:    s.StepCount(),
			GasRemaining: s.GasRemaining(),
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
