// Command phrasematchd is the phrase-matching service: it loads a built
// artifact set (phrases.daac, payloads.bin, manifest.json) and serves
// match requests over cleartext HTTP/2 (h2c).
//
// Usage:
//
//	# Serve artifacts from ./artifacts on the default port
//	./phrasematchd
//
//	# Custom artifact directory and port
//	ARTIFACT_DIR=/data/phrasematch PORT=9000 ./phrasematchd
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/praetorian-labs/phrasematch/internal/config"
	"github.com/praetorian-labs/phrasematch/internal/hostbind"
	"github.com/praetorian-labs/phrasematch/internal/logger"
	"github.com/praetorian-labs/phrasematch/internal/matcher"
	"github.com/praetorian-labs/phrasematch/internal/metrics"
)

type matchRequest struct {
	TokenIDs []uint32 `json:"token_ids"`
	Policy   string   `json:"policy,omitempty"`
	Max      uint32   `json:"max,omitempty"`
}

type matchResponse struct {
	Matches []hostbind.MatchRecord `json:"matches"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func main() {
	cfg := config.Load()
	log := logger.New("MATCHD", cfg.LogLevel)

	printBanner(cfg)

	var m *matcher.Matcher
	var err error
	if cfg.UseMmapPayloads {
		m, err = matcher.LoadMmap(cfg.AutomatonPath(), cfg.PayloadsPath(), cfg.ManifestPath(), log)
	} else {
		m, err = matcher.Load(cfg.AutomatonPath(), cfg.PayloadsPath(), cfg.ManifestPath(), log)
	}
	if err != nil {
		log.Fatalf("load", "failed to load artifacts from %s: %v", cfg.ArtifactDir, err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Errorf("shutdown", "close error: %v", err)
		}
	}()

	binding := hostbind.New(m)
	met := metrics.New()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/match", handleMatch(binding, met, cfg, log))
	mux.HandleFunc("/v1/stats", handleStats(binding, met))
	mux.HandleFunc("/healthz", handleHealthz(binding))

	h2s := &http2.Server{}
	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(mux, h2s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutdown", "shutting down…")
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("shutdown", "shutdown error: %v", err)
		}
	}()

	log.Infof("listen", "serving %d patterns on %s (h2c)", m.Stats().NumPatterns, addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("listen", "fatal: %v", err)
	}
}

func handleMatch(b *hostbind.Binding, met *metrics.Metrics, cfg *config.Config, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		defer func() { met.RecordRequestLatency(time.Since(start)) }()

		met.RequestsTotal.Add(1)

		if r.Method != http.MethodPost {
			met.ErrorsBadRequest.Add(1)
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req matchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			met.ErrorsBadRequest.Add(1)
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}

		policy := req.Policy
		if policy == "" {
			policy = cfg.DefaultPolicy
		}
		max := req.Max
		if max == 0 {
			max = cfg.DefaultMax
		}

		matches, err := b.Match(req.TokenIDs, policy, max)
		if err != nil {
			met.ErrorsBadRequest.Add(1)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if len(matches) == 0 {
			met.RequestsEmpty.Add(1)
		} else {
			met.RequestsMatched.Add(1)
		}

		writeJSON(w, http.StatusOK, matchResponse{Matches: matches})
	}
}

func handleStats(b *hostbind.Binding, met *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, struct {
			Matcher interface{} `json:"matcher"`
			Service interface{} `json:"service"`
		}{
			Matcher: b.Stats(),
			Service: met.Snapshot(),
		})
	}
}

func handleHealthz(b *hostbind.Binding) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !b.Healthcheck() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // response already committed via WriteHeader
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func printBanner(cfg *config.Config) {
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║          phrasematchd  (Go)                          ║
╚══════════════════════════════════════════════════════╝
  Bind address    : %s
  Port            : %d
  Artifact dir    : %s
  Default policy  : %s
  Default max     : %d
  Mmap payloads   : %v

  Check status:
    curl http://%s:%d/healthz
`, cfg.BindAddress, cfg.Port, cfg.ArtifactDir, cfg.DefaultPolicy, cfg.DefaultMax, cfg.UseMmapPayloads,
		cfg.BindAddress, cfg.Port)
}
