// Package loadgen drives synthetic traffic at a running instance so the
// telemetry pipeline and the throttle guard can be exercised end to end.
package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
}

type Result struct {
	TotalRequests int
	Failures      int
	StatusClasses map[string]int
}

type target struct {
	method string
	path   string
	body   string
}

// profileTargets maps a traffic profile to the endpoints it hits. The auth
// profile deliberately sends wrong credentials so ban behavior shows up in
// the metrics.
func profileTargets(profile string) []target {
	login := target{http.MethodPost, "/api/v1/auth/login", `{"email":"loadgen@example.com","password":"wrong-password"}`}
	health := target{http.MethodGet, "/healthz", ""}
	refresh := target{http.MethodPost, "/api/v1/auth/refresh", ""}
	switch profile {
	case "auth":
		return []target{login, refresh}
	case "health":
		return []target{health}
	default:
		return []target{login, refresh, health}
	}
}

func normalizeProfile(profile string) string {
	profile = strings.ToLower(strings.TrimSpace(profile))
	if profile == "" {
		return "mixed"
	}
	return profile
}

func classifyStatusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

// Run fires cfg.RPS requests per second across cfg.Concurrency workers for
// cfg.Duration. Transport errors count as failures; any HTTP status counts
// as a completed request.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.RPS <= 0 || cfg.Concurrency <= 0 || cfg.Duration <= 0 {
		return nil, fmt.Errorf("rps, concurrency and duration must be positive")
	}
	targets := profileTargets(normalizeProfile(cfg.Profile))
	rng := rand.New(rand.NewSource(cfg.Seed))

	var mu sync.Mutex
	res := &Result{StatusClasses: map[string]int{}}
	client := &http.Client{Timeout: 10 * time.Second}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	jobs := make(chan target)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Concurrency; i++ {
		g.Go(func() error {
			for tgt := range jobs {
				status, err := fire(gctx, client, cfg.BaseURL, tgt)
				mu.Lock()
				res.TotalRequests++
				if err != nil {
					res.Failures++
				} else {
					res.StatusClasses[classifyStatusClass(status)]++
				}
				mu.Unlock()
			}
			return nil
		})
	}

	ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			tgt := targets[rng.Intn(len(targets))]
			select {
			case jobs <- tgt:
			case <-ctx.Done():
				break loop
			}
		}
	}
	close(jobs)
	if err := g.Wait(); err != nil {
		return res, err
	}
	return res, nil
}

func fire(ctx context.Context, client *http.Client, baseURL string, tgt target) (int, error) {
	var body *bytes.Reader
	if tgt.body != "" {
		body = bytes.NewReader([]byte(tgt.body))
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, tgt.method, strings.TrimRight(baseURL, "/")+tgt.path, body)
	if err != nil {
		return 0, err
	}
	if tgt.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_ = resp.Body.Close()
	return resp.StatusCode, nil
}
