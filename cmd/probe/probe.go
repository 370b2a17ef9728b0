package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

type probeConfig struct {
	URL          string
	Method       string
	Requests     int
	RPS          float64
	Burst        int
	APIKeyHeader string
	APIKey       string
	Email        string
	Token        string
	Timeout      time.Duration
}

// report resume a rodada: contagem por status e os headers de rate limit
// da última resposta.
type report struct {
	Statuses  map[int]int
	Errors    int
	LastLimit http.Header
	Elapsed   time.Duration
}

var rateLimitHeaders = []string{"RateLimit-Policy", "RateLimit-Limit", "RateLimit-Remaining", "RateLimit-Reset", "Retry-After"}

type probe struct {
	cfg     probeConfig
	client  *http.Client
	limiter *rate.Limiter
}

func newProbe(cfg probeConfig) *probe {
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	return &probe{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}
}

func (p *probe) run(ctx context.Context) (report, error) {
	rep := report{Statuses: make(map[int]int), LastLimit: make(http.Header)}
	start := time.Now()

	for i := 0; i < p.cfg.Requests; i++ {
		if err := p.limiter.Wait(ctx); err != nil {
			rep.Elapsed = time.Since(start)
			return rep, err
		}

		resp, err := p.send(ctx)
		if err != nil {
			rep.Errors++
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		rep.Statuses[resp.StatusCode]++
		for _, h := range rateLimitHeaders {
			if v := resp.Header.Get(h); v != "" {
				rep.LastLimit.Set(h, v)
			} else {
				rep.LastLimit.Del(h)
			}
		}
	}

	rep.Elapsed = time.Since(start)
	return rep, nil
}

func (p *probe) send(ctx context.Context) (*http.Response, error) {
	var body io.Reader
	if p.cfg.Email != "" {
		payload, err := json.Marshal(map[string]string{"email": p.cfg.Email})
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, p.cfg.Method, p.cfg.URL, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.cfg.APIKey != "" {
		req.Header.Set(p.cfg.APIKeyHeader, p.cfg.APIKey)
	}
	if p.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	}
	return p.client.Do(req)
}

func (r report) String() string {
	var b strings.Builder
	codes := make([]int, 0, len(r.Statuses))
	for code := range r.Statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	fmt.Fprintf(&b, "elapsed: %s\n", r.Elapsed.Round(time.Millisecond))
	for _, code := range codes {
		fmt.Fprintf(&b, "  %d %-22s %d\n", code, http.StatusText(code), r.Statuses[code])
	}
	if r.Errors > 0 {
		fmt.Fprintf(&b, "  transport errors         %d\n", r.Errors)
	}
	for _, h := range rateLimitHeaders {
		if v := r.LastLimit.Get(h); v != "" {
			fmt.Fprintf(&b, "%s: %s\n", h, v)
		}
	}
	return b.String()
}
