// Package proxypool tracks the shared proxy IP inventory. This is the one
// piece of cross-tenant shared state in the system; counters live in redis.
package proxypool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/apperr"
)

var ErrPoolExhausted = errors.New("proxy pool exhausted")

const (
	countKey      = "proxypool:count"
	allocationKey = "proxypool:alloc:"
)

type Config struct {
	BaseURL   string
	APIKey    string
	Ceiling   int64
	KeepAlive time.Duration
}

// Pool allocates proxy routes against a live count with a pool-size ceiling.
// The check is read-then-write: two concurrent onboardings can both pass it.
// Allocation ids are claimed with SETNX so the double allocation is at least
// detectable downstream.
type Pool struct {
	cfg  Config
	rdb  *redis.Client
	http *http.Client
	log  *zap.Logger
}

func New(cfg Config, rdb *redis.Client, log *zap.Logger) *Pool {
	return &Pool{
		cfg:  cfg,
		rdb:  rdb,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  log,
	}
}

type Allocation struct {
	ID       string `json:"id"`
	Instance string `json:"instance"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// Allocate reserves a proxy route for an instance or fails with
// ErrPoolExhausted when the pool has no room.
func (p *Pool) Allocate(ctx context.Context, instance string) (*Allocation, error) {
	count, err := p.rdb.Get(ctx, countKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	if count >= p.cfg.Ceiling {
		return nil, fmt.Errorf("%d of %d routes in use: %w", count, p.cfg.Ceiling, ErrPoolExhausted)
	}

	var alloc Allocation
	if err := p.call(ctx, http.MethodPost, "/proxies", map[string]string{"instance": instance}, &alloc); err != nil {
		return nil, err
	}

	claimed, err := p.rdb.SetNX(ctx, allocationKey+alloc.ID, instance, 0).Result()
	if err != nil {
		return nil, err
	}
	if !claimed {
		p.log.Warn("proxy allocation id already claimed",
			zap.String("allocation", alloc.ID),
			zap.String("instance", instance))
	}
	if err := p.rdb.Incr(ctx, countKey).Err(); err != nil {
		return nil, err
	}
	return &alloc, nil
}

func (p *Pool) Release(ctx context.Context, allocationID string) error {
	if err := p.call(ctx, http.MethodDelete, "/proxies/"+allocationID, nil, nil); err != nil {
		return err
	}
	if err := p.rdb.Del(ctx, allocationKey+allocationID).Err(); err != nil {
		return err
	}
	return p.rdb.Decr(ctx, countKey).Err()
}

// RotateIP swaps the egress IP of an instance's route. Called by the gateway
// client when a send hits the proxy-blocked error.
func (p *Pool) RotateIP(ctx context.Context, instance string) error {
	return p.call(ctx, http.MethodPost, "/proxies/"+instance+"/rotate", nil, nil)
}

// KeepAlive pings every tracked allocation on the configured interval until
// ctx is cancelled. Ping failures are logged, never fatal.
func (p *Pool) KeepAlive(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.call(ctx, http.MethodPost, "/proxies/ping", nil, nil); err != nil {
				p.log.Warn("proxy keep-alive ping failed", zap.Error(err))
			}
		}
	}
}

func (p *Pool) call(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return apperr.External("proxy pool", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apperr.External("proxy pool", fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, string(msg)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
