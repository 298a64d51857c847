package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/solusinc/manylead-cloud-sub003/internal/apperr"
	"github.com/solusinc/manylead-cloud-sub003/internal/metrics"
)

// StatusProxyBlocked is the gateway response code that signals the egress
// route was refused; the session's proxy IP is rotated and the call retried
// once.
const StatusProxyBlocked = 428

// Rotator rotates the egress IP of a proxy-routed session.
type Rotator interface {
	RotateIP(ctx context.Context, instance string) error
}

// SendResult is the gateway's acknowledgement; Key.ID becomes the local
// message's whatsappMessageId.
type SendResult struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
}

type MediaPayload struct {
	MediaType string `json:"mediaType"`
	MediaURL  string `json:"mediaUrl"`
	Filename  string `json:"filename,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

type ClientConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	BreakerMaxFail uint32
	BreakerTimeout time.Duration
}

// Client talks to the WhatsApp gateway. Every call runs through a circuit
// breaker so callers fail fast while the dependency is down.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	rotator Rotator
	log     *zap.Logger
}

func NewClient(cfg ClientConfig, rotator Rotator, log *zap.Logger) *Client {
	st := gobreaker.Settings{
		Name:    "whatsapp-gateway",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFail
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit breaker state",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(st),
		rotator: rotator,
		log:     log,
	}
}

func (c *Client) SendText(ctx context.Context, instance, phone, text string) (*SendResult, error) {
	if phone == "" {
		return nil, apperr.Validation("send target has no phone number")
	}
	var res SendResult
	err := c.post(ctx, instance, "/message/sendText/"+instance, map[string]any{
		"number": phone,
		"text":   text,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) SendMedia(ctx context.Context, instance, phone string, media MediaPayload) (*SendResult, error) {
	if phone == "" {
		return nil, apperr.Validation("send target has no phone number")
	}
	var res SendResult
	err := c.post(ctx, instance, "/message/sendMedia/"+instance, map[string]any{
		"number":    phone,
		"mediatype": media.MediaType,
		"media":     media.MediaURL,
		"fileName":  media.Filename,
		"caption":   media.Caption,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) EditMessage(ctx context.Context, instance, phone, waMessageID, text string) error {
	return c.post(ctx, instance, "/message/updateText/"+instance, map[string]any{
		"number": phone,
		"key":    map[string]string{"id": waMessageID},
		"text":   text,
	}, nil)
}

func (c *Client) DeleteMessage(ctx context.Context, instance, phone, waMessageID string) error {
	return c.post(ctx, instance, "/message/delete/"+instance, map[string]any{
		"number": phone,
		"key":    map[string]string{"id": waMessageID},
	}, nil)
}

// ProfilePictureURL is best effort; privacy settings commonly hide the photo,
// so callers must tolerate ("", err).
func (c *Client) ProfilePictureURL(ctx context.Context, instance, phone string) (string, error) {
	var res struct {
		ProfilePictureURL string `json:"profilePictureUrl"`
	}
	err := c.post(ctx, instance, "/chat/fetchProfilePicture/"+instance, map[string]any{
		"number": phone,
	}, &res)
	if err != nil {
		return "", err
	}
	return res.ProfilePictureURL, nil
}

// DownloadMedia fetches a media binary from its direct URL with exponential
// backoff. Used by the download worker, not the webhook path.
func (c *Client) DownloadMedia(ctx context.Context, url string) ([]byte, string, error) {
	var body []byte
	var contentType string
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("media host returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("media host returned %d", resp.StatusCode))
		}
		body, err = io.ReadAll(resp.Body)
		contentType = resp.Header.Get("Content-Type")
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, "", apperr.External("download media", err)
	}
	return body, contentType, nil
}

// post runs one gateway call through the circuit breaker. A proxy-blocked
// response rotates the session's egress IP and retries once on the new route.
func (c *Client) post(ctx context.Context, instance, path string, payload any, out any) (err error) {
	defer func() {
		metrics.GatewayRequests.WithLabelValues(pathOp(path), callOutcome(err)).Inc()
	}()
	err = c.doOnce(ctx, path, payload, out)
	if err == nil {
		return nil
	}
	var blocked *proxyBlockedError
	if errors.As(err, &blocked) && c.rotator != nil {
		c.log.Warn("gateway refused egress route, rotating proxy",
			zap.String("instance", instance))
		if rerr := c.rotator.RotateIP(ctx, instance); rerr != nil {
			c.log.Error("proxy rotation failed", zap.Error(rerr))
			return err
		}
		return c.doOnce(ctx, path, payload, out)
	}
	return err
}

// pathOp extracts the gateway operation from a call path such as
// /message/sendText/<instance>.
func pathOp(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return path
	}
	return parts[1]
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apperr.ErrBreakerOpen):
		return "breaker_open"
	default:
		return "error"
	}
}

type proxyBlockedError struct{ status int }

func (e *proxyBlockedError) Error() string {
	return fmt.Sprintf("gateway refused egress route (status %d)", e.status)
}

func (c *Client) doOnce(ctx context.Context, path string, payload any, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("apikey", c.cfg.APIKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode == StatusProxyBlocked {
			io.Copy(io.Discard, resp.Body)
			return nil, &proxyBlockedError{status: resp.StatusCode}
		}
		if resp.StatusCode >= 400 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, fmt.Errorf("gateway %s: %d %s", path, resp.StatusCode, string(msg))
		}
		if out != nil {
			return nil, json.NewDecoder(resp.Body).Decode(out)
		}
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("whatsapp gateway: %w", apperr.ErrBreakerOpen)
		}
		var blocked *proxyBlockedError
		if errors.As(err, &blocked) {
			return err
		}
		return apperr.External("whatsapp gateway", err)
	}
	return nil
}
