package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"solar-dashboard/internal/auth"
	telemetry "solar-dashboard/internal/telemetry/domain"
)

// NaiveTimestampLayout is the zone-less ISO form devices send; the server reads it as UTC.
const NaiveTimestampLayout = "2006-01-02T15:04:05"

// Poster sends readings to the ingest endpoint.
type Poster struct {
	url      string
	deviceID string
	secret   []byte
	client   *http.Client
	now      func() time.Time
	logger   *zap.Logger
}

// PosterOption customizes the poster.
type PosterOption func(*Poster)

// WithDeviceID sets the device id attached to samples.
func WithDeviceID(id string) PosterOption {
	return func(p *Poster) {
		if id != "" {
			p.deviceID = id
		}
	}
}

// WithSecret enables HMAC request signing.
func WithSecret(secret []byte) PosterOption {
	return func(p *Poster) {
		p.secret = secret
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) PosterOption {
	return func(p *Poster) {
		if client != nil {
			p.client = client
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) PosterOption {
	return func(p *Poster) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) PosterOption {
	return func(p *Poster) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPoster constructs a poster targeting url.
func NewPoster(url string, opts ...PosterOption) (*Poster, error) {
	if url == "" {
		return nil, errors.New("bridge: ingest url required")
	}
	p := &Poster{
		url:      url,
		deviceID: telemetry.DefaultDeviceID,
		client:   &http.Client{Timeout: 5 * time.Second},
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// PostSample stamps a sample with the device id and current time and posts it.
func (p *Poster) PostSample(ctx context.Context, sample Sample) error {
	return p.Post(ctx, map[string]any{
		"device_id": p.deviceID,
		"timestamp": p.now().UTC().Format(NaiveTimestampLayout),
		"voltage":   sample.Voltage,
		"current":   sample.Current,
		"power":     sample.Power,
		"light_raw": sample.LightRaw,
	})
}

// Post sends payload as JSON, signing it when a secret is configured.
func (p *Poster) Post(ctx context.Context, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bridge: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bridge: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(p.secret) > 0 {
		ts := strconv.FormatInt(p.now().Unix(), 10)
		req.Header.Set(auth.IngestTimestampHeader, ts)
		req.Header.Set(auth.IngestSignatureHeader, auth.SignIngest(p.secret, ts, body))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("bridge: post: %w", err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bridge: ingest status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	p.logger.Debug("bridge: posted", zap.Int("status", resp.StatusCode), zap.ByteString("response", snippet))
	return nil
}
