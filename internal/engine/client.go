package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Operation names, used in errors and as the metrics "op" attribute.
const (
	OpVersion    = "version"
	OpSpeakers   = "speakers"
	OpAudioQuery = "audio_query"
	OpSynthesis  = "synthesis"
)

const (
	DefaultBaseURL          = "http://localhost:50021"
	DefaultQueryTimeout     = 30 * time.Second
	DefaultSynthesisTimeout = 60 * time.Second
	DefaultVersionTimeout   = 5 * time.Second
	DefaultSpeakersTimeout  = 10 * time.Second
	DefaultMaxResponseBytes = 50 * 1024 * 1024

	maxErrorBodyBytes = 64 * 1024
)

// CallObserver is notified once per outbound engine call.
// status is 0 when the engine was never reached.
type CallObserver func(op string, status int, err error, elapsed time.Duration)

// Config holds configuration for the engine client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client

	QueryTimeout     time.Duration
	SynthesisTimeout time.Duration
	VersionTimeout   time.Duration
	SpeakersTimeout  time.Duration

	// MaxResponseBytes caps successful response bodies (audio included).
	MaxResponseBytes int64

	OnCall CallObserver
}

// Client talks to a VOICEVOX-compatible engine over HTTP.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	queryTimeout     time.Duration
	synthesisTimeout time.Duration
	versionTimeout   time.Duration
	speakersTimeout  time.Duration
	maxBody          int64

	onCall CallObserver
}

// Response is a successful (HTTP 200) engine response.
type Response struct {
	Body        []byte
	ContentType string
}

// NewClient creates a new engine client. Zero durations and sizes fall back to defaults.
func NewClient(cfg Config) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse engine url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("engine url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("engine url %q: missing host", raw)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:          u,
		httpClient:       httpClient,
		queryTimeout:     orDefault(cfg.QueryTimeout, DefaultQueryTimeout),
		synthesisTimeout: orDefault(cfg.SynthesisTimeout, DefaultSynthesisTimeout),
		versionTimeout:   orDefault(cfg.VersionTimeout, DefaultVersionTimeout),
		speakersTimeout:  orDefault(cfg.SpeakersTimeout, DefaultSpeakersTimeout),
		maxBody:          orDefaultInt(cfg.MaxResponseBytes, DefaultMaxResponseBytes),
		onCall:           cfg.OnCall,
	}, nil
}

// BaseURL returns the configured engine base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Version calls GET /version.
func (c *Client) Version(ctx context.Context) (*Response, error) {
	return c.do(ctx, OpVersion, http.MethodGet, "/version", nil, nil, c.versionTimeout)
}

// Speakers calls GET /speakers.
func (c *Client) Speakers(ctx context.Context) (*Response, error) {
	return c.do(ctx, OpSpeakers, http.MethodGet, "/speakers", nil, nil, c.speakersTimeout)
}

// AudioQuery calls POST /audio_query and returns the raw AudioQuery JSON.
func (c *Client) AudioQuery(ctx context.Context, text string, speaker int) ([]byte, error) {
	params := url.Values{}
	params.Set("text", text)
	params.Set("speaker", strconv.Itoa(speaker))

	resp, err := c.do(ctx, OpAudioQuery, http.MethodPost, "/audio_query", params, nil, c.queryTimeout)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Synthesis calls POST /synthesis with the given AudioQuery JSON body.
func (c *Client) Synthesis(ctx context.Context, speaker int, query []byte) (*Response, error) {
	params := url.Values{}
	params.Set("speaker", strconv.Itoa(speaker))

	return c.do(ctx, OpSynthesis, http.MethodPost, "/synthesis", params, query, c.synthesisTimeout)
}

func (c *Client) do(ctx context.Context, op, method, path string, params url.Values, body []byte, timeout time.Duration) (resp *Response, err error) {
	start := time.Now()
	status := 0
	if c.onCall != nil {
		defer func() { c.onCall(op, status, err, time.Since(start)) }()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if params != nil {
		u.RawQuery = params.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &UnavailableError{Op: op, Err: err}
	}
	defer httpResp.Body.Close()
	status = httpResp.StatusCode

	if httpResp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBodyBytes))
		if readErr != nil {
			return nil, &UnavailableError{Op: op, Err: readErr}
		}
		return nil, &StatusError{
			Op:          op,
			StatusCode:  httpResp.StatusCode,
			Body:        respBody,
			ContentType: httpResp.Header.Get("Content-Type"),
		}
	}

	// Read one extra byte so an oversized body is detectable.
	data, err := io.ReadAll(io.LimitReader(httpResp.Body, c.maxBody+1))
	if err != nil {
		return nil, &UnavailableError{Op: op, Err: err}
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%s: %w (limit %d bytes)", op, ErrResponseTooLarge, c.maxBody)
	}

	return &Response{
		Body:        data,
		ContentType: httpResp.Header.Get("Content-Type"),
	}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func orDefaultInt(n, def int64) int64 {
	if n <= 0 {
		return def
	}
	return n
}

// IsUnavailable reports whether err is a transport-level failure reaching the engine.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
