package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/studiowebux/reviewload/internal/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// HTTP client configuration timeouts
	TCPDialTimeout        = 5 * time.Second
	TCPKeepAliveInterval  = 30 * time.Second
	TLSHandshakeTimeout   = 5 * time.Second
	IdleConnTimeout       = 90 * time.Second
	ExpectContinueTimeout = 1 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

// Service endpoints
const (
	PathTeamAdd             = "/team/add"
	PathPullRequestCreate   = "/pullRequest/create"
	PathPullRequestMerge    = "/pullRequest/merge"
	PathPullRequestReassign = "/pullRequest/reassign"
)

// Options configures a Client
type Options struct {
	BaseURL string
	// Concurrency sizes the connection pool, usually the number of users
	Concurrency    int
	RequestTimeout time.Duration
	// RatePerSecond caps requests across all callers, 0 = unlimited
	RatePerSecond float64
	TLS           *types.TLSConfig
	Logger        *zap.Logger
}

// Client talks to the review-assignment service over HTTP with JSON bodies
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewClient creates a client with a pooled transport
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if !strings.HasPrefix(opts.BaseURL, "http://") && !strings.HasPrefix(opts.BaseURL, "https://") {
		return nil, fmt.Errorf("base URL must start with http:// or https://: %s", opts.BaseURL)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	httpClient, err := buildHTTPClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP client: %w", err)
	}

	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		logger:     opts.Logger,
	}
	if opts.RatePerSecond > 0 {
		burst := int(opts.RatePerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return c, nil
}

// CreateTeam posts a team with its members
func (c *Client) CreateTeam(ctx context.Context, team types.Team) (*types.RequestResult, error) {
	return c.post(ctx, PathTeamAdd, team)
}

// CreatePullRequest opens a pull request
func (c *Client) CreatePullRequest(ctx context.Context, pr types.CreatePullRequest) (*types.RequestResult, error) {
	return c.post(ctx, PathPullRequestCreate, pr)
}

// MergePullRequest merges a pull request
func (c *Client) MergePullRequest(ctx context.Context, req types.MergePullRequest) (*types.RequestResult, error) {
	return c.post(ctx, PathPullRequestMerge, req)
}

// ReassignReviewer swaps a reviewer of a pull request
func (c *Client) ReassignReviewer(ctx context.Context, req types.ReassignReviewer) (*types.RequestResult, error) {
	return c.post(ctx, PathPullRequestReassign, req)
}

// post sends payload as JSON. Transport failures (including rate limiter
// waits cut short by ctx) are returned as errors; any received response,
// whatever its status, is returned as a result.
func (c *Client) post(ctx context.Context, path string, payload any) (*types.RequestResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s body: %w", path, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Connection failed, timeout, or other network error
		c.logger.Debug("request failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	duration := time.Since(startTime).Milliseconds()
	if err != nil {
		return &types.RequestResult{
			Status:      resp.StatusCode,
			StatusText:  resp.Status,
			Error:       fmt.Sprintf("failed to read response body: %v", err),
			Duration:    duration,
			RequestSize: len(body),
		}, nil
	}

	return &types.RequestResult{
		Status:       resp.StatusCode,
		StatusText:   resp.Status,
		Body:         respBody,
		Duration:     duration,
		RequestSize:  len(body),
		ResponseSize: len(respBody),
	}, nil
}

// buildHTTPClient creates an HTTP client sized for many concurrent users
// with connection pooling, timeouts, and optional TLS
func buildHTTPClient(opts Options) (*http.Client, error) {
	transport := &http.Transport{
		MaxIdleConns:        opts.Concurrency,
		MaxIdleConnsPerHost: opts.Concurrency,
		MaxConnsPerHost:     opts.Concurrency * 2,
		IdleConnTimeout:     IdleConnTimeout,
		ForceAttemptHTTP2:   true,

		DialContext: (&net.Dialer{
			Timeout:   TCPDialTimeout,
			KeepAlive: TCPKeepAliveInterval,
		}).DialContext,

		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ResponseHeaderTimeout: opts.RequestTimeout,
		ExpectContinueTimeout: ExpectContinueTimeout,
	}

	if !opts.TLS.IsZero() {
		tlsCfg, err := buildTLSConfig(opts.TLS)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsCfg
	}

	return &http.Client{
		Timeout:   opts.RequestTimeout,
		Transport: transport,
	}, nil
}

func buildTLSConfig(cfg *types.TLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	// Client certificate for mTLS
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = caCertPool
	}

	return tlsCfg, nil
}
