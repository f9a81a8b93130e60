package parse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"authgate/internal/metrics"
)

const (
	headerAppID        = "X-Parse-Application-Id"
	headerRESTKey      = "X-Parse-REST-API-Key"
	headerMasterKey    = "X-Parse-Master-Key"
	headerSessionToken = "X-Parse-Session-Token"
)

// Config describes how to reach a Parse-compatible backend.
type Config struct {
	ServerURL  string
	AppID      string
	RESTKey    string
	MasterKey  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// Client talks to the Parse REST API. It is safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	appID     string
	restKey   string
	masterKey string
	http      *http.Client
	logger    *logrus.Logger
}

// credentials selects which elevated header, if any, accompanies a request.
type credentials struct {
	master       bool
	sessionToken string
}

var (
	asApp    = credentials{}
	asMaster = credentials{master: true}
)

func asSession(token string) credentials {
	return credentials{sessionToken: token}
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, fmt.Errorf("parse server url is required")
	}
	if strings.TrimSpace(cfg.AppID) == "" {
		return nil, fmt.Errorf("parse application id is required")
	}
	if strings.TrimSpace(cfg.RESTKey) == "" {
		return nil, fmt.Errorf("parse rest api key is required")
	}
	if strings.TrimSpace(cfg.MasterKey) == "" {
		return nil, fmt.Errorf("parse master key is required")
	}

	base, err := url.Parse(strings.TrimRight(cfg.ServerURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
	}

	return &Client{
		baseURL:   base,
		appID:     cfg.AppID,
		restKey:   cfg.RESTKey,
		masterKey: cfg.MasterKey,
		http:      httpClient,
		logger:    logger,
	}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	ref := &url.URL{Path: strings.TrimLeft(path, "/")}
	if len(query) > 0 {
		ref.RawQuery = query.Encode()
	}
	return c.baseURL.ResolveReference(ref).String()
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, creds credentials, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}
	contentType := ""
	if in != nil {
		contentType = "application/json"
	}
	return c.do(ctx, op, method, path, query, creds, contentType, body, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, creds credentials, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set(headerAppID, c.appID)
	req.Header.Set(headerRESTKey, c.restKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if creds.master {
		req.Header.Set(headerMasterKey, c.masterKey)
	}
	if creds.sessionToken != "" {
		req.Header.Set(headerSessionToken, creds.sessionToken)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveBackendCall(op, 0, time.Since(start))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	metrics.ObserveBackendCall(op, resp.StatusCode, time.Since(start))

	c.logger.WithFields(logrus.Fields{
		"op":      op,
		"status":  resp.StatusCode,
		"elapsed": time.Since(start).String(),
	}).Debug("parse call")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
