// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pdiddy/boiler-ingest/internal/httputil"
	"github.com/pdiddy/boiler-ingest/pkg/types"
)

const (
	defaultAPIVersion   = "2024-11-30"
	defaultPollInterval = time.Second
	defaultMaxPolls     = 300
)

// ErrAnalysisFailed is returned when the service reports a failed operation.
var ErrAnalysisFailed = eris.New("analysis failed")

// AzureClient calls the Azure Document Intelligence REST API. Analysis is a
// long-running operation: the submit call returns 202 with an
// Operation-Location that is polled until it succeeds or fails.
type AzureClient struct {
	endpoint     string
	apiKey       string
	apiVersion   string
	userAgent    string
	http         *http.Client
	maxRetries   int
	pollInterval time.Duration
	maxPolls     int
	log          *zap.Logger
}

// NewAzureClient returns a client configured from cfg. A nil http client
// gets one with cfg.Timeout; a nil logger uses the global logger.
func NewAzureClient(cfg types.OCRConfig, hc *http.Client, log *zap.Logger) *AzureClient {
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	if log == nil {
		log = zap.L()
	}
	c := &AzureClient{
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:       cfg.APIKey,
		apiVersion:   cfg.APIVersion,
		userAgent:    cfg.UserAgent,
		http:         hc,
		maxRetries:   cfg.MaxRetries,
		pollInterval: cfg.PollInterval,
		maxPolls:     defaultMaxPolls,
		log:          log,
	}
	if c.apiVersion == "" {
		c.apiVersion = defaultAPIVersion
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	return c
}

type analyzeURLRequest struct {
	URLSource string `json:"urlSource"`
}

type operation struct {
	Status string  `json:"status"`
	Result *Result `json:"analyzeResult"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze submits src to the model and waits for the result.
func (c *AzureClient) Analyze(ctx context.Context, modelID string, src Source) (*Result, error) {
	if modelID == "" {
		return nil, eris.New("azure: model id is required")
	}

	u := c.endpoint + "/documentintelligence/documentModels/" + url.PathEscape(modelID) +
		":analyze?api-version=" + url.QueryEscape(c.apiVersion)

	var (
		body        []byte
		contentType string
	)
	if src.URL != "" {
		data, err := json.Marshal(analyzeURLRequest{URLSource: src.URL})
		if err != nil {
			return nil, eris.Wrap(err, "azure: marshal request")
		}
		body, contentType = data, "application/json"
	} else {
		body, contentType = src.Body, src.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "azure: create request")
	}
	req.Header.Set("Content-Type", contentType)
	c.authorize(req)

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.maxRetries)
	if err != nil {
		return nil, eris.Wrap(err, "azure: submit")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return nil, eris.Errorf("azure: submit returned %d: %s", resp.StatusCode, httputil.ErrorBody(resp))
	}
	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return nil, eris.New("azure: submit response has no Operation-Location")
	}

	c.log.Debug("analysis submitted", zap.String("source", src.Name), zap.String("operation", opURL))
	return c.poll(ctx, opURL)
}

func (c *AzureClient) poll(ctx context.Context, opURL string) (*Result, error) {
	for i := 0; i < c.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "azure: create poll request")
		}
		c.authorize(req)

		op, err := c.fetchOperation(ctx, req)
		if err != nil {
			return nil, err
		}

		switch strings.ToLower(op.Status) {
		case "succeeded":
			if op.Result == nil {
				return nil, eris.New("azure: succeeded without analyzeResult")
			}
			return op.Result, nil
		case "failed", "canceled":
			msg := op.Status
			if op.Error != nil {
				msg = op.Error.Code + ": " + op.Error.Message
			}
			return nil, eris.Wrap(ErrAnalysisFailed, msg)
		}
	}
	return nil, eris.Errorf("azure: operation not finished after %d polls", c.maxPolls)
}

func (c *AzureClient) fetchOperation(ctx context.Context, req *http.Request) (*operation, error) {
	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.maxRetries)
	if err != nil {
		return nil, eris.Wrap(err, "azure: poll")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("azure: poll returned %d: %s", resp.StatusCode, httputil.ErrorBody(resp))
	}
	var op operation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, eris.Wrap(err, "azure: decode operation")
	}
	return &op, nil
}

func (c *AzureClient) authorize(req *http.Request) {
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}
