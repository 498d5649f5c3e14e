// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"

	"github.com/pdiddy/boiler-ingest/internal/httputil"
)

const defaultSheetsBaseURL = "https://sheets.googleapis.com/v4"

// SheetsScope is the OAuth scope needed to read and write spreadsheets.
const SheetsScope = "https://www.googleapis.com/auth/spreadsheets"

// SheetsClient talks to the Google Sheets v4 REST API for one spreadsheet.
type SheetsClient struct {
	spreadsheetID string
	baseURL       string
	http          *http.Client
	maxRetries    int
	log           *zap.Logger
}

// SheetsOption configures a SheetsClient.
type SheetsOption func(*SheetsClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) SheetsOption {
	return func(c *SheetsClient) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client. Production callers pass the
// authorized client from ServiceAccountClient.
func WithHTTPClient(hc *http.Client) SheetsOption {
	return func(c *SheetsClient) { c.http = hc }
}

// WithMaxRetries bounds retries on throttled responses.
func WithMaxRetries(n int) SheetsOption {
	return func(c *SheetsClient) { c.maxRetries = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) SheetsOption {
	return func(c *SheetsClient) { c.log = l }
}

// NewSheetsClient returns a client for spreadsheetID. An empty ID is allowed
// for clients that only create spreadsheets.
func NewSheetsClient(spreadsheetID string, opts ...SheetsOption) *SheetsClient {
	c := &SheetsClient{
		spreadsheetID: spreadsheetID,
		baseURL:       defaultSheetsBaseURL,
		http:          &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = zap.L()
	}
	return c
}

// ServiceAccountClient builds an HTTP client authorized with a service
// account JSON key.
func ServiceAccountClient(ctx context.Context, credentialsJSON []byte, timeout time.Duration) (*http.Client, error) {
	conf, err := google.JWTConfigFromJSON(credentialsJSON, SheetsScope)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: parse service account key")
	}
	hc := conf.Client(ctx)
	if timeout > 0 {
		hc.Timeout = timeout
	}
	return hc, nil
}

type valueRange struct {
	Range          string     `json:"range,omitempty"`
	MajorDimension string     `json:"majorDimension,omitempty"`
	Values         [][]string `json:"values,omitempty"`
}

type updateResponse struct {
	UpdatedRange string `json:"updatedRange"`
	UpdatedRows  int    `json:"updatedRows"`
	UpdatedCells int    `json:"updatedCells"`
}

type appendResponse struct {
	TableRange string         `json:"tableRange"`
	Updates    updateResponse `json:"updates"`
}

// Update writes rows starting at target with valueInputOption=RAW.
func (c *SheetsClient) Update(ctx context.Context, target string, rows [][]string) (int, error) {
	u := c.valuesURL(target) + "?valueInputOption=RAW"
	var out updateResponse
	if err := c.do(ctx, http.MethodPut, u, valueRange{Range: target, MajorDimension: "ROWS", Values: rows}, &out); err != nil {
		return 0, err
	}
	c.log.Info("sheet updated",
		zap.String("range", out.UpdatedRange),
		zap.Int("rows", out.UpdatedRows),
		zap.Int("cells", out.UpdatedCells))
	return out.UpdatedCells, nil
}

// Append inserts rows after the table found at target.
func (c *SheetsClient) Append(ctx context.Context, target string, rows [][]string) (int, error) {
	u := c.valuesURL(target) + ":append?valueInputOption=RAW&insertDataOption=INSERT_ROWS"
	var out appendResponse
	if err := c.do(ctx, http.MethodPost, u, valueRange{MajorDimension: "ROWS", Values: rows}, &out); err != nil {
		return 0, err
	}
	c.log.Info("sheet appended",
		zap.String("range", out.Updates.UpdatedRange),
		zap.Int("rows", out.Updates.UpdatedRows),
		zap.Int("cells", out.Updates.UpdatedCells))
	return out.Updates.UpdatedCells, nil
}

// IsEmpty reports whether the range at target holds no values.
func (c *SheetsClient) IsEmpty(ctx context.Context, target string) (bool, error) {
	var out valueRange
	if err := c.do(ctx, http.MethodGet, c.valuesURL(target), nil, &out); err != nil {
		return false, err
	}
	return len(out.Values) == 0, nil
}

// Spreadsheet identifies a newly created spreadsheet.
type Spreadsheet struct {
	ID    string
	Title string
	URL   string
}

type createRequest struct {
	Properties struct {
		Title string `json:"title"`
	} `json:"properties"`
	Sheets []sheetSpec `json:"sheets,omitempty"`
}

type sheetSpec struct {
	Properties struct {
		Title string `json:"title"`
	} `json:"properties"`
}

type createResponse struct {
	SpreadsheetID  string `json:"spreadsheetId"`
	SpreadsheetURL string `json:"spreadsheetUrl"`
	Properties     struct {
		Title string `json:"title"`
	} `json:"properties"`
}

// Create makes a new spreadsheet with one sheet named sheetTitle.
func (c *SheetsClient) Create(ctx context.Context, title, sheetTitle string) (*Spreadsheet, error) {
	var req createRequest
	req.Properties.Title = title
	if sheetTitle != "" {
		var s sheetSpec
		s.Properties.Title = sheetTitle
		req.Sheets = []sheetSpec{s}
	}

	var out createResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/spreadsheets", req, &out); err != nil {
		return nil, err
	}
	if out.SpreadsheetID == "" {
		return nil, eris.New("sheets: create returned no spreadsheet id")
	}
	sp := &Spreadsheet{ID: out.SpreadsheetID, Title: out.Properties.Title, URL: out.SpreadsheetURL}
	if sp.URL == "" {
		sp.URL = "https://docs.google.com/spreadsheets/d/" + sp.ID
	}
	c.log.Info("spreadsheet created", zap.String("id", sp.ID), zap.String("title", sp.Title))
	return sp, nil
}

func (c *SheetsClient) valuesURL(target string) string {
	return c.baseURL + "/spreadsheets/" + url.PathEscape(c.spreadsheetID) + "/values/" + url.PathEscape(target)
}

func (c *SheetsClient) do(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, "sheets: marshal request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return eris.Wrap(err, "sheets: create request")
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.maxRetries)
	if err != nil {
		return eris.Wrap(err, "sheets: send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("sheets: unexpected status %d: %s", resp.StatusCode, httputil.ErrorBody(resp))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrap(err, "sheets: decode response")
	}
	return nil
}
