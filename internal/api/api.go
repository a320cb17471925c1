package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"goodzwork-checkin/models"
)

// ============================================================
// API CLIENT - GoodZWork attendance backend
// ============================================================

var ErrUnauthorized = errors.New("access token rejected")

// Error is a non-2xx answer from the backend. Detail carries the server's
// message verbatim.
type Error struct {
	StatusCode int
	Detail     string
	Code       string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
}

func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

type APIClient struct {
	Timeout time.Duration
	baseURL string
	token   string
	client  *http.Client
	log     logrus.FieldLogger
}

// IsSuccessStatusCode checks if the HTTP status code indicates success
func (c *APIClient) IsSuccessStatusCode(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

// NewAPIClient creates a new API client instance
func NewAPIClient(cfg models.APIConfig, log logrus.FieldLogger) *APIClient {
	return &APIClient{
		Timeout: cfg.Timeout,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.AccessToken,
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}
}

// ============================================================
// ATTENDANCE ENDPOINTS
// ============================================================

func (c *APIClient) CheckLocation(ctx context.Context, lat, lon float64) (*models.GeofenceResult, error) {
	var result models.GeofenceResult
	req := models.LocationCheckRequest{Latitude: lat, Longitude: lon}
	if err := c.do(ctx, http.MethodPost, models.PathCheckLocation, nil, req, &result); err != nil {
		return nil, fmt.Errorf("check location: %w", err)
	}
	return &result, nil
}

func (c *APIClient) CheckIn(ctx context.Context, req models.AttendanceRequest) (*models.AttendanceResult, error) {
	return c.submit(ctx, models.CheckIn, models.PathCheckIn, req)
}

func (c *APIClient) CheckOut(ctx context.Context, req models.AttendanceRequest) (*models.AttendanceResult, error) {
	return c.submit(ctx, models.CheckOut, models.PathCheckOut, req)
}

// Submit dispatches to CheckIn or CheckOut.
func (c *APIClient) Submit(ctx context.Context, kind models.AttendanceType, req models.AttendanceRequest) (*models.AttendanceResult, error) {
	if kind == models.CheckOut {
		return c.CheckOut(ctx, req)
	}
	return c.CheckIn(ctx, req)
}

func (c *APIClient) submit(ctx context.Context, kind models.AttendanceType, path string, req models.AttendanceRequest) (*models.AttendanceResult, error) {
	var result models.AttendanceResult
	if err := c.do(ctx, http.MethodPost, path, nil, req, &result); err != nil {
		return nil, fmt.Errorf("%s: %w", strings.ToLower(string(kind)), err)
	}
	if result.Type == "" {
		result.Type = kind
	}
	return &result, nil
}

func (c *APIClient) Today(ctx context.Context) (*models.TodayStatus, error) {
	var status models.TodayStatus
	if err := c.do(ctx, http.MethodGet, models.PathToday, nil, nil, &status); err != nil {
		return nil, fmt.Errorf("today status: %w", err)
	}
	return &status, nil
}

// Logs lists the caller's attendance logs, newest first. Both bounds are
// ISO dates and are only sent together.
func (c *APIClient) Logs(ctx context.Context, startDate, endDate string) ([]models.AttendanceLog, error) {
	var query url.Values
	if startDate != "" && endDate != "" {
		query = url.Values{"start_date": {startDate}, "end_date": {endDate}}
	}

	var logs []models.AttendanceLog
	if err := c.do(ctx, http.MethodGet, models.PathLogs, query, nil, &logs); err != nil {
		return nil, fmt.Errorf("attendance logs: %w", err)
	}
	return logs, nil
}

func (c *APIClient) CompanyLocation(ctx context.Context) (*models.CompanyLocation, error) {
	var loc models.CompanyLocation
	if err := c.do(ctx, http.MethodGet, models.PathCompanyLocation, nil, nil, &loc); err != nil {
		return nil, fmt.Errorf("company location: %w", err)
	}
	return &loc, nil
}

// ============================================================
// TRANSPORT
// ============================================================

func (c *APIClient) do(ctx context.Context, method, path string, query url.Values, payload, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, payload != nil)

	c.log.Debugf("📤 %s %s", method, path)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	c.LogResponse(respBody, resp.StatusCode)

	if !c.IsSuccessStatusCode(resp.StatusCode) {
		return parseError(resp.StatusCode, respBody)
	}
	if out == nil {
		return nil
	}
	return c.ParseResponse(respBody, out)
}

// setHeaders sets required headers for the API request
func (c *APIClient) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "vi,en-US;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// ParseResponse unmarshals JSON response into provided struct
func (c *APIClient) ParseResponse(body []byte, result interface{}) error {
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// LogResponse logs the raw response if it's small enough. Bodies that echo
// face images are never logged in full.
func (c *APIClient) LogResponse(body []byte, statusCode int) {
	if c.IsSuccessStatusCode(statusCode) {
		c.log.Debugf("✅ API response: %d - Success!", statusCode)
	} else {
		c.log.Warnf("⚠️  API response: %d - Failed", statusCode)
	}

	if len(body) > 0 && len(body) < 1000 {
		c.log.Debugf("📥 Raw response: %s", string(body))
	}
}

type errorBody struct {
	Detail    json.RawMessage `json:"detail"`
	ErrorCode string          `json:"error_code"`
}

// parseError reads a `{detail}` envelope. Detail is usually a string; request
// validation failures send a list of objects with a `msg` field.
func parseError(status int, body []byte) error {
	apiErr := &Error{StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		apiErr.Detail = strings.TrimSpace(string(body))
		if apiErr.Detail == "" {
			apiErr.Detail = http.StatusText(status)
		}
		return apiErr
	}
	apiErr.Code = eb.ErrorCode

	var detail string
	if err := json.Unmarshal(eb.Detail, &detail); err == nil {
		apiErr.Detail = detail
		return apiErr
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(eb.Detail, &items); err == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			msgs = append(msgs, it.Msg)
		}
		apiErr.Detail = strings.Join(msgs, "; ")
		return apiErr
	}

	apiErr.Detail = http.StatusText(status)
	return apiErr
}
