package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// apiVersion is the Open Service Broker API version sent on every request.
const apiVersion = "2.15"

// HTTPClient implements Client against a broker's HTTP endpoint.
type HTTPClient struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	logger   *slog.Logger
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithBasicAuth sets the broker's basic auth credentials.
func WithBasicAuth(username, password string) HTTPOption {
	return func(c *HTTPClient) {
		c.username = username
		c.password = password
	}
}

// WithHTTPClient replaces the underlying http.Client, e.g. to set
// timeouts or a custom transport.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) { c.client = hc }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) HTTPOption {
	return func(c *HTTPClient) { c.logger = l }
}

// NewHTTPClient creates a broker client for the given base URL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Bind issues PUT /v2/service_instances/{iid}/service_bindings/{bid}
// with accepts_incomplete=true. A 200/201 answer is a synchronous
// completion; 202 means the bind was accepted and must be polled.
func (c *HTTPClient) Bind(ctx context.Context, req BindRequest) (*BindResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("broker: marshal bind request: %w", err)
	}

	u := c.bindingURL(req.InstanceGUID, req.BindingGUID) + "?accepts_incomplete=true"
	httpReq, err := c.newRequest(ctx, http.MethodPut, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("broker: bind: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var out BindResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&out); decErr != nil && decErr != io.EOF {
			return nil, fmt.Errorf("broker: decode bind response: %w", decErr)
		}
		return &out, nil
	case http.StatusAccepted:
		var out BindResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&out); decErr != nil && decErr != io.EOF {
			return nil, fmt.Errorf("broker: decode bind response: %w", decErr)
		}
		out.Async = true
		return &out, nil
	case http.StatusUnprocessableEntity:
		brokerErr := readError(resp)
		if brokerErr.ErrorCode == "ConcurrencyError" {
			return nil, ErrConcurrencyConflict
		}
		return nil, brokerErr
	default:
		return nil, readError(resp)
	}
}

// LastOperation issues GET .../service_bindings/{bid}/last_operation.
// A Retry-After header, when present, is surfaced as the suggested delay
// before the next poll.
func (c *HTTPClient) LastOperation(ctx context.Context, req LastOperationRequest) (*LastOperationResponse, error) {
	q := url.Values{}
	if req.ServiceID != "" {
		q.Set("service_id", req.ServiceID)
	}
	if req.PlanID != "" {
		q.Set("plan_id", req.PlanID)
	}
	if req.Operation != "" {
		q.Set("operation", req.Operation)
	}

	u := c.bindingURL(req.InstanceGUID, req.BindingGUID) + "/last_operation"
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}

	httpReq, err := c.newRequest(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("broker: last operation: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}

	var out LastOperationResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&out); decErr != nil {
		return nil, fmt.Errorf("broker: decode last operation response: %w", decErr)
	}
	out.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	return &out, nil
}

// GetBinding issues GET .../service_bindings/{bid} to fetch the binding
// details once an asynchronous bind has succeeded.
func (c *HTTPClient) GetBinding(ctx context.Context, req GetBindingRequest) (*GetBindingResponse, error) {
	httpReq, err := c.newRequest(ctx, http.MethodGet, c.bindingURL(req.InstanceGUID, req.BindingGUID), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("broker: get binding: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, readError(resp)
	}

	var out GetBindingResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&out); decErr != nil {
		return nil, fmt.Errorf("broker: decode get binding response: %w", decErr)
	}
	return &out, nil
}

func (c *HTTPClient) bindingURL(instanceGUID, bindingGUID string) string {
	return fmt.Sprintf("%s/v2/service_instances/%s/service_bindings/%s",
		c.baseURL, url.PathEscape(instanceGUID), url.PathEscape(bindingGUID))
}

func (c *HTTPClient) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("broker: new request: %w", err)
	}
	req.Header.Set("X-Broker-API-Version", apiVersion)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return req, nil
}

// readError parses a broker error body into *Error. A malformed body
// still yields an *Error carrying the status code.
func readError(resp *http.Response) *Error {
	brokerErr := &Error{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return brokerErr
	}
	_ = json.Unmarshal(body, brokerErr) //nolint:errcheck // status code alone is enough
	return brokerErr
}

// parseRetryAfter interprets a Retry-After header value as delay seconds.
// HTTP-date values and garbage are ignored; brokers use the seconds form.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
