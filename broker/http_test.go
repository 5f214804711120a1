package broker_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/braunsonm/cloud-controller-ng/broker"
)

func TestHTTPClient_Bind_Synchronous(t *testing.T) {
	var gotPath, gotQuery, gotVersion string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotVersion = r.Header.Get("X-Broker-API-Version")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"credentials":{"uri":"postgres://"}}`))
	}))
	defer srv.Close()

	c := broker.NewHTTPClient(srv.URL)
	resp, err := c.Bind(context.Background(), broker.BindRequest{
		InstanceGUID: "inst-1",
		BindingGUID:  "bind-1",
		ServiceID:    "svc-1",
		PlanID:       "plan-1",
		Parameters:   json.RawMessage(`{"size":"small"}`),
		BindResource: &broker.BindResource{AppGUID: "app-1"},
	})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if resp.Async {
		t.Error("Async = true, want false for 201")
	}
	if string(resp.Credentials) != `{"uri":"postgres://"}` {
		t.Errorf("Credentials = %s", resp.Credentials)
	}
	if gotPath != "/v2/service_instances/inst-1/service_bindings/bind-1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "accepts_incomplete=true" {
		t.Errorf("query = %q, want accepts_incomplete=true", gotQuery)
	}
	if gotVersion == "" {
		t.Error("X-Broker-API-Version header missing")
	}
	if _, ok := gotBody["service_id"]; !ok {
		t.Errorf("request body missing service_id: %v", gotBody)
	}
	if _, ok := gotBody["InstanceGUID"]; ok {
		t.Error("request body leaked path parameter InstanceGUID")
	}
}

func TestHTTPClient_Bind_Asynchronous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"operation":"task-42"}`))
	}))
	defer srv.Close()

	c := broker.NewHTTPClient(srv.URL)
	resp, err := c.Bind(context.Background(), broker.BindRequest{InstanceGUID: "i", BindingGUID: "b"})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if !resp.Async {
		t.Error("Async = false, want true for 202")
	}
	if resp.Operation != "task-42" {
		t.Errorf("Operation = %q, want %q", resp.Operation, "task-42")
	}
}

func TestHTTPClient_Bind_BrokerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"InternalError","description":"out of disk"}`))
	}))
	defer srv.Close()

	c := broker.NewHTTPClient(srv.URL)
	_, err := c.Bind(context.Background(), broker.BindRequest{InstanceGUID: "i", BindingGUID: "b"})

	var brokerErr *broker.Error
	if !errors.As(err, &brokerErr) {
		t.Fatalf("err = %v, want *broker.Error", err)
	}
	if brokerErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d", brokerErr.StatusCode)
	}
	if brokerErr.Description != "out of disk" {
		t.Errorf("Description = %q", brokerErr.Description)
	}
}

func TestHTTPClient_Bind_ConcurrencyConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"ConcurrencyError","description":"operation in progress"}`))
	}))
	defer srv.Close()

	c := broker.NewHTTPClient(srv.URL)
	_, err := c.Bind(context.Background(), broker.BindRequest{InstanceGUID: "i", BindingGUID: "b"})
	if !errors.Is(err, broker.ErrConcurrencyConflict) {
		t.Errorf("err = %v, want ErrConcurrencyConflict", err)
	}
}

func TestHTTPClient_LastOperation_RetryAfter(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Retry-After", "30")
		_, _ = w.Write([]byte(`{"state":"in progress","description":"still binding"}`))
	}))
	defer srv.Close()

	c := broker.NewHTTPClient(srv.URL)
	resp, err := c.LastOperation(context.Background(), broker.LastOperationRequest{
		InstanceGUID: "i",
		BindingGUID:  "b",
		ServiceID:    "svc-1",
		PlanID:       "plan-1",
		Operation:    "task-42",
	})
	if err != nil {
		t.Fatalf("LastOperation: %v", err)
	}

	if resp.State != broker.OperationInProgress {
		t.Errorf("State = %q", resp.State)
	}
	if resp.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %v, want 30s", resp.RetryAfter)
	}
	if gotQuery != "operation=task-42&plan_id=plan-1&service_id=svc-1" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestHTTPClient_LastOperation_NoRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"state":"succeeded"}`))
	}))
	defer srv.Close()

	c := broker.NewHTTPClient(srv.URL)
	resp, err := c.LastOperation(context.Background(), broker.LastOperationRequest{InstanceGUID: "i", BindingGUID: "b"})
	if err != nil {
		t.Fatalf("LastOperation: %v", err)
	}
	if resp.State != broker.OperationSucceeded {
		t.Errorf("State = %q", resp.State)
	}
	if resp.RetryAfter != 0 {
		t.Errorf("RetryAfter = %v, want 0", resp.RetryAfter)
	}
}

func TestHTTPClient_GetBinding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		_, _ = w.Write([]byte(`{"credentials":{"user":"admin"},"route_service_url":"https://rs.example.com"}`))
	}))
	defer srv.Close()

	c := broker.NewHTTPClient(srv.URL, broker.WithBasicAuth("cc", "secret"))
	resp, err := c.GetBinding(context.Background(), broker.GetBindingRequest{InstanceGUID: "i", BindingGUID: "b"})
	if err != nil {
		t.Fatalf("GetBinding: %v", err)
	}

	if string(resp.Credentials) != `{"user":"admin"}` {
		t.Errorf("Credentials = %s", resp.Credentials)
	}
	if resp.RouteServiceURL != "https://rs.example.com" {
		t.Errorf("RouteServiceURL = %q", resp.RouteServiceURL)
	}
}

func TestHTTPClient_BasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cc" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"state":"succeeded"}`))
	}))
	defer srv.Close()

	c := broker.NewHTTPClient(srv.URL, broker.WithBasicAuth("cc", "secret"))
	if _, err := c.LastOperation(context.Background(), broker.LastOperationRequest{InstanceGUID: "i", BindingGUID: "b"}); err != nil {
		t.Fatalf("LastOperation with auth: %v", err)
	}
}
