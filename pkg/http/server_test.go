package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"EffortLab/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct{}

type echoRequest struct {
	Name  string `json:"name" validate:"required"`
	Count int    `json:"count" default:"3" validate:"min=1"`
}

func (echoHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/echo", func(c echo.Context) error {
		var req echoRequest
		if errs := ReadAndValidateRequest(c, &req); errs != nil {
			return BadRequestResponse(c, errs)
		}
		return SuccessResponse(c, req)
	})
	e.GET("/missing", func(c echo.Context) error {
		return AppErrorResponse(c, NotFoundError("session"))
	})
	e.GET("/panic", func(c echo.Context) error {
		panic("boom")
	})
}

func newTestServer(opts ...ServerOption) *Server {
	reg := prometheus.NewRegistry()
	opts = append([]ServerOption{WithMetrics("/metrics", reg, reg)}, opts...)
	return NewServer(echoHandler{}, logger.Nop(), opts...)
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func TestServer_ValidRequestGetsDefaults(t *testing.T) {
	s := newTestServer()
	rec := serve(s, http.MethodPost, "/echo", `{"name":"p01"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status int         `json:"status"`
		Data   echoRequest `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "p01", resp.Data.Name)
	assert.Equal(t, 3, resp.Data.Count)
}

func TestServer_ValidationErrorsUseJSONNames(t *testing.T) {
	s := newTestServer()
	rec := serve(s, http.MethodPost, "/echo", `{"count":5}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Data []ValidationError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "name", resp.Data[0].Field)
	assert.Equal(t, "ERR_REQUIRED", resp.Data[0].Code)
}

func TestServer_AppErrorAndPanic(t *testing.T) {
	s := newTestServer()
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/missing", "").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(s, http.MethodGet, "/panic", "").Code)
}

func TestServer_Health(t *testing.T) {
	healthy := newTestServer()
	assert.Equal(t, http.StatusOK, serve(healthy, http.MethodGet, "/health", "").Code)

	down := newTestServer(WithHealthCheck(func(context.Context) error { return errors.New("store down") }))
	assert.Equal(t, http.StatusServiceUnavailable, serve(down, http.MethodGet, "/health", "").Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	s := newTestServer()
	serve(s, http.MethodPost, "/echo", `{"name":"p01"}`)

	rec := serve(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `effortlab_http_requests_total{method="POST",route="/echo",status="200"} 1`)
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(WithAllowOrigins([]string{"http://lab.local"}))

	req := httptest.NewRequest(http.MethodOptions, "/echo", nil)
	req.Header.Set(echo.HeaderOrigin, "http://lab.local")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://lab.local", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderOrigin, "http://evil.local")
	rec = httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestClient_SendAndParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "1", r.URL.Query().Get("code"))
		var body map[string]int
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]int{"echo": body["value"]})
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(time.Second))
	var out map[string]int
	err := c.SendAndParse(context.Background(), &RequestOptions{
		Method: http.MethodPost,
		URL:    srv.URL,
		Query:  map[string]string{"code": "1"},
		Body:   map[string]int{"value": 7},
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, 7, out["echo"])
}

func TestClient_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient().SendAndParse(context.Background(), &RequestOptions{URL: srv.URL}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
