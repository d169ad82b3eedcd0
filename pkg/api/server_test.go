package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/config"
	"github.com/ChunkyTortoise/EnterpriseHub-sub058/pkg/engine"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	cfg := config.Default()
	cfg.Cache.CleanupInterval = 0

	eng, err := engine.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	server := NewServer(eng, ServerConfig{Mode: "test"})
	return server.Handler()
}

func doRequest(handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

func TestServer_Health(t *testing.T) {
	handler := newTestServer(t)

	resp := doRequest(handler, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"ok"`)
}

func TestServer_Stats(t *testing.T) {
	handler := newTestServer(t)

	resp := doRequest(handler, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Contains(t, body, "warming")
	assert.Contains(t, body, "cache")
}

func TestServer_CacheRoundTrip(t *testing.T) {
	handler := newTestServer(t)

	// 写入
	resp := doRequest(handler, http.MethodPost, "/api/v1/cache", PutRequest{
		Key:   "lead_scores:42",
		Value: 88.5,
		TTL:   "15m",
	})
	require.Equal(t, http.StatusOK, resp.Code)

	// 读取
	resp = doRequest(handler, http.MethodGet, "/api/v1/cache?key=lead_scores:42", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, 88.5, body["value"])

	// 删除后读取未命中
	resp = doRequest(handler, http.MethodDelete, "/api/v1/cache?key=lead_scores:42", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doRequest(handler, http.MethodGet, "/api/v1/cache?key=lead_scores:42", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestServer_CacheBadRequests(t *testing.T) {
	handler := newTestServer(t)

	// 缺少 key 参数
	resp := doRequest(handler, http.MethodGet, "/api/v1/cache", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = doRequest(handler, http.MethodDelete, "/api/v1/cache", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// 缺少必填字段
	resp = doRequest(handler, http.MethodPost, "/api/v1/cache", map[string]interface{}{"value": 1})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	// 非法 TTL
	resp = doRequest(handler, http.MethodPost, "/api/v1/cache", PutRequest{
		Key:   "k",
		Value: 1,
		TTL:   "soon",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestServer_Patterns(t *testing.T) {
	handler := newTestServer(t)

	resp := doRequest(handler, http.MethodGet, "/api/v1/patterns", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, float64(0), body["count"])
}

func TestServer_PostActivity(t *testing.T) {
	handler := newTestServer(t)

	resp := doRequest(handler, http.MethodPost, "/api/v1/activities", ActivityRequest{
		EntityID:     "lead-1",
		ActivityType: "property_view",
		CacheKeys:    []string{"property_matches:1"},
	})
	assert.Equal(t, http.StatusAccepted, resp.Code)

	// 缺少必填字段
	resp = doRequest(handler, http.MethodPost, "/api/v1/activities", map[string]interface{}{
		"entity_id": "lead-1",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestServer_StartStop(t *testing.T) {
	cfg := config.Default()
	cfg.Cache.CleanupInterval = 0

	eng, err := engine.New(cfg, nil)
	require.NoError(t, err)
	defer eng.Close()

	server := NewServer(eng, ServerConfig{Port: "0", Mode: "test"})
	require.NoError(t, server.Start())

	time.Sleep(50 * time.Millisecond)
	server.Stop()
}
