package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"waterheater-panel/internal/display"
	"waterheater-panel/internal/models"
	"waterheater-panel/pkg/middleware"
)

type journalFunc func(ctx context.Context, limit int64) ([]models.EventRecord, error)

func (f journalFunc) ListRecent(ctx context.Context, limit int64) ([]models.EventRecord, error) {
	return f(ctx, limit)
}

func setupRouter(t *testing.T, journal EventLister, apiMiddleware ...gin.HandlerFunc) (*gin.Engine, *display.MemoryDocument) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	doc := display.NewMemoryDocument(display.ControlElements())
	ctx := context.Background()
	require.NoError(t, doc.SetText(ctx, display.ResultElement, "Motor on"))
	require.NoError(t, doc.SetValue(ctx, display.CurrentTemperatureElement, "42.5"))

	router := gin.New()
	NewDisplayController(doc, journal, "Water heater").RegisterRoutes(router, apiMiddleware...)
	return router, doc
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestIndexRendersElements(t *testing.T) {
	router, _ := setupRouter(t, nil)

	w := get(router, "/")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<p id="result">Motor on</p>`)
	assert.Contains(t, body, `value="42.5"`)
	assert.Contains(t, body, "<title>Water heater</title>")
	assert.Contains(t, body, "updated now")
}

func TestListElements(t *testing.T) {
	router, _ := setupRouter(t, nil)

	w := get(router, "/api/elements")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Elements []display.Element `json:"elements"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Elements, 2)
	assert.Equal(t, display.CurrentTemperatureElement, resp.Elements[0].ID)
	assert.Equal(t, "42.5", resp.Elements[0].Value)
	assert.Equal(t, display.ResultElement, resp.Elements[1].ID)
	assert.Equal(t, "Motor on", resp.Elements[1].Text)
}

func TestGetElement(t *testing.T) {
	router, _ := setupRouter(t, nil)

	w := get(router, "/api/elements/result")
	require.Equal(t, http.StatusOK, w.Code)
	var e display.Element
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	assert.Equal(t, display.KindText, e.Kind)
	assert.Equal(t, "Motor on", e.Text)

	w = get(router, "/api/elements/boilerPressure")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "element not found")
}

func TestListEvents(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotLimit int64
	journal := journalFunc(func(_ context.Context, limit int64) ([]models.EventRecord, error) {
		gotLimit = limit
		return []models.EventRecord{
			{Namespace: "/control", Event: models.EventMotorStatus, Payload: `{"message":"Motor on"}`, ReceivedAt: at},
		}, nil
	})
	router, _ := setupRouter(t, journal)

	w := get(router, "/api/events?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(5), gotLimit)

	var resp struct {
		Events []models.EventRecord `json:"events"`
		Limit  int64                `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, models.EventMotorStatus, resp.Events[0].Event)
	assert.Equal(t, int64(5), resp.Limit)

	get(router, "/api/events?limit=100000")
	assert.Equal(t, int64(maxEventLimit), gotLimit)

	get(router, "/api/events")
	assert.Equal(t, int64(defaultEventLimit), gotLimit)

	w = get(router, "/api/events?limit=many")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEventsErrors(t *testing.T) {
	router, _ := setupRouter(t, nil)
	w := get(router, "/api/events")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"event journal is not configured"}`, w.Body.String())

	failing := journalFunc(func(context.Context, int64) ([]models.EventRecord, error) {
		return nil, errors.New("mongo down")
	})
	router, _ = setupRouter(t, failing)
	w = get(router, "/api/events")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealthAndReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	doc := display.NewMemoryDocument(display.ControlElements())
	c := NewDisplayController(doc, nil, "panel")
	connected := false
	c.AddCheck("channel", func(context.Context) error {
		if !connected {
			return errors.New("not connected")
		}
		return nil
	})
	c.AddCheck("redis", func(context.Context) error { return nil })

	router := gin.New()
	c.RegisterRoutes(router)

	w := get(router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = get(router, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unavailable","channel":"unavailable","redis":"available"}`, w.Body.String())

	connected = true
	w = get(router, "/ready")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ready","channel":"available","redis":"available"}`, w.Body.String())
}

func TestAPIRequiresTokenWhenGuarded(t *testing.T) {
	router, _ := setupRouter(t, nil, middleware.AuthMiddleware("api-secret"))

	assert.Equal(t, http.StatusUnauthorized, get(router, "/api/elements").Code)
	assert.Equal(t, http.StatusOK, get(router, "/").Code)

	token, err := middleware.GenerateAccessToken("api-secret", "ops", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/elements", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListEventsLogsCaller(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	t.Cleanup(func() { log.Logger = prev })

	journal := journalFunc(func(context.Context, int64) ([]models.EventRecord, error) {
		return []models.EventRecord{}, nil
	})
	router, _ := setupRouter(t, journal, middleware.AuthMiddleware("api-secret"))

	token, err := middleware.GenerateAccessToken("api-secret", "ops-console", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/events?limit=3", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Contains(t, buf.String(), `"client_id":"ops-console"`)
	assert.Contains(t, buf.String(), `"limit":3`)
}
