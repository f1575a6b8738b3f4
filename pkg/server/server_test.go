package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/retail-bi/pkg/config"
	"github.com/David-Botos/retail-bi/pkg/dashboard"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Reload(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Status() dashboard.Status {
	return m.Called().Get(0).(dashboard.Status)
}

func (m *mockStore) Categories() ([]string, error) {
	args := m.Called()
	cats, _ := args.Get(0).([]string)
	return cats, args.Error(1)
}

func (m *mockStore) TopProducts(category string, limit int) (*dashboard.TopProducts, error) {
	args := m.Called(category, limit)
	top, _ := args.Get(0).(*dashboard.TopProducts)
	return top, args.Error(1)
}

type mockWarehouse struct {
	mock.Mock
}

func (m *mockWarehouse) SalesAnalysis(ctx context.Context, category string, topN int) (*dashboard.SalesAnalysis, error) {
	args := m.Called(ctx, category, topN)
	res, _ := args.Get(0).(*dashboard.SalesAnalysis)
	return res, args.Error(1)
}

func (m *mockWarehouse) Categories(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	cats, _ := args.Get(0).([]string)
	return cats, args.Error(1)
}

func (m *mockWarehouse) InventoryAnalysis(ctx context.Context, category string) ([]dashboard.InventoryItem, error) {
	args := m.Called(ctx, category)
	items, _ := args.Get(0).([]dashboard.InventoryItem)
	return items, args.Error(1)
}

func (m *mockWarehouse) InventoryHealth(ctx context.Context) (*dashboard.InventoryHealth, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*dashboard.InventoryHealth)
	return report, args.Error(1)
}

func (m *mockWarehouse) SalesDateRange(ctx context.Context) (*dashboard.DateRange, error) {
	args := m.Called(ctx)
	rng, _ := args.Get(0).(*dashboard.DateRange)
	return rng, args.Error(1)
}

func (m *mockWarehouse) SalesTrend(ctx context.Context, start, end time.Time) ([]dashboard.TrendPoint, error) {
	args := m.Called(ctx, start, end)
	points, _ := args.Get(0).([]dashboard.TrendPoint)
	return points, args.Error(1)
}

func testConfig() config.DashboardConfig {
	return config.DashboardConfig{
		Addr:           ":0",
		CacheTTL:       time.Minute,
		CacheLongTTL:   time.Hour,
		CacheSize:      16,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		AllowedOrigins: []string{"*"},
	}
}

func newTestServer(t *testing.T, store DataStore, wh Warehouse) *Server {
	t.Helper()
	return New(testConfig(), store, wh, zaptest.NewLogger(t))
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRootBanner(t *testing.T) {
	s := newTestServer(t, new(mockStore), nil)
	w := do(t, s, http.MethodGet, "/")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, Banner, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, new(mockStore), nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestStatus(t *testing.T) {
	store := new(mockStore)
	store.On("Status").Return(dashboard.Status{Error: "No se han cargado datos."})

	w := do(t, newTestServer(t, store, nil), http.MethodGet, "/api/status")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"datos_cargados":false,"error_carga":"No se han cargado datos."}`, w.Body.String())
}

func TestReload(t *testing.T) {
	store := new(mockStore)
	store.On("Reload", mock.Anything).Return(nil).Once()
	store.On("Status").Return(dashboard.Status{Loaded: true, Products: 3, SourceFile: "v.csv"})

	s := newTestServer(t, store, nil)
	w := do(t, s, http.MethodPost, "/api/reload")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "Datos recargados.", body["message"])

	store.On("Reload", mock.Anything).Return(errors.New("La carpeta de datos 'x' no existe.")).Once()
	w = do(t, s, http.MethodPost, "/api/reload")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body = decode(t, w)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "Fallo al recargar.", body["message"])
	assert.Equal(t, "La carpeta de datos 'x' no existe.", body["error"])
}

func TestReloadRejectsGet(t *testing.T) {
	w := do(t, newTestServer(t, new(mockStore), nil), http.MethodGet, "/api/reload")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "Método no permitido", decode(t, w)["error"])
}

func TestCategorias(t *testing.T) {
	store := new(mockStore)
	store.On("Categories").Return(nil, dashboard.ErrNotLoaded).Once()
	store.On("Categories").Return([]string{"Audio", "Video"}, nil).Once()
	s := newTestServer(t, store, nil)

	w := do(t, s, http.MethodGet, "/api/categorias")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Datos no disponibles.", decode(t, w)["error"])

	w = do(t, s, http.MethodGet, "/api/categorias")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["Audio","Video"]`, w.Body.String())
}

func TestTopProductos(t *testing.T) {
	store := new(mockStore)
	store.On("TopProducts", "audio", 10).Return(&dashboard.TopProducts{
		Products:         []string{"Parlante"},
		Quantities:       []float64{8},
		Category:         "Audio",
		CategoryProducts: 1,
		CategoryUnits:    8,
	}, nil)
	store.On("TopProducts", "hogar", 3).Return(nil, fmt.Errorf("%w: hogar", dashboard.ErrCategoryNotFound))
	store.On("TopProducts", "video", 10).Return(nil, dashboard.ErrNotLoaded)
	s := newTestServer(t, store, nil)

	w := do(t, s, http.MethodGet, "/api/top-productos")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Parámetro 'categoria' es requerido.", decode(t, w)["error"])

	w = do(t, s, http.MethodGet, "/api/top-productos?categoria=audio&limite=abc")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"productos":["Parlante"],"cantidades":[8],"categoria":"Audio",
		"total_productos_categoria":1,"total_unidades_categoria":8}`, w.Body.String())

	w = do(t, s, http.MethodGet, "/api/top-productos?categoria=hogar&limite=3")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Categoría 'hogar' no encontrada.", decode(t, w)["error"])

	w = do(t, s, http.MethodGet, "/api/top-productos?categoria=video")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	w := do(t, newTestServer(t, new(mockStore), nil), http.MethodGet, "/api/nada")
	assert.Equal(t, http.StatusNotFound, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Recurso no encontrado", body["error"])
	assert.Equal(t, "La URL solicitada no existe.", body["message"])
}

func TestWarehouseRoutesNeedWarehouse(t *testing.T) {
	w := do(t, newTestServer(t, new(mockStore), nil), http.MethodGet, "/api/categories")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSalesAnalysisIsCachedByQuery(t *testing.T) {
	wh := new(mockWarehouse)
	wh.On("SalesAnalysis", mock.Anything, "Audio", 5).Return(&dashboard.SalesAnalysis{
		TopProducts: []dashboard.TopProduct{{ProductCode: "1", Name: "Parlante", TotalUnits: 8}},
	}, nil).Once()
	wh.On("SalesAnalysis", mock.Anything, "Video", 5).Return(&dashboard.SalesAnalysis{
		TopProducts: []dashboard.TopProduct{},
	}, nil).Once()
	s := newTestServer(t, new(mockStore), wh)

	first := do(t, s, http.MethodGet, "/api/data/sales_analysis?category=Audio&top_n=5")
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get(cacheHeader))

	second := do(t, s, http.MethodGet, "/api/data/sales_analysis?top_n=5&category=Audio")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get(cacheHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	other := do(t, s, http.MethodGet, "/api/data/sales_analysis?category=Video&top_n=5")
	assert.Equal(t, "MISS", other.Header().Get(cacheHeader))
	assert.JSONEq(t, `{"top_products_by_quantity":[]}`, other.Body.String())

	wh.AssertExpectations(t)
}

func TestFailuresAreNotCached(t *testing.T) {
	wh := new(mockWarehouse)
	wh.On("Categories", mock.Anything).Return(nil, errors.New("timeout")).Once()
	wh.On("Categories", mock.Anything).Return([]string{"Audio"}, nil).Once()
	s := newTestServer(t, new(mockStore), wh)

	w := do(t, s, http.MethodGet, "/api/categories")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error interno del servidor", decode(t, w)["error"])

	w = do(t, s, http.MethodGet, "/api/categories")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["Audio"]`, w.Body.String())
	assert.Equal(t, 1, s.longCache.Len())
}

func TestInventoryRoutes(t *testing.T) {
	wh := new(mockWarehouse)
	wh.On("InventoryAnalysis", mock.Anything, "Audio").Return([]dashboard.InventoryItem{
		{Name: "Parlante", Stock: 5, Units30d: 30, Status: dashboard.StatusAtRisk, Category: "Audio", DaysOfInventory: 5},
	}, nil)
	wh.On("InventoryHealth", mock.Anything).Return(nil, errors.New("boom"))
	s := newTestServer(t, new(mockStore), wh)

	w := do(t, s, http.MethodGet, "/api/data/inventory_analysis?category=Audio")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"nombre_del_producto":"Parlante","stock_actual":5,"unidades_vendidas_30d":30,
		"estado":"Riesgo de Quiebre","categoria":"Audio"}]`, w.Body.String())

	w = do(t, s, http.MethodGet, "/api/reports/inventory_health")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "No se pudo generar el informe", decode(t, w)["error"])
}

func TestSalesDateRange(t *testing.T) {
	wh := new(mockWarehouse)
	wh.On("SalesDateRange", mock.Anything).Return(&dashboard.DateRange{Min: "2024-01-01", Max: "2024-02-01"}, nil).Once()
	wh.On("SalesDateRange", mock.Anything).Return(nil, nil).Once()
	s := newTestServer(t, new(mockStore), wh)

	w := do(t, s, http.MethodGet, "/api/data/sales_date_range")
	assert.JSONEq(t, `{"min_date":"2024-01-01","max_date":"2024-02-01"}`, w.Body.String())

	w = do(t, s, http.MethodGet, "/api/data/sales_date_range")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSalesTrend(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	wh := new(mockWarehouse)
	wh.On("SalesTrend", mock.Anything, start, end).Return([]dashboard.TrendPoint{
		{Date: "2024-01-01", Units: 3},
		{Date: "2024-01-02", Units: 0},
	}, nil)
	wh.On("SalesTrend", mock.Anything, end, start).Return(nil, dashboard.ErrInvalidRange)
	s := newTestServer(t, new(mockStore), wh)

	w := do(t, s, http.MethodGet, "/api/data/sales_trend?start=2024-01-01&end=2024-01-02")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"fecha":"2024-01-01","unidades":3},{"fecha":"2024-01-02","unidades":0}]`, w.Body.String())

	w = do(t, s, http.MethodGet, "/api/data/sales_trend?start=01/01/2024&end=2024-01-02")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Solicitud incorrecta", decode(t, w)["error"])

	w = do(t, s, http.MethodGet, "/api/data/sales_trend?start=2024-01-02&end=2024-01-01")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, new(mockStore), nil)
	w := do(t, s, http.MethodOptions, "/api/status")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 1
	s := New(cfg, new(mockStore), nil, zaptest.NewLogger(t))

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/").Code)
	w := do(t, s, http.MethodGet, "/")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRecoveryReturnsJSON(t *testing.T) {
	s := newTestServer(t, new(mockStore), nil)
	s.router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := do(t, s, http.MethodGet, "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "Ocurrió un problema inesperado."))
}
