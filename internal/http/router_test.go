package httpapi

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-fortune-backend/internal/config"
	"github.com/tbourn/go-fortune-backend/internal/repo"
	"github.com/tbourn/go-fortune-backend/internal/services"
	"github.com/tbourn/go-fortune-backend/internal/uniqueness"
)

// --- test wiring helpers ---

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   10,
		CORS:        config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:    config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:        config.OTELConfig{ServiceName: "test-svc"},
		Engine:      config.EngineConfig{GenerateTimeout: time.Second},
	}
}

func newMemService() *services.FortuneService {
	cl := uniqueness.NewClient(uniqueness.NewMemoryStore(), nil, 100*time.Millisecond)
	return services.NewFortuneService(nil, nil, cl, services.Options{InstanceID: "t"})
}

// newSQLService backs the service with a private in-memory SQLite database.
func newSQLService(t *testing.T) (*services.FortuneService, *uniqueness.SQLStore) {
	t.Helper()
	db, err := repo.OpenSQLite(fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := uniqueness.NewSQLStore(db)
	t.Cleanup(func() { _ = store.Close() })
	cl := uniqueness.NewClient(store, nil, time.Second)
	return services.NewFortuneService(nil, nil, cl, services.Options{InstanceID: "t"}), store
}

func serve(r http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const fortuneBody = `{"base_message":"今日は良い日","category":"career","subject":{"name":"Taro Yamada","birth_date":"1985-11-02"}}`

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, newMemService(), testConfig())

	w := serve(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "" {
		t.Fatalf("health must not carry no-store, got %q", cc)
	}

	w = serve(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	if w = serve(r, http.MethodGet, "/nope", "", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}
	if w = serve(r, http.MethodPost, "/health", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
	if w = serve(r, http.MethodGet, "/api/v1/fortunes", "", nil); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /api/v1/fortunes expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.APIBasePath = "/api/v2"
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	RegisterRoutes(r, newMemService(), cfg)

	w := serve(r, http.MethodGet, "/health", "", map[string]string{"Origin": "http://example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_FortuneStatsCleanup_SQLStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc, store := newSQLService(t)
	RegisterRoutes(r, svc, testConfig())

	seen := map[string]bool{}
	var subject string
	for i := 0; i < 5; i++ {
		w := serve(r, http.MethodPost, "/api/v1/fortunes", fortuneBody, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("POST /fortunes = %d body=%s", w.Code, w.Body.String())
		}
		var got struct {
			Message   string `json:"message"`
			SubjectID string `json:"subject_id"`
			Fallback  bool   `json:"fallback"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("json: %v", err)
		}
		if got.Message == "" || seen[got.Message] {
			t.Fatalf("empty or repeated message %q", got.Message)
		}
		seen[got.Message] = true
		if subject != "" && got.SubjectID != subject {
			t.Fatalf("subject id changed between calls: %q vs %q", subject, got.SubjectID)
		}
		subject = got.SubjectID
		if cc := w.Header().Get("Cache-Control"); cc != "no-store, private" {
			t.Fatalf("expected no-store on fortune response, got %q", cc)
		}
	}

	w := serve(r, http.MethodGet, "/api/v1/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /stats = %d", w.Code)
	}
	var st struct {
		SessionMessages int64 `json:"session_messages"`
		StoreAvailable  bool  `json:"store_available"`
		Store           struct {
			TotalMessages  int64 `json:"total_messages"`
			UniqueSubjects int64 `json:"unique_subjects"`
		} `json:"store"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if st.SessionMessages != 5 || !st.StoreAvailable || st.Store.TotalMessages != 5 || st.Store.UniqueSubjects != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	w = serve(r, http.MethodPost, "/api/v1/maintenance/cleanup", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"purged":0`) {
		t.Fatalf("cleanup = %d %s", w.Code, w.Body.String())
	}

	// A closed store turns cleanup into 503 while generation keeps working.
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if w = serve(r, http.MethodPost, "/api/v1/maintenance/cleanup", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("cleanup on closed store = %d", w.Code)
	}
	if w = serve(r, http.MethodPost, "/api/v1/fortunes", fortuneBody, nil); w.Code != http.StatusCreated {
		t.Fatalf("generation on closed store = %d", w.Code)
	}
}

func TestRegisterRoutes_RateLimitsAPIButNotHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.RateRPS = 0.001
	cfg.RateBurst = 2
	RegisterRoutes(r, newMemService(), cfg)

	hdr := map[string]string{"X-Client-ID": "burst-test"}
	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, serve(r, http.MethodPost, "/api/v1/fortunes", fortuneBody, hdr).Code)
	}
	if codes[0] != http.StatusCreated || codes[1] != http.StatusCreated || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence: %v", codes)
	}
	for i := 0; i < 5; i++ {
		if w := serve(r, http.MethodGet, "/health", "", hdr); w.Code != http.StatusOK {
			t.Fatalf("health limited: %d", w.Code)
		}
	}
}

func TestPipeline_GzipAndSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour}
	RegisterRoutes(r, newMemService(), cfg)

	w := serve(r, http.MethodGet, "/health", "", map[string]string{
		"Accept-Encoding":   "gzip",
		"X-Forwarded-Proto": "https",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
	if got := w.Header().Get("Strict-Transport-Security"); !strings.HasPrefix(got, "max-age=3600") {
		t.Fatalf("expected HSTS on https, got %q", got)
	}
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers=%v", w.Header())
	}
	zr, err := gzip.NewReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	plain, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("gunzip: %v", err)
	}
	if !strings.Contains(string(plain), `"status":"ok"`) {
		t.Fatalf("unexpected body %q", plain)
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	api := groupWithPrefix(r, "/api")
	api.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	// Hit all three
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/one", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "one" {
		t.Fatalf("GET /one got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/two", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "two" {
		t.Fatalf("GET /two got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "pong" {
		t.Fatalf("GET /api/ping got %d %q", rec.Code, rec.Body.String())
	}
}
