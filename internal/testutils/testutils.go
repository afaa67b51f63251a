package testutils

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schwabgw/internal/logger"
)

// TestConfig 测试配置
type TestConfig struct {
	LogLevel logger.LogLevel
	TempDir  string
}

// DefaultTestConfig 默认测试配置
func DefaultTestConfig() *TestConfig {
	return &TestConfig{
		LogLevel: logger.LevelError, // 测试时减少日志输出
	}
}

// TestSuite 测试套件
type TestSuite struct {
	T       *testing.T
	Config  *TestConfig
	Logger  logger.Logger
	TempDir string
	Cleanup []func()
}

// NewTestSuite 创建测试套件
func NewTestSuite(t *testing.T, config *TestConfig) *TestSuite {
	if config == nil {
		config = DefaultTestConfig()
	}

	tempDir := config.TempDir
	if tempDir == "" {
		tempDir = t.TempDir()
	}

	testLogger := logger.NewLogger(logger.Config{
		Level:  config.LogLevel,
		Format: logger.FormatText,
		Output: "stderr",
	})

	return &TestSuite{
		T:       t,
		Config:  config,
		Logger:  testLogger,
		TempDir: tempDir,
	}
}

// AddCleanup 添加清理函数
func (s *TestSuite) AddCleanup(cleanup func()) {
	s.Cleanup = append(s.Cleanup, cleanup)
}

// TearDown 清理测试环境
func (s *TestSuite) TearDown() {
	for i := len(s.Cleanup) - 1; i >= 0; i-- {
		s.Cleanup[i]()
	}
	s.Cleanup = nil
}

// CreateTempFile 创建临时文件
func (s *TestSuite) CreateTempFile(name, content string) string {
	filePath := filepath.Join(s.TempDir, name)
	require.NoError(s.T, os.MkdirAll(filepath.Dir(filePath), 0755))
	require.NoError(s.T, os.WriteFile(filePath, []byte(content), 0644))
	return filePath
}

// Path 返回临时目录下的路径，不创建文件
func (s *TestSuite) Path(name string) string {
	return filepath.Join(s.TempDir, name)
}

// HTTPTestHelper HTTP测试助手
type HTTPTestHelper struct {
	Handler http.Handler
	Suite   *TestSuite
}

// NewHTTPTestHelper 创建HTTP测试助手
func NewHTTPTestHelper(suite *TestSuite, handler http.Handler) *HTTPTestHelper {
	gin.SetMode(gin.TestMode)
	return &HTTPTestHelper{
		Handler: handler,
		Suite:   suite,
	}
}

// GET 发送GET请求
func (h *HTTPTestHelper) GET(path string, headers map[string]string) *HTTPResponse {
	return h.Request(http.MethodGet, path, nil, headers)
}

// POST 发送POST请求，body 为 string 或 []byte 时原样发送
func (h *HTTPTestHelper) POST(path string, body interface{}, headers map[string]string) *HTTPResponse {
	return h.Request(http.MethodPost, path, body, headers)
}

// Request 发送HTTP请求
func (h *HTTPTestHelper) Request(method, path string, body interface{}, headers map[string]string) *HTTPResponse {
	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		bodyReader = bytes.NewReader([]byte(b))
	case []byte:
		bodyReader = bytes.NewReader(b)
	default:
		bodyBytes, err := json.Marshal(b)
		require.NoError(h.Suite.T, err)
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	h.Handler.ServeHTTP(w, req)

	return &HTTPResponse{
		StatusCode: w.Code,
		Body:       w.Body.Bytes(),
		Headers:    w.Header(),
		suite:      h.Suite,
	}
}

// HTTPResponse HTTP响应
type HTTPResponse struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	suite      *TestSuite
}

// AssertStatus 断言状态码
func (r *HTTPResponse) AssertStatus(expectedStatus int) *HTTPResponse {
	assert.Equal(r.suite.T, expectedStatus, r.StatusCode, string(r.Body))
	return r
}

// AssertContains 断言响应包含指定内容
func (r *HTTPResponse) AssertContains(substring string) *HTTPResponse {
	assert.Contains(r.suite.T, string(r.Body), substring)
	return r
}

// GetJSON 获取JSON响应
func (r *HTTPResponse) GetJSON(target interface{}) error {
	return json.Unmarshal(r.Body, target)
}

// JSONMap decodes the body as an object, failing the test otherwise.
func (r *HTTPResponse) JSONMap() map[string]interface{} {
	var out map[string]interface{}
	require.NoError(r.suite.T, json.Unmarshal(r.Body, &out), string(r.Body))
	return out
}

// RecordedRequest is one request seen by a FakeUpstream.
type RecordedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   []byte
}

// FakeUpstream is an httptest server that records every request and
// dispatches to handlers registered per "METHOD /path".
type FakeUpstream struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	requests []RecordedRequest
}

// NewFakeUpstream starts a recording upstream. It is closed on test cleanup.
func NewFakeUpstream(t *testing.T) *FakeUpstream {
	f := &FakeUpstream{handlers: make(map[string]http.HandlerFunc)}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// Handle registers a handler for method and path.
func (f *FakeUpstream) Handle(method, path string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method+" "+path] = h
}

// HandleJSON registers a handler answering status with the given JSON body.
func (f *FakeUpstream) HandleJSON(method, path string, status int, body string) {
	f.Handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

// Requests returns the recorded requests matching method and path.
func (f *FakeUpstream) Requests(method, path string) []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []RecordedRequest
	for _, r := range f.requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

// Count returns how many requests hit method and path.
func (f *FakeUpstream) Count(method, path string) int {
	return len(f.Requests(method, path))
}

func (f *FakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()

	f.mu.Lock()
	f.requests = append(f.requests, RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
		Body:   body,
	})
	h, ok := f.handlers[r.Method+" "+r.URL.Path]
	f.mu.Unlock()

	if !ok {
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	h(w, r)
}

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FileExists 检查文件是否存在
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// ReadTestFile 读取测试文件
func ReadTestFile(t *testing.T, path string) []byte {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// SetEnv 设置环境变量（测试结束后自动恢复）
func SetEnv(t *testing.T, key, value string) {
	t.Setenv(key, value)
}

// UnsetEnv 清除环境变量（测试结束后自动恢复）
func UnsetEnv(t *testing.T, key string) {
	old, had := os.LookupEnv(key)
	os.Unsetenv(key)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		}
	})
}
