package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	altchasvc "mailalias/backend/internal/altcha"
	"mailalias/backend/internal/auth"
	"mailalias/backend/internal/config"
	"mailalias/backend/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubMailcow 远端客户端替身
type stubMailcow struct {
	createOK  bool
	createMsg string
	exists    bool
	calls     int
}

func (s *stubMailcow) CreateAlias(alias, redirectTo string, cfg *config.Config) (bool, string) {
	s.calls++
	return s.createOK, s.createMsg
}

func (s *stubMailcow) AliasExists(alias string, cfg *config.Config) bool {
	return s.exists
}

// stubProber 连通性探测替身
type stubProber struct {
	err error
}

func (s *stubProber) CheckConnection(cfg *config.Config) error {
	return s.err
}

const baseConfig = `{
  "mailcow_url": "https://mail.internal.example",
  "api_key": "real-api-key-123",
  "domains": ["alias.example.net"],
  "default_redirect": "inbox@example.net",
  "password": "hunter2"
}`

// newTestRouter 用临时配置文件搭建完整路由
func newTestRouter(t *testing.T, cfgJSON string, client service.MailcowAPI, prober MailcowProber) *gin.Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(cfgJSON), 0644))

	log := zap.NewNop()
	loader := config.NewLoader(path, log)
	altchaSvc := altchasvc.NewService(log, nil)

	return NewRouter(RouterDependencies{
		Loader:        loader,
		AliasService:  service.NewAliasService(client, nil, log, nil),
		AuthService:   auth.NewService(altchaSvc, log, nil),
		AltchaService: altchaSvc,
		Prober:        prober,
		Logger:        log,
	})
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestCreateAliasEndpoint(t *testing.T) {
	t.Run("创建成功返回回显结果", func(t *testing.T) {
		client := &stubMailcow{createOK: true, createMsg: "Alias created successfully"}
		router := newTestRouter(t, baseConfig, client, &stubProber{})

		w := doJSON(router, http.MethodPost, "/api/create-alias",
			`{"alias":"shop@alias.example.net","redirectTo":"inbox@example.net"}`)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "shop@alias.example.net", body["alias"])
		assert.Equal(t, "inbox@example.net", body["redirect_to"])
		assert.Equal(t, 1, client.calls)
	})

	t.Run("请求体缺失返回400", func(t *testing.T) {
		router := newTestRouter(t, baseConfig, &stubMailcow{}, &stubProber{})

		w := doJSON(router, http.MethodPost, "/api/create-alias", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, MsgMissingJSON, decodeBody(t, w)["error"])
	})

	t.Run("空字段返回400", func(t *testing.T) {
		router := newTestRouter(t, baseConfig, &stubMailcow{}, &stubProber{})

		w := doJSON(router, http.MethodPost, "/api/create-alias",
			`{"alias":"","redirectTo":"inbox@example.net"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, MsgFieldsRequired, decodeBody(t, w)["error"])
	})

	t.Run("域名不允许时响应列出允许域名", func(t *testing.T) {
		client := &stubMailcow{}
		router := newTestRouter(t, baseConfig, client, &stubProber{})

		w := doJSON(router, http.MethodPost, "/api/create-alias",
			`{"alias":"user@notallowed.org","redirectTo":"inbox@example.net"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, decodeBody(t, w)["error"], "alias.example.net")
		assert.Zero(t, client.calls)
	})

	t.Run("远端拒绝时透传消息", func(t *testing.T) {
		client := &stubMailcow{createOK: false, createMsg: "Connection timeout"}
		router := newTestRouter(t, baseConfig, client, &stubProber{})

		w := doJSON(router, http.MethodPost, "/api/create-alias",
			`{"alias":"shop@alias.example.net","redirectTo":"inbox@example.net"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Connection timeout", decodeBody(t, w)["error"])
	})

	t.Run("配置无效返回500", func(t *testing.T) {
		invalid := strings.Replace(baseConfig, "real-api-key-123", config.PlaceholderAPIKey, 1)
		router := newTestRouter(t, invalid, &stubMailcow{}, &stubProber{})

		w := doJSON(router, http.MethodPost, "/api/create-alias",
			`{"alias":"shop@alias.example.net","redirectTo":"inbox@example.net"}`)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, MsgInvalidConfig, decodeBody(t, w)["error"])
	})
}

func TestStatusEndpoint(t *testing.T) {
	t.Run("连通时返回状态详情", func(t *testing.T) {
		router := newTestRouter(t, baseConfig, &stubMailcow{}, &stubProber{})

		w := doJSON(router, http.MethodGet, "/api/status", "")

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "https://mail.internal.example", body["mailcow_url"])
		assert.Equal(t, "alias.example.net", body["default_domain"])
		assert.Equal(t, "success", body["connection"])
	})

	t.Run("探测失败返回500", func(t *testing.T) {
		router := newTestRouter(t, baseConfig, &stubMailcow{}, &stubProber{err: errors.New("Mailcow connection error: 403")})

		w := doJSON(router, http.MethodGet, "/api/status", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "error", body["status"])
		assert.Contains(t, body["message"], "403")
	})
}

func TestConfigEndpoint(t *testing.T) {
	t.Run("只暴露前端需要的字段", func(t *testing.T) {
		router := newTestRouter(t, baseConfig, &stubMailcow{}, &stubProber{})

		w := doJSON(router, http.MethodGet, "/api/config", "")

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "alias.example.net", body["default_domain"])
		assert.Equal(t, "inbox@example.net", body["default_redirect"])
		assert.Equal(t, false, body["altcha_enabled"])
		assert.Equal(t, false, body["multi_user_enabled"])

		// 密钥绝不出现在响应里
		assert.NotContains(t, w.Body.String(), "real-api-key-123")
		assert.NotContains(t, w.Body.String(), "hunter2")
	})
}

func TestChallengeEndpoint(t *testing.T) {
	t.Run("未启用验证时返回400", func(t *testing.T) {
		router := newTestRouter(t, baseConfig, &stubMailcow{}, &stubProber{})

		w := doJSON(router, http.MethodGet, "/api/altcha/challenge", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, MsgAltchaDisabled, decodeBody(t, w)["error"])
	})

	t.Run("启用后返回完整挑战", func(t *testing.T) {
		cfgJSON := strings.Replace(baseConfig, `"password": "hunter2"`,
			`"password": "hunter2",
  "altcha_enabled": true,
  "altcha_hmac_key": "challenge-key"`, 1)
		router := newTestRouter(t, cfgJSON, &stubMailcow{}, &stubProber{})

		w := doJSON(router, http.MethodGet, "/api/altcha/challenge", "")

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "SHA-256", body["algorithm"])
		assert.NotEmpty(t, body["challenge"])
		assert.NotEmpty(t, body["salt"])
		assert.NotEmpty(t, body["signature"])
	})
}

func TestAuthEndpoint(t *testing.T) {
	t.Run("密码正确返回成功", func(t *testing.T) {
		router := newTestRouter(t, baseConfig, &stubMailcow{}, &stubProber{})

		w := doJSON(router, http.MethodPost, "/api/auth", `{"password":"hunter2"}`)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, MsgAuthSuccess, body["message"])
		assert.NotContains(t, body, "user")
	})

	t.Run("密码错误返回401", func(t *testing.T) {
		router := newTestRouter(t, baseConfig, &stubMailcow{}, &stubProber{})

		w := doJSON(router, http.MethodPost, "/api/auth", `{"password":"wrong"}`)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, MsgInvalidPassword, decodeBody(t, w)["error"])
	})

	t.Run("启用验证且缺少答案返回400", func(t *testing.T) {
		cfgJSON := strings.Replace(baseConfig, `"password": "hunter2"`,
			`"password": "hunter2",
  "altcha_enabled": true,
  "altcha_hmac_key": "challenge-key"`, 1)
		router := newTestRouter(t, cfgJSON, &stubMailcow{}, &stubProber{})

		w := doJSON(router, http.MethodPost, "/api/auth", `{"password":"hunter2"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, MsgSolutionRequired, decodeBody(t, w)["error"])
	})

	t.Run("多用户模式返回匹配用户信息", func(t *testing.T) {
		cfgJSON := strings.Replace(baseConfig, `"password": "hunter2"`,
			`"users": [
    {"id": "alice", "password": "pw-alice", "default_redirect": "alice@example.net", "description": "Alice"},
    {"id": "bob", "password": "pw-bob", "default_redirect": "bob@example.net", "description": "Bob"}
  ]`, 1)
		router := newTestRouter(t, cfgJSON, &stubMailcow{}, &stubProber{})

		w := doJSON(router, http.MethodPost, "/api/auth", `{"password":"pw-bob"}`)

		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		user, ok := body["user"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "bob", user["id"])
		assert.Equal(t, "bob@example.net", user["default_redirect"])
	})

	t.Run("请求体缺失返回400", func(t *testing.T) {
		router := newTestRouter(t, baseConfig, &stubMailcow{}, &stubProber{})

		w := doJSON(router, http.MethodPost, "/api/auth", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, MsgMissingJSON, decodeBody(t, w)["error"])
	})
}
