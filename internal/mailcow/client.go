package mailcow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailalias/backend/internal/config"
	"mailalias/backend/internal/monitoring"
)

// 远端调用超时：变更类调用 10 秒，状态探测 5 秒。
// 超时或连接失败立即上报，不做重试和退避。
const (
	requestTimeout = 10 * time.Second
	probeTimeout   = 5 * time.Second
)

// 面向客户端的结果消息。Mailcow 返回结构化错误时透传其 msg。
const (
	MsgCreated          = "Alias created successfully"
	MsgUnexpectedFormat = "Unexpected API response format"
	MsgTimeout          = "Connection timeout"
	MsgConnectionFailed = "Unable to connect to Mailcow server"
	msgUnknownError     = "Unknown error"
)

// 响应体读取上限，防御异常膨胀的远端响应
const maxResponseBytes = 1 << 20

// Client Mailcow 管理 API 客户端
//
// Mailcow 的响应结构并不自洽：同一个端点可能返回结果对象数组、
// 单个结果对象，或完全不同的东西。客户端把这些形态统一归一化为
// (success, message)，任何无法识别的形态都降级为失败而不是 panic。
type Client struct {
	httpClient  *http.Client
	probeClient *http.Client
	log         *zap.Logger
	metrics     *monitoring.Metrics
}

// NewClient 创建 Mailcow API 客户端，metrics 可以为 nil
func NewClient(log *zap.Logger, metrics *monitoring.Metrics) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		probeClient: &http.Client{Timeout: probeTimeout},
		log:         log,
		metrics:     metrics,
	}
}

// addAliasRequest POST /api/v1/add/alias 的请求体
type addAliasRequest struct {
	Address     string `json:"address"`
	Goto        string `json:"goto"`
	Active      int    `json:"active"`
	SogoVisible int    `json:"sogo_visible"`
}

// apiResult Mailcow 结果对象。msg 可能是字符串，也可能是字符串片段数组
type apiResult struct {
	Type string          `json:"type"`
	Msg  json.RawMessage `json:"msg"`
}

// CreateAlias 在 Mailcow 上创建一个别名
//
// 返回 (success, message)。所有失败形态——远端拒绝、响应无法识别、
// HTTP 错误、超时、连接失败——都归一化为 (false, 消息)，不会 panic，
// 也不会把内部错误细节泄露给调用方。
func (c *Client) CreateAlias(alias, redirectTo string, cfg *config.Config) (bool, string) {
	endpoint := apiURL(cfg, "/api/v1/add/alias")

	sogoVisible := 0
	if cfg.SogoVisible {
		sogoVisible = 1
	}

	payload, err := json.Marshal(addAliasRequest{
		Address:     alias,
		Goto:        redirectTo,
		Active:      1,
		SogoVisible: sogoVisible,
	})
	if err != nil {
		c.log.Error("failed to marshal alias request", zap.Error(err))
		return false, msgUnknownError
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		c.log.Error("failed to build alias request", zap.Error(err))
		return false, MsgConnectionFailed
	}
	req.Header.Set("X-API-Key", cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	c.log.Info("creating alias",
		zap.String("alias", alias),
		zap.String("redirect_to", redirectTo),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.observe("add_alias", start, err)
	if err != nil {
		return false, c.classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.log.Error("mailcow returned http error",
			zap.Int("status", resp.StatusCode),
			zap.String("alias", alias),
		)
		return false, fmt.Sprintf("HTTP error %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.log.Error("failed to read mailcow response", zap.Error(err))
		return false, MsgUnexpectedFormat
	}

	ok, message := decodeOutcome(body)
	if ok {
		c.log.Info("alias created", zap.String("alias", alias))
	} else {
		c.log.Error("mailcow rejected alias",
			zap.String("alias", alias),
			zap.String("message", message),
		)
	}
	return ok, message
}

// AliasExists 检查别名是否已存在（尽力而为）
//
// 存在性检查只是建议性的：网络、解析、形态上的任何失败都降级为
// false 而不是向上传播错误。
func (c *Client) AliasExists(alias string, cfg *config.Config) bool {
	req, err := http.NewRequest(http.MethodGet, apiURL(cfg, "/api/v1/get/alias/all"), nil)
	if err != nil {
		return false
	}
	req.Header.Set("X-API-Key", cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.observe("get_alias_all", start, err)
	if err != nil {
		c.log.Warn("unable to check alias existence", zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return false
	}

	for _, record := range decodeAliasList(body) {
		if record.Address == alias {
			return true
		}
	}
	return false
}

// CheckConnection 连通性探测，请求域名列表端点
//
// 供 /api/status 和就绪检查使用，5 秒超时。
func (c *Client) CheckConnection(cfg *config.Config) error {
	req, err := http.NewRequest(http.MethodGet, apiURL(cfg, "/api/v1/get/domain/all"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", cfg.APIKey)

	start := time.Now()
	resp, err := c.probeClient.Do(req)
	c.observe("get_domain_all", start, err)
	if err != nil {
		return fmt.Errorf("unable to connect to Mailcow: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Mailcow connection error: %d", resp.StatusCode)
	}
	return nil
}

// classifyTransportError 区分超时与连接失败，两者使用不同的提示消息
func (c *Client) classifyTransportError(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		c.log.Error("timeout connecting to mailcow", zap.Error(err))
		return MsgTimeout
	}
	c.log.Error("unable to connect to mailcow", zap.Error(err))
	return MsgConnectionFailed
}

// decodeOutcome 把 Mailcow 的异构响应归一化为 (success, message)
//
//   - 非空结果数组: 按第一个元素的 type/msg 判定
//   - 单个结果对象: 同样规则直接判定
//   - 其余一切形态（空数组、null、标量、无法解析）: 未识别格式失败
func decodeOutcome(body []byte) (bool, string) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return false, MsgUnexpectedFormat
	}

	switch trimmed[0] {
	case '[':
		var results []apiResult
		if err := json.Unmarshal(trimmed, &results); err != nil || len(results) == 0 {
			return false, MsgUnexpectedFormat
		}
		return resultOutcome(results[0])
	case '{':
		var result apiResult
		if err := json.Unmarshal(trimmed, &result); err != nil {
			return false, MsgUnexpectedFormat
		}
		return resultOutcome(result)
	default:
		return false, MsgUnexpectedFormat
	}
}

// resultOutcome 对单个结果对象应用 type/msg 判定规则
func resultOutcome(r apiResult) (bool, string) {
	if r.Type == "success" {
		return true, MsgCreated
	}
	return false, joinMsg(r.Msg)
}

// joinMsg 提取错误消息；msg 为片段数组时用单个空格拼接
func joinMsg(raw json.RawMessage) string {
	if len(raw) == 0 {
		return msgUnknownError
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var parts []interface{}
	if err := json.Unmarshal(raw, &parts); err == nil {
		fragments := make([]string, 0, len(parts))
		for _, part := range parts {
			fragments = append(fragments, fmt.Sprint(part))
		}
		return strings.Join(fragments, " ")
	}

	return strings.TrimSpace(string(raw))
}

// aliasRecord 别名列表中的单条记录
type aliasRecord struct {
	Address string `json:"address"`
}

// decodeAliasList 解析别名列表，容忍数组或带 data/aliases 键的对象形态
func decodeAliasList(body []byte) []aliasRecord {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}

	switch trimmed[0] {
	case '[':
		var records []aliasRecord
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil
		}
		return records
	case '{':
		var wrapper struct {
			Data    []aliasRecord `json:"data"`
			Aliases []aliasRecord `json:"aliases"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil
		}
		if len(wrapper.Data) > 0 {
			return wrapper.Data
		}
		return wrapper.Aliases
	default:
		return nil
	}
}

// observe 上报远端调用耗时指标
func (c *Client) observe(endpoint string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.RecordRemoteCall(endpoint, time.Since(start), outcome)
}

// apiURL 拼接 API 端点，容忍基础 URL 的尾部斜杠
func apiURL(cfg *config.Config, path string) string {
	return strings.TrimRight(cfg.MailcowURL, "/") + path
}
