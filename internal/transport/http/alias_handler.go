package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailalias/backend/internal/config"
	"mailalias/backend/internal/domain"
	"mailalias/backend/internal/service"
)

// MailcowProber 连通性探测接口，状态端点使用
type MailcowProber interface {
	CheckConnection(cfg *config.Config) error
}

// AliasHandler 别名相关端点
type AliasHandler struct {
	loader *config.Loader
	alias  *service.AliasService
	prober MailcowProber
	log    *zap.Logger
}

// NewAliasHandler 创建别名端点处理器
func NewAliasHandler(loader *config.Loader, alias *service.AliasService, prober MailcowProber, log *zap.Logger) *AliasHandler {
	return &AliasHandler{
		loader: loader,
		alias:  alias,
		prober: prober,
		log:    log,
	}
}

// CreateAlias 创建别名
//
// 配置每次请求重新读取，修改配置文件无需重启即可生效。
//
// @Summary 创建邮件别名
// @Accept json
// @Produce json
// @Param request body domain.AliasRequest true "别名创建请求"
// @Success 200 {object} domain.AliasResult
// @Router /api/create-alias [post]
func (h *AliasHandler) CreateAlias(c *gin.Context) {
	cfg, err := h.loader.Load()
	if err != nil {
		h.log.Error("configuration unavailable", zap.Error(err))
		Error(c, http.StatusInternalServerError, MsgInvalidConfig)
		return
	}

	var req domain.AliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, MsgMissingJSON)
		return
	}

	result, err := h.alias.CreateAlias(req, "", cfg)
	if err != nil {
		h.respondAliasError(c, err)
		return
	}

	if !result.Success {
		// 远端失败的消息原样透传，状态固定 400：
		// 远端不可用不是本服务的内部错误
		Error(c, http.StatusBadRequest, result.Message)
		return
	}
	c.JSON(http.StatusOK, result)
}

// respondAliasError 把编排层错误映射为 HTTP 状态和客户端消息
func (h *AliasHandler) respondAliasError(c *gin.Context, err error) {
	var domErr *service.DomainNotAllowedError
	switch {
	case errors.Is(err, service.ErrFieldsRequired):
		Error(c, http.StatusBadRequest, MsgFieldsRequired)
	case errors.Is(err, service.ErrInvalidEmail):
		Error(c, http.StatusBadRequest, MsgInvalidEmail)
	case errors.As(err, &domErr):
		Error(c, http.StatusBadRequest, domErr.Error())
	case errors.Is(err, service.ErrAliasExists):
		Error(c, http.StatusConflict, MsgAliasExists)
	default:
		h.log.Error("alias creation failed", zap.Error(err))
		Error(c, http.StatusInternalServerError, MsgInternalError)
	}
}

// Status 服务状态与 Mailcow 连通性
//
// @Summary 服务状态
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/status [get]
func (h *AliasHandler) Status(c *gin.Context) {
	cfg, err := h.loader.Load()
	if err != nil {
		h.log.Error("configuration unavailable", zap.Error(err))
		StatusError(c, http.StatusInternalServerError, MsgInvalidConfig)
		return
	}

	if err := h.prober.CheckConnection(cfg); err != nil {
		h.log.Error("mailcow connectivity check failed", zap.Error(err))
		StatusError(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"mailcow_url":    cfg.MailcowURL,
		"domains":        cfg.Domains,
		"default_domain": cfg.DefaultDomain,
		"connection":     "success",
	})
}

// ClientConfig 前端所需的公开配置
//
// 只暴露前端展示需要的字段，API 密钥和密码绝不出现在响应里。
//
// @Summary 公开配置
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/config [get]
func (h *AliasHandler) ClientConfig(c *gin.Context) {
	cfg, err := h.loader.Load()
	if err != nil {
		h.log.Error("configuration unavailable", zap.Error(err))
		StatusError(c, http.StatusInternalServerError, MsgInvalidConfig)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"domains":            cfg.Domains,
		"default_domain":     cfg.DefaultDomain,
		"default_redirect":   cfg.DefaultRedirect,
		"altcha_enabled":     cfg.AltchaEnabled,
		"multi_user_enabled": cfg.MultiUser(),
	})
}
