package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	altchasvc "mailalias/backend/internal/altcha"
	"mailalias/backend/internal/auth"
	"mailalias/backend/internal/config"
)

// AuthHandler 认证与人机验证端点
type AuthHandler struct {
	loader *config.Loader
	auth   *auth.Service
	altcha *altchasvc.Service
	log    *zap.Logger
}

// NewAuthHandler 创建认证端点处理器
func NewAuthHandler(loader *config.Loader, authSvc *auth.Service, altchaSvc *altchasvc.Service, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		loader: loader,
		auth:   authSvc,
		altcha: altchaSvc,
		log:    log,
	}
}

// authRequest 登录请求体，altcha 为组件提交的答案载荷
type authRequest struct {
	Password string `json:"password"`
	Altcha   string `json:"altcha"`
}

// Challenge 签发人机验证挑战
//
// @Summary 获取验证挑战
// @Produce json
// @Success 200 {object} altcha.Challenge
// @Router /api/altcha/challenge [get]
func (h *AuthHandler) Challenge(c *gin.Context) {
	cfg, err := h.loader.Load()
	if err != nil {
		h.log.Error("configuration unavailable", zap.Error(err))
		Error(c, http.StatusInternalServerError, MsgInvalidConfig)
		return
	}

	if !cfg.AltchaEnabled {
		Error(c, http.StatusBadRequest, MsgAltchaDisabled)
		return
	}

	challenge, err := h.altcha.Issue(cfg)
	if err != nil {
		if errors.Is(err, altchasvc.ErrMissingKey) {
			Error(c, http.StatusInternalServerError, MsgInvalidConfig)
			return
		}
		h.log.Error("failed to issue challenge", zap.Error(err))
		Error(c, http.StatusInternalServerError, MsgInternalError)
		return
	}

	c.JSON(http.StatusOK, challenge)
}

// Authenticate 密码认证
//
// 成功响应不包含任何会话令牌，认证结果只用于前端展示门控。
//
// @Summary 密码认证
// @Accept json
// @Produce json
// @Param request body authRequest true "认证请求"
// @Success 200 {object} map[string]interface{}
// @Router /api/auth [post]
func (h *AuthHandler) Authenticate(c *gin.Context) {
	cfg, err := h.loader.Load()
	if err != nil {
		h.log.Error("configuration unavailable", zap.Error(err))
		Error(c, http.StatusInternalServerError, MsgInvalidConfig)
		return
	}

	var req authRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, MsgMissingJSON)
		return
	}

	identity, err := h.auth.Authenticate(req.Password, req.Altcha, cfg)
	if err != nil {
		h.respondAuthError(c, err)
		return
	}

	resp := gin.H{
		"success": true,
		"message": MsgAuthSuccess,
	}
	if identity.UserID != "" {
		resp["user"] = gin.H{
			"id":               identity.UserID,
			"description":      identity.Description,
			"default_redirect": identity.DefaultRedirect,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// respondAuthError 把认证错误映射为 HTTP 状态和客户端消息
func (h *AuthHandler) respondAuthError(c *gin.Context, err error) {
	var verr *auth.VerificationError
	switch {
	case errors.Is(err, auth.ErrSolutionRequired):
		Error(c, http.StatusBadRequest, MsgSolutionRequired)
	case errors.As(err, &verr):
		Error(c, http.StatusBadRequest, verr.Detail)
	case errors.Is(err, auth.ErrInvalidPassword):
		// 不区分用户不存在和密码错误
		Error(c, http.StatusUnauthorized, MsgInvalidPassword)
	default:
		h.log.Error("authentication failed", zap.Error(err))
		Error(c, http.StatusInternalServerError, MsgInternalError)
	}
}
