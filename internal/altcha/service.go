package altcha

import (
	"errors"
	"time"

	altchalib "github.com/altcha-org/altcha-lib-go"
	"go.uber.org/zap"

	"mailalias/backend/internal/config"
	"mailalias/backend/internal/monitoring"
)

// ErrMissingKey 未配置签名密钥时无法签发挑战
var ErrMissingKey = errors.New("altcha hmac key is not configured")

// 拒绝原因，两种失败形态使用不同的消息
const (
	DetailVerificationError = "Verification error"
	DetailInvalidSolution   = "Invalid verification solution"
)

// 挑战参数：有界的搜索空间加一小时有效期。
// 签名自包含，服务端不保存任何挑战状态。
const (
	maxNumber  = 100000
	saltLength = 12
	challengeTTL = time.Hour
)

// Service 人机验证挑战服务
//
// 基于 ALTCHA 工作量证明：签发带 HMAC 签名和过期时间的挑战，
// 校验时只需重算签名，无需服务端会话存储。
type Service struct {
	log     *zap.Logger
	metrics *monitoring.Metrics
}

// NewService 创建验证挑战服务，metrics 可以为 nil
func NewService(log *zap.Logger, metrics *monitoring.Metrics) *Service {
	return &Service{log: log, metrics: metrics}
}

// Issue 签发一个新挑战
//
// 配置缺少密钥时返回错误而不是 panic，由调用方映射为配置失败。
func (s *Service) Issue(cfg *config.Config) (*altchalib.Challenge, error) {
	if cfg.AltchaHMACKey == "" {
		return nil, ErrMissingKey
	}

	expires := time.Now().Add(challengeTTL)
	challenge, err := altchalib.CreateChallenge(altchalib.ChallengeOptions{
		Algorithm:  altchalib.SHA256,
		MaxNumber:  maxNumber,
		SaltLength: saltLength,
		HMACKey:    cfg.AltchaHMACKey,
		Expires:    &expires,
	})
	if err != nil {
		s.log.Error("failed to create altcha challenge", zap.Error(err))
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordChallengeIssued()
	}
	return &challenge, nil
}

// Verify 校验挑战答案
//
// 返回 (valid, detail)。校验过程出错和答案无效是两种不同的拒绝，
// detail 消息不同，但对调用方来说都意味着拒绝。
func (s *Service) Verify(payload string, cfg *config.Config, checkExpiry bool) (bool, string) {
	ok, err := altchalib.VerifySolution(payload, cfg.AltchaHMACKey, checkExpiry)
	if err != nil {
		s.log.Warn("altcha verification error", zap.Error(err))
		return false, DetailVerificationError
	}
	if !ok {
		return false, DetailInvalidSolution
	}
	return true, ""
}
