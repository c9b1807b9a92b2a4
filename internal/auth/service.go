package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mailalias/backend/internal/config"
	"mailalias/backend/internal/domain"
	"mailalias/backend/internal/monitoring"
)

var (
	// ErrSolutionRequired 启用人机验证后缺少答案载荷
	ErrSolutionRequired = errors.New("verification solution required")
	// ErrInvalidPassword 密码不匹配。刻意不区分"用户不存在"和"密码错误"，
	// 避免用户枚举
	ErrInvalidPassword = errors.New("invalid password")
)

// VerificationError 挑战答案校验被拒绝，Detail 面向客户端
type VerificationError struct {
	Detail string
}

func (e *VerificationError) Error() string {
	return e.Detail
}

// ChallengeVerifier 挑战答案校验接口
type ChallengeVerifier interface {
	Verify(payload string, cfg *config.Config, checkExpiry bool) (bool, string)
}

// Service 认证服务
//
// 认证顺序是固定的：先人机验证，后密码比较。验证失败时密码
// 永远不会被比较，这保证了验证门槛无法被跳过。
type Service struct {
	verifier ChallengeVerifier
	log      *zap.Logger
	metrics  *monitoring.Metrics
}

// NewService 创建认证服务，metrics 可以为 nil
func NewService(verifier ChallengeVerifier, log *zap.Logger, metrics *monitoring.Metrics) *Service {
	return &Service{verifier: verifier, log: log, metrics: metrics}
}

// Authenticate 校验密码并返回认证身份
//
// 多用户模式按密码匹配扫描凭据表，命中者的标识、描述和默认
// 转发地址作为身份返回。单密码模式返回空身份。
func (s *Service) Authenticate(password, solution string, cfg *config.Config) (*domain.Identity, error) {
	if cfg.AltchaEnabled {
		if solution == "" {
			s.recordAttempt("challenge_missing")
			return nil, ErrSolutionRequired
		}
		if ok, detail := s.verifier.Verify(solution, cfg, true); !ok {
			s.recordAttempt("challenge_failed")
			s.log.Warn("altcha solution rejected", zap.String("detail", detail))
			return nil, &VerificationError{Detail: detail}
		}
	}

	if cfg.MultiUser() {
		for _, user := range cfg.Users {
			if comparePassword(user.Password, password) {
				s.recordAttempt("success")
				s.log.Info("user authenticated", zap.String("user", user.ID))
				return &domain.Identity{
					UserID:          user.ID,
					Description:     user.Description,
					DefaultRedirect: user.DefaultRedirect,
				}, nil
			}
		}
		s.recordAttempt("invalid_password")
		return nil, ErrInvalidPassword
	}

	if comparePassword(cfg.Password, password) {
		s.recordAttempt("success")
		return &domain.Identity{}, nil
	}
	s.recordAttempt("invalid_password")
	return nil, ErrInvalidPassword
}

func (s *Service) recordAttempt(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordAuthAttempt(outcome)
	}
}

// comparePassword 可替换的密码比较函数，测试用来断言比较是否发生
var comparePassword = defaultComparePassword

// defaultComparePassword 比较存储密码与提交密码
//
// 存储值为 bcrypt 哈希时走哈希比较，否则做常数时间明文比较。
func defaultComparePassword(stored, supplied string) bool {
	if stored == "" {
		return false
	}
	if strings.HasPrefix(stored, "$2a$") || strings.HasPrefix(stored, "$2b$") || strings.HasPrefix(stored, "$2y$") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
