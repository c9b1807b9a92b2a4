package service

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mailalias/backend/internal/config"
	"mailalias/backend/internal/domain"
	"mailalias/backend/internal/monitoring"
)

var (
	// ErrFieldsRequired 别名或转发地址为空
	ErrFieldsRequired = errors.New("alias and redirect address required")
	// ErrInvalidEmail 地址缺少 @ 符号
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrAliasExists 别名已存在（仅在启用存在性检查时可能返回）
	ErrAliasExists = errors.New("alias already exists")
)

// DomainNotAllowedError 别名域名不在允许列表中，错误消息列出允许的域名
type DomainNotAllowedError struct {
	Domains []string
}

func (e *DomainNotAllowedError) Error() string {
	return fmt.Sprintf("Alias must use one of these domains: %s", strings.Join(e.Domains, ", "))
}

// MailcowAPI 远端别名客户端接口
type MailcowAPI interface {
	CreateAlias(alias, redirectTo string, cfg *config.Config) (bool, string)
	AliasExists(alias string, cfg *config.Config) bool
}

// ActivityRecorder 活动日志记录接口
type ActivityRecorder interface {
	Record(alias, redirectTo, user string) error
}

// AliasService 别名创建编排
//
// 负责输入归一化、域名策略检查、远端调用和结果记录。
// 校验按固定顺序短路，任何一步失败都不会触发远端调用。
type AliasService struct {
	client   MailcowAPI
	activity ActivityRecorder
	log      *zap.Logger
	metrics  *monitoring.Metrics
}

// NewAliasService 创建别名编排服务，activity 和 metrics 可以为 nil
func NewAliasService(client MailcowAPI, activity ActivityRecorder, log *zap.Logger, metrics *monitoring.Metrics) *AliasService {
	return &AliasService{
		client:   client,
		activity: activity,
		log:      log,
		metrics:  metrics,
	}
}

// CreateAlias 校验请求并在远端创建别名
//
// 校验失败返回错误（调用方映射为 400）。校验通过后远端恰好被调用
// 一次，远端拒绝不是错误而是 Success=false 的结果——远端的消息
// 原样传给客户端。成功时尽力记录活动日志，记录失败绝不影响结果。
func (s *AliasService) CreateAlias(req domain.AliasRequest, user string, cfg *config.Config) (*domain.AliasResult, error) {
	alias := domain.NormalizeAddress(req.Alias)
	redirectTo := domain.NormalizeAddress(req.RedirectTo)

	if alias == "" || redirectTo == "" {
		s.recordFailure("missing_fields")
		return nil, ErrFieldsRequired
	}
	if !domain.HasAtSign(alias) || !domain.HasAtSign(redirectTo) {
		s.recordFailure("invalid_format")
		return nil, ErrInvalidEmail
	}
	// 域名策略只约束别名，转发地址可以指向任意域
	if !domain.MatchesDomain(alias, cfg.Domains) {
		s.recordFailure("domain_not_allowed")
		return nil, &DomainNotAllowedError{Domains: cfg.Domains}
	}

	if cfg.CheckExisting && s.client.AliasExists(alias, cfg) {
		s.recordFailure("already_exists")
		return nil, ErrAliasExists
	}

	ok, message := s.client.CreateAlias(alias, redirectTo, cfg)
	if !ok {
		s.recordFailure("remote")
		return &domain.AliasResult{Success: false, Message: message}, nil
	}

	if s.activity != nil {
		if err := s.activity.Record(alias, redirectTo, user); err != nil {
			// 活动日志是尽力而为的，失败只记录进程日志
			s.log.Error("failed to record alias activity",
				zap.String("alias", alias),
				zap.Error(err),
			)
		}
	}
	if s.metrics != nil {
		s.metrics.RecordAliasCreated(domainOf(alias))
	}

	return &domain.AliasResult{
		Success:    true,
		Message:    message,
		Alias:      alias,
		RedirectTo: redirectTo,
	}, nil
}

func (s *AliasService) recordFailure(reason string) {
	if s.metrics != nil {
		s.metrics.RecordAliasFailure(reason)
	}
}

func domainOf(address string) string {
	if i := strings.LastIndex(address, "@"); i >= 0 {
		return address[i+1:]
	}
	return ""
}
