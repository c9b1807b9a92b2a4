package health

import (
	"time"

	"github.com/heptiolabs/healthcheck"

	"mailalias/backend/internal/config"
)

// MailcowChecker 远端连通性探测接口
type MailcowChecker interface {
	CheckConnection(cfg *config.Config) error
}

// NewHandler 创建健康检查处理器
//
// 存活检查只看进程自身；就绪检查验证配置可加载且 Mailcow 可达。
// 远端探测异步执行，避免每次就绪探针都打到 Mailcow。
func NewHandler(loader *config.Loader, client MailcowChecker) healthcheck.Handler {
	h := healthcheck.NewHandler()

	h.AddLivenessCheck("goroutine-count", healthcheck.GoroutineCountCheck(200))

	h.AddReadinessCheck("config", func() error {
		_, err := loader.Load()
		return err
	})

	h.AddReadinessCheck("mailcow", healthcheck.Async(func() error {
		cfg, err := loader.Load()
		if err != nil {
			return err
		}
		return client.CheckConnection(cfg)
	}, 30*time.Second))

	return h
}
