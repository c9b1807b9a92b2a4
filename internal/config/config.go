package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"mailalias/backend/internal/domain"
)

// 配置文件中的占位默认值，任何字段保持占位值都会导致整份配置被拒绝
const (
	PlaceholderMailcowURL = "https://mail.example.com"
	PlaceholderAPIKey     = "YOUR_MAILCOW_API_KEY"
	PlaceholderDomain     = "example.com"
)

// SampleFileName 配置缺失时写出的模板文件名
const SampleFileName = "config.sample.json"

// 配置加载错误定义
var (
	// ErrMissingFile 配置文件不存在
	ErrMissingFile = errors.New("configuration file not found")
	// ErrInvalidConfig 配置字段缺失、格式错误或仍为占位值
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config 系统核心配置，来源于 JSON 配置文件
//
// 配置在每次请求时重新读取，修改后无需重启进程即可生效。
type Config struct {
	MailcowURL      string                  `json:"mailcow_url" mapstructure:"mailcow_url"`
	APIKey          string                  `json:"api_key" mapstructure:"api_key"`
	Domain          string                  `json:"domain,omitempty" mapstructure:"domain"` // 旧版单域名字段，加载时提升为 domains
	Domains         []string                `json:"domains" mapstructure:"domains"`
	DefaultDomain   string                  `json:"default_domain" mapstructure:"default_domain"`
	DefaultRedirect string                  `json:"default_redirect" mapstructure:"default_redirect"`
	SogoVisible     bool                    `json:"sogo_visible" mapstructure:"sogo_visible"`
	AltchaEnabled   bool                    `json:"altcha_enabled" mapstructure:"altcha_enabled"`
	AltchaHMACKey   string                  `json:"altcha_hmac_key,omitempty" mapstructure:"altcha_hmac_key"`
	Password        string                  `json:"password,omitempty" mapstructure:"password"`
	Users           []domain.UserCredential `json:"users,omitempty" mapstructure:"users"`
	CheckExisting   bool                    `json:"check_existing" mapstructure:"check_existing"`
	Port            int                     `json:"port" mapstructure:"port"`
}

// MultiUser 是否启用多用户凭证模式
func (c *Config) MultiUser() bool {
	return len(c.Users) > 0
}

// Loader 配置加载器，持有配置文件路径
//
// Load 每次调用都从磁盘重新读取，不做缓存。这是刻意的简单性取舍：
// 运维编辑配置文件后立即生效，代价是每个请求多一次小文件读取。
type Loader struct {
	path string
	log  *zap.Logger
}

// NewLoader 创建配置加载器
func NewLoader(path string, log *zap.Logger) *Loader {
	return &Loader{
		path: path,
		log:  log,
	}
}

// Path 返回配置文件路径
func (l *Loader) Path() string {
	return l.path
}

// Load 从磁盘读取并校验配置
//
// 配置文件不存在时，在同目录写出 config.sample.json 模板提示运维，
// 并返回 ErrMissingFile。任何必填字段缺失、格式错误或仍为占位值时
// 整份配置被拒绝（fail-closed），不会返回部分可用的配置。
func (l *Loader) Load() (*Config, error) {
	if _, err := os.Stat(l.path); err != nil {
		l.writeSample()
		return nil, fmt.Errorf("%w: %s (sample written, copy it to %s and fill in your settings)",
			ErrMissingFile, l.path, filepath.Base(l.path))
	}

	v := viper.New()
	v.SetConfigFile(l.path)
	v.SetConfigType("json")
	v.SetDefault("sogo_visible", true)
	v.SetDefault("port", 8080)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate 校验并规范化配置
func (c *Config) validate() error {
	if c.MailcowURL == "" || c.MailcowURL == PlaceholderMailcowURL {
		return fmt.Errorf("%w: mailcow_url missing or not configured", ErrInvalidConfig)
	}
	if c.APIKey == "" || c.APIKey == PlaceholderAPIKey {
		return fmt.Errorf("%w: api_key missing or not configured", ErrInvalidConfig)
	}

	// 旧版单域名配置提升为多域名形式
	if len(c.Domains) == 0 && c.Domain != "" {
		c.Domains = []string{c.Domain}
		if c.DefaultDomain == "" {
			c.DefaultDomain = c.Domain
		}
	}

	if len(c.Domains) == 0 {
		return fmt.Errorf("%w: no domains configured", ErrInvalidConfig)
	}
	for i, d := range c.Domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || d == PlaceholderDomain {
			return fmt.Errorf("%w: domain missing or not configured", ErrInvalidConfig)
		}
		c.Domains[i] = d
	}

	if c.DefaultDomain == "" {
		c.DefaultDomain = c.Domains[0]
	} else {
		c.DefaultDomain = strings.ToLower(strings.TrimSpace(c.DefaultDomain))
		if !contains(c.Domains, c.DefaultDomain) {
			return fmt.Errorf("%w: default_domain %q is not in domains", ErrInvalidConfig, c.DefaultDomain)
		}
	}

	if c.AltchaEnabled && c.AltchaHMACKey == "" {
		return fmt.Errorf("%w: altcha_enabled requires altcha_hmac_key", ErrInvalidConfig)
	}

	if len(c.Users) > 0 {
		seen := make(map[string]bool, len(c.Users))
		for _, u := range c.Users {
			if u.ID == "" || u.Password == "" {
				return fmt.Errorf("%w: user entries require id and password", ErrInvalidConfig)
			}
			if seen[u.ID] {
				return fmt.Errorf("%w: duplicate user id %q", ErrInvalidConfig, u.ID)
			}
			seen[u.ID] = true
		}
	} else if c.Password == "" {
		return fmt.Errorf("%w: no password or users configured", ErrInvalidConfig)
	}

	return nil
}

// writeSample 在配置文件所在目录写出模板文件（尽力而为）
func (l *Loader) writeSample() {
	sample := Config{
		MailcowURL:      PlaceholderMailcowURL,
		APIKey:          PlaceholderAPIKey,
		Domains:         []string{PlaceholderDomain},
		DefaultDomain:   PlaceholderDomain,
		DefaultRedirect: "user@example.com",
		SogoVisible:     true,
		AltchaEnabled:   false,
		Password:        "change-me",
		CheckExisting:   false,
		Port:            8080,
	}

	data, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return
	}
	data = append(data, '\n')

	samplePath := filepath.Join(filepath.Dir(l.path), SampleFileName)
	if err := os.WriteFile(samplePath, data, 0644); err != nil {
		l.log.Warn("failed to write sample configuration", zap.String("path", samplePath), zap.Error(err))
		return
	}
	l.log.Warn("configuration file not found, sample written",
		zap.String("config", l.path),
		zap.String("sample", samplePath),
	)
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
