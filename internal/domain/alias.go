package domain

import (
	"strings"
	"time"
)

// AliasRequest 别名创建请求（已规范化：去除首尾空白并转为小写）
type AliasRequest struct {
	Alias      string `json:"alias"`      // 别名地址，形如 local@domain
	RedirectTo string `json:"redirectTo"` // 转发目标地址
}

// AliasResult 别名创建结果
type AliasResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Alias      string `json:"alias,omitempty"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// ActivityEntry 活动日志条目，每成功创建一个别名追加一条，永不修改
type ActivityEntry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Alias      string    `json:"alias"`
	RedirectTo string    `json:"redirect_to"`
	User       string    `json:"user,omitempty"` // 多用户模式下的用户标识
	Status     string    `json:"status"`
}

// UserCredential 多用户模式下的单条用户凭证
type UserCredential struct {
	ID              string `json:"id" mapstructure:"id"`
	Password        string `json:"password" mapstructure:"password"`
	DefaultRedirect string `json:"default_redirect" mapstructure:"default_redirect"`
	Description     string `json:"description" mapstructure:"description"`
}

// Identity 认证成功后返回的身份信息
type Identity struct {
	UserID          string `json:"id,omitempty"`
	Description     string `json:"description,omitempty"`
	DefaultRedirect string `json:"default_redirect,omitempty"`
}

// NormalizeAddress 规范化邮箱地址：去除首尾空白并转为小写
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// HasAtSign 检查地址是否包含 @。格式校验刻意保持宽松，
// 严格的地址合法性由远端判定
func HasAtSign(addr string) bool {
	return strings.Contains(addr, "@")
}

// MatchesDomain 检查别名地址是否属于某个允许的域名
//
// 比较方式为后缀匹配 "@{domain}"，域名均已小写。
// 只有别名接受此检查，转发目标不做域名限制。
func MatchesDomain(alias string, domains []string) bool {
	for _, d := range domains {
		if strings.HasSuffix(alias, "@"+strings.ToLower(d)) {
			return true
		}
	}
	return false
}
