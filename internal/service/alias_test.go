package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailalias/backend/internal/config"
	"mailalias/backend/internal/domain"
)

// mockMailcow 可编程的远端客户端替身，统计调用次数
type mockMailcow struct {
	createOK    bool
	createMsg   string
	exists      bool
	createCalls int
	existsCalls int
	gotAlias    string
	gotRedirect string
}

func (m *mockMailcow) CreateAlias(alias, redirectTo string, cfg *config.Config) (bool, string) {
	m.createCalls++
	m.gotAlias = alias
	m.gotRedirect = redirectTo
	return m.createOK, m.createMsg
}

func (m *mockMailcow) AliasExists(alias string, cfg *config.Config) bool {
	m.existsCalls++
	return m.exists
}

// mockRecorder 活动日志替身
type mockRecorder struct {
	entries []string
	err     error
}

func (m *mockRecorder) Record(alias, redirectTo, user string) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, alias)
	return nil
}

func policyConfig() *config.Config {
	return &config.Config{
		Domains:       []string{"alias.example.net"},
		DefaultDomain: "alias.example.net",
	}
}

func TestAliasService_CreateAlias(t *testing.T) {
	t.Run("有效请求远端恰好调用一次并回显结果", func(t *testing.T) {
		client := &mockMailcow{createOK: true, createMsg: "Alias created successfully"}
		recorder := &mockRecorder{}
		svc := NewAliasService(client, recorder, zap.NewNop(), nil)

		result, err := svc.CreateAlias(domain.AliasRequest{
			Alias:      "Shop@Alias.Example.Net",
			RedirectTo: " Inbox@Example.Net ",
		}, "alice", policyConfig())

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "Alias created successfully", result.Message)
		assert.Equal(t, "shop@alias.example.net", result.Alias)
		assert.Equal(t, "inbox@example.net", result.RedirectTo)
		assert.Equal(t, 1, client.createCalls)

		// 归一化后的地址传给远端
		assert.Equal(t, "shop@alias.example.net", client.gotAlias)
		assert.Equal(t, "inbox@example.net", client.gotRedirect)

		// 成功后写入活动日志
		assert.Equal(t, []string{"shop@alias.example.net"}, recorder.entries)
	})

	t.Run("远端拒绝时透传消息且不算错误", func(t *testing.T) {
		client := &mockMailcow{createOK: false, createMsg: "object is not unique"}
		recorder := &mockRecorder{}
		svc := NewAliasService(client, recorder, zap.NewNop(), nil)

		result, err := svc.CreateAlias(domain.AliasRequest{
			Alias:      "shop@alias.example.net",
			RedirectTo: "inbox@example.net",
		}, "", policyConfig())

		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "object is not unique", result.Message)
		assert.Equal(t, 1, client.createCalls)

		// 失败不写活动日志
		assert.Empty(t, recorder.entries)
	})

	t.Run("空字段短路且不触发远端调用", func(t *testing.T) {
		client := &mockMailcow{createOK: true}
		svc := NewAliasService(client, nil, zap.NewNop(), nil)

		result, err := svc.CreateAlias(domain.AliasRequest{
			Alias:      "  ",
			RedirectTo: "inbox@example.net",
		}, "", policyConfig())

		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrFieldsRequired)
		assert.Zero(t, client.createCalls)
	})

	t.Run("缺少@符号短路且不触发远端调用", func(t *testing.T) {
		client := &mockMailcow{createOK: true}
		svc := NewAliasService(client, nil, zap.NewNop(), nil)

		result, err := svc.CreateAlias(domain.AliasRequest{
			Alias:      "not-an-email",
			RedirectTo: "inbox@example.net",
		}, "", policyConfig())

		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrInvalidEmail)
		assert.Zero(t, client.createCalls)
	})

	t.Run("转发地址缺少@符号同样拒绝", func(t *testing.T) {
		client := &mockMailcow{createOK: true}
		svc := NewAliasService(client, nil, zap.NewNop(), nil)

		_, err := svc.CreateAlias(domain.AliasRequest{
			Alias:      "shop@alias.example.net",
			RedirectTo: "no-at-sign",
		}, "", policyConfig())

		assert.ErrorIs(t, err, ErrInvalidEmail)
		assert.Zero(t, client.createCalls)
	})

	t.Run("域名不在允许列表时错误消息列出允许域名", func(t *testing.T) {
		client := &mockMailcow{createOK: true}
		svc := NewAliasService(client, nil, zap.NewNop(), nil)
		cfg := &config.Config{Domains: []string{"example.com"}}

		_, err := svc.CreateAlias(domain.AliasRequest{
			Alias:      "user@notallowed.org",
			RedirectTo: "inbox@example.net",
		}, "", cfg)

		var domErr *DomainNotAllowedError
		require.ErrorAs(t, err, &domErr)
		assert.Contains(t, err.Error(), "example.com")
		assert.Zero(t, client.createCalls)
	})

	t.Run("转发地址域名不受策略约束", func(t *testing.T) {
		client := &mockMailcow{createOK: true, createMsg: "Alias created successfully"}
		svc := NewAliasService(client, nil, zap.NewNop(), nil)

		result, err := svc.CreateAlias(domain.AliasRequest{
			Alias:      "shop@alias.example.net",
			RedirectTo: "inbox@anywhere.org",
		}, "", policyConfig())

		require.NoError(t, err)
		assert.True(t, result.Success)
	})

	t.Run("默认不检查存在性", func(t *testing.T) {
		client := &mockMailcow{createOK: true, createMsg: "Alias created successfully", exists: true}
		svc := NewAliasService(client, nil, zap.NewNop(), nil)

		result, err := svc.CreateAlias(domain.AliasRequest{
			Alias:      "shop@alias.example.net",
			RedirectTo: "inbox@example.net",
		}, "", policyConfig())

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Zero(t, client.existsCalls)
	})

	t.Run("启用存在性检查时已存在的别名被拒绝", func(t *testing.T) {
		client := &mockMailcow{createOK: true, exists: true}
		svc := NewAliasService(client, nil, zap.NewNop(), nil)
		cfg := policyConfig()
		cfg.CheckExisting = true

		result, err := svc.CreateAlias(domain.AliasRequest{
			Alias:      "shop@alias.example.net",
			RedirectTo: "inbox@example.net",
		}, "", cfg)

		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrAliasExists)
		assert.Equal(t, 1, client.existsCalls)
		assert.Zero(t, client.createCalls)
	})

	t.Run("活动日志写入失败不影响成功结果", func(t *testing.T) {
		client := &mockMailcow{createOK: true, createMsg: "Alias created successfully"}
		recorder := &mockRecorder{err: errors.New("disk full")}
		svc := NewAliasService(client, recorder, zap.NewNop(), nil)

		result, err := svc.CreateAlias(domain.AliasRequest{
			Alias:      "shop@alias.example.net",
			RedirectTo: "inbox@example.net",
		}, "", policyConfig())

		require.NoError(t, err)
		assert.True(t, result.Success)
	})
}
