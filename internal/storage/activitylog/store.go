package activitylog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"mailalias/backend/internal/domain"
)

// Store 追加式活动日志存储
//
// 每次成功创建别名追加一行 JSON 到日志文件，条目永不修改或删除。
// 每次写入单独以追加模式打开文件，依赖文件系统的原子追加保证
// 并发写入安全，进程内不持有文件句柄和锁。
type Store struct {
	path string
}

// NewStore 创建活动日志存储，确保所在目录存在
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &Store{path: path}, nil
}

// Path 返回日志文件路径
func (s *Store) Path() string {
	return s.path
}

// Record 追加一条别名创建成功的记录
//
// 自动填充 ID 和时间戳。写入失败由调用方记录日志，
// 绝不向客户端上报——活动日志是尽力而为的。
func (s *Store) Record(alias, redirectTo, user string) error {
	entry := domain.ActivityEntry{
		ID:         uuid.New().String(),
		Timestamp:  time.Now().UTC(),
		Alias:      alias,
		RedirectTo: redirectTo,
		User:       user,
		Status:     "success",
	}
	return s.Append(entry)
}

// Append 将条目序列化为单行 JSON 并追加到日志文件
func (s *Store) Append(entry domain.ActivityEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal activity entry: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open activity log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to append activity entry: %w", err)
	}
	return nil
}

// Entries 读取全部日志条目（用于运维检视和测试）
//
// 无法解析的行被跳过而不是报错，保证部分损坏的日志仍然可读。
func (s *Store) Entries() ([]domain.ActivityEntry, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open activity log: %w", err)
	}
	defer f.Close()

	var entries []domain.ActivityEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry domain.ActivityEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read activity log: %w", err)
	}
	return entries, nil
}
