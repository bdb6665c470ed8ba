package threads

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors
var (
	ErrNotFound  = errors.New("thread not found")
	ErrInvalidID = errors.New("invalid thread id")
)

const (
	// DefaultModel 未指定模型时写入的占位值
	DefaultModel = "unknown"

	maxIDLength = 128
)

// Thread 一条已保存的会话记录
type Thread struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	CreatedAt string           `json:"created_at"`
	UpdatedAt string           `json:"updated_at"`
	Model     string           `json:"model"`
	Messages  []map[string]any `json:"messages"`
}

// Summary 列表接口返回的会话摘要
type Summary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

// Summary returns the listing view of the thread.
func (t *Thread) Summary() Summary {
	return Summary{ID: t.ID, Name: t.Name, CreatedAt: t.CreatedAt}
}

// SaveRequest 保存会话的输入
type SaveRequest struct {
	Name    string           `json:"name"`
	Data    []map[string]any `json:"data"`
	SavedAt string           `json:"saved_at,omitempty"`
	Model   string           `json:"model,omitempty"`
	ID      string           `json:"id,omitempty"`
}

// Store persists threads. Implementations must be safe for concurrent use.
type Store interface {
	// Save creates or overwrites the thread with the same id.
	Save(ctx context.Context, thread *Thread) error

	// Get returns ErrNotFound when the id is unknown.
	Get(ctx context.Context, id string) (*Thread, error)

	// List returns summaries sorted by created_at, newest first.
	List(ctx context.Context) ([]Summary, error)

	// Delete returns ErrNotFound when the id is unknown.
	Delete(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Close() error
}

// NewThread 根据保存请求构建会话记录
//
// id 缺省为当前 unix 秒；created_at 取 saved_at，缺省为 now；model 缺省为 "unknown"。
func NewThread(req SaveRequest, now time.Time) (*Thread, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = strconv.FormatInt(now.Unix(), 10)
	}
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	stamp := now.UTC().Format(time.RFC3339)
	created := req.SavedAt
	if created == "" {
		created = stamp
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	messages := req.Data
	if messages == nil {
		messages = []map[string]any{}
	}

	return &Thread{
		ID:        id,
		Name:      req.Name,
		CreatedAt: created,
		UpdatedAt: stamp,
		Model:     model,
		Messages:  messages,
	}, nil
}

// ValidateID rejects ids that could escape a store namespace.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidID)
	case len(id) > maxIDLength:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidID, maxIDLength)
	case strings.ContainsAny(id, `/\:`) || strings.Contains(id, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: control character", ErrInvalidID)
		}
	}
	return nil
}

// sortSummaries 按 created_at 倒序，相同时间按 id 倒序
func sortSummaries(items []Summary) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt != items[j].CreatedAt {
			return items[i].CreatedAt > items[j].CreatedAt
		}
		return items[i].ID > items[j].ID
	})
}

// createdScore 将 created_at 转为排序分值，无法解析时返回 0
func createdScore(createdAt string) float64 {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, createdAt); err == nil {
			return float64(t.UnixNano()) / 1e9
		}
	}
	return 0
}
