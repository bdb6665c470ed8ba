package threads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/BaSui01/llmrelay/internal/database"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// threadRow 数据库中的会话行，messages 以 JSON 文本保存
type threadRow struct {
	ID       string `gorm:"primaryKey;size:128"`
	Name     string `gorm:"size:512"`
	Created  string `gorm:"column:created_at;size:64;index"`
	Updated  string `gorm:"column:updated_at;size:64"`
	Model    string `gorm:"size:256"`
	Messages string `gorm:"type:text"`
}

// TableName 固定表名
func (threadRow) TableName() string { return "threads" }

func rowFromThread(t *Thread) (*threadRow, error) {
	messages, err := json.Marshal(t.Messages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode messages: %w", err)
	}
	return &threadRow{
		ID:       t.ID,
		Name:     t.Name,
		Created:  t.CreatedAt,
		Updated:  t.UpdatedAt,
		Model:    t.Model,
		Messages: string(messages),
	}, nil
}

func (r *threadRow) thread() (*Thread, error) {
	messages := []map[string]any{}
	if r.Messages != "" {
		if err := json.Unmarshal([]byte(r.Messages), &messages); err != nil {
			return nil, fmt.Errorf("failed to decode messages of thread %s: %w", r.ID, err)
		}
	}
	return &Thread{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: r.Created,
		UpdatedAt: r.Updated,
		Model:     r.Model,
		Messages:  messages,
	}, nil
}

// SQLStore 基于 GORM 的会话存储（sqlite / postgres / mysql）
type SQLStore struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

const saveRetries = 3

// NewSQLStore migrates the threads table.
func NewSQLStore(pool *database.PoolManager, logger *zap.Logger) (*SQLStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("database pool cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.DB().AutoMigrate(&threadRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate threads table: %w", err)
	}

	return &SQLStore{
		pool:   pool,
		logger: logger.With(zap.String("component", "thread_store"), zap.String("driver", "sql")),
	}, nil
}

// Save upserts the thread by id.
func (s *SQLStore) Save(ctx context.Context, thread *Thread) error {
	if err := ValidateID(thread.ID); err != nil {
		return err
	}

	row, err := rowFromThread(thread)
	if err != nil {
		return err
	}

	return s.pool.WithTransactionRetry(ctx, saveRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "created_at", "updated_at", "model", "messages"}),
		}).Create(row).Error
	})
}

// Get loads a thread by id.
func (s *SQLStore) Get(ctx context.Context, id string) (*Thread, error) {
	var row threadRow
	err := s.pool.DB().WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.thread()
}

// List returns summaries, newest first.
func (s *SQLStore) List(ctx context.Context) ([]Summary, error) {
	var rows []threadRow
	err := s.pool.DB().WithContext(ctx).
		Select("id", "name", "created_at").
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, Summary{ID: r.ID, Name: r.Name, CreatedAt: r.Created})
	}
	sortSummaries(out)
	return out, nil
}

// Delete removes the thread row.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res := s.pool.DB().WithContext(ctx).Where("id = ?", id).Delete(&threadRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *SQLStore) Close() error {
	return s.pool.Close()
}
