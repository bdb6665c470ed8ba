package threads

import (
	"context"
	"errors"
	"time"
)

// OpRecorder 记录存储操作，metrics.Collector 实现了它
type OpRecorder interface {
	RecordThreadOp(operation string, err error, duration time.Duration)
}

// instrumentedStore 为每次操作计时并上报
type instrumentedStore struct {
	Store
	rec OpRecorder
}

// Instrument wraps s so that every operation is reported to rec.
// ErrNotFound is reported as success since it is an expected answer.
func Instrument(s Store, rec OpRecorder) Store {
	if rec == nil {
		return s
	}
	return &instrumentedStore{Store: s, rec: rec}
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	s.rec.RecordThreadOp(op, err, time.Since(start))
}

func (s *instrumentedStore) Save(ctx context.Context, thread *Thread) error {
	start := time.Now()
	err := s.Store.Save(ctx, thread)
	s.observe("save", start, err)
	return err
}

func (s *instrumentedStore) Get(ctx context.Context, id string) (*Thread, error) {
	start := time.Now()
	thread, err := s.Store.Get(ctx, id)
	s.observe("get", start, err)
	return thread, err
}

func (s *instrumentedStore) List(ctx context.Context) ([]Summary, error) {
	start := time.Now()
	items, err := s.Store.List(ctx)
	s.observe("list", start, err)
	return items, err
}

func (s *instrumentedStore) Delete(ctx context.Context, id string) error {
	start := time.Now()
	err := s.Store.Delete(ctx, id)
	s.observe("delete", start, err)
	return err
}
