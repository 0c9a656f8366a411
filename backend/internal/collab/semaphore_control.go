package collab

import (
	"context"
	"errors"
)

// MaxSemaphore 限制同时在处理中的入站操作数
var MaxSemaphore int = 100

var ErrSemaphoreTimeout = errors.New("SEMAPHORE_ACQUIRE_TIMEOUT")

type SemaphoreControl struct {
	ch chan struct{}
}

func NewSemaphoreControl() *SemaphoreControl {
	return &SemaphoreControl{ch: make(chan struct{}, MaxSemaphore)}
}

// Acquire 在 ctx 截止前占用一个名额，超时返回 ErrSemaphoreTimeout。
func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ErrSemaphoreTimeout
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return errors.New("release without acquire")
	}
}
