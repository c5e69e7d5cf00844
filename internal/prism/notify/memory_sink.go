package notify

import (
	"context"
	"errors"
	"sync"
)

// MemorySink records prompts in memory.
type MemorySink struct {
	mu        sync.Mutex
	posted    []Prompt
	dismissed []int
	err       error
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

// FailWith makes later Posts return err; nil restores normal behavior.
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *MemorySink) Post(_ context.Context, p Prompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.posted = append(s.posted, p)
	return nil
}

func (s *MemorySink) Dismiss(_ context.Context, notificationID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if notificationID <= 0 {
		return errors.New("invalid notification id")
	}
	s.dismissed = append(s.dismissed, notificationID)
	return nil
}

func (s *MemorySink) Posted() []Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Prompt(nil), s.posted...)
}

func (s *MemorySink) Dismissed() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.dismissed...)
}
