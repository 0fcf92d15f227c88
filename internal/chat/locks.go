package chat

import (
	"context"
	"sync"
)

// sessionLocks serialises turns per session. Entries are dropped once no
// caller holds or waits on them.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	ch   chan struct{}
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

// lock blocks until the session is free or ctx is done. The returned
// function releases the session.
func (s *sessionLocks) lock(ctx context.Context, session string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[session]
	if !ok {
		l = &sessionLock{ch: make(chan struct{}, 1)}
		s.locks[session] = l
	}
	l.refs++
	s.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			s.release(session, l)
		}, nil
	case <-ctx.Done():
		s.release(session, l)
		return nil, ctx.Err()
	}
}

func (s *sessionLocks) release(session string, l *sessionLock) {
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, session)
	}
	s.mu.Unlock()
}

// len reports the number of tracked sessions.
func (s *sessionLocks) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
