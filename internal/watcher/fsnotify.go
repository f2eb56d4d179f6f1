package watcher

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FSNotify is a Source backed by fsnotify.
type FSNotify struct {
	watcher *fsnotify.Watcher
	events  chan Event
	errors  chan error

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewFSNotify starts an fsnotify source.
func NewFSNotify() (*FSNotify, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	s := &FSNotify{
		watcher: fsw,
		events:  make(chan Event, 100),
		errors:  make(chan error, 10),
		closeCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.loop()
	return s, nil
}

// Add watches dir.
func (s *FSNotify) Add(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrWatcherClosed
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	return s.watcher.Add(abs)
}

// Remove stops watching dir.
func (s *FSNotify) Remove(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrWatcherClosed
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	return s.watcher.Remove(abs)
}

// Events returns translated events.
func (s *FSNotify) Events() <-chan Event { return s.events }

// Errors returns watch errors.
func (s *FSNotify) Errors() <-chan error { return s.errors }

// Close stops the source. It is safe to call more than once.
func (s *FSNotify) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closeCh)
	s.mu.Unlock()

	err := s.watcher.Close()
	s.wg.Wait()
	close(s.events)
	close(s.errors)
	return err
}

func (s *FSNotify) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.closeCh:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			op := translate(ev.Op)
			if op == 0 {
				continue
			}
			select {
			case s.events <- Event{Path: ev.Name, Op: op, Time: time.Now()}:
			case <-s.closeCh:
				return
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			select {
			case s.errors <- err:
			default:
			}
		}
	}
}

// translate maps fsnotify operations, dropping chmod.
func translate(op fsnotify.Op) Op {
	var out Op
	if op.Has(fsnotify.Create) {
		out |= OpCreate
	}
	if op.Has(fsnotify.Write) {
		out |= OpWrite
	}
	if op.Has(fsnotify.Remove) {
		out |= OpRemove
	}
	if op.Has(fsnotify.Rename) {
		out |= OpRename
	}
	return out
}

var _ Source = (*FSNotify)(nil)
