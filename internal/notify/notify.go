// Package notify delivers the differences between successive resolved
// configurations to subscribers.
package notify

import (
	"sort"
	"strings"
	"sync"

	"github.com/dshills/stratum/internal/emit"
	"github.com/dshills/stratum/internal/value"
)

// ChangeType is the kind of difference at a path.
type ChangeType int

const (
	// ChangeAdded means the path is resolved only in the new configuration.
	ChangeAdded ChangeType = iota

	// ChangeModified means the path's value differs.
	ChangeModified

	// ChangeRemoved means the path is resolved only in the old configuration.
	ChangeRemoved

	// ChangeReload marks a new configuration with no path differences.
	ChangeReload
)

// String returns the change type name.
func (c ChangeType) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	case ChangeReload:
		return "reload"
	default:
		return "unknown"
	}
}

// Change is one difference between two evaluations.
type Change struct {
	// Path is the option path. Empty for reload events.
	Path string

	Type ChangeType

	// OldValue is nil for additions.
	OldValue any

	// NewValue is nil for removals.
	NewValue any

	// RunID identifies the evaluation that produced the new value.
	RunID string
}

// Diff returns the changes from prev to next ordered by path. A nil prev
// reports every path of next as added.
func Diff(prev, next *emit.ResolvedConfig) []Change {
	var oldTree, newTree value.Tree
	runID := ""
	if prev != nil {
		oldTree = prev.Tree()
	}
	if next != nil {
		newTree = next.Tree()
		runID = next.RunID()
	}

	var changes []Change
	for _, p := range oldTree.ChangedPaths(newTree) {
		ov, hadOld := oldTree.Lookup(p)
		nv, hasNew := newTree.Lookup(p)
		c := Change{Path: p, OldValue: ov, NewValue: nv, RunID: runID}
		switch {
		case !hadOld:
			c.Type = ChangeAdded
		case !hasNew:
			c.Type = ChangeRemoved
		default:
			c.Type = ChangeModified
		}
		changes = append(changes, c)
	}
	return changes
}

// Observer is called for each delivered change.
type Observer func(change Change)

// Subscription is an active observer registration.
type Subscription struct {
	id       uint64
	notifier *Notifier
}

// Unsubscribe removes the observer. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

type subscriber struct {
	prefix   string
	observer Observer
}

// Notifier fans changes out to subscribers. Delivery is synchronous and in
// subscription order. Notifier is safe for concurrent use.
type Notifier struct {
	mu          sync.RWMutex
	subscribers map[uint64]subscriber
	nextID      uint64
	current     *emit.ResolvedConfig
	closed      bool
}

// New creates a notifier.
func New() *Notifier {
	return &Notifier{subscribers: make(map[uint64]subscriber)}
}

// Subscribe registers an observer for every change.
func (n *Notifier) Subscribe(observer Observer) *Subscription {
	return n.SubscribePath("", observer)
}

// SubscribePath registers an observer for changes at prefix or below it.
// "networking" receives "networking.hostName". Reload events reach every
// subscriber.
func (n *Notifier) SubscribePath(prefix string, observer Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.subscribers[id] = subscriber{prefix: prefix, observer: observer}
	return &Subscription{id: id, notifier: n}
}

// Publish replaces the current configuration with cfg and delivers the
// differences. It returns them as well. When nothing differs, subscribers
// receive a single reload event and the returned slice is empty.
func (n *Notifier) Publish(cfg *emit.ResolvedConfig) []Change {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	old := n.current
	n.current = cfg
	n.mu.Unlock()

	changes := Diff(old, cfg)
	if len(changes) == 0 {
		runID := ""
		if cfg != nil {
			runID = cfg.RunID()
		}
		n.Notify(Change{Type: ChangeReload, RunID: runID})
		return changes
	}
	for _, c := range changes {
		n.Notify(c)
	}
	return changes
}

// Current returns the most recently published configuration.
func (n *Notifier) Current() *emit.ResolvedConfig {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.current
}

// Notify delivers one change to matching observers.
func (n *Notifier) Notify(change Change) {
	n.mu.RLock()
	if n.closed {
		n.mu.RUnlock()
		return
	}
	ids := make([]uint64, 0, len(n.subscribers))
	for id, s := range n.subscribers {
		if change.Path == "" || matches(s.prefix, change.Path) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	observers := make([]Observer, len(ids))
	for i, id := range ids {
		observers[i] = n.subscribers[id].observer
	}
	n.mu.RUnlock()

	// Observers run outside the lock so they may subscribe or unsubscribe.
	for _, obs := range observers {
		obs(change)
	}
}

// Close stops delivery. It is safe to call Close multiple times.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	n.subscribers = make(map[uint64]subscriber)
}

func (n *Notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subscribers, id)
}

// matches reports whether path is prefix or lies below it.
func matches(prefix, path string) bool {
	if prefix == "" || prefix == path {
		return true
	}
	return strings.HasPrefix(path, prefix) && path[len(prefix)] == '.'
}
