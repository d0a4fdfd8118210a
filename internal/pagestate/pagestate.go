// Package pagestate keeps per-user pagination cursors for the paged views.
// State here is a cache: losing an entry is safe, handlers re-query the
// engine or the history store and treat the callback value as the page.
package pagestate

import (
	"sync"
	"time"

	"github.com/dnslin/aria2-tg-bot/internal/aria2"
)

// View identifies a paged view.
type View string

const (
	ViewHistory View = "history"
	ViewSearch  View = "search"
	ViewStatus  View = "status"
)

// DefaultTTL is how long a cursor stays valid without being refreshed.
const DefaultTTL = 30 * time.Minute

// Cursor is one user's position in a paged view.
type Cursor struct {
	Page       int
	TotalPages int
	Keyword    string           // search view only
	Snapshot   []aria2.Snapshot // status view: the listing being paged
}

type entry struct {
	cursor  Cursor
	touched time.Time
}

type key struct {
	view View
	user int64
}

// Registry is a TTL-bounded map of cursors. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[key]entry
	ttl     time.Duration
	now     func() time.Time
}

// New creates a Registry with the given TTL; ttl <= 0 uses DefaultTTL.
func New(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		entries: make(map[key]entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Put stores the cursor for (view, user), clamping page and totalPages to 1.
func (r *Registry) Put(view View, userID int64, c Cursor) {
	if c.Page < 1 {
		c.Page = 1
	}
	if c.TotalPages < 1 {
		c.TotalPages = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key{view, userID}] = entry{cursor: c, touched: r.now()}
}

// Get returns the cursor for (view, user). Expired entries are dropped
// lazily here.
func (r *Registry) Get(view View, userID int64) (Cursor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{view, userID}
	e, ok := r.entries[k]
	if !ok {
		return Cursor{}, false
	}
	if r.now().Sub(e.touched) > r.ttl {
		delete(r.entries, k)
		return Cursor{}, false
	}
	return e.cursor, true
}

// Drop removes the cursor for (view, user).
func (r *Registry) Drop(view View, userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key{view, userID})
}

// DropAll removes every cursor belonging to user.
func (r *Registry) DropAll(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.entries {
		if k.user == userID {
			delete(r.entries, k)
		}
	}
}
