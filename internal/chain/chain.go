// Package chain holds an ordered list of tagged gin handlers that can be
// mutated while a server is running.
//
// Gin fixes its middleware at startup, so the chain is mounted as a single
// gin middleware (Handler) that dispatches to whatever entries are installed
// at the time a request arrives.
package chain

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin"
)

// Entry is one stage of the chain. A handler that fully serves a request must
// abort the gin context; otherwise the request moves on to the next entry.
// Entry handlers must not call c.Next.
type Entry struct {
	Tag     string
	Name    string
	Handler gin.HandlerFunc
}

type Chain struct {
	mu      sync.RWMutex
	entries []Entry
}

func New() *Chain {
	return &Chain{}
}

// Use appends an entry and returns the chain length after the append.
func (c *Chain) Use(tag, name string, handler gin.HandlerFunc) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.use(tag, name, handler)
}

func (c *Chain) use(tag, name string, handler gin.HandlerFunc) int {
	next := make([]Entry, len(c.entries), len(c.entries)+1)
	copy(next, c.entries)
	c.entries = append(next, Entry{Tag: tag, Name: name, Handler: handler})
	return len(c.entries)
}

// Len returns the current number of entries.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a copy of the installed entries.
func (c *Chain) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Entry(nil), c.entries...)
}

// RemoveRange removes the entries in [start, end).
func (c *Chain) RemoveRange(start, end int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeRange(start, end)
}

func (c *Chain) removeRange(start, end int) error {
	if start < 0 || end > len(c.entries) || start > end {
		return fmt.Errorf("invalid range [%d, %d) for chain of length %d", start, end, len(c.entries))
	}
	next := make([]Entry, 0, len(c.entries)-(end-start))
	next = append(next, c.entries[:start]...)
	next = append(next, c.entries[end:]...)
	c.entries = next
	return nil
}

// RemoveTag removes every entry carrying tag and returns how many were removed.
func (c *Chain) RemoveTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeTag(tag)
}

func (c *Chain) removeTag(tag string) int {
	next := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Tag != tag {
			next = append(next, e)
		}
	}
	removed := len(c.entries) - len(next)
	c.entries = next
	return removed
}

// Update runs fn with exclusive access to the chain. Requests arriving while
// fn runs wait for it and then see the chain as fn left it.
func (c *Chain) Update(fn func(tx *Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fn(&Tx{c: c})
}

// Tx exposes the chain's mutations inside Update.
type Tx struct {
	c *Chain
}

func (tx *Tx) Use(tag, name string, handler gin.HandlerFunc) int {
	return tx.c.use(tag, name, handler)
}

func (tx *Tx) Len() int {
	return len(tx.c.entries)
}

func (tx *Tx) Entries() []Entry {
	return append([]Entry(nil), tx.c.entries...)
}

func (tx *Tx) RemoveRange(start, end int) error {
	return tx.c.removeRange(start, end)
}

func (tx *Tx) RemoveTag(tag string) int {
	return tx.c.removeTag(tag)
}

// Handler returns the gin middleware that runs the chain. Each request runs
// against the entries installed when it arrived.
func (c *Chain) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		c.mu.RLock()
		entries := c.entries
		c.mu.RUnlock()

		for _, e := range entries {
			e.Handler(ctx)
			if ctx.IsAborted() {
				return
			}
		}
		ctx.Next()
	}
}
