// Package cache keeps recently answered questions so repeated lookups
// inside their TTL window never touch the upstream.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/miekg/dns"
)

const capacity = 1024

// Key identifies a question independent of the transaction id, so
// repeated queries with fresh ids share one entry.
type Key struct {
	Name   string
	Qtype  uint16
	Qclass uint16
}

type value struct {
	message  *dns.Msg
	inserted time.Time
	ttl      time.Duration
}

// Cache is a bounded LRU of answered questions shared by every
// listener goroutine. The mutex guards map mutation only and is never
// held across network I/O.
type Cache struct {
	mu  sync.Mutex
	lru *lru.LRU[Key, *value]
	now func() time.Time
}

func New() *Cache {
	l, err := lru.NewLRU[Key, *value](capacity, nil)
	if err != nil {
		// NewLRU only fails on a non-positive capacity
		panic(err)
	}

	return &Cache{lru: l, now: time.Now}
}

func keyOf(m *dns.Msg) (Key, bool) {
	if m == nil || len(m.Question) == 0 {
		return Key{}, false
	}

	q := m.Question[0]
	return Key{Name: q.Name, Qtype: q.Qtype, Qclass: q.Qclass}, true
}

// Put stores a response under its first question. Messages without a
// question or without answers are ignored. The entry lives for the
// minimum TTL across all answers, so no record is ever served past its
// own advertised lifetime.
func (c *Cache) Put(message *dns.Msg) {
	key, ok := keyOf(message)
	if !ok || len(message.Answer) == 0 {
		return
	}

	min := message.Answer[0].Header().Ttl
	for _, rr := range message.Answer[1:] {
		if ttl := rr.Header().Ttl; ttl < min {
			min = ttl
		}
	}

	v := &value{
		message: message.Copy(),
		ttl:     time.Duration(min) * time.Second,
	}

	c.mu.Lock()
	v.inserted = c.now()
	c.lru.Add(key, v)
	c.mu.Unlock()
}

// Get returns the cached response for the request's first question, or
// nil. A hit is a private copy stamped with the request's transaction
// id and counts as a fresh access for eviction ordering. An entry at or
// past its TTL is removed on the spot; expiry is enforced here, not by
// a background timer.
func (c *Cache) Get(request *dns.Msg) *dns.Msg {
	key, ok := keyOf(request)
	if !ok {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lru.Len() == 0 {
		return nil
	}

	v, ok := c.lru.Get(key)
	if !ok {
		return nil
	}

	if c.now().Sub(v.inserted) >= v.ttl {
		c.lru.Remove(key)
		return nil
	}

	response := v.message.Copy()
	response.Id = request.Id
	return response
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
