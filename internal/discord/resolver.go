// Package discord binds the pipeline to a Discord gateway session: voice
// join/leave, SSRC to user mapping, opus receive and send, and the slash
// command surface.
package discord

import (
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// cacheTTL controls how long a resolved name stays valid.
var cacheTTL = 5 * time.Minute

type cacheEntry struct {
	val    string
	expiry time.Time
}

// Resolver turns Discord IDs into human names, caching REST lookups so the
// hot path (a speaking update per turn) stays off the API.
type Resolver struct {
	s  *discordgo.Session
	mu sync.Mutex

	userCache    map[string]cacheEntry
	channelCache map[string]cacheEntry
}

func NewResolver(s *discordgo.Session) *Resolver {
	return &Resolver{
		s:            s,
		userCache:    make(map[string]cacheEntry),
		channelCache: make(map[string]cacheEntry),
	}
}

func (r *Resolver) lookup(m map[string]cacheEntry, id string) (string, bool) {
	if e, ok := m[id]; ok {
		if time.Now().Before(e.expiry) {
			return e.val, true
		}
		delete(m, id)
	}
	return "", false
}

func (r *Resolver) store(m map[string]cacheEntry, id, val string) {
	m[id] = cacheEntry{val: val, expiry: time.Now().Add(cacheTTL)}
}

// DisplayName resolves the name a user goes by in the guild, preferring
// their nickname and falling back to their account username, then the raw
// ID if every lookup fails.
func (r *Resolver) DisplayName(guildID, userID string) string {
	if r.s == nil || userID == "" {
		return userID
	}
	r.mu.Lock()
	if v, ok := r.lookup(r.userCache, userID); ok {
		r.mu.Unlock()
		return v
	}
	r.mu.Unlock()

	name := ""
	if guildID != "" && r.s.State != nil {
		if m, err := r.s.State.Member(guildID, userID); err == nil && m != nil {
			if m.Nick != "" {
				name = m.Nick
			} else if m.User != nil {
				name = m.User.Username
			}
		}
	}
	if name == "" {
		if u, err := r.s.User(userID); err == nil && u != nil {
			name = u.Username
		}
	}
	if name == "" {
		return userID
	}
	r.mu.Lock()
	r.store(r.userCache, userID, name)
	r.mu.Unlock()
	return name
}

// ChannelName resolves a channel's name, consulting session state before
// the REST API.
func (r *Resolver) ChannelName(channelID string) string {
	if r.s == nil || channelID == "" {
		return ""
	}
	r.mu.Lock()
	if v, ok := r.lookup(r.channelCache, channelID); ok {
		r.mu.Unlock()
		return v
	}
	r.mu.Unlock()

	name := ""
	if r.s.State != nil {
		if c, err := r.s.State.Channel(channelID); err == nil && c != nil {
			name = c.Name
		}
	}
	if name == "" {
		if c, err := r.s.Channel(channelID); err == nil && c != nil {
			name = c.Name
		}
	}
	if name == "" {
		return ""
	}
	r.mu.Lock()
	r.store(r.channelCache, channelID, name)
	r.mu.Unlock()
	return name
}
