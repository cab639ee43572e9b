package service

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xxxsen/ragsearch/internal/model"
	appErr "github.com/xxxsen/ragsearch/internal/pkg/errors"
)

const (
	maxHistory    = 10
	recentQueries = 3

	PrefSearchType  = "search_type"
	PrefTextWeight  = "text_weight"
	PrefResultCount = "result_count"
)

// Preferences are the per-session search defaults. Zero values mean unset.
type Preferences struct {
	SearchType  model.SearchStrategy `json:"search_type,omitempty"`
	TextWeight  *float64             `json:"text_weight,omitempty"`
	ResultCount int                  `json:"result_count,omitempty"`
}

// Session holds the mutable state of one conversation. All access goes
// through its mutex.
type Session struct {
	ID string

	mu      sync.Mutex
	prefs   Preferences
	history []string
}

func NewSession(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{ID: id}
}

// SetPreference validates and stores one preference. An empty value clears it.
func (s *Session) SetPreference(key, value string) error {
	value = strings.TrimSpace(value)
	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case PrefSearchType:
		strategy := model.SearchStrategy(strings.ToLower(value))
		if value == "" || strategy == "auto" {
			s.prefs.SearchType = ""
			return nil
		}
		if !strategy.Valid() {
			return fmt.Errorf("search_type must be semantic or hybrid: %w", appErr.ErrInvalid)
		}
		s.prefs.SearchType = strategy
	case PrefTextWeight:
		if value == "" {
			s.prefs.TextWeight = nil
			return nil
		}
		w, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("text_weight must be a number: %w", appErr.ErrInvalid)
		}
		w = clampWeight(w)
		s.prefs.TextWeight = &w
	case PrefResultCount:
		if value == "" {
			s.prefs.ResultCount = 0
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("result_count must be an integer: %w", appErr.ErrInvalid)
		}
		s.prefs.ResultCount = max(n, 1)
	default:
		return fmt.Errorf("unknown preference %q: %w", key, appErr.ErrInvalid)
	}
	return nil
}

func (s *Session) Preferences() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.prefs
	if p.TextWeight != nil {
		w := *p.TextWeight
		p.TextWeight = &w
	}
	return p
}

// RecordQuery appends query to the history, keeping the latest entries.
func (s *Session) RecordQuery(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, query)
	if len(s.history) > maxHistory {
		s.history = append([]string(nil), s.history[len(s.history)-maxHistory:]...)
	}
}

func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.history...)
}

type SessionSnapshot struct {
	ID             string      `json:"id"`
	Preferences    Preferences `json:"preferences"`
	RecentSearches []string    `json:"recent_searches"`
	QueryCount     int         `json:"query_count"`
}

func (s *Session) Snapshot() SessionSnapshot {
	history := s.History()
	recent := history
	if len(recent) > recentQueries {
		recent = recent[len(recent)-recentQueries:]
	}
	return SessionSnapshot{
		ID:             s.ID,
		Preferences:    s.Preferences(),
		RecentSearches: recent,
		QueryCount:     len(history),
	}
}

// SessionStore keeps sessions in memory and forgets idle ones.
type SessionStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *Session]
}

func NewSessionStore(size int, idle time.Duration) *SessionStore {
	if size <= 0 {
		size = 1024
	}
	return &SessionStore{cache: expirable.NewLRU[string, *Session](size, nil, idle)}
}

// Get returns the session for id, creating it when missing or expired. A
// new id is generated when id is empty.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != "" {
		if sess, ok := s.cache.Get(id); ok {
			// re-add to refresh the idle timer
			s.cache.Add(id, sess)
			return sess, false
		}
	}
	sess := NewSession(id)
	s.cache.Add(sess.ID, sess)
	return sess, true
}

func (s *SessionStore) Len() int {
	return s.cache.Len()
}
