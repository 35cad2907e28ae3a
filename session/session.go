// Package session persists visitor sessions as files under a site's session root, keeping
// the recently used ones cached in memory.
package session

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
	ErrBadID    = errors.New("malformed session id")
	ErrCorrupt  = errors.New("session file is corrupted")
)

// Session is a visitor's document. The data must consist of JSON-serializable values only.
type Session struct {
	ID      string
	Expires time.Time
	Data    map[string]any
}

func (s *Session) Get(key string) (value any, found bool) {
	value, found = s.Data[key]
	return value, found
}

func (s *Session) Set(key string, value any) *Session {
	if s.Data == nil {
		s.Data = make(map[string]any)
	}

	s.Data[key] = value
	return s
}

func (s *Session) Delete(key string) *Session {
	delete(s.Data, key)
	return s
}

// Clone returns a deep copy of the session, so the copies may be modified independently.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Data = cloneValue(s.Data).(map[string]any)
	return &clone
}

// cloneValue copies JSON containers recursively. Other values are considered immutable.
func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		if v == nil {
			return v
		}

		copied := make(map[string]any, len(v))
		for key, elem := range v {
			copied[key] = cloneValue(elem)
		}

		return copied
	case []any:
		if v == nil {
			return v
		}

		copied := make([]any, len(v))
		for i, elem := range v {
			copied[i] = cloneValue(elem)
		}

		return copied
	default:
		return value
	}
}

// Expired tells whether the session is no longer valid at the moment.
func (s *Session) Expired(now time.Time) bool {
	return !s.Expires.After(now)
}
