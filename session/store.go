package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/indigo-web/webcore/config"
	"github.com/indigo-web/webcore/internal/timer"
	jsoniter "github.com/json-iterator/go"
	"github.com/patrickmn/go-cache"
	"github.com/robfig/cron/v3"
)

// expiryLen is the size of the little-endian unix timestamp heading every session file.
const expiryLen = 8

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store keeps sessions in files named by their ids. A file consists of the expiry
// timestamp followed by the JSON document. When root is empty, sessions live in memory only.
type Store struct {
	root  string
	cfg   config.Session
	cache *cache.Cache
	cron  *cron.Cron
	log   *slog.Logger
}

func NewStore(root string, cfg config.Session, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}

	cacheTTL := cfg.CacheTTL
	if root == "" {
		// the cache is the only storage, so entries must live as long as the sessions do
		cacheTTL = cfg.TTL
	}

	return &Store{
		root:  root,
		cfg:   cfg,
		cache: cache.New(cacheTTL, time.Minute),
		log:   log.With("component", "session"),
	}
}

// CookieName returns the name of the cookie the session id is carried in.
func (s *Store) CookieName() string {
	return s.cfg.Cookie
}

// Create makes a new unsaved session.
func (s *Store) Create() *Session {
	return &Session{
		ID:      uuid.NewString(),
		Expires: timer.Now().Add(s.cfg.TTL),
		Data:    make(map[string]any),
	}
}

// Load returns the session by its id, looking into the cache first. Every call returns
// a distinct copy, so concurrent requests of a visitor don't share the data.
func (s *Store) Load(id string) (*Session, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	if cached, found := s.cache.Get(id); found {
		sess := cached.(*Session)
		if sess.Expired(timer.Now()) {
			s.cache.Delete(id)
			return nil, ErrExpired
		}

		return sess.Clone(), nil
	}

	if s.root == "" {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	sess, err := decode(id, data)
	if err != nil {
		return nil, err
	}

	if sess.Expired(timer.Now()) {
		return nil, ErrExpired
	}

	s.cache.SetDefault(id, sess.Clone())
	return sess, nil
}

// Save prolongs the session and writes it down.
func (s *Store) Save(sess *Session) error {
	if err := validateID(sess.ID); err != nil {
		return err
	}

	sess.Expires = timer.Now().Add(s.cfg.TTL)
	s.cache.SetDefault(sess.ID, sess.Clone())
	if s.root == "" {
		return nil
	}

	data, err := encode(sess)
	if err != nil {
		return err
	}

	if err = os.MkdirAll(s.root, 0o700); err != nil {
		return err
	}

	tmp := s.path(sess.ID) + ".tmp"
	if err = os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}

	return os.Rename(tmp, s.path(sess.ID))
}

// Delete removes the session both from the cache and the disk.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.cache.Delete(id)
	if s.root == "" {
		return nil
	}

	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

// Sweep removes all the expired sessions, returning how many files were deleted.
func (s *Store) Sweep() (removed int, err error) {
	s.cache.DeleteExpired()
	if s.root == "" {
		return 0, nil
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}

		return 0, err
	}

	now := timer.Now()
	for _, entry := range entries {
		if entry.IsDir() || validateID(entry.Name()) != nil {
			continue
		}

		expires, err := readExpiry(s.path(entry.Name()))
		if err != nil || expires.After(now) {
			continue
		}

		if err = os.Remove(s.path(entry.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}

// Start schedules periodic sweeping.
func (s *Store) Start() error {
	if s.cron != nil {
		return nil
	}

	s.cron = cron.New(cron.WithSeconds())
	_, err := s.cron.AddFunc(s.cfg.Sweep, func() {
		removed, err := s.Sweep()
		if err != nil {
			s.log.Error("sweeping expired sessions", "err", err)
			return
		}

		s.log.Debug("expired sessions are swept", "removed", removed)
	})
	if err != nil {
		return fmt.Errorf("session sweep schedule: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the sweeper, waiting for the running sweep to complete.
func (s *Store) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.cron = nil
	}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.root, id)
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil || len(id) != 36 {
		return ErrBadID
	}

	return nil
}

func encode(sess *Session) ([]byte, error) {
	doc, err := json.Marshal(sess.Data)
	if err != nil {
		return nil, err
	}

	data := binary.LittleEndian.AppendUint64(make([]byte, 0, expiryLen+len(doc)), uint64(sess.Expires.Unix()))
	return append(data, doc...), nil
}

func decode(id string, data []byte) (*Session, error) {
	if len(data) < expiryLen {
		return nil, ErrCorrupt
	}

	sess := &Session{
		ID:      id,
		Expires: time.Unix(int64(binary.LittleEndian.Uint64(data)), 0),
	}
	if err := json.Unmarshal(data[expiryLen:], &sess.Data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return sess, nil
}

func readExpiry(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	var header [expiryLen]byte
	if _, err = f.ReadAt(header[:], 0); err != nil {
		return time.Time{}, err
	}

	return time.Unix(int64(binary.LittleEndian.Uint64(header[:])), 0), nil
}
