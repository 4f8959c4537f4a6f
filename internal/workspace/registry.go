package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitscribe/pkg/logging"
)

// Sentinel errors returned by registry lookups.
var (
	// ErrSessionNotFound means the session id is unknown or its workspace
	// directory no longer exists on disk.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidUserKey means the user key cannot safely form a directory
	// name.
	ErrInvalidUserKey = errors.New("invalid user key")
)

const (
	sessionsDirName  = ".sessions"
	sessionsFileName = "sessions.json"
)

// Registry creates, persists, and validates per-user workspaces. It is the
// only component that creates or deletes workspace directories.
//
// All state is guarded by a single mutex: the backing registry file is
// rewritten wholesale on every mutation and is not safe for multiple
// writers. Persistence failures are logged and swallowed; the in-memory map
// stays authoritative for the lifetime of the process.
type Registry struct {
	mu sync.Mutex

	root         string
	sessionsFile string
	sessions     map[string]*Session
}

// NewRegistry opens (or creates) the registry rooted at root. Existing
// session records are reloaded from disk so a restart rediscovers live
// workspaces.
func NewRegistry(root string) (*Registry, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving workspace root: %w", err)
	}
	sessionsDir := filepath.Join(absRoot, sessionsDirName)
	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating sessions directory: %w", err)
	}

	r := &Registry{
		root:         absRoot,
		sessionsFile: filepath.Join(sessionsDir, sessionsFileName),
		sessions:     make(map[string]*Session),
	}
	r.load()
	return r, nil
}

// Root returns the absolute workspace root directory.
func (r *Registry) Root() string {
	return r.root
}

// Create allocates a session for userKey and creates its workspace
// directory. At most one session exists per user key: without cleanOld an
// existing session is returned as-is, with cleanOld it is deleted and
// replaced. An empty userKey gets the fresh session id as its key.
func (r *Registry) Create(userKey string, cleanOld bool) (string, string, error) {
	id := uuid.NewString()
	if userKey == "" {
		userKey = id
	}
	if !ValidUserKey(userKey) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidUserKey, userKey)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if oldID, old, ok := r.sessionForUserLocked(userKey); ok {
		if !cleanOld {
			// Same user, same workspace: hand back the existing session
			// instead of a second record over the same directory.
			old.LastAccess = time.Now()
			r.save()
			return oldID, old.Path, nil
		}
		logging.Info("Sessions", "Cleaning previous session for user %s", logging.TruncateID(userKey))
		r.deleteLocked(oldID)
	}

	path := filepath.Join(r.root, "user_"+userKey)
	now := time.Now()
	r.sessions[id] = &Session{
		UserKey:    userKey,
		Path:       path,
		CreatedAt:  now,
		LastAccess: now,
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		delete(r.sessions, id)
		return "", "", fmt.Errorf("creating workspace directory: %w", err)
	}
	r.save()

	logging.Info("Sessions", "Created session %s for user %s",
		logging.TruncateID(id), logging.TruncateID(userKey))
	return id, path, nil
}

// Resolve returns the workspace path for a session and bumps its
// last-access timestamp. A session whose directory has vanished (external
// cleanup, tampering) is treated as not found so callers re-create rather
// than operate on a ghost path.
func (r *Registry) Resolve(id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return "", ErrSessionNotFound
	}
	if _, err := os.Stat(s.Path); err != nil {
		logging.Warn("Sessions", "Workspace directory missing for session %s: %s",
			logging.TruncateID(id), s.Path)
		return "", ErrSessionNotFound
	}

	s.LastAccess = time.Now()
	r.save()
	return s.Path, nil
}

// Get returns a copy of the session record without touching last-access.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// SessionForUser returns the live session owned by userKey, if any.
func (r *Registry) SessionForUser(userKey string) (string, Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, s, ok := r.sessionForUserLocked(userKey)
	if !ok {
		return "", Session{}, false
	}
	return id, *s, true
}

func (r *Registry) sessionForUserLocked(userKey string) (string, *Session, bool) {
	for id, s := range r.sessions {
		if s.UserKey == userKey {
			return id, s, true
		}
	}
	return "", nil, false
}

// Delete removes the session's workspace directory and its record. It is
// idempotent: a second delete of the same id returns false. Directory
// removal is best-effort; a partially removed tree is still unregistered.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(id)
}

func (r *Registry) deleteLocked(id string) bool {
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	if err := os.RemoveAll(s.Path); err != nil {
		logging.Warn("Sessions", "Failed to remove workspace %s: %v", s.Path, err)
	}
	delete(r.sessions, id)
	r.save()
	logging.Info("Sessions", "Deleted session %s (user %s)",
		logging.TruncateID(id), logging.TruncateID(s.UserKey))
	return true
}

// UpdateRemote sets the git remote URL for a session.
func (r *Registry) UpdateRemote(id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.RemoteURL = url
	r.save()
	return nil
}

// MarkInitialized records that the workspace has completed git
// initialization.
func (r *Registry) MarkInitialized(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	s.Initialized = true
	r.save()
	return nil
}

// All returns a snapshot of every session record keyed by id.
func (r *Registry) All() map[string]Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Session, len(r.sessions))
	for id, s := range r.sessions {
		out[id] = *s
	}
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ActiveCount returns how many sessions were accessed within window.
func (r *Registry) ActiveCount(window time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-window)
	n := 0
	for _, s := range r.sessions {
		if s.LastAccess.After(cutoff) {
			n++
		}
	}
	return n
}

// CleanupExpired deletes every session whose last access is older than
// maxAge and returns how many were removed.
func (r *Registry) CleanupExpired(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	var expired []string
	for id, s := range r.sessions {
		if s.LastAccess.Before(cutoff) {
			expired = append(expired, id)
		}
	}

	removed := 0
	for _, id := range expired {
		if r.deleteLocked(id) {
			removed++
		}
	}
	if removed > 0 {
		logging.Info("Sessions", "Removed %d expired sessions", removed)
	}
	return removed
}

// CleanupInvalid drops records whose workspace directory no longer exists.
// The directory is already gone, so only the record is removed.
func (r *Registry) CleanupInvalid() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if _, err := os.Stat(s.Path); err != nil {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.save()
		logging.Info("Sessions", "Removed %d sessions with missing directories", removed)
	}
	return removed
}

// CleanupAll deletes every session and its workspace.
func (r *Registry) CleanupAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id := range r.sessions {
		if r.deleteLocked(id) {
			removed++
		}
	}
	return removed
}

// TotalDiskUsage returns the byte total across all session workspaces.
func (r *Registry) TotalDiskUsage() int64 {
	r.mu.Lock()
	paths := make([]string, 0, len(r.sessions))
	for _, s := range r.sessions {
		paths = append(paths, s.Path)
	}
	r.mu.Unlock()

	var total int64
	for _, p := range paths {
		total += dirSize(p)
	}
	return total
}

// CleanupDiskSpace evicts least-recently-accessed sessions until total
// workspace usage drops to maxBytes or no sessions remain. Returns the
// number of sessions evicted.
func (r *Registry) CleanupDiskSpace(maxBytes int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	usage := r.totalDiskUsageLocked()
	if usage <= maxBytes {
		return 0
	}
	logging.Info("Sessions", "Disk usage %d bytes exceeds ceiling %d bytes, evicting", usage, maxBytes)

	type entry struct {
		id         string
		lastAccess time.Time
	}
	order := make([]entry, 0, len(r.sessions))
	for id, s := range r.sessions {
		order = append(order, entry{id, s.LastAccess})
	}
	sort.Slice(order, func(i, j int) bool {
		return order[i].lastAccess.Before(order[j].lastAccess)
	})

	removed := 0
	for _, e := range order {
		if r.totalDiskUsageLocked() <= maxBytes {
			break
		}
		if r.deleteLocked(e.id) {
			removed++
		}
	}
	logging.Info("Sessions", "Evicted %d sessions to reclaim disk space", removed)
	return removed
}

func (r *Registry) totalDiskUsageLocked() int64 {
	var total int64
	for _, s := range r.sessions {
		total += dirSize(s.Path)
	}
	return total
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // tolerate races with concurrent deletion
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}

// load reads the registry file. A missing or corrupt file starts the
// registry empty; sessions on disk without records are picked up again when
// their users reconnect.
func (r *Registry) load() {
	data, err := os.ReadFile(r.sessionsFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Error("Sessions", err, "Failed to read session registry")
		}
		return
	}
	if err := json.Unmarshal(data, &r.sessions); err != nil {
		logging.Error("Sessions", err, "Failed to parse session registry, starting empty")
		r.sessions = make(map[string]*Session)
		return
	}
	logging.Info("Sessions", "Loaded %d sessions from registry", len(r.sessions))
}

// save rewrites the registry file wholesale. Failures are logged and
// swallowed: durability is best-effort, in-memory state stays authoritative.
func (r *Registry) save() {
	data, err := json.MarshalIndent(r.sessions, "", "  ")
	if err != nil {
		logging.Error("Sessions", err, "Failed to encode session registry")
		return
	}
	if err := os.WriteFile(r.sessionsFile, data, 0o644); err != nil {
		logging.Error("Sessions", err, "Failed to write session registry")
	}
}
