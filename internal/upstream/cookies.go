package upstream

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	appLog "portalics/internal/log"
)

// CookieStore holds the portal session cookies, loaded from a YAML file of
// name: value pairs. The portal's ASP session cookies expire out of band,
// so the file is watched and re-read on change; requests always see the
// latest snapshot without a restart.
type CookieStore struct {
	path    string
	cookies atomic.Pointer[map[string]string]
}

// LoadCookieStore reads the cookie file at path. A missing file is not an
// error: the bridge can start before cookies exist (e.g. before the first
// -login run) and pick them up once the file appears.
func LoadCookieStore(path string) (*CookieStore, error) {
	s := &CookieStore{path: path}
	empty := map[string]string{}
	s.cookies.Store(&empty)

	if err := s.Reload(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			appLog.Warn("cookie file not found, starting without session cookies", "path", path)
			return s, nil
		}
		return nil, err
	}
	return s, nil
}

// Reload re-reads the cookie file and swaps in the new snapshot.
func (s *CookieStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	cookies := map[string]string{}
	if err := yaml.Unmarshal(data, &cookies); err != nil {
		return err
	}

	s.cookies.Store(&cookies)
	appLog.Info("session cookies loaded", "path", s.path, "count", len(cookies))
	return nil
}

// Header renders the current cookies as a Cookie header value, sorted by
// name so request logs stay stable. Empty when no cookies are loaded.
func (s *CookieStore) Header() string {
	cookies := *s.cookies.Load()
	if len(cookies) == 0 {
		return ""
	}

	names := make([]string, 0, len(cookies))
	for name := range cookies {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(cookies[name])
	}
	return b.String()
}

// Len reports how many cookies are currently loaded.
func (s *CookieStore) Len() int {
	return len(*s.cookies.Load())
}

// Watch reloads the store whenever the cookie file changes. It watches the
// parent directory rather than the file itself so atomic rename-over
// updates (and first-time creation) are caught. Blocks until ctx is done;
// run it in its own goroutine.
func (s *CookieStore) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	appLog.Info("watching cookie file", "path", s.path)

	for {
		select {
		case <-done:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := s.Reload(); err != nil {
				appLog.Error("cookie file reload failed", err, "path", s.path)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			appLog.Error("cookie watcher error", err, "path", s.path)
		}
	}
}

// SaveCookies writes a cookie map to path as YAML with 0600 permissions,
// atomically via temp file + rename. Used by the -login bootstrap.
func SaveCookies(path string, cookies map[string]string) error {
	if path == "" {
		return errors.New("cookie path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cookies)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".portalics-cookies-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
