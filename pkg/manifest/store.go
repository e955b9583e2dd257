package manifest

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuemby/iot-launcher/pkg/log"
)

// MaxManifestSize is the largest manifest file the store will read.
const MaxManifestSize = 128 * 1024

// Config configures a Store.
type Config struct {
	// CommonDir holds manifests shared across all users.
	CommonDir string
	// UserRootDir holds per-user manifest subtrees, one per username
	// under UserRootDir.
	UserRootDir string
	// Cache enables the (uid, package) manifest cache. When false,
	// Get always reads and parses from disk.
	Cache bool
}

type cacheKey struct {
	uid int
	pkg string
}

// Store loads, validates, and (optionally) caches manifests. It is
// reactor-owned state: every method must be called from the single loop
// thread, and nothing here takes a lock.
type Store struct {
	cfg   Config
	cache map[cacheKey]*Manifest
}

// NewStore creates a Store over cfg.
func NewStore(cfg Config) *Store {
	return &Store{cfg: cfg, cache: make(map[cacheKey]*Manifest)}
}

// Manifest is a loaded, validated manifest package, reference-counted
// while cached.
type Manifest struct {
	store      *Store
	key        cacheKey
	refcount   int
	Path       string
	Status     Status
	Apps       []Application
	classifier *classifier
}

// Get resolves a manifest for pkg, owned by uid (or the common
// directory if uid has no matching per-user manifest). If caching is
// enabled and a manifest is already cached for (uid, pkg), a new
// reference to it is returned; otherwise the file is located, read,
// validated, classified, and — if caching is enabled — cached.
func (s *Store) Get(uid int, pkg string) (*Manifest, error) {
	key := cacheKey{uid: uid, pkg: pkg}
	if s.cfg.Cache {
		if m, ok := s.cache[key]; ok {
			m.refcount++
			return m, nil
		}
	}

	path, err := s.resolve(uid, pkg)
	if err != nil {
		return nil, err
	}

	raw, err := readBounded(path, MaxManifestSize)
	if err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", path, err)
	}

	status, apps, err := Validate(raw, packageNameFromFilename(path))
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		store:      s,
		key:        key,
		refcount:   1,
		Path:       path,
		Status:     status,
		Apps:       apps,
		classifier: buildClassifier(apps),
	}
	if s.cfg.Cache {
		s.cache[key] = m
	}
	log.WithComponent("manifest").Debug().Str("package", pkg).Int("uid", uid).Str("status", status.String()).Msg("loaded manifest")
	return m, nil
}

// resolve locates pkg's manifest file, trying the per-user directory
// before the common directory; the first readable match wins.
func (s *Store) resolve(uid int, pkg string) (string, error) {
	filename := pkg + ".manifest"

	if s.cfg.UserRootDir != "" {
		if uname, err := usernameOf(uid); err == nil {
			userPath := filepath.Join(s.cfg.UserRootDir, uname, filename)
			if _, err := os.Stat(userPath); err == nil {
				return userPath, nil
			}
		}
	}

	if s.cfg.CommonDir != "" {
		commonPath := filepath.Join(s.cfg.CommonDir, filename)
		if _, err := os.Stat(commonPath); err == nil {
			return commonPath, nil
		}
	}

	return "", fmt.Errorf("manifest: no readable manifest for package %q (uid %d)", pkg, uid)
}

func usernameOf(uid int) (string, error) {
	u, err := user.LookupId(strconv.Itoa(uid))
	if err != nil {
		return "", err
	}
	return u.Username, nil
}

func readBounded(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() > limit {
		return nil, fmt.Errorf("manifest exceeds %d byte limit", limit)
	}
	buf := make([]byte, fi.Size())
	if _, err := f.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// InstalledPackage is one manifest found during Installed's directory
// scan, named for the cache-population behavior of the original
// daemon's iot_manifest_populate_cache.
type InstalledPackage struct {
	Package string
	Status  Status
	Apps    []Application
}

// Installed enumerates every manifest visible to uid: every file under
// CommonDir, plus every file under uid's per-user directory if one
// exists. Unreadable or unparsable files are skipped rather than
// failing the whole scan.
func (s *Store) Installed(uid int) ([]InstalledPackage, error) {
	seen := make(map[string]bool)
	var out []InstalledPackage

	scan := func(dir string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".manifest" {
				continue
			}
			pkg := strings.TrimSuffix(e.Name(), ".manifest")
			if seen[pkg] {
				continue
			}
			seen[pkg] = true
			path := filepath.Join(dir, e.Name())
			raw, err := readBounded(path, MaxManifestSize)
			if err != nil {
				continue
			}
			status, apps, err := Validate(raw, pkg)
			if err != nil {
				continue
			}
			out = append(out, InstalledPackage{Package: pkg, Status: status, Apps: apps})
		}
	}

	if s.cfg.UserRootDir != "" {
		if uname, err := usernameOf(uid); err == nil {
			scan(filepath.Join(s.cfg.UserRootDir, uname))
		}
	}
	if s.cfg.CommonDir != "" {
		scan(s.cfg.CommonDir)
	}
	return out, nil
}

// Classify resolves path to an application and access type using m's
// path classifier.
func (m *Manifest) Classify(path string) (app string, typ PathType, ok bool) {
	return m.classifier.Classify(path)
}

// Unref drops m's reference count. At zero, m is evicted from its
// store's cache (a no-op in non-caching mode, where every Get returns a
// manifest with a single reference that the caller alone owns).
func (m *Manifest) Unref() {
	m.refcount--
	if m.refcount > 0 {
		return
	}
	if m.store.cfg.Cache {
		delete(m.store.cache, m.key)
	}
}
