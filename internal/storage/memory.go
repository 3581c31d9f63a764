package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/masgolf/assetsync/internal/model"
)

const defaultMemoryPageSize = 100

type memObject struct {
	body        []byte
	contentType string
	createdAt   time.Time
}

// MemoryHooks inject failures into a MemoryStore. A non-nil error returned
// from a hook aborts the operation with that error.
type MemoryHooks struct {
	List   func(prefix string) error
	Stat   func(path string) error
	Copy   func(src, dst string) error
	Delete func(path string) error
	Upload func(path string) error
}

// MemoryStore is an in-process ObjectStore without native copy. It serves
// dry runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string]memObject
	baseURL  string
	pageSize int
	now      func() time.Time

	Hooks MemoryHooks
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string]memObject),
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		pageSize: defaultMemoryPageSize,
		now:      time.Now,
	}
}

// SetPageSize changes the size of the internal list pages.
func (m *MemoryStore) SetPageSize(n int) {
	if n > 0 {
		m.pageSize = n
	}
}

// Put stores an object unconditionally.
func (m *MemoryStore) Put(path string, body []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = memObject{body: append([]byte(nil), body...), contentType: contentType, createdAt: m.now()}
}

// Paths returns every stored path, sorted.
func (m *MemoryStore) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.objects))
	for p := range m.objects {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (m *MemoryStore) List(ctx context.Context, prefix string, opts ListOptions) ([]model.Asset, error) {
	if m.Hooks.List != nil {
		if err := m.Hooks.List(prefix); err != nil {
			return nil, err
		}
	}

	var assets []model.Asset
	for offset := 0; ; offset += m.pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := m.listPage(prefix, opts.Recursive, m.pageSize, offset)
		assets = append(assets, page...)
		if len(page) < m.pageSize {
			return assets, nil
		}
	}
}

func (m *MemoryStore) listPage(prefix string, recursive bool, limit, offset int) []model.Asset {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dir := strings.TrimSuffix(prefix, "/")
	var keys []string
	for p := range m.objects {
		rel, ok := relativeTo(p, dir)
		if !ok {
			continue
		}
		if !recursive && strings.Contains(rel, "/") {
			continue
		}
		keys = append(keys, p)
	}
	sort.Strings(keys)

	if offset >= len(keys) {
		return nil
	}
	end := min(offset+limit, len(keys))

	page := make([]model.Asset, 0, end-offset)
	for _, k := range keys[offset:end] {
		page = append(page, m.asset(k, m.objects[k]))
	}
	return page
}

func relativeTo(p, dir string) (string, bool) {
	if dir == "" {
		return p, true
	}
	if !strings.HasPrefix(p, dir+"/") {
		return "", false
	}
	return strings.TrimPrefix(p, dir+"/"), true
}

func (m *MemoryStore) Stat(ctx context.Context, path string) (*model.Asset, error) {
	if m.Hooks.Stat != nil {
		if err := m.Hooks.Stat(path); err != nil {
			return nil, err
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, &ObjectNotFoundError{Path: path}
	}
	a := m.asset(path, obj)
	return &a, nil
}

func (m *MemoryStore) Upload(ctx context.Context, path string, body []byte, contentType string, opts UploadOptions) (*model.Asset, error) {
	if m.Hooks.Upload != nil {
		if err := m.Hooks.Upload(path); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[path]; ok && !opts.Upsert {
		return nil, fmt.Errorf("%w: %s", ErrObjectExists, path)
	}
	obj := memObject{body: append([]byte(nil), body...), contentType: contentType, createdAt: m.now()}
	m.objects[path] = obj
	a := m.asset(path, obj)
	return &a, nil
}

func (m *MemoryStore) Download(ctx context.Context, path string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, "", &ObjectNotFoundError{Path: path}
	}
	return append([]byte(nil), obj.body...), obj.contentType, nil
}

// Copy is download followed by upload, as the store has no native copy.
func (m *MemoryStore) Copy(ctx context.Context, src, dst string) error {
	if m.Hooks.Copy != nil {
		if err := m.Hooks.Copy(src, dst); err != nil {
			return err
		}
	}
	body, contentType, err := m.Download(ctx, src)
	if err != nil {
		return err
	}
	_, err = m.Upload(ctx, dst, body, contentType, UploadOptions{Upsert: true})
	return err
}

func (m *MemoryStore) Delete(ctx context.Context, paths []string) []DeleteResult {
	results := make([]DeleteResult, 0, len(paths))
	for _, p := range paths {
		if m.Hooks.Delete != nil {
			if err := m.Hooks.Delete(p); err != nil {
				results = append(results, DeleteResult{Path: p, Err: err})
				continue
			}
		}
		m.mu.Lock()
		delete(m.objects, p)
		m.mu.Unlock()
		results = append(results, DeleteResult{Path: p})
	}
	return results
}

func (m *MemoryStore) PublicURL(path string) string {
	return m.baseURL + "/" + path
}

func (m *MemoryStore) PathFromURL(u string) (string, bool) {
	return pathFromURL(m.baseURL, u)
}

func (m *MemoryStore) asset(path string, obj memObject) model.Asset {
	sum := md5.Sum(obj.body)
	return model.Asset{
		Path:        path,
		PublicURL:   m.PublicURL(path),
		Size:        int64(len(obj.body)),
		ContentType: obj.contentType,
		ETag:        hex.EncodeToString(sum[:]),
		CreatedAt:   obj.createdAt,
	}
}

// pathFromURL strips base and any query string, then unescapes the key.
func pathFromURL(base, u string) (string, bool) {
	if base == "" || !strings.HasPrefix(u, base+"/") {
		return "", false
	}
	rest := strings.TrimPrefix(u, base+"/")
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	p, err := url.PathUnescape(rest)
	if err != nil || p == "" {
		return "", false
	}
	return p, true
}
