package cache

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/any-hub/swcache/internal/fetch"
)

// NewFileStorage 以 basePath 为根目录构建磁盘缓存，布局：
//
//	<basePath>/<store>/<sha1(key)>.body   # 响应正文
//	<basePath>/<store>/<sha1(key)>.meta   # 状态码、头部、原始 key（JSON）
func NewFileStorage(basePath string) (Storage, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStorage{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStorage 通过 entryLock 避免同一条目并发写入，storeMu 保证整库删除与写入互斥。
type fileStorage struct {
	basePath string

	storeMu sync.RWMutex

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

type fileMeta struct {
	Key      string      `json:"key"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	URL      string      `json:"url"`
	StoredAt time.Time   `json:"stored_at"`
}

func (s *fileStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	s.storeMu.RLock()
	defer s.storeMu.RUnlock()
	if err := os.MkdirAll(s.storeDir(name), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{parent: s, name: name}, nil
}

func (s *fileStorage) lookup(ctx context.Context, name string) (Store, bool, error) {
	exists, err := s.Has(ctx, name)
	if err != nil || !exists {
		return nil, false, err
	}
	return &fileStore{parent: s, name: name}, true, nil
}

func (s *fileStorage) Has(ctx context.Context, name string) (bool, error) {
	if err := validateStoreName(name); err != nil {
		return false, nil
	}
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	info, err := os.Stat(s.storeDir(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (s *fileStorage) Delete(ctx context.Context, name string) (bool, error) {
	exists, err := s.Has(ctx, name)
	if err != nil || !exists {
		return false, err
	}
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	if err := os.RemoveAll(s.storeDir(name)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStorage) Names(ctx context.Context) ([]string, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *fileStorage) Close() error { return nil }

func (s *fileStorage) storeDir(name string) string {
	return filepath.Join(s.basePath, name)
}

func (s *fileStorage) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

type fileStore struct {
	parent *fileStorage
	name   string
}

func (s *fileStore) Name() string { return s.name }

func (s *fileStore) Match(ctx context.Context, key string) (*Entry, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	base := s.entryPath(key)

	rawMeta, err := os.ReadFile(base + ".meta")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var meta fileMeta
	if err := json.Unmarshal(rawMeta, &meta); err != nil {
		return nil, fmt.Errorf("decode cache meta: %w", err)
	}

	body, err := os.ReadFile(base + ".body")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	header := meta.Header
	if header == nil {
		header = http.Header{}
	}
	return &Entry{
		Store: s.name,
		Key:   key,
		Response: &fetch.Response{
			Status:   meta.Status,
			Header:   header,
			Body:     body,
			URL:      meta.URL,
			StoredAt: meta.StoredAt,
		},
	}, nil
}

func (s *fileStore) Put(ctx context.Context, key string, resp *fetch.Response) error {
	if resp == nil {
		return errors.New("nil response")
	}
	s.parent.storeMu.RLock()
	defer s.parent.storeMu.RUnlock()

	unlock := s.parent.lockEntry(s.name + "::" + key)
	defer unlock()

	dir := s.parent.storeDir(s.name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(fileMeta{
		Key:      key,
		Status:   resp.Status,
		Header:   resp.Header,
		URL:      resp.URL,
		StoredAt: storedAt,
	})
	if err != nil {
		return err
	}

	base := s.entryPath(key)
	// 正文先落盘，meta 最后 rename，读者只有看到 meta 才认为条目存在。
	if err := writeAtomic(ctx, base+".body", bytes.NewReader(resp.Body)); err != nil {
		return err
	}
	return writeAtomic(ctx, base+".meta", bytes.NewReader(meta))
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	unlock := s.parent.lockEntry(s.name + "::" + key)
	defer unlock()

	base := s.entryPath(key)
	for _, suffix := range []string{".meta", ".body"} {
		if err := os.Remove(base + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *fileStore) Keys(ctx context.Context) ([]string, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.parent.storeDir(s.name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.parent.storeDir(s.name), entry.Name()))
		if err != nil {
			continue
		}
		var meta fileMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			continue
		}
		keys = append(keys, meta.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fileStore) entryPath(key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(s.parent.storeDir(s.name), hex.EncodeToString(sum[:]))
}

// writeAtomic 通过临时文件 + rename 保证写入原子性，失败时清理临时文件。
func writeAtomic(ctx context.Context, target string, body io.Reader) error {
	tempFile, err := os.CreateTemp(filepath.Dir(target), ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, target); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := checkContext(ctx); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
