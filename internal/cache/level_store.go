package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	lvstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/any-hub/swcache/internal/fetch"
)

// 键布局：
//
//	n:<store>                 # 缓存注册表
//	e:<store>\x00<request key> # gob 编码的响应快照
const (
	namePrefix  = "n:"
	entryPrefix = "e:"
)

// NewLevelStorage 在 path 目录下打开（或创建）goleveldb 数据库作为缓存存储。
func NewLevelStorage(path string) (Storage, error) {
	if path == "" {
		return nil, errors.New("storage path required")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &levelStorage{db: db}, nil
}

// NewMemoryStorage 返回基于内存的 goleveldb 存储，进程退出即丢失，适合测试与临时运行。
func NewMemoryStorage() (Storage, error) {
	db, err := leveldb.Open(lvstorage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory leveldb: %w", err)
	}
	return &levelStorage{db: db}, nil
}

// levelStorage 通过 mu 保证删除整个缓存时不会与单条写入交错。
type levelStorage struct {
	db *leveldb.DB
	mu sync.RWMutex
}

type levelRecord struct {
	Status   int
	Header   http.Header
	Body     []byte
	URL      string
	StoredAt int64 // unix nanoseconds
}

func (s *levelStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Put([]byte(namePrefix+name), nil, nil); err != nil {
		return nil, err
	}
	return &levelStore{parent: s, name: name}, nil
}

func (s *levelStorage) lookup(ctx context.Context, name string) (Store, bool, error) {
	if err := validateStoreName(name); err != nil {
		return nil, false, nil
	}
	exists, err := s.Has(ctx, name)
	if err != nil || !exists {
		return nil, false, err
	}
	return &levelStore{parent: s, name: name}, true, nil
}

func (s *levelStorage) Has(ctx context.Context, name string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	return s.db.Has([]byte(namePrefix+name), nil)
}

func (s *levelStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existed, err := s.db.Has([]byte(namePrefix+name), nil)
	if err != nil {
		return false, err
	}

	batch := new(leveldb.Batch)
	batch.Delete([]byte(namePrefix + name))
	it := s.db.NewIterator(util.BytesPrefix(storePrefix(name)), nil)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return false, err
	}
	if err := s.db.Write(batch, nil); err != nil {
		return false, err
	}
	return existed, nil
}

func (s *levelStorage) Names(ctx context.Context) ([]string, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	it := s.db.NewIterator(util.BytesPrefix([]byte(namePrefix)), nil)
	defer it.Release()

	var names []string
	for it.Next() {
		names = append(names, string(bytes.TrimPrefix(it.Key(), []byte(namePrefix))))
	}
	return names, it.Error()
}

func (s *levelStorage) Close() error {
	return s.db.Close()
}

type levelStore struct {
	parent *levelStorage
	name   string
}

func (s *levelStore) Name() string { return s.name }

func (s *levelStore) Match(ctx context.Context, key string) (*Entry, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	raw, err := s.parent.db.Get(entryKey(s.name, key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var rec levelRecord
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	header := rec.Header
	if header == nil {
		header = http.Header{}
	}
	return &Entry{
		Store: s.name,
		Key:   key,
		Response: &fetch.Response{
			Status:   rec.Status,
			Header:   header,
			Body:     rec.Body,
			URL:      rec.URL,
			StoredAt: time.Unix(0, rec.StoredAt).UTC(),
		},
	}, nil
}

func (s *levelStore) Put(ctx context.Context, key string, resp *fetch.Response) error {
	if resp == nil {
		return errors.New("nil response")
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(levelRecord{
		Status:   resp.Status,
		Header:   resp.Header,
		Body:     resp.Body,
		URL:      resp.URL,
		StoredAt: storedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	s.parent.mu.RLock()
	defer s.parent.mu.RUnlock()

	batch := new(leveldb.Batch)
	batch.Put([]byte(namePrefix+s.name), nil)
	batch.Put(entryKey(s.name, key), buf.Bytes())
	return s.parent.db.Write(batch, nil)
}

func (s *levelStore) Delete(ctx context.Context, key string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	s.parent.mu.RLock()
	defer s.parent.mu.RUnlock()
	return s.parent.db.Delete(entryKey(s.name, key), nil)
}

func (s *levelStore) Keys(ctx context.Context) ([]string, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	prefix := storePrefix(s.name)
	it := s.parent.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	var keys []string
	for it.Next() {
		keys = append(keys, string(bytes.TrimPrefix(it.Key(), prefix)))
	}
	return keys, it.Error()
}

func storePrefix(name string) []byte {
	return []byte(entryPrefix + name + "\x00")
}

func entryKey(name, key string) []byte {
	return append(storePrefix(name), key...)
}
