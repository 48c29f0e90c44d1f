package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/any-hub/swcache/internal/fetch"
)

// Storage 管理全部命名缓存（静态代际缓存 + 动态缓存）。
type Storage interface {
	// Open 打开指定名称的缓存，不存在时创建。
	Open(ctx context.Context, name string) (Store, error)

	// Has 判断缓存是否存在，不会隐式创建。
	Has(ctx context.Context, name string) (bool, error)

	// Delete 删除整个命名缓存及其全部条目，返回删除前是否存在。
	Delete(ctx context.Context, name string) (bool, error)

	// Names 按字典序返回所有缓存名称。
	Names(ctx context.Context) ([]string, error)

	// Close 释放底层资源。
	Close() error
}

// Store 是单个命名缓存，键为请求描述的 Key()。
type Store interface {
	Name() string

	// Match 返回缓存条目，未命中时返回 ErrNotFound。
	Match(ctx context.Context, key string) (*Entry, error)

	// Put 写入（或覆盖）一个条目。同一键重复写入只保留最后一次成功写入。
	Put(ctx context.Context, key string, resp *fetch.Response) error

	// Delete 删除单个条目，条目不存在时不报错。
	Delete(ctx context.Context, key string) error

	// Keys 返回当前缓存中的全部键。
	Keys(ctx context.Context) ([]string, error)
}

// Entry 表示一次缓存命中结果。
type Entry struct {
	Store    string
	Key      string
	Response *fetch.Response
}

// StoredAt 返回条目写入时间。
func (e *Entry) StoredAt() time.Time {
	if e == nil || e.Response == nil {
		return time.Time{}
	}
	return e.Response.StoredAt
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrInvalidStoreName 表示缓存名称为空或包含路径分隔符。
	ErrInvalidStoreName = errors.New("invalid cache store name")
)

// Match 依次在 names 指定的缓存中查找 key；names 为空时搜索全部缓存。
// 不存在的缓存会被跳过而不是被创建。
func Match(ctx context.Context, storage Storage, key string, names ...string) (*Entry, error) {
	if storage == nil {
		return nil, ErrNotFound
	}
	if len(names) == 0 {
		all, err := storage.Names(ctx)
		if err != nil {
			return nil, err
		}
		names = all
	}

	for _, name := range names {
		if name == "" {
			continue
		}
		store, ok, err := Lookup(ctx, storage, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		entry, err := store.Match(ctx, key)
		switch {
		case err == nil:
			return entry, nil
		case errors.Is(err, ErrNotFound):
			continue
		default:
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// storeLookup 由内置驱动实现：只读地取得已存在缓存的句柄，不登记名称。
type storeLookup interface {
	lookup(ctx context.Context, name string) (Store, bool, error)
}

// Lookup 只读地打开已存在的缓存，缓存不存在时返回 false。
// 与 Open 不同，它不会写入缓存登记，读路径与并发删除交错时不会让已删除的缓存重新出现。
func Lookup(ctx context.Context, storage Storage, name string) (Store, bool, error) {
	if storage == nil {
		return nil, false, nil
	}
	if l, ok := storage.(storeLookup); ok {
		return l.lookup(ctx, name)
	}
	exists, err := storage.Has(ctx, name)
	if err != nil || !exists {
		return nil, false, err
	}
	store, err := storage.Open(ctx, name)
	if err != nil {
		return nil, false, err
	}
	return store, true, nil
}

// StaticStoreName 返回某个版本对应的静态代际缓存名，格式 <app>-v<version>。
func StaticStoreName(app, version string) string {
	version = strings.TrimPrefix(strings.TrimSpace(version), "v")
	return fmt.Sprintf("%s-v%s", strings.TrimSpace(app), version)
}

func validateStoreName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed != name {
		return ErrInvalidStoreName
	}
	if name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return ErrInvalidStoreName
	}
	return nil
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
