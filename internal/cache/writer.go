package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/swcache/internal/fetch"
)

// ErrStoreUnavailable 表示当前未注入缓存存储实例。
var ErrStoreUnavailable = errors.New("cache store unavailable")

// Writer 封装策略层的缓存写入：同步 Put 用于安装期批量写入，
// PutAsync 用于“先返回响应、后台写缓存”的尽力而为写入。
type Writer struct {
	storage Storage
	logger  *logrus.Logger
	now     func() time.Time

	wg sync.WaitGroup
}

// NewWriter 构造写入器，默认使用 time.Now 作为时钟。
func NewWriter(storage Storage, logger *logrus.Logger) *Writer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Writer{
		storage: storage,
		logger:  logger,
		now:     time.Now,
	}
}

// Enabled 返回当前是否具备缓存写入能力。
func (w *Writer) Enabled() bool {
	return w != nil && w.storage != nil
}

// Put 打开 storeName 并写入一个响应副本；不可缓存的响应直接忽略。
func (w *Writer) Put(ctx context.Context, storeName, key string, resp *fetch.Response) error {
	if !w.Enabled() {
		return ErrStoreUnavailable
	}
	if !resp.Cacheable() {
		return nil
	}
	store, err := w.storage.Open(ctx, storeName)
	if err != nil {
		return err
	}
	snapshot := resp.Clone()
	if snapshot.StoredAt.IsZero() {
		snapshot.StoredAt = w.now().UTC()
	}
	return store.Put(ctx, key, snapshot)
}

// PutAsync 在独立 goroutine 中写入缓存。写入不随调用方 ctx 取消，
// 失败只记录日志，不影响已经返回给调用方的响应。
func (w *Writer) PutAsync(ctx context.Context, storeName, key string, resp *fetch.Response) {
	if !w.Enabled() || !resp.Cacheable() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	detached := context.WithoutCancel(ctx)
	snapshot := resp.Clone()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.Put(detached, storeName, key, snapshot); err != nil {
			w.logger.WithError(err).WithFields(logrus.Fields{
				"action": "cache_write",
				"store":  storeName,
				"key":    key,
			}).Warn("cache_write_failed")
		}
	}()
}

// Wait 阻塞直到所有后台写入结束。
func (w *Writer) Wait() {
	if w == nil {
		return
	}
	w.wg.Wait()
}
