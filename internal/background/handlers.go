package background

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/swcache/internal/clients"
)

// 有意义的同步标签。
const (
	TagSyncOrders     = "sync-orders"
	TagUpdateProducts = "update-products"
)

// ErrNotificationNotFound 表示点击的通知已不在展示。
var ErrNotificationNotFound = errors.New("notification not found")

// PendingWrites 负责把离线期间积压的写操作提交到远端，重试由实现自行处理。
type PendingWrites interface {
	Flush(ctx context.Context) error
}

// Catalog 负责刷新商品目录数据。
type Catalog interface {
	Refresh(ctx context.Context) error
}

// Notifier 展示与关闭通知。
type Notifier interface {
	Show(n clients.Notification) clients.Notification
	Close(id string) bool
	Get(id string) (clients.Notification, bool)
}

// Windows 是宿主中应用上下文的视图。
type Windows interface {
	MatchAll() []clients.Client
	Focus(id string) (clients.Client, error)
	OpenWindow(url string) clients.Client
}

// Options 描述后台处理器的协作者与展示参数。
type Options struct {
	Pending  PendingWrites
	Catalog  Catalog
	Notifier Notifier
	Windows  Windows
	AppName  string
	Origin   string
	Icon     string
	Badge    string
	Logger   *logrus.Logger
}

// Handlers 聚合四类后台唤醒入口。
type Handlers struct {
	pending  PendingWrites
	catalog  Catalog
	notifier Notifier
	windows  Windows
	appName  string
	origin   string
	icon     string
	badge    string
	logger   *logrus.Logger
}

// NewHandlers 构造后台处理器。
func NewHandlers(opts Options) *Handlers {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handlers{
		pending:  opts.Pending,
		catalog:  opts.Catalog,
		notifier: opts.Notifier,
		windows:  opts.Windows,
		appName:  opts.AppName,
		origin:   strings.TrimRight(opts.Origin, "/"),
		icon:     opts.Icon,
		badge:    opts.Badge,
		logger:   logger,
	}
}

// Sync 处理延迟同步：仅 sync-orders 会调用 PendingWrites.Flush 并返回其结果。
func (h *Handlers) Sync(ctx context.Context, tag string) error {
	if tag != TagSyncOrders {
		h.logger.WithFields(logrus.Fields{"action": "background_sync", "tag": tag}).Debug("sync_tag_ignored")
		return nil
	}
	if h.pending == nil {
		return nil
	}
	if err := h.pending.Flush(ctx); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{"action": "background_sync", "tag": tag}).Warn("sync_flush_failed")
		return err
	}
	h.logger.WithFields(logrus.Fields{"action": "background_sync", "tag": tag}).Info("sync_flush_complete")
	return nil
}

// PeriodicSync 处理周期唤醒：仅 update-products 会调用 Catalog.Refresh。
func (h *Handlers) PeriodicSync(ctx context.Context, tag string) error {
	if tag != TagUpdateProducts {
		h.logger.WithFields(logrus.Fields{"action": "background_periodic_sync", "tag": tag}).Debug("periodic_tag_ignored")
		return nil
	}
	if h.catalog == nil {
		return nil
	}
	if err := h.catalog.Refresh(ctx); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{"action": "background_periodic_sync", "tag": tag}).Warn("catalog_refresh_failed")
		return err
	}
	return nil
}

// pushPayload 是推送数据的结构，字段类型不符时解析失败。
type pushPayload struct {
	Title *string `json:"title"`
	Body  *string `json:"body"`
	URL   *string `json:"url"`
}

// Push 解析推送数据并展示通知。数据无法解析时跳过展示，返回 nil 通知与 nil 错误。
func (h *Handlers) Push(ctx context.Context, payload []byte) (*clients.Notification, error) {
	var data *pushPayload
	if err := json.Unmarshal(payload, &data); err != nil || data == nil {
		entry := h.logger.WithFields(logrus.Fields{"action": "background_push", "bytes": len(payload)})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("push_payload_malformed")
		return nil, nil
	}
	if h.notifier == nil {
		return nil, nil
	}

	n := clients.Notification{
		Title: h.appName,
		Icon:  h.icon,
		Badge: h.badge,
		Data:  clients.NotificationData{URL: "/"},
	}
	if data.Title != nil && *data.Title != "" {
		n.Title = *data.Title
	}
	if data.Body != nil {
		n.Body = *data.Body
	}
	if data.URL != nil && *data.URL != "" {
		n.Data.URL = *data.URL
	}
	shown := h.notifier.Show(n)
	h.logger.WithFields(logrus.Fields{
		"action":       "background_push",
		"notification": shown.ID,
		"url":          shown.Data.URL,
	}).Info("push_notification_shown")
	return &shown, nil
}

// NotificationClick 关闭通知，然后聚焦 URL 相同的已打开上下文，没有时在该 URL 打开新上下文。
func (h *Handlers) NotificationClick(ctx context.Context, id string) (clients.Client, error) {
	if h.notifier == nil || h.windows == nil {
		return clients.Client{}, errors.New("notification host unavailable")
	}
	n, ok := h.notifier.Get(id)
	if !ok {
		return clients.Client{}, ErrNotificationNotFound
	}
	h.notifier.Close(id)

	target := h.resolve(n.Data.URL)
	for _, client := range h.windows.MatchAll() {
		if h.resolve(client.URL) != target {
			continue
		}
		focused, err := h.windows.Focus(client.ID)
		if err != nil {
			continue
		}
		h.logger.WithFields(logrus.Fields{"action": "notification_click", "client": focused.ID, "url": target}).Info("client_focused")
		return focused, nil
	}

	opened := h.windows.OpenWindow(target)
	h.logger.WithFields(logrus.Fields{"action": "notification_click", "client": opened.ID, "url": target}).Info("client_opened")
	return opened, nil
}

// resolve 将路径解析为应用来源下的绝对 URL，便于与上下文 URL 比较。
func (h *Handlers) resolve(raw string) string {
	if raw == "" {
		raw = "/"
	}
	if h.origin == "" {
		return raw
	}
	base, err := url.Parse(h.origin + "/")
	if err != nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}
