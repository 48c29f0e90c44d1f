package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/swcache/internal/background"
	"github.com/any-hub/swcache/internal/cache"
	"github.com/any-hub/swcache/internal/clients"
	"github.com/any-hub/swcache/internal/config"
	"github.com/any-hub/swcache/internal/control"
	"github.com/any-hub/swcache/internal/fetch"
	"github.com/any-hub/swcache/internal/lifecycle"
	"github.com/any-hub/swcache/internal/strategy"
)

// EventKind 标识宿主事件类型。
type EventKind string

const (
	EventInstall           EventKind = "install"
	EventActivate          EventKind = "activate"
	EventFetch             EventKind = "fetch"
	EventMessage           EventKind = "message"
	EventSync              EventKind = "sync"
	EventPeriodicSync      EventKind = "periodicsync"
	EventPush              EventKind = "push"
	EventNotificationClick EventKind = "notificationclick"
)

// Event 是一次宿主事件；各字段只在对应事件类型下有意义。
type Event struct {
	Kind           EventKind
	Request        *fetch.Request
	Message        control.Message
	Source         string
	Tag            string
	Payload        []byte
	NotificationID string
}

// Options 描述 Worker 的依赖。
type Options struct {
	Config        *config.Config
	Storage       cache.Storage
	Fetcher       fetch.Fetcher
	Clients       *clients.Registry
	Notifications *clients.Center
	Logger        *logrus.Logger
}

// Worker 持有由配置派生的全部组件。
type Worker struct {
	cfg     *config.Config
	storage cache.Storage
	fetcher fetch.Fetcher
	clients *clients.Registry
	center  *clients.Center
	logger  *logrus.Logger

	registration *lifecycle.Registration
	strategies   *strategy.Set
	channel      *control.Channel
	background   *background.Handlers

	baseCtx   context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
	wg        sync.WaitGroup
	startOnce sync.Once
}

// New 根据配置构造 Worker，不会触发任何网络访问。
func New(opts Options) (*Worker, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Storage == nil {
		return nil, errors.New("cache storage is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("network fetcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	registry := opts.Clients
	if registry == nil {
		registry = clients.NewRegistry()
	}
	center := opts.Notifications
	if center == nil {
		center = clients.NewCenter()
	}

	cfg := opts.Config
	w := &Worker{
		cfg:     cfg,
		storage: opts.Storage,
		fetcher: opts.Fetcher,
		clients: registry,
		center:  center,
		logger:  logger,
	}
	w.baseCtx, w.cancel = context.WithCancel(context.Background())

	w.registration = lifecycle.NewRegistration(lifecycle.RegistrationOptions{
		Clients:      registry,
		ClaimClients: cfg.App.ClaimClients,
		Logger:       logger,
	})
	w.strategies = strategy.NewSet(strategy.Options{
		Fetcher:      opts.Fetcher,
		Storage:      opts.Storage,
		Writer:       cache.NewWriter(opts.Storage, logger),
		Rules:        RulesFromConfig(cfg),
		StaticStore:  w.registration.ActiveStore,
		DynamicStore: cfg.App.DynamicStore,
		Logger:       logger,
	})
	w.channel = control.NewChannel(control.Options{
		Lifecycle: w.registration,
		Storage:   opts.Storage,
		Replier:   registry,
		Version:   cfg.App.Version,
		Logger:    logger,
	})
	w.background = background.NewHandlers(background.Options{
		Pending: &background.OrdersFlusher{URL: cfg.App.SyncOrdersURL, Fetcher: opts.Fetcher},
		Catalog: &background.CatalogRefresher{
			URLs:    cfg.App.CatalogURLs,
			Updater: w.strategies,
			Logger:  logger,
		},
		Notifier: center,
		Windows:  registry,
		AppName:  cfg.App.AppName,
		Origin:   cfg.App.Origin,
		Icon:     cfg.App.NotificationIcon,
		Badge:    cfg.App.NotificationBadge,
		Logger:   logger,
	})
	return w, nil
}

// RulesFromConfig 把路由配置转换为策略规则。
func RulesFromConfig(cfg *config.Config) strategy.Rules {
	return strategy.Rules{
		AssetExtensions:  cfg.Routing.AssetExtensions,
		ImageExtensions:  cfg.Routing.ImageExtensions,
		DataHosts:        cfg.Routing.DataHosts,
		PlaceholderHosts: cfg.Routing.PlaceholderHosts,
		PlaceholderImage: cfg.Routing.PlaceholderImage,
		RootDocuments:    cfg.Routing.RootDocuments,
		Origin:           cfg.App.Origin,
	}.Normalize()
}

// Start 执行启动期的 install（安装成功后按条件自动激活），并启动周期同步循环。
// 安装失败会返回错误，但周期循环仍会启动，宿主可以稍后重试 install。
func (w *Worker) Start(ctx context.Context) error {
	err := w.Install(ctx)
	w.startOnce.Do(func() {
		if every := w.cfg.App.PeriodicInterval.DurationValue(); every > 0 {
			w.wg.Add(1)
			go w.periodicLoop(every)
		}
	})
	return err
}

// Close 停止周期循环并等待后台缓存写入完成。
func (w *Worker) Close() {
	w.stopOnce.Do(func() {
		w.cancel()
		w.wg.Wait()
		w.strategies.Writer().Wait()
	})
}

// Install 为当前配置版本创建新代际并安装。版本与活动代际相同时跳过等待。
func (w *Worker) Install(ctx context.Context) error {
	skip := w.cfg.App.SkipWaiting || w.registration.ActiveVersion() == w.cfg.App.Version
	gen, err := lifecycle.NewGeneration(lifecycle.GenerationOptions{
		AppName:      w.cfg.App.AppName,
		Version:      w.cfg.App.Version,
		DynamicStore: w.cfg.App.DynamicStore,
		Origin:       w.cfg.App.Origin,
		Manifest:     w.cfg.App.Precache,
		Storage:      w.storage,
		Fetcher:      w.fetcher,
		Logger:       w.logger,
		SkipWaiting:  skip,
	})
	if err != nil {
		return fmt.Errorf("build generation: %w", err)
	}
	return w.registration.Install(ctx, gen)
}

// Activate 处理宿主 activate 事件。
func (w *Worker) Activate(ctx context.Context) error {
	return w.registration.Activate(ctx)
}

// Classify 返回请求将使用的策略。
func (w *Worker) Classify(req *fetch.Request) strategy.Kind {
	return w.strategies.Classify(req)
}

// Fetch 处理被拦截的请求。handled 为 false 表示不拦截（非 GET），调用方应原样访问网络。
func (w *Worker) Fetch(ctx context.Context, req *fetch.Request) (*fetch.Response, bool, error) {
	if req == nil {
		return nil, false, errors.New("request is required")
	}
	if w.Classify(req) == strategy.KindBypass {
		return nil, false, nil
	}
	resp, err := w.strategies.Handle(ctx, req)
	return resp, true, err
}

// Network 直接访问网络，不经过任何缓存。
func (w *Worker) Network(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	return w.fetcher.Fetch(ctx, req)
}

// Message 处理控制消息。
func (w *Worker) Message(ctx context.Context, msg control.Message, source string) (*control.Message, error) {
	return w.channel.Dispatch(ctx, msg, source)
}

// Sync 处理延迟同步事件。
func (w *Worker) Sync(ctx context.Context, tag string) error {
	return w.background.Sync(ctx, tag)
}

// PeriodicSync 处理周期同步事件。
func (w *Worker) PeriodicSync(ctx context.Context, tag string) error {
	return w.background.PeriodicSync(ctx, tag)
}

// Push 处理推送事件，数据无法解析时返回 nil 通知。
func (w *Worker) Push(ctx context.Context, payload []byte) (*clients.Notification, error) {
	return w.background.Push(ctx, payload)
}

// NotificationClick 处理通知点击事件。
func (w *Worker) NotificationClick(ctx context.Context, id string) (clients.Client, error) {
	return w.background.NotificationClick(ctx, id)
}

// OpenClient 登记一个应用上下文；已有活动代际时页面加载即受控。
func (w *Worker) OpenClient(url string) clients.Client {
	if w.registration.Active() != nil {
		return w.clients.Navigate(url)
	}
	return w.clients.Register(url)
}

// CloseClient 关闭应用上下文；最后一个受控上下文关闭后等待中的代际随即激活。
func (w *Worker) CloseClient(ctx context.Context, id string) (bool, error) {
	if !w.clients.Remove(id) {
		return false, nil
	}
	_, err := w.registration.TryActivate(ctx)
	return true, err
}

// Dispatch 以独立 goroutine 执行事件并立即返回任务句柄。
func (w *Worker) Dispatch(ctx context.Context, ev Event) *Task {
	task := newTask(ev.Kind)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.WithFields(logrus.Fields{"action": "dispatch", "event": string(ev.Kind)}).Errorf("event_panic: %v", r)
				task.finish(fmt.Errorf("event %s panicked: %v", ev.Kind, r))
			}
		}()
		task.finish(w.run(ctx, ev, task))
	}()
	return task
}

func (w *Worker) run(ctx context.Context, ev Event, task *Task) error {
	switch ev.Kind {
	case EventInstall:
		return w.Install(ctx)
	case EventActivate:
		return w.Activate(ctx)
	case EventFetch:
		resp, handled, err := w.Fetch(ctx, ev.Request)
		task.response, task.handled = resp, handled
		return err
	case EventMessage:
		reply, err := w.Message(ctx, ev.Message, ev.Source)
		if reply != nil {
			task.result = reply
		}
		return err
	case EventSync:
		return w.Sync(ctx, ev.Tag)
	case EventPeriodicSync:
		return w.PeriodicSync(ctx, ev.Tag)
	case EventPush:
		n, err := w.Push(ctx, ev.Payload)
		if n != nil {
			task.result = n
		}
		return err
	case EventNotificationClick:
		client, err := w.NotificationClick(ctx, ev.NotificationID)
		if err == nil {
			task.result = client
		}
		return err
	default:
		return fmt.Errorf("unknown event kind: %s", ev.Kind)
	}
}

// periodicLoop 按固定间隔分派 periodicsync(update-products)。
func (w *Worker) periodicLoop(every time.Duration) {
	defer w.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-w.baseCtx.Done():
			return
		case <-t.C:
			task := w.Dispatch(w.baseCtx, Event{Kind: EventPeriodicSync, Tag: background.TagUpdateProducts})
			if err := task.Wait(w.baseCtx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.WithError(err).WithField("action", "periodic_sync").Warn("periodic_sync_failed")
			}
		}
	}
}

// Registration 返回生命周期注册表，供诊断端点使用。
func (w *Worker) Registration() *lifecycle.Registration { return w.registration }

// Storage 返回缓存存储。
func (w *Worker) Storage() cache.Storage { return w.storage }

// Clients 返回应用上下文注册表。
func (w *Worker) Clients() *clients.Registry { return w.clients }

// Notifications 返回通知中心。
func (w *Worker) Notifications() *clients.Center { return w.center }

// Version 返回配置的应用版本号。
func (w *Worker) Version() string { return w.cfg.App.Version }

// StoreSummary 描述单个缓存的名称与条目数。
type StoreSummary struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Current bool   `json:"current"`
	Dynamic bool   `json:"dynamic"`
}

// Stores 列出全部缓存及其条目数。
func (w *Worker) Stores(ctx context.Context) ([]StoreSummary, error) {
	names, err := w.storage.Names(ctx)
	if err != nil {
		return nil, err
	}
	active := w.registration.ActiveStore()
	out := make([]StoreSummary, 0, len(names))
	for _, name := range names {
		store, ok, err := cache.Lookup(ctx, w.storage, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		keys, err := store.Keys(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, StoreSummary{
			Name:    name,
			Entries: len(keys),
			Current: name == active,
			Dynamic: name == w.cfg.App.DynamicStore,
		})
	}
	return out, nil
}
