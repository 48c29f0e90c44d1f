package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/swcache/internal/cache"
	"github.com/any-hub/swcache/internal/fetch"
	"github.com/any-hub/swcache/internal/logging"
)

// GenerationOptions 描述一个代际的构造参数。
type GenerationOptions struct {
	AppName      string
	Version      string
	DynamicStore string
	// Origin 用于解析清单中的相对路径，例如 "/" 或 "logo.png"。
	Origin   string
	Manifest []string
	Storage  cache.Storage
	Fetcher  fetch.Fetcher
	Logger   *logrus.Logger
	// SkipWaiting 为 true 时安装完成后不等待已打开的页面关闭。
	SkipWaiting bool
}

// Generation 对应一个版本号下的静态缓存及其状态机。
type Generation struct {
	version      string
	staticStore  string
	dynamicStore string
	manifest     []*fetch.Request
	storage      cache.Storage
	fetcher      fetch.Fetcher
	logger       *logrus.Logger

	mu          sync.Mutex
	state       State
	skipWaiting bool
	installedAt time.Time
	activatedAt time.Time
	now         func() time.Time
}

// NewGeneration 校验清单并创建处于 new 状态的代际。
func NewGeneration(opts GenerationOptions) (*Generation, error) {
	if strings.TrimSpace(opts.AppName) == "" {
		return nil, errors.New("app name required")
	}
	if strings.TrimSpace(opts.Version) == "" {
		return nil, errors.New("version required")
	}
	if opts.Storage == nil {
		return nil, errors.New("cache storage required")
	}
	manifest, err := ResolveManifest(opts.Origin, opts.Manifest)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	dynamic := opts.DynamicStore
	if dynamic == "" {
		dynamic = opts.AppName + "-dynamic"
	}
	return &Generation{
		version:      opts.Version,
		staticStore:  cache.StaticStoreName(opts.AppName, opts.Version),
		dynamicStore: dynamic,
		manifest:     manifest,
		storage:      opts.Storage,
		fetcher:      opts.Fetcher,
		logger:       logger,
		state:        StateNew,
		skipWaiting:  opts.SkipWaiting,
		now:          time.Now,
	}, nil
}

// ResolveManifest 将清单条目解析为 GET 请求描述，相对路径基于 origin，重复条目只保留一个。
func ResolveManifest(origin string, entries []string) ([]*fetch.Request, error) {
	var base *url.URL
	if origin = strings.TrimSpace(origin); origin != "" {
		parsed, err := url.Parse(strings.TrimRight(origin, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse origin: %w", err)
		}
		base = parsed
	}

	seen := make(map[string]struct{}, len(entries))
	out := make([]*fetch.Request, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		ref, err := url.Parse(entry)
		if err != nil {
			return nil, fmt.Errorf("parse manifest entry %q: %w", entry, err)
		}
		if !ref.IsAbs() {
			if base == nil {
				return nil, fmt.Errorf("manifest entry %q is relative but no origin is configured", entry)
			}
			ref = base.ResolveReference(ref)
		}
		req, err := fetch.NewRequest("GET", ref.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %q: %w", entry, err)
		}
		if _, dup := seen[req.Key()]; dup {
			continue
		}
		seen[req.Key()] = struct{}{}
		out = append(out, req)
	}
	return out, nil
}

func (g *Generation) Version() string      { return g.version }
func (g *Generation) StaticStore() string  { return g.staticStore }
func (g *Generation) DynamicStore() string { return g.dynamicStore }

// Manifest 返回解析后的清单 URL。
func (g *Generation) Manifest() []string {
	out := make([]string, len(g.manifest))
	for i, req := range g.manifest {
		out[i] = req.URL.String()
	}
	return out
}

// State 返回当前状态。
func (g *Generation) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// SkipWaiting 返回是否跳过等待。
func (g *Generation) SkipWaiting() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.skipWaiting
}

func (g *Generation) setSkipWaiting() {
	g.mu.Lock()
	g.skipWaiting = true
	g.mu.Unlock()
}

func (g *Generation) transition(to State) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !CanTransition(g.state, to) {
		return transitionError(g.state, to)
	}
	g.state = to
	switch to {
	case StateWaiting:
		g.installedAt = g.now().UTC()
	case StateActive:
		g.activatedAt = g.now().UTC()
	}
	return nil
}

// Install 并发获取清单中的全部资源，全部成功后才写入静态缓存（new → installing → waiting）。
// 任意资源失败时不写入任何条目，状态回到 new，返回 *AssetFetchError。
func (g *Generation) Install(ctx context.Context) error {
	if err := g.transition(StateInstalling); err != nil {
		return err
	}
	g.log("install_start").Info("lifecycle_install")

	if err := g.install(ctx); err != nil {
		if tErr := g.transition(StateNew); tErr != nil {
			return errors.Join(err, tErr)
		}
		g.log("install_failed").WithError(err).Warn("lifecycle_install")
		return err
	}

	if err := g.transition(StateWaiting); err != nil {
		return err
	}
	g.log("install_complete").WithField("entries", len(g.manifest)).Info("lifecycle_install")
	return nil
}

func (g *Generation) install(ctx context.Context) error {
	if g.fetcher == nil && len(g.manifest) > 0 {
		return errors.New("no network fetcher configured")
	}

	responses := make([]*fetch.Response, len(g.manifest))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, req := range g.manifest {
		group.Go(func() error {
			resp, err := g.fetcher.Fetch(groupCtx, req)
			if err != nil {
				return &AssetFetchError{URL: req.URL.String(), Err: err}
			}
			if !resp.Cacheable() {
				return &AssetFetchError{URL: req.URL.String(), Status: resp.Status}
			}
			responses[i] = resp
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	existed, err := g.storage.Has(ctx, g.staticStore)
	if err != nil {
		return err
	}
	store, err := g.storage.Open(ctx, g.staticStore)
	if err != nil {
		return err
	}
	storedAt := g.now().UTC()
	for i, req := range g.manifest {
		snapshot := responses[i].Clone()
		snapshot.StoredAt = storedAt
		if err := store.Put(ctx, req.Key(), snapshot); err != nil {
			if !existed {
				_, _ = g.storage.Delete(context.WithoutCancel(ctx), g.staticStore)
			}
			return fmt.Errorf("write %s: %w", req.URL, err)
		}
	}
	return nil
}

// Activate 删除既不是本代静态缓存也不是动态缓存的全部缓存（waiting → activating → active）。
// 删除并发执行；失败时状态回到 waiting。
func (g *Generation) Activate(ctx context.Context) error {
	if err := g.transition(StateActivating); err != nil {
		return err
	}
	deleted, err := g.cleanup(ctx)
	if err != nil {
		if tErr := g.transition(StateWaiting); tErr != nil {
			return errors.Join(err, tErr)
		}
		g.log("activate_failed").WithError(err).Warn("lifecycle_activate")
		return err
	}
	if err := g.transition(StateActive); err != nil {
		return err
	}
	g.log("activate_complete").WithField("deleted", deleted).Info("lifecycle_activate")
	return nil
}

func (g *Generation) cleanup(ctx context.Context) ([]string, error) {
	names, err := g.storage.Names(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		deleted []string
	)
	group, groupCtx := errgroup.WithContext(ctx)
	for _, name := range names {
		if name == g.staticStore || name == g.dynamicStore {
			continue
		}
		group.Go(func() error {
			ok, err := g.storage.Delete(groupCtx, name)
			if err != nil {
				return fmt.Errorf("delete store %s: %w", name, err)
			}
			if ok {
				mu.Lock()
				deleted = append(deleted, name)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return deleted, nil
}

// supersede 将代际标记为 superseded；已经处于该状态或无法迁移时返回 false。
func (g *Generation) supersede() bool {
	if err := g.transition(StateSuperseded); err != nil {
		return false
	}
	g.log("superseded").Info("lifecycle_supersede")
	return true
}

// Info 返回诊断用快照。
func (g *Generation) Info() GenerationInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GenerationInfo{
		Version:     g.version,
		StaticStore: g.staticStore,
		State:       g.state,
		SkipWaiting: g.skipWaiting,
		Manifest:    len(g.manifest),
		InstalledAt: g.installedAt,
		ActivatedAt: g.activatedAt,
	}
}

func (g *Generation) log(action string) *logrus.Entry {
	return g.logger.WithFields(logging.LifecycleFields(action, g.version, g.staticStore, string(g.State())))
}

// GenerationInfo 是代际的只读快照。
type GenerationInfo struct {
	Version     string    `json:"version"`
	StaticStore string    `json:"static_store"`
	State       State     `json:"state"`
	SkipWaiting bool      `json:"skip_waiting"`
	Manifest    int       `json:"manifest_entries"`
	InstalledAt time.Time `json:"installed_at,omitempty"`
	ActivatedAt time.Time `json:"activated_at,omitempty"`
}
