package lifecycle

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Clients 是宿主环境中已打开应用上下文的最小视图。
type Clients interface {
	// Count 返回当前受控的上下文数量。
	Count() int
	// Claim 接管全部已打开的上下文，返回被接管的数量。
	Claim() int
}

// RegistrationOptions 描述注册表的构造参数。
type RegistrationOptions struct {
	Clients      Clients
	ClaimClients bool
	Logger       *logrus.Logger
}

// Registration 持有 installing / waiting / active 三个槽位，
// 决定新代际何时可以接管请求。
type Registration struct {
	clients      Clients
	claimClients bool
	logger       *logrus.Logger

	mu          sync.Mutex
	installing  *Generation
	waiting     *Generation
	active      *Generation
	skipPending bool
}

// NewRegistration 创建空注册表。
func NewRegistration(opts RegistrationOptions) *Registration {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registration{
		clients:      opts.Clients,
		claimClients: opts.ClaimClients,
		logger:       logger,
	}
}

// Install 安装代际；成功后它取代先前的 waiting 代际，并在条件满足时立即激活。
func (r *Registration) Install(ctx context.Context, gen *Generation) error {
	if gen == nil {
		return errors.New("generation required")
	}
	r.mu.Lock()
	r.installing = gen
	r.mu.Unlock()

	err := gen.Install(ctx)

	r.mu.Lock()
	if r.installing == gen {
		r.installing = nil
	}
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if r.skipPending {
		gen.setSkipWaiting()
		r.skipPending = false
	}
	previous := r.waiting
	r.waiting = gen
	r.mu.Unlock()

	if previous != nil && previous != gen {
		previous.supersede()
	}
	_, err = r.TryActivate(ctx)
	return err
}

// TryActivate 在没有活动代际、代际要求跳过等待或没有受控上下文时激活 waiting 代际。
func (r *Registration) TryActivate(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	gen := r.waiting
	if gen == nil {
		return false, nil
	}
	if r.active != nil && !gen.SkipWaiting() && r.controlledCount() > 0 {
		gen.log("activation_deferred").WithField("controlled", r.controlledCount()).Info("lifecycle_wait")
		return false, nil
	}
	if err := r.activateLocked(ctx, gen); err != nil {
		return false, err
	}
	return true, nil
}

// Activate 处理宿主的 activate 事件：无条件激活 waiting 代际。
func (r *Registration) Activate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiting == nil {
		return ErrNoWaiting
	}
	return r.activateLocked(ctx, r.waiting)
}

// SkipWaiting 强制激活：waiting 代际立即激活；若仍在安装，则安装完成后立即激活。
func (r *Registration) SkipWaiting(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen := r.waiting; gen != nil {
		gen.setSkipWaiting()
		return r.activateLocked(ctx, gen)
	}
	if r.installing != nil {
		r.skipPending = true
		r.installing.log("skip_waiting_pending").Info("lifecycle_wait")
	}
	return nil
}

func (r *Registration) activateLocked(ctx context.Context, gen *Generation) error {
	if err := gen.Activate(ctx); err != nil {
		return err
	}
	previous := r.active
	r.active = gen
	r.waiting = nil
	if previous != nil && previous != gen {
		previous.supersede()
	}
	if r.claimClients && r.clients != nil {
		claimed := r.clients.Claim()
		gen.log("clients_claimed").WithField("claimed", claimed).Info("lifecycle_claim")
	}
	return nil
}

func (r *Registration) controlledCount() int {
	if r.clients == nil {
		return 0
	}
	return r.clients.Count()
}

// Active 返回当前活动代际，可能为 nil。
func (r *Registration) Active() *Generation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Waiting 返回等待中的代际，可能为 nil。
func (r *Registration) Waiting() *Generation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// ActiveStore 返回活动代际的静态缓存名，没有活动代际时为空。
func (r *Registration) ActiveStore() string {
	if gen := r.Active(); gen != nil {
		return gen.StaticStore()
	}
	return ""
}

// ActiveVersion 返回活动代际的版本号。
func (r *Registration) ActiveVersion() string {
	if gen := r.Active(); gen != nil {
		return gen.Version()
	}
	return ""
}

// Snapshot 汇总三个槽位的状态。
type Snapshot struct {
	Installing *GenerationInfo `json:"installing,omitempty"`
	Waiting    *GenerationInfo `json:"waiting,omitempty"`
	Active     *GenerationInfo `json:"active,omitempty"`
}

// Snapshot 返回诊断用快照。
func (r *Registration) Snapshot() Snapshot {
	r.mu.Lock()
	installing, waiting, active := r.installing, r.waiting, r.active
	r.mu.Unlock()

	var snap Snapshot
	if installing != nil {
		info := installing.Info()
		snap.Installing = &info
	}
	if waiting != nil {
		info := waiting.Info()
		snap.Waiting = &info
	}
	if active != nil {
		info := active.Info()
		snap.Active = &info
	}
	return snap
}
