package strategy

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Metadata 记录一个策略的静态信息，供诊断端展示。
type Metadata struct {
	Key         Kind   `json:"key"`
	Description string `json:"description"`
	Fallback    string `json:"fallback"`
	WritesStore bool   `json:"writes_store"`
}

var globalRegistry = newRegistry()

type registry struct {
	mu         sync.RWMutex
	strategies map[Kind]Metadata
}

func newRegistry() *registry {
	return &registry{strategies: make(map[Kind]Metadata)}
}

// Register 将策略元数据加入全局注册表，重复键会返回错误。
func Register(meta Metadata) error {
	return globalRegistry.register(meta)
}

// MustRegister 在注册失败时 panic，适合 init() 中调用。
func MustRegister(meta Metadata) {
	if err := Register(meta); err != nil {
		panic(err)
	}
}

// Resolve 返回指定策略的元数据。
func Resolve(kind Kind) (Metadata, bool) {
	return globalRegistry.resolve(kind)
}

// List 返回按键排序的策略元数据。
func List() []Metadata {
	return globalRegistry.list()
}

func normalizeKind(kind Kind) Kind {
	return Kind(strings.ToLower(strings.TrimSpace(string(kind))))
}

func (r *registry) register(meta Metadata) error {
	key := normalizeKind(meta.Key)
	if key == "" {
		return fmt.Errorf("strategy key is required")
	}
	meta.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[key]; exists {
		return fmt.Errorf("strategy %s already registered", key)
	}
	r.strategies[key] = meta
	return nil
}

func (r *registry) resolve(kind Kind) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, ok := r.strategies[normalizeKind(kind)]
	return meta, ok
}

func (r *registry) list() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.strategies))
	for key := range r.strategies {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)

	result := make([]Metadata, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.strategies[Kind(key)])
	}
	return result
}
