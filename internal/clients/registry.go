package clients

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrClientNotFound 表示指定 ID 的应用上下文不存在。
var ErrClientNotFound = errors.New("client not found")

// Client 是一个已打开的应用上下文快照。
type Client struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	Controlled bool      `json:"controlled"`
	Focused    bool      `json:"focused"`
	CreatedAt  time.Time `json:"created_at"`
}

type clientEntry struct {
	client   Client
	messages []json.RawMessage
}

// Registry 是并发安全的应用上下文注册表。
type Registry struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
	now     func() time.Time
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*clientEntry),
		now:     time.Now,
	}
}

// Register 登记一个新打开、尚未受控的应用上下文。
func (r *Registry) Register(url string) Client {
	return r.add(url, false, false)
}

// Navigate 登记一个在已有活动代际下加载的上下文，加载即受控。
func (r *Registry) Navigate(url string) Client {
	return r.add(url, true, false)
}

// OpenWindow 打开一个新上下文并聚焦；由当前代际打开的页面天然受控。
func (r *Registry) OpenWindow(url string) Client {
	r.mu.Lock()
	for _, entry := range r.clients {
		entry.client.Focused = false
	}
	r.mu.Unlock()
	return r.add(url, true, true)
}

func (r *Registry) add(url string, controlled, focused bool) Client {
	client := Client{
		ID:         uuid.NewString(),
		URL:        url,
		Controlled: controlled,
		Focused:    focused,
		CreatedAt:  r.now().UTC(),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.ID] = &clientEntry{client: client}
	return client
}

// Get 返回指定上下文。
func (r *Registry) Get(id string) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.clients[id]
	if !ok {
		return Client{}, false
	}
	return entry.client, true
}

// Remove 关闭上下文，返回其是否存在。
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return false
	}
	delete(r.clients, id)
	return true
}

// Count 返回当前受控的上下文数量。
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, entry := range r.clients {
		if entry.client.Controlled {
			count++
		}
	}
	return count
}

// Claim 让全部已打开的上下文改由当前代际控制，返回被接管的数量。
func (r *Registry) Claim() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	claimed := 0
	for _, entry := range r.clients {
		if !entry.client.Controlled {
			entry.client.Controlled = true
			claimed++
		}
	}
	return claimed
}

// MatchAll 按打开时间返回全部上下文。
func (r *Registry) MatchAll() []Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Client, 0, len(r.clients))
	for _, entry := range r.clients {
		out = append(out, entry.client)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Focus 聚焦指定上下文，其余上下文失去焦点。
func (r *Registry) Focus(id string) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.clients[id]
	if !ok {
		return Client{}, ErrClientNotFound
	}
	for _, entry := range r.clients {
		entry.client.Focused = false
	}
	target.client.Focused = true
	return target.client, nil
}

// Post 以 JSON 形式向上下文投递一条消息。
func (r *Registry) Post(id string, msg any) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.clients[id]
	if !ok {
		return ErrClientNotFound
	}
	entry.messages = append(entry.messages, raw)
	return nil
}

// Drain 取出并清空上下文的消息队列。
func (r *Registry) Drain(id string) ([]json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.clients[id]
	if !ok {
		return nil, ErrClientNotFound
	}
	messages := entry.messages
	entry.messages = nil
	return messages, nil
}
