package clients

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NotificationData 是通知携带的关联数据。
type NotificationData struct {
	URL string `json:"url"`
}

// Notification 是一条已展示的系统通知。
type Notification struct {
	ID        string           `json:"id"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Icon      string           `json:"icon,omitempty"`
	Badge     string           `json:"badge,omitempty"`
	Data      NotificationData `json:"data"`
	CreatedAt time.Time        `json:"created_at"`
}

// Center 保存当前处于展示状态的通知。
type Center struct {
	mu    sync.Mutex
	items map[string]Notification
	now   func() time.Time
}

// NewCenter 创建空通知中心。
func NewCenter() *Center {
	return &Center{items: make(map[string]Notification), now: time.Now}
}

// Show 展示通知并分配 ID。
func (c *Center) Show(n Notification) Notification {
	n.ID = uuid.NewString()
	n.CreatedAt = c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[n.ID] = n
	return n
}

// Close 关闭通知，返回其是否仍在展示。
func (c *Center) Close(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[id]; !ok {
		return false
	}
	delete(c.items, id)
	return true
}

func (c *Center) Get(id string) (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.items[id]
	return n, ok
}

// List 按展示时间返回全部通知。
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, 0, len(c.items))
	for _, n := range c.items {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
