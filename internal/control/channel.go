// Package control 处理应用发来的控制消息：强制激活、清空全部缓存、查询版本。
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/swcache/internal/cache"
)

// 已定义的消息动作。
const (
	ActionForceActivate   = "force-activate"
	ActionClearAllCaches  = "clear-all-caches"
	ActionVersionQuery    = "version-query"
	ActionVersionResponse = "version-response"
)

// Message 是控制通道的消息体。
type Message struct {
	Action  string `json:"action"`
	Version string `json:"version,omitempty"`
}

// Decode 解析 JSON 消息。
func Decode(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode control message: %w", err)
	}
	msg.Action = strings.TrimSpace(msg.Action)
	return msg, nil
}

// Lifecycle 是控制通道需要的生命周期能力。
type Lifecycle interface {
	SkipWaiting(ctx context.Context) error
}

// Replier 把回复投递给发起消息的应用上下文。
type Replier interface {
	Post(id string, msg any) error
}

// Options 描述控制通道的协作者。
type Options struct {
	Lifecycle Lifecycle
	Storage   cache.Storage
	Replier   Replier
	Version   string
	Logger    *logrus.Logger
}

// Channel 按 action 同步分派控制消息。
type Channel struct {
	lifecycle Lifecycle
	storage   cache.Storage
	replier   Replier
	version   string
	logger    *logrus.Logger
}

// NewChannel 构造控制通道。
func NewChannel(opts Options) *Channel {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Channel{
		lifecycle: opts.Lifecycle,
		storage:   opts.Storage,
		replier:   opts.Replier,
		version:   opts.Version,
		logger:    logger,
	}
}

// Dispatch 处理一条消息。source 为发起方上下文 ID，可以为空；
// version-query 的回复会投递给 source 并同时返回。未识别的消息被忽略，不返回错误。
func (c *Channel) Dispatch(ctx context.Context, msg Message, source string) (*Message, error) {
	fields := logrus.Fields{"action": "control_message", "message": msg.Action, "source": source}

	switch msg.Action {
	case ActionForceActivate:
		if c.lifecycle == nil {
			return nil, errors.New("lifecycle unavailable")
		}
		if err := c.lifecycle.SkipWaiting(ctx); err != nil {
			return nil, err
		}
		c.logger.WithFields(fields).Info("control_force_activate")
		return nil, nil

	case ActionClearAllCaches:
		deleted, err := c.clearAll(ctx)
		if err != nil {
			return nil, err
		}
		c.logger.WithFields(fields).WithField("deleted", deleted).Warn("control_clear_all_caches")
		return nil, nil

	case ActionVersionQuery:
		reply := &Message{Action: ActionVersionResponse, Version: c.version}
		if source != "" && c.replier != nil {
			if err := c.replier.Post(source, reply); err != nil {
				return reply, err
			}
		}
		c.logger.WithFields(fields).Debug("control_version_query")
		return reply, nil

	default:
		c.logger.WithFields(fields).Debug("control_message_ignored")
		return nil, nil
	}
}

func (c *Channel) clearAll(ctx context.Context) ([]string, error) {
	if c.storage == nil {
		return nil, cache.ErrStoreUnavailable
	}
	names, err := c.storage.Names(ctx)
	if err != nil {
		return nil, err
	}
	var (
		deleted []string
		errs    []error
	)
	for _, name := range names {
		ok, err := c.storage.Delete(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete store %s: %w", name, err))
			continue
		}
		if ok {
			deleted = append(deleted, name)
		}
	}
	return deleted, errors.Join(errs...)
}
