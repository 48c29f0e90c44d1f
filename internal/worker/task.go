package worker

import (
	"context"

	"github.com/any-hub/swcache/internal/fetch"
)

// Task 是一次异步事件处理的句柄。
type Task struct {
	kind EventKind
	done chan struct{}

	err      error
	response *fetch.Response
	handled  bool
	result   any
}

func newTask(kind EventKind) *Task {
	return &Task{kind: kind, done: make(chan struct{})}
}

// Kind 返回任务对应的事件类型。
func (t *Task) Kind() EventKind { return t.kind }

// Done 在任务结束后关闭。
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait 等待任务结束并返回其错误；ctx 先结束时返回 ctx.Err()，任务本身继续运行。
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Response 返回 fetch 任务的响应与是否被拦截，任务未结束时返回 nil。
func (t *Task) Response() (*fetch.Response, bool) {
	select {
	case <-t.done:
		return t.response, t.handled
	default:
		return nil, false
	}
}

// Result 返回非 fetch 任务的结果（控制消息回复、通知、被聚焦的上下文等）。
func (t *Task) Result() any {
	select {
	case <-t.done:
		return t.result
	default:
		return nil
	}
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}
