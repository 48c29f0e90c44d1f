package routes

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/swcache/internal/background"
	"github.com/any-hub/swcache/internal/clients"
	"github.com/any-hub/swcache/internal/control"
	"github.com/any-hub/swcache/internal/lifecycle"
	"github.com/any-hub/swcache/internal/server"
	"github.com/any-hub/swcache/internal/worker"
)

// RegisterWorkerRoutes 暴露 /-/sw 下的宿主事件接口：生命周期、控制消息、
// 应用上下文、后台同步、推送与通知点击。事件统一经 Worker.Dispatch 执行。
func RegisterWorkerRoutes(app *fiber.App, w *worker.Worker, logger *logrus.Logger) {
	if app == nil || w == nil {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &workerRoutes{worker: w, logger: logger}

	app.Get("/-/sw/state", h.state)
	app.Get("/-/sw/stores", h.stores)
	app.Post("/-/sw/install", h.install)
	app.Post("/-/sw/activate", h.activate)
	app.Post("/-/sw/message", h.message)
	app.Post("/-/sw/clients", h.openClient)
	app.Get("/-/sw/clients", h.listClients)
	app.Delete("/-/sw/clients/:id", h.closeClient)
	app.Get("/-/sw/clients/:id/messages", h.drainClient)
	app.Post("/-/sw/sync", h.sync)
	app.Post("/-/sw/periodicsync", h.periodicSync)
	app.Post("/-/sw/push", h.push)
	app.Get("/-/sw/notifications", h.notifications)
	app.Post("/-/sw/notifications/:id/click", h.notificationClick)
}

type workerRoutes struct {
	worker *worker.Worker
	logger *logrus.Logger
}

type statePayload struct {
	Version    string             `json:"version"`
	Lifecycle  lifecycle.Snapshot `json:"lifecycle"`
	Clients    int                `json:"clients"`
	Controlled int                `json:"controlled"`
}

type tagPayload struct {
	Tag string `json:"tag"`
}

type clientPayload struct {
	URL string `json:"url"`
}

func (h *workerRoutes) snapshot() statePayload {
	registry := h.worker.Clients()
	return statePayload{
		Version:    h.worker.Version(),
		Lifecycle:  h.worker.Registration().Snapshot(),
		Clients:    len(registry.MatchAll()),
		Controlled: registry.Count(),
	}
}

func (h *workerRoutes) state(c fiber.Ctx) error {
	return c.JSON(h.snapshot())
}

func (h *workerRoutes) stores(c fiber.Ctx) error {
	summaries, err := h.worker.Stores(c.Context())
	if err != nil {
		return h.fail(c, fiber.StatusInternalServerError, "stores_unavailable", err)
	}
	return c.JSON(fiber.Map{"stores": summaries})
}

func (h *workerRoutes) install(c fiber.Ctx) error {
	if _, err := h.dispatch(c, worker.Event{Kind: worker.EventInstall}); err != nil {
		if errors.Is(err, lifecycle.ErrAssetFetch) {
			return h.fail(c, fiber.StatusBadGateway, "install_failed", err)
		}
		return h.fail(c, fiber.StatusInternalServerError, "install_failed", err)
	}
	return c.JSON(h.snapshot())
}

func (h *workerRoutes) activate(c fiber.Ctx) error {
	if _, err := h.dispatch(c, worker.Event{Kind: worker.EventActivate}); err != nil {
		if errors.Is(err, lifecycle.ErrNoWaiting) {
			return h.fail(c, fiber.StatusConflict, "no_waiting_generation", err)
		}
		return h.fail(c, fiber.StatusInternalServerError, "activate_failed", err)
	}
	return c.JSON(h.snapshot())
}

func (h *workerRoutes) message(c fiber.Ctx) error {
	msg, err := control.Decode(c.Body())
	if err != nil {
		return h.fail(c, fiber.StatusBadRequest, "invalid_message", err)
	}
	source := strings.TrimSpace(c.Get("X-Client-ID"))
	task, err := h.dispatch(c, worker.Event{Kind: worker.EventMessage, Message: msg, Source: source})
	if err != nil {
		if errors.Is(err, clients.ErrClientNotFound) {
			return h.fail(c, fiber.StatusNotFound, "client_not_found", err)
		}
		return h.fail(c, fiber.StatusInternalServerError, "message_failed", err)
	}
	if reply, ok := task.Result().(*control.Message); ok && reply != nil {
		return c.JSON(reply)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *workerRoutes) openClient(c fiber.Ctx) error {
	var body clientPayload
	if err := json.Unmarshal(c.Body(), &body); err != nil || strings.TrimSpace(body.URL) == "" {
		return h.fail(c, fiber.StatusBadRequest, "client_url_required", err)
	}
	client := h.worker.OpenClient(strings.TrimSpace(body.URL))
	return c.Status(fiber.StatusCreated).JSON(client)
}

func (h *workerRoutes) listClients(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"clients": h.worker.Clients().MatchAll()})
}

func (h *workerRoutes) closeClient(c fiber.Ctx) error {
	closed, err := h.worker.CloseClient(c.Context(), c.Params("id"))
	if err != nil {
		return h.fail(c, fiber.StatusInternalServerError, "activate_failed", err)
	}
	if !closed {
		return h.fail(c, fiber.StatusNotFound, "client_not_found", nil)
	}
	return c.JSON(h.snapshot())
}

func (h *workerRoutes) drainClient(c fiber.Ctx) error {
	messages, err := h.worker.Clients().Drain(c.Params("id"))
	if err != nil {
		return h.fail(c, fiber.StatusNotFound, "client_not_found", err)
	}
	if messages == nil {
		messages = []json.RawMessage{}
	}
	return c.JSON(fiber.Map{"messages": messages})
}

func (h *workerRoutes) sync(c fiber.Ctx) error {
	return h.tagEvent(c, worker.EventSync, background.TagSyncOrders)
}

func (h *workerRoutes) periodicSync(c fiber.Ctx) error {
	return h.tagEvent(c, worker.EventPeriodicSync, background.TagUpdateProducts)
}

// tagEvent 处理 {tag} 请求体，缺省使用该事件唯一有意义的标签。
func (h *workerRoutes) tagEvent(c fiber.Ctx, kind worker.EventKind, fallback string) error {
	body := tagPayload{Tag: fallback}
	if raw := c.Body(); len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return h.fail(c, fiber.StatusBadRequest, "invalid_tag", err)
		}
	}
	if _, err := h.dispatch(c, worker.Event{Kind: kind, Tag: body.Tag}); err != nil {
		return h.fail(c, fiber.StatusBadGateway, string(kind)+"_failed", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *workerRoutes) push(c fiber.Ctx) error {
	payload := append([]byte(nil), c.Body()...)
	task, err := h.dispatch(c, worker.Event{Kind: worker.EventPush, Payload: payload})
	if err != nil {
		return h.fail(c, fiber.StatusInternalServerError, "push_failed", err)
	}
	if n, ok := task.Result().(*clients.Notification); ok && n != nil {
		return c.Status(fiber.StatusCreated).JSON(n)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *workerRoutes) notifications(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"notifications": h.worker.Notifications().List()})
}

func (h *workerRoutes) notificationClick(c fiber.Ctx) error {
	task, err := h.dispatch(c, worker.Event{Kind: worker.EventNotificationClick, NotificationID: c.Params("id")})
	if err != nil {
		if errors.Is(err, background.ErrNotificationNotFound) {
			return h.fail(c, fiber.StatusNotFound, "notification_not_found", err)
		}
		return h.fail(c, fiber.StatusInternalServerError, "notification_click_failed", err)
	}
	return c.JSON(task.Result())
}

func (h *workerRoutes) dispatch(c fiber.Ctx, ev worker.Event) (*worker.Task, error) {
	ctx := c.Context()
	task := h.worker.Dispatch(ctx, ev)
	return task, task.Wait(ctx)
}

func (h *workerRoutes) fail(c fiber.Ctx, status int, code string, err error) error {
	fields := logrus.Fields{
		"action":     "sw_route",
		"path":       c.Path(),
		"request_id": server.RequestID(c),
		"error":      code,
	}
	payload := fiber.Map{"error": code}
	if err != nil {
		payload["detail"] = err.Error()
		h.logger.WithFields(fields).WithError(err).Warn("sw_route_failed")
	} else {
		h.logger.WithFields(fields).Warn("sw_route_failed")
	}
	return c.Status(status).JSON(payload)
}
