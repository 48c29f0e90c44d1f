package routes

import (
	"sort"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/swcache/internal/server"
	"github.com/any-hub/swcache/internal/strategy"
)

// RegisterOriginRoutes 暴露 /-/sw/origins 与 /-/sw/strategies 诊断接口，
// 供运维查询 Host 映射关系与可用策略。
func RegisterOriginRoutes(app *fiber.App, registry *server.OriginRegistry) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/sw/origins", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"origins":       encodeOriginBindings(registry.List()),
			"allow_forward": registry.AllowForward(),
		})
	})

	app.Get("/-/sw/strategies", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"strategies": strategy.List()})
	})

	app.Get("/-/sw/strategies/:key", func(c fiber.Ctx) error {
		meta, ok := strategy.Resolve(strategy.Kind(c.Params("key")))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "strategy_not_found"})
		}
		return c.JSON(meta)
	})
}

type originBindingPayload struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Upstream string `json:"upstream"`
	Port     int    `json:"port"`
}

func encodeOriginBindings(routes []server.OriginRoute) []originBindingPayload {
	if len(routes) == 0 {
		return nil
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Config.Name < routes[j].Config.Name
	})
	result := make([]originBindingPayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, originBindingPayload{
			Name:     route.Config.Name,
			Domain:   route.Config.Domain,
			Upstream: route.UpstreamURL.String(),
			Port:     route.ListenPort,
		})
	}
	return result
}
