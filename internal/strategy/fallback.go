package strategy

import (
	"mime"
	"net/http"

	"github.com/any-hub/swcache/internal/fetch"
)

const noopScript = "/* offline */\n"

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="200" viewBox="0 0 200 200">` +
	`<rect width="200" height="200" fill="#e5e7eb"/>` +
	`<text x="100" y="105" font-family="sans-serif" font-size="14" fill="#9ca3af" text-anchor="middle">Image</text>` +
	`</svg>`

var fontTypes = map[string]string{
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".eot":   "application/vnd.ms-fontobject",
}

// assetFallback 根据扩展名返回降级资源：空样式表、空操作脚本或空字体。
func assetFallback(ext string) *fetch.Response {
	switch ext {
	case ".css":
		return fetch.NewResponse(http.StatusOK, "text/css; charset=utf-8", nil)
	case ".js", ".mjs":
		return fetch.NewResponse(http.StatusOK, "application/javascript; charset=utf-8", []byte(noopScript))
	}
	if contentType, ok := fontTypes[ext]; ok {
		return fetch.NewResponse(http.StatusOK, contentType, nil)
	}
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return fetch.NewResponse(http.StatusOK, contentType, nil)
}

func svgPlaceholder() *fetch.Response {
	return fetch.NewResponse(http.StatusOK, "image/svg+xml", []byte(placeholderSVG))
}

func emptyList() *fetch.Response {
	return fetch.NewResponse(http.StatusOK, "application/json", []byte("[]"))
}
