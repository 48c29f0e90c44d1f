package version

import "fmt"

// Version/Commit 可在构建时通过 -ldflags 注入，默认使用开发占位符。
// 注意：这是 swcache 程序自身的版本，与被代理应用的缓存版本号（App.Version）无关。
var (
	Version = "0.1.0"
	Commit  = "dev"
)

// Full 返回便于 CLI 打印的完整版本信息。
func Full() string {
	return fmt.Sprintf("swcache %s (%s)", Version, Commit)
}
