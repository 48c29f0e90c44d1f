// Package lifecycle 以显式有限状态机管理缓存代际：安装时预取清单写入静态缓存，
// 激活时清理过期缓存并接管已打开的应用上下文。
package lifecycle
