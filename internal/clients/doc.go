// Package clients 维护进程内的应用上下文（页面）与已展示通知，
// 供生命周期 claim、控制通道回复以及通知点击处理使用。
package clients
