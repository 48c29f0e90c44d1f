// Package background 实现请求路径之外的唤醒处理：延迟同步、周期同步、
// 推送通知展示以及通知点击。
package background
