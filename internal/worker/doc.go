// Package worker 是事件分派器：每类宿主事件（install、activate、fetch、message、
// sync、periodicsync、push、notificationclick）对应一个入口方法，
// Dispatch 以异步任务的形式执行任意事件。
package worker
