// Package strategy 实现请求分类（Classify）与四种缓存策略：
// cache-first、image-cache-first、network-first、network-first-update。
// 每个策略在 init() 中向注册表登记元数据，供诊断端点展示。
package strategy
