package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 origin/strategy/命中状态字段，供代理请求日志复用。
func RequestFields(origin, host, strategy, requestID string, fromStore bool) logrus.Fields {
	return logrus.Fields{
		"origin":     origin,
		"host":       host,
		"strategy":   strategy,
		"request_id": requestID,
		"from_store": fromStore,
	}
}

// LifecycleFields 描述某个代际的版本、静态缓存名与状态。
func LifecycleFields(action, version, store, state string) logrus.Fields {
	return logrus.Fields{
		"action":  action,
		"version": version,
		"store":   store,
		"state":   state,
	}
}
