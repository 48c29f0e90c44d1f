package strategy

import (
	"errors"
	"fmt"
)

// ErrNetwork 表示请求期网络失败且没有任何可用的回退。
var ErrNetwork = errors.New("network request failed")

// NetworkError 携带失败请求的 URL 与底层错误，errors.Is(err, ErrNetwork) 为真。
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("network request failed: %s", e.URL)
	}
	return fmt.Sprintf("network request failed: %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }
