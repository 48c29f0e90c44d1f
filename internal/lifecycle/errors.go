package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrAssetFetch 表示安装期某个必需资源无法获取，本次安装整体失败。
	ErrAssetFetch = errors.New("install asset fetch failed")
	// ErrInvalidTransition 表示状态机收到非法的状态迁移。
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrNoWaiting 表示当前没有处于 waiting 的代际可以激活。
	ErrNoWaiting = errors.New("no waiting generation")
)

// AssetFetchError 记录导致安装失败的资源。
type AssetFetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *AssetFetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("install asset %s: %v", e.URL, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("install asset %s: unexpected status %d", e.URL, e.Status)
	default:
		return fmt.Sprintf("install asset %s failed", e.URL)
	}
}

func (e *AssetFetchError) Unwrap() error { return e.Err }

func (e *AssetFetchError) Is(target error) bool { return target == ErrAssetFetch }

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
