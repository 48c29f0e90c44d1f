package cache

import (
	"fmt"
	"strings"
)

// 支持的存储驱动。
const (
	DriverLevelDB = "leveldb"
	DriverFS      = "fs"
	DriverMemory  = "memory"
)

// OpenStorage 根据驱动名称创建 Storage，path 对 memory 驱动无意义。
func OpenStorage(driver, path string) (Storage, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverLevelDB:
		return NewLevelStorage(path)
	case DriverFS:
		return NewFileStorage(path)
	case DriverMemory:
		return NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
