package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// manifestFile 是预缓存清单文件的结构：
//
//	precache:
//	  - /
//	  - /index.html
type manifestFile struct {
	Precache []string `yaml:"precache"`
}

func loadManifestFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取预缓存清单失败: %w", err)
	}
	var manifest manifestFile
	if err := yaml.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("解析预缓存清单失败: %w", err)
	}
	return manifest.Precache, nil
}
