// Copyright 2026 fanjia1024
// 基于环境变量的 secret store

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type envStore struct{}

// NewEnvStore 创建环境变量 secret store。
// 配置里的 secret 名是 kebab-case（如 brevo-api-key），
// 读写前统一转成环境变量惯用的形式（BREVO_API_KEY）。
func NewEnvStore() Store {
	return &envStore{}
}

// envKey 把 secret 名转成环境变量名：大写,连字符换下划线
func envKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func (e *envStore) Get(ctx context.Context, key string) (string, error) {
	name := envKey(key)
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("environment variable not set: %s", name)
	}
	return value, nil
}

func (e *envStore) Set(ctx context.Context, key string, value string) error {
	return os.Setenv(envKey(key), value)
}

func (e *envStore) Delete(ctx context.Context, key string) error {
	return os.Unsetenv(envKey(key))
}

func (e *envStore) List(ctx context.Context, prefix string) ([]string, error) {
	want := envKey(prefix)
	var keys []string
	for _, env := range os.Environ() {
		name, _, ok := strings.Cut(env, "=")
		if ok && strings.HasPrefix(name, want) {
			keys = append(keys, name)
		}
	}
	return keys, nil
}
