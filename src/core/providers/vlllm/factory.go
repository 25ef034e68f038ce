package vlllm

import (
	"fmt"
	"sort"
	"sync"

	"drug-checker-go/src/configs"
	"drug-checker-go/src/core/utils"
)

// Factory 模型后端工厂函数类型
type Factory func(config *Config, logger *utils.Logger) (Backend, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register 注册模型后端工厂，通常在后端包的 init 中调用
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

func lookup(name string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// Create 根据配置创建并初始化VLLLM提供者
func Create(name string, vlllmConfig *configs.VLLMConfig, logger *utils.Logger) (*Provider, error) {
	config := &Config{
		Name:        name,
		Type:        vlllmConfig.Type,
		ModelName:   vlllmConfig.ModelName,
		BaseURL:     vlllmConfig.BaseURL,
		APIKey:      vlllmConfig.APIKey,
		Temperature: vlllmConfig.Temperature,
		MaxTokens:   vlllmConfig.MaxTokens,
		TopP:        vlllmConfig.TopP,
		Security:    vlllmConfig.Security,
		Data:        vlllmConfig.Extra,
	}

	provider, err := NewProvider(config, logger)
	if err != nil {
		return nil, fmt.Errorf("创建VLLLM提供者失败: %w", err)
	}

	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("初始化VLLLM提供者失败: %w", err)
	}

	logger.Debug("VLLLM提供者创建成功", map[string]interface{}{
		"name":       name,
		"type":       config.Type,
		"model_name": config.ModelName,
	})

	return provider, nil
}

// GetRegisteredProviders 获取已注册的后端类型列表
func GetRegisteredProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	var providers []string
	for name := range factories {
		providers = append(providers, name)
	}
	sort.Strings(providers)
	return providers
}
