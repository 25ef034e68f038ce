package vlllm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"drug-checker-go/src/configs"
	"drug-checker-go/src/core/image"
	"drug-checker-go/src/core/types"
	"drug-checker-go/src/core/utils"
)

// Config VLLLM配置结构
type Config struct {
	Name        string
	Type        string
	ModelName   string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	TopP        float64
	Security    configs.SecurityConfig
	Data        map[string]interface{}
}

// Request 一次模型调用的输入，Image 为空时是纯文本调用
type Request struct {
	Prompt string
	Image  *image.ProcessedImage
}

// Backend 具体模型服务的接入（gemini / openai / ollama）
type Backend interface {
	types.Provider
	// Stream 发起调用，按到达顺序返回分片；出错时发送一个 Error 非空的分片后关闭
	Stream(ctx context.Context, req Request) (<-chan types.Response, error)
}

// Provider VLLLM提供者：图片校验 + 后端调用 + 分片收集
type Provider struct {
	config         *Config
	backend        Backend
	imageProcessor *image.ImageProcessor
	logger         *utils.Logger
	timeout        time.Duration
}

// NewProvider 按 config.Type 选择已注册的后端创建提供者
func NewProvider(config *Config, logger *utils.Logger) (*Provider, error) {
	typ := strings.ToLower(config.Type)
	factory, ok := lookup(typ)
	if !ok {
		return nil, fmt.Errorf("不支持的VLLLM类型: %s", config.Type)
	}

	backend, err := factory(config, logger)
	if err != nil {
		return nil, err
	}

	return NewProviderWithBackend(config, backend, logger), nil
}

// NewProviderWithBackend 使用给定后端创建提供者
func NewProviderWithBackend(config *Config, backend Backend, logger *utils.Logger) *Provider {
	return &Provider{
		config:         config,
		backend:        backend,
		imageProcessor: image.NewImageProcessor(config.Security, logger),
		logger:         logger,
	}
}

// SetTimeout 设置单次调用超时，0 表示只受请求上下文约束
func (p *Provider) SetTimeout(d time.Duration) {
	p.timeout = d
}

// Initialize 初始化Provider
func (p *Provider) Initialize() error {
	if err := p.backend.Initialize(); err != nil {
		return err
	}
	p.logger.Debug("VLLLM Provider初始化成功", map[string]interface{}{
		"type":       p.config.Type,
		"model_name": p.config.ModelName,
	})
	return nil
}

// Cleanup 清理资源
func (p *Provider) Cleanup() error {
	if err := p.backend.Cleanup(); err != nil {
		return err
	}
	p.logger.Info("VLLLM Provider清理完成")
	return nil
}

// ResponseWithImage 处理包含图片的请求
func (p *Provider) ResponseWithImage(ctx context.Context, imageData image.ImageData, text string) (<-chan types.Response, error) {
	processed, err := p.imageProcessor.ProcessImage(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("图片处理失败: %w", err)
	}

	p.logger.Debug("开始调用多模态API", map[string]interface{}{
		"type":       p.config.Type,
		"model_name": p.config.ModelName,
		"image_size": len(processed.Bytes),
		"format":     processed.Format,
	})

	return p.backend.Stream(ctx, Request{Prompt: text, Image: processed})
}

// Response 纯文本请求
func (p *Provider) Response(ctx context.Context, text string) (<-chan types.Response, error) {
	return p.backend.Stream(ctx, Request{Prompt: text})
}

// Generate 发起调用并收集完整回复，img 为空时走纯文本
func (p *Provider) Generate(ctx context.Context, prompt string, img *image.ImageData) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var (
		responseChan <-chan types.Response
		err          error
	)
	if img != nil {
		responseChan, err = p.ResponseWithImage(ctx, *img, prompt)
	} else {
		responseChan, err = p.Response(ctx, prompt)
	}
	if err != nil {
		return "", err
	}

	var result strings.Builder
	var streamErr error
	isActive := true
	for chunk := range responseChan {
		if streamErr != nil {
			continue
		}
		if chunk.Error != "" {
			streamErr = errors.New(chunk.Error)
			continue
		}
		var content string
		if content, isActive = handleThinkTags(chunk.Content, isActive); content != "" {
			result.WriteString(content)
		}
	}
	if streamErr != nil {
		return "", fmt.Errorf("%s 调用失败: %w", p.config.Type, streamErr)
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s 调用中断: %w", p.config.Type, err)
	}

	return result.String(), nil
}

// handleThinkTags 过滤 <think>...</think> 之间的分片
func handleThinkTags(content string, isActive bool) (string, bool) {
	if content == "" {
		return "", isActive
	}

	if content == "<think>" {
		return "", false
	}
	if content == "</think>" {
		return "", true
	}

	if !isActive {
		return "", isActive
	}

	return content, isActive
}

// GetConfig 获取配置信息
func (p *Provider) GetConfig() *Config {
	return p.config
}
