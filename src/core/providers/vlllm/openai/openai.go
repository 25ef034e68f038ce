package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	"drug-checker-go/src/core/providers/vlllm"
	"drug-checker-go/src/core/types"
	"drug-checker-go/src/core/utils"

	"github.com/sashabaranov/go-openai"
)

// Backend OpenAI 兼容接口后端（也可接 glm-4v 等兼容服务）
type Backend struct {
	config *vlllm.Config
	logger *utils.Logger
	client *openai.Client
}

func init() {
	vlllm.Register("openai", NewBackend)
}

// NewBackend 创建OpenAI后端
func NewBackend(config *vlllm.Config, logger *utils.Logger) (vlllm.Backend, error) {
	return &Backend{config: config, logger: logger}, nil
}

// Initialize 初始化客户端
func (b *Backend) Initialize() error {
	if b.config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(b.config.APIKey)
	if b.config.BaseURL != "" {
		clientConfig.BaseURL = b.config.BaseURL
	}
	b.client = openai.NewClientWithConfig(clientConfig)
	return nil
}

// Cleanup 清理资源
func (b *Backend) Cleanup() error {
	return nil
}

// buildMessage 构建用户消息，有图片时使用多模态内容
func buildMessage(req vlllm.Request) openai.ChatCompletionMessage {
	if req.Image == nil {
		return openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		}
	}
	return openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeText,
				Text: req.Prompt,
			},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", req.Image.MIMEType, req.Image.Base64),
				},
			},
		},
	}
}

// Stream 调用 Chat Completions 流式接口
func (b *Backend) Stream(ctx context.Context, req vlllm.Request) (<-chan types.Response, error) {
	if b.client == nil {
		return nil, fmt.Errorf("OpenAI backend not initialized")
	}

	request := openai.ChatCompletionRequest{
		Model:       b.config.ModelName,
		Messages:    []openai.ChatCompletionMessage{buildMessage(req)},
		Stream:      true,
		Temperature: float32(b.config.Temperature),
		TopP:        float32(b.config.TopP),
	}
	if b.config.MaxTokens > 0 {
		request.MaxTokens = b.config.MaxTokens
	}

	stream, err := b.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		b.logger.Error("OpenAI API调用失败", map[string]interface{}{
			"model": b.config.ModelName,
			"error": err.Error(),
		})
		return nil, fmt.Errorf("OpenAI API调用失败: %w", err)
	}

	responseChan := make(chan types.Response, 10)

	go func() {
		defer close(responseChan)
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				responseChan <- types.Response{Error: err.Error()}
				return
			}

			if len(response.Choices) > 0 {
				choice := response.Choices[0]
				if choice.Delta.Content != "" {
					responseChan <- types.Response{Content: choice.Delta.Content}
				}
				if choice.FinishReason != "" {
					responseChan <- types.Response{StopReason: string(choice.FinishReason)}
				}
			}
		}

		b.logger.Debug("OpenAI 流式回复完成")
	}()

	return responseChan, nil
}
