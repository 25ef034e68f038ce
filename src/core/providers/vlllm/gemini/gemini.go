package gemini

import (
	"context"
	"errors"
	"fmt"

	"drug-checker-go/src/core/providers/vlllm"
	"drug-checker-go/src/core/types"
	"drug-checker-go/src/core/utils"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// DefaultModel 未配置模型名时使用
const DefaultModel = "gemini-2.5-pro"

// Backend Google Gemini 后端
type Backend struct {
	config *vlllm.Config
	logger *utils.Logger
	client *genai.Client
	model  *genai.GenerativeModel
}

func init() {
	vlllm.Register("gemini", NewBackend)
}

// NewBackend 创建Gemini后端
func NewBackend(config *vlllm.Config, logger *utils.Logger) (vlllm.Backend, error) {
	if config.ModelName == "" {
		config.ModelName = DefaultModel
	}
	return &Backend{config: config, logger: logger}, nil
}

// Initialize 创建 genai 客户端
func (b *Backend) Initialize() error {
	if b.config.APIKey == "" {
		return fmt.Errorf("Gemini API key is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(b.config.APIKey)}
	if b.config.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(b.config.BaseURL))
	}

	client, err := genai.NewClient(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(b.config.ModelName)
	if b.config.Temperature > 0 {
		model.SetTemperature(float32(b.config.Temperature))
	}
	if b.config.TopP > 0 {
		model.SetTopP(float32(b.config.TopP))
	}
	if b.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(b.config.MaxTokens))
	}

	b.client = client
	b.model = model
	return nil
}

// Cleanup 关闭客户端
func (b *Backend) Cleanup() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// Stream 调用 GenerateContentStream，提示词在前、图片在后
func (b *Backend) Stream(ctx context.Context, req vlllm.Request) (<-chan types.Response, error) {
	if b.model == nil {
		return nil, fmt.Errorf("Gemini backend not initialized")
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	if req.Image != nil {
		parts = append(parts, genai.Blob{
			MIMEType: req.Image.MIMEType,
			Data:     req.Image.Bytes,
		})
	}

	responseChan := make(chan types.Response, 10)

	go func() {
		defer close(responseChan)

		iter := b.model.GenerateContentStream(ctx, parts...)
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				b.logger.Error("Gemini API调用失败", map[string]interface{}{
					"model": b.config.ModelName,
					"error": err.Error(),
				})
				responseChan <- types.Response{Error: err.Error()}
				return
			}

			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}
			candidate := resp.Candidates[0]
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(genai.Text); ok && text != "" {
					responseChan <- types.Response{Content: string(text)}
				}
			}
			if candidate.FinishReason == genai.FinishReasonSafety {
				responseChan <- types.Response{Error: "response blocked by safety filter"}
				return
			}
		}

		b.logger.Debug("Gemini 流式回复完成")
	}()

	return responseChan, nil
}
