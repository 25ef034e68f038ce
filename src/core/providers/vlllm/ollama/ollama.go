package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"drug-checker-go/src/core/providers/vlllm"
	"drug-checker-go/src/core/types"
	"drug-checker-go/src/core/utils"
)

// DefaultBaseURL 默认Ollama地址
const DefaultBaseURL = "http://localhost:11434"

// ChatRequest Ollama API请求结构
type ChatRequest struct {
	Model    string                 `json:"model"`
	Messages []ChatMessage          `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// ChatMessage Ollama消息结构
type ChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"` // 纯base64，不带data URL前缀
}

// ChatResponse Ollama API响应结构（NDJSON的一行）
type ChatResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// Backend 本地Ollama后端
type Backend struct {
	config     *vlllm.Config
	logger     *utils.Logger
	httpClient *http.Client
}

func init() {
	vlllm.Register("ollama", NewBackend)
}

// NewBackend 创建Ollama后端
func NewBackend(config *vlllm.Config, logger *utils.Logger) (vlllm.Backend, error) {
	// 不设置客户端超时，调用时长由请求上下文控制
	return &Backend{config: config, logger: logger, httpClient: &http.Client{}}, nil
}

// Initialize Ollama不需要API key，只需要BaseURL
func (b *Backend) Initialize() error {
	if b.config.BaseURL == "" {
		b.config.BaseURL = DefaultBaseURL
	}
	if b.config.ModelName == "" {
		return fmt.Errorf("Ollama model_name is required")
	}
	return nil
}

// Cleanup 清理资源
func (b *Backend) Cleanup() error {
	b.httpClient.CloseIdleConnections()
	return nil
}

// Stream 调用 /api/chat 并逐行解析流式响应
func (b *Backend) Stream(ctx context.Context, req vlllm.Request) (<-chan types.Response, error) {
	message := ChatMessage{Role: "user", Content: req.Prompt}
	if req.Image != nil {
		message.Images = []string{req.Image.Base64}
	}

	options := map[string]interface{}{}
	if b.config.Temperature > 0 {
		options["temperature"] = b.config.Temperature
	}
	if b.config.TopP > 0 {
		options["top_p"] = b.config.TopP
	}
	if b.config.MaxTokens > 0 {
		options["num_predict"] = b.config.MaxTokens
	}

	requestBody, err := json.Marshal(ChatRequest{
		Model:    b.config.ModelName,
		Messages: []ChatMessage{message},
		Stream:   true,
		Options:  options,
	})
	if err != nil {
		return nil, fmt.Errorf("Ollama请求序列化失败: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", strings.TrimSuffix(b.config.BaseURL, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("创建Ollama请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Ollama API调用失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("Ollama API返回错误: %d %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	responseChan := make(chan types.Response, 10)

	go func() {
		defer close(responseChan)
		defer resp.Body.Close()

		decoder := json.NewDecoder(resp.Body)
		for {
			var response ChatResponse
			if err := decoder.Decode(&response); err != nil {
				if !errors.Is(err, io.EOF) {
					responseChan <- types.Response{Error: fmt.Sprintf("解析Ollama响应失败: %v", err)}
				}
				return
			}
			if response.Error != "" {
				responseChan <- types.Response{Error: response.Error}
				return
			}
			if response.Message.Content != "" {
				responseChan <- types.Response{Content: response.Message.Content}
			}
			if response.Done {
				return
			}
		}
	}()

	return responseChan, nil
}
