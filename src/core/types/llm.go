package types

// Response 模型流式返回的一个分片
type Response struct {
	Content    string `json:"content,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Provider 基础提供者接口
type Provider interface {
	Initialize() error
	Cleanup() error
}
