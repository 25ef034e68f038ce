package configs

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxBodyBytes 默认请求体上限，需容纳base64编码后的图片
	DefaultMaxBodyBytes = 50 * 1024 * 1024
	DefaultPort         = 5001
	DefaultOrigin       = "https://drug-app-frontend.vercel.app"
)

// Config 主配置结构，启动时构造一次并显式传入各服务
type Config struct {
	Server struct {
		IP           string `yaml:"ip"`
		Port         int    `yaml:"port"`
		MaxBodyBytes int64  `yaml:"max_body_bytes"`
		ModelTimeout string `yaml:"model_timeout"` // 为空表示不设超时
	} `yaml:"server"`

	Log struct {
		LogFormat string `yaml:"log_format"`
		LogLevel  string `yaml:"log_level"`
		LogDir    string `yaml:"log_dir"`
		LogFile   string `yaml:"log_file"`
	} `yaml:"log"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
		MaxAge         string   `yaml:"max_age"`
	} `yaml:"cors"`

	Cache struct {
		Size int    `yaml:"size"` // 0 表示关闭药品说明缓存
		TTL  string `yaml:"ttl"`
	} `yaml:"cache"`

	SelectedModule map[string]string `yaml:"selected_module"`

	VLLLM map[string]VLLMConfig `yaml:"VLLLM"`
}

// SecurityConfig 图片安全配置结构
type SecurityConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size"`    // 最大文件大小（字节）
	MaxPixels      int64    `yaml:"max_pixels"`       // 最大像素数量
	MaxWidth       int      `yaml:"max_width"`        // 最大宽度
	MaxHeight      int      `yaml:"max_height"`       // 最大高度
	AllowedFormats []string `yaml:"allowed_formats"`  // 允许的图片格式
	EnableDeepScan bool     `yaml:"enable_deep_scan"` // 启用深度安全扫描

	// 模型端可直接处理但本地无法解码的格式，只做大小、文件头与恶意内容检查后原样转发
	PassthroughFormats []string `yaml:"passthrough_formats"`
}

// UnmarshalYAML 以默认值为底，配置文件中只需写要改的字段
func (s *SecurityConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain SecurityConfig
	out := plain(DefaultSecurityConfig())
	if err := value.Decode(&out); err != nil {
		return err
	}
	*s = SecurityConfig(out)
	return nil
}

// fillDefaults 为零值字段补全默认限制
func (s *SecurityConfig) fillDefaults(backendType string) {
	if s.MaxFileSize == 0 && s.MaxPixels == 0 && s.MaxWidth == 0 && s.MaxHeight == 0 &&
		s.AllowedFormats == nil && s.PassthroughFormats == nil && !s.EnableDeepScan {
		// 没有 security 段
		s.EnableDeepScan = true
	}
	def := DefaultSecurityConfig()
	if s.MaxFileSize <= 0 {
		s.MaxFileSize = def.MaxFileSize
	}
	if s.MaxPixels <= 0 {
		s.MaxPixels = def.MaxPixels
	}
	if s.MaxWidth <= 0 {
		s.MaxWidth = def.MaxWidth
	}
	if s.MaxHeight <= 0 {
		s.MaxHeight = def.MaxHeight
	}
	if len(s.AllowedFormats) == 0 {
		s.AllowedFormats = def.AllowedFormats
	}
	// 显式写 passthrough_formats: [] 可关闭
	if s.PassthroughFormats == nil {
		s.PassthroughFormats = DefaultPassthroughFormats(backendType)
	}
}

// VLLMConfig 多模态模型配置
type VLLMConfig struct {
	Type        string                 `yaml:"type"`        // gemini / openai / ollama
	ModelName   string                 `yaml:"model_name"`  // 模型名称
	BaseURL     string                 `yaml:"url"`         // API地址
	APIKey      string                 `yaml:"api_key"`     // API密钥
	Temperature float64                `yaml:"temperature"` // 温度参数
	MaxTokens   int                    `yaml:"max_tokens"`  // 最大令牌数
	TopP        float64                `yaml:"top_p"`       // TopP参数
	Security    SecurityConfig         `yaml:"security"`    // 图片安全配置
	Extra       map[string]interface{} `yaml:",inline"`     // 额外配置
}

// DefaultSecurityConfig 未配置时使用的图片限制
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxFileSize:    20 * 1024 * 1024,
		MaxPixels:      40 * 1000 * 1000,
		MaxWidth:       8192,
		MaxHeight:      8192,
		AllowedFormats: []string{"jpeg", "jpg", "png", "gif", "webp"},
		EnableDeepScan: true,
	}
}

// DefaultPassthroughFormats 各模型后端默认直接转发的格式
func DefaultPassthroughFormats(backendType string) []string {
	switch strings.ToLower(backendType) {
	case "gemini":
		return []string{"heic", "heif", "pdf"}
	}
	return nil
}

// Default 返回一份可直接运行的默认配置（Gemini + 生产前端域名）
func Default() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

// LoadConfig 从文件加载配置，path为空时依次尝试 .config.yaml 与 config.yaml；
// 两者都不存在时使用默认配置
func LoadConfig(path string) (*Config, string, error) {
	if path == "" {
		path = ".config.yaml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			path = "config.yaml"
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			config := Default()
			config.applyEnv()
			return config, "", config.Validate()
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, err
	}

	config, err := Parse(data)
	if err != nil {
		return nil, path, err
	}
	return config, path, nil
}

// Parse 解析YAML配置，补全默认值并应用环境变量覆盖
func Parse(data []byte) (*Config, error) {
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	config.applyDefaults()
	config.applyEnv()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Log.LogLevel == "" {
		c.Log.LogLevel = "info"
	}
	if c.Log.LogDir != "" && c.Log.LogFile == "" {
		c.Log.LogFile = "server.log"
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{DefaultOrigin}
	}
	if c.Cache.TTL == "" {
		c.Cache.TTL = "1h"
	}
	if c.SelectedModule == nil {
		c.SelectedModule = map[string]string{}
	}
	if c.SelectedModule["VLLLM"] == "" {
		c.SelectedModule["VLLLM"] = "GeminiVLLM"
	}
	if c.VLLLM == nil {
		c.VLLLM = map[string]VLLMConfig{}
	}
	if _, ok := c.VLLLM["GeminiVLLM"]; !ok && c.SelectedModule["VLLLM"] == "GeminiVLLM" {
		c.VLLLM["GeminiVLLM"] = VLLMConfig{
			Type:      "gemini",
			ModelName: "gemini-2.5-pro",
		}
	}
	for name, v := range c.VLLLM {
		v.Security.fillDefaults(v.Type)
		c.VLLLM[name] = v
	}
}

// applyEnv 环境变量优先于配置文件（密钥不落盘）
func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		var list []string
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				list = append(list, o)
			}
		}
		if len(list) > 0 {
			c.CORS.AllowedOrigins = list
		}
	}
	for name, v := range c.VLLLM {
		if v.APIKey != "" {
			continue
		}
		switch strings.ToLower(v.Type) {
		case "gemini":
			v.APIKey = os.Getenv("GEMINI_API_KEY")
		case "openai":
			v.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		c.VLLLM[name] = v
	}
}

// Validate 校验配置的基本一致性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("无效的端口: %d", c.Server.Port)
	}
	selected := c.SelectedModule["VLLLM"]
	if _, ok := c.VLLLM[selected]; !ok {
		return fmt.Errorf("未找到选中的VLLLM配置: %s", selected)
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("cors.allowed_origins 不能为空")
	}
	for _, origin := range c.CORS.AllowedOrigins {
		if err := validateOrigin(origin); err != nil {
			return err
		}
	}
	if _, err := c.ModelTimeout(); err != nil {
		return err
	}
	if _, err := c.CacheTTL(); err != nil {
		return err
	}
	return nil
}

// validateOrigin 来源必须是带 http/https 协议的完整地址，否则CORS中间件会在启动时panic
func validateOrigin(origin string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("无效的CORS来源 %q: %w", origin, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("无效的CORS来源 %q: 需要形如 https://example.com", origin)
	}
	return nil
}

// SelectedVLLM 返回当前选中的多模态模型配置
func (c *Config) SelectedVLLM() (string, VLLMConfig) {
	name := c.SelectedModule["VLLLM"]
	return name, c.VLLLM[name]
}

// ModelTimeout 单次模型调用超时，0 表示不限制
func (c *Config) ModelTimeout() (time.Duration, error) {
	if c.Server.ModelTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Server.ModelTimeout)
	if err != nil {
		return 0, fmt.Errorf("无效的 model_timeout: %w", err)
	}
	return d, nil
}

// CacheTTL 药品说明缓存有效期
func (c *Config) CacheTTL() (time.Duration, error) {
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 0, fmt.Errorf("无效的 cache.ttl: %w", err)
	}
	return d, nil
}

// CORSMaxAge 预检缓存时间，默认12小时
func (c *Config) CORSMaxAge() time.Duration {
	if c.CORS.MaxAge == "" {
		return 12 * time.Hour
	}
	d, err := time.ParseDuration(c.CORS.MaxAge)
	if err != nil {
		return 12 * time.Hour
	}
	return d
}
