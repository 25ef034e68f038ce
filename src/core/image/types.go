package image

import "strings"

// ImageData 请求中携带的图片
type ImageData struct {
	Data     string `json:"data,omitempty"`      // base64编码的图片数据
	MIMEType string `json:"mime_type,omitempty"` // 声明的MIME类型，如 image/jpeg
}

// Format 由MIME类型推出的格式名：jpeg, png, webp, gif, heic, pdf ...
func (d ImageData) Format() string {
	return FormatFromMIME(d.MIMEType)
}

// FormatFromMIME image/jpeg -> jpeg，application/pdf -> pdf，无法识别时返回空串
func FormatFromMIME(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "application/pdf" {
		return "pdf"
	}
	if !strings.HasPrefix(mt, "image/") {
		return ""
	}
	format := strings.TrimPrefix(mt, "image/")
	if format == "jpg" || format == "pjpeg" {
		return "jpeg"
	}
	return format
}

// ProcessedImage 校验通过、可直接交给模型的图片
type ProcessedImage struct {
	Base64   string
	Bytes    []byte
	MIMEType string
	Format   string // 实际解码出的格式；直接转发的格式为声明格式
	Width    int
	Height   int
}

// ValidationResult 图片验证结果
type ValidationResult struct {
	IsValid      bool   // 是否有效
	Format       string // 实际格式
	Width        int    // 图片宽度
	Height       int    // 图片高度
	FileSize     int64  // 文件大小
	Error        error  // 错误信息
	SecurityRisk string // 安全风险描述
}
