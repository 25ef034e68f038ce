package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"drug-checker-go/src/configs"
	"drug-checker-go/src/core/utils"

	_ "image/gif"  // 注册GIF解码器
	_ "image/jpeg" // 注册JPEG解码器
	_ "image/png"  // 注册PNG解码器

	_ "golang.org/x/image/webp" // 注册WEBP解码器
)

// ImageSecurityValidator 图片安全验证器
type ImageSecurityValidator struct {
	config *configs.SecurityConfig
	logger *utils.Logger
}

// NewImageSecurityValidator 创建新的图片安全验证器
func NewImageSecurityValidator(config *configs.SecurityConfig, logger *utils.Logger) *ImageSecurityValidator {
	return &ImageSecurityValidator{
		config: config,
		logger: logger,
	}
}

// 图片格式魔数签名
var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46}, // RIFF，需要进一步检查WEBP标识
}

// DecodeBase64 解码base64图片数据，兼容 data:image/png;base64, 前缀与URL安全编码
func DecodeBase64(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if strings.HasPrefix(data, "data:") {
		if i := strings.Index(data, ","); i >= 0 {
			data = data[i+1:]
		}
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err == nil {
		return raw, nil
	}
	if raw, urlErr := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); urlErr == nil {
		return raw, nil
	}
	return nil, err
}

// ValidateImageData 验证图片数据，成功时同时返回解码后的字节
func (v *ImageSecurityValidator) ValidateImageData(imageData ImageData) (ValidationResult, []byte) {
	result := ValidationResult{IsValid: false}

	if imageData.Data == "" {
		result.Error = fmt.Errorf("缺少图片数据")
		return result, nil
	}

	imageBytes, err := DecodeBase64(imageData.Data)
	if err != nil {
		result.Error = fmt.Errorf("base64解码失败: %v", err)
		result.SecurityRisk = "无效的base64数据"
		return result, nil
	}

	result = v.deepValidateImage(imageBytes, imageData.Format())
	if !result.IsValid {
		return result, nil
	}
	return result, imageBytes
}

// deepValidateImage 深度验证图片
func (v *ImageSecurityValidator) deepValidateImage(data []byte, declaredFormat string) ValidationResult {
	result := ValidationResult{IsValid: false}

	// 1. 基础大小检查
	if int64(len(data)) > v.config.MaxFileSize {
		result.Error = fmt.Errorf("文件大小超限: %d bytes，最大允许: %d bytes", len(data), v.config.MaxFileSize)
		result.SecurityRisk = "文件过大，可能是DoS攻击"
		v.logger.Warn("检测到超大文件", map[string]interface{}{
			"size":     len(data),
			"max_size": v.config.MaxFileSize,
			"format":   declaredFormat,
		})
		return result
	}

	// 2. 格式支持检查
	passthrough := v.isPassthrough(declaredFormat)
	if declaredFormat == "" || (!passthrough && !v.isFormatAllowed(declaredFormat)) {
		result.Error = fmt.Errorf("不支持的格式: %q", declaredFormat)
		return result
	}

	// 3. 恶意内容检测
	if v.config.EnableDeepScan && v.scanForMaliciousContent(data) {
		result.Error = fmt.Errorf("检测到潜在恶意内容")
		result.SecurityRisk = "可能包含恶意载荷"
		v.logger.Warn("检测到可疑内容", map[string]interface{}{
			"format": declaredFormat,
			"size":   len(data),
		})
		return result
	}

	// 4. 本地无法解码的格式只核对文件头
	if passthrough {
		return v.validatePassthrough(data, declaredFormat)
	}

	// 5. 解码验证
	decodeResult := v.validateImageDecoding(data, declaredFormat)
	if !decodeResult.IsValid && !v.validateFileSignature(data, declaredFormat) {
		v.logger.Warn("文件头与声明格式不符", map[string]interface{}{
			"declared_format": declaredFormat,
			"actual_header":   fmt.Sprintf("%x", data[:min(len(data), 16)]),
		})
	}
	return decodeResult
}

// validateFileSignature 验证文件头签名
func (v *ImageSecurityValidator) validateFileSignature(data []byte, format string) bool {
	signature, exists := imageSignatures[strings.ToLower(format)]
	if !exists || len(data) < len(signature) {
		return false
	}
	if !bytes.HasPrefix(data, signature) {
		return false
	}

	// WEBP需要额外验证
	if strings.ToLower(format) == "webp" {
		return len(data) >= 12 && bytes.Equal(data[8:12], []byte("WEBP"))
	}
	return true
}

// 直接转发格式的文件头：偏移与内容
var passthroughSignatures = map[string]struct {
	offset    int
	signature []byte
}{
	"pdf":  {0, []byte("%PDF-")},
	"heic": {4, []byte("ftyp")},
	"heif": {4, []byte("ftyp")},
	"avif": {4, []byte("ftyp")},
}

// isPassthrough 检查格式是否由模型端直接处理
func (v *ImageSecurityValidator) isPassthrough(format string) bool {
	if format == "" {
		return false
	}
	for _, f := range v.config.PassthroughFormats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

// validatePassthrough 不解码，核对文件头后原样放行
func (v *ImageSecurityValidator) validatePassthrough(data []byte, format string) ValidationResult {
	result := ValidationResult{Format: format, FileSize: int64(len(data))}

	if sig, ok := passthroughSignatures[strings.ToLower(format)]; ok {
		end := sig.offset + len(sig.signature)
		if len(data) < end || !bytes.Equal(data[sig.offset:end], sig.signature) {
			result.Error = fmt.Errorf("文件头与声明格式 %s 不符", format)
			result.SecurityRisk = "文件头与声明格式不符"
			v.logger.Warn("文件头与声明格式不符", map[string]interface{}{
				"declared_format": format,
				"actual_header":   fmt.Sprintf("%x", data[:min(len(data), 16)]),
			})
			return result
		}
	}

	result.IsValid = true
	v.logger.Debug("直接转发格式验证成功", map[string]interface{}{
		"format": format,
		"size":   result.FileSize,
	})
	return result
}

// isFormatAllowed 检查格式是否被允许
func (v *ImageSecurityValidator) isFormatAllowed(format string) bool {
	for _, allowedFormat := range v.config.AllowedFormats {
		if strings.EqualFold(allowedFormat, format) {
			return true
		}
	}
	return false
}

// scanForMaliciousContent 扫描恶意内容
func (v *ImageSecurityValidator) scanForMaliciousContent(data []byte) bool {
	// 能正常解码的图片只做基本检查
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return v.securityCheck(data, false)
	}
	v.logger.Debug("文件无法解码为标准图片格式，进行完整的安全检测")
	return v.securityCheck(data, true)
}

var executableSignatures = []struct {
	name      string
	signature []byte
	fullOnly  bool
}{
	{"PE", []byte{0x4D, 0x5A}, false},
	{"ELF", []byte{0x7F, 0x45, 0x4C, 0x46}, false},
	{"Mach-O", []byte{0xCA, 0xFE, 0xBA, 0xBE}, true},
	{"ZIP", []byte{0x50, 0x4B, 0x03, 0x04}, true},
	{"GZIP", []byte{0x1F, 0x8B, 0x08}, true},
}

// securityCheck 检查文件开头的可执行/压缩签名与SVG脚本
func (v *ImageSecurityValidator) securityCheck(data []byte, full bool) bool {
	for _, sig := range executableSignatures {
		if sig.fullOnly && !full {
			continue
		}
		if bytes.HasPrefix(data, sig.signature) {
			v.logger.Warn("文件开头检测到可疑签名", map[string]interface{}{
				"signature_type": sig.name,
				"signature_hex":  fmt.Sprintf("%x", sig.signature),
			})
			return true
		}
	}

	dataStr := strings.ToLower(string(data))
	if strings.Contains(dataStr, "<svg") {
		return v.checkSVGScripts(dataStr)
	}
	return false
}

var suspiciousSVGStrings = []string{
	"<script",
	"javascript:",
	"vbscript:",
	"onload=",
	"onerror=",
	"eval(",
	"document.cookie",
	"window.location",
	"<iframe",
	"<object",
	"<embed",
}

// checkSVGScripts 检查SVG文件中的脚本内容，入参已转为小写
func (v *ImageSecurityValidator) checkSVGScripts(dataStrLower string) bool {
	for _, suspicious := range suspiciousSVGStrings {
		if strings.Contains(dataStrLower, suspicious) {
			v.logger.Warn("在SVG中检测到可疑脚本内容", map[string]interface{}{
				"suspicious_content": suspicious,
			})
			return true
		}
	}
	return false
}

// validateImageDecoding 验证图片解码与尺寸
func (v *ImageSecurityValidator) validateImageDecoding(data []byte, format string) ValidationResult {
	result := ValidationResult{Format: format}

	config, actualFormat, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		result.Error = fmt.Errorf("图片解码失败: %v", err)
		result.SecurityRisk = "可能包含恶意载荷或损坏的图片数据"
		return result
	}
	if actualFormat != "" {
		result.Format = actualFormat
	}

	if config.Width > v.config.MaxWidth || config.Height > v.config.MaxHeight {
		result.Error = fmt.Errorf("图片尺寸超限: %dx%d，最大允许: %dx%d",
			config.Width, config.Height, v.config.MaxWidth, v.config.MaxHeight)
		result.SecurityRisk = "图片过大，可能消耗过多资源"
		return result
	}

	totalPixels := int64(config.Width) * int64(config.Height)
	if totalPixels > v.config.MaxPixels {
		result.Error = fmt.Errorf("像素总数超限: %d，最大允许: %d", totalPixels, v.config.MaxPixels)
		result.SecurityRisk = "像素过多，可能导致内存耗尽"
		return result
	}

	result.IsValid = true
	result.Width = config.Width
	result.Height = config.Height
	result.FileSize = int64(len(data))

	v.logger.Debug("图片验证成功", map[string]interface{}{
		"format": result.Format,
		"width":  result.Width,
		"height": result.Height,
		"size":   result.FileSize,
	})

	return result
}
