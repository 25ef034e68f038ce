package image

import (
	"context"
	"encoding/base64"
	"fmt"

	"drug-checker-go/src/configs"
	"drug-checker-go/src/core/metrics"
	"drug-checker-go/src/core/utils"
)

// ImageProcessor 图片处理器：校验请求中的base64图片并整理成模型可用的形式
type ImageProcessor struct {
	validator *ImageSecurityValidator
	logger    *utils.Logger
}

// NewImageProcessor 创建新的图片处理器
func NewImageProcessor(security configs.SecurityConfig, logger *utils.Logger) *ImageProcessor {
	return &ImageProcessor{
		validator: NewImageSecurityValidator(&security, logger),
		logger:    logger,
	}
}

// ProcessImage 校验图片，返回规范化后的base64与原始字节
func (p *ImageProcessor) ProcessImage(ctx context.Context, imageData ImageData) (*ProcessedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.logger.Debug("Base64图片处理开始", map[string]interface{}{
		"mime_type":   imageData.MIMEType,
		"data_length": len(imageData.Data),
	})

	validationResult, raw := p.validator.ValidateImageData(imageData)
	if !validationResult.IsValid {
		metrics.ImageValidations.WithLabelValues(metrics.ImageResultInvalid).Inc()
		if validationResult.SecurityRisk != "" {
			metrics.ImageSecurityIncidents.Inc()
			p.logger.Warn("检测到安全威胁", map[string]interface{}{
				"error":         validationResult.Error.Error(),
				"security_risk": validationResult.SecurityRisk,
				"mime_type":     imageData.MIMEType,
			})
		}
		return nil, fmt.Errorf("图片验证失败: %v", validationResult.Error)
	}

	metrics.ImageValidations.WithLabelValues(metrics.ImageResultValid).Inc()

	mimeType := imageData.MIMEType
	if FormatFromMIME(mimeType) != validationResult.Format {
		// 以实际解码出的格式为准，避免模型端因MIME不符拒绝
		mimeType = "image/" + validationResult.Format
	}

	return &ProcessedImage{
		Base64:   base64.StdEncoding.EncodeToString(raw),
		Bytes:    raw,
		MIMEType: mimeType,
		Format:   validationResult.Format,
		Width:    validationResult.Width,
		Height:   validationResult.Height,
	}, nil
}
