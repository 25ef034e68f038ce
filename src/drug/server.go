package drug

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"drug-checker-go/src/configs"
	"drug-checker-go/src/core/image"
	"drug-checker-go/src/core/metrics"
	"drug-checker-go/src/core/middleware"
	"drug-checker-go/src/core/parser"
	"drug-checker-go/src/core/providers/vlllm"
	"drug-checker-go/src/core/utils"

	"github.com/gin-gonic/gin"
)

// 模型调用的业务名，用于日志与指标
const (
	OpIdentify = "identify"
	OpVerify   = "verify"
	OpDrugInfo = "drug_info"
)

type DefaultDrugService struct {
	logger    *utils.TaggedLogger
	config    *configs.Config
	model     Model
	provider  *vlllm.Provider // 由本服务创建时负责清理
	validator *requestValidator
	cache     *infoCache
}

// NewDefaultDrugService 按配置创建选中的VLLLM provider并构造服务
func NewDefaultDrugService(config *configs.Config, logger *utils.Logger) (*DefaultDrugService, error) {
	name, vlllmConfig := config.SelectedVLLM()
	if name == "" {
		logger.Warn("请设置好VLLLM provider配置")
		return nil, fmt.Errorf("请设置好VLLLM provider配置")
	}

	provider, err := vlllm.Create(name, &vlllmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化VLLLM provider失败: %w", err)
	}

	timeout, err := config.ModelTimeout()
	if err != nil {
		return nil, err
	}
	provider.SetTimeout(timeout)
	logger.Info(fmt.Sprintf("VLLLM provider %s 初始化成功 (%s/%s)", name, vlllmConfig.Type, provider.GetConfig().ModelName))

	service, err := NewDrugServiceWithModel(config, logger, provider)
	if err != nil {
		return nil, err
	}
	service.provider = provider
	return service, nil
}

// NewDrugServiceWithModel 使用给定的模型构造服务
func NewDrugServiceWithModel(config *configs.Config, logger *utils.Logger, model Model) (*DefaultDrugService, error) {
	ttl, err := config.CacheTTL()
	if err != nil {
		return nil, err
	}
	return &DefaultDrugService{
		logger:    logger.WithTag("drug"),
		config:    config,
		model:     model,
		validator: newRequestValidator(),
		cache:     newInfoCache(config.Cache.Size, ttl),
	}, nil
}

// Start 实现 DrugService 接口，注册所有路由
func (s *DefaultDrugService) Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error {
	apiGroup.GET("/status", s.handleStatus)
	apiGroup.POST("/identify", s.handleIdentify)
	apiGroup.POST("/verify", s.handleVerify)
	apiGroup.POST("/drug-info", s.handleDrugInfo)

	s.logger.Info("Drug HTTP服务路由注册完成")
	return nil
}

// handleStatus 状态检查
func (s *DefaultDrugService) handleStatus(c *gin.Context) {
	name, vlllmConfig := s.config.SelectedVLLM()
	c.String(http.StatusOK, fmt.Sprintf("Drug 接口运行正常，模型: %s (%s/%s)", name, vlllmConfig.Type, vlllmConfig.ModelName))
}

// handleIdentify 识别药品照片中的名称与数量
func (s *DefaultDrugService) handleIdentify(c *gin.Context) {
	var req IdentifyRequest
	if err := s.bind(c, &req, MsgIdentifyMissing); err != nil {
		s.respondError(c, OpIdentify, err)
		return
	}

	started := time.Now()
	text, err := s.model.Generate(c.Request.Context(), IdentifyPrompt, &image.ImageData{
		Data:     req.ImageData,
		MIMEType: req.MimeType,
	})
	if err != nil {
		metrics.ObserveModelCall(OpIdentify, metrics.OutcomeError, started)
		s.respondError(c, OpIdentify, &UpstreamModelError{Message: MsgIdentifyFailed, Err: err})
		return
	}
	metrics.ObserveModelCall(OpIdentify, metrics.OutcomeSuccess, started)

	drugs := parser.ParseIdentification(text)
	s.logger.Info("药品识别完成", map[string]interface{}{
		"request_id": middleware.GetRequestID(c),
		"count":      len(drugs),
	})

	c.JSON(http.StatusOK, IdentifyResponse{
		IdentifiedDrugs: drugs,
		RawResponse:     text,
	})
}

// handleVerify 将药品列表与处方笺图片照合
func (s *DefaultDrugService) handleVerify(c *gin.Context) {
	var req VerifyRequest
	if err := s.bind(c, &req, MsgVerifyMissing); err != nil {
		s.respondError(c, OpVerify, err)
		return
	}

	prompt := BuildVerifyPrompt(req.Timing, req.IdentifiedDrugs)

	started := time.Now()
	text, err := s.model.Generate(c.Request.Context(), prompt, &image.ImageData{
		Data:     req.PrescriptionImageData,
		MIMEType: req.PrescriptionMimeType,
	})
	if err != nil {
		metrics.ObserveModelCall(OpVerify, metrics.OutcomeError, started)
		s.respondError(c, OpVerify, &UpstreamModelError{Message: MsgVerifyFailed, Err: err})
		return
	}

	verification, err := parser.ExtractVerification(text)
	if err != nil {
		metrics.ObserveModelCall(OpVerify, metrics.OutcomeParseError, started)
		s.respondError(c, OpVerify, &ResponseParseError{Message: MsgVerifyParse, RawResponse: text, Err: err})
		return
	}
	metrics.ObserveModelCall(OpVerify, metrics.OutcomeSuccess, started)
	metrics.VerificationStatus.WithLabelValues(string(verification.Color)).Inc()

	s.logger.Info("处方照合完成", map[string]interface{}{
		"request_id":     middleware.GetRequestID(c),
		"overall_status": verification.OverallStatus,
		"color":          verification.Color,
	})

	c.JSON(http.StatusOK, buildVerifyResponse(verification, req.IdentifiedDrugs, text))
}

// buildVerifyResponse 模型给出的字段 + 颜色 + 请求中的药品列表 + 原文，平铺在同一层
func buildVerifyResponse(v *parser.Verification, identified []parser.IdentifiedDrug, raw string) map[string]interface{} {
	body := make(map[string]interface{}, len(v.Fields)+3)
	for k, field := range v.Fields {
		body[k] = field
	}
	body["overallStatusColor"] = v.Color
	body["identifiedDrugs"] = identified
	body["rawResponse"] = raw
	return body
}

// handleDrugInfo 返回模型对药品的说明原文
func (s *DefaultDrugService) handleDrugInfo(c *gin.Context) {
	var req DrugInfoRequest
	if err := s.bind(c, &req, MsgDrugInfoMissing); err != nil {
		s.respondError(c, OpDrugInfo, err)
		return
	}

	if details, ok := s.cache.Get(req.DrugName); ok {
		metrics.DrugInfoCache.WithLabelValues("hit").Inc()
		c.JSON(http.StatusOK, DrugInfoResponse{Details: details})
		return
	}
	if s.cache != nil {
		metrics.DrugInfoCache.WithLabelValues("miss").Inc()
	}

	started := time.Now()
	text, err := s.model.Generate(c.Request.Context(), BuildDrugInfoPrompt(req.DrugName), nil)
	if err != nil {
		metrics.ObserveModelCall(OpDrugInfo, metrics.OutcomeError, started)
		s.respondError(c, OpDrugInfo, &UpstreamModelError{Message: MsgDrugInfoFailed, Err: err})
		return
	}
	metrics.ObserveModelCall(OpDrugInfo, metrics.OutcomeSuccess, started)

	s.cache.Set(req.DrugName, text)
	c.JSON(http.StatusOK, DrugInfoResponse{Details: text})
}

// bind 解析JSON并校验必填字段；任一失败都按缺少输入处理，不调用模型
func (s *DefaultDrugService) bind(c *gin.Context, req interface{}, missingMsg string) error {
	if err := c.ShouldBindJSON(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return &ClientInputError{Status: http.StatusRequestEntityTooLarge, Message: MsgPayloadTooLarge, Err: err}
		}
		return &ClientInputError{Message: missingMsg, Err: err}
	}
	if err := s.validator.ValidateStruct(req); err != nil {
		return &ClientInputError{Message: missingMsg, Err: fmt.Errorf("missing fields %v: %w", missingFields(err), err)}
	}
	return nil
}

// respondError 记录日志并返回结构化错误
func (s *DefaultDrugService) respondError(c *gin.Context, op string, err error) {
	status, body := toResponse(err)
	fields := map[string]interface{}{
		"request_id": middleware.GetRequestID(c),
		"operation":  op,
		"status":     status,
		"error":      err.Error(),
	}

	var parseErr *ResponseParseError
	switch {
	case errors.As(err, &parseErr):
		fields["raw_response"] = parseErr.RawResponse
		s.logger.Error("模型回复解析失败", fields)
	case status >= http.StatusInternalServerError:
		s.logger.Error("模型调用失败", fields)
	default:
		s.logger.Warn("请求参数无效", fields)
	}

	c.JSON(status, body)
}

// Cleanup 清理资源
func (s *DefaultDrugService) Cleanup() error {
	if s.provider != nil {
		if err := s.provider.Cleanup(); err != nil {
			s.logger.Warn(fmt.Sprintf("清理VLLLM provider失败: %v", err))
			return err
		}
	}
	s.logger.Info("Drug服务清理完成")
	return nil
}
