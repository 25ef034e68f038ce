package drug

import "drug-checker-go/src/core/parser"

// IdentifyRequest 药品照片识别请求
type IdentifyRequest struct {
	ImageData string `json:"imageData" validate:"required"`
	MimeType  string `json:"mimeType" validate:"required"`
}

// IdentifyResponse 药品照片识别结果
type IdentifyResponse struct {
	IdentifiedDrugs []parser.IdentifiedDrug `json:"identifiedDrugs"`
	RawResponse     string                  `json:"rawResponse"`
}

// VerifyRequest 处方笺照合请求。identifiedDrugs 为空数组时视为已提供
type VerifyRequest struct {
	IdentifiedDrugs       []parser.IdentifiedDrug `json:"identifiedDrugs" validate:"required"`
	PrescriptionImageData string                  `json:"prescriptionImageData" validate:"required"`
	PrescriptionMimeType  string                  `json:"prescriptionMimeType" validate:"required"`
	Timing                string                  `json:"timing" validate:"required"`
}

// DrugInfoRequest 药品说明请求
type DrugInfoRequest struct {
	DrugName string `json:"drugName" validate:"required"`
}

// DrugInfoResponse 药品说明，模型原文
type DrugInfoResponse struct {
	Details string `json:"details"`
}

// ErrorResponse 错误响应；RawResponse 只在模型回复无法解析时返回
type ErrorResponse struct {
	Error       string  `json:"error"`
	RawResponse *string `json:"rawResponse,omitempty"`
}
