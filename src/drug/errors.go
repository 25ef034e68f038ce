package drug

import (
	"errors"
	"net/http"
)

// 返回给前端的提示语
const (
	MsgIdentifyMissing = "画像データとMIMEタイプが必要です。"
	MsgIdentifyFailed  = "薬剤の識別中にエラーが発生しました。"
	MsgVerifyMissing   = "必要な情報が不足しています。"
	MsgVerifyParse     = "AIからの応答を解析できませんでした。形式が正しくない可能性があります。"
	MsgVerifyFailed    = "処方箋の照合中にエラーが発生しました。"
	MsgDrugInfoMissing = "薬剤名が必要です。"
	MsgDrugInfoFailed  = "薬剤情報の取得中にエラーが発生しました。"
	MsgPayloadTooLarge = "リクエストサイズが上限を超えています。"
)

// ClientInputError 请求缺少必填字段或格式不对，不调用模型
type ClientInputError struct {
	Status  int
	Message string
	Err     error
}

func (e *ClientInputError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ClientInputError) Unwrap() error { return e.Err }

// UpstreamModelError 模型调用失败，原因只记日志
type UpstreamModelError struct {
	Message string
	Err     error
}

func (e *UpstreamModelError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *UpstreamModelError) Unwrap() error { return e.Err }

// ResponseParseError 模型有回复但无法解析，原文随响应返回
type ResponseParseError struct {
	Message     string
	RawResponse string
	Err         error
}

func (e *ResponseParseError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ResponseParseError) Unwrap() error { return e.Err }

// toResponse 错误 -> HTTP状态码与响应体
func toResponse(err error) (int, ErrorResponse) {
	var clientErr *ClientInputError
	if errors.As(err, &clientErr) {
		status := clientErr.Status
		if status == 0 {
			status = http.StatusBadRequest
		}
		return status, ErrorResponse{Error: clientErr.Message}
	}

	var parseErr *ResponseParseError
	if errors.As(err, &parseErr) {
		raw := parseErr.RawResponse
		return http.StatusInternalServerError, ErrorResponse{Error: parseErr.Message, RawResponse: &raw}
	}

	var upstreamErr *UpstreamModelError
	if errors.As(err, &upstreamErr) {
		return http.StatusInternalServerError, ErrorResponse{Error: upstreamErr.Message}
	}

	return http.StatusInternalServerError, ErrorResponse{Error: http.StatusText(http.StatusInternalServerError)}
}
