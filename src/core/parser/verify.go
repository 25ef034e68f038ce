package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StatusColor 照合结果的信号灯颜色
type StatusColor string

const (
	ColorGreen  StatusColor = "green"
	ColorYellow StatusColor = "yellow"
	ColorRed    StatusColor = "red"
	ColorGray   StatusColor = "gray"
)

// overallStatus 中的短语，按优先级排列，先命中者生效
var statusPhrases = []struct {
	phrase string
	color  StatusColor
}{
	{"完全一致", ColorGreen},
	{"一部不一致", ColorYellow},
	{"不一致", ColorRed},
}

// ColorForStatus 由 overallStatus 文本推出颜色，均不包含时为 gray
func ColorForStatus(status string) StatusColor {
	for _, p := range statusPhrases {
		if strings.Contains(status, p.phrase) {
			return p.color
		}
	}
	return ColorGray
}

// ParseError 模型有回复但无法按预期解析
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Verification 从回复中取出的JSON对象。Fields 保留模型给出的全部顶层字段
type Verification struct {
	Fields        map[string]json.RawMessage
	OverallStatus string // overallStatus 为数组时为空
	Color         StatusColor
}

// ExtractJSONObject 取第一个 '{' 到最后一个 '}' 之间的文本（不做括号配对）
func ExtractJSONObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// ExtractVerification 从模型回复中提取照合结果并推出颜色
func ExtractVerification(text string) (*Verification, error) {
	jsonString, ok := ExtractJSONObject(text)
	if !ok {
		return nil, &ParseError{Reason: "AIの応答に有効なJSONオブジェクトが見つかりません。"}
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal([]byte(jsonString), &fields); err != nil {
		return nil, &ParseError{Reason: "JSONの解析に失敗しました。", Err: err}
	}

	status, color, err := statusColor(fields["overallStatus"])
	if err != nil {
		return nil, err
	}

	return &Verification{
		Fields:        fields,
		OverallStatus: status,
		Color:         color,
	}, nil
}

// colorForStatusList overallStatus 为数组时按元素相等判断
func colorForStatusList(statuses []interface{}) StatusColor {
	for _, p := range statusPhrases {
		for _, s := range statuses {
			if str, ok := s.(string); ok && str == p.phrase {
				return p.color
			}
		}
	}
	return ColorGray
}

// statusColor 缺失或 null 为 gray；字符串按子串、数组按元素判断；其他类型无法判断，视为解析失败
func statusColor(raw json.RawMessage) (string, StatusColor, error) {
	if len(raw) == 0 {
		return "", ColorGray, nil
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", "", &ParseError{Reason: "JSONの解析に失敗しました。", Err: err}
	}
	switch v := value.(type) {
	case nil:
		return "", ColorGray, nil
	case string:
		return v, ColorForStatus(v), nil
	case []interface{}:
		return "", colorForStatusList(v), nil
	default:
		return "", "", &ParseError{Reason: fmt.Sprintf("overallStatus の型が不正です: %T", v)}
	}
}
