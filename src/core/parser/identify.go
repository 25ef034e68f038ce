package parser

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	// UnknownName 识别失败时占位条目的名称与数量
	UnknownName = "不明"
	// DifficultyMarker 模型表示“难以识别”时回复中出现的短语
	DifficultyMarker = "識別が困難"
	// NotIdentifiedMessage 整段回复都没有可用结果时的说明
	NotIdentifiedMessage = "薬剤の識別ができませんでした。"
)

// Units 数量后可接受的单位，顺序即匹配优先级
var Units = []string{"錠", "カプセル", "ml", "個"}

// IdentifiedDrug 从模型回复中识别出的药品
type IdentifiedDrug struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Message  string `json:"message,omitempty"`
}

// 空白字符与模型回复习惯保持一致：包含全角空格 U+3000 等Unicode空白
const whitespaceClass = `[\t\n\v\f\r \x{00a0}\x{1680}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}]`

// 名称部分不跨越行终止符
const nameClass = `[^\n\r\x{2028}\x{2029}]`

var drugLinePattern = regexp.MustCompile(
	`(` + nameClass + `+?)` + whitespaceClass + `+([0-9]+)(` + strings.Join(quoteAll(Units), "|") + `)`,
)

func quoteAll(units []string) []string {
	quoted := make([]string, len(units))
	for i, u := range units {
		quoted[i] = regexp.QuoteMeta(u)
	}
	return quoted
}

// Sentinel 识别失败的占位条目
func Sentinel(message string) IdentifiedDrug {
	return IdentifiedDrug{Name: UnknownName, Quantity: UnknownName, Message: message}
}

// IsSentinel 判断是否为占位条目
func (d IdentifiedDrug) IsSentinel() bool {
	return d.Name == UnknownName && d.Quantity == UnknownName
}

// ParseIdentification 逐行提取 “名称 数字单位”，返回值至少包含一个条目。
// 同一行既匹配药品格式又含 DifficultyMarker 时，以药品格式为准；每行只取第一处匹配。
func ParseIdentification(text string) []IdentifiedDrug {
	drugs := make([]IdentifiedDrug, 0)

	for _, line := range strings.Split(text, "\n") {
		if match := drugLinePattern.FindStringSubmatch(line); match != nil {
			drugs = append(drugs, IdentifiedDrug{
				Name:     strings.TrimRightFunc(match[1], unicode.IsSpace),
				Quantity: match[2] + match[3],
			})
		} else if strings.Contains(line, DifficultyMarker) {
			drugs = append(drugs, Sentinel(line))
		}
	}

	if len(drugs) == 0 {
		drugs = append(drugs, Sentinel(NotIdentifiedMessage))
	}

	return drugs
}
