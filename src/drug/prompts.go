package drug

import (
	"fmt"
	"strings"

	"drug-checker-go/src/core/parser"
)

// IdentifyPrompt 药品照片识别提示词，示例格式与解析器的 “名称 数字单位” 对应
const IdentifyPrompt = "この画像に写っている薬剤の名称と数量を特定してください。識別が困難な場合はその旨を伝えてください。例：アセトアミノフェン 2錠"

const verifyPromptTemplate = `以下の薬剤リストと処方箋の画像を照合し、必ず下記のJSON形式で回答してください。

【服用タイミング】
%s

【薬剤リスト】
%s

【処方箋から読み取った薬剤】
処方箋の画像を解析し、薬剤名、数量、用法を抽出してください。

【照合結果】
薬剤リストと処方箋の情報を比較し、一致・不一致を判断してください。

【出力フォーマット】
{
  "overallStatus": "完全一致" | "一部不一致" | "不一致",
  "summary": "照合結果の要約（例：処方されたすべての薬剤が確認できました。）",
  "prescriptionDrugs": [
    { "name": "薬剤名", "quantity": "数量", "timing": "用法" }
  ],
  "comparison": [
    {
      "identifiedName": "識別した薬剤名",
      "prescriptionName": "処方箋の薬剤名",
      "match": true | false,
      "warning": "不一致の場合の警告メッセージ"
    }
  ]
}
`

const drugInfoPromptTemplate = "%sという医薬品について、以下の情報を一般の方向けに分かりやすく、簡潔にまとめてください。\n\n- 主な効能・効果\n- 考えられる主な副作用\n- 服用時の注意点\n\n回答は箇条書きで、マークダウン形式でお願いします。"

// BuildVerifyPrompt 拼接服用时机与药品列表（每行 “- 名称 数量”）
func BuildVerifyPrompt(timing string, drugs []parser.IdentifiedDrug) string {
	lines := make([]string, len(drugs))
	for i, d := range drugs {
		lines[i] = fmt.Sprintf("- %s %s", d.Name, d.Quantity)
	}
	return fmt.Sprintf(verifyPromptTemplate, timing, strings.Join(lines, "\n"))
}

// BuildDrugInfoPrompt 药品说明提示词
func BuildDrugInfoPrompt(drugName string) string {
	return fmt.Sprintf(drugInfoPromptTemplate, drugName)
}
