package drug

import (
	"testing"

	"drug-checker-go/src/core/parser"

	"github.com/stretchr/testify/assert"
)

func TestBuildVerifyPrompt(t *testing.T) {
	prompt := BuildVerifyPrompt("朝食後", []parser.IdentifiedDrug{
		{Name: "A", Quantity: "1錠"},
		parser.Sentinel("識別が困難です"),
	})
	assert.Contains(t, prompt, "【服用タイミング】\n朝食後\n")
	assert.Contains(t, prompt, "- A 1錠\n- 不明 不明\n")
	assert.Contains(t, prompt, `"overallStatus"`)
}

func TestBuildDrugInfoPrompt(t *testing.T) {
	assert.Contains(t, BuildDrugInfoPrompt("ロキソニン"), "ロキソニンという医薬品について")
}
