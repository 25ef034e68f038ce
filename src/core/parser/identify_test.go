package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentification(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []IdentifiedDrug
	}{
		{
			name: "单行药品",
			text: "アセトアミノフェン 2錠\n",
			want: []IdentifiedDrug{{Name: "アセトアミノフェン", Quantity: "2錠"}},
		},
		{
			name: "多行多单位",
			text: "ロキソニン 3錠\nムコダイン 1カプセル\nシロップ 10ml\n湿布 4個",
			want: []IdentifiedDrug{
				{Name: "ロキソニン", Quantity: "3錠"},
				{Name: "ムコダイン", Quantity: "1カプセル"},
				{Name: "シロップ", Quantity: "10ml"},
				{Name: "湿布", Quantity: "4個"},
			},
		},
		{
			name: "全角空格分隔",
			text: "ビオフェルミン　6錠",
			want: []IdentifiedDrug{{Name: "ビオフェルミン", Quantity: "6錠"}},
		},
		{
			name: "名称含空格",
			text: "マグミット 錠 330mg 2錠",
			want: []IdentifiedDrug{{Name: "マグミット 錠 330mg", Quantity: "2錠"}},
		},
		{
			name: "识别困难行",
			text: "1つ目の薬剤は識別が困難です",
			want: []IdentifiedDrug{Sentinel("1つ目の薬剤は識別が困難です")},
		},
		{
			name: "药品行与困难行混合",
			text: "X 3錠\n2つ目は識別が困難です\n",
			want: []IdentifiedDrug{
				{Name: "X", Quantity: "3錠"},
				Sentinel("2つ目は識別が困難です"),
			},
		},
		{
			name: "同一行以药品格式为准",
			text: "識別が困難 ですが A 1錠",
			want: []IdentifiedDrug{{Name: "識別が困難 ですが A", Quantity: "1錠"}},
		},
		{
			name: "无法识别",
			text: "画像が不鮮明です。",
			want: []IdentifiedDrug{Sentinel(NotIdentifiedMessage)},
		},
		{
			name: "空回复",
			text: "",
			want: []IdentifiedDrug{Sentinel(NotIdentifiedMessage)},
		},
		{
			name: "数字与单位之间有空格不匹配",
			text: "ロキソニン 3 錠",
			want: []IdentifiedDrug{Sentinel(NotIdentifiedMessage)},
		},
		{
			name: "未知单位不匹配",
			text: "ロキソニン 3本",
			want: []IdentifiedDrug{Sentinel(NotIdentifiedMessage)},
		},
		{
			name: "每行只取第一处",
			text: "A 1錠 B 2錠",
			want: []IdentifiedDrug{{Name: "A", Quantity: "1錠"}},
		},
		{
			name: "CRLF换行",
			text: "A 1錠\r\nB 2錠\r\n",
			want: []IdentifiedDrug{
				{Name: "A", Quantity: "1錠"},
				{Name: "B", Quantity: "2錠"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseIdentification(tt.text))
		})
	}
}

func TestSentinel(t *testing.T) {
	s := Sentinel("msg")
	assert.True(t, s.IsSentinel())
	assert.Equal(t, UnknownName, s.Name)
	assert.Equal(t, "msg", s.Message)

	assert.False(t, IdentifiedDrug{Name: "A", Quantity: "1錠"}.IsSentinel())
}

func FuzzParseIdentification(f *testing.F) {
	f.Add("アセトアミノフェン 2錠\n")
	f.Add("識別が困難")
	f.Add("")
	f.Add("A　　1錠\nB 2ml")
	f.Fuzz(func(t *testing.T, text string) {
		drugs := ParseIdentification(text)
		require.NotEmpty(t, drugs)
		for _, d := range drugs {
			if d.IsSentinel() {
				assert.NotEmpty(t, d.Message)
				continue
			}
			assert.NotEmpty(t, d.Quantity)
		}
	})
}
