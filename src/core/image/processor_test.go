package image

import (
	"bytes"
	"context"
	"encoding/base64"
	stdimage "image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"drug-checker-go/src/configs"
	"drug-checker-go/src/core/metrics"
	"drug-checker-go/src/core/utils"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *utils.Logger {
	return utils.NewConsoleLogger("error", io.Discard)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestFormatFromMIME(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":               "jpeg",
		"image/jpg":                "jpeg",
		"IMAGE/PNG":                "png",
		"image/webp; charset=utf8": "webp",
		"image/heic":               "heic",
		"application/pdf":          "pdf",
		"text/plain":               "",
		"":                         "",
	}
	for mime, want := range tests {
		assert.Equal(t, want, FormatFromMIME(mime), mime)
	}
}

func TestDecodeBase64(t *testing.T) {
	raw := []byte{0xfb, 0xff, 0x01, 0x02}

	got, err := DecodeBase64(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeBase64("data:image/png;base64," + base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeBase64(base64.RawURLEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = DecodeBase64("***not base64***")
	assert.Error(t, err)
}

// imageCounters 读取图片校验相关计数，用于前后对比
func imageCounters() (valid, invalid, incidents float64) {
	return testutil.ToFloat64(metrics.ImageValidations.WithLabelValues(metrics.ImageResultValid)),
		testutil.ToFloat64(metrics.ImageValidations.WithLabelValues(metrics.ImageResultInvalid)),
		testutil.ToFloat64(metrics.ImageSecurityIncidents)
}

func TestProcessImage(t *testing.T) {
	processor := NewImageProcessor(configs.DefaultSecurityConfig(), testLogger())
	raw := pngBytes(t, 4, 3)
	valid, invalid, incidents := imageCounters()

	processed, err := processor.ProcessImage(context.Background(), ImageData{
		Data:     base64.StdEncoding.EncodeToString(raw),
		MIMEType: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, raw, processed.Bytes)
	assert.Equal(t, "png", processed.Format)
	assert.Equal(t, "image/png", processed.MIMEType)
	assert.Equal(t, 4, processed.Width)
	assert.Equal(t, 3, processed.Height)

	gotValid, gotInvalid, gotIncidents := imageCounters()
	assert.Equal(t, valid+1, gotValid)
	assert.Equal(t, invalid, gotInvalid)
	assert.Equal(t, incidents, gotIncidents)
}

func TestProcessImageCorrectsMIMEType(t *testing.T) {
	processor := NewImageProcessor(configs.DefaultSecurityConfig(), testLogger())

	// 声明为jpeg，实际是png
	processed, err := processor.ProcessImage(context.Background(), ImageData{
		Data:     base64.StdEncoding.EncodeToString(pngBytes(t, 2, 2)),
		MIMEType: "image/jpeg",
	})
	require.NoError(t, err)
	assert.Equal(t, "png", processed.Format)
	assert.Equal(t, "image/png", processed.MIMEType)
}

func TestProcessImageRejects(t *testing.T) {
	small := configs.DefaultSecurityConfig()
	small.MaxWidth = 2
	small.MaxHeight = 2

	tests := []struct {
		name     string
		security configs.SecurityConfig
		data     ImageData
		incident bool
	}{
		{
			name:     "无效base64",
			security: configs.DefaultSecurityConfig(),
			data:     ImageData{Data: "***", MIMEType: "image/png"},
			incident: true,
		},
		{
			name:     "不支持的MIME",
			security: configs.DefaultSecurityConfig(),
			data:     ImageData{Data: base64.StdEncoding.EncodeToString(pngBytes(t, 1, 1)), MIMEType: "text/plain"},
		},
		{
			name:     "未配置直接转发的PDF",
			security: configs.DefaultSecurityConfig(),
			data:     ImageData{Data: base64.StdEncoding.EncodeToString([]byte("%PDF-1.7\n")), MIMEType: "application/pdf"},
		},
		{
			name:     "可执行文件",
			security: configs.DefaultSecurityConfig(),
			data:     ImageData{Data: base64.StdEncoding.EncodeToString([]byte("MZ\x90\x00 not an image")), MIMEType: "image/png"},
			incident: true,
		},
		{
			name:     "无法解码",
			security: configs.DefaultSecurityConfig(),
			data:     ImageData{Data: base64.StdEncoding.EncodeToString([]byte("plain text")), MIMEType: "image/jpeg"},
			incident: true,
		},
		{
			name:     "尺寸超限",
			security: small,
			data:     ImageData{Data: base64.StdEncoding.EncodeToString(pngBytes(t, 3, 3)), MIMEType: "image/png"},
			incident: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := NewImageProcessor(tt.security, testLogger())
			valid, invalid, incidents := imageCounters()

			_, err := processor.ProcessImage(context.Background(), tt.data)
			require.Error(t, err)

			gotValid, gotInvalid, gotIncidents := imageCounters()
			assert.Equal(t, valid, gotValid)
			assert.Equal(t, invalid+1, gotInvalid)
			if tt.incident {
				assert.Equal(t, incidents+1, gotIncidents)
			} else {
				assert.Equal(t, incidents, gotIncidents)
			}
		})
	}
}

func geminiSecurity() configs.SecurityConfig {
	security := configs.DefaultSecurityConfig()
	security.PassthroughFormats = configs.DefaultPassthroughFormats("gemini")
	return security
}

// heicBytes 只含 ftyp box 的最小HEIC文件头，本地无法解码
func heicBytes() []byte {
	return append([]byte{0x00, 0x00, 0x00, 0x18}, []byte("ftypheic\x00\x00\x00\x00mif1heic")...)
}

func TestProcessImagePassthrough(t *testing.T) {
	pdf := []byte("%PDF-1.7\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

	tests := []struct {
		name     string
		raw      []byte
		mimeType string
		format   string
	}{
		{"HEIC", heicBytes(), "image/heic", "heic"},
		{"HEIF", heicBytes(), "image/heif", "heif"},
		{"PDF", pdf, "application/pdf", "pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := NewImageProcessor(geminiSecurity(), testLogger())
			valid, _, _ := imageCounters()

			processed, err := processor.ProcessImage(context.Background(), ImageData{
				Data:     base64.StdEncoding.EncodeToString(tt.raw),
				MIMEType: tt.mimeType,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.raw, processed.Bytes)
			assert.Equal(t, tt.mimeType, processed.MIMEType)
			assert.Equal(t, tt.format, processed.Format)
			assert.Zero(t, processed.Width)
			assert.Zero(t, processed.Height)

			gotValid, _, _ := imageCounters()
			assert.Equal(t, valid+1, gotValid)
		})
	}
}

func TestProcessImagePassthroughRejects(t *testing.T) {
	tooSmall := geminiSecurity()
	tooSmall.MaxFileSize = 8

	tests := []struct {
		name     string
		security configs.SecurityConfig
		data     []byte
		mimeType string
	}{
		{"文件头不是PDF", geminiSecurity(), pngBytes(t, 1, 1), "application/pdf"},
		{"文件头不是HEIC", geminiSecurity(), []byte("not a heic file at all"), "image/heic"},
		{"可执行文件伪装成PDF", geminiSecurity(), []byte("MZ\x90\x00%PDF-1.7"), "application/pdf"},
		{"超过大小上限", tooSmall, heicBytes(), "image/heic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := NewImageProcessor(tt.security, testLogger())
			_, invalid, incidents := imageCounters()

			_, err := processor.ProcessImage(context.Background(), ImageData{
				Data:     base64.StdEncoding.EncodeToString(tt.data),
				MIMEType: tt.mimeType,
			})
			require.Error(t, err)

			_, gotInvalid, gotIncidents := imageCounters()
			assert.Equal(t, invalid+1, gotInvalid)
			assert.Equal(t, incidents+1, gotIncidents)
		})
	}
}

func TestProcessImageCanceledContext(t *testing.T) {
	processor := NewImageProcessor(configs.DefaultSecurityConfig(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := processor.ProcessImage(ctx, ImageData{Data: "x", MIMEType: "image/png"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSVGScriptDetected(t *testing.T) {
	validator := NewImageSecurityValidator(&configs.SecurityConfig{
		MaxFileSize:    1024,
		AllowedFormats: []string{"svg+xml"},
		EnableDeepScan: true,
	}, testLogger())

	svg := `<svg xmlns="http://www.w3.org/2000/svg" onload="alert(1)"></svg>`
	result, raw := validator.ValidateImageData(ImageData{
		Data:     base64.StdEncoding.EncodeToString([]byte(svg)),
		MIMEType: "image/svg+xml",
	})
	assert.False(t, result.IsValid)
	assert.Nil(t, raw)
	assert.NotEmpty(t, result.SecurityRisk)
}
