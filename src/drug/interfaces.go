package drug

import (
	"context"

	"drug-checker-go/src/core/image"

	"github.com/gin-gonic/gin"
)

// DrugService 定义药品识别/照合服务接口
type DrugService interface {
	// 将路由注册到 engine 与 apiGroup
	Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error
}

// Model 多模态模型调用，img 为空时为纯文本调用
type Model interface {
	Generate(ctx context.Context, prompt string, img *image.ImageData) (string, error)
}
