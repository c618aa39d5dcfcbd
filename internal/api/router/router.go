package router

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"github.com/zthsk/semantic-resume-screening/internal/api/handler"
	"github.com/zthsk/semantic-resume-screening/internal/config"
	"github.com/zthsk/semantic-resume-screening/internal/constants"
)

// RegisterRoutes 注册API路由。配置了API密钥时，/api/v1下的路由
// 要求请求头携带X-API-Key
func RegisterRoutes(h *server.Hertz, cfg *config.Config, screeningHandler *handler.ScreeningHandler) {
	h.GET("/", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{
			"message": "简历语义筛选API",
			"version": constants.PipelineVersion,
			"endpoints": utils.H{
				"/api/v1/parse":             "POST - 解析markdown简历内容",
				"/api/v1/parse-file":        "POST - 解析上传的简历文件",
				"/api/v1/parse-batch":       "POST - 批量解析目录中的简历",
				"/api/v1/generate":          "POST - 生成合成简历",
				"/api/v1/match":             "POST - 按职位描述匹配候选人",
				"/api/v1/providers":         "GET - 列出LLM提供方",
				"/api/v1/providers/current": "POST - 切换LLM提供方",
				"/api/v1/resumes":           "POST - 异步提交简历",
				"/api/v1/resumes/:uuid":     "GET - 查询提交状态",
				"/health":                   "GET - 健康检查",
			},
		})
	})

	h.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api := h.Group("/api/v1")

	if cfg.Server.APIKey != "" {
		api.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:X-API-Key", ""),
			keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
				return key == cfg.Server.APIKey, nil
			}),
			keyauth.WithErrorHandler(func(c context.Context, ctx *app.RequestContext, err error) {
				ctx.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "无效的API密钥"})
			}),
		))
	}

	api.GET("/providers", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, screeningHandler.ListProviders())
	})

	api.POST("/providers/current", func(c context.Context, ctx *app.RequestContext) {
		var req struct {
			Provider string `json:"provider"`
		}
		if err := ctx.BindAndValidate(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式无效"})
			return
		}

		resp, err := screeningHandler.SwitchProvider(req.Provider)
		if err != nil {
			respondError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/parse", func(c context.Context, ctx *app.RequestContext) {
		var req handler.ParseRequest
		if err := ctx.BindAndValidate(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式无效"})
			return
		}

		resp, err := screeningHandler.ParseContent(c, &req)
		if err != nil {
			respondError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/parse-file", func(c context.Context, ctx *app.RequestContext) {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}

		opts := handler.ParseOptions{
			Tone:        ctx.PostForm("tone"),
			LLMProvider: ctx.PostForm("llm_provider"),
			FocusAreas:  splitFocusAreas(ctx.PostForm("focus_areas")),
		}
		if raw := ctx.PostForm("max_length"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				ctx.JSON(consts.StatusBadRequest, utils.H{"error": "max_length必须是整数"})
				return
			}
			opts.MaxLength = n
		}

		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "读取文件失败"})
			return
		}

		ctx.JSON(consts.StatusOK, screeningHandler.ParseUpload(c, fileHeader.Filename, data, opts))
	})

	api.POST("/parse-batch", func(c context.Context, ctx *app.RequestContext) {
		var req handler.BatchParseRequest
		if err := ctx.BindAndValidate(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式无效"})
			return
		}

		resp, err := screeningHandler.ParseBatch(c, &req)
		if err != nil {
			respondError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/generate", func(c context.Context, ctx *app.RequestContext) {
		var req handler.GenerateRequest
		if err := ctx.BindAndValidate(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式无效"})
			return
		}

		resp, err := screeningHandler.Generate(&req)
		if err != nil {
			respondError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/match", func(c context.Context, ctx *app.RequestContext) {
		var req handler.MatchRequest
		if err := ctx.BindAndValidate(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式无效"})
			return
		}

		resp, err := screeningHandler.MatchCandidates(c, &req)
		if err != nil {
			respondError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/resumes", func(c context.Context, ctx *app.RequestContext) {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
			return
		}
		defer file.Close()

		resp, err := screeningHandler.HandleResumeIntake(c, file, fileHeader.Filename)
		if err != nil {
			respondError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusAccepted, resp)
	})

	api.GET("/resumes/:uuid", func(c context.Context, ctx *app.RequestContext) {
		resp, err := screeningHandler.GetSubmission(c, ctx.Param("uuid"))
		if err != nil {
			respondError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})
}

// respondError 按哨兵错误映射HTTP状态码
func respondError(ctx *app.RequestContext, err error) {
	switch {
	case errors.Is(err, handler.ErrInvalidRequest):
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
	case errors.Is(err, handler.ErrNotFound):
		ctx.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
	case errors.Is(err, handler.ErrDependencyMissing):
		ctx.JSON(consts.StatusServiceUnavailable, utils.H{"error": err.Error()})
	default:
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
	}
}

func splitFocusAreas(raw string) []string {
	if raw == "" {
		return nil
	}
	var areas []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			areas = append(areas, p)
		}
	}
	return areas
}
