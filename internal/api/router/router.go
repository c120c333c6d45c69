package router

import (
	"context"
	"errors"

	"resume-match-go/internal/api/handler"
	"resume-match-go/internal/storage"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, sessionHandler *handler.SessionHandler) {
	api := h.Group("/api/v1")

	// 创建分析会话并异步启动分析
	api.POST("/sessions", func(c context.Context, ctx *app.RequestContext) {
		var req handler.CreateSessionRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体格式错误"})
			return
		}

		resp, err := sessionHandler.HandleCreateSession(c, &req)
		if err != nil {
			ctx.JSON(statusForError(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 查询会话进度
	api.GET("/sessions/:session_id/status", func(c context.Context, ctx *app.RequestContext) {
		sessionID := ctx.Param("session_id")
		resp, err := sessionHandler.HandleSessionStatus(c, sessionID)
		if err != nil {
			ctx.JSON(statusForError(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 查询会话分析结果
	api.GET("/sessions/:session_id/results", func(c context.Context, ctx *app.RequestContext) {
		sessionID := ctx.Param("session_id")
		results, err := sessionHandler.HandleSessionResults(c, sessionID)
		if err != nil {
			ctx.JSON(statusForError(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"results": results, "count": len(results)})
	})

	// 重置终态会话并重新分析
	api.POST("/sessions/:session_id/reset", func(c context.Context, ctx *app.RequestContext) {
		sessionID := ctx.Param("session_id")
		resp, err := sessionHandler.HandleResetSession(c, sessionID)
		if err != nil {
			ctx.JSON(statusForError(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	// 删除会话
	api.DELETE("/sessions/:session_id", func(c context.Context, ctx *app.RequestContext) {
		sessionID := ctx.Param("session_id")
		if err := sessionHandler.HandleDeleteSession(c, sessionID); err != nil {
			ctx.JSON(statusForError(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"status": "deleted"})
	})

	// 查询可参与分析的简历，job_id缺省表示通用上下文
	api.GET("/resumes/available", func(c context.Context, ctx *app.RequestContext) {
		userID := ctx.Query("user_id")
		var jobID *string
		if v := ctx.Query("job_id"); v != "" {
			jobID = &v
		}

		items, err := sessionHandler.HandleAvailableResumes(c, userID, jobID)
		if err != nil {
			ctx.JSON(statusForError(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"resumes": items, "count": len(items)})
	})

	// 健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}

// statusForError 把业务层与存储层错误映射为HTTP状态码
func statusForError(err error) int {
	switch {
	case errors.Is(err, handler.ErrInvalidRequest):
		return consts.StatusBadRequest
	case errors.Is(err, storage.ErrSessionNotFound), errors.Is(err, storage.ErrResumeNotFound):
		return consts.StatusNotFound
	case errors.Is(err, handler.ErrResumeUnavailable),
		errors.Is(err, storage.ErrInvalidSessionState),
		errors.Is(err, storage.ErrDuplicateAnalysis):
		return consts.StatusConflict
	default:
		return consts.StatusInternalServerError
	}
}
