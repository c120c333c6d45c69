package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	applogger "resume-match-go/internal/logger"
	"resume-match-go/internal/pipeline"
	"resume-match-go/internal/storage"
)

var (
	// ErrInvalidRequest 请求参数非法，路由层据此返回400
	ErrInvalidRequest = errors.New("请求参数非法")
	// ErrResumeUnavailable 简历在该上下文中已有分析结果，路由层据此返回409
	ErrResumeUnavailable = errors.New("简历不可用")
)

// SessionHandler 分析会话的业务处理器，负责协调存储与流水线
type SessionHandler struct {
	cfg    *config.Config
	store  *storage.AnalysisStore
	redis  *storage.Redis // 可为nil，进度查询退化为只读数据库
	runner *pipeline.SessionRunner
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(cfg *config.Config, store *storage.AnalysisStore, redis *storage.Redis, runner *pipeline.SessionRunner) *SessionHandler {
	return &SessionHandler{
		cfg:    cfg,
		store:  store,
		redis:  redis,
		runner: runner,
	}
}

// CreateSessionRequest 创建分析会话请求
type CreateSessionRequest struct {
	UserID    string   `json:"user_id"`
	JobID     *string  `json:"job_id,omitempty"` // 为空表示通用分析
	ResumeIDs []string `json:"resume_ids"`
}

// CreateSessionResponse 创建分析会话响应
type CreateSessionResponse struct {
	SessionID  string `json:"session_id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	TotalCount int    `json:"total_count"`
}

// SessionStatusResponse 会话状态查询响应
type SessionStatusResponse struct {
	SessionID       string  `json:"session_id"`
	Status          string  `json:"status"`
	TotalCount      int     `json:"total_count"`
	ProcessedCount  int     `json:"processed_count"`
	ProgressPercent float64 `json:"progress_percent"`
	FailureReason   string  `json:"failure_reason,omitempty"`
}

// ResultItem 单条分析结果
type ResultItem struct {
	ResumeID         string `json:"resume_id"`
	CandidateName    string `json:"candidate_name"`
	OriginalFilename string `json:"original_filename"`
	SkillMatch       int    `json:"skill_match"`
	ProjectRelevance int    `json:"project_relevance"`
	ProblemSolving   int    `json:"problem_solving"`
	Tools            int    `json:"tools"`
	OverallFit       int    `json:"overall_fit"`
	Summary          string `json:"summary"`
	Degraded         bool   `json:"degraded"`
	DegradedReason   string `json:"degraded_reason,omitempty"`
}

// AvailableResumeItem 可参与分析的简历条目
type AvailableResumeItem struct {
	ResumeID         string    `json:"resume_id"`
	CandidateName    string    `json:"candidate_name"`
	OriginalFilename string    `json:"original_filename"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

// HandleCreateSession 创建会话并异步启动分析
// 已在相同岗位上下文的已完成会话中出现过的简历会被拒绝。
func (h *SessionHandler) HandleCreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: user_id不能为空", ErrInvalidRequest)
	}
	if len(req.ResumeIDs) == 0 {
		return nil, fmt.Errorf("%w: resume_ids不能为空", ErrInvalidRequest)
	}

	for _, resumeID := range req.ResumeIDs {
		available, err := h.store.IsAvailable(ctx, resumeID, req.JobID)
		if err != nil {
			return nil, err
		}
		if !available {
			return nil, fmt.Errorf("%w: 简历 %s 在该岗位上下文中已有分析结果", ErrResumeUnavailable, resumeID)
		}
	}

	session, err := h.store.CreateSession(ctx, req.UserID, req.JobID, req.ResumeIDs)
	if err != nil {
		return nil, err
	}

	// 分析在后台执行，接口立即返回会话句柄供轮询
	go func() {
		runCtx := context.Background()
		if err := h.runner.RunSession(runCtx, session.SessionID); err != nil {
			applogger.Error().Err(err).Str("session_id", session.SessionID).Msg("会话分析执行失败")
		}
	}()

	return &CreateSessionResponse{
		SessionID:  session.SessionID,
		Name:       session.Name,
		Status:     session.Status,
		TotalCount: session.TotalCount,
	}, nil
}

// HandleSessionStatus 查询会话进度
// 优先读Redis快照，未命中或Redis不可用时回落到数据库。
func (h *SessionHandler) HandleSessionStatus(ctx context.Context, sessionID string) (*SessionStatusResponse, error) {
	if h.redis != nil {
		snapshot, err := h.redis.GetSessionProgress(ctx, sessionID)
		if err != nil {
			applogger.Warn().Err(err).Str("session_id", sessionID).Msg("读取进度快照失败，回落到数据库")
		} else if snapshot != nil {
			return &SessionStatusResponse{
				SessionID:       snapshot.SessionID,
				Status:          snapshot.Status,
				TotalCount:      snapshot.TotalCount,
				ProcessedCount:  snapshot.ProcessedCount,
				ProgressPercent: progressPercent(snapshot.ProcessedCount, snapshot.TotalCount),
			}, nil
		}
	}

	session, err := h.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionStatusResponse{
		SessionID:       session.SessionID,
		Status:          session.Status,
		TotalCount:      session.TotalCount,
		ProcessedCount:  session.ProcessedCount,
		ProgressPercent: progressPercent(session.ProcessedCount, session.TotalCount),
		FailureReason:   session.FailureReason,
	}, nil
}

// HandleSessionResults 查询会话分析结果，按总体匹配度降序
func (h *SessionHandler) HandleSessionResults(ctx context.Context, sessionID string) ([]ResultItem, error) {
	// 会话必须存在，空结果与会话不存在是两种不同的答案
	if _, err := h.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	results, err := h.store.SessionResults(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	items := make([]ResultItem, 0, len(results))
	for _, r := range results {
		item := ResultItem{
			ResumeID:         r.ResumeID,
			SkillMatch:       r.SkillMatch,
			ProjectRelevance: r.ProjectRelevance,
			ProblemSolving:   r.ProblemSolving,
			Tools:            r.Tools,
			OverallFit:       r.OverallFit,
			Summary:          r.Summary,
			Degraded:         r.Degraded,
			DegradedReason:   r.DegradedReason,
		}
		if r.Resume != nil {
			item.CandidateName = r.Resume.CandidateName
			item.OriginalFilename = r.Resume.OriginalFilename
		}
		items = append(items, item)
	}
	return items, nil
}

// HandleAvailableResumes 列出指定岗位上下文下可参与分析的简历
func (h *SessionHandler) HandleAvailableResumes(ctx context.Context, userID string, jobID *string) ([]AvailableResumeItem, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id不能为空", ErrInvalidRequest)
	}

	resumes, err := h.store.ListAvailable(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}

	items := make([]AvailableResumeItem, 0, len(resumes))
	for _, r := range resumes {
		items = append(items, AvailableResumeItem{
			ResumeID:         r.ResumeID,
			CandidateName:    r.CandidateName,
			OriginalFilename: r.OriginalFilename,
			Status:           r.Status,
			CreatedAt:        r.CreatedAt,
		})
	}
	return items, nil
}

// HandleResetSession 将终态会话重置回 pending 并重新触发分析
func (h *SessionHandler) HandleResetSession(ctx context.Context, sessionID string) (*SessionStatusResponse, error) {
	if err := h.store.ResetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	if h.redis != nil {
		if err := h.redis.DeleteSessionProgress(ctx, sessionID); err != nil {
			applogger.Warn().Err(err).Str("session_id", sessionID).Msg("删除进度快照失败")
		}
	}

	go func() {
		if err := h.runner.RunSession(context.Background(), sessionID); err != nil {
			applogger.Error().Err(err).Str("session_id", sessionID).Msg("重置后的会话分析执行失败")
		}
	}()

	return &SessionStatusResponse{
		SessionID: sessionID,
		Status:    constants.SessionStatusPending,
	}, nil
}

// HandleDeleteSession 删除会话及其全部结果
// 在途的分析结果由落账时的会话检查丢弃，之后的清扫兜住竞态残留。
func (h *SessionHandler) HandleDeleteSession(ctx context.Context, sessionID string) error {
	if err := h.store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}

	if h.redis != nil {
		if err := h.redis.DeleteSessionProgress(ctx, sessionID); err != nil {
			applogger.Warn().Err(err).Str("session_id", sessionID).Msg("删除进度快照失败")
		}
	}

	if _, err := h.runner.CleanupOrphans(ctx); err != nil {
		applogger.Warn().Err(err).Msg("清理孤儿分析结果失败")
	}
	return nil
}

func progressPercent(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(processed) / float64(total) * 100
}
