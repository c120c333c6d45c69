package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	applogger "resume-match-go/internal/logger"
	"resume-match-go/internal/parser"
	"resume-match-go/internal/scorer"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/storage/models"
)

// SessionRunner 驱动一个分析会话从 pending 走到终态
type SessionRunner struct {
	extractor  DocumentExtractor
	chunker    TextChunker
	embedder   Embedder
	scorer     MatchScorer
	downloader ObjectDownloader
	textCache  TextCache // 可为nil
	store      ResultStore
	progress   ProgressSink   // 可为nil
	events     EventPublisher // 可为nil

	topK                int
	workerCount         int
	completedRoutingKey string
	failedRoutingKey    string
}

// RunnerDeps 运行器的依赖集合
type RunnerDeps struct {
	Extractor  DocumentExtractor
	Chunker    TextChunker
	Embedder   Embedder
	Scorer     MatchScorer
	Downloader ObjectDownloader
	TextCache  TextCache
	Store      ResultStore
	Progress   ProgressSink
	Events     EventPublisher
}

// NewSessionRunner 创建会话运行器
func NewSessionRunner(deps RunnerDeps, analyzerCfg config.AnalyzerConfig, mqCfg config.RabbitMQConfig) *SessionRunner {
	topK := analyzerCfg.TopK
	if topK <= 0 {
		topK = 5
	}
	workers := analyzerCfg.WorkerCount
	if workers <= 0 {
		workers = 5
	}
	return &SessionRunner{
		extractor:           deps.Extractor,
		chunker:             deps.Chunker,
		embedder:            deps.Embedder,
		scorer:              deps.Scorer,
		downloader:          deps.Downloader,
		textCache:           deps.TextCache,
		store:               deps.Store,
		progress:            deps.Progress,
		events:              deps.Events,
		topK:                topK,
		workerCount:         workers,
		completedRoutingKey: mqCfg.CompletedRoutingKey,
		failedRoutingKey:    mqCfg.FailedRoutingKey,
	}
}

// RunSession 执行一个会话的完整分析流程
// 单份简历的任何失败都会以兜底结果落账，只有分发前的编排失败
// （岗位上下文缺失）才会让整个会话进入 failed。
func (r *SessionRunner) RunSession(ctx context.Context, sessionID string) error {
	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return newOrchestrationError(sessionID, err.Error())
	}

	// 确定打分基准：具体岗位JD或通用画像
	jdText := scorer.StandardJDTemplate()
	jobContext := constants.GeneralAnalysisContext
	if session.JobID != nil {
		jobContext = *session.JobID
		if session.JobPosting == nil {
			reason := fmt.Sprintf("岗位 %s 不存在或已删除", *session.JobID)
			r.failSession(ctx, session, reason)
			return &AnalysisError{SessionID: sessionID, Op: "orchestrate", BaseErr: ErrMissingJobContext, Detail: reason}
		}
		jdText = session.JobPosting.Description
		if session.JobPosting.Requirements != "" {
			jdText += "\n" + session.JobPosting.Requirements
		}
	}

	if err := r.store.StartProcessing(ctx, sessionID); err != nil {
		return newOrchestrationError(sessionID, err.Error())
	}

	resumeIDs, err := r.store.SessionResumeIDs(ctx, sessionID)
	if err != nil {
		return newOrchestrationError(sessionID, err.Error())
	}

	applogger.Info().
		Str("session_id", sessionID).
		Str("job_context", jobContext).
		Int("resume_count", len(resumeIDs)).
		Msg("会话分析开始")

	// JD向量整个会话只算一次；失败不终止会话，
	// 而是让每份简历都走证据缺失的兜底路径。
	var queryVec []float64
	if vecs, embErr := r.embedder.EmbedStrings(ctx, []string{jdText}); embErr != nil {
		applogger.Warn().Err(embErr).Str("session_id", sessionID).Msg("JD向量化失败，全部简历将使用兜底打分")
	} else if len(vecs) > 0 {
		queryVec = vecs[0]
	}

	sem := make(chan struct{}, r.workerCount)
	var wg sync.WaitGroup
	for _, resumeID := range resumeIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(resumeID string) {
			defer wg.Done()
			defer func() { <-sem }()

			scores := r.analyzeResume(ctx, sessionID, resumeID, jdText, queryVec)
			r.recordResult(ctx, sessionID, resumeID, scores)
			r.snapshotProgress(ctx, sessionID)
		}(resumeID)
	}
	wg.Wait()

	r.finishSession(ctx, sessionID)
	return nil
}

// analyzeResume 单份简历的完整分析，永远返回可落账的结果
func (r *SessionRunner) analyzeResume(ctx context.Context, sessionID, resumeID, jdText string, queryVec []float64) scorer.MatchScores {
	text, err := r.resumeText(ctx, sessionID, resumeID)
	if err != nil {
		applogger.Warn().Err(err).Str("resume_id", resumeID).Msg("简历文本不可用，使用兜底结果")
		return scorer.FallbackScores("text extraction failed")
	}

	evidence, err := r.retrieveEvidence(ctx, sessionID, resumeID, text, queryVec)
	if err != nil {
		applogger.Warn().Err(err).Str("resume_id", resumeID).Msg("证据检索失败，使用兜底结果")
		return scorer.FallbackScores("evidence retrieval failed")
	}

	// 打分失败在 scorer 内部退化，这里拿到的结果永远可用
	return r.scorer.Score(ctx, jdText, evidence)
}

// resumeText 获取简历正文：缓存优先，未命中时下载并提取
func (r *SessionRunner) resumeText(ctx context.Context, sessionID, resumeID string) (string, error) {
	resume, err := r.store.GetResume(ctx, resumeID)
	if err != nil {
		return "", newDownloadError(sessionID, resumeID, err.Error())
	}

	if r.textCache != nil {
		if text, ok, cacheErr := r.textCache.GetCachedText(ctx, resume.StorageKey); cacheErr != nil {
			applogger.Warn().Err(cacheErr).Str("resume_id", resumeID).Msg("读取文本缓存失败，回落到重新提取")
		} else if ok {
			return text, nil
		}
	}

	data, err := r.downloader.DownloadResume(ctx, resume.StorageKey)
	if err != nil {
		return "", newDownloadError(sessionID, resumeID, err.Error())
	}

	extracted, err := r.extractor.Extract(data, mimeTypeFromFilename(resume.OriginalFilename))
	if err != nil {
		return "", newExtractError(sessionID, resumeID, err.Error())
	}

	r.backfillContact(ctx, resume, extracted.Contact)

	if r.textCache != nil {
		if cacheErr := r.textCache.CacheText(ctx, resume.StorageKey, extracted.Text); cacheErr != nil {
			applogger.Warn().Err(cacheErr).Str("resume_id", resumeID).Msg("写入文本缓存失败")
		}
	}
	return extracted.Text, nil
}

// backfillContact 把提取出的联系方式回填到简历行
func (r *SessionRunner) backfillContact(ctx context.Context, resume *models.Resume, contact parser.ContactInfo) {
	name := contact.Name
	if name == "" {
		name = parser.NameFromFilename(resume.OriginalFilename)
	}
	if err := r.store.UpdateResumeContact(ctx, resume.ResumeID, name, contact.Email, contact.Phone); err != nil {
		applogger.Warn().Err(err).Str("resume_id", resume.ResumeID).Msg("回填联系方式失败")
	}
}

// retrieveEvidence 为单份简历构建隔离索引并检索top-k证据块
func (r *SessionRunner) retrieveEvidence(ctx context.Context, sessionID, resumeID, text string, queryVec []float64) ([]string, error) {
	if queryVec == nil {
		return nil, newRetrievalError(sessionID, resumeID, "JD向量不可用")
	}

	chunks := r.chunker.Chunk(text)
	vectors, err := r.embedder.EmbedStrings(ctx, chunks)
	if err != nil {
		return nil, newVectorizeError(sessionID, resumeID, err.Error())
	}

	index := parser.NewVectorIndex()
	if err := index.Build(chunks, vectors); err != nil {
		return nil, newVectorizeError(sessionID, resumeID, err.Error())
	}

	hits, err := index.Query(queryVec, r.topK)
	if err != nil {
		return nil, newRetrievalError(sessionID, resumeID, err.Error())
	}

	evidence := make([]string, len(hits))
	for i, h := range hits {
		evidence[i] = h.Text
	}
	return evidence, nil
}

// recordResult 落账一条结果
// 会话已被删除或结果重复时只记日志不再传播，迟到的结果被安静丢弃。
func (r *SessionRunner) recordResult(ctx context.Context, sessionID, resumeID string, scores scorer.MatchScores) {
	analysis := &models.ResumeAnalysis{
		ResumeID:         resumeID,
		SessionID:        sessionID,
		SkillMatch:       scores.SkillMatch,
		ProjectRelevance: scores.ProjectRelevance,
		ProblemSolving:   scores.ProblemSolving,
		Tools:            scores.Tools,
		OverallFit:       scores.OverallFit,
		Summary:          scores.Summary,
		Degraded:         scores.Degraded,
		DegradedReason:   scores.DegradedReason,
	}

	err := r.store.RecordResult(ctx, analysis)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrDuplicateAnalysis):
		// 同一会话内同一简历被写了两次，属于编排缺陷，必须留痕
		applogger.Error().Str("session_id", sessionID).Str("resume_id", resumeID).Msg("分析结果重复，丢弃本次写入")
	case errors.Is(err, storage.ErrSessionNotFound):
		applogger.Info().Str("session_id", sessionID).Str("resume_id", resumeID).Msg("会话已删除，丢弃迟到的分析结果")
	default:
		applogger.Error().Err(newRecordError(sessionID, resumeID, err.Error())).Msg("写入分析结果失败")
	}
}

// snapshotProgress 把最新进度写入快照，供轮询接口读取
func (r *SessionRunner) snapshotProgress(ctx context.Context, sessionID string) {
	if r.progress == nil {
		return
	}
	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return
	}
	_ = r.progress.SetSessionProgress(ctx, storage.SessionProgress{
		SessionID:      session.SessionID,
		Status:         session.Status,
		TotalCount:     session.TotalCount,
		ProcessedCount: session.ProcessedCount,
	})
}

// finishSession 发布终态事件
func (r *SessionRunner) finishSession(ctx context.Context, sessionID string) {
	session, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		applogger.Info().Str("session_id", sessionID).Msg("会话在分析期间被删除，跳过完成事件")
		return
	}

	r.snapshotProgress(ctx, sessionID)

	if r.events != nil && session.Status == constants.SessionStatusCompleted {
		event := storage.SessionEvent{
			SessionID:      session.SessionID,
			UserID:         session.UserID,
			Status:         session.Status,
			TotalCount:     session.TotalCount,
			ProcessedCount: session.ProcessedCount,
		}
		if err := r.events.PublishSessionEvent(ctx, r.completedRoutingKey, event); err != nil {
			applogger.Warn().Err(err).Str("session_id", sessionID).Msg("发布会话完成事件失败")
		}
	}
}

// failSession 标记会话失败并发布事件
func (r *SessionRunner) failSession(ctx context.Context, session *models.AnalysisSession, reason string) {
	if err := r.store.FailSession(ctx, session.SessionID, reason); err != nil {
		applogger.Error().Err(err).Str("session_id", session.SessionID).Msg("标记会话失败状态出错")
		return
	}
	if r.events != nil {
		event := storage.SessionEvent{
			SessionID: session.SessionID,
			UserID:    session.UserID,
			Status:    constants.SessionStatusFailed,
			Reason:    reason,
		}
		if err := r.events.PublishSessionEvent(ctx, r.failedRoutingKey, event); err != nil {
			applogger.Warn().Err(err).Str("session_id", session.SessionID).Msg("发布会话失败事件失败")
		}
	}
	r.snapshotProgress(ctx, session.SessionID)
}

// CleanupOrphans 清扫孤儿分析结果，删除会话后调用
func (r *SessionRunner) CleanupOrphans(ctx context.Context) (int64, error) {
	return r.store.CleanupOrphanAnalyses(ctx)
}

// mimeTypeFromFilename 按扩展名推断MIME类型
func mimeTypeFromFilename(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	default:
		return "application/octet-stream"
	}
}
