package pipeline

import (
	"context"

	"resume-match-go/internal/parser"
	"resume-match-go/internal/scorer"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/storage/models"

	"github.com/cloudwego/eino/components/embedding"
)

// DocumentExtractor 从简历文件中提取正文与联系方式
type DocumentExtractor interface {
	Extract(data []byte, mimeType string) (*parser.ExtractedResume, error)
}

// TextChunker 把正文切成固定窗口的文本块
type TextChunker interface {
	Chunk(text string) []string
}

// Embedder 文本向量化能力，直接复用eino的embedding契约
type Embedder = embedding.Embedder

// MatchScorer 对"岗位 × 证据"打分，失败时内部退化为兜底结果
type MatchScorer interface {
	Score(ctx context.Context, jdText string, evidenceChunks []string) scorer.MatchScores
}

// ObjectDownloader 按存储键下载简历文件
type ObjectDownloader interface {
	DownloadResume(ctx context.Context, storageKey string) ([]byte, error)
}

// TextCache 提取文本缓存，可为nil（缓存不可用时直接重新提取）
type TextCache interface {
	GetCachedText(ctx context.Context, storageKey string) (string, bool, error)
	CacheText(ctx context.Context, storageKey, text string) error
}

// ResultStore 会话状态机与分析结果的持久化
type ResultStore interface {
	GetSession(ctx context.Context, sessionID string) (*models.AnalysisSession, error)
	SessionResumeIDs(ctx context.Context, sessionID string) ([]string, error)
	StartProcessing(ctx context.Context, sessionID string) error
	RecordResult(ctx context.Context, analysis *models.ResumeAnalysis) error
	FailSession(ctx context.Context, sessionID, reason string) error
	GetResume(ctx context.Context, resumeID string) (*models.Resume, error)
	UpdateResumeContact(ctx context.Context, resumeID, name, email, phone string) error
	CleanupOrphanAnalyses(ctx context.Context) (int64, error)
}

// ProgressSink 会话进度快照，可为nil
type ProgressSink interface {
	SetSessionProgress(ctx context.Context, progress storage.SessionProgress) error
}

// EventPublisher 会话事件发布，可为nil
type EventPublisher interface {
	PublishSessionEvent(ctx context.Context, routingKey string, event storage.SessionEvent) error
}
