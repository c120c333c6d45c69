package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/parser"
	"resume-match-go/internal/scorer"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/storage/models"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore 内存版的结果存储，模拟会话状态机
type fakeStore struct {
	mu        sync.Mutex
	session   *models.AnalysisSession
	resumes   map[string]*models.Resume
	resumeIDs []string
	analyses  []*models.ResumeAnalysis
	deleted   bool
	contacts  map[string]string
}

func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (*models.AnalysisSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleted || f.session == nil || f.session.SessionID != sessionID {
		return nil, storage.ErrSessionNotFound
	}
	copied := *f.session
	return &copied, nil
}

func (f *fakeStore) SessionResumeIDs(ctx context.Context, sessionID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.resumeIDs...), nil
}

func (f *fakeStore) StartProcessing(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil || f.session.SessionID != sessionID {
		return storage.ErrSessionNotFound
	}
	if f.session.Status != constants.SessionStatusPending {
		return storage.ErrInvalidSessionState
	}
	f.session.Status = constants.SessionStatusProcessing
	return nil
}

func (f *fakeStore) RecordResult(ctx context.Context, analysis *models.ResumeAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleted {
		return storage.ErrSessionNotFound
	}
	for _, existing := range f.analyses {
		if existing.ResumeID == analysis.ResumeID && existing.SessionID == analysis.SessionID {
			return storage.ErrDuplicateAnalysis
		}
	}
	f.analyses = append(f.analyses, analysis)
	if resume, ok := f.resumes[analysis.ResumeID]; ok {
		resume.Status = constants.ResumeStatusAnalyzed
	}
	f.session.ProcessedCount++
	if f.session.Status == constants.SessionStatusProcessing && f.session.ProcessedCount >= f.session.TotalCount {
		f.session.Status = constants.SessionStatusCompleted
	}
	return nil
}

func (f *fakeStore) FailSession(ctx context.Context, sessionID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil || f.session.SessionID != sessionID {
		return storage.ErrSessionNotFound
	}
	f.session.Status = constants.SessionStatusFailed
	f.session.FailureReason = reason
	return nil
}

func (f *fakeStore) GetResume(ctx context.Context, resumeID string) (*models.Resume, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resume, ok := f.resumes[resumeID]
	if !ok {
		return nil, storage.ErrResumeNotFound
	}
	copied := *resume
	return &copied, nil
}

func (f *fakeStore) UpdateResumeContact(ctx context.Context, resumeID, name, email, phone string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contacts == nil {
		f.contacts = make(map[string]string)
	}
	f.contacts[resumeID] = name
	return nil
}

func (f *fakeStore) CleanupOrphanAnalyses(ctx context.Context) (int64, error) {
	return 0, nil
}

// fakeDownloader 按存储键返回预置文件内容
type fakeDownloader struct {
	objects map[string][]byte
}

func (f *fakeDownloader) DownloadResume(ctx context.Context, storageKey string) ([]byte, error) {
	data, ok := f.objects[storageKey]
	if !ok {
		return nil, fmt.Errorf("对象不存在: %s", storageKey)
	}
	return data, nil
}

// fakeExtractor 把文件字节直接当正文返回，特定内容触发提取失败
type fakeExtractor struct{}

func (f *fakeExtractor) Extract(data []byte, mimeType string) (*parser.ExtractedResume, error) {
	if strings.Contains(string(data), "corrupted") {
		return nil, parser.ErrExtractionFailed
	}
	return &parser.ExtractedResume{
		Text:    string(data),
		Contact: parser.ContactInfo{Name: "测试候选人"},
	}, nil
}

// stubEmbedder 满足eino embedding.Embedder契约，为每段文本返回单位向量
type stubEmbedder struct {
	failAll bool
}

func newStubEmbedder(failAll bool) *stubEmbedder {
	return &stubEmbedder{failAll: failAll}
}

func (s *stubEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if s.failAll {
		return nil, errors.New("embedding service unavailable")
	}
	vectors := make([][]float64, len(texts))
	for i := range texts {
		vectors[i] = []float64{1, 0, 0}
	}
	return vectors, nil
}

// stubScorer 记录收到的JD并返回固定分数
type stubScorer struct {
	mu     sync.Mutex
	jdSeen []string
	scores scorer.MatchScores
}

func (s *stubScorer) Score(ctx context.Context, jdText string, evidenceChunks []string) scorer.MatchScores {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jdSeen = append(s.jdSeen, jdText)
	return s.scores
}

// recordingEvents 记录发布的事件
type recordingEvents struct {
	mu     sync.Mutex
	events []storage.SessionEvent
	keys   []string
}

func (r *recordingEvents) PublishSessionEvent(ctx context.Context, routingKey string, event storage.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, routingKey)
	r.events = append(r.events, event)
	return nil
}

// recordingProgress 记录进度快照
type recordingProgress struct {
	mu        sync.Mutex
	snapshots []storage.SessionProgress
}

func (r *recordingProgress) SetSessionProgress(ctx context.Context, progress storage.SessionProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, progress)
	return nil
}

func (r *recordingProgress) last() (storage.SessionProgress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return storage.SessionProgress{}, false
	}
	return r.snapshots[len(r.snapshots)-1], true
}

type runnerFixture struct {
	store    *fakeStore
	scorer   *stubScorer
	events   *recordingEvents
	progress *recordingProgress
	runner   *SessionRunner
}

func newRunnerFixture(t *testing.T, store *fakeStore, failEmbed bool) *runnerFixture {
	t.Helper()
	cfg := config.DefaultConfig()
	sc := &stubScorer{scores: scorer.MatchScores{
		SkillMatch: 80, ProjectRelevance: 75, ProblemSolving: 85,
		Tools: 70, OverallFit: 78, Summary: "匹配良好",
	}}
	events := &recordingEvents{}
	progress := &recordingProgress{}
	runner := NewSessionRunner(RunnerDeps{
		Extractor:  &fakeExtractor{},
		Chunker:    parser.NewTextChunker(cfg.Analyzer.ChunkSize, cfg.Analyzer.ChunkOverlap),
		Embedder:   newStubEmbedder(failEmbed),
		Scorer:     sc,
		Downloader: &fakeDownloader{objects: storeObjects(store)},
		Store:      store,
		Progress:   progress,
		Events:     events,
	}, cfg.Analyzer, cfg.RabbitMQ)
	return &runnerFixture{store: store, scorer: sc, events: events, progress: progress, runner: runner}
}

// storeObjects 为fakeStore里每份简历生成对象存储内容
func storeObjects(store *fakeStore) map[string][]byte {
	objects := make(map[string][]byte)
	for _, resume := range store.resumes {
		objects[resume.StorageKey] = []byte("resume body for " + resume.ResumeID)
	}
	return objects
}

func newTestSession(jobID *string, resumeCount int) *fakeStore {
	session := &models.AnalysisSession{
		SessionID:  "session-1",
		UserID:     "user-1",
		JobID:      jobID,
		Status:     constants.SessionStatusPending,
		TotalCount: resumeCount,
	}
	if jobID != nil {
		session.JobPosting = &models.JobPosting{
			JobID:        *jobID,
			Title:        "Go后端工程师",
			Description:  "负责高并发服务端开发",
			Requirements: "三年以上Go经验",
		}
	}
	store := &fakeStore{session: session, resumes: make(map[string]*models.Resume)}
	for i := 0; i < resumeCount; i++ {
		rid := fmt.Sprintf("resume-%d", i)
		store.resumes[rid] = &models.Resume{
			ResumeID:         rid,
			UserID:           "user-1",
			OriginalFilename: rid + ".pdf",
			StorageKey:       "resumes/" + rid + ".pdf",
		}
		store.resumeIDs = append(store.resumeIDs, rid)
	}
	return store
}

func TestRunSessionAllResumesSucceed(t *testing.T) {
	jobID := "job-1"
	store := newTestSession(&jobID, 3)
	fx := newRunnerFixture(t, store, false)

	err := fx.runner.RunSession(context.Background(), "session-1")
	require.NoError(t, err)

	assert.Equal(t, constants.SessionStatusCompleted, store.session.Status)
	assert.Equal(t, 3, store.session.ProcessedCount)
	assert.Len(t, store.analyses, 3)
	for _, a := range store.analyses {
		assert.False(t, a.Degraded)
		assert.Equal(t, 78, a.OverallFit)
	}
	for _, resume := range store.resumes {
		assert.Equal(t, constants.ResumeStatusAnalyzed, resume.Status, "落账后简历应进入终态")
	}

	// JD包含岗位描述与要求
	require.NotEmpty(t, fx.scorer.jdSeen)
	assert.Contains(t, fx.scorer.jdSeen[0], "高并发服务端开发")
	assert.Contains(t, fx.scorer.jdSeen[0], "三年以上Go经验")

	// 完成事件与最终进度快照
	require.Len(t, fx.events.keys, 1)
	assert.Equal(t, "session.completed", fx.events.keys[0])
	assert.Equal(t, constants.SessionStatusCompleted, fx.events.events[0].Status)
	last, ok := fx.progress.last()
	require.True(t, ok)
	assert.Equal(t, 3, last.ProcessedCount)
}

func TestRunSessionGeneralContextUsesStandardTemplate(t *testing.T) {
	store := newTestSession(nil, 1)
	fx := newRunnerFixture(t, store, false)

	require.NoError(t, fx.runner.RunSession(context.Background(), "session-1"))
	require.NotEmpty(t, fx.scorer.jdSeen)
	assert.Contains(t, fx.scorer.jdSeen[0], "software engineer")
}

func TestRunSessionCorruptedResumeFallsBack(t *testing.T) {
	jobID := "job-1"
	store := newTestSession(&jobID, 2)
	fx := newRunnerFixture(t, store, false)
	// 第二份简历的文件内容触发提取失败
	fx.runner.downloader.(*fakeDownloader).objects["resumes/resume-1.pdf"] = []byte("corrupted bytes")

	require.NoError(t, fx.runner.RunSession(context.Background(), "session-1"))

	// 坏简历同样落账，会话照常完成
	assert.Equal(t, constants.SessionStatusCompleted, store.session.Status)
	assert.Equal(t, 2, store.session.ProcessedCount)
	require.Len(t, store.analyses, 2)

	var degraded *models.ResumeAnalysis
	for _, a := range store.analyses {
		if a.ResumeID == "resume-1" {
			degraded = a
		}
	}
	require.NotNil(t, degraded)
	assert.True(t, degraded.Degraded)
	assert.Equal(t, constants.DefaultScore, degraded.OverallFit)
	assert.Contains(t, degraded.Summary, constants.FallbackSummarySuffix)
}

func TestRunSessionMissingJobContextFails(t *testing.T) {
	jobID := "job-gone"
	store := newTestSession(&jobID, 2)
	store.session.JobPosting = nil
	fx := newRunnerFixture(t, store, false)

	err := fx.runner.RunSession(context.Background(), "session-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingJobContext))

	// 没有分发任何简历，会话进入failed并发布失败事件
	assert.Equal(t, constants.SessionStatusFailed, store.session.Status)
	assert.NotEmpty(t, store.session.FailureReason)
	assert.Empty(t, store.analyses)
	require.Len(t, fx.events.keys, 1)
	assert.Equal(t, "session.failed", fx.events.keys[0])
}

func TestRunSessionJDEmbeddingFailureDegradesAll(t *testing.T) {
	jobID := "job-1"
	store := newTestSession(&jobID, 2)
	fx := newRunnerFixture(t, store, true)

	require.NoError(t, fx.runner.RunSession(context.Background(), "session-1"))

	// 向量化不可用时每份简历都走兜底，会话依旧完成
	assert.Equal(t, constants.SessionStatusCompleted, store.session.Status)
	require.Len(t, store.analyses, 2)
	for _, a := range store.analyses {
		assert.True(t, a.Degraded)
		assert.Equal(t, constants.DefaultScore, a.OverallFit)
	}
}

func TestRunSessionDeletedMidwayDiscardsResults(t *testing.T) {
	jobID := "job-1"
	store := newTestSession(&jobID, 2)
	fx := newRunnerFixture(t, store, false)
	// 启动后立即标记删除，RecordResult开始返回会话不存在
	store.mu.Lock()
	store.session.Status = constants.SessionStatusPending
	store.mu.Unlock()

	require.NoError(t, store.StartProcessing(context.Background(), "session-1"))
	store.mu.Lock()
	store.deleted = true
	store.mu.Unlock()

	// 迟到的结果被安静丢弃，不会panic也不会污染计数
	fx.runner.recordResult(context.Background(), "session-1", "resume-0", scorer.FallbackScores("late"))
	assert.Empty(t, store.analyses)
	assert.Equal(t, 0, store.session.ProcessedCount)
}

func TestRunSessionAlreadyProcessingRejected(t *testing.T) {
	jobID := "job-1"
	store := newTestSession(&jobID, 1)
	store.session.Status = constants.SessionStatusProcessing
	fx := newRunnerFixture(t, store, false)

	err := fx.runner.RunSession(context.Background(), "session-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionOrchestration))
	assert.Empty(t, store.analyses)
}
