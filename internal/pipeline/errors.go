package pipeline

import (
	"errors"
	"fmt"
)

// 定义基础错误类型
var (
	ErrResumeDownloadFailed = errors.New("下载简历文件失败")
	ErrTextExtractionFailed = errors.New("提取简历文本失败")
	ErrVectorizeFailed      = errors.New("简历向量化失败")
	ErrRetrievalFailed      = errors.New("证据检索失败")
	ErrRecordResultFailed   = errors.New("写入分析结果失败")
	ErrSessionOrchestration = errors.New("会话编排失败")
	ErrMissingJobContext    = errors.New("会话引用的岗位上下文缺失")
)

// AnalysisError 带上下文的流水线错误
type AnalysisError struct {
	ResumeID  string
	SessionID string
	Op        string
	BaseErr   error
	Detail    string
}

func (e *AnalysisError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 会话:%s, 简历:%s): %s", e.BaseErr, e.Op, e.SessionID, e.ResumeID, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 会话:%s, 简历:%s)", e.BaseErr, e.Op, e.SessionID, e.ResumeID)
}

func (e *AnalysisError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *AnalysisError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func newDownloadError(sessionID, resumeID, detail string) error {
	return &AnalysisError{
		ResumeID:  resumeID,
		SessionID: sessionID,
		Op:        "download",
		BaseErr:   ErrResumeDownloadFailed,
		Detail:    detail,
	}
}

func newExtractError(sessionID, resumeID, detail string) error {
	return &AnalysisError{
		ResumeID:  resumeID,
		SessionID: sessionID,
		Op:        "extract",
		BaseErr:   ErrTextExtractionFailed,
		Detail:    detail,
	}
}

func newVectorizeError(sessionID, resumeID, detail string) error {
	return &AnalysisError{
		ResumeID:  resumeID,
		SessionID: sessionID,
		Op:        "vectorize",
		BaseErr:   ErrVectorizeFailed,
		Detail:    detail,
	}
}

func newRetrievalError(sessionID, resumeID, detail string) error {
	return &AnalysisError{
		ResumeID:  resumeID,
		SessionID: sessionID,
		Op:        "retrieve",
		BaseErr:   ErrRetrievalFailed,
		Detail:    detail,
	}
}

func newRecordError(sessionID, resumeID, detail string) error {
	return &AnalysisError{
		ResumeID:  resumeID,
		SessionID: sessionID,
		Op:        "record",
		BaseErr:   ErrRecordResultFailed,
		Detail:    detail,
	}
}

func newOrchestrationError(sessionID, detail string) error {
	return &AnalysisError{
		SessionID: sessionID,
		Op:        "orchestrate",
		BaseErr:   ErrSessionOrchestration,
		Detail:    detail,
	}
}
