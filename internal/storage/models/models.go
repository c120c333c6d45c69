package models

import (
	"time"

	"gorm.io/datatypes"
)

// Resume 简历主表
// StorageKey 是简历原始文件在对象存储中的唯一位置，
// 同一份简历无论参与多少个分析会话都只保留这一个键。
type Resume struct {
	ResumeID         string    `gorm:"type:char(36);primaryKey"`
	UserID           string    `gorm:"type:char(36);not null;index:idx_resumes_user_id"`
	OriginalFilename string    `gorm:"type:varchar(255)"`
	StorageKey       string    `gorm:"type:varchar(512);not null;uniqueIndex:idx_resumes_storage_key_unique"`
	CandidateName    string    `gorm:"type:varchar(255)"`
	CandidateEmail   string    `gorm:"type:varchar(255)"`
	CandidatePhone   string    `gorm:"type:varchar(50)"`
	Status           string    `gorm:"type:varchar(50);default:'uploaded';index:idx_resumes_status"`
	CreatedAt        time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt        time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Resume) TableName() string {
	return "resumes"
}

// JobPosting 岗位信息表
type JobPosting struct {
	JobID        string         `gorm:"type:char(36);primaryKey"`
	UserID       string         `gorm:"type:char(36);not null;index:idx_job_postings_user_id"`
	Title        string         `gorm:"type:varchar(255);not null"`
	Description  string         `gorm:"type:text;not null"`
	Requirements string         `gorm:"type:text"`
	KeywordsJSON datatypes.JSON `gorm:"type:json"`
	Status       string         `gorm:"type:varchar(50);default:'ACTIVE';index:idx_job_postings_status"`
	CreatedAt    time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt    time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (JobPosting) TableName() string {
	return "job_postings"
}

// AnalysisSession 分析会话表
// JobID 为 NULL 表示通用分析会话（无岗位上下文），与任何具体岗位都不同。
type AnalysisSession struct {
	SessionID      string     `gorm:"type:char(36);primaryKey"`
	UserID         string     `gorm:"type:char(36);not null;index:idx_sessions_user_id"`
	JobID          *string    `gorm:"type:char(36);index:idx_sessions_job_id"`
	Name           string     `gorm:"type:varchar(255)"`
	Status         string     `gorm:"type:varchar(50);default:'pending';index:idx_sessions_status"`
	TotalCount     int        `gorm:"not null;default:0"`
	ProcessedCount int        `gorm:"not null;default:0"`
	FailureReason  string     `gorm:"type:text"`
	CreatedAt      time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt      time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
	CompletedAt    *time.Time `gorm:"type:datetime(6)"`

	JobPosting *JobPosting `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (AnalysisSession) TableName() string {
	return "analysis_sessions"
}

// SessionResume 会话与待分析简历的关联表
type SessionResume struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	SessionID string    `gorm:"type:char(36);not null;uniqueIndex:idx_session_resumes_unique,priority:1"`
	ResumeID  string    `gorm:"type:char(36);not null;uniqueIndex:idx_session_resumes_unique,priority:2;index:idx_session_resumes_resume_id"`
	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Session *AnalysisSession `gorm:"foreignKey:SessionID;references:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Resume  *Resume          `gorm:"foreignKey:ResumeID;references:ResumeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (SessionResume) TableName() string {
	return "session_resumes"
}

// ResumeAnalysis 简历分析结果表
// (ResumeID, SessionID) 上的唯一索引保证同一会话内一份简历只有一条结果，
// 重复写入会触发数据库的唯一键冲突而不是静默覆盖。
type ResumeAnalysis struct {
	AnalysisID       uint64    `gorm:"primaryKey;autoIncrement"`
	ResumeID         string    `gorm:"type:char(36);not null;uniqueIndex:idx_analyses_resume_session_unique,priority:1;index:idx_analyses_resume_id"`
	SessionID        string    `gorm:"type:char(36);not null;uniqueIndex:idx_analyses_resume_session_unique,priority:2;index:idx_analyses_session_overall,priority:1"`
	SkillMatch       int       `gorm:"not null"`
	ProjectRelevance int       `gorm:"not null"`
	ProblemSolving   int       `gorm:"not null"`
	Tools            int       `gorm:"not null"`
	OverallFit       int       `gorm:"not null;index:idx_analyses_session_overall,priority:2"`
	Summary          string    `gorm:"type:text"`
	Degraded         bool      `gorm:"not null;default:false"` // 兜底结果标记，用于识别降级打分
	DegradedReason   string    `gorm:"type:varchar(512)"`
	CreatedAt        time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Session *AnalysisSession `gorm:"foreignKey:SessionID;references:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Resume  *Resume          `gorm:"foreignKey:ResumeID;references:ResumeID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (ResumeAnalysis) TableName() string {
	return "resume_analyses"
}
