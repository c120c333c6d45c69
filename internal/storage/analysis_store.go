package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resume-match-go/internal/constants"
	applogger "resume-match-go/internal/logger"
	"resume-match-go/internal/storage/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrDuplicateAnalysis 同一会话内对同一份简历的第二次写入
	ErrDuplicateAnalysis = errors.New("该简历在此会话中已有分析结果")

	// ErrSessionNotFound 会话不存在（可能已被删除）
	ErrSessionNotFound = errors.New("分析会话不存在")

	// ErrResumeNotFound 简历不存在
	ErrResumeNotFound = errors.New("简历不存在")

	// ErrInvalidSessionState 会话状态不允许当前操作
	ErrInvalidSessionState = errors.New("会话状态不允许该操作")
)

// AnalysisStore 负责简历-会话关系与会话状态机的持久化
type AnalysisStore struct {
	db *gorm.DB
}

// NewAnalysisStore 创建分析结果存储
func NewAnalysisStore(mysql *MySQL) *AnalysisStore {
	return &AnalysisStore{db: mysql.DB()}
}

// CreateSession 创建待处理会话并登记待分析简历
// jobID 为 nil 表示通用分析会话。total_count 固定为简历数量。
func (s *AnalysisStore) CreateSession(ctx context.Context, userID string, jobID *string, resumeIDs []string) (*models.AnalysisSession, error) {
	if len(resumeIDs) == 0 {
		return nil, fmt.Errorf("待分析简历列表不能为空")
	}

	name := constants.GeneralSessionName
	if jobID != nil {
		var job models.JobPosting
		err := s.db.WithContext(ctx).Where("job_id = ?", *jobID).First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("岗位 %s 不存在", *jobID)
		}
		if err != nil {
			return nil, fmt.Errorf("查询岗位失败: %w", err)
		}
		name = job.Title + constants.SessionNameSuffix
	}

	session := &models.AnalysisSession{
		SessionID:  uuid.NewString(),
		UserID:     userID,
		JobID:      jobID,
		Name:       name,
		Status:     constants.SessionStatusPending,
		TotalCount: len(resumeIDs),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Resume{}).Where("resume_id IN ?", resumeIDs).Count(&count).Error; err != nil {
			return fmt.Errorf("校验简历存在性失败: %w", err)
		}
		if int(count) != len(resumeIDs) {
			return ErrResumeNotFound
		}

		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("创建会话失败: %w", err)
		}

		links := make([]models.SessionResume, 0, len(resumeIDs))
		for _, rid := range resumeIDs {
			links = append(links, models.SessionResume{SessionID: session.SessionID, ResumeID: rid})
		}
		if err := tx.Create(&links).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("待分析简历列表包含重复项: %w", err)
			}
			return fmt.Errorf("登记会话简历失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// StartProcessing 将会话从 pending 推进到 processing
// WHERE 条件兜住并发触发：只有第一个调用方能成功，其余得到状态错误。
func (s *AnalysisStore) StartProcessing(ctx context.Context, sessionID string) error {
	res := s.db.WithContext(ctx).Model(&models.AnalysisSession{}).
		Where("session_id = ? AND status = ?", sessionID, constants.SessionStatusPending).
		Update("status", constants.SessionStatusProcessing)
	if res.Error != nil {
		return fmt.Errorf("更新会话状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.AnalysisSession{}).
			Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
			return fmt.Errorf("查询会话失败: %w", err)
		}
		if count == 0 {
			return ErrSessionNotFound
		}
		return ErrInvalidSessionState
	}
	return nil
}

// RecordResult 在单个事务内写入一条分析结果并推进会话计数
// 计数只通过 processed_count = processed_count + 1 的SQL自增推进，
// 并发记录时不会互相覆盖。processed 追平 total 时翻转为 completed，
// 简历本身进入 analyzed 终态。
func (s *AnalysisStore) RecordResult(ctx context.Context, analysis *models.ResumeAnalysis) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(analysis).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("resume=%s session=%s: %w", analysis.ResumeID, analysis.SessionID, ErrDuplicateAnalysis)
			}
			if errors.Is(err, gorm.ErrForeignKeyViolated) {
				return fmt.Errorf("resume=%s session=%s: %w", analysis.ResumeID, analysis.SessionID, ErrSessionNotFound)
			}
			return fmt.Errorf("写入分析结果失败: %w", err)
		}

		if err := tx.Model(&models.Resume{}).
			Where("resume_id = ?", analysis.ResumeID).
			Update("status", constants.ResumeStatusAnalyzed).Error; err != nil {
			return fmt.Errorf("更新简历状态失败: %w", err)
		}

		res := tx.Model(&models.AnalysisSession{}).
			Where("session_id = ?", analysis.SessionID).
			Update("processed_count", gorm.Expr("processed_count + 1"))
		if res.Error != nil {
			return fmt.Errorf("推进会话计数失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("session=%s: %w", analysis.SessionID, ErrSessionNotFound)
		}

		// 全部简历落账后翻转为 completed
		now := time.Now()
		res = tx.Model(&models.AnalysisSession{}).
			Where("session_id = ? AND status = ? AND processed_count >= total_count",
				analysis.SessionID, constants.SessionStatusProcessing).
			Updates(map[string]interface{}{
				"status":       constants.SessionStatusCompleted,
				"completed_at": &now,
			})
		if res.Error != nil {
			return fmt.Errorf("完成会话失败: %w", res.Error)
		}
		return nil
	})
}

// FailSession 将会话标记为 failed 并记录原因
// 只用于分发前的编排失败（例如岗位上下文缺失），单份简历的打分失败不走这里。
func (s *AnalysisStore) FailSession(ctx context.Context, sessionID, reason string) error {
	res := s.db.WithContext(ctx).Model(&models.AnalysisSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"status":         constants.SessionStatusFailed,
			"failure_reason": reason,
		})
	if res.Error != nil {
		return fmt.Errorf("标记会话失败状态出错: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ResetSession 将终态会话重置回 pending，清零计数并删除已有结果
func (s *AnalysisStore) ResetSession(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.AnalysisSession
		err := tx.Where("session_id = ?", sessionID).First(&session).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("查询会话失败: %w", err)
		}
		if session.Status != constants.SessionStatusCompleted && session.Status != constants.SessionStatusFailed {
			return ErrInvalidSessionState
		}

		if err := tx.Where("session_id = ?", sessionID).Delete(&models.ResumeAnalysis{}).Error; err != nil {
			return fmt.Errorf("删除旧分析结果失败: %w", err)
		}

		res := tx.Model(&models.AnalysisSession{}).
			Where("session_id = ?", sessionID).
			Updates(map[string]interface{}{
				"status":          constants.SessionStatusPending,
				"processed_count": 0,
				"failure_reason":  "",
				"completed_at":    nil,
			})
		if res.Error != nil {
			return fmt.Errorf("重置会话状态失败: %w", res.Error)
		}
		return nil
	})
}

// DeleteSession 删除会话及其全部关联数据
func (s *AnalysisStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.ResumeAnalysis{}).Error; err != nil {
			return fmt.Errorf("删除分析结果失败: %w", err)
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.SessionResume{}).Error; err != nil {
			return fmt.Errorf("删除会话简历关联失败: %w", err)
		}
		res := tx.Where("session_id = ?", sessionID).Delete(&models.AnalysisSession{})
		if res.Error != nil {
			return fmt.Errorf("删除会话失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
}

// CleanupOrphanAnalyses 清扫不再挂在任何会话下的分析结果
// 删除/重置与在途打分并发时可能留下孤儿行，周期性清扫保证可达性。
func (s *AnalysisStore) CleanupOrphanAnalyses(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Exec(`
		DELETE ra FROM resume_analyses ra
		LEFT JOIN analysis_sessions s ON ra.session_id = s.session_id
		WHERE s.session_id IS NULL`)
	if res.Error != nil {
		return 0, fmt.Errorf("清理孤儿分析结果失败: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		applogger.Info().Int64("rows", res.RowsAffected).Msg("已清理孤儿分析结果")
	}
	return res.RowsAffected, nil
}

// IsAvailable 判断简历在给定岗位上下文下是否可进入新的分析
// 规则：只要存在已完成会话中的分析结果且岗位上下文相同即不可用；
// NULL(通用)上下文与任何具体岗位互不影响，MySQL的 <=> 对NULL做等值比较。
func (s *AnalysisStore) IsAvailable(ctx context.Context, resumeID string, jobID *string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Table("resume_analyses ra").
		Joins("JOIN analysis_sessions s ON ra.session_id = s.session_id").
		Where("ra.resume_id = ? AND s.status = ? AND s.job_id <=> ?", resumeID, constants.SessionStatusCompleted, jobID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("查询简历可用性失败: %w", err)
	}
	return count == 0, nil
}

// ListAvailable 列出用户在给定岗位上下文下可参与分析的简历
func (s *AnalysisStore) ListAvailable(ctx context.Context, userID string, jobID *string) ([]models.Resume, error) {
	var resumes []models.Resume
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where(`NOT EXISTS (
			SELECT 1 FROM resume_analyses ra
			JOIN analysis_sessions s ON ra.session_id = s.session_id
			WHERE ra.resume_id = resumes.resume_id
			  AND s.status = ?
			  AND s.job_id <=> ?)`, constants.SessionStatusCompleted, jobID).
		Order("created_at DESC").
		Find(&resumes).Error
	if err != nil {
		return nil, fmt.Errorf("查询可用简历失败: %w", err)
	}
	return resumes, nil
}

// GetSession 读取会话（含岗位信息）
func (s *AnalysisStore) GetSession(ctx context.Context, sessionID string) (*models.AnalysisSession, error) {
	var session models.AnalysisSession
	err := s.db.WithContext(ctx).Preload("JobPosting").
		Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询会话失败: %w", err)
	}
	return &session, nil
}

// SessionResumeIDs 返回会话登记的全部简历ID
func (s *AnalysisStore) SessionResumeIDs(ctx context.Context, sessionID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.SessionResume{}).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Pluck("resume_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("查询会话简历列表失败: %w", err)
	}
	return ids, nil
}

// SessionResults 返回会话的全部分析结果，按总体匹配度降序
func (s *AnalysisStore) SessionResults(ctx context.Context, sessionID string) ([]models.ResumeAnalysis, error) {
	var results []models.ResumeAnalysis
	err := s.db.WithContext(ctx).Preload("Resume").
		Where("session_id = ?", sessionID).
		Order("overall_fit DESC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("查询会话结果失败: %w", err)
	}
	return results, nil
}

// GetResume 按ID读取简历
func (s *AnalysisStore) GetResume(ctx context.Context, resumeID string) (*models.Resume, error) {
	var resume models.Resume
	err := s.db.WithContext(ctx).Where("resume_id = ?", resumeID).First(&resume).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrResumeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询简历失败: %w", err)
	}
	return &resume, nil
}

// UpdateResumeContact 回填从正文提取出的候选人联系方式
// 只覆盖非空字段，避免一次失败的提取抹掉已有信息。
func (s *AnalysisStore) UpdateResumeContact(ctx context.Context, resumeID, name, email, phone string) error {
	updates := map[string]interface{}{"status": constants.ResumeStatusProcessed}
	if name != "" {
		updates["candidate_name"] = name
	}
	if email != "" {
		updates["candidate_email"] = email
	}
	if phone != "" {
		updates["candidate_phone"] = phone
	}
	res := s.db.WithContext(ctx).Model(&models.Resume{}).
		Where("resume_id = ?", resumeID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("更新简历联系方式失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrResumeNotFound
	}
	return nil
}
