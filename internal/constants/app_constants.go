package constants

// 简历状态
const (
	ResumeStatusUploaded  = "uploaded"  // 文件已入库，尚未提取文本
	ResumeStatusProcessed = "processed" // 文本与联系方式已提取
	ResumeStatusAnalyzed  = "analyzed"  // 至少完成过一次打分
)

// 分析会话状态
const (
	SessionStatusPending    = "pending"
	SessionStatusProcessing = "processing"
	SessionStatusCompleted  = "completed"
	SessionStatusFailed     = "failed"
)

// 打分边界与兜底值
const (
	ScoreMin     = 0
	ScoreMax     = 100
	DefaultScore = 70 // 解析缺字段或调用失败时的默认分
)

// FallbackSummarySuffix 兜底结果的摘要后缀，前面拼接具体原因
const FallbackSummarySuffix = "analysis unavailable, default scores applied"

// UnknownCandidateName 无法从文件名或正文推断出姓名时的占位名
const UnknownCandidateName = "Unknown Candidate"

// 会话命名模板
const (
	SessionNameSuffix      = " - Candidate Analysis"
	GeneralSessionName     = "General Candidate Analysis"
	GeneralAnalysisContext = "general" // 日志与事件中标记无岗位上下文的会话
)
