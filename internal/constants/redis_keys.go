package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// ResumeModulePrefix 简历模块
	ResumeModulePrefix = "resume"
	// SessionModulePrefix 分析会话模块
	SessionModulePrefix = "session"

	// EntityText 文本实体
	EntityText = "text"
	// EntityProgress 进度快照实体
	EntityProgress = "progress"

	// KeyResumeExtractedText 提取文本缓存 (STRING)
	// 格式: app:resume:text:{storageKey}
	// 以存储键为维度缓存，同一份简历在不同岗位上下文下复用同一份提取结果
	KeyResumeExtractedText = AppPrefix + ":" + ResumeModulePrefix + ":" + EntityText + ":%s"

	// KeySessionProgress 会话进度快照 (STRING, JSON)
	// 格式: app:session:progress:{sessionID}
	KeySessionProgress = AppPrefix + ":" + SessionModulePrefix + ":" + EntityProgress + ":%s"
)
