package scorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	applogger "resume-match-go/internal/logger"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

// ErrScoringFailed LLM打分失败
var ErrScoringFailed = errors.New("简历打分失败")

// MatchScores 一次简历打分的五维结果
type MatchScores struct {
	SkillMatch       int
	ProjectRelevance int
	ProblemSolving   int
	Tools            int
	OverallFit       int
	Summary          string
	Degraded         bool   // 兜底结果标记
	DegradedReason   string // 兜底原因
}

// llmScoreResponse LLM返回的JSON结构，字段名必须与提示词约定一致
// 数值字段用指针区分"缺失"与"0分"。
type llmScoreResponse struct {
	SkillMatch       *int   `json:"Skill Match"`
	ProjectRelevance *int   `json:"Project Relevance"`
	ProblemSolving   *int   `json:"Problem Solving"`
	Tools            *int   `json:"Tools"`
	OverallFit       *int   `json:"Overall Fit"`
	Summary          string `json:"Summary"`
}

// MatchScorer 用LLM对"岗位描述 × 简历证据"做五维打分
type MatchScorer struct {
	llmModel         model.ToolCallingChatModel
	callTimeout      time.Duration
	jdMaxChars       int
	evidenceMaxChars int
	chunkSeparator   string
}

// NewMatchScorer 创建打分器
// llmModel 通常是经 ratelimit 包代理过的限流模型。
func NewMatchScorer(llmModel model.ToolCallingChatModel, llmCfg config.LLMConfig, analyzerCfg config.AnalyzerConfig) *MatchScorer {
	jdMax := analyzerCfg.JDMaxChars
	if jdMax <= 0 {
		jdMax = 1000
	}
	evidenceMax := analyzerCfg.EvidenceMaxChars
	if evidenceMax <= 0 {
		evidenceMax = 2000
	}
	separator := analyzerCfg.ChunkSeparator
	if separator == "" {
		separator = "\n---\n"
	}
	return &MatchScorer{
		llmModel:         llmModel,
		callTimeout:      llmCfg.CallTimeoutDuration(),
		jdMaxChars:       jdMax,
		evidenceMaxChars: evidenceMax,
		chunkSeparator:   separator,
	}
}

// StandardJDTemplate 通用分析会话使用的标准岗位模板
// 没有具体岗位上下文时，用一份通用的软件工程师画像做检索与打分基准。
func StandardJDTemplate() string {
	return `We are looking for a skilled software engineer with:
- Strong programming fundamentals and proficiency in at least one major language
- Experience designing, building and maintaining production systems
- Solid grasp of data structures, algorithms and problem decomposition
- Familiarity with databases, APIs, version control and testing practices
- Ability to collaborate, communicate clearly and learn new technologies quickly`
}

// BuildEvidence 把检索出的证据块拼成受长度约束的摘要
// 块之间保留可见分隔符，超长时按字符截断。
func (s *MatchScorer) BuildEvidence(chunks []string) string {
	digest := strings.Join(chunks, s.chunkSeparator)
	return truncateRunes(digest, s.evidenceMaxChars)
}

// TruncateJD 截断岗位描述到配置上限
func (s *MatchScorer) TruncateJD(jdText string) string {
	return truncateRunes(jdText, s.jdMaxChars)
}

// Score 调用LLM打分，任何失败都退化为确定性的兜底结果
// 返回的结果永远可用，调用方不需要区分成功与失败路径。
func (s *MatchScorer) Score(ctx context.Context, jdText string, evidenceChunks []string) MatchScores {
	scores, err := s.score(ctx, jdText, evidenceChunks)
	if err != nil {
		applogger.Warn().Err(err).Msg("LLM打分失败，使用兜底结果")
		return FallbackScores(reasonFromError(err))
	}
	return scores
}

func (s *MatchScorer) score(ctx context.Context, jdText string, evidenceChunks []string) (MatchScores, error) {
	if s.llmModel == nil {
		return MatchScores{}, fmt.Errorf("%w: LLM模型未初始化", ErrScoringFailed)
	}

	evidence := s.BuildEvidence(evidenceChunks)
	jd := s.TruncateJD(jdText)

	systemMsg := einoschema.SystemMessage(
		"你是一位资深的AI招聘助手，负责根据岗位描述评估候选人简历片段的匹配度。" +
			"只输出JSON对象，不要输出任何其他文字。")
	userMsg := einoschema.UserMessage(buildScoringPrompt(jd, evidence))

	callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	response, err := s.llmModel.Generate(callCtx, []*einoschema.Message{systemMsg, userMsg})
	if err != nil {
		// 保留原错误链，超时要能被 errors.Is 识别
		return MatchScores{}, fmt.Errorf("%w: LLM调用失败: %w", ErrScoringFailed, err)
	}
	if response == nil || response.Content == "" {
		return MatchScores{}, fmt.Errorf("%w: LLM返回空响应", ErrScoringFailed)
	}

	return parseScoreResponse(response.Content)
}

// buildScoringPrompt 构建打分提示词，字段名是下游解析的契约
func buildScoringPrompt(jd, evidence string) string {
	return fmt.Sprintf(`根据以下岗位描述和候选人简历片段，给出五个维度的整数评分(0-100)和一段简短总结。

岗位描述:
%s

候选人简历片段:
%s

严格按以下JSON格式输出，键名不得改动:
{
  "Skill Match": <0-100>,
  "Project Relevance": <0-100>,
  "Problem Solving": <0-100>,
  "Tools": <0-100>,
  "Overall Fit": <0-100>,
  "Summary": "<两三句话的中文总结>"
}`, jd, evidence)
}

// parseScoreResponse 从LLM回复中提取并校验打分JSON
func parseScoreResponse(content string) (MatchScores, error) {
	// 去除BOM后做大括号配对提取
	processed := strings.TrimPrefix(content, "\uFEFF")
	jsonStr := extractJSONObject(processed)
	if jsonStr == "" {
		return MatchScores{}, fmt.Errorf("%w: 无法从回复中定位JSON对象", ErrScoringFailed)
	}
	if !utf8.ValidString(jsonStr) {
		jsonStr = strings.ToValidUTF8(jsonStr, "")
	}

	var parsed llmScoreResponse
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		// 解析失败时自动修复字符串内部的引号再试一次
		fixed := sanitizeJSON(jsonStr)
		if fixErr := json.Unmarshal([]byte(fixed), &parsed); fixErr != nil {
			return MatchScores{}, fmt.Errorf("%w: 解析打分JSON失败: %v", ErrScoringFailed, err)
		}
	}

	if strings.TrimSpace(parsed.Summary) == "" {
		return MatchScores{}, fmt.Errorf("%w: 回复缺少Summary字段", ErrScoringFailed)
	}

	// 缺失的数值字段各自独立回落到默认分，再做边界收敛
	return MatchScores{
		SkillMatch:       clampScore(valueOrDefault(parsed.SkillMatch)),
		ProjectRelevance: clampScore(valueOrDefault(parsed.ProjectRelevance)),
		ProblemSolving:   clampScore(valueOrDefault(parsed.ProblemSolving)),
		Tools:            clampScore(valueOrDefault(parsed.Tools)),
		OverallFit:       clampScore(valueOrDefault(parsed.OverallFit)),
		Summary:          parsed.Summary,
	}, nil
}

// FallbackScores 确定性的兜底结果：五个维度全部默认分
func FallbackScores(reason string) MatchScores {
	if reason == "" {
		reason = "scoring failed"
	}
	return MatchScores{
		SkillMatch:       constants.DefaultScore,
		ProjectRelevance: constants.DefaultScore,
		ProblemSolving:   constants.DefaultScore,
		Tools:            constants.DefaultScore,
		OverallFit:       constants.DefaultScore,
		Summary:          fmt.Sprintf("%s: %s", reason, constants.FallbackSummarySuffix),
		Degraded:         true,
		DegradedReason:   reason,
	}
}

func reasonFromError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "llm call timeout"
	}
	return "llm scoring error"
}

func valueOrDefault(v *int) int {
	if v == nil {
		return constants.DefaultScore
	}
	return *v
}

func clampScore(v int) int {
	if v < constants.ScoreMin {
		return constants.ScoreMin
	}
	if v > constants.ScoreMax {
		return constants.ScoreMax
	}
	return v
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// extractJSONObject 通过大括号配对从文本中提取首个完整JSON对象
// 字符串字面量内部的大括号不参与配对，否则Summary里出现{}会导致截断错位。
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	level := 0
	inStr := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			if inStr {
				escaped = true
			}
		case c == '"':
			inStr = !inStr
		case inStr:
			// 字符串内部的其他字符全部忽略
		case c == '{':
			level++
		case c == '}':
			level--
			if level == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// sanitizeJSON 把字符串字面量内部未转义的双引号改写成 \"
// 通过检查下一个非空白字符是否为 :, ], }, 或 , 判断引号是否为真正的字符串结束。
func sanitizeJSON(src string) string {
	var b strings.Builder
	inStr := false
	escaped := false

	for i := 0; i < len(src); i++ {
		c := src[i]

		switch {
		case c == '"' && !escaped:
			if !inStr {
				inStr = true
				b.WriteByte(c)
			} else {
				j := i + 1
				for j < len(src) && (src[j] == ' ' || src[j] == '\t' || src[j] == '\n' || src[j] == '\r') {
					j++
				}
				if j < len(src) && (src[j] == ':' || src[j] == ',' || src[j] == ']' || src[j] == '}') {
					inStr = false
					b.WriteByte(c)
				} else {
					b.WriteString("\\\"")
				}
			}
			escaped = false
		case c == '\\' && !escaped:
			escaped = true
			b.WriteByte(c)
		default:
			b.WriteByte(c)
			escaped = false
		}
	}
	return b.String()
}
