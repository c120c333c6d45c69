package parser

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"resume-match-go/internal/constants"

	"github.com/nguyenthenguyen/docx"
	pdfextractor "github.com/unidoc/unipdf/v3/extractor"
	pdfmodel "github.com/unidoc/unipdf/v3/model"
)

var (
	// ErrUnsupportedFormat 不支持的简历文件格式
	ErrUnsupportedFormat = errors.New("不支持的简历文件格式")

	// ErrExtractionFailed 文本提取失败（文件损坏或内容为空）
	ErrExtractionFailed = errors.New("简历文本提取失败")
)

var (
	// 严格邮箱：本地部分、带点的域名、2位以上字母TLD
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9\-_]+(?:\.[a-zA-Z0-9\-_]+)*\.[a-zA-Z]{2,}`)

	// 电话：可选+号开头，主体8~13位数字/空格/横线，首尾必须是数字
	phoneRegex = regexp.MustCompile(`\+?\d[\d\s\-]{8,13}\d`)

	nameWordRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z.'\-]*$`)

	xmlTagRegex = regexp.MustCompile(`<[^>]+>`)
)

// ContactInfo 从简历正文中提取出的候选人联系方式
type ContactInfo struct {
	Name  string
	Email string
	Phone string
}

// ExtractedResume 文本提取结果
type ExtractedResume struct {
	Text    string
	Contact ContactInfo
}

// ResumeExtractor 从PDF/DOCX简历文件中提取纯文本与联系方式
type ResumeExtractor struct{}

// NewResumeExtractor 创建简历文本提取器
func NewResumeExtractor() *ResumeExtractor {
	return &ResumeExtractor{}
}

// Extract 按MIME类型分发提取，返回正文与联系方式
func (e *ResumeExtractor) Extract(data []byte, mimeType string) (*ExtractedResume, error) {
	var text string
	var err error

	switch normalizeMimeType(mimeType) {
	case "application/pdf":
		text, err = e.extractPDF(data)
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		text, err = e.extractDOCX(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: 提取结果为空", ErrExtractionFailed)
	}

	return &ExtractedResume{
		Text:    text,
		Contact: ExtractContact(text),
	}, nil
}

func normalizeMimeType(mimeType string) string {
	// 去掉 "application/pdf; charset=..." 一类的参数部分
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// extractPDF 逐页提取PDF文本
func (e *ResumeExtractor) extractPDF(data []byte) (string, error) {
	reader, err := pdfmodel.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: 解析PDF失败: %v", ErrExtractionFailed, err)
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return "", fmt.Errorf("%w: 获取PDF页数失败: %v", ErrExtractionFailed, err)
	}

	var sb strings.Builder
	for i := 1; i <= numPages; i++ {
		page, err := reader.GetPage(i)
		if err != nil {
			return "", fmt.Errorf("%w: 读取第%d页失败: %v", ErrExtractionFailed, i, err)
		}
		ex, err := pdfextractor.New(page)
		if err != nil {
			return "", fmt.Errorf("%w: 创建第%d页提取器失败: %v", ErrExtractionFailed, i, err)
		}
		pageText, err := ex.ExtractText()
		if err != nil {
			return "", fmt.Errorf("%w: 提取第%d页文本失败: %v", ErrExtractionFailed, i, err)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// extractDOCX 提取DOCX文本，按段落切换行
func (e *ResumeExtractor) extractDOCX(data []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: 解析DOCX失败: %v", ErrExtractionFailed, err)
	}
	defer r.Close()

	content := r.Editable().GetContent()

	// 段落结束符转换行，再剥掉剩余XML标签
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	content = xmlTagRegex.ReplaceAllString(content, "")
	content = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&apos;", "'",
	).Replace(content)

	return content, nil
}

// ExtractContact 从正文中提取邮箱、电话和姓名
func ExtractContact(text string) ContactInfo {
	contact := ContactInfo{}
	contact.Email = emailRegex.FindString(text)
	contact.Phone = strings.TrimSpace(phoneRegex.FindString(text))
	contact.Name = guessNameFromText(text)
	return contact
}

// guessNameFromText 取首个非空行，2~3个纯字母单词时视为姓名
func guessNameFromText(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		words := strings.Fields(line)
		if len(words) < 2 || len(words) > 3 {
			return ""
		}
		for _, w := range words {
			if !nameWordRegex.MatchString(w) {
				return ""
			}
		}
		return line
	}
	return ""
}

// 文件名里常见的非姓名词
var filenameSkipWords = map[string]bool{
	"resume":     true,
	"cv":         true,
	"curriculum": true,
	"vitae":      true,
	"final":      true,
	"updated":    true,
	"new":        true,
	"copy":       true,
	"latest":     true,
}

// NameFromFilename 从文件名推断候选人姓名，推断不出时返回占位名
func NameFromFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(base)

	var words []string
	for _, w := range strings.Fields(base) {
		lower := strings.ToLower(w)
		if filenameSkipWords[lower] {
			continue
		}
		if !nameWordRegex.MatchString(w) {
			continue
		}
		words = append(words, strings.ToUpper(w[:1])+strings.ToLower(w[1:]))
	}
	if len(words) == 0 {
		return constants.UnknownCandidateName
	}
	return strings.Join(words, " ")
}
