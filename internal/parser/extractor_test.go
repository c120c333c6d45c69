package parser

import (
	"testing"

	"resume-match-go/internal/constants"

	"github.com/stretchr/testify/assert"
)

func TestExtractContact(t *testing.T) {
	text := "Zhang Wei\nBackend Engineer\nEmail: zhang.wei@example.com\nTel: +86 13800001111\n工作经历..."
	contact := ExtractContact(text)

	assert.Equal(t, "Zhang Wei", contact.Name)
	assert.Equal(t, "zhang.wei@example.com", contact.Email)
	assert.Equal(t, "+86 13800001111", contact.Phone)
}

func TestExtractContactEmailStrict(t *testing.T) {
	// 无点域名不算合法邮箱
	contact := ExtractContact("contact: someone@localhost else")
	assert.Empty(t, contact.Email)

	contact = ExtractContact("mail me at first_last-1@sub-domain.example.co")
	assert.Equal(t, "first_last-1@sub-domain.example.co", contact.Email)
}

func TestExtractContactPhoneBounds(t *testing.T) {
	// 总长不足的号码不应命中
	contact := ExtractContact("ext 12345")
	assert.Empty(t, contact.Phone)

	contact = ExtractContact("手机 13800001111")
	assert.Equal(t, "13800001111", contact.Phone)
}

func TestGuessNameHeuristic(t *testing.T) {
	// 首行四个单词，不像姓名
	contact := ExtractContact("Senior Software Engineer Resume\njohn@example.com")
	assert.Empty(t, contact.Name)

	// 首行含数字，不像姓名
	contact = ExtractContact("Team 42 Lead\n")
	assert.Empty(t, contact.Name)

	// 三个单词的姓名可接受
	contact = ExtractContact("Mary Jane Watson\nDesigner")
	assert.Equal(t, "Mary Jane Watson", contact.Name)
}

func TestNameFromFilename(t *testing.T) {
	assert.Equal(t, "John Smith", NameFromFilename("john_smith_resume.pdf"))
	assert.Equal(t, "Li Lei", NameFromFilename("Li-Lei-CV-final.docx"))
	assert.Equal(t, constants.UnknownCandidateName, NameFromFilename("resume.pdf"))
	assert.Equal(t, constants.UnknownCandidateName, NameFromFilename("12345.pdf"))
}

func TestExtractUnsupportedFormat(t *testing.T) {
	e := NewResumeExtractor()
	_, err := e.Extract([]byte("plain text"), "text/plain")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractCorruptedPDF(t *testing.T) {
	e := NewResumeExtractor()
	_, err := e.Extract([]byte("not a real pdf"), "application/pdf")
	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestNormalizeMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", normalizeMimeType("application/PDF; charset=utf-8"))
}
