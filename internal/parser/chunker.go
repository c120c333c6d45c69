package parser

import (
	"strings"
)

// TextChunker 固定窗口+重叠的文本切块器
// 同一段文本无论何时切块结果都相同，保证重复分析的可复现性。
type TextChunker struct {
	chunkSize int // 窗口大小(字符数)
	overlap   int // 相邻块重叠(字符数)
}

// NewTextChunker 创建切块器，参数非法时回落到 1000/200
func NewTextChunker(chunkSize, overlap int) *TextChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 200
		if overlap >= chunkSize {
			overlap = chunkSize / 5
		}
	}
	return &TextChunker{chunkSize: chunkSize, overlap: overlap}
}

// Chunk 按窗口滑动切块
// 空白文本返回单个空块，让下游照常走完打分流程而不是中途断掉。
func (c *TextChunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{""}
	}

	runes := []rune(text)
	if len(runes) <= c.chunkSize {
		return []string{text}
	}

	step := c.chunkSize - c.overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
