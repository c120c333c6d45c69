package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkShortText(t *testing.T) {
	chunker := NewTextChunker(1000, 200)
	chunks := chunker.Chunk("短文本简历内容")
	require.Len(t, chunks, 1)
	assert.Equal(t, "短文本简历内容", chunks[0])
}

func TestChunkEmptyText(t *testing.T) {
	chunker := NewTextChunker(1000, 200)

	// 空白文本也必须产出一个块，保证后续流程不中断
	assert.Equal(t, []string{""}, chunker.Chunk(""))
	assert.Equal(t, []string{""}, chunker.Chunk("   \n\t  "))
}

func TestChunkWindowAndOverlap(t *testing.T) {
	chunker := NewTextChunker(10, 4)
	text := strings.Repeat("abcdef", 5) // 30字符
	chunks := chunker.Chunk(text)

	require.True(t, len(chunks) > 1)
	for i, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 10, "第%d块超出窗口", i)
	}
	// 相邻块共享重叠区
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		overlap := string(prev[len(prev)-4:])
		assert.True(t, strings.HasPrefix(string(cur), overlap),
			"第%d块应以上一块尾部4字符开头", i)
	}
	// 拼接去重后应还原全文
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		cur := []rune(chunks[i])
		rebuilt.WriteString(string(cur[4:]))
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestChunkDeterministic(t *testing.T) {
	chunker := NewTextChunker(50, 10)
	text := strings.Repeat("简历内容段落。", 40)

	first := chunker.Chunk(text)
	second := chunker.Chunk(text)
	assert.Equal(t, first, second, "同样的输入必须得到同样的切块")
}

func TestNewTextChunkerInvalidParams(t *testing.T) {
	// 重叠不小于窗口时回落到安全值
	chunker := NewTextChunker(10, 10)
	chunks := chunker.Chunk(strings.Repeat("x", 100))
	assert.True(t, len(chunks) > 1)
}
