package parser

import (
	"fmt"
	"math"
	"sort"
)

// VectorIndex 单份简历的内存向量索引
// 每次分析为每份简历单独构建，用完即弃，不同简历之间不共享任何数据。
type VectorIndex struct {
	chunks  []string
	vectors [][]float64
}

// ScoredChunk 检索命中的文本块
type ScoredChunk struct {
	Index    int     // 块在原文中的序号
	Text     string  // 块内容
	Distance float64 // 余弦距离(1-余弦相似度)，越小越相关
}

// NewVectorIndex 创建空索引
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{}
}

// Build 装载文本块与对应向量
func (idx *VectorIndex) Build(chunks []string, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("文本块数量(%d)与向量数量(%d)不一致", len(chunks), len(vectors))
	}
	dim := -1
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("第%d个向量为空", i)
		}
		if dim == -1 {
			dim = len(v)
		} else if len(v) != dim {
			return fmt.Errorf("第%d个向量维度(%d)与其他向量(%d)不一致", i, len(v), dim)
		}
	}
	idx.chunks = chunks
	idx.vectors = vectors
	return nil
}

// Size 返回索引中的块数量
func (idx *VectorIndex) Size() int {
	return len(idx.chunks)
}

// Query 返回与查询向量余弦距离最小的k个块，距离升序
// 距离相同时按块序号升序，保证同样的输入得到同样的排序。
func (idx *VectorIndex) Query(queryVector []float64, k int) ([]ScoredChunk, error) {
	if len(idx.chunks) == 0 {
		return nil, fmt.Errorf("索引为空")
	}
	if len(queryVector) != len(idx.vectors[0]) {
		return nil, fmt.Errorf("查询向量维度(%d)与索引维度(%d)不一致", len(queryVector), len(idx.vectors[0]))
	}
	if k <= 0 {
		return []ScoredChunk{}, nil
	}
	if k > len(idx.chunks) {
		k = len(idx.chunks)
	}

	scored := make([]ScoredChunk, len(idx.chunks))
	for i, v := range idx.vectors {
		scored[i] = ScoredChunk{
			Index:    i,
			Text:     idx.chunks[i],
			Distance: cosineDistance(queryVector, v),
		}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].Distance != scored[b].Distance {
			return scored[a].Distance < scored[b].Distance
		}
		return scored[a].Index < scored[b].Index
	})
	return scored[:k], nil
}

// cosineDistance 计算 1 - 余弦相似度，零向量视为完全不相关
func cosineDistance(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
