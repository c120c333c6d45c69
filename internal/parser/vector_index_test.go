package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndexQueryOrdering(t *testing.T) {
	idx := NewVectorIndex()
	chunks := []string{"Go微服务开发经验", "前端页面开发", "数据库调优"}
	vectors := [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	}
	require.NoError(t, idx.Build(chunks, vectors))

	results, err := idx.Query([]float64{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// 距离升序
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 2, results[1].Index)
	assert.Equal(t, 1, results[2].Index)
	assert.InDelta(t, 0.0, results[0].Distance, 1e-9)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i].Distance, results[i-1].Distance)
	}
}

func TestVectorIndexStableTieBreak(t *testing.T) {
	idx := NewVectorIndex()
	// 两个完全相同的向量，距离并列，必须按块序号排序
	require.NoError(t, idx.Build(
		[]string{"chunk-a", "chunk-b", "chunk-c"},
		[][]float64{{0, 1}, {1, 0}, {0, 1}},
	))

	results, err := idx.Query([]float64{0, 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 2, results[1].Index)
	assert.Equal(t, 1, results[2].Index)
}

func TestVectorIndexKClamped(t *testing.T) {
	idx := NewVectorIndex()
	require.NoError(t, idx.Build([]string{"only"}, [][]float64{{1, 1}}))

	results, err := idx.Query([]float64{1, 1}, 5)
	require.NoError(t, err)
	assert.Len(t, results, 1, "k超过块数时按块数截断")

	results, err = idx.Query([]float64{1, 1}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestVectorIndexErrors(t *testing.T) {
	idx := NewVectorIndex()

	// 空索引不可查询
	_, err := idx.Query([]float64{1}, 1)
	assert.Error(t, err)

	// 块与向量数量不一致
	err = idx.Build([]string{"a", "b"}, [][]float64{{1}})
	assert.Error(t, err)

	// 维度不一致
	err = idx.Build([]string{"a", "b"}, [][]float64{{1, 2}, {1}})
	assert.Error(t, err)

	require.NoError(t, idx.Build([]string{"a"}, [][]float64{{1, 2}}))
	_, err = idx.Query([]float64{1}, 1)
	assert.Error(t, err, "查询向量维度不一致应报错")
}

func TestCosineDistanceZeroVector(t *testing.T) {
	assert.Equal(t, 1.0, cosineDistance([]float64{0, 0}, []float64{1, 1}))
}
