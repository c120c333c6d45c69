package router

import (
	"fmt"
	"testing"

	"resume-match-go/internal/api/handler"
	"resume-match-go/internal/storage"

	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/stretchr/testify/assert"
)

func TestStatusForError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"参数校验失败返回400", fmt.Errorf("%w: user_id不能为空", handler.ErrInvalidRequest), consts.StatusBadRequest},
		{"会话不存在返回404", fmt.Errorf("查询失败: %w", storage.ErrSessionNotFound), consts.StatusNotFound},
		{"简历不存在返回404", storage.ErrResumeNotFound, consts.StatusNotFound},
		{"简历已有分析结果返回409", fmt.Errorf("%w: 简历 r1 在该岗位上下文中已有分析结果", handler.ErrResumeUnavailable), consts.StatusConflict},
		{"会话状态不允许返回409", storage.ErrInvalidSessionState, consts.StatusConflict},
		{"重复落账返回409", storage.ErrDuplicateAnalysis, consts.StatusConflict},
		{"未知错误返回500", fmt.Errorf("connection refused"), consts.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, statusForError(tc.err))
		})
	}
}
