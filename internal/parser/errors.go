package parser

import (
	"errors"
	"fmt"
)

// 解析器对上层只暴露一种错误：简历源不可读。
// 其余一切字段缺失或格式异常都按容错规则回退为默认值，不作为错误返回。
var ErrSourceUnavailable = errors.New("简历源不可读")

// SourceError 携带路径与底层原因的源错误
type SourceError struct {
	Path    string
	BaseErr error
	Cause   error
}

func (e *SourceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (路径:%s): %v", e.BaseErr, e.Path, e.Cause)
	}
	return fmt.Sprintf("%s (路径:%s)", e.BaseErr, e.Path)
}

func (e *SourceError) Unwrap() error {
	return e.Cause
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *SourceError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// NewSourceError 构造一个源不可读错误
func NewSourceError(path string, cause error) error {
	return &SourceError{
		Path:    path,
		BaseErr: ErrSourceUnavailable,
		Cause:   cause,
	}
}
