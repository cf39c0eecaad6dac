// Package render serializes a composed document for a client.
package render

import (
	"fmt"

	"github.com/John-Robertt/subhub/internal/model"
)

type Target string

const (
	// TargetClash is the composed document as YAML.
	TargetClash Target = "clash"
	// TargetList is the composed proxies as a base64 share-link list.
	TargetList Target = "list"
)

type RenderError struct {
	AppError model.AppError
	Cause    error
}

func (e *RenderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *RenderError) Unwrap() error { return e.Cause }

// ParseTarget maps a user-supplied name to a Target.
func ParseTarget(s string) (Target, error) {
	switch t := Target(s); t {
	case TargetClash, TargetList:
		return t, nil
	default:
		return "", unsupportedTarget(t)
	}
}

func Render(target Target, doc model.Fields) ([]byte, error) {
	if doc == nil {
		return nil, &RenderError{
			AppError: model.AppError{
				Code:    "INVALID_ARGUMENT",
				Message: "render input 不能为空",
				Stage:   "render",
			},
		}
	}
	switch target {
	case TargetClash:
		return renderClash(doc)
	case TargetList:
		return renderList(doc)
	default:
		return nil, unsupportedTarget(target)
	}
}

func unsupportedTarget(t Target) *RenderError {
	return &RenderError{
		AppError: model.AppError{
			Code:    "UNSUPPORTED_TARGET",
			Message: fmt.Sprintf("不支持的 target：%s", t),
			Stage:   "render",
			Hint:    "expected: clash | list",
		},
	}
}
