package render

import (
	"bytes"

	"github.com/John-Robertt/subhub/internal/model"
	"gopkg.in/yaml.v3"
)

// renderClash writes block-style YAML with two-space indentation. Key order
// is the document's order; yaml.v3 quotes strings that would otherwise read
// back as another type.
func renderClash(doc model.Fields) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, &RenderError{
			AppError: model.AppError{
				Code:    "RENDER_ERROR",
				Message: "YAML 序列化失败",
				Stage:   "render",
			},
			Cause: err,
		}
	}
	if err := enc.Close(); err != nil {
		return nil, &RenderError{
			AppError: model.AppError{
				Code:    "RENDER_ERROR",
				Message: "YAML 序列化失败",
				Stage:   "render",
			},
			Cause: err,
		}
	}
	return buf.Bytes(), nil
}
