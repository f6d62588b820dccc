// Package render produces placeholder artifacts for generation requests.
// It stands in for a real generative backend: images are flat PNGs with the
// description drawn on them, audio is a sine tone. Previews carry a visible
// watermark (image) or periodic marker beeps (audio).
package render

import (
	"errors"
	"fmt"

	"github.com/fgb-andu/muse-api/pkg/domain"
)

const (
	DefaultImageWidth  = 400
	DefaultImageHeight = 300
	maxImageDimension  = 2048
)

var ErrUnsupportedMediaType = errors.New("unsupported media type")

type Request struct {
	MediaType   domain.MediaType
	Description string
	Preview     bool

	// Optional image overrides; zero means the default.
	Width  int
	Height int
}

type Result struct {
	Data        []byte
	ContentType string
	Ext         string
}

// Renderer turns a generation request into a byte blob. It knows nothing
// about quotas or ownership.
type Renderer interface {
	Render(req Request) (*Result, error)
}

type Placeholder struct{}

func NewPlaceholder() *Placeholder {
	return &Placeholder{}
}

func (p *Placeholder) Render(req Request) (*Result, error) {
	switch req.MediaType {
	case domain.MediaTypeImage:
		return p.renderImage(req)
	case domain.MediaTypeAudio:
		return p.renderAudio(req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMediaType, req.MediaType)
	}
}
