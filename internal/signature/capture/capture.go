// Package capture normalizes the three signature input modalities (freehand
// draw, stylized type, file upload) into one opaque artifact. Sessions are
// synchronous and in-memory; persistence is the caller's responsibility.
package capture

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/microcosm-cc/bluemonday"

	dErrors "paraph/pkg/domain-errors"
)

// Mode identifies the input modality of a capture session.
type Mode string

const (
	ModeDraw   Mode = "draw"
	ModeType   Mode = "type"
	ModeUpload Mode = "upload"
)

// Artifact is the captured representation of a signature, opaque to the rest
// of the workflow beyond its mode tag. Payload is base64 for binary modes.
type Artifact struct {
	Mode    Mode   `json:"mode"`
	Payload string `json:"payload"`
	Style   string `json:"style,omitempty"`
}

// TextStyle is the presentation chosen for a typed signature.
type TextStyle struct {
	FontFamily string `json:"font_family"`
	FontSize   int    `json:"font_size"`
	Color      string `json:"color"`
}

// Errors surfaced by capture sessions. Callers branch with errors.Is.
var (
	ErrEmptyCapture    = dErrors.New(dErrors.CodeValidation, "nothing captured in session")
	ErrInvalidFileType = dErrors.New(dErrors.CodeValidation, "file type must be png, jpeg or pdf")
	ErrFileTooLarge    = dErrors.New(dErrors.CodeValidation, "file exceeds upload limit")
	ErrWrongMode       = dErrors.New(dErrors.CodeConflict, "operation not valid for session mode")
)

// DefaultUploadLimit bounds uploaded signature files.
const DefaultUploadLimit int64 = 5 << 20

var allowedUploadKinds = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"application/pdf": true,
}

// textPolicy strips any markup from typed signature text; a signature line is
// plain text, never HTML.
var textPolicy = bluemonday.StrictPolicy()

// Session accumulates input for exactly one modality. Switching modes discards
// any uncommitted state from the prior mode.
type Session struct {
	mode        Mode
	uploadLimit int64

	// draw
	canvasW, canvasH int
	strokes          []Stroke

	// type
	text  string
	style TextStyle

	// upload
	fileBytes []byte
	fileMime  string
}

// Option configures a capture session.
type Option func(*Session)

// WithUploadLimit overrides the default upload size bound.
func WithUploadLimit(limit int64) Option {
	return func(s *Session) {
		if limit > 0 {
			s.uploadLimit = limit
		}
	}
}

// WithCanvas sets the drawing surface dimensions.
func WithCanvas(width, height int) Option {
	return func(s *Session) {
		if width > 0 && height > 0 {
			s.canvasW, s.canvasH = width, height
		}
	}
}

// NewSession opens a capture session for the given mode.
func NewSession(mode Mode, opts ...Option) (*Session, error) {
	switch mode {
	case ModeDraw, ModeType, ModeUpload:
	default:
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown capture mode %q", mode)
	}
	s := &Session{
		mode:        mode,
		uploadLimit: DefaultUploadLimit,
		canvasW:     defaultCanvasWidth,
		canvasH:     defaultCanvasHeight,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Mode reports the active modality.
func (s *Session) Mode() Mode { return s.mode }

// SwitchMode changes the modality, discarding all uncommitted input. The
// modalities are mutually exclusive per session.
func (s *Session) SwitchMode(mode Mode) error {
	switch mode {
	case ModeDraw, ModeType, ModeUpload:
	default:
		return dErrors.Newf(dErrors.CodeBadRequest, "unknown capture mode %q", mode)
	}
	s.mode = mode
	s.strokes = nil
	s.text = ""
	s.style = TextStyle{}
	s.fileBytes = nil
	s.fileMime = ""
	return nil
}

// AddStroke appends a pointer-drag stroke to the raster surface.
func (s *Session) AddStroke(stroke Stroke) error {
	if s.mode != ModeDraw {
		return ErrWrongMode
	}
	if len(stroke) == 0 {
		return nil
	}
	s.strokes = append(s.strokes, stroke)
	return nil
}

// Clear resets the raster to a blank canvas of the same dimensions. Partial
// strokes are discarded entirely; there is no undo stack.
func (s *Session) Clear() error {
	if s.mode != ModeDraw {
		return ErrWrongMode
	}
	s.strokes = nil
	return nil
}

// SetText sets the typed signature text. Markup is stripped.
func (s *Session) SetText(text string) error {
	if s.mode != ModeType {
		return ErrWrongMode
	}
	s.text = textPolicy.Sanitize(text)
	return nil
}

// SetStyle chooses the presentation for a typed signature.
func (s *Session) SetStyle(style TextStyle) error {
	if s.mode != ModeType {
		return ErrWrongMode
	}
	s.style = style
	return nil
}

// AcceptUpload validates and buffers an uploaded signature file.
func (s *Session) AcceptUpload(mime string, size int64, r io.Reader) error {
	if s.mode != ModeUpload {
		return ErrWrongMode
	}
	if !allowedUploadKinds[mime] {
		return ErrInvalidFileType
	}
	if size > s.uploadLimit {
		return ErrFileTooLarge
	}

	// LimitReader guards against a declared size smaller than the stream.
	data, err := io.ReadAll(io.LimitReader(r, s.uploadLimit+1))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "read uploaded file")
	}
	if int64(len(data)) > s.uploadLimit {
		return ErrFileTooLarge
	}
	s.fileBytes = data
	s.fileMime = mime
	return nil
}

// Commit serializes the captured input into an artifact. Committing the same
// session twice without further input yields identical artifacts.
func (s *Session) Commit() (Artifact, error) {
	switch s.mode {
	case ModeDraw:
		if len(s.strokes) == 0 {
			return Artifact{}, ErrEmptyCapture
		}
		png, err := rasterize(s.strokes, s.canvasW, s.canvasH)
		if err != nil {
			return Artifact{}, dErrors.Wrap(err, dErrors.CodeInternal, "rasterize signature")
		}
		return Artifact{
			Mode:    ModeDraw,
			Payload: base64.StdEncoding.EncodeToString(png),
		}, nil

	case ModeType:
		if s.text == "" {
			return Artifact{}, ErrEmptyCapture
		}
		style, err := json.Marshal(s.style)
		if err != nil {
			return Artifact{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode signature style")
		}
		return Artifact{
			Mode:    ModeType,
			Payload: s.text,
			Style:   string(style),
		}, nil

	case ModeUpload:
		if len(s.fileBytes) == 0 {
			return Artifact{}, ErrEmptyCapture
		}
		return Artifact{
			Mode:    ModeUpload,
			Payload: base64.StdEncoding.EncodeToString(s.fileBytes),
			Style:   s.fileMime,
		}, nil
	}
	return Artifact{}, fmt.Errorf("unreachable capture mode %q", s.mode)
}
