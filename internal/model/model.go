// Package model provides data-structs for internal app-usage
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type (
	Resolution  string
	BitDepth    int
	VariantKind string
	VariantKey  string
)

const (
	Res800x600  Resolution = "800x600"
	Res1024x800 Resolution = "1024x800"
	Res1280x720 Resolution = "1280x720"
	Res1360x760 Resolution = "1360x760"
	Res1366x768 Resolution = "1366x768"
)

// Resolutions lists the presets in the order they are offered to the user.
var Resolutions = []Resolution{Res800x600, Res1024x800, Res1280x720, Res1360x760, Res1366x768}

var ResolutionsMap = map[Resolution]bool{
	Res800x600:  true,
	Res1024x800: true,
	Res1280x720: true,
	Res1360x760: true,
	Res1366x768: true,
}

var BitDepths = []BitDepth{1, 8, 16, 24, 32}

var BitDepthsMap = map[BitDepth]bool{
	1:  true,
	8:  true,
	16: true,
	24: true,
	32: true,
}

const (
	KindDigitized  VariantKind = "digitized"
	KindCompressed VariantKind = "compressed"
)

const (
	KeyOriginal   VariantKey = "original"
	KeyCompressed VariantKey = "compressed"
	KeyDigitized  VariantKey = "digitized"
)

var VariantKeysMap = map[VariantKey]bool{
	KeyOriginal:   true,
	KeyCompressed: true,
	KeyDigitized:  true,
}

// DefaultQuality is sent with every compressed request.
const DefaultQuality = 70

// ProcessedFileName is the base name of a downloaded processing result.
const ProcessedFileName = "processed_image"

//---------------------

func ParseResolution(s string) (Resolution, error) {
	r := Resolution(strings.ToLower(strings.TrimSpace(s)))
	if !ResolutionsMap[r] {
		return "", &ValidationError{Field: "resolution", Reason: fmt.Sprintf("unsupported preset %q", s)}
	}
	return r, nil
}

func (r Resolution) Width() int {
	w, _, _ := r.split()
	return w
}

func (r Resolution) Height() int {
	_, h, _ := r.split()
	return h
}

func (r Resolution) split() (int, int, bool) {
	ws, hs, ok := strings.Cut(string(r), "x")
	if !ok {
		return 0, 0, false
	}
	w, errW := strconv.Atoi(ws)
	h, errH := strconv.Atoi(hs)
	if errW != nil || errH != nil {
		return 0, 0, false
	}
	return w, h, true
}

func ParseBitDepth(s string) (BitDepth, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !BitDepthsMap[BitDepth(n)] {
		return 0, &ValidationError{Field: "bits_per_channel", Reason: fmt.Sprintf("unsupported bit depth %q", s)}
	}
	return BitDepth(n), nil
}

func ParseVariantKey(s string) (VariantKey, error) {
	k := VariantKey(strings.ToLower(strings.TrimSpace(s)))
	if !VariantKeysMap[k] {
		return "", ErrIncorrectVariant
	}
	return k, nil
}

//---------------------

// ProcessingParameters are the user-chosen knobs of a single processing request.
// Zero values mean "not chosen yet".
type ProcessingParameters struct {
	Resolution  Resolution `json:"resolution,omitempty"`
	BitDepth    BitDepth   `json:"bits_per_channel,omitempty"`
	Compression bool       `json:"compression"`
	Quality     int        `json:"quality,omitempty"`
}

// ParametersPatch is a partial update of ProcessingParameters. Nil fields are left as they are.
type ParametersPatch struct {
	Resolution  *string `json:"resolution,omitempty"`
	BitDepth    *int    `json:"bits_per_channel,omitempty"`
	Compression *bool   `json:"compression,omitempty"`
}

// DefaultParameters mirror the initial form: nothing chosen, compression switched on.
func DefaultParameters() ProcessingParameters {
	return ProcessingParameters{Compression: true, Quality: DefaultQuality}
}

// PreviewParameters are used by the gallery for both fetched variants.
var PreviewParameters = ProcessingParameters{
	Resolution:  Res1280x720,
	BitDepth:    24,
	Compression: true,
	Quality:     DefaultQuality,
}

// Apply returns a copy of p with the patch merged in. Unsupported values are rejected
// and p is returned unchanged.
func (p ProcessingParameters) Apply(patch ParametersPatch) (ProcessingParameters, error) {
	next := p
	if patch.Resolution != nil {
		if *patch.Resolution == "" {
			next.Resolution = ""
		} else {
			r, err := ParseResolution(*patch.Resolution)
			if err != nil {
				return p, err
			}
			next.Resolution = r
		}
	}
	if patch.BitDepth != nil {
		if *patch.BitDepth == 0 {
			next.BitDepth = 0
		} else {
			if !BitDepthsMap[BitDepth(*patch.BitDepth)] {
				return p, &ValidationError{Field: "bits_per_channel", Reason: fmt.Sprintf("unsupported bit depth %d", *patch.BitDepth)}
			}
			next.BitDepth = BitDepth(*patch.BitDepth)
		}
	}
	if patch.Compression != nil {
		next.Compression = *patch.Compression
	}
	if next.Compression && next.Quality <= 0 {
		next.Quality = DefaultQuality
	}
	return next, nil
}

// Validate checks that every field needed for a request is chosen.
func (p ProcessingParameters) Validate() error {
	if p.Resolution == "" {
		return &ValidationError{Field: "resolution", Reason: "resolution is not chosen"}
	}
	if !ResolutionsMap[p.Resolution] {
		return &ValidationError{Field: "resolution", Reason: fmt.Sprintf("unsupported preset %q", p.Resolution)}
	}
	if p.BitDepth == 0 {
		return &ValidationError{Field: "bits_per_channel", Reason: "bit depth is not chosen"}
	}
	if !BitDepthsMap[p.BitDepth] {
		return &ValidationError{Field: "bits_per_channel", Reason: fmt.Sprintf("unsupported bit depth %d", p.BitDepth)}
	}
	return nil
}

// Kind picks the endpoint matching the compression toggle.
func (p ProcessingParameters) Kind() VariantKind {
	if p.Compression {
		return KindCompressed
	}
	return KindDigitized
}

//---------------------

type GalleryEntry struct {
	ID          string     `json:"id"`
	OriginalURL string     `json:"original_url"`
	Title       string     `json:"title"`
	UploadedAt  *time.Time `json:"uploaded_at,omitempty"`
}

// Blob is a binary fetched from the remote service.
type Blob struct {
	Data        []byte
	ContentType string
}

type UploadResult struct {
	ImageID  string `json:"image_id"`
	ImageURL string `json:"image_url,omitempty"`
}

// SourceFile is a locally selected image before upload.
type SourceFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// ------------------

var (
	ErrCommon500         error = errors.New("something went wrong. Try again later")        // 500
	ErrValidation        error = errors.New("validation failed")                            // 400
	ErrTransport         error = errors.New("remote service request failed")                // 502
	ErrNoImage           error = errors.New("no uploaded image to process")                 // 400
	ErrEmptySource       error = errors.New("empty/incorrect source image provided")        // 400
	ErrUnsupportedFormat error = errors.New("unsupported image format")                     // 400
	ErrFileTooLarge      error = errors.New("selected file is too large")                   // 400
	ErrIncorrectVariant  error = errors.New("incorrect variant key")                        // 400
	ErrProcessBusy       error = errors.New("processing is already in progress")            // 409
	ErrProcessSuperseded error = errors.New("a new file was selected during processing")    // 409
	ErrNothingToDownload error = errors.New("there is no processed image to download")      // 404
	ErrVariantNotReady   error = errors.New("requested variant is not loaded")              // 404
	ErrEntryNotFound     error = errors.New("specified image doesn't exist in the gallery") // 404
	ErrNoSelection       error = errors.New("no gallery image is selected")                 // 404
	ErrObjectNotFound    error = errors.New("object URL doesn't exist or was revoked")      // 404
	ErrSessionNotFound   error = errors.New("session doesn't exist")                        // 404
	ErrClosed            error = errors.New("view is closed")                               // 410
)

// ValidationError is raised locally before any network call is made.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid wraps a sentinel into a ValidationError for the given field.
func Invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// TransportError wraps a network failure or a non-success status from the remote service.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: remote service responded with status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

//--------------------

const (
	JPEG = "image/jpeg"
	PNG  = "image/png"
	GIF  = "image/gif"
)

var GetImageFileExt = map[string]string{
	JPEG: ".jpg",
	PNG:  ".png",
	GIF:  ".gif",
}

// FileExt maps a content type to a file extension, ".bin" when unknown.
func FileExt(contentType string) string {
	ct, _, _ := strings.Cut(contentType, ";")
	if ext, ok := GetImageFileExt[strings.TrimSpace(strings.ToLower(ct))]; ok {
		return ext
	}
	return ".bin"
}

// VariantFileName builds the download name of a gallery variant.
func VariantFileName(id string, key VariantKey, contentType string) string {
	return id + "_" + string(key) + FileExt(contentType)
}
