// Package transport provides methods for processing requests from endpoints
package transport

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/UnendingLoop/ImageDigitizer/internal/model"
	"github.com/UnendingLoop/ImageDigitizer/internal/mwlogger"
	"github.com/UnendingLoop/ImageDigitizer/internal/session"
	"github.com/wb-go/wbf/ginext"
)

// MaxFileSize limits a selected source image.
const MaxFileSize = 32 << 20

type DigitizerHandler struct {
	sessions Sessions
	objects  ObjectStore
	stream   EventStream
}

type Sessions interface {
	GetOrCreate(ctx context.Context, id string) (*session.Session, bool)
	Teardown(ctx context.Context, id string) error
}

type ObjectStore interface {
	OpenID(ctx context.Context, id string) (io.ReadCloser, string, error) // отдать блоб по id object-URL
}

type EventStream interface {
	Stream(c *ginext.Context, topic string)
}

func NewDigitizerHandler(sessions Sessions, objects ObjectStore, stream EventStream) *DigitizerHandler {
	return &DigitizerHandler{
		sessions: sessions,
		objects:  objects,
		stream:   stream,
	}
}

func (h DigitizerHandler) SimplePinger(ctx *ginext.Context) {
	ctx.JSON(200, map[string]string{"message": "pong"})
}

func (h DigitizerHandler) GetState(ctx *ginext.Context) {
	s := h.session(ctx)
	ctx.JSON(200, map[string]any{
		"session": s.ID,
		"upload":  s.Upload.State(),
		"gallery": s.Gallery.State(),
	})
}

// --------------- upload & process

func (h DigitizerHandler) SelectFile(ctx *ginext.Context) {
	s := h.session(ctx)

	imageFile, imageHeader, err := ctx.Request.FormFile("image")
	if err != nil {
		ctx.JSON(400, map[string]string{"error": "image is required"})
		return
	}
	defer closeFileFlow(imageFile)

	if imageHeader.Size > MaxFileSize {
		writeError(ctx, model.Invalid("image", model.ErrFileTooLarge))
		return
	}
	data, err := io.ReadAll(io.LimitReader(imageFile, MaxFileSize+1))
	if err != nil {
		ctx.JSON(400, map[string]string{"error": "failed to read image"})
		return
	}
	if len(data) > MaxFileSize {
		writeError(ctx, model.Invalid("image", model.ErrFileTooLarge))
		return
	}

	st, err := s.Upload.SelectFile(ctx.Request.Context(), model.SourceFile{
		Name:        imageHeader.Filename,
		ContentType: imageHeader.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}

	ctx.JSON(202, st)
}

func (h DigitizerHandler) SetParameters(ctx *ginext.Context) {
	s := h.session(ctx)

	var patch model.ParametersPatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		ctx.JSON(400, map[string]string{"error": "failed to parse parameters"})
		return
	}

	st, err := s.Upload.SetParameters(ctx.Request.Context(), patch)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(200, st)
}

func (h DigitizerHandler) Process(ctx *ginext.Context) {
	s := h.session(ctx)

	st, err := s.Upload.Process(ctx.Request.Context())
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(200, st)
}

func (h DigitizerHandler) Download(ctx *ginext.Context) {
	s := h.session(ctx)

	res, cType, name, err := s.Upload.Download(ctx.Request.Context())
	if err != nil {
		writeError(ctx, err)
		return
	}
	defer closeFileFlow(res)

	sendFile(ctx, res, cType, name)
}

// --------------- gallery

func (h DigitizerHandler) GetGallery(ctx *ginext.Context) {
	s := h.session(ctx)

	st, err := s.Gallery.LoadGallery(ctx.Request.Context())
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(200, st)
}

func (h DigitizerHandler) SelectEntry(ctx *ginext.Context) {
	s := h.session(ctx)

	st, err := s.Gallery.Select(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(202, st)
}

func (h DigitizerHandler) GetSelection(ctx *ginext.Context) {
	s := h.session(ctx)

	sel := s.Gallery.State().Selection
	if sel == nil {
		writeError(ctx, model.ErrNoSelection)
		return
	}
	ctx.JSON(200, sel)
}

func (h DigitizerHandler) CloseSelection(ctx *ginext.Context) {
	s := h.session(ctx)

	st, err := s.Gallery.Close(ctx.Request.Context())
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(200, st)
}

func (h DigitizerHandler) DownloadVariant(ctx *ginext.Context) {
	s := h.session(ctx)

	key, err := model.ParseVariantKey(ctx.Param("variant"))
	if err != nil {
		writeError(ctx, err)
		return
	}

	res, cType, name, err := s.Gallery.Download(ctx.Request.Context(), key)
	if err != nil {
		writeError(ctx, err)
		return
	}
	defer closeFileFlow(res)

	sendFile(ctx, res, cType, name)
}

// --------------- session, objects, events

func (h DigitizerHandler) DeleteSession(ctx *ginext.Context) {
	id, err := ctx.Cookie(session.CookieName)
	if err != nil || id == "" {
		writeError(ctx, model.ErrSessionNotFound)
		return
	}

	if err := h.sessions.Teardown(ctx.Request.Context(), id); err != nil && !errors.Is(err, model.ErrSessionNotFound) {
		writeError(ctx, err)
		return
	}
	ctx.SetCookie(session.CookieName, "", -1, "/", "", false, true)
	ctx.Status(204)
}

func (h DigitizerHandler) ServeObject(ctx *ginext.Context) {
	id := ctx.Param("id")

	res, cType, err := h.objects.OpenID(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	defer closeFileFlow(res)

	ctx.Writer.Header().Set("Content-Type", cType)
	ctx.Writer.Header().Set("Cache-Control", "private, no-store")
	ctx.Writer.WriteHeader(200)
	if n, err := io.Copy(ctx.Writer, res); err != nil {
		logger := mwlogger.LoggerFromContext(ctx.Request.Context())
		logger.Error().Err(err).Int64("written", n).Str("object_id", id).Msg("Failed to write object response")
	}
}

func (h DigitizerHandler) Events(ctx *ginext.Context) {
	s := h.session(ctx)
	h.stream.Stream(ctx, s.ID)
}

// session resolves the caller's session from the cookie, creating one when needed.
func (h DigitizerHandler) session(ctx *ginext.Context) *session.Session {
	id, _ := ctx.Cookie(session.CookieName)

	s, created := h.sessions.GetOrCreate(ctx.Request.Context(), id)
	if created {
		ctx.SetCookie(session.CookieName, s.ID, 0, "/", "", false, true)
	}

	logger := mwlogger.LoggerFromContext(ctx.Request.Context()).With().Str("session", s.ID).Logger()
	ctx.Request = ctx.Request.WithContext(mwlogger.WithLogger(ctx.Request.Context(), logger))
	return s
}

func sendFile(ctx *ginext.Context, res io.Reader, cType, name string) {
	ctx.Writer.Header().Set("Content-Type", cType)
	ctx.Writer.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	ctx.Writer.WriteHeader(http.StatusOK)
	if n, err := io.Copy(ctx.Writer, res); err != nil {
		logger := mwlogger.LoggerFromContext(ctx.Request.Context())
		logger.Error().Err(err).Int64("written", n).Str("file", name).Msg("Failed to write download response")
	}
}
