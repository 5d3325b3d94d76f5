package transport

import (
	"errors"
	"io"
	"log"

	"github.com/UnendingLoop/ImageDigitizer/internal/model"
	"github.com/UnendingLoop/ImageDigitizer/internal/mwlogger"
	"github.com/wb-go/wbf/ginext"
)

func errorCodeDefiner(err error) int {
	switch {
	case errors.Is(err, model.ErrCommon500):
		return 500
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrIncorrectVariant),
		errors.Is(err, model.ErrEmptySource),
		errors.Is(err, model.ErrUnsupportedFormat):
		return 400
	case errors.Is(err, model.ErrProcessBusy),
		errors.Is(err, model.ErrProcessSuperseded):
		return 409
	case errors.Is(err, model.ErrNothingToDownload),
		errors.Is(err, model.ErrVariantNotReady),
		errors.Is(err, model.ErrEntryNotFound),
		errors.Is(err, model.ErrNoSelection),
		errors.Is(err, model.ErrObjectNotFound),
		errors.Is(err, model.ErrSessionNotFound):
		return 404
	case errors.Is(err, model.ErrClosed):
		return 410
	case errors.Is(err, model.ErrTransport):
		return 502
	default:
		return 500
	}
}

func writeError(ctx *ginext.Context, err error) {
	code := errorCodeDefiner(err)
	msg := err.Error()
	if code == 500 {
		logger := mwlogger.LoggerFromContext(ctx.Request.Context())
		logger.Error().Err(err).Msg("Request failed")
		msg = model.ErrCommon500.Error()
	}
	ctx.JSON(code, map[string]string{"error": msg})
}

func closeFileFlow(res io.ReadCloser) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		log.Println("Handler failed to close fileflow:", err)
	}
}
