// Package upload drives the single-image pipeline: select a file, upload it,
// request one processed variant and hand the result out for download.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/UnendingLoop/ImageDigitizer/internal/imageproc"
	"github.com/UnendingLoop/ImageDigitizer/internal/model"
	"github.com/UnendingLoop/ImageDigitizer/internal/mwlogger"
	"github.com/UnendingLoop/ImageDigitizer/internal/objurl"
)

// RemoteService - контракт удалённого сервиса обработки
type RemoteService interface {
	Upload(ctx context.Context, file model.SourceFile) (*model.UploadResult, error)
	Variant(ctx context.Context, id string, kind model.VariantKind, p model.ProcessingParameters) (model.Blob, error)
}

// Notifier receives a copy of the state after every applied message.
type Notifier interface {
	Notify(ctx context.Context, kind string, state any)
}

var errStale = errors.New("stale result discarded")

type Orchestrator struct {
	remote         RemoteService
	objects        *objurl.Registry
	notifier       Notifier
	previewMaxSide int

	mu      sync.Mutex
	state   State
	preview *objurl.Handle
	result  *objurl.Handle
	closed  bool

	inflight sync.WaitGroup
}

func NewOrchestrator(remote RemoteService, objects *objurl.Registry, notifier Notifier, previewMaxSide int) *Orchestrator {
	return &Orchestrator{
		remote:         remote,
		objects:        objects,
		notifier:       notifier,
		previewMaxSide: previewMaxSide,
		state:          initialState(),
		preview:        objurl.NewHandle(objects),
		result:         objurl.NewHandle(objects),
	}
}

// State returns a copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SelectFile replaces the local preview and starts uploading the file in the background.
func (o *Orchestrator) SelectFile(ctx context.Context, file model.SourceFile) (State, error) {
	preview, err := imageproc.Preview(file.Data, o.previewMaxSide)
	if err != nil {
		return o.State(), err
	}
	if file.ContentType == "" {
		file.ContentType = preview.ContentType
	}

	st, err := o.dispatch(ctx, fileSelected{name: file.Name, preview: preview})
	if err != nil {
		return st, err
	}

	o.inflight.Add(1)
	go func(ctx context.Context, gen uint64) {
		defer o.inflight.Done()
		o.upload(ctx, gen, file)
	}(mwlogger.Detach(ctx), st.uploadGen)

	return st, nil
}

func (o *Orchestrator) upload(ctx context.Context, gen uint64, file model.SourceFile) {
	logger := mwlogger.LoggerFromContext(ctx)

	res, err := o.remote.Upload(ctx, file)
	if err != nil {
		logger.Error().Err(err).Str("file", file.Name).Msg("Failed to upload image to remote service")
		_, _ = o.dispatch(ctx, uploadFailed{gen: gen, err: err})
		return
	}

	if _, err := o.dispatch(ctx, uploadSucceeded{gen: gen, result: *res}); err != nil {
		logger.Debug().Err(err).Str("image_id", res.ImageID).Msg("Upload result dropped")
		return
	}
	logger.Info().Str("image_id", res.ImageID).Msg("Image uploaded")
}

// SetParameters merges the patch into the processing parameters. No network involved.
func (o *Orchestrator) SetParameters(ctx context.Context, patch model.ParametersPatch) (State, error) {
	return o.dispatch(ctx, paramsChanged{patch: patch})
}

// Process validates the preconditions and requests the variant chosen by the compression toggle.
// A failed request leaves a previous result untouched.
func (o *Orchestrator) Process(ctx context.Context) (State, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	st, err := o.dispatch(ctx, processRequested{})
	if err != nil {
		return st, err
	}

	params := st.Params
	kind := params.Kind()
	blob, err := o.remote.Variant(ctx, st.Upload.ImageID, kind, params)
	if err != nil {
		logger.Error().Err(err).Str("image_id", st.Upload.ImageID).Str("variant", string(kind)).Msg("Failed to process image")
		st, dErr := o.dispatch(ctx, processFailed{gen: st.uploadGen, err: err})
		if dErr != nil {
			return st, dErr
		}
		return st, err
	}

	st, err = o.dispatch(ctx, processSucceeded{gen: st.uploadGen, blob: blob})
	if err != nil {
		return st, err
	}
	if st.Process.Status == ProcessFailed {
		return st, model.ErrCommon500
	}
	return st, nil
}

// Download opens the processed result. The caller closes the reader.
func (o *Orchestrator) Download(ctx context.Context) (io.ReadCloser, string, string, error) {
	o.mu.Lock()
	url, cType := o.state.ResultURL, o.state.ResultType
	o.mu.Unlock()

	if url == "" {
		return nil, "", "", model.ErrNothingToDownload
	}

	data, storedType, err := o.objects.Open(ctx, url)
	if err != nil {
		return nil, "", "", err
	}
	if cType == "" {
		cType = storedType
	}
	return data, cType, model.ProcessedFileName + model.FileExt(cType), nil
}

// Close tears the view down and revokes every URL it owns. Late results are dropped.
func (o *Orchestrator) Close(ctx context.Context) {
	_, _ = o.dispatch(ctx, viewClosed{})
}

// Wait blocks until background uploads have settled.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

// dispatch is the only way state changes. It applies msg under the lock and notifies afterwards.
func (o *Orchestrator) dispatch(ctx context.Context, msg any) (State, error) {
	o.mu.Lock()
	if o.closed {
		st := o.state
		o.mu.Unlock()
		return st, model.ErrClosed
	}

	kind, err := o.reduce(ctx, msg)
	st := o.state
	o.mu.Unlock()

	if kind != "" && o.notifier != nil {
		o.notifier.Notify(ctx, kind, st)
	}
	return st, err
}

// reduce applies msg to o.state. Returns the notification kind ("" when nothing changed).
func (o *Orchestrator) reduce(ctx context.Context, msg any) (string, error) {
	s := &o.state

	switch m := msg.(type) {
	case fileSelected:
		s.uploadGen++
		s.FileName = m.name
		s.Process = ProcessInfo{Status: ProcessIdle}
		o.preview.Release(ctx)
		url, err := o.preview.Replace(ctx, m.preview)
		if err != nil {
			s.PreviewURL = ""
			s.Upload = UploadInfo{Status: UploadIdle}
			return "preview_failed", fmt.Errorf("failed to create preview: %w", err)
		}
		s.PreviewURL = url
		s.Upload = UploadInfo{Status: UploadUploading}
		return "file_selected", nil

	case uploadSucceeded:
		if m.gen != s.uploadGen {
			return "", errStale
		}
		s.Upload = UploadInfo{Status: UploadUploaded, ImageID: m.result.ImageID, ImageURL: m.result.ImageURL}
		return "upload_succeeded", nil

	case uploadFailed:
		if m.gen != s.uploadGen {
			return "", errStale
		}
		s.Upload = UploadInfo{Status: UploadFailed, Error: m.err.Error()}
		return "upload_failed", nil

	case paramsChanged:
		next, err := s.Params.Apply(m.patch)
		if err != nil {
			return "", err
		}
		s.Params = next
		return "params_changed", nil

	case processRequested:
		if s.Process.Status == ProcessRequesting {
			return "", model.ErrProcessBusy
		}
		if err := s.validate(); err != nil {
			s.Process = ProcessInfo{Status: ProcessIdle, ValidationError: err.Error()}
			return "process_invalid", err
		}
		s.Process = ProcessInfo{Status: ProcessRequesting}
		return "process_started", nil

	case processSucceeded:
		if m.gen != s.uploadGen {
			return "", model.ErrProcessSuperseded
		}
		url, err := o.result.Replace(ctx, m.blob)
		if err != nil {
			s.Process = ProcessInfo{Status: ProcessFailed, Error: err.Error()}
			return "process_failed", nil
		}
		s.ResultURL = url
		s.ResultType = m.blob.ContentType
		s.Process = ProcessInfo{Status: ProcessSucceeded}
		return "process_succeeded", nil

	case processFailed:
		if m.gen != s.uploadGen {
			return "", model.ErrProcessSuperseded
		}
		s.Process = ProcessInfo{Status: ProcessFailed, Error: m.err.Error()}
		return "process_failed", nil

	case viewClosed:
		o.preview.Release(ctx)
		o.result.Release(ctx)
		o.closed = true
		s.uploadGen++
		s.PreviewURL = ""
		s.ResultURL = ""
		s.ResultType = ""
		return "closed", nil

	default:
		return "", fmt.Errorf("unknown message %T", msg)
	}
}

func (s State) validate() error {
	if s.Upload.ImageID == "" {
		return model.Invalid("image", model.ErrNoImage)
	}
	return s.Params.Validate()
}
