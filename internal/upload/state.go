package upload

import (
	"github.com/UnendingLoop/ImageDigitizer/internal/model"
)

type (
	UploadStatus  string
	ProcessStatus string
)

const (
	UploadIdle      UploadStatus = "idle"
	UploadUploading UploadStatus = "uploading"
	UploadUploaded  UploadStatus = "uploaded"
	UploadFailed    UploadStatus = "failed"
)

// Validation happens inside a single dispatch, so "validating" is never observed from outside.
const (
	ProcessIdle       ProcessStatus = "idle"
	ProcessRequesting ProcessStatus = "requesting"
	ProcessSucceeded  ProcessStatus = "succeeded"
	ProcessFailed     ProcessStatus = "failed"
)

type UploadInfo struct {
	Status   UploadStatus `json:"status"`
	ImageID  string       `json:"image_id,omitempty"`
	ImageURL string       `json:"image_url,omitempty"`
	Error    string       `json:"error,omitempty"`
}

type ProcessInfo struct {
	Status          ProcessStatus `json:"status"`
	Error           string        `json:"error,omitempty"`
	ValidationError string        `json:"validation_error,omitempty"`
}

// State is the record owned by one Orchestrator. Callers only ever get copies.
type State struct {
	FileName   string                     `json:"file_name,omitempty"`
	PreviewURL string                     `json:"preview_url,omitempty"`
	Upload     UploadInfo                 `json:"upload"`
	Params     model.ProcessingParameters `json:"params"`
	Process    ProcessInfo                `json:"process"`
	ResultURL  string                     `json:"result_url,omitempty"`
	ResultType string                     `json:"result_type,omitempty"`

	uploadGen uint64
}

// Busy reports whether the process control must be disabled.
func (s State) Busy() bool {
	return s.Process.Status == ProcessRequesting
}

// CanDownload reports whether a processed result is available.
func (s State) CanDownload() bool {
	return s.ResultURL != ""
}

func initialState() State {
	return State{
		Upload:  UploadInfo{Status: UploadIdle},
		Params:  model.DefaultParameters(),
		Process: ProcessInfo{Status: ProcessIdle},
	}
}

// messages accepted by dispatch

type fileSelected struct {
	name    string
	preview model.Blob
}

type uploadSucceeded struct {
	gen    uint64
	result model.UploadResult
}

type uploadFailed struct {
	gen uint64
	err error
}

type paramsChanged struct {
	patch model.ParametersPatch
}

type processRequested struct{}

type processSucceeded struct {
	gen  uint64
	blob model.Blob
}

type processFailed struct {
	gen uint64
	err error
}

type viewClosed struct{}
