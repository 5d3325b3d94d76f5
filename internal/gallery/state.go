package gallery

import (
	"github.com/UnendingLoop/ImageDigitizer/internal/model"
)

type SlotStatus string

const (
	SlotUnloaded SlotStatus = "unloaded"
	SlotLoading  SlotStatus = "loading"
	SlotLoaded   SlotStatus = "loaded"
	SlotFailed   SlotStatus = "failed"
)

// Slot is one variant of the selected entry.
type Slot struct {
	Status      SlotStatus `json:"status"`
	URL         string     `json:"url,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// VariantSet groups the three renditions shown for a selected entry.
// Original points to the remote URL and is never revoked here.
type VariantSet struct {
	Entry      model.GalleryEntry `json:"entry"`
	Original   Slot               `json:"original"`
	Compressed Slot               `json:"compressed"`
	Digitized  Slot               `json:"digitized"`
}

// Slot returns the slot for key.
func (v VariantSet) Slot(key model.VariantKey) Slot {
	switch key {
	case model.KeyOriginal:
		return v.Original
	case model.KeyCompressed:
		return v.Compressed
	case model.KeyDigitized:
		return v.Digitized
	}
	return Slot{Status: SlotUnloaded}
}

func (v *VariantSet) slotOf(kind model.VariantKind) *Slot {
	if kind == model.KindCompressed {
		return &v.Compressed
	}
	return &v.Digitized
}

type State struct {
	Entries   []model.GalleryEntry `json:"entries"`
	Loaded    bool                 `json:"loaded"`
	Selection *VariantSet          `json:"selection,omitempty"`

	gen uint64
}

// clone detaches the copy from the loader-owned slice and pointer.
func (s State) clone() State {
	c := s
	c.Entries = append([]model.GalleryEntry(nil), s.Entries...)
	if s.Selection != nil {
		sel := *s.Selection
		c.Selection = &sel
	}
	return c
}

func (s State) find(id string) (model.GalleryEntry, bool) {
	for _, e := range s.Entries {
		if e.ID == id {
			return e, true
		}
	}
	return model.GalleryEntry{}, false
}

// messages accepted by dispatch

type listed struct {
	entries []model.GalleryEntry
}

type selected struct {
	entry model.GalleryEntry
}

type variantLoaded struct {
	gen  uint64
	kind model.VariantKind
	blob model.Blob
}

type variantFailed struct {
	gen  uint64
	kind model.VariantKind
	err  error
}

type selectionClosed struct{}

type viewClosed struct{}
