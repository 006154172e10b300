// Package board holds the per-tab board session: the rendered view model,
// drag and drop, realtime reconciliation, filters and the confirmation modal.
// Every change to the view is emitted as a Patch for the browser to apply.
package board

import (
	"github.com/madhatter5501/leadboard/kanban"
)

// PatchKind identifies a view mutation.
type PatchKind string

const (
	PatchReplaceBoard PatchKind = "replace-board"
	PatchPrependCard  PatchKind = "prepend-card"
	PatchAppendCard   PatchKind = "append-card"
	PatchReplaceCard  PatchKind = "replace-card"
	PatchRemoveCard   PatchKind = "remove-card"
	PatchMoveCard     PatchKind = "move-card"
	PatchCounts       PatchKind = "counts"
	PatchToast        PatchKind = "toast"
	PatchScroll       PatchKind = "scroll"
	PatchHighlight    PatchKind = "highlight"
	PatchDragging     PatchKind = "dragging"
	PatchModal        PatchKind = "modal"
)

// ToastKind is the visual style of a toast.
type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
	ToastInfo    ToastKind = "info"
)

// Toast is a transient notification.
type Toast struct {
	Message string    `json:"message"`
	Kind    ToastKind `json:"kind"`
}

// Patch is one mutation of the browser view.
type Patch struct {
	Kind PatchKind `json:"kind"`

	// Card patches
	ID     kanban.LeadID `json:"id,omitempty"`
	Column string        `json:"column,omitempty"`
	Status kanban.Status `json:"status,omitempty"`
	HTML   string        `json:"html,omitempty"`

	// replace-board: column element id to inner HTML
	Columns map[string]string `json:"columns,omitempty"`

	// counts: counter element id to value
	Counts map[string]int `json:"counts,omitempty"`

	Toast *Toast     `json:"toast,omitempty"`
	Modal *ModalView `json:"modal,omitempty"`

	// scroll delta in pixels
	Delta int `json:"delta,omitempty"`
	// highlight / dragging mark on or off
	On bool `json:"on,omitempty"`
}

// ColumnID is the element id of a status column.
func ColumnID(s kanban.Status) string { return "col-" + string(s) }

// CountID is the element id of a column counter.
func CountID(s kanban.Status) string { return "count-" + string(s) }
