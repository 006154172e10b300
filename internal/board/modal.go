package board

import (
	"context"
	"errors"
	"sync"
)

// ErrNoModal is returned when confirming with no modal open.
var ErrNoModal = errors.New("no modal open")

// ModalView is what the browser shows for the open modal.
type ModalView struct {
	Title        string `json:"title"`
	Body         string `json:"body"`
	ConfirmLabel string `json:"confirm_label"`
	Danger       bool   `json:"danger,omitempty"`
	Open         bool   `json:"open"`
}

type pendingModal struct {
	view      ModalView
	onConfirm func(context.Context) error
}

// Modal is the single confirmation dialog of a board session. Opening a new
// modal replaces the current one.
type Modal struct {
	mu      sync.Mutex
	current *pendingModal
	emit    func(Patch)
}

// NewModal creates a closed modal.
func NewModal(emit func(Patch)) *Modal {
	if emit == nil {
		emit = func(Patch) {}
	}
	return &Modal{emit: emit}
}

// Open shows a modal whose confirm button runs onConfirm.
func (m *Modal) Open(view ModalView, onConfirm func(context.Context) error) {
	if view.ConfirmLabel == "" {
		view.ConfirmLabel = "Salvar"
	}
	view.Open = true

	m.mu.Lock()
	m.current = &pendingModal{view: view, onConfirm: onConfirm}
	m.mu.Unlock()

	m.emit(Patch{Kind: PatchModal, Modal: &view})
}

// Confirm runs the pending action. The modal closes only when the action
// succeeds; on error it stays open and the error is returned.
func (m *Modal) Confirm(ctx context.Context) error {
	m.mu.Lock()
	p := m.current
	m.mu.Unlock()

	if p == nil {
		return ErrNoModal
	}
	if p.onConfirm != nil {
		if err := p.onConfirm(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	// A modal opened by the action itself stays
	closing := m.current == p
	if closing {
		m.current = nil
	}
	m.mu.Unlock()

	if closing {
		m.emit(Patch{Kind: PatchModal, Modal: &ModalView{Open: false}})
	}
	return nil
}

// Cancel closes the modal without running its action.
func (m *Modal) Cancel() {
	m.mu.Lock()
	wasOpen := m.current != nil
	m.current = nil
	m.mu.Unlock()

	if wasOpen {
		m.emit(Patch{Kind: PatchModal, Modal: &ModalView{Open: false}})
	}
}

// Current returns the open modal.
func (m *Modal) Current() (ModalView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ModalView{}, false
	}
	return m.current.view, true
}
