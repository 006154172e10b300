package board

import (
	"sync"
	"time"

	"github.com/madhatter5501/leadboard/kanban"
)

// DragState is the phase of a drag gesture.
type DragState int

const (
	DragIdle DragState = iota
	DragDragging
	DragHoverTarget
	DragDropped
)

func (s DragState) String() string {
	switch s {
	case DragIdle:
		return "idle"
	case DragDragging:
		return "dragging"
	case DragHoverTarget:
		return "hover-target"
	case DragDropped:
		return "dropped"
	}
	return "unknown"
}

// DropIntent is a status change the caller must persist.
type DropIntent struct {
	ID   kanban.LeadID
	From kanban.Status
	To   kanban.Status
}

// DragController drives card drag and drop over the board view. It is not
// safe for concurrent use; the Board serializes access.
type DragController struct {
	store    *kanban.State
	renderer *Renderer
	scroller *AutoScroller
	emit     func(Patch)

	state       DragState
	card        *Card
	highlighted map[kanban.Status]bool
}

// NewDragController creates an idle controller.
func NewDragController(store *kanban.State, renderer *Renderer, scroller *AutoScroller, emit func(Patch)) *DragController {
	if emit == nil {
		emit = func(Patch) {}
	}
	return &DragController{
		store:       store,
		renderer:    renderer,
		scroller:    scroller,
		emit:        emit,
		highlighted: make(map[kanban.Status]bool),
	}
}

// State returns the current phase.
func (d *DragController) State() DragState {
	return d.state
}

// Dragged returns the captured card, if any.
func (d *DragController) Dragged() *Card {
	return d.card
}

// Start captures card and marks it as dragging.
func (d *DragController) Start(card *Card) {
	if card == nil {
		return
	}
	if d.card != nil && d.card != card {
		d.emit(Patch{Kind: PatchDragging, ID: d.card.Lead.ID, On: false})
	}
	d.card = card
	d.state = DragDragging
	d.emit(Patch{Kind: PatchDragging, ID: card.Lead.ID, On: true})
}

// Over highlights the column under the pointer. It returns true when the
// column accepts the drop.
func (d *DragController) Over(status kanban.Status) bool {
	if !status.Valid() {
		return false
	}
	if d.card != nil {
		d.state = DragHoverTarget
	}
	d.setHighlight(status, true)
	return true
}

// Leave clears the highlight of a column.
func (d *DragController) Leave(status kanban.Status) {
	d.setHighlight(status, false)
	if d.state == DragHoverTarget && len(d.highlighted) == 0 {
		d.state = DragDragging
	}
}

// Drop moves the captured card to status. The card, the store and the
// counters change immediately; the returned intent must be persisted by the
// caller. A missing card or an unchanged status returns false.
func (d *DragController) Drop(status kanban.Status) (DropIntent, bool) {
	d.setHighlight(status, false)
	d.scroller.Stop()

	if d.card == nil || !status.Valid() {
		return DropIntent{}, false
	}
	id := d.card.Lead.ID
	card, live := d.renderer.Card(id)
	if !live {
		// Removed by a realtime delete mid-drag
		d.release()
		return DropIntent{}, false
	}
	// A realtime update or reload may have replaced the card since Start.
	d.card = card

	from := card.Status
	d.state = DragDropped
	if from == status {
		return DropIntent{}, false
	}

	d.renderer.Move(id, status)
	d.store.UpdateStatus(id, status)
	d.renderer.UpdateCounts()

	return DropIntent{ID: id, From: from, To: status}, true
}

// DropCard drops the card for id on status without relying on an earlier
// Start. A gesture that already ended is released again after the drop.
func (d *DragController) DropCard(id kanban.LeadID, status kanban.Status) (DropIntent, bool) {
	card, ok := d.renderer.Card(id)
	if !ok {
		d.setHighlight(status, false)
		return DropIntent{}, false
	}

	ended := d.card == nil
	if d.card != nil && d.card != card {
		d.emit(Patch{Kind: PatchDragging, ID: d.card.Lead.ID, On: false})
	}
	d.card = card

	intent, dropped := d.Drop(status)
	if ended {
		d.release()
	}
	return intent, dropped
}

// End finishes the gesture and returns to idle.
func (d *DragController) End() {
	for s := range d.highlighted {
		d.emit(Patch{Kind: PatchHighlight, Column: ColumnID(s), On: false})
	}
	clear(d.highlighted)
	d.scroller.Stop()
	d.release()
}

// Pointer feeds the pointer position while dragging, for edge scrolling.
func (d *DragController) Pointer(y, top, bottom float64) {
	if d.card == nil {
		d.scroller.Stop()
		return
	}
	d.scroller.Update(y, top, bottom)
}

func (d *DragController) release() {
	if d.card != nil {
		d.emit(Patch{Kind: PatchDragging, ID: d.card.Lead.ID, On: false})
	}
	d.card = nil
	d.state = DragIdle
}

func (d *DragController) setHighlight(status kanban.Status, on bool) {
	if !status.Valid() || d.highlighted[status] == on {
		return
	}
	if on {
		d.highlighted[status] = true
	} else {
		delete(d.highlighted, status)
	}
	d.emit(Patch{Kind: PatchHighlight, Column: ColumnID(status), On: on})
}

// Scroller moves the board's scroll container.
type Scroller interface {
	ScrollBy(dy int)
}

// ScrollerFunc adapts a function to Scroller.
type ScrollerFunc func(dy int)

// ScrollBy calls f(dy).
func (f ScrollerFunc) ScrollBy(dy int) { f(dy) }

// Auto-scroll defaults.
const (
	DefaultScrollThreshold = 100
	DefaultScrollSpeed     = 10
	DefaultScrollInterval  = 16 * time.Millisecond
)

// AutoScroller scrolls the container while the pointer is near its top or
// bottom edge. At most one scroll goroutine runs at a time.
type AutoScroller struct {
	scroller  Scroller
	threshold float64
	speed     int
	interval  time.Duration

	mu   sync.Mutex
	dir  int
	stop chan struct{}
	done chan struct{}
}

// NewAutoScroller creates a scroller; zero values take the defaults.
func NewAutoScroller(s Scroller, threshold float64, speed int, interval time.Duration) *AutoScroller {
	if threshold <= 0 {
		threshold = DefaultScrollThreshold
	}
	if speed <= 0 {
		speed = DefaultScrollSpeed
	}
	if interval <= 0 {
		interval = DefaultScrollInterval
	}
	return &AutoScroller{scroller: s, threshold: threshold, speed: speed, interval: interval}
}

// Update starts, redirects or stops scrolling for a pointer at y inside a
// container spanning top..bottom.
func (a *AutoScroller) Update(y, top, bottom float64) {
	dir := 0
	switch {
	case y < top+a.threshold:
		dir = -1
	case y > bottom-a.threshold:
		dir = 1
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if dir != 0 && dir == a.dir {
		return
	}
	a.stopLocked()
	if dir == 0 {
		return
	}

	a.dir = dir
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	go a.run(dir*a.speed, a.stop, a.done)
}

// Stop cancels scrolling and waits for the goroutine to exit.
func (a *AutoScroller) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

// Running reports whether a scroll goroutine is active.
func (a *AutoScroller) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stop != nil
}

func (a *AutoScroller) stopLocked() {
	if a.stop == nil {
		return
	}
	close(a.stop)
	<-a.done
	a.stop, a.done, a.dir = nil, nil, 0
}

func (a *AutoScroller) run(dy int, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			a.scroller.ScrollBy(dy)
		}
	}
}
