package board

import (
	"bytes"
	_ "embed"
	"html/template"
	"log/slog"

	"github.com/madhatter5501/leadboard/kanban"
)

//go:embed card.html
var cardTemplate string

// Card is one rendered lead in a column.
type Card struct {
	Lead   kanban.Lead
	Status kanban.Status
	HTML   string

	// Bound by the attach hook. A card without handlers cannot be dragged
	// or deleted from the board.
	OnDragStart func()
	OnDelete    func()
}

// Attached reports whether handlers were bound to the card.
func (c *Card) Attached() bool {
	return c.OnDragStart != nil
}

// AttachFunc binds handlers to a freshly created card.
type AttachFunc func(*Card)

// ColumnView is a column as shown on the page.
type ColumnView struct {
	Status  kanban.Status
	Label   string
	ID      string
	CountID string
	Count   int
	Cards   []template.HTML
}

// Renderer keeps the board view model: four status columns of cards and an
// id index over them. It is not safe for concurrent use; the Board
// serializes access.
type Renderer struct {
	tmpl    *template.Template
	columns map[kanban.Status][]*Card
	cards   map[string]*Card
	attach  AttachFunc
	emit    func(Patch)
	logger  *slog.Logger
}

// NewRenderer creates an empty board view.
func NewRenderer(emit func(Patch), attach AttachFunc, logger *slog.Logger) *Renderer {
	if emit == nil {
		emit = func(Patch) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{
		tmpl:   template.Must(template.New("cards").Parse(cardTemplate)),
		cards:  make(map[string]*Card),
		attach: attach,
		emit:   emit,
		logger: logger,
	}
	r.reset()
	return r
}

func (r *Renderer) reset() {
	r.columns = make(map[kanban.Status][]*Card, 4)
	for _, s := range kanban.Statuses() {
		r.columns[s] = nil
	}
	clear(r.cards)
}

// Render rebuilds every column from leads. Leads with an unknown status are
// skipped.
func (r *Renderer) Render(leads []kanban.Lead) {
	r.reset()
	for _, l := range leads {
		if !l.Status.Valid() {
			r.logger.Debug("Skipping lead with unknown status", "id", l.ID, "status", l.Status)
			continue
		}
		if _, dup := r.cards[l.ID.Key()]; dup {
			continue
		}
		c := r.newCard(l)
		r.columns[l.Status] = append(r.columns[l.Status], c)
	}

	cols := make(map[string]string, len(r.columns))
	for _, s := range kanban.Statuses() {
		var buf bytes.Buffer
		for _, c := range r.columns[s] {
			buf.WriteString(c.HTML)
		}
		cols[ColumnID(s)] = buf.String()
	}
	r.emit(Patch{Kind: PatchReplaceBoard, Columns: cols})
	r.UpdateCounts()
}

// Prepend adds a card at the top of the lead's status column.
func (r *Renderer) Prepend(l kanban.Lead) *Card {
	return r.insert(l, true)
}

// Append adds a card at the bottom of the lead's status column.
func (r *Renderer) Append(l kanban.Lead) *Card {
	return r.insert(l, false)
}

func (r *Renderer) insert(l kanban.Lead, top bool) *Card {
	if !l.Status.Valid() {
		return nil
	}
	// Keep ids unique in the view
	r.Remove(l.ID)

	c := r.newCard(l)
	kind := PatchAppendCard
	if top {
		kind = PatchPrependCard
		r.columns[l.Status] = append([]*Card{c}, r.columns[l.Status]...)
	} else {
		r.columns[l.Status] = append(r.columns[l.Status], c)
	}
	r.emit(Patch{Kind: kind, ID: l.ID, Column: ColumnID(l.Status), Status: l.Status, HTML: c.HTML})
	return c
}

// ReplaceInPlace swaps the card for l with a fresh one at the same position.
func (r *Renderer) ReplaceInPlace(l kanban.Lead) bool {
	old, ok := r.cards[l.ID.Key()]
	if !ok {
		return false
	}
	col := r.columns[old.Status]
	for i, c := range col {
		if c != old {
			continue
		}
		l.Status = old.Status
		fresh := r.newCard(l)
		col[i] = fresh
		r.emit(Patch{Kind: PatchReplaceCard, ID: l.ID, Column: ColumnID(old.Status), Status: old.Status, HTML: fresh.HTML})
		return true
	}
	return false
}

// Move detaches the card and appends it to the status column.
func (r *Renderer) Move(id kanban.LeadID, status kanban.Status) bool {
	c, ok := r.cards[id.Key()]
	if !ok || !status.Valid() {
		return false
	}
	r.detach(c)
	c.Status = status
	c.Lead.Status = status
	c.HTML = r.cardHTML(c.Lead)
	r.columns[status] = append(r.columns[status], c)
	r.emit(Patch{Kind: PatchMoveCard, ID: c.Lead.ID, Column: ColumnID(status), Status: status})
	return true
}

// Remove deletes the card for id. Its handlers become unreachable.
func (r *Renderer) Remove(id kanban.LeadID) bool {
	c, ok := r.cards[id.Key()]
	if !ok {
		return false
	}
	r.detach(c)
	delete(r.cards, id.Key())
	r.emit(Patch{Kind: PatchRemoveCard, ID: c.Lead.ID})
	return true
}

// Card looks up a rendered card by lead id.
func (r *Renderer) Card(id kanban.LeadID) (*Card, bool) {
	c, ok := r.cards[id.Key()]
	return c, ok
}

// Column returns the ids of the cards in a column, top to bottom.
func (r *Renderer) Column(status kanban.Status) []kanban.LeadID {
	ids := make([]kanban.LeadID, 0, len(r.columns[status]))
	for _, c := range r.columns[status] {
		ids = append(ids, c.Lead.ID)
	}
	return ids
}

// Counts returns the number of cards in each column.
func (r *Renderer) Counts() map[kanban.Status]int {
	counts := make(map[kanban.Status]int, len(r.columns))
	for _, s := range kanban.Statuses() {
		counts[s] = len(r.columns[s])
	}
	return counts
}

// UpdateCounts recomputes the column counters.
func (r *Renderer) UpdateCounts() map[kanban.Status]int {
	counts := r.Counts()
	ids := make(map[string]int, len(counts))
	for s, n := range counts {
		ids[CountID(s)] = n
	}
	r.emit(Patch{Kind: PatchCounts, Counts: ids})
	return counts
}

// View returns the columns for a full page render.
func (r *Renderer) View() []ColumnView {
	views := make([]ColumnView, 0, len(r.columns))
	for _, s := range kanban.Statuses() {
		v := ColumnView{
			Status:  s,
			Label:   s.Label(),
			ID:      ColumnID(s),
			CountID: CountID(s),
			Count:   len(r.columns[s]),
		}
		for _, c := range r.columns[s] {
			v.Cards = append(v.Cards, template.HTML(c.HTML))
		}
		views = append(views, v)
	}
	return views
}

func (r *Renderer) newCard(l kanban.Lead) *Card {
	l.Source = l.Source.Normalize()
	c := &Card{Lead: l, Status: l.Status, HTML: r.cardHTML(l)}
	r.cards[l.ID.Key()] = c
	if r.attach != nil {
		r.attach(c)
	}
	return c
}

func (r *Renderer) detach(c *Card) {
	col := r.columns[c.Status]
	for i, other := range col {
		if other == c {
			r.columns[c.Status] = append(col[:i:i], col[i+1:]...)
			return
		}
	}
}

func (r *Renderer) cardHTML(l kanban.Lead) string {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, "card", l); err != nil {
		r.logger.Error("Failed to render card", "id", l.ID, "error", err)
		return ""
	}
	return buf.String()
}
