package board

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/madhatter5501/leadboard/internal/export"
	"github.com/madhatter5501/leadboard/internal/importer"
	"github.com/madhatter5501/leadboard/internal/realtime"
	"github.com/madhatter5501/leadboard/kanban"
)

// Options tunes a board session. Zero values take the defaults.
type Options struct {
	Locale          string
	ImportWorkers   int
	PatchBuffer     int
	ScrollThreshold float64
	ScrollSpeed     int
	ScrollInterval  time.Duration
}

const (
	defaultImportWorkers = 8
	defaultPatchBuffer   = 256
)

// View is the full board for a page render.
type View struct {
	Columns []ColumnView       `json:"columns"`
	Filter  kanban.FilterState `json:"filter"`
	Modal   *ModalView         `json:"modal,omitempty"`
}

// Board is one browser tab's lead board. Store and view are guarded by mu;
// remote calls run outside it.
type Board struct {
	mu sync.Mutex

	gateway kanban.Gateway
	userID  string
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	store       *kanban.State
	renderer    *Renderer
	scroller    *AutoScroller
	drag        *DragController
	reconciler  *Reconciler
	filter      *kanban.Filter
	filterState kanban.FilterState
	modal       *Modal
	patches     *realtime.Hub[Patch]

	cancelFeed context.CancelFunc
	wg         sync.WaitGroup
}

// New creates an empty board for userID. Call Load to fill it.
func New(gateway kanban.Gateway, userID string, opts Options, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ImportWorkers <= 0 {
		opts.ImportWorkers = defaultImportWorkers
	}
	if opts.PatchBuffer <= 0 {
		opts.PatchBuffer = defaultPatchBuffer
	}
	logger = logger.With("user", userID)

	b := &Board{
		gateway:     gateway,
		userID:      userID,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
		store:       kanban.NewState(),
		filter:      kanban.NewFilter(opts.Locale),
		filterState: kanban.DefaultFilter(),
		patches:     realtime.NewHub[Patch]("board", logger),
	}
	b.renderer = NewRenderer(b.patches.Publish, b.attach, logger)
	b.scroller = NewAutoScroller(ScrollerFunc(b.scrollBy), opts.ScrollThreshold, opts.ScrollSpeed, opts.ScrollInterval)
	b.drag = NewDragController(b.store, b.renderer, b.scroller, b.patches.Publish)
	b.reconciler = NewReconciler(&b.mu, b.store, b.renderer, logger)
	b.modal = NewModal(b.patches.Publish)
	return b
}

// attach binds the card handlers. Cards dropped from the renderer take
// their handlers with them.
func (b *Board) attach(c *Card) {
	id := c.Lead.ID
	c.OnDragStart = func() { b.drag.Start(c) }
	c.OnDelete = func() { b.confirmDelete(id) }
}

// --- Loading ---

// Load fetches every lead and renders the current filter. On error the
// board is emptied and an error toast shown.
func (b *Board) Load(ctx context.Context) error {
	leads, err := b.gateway.FetchLeads(ctx)
	if err != nil {
		b.logger.Error("Failed to fetch leads", "error", err)
		b.notify(ToastError, "Erro ao carregar leads")
		leads = nil
	}

	b.mu.Lock()
	b.store.ReplaceAll(leads)
	b.renderLocked()
	b.mu.Unlock()
	return err
}

// Subscribe starts reconciling change events from sub. A previous
// subscription is cancelled.
func (b *Board) Subscribe(ctx context.Context, sub realtime.Subscriber) error {
	ctx, cancel := context.WithCancel(ctx)
	events, err := sub.Subscribe(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to lead changes: %w", err)
	}

	b.mu.Lock()
	if b.cancelFeed != nil {
		b.cancelFeed()
	}
	b.cancelFeed = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.reconciler.Run(ctx, events)
	}()
	return nil
}

// Apply folds a single change event into the board.
func (b *Board) Apply(ev kanban.ChangeEvent) bool {
	return b.reconciler.Apply(ev)
}

// --- Filters ---

// SetFilter stores the selection and re-renders from the store.
func (b *Board) SetFilter(st kanban.FilterState) {
	def := kanban.DefaultFilter()
	if st.Stage == "" {
		st.Stage = def.Stage
	}
	if st.Source == "" {
		st.Source = def.Source
	}
	if st.DateRange == "" {
		st.DateRange = def.DateRange
	}
	if st.Sort == "" {
		st.Sort = def.Sort
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.filterState = st
	b.renderLocked()
}

// ResetFilter restores the default selection.
func (b *Board) ResetFilter() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filterState.Reset()
	b.renderLocked()
}

// Filter returns the current selection.
func (b *Board) Filter() kanban.FilterState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filterState
}

func (b *Board) renderLocked() {
	b.renderer.Render(b.filter.Apply(b.store.All(), b.filterState, b.now()))
}

// --- Lead operations ---

// CreateLead validates and inserts a new lead owned by the board's user,
// then reloads the board.
func (b *Board) CreateLead(ctx context.Context, l kanban.Lead) (kanban.Lead, error) {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		b.notify(ToastError, "Nome é obrigatório")
		return kanban.Lead{}, fmt.Errorf("%w: name is required", kanban.ErrValidation)
	}
	l.ID = ""
	l.Status = kanban.StatusNew
	l.Source = l.Source.Normalize()
	l.UserID = b.userID
	l.CreatedAt = b.now().UTC()

	created, err := b.gateway.InsertLead(ctx, l)
	if err != nil {
		b.logger.Error("Failed to create lead", "error", err)
		b.notify(ToastError, "Erro ao criar lead")
		return kanban.Lead{}, err
	}

	b.notify(ToastSuccess, "Lead criado com sucesso!")
	_ = b.Load(ctx)
	return created, nil
}

// UpdateLead saves an edit and refreshes the card.
func (b *Board) UpdateLead(ctx context.Context, id kanban.LeadID, u kanban.LeadUpdate) error {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		b.notify(ToastError, "Nome é obrigatório")
		return fmt.Errorf("%w: name is required", kanban.ErrValidation)
	}

	if err := b.gateway.UpdateLead(ctx, id, u, b.userID); err != nil {
		b.logger.Error("Failed to update lead", "lead", id, "error", err)
		b.notify(ToastError, "Erro ao atualizar lead")
		return err
	}

	b.mu.Lock()
	if cur, ok := b.store.Get(id); ok {
		u.Apply(&cur)
		b.store.Replace(cur)
		b.renderer.ReplaceInPlace(cur)
	}
	b.mu.Unlock()

	b.notify(ToastSuccess, "Lead atualizado")
	return nil
}

// AddInteraction records a manual history entry (call, email, meeting, note).
func (b *Board) AddInteraction(ctx context.Context, id kanban.LeadID, typ kanban.InteractionType, description string) error {
	if !typ.Valid() {
		b.notify(ToastError, "Tipo de interação inválido")
		return fmt.Errorf("%w: unknown interaction type %q", kanban.ErrValidation, typ)
	}

	err := b.gateway.AddInteraction(ctx, kanban.Interaction{
		LeadID:      id,
		UserID:      b.userID,
		Type:        typ,
		Description: strings.TrimSpace(description),
	})
	if err != nil {
		b.logger.Error("Failed to save interaction", "lead", id, "error", err)
		b.notify(ToastError, "Erro ao salvar histórico: "+err.Error())
		return err
	}
	b.notify(ToastSuccess, "Interação registrada")
	return nil
}

// Detail returns a lead with its history.
func (b *Board) Detail(ctx context.Context, id kanban.LeadID) (*kanban.LeadDetail, error) {
	return b.gateway.GetLead(ctx, id)
}

// RequestDelete opens the delete confirmation for a lead.
func (b *Board) RequestDelete(id kanban.LeadID) error {
	b.mu.Lock()
	card, rendered := b.renderer.Card(id)
	known := b.store.Has(id)
	b.mu.Unlock()

	switch {
	case rendered && card.OnDelete != nil:
		card.OnDelete()
	case known:
		b.confirmDelete(id)
	default:
		return fmt.Errorf("lead %s: %w", id, kanban.ErrNotFound)
	}
	return nil
}

func (b *Board) confirmDelete(id kanban.LeadID) {
	b.modal.Open(ModalView{
		Title:        "Excluir Lead",
		Body:         "Tem certeza que deseja excluir este lead? Esta ação não pode ser desfeita.",
		ConfirmLabel: "Excluir",
		Danger:       true,
	}, func(ctx context.Context) error {
		return b.deleteConfirmed(ctx, id)
	})
}

func (b *Board) deleteConfirmed(ctx context.Context, id kanban.LeadID) error {
	if err := b.gateway.DeleteLead(ctx, id); err != nil {
		b.logger.Error("Failed to delete lead", "lead", id, "error", err)
		b.notify(ToastError, "Erro ao excluir lead")
		return err
	}

	b.mu.Lock()
	b.store.RemoveByID(id)
	b.renderLocked()
	b.mu.Unlock()

	b.notify(ToastSuccess, "Lead excluído permanentemente")
	return nil
}

// --- Import / export ---

// PrepareImport reads a spreadsheet and opens the import confirmation. It
// returns the number of leads found.
func (b *Board) PrepareImport(name string, r io.Reader) (int, error) {
	rows, err := importer.Parse(name, r)
	if err != nil {
		b.logger.Warn("Failed to read import file", "file", name, "error", err)
		if errors.Is(err, importer.ErrEmptyFile) {
			b.notify(ToastError, "O arquivo está vazio")
		} else {
			b.notify(ToastError, "Erro ao ler arquivo: "+err.Error())
		}
		return 0, err
	}

	leads := importer.Normalize(rows, b.now().UTC())
	for i := range leads {
		leads[i].UserID = b.userID
	}

	msg := fmt.Sprintf("%d leads identificados", len(leads))
	b.modal.Open(ModalView{Title: "Importar Leads", Body: msg, ConfirmLabel: "Importar"},
		func(ctx context.Context) error {
			b.importLeads(ctx, leads)
			return nil
		})
	b.notify(ToastSuccess, msg)
	return len(leads), nil
}

// importLeads inserts leads concurrently and reports the tally. Individual
// failures are counted, not returned.
func (b *Board) importLeads(ctx context.Context, leads []kanban.Lead) (succeeded, failed int64) {
	var ok, bad atomic.Int64

	var g errgroup.Group
	g.SetLimit(b.opts.ImportWorkers)
	for _, l := range leads {
		g.Go(func() error {
			if _, err := b.gateway.InsertLead(ctx, l); err != nil {
				b.logger.Warn("Failed to import lead", "name", l.Name, "error", err)
				bad.Add(1)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	succeeded, failed = ok.Load(), bad.Load()
	kind := ToastSuccess
	if succeeded == 0 {
		kind = ToastError
	}
	b.notify(kind, fmt.Sprintf("Importação: %d sucessos, %d falhas", succeeded, failed))
	b.logger.Info("Import finished", "succeeded", succeeded, "failed", failed)

	_ = b.Load(ctx)
	return succeeded, failed
}

// Export writes every lead as CSV to w.
func (b *Board) Export(ctx context.Context, w io.Writer) error {
	leads, err := b.gateway.FetchLeads(ctx)
	if err != nil {
		b.logger.Error("Failed to fetch leads for export", "error", err)
		b.notify(ToastError, "Erro ao carregar leads")
		return err
	}
	if err := export.Write(w, leads); err != nil {
		if errors.Is(err, export.ErrNothingToExport) {
			b.notify(ToastError, "Nenhum dado para exportar")
		}
		return err
	}
	b.notify(ToastSuccess, "Download iniciado!")
	return nil
}

// --- Drag and drop ---

// DragStart captures the card for id. Cards without handlers are ignored.
func (b *Board) DragStart(id kanban.LeadID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	card, ok := b.renderer.Card(id)
	if !ok || !card.Attached() {
		return false
	}
	card.OnDragStart()
	return true
}

// DragOver highlights a column; false means the drop is not allowed.
func (b *Board) DragOver(status kanban.Status) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drag.Over(status)
}

// DragLeave clears a column highlight.
func (b *Board) DragLeave(status kanban.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drag.Leave(status)
}

// DragEnd finishes the gesture.
func (b *Board) DragEnd() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drag.End()
}

// Pointer feeds the pointer position for edge scrolling.
func (b *Board) Pointer(y, top, bottom float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drag.Pointer(y, top, bottom)
}

// Drop moves the dragged card to status and persists the change. The view
// is updated first and is not rolled back if the remote call fails.
func (b *Board) Drop(ctx context.Context, status kanban.Status) error {
	b.mu.Lock()
	intent, ok := b.drag.Drop(status)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return b.persistDrop(ctx, intent)
}

// DropCard is Drop for a named card. It does not depend on DragStart having
// been seen, so a drop that arrives after the gesture ended still lands.
func (b *Board) DropCard(ctx context.Context, id kanban.LeadID, status kanban.Status) error {
	b.mu.Lock()
	intent, ok := b.drag.DropCard(id, status)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return b.persistDrop(ctx, intent)
}

func (b *Board) persistDrop(ctx context.Context, intent DropIntent) error {
	if err := b.gateway.UpdateLeadStatus(ctx, intent.ID, intent.To, b.userID); err != nil {
		b.logger.Error("Failed to update lead status", "lead", intent.ID, "from", intent.From, "to", intent.To, "error", err)
		b.notify(ToastError, "Falha ao atualizar status")
		return err
	}
	b.notify(ToastSuccess, "Status atualizado")
	return nil
}

// DragState returns the drag phase.
func (b *Board) DragState() DragState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drag.State()
}

func (b *Board) scrollBy(dy int) {
	b.patches.Publish(Patch{Kind: PatchScroll, Delta: dy})
}

// --- View ---

// Modal returns the board's confirmation modal.
func (b *Board) Modal() *Modal {
	return b.modal
}

// View returns the board as currently rendered.
func (b *Board) View() View {
	b.mu.Lock()
	v := View{Columns: b.renderer.View(), Filter: b.filterState}
	b.mu.Unlock()

	if m, ok := b.modal.Current(); ok {
		v.Modal = &m
	}
	return v
}

// Leads returns a copy of the store.
func (b *Board) Leads() []kanban.Lead {
	return b.store.All()
}

// Counts returns the number of cards in each column.
func (b *Board) Counts() map[kanban.Status]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.renderer.Counts()
}

// Column returns the lead ids rendered in a column.
func (b *Board) Column(status kanban.Status) []kanban.LeadID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.renderer.Column(status)
}

// Patches subscribes to the board's view mutations.
func (b *Board) Patches() (<-chan Patch, func()) {
	return b.patches.Subscribe(b.opts.PatchBuffer)
}

// Notify shows a toast.
func (b *Board) Notify(kind ToastKind, message string) {
	b.notify(kind, message)
}

func (b *Board) notify(kind ToastKind, message string) {
	b.patches.Publish(Patch{Kind: PatchToast, Toast: &Toast{Message: message, Kind: kind}})
}

// Close stops the feed subscription and any auto-scroll, and closes the
// patch stream.
func (b *Board) Close() {
	b.mu.Lock()
	if b.cancelFeed != nil {
		b.cancelFeed()
		b.cancelFeed = nil
	}
	b.drag.End()
	b.mu.Unlock()

	b.wg.Wait()
	b.patches.Close()
}
