package board

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/madhatter5501/leadboard/internal/export"
	"github.com/madhatter5501/leadboard/internal/realtime"
	"github.com/madhatter5501/leadboard/kanban"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errRemote = errors.New("remote unavailable")

type statusCall struct {
	ID     kanban.LeadID
	Status kanban.Status
}

// fakeGateway is an in-memory kanban.Gateway with failure switches.
type fakeGateway struct {
	mu           sync.Mutex
	leads        []kanban.Lead
	statusCalls  []statusCall
	interactions []kanban.Interaction
	nextID       int

	fetchErr  error
	statusErr error
	deleteErr error
	failNames map[string]bool
}

func newFakeGateway(leads ...kanban.Lead) *fakeGateway {
	return &fakeGateway{leads: leads, nextID: 100}
}

func (g *fakeGateway) FetchLeads(context.Context) ([]kanban.Lead, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	return append([]kanban.Lead{}, g.leads...), nil
}

func (g *fakeGateway) InsertLead(_ context.Context, l kanban.Lead) (kanban.Lead, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failNames[l.Name] {
		return kanban.Lead{}, errRemote
	}
	g.nextID++
	l.ID = kanban.LeadID(fmt.Sprint(g.nextID))
	g.leads = append([]kanban.Lead{l}, g.leads...)
	return l, nil
}

func (g *fakeGateway) UpdateLead(_ context.Context, id kanban.LeadID, u kanban.LeadUpdate, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.leads {
		if g.leads[i].ID.Equal(id) {
			u.Apply(&g.leads[i])
			return nil
		}
	}
	return kanban.ErrNotFound
}

func (g *fakeGateway) UpdateLeadStatus(_ context.Context, id kanban.LeadID, s kanban.Status, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls = append(g.statusCalls, statusCall{id, s})
	return g.statusErr
}

func (g *fakeGateway) DeleteLead(_ context.Context, id kanban.LeadID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	for i := range g.leads {
		if g.leads[i].ID.Equal(id) {
			g.leads = append(g.leads[:i], g.leads[i+1:]...)
			return nil
		}
	}
	return kanban.ErrNotFound
}

func (g *fakeGateway) GetLead(_ context.Context, id kanban.LeadID) (*kanban.LeadDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, l := range g.leads {
		if l.ID.Equal(id) {
			return &kanban.LeadDetail{Lead: l, Interactions: []kanban.Interaction{}}, nil
		}
	}
	return nil, kanban.ErrNotFound
}

func (g *fakeGateway) AddInteraction(_ context.Context, in kanban.Interaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.interactions = append(g.interactions, in)
	return nil
}

func (g *fakeGateway) StatusCalls() []statusCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]statusCall{}, g.statusCalls...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func lead(id string, name string, status kanban.Status, age time.Duration) kanban.Lead {
	return kanban.Lead{
		ID:        kanban.LeadID(id),
		Name:      name,
		Status:    status,
		Source:    kanban.SourceManual,
		CreatedAt: time.Now().Add(-age),
	}
}

// newTestBoard loads a board over gw and subscribes to its patches.
func newTestBoard(t *testing.T, gw *fakeGateway) (*Board, <-chan Patch) {
	t.Helper()
	b := New(gw, "user-1", Options{}, quietLogger())
	patches, cancel := b.Patches()
	t.Cleanup(func() {
		cancel()
		b.Close()
	})
	require.NoError(t, b.Load(context.Background()))
	return b, patches
}

// drain returns the patches emitted so far.
func drain(ch <-chan Patch) []Patch {
	var out []Patch
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, p)
		default:
			return out
		}
	}
}

func toasts(patches []Patch) []string {
	var msgs []string
	for _, p := range patches {
		if p.Kind == PatchToast {
			msgs = append(msgs, p.Toast.Message)
		}
	}
	return msgs
}

func TestLoadRendersColumnsNewestFirst(t *testing.T) {
	gw := newFakeGateway(
		lead("1", "Ana", kanban.StatusNew, time.Hour),
		lead("2", "Bruno", kanban.StatusNew, 2*time.Hour),
		lead("3", "Carla", kanban.StatusProposal, time.Hour),
		lead("4", "Ghost", "won", time.Hour),
	)
	b, patches := newTestBoard(t, gw)

	assert.Equal(t, []kanban.LeadID{"1", "2"}, b.Column(kanban.StatusNew))
	assert.Equal(t, []kanban.LeadID{"3"}, b.Column(kanban.StatusProposal))
	assert.Equal(t, map[kanban.Status]int{
		kanban.StatusNew: 2, kanban.StatusContacted: 0, kanban.StatusProposal: 1, kanban.StatusClosed: 0,
	}, b.Counts())

	got := drain(patches)
	require.NotEmpty(t, got)
	assert.Equal(t, PatchReplaceBoard, got[0].Kind)
	assert.Contains(t, got[0].Columns[ColumnID(kanban.StatusNew)], `data-id="1"`)
	assert.Contains(t, got[0].Columns[ColumnID(kanban.StatusNew)], `data-status="novo"`)
	assert.Equal(t, PatchCounts, got[1].Kind)
	assert.Equal(t, 2, got[1].Counts["count-novo"])
}

func TestLoadErrorShowsEmptyBoard(t *testing.T) {
	gw := newFakeGateway(lead("1", "Ana", kanban.StatusNew, time.Hour))
	b, patches := newTestBoard(t, gw)
	drain(patches)

	gw.fetchErr = errRemote
	assert.ErrorIs(t, b.Load(context.Background()), errRemote)
	assert.Empty(t, b.Column(kanban.StatusNew))
	assert.Contains(t, toasts(drain(patches)), "Erro ao carregar leads")
}

func TestDropMovesCardAndPersistsOnce(t *testing.T) {
	gw := newFakeGateway(lead("5", "Lucas", kanban.StatusNew, time.Hour))
	b, patches := newTestBoard(t, gw)
	drain(patches)

	require.True(t, b.DragStart("5"))
	assert.Equal(t, DragDragging, b.DragState())
	require.True(t, b.DragOver(kanban.StatusClosed))
	assert.Equal(t, DragHoverTarget, b.DragState())

	require.NoError(t, b.Drop(context.Background(), kanban.StatusClosed))
	b.DragEnd()

	assert.Empty(t, b.Column(kanban.StatusNew))
	assert.Equal(t, []kanban.LeadID{"5"}, b.Column(kanban.StatusClosed))
	assert.Equal(t, 0, b.Counts()[kanban.StatusNew])
	assert.Equal(t, 1, b.Counts()[kanban.StatusClosed])
	assert.Equal(t, kanban.StatusClosed, b.Leads()[0].Status)
	assert.Equal(t, []statusCall{{"5", kanban.StatusClosed}}, gw.StatusCalls())
	assert.Equal(t, DragIdle, b.DragState())

	got := drain(patches)
	assert.Contains(t, toasts(got), "Status atualizado")

	var moved bool
	for _, p := range got {
		if p.Kind == PatchMoveCard {
			moved = true
			assert.Equal(t, "col-fechado", p.Column)
		}
	}
	assert.True(t, moved)
}

func TestDropOnSameColumnIsNoop(t *testing.T) {
	gw := newFakeGateway(lead("1", "Ana", kanban.StatusContacted, time.Hour))
	b, patches := newTestBoard(t, gw)
	drain(patches)

	require.True(t, b.DragStart("1"))
	require.NoError(t, b.Drop(context.Background(), kanban.StatusContacted))
	b.DragEnd()

	assert.Empty(t, gw.StatusCalls())
	assert.Equal(t, []kanban.LeadID{"1"}, b.Column(kanban.StatusContacted))
	assert.Empty(t, toasts(drain(patches)))
}

func TestDropWithoutDragIsNoop(t *testing.T) {
	gw := newFakeGateway(lead("1", "Ana", kanban.StatusNew, time.Hour))
	b, _ := newTestBoard(t, gw)

	require.NoError(t, b.Drop(context.Background(), kanban.StatusClosed))
	assert.Empty(t, gw.StatusCalls())
	assert.False(t, b.DragStart("missing"))
}

func TestDropFailureKeepsOptimisticMove(t *testing.T) {
	gw := newFakeGateway(lead("1", "Ana", kanban.StatusNew, time.Hour))
	gw.statusErr = errRemote
	b, patches := newTestBoard(t, gw)
	drain(patches)

	require.True(t, b.DragStart("1"))
	err := b.Drop(context.Background(), kanban.StatusProposal)
	assert.ErrorIs(t, err, errRemote)

	assert.Equal(t, []kanban.LeadID{"1"}, b.Column(kanban.StatusProposal))
	assert.Contains(t, toasts(drain(patches)), "Falha ao atualizar status")
}

func TestDropUsesStatusAfterRealtimeMove(t *testing.T) {
	gw := newFakeGateway(lead("5", "Lucas", kanban.StatusNew, time.Hour))
	b, patches := newTestBoard(t, gw)
	drain(patches)

	require.True(t, b.DragStart("5"))
	moved := lead("5", "Lucas", kanban.StatusClosed, time.Hour)
	require.True(t, b.Apply(kanban.ChangeEvent{Type: kanban.ChangeUpdate, New: &moved}))

	require.NoError(t, b.Drop(context.Background(), kanban.StatusClosed))
	b.DragEnd()

	assert.Empty(t, gw.StatusCalls())
	assert.Equal(t, []kanban.LeadID{"5"}, b.Column(kanban.StatusClosed))
	assert.Empty(t, toasts(drain(patches)))
}

func TestDropBackToOriginalColumnAfterRealtimeMove(t *testing.T) {
	gw := newFakeGateway(lead("7", "Rita", kanban.StatusNew, time.Hour))
	b, patches := newTestBoard(t, gw)
	drain(patches)

	require.True(t, b.DragStart("7"))
	moved := lead("7", "Rita", kanban.StatusClosed, time.Hour)
	require.True(t, b.Apply(kanban.ChangeEvent{Type: kanban.ChangeUpdate, New: &moved}))

	require.NoError(t, b.Drop(context.Background(), kanban.StatusNew))
	b.DragEnd()

	assert.Equal(t, []statusCall{{"7", kanban.StatusNew}}, gw.StatusCalls())
	assert.Equal(t, []kanban.LeadID{"7"}, b.Column(kanban.StatusNew))
	assert.Empty(t, b.Column(kanban.StatusClosed))
	assert.Equal(t, kanban.StatusNew, b.Leads()[0].Status)
}

func TestDropCardAfterDragEnded(t *testing.T) {
	gw := newFakeGateway(lead("5", "Lucas", kanban.StatusNew, time.Hour))
	b, patches := newTestBoard(t, gw)
	drain(patches)

	// The browser may deliver dragend before the drop request.
	require.True(t, b.DragStart("5"))
	require.True(t, b.DragOver(kanban.StatusClosed))
	b.DragEnd()
	require.NoError(t, b.DropCard(context.Background(), "5", kanban.StatusClosed))

	assert.Equal(t, []statusCall{{"5", kanban.StatusClosed}}, gw.StatusCalls())
	assert.Equal(t, []kanban.LeadID{"5"}, b.Column(kanban.StatusClosed))
	assert.Equal(t, DragIdle, b.DragState())
	assert.Contains(t, toasts(drain(patches)), "Status atualizado")
}

func TestDropCardUnknownLeadIsNoop(t *testing.T) {
	gw := newFakeGateway(lead("5", "Lucas", kanban.StatusNew, time.Hour))
	b, _ := newTestBoard(t, gw)

	require.NoError(t, b.DropCard(context.Background(), "missing", kanban.StatusClosed))
	require.NoError(t, b.DropCard(context.Background(), "5", "won"))
	assert.Empty(t, gw.StatusCalls())
	assert.Equal(t, []kanban.LeadID{"5"}, b.Column(kanban.StatusNew))
	assert.Equal(t, DragIdle, b.DragState())
}

func TestDragOverUnknownColumnRejected(t *testing.T) {
	b, _ := newTestBoard(t, newFakeGateway())
	assert.False(t, b.DragOver("won"))
}

func TestAutoScrollStopsOnEnd(t *testing.T) {
	gw := newFakeGateway(lead("1", "Ana", kanban.StatusNew, time.Hour))
	b, patches := newTestBoard(t, gw)
	drain(patches)

	// Not dragging: no scrolling
	b.Pointer(10, 0, 800)
	assert.False(t, b.scroller.Running())

	require.True(t, b.DragStart("1"))
	b.Pointer(750, 0, 800)
	require.True(t, b.scroller.Running())

	require.Eventually(t, func() bool {
		for _, p := range drain(patches) {
			if p.Kind == PatchScroll {
				return p.Delta == DefaultScrollSpeed
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	// Leaving the edge band stops it
	b.Pointer(400, 0, 800)
	assert.False(t, b.scroller.Running())

	b.Pointer(20, 0, 800)
	require.True(t, b.scroller.Running())
	b.DragEnd()
	assert.False(t, b.scroller.Running())
}

func TestAutoScrollerDirection(t *testing.T) {
	deltas := make(chan int, 16)
	a := NewAutoScroller(ScrollerFunc(func(dy int) {
		select {
		case deltas <- dy:
		default:
		}
	}), 0, 0, time.Millisecond)
	defer a.Stop()

	a.Update(50, 0, 1000)
	assert.Equal(t, -DefaultScrollSpeed, <-deltas)
	a.Update(990, 0, 1000)
	require.Eventually(t, func() bool { return <-deltas == DefaultScrollSpeed }, time.Second, time.Millisecond)
	a.Stop()
	assert.False(t, a.Running())
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	gw := newFakeGateway(lead("1", "Ana", kanban.StatusNew, time.Hour), lead("2", "Bruno", kanban.StatusNew, time.Hour))
	b, patches := newTestBoard(t, gw)
	drain(patches)

	require.NoError(t, b.RequestDelete("1"))
	view, open := b.Modal().Current()
	require.True(t, open)
	assert.Equal(t, "Excluir Lead", view.Title)
	assert.Len(t, b.Leads(), 2, "nothing deleted before confirm")

	require.NoError(t, b.Modal().Confirm(context.Background()))
	_, open = b.Modal().Current()
	assert.False(t, open)
	assert.Equal(t, []kanban.LeadID{"2"}, b.Column(kanban.StatusNew))
	assert.Contains(t, toasts(drain(patches)), "Lead excluído permanentemente")

	assert.ErrorIs(t, b.RequestDelete("1"), kanban.ErrNotFound)
}

func TestDeleteFailureKeepsModalOpen(t *testing.T) {
	gw := newFakeGateway(lead("1", "Ana", kanban.StatusNew, time.Hour))
	gw.deleteErr = errRemote
	b, _ := newTestBoard(t, gw)

	require.NoError(t, b.RequestDelete("1"))
	assert.ErrorIs(t, b.Modal().Confirm(context.Background()), errRemote)

	_, open := b.Modal().Current()
	assert.True(t, open)
	assert.Equal(t, []kanban.LeadID{"1"}, b.Column(kanban.StatusNew))

	b.Modal().Cancel()
	_, open = b.Modal().Current()
	assert.False(t, open)
	assert.ErrorIs(t, b.Modal().Confirm(context.Background()), ErrNoModal)
}

func TestCreateLead(t *testing.T) {
	gw := newFakeGateway()
	b, patches := newTestBoard(t, gw)
	drain(patches)

	_, err := b.CreateLead(context.Background(), kanban.Lead{Name: "   "})
	assert.ErrorIs(t, err, kanban.ErrValidation)
	assert.Contains(t, toasts(drain(patches)), "Nome é obrigatório")
	assert.Empty(t, b.Leads())

	created, err := b.CreateLead(context.Background(), kanban.Lead{Name: "Ana", Status: kanban.StatusClosed})
	require.NoError(t, err)
	assert.Equal(t, kanban.StatusNew, created.Status)
	assert.Equal(t, kanban.SourceManual, created.Source)
	assert.Equal(t, "user-1", created.UserID)
	assert.Equal(t, []kanban.LeadID{created.ID}, b.Column(kanban.StatusNew))
	assert.Contains(t, toasts(drain(patches)), "Lead criado com sucesso!")
}

func TestUpdateLeadReplacesCard(t *testing.T) {
	gw := newFakeGateway(lead("1", "Ana", kanban.StatusContacted, time.Hour))
	b, patches := newTestBoard(t, gw)
	drain(patches)

	company := "ACME"
	require.NoError(t, b.UpdateLead(context.Background(), "1", kanban.LeadUpdate{Company: &company}))

	card, ok := b.renderer.Card("1")
	require.True(t, ok)
	assert.Contains(t, card.HTML, "ACME")
	assert.True(t, card.Attached())

	empty := ""
	assert.ErrorIs(t, b.UpdateLead(context.Background(), "1", kanban.LeadUpdate{Name: &empty}), kanban.ErrValidation)
}

func TestAddInteraction(t *testing.T) {
	gw := newFakeGateway(lead("1", "Ana", kanban.StatusNew, time.Hour))
	b, _ := newTestBoard(t, gw)

	require.NoError(t, b.AddInteraction(context.Background(), "1", kanban.InteractionCall, " Ligou "))
	require.Len(t, gw.interactions, 1)
	assert.Equal(t, "Ligou", gw.interactions[0].Description)
	assert.Equal(t, "user-1", gw.interactions[0].UserID)

	assert.ErrorIs(t, b.AddInteraction(context.Background(), "1", "fax", ""), kanban.ErrValidation)
}

func TestImportFlow(t *testing.T) {
	gw := newFakeGateway()
	gw.failNames = map[string]bool{"Bruno": true}
	b, patches := newTestBoard(t, gw)
	drain(patches)

	csv := "Nome,Email\nAna,ana@x.com\nBruno,b@x.com\nCarla,\n"
	n, err := b.PrepareImport("leads.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	view, open := b.Modal().Current()
	require.True(t, open)
	assert.Equal(t, "3 leads identificados", view.Body)

	require.NoError(t, b.Modal().Confirm(context.Background()))
	assert.Len(t, b.Column(kanban.StatusNew), 2)
	for _, l := range b.Leads() {
		assert.Equal(t, kanban.SourceImport, l.Source)
		assert.Equal(t, "user-1", l.UserID)
	}
	assert.Contains(t, toasts(drain(patches)), "Importação: 2 sucessos, 1 falhas")
}

func TestImportEmptyFile(t *testing.T) {
	b, patches := newTestBoard(t, newFakeGateway())
	drain(patches)

	_, err := b.PrepareImport("leads.csv", strings.NewReader("Nome\n"))
	require.Error(t, err)
	_, open := b.Modal().Current()
	assert.False(t, open)
	assert.Contains(t, toasts(drain(patches)), "O arquivo está vazio")
}

func TestExport(t *testing.T) {
	gw := newFakeGateway()
	b, patches := newTestBoard(t, gw)
	drain(patches)

	var buf bytes.Buffer
	assert.ErrorIs(t, b.Export(context.Background(), &buf), export.ErrNothingToExport)
	assert.Zero(t, buf.Len())
	assert.Contains(t, toasts(drain(patches)), "Nenhum dado para exportar")

	gw.leads = []kanban.Lead{lead("1", "Ana", kanban.StatusNew, time.Hour)}
	require.NoError(t, b.Export(context.Background(), &buf))
	assert.True(t, strings.HasPrefix(buf.String(), export.Header))
}

func TestFilterRerendersFromStore(t *testing.T) {
	gw := newFakeGateway(
		lead("1", "Ana", kanban.StatusNew, time.Hour),
		lead("2", "Bruno", kanban.StatusNew, 40*24*time.Hour),
	)
	b, _ := newTestBoard(t, gw)

	b.SetFilter(kanban.FilterState{DateRange: kanban.DateRange30Days})
	assert.Equal(t, []kanban.LeadID{"1"}, b.Column(kanban.StatusNew))
	assert.Equal(t, kanban.SortDateDesc, b.Filter().Sort)
	assert.Len(t, b.Leads(), 2, "filtering never touches the store")

	b.SetFilter(kanban.FilterState{Search: "bru"})
	assert.Equal(t, []kanban.LeadID{"2"}, b.Column(kanban.StatusNew))

	b.ResetFilter()
	assert.Len(t, b.Column(kanban.StatusNew), 2)
}

func TestSubscribeReconcilesFeed(t *testing.T) {
	gw := newFakeGateway(lead("1", "Ana", kanban.StatusNew, time.Hour))
	b, _ := newTestBoard(t, gw)

	feed := realtime.NewMemoryFeed(quietLogger())
	defer feed.Close()
	require.NoError(t, b.Subscribe(context.Background(), feed))

	ctx := context.Background()
	inserted := lead("7", "Nova", kanban.StatusContacted, 0)
	require.NoError(t, feed.Publish(ctx, kanban.ChangeEvent{Type: kanban.ChangeInsert, New: &inserted}))
	require.NoError(t, feed.Publish(ctx, kanban.ChangeEvent{Type: kanban.ChangeDelete, Old: &kanban.Lead{ID: "1"}}))

	require.Eventually(t, func() bool {
		return len(b.Column(kanban.StatusContacted)) == 1 && len(b.Column(kanban.StatusNew)) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestViewIncludesOpenModal(t *testing.T) {
	gw := newFakeGateway(lead("1", "Ana", kanban.StatusNew, time.Hour))
	b, _ := newTestBoard(t, gw)

	v := b.View()
	require.Len(t, v.Columns, 4)
	assert.Equal(t, "Novo", v.Columns[0].Label)
	assert.Len(t, v.Columns[0].Cards, 1)
	assert.Nil(t, v.Modal)

	require.NoError(t, b.RequestDelete("1"))
	assert.NotNil(t, b.View().Modal)
}
