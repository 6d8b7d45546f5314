package display

import (
	"context"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// TerminalDocument renders the page in a terminal. Text elements are text
// views, value elements are input fields. Element state is kept in memory so
// snapshots do not touch the widgets.
type TerminalDocument struct {
	mem    *MemoryDocument
	app    *tview.Application
	root   *tview.Flex
	texts  map[string]*tview.TextView
	inputs map[string]*tview.InputField

	mu      sync.Mutex
	running bool
	dirty   chan struct{}
}

func NewTerminalDocument(title string, defs []ElementDef) *TerminalDocument {
	d := &TerminalDocument{
		mem:    NewMemoryDocument(defs),
		app:    tview.NewApplication(),
		texts:  make(map[string]*tview.TextView),
		inputs: make(map[string]*tview.InputField),
		dirty:  make(chan struct{}, 1),
	}
	d.root = tview.NewFlex().SetDirection(tview.FlexRow)
	d.root.SetBorder(true).SetTitle(" " + title + " ").SetTitleAlign(tview.AlignLeft)

	for _, s := range defs {
		switch s.Kind {
		case KindValue:
			in := tview.NewInputField().
				SetLabel(s.ID + ": ").
				SetFieldWidth(12).
				SetFieldBackgroundColor(tcell.ColorDarkSlateGray)
			d.inputs[s.ID] = in
			d.root.AddItem(in, 1, 0, false)
		default:
			tv := tview.NewTextView().SetWrap(true)
			tv.SetBorder(true).SetTitle(" " + s.ID + " ").SetTitleAlign(tview.AlignLeft)
			d.texts[s.ID] = tv
			d.root.AddItem(tv, 3, 0, false)
		}
	}
	d.root.AddItem(tview.NewBox(), 0, 1, false)
	return d
}

// SetScreen replaces the terminal screen, e.g. with a simulation screen.
func (d *TerminalDocument) SetScreen(screen tcell.Screen) {
	d.app.SetScreen(screen)
}

// Run draws the page until ctx is cancelled or the user quits with Ctrl-C.
// While it runs, widgets are only touched from the UI goroutine.
func (d *TerminalDocument) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.app.SetRoot(d.root, true)
	// route Ctrl-C through cancel so only the refresh loop stops the app
	d.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyCtrlC {
			cancel()
			return nil
		}
		return ev
	})

	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				// queued so a stop that arrives before the event loop starts is not lost
				d.app.QueueUpdate(d.app.Stop)
				return
			case <-stop:
				return
			case <-d.dirty:
				d.app.QueueUpdateDraw(d.sync)
			}
		}
	}()
	err := d.app.Run()
	close(stop)

	d.mu.Lock()
	d.running = false
	d.sync()
	d.mu.Unlock()
	return err
}

func (d *TerminalDocument) SetText(ctx context.Context, id, text string) error {
	if err := d.mem.SetText(ctx, id, text); err != nil {
		return err
	}
	d.refresh()
	return nil
}

func (d *TerminalDocument) SetValue(ctx context.Context, id, value string) error {
	if err := d.mem.SetValue(ctx, id, value); err != nil {
		return err
	}
	d.refresh()
	return nil
}

// refresh brings the widgets up to date: directly when the app is not
// running, otherwise by waking the refresh loop. It never blocks on tview.
func (d *TerminalDocument) refresh() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		d.sync()
		return
	}
	select {
	case d.dirty <- struct{}{}:
	default:
	}
}

// sync copies the element state into the widgets.
func (d *TerminalDocument) sync() {
	elements, _ := d.mem.Snapshot(context.Background())
	for _, e := range elements {
		if tv, ok := d.texts[e.ID]; ok {
			tv.SetText(e.Text)
		}
		if in, ok := d.inputs[e.ID]; ok {
			in.SetText(e.Value)
		}
	}
}

func (d *TerminalDocument) Element(ctx context.Context, id string) (Element, error) {
	return d.mem.Element(ctx, id)
}

func (d *TerminalDocument) Snapshot(ctx context.Context) ([]Element, error) {
	return d.mem.Snapshot(ctx)
}

var _ Document = (*TerminalDocument)(nil)
