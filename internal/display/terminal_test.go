package display

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalDocumentUpdatesWidgets(t *testing.T) {
	ctx := context.Background()
	doc := NewTerminalDocument("waterheater", ControlElements())

	require.NoError(t, doc.SetText(ctx, ResultElement, "Temperature changed to 112 degrees"))
	require.NoError(t, doc.SetValue(ctx, CurrentTemperatureElement, "112"))

	assert.Equal(t, "Temperature changed to 112 degrees", doc.texts[ResultElement].GetText(true))
	assert.Equal(t, "112", doc.inputs[CurrentTemperatureElement].GetText())

	e, err := doc.Element(ctx, CurrentTemperatureElement)
	require.NoError(t, err)
	assert.Equal(t, "112", e.Value)

	assert.ErrorIs(t, doc.SetText(ctx, "status", "x"), ErrElementNotFound)
}

func TestTerminalDocumentDraws(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	defer screen.Fini()
	screen.SetSize(60, 12)

	doc := NewTerminalDocument("waterheater", ControlElements())
	require.NoError(t, doc.SetText(context.Background(), ResultElement, "Connected"))

	doc.root.SetRect(0, 0, 60, 12)
	doc.root.Draw(screen)

	ch, _, _, _ := screen.GetContent(0, 0)
	assert.NotEqual(t, ' ', ch, "expected border at origin")
}

func TestTerminalDocumentRunLifecycle(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	screen.SetSize(60, 12)
	doc := NewTerminalDocument("waterheater", ControlElements())
	doc.SetScreen(screen)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- doc.Run(ctx) }()

	require.Eventually(t, func() bool {
		doc.mu.Lock()
		defer doc.mu.Unlock()
		return doc.running
	}, 5*time.Second, 10*time.Millisecond)

	// far more updates than tview queues; none of them may block
	updated := make(chan struct{})
	go func() {
		defer close(updated)
		for i := 0; i <= 500; i++ {
			doc.SetValue(context.Background(), CurrentTemperatureElement, strconv.Itoa(i))
		}
	}()
	select {
	case <-updated:
	case <-time.After(5 * time.Second):
		t.Fatal("updates blocked while the page was running")
	}

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, "500", doc.inputs[CurrentTemperatureElement].GetText())

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		doc.SetText(context.Background(), ResultElement, "Motor off")
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("update blocked after the page stopped")
	}
	assert.Equal(t, "Motor off", doc.texts[ResultElement].GetText(true))
}

func TestTerminalDocumentCancelBeforeRun(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	doc := NewTerminalDocument("waterheater", ControlElements())
	doc.SetScreen(screen)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- doc.Run(ctx) }()

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run ignored a cancelled context")
	}
}
