//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"dashpoint/internal/backend"
	"dashpoint/internal/crash"
	"dashpoint/internal/export"
	"dashpoint/internal/geometry"
	"dashpoint/internal/gesture"
	applog "dashpoint/internal/log"
	"dashpoint/internal/storage"
	"dashpoint/internal/telemetry"
	"dashpoint/internal/undo"
	"dashpoint/internal/version"

	json "github.com/goccy/go-json"
)

const (
	mousePointer = 1
	// wheelStep converts fyne scroll units to DOM-style wheel pixels.
	wheelStep = 4.0
)

// Run starts the desktop canvas editor for one collection. Without a
// collection id a picker lists the user's collections first.
func Run(opts RunOptions) error {
	cfg := opts.Config
	applog.Init(cfg.Logging.LogOptions())
	l := applog.WithComponent("ui")
	l.Info("starting UI", slog.String("version", version.String()))

	tel := telemetry.New(telemetry.FromEnv().WithSettings(cfg.General.TelemetryOptIn, cfg.General.TelemetryEndpoint))
	telemetry.SetDefault(tel)
	defer tel.Close()
	ch := &crash.Handler{Telemetry: tel}
	defer ch.Recover()
	defer tel.Flush(context.Background())

	client := backend.NewClientWithOptions(cfg.Backend.BaseURL, opts.Token, backend.ClientOptions{
		Timeout:     cfg.Backend.Timeout(),
		TLSInsecure: cfg.Backend.TLSInsecure,
	})

	cachePath := cfg.Cache.Path
	if cachePath == "" {
		p, err := storage.DefaultPath()
		if err != nil {
			return err
		}
		cachePath = p
	}
	cache, err := storage.OpenCache(cachePath)
	if err != nil {
		return fmt.Errorf("open layout cache: %w", err)
	}
	defer func() { _ = cache.Close() }()

	fyneApp := app.NewWithID("dev.dashpoint")
	w := fyneApp.NewWindow("Dashpoint")
	prefs := fyneApp.Preferences()
	winW := max(prefs.IntWithFallback("window.width", 1280), 800)
	winH := max(prefs.IntWithFallback("window.height", 800), 600)
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	status := widget.NewLabel("Ready")
	history := undo.NewManager(undo.Config{MaxPerCollection: 200, MinInterval: 300 * time.Millisecond})

	var sess *Session
	closeSession := func() {
		if sess == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sess.Close(ctx); err != nil {
			l.Warn("layout flush on close timed out", slog.Any("err", err))
		}
		sess = nil
	}

	openCollection := func(id string) {
		closeSession()
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.Timeout())
		defer cancel()
		s, err := Open(ctx, id, OpenOptions{
			Backend:  client,
			Cache:    cache,
			Canvas:   cfg.Canvas,
			History:  history,
			Observer: tel,
			Logger:   l,
		})
		if err != nil {
			l.Error("open collection failed", slog.String("collection", id), slog.Any("err", err))
			dialog.ShowError(err, w)
			return
		}
		sess = s
		ch.Flushers = []crash.Flusher{s.Store}
		addRecentCollection(prefs, id)
		cc := NewCollectionCanvas(s.Board, s.Labels())
		attachKeys(w, cc)
		w.SetTitle("Dashpoint - " + s.Collection.Name)
		w.SetContent(container.NewBorder(buildToolbar(w, s, cc, status), status, nil, nil, cc))
		status.SetText(fmt.Sprintf("%d items, layout from %s", s.Store.Len(), s.Source))
	}

	flushOnBackground(fyneApp.Lifecycle(), func() *Session { return sess })

	stop := make(chan struct{})
	go func() {
		t := time.NewTicker(time.Second)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				fyne.Do(func() {
					if sess != nil {
						status.SetText(fmt.Sprintf("%d items, writer %s", sess.Store.Len(), sess.Store.WriterState()))
					}
				})
			}
		}
	}()

	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		close(stop)
		closeSession()
		w.Close()
	})

	if id := strings.TrimSpace(opts.CollectionID); id != "" {
		openCollection(id)
	} else {
		w.SetContent(buildPicker(w, client, prefs, openCollection, l))
	}

	w.ShowAndRun()
	return nil
}

// flushOnBackground writes pending layout changes out as soon as the app
// leaves the foreground, since the OS may kill it without a close event.
func flushOnBackground(lc fyne.Lifecycle, current func() *Session) {
	lc.SetOnExitedForeground(func() {
		if s := current(); s != nil {
			s.Store.Flush()
		}
	})
}

// buildPicker lists the user's collections, most recently opened first.
func buildPicker(w fyne.Window, client *backend.Client, prefs fyne.Preferences, open func(string), l *slog.Logger) fyne.CanvasObject {
	type entry struct{ id, name string }
	var entries []entry
	recent := loadRecentCollections(prefs)
	seen := map[string]bool{}
	for _, id := range recent {
		entries = append(entries, entry{id: id, name: id + " (recent)"})
		seen[id] = true
	}

	list := widget.NewList(
		func() int { return len(entries) },
		func() fyne.CanvasObject { return widget.NewLabel("") },
		func(i widget.ListItemID, o fyne.CanvasObject) { o.(*widget.Label).SetText(entries[i].name) },
	)
	list.OnSelected = func(i widget.ListItemID) { open(entries[i].id) }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	page, err := client.ListCollections(ctx, backend.ListQuery{Limit: 100})
	if err != nil {
		l.Warn("list collections failed", slog.Any("err", err))
		dialog.ShowError(err, w)
	} else {
		for _, c := range page.Collections {
			if seen[c.ID] {
				continue
			}
			entries = append(entries, entry{id: c.ID, name: c.Name})
		}
	}
	list.Refresh()
	return container.NewBorder(widget.NewLabel("Open a collection"), nil, nil, nil, list)
}

func buildToolbar(w fyne.Window, s *Session, cc *CollectionCanvas, status *widget.Label) fyne.CanvasObject {
	return widget.NewToolbar(
		widget.NewToolbarAction(theme.ContentUndoIcon(), func() {
			if s.Store.Undo() {
				cc.Refresh()
			}
		}),
		widget.NewToolbarAction(theme.ContentRedoIcon(), func() {
			if s.Store.Redo() {
				cc.Refresh()
			}
		}),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.ZoomFitIcon(), func() {
			s.Board.FitToContent()
			cc.Refresh()
		}),
		widget.NewToolbarAction(theme.ViewRestoreIcon(), func() {
			s.Board.Camera().Reset()
			s.Board.Recenter()
			cc.Refresh()
		}),
		widget.NewToolbarAction(theme.ViewRefreshIcon(), func() {
			dialog.ShowConfirm("Reset layout", "Place every card on the default grid?", func(ok bool) {
				if !ok {
					return
				}
				s.ResetLayout()
				cc.Refresh()
				status.SetText("Layout reset")
			}, w)
		}),
		widget.NewToolbarSpacer(),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), func() { showExportDialog(w, s, status) }),
	)
}

func showExportDialog(w fyne.Window, s *Session, status *widget.Label) {
	d := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
		if err != nil || wc == nil {
			return
		}
		path := wc.URI().Path()
		_ = wc.Close()
		format, err := export.FormatFromPath(path)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		ov, err := export.BuildOverview(s.Collection.Name, s.Store.Snapshot(), s.Labels(), export.DefaultMargin)
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		switch format {
		case "pdf":
			err = export.PDF(ov, path, export.PDFOptions{})
		case "png":
			err = export.PNG(ov, path, export.PNGOptions{Scale: 1})
		case "svg":
			err = export.WriteSVG(ov, path, export.SVGOptions{})
		}
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		status.SetText("Exported " + path)
	}, w)
	d.SetFileName(safeFileName(s.Collection.Name) + ".png")
	d.Show()
}

func safeFileName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "layout"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}

// attachKeys forwards window key events to the canvas.
func attachKeys(w fyne.Window, cc *CollectionCanvas) {
	dc, ok := w.Canvas().(desktop.Canvas)
	if !ok {
		return
	}
	dc.SetOnKeyDown(cc.KeyDown)
	dc.SetOnKeyUp(cc.KeyUp)
}

// CollectionCanvas draws a board and translates fyne input into gesture
// events for it.
type CollectionCanvas struct {
	widget.BaseWidget

	board  *Board
	labels map[string]string

	ctrl, meta, shift bool
	hover             geometry.Pt
}

var (
	_ desktop.Mouseable  = (*CollectionCanvas)(nil)
	_ desktop.Hoverable  = (*CollectionCanvas)(nil)
	_ desktop.Cursorable = (*CollectionCanvas)(nil)
	_ fyne.Draggable     = (*CollectionCanvas)(nil)
	_ fyne.Scrollable    = (*CollectionCanvas)(nil)
)

// NewCollectionCanvas returns a canvas widget for b. labels maps card keys
// to display titles.
func NewCollectionCanvas(b *Board, labels map[string]string) *CollectionCanvas {
	c := &CollectionCanvas{board: b, labels: labels}
	c.ExtendBaseWidget(c)
	return c
}

func pt(p fyne.Position) geometry.Pt { return geometry.Pt{X: float64(p.X), Y: float64(p.Y)} }

func (c *CollectionCanvas) event(k gesture.Kind, p fyne.Position) gesture.Event {
	return gesture.Event{
		Kind:      k,
		PointerID: mousePointer,
		Pos:       pt(p),
		Target:    gesture.TargetBackground,
		Ctrl:      c.ctrl,
		Meta:      c.meta,
	}
}

func (c *CollectionCanvas) dispatch(e gesture.Event) gesture.Result {
	res := c.board.Handle(e)
	c.Refresh()
	return res
}

// MouseDown starts a pan, drag or resize.
func (c *CollectionCanvas) MouseDown(e *desktop.MouseEvent) {
	ev := c.event(gesture.PointerDown, e.Position)
	switch e.Button {
	case desktop.MouseButtonSecondary:
		ev.Button = gesture.ButtonSecondary
	case desktop.MouseButtonTertiary:
		ev.Button = gesture.ButtonMiddle
	default:
		ev.Button = gesture.ButtonPrimary
	}
	c.ctrl = e.Modifier&fyne.KeyModifierControl != 0
	c.meta = e.Modifier&fyne.KeyModifierSuper != 0
	ev.Ctrl, ev.Meta = c.ctrl, c.meta
	c.dispatch(ev)
}

// MouseUp ends the running gesture.
func (c *CollectionCanvas) MouseUp(e *desktop.MouseEvent) {
	c.dispatch(c.event(gesture.PointerUp, e.Position))
}

// Dragged is a pointer move while a button is held.
func (c *CollectionCanvas) Dragged(e *fyne.DragEvent) {
	c.hover = pt(e.Position)
	c.dispatch(c.event(gesture.PointerMove, e.Position))
}

func (c *CollectionCanvas) DragEnd() {}

func (c *CollectionCanvas) MouseIn(e *desktop.MouseEvent) { c.hover = pt(e.Position) }

func (c *CollectionCanvas) MouseMoved(e *desktop.MouseEvent) {
	c.hover = pt(e.Position)
	if c.board.Cursor() != gesture.CursorDefault {
		c.dispatch(c.event(gesture.PointerMove, e.Position))
	}
}

func (c *CollectionCanvas) MouseOut() {}

// Scrolled zooms with Ctrl or Cmd held and pans otherwise.
func (c *CollectionCanvas) Scrolled(e *fyne.ScrollEvent) {
	if c.ctrl || c.meta {
		ev := c.event(gesture.Wheel, e.Position)
		ev.DeltaY = -float64(e.Scrolled.DY) * wheelStep
		c.dispatch(ev)
		return
	}
	cam := c.board.Camera()
	st := cam.State()
	st.Offset = st.Offset.Add(geometry.Pt{X: float64(e.Scrolled.DX), Y: float64(e.Scrolled.DY)})
	cam.Set(st)
	c.Refresh()
}

// Cursor maps the board's hint to a desktop cursor.
func (c *CollectionCanvas) Cursor() desktop.Cursor {
	return desktopCursor(c.board.HoverCursor(c.hover))
}

func desktopCursor(hint string) desktop.Cursor {
	switch hint {
	case "n-resize", "s-resize":
		return desktop.VResizeCursor
	case "e-resize", "w-resize":
		return desktop.HResizeCursor
	case "ne-resize", "nw-resize", "se-resize", "sw-resize":
		return desktop.CrosshairCursor
	case "move", gesture.CursorGrab, gesture.CursorGrabbing:
		return desktop.PointerCursor
	default:
		return desktop.DefaultCursor
	}
}

// KeyDown tracks modifiers and forwards shortcuts.
func (c *CollectionCanvas) KeyDown(e *fyne.KeyEvent) {
	if c.trackModifier(e.Name, true) {
		return
	}
	if ev, ok := c.keyEvent(gesture.KeyDown, e.Name); ok {
		c.dispatch(ev)
	}
}

func (c *CollectionCanvas) KeyUp(e *fyne.KeyEvent) {
	if c.trackModifier(e.Name, false) {
		return
	}
	if ev, ok := c.keyEvent(gesture.KeyUp, e.Name); ok {
		c.dispatch(ev)
	}
}

func (c *CollectionCanvas) trackModifier(name fyne.KeyName, down bool) bool {
	switch name {
	case desktop.KeyControlLeft, desktop.KeyControlRight:
		c.ctrl = down
	case desktop.KeySuperLeft, desktop.KeySuperRight:
		c.meta = down
	case desktop.KeyShiftLeft, desktop.KeyShiftRight:
		c.shift = down
	default:
		return false
	}
	return true
}

func (c *CollectionCanvas) keyEvent(k gesture.Kind, name fyne.KeyName) (gesture.Event, bool) {
	ev := gesture.Event{Kind: k, Ctrl: c.ctrl, Meta: c.meta, Target: gesture.TargetBackground}
	switch {
	case name == fyne.KeySpace:
		ev.Key, ev.Code = " ", "Space"
	case len(name) == 1:
		key := strings.ToLower(string(name))
		if c.shift {
			key = strings.ToUpper(key)
		}
		ev.Key = key
	default:
		return ev, false
	}
	return ev, true
}

func (c *CollectionCanvas) MinSize() fyne.Size { return fyne.NewSize(400, 300) }

// CreateRenderer builds the card objects; they are re-laid out on every refresh.
func (c *CollectionCanvas) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 245, G: 246, B: 248, A: 255})
	r := &collectionRenderer{cc: c, bg: bg}
	r.sync()
	return r
}

type cardObjects struct {
	key   string
	rect  *canvas.Rectangle
	label *canvas.Text
}

type collectionRenderer struct {
	cc      *CollectionCanvas
	bg      *canvas.Rectangle
	cards   []cardObjects
	guides  []*canvas.Line
	objects []fyne.CanvasObject
}

func (r *collectionRenderer) Destroy()                     {}
func (r *collectionRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *collectionRenderer) MinSize() fyne.Size           { return r.cc.MinSize() }
func (r *collectionRenderer) Refresh()                     { r.Layout(r.cc.Size()); canvas.Refresh(r.cc) }

func (r *collectionRenderer) Layout(size fyne.Size) {
	r.cc.board.SetCanvas(geometry.Size{W: float64(size.Width), H: float64(size.Height)})
	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))
	r.sync()
}

// sync positions one rectangle and label per card and one line per guide.
func (r *collectionRenderer) sync() {
	views := r.cc.board.Cards()
	guides := r.cc.board.Guides()
	rebuild := len(views) != len(r.cards) || len(guides) != len(r.guides)
	if rebuild {
		r.cards = r.cards[:0]
		for _, v := range views {
			rect := canvas.NewRectangle(color.White)
			rect.StrokeWidth = 1
			rect.CornerRadius = 8
			r.cards = append(r.cards, cardObjects{key: v.Key, rect: rect, label: canvas.NewText("", color.RGBA{R: 17, G: 24, B: 39, A: 255})})
		}
		r.guides = r.guides[:0]
		for range guides {
			ln := canvas.NewLine(color.RGBA{R: 236, G: 72, B: 153, A: 255})
			ln.StrokeWidth = 1
			r.guides = append(r.guides, ln)
		}
		r.objects = []fyne.CanvasObject{r.bg}
		for _, co := range r.cards {
			r.objects = append(r.objects, co.rect, co.label)
		}
		for _, ln := range r.guides {
			r.objects = append(r.objects, ln)
		}
	}

	pal := export.DefaultPalette()
	for i, v := range views {
		co := &r.cards[i]
		co.key = v.Key
		s := v.Screen
		co.rect.Move(fyne.NewPos(float32(s.X), float32(s.Y)))
		co.rect.Resize(fyne.NewSize(float32(s.Width), float32(s.Height)))
		typ, _, _ := strings.Cut(v.Key, ":")
		fill, ok := pal.Fill[typ]
		if !ok {
			fill = pal.Default
		}
		co.rect.FillColor = fill
		co.rect.StrokeColor = pal.Stroke
		if v.Active {
			co.rect.StrokeColor = color.RGBA{R: 59, G: 130, B: 246, A: 255}
			co.rect.StrokeWidth = 2
		} else {
			co.rect.StrokeWidth = 1
		}
		label := r.cc.labels[v.Key]
		if label == "" {
			label = v.Key
		}
		co.label.Text = label
		co.label.TextSize = float32(12 * r.cc.board.Viewport().Scale)
		co.label.Move(fyne.NewPos(float32(s.X+8), float32(s.Y+6)))
		co.rect.Refresh()
		co.label.Refresh()
	}

	cam := r.cc.board.Camera()
	for i, g := range guides {
		ln := r.guides[i]
		a, b := cam.WorldToScreen(g.From), cam.WorldToScreen(g.To)
		ln.Position1 = fyne.NewPos(float32(a.X), float32(a.Y))
		ln.Position2 = fyne.NewPos(float32(b.X), float32(b.Y))
		ln.Refresh()
	}
}

const recentPrefsKey = "recent.collections"
const recentMax = 10

func loadRecentCollections(p fyne.Preferences) []string {
	raw := p.StringWithFallback(recentPrefsKey, "")
	var items []string
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil
		}
	}
	out := items[:0]
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func saveRecentCollections(p fyne.Preferences, items []string) {
	if len(items) > recentMax {
		items = items[:recentMax]
	}
	b, _ := json.Marshal(items)
	p.SetString(recentPrefsKey, string(b))
}

func addRecentCollection(p fyne.Preferences, id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	rec := loadRecentCollections(p)
	out := make([]string, 0, 1+len(rec))
	out = append(out, id)
	for _, s := range rec {
		if s != id {
			out = append(out, s)
		}
	}
	saveRecentCollections(p, out)
}
