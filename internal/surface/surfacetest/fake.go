// internal/surface/surfacetest/fake.go
// Package surfacetest provides scriptable in-memory surface fakes for tests.
package surfacetest

import (
	"context"
	"strings"
	"sync"

	"github.com/xkilldash9x/actuator/internal/surface"
)

// PointerEvent is one recorded raw pointer call.
type PointerEvent struct {
	Kind string // "move", "down" or "up"
	X, Y float64
}

// Surface is an in-memory surface.Surface. Exported fields may be set before use;
// the recording accessors are safe for concurrent use.
type Surface struct {
	mu sync.Mutex

	elements map[string]*Handle
	pointer  *Pointer
	keyboard *Keyboard

	HTML        string
	ContentErr  error
	CurrentURL  string
	NavigateErr error
	ReloadErr   error

	// Overrides, checked before the default behavior.
	MockContent func(ctx context.Context) (string, error)
	MockLocate  func(ctx context.Context, selector string) (surface.Handle, error)
	// OnReload runs after every successful Reload or Navigate.
	OnReload func(s *Surface)

	navigations []string
	reloads     int
	locates     map[string]int
}

var _ surface.Surface = (*Surface)(nil)

// New returns an empty fake surface.
func New() *Surface {
	s := &Surface{
		elements:   make(map[string]*Handle),
		locates:    make(map[string]int),
		CurrentURL: "https://surface.test/",
	}
	s.pointer = &Pointer{s: s}
	s.keyboard = &Keyboard{}
	return s
}

// Add registers an element and returns its handle for further scripting.
func (s *Surface) Add(selector string, box *surface.Rect) *Handle {
	h := &Handle{sel: selector, owner: s, IsVisible: true, Text: map[string]string{}}
	if box != nil {
		b := *box
		h.Box = &b
	}
	s.mu.Lock()
	s.elements[selector] = h
	s.mu.Unlock()
	return h
}

// Remove detaches an element.
func (s *Surface) Remove(selector string) {
	s.mu.Lock()
	delete(s.elements, selector)
	s.mu.Unlock()
}

// Element returns the registered handle, or nil.
func (s *Surface) Element(selector string) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elements[selector]
}

func (s *Surface) Locate(ctx context.Context, selector string) (surface.Handle, error) {
	if s.MockLocate != nil {
		return s.MockLocate(ctx, selector)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locates[selector]++
	h, ok := s.elements[selector]
	if !ok {
		return nil, surface.ErrNotFound
	}
	return h, nil
}

// Locates returns how many times selector was resolved.
func (s *Surface) Locates(selector string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locates[selector]
}

func (s *Surface) Pointer() surface.Pointer   { return s.pointer }
func (s *Surface) Keyboard() surface.Keyboard { return s.keyboard }

// PointerRecorder exposes the concrete pointer for assertions.
func (s *Surface) PointerRecorder() *Pointer { return s.pointer }

// KeyRecorder exposes the concrete keyboard for assertions.
func (s *Surface) KeyRecorder() *Keyboard { return s.keyboard }

func (s *Surface) Content(ctx context.Context) (string, error) {
	if s.MockContent != nil {
		return s.MockContent(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.HTML, s.ContentErr
}

func (s *Surface) URL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CurrentURL, nil
}

func (s *Surface) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	s.navigations = append(s.navigations, url)
	err := s.NavigateErr
	if err == nil {
		s.CurrentURL = url
	}
	hook := s.OnReload
	s.mu.Unlock()
	if err == nil && hook != nil {
		hook(s)
	}
	return err
}

func (s *Surface) Reload(ctx context.Context) error {
	s.mu.Lock()
	s.reloads++
	err := s.ReloadErr
	hook := s.OnReload
	s.mu.Unlock()
	if err == nil && hook != nil {
		hook(s)
	}
	return err
}

// Reloads returns the number of Reload calls.
func (s *Surface) Reloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloads
}

// Navigations returns every URL passed to Navigate.
func (s *Surface) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigations...)
}

// SetHTML replaces the document content.
func (s *Surface) SetHTML(html string) {
	s.mu.Lock()
	s.HTML = html
	s.mu.Unlock()
}

// Handle is a scriptable surface.Handle.
type Handle struct {
	mu    sync.Mutex
	sel   string
	owner *Surface

	Box       *surface.Rect
	BoxErr    error
	IsVisible bool
	Text      map[string]string

	ClickErr, ForceClickErr, ActivateErr, DispatchErr, FocusErr error

	// MockBoundingBox receives the 1-based measurement count.
	MockBoundingBox func(ctx context.Context, call int) (*surface.Rect, error)
	// OnActivate runs after any successful activation path (click, forced, script,
	// synthetic events, or Enter while focused).
	OnActivate func(kind string)

	boxCalls int
	calls    map[string]int
}

var _ surface.Handle = (*Handle)(nil)

func (h *Handle) Selector() string { return h.sel }

func (h *Handle) BoundingBox(ctx context.Context) (*surface.Rect, error) {
	h.mu.Lock()
	h.boxCalls++
	n := h.boxCalls
	mock := h.MockBoundingBox
	box, err := h.Box, h.BoxErr
	h.mu.Unlock()

	if mock != nil {
		return mock(ctx, n)
	}
	if err != nil {
		return nil, err
	}
	if box == nil {
		return nil, nil
	}
	b := *box
	return &b, nil
}

// BoxCalls returns how many times BoundingBox was called.
func (h *Handle) BoxCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.boxCalls
}

// SetBox replaces the element geometry.
func (h *Handle) SetBox(r *surface.Rect) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r == nil {
		h.Box = nil
		return
	}
	b := *r
	h.Box = &b
}

func (h *Handle) TextOrAttribute(ctx context.Context, name string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if name == "" {
		name = "text"
	}
	return h.Text[name], nil
}

// SetText sets the text (name "text") or an attribute value.
func (h *Handle) SetText(name, value string) {
	h.mu.Lock()
	h.Text[name] = value
	h.mu.Unlock()
}

func (h *Handle) Visible(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.IsVisible, nil
}

// SetVisible toggles visibility.
func (h *Handle) SetVisible(v bool) {
	h.mu.Lock()
	h.IsVisible = v
	h.mu.Unlock()
}

func (h *Handle) record(kind string, err error) error {
	h.mu.Lock()
	if h.calls == nil {
		h.calls = make(map[string]int)
	}
	h.calls[kind]++
	hook := h.OnActivate
	h.mu.Unlock()
	if err == nil && hook != nil {
		hook(kind)
	}
	return err
}

func (h *Handle) Click(ctx context.Context) error      { return h.record("click", h.ClickErr) }
func (h *Handle) ForceClick(ctx context.Context) error { return h.record("force", h.ForceClickErr) }
func (h *Handle) Activate(ctx context.Context) error   { return h.record("activate", h.ActivateErr) }
func (h *Handle) DispatchPointerEvents(ctx context.Context) error {
	return h.record("dispatch", h.DispatchErr)
}

func (h *Handle) Focus(ctx context.Context) error {
	err := h.FocusErr
	h.mu.Lock()
	if h.calls == nil {
		h.calls = make(map[string]int)
	}
	h.calls["focus"]++
	h.mu.Unlock()
	if err == nil && h.owner != nil {
		h.owner.keyboard.setFocus(h)
	}
	return err
}

// Calls returns how many times the named method ran ("click", "force",
// "activate", "dispatch", "focus").
func (h *Handle) Calls(kind string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[kind]
}

// Pointer records raw pointer calls.
type Pointer struct {
	mu     sync.Mutex
	s      *Surface
	events []PointerEvent
	x, y   float64

	MoveErr, DownErr, UpErr error
	// MockMoveTo replaces MoveTo when set.
	MockMoveTo func(ctx context.Context, x, y float64) error
}

func (p *Pointer) MoveTo(ctx context.Context, x, y float64) error {
	if p.MockMoveTo != nil {
		if err := p.MockMoveTo(ctx, x, y); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.MoveErr != nil {
		return p.MoveErr
	}
	p.x, p.y = x, y
	p.events = append(p.events, PointerEvent{Kind: "move", X: x, Y: y})
	return nil
}

func (p *Pointer) Down(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.DownErr != nil {
		return p.DownErr
	}
	p.events = append(p.events, PointerEvent{Kind: "down", X: p.x, Y: p.y})
	return nil
}

func (p *Pointer) Up(ctx context.Context) error {
	p.mu.Lock()
	if p.UpErr != nil {
		p.mu.Unlock()
		return p.UpErr
	}
	p.events = append(p.events, PointerEvent{Kind: "up", X: p.x, Y: p.y})
	x, y := p.x, p.y
	p.mu.Unlock()

	// A release over a registered element counts as activating it.
	if p.s != nil {
		p.s.mu.Lock()
		var hit []*Handle
		for _, h := range p.s.elements {
			hit = append(hit, h)
		}
		p.s.mu.Unlock()
		for _, h := range hit {
			h.mu.Lock()
			box := h.Box
			h.mu.Unlock()
			if box != nil && box.Contains(x, y) {
				_ = h.record("press", nil)
			}
		}
	}
	return nil
}

// Events returns a copy of the recorded pointer events.
func (p *Pointer) Events() []PointerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PointerEvent(nil), p.events...)
}

// Count returns the number of recorded events of kind.
func (p *Pointer) Count(kind string) int {
	n := 0
	for _, e := range p.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Keyboard records key presses.
type Keyboard struct {
	mu       sync.Mutex
	keys     []string
	focused  *Handle
	PressErr error
}

func (k *Keyboard) setFocus(h *Handle) {
	k.mu.Lock()
	k.focused = h
	k.mu.Unlock()
}

func (k *Keyboard) Press(ctx context.Context, key string) error {
	k.mu.Lock()
	if k.PressErr != nil {
		k.mu.Unlock()
		return k.PressErr
	}
	k.keys = append(k.keys, key)
	focused := k.focused
	k.mu.Unlock()
	if focused != nil && (key == "Enter" || key == " ") {
		_ = focused.record("key:"+strings.ToLower(key), nil)
	}
	return nil
}

// Keys returns every pressed key.
func (k *Keyboard) Keys() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.keys...)
}
