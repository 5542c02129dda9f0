// internal/surface/gorod/gorod.go
// Package gorod implements surface.Surface on top of go-rod.
package gorod

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/actuator/internal/surface"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultActionTimeout = 10 * time.Second

// Options mirror the cdp backend's.
type Options struct {
	ControlURL     string
	BinaryPath     string
	Headless       bool
	DisableGPU     bool
	Args           []string
	ViewportWidth  int
	ViewportHeight int
	ActionTimeout  time.Duration
}

// Surface drives one rod page.
type Surface struct {
	page     *rod.Page
	logger   *zap.Logger
	timeout  time.Duration
	pointer  *pointer
	keyboard *keyboard
}

var (
	_ surface.Surface  = (*Surface)(nil)
	_ surface.Listener = (*Surface)(nil)
)

// New wraps an open page.
func New(page *rod.Page, logger *zap.Logger, timeout time.Duration) *Surface {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	s := &Surface{page: page, logger: logger.Named("rod"), timeout: timeout}
	s.pointer = &pointer{s: s}
	s.keyboard = &keyboard{s: s}
	return s
}

// newLauncher configures a local browser launch.
func newLauncher(ctx context.Context, opts Options) *launcher.Launcher {
	l := launcher.New().Context(ctx).Headless(opts.Headless).NoSandbox(true)
	bin := opts.BinaryPath
	if bin == "" {
		bin, _ = launcher.LookPath()
	}
	if bin != "" {
		l = l.Bin(bin)
	}
	l = l.Set("disable-dev-shm-usage")
	if opts.DisableGPU {
		l = l.Set("disable-gpu")
	}
	for _, arg := range opts.Args {
		name, value, ok := surface.ParseFlag(arg)
		if !ok {
			continue
		}
		if value == "" {
			l = l.Set(flags.Flag(name))
			continue
		}
		l = l.Set(flags.Flag(name), value)
	}
	return l
}

// Open launches (or attaches to) a browser and opens a blank page. The returned
// function closes the browser and, when launched here, kills the process.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Surface, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	u := opts.ControlURL
	var l *launcher.Launcher
	if u == "" {
		l = newLauncher(ctx, opts)
		var err error
		if u, err = l.Launch(); err != nil {
			return nil, nil, fmt.Errorf("rod: launching browser: %w", err)
		}
	}

	browser := rod.New().ControlURL(u).Context(ctx)
	cleanup := func() {
		if err := browser.Close(); err != nil {
			logger.Debug("Browser close reported an error.", zap.Error(err))
		}
		if l != nil {
			l.Kill()
			l.Cleanup()
		}
	}
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, nil, fmt.Errorf("rod: connecting to %s: %w", u, err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("rod: opening page: %w", err)
	}
	w, h := opts.ViewportWidth, opts.ViewportHeight
	if w <= 0 || h <= 0 {
		w, h = 1366, 768
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{Width: w, Height: h, DeviceScaleFactor: 1}); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("rod: setting viewport: %w", err)
	}
	return New(page, logger, opts.ActionTimeout), cleanup, nil
}

// bound returns the page scoped to ctx and the action timeout.
func (s *Surface) bound(ctx context.Context) (*rod.Page, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.page.Context(ctx), cancel
}

// decode unmarshals a remote value. It reports false for null or undefined.
func decode(obj *proto.RuntimeRemoteObject, out any) (bool, error) {
	if obj == nil || obj.Value.Nil() {
		return false, nil
	}
	raw, err := obj.Value.MarshalJSON()
	if err != nil {
		return true, err
	}
	return true, json.Unmarshal(raw, out)
}

// element finds the first match without rod's wait-until-present retry.
func (s *Surface) element(ctx context.Context, selector string) (*rod.Element, error) {
	p, cancel := s.bound(ctx)
	defer cancel()
	has, el, err := p.Has(selector)
	if err != nil {
		return nil, fmt.Errorf("rod: querying %q: %w", selector, err)
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", surface.ErrNotFound, selector)
	}
	return el, nil
}

// evalOn runs fn with the element bound to this and decodes the result into out.
func (s *Surface) evalOn(ctx context.Context, selector, fn string, out any, args ...any) (bool, error) {
	el, err := s.element(ctx, selector)
	if err != nil {
		return false, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	obj, err := el.Context(ctx).Eval(fn, args...)
	if err != nil {
		return false, fmt.Errorf("rod: evaluating on %q: %w", selector, err)
	}
	if out == nil {
		return true, nil
	}
	found, err := decode(obj, out)
	if err != nil {
		return found, fmt.Errorf("rod: decoding result for %q: %w", selector, err)
	}
	return found, nil
}

func (s *Surface) Locate(ctx context.Context, selector string) (surface.Handle, error) {
	if _, err := s.element(ctx, selector); err != nil {
		return nil, err
	}
	return &handle{s: s, sel: selector}, nil
}

func (s *Surface) Pointer() surface.Pointer   { return s.pointer }
func (s *Surface) Keyboard() surface.Keyboard { return s.keyboard }

func (s *Surface) Content(ctx context.Context) (string, error) {
	p, cancel := s.bound(ctx)
	defer cancel()
	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("rod: reading content: %w", err)
	}
	return html, nil
}

func (s *Surface) URL(ctx context.Context) (string, error) {
	p, cancel := s.bound(ctx)
	defer cancel()
	info, err := p.Info()
	if err != nil {
		return "", fmt.Errorf("rod: reading location: %w", err)
	}
	return info.URL, nil
}

func (s *Surface) Navigate(ctx context.Context, url string) error {
	p, cancel := s.bound(ctx)
	defer cancel()
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("rod: navigating to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("rod: waiting for %s: %w", url, err)
	}
	return nil
}

func (s *Surface) Reload(ctx context.Context) error {
	p, cancel := s.bound(ctx)
	defer cancel()
	if err := p.Reload(); err != nil {
		return fmt.Errorf("rod: reloading: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("rod: waiting for reload: %w", err)
	}
	return nil
}

// Listen reports network and page lifecycle events until ctx ends.
func (s *Surface) Listen(ctx context.Context, touch func()) error {
	wait := s.page.Context(ctx).EachEvent(
		func(*proto.NetworkRequestWillBeSent) { touch() },
		func(*proto.NetworkResponseReceived) { touch() },
		func(*proto.NetworkLoadingFinished) { touch() },
		func(*proto.NetworkWebSocketFrameReceived) { touch() },
		func(*proto.PageFrameNavigated) { touch() },
		func(*proto.PageLoadEventFired) { touch() },
	)
	s.logger.Debug("Listening for surface activity.")
	wait()
	if ctx.Err() == nil {
		return errors.New("rod: event stream ended")
	}
	return nil
}

type handle struct {
	s   *Surface
	sel string
}

func (h *handle) Selector() string { return h.sel }

func (h *handle) BoundingBox(ctx context.Context) (*surface.Rect, error) {
	var r surface.Rect
	found, err := h.s.evalOn(ctx, h.sel, surface.ScriptRect, &r)
	if errors.Is(err, surface.ErrNotFound) {
		return nil, nil
	}
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}

func (h *handle) TextOrAttribute(ctx context.Context, name string) (string, error) {
	var out string
	if _, err := h.s.evalOn(ctx, h.sel, surface.ScriptTextOrAttribute, &out, name); err != nil {
		return "", err
	}
	return out, nil
}

func (h *handle) Visible(ctx context.Context) (bool, error) {
	var v bool
	_, err := h.s.evalOn(ctx, h.sel, surface.ScriptVisible, &v)
	if errors.Is(err, surface.ErrNotFound) {
		return false, nil
	}
	return v, err
}

func (h *handle) Click(ctx context.Context) error {
	el, err := h.s.element(ctx, h.sel)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, h.s.timeout)
	defer cancel()
	return el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (h *handle) ForceClick(ctx context.Context) error {
	box, err := h.BoundingBox(ctx)
	if err != nil {
		return err
	}
	if box == nil {
		// Nothing to aim at; the script click still reaches unrendered elements.
		return h.Activate(ctx)
	}
	x, y := box.Center()
	p := h.s.pointer
	if err := p.MoveTo(ctx, x, y); err != nil {
		return err
	}
	if err := p.Down(ctx); err != nil {
		return err
	}
	return p.Up(ctx)
}

func (h *handle) Activate(ctx context.Context) error {
	_, err := h.s.evalOn(ctx, h.sel, surface.ScriptActivate, nil)
	return err
}

func (h *handle) DispatchPointerEvents(ctx context.Context) error {
	_, err := h.s.evalOn(ctx, h.sel, surface.ScriptPointerEvents, nil)
	return err
}

func (h *handle) Focus(ctx context.Context) error {
	el, err := h.s.element(ctx, h.sel)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, h.s.timeout)
	defer cancel()
	return el.Context(ctx).Focus()
}

// pointer dispatches raw mouse input at the protocol level so each call honors ctx.
type pointer struct {
	s    *Surface
	x, y float64
	down bool
}

func (p *pointer) dispatch(ctx context.Context, ev proto.InputDispatchMouseEvent) error {
	page, cancel := p.s.bound(ctx)
	defer cancel()
	return ev.Call(page)
}

func (p *pointer) MoveTo(ctx context.Context, x, y float64) error {
	ev := proto.InputDispatchMouseEvent{Type: proto.InputDispatchMouseEventTypeMouseMoved, X: x, Y: y}
	if p.down {
		ev.Button = proto.InputMouseButtonLeft
		b := 1
		ev.Buttons = &b
	}
	if err := p.dispatch(ctx, ev); err != nil {
		return fmt.Errorf("rod: pointer move: %w", err)
	}
	p.x, p.y = x, y
	return nil
}

func (p *pointer) Down(ctx context.Context) error {
	b := 1
	ev := proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMousePressed, X: p.x, Y: p.y,
		Button: proto.InputMouseButtonLeft, Buttons: &b, ClickCount: 1,
	}
	if err := p.dispatch(ctx, ev); err != nil {
		return fmt.Errorf("rod: pointer down: %w", err)
	}
	p.down = true
	return nil
}

func (p *pointer) Up(ctx context.Context) error {
	b := 0
	ev := proto.InputDispatchMouseEvent{
		Type: proto.InputDispatchMouseEventTypeMouseReleased, X: p.x, Y: p.y,
		Button: proto.InputMouseButtonLeft, Buttons: &b, ClickCount: 1,
	}
	err := p.dispatch(ctx, ev)
	p.down = false
	if err != nil {
		return fmt.Errorf("rod: pointer up: %w", err)
	}
	return nil
}

type keyboard struct {
	s *Surface
}

var errUnknownKey = errors.New("rod: unsupported key")

// keyFor maps DOM key names onto rod keys.
func keyFor(key string) (input.Key, error) {
	switch key {
	case "Enter":
		return input.Enter, nil
	case "Escape":
		return input.Escape, nil
	case "Tab":
		return input.Tab, nil
	case " ", "Space":
		return input.Key(' '), nil
	}
	if r := []rune(key); len(r) == 1 {
		return input.Key(r[0]), nil
	}
	return 0, fmt.Errorf("%w: %q", errUnknownKey, key)
}

func (k *keyboard) Press(ctx context.Context, key string) error {
	rk, err := keyFor(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := k.s.page.Keyboard.Type(rk); err != nil {
		return fmt.Errorf("rod: pressing %q: %w", key, err)
	}
	return nil
}
