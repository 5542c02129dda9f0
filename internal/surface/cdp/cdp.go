// internal/surface/cdp/cdp.go
// Package cdp implements surface.Surface on top of chromedp.
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/actuator/internal/surface"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultActionTimeout = 10 * time.Second
	leftButton           = input.MouseButton("left")
)

// Options configure how the browser is reached.
type Options struct {
	// ControlURL attaches to a running browser's DevTools websocket instead of launching one.
	ControlURL string
	// BinaryPath overrides chromedp's browser discovery.
	BinaryPath     string
	Headless       bool
	DisableGPU     bool
	Args           []string
	ViewportWidth  int
	ViewportHeight int
	ActionTimeout  time.Duration
}

// Surface drives one chromedp tab.
type Surface struct {
	ctx      context.Context // tab context
	logger   *zap.Logger
	timeout  time.Duration
	pointer  *pointer
	keyboard *keyboard
}

var (
	_ surface.Surface  = (*Surface)(nil)
	_ surface.Listener = (*Surface)(nil)
)

// New wraps an existing chromedp tab context.
func New(tabCtx context.Context, logger *zap.Logger, timeout time.Duration) *Surface {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	s := &Surface{ctx: tabCtx, logger: logger.Named("cdp"), timeout: timeout}
	s.pointer = &pointer{s: s}
	s.keyboard = &keyboard{s: s}
	return s
}

// Open launches (or attaches to) a browser and opens one tab. The returned function
// closes the tab and the allocator.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (*Surface, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.ControlURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.ControlURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, execOptions(opts)...)
	}

	sugar := logger.Named("chromedp").Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)
	cleanup := func() {
		tabCancel()
		allocCancel()
	}

	w, h := opts.ViewportWidth, opts.ViewportHeight
	if w <= 0 || h <= 0 {
		w, h = 1366, 768
	}
	if err := chromedp.Run(tabCtx, chromedp.EmulateViewport(int64(w), int64(h))); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("cdp: starting browser: %w", err)
	}
	return New(tabCtx, logger, opts.ActionTimeout), cleanup, nil
}

// execOptions builds allocator flags from the defaults plus configured extras.
// Extra args are accepted with or without the leading dashes, as flags or key=value.
func execOptions(opts Options) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	out = append(out,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", opts.Headless),
	)
	if opts.DisableGPU {
		out = append(out, chromedp.DisableGPU)
	}
	if opts.BinaryPath != "" {
		out = append(out, chromedp.ExecPath(opts.BinaryPath))
	}
	for _, arg := range opts.Args {
		name, value, ok := surface.ParseFlag(arg)
		if !ok {
			continue
		}
		if value == "" {
			out = append(out, chromedp.Flag(name, true))
			continue
		}
		out = append(out, chromedp.Flag(name, value))
	}
	return out
}

// run executes actions on the tab, bounded by the action timeout and by ctx.
func (s *Surface) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// evaluate runs expr and returns the raw JSON result.
func (s *Surface) evaluate(ctx context.Context, expr string) ([]byte, error) {
	var raw []byte
	err := s.run(ctx, chromedp.Evaluate(expr, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true)
	}))
	return raw, err
}

// elementCall builds an expression applying fn to the first match of selector.
// It yields null when nothing matches.
func elementCall(fn, selector string, arg any) (string, error) {
	sel, err := json.MarshalToString(selector)
	if err != nil {
		return "", err
	}
	a, err := json.MarshalToString(arg)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(function(el, arg) { if (!el) return null; return (%s).call(el, el, arg); })(document.querySelector(%s), %s)`, fn, sel, a), nil
}

// callElement evaluates fn against selector and decodes a non-null result into out.
// found is false when the element is gone.
func (s *Surface) callElement(ctx context.Context, fn, selector string, arg, out any) (found bool, err error) {
	expr, err := elementCall(fn, selector, arg)
	if err != nil {
		return false, err
	}
	raw, err := s.evaluate(ctx, expr)
	if err != nil {
		return false, fmt.Errorf("cdp: evaluating on %q: %w", selector, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("cdp: decoding result for %q: %w (payload: %s)", selector, err, raw)
	}
	return true, nil
}

func (s *Surface) Locate(ctx context.Context, selector string) (surface.Handle, error) {
	found, err := s.callElement(ctx, `function(el) { return true; }`, selector, nil, nil)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", surface.ErrNotFound, selector)
	}
	return &handle{s: s, sel: selector}, nil
}

func (s *Surface) Pointer() surface.Pointer   { return s.pointer }
func (s *Surface) Keyboard() surface.Keyboard { return s.keyboard }

func (s *Surface) Content(ctx context.Context) (string, error) {
	raw, err := s.evaluate(ctx, `document.documentElement ? document.documentElement.outerHTML : ""`)
	if err != nil {
		return "", fmt.Errorf("cdp: reading content: %w", err)
	}
	var html string
	if err := json.Unmarshal(raw, &html); err != nil {
		return "", fmt.Errorf("cdp: decoding content: %w", err)
	}
	return html, nil
}

func (s *Surface) URL(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("cdp: reading location: %w", err)
	}
	return loc, nil
}

func (s *Surface) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("cdp: navigating to %s: %w", url, err)
	}
	return nil
}

func (s *Surface) Reload(ctx context.Context) error {
	if err := s.run(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("cdp: reloading: %w", err)
	}
	return nil
}

// Listen reports network and page lifecycle events until ctx ends.
func (s *Surface) Listen(ctx context.Context, touch func()) error {
	if err := s.run(ctx, network.Enable(), page.Enable()); err != nil {
		return fmt.Errorf("cdp: enabling event domains: %w", err)
	}
	lctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	chromedp.ListenTarget(lctx, func(ev interface{}) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent,
			*network.EventResponseReceived,
			*network.EventLoadingFinished,
			*network.EventWebSocketFrameReceived,
			*page.EventFrameNavigated,
			*page.EventLoadEventFired:
			touch()
		}
	})
	s.logger.Debug("Listening for surface activity.")

	<-lctx.Done()
	if ctx.Err() == nil && s.ctx.Err() != nil {
		return fmt.Errorf("cdp: tab closed: %w", s.ctx.Err())
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
	found, err := h.s.callElement(ctx, surface.ScriptRect, h.sel, nil, &r)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}

func (h *handle) TextOrAttribute(ctx context.Context, name string) (string, error) {
	var out string
	found, err := h.s.callElement(ctx, surface.ScriptTextOrAttribute, h.sel, name, &out)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("%w: %s", surface.ErrNotFound, h.sel)
	}
	return out, nil
}

func (h *handle) Visible(ctx context.Context) (bool, error) {
	var v bool
	_, err := h.s.callElement(ctx, surface.ScriptVisible, h.sel, nil, &v)
	return v, err
}

func (h *handle) Click(ctx context.Context) error {
	return h.s.run(ctx, chromedp.Click(h.sel, chromedp.ByQuery, chromedp.NodeVisible))
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
	return h.s.run(ctx, chromedp.MouseClickXY(x, y))
}

func (h *handle) script(ctx context.Context, fn string) error {
	found, err := h.s.callElement(ctx, fn, h.sel, nil, nil)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", surface.ErrNotFound, h.sel)
	}
	return nil
}

func (h *handle) Activate(ctx context.Context) error { return h.script(ctx, surface.ScriptActivate) }

func (h *handle) DispatchPointerEvents(ctx context.Context) error {
	return h.script(ctx, surface.ScriptPointerEvents)
}

func (h *handle) Focus(ctx context.Context) error {
	return h.s.run(ctx, chromedp.Focus(h.sel, chromedp.ByQuery))
}

// pointer dispatches raw mouse input and remembers the last position.
type pointer struct {
	mu   sync.Mutex
	s    *Surface
	x, y float64
	down bool
}

func (p *pointer) MoveTo(ctx context.Context, x, y float64) error {
	p.mu.Lock()
	buttons := int64(0)
	if p.down {
		buttons = 1
	}
	p.mu.Unlock()

	ev := input.DispatchMouseEvent(input.MouseMoved, x, y).WithButtons(buttons)
	if buttons != 0 {
		ev = ev.WithButton(leftButton)
	}
	if err := p.s.run(ctx, ev); err != nil {
		return fmt.Errorf("cdp: pointer move: %w", err)
	}
	p.mu.Lock()
	p.x, p.y = x, y
	p.mu.Unlock()
	return nil
}

func (p *pointer) press(ctx context.Context, typ input.MouseType, buttons int64) error {
	p.mu.Lock()
	x, y := p.x, p.y
	p.mu.Unlock()
	ev := input.DispatchMouseEvent(typ, x, y).
		WithButton(leftButton).
		WithButtons(buttons).
		WithClickCount(1)
	return p.s.run(ctx, ev)
}

func (p *pointer) Down(ctx context.Context) error {
	if err := p.press(ctx, input.MousePressed, 1); err != nil {
		return fmt.Errorf("cdp: pointer down: %w", err)
	}
	p.mu.Lock()
	p.down = true
	p.mu.Unlock()
	return nil
}

func (p *pointer) Up(ctx context.Context) error {
	err := p.press(ctx, input.MouseReleased, 0)
	p.mu.Lock()
	p.down = false
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("cdp: pointer up: %w", err)
	}
	return nil
}

type keyboard struct {
	s *Surface
}

var errUnknownKey = errors.New("cdp: unsupported key")

// keyFor maps DOM key names onto chromedp key sequences.
func keyFor(key string) (string, error) {
	switch key {
	case "Enter":
		return kb.Enter, nil
	case "Escape":
		return kb.Escape, nil
	case "Tab":
		return kb.Tab, nil
	case " ", "Space":
		return " ", nil
	}
	if len([]rune(key)) == 1 {
		return key, nil
	}
	return "", fmt.Errorf("%w: %q", errUnknownKey, key)
}

func (k *keyboard) Press(ctx context.Context, key string) error {
	seq, err := keyFor(key)
	if err != nil {
		return err
	}
	if err := k.s.run(ctx, chromedp.KeyEvent(seq)); err != nil {
		return fmt.Errorf("cdp: pressing %q: %w", key, err)
	}
	return nil
}
