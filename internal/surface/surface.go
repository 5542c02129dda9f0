// internal/surface/surface.go
// Package surface defines the narrow contract between the actuation engine and the
// rendering engine it drives. Concrete backends live in the cdp and rod sub-packages.
package surface

import (
	"context"
	"errors"
	"math"
	"strings"
)

// ErrNotFound is returned by Locate when no element matches the selector.
var ErrNotFound = errors.New("surface: element not found")

// Rect is a measured bounding box in viewport coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the geometric center of the box.
func (r Rect) Center() (float64, float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Contains reports whether the point lies inside the box, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width && y >= r.Y && y <= r.Y+r.Height
}

// Inset shrinks the box by frac of its width and height on every side.
func (r Rect) Inset(frac float64) Rect {
	dx, dy := r.Width*frac, r.Height*frac
	return Rect{X: r.X + dx, Y: r.Y + dy, Width: r.Width - 2*dx, Height: r.Height - 2*dy}
}

// Shift returns the largest axis displacement of the top-left corner between r and other.
func (r Rect) Shift(other Rect) float64 {
	return math.Max(math.Abs(r.X-other.X), math.Abs(r.Y-other.Y))
}

// Valid reports whether the box has a positive, finite area.
func (r Rect) Valid() bool {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return r.Width > 0 && r.Height > 0
}

// Handle references one element on the surface. It is not guaranteed to stay attached
// or stable; callers re-resolve a fresh handle for each action.
type Handle interface {
	Selector() string
	// BoundingBox returns nil, nil when the element is present but not rendered.
	BoundingBox(ctx context.Context) (*Rect, error)
	TextOrAttribute(ctx context.Context, name string) (string, error)
	Visible(ctx context.Context) (bool, error)

	// Click is the engine's native click, including its own actionability checks.
	Click(ctx context.Context) error
	// ForceClick presses at the element center without any actionability checks.
	// Elements without a rendered box fall back to Activate.
	ForceClick(ctx context.Context) error
	// Activate invokes the element's click() method from script.
	Activate(ctx context.Context) error
	// DispatchPointerEvents fires a synthetic pointer/mouse event sequence on the element.
	DispatchPointerEvents(ctx context.Context) error
	Focus(ctx context.Context) error
}

// Pointer is the raw mouse channel.
type Pointer interface {
	MoveTo(ctx context.Context, x, y float64) error
	Down(ctx context.Context) error
	Up(ctx context.Context) error
}

// Keyboard is the raw key channel. Keys use DOM key names ("Enter", " ", "Escape").
type Keyboard interface {
	Press(ctx context.Context, key string) error
}

// Surface is the remote document being acted upon.
type Surface interface {
	Locate(ctx context.Context, selector string) (Handle, error)
	Pointer() Pointer
	Keyboard() Keyboard
	Content(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
}

// Listener is implemented by backends that can report surface activity. Listen blocks
// until ctx is done, calling touch for every observed network or lifecycle event.
// Backends do not timestamp events; the caller stamps them on its own clock.
type Listener interface {
	Listen(ctx context.Context, touch func()) error
}

// LocateFirst resolves the first selector that matches, in order.
func LocateFirst(ctx context.Context, s Surface, selectors ...string) (Handle, error) {
	var lastErr error = ErrNotFound
	for _, sel := range selectors {
		h, err := s.Locate(ctx, sel)
		if err == nil && h != nil {
			return h, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		}
	}
	return nil, lastErr
}

// ParseFlag splits a browser command-line switch given as "--foo", "foo" or "--foo=bar".
// value is empty for bare switches.
func ParseFlag(arg string) (name, value string, ok bool) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return "", "", false
	}
	name, value, _ = strings.Cut(arg, "=")
	return name, value, name != ""
}
