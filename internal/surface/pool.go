// Package surface manages a fixed set of reusable drawing surfaces.
//
// A Pool never blocks and never fails to hand out a surface: when every
// surface is busy, the least recently acquired one is reset and handed to the
// new caller. The previous holder's Lease is revoked at that moment; its later
// Resize calls fail with imgerr.ErrSurfaceEvicted and its Release is a no-op.
// A reset always swaps in a fresh minimal buffer, so a revoked holder keeps
// writing only to memory nobody else can see.
package surface

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/aliskhannn/pixelkit/internal/imgerr"
)

// DefaultCapacity is the number of surfaces in a pool created with capacity <= 0.
const DefaultCapacity = 5

// Surface is one pooled drawing target.
type Surface struct {
	id       int
	canvas   *image.NRGBA
	busy     bool
	lastUsed time.Time
	gen      uint64
}

// Info is a point-in-time view of a surface.
type Info struct {
	ID       int
	Width    int
	Height   int
	Busy     bool
	LastUsed time.Time
}

func (s *Surface) info() Info {
	b := s.canvas.Bounds()
	return Info{
		ID:       s.id,
		Width:    b.Dx(),
		Height:   b.Dy(),
		Busy:     s.busy,
		LastUsed: s.lastUsed,
	}
}

// reset drops pixel content and shrinks the surface to 1x1.
func (s *Surface) reset() {
	s.canvas = image.NewNRGBA(image.Rect(0, 0, 1, 1))
}

// Stats summarizes pool occupancy.
type Stats struct {
	Total int `json:"total"`
	InUse int `json:"inUse"`
}

// Pool is a fixed-capacity set of surfaces. It is safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	surfaces []*Surface
	now      func() time.Time
	onEvict  func(Info)
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock overrides the time source used for last-used stamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pool) {
		p.now = now
	}
}

// WithEvictHook registers fn to be called, outside the pool lock, whenever a
// busy surface is forcibly reclaimed. fn receives the surface state before reset.
func WithEvictHook(fn func(Info)) Option {
	return func(p *Pool) {
		p.onEvict = fn
	}
}

// New creates a pool of capacity surfaces, each starting at 0x0.
func New(capacity int, opts ...Option) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	p := &Pool{
		surfaces: make([]*Surface, capacity),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	stamp := p.now()
	for i := range p.surfaces {
		p.surfaces[i] = &Surface{
			id:       i,
			canvas:   image.NewNRGBA(image.Rect(0, 0, 0, 0)),
			lastUsed: stamp,
		}
	}

	return p
}

// Acquire leases a surface. The first free surface is returned; if none is
// free, the surface with the oldest last-used time is evicted and reused.
func (p *Pool) Acquire() *Lease {
	p.mu.Lock()

	var chosen *Surface
	for _, s := range p.surfaces {
		if !s.busy {
			chosen = s
			break
		}
	}

	var evicted *Info
	if chosen == nil {
		chosen = p.surfaces[0]
		for _, s := range p.surfaces[1:] {
			if s.lastUsed.Before(chosen.lastUsed) {
				chosen = s
			}
		}
		info := chosen.info()
		evicted = &info
		chosen.reset()
	}

	chosen.gen++
	chosen.busy = true
	chosen.lastUsed = p.now()
	lease := &Lease{pool: p, s: chosen, gen: chosen.gen}

	p.mu.Unlock()

	if evicted != nil && p.onEvict != nil {
		p.onEvict(*evicted)
	}

	return lease
}

// Stats reports how many surfaces exist and how many are leased.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Stats{Total: len(p.surfaces)}
	for _, s := range p.surfaces {
		if s.busy {
			st.InUse++
		}
	}
	return st
}

// Snapshot returns the state of every surface in pool order.
func (p *Pool) Snapshot() []Info {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Info, len(p.surfaces))
	for i, s := range p.surfaces {
		out[i] = s.info()
	}
	return out
}

// Close resets every surface and revokes all outstanding leases.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.surfaces {
		s.reset()
		s.busy = false
		s.gen++
	}
}

// Lease is exclusive access to one surface until Release.
type Lease struct {
	pool *Pool
	s    *Surface
	gen  uint64
}

// ID returns the leased surface's pool index.
func (l *Lease) ID() int {
	return l.s.id
}

// Valid reports whether the lease still owns its surface.
func (l *Lease) Valid() bool {
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()

	return l.s.gen == l.gen
}

// Resize sizes the surface to w x h with cleared (transparent) pixels and
// returns its buffer. The buffer stays valid for the caller even if the lease
// is later revoked.
func (l *Lease) Resize(w, h int) (*image.NRGBA, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("resize surface to %dx%d: %w", w, h, imgerr.ErrInvalidDimensions)
	}

	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()

	if l.s.gen != l.gen {
		return nil, fmt.Errorf("resize surface %d: %w", l.s.id, imgerr.ErrSurfaceEvicted)
	}

	l.s.canvas = image.NewNRGBA(image.Rect(0, 0, w, h))
	return l.s.canvas, nil
}

// Release resets the surface and returns it to the pool. Releasing twice, or
// releasing a revoked lease, does nothing.
func (l *Lease) Release() {
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()

	if l.s.gen != l.gen {
		return
	}

	l.s.reset()
	l.s.busy = false
	l.s.gen++
}
