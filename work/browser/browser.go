// Package browser owns the headless Chrome lifecycle: one exec allocator per
// process and a pool of browser sessions handed out to category tasks. A
// session is used by exactly one task at a time; tasks may open their own tabs
// inside it.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/puzpuzpuz/xsync/v3"

	"vodharvest/work/config"
	"vodharvest/work/logger"
)

// ErrPoolExhausted is returned by Acquire when the session ceiling is reached.
var ErrPoolExhausted = errors.New("browser session pool exhausted")

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("browser session pool closed")

// blockedPatterns maps a recognized subresource class to the URL patterns
// handed to the devtools network domain. Manifest and segment requests stay
// unblocked so that resolution can observe them.
var blockedPatterns = map[string][]string{
	"image":      {"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico"},
	"font":       {"*.woff", "*.woff2", "*.ttf", "*.otf", "*.eot"},
	"media":      {"*.mp4", "*.webm", "*.mkv", "*.avi", "*.mp3", "*.wav"},
	"stylesheet": {"*.css"},
}

// Session is one headless browsing context. The primary context is owned by
// a single task; Tab derives an isolated page context for resolver attempts.
type Session struct {
	id     int64
	ctx    context.Context
	cancel context.CancelFunc
	pool   *Pool
}

// ID returns the session's pool-unique id, used for logging.
func (s *Session) ID() int64 { return s.id }

// Ctx returns the session's primary browsing context.
func (s *Session) Ctx() context.Context { return s.ctx }

// Tab opens an isolated page context inside the session's browser. The caller
// owns the returned cancel and must call it on every exit path.
func (s *Session) Tab() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(s.ctx)
}

// Bind returns the session's browsing context tied to the caller's deadline
// and cancellation. chromedp actions must run on the session context to reach
// the devtools target, while stage budgets arrive on the caller's context;
// Bind joins the two. The caller owns the returned cancel.
func (s *Session) Bind(callerCtx context.Context) (context.Context, context.CancelFunc) {
	return bindContexts(callerCtx, s.ctx)
}

func bindContexts(callerCtx, targetCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(targetCtx)
	if callerCtx == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(callerCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Pool creates and recycles headless sessions under a fixed ceiling.
type Pool struct {
	cfg         *config.Config
	allocCtx    context.Context
	allocCancel context.CancelFunc
	sessions    *xsync.MapOf[int64, *Session]
	nextID      atomic.Int64
	count       atomic.Int32
	closed      atomic.Bool
}

// NewPool starts the shared exec allocator. No browser process is launched
// until the first session runs an action.
func NewPool(ctx context.Context, cfg *config.Config) *Pool {
	opts := allocatorOpts(cfg.Browser)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)

	return &Pool{
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		sessions:    xsync.NewMapOf[int64, *Session](),
	}
}

func allocatorOpts(bc config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("headless", bc.Headless),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.DisableGPU,
	)
	if bc.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if bc.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(bc.UserAgent))
	}
	if bc.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(bc.ExecPath))
	}
	return opts
}

// Acquire creates a fresh session, or fails when the ceiling is reached. The
// new session has network events enabled and the configured subresource
// classes blocked.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	if int(p.count.Load()) >= p.cfg.MaxSessions {
		return nil, fmt.Errorf("%w: %d sessions live", ErrPoolExhausted, p.count.Load())
	}

	sessCtx, sessCancel := chromedp.NewContext(p.allocCtx)

	s := &Session{
		id:     p.nextID.Add(1),
		ctx:    sessCtx,
		cancel: sessCancel,
		pool:   p,
	}

	if err := p.prime(ctx, s); err != nil {
		sessCancel()
		return nil, fmt.Errorf("priming session %d: %w", s.id, err)
	}

	p.sessions.Store(s.id, s)
	p.count.Add(1)
	logger.Debug("session %d acquired (%d live)", s.id, p.count.Load())
	return s, nil
}

// prime launches the browser process and applies the structured session
// options. A session that cannot be primed is never handed out.
func (p *Pool) prime(ctx context.Context, s *Session) error {
	timeout := p.cfg.Browser.ProtocolTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	primeCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	var patterns []string
	for _, class := range p.cfg.Browser.BlockSubresources {
		patterns = append(patterns, blockedPatterns[class]...)
	}

	actions := []chromedp.Action{network.Enable()}
	if len(patterns) > 0 {
		actions = append(actions, network.SetBlockedURLs(patterns))
	}

	if err := chromedp.Run(primeCtx, actions...); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// Recycle disposes the session and returns a fresh one. Accumulated results
// are untouched; only the browsing context is replaced.
func (p *Pool) Recycle(ctx context.Context, s *Session) (*Session, error) {
	p.Dispose(s)
	return p.Acquire(ctx)
}

// Dispose tears the session down and frees its pool slot.
func (p *Pool) Dispose(s *Session) {
	if s == nil {
		return
	}
	if _, loaded := p.sessions.LoadAndDelete(s.id); !loaded {
		return
	}
	s.cancel()
	p.count.Add(-1)
	logger.Debug("session %d disposed (%d live)", s.id, p.count.Load())
}

// Live reports the number of sessions currently handed out.
func (p *Pool) Live() int {
	return int(p.count.Load())
}

// Close disposes every live session and shuts the allocator down.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.sessions.Range(func(id int64, s *Session) bool {
		s.cancel()
		p.sessions.Delete(id)
		p.count.Add(-1)
		return true
	})
	p.allocCancel()
}
