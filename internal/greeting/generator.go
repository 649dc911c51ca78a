package greeting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"festivalbot/internal/llm"
	"festivalbot/pkg/logx"
)

// maxRetryDelay bounds the exponential backoff between attempts.
const maxRetryDelay = 30 * time.Second

// Backend produces a raw response body for a prompt.
type Backend interface {
	Invoke(ctx context.Context, p llm.Prompt, selector string) ([]byte, error)
}

// Options configures a Generator.
type Options struct {
	// Selector picks the backend provider; empty means the default.
	Selector   string
	Fallbacks  []string
	RetryDelay time.Duration
	// Timeout bounds a single backend attempt. Zero disables it.
	Timeout     time.Duration
	MaxTokens   int
	Temperature *float64
	// Picker chooses the fallback template; nil picks at random.
	Picker Picker
}

// Result is the outcome of Generate. Text is never empty.
type Result struct {
	Text        string
	ViaFallback bool
	Attempts    int
	LastErr     error
}

// Generator produces greetings with retry and fallback.
type Generator struct {
	backend Backend
	log     logx.Logger

	mu  sync.RWMutex
	opt Options

	sleep func(ctx context.Context, d time.Duration) error
}

func NewGenerator(backend Backend, opt Options, log logx.Logger) *Generator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Generator{
		backend: backend,
		log:     log.With(logx.String("comp", "greeting")),
		opt:     opt,
		sleep:   sleepCtx,
	}
}

// Apply swaps the options used by subsequent calls.
func (g *Generator) Apply(opt Options) {
	g.mu.Lock()
	g.opt = opt
	g.mu.Unlock()
}

func (g *Generator) options() Options {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.opt
}

// Generate never fails: after 1+MaxRetries unsuccessful attempts (or when
// ctx ends) it returns a rendered fallback template.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	opt := g.options()
	prompt := BuildPrompt(req)
	prompt.MaxTokens = opt.MaxTokens
	prompt.Temperature = opt.Temperature

	retries := max(req.MaxRetries, 0)
	attempts := retries + 1
	res := Result{}

	if g.backend == nil {
		res.LastErr = fmt.Errorf("%w: %w", ErrGeneration, llm.ErrNoProvider)
		g.log.Warn("no generation backend, using fallback", logx.String("holiday", req.HolidayName))
		return g.fallback(req, opt, res)
	}

	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := g.sleep(ctx, backoff(opt.RetryDelay, i)); err != nil {
				res.LastErr = errors.Join(res.LastErr, err)
				break
			}
		}
		res.Attempts++

		text, err := g.attempt(ctx, prompt, opt)
		if err == nil {
			res.Text = text
			res.LastErr = nil
			return res
		}
		res.LastErr = err
		g.log.Warn("greeting generation failed",
			logx.String("holiday", req.HolidayName),
			logx.Int("attempt", i+1),
			logx.Int("attempts", attempts),
			logx.Err(err),
		)
		if errors.Is(err, llm.ErrNoProvider) || ctx.Err() != nil {
			break
		}
	}

	g.log.Error("greeting generation exhausted, using fallback",
		logx.String("holiday", req.HolidayName),
		logx.Err(res.LastErr),
	)
	return g.fallback(req, opt, res)
}

func (g *Generator) attempt(ctx context.Context, prompt llm.Prompt, opt Options) (string, error) {
	callCtx := ctx
	if opt.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, opt.Timeout)
		defer cancel()
	}

	body, err := g.backend.Invoke(callCtx, prompt, opt.Selector)
	if err != nil {
		return "", err
	}
	raw, err := Extract(body)
	if err != nil {
		return "", err
	}
	text := Sanitize(raw)
	if text == "" {
		return "", fmt.Errorf("%w: empty text after cleanup", ErrGeneration)
	}
	return text, nil
}

func (g *Generator) fallback(req Request, opt Options, res Result) Result {
	res.Text = Fallback(req, opt.Fallbacks, opt.Picker)
	res.ViaFallback = true
	return res
}

// backoff doubles base per retry, capped at maxRetryDelay.
func backoff(base time.Duration, retry int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base
	for i := 1; i < retry && d < maxRetryDelay; i++ {
		d *= 2
	}
	return min(d, maxRetryDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
