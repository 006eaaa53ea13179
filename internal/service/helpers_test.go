package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Hussein-Mazeh/genvault/internal/prompt"
	"github.com/Hussein-Mazeh/genvault/internal/service"
	"github.com/Hussein-Mazeh/genvault/internal/vault"
)

// scriptedPrompter answers prompts from a queue and cancels once it runs out.
type scriptedPrompter struct {
	mu       sync.Mutex
	answers  []prompt.Result
	requests []prompt.Request
}

func answers(results ...prompt.Result) *scriptedPrompter {
	return &scriptedPrompter{answers: results}
}

func remember(pw string) prompt.Result { return prompt.Result{Passphrase: pw, Remember: true} }
func once(pw string) prompt.Result     { return prompt.Result{Passphrase: pw} }

func (p *scriptedPrompter) Prompt(_ context.Context, req prompt.Request) (prompt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if len(p.answers) == 0 {
		return prompt.Result{Cancelled: true}, nil
	}
	res := p.answers[0]
	p.answers = p.answers[1:]
	return res, nil
}

func (p *scriptedPrompter) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *scriptedPrompter) request(i int) prompt.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

func (p *scriptedPrompter) push(results ...prompt.Result) {
	p.mu.Lock()
	p.answers = append(p.answers, results...)
	p.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newService(t *testing.T, store vault.Store, p service.Prompter, opts ...service.Option) *service.Service {
	t.Helper()
	svc := service.New(store, p, opts...)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}
