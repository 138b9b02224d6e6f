// Package aitest provides a scripted Provider for handler tests.
package aitest

import (
	"context"
	"sync"

	"github.com/zhouzirui/spirit/backend/internal/service/ai"
)

// Provider answers every turn with Reply and every one-shot generation with Summary.
type Provider struct {
	mu sync.Mutex

	Reply       string
	ToolInvoked bool
	Summary     string

	CreateErr   error
	SendErr     error
	GenerateErr error

	Sessions     int
	Instructions []string
	Sent         []string
}

var _ ai.Provider = (*Provider)(nil)

func (p *Provider) Name() string         { return "scripted" }
func (p *Provider) DefaultModel() string { return "scripted-model" }

func (p *Provider) CreateSession(_ context.Context, opts ai.SessionOptions) (ai.ChatSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	p.Sessions++
	p.Instructions = append(p.Instructions, opts.SystemInstruction)
	return session{p: p}, nil
}

func (p *Provider) GenerateOnce(_ context.Context, _ string, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Summary, p.GenerateErr
}

// SentMessages returns a copy of every text passed to a session.
func (p *Provider) SentMessages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Sent...)
}

type session struct{ p *Provider }

func (s session) Send(_ context.Context, text string) (ai.Reply, error) {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	s.p.Sent = append(s.p.Sent, text)
	if s.p.SendErr != nil {
		return ai.Reply{}, s.p.SendErr
	}
	return ai.Reply{Text: s.p.Reply, ToolInvoked: s.p.ToolInvoked}, nil
}
