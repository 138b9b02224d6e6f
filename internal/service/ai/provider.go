package ai

import "context"

// Tool names a capability the remote model may use while answering.
type Tool string

const (
	// ToolWebSearch lets the model look up real-time information.
	ToolWebSearch Tool = "web_search"
)

// SessionOptions binds a chat session to its system instruction and generation parameters.
type SessionOptions struct {
	Model             string
	SystemInstruction string
	Temperature       float32
	Tools             []Tool
}

// Reply is the outcome of one chat turn.
type Reply struct {
	Text        string
	ToolInvoked bool
}

// ChatSession is a stateful exchange with the remote provider. Prior turns are kept
// provider-side or session-side so replies stay contextual.
type ChatSession interface {
	Send(ctx context.Context, text string) (Reply, error)
}

// Provider creates chat sessions and runs stateless one-shot generations.
type Provider interface {
	Name() string
	DefaultModel() string
	CreateSession(ctx context.Context, opts SessionOptions) (ChatSession, error)
	GenerateOnce(ctx context.Context, model, prompt string) (string, error)
}

func hasTool(tools []Tool, want Tool) bool {
	for _, t := range tools {
		if t == want {
			return true
		}
	}
	return false
}
