package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Service keeps the in-memory registry of live conversations.
type Service struct {
	opts Options

	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// NewService bootstraps the in-memory conversation registry.
func NewService(opts Options) *Service {
	return &Service{
		opts:          opts,
		conversations: make(map[string]*Conversation),
	}
}

// Options returns the settings new conversations are built with.
func (s *Service) Options() Options {
	return s.opts
}

// Create registers a fresh conversation with default persona. The remote session is
// opened lazily.
func (s *Service) Create(_ context.Context) (*Conversation, error) {
	conv, err := NewConversation(uuid.NewString(), s.opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conversations[conv.ID()] = conv
	s.mu.Unlock()

	log.Debug().Str("conversation_id", conv.ID()).Msg("conversation created")
	return conv, nil
}

// Get retrieves a conversation by identifier.
func (s *Service) Get(id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

// Delete forgets a conversation. Its state is lost.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return ErrConversationNotFound
	}
	delete(s.conversations, id)
	return nil
}

// List returns every live conversation, oldest first.
func (s *Service) List() []*Conversation {
	s.mu.RLock()
	list := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		list = append(list, conv)
	}
	s.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		return list[i].createdAt.Before(list[j].createdAt)
	})
	return list
}
