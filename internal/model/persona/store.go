package persona

import "strings"

// Store holds the persona of a single conversation. It is not safe for concurrent
// use; the owning conversation serializes access.
type Store struct {
	current Config
}

// NewStore returns a Store initialised with cfg.
func NewStore(cfg Config) *Store {
	if strings.TrimSpace(cfg.Title) == "" {
		cfg.Title = DefaultTitle
	}
	return &Store{current: cfg}
}

// Get returns the current configuration.
func (s *Store) Get() Config {
	return s.current
}

// Update applies the non-nil fields of u. It reports whether anything changed;
// nothing is committed when the resulting title would be empty.
func (s *Store) Update(u Update) (bool, error) {
	next := s.current
	if u.Title != nil {
		title := strings.TrimSpace(*u.Title)
		if title == "" {
			return false, ErrTitleRequired
		}
		next.Title = title
	}
	if u.Tone != nil {
		next.Tone = strings.TrimSpace(*u.Tone)
	}

	if next.Title == s.current.Title && next.Tone == s.current.Tone {
		return false, nil
	}
	s.current = next
	return true, nil
}

// SetAvatar replaces the avatar and reports whether it differs from the previous one.
func (s *Store) SetAvatar(avatar AvatarRef) bool {
	if s.current.Avatar.Equal(avatar) {
		return false
	}
	s.current.Avatar = avatar
	return true
}
