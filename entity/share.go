package entity

// Share (a boost/repost) republishes another user's note to the author's
// followers.
type Share struct {
	Base

	// Author is the URI of the sharing user.
	Author string `json:"author"`

	// Shared is the URI of the shared note.
	Shared string `json:"shared"`
}

// EntityType implements Entity.
func (s *Share) EntityType() string { return TypeShare }

// Validate implements Entity.
func (s *Share) Validate() error {
	if err := s.validateBase(); err != nil {
		return err
	}
	if err := validateAbsoluteURI("author", s.Author); err != nil {
		return err
	}
	return validateAbsoluteURI("shared", s.Shared)
}
