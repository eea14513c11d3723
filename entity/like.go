package entity

// Like records that the author liked a note. Delivery is idempotent: an
// existing like for the same (author, liked) pair is returned unchanged.
type Like struct {
	Base

	// Author is the URI of the liking user.
	Author string `json:"author"`

	// Liked is the URI of the liked note.
	Liked string `json:"liked"`
}

// EntityType implements Entity.
func (l *Like) EntityType() string { return TypeLike }

// Validate implements Entity.
func (l *Like) Validate() error {
	if err := l.validateBase(); err != nil {
		return err
	}
	if err := validateAbsoluteURI("author", l.Author); err != nil {
		return err
	}
	return validateAbsoluteURI("liked", l.Liked)
}

// Reaction records an emoji reaction to a note.
type Reaction struct {
	Base

	// Author is the URI of the reacting user.
	Author string `json:"author"`

	// Object is the URI of the note being reacted to.
	Object string `json:"object"`

	// Content is the reaction emoji, either a unicode emoji or a custom
	// emoji shortcode.
	Content string `json:"content"`
}

// EntityType implements Entity.
func (r *Reaction) EntityType() string { return TypeReaction }

// Validate implements Entity.
func (r *Reaction) Validate() error {
	if err := r.validateBase(); err != nil {
		return err
	}
	if err := validateAbsoluteURI("author", r.Author); err != nil {
		return err
	}
	if err := validateAbsoluteURI("object", r.Object); err != nil {
		return err
	}
	if r.Content == "" {
		return validationError("content", "must not be empty")
	}
	return nil
}
