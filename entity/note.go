package entity

// Note visibility values.
const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityFollower = "followers"
	VisibilityDirect   = "direct"
)

// Note is a federated status/post authored by a remote user.
type Note struct {
	Base

	// Author is the URI of the authoring User.
	Author string `json:"author"`

	// Content maps MIME type to the note body in that representation.
	Content ContentFormat `json:"content,omitempty"`

	// Attachments reference uploaded media, one ContentFormat per item.
	Attachments []ContentFormat `json:"attachments,omitempty"`

	// Mentions lists URIs of mentioned users.
	Mentions []string `json:"mentions,omitempty"`

	// Category is a freeform grouping hint (e.g. "microblog").
	Category string `json:"category,omitempty"`

	// RepliesTo is the URI of the note this note replies to, if any.
	RepliesTo string `json:"replies_to,omitempty"`

	// Quotes is the URI of a quoted note, if any.
	Quotes string `json:"quotes,omitempty"`

	// Subject is the content warning / summary line.
	Subject string `json:"subject,omitempty"`

	// IsSensitive marks the content as sensitive.
	IsSensitive bool `json:"is_sensitive,omitempty"`

	// Visibility is one of the Visibility* values; empty means public.
	Visibility string `json:"visibility,omitempty"`
}

// EntityType implements Entity.
func (n *Note) EntityType() string { return TypeNote }

// Validate implements Entity.
func (n *Note) Validate() error {
	if err := n.validateBase(); err != nil {
		return err
	}
	if err := validateAbsoluteURI("author", n.Author); err != nil {
		return err
	}
	if err := n.Content.Validate("content"); err != nil {
		return err
	}
	for _, att := range n.Attachments {
		if err := att.Validate("attachments"); err != nil {
			return err
		}
	}
	for _, m := range n.Mentions {
		if err := validateAbsoluteURI("mentions", m); err != nil {
			return err
		}
	}
	if err := validateOptionalURI("replies_to", n.RepliesTo); err != nil {
		return err
	}
	if err := validateOptionalURI("quotes", n.Quotes); err != nil {
		return err
	}
	switch n.Visibility {
	case "", VisibilityPublic, VisibilityUnlisted, VisibilityFollower, VisibilityDirect:
	default:
		return validationError("visibility", "must be one of public, unlisted, followers, direct")
	}
	return nil
}
