package entity

// Target types a Delete may name.
const (
	DeletedTypeNote = "Note"
	DeletedTypeUser = "User"
	DeletedTypeLike = "pub.versia:likes/Like"
)

// Delete asks the receiver to remove a previously federated entity. The
// receiver must verify ownership: notes and likes must belong to the
// sender, and a user deletion is only permitted for the user itself.
type Delete struct {
	Base

	// Author is the URI of the deleting user. May be empty for
	// instance-level deletes, in which case the signer vouches.
	Author string `json:"author,omitempty"`

	// DeletedType names the kind of entity being deleted.
	DeletedType string `json:"deleted_type"`

	// Deleted is the URI of the entity to delete.
	Deleted string `json:"deleted"`
}

// EntityType implements Entity.
func (d *Delete) EntityType() string { return TypeDelete }

// Validate implements Entity.
func (d *Delete) Validate() error {
	if err := d.validateBase(); err != nil {
		return err
	}
	if err := validateOptionalURI("author", d.Author); err != nil {
		return err
	}
	if d.DeletedType == "" {
		return validationError("deleted_type", "must not be empty")
	}
	return validateAbsoluteURI("deleted", d.Deleted)
}
