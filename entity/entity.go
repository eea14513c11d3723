// Package entity defines the closed set of typed Versia wire entities and
// their strict structural validation. Entities are wire-format values:
// they are parsed from untrusted remote bytes, validated, and then owned
// immutably by the caller. Persistence is an external collaborator.
package entity

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/versia-works/federation/errors"
)

// Wire type discriminants. Extension entities use namespaced types.
const (
	TypeNote             = "Note"
	TypeUser             = "User"
	TypeFollow           = "Follow"
	TypeFollowAccept     = "FollowAccept"
	TypeFollowReject     = "FollowReject"
	TypeUnfollow         = "Unfollow"
	TypeDelete           = "Delete"
	TypeInstanceMetadata = "InstanceMetadata"
	TypeCollection       = "Collection"
	TypeLike             = "pub.versia:likes/Like"
	TypeReaction         = "pub.versia:reactions/Reaction"
	TypeShare            = "pub.versia:share/Share"
)

// MaxIDLength bounds the wire id field.
const MaxIDLength = 512

// Entity is implemented by every concrete wire entity. The set of
// implementations is closed: the parser produces the tag and the inbox
// processor dispatches with an exhaustive type switch.
type Entity interface {
	// EntityType returns the wire type discriminant.
	EntityType() string

	// Common returns the shared base fields.
	Common() *Base

	// Validate checks type-specific structural invariants. It is called
	// by Parse after strict unmarshaling; a non-nil return is always an
	// invalid-class error.
	Validate() error
}

// Base holds the fields shared by all wire entities.
type Base struct {
	ID         string                     `json:"id"`
	URI        string                     `json:"uri"`
	Type       string                     `json:"type"`
	CreatedAt  time.Time                  `json:"created_at"`
	Extensions map[string]json.RawMessage `json:"extensions,omitempty"`
}

// Common implements Entity.
func (b *Base) Common() *Base { return b }

// validateBase checks the shared invariants: non-empty bounded id, an
// absolute uri, and a set timestamp.
func (b *Base) validateBase() error {
	if b.ID == "" {
		return validationError("id", "must not be empty")
	}
	if len(b.ID) > MaxIDLength {
		return validationError("id", fmt.Sprintf("must be at most %d characters", MaxIDLength))
	}
	if err := validateAbsoluteURI("uri", b.URI); err != nil {
		return err
	}
	if b.CreatedAt.IsZero() {
		return validationError("created_at", "must be a valid timestamp")
	}
	return nil
}

// URL returns the parsed entity URI. Validate guarantees it parses.
func (b *Base) URL() (*url.URL, error) {
	return url.Parse(b.URI)
}

// validationError builds an invalid-class error naming the offending field.
func validationError(field, reason string) error {
	return errors.WrapInvalid(errors.ErrInvalidData, "Entity", "Validate",
		fmt.Sprintf("field %q %s", field, reason))
}

// validateAbsoluteURI requires a non-empty absolute http(s) URI.
func validateAbsoluteURI(field, raw string) error {
	if raw == "" {
		return validationError(field, "must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return validationError(field, "must be a valid URI")
	}
	if !u.IsAbs() || u.Host == "" {
		return validationError(field, "must be an absolute URI")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validationError(field, "must use http or https")
	}
	return nil
}

// validateOptionalURI applies validateAbsoluteURI only when set.
func validateOptionalURI(field, raw string) error {
	if raw == "" {
		return nil
	}
	return validateAbsoluteURI(field, raw)
}
