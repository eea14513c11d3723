package entity

// User is the wire representation of an actor's profile. Inbox delivery of
// a User entity triggers a refetch from its canonical URI rather than a
// patch from the payload; the wire shape is still fully validated because
// the refetched document arrives through the same parser.
type User struct {
	Base

	// Username is the instance-local handle.
	Username string `json:"username"`

	// DisplayName is the freeform display name.
	DisplayName string `json:"display_name,omitempty"`

	// Bio is the profile description.
	Bio ContentFormat `json:"bio,omitempty"`

	// Avatar and Header are profile images.
	Avatar ContentFormat `json:"avatar,omitempty"`
	Header ContentFormat `json:"header,omitempty"`

	// PublicKey binds the actor to its Ed25519 signing key.
	PublicKey UserPublicKey `json:"public_key"`

	// Inbox is where entities addressed to this user are POSTed.
	Inbox string `json:"inbox"`

	// Collections maps collection names ("outbox", "followers", ...) to
	// their URIs.
	Collections map[string]string `json:"collections,omitempty"`

	// Fields are profile metadata rows.
	Fields []UserField `json:"fields,omitempty"`

	// ManuallyApprovesFollowers marks a locked account: follows stay in
	// the requested state until accepted.
	ManuallyApprovesFollowers bool `json:"manually_approves_followers,omitempty"`
}

// UserPublicKey is the actor signing key descriptor.
type UserPublicKey struct {
	// Actor is the URI of the key owner.
	Actor string `json:"actor"`

	// Algorithm is always "ed25519".
	Algorithm string `json:"algorithm"`

	// Key is the base64-encoded public key.
	Key string `json:"key"`
}

// UserField is one profile metadata row.
type UserField struct {
	Key   ContentFormat `json:"key"`
	Value ContentFormat `json:"value"`
}

// EntityType implements Entity.
func (u *User) EntityType() string { return TypeUser }

// Validate implements Entity.
func (u *User) Validate() error {
	if err := u.validateBase(); err != nil {
		return err
	}
	if u.Username == "" {
		return validationError("username", "must not be empty")
	}
	if err := validateAbsoluteURI("inbox", u.Inbox); err != nil {
		return err
	}
	if err := validateAbsoluteURI("public_key.actor", u.PublicKey.Actor); err != nil {
		return err
	}
	if u.PublicKey.Algorithm != "ed25519" {
		return validationError("public_key.algorithm", "must be \"ed25519\"")
	}
	if u.PublicKey.Key == "" {
		return validationError("public_key.key", "must not be empty")
	}
	for _, cf := range []struct {
		name string
		val  ContentFormat
	}{
		{"bio", u.Bio},
		{"avatar", u.Avatar},
		{"header", u.Header},
	} {
		if err := cf.val.Validate(cf.name); err != nil {
			return err
		}
	}
	for _, uri := range u.Collections {
		if err := validateAbsoluteURI("collections", uri); err != nil {
			return err
		}
	}
	for _, f := range u.Fields {
		if err := f.Key.Validate("fields.key"); err != nil {
			return err
		}
		if err := f.Value.Validate("fields.value"); err != nil {
			return err
		}
	}
	return nil
}
