package entity

// InstanceMetadata describes a remote instance: software, protocol
// compatibility, and the instance-level signing key used for requests
// signed as "instance <host>".
type InstanceMetadata struct {
	Base

	// Name is the human-readable instance name.
	Name string `json:"name"`

	// Host is the instance's canonical hostname.
	Host string `json:"host"`

	// Description is an optional instance summary.
	Description string `json:"description,omitempty"`

	// Software identifies the server implementation.
	Software InstanceSoftware `json:"software"`

	// Versions lists the protocol versions the instance speaks.
	Versions []string `json:"compatibility,omitempty"`

	// PublicKey is the instance-level Ed25519 signing key.
	PublicKey *InstanceKey `json:"public_key,omitempty"`

	// SharedInbox is the instance-wide inbox URI, if offered.
	SharedInbox string `json:"shared_inbox,omitempty"`

	// Moderators and Admins are contact collection URIs.
	Moderators string `json:"moderators,omitempty"`
	Admins     string `json:"admins,omitempty"`
}

// InstanceSoftware identifies the server implementation.
type InstanceSoftware struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InstanceKey is an instance-level signing key.
type InstanceKey struct {
	Algorithm string `json:"algorithm"`
	Key       string `json:"key"`
}

// EntityType implements Entity.
func (im *InstanceMetadata) EntityType() string { return TypeInstanceMetadata }

// Validate implements Entity.
func (im *InstanceMetadata) Validate() error {
	if err := im.validateBase(); err != nil {
		return err
	}
	if im.Name == "" {
		return validationError("name", "must not be empty")
	}
	if im.Host == "" {
		return validationError("host", "must not be empty")
	}
	if im.Software.Name == "" {
		return validationError("software.name", "must not be empty")
	}
	if im.PublicKey != nil {
		if im.PublicKey.Algorithm != "ed25519" {
			return validationError("public_key.algorithm", "must be \"ed25519\"")
		}
		if im.PublicKey.Key == "" {
			return validationError("public_key.key", "must not be empty")
		}
	}
	if err := validateOptionalURI("shared_inbox", im.SharedInbox); err != nil {
		return err
	}
	if err := validateOptionalURI("moderators", im.Moderators); err != nil {
		return err
	}
	return validateOptionalURI("admins", im.Admins)
}
