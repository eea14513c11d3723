package inbox

import (
	"context"
	"crypto/ed25519"

	"github.com/versia-works/federation/entity"
)

// Persistence is an external collaborator. The processor talks to these
// narrow interfaces and assumes read-committed-or-stronger isolation per
// call; multi-step upserts (CreateOrGet) are the store's responsibility
// to make atomic.
//
// Lookup methods return (nil, nil) when the record does not exist;
// a non-nil error always means infrastructure failure, never absence.

// RemoteUser is a locally cached remote actor.
type RemoteUser struct {
	ID        string
	URI       string
	Inbox     string
	Host      string
	PublicKey ed25519.PublicKey
}

// LocalUser is an account homed on this instance.
type LocalUser struct {
	ID  string
	URI string

	// Locked accounts approve follows manually; open accounts
	// auto-accept.
	Locked bool
}

// Note is a locally persisted copy of a federated note.
type Note struct {
	ID       string
	URI      string
	AuthorID string

	// Local is true when the note belongs to a user homed here, which
	// decides whether interactions generate notifications.
	Local bool
}

// Relationship is the directed follow state from Owner toward Subject.
type Relationship struct {
	OwnerID   string
	SubjectID string
	Following bool
	Requested bool
}

// Like is a persisted like record.
type Like struct {
	ID       string
	URI      string
	AuthorID string
	NoteID   string
}

// Share is a persisted boost record.
type Share struct {
	ID       string
	URI      string
	AuthorID string
	NoteID   string
}

// Reaction is a persisted emoji reaction.
type Reaction struct {
	ID       string
	URI      string
	AuthorID string
	NoteID   string
	Content  string
}

// Instance is a known remote instance.
type Instance struct {
	ID          string
	Host        string
	PublicKey   ed25519.PublicKey
	SharedInbox string
}

// Notification types produced by inbox handlers.
const (
	NotificationFollow        = "follow"
	NotificationFollowRequest = "follow_request"
	NotificationFavourite     = "favourite"
	NotificationReblog        = "reblog"
	NotificationReaction      = "reaction"
)

// Notification is an alert for a local user.
type Notification struct {
	ID        string
	Type      string
	UserID    string // local recipient
	AccountID string // acting remote user
	NoteID    string // related note, if any
}

// UserStore resolves and mutates user records.
type UserStore interface {
	RemoteUserByURI(ctx context.Context, uri string) (*RemoteUser, error)
	LocalUserByURI(ctx context.Context, uri string) (*LocalUser, error)

	// RefreshRemoteUser re-fetches the user's profile from its canonical
	// URI and replaces the local copy wholesale. Inbox-supplied profile
	// data is never patched in directly.
	RefreshRemoteUser(ctx context.Context, uri string) error

	DeleteRemoteUser(ctx context.Context, id string) error
}

// NoteStore persists federated notes.
type NoteStore interface {
	NoteByURI(ctx context.Context, uri string) (*Note, error)

	// UpsertNote creates or replaces the local copy keyed by URI.
	// Returns true when a new record was created.
	UpsertNote(ctx context.Context, note *entity.Note, authorID string) (created bool, err error)

	DeleteNote(ctx context.Context, id string) error
}

// RelationshipStore persists directed follow state.
type RelationshipStore interface {
	Relationship(ctx context.Context, ownerID, subjectID string) (*Relationship, error)

	// CreateOrGet returns the existing relationship or atomically
	// creates an empty one.
	CreateOrGet(ctx context.Context, ownerID, subjectID string) (*Relationship, error)

	Update(ctx context.Context, rel *Relationship) error
}

// LikeStore persists likes.
type LikeStore interface {
	LikeByAuthorAndNote(ctx context.Context, authorID, noteID string) (*Like, error)
	LikeByURI(ctx context.Context, uri string) (*Like, error)
	CreateLike(ctx context.Context, like *Like) error
	DeleteLike(ctx context.Context, id string) error
}

// ShareStore persists boosts.
type ShareStore interface {
	ShareByURI(ctx context.Context, uri string) (*Share, error)
	CreateShare(ctx context.Context, share *Share) error
}

// ReactionStore persists emoji reactions.
type ReactionStore interface {
	ReactionByURI(ctx context.Context, uri string) (*Reaction, error)
	CreateReaction(ctx context.Context, reaction *Reaction) error
}

// NotificationStore records alerts for local users.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
}

// InstanceStore resolves remote instances. ResolveInstance performs an
// external lookup (and may fetch instance metadata on first contact); it
// must return an error only for infrastructure failure.
type InstanceStore interface {
	ResolveInstance(ctx context.Context, host string) (*Instance, error)
	UpsertInstance(ctx context.Context, meta *entity.InstanceMetadata) error
}

// Deliverer enqueues an outbound entity for federation to one recipient.
// The inbox processor uses it to auto-accept follows to open accounts.
type Deliverer interface {
	Deliver(ctx context.Context, ent entity.Entity, recipientID, senderID string) error
}

// Stores bundles the persistence collaborators handed to the processor.
type Stores struct {
	Users         UserStore
	Notes         NoteStore
	Relationships RelationshipStore
	Likes         LikeStore
	Shares        ShareStore
	Reactions     ReactionStore
	Notifications NotificationStore
	Instances     InstanceStore
}
