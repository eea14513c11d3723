package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/versia-works/federation/entity"
	"github.com/versia-works/federation/errors"
)

// Handlers return (Response, error). A nil error carries the verdict in
// the Response. An *errors.APIError is a verdict about the remote's data
// (delivered, never retried); any other error is an infrastructure
// failure that the queue layer may redeliver.

func (p *Processor) handleNote(ctx context.Context, note *entity.Note) (Response, error) {
	author, err := p.stores.Users.RemoteUserByURI(ctx, note.Author)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleNote", "author lookup failed")
	}
	if author == nil {
		return Response{}, errors.NotFound("Note author not found")
	}

	created, err := p.stores.Notes.UpsertNote(ctx, note, author.ID)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleNote", "note upsert failed")
	}
	if created {
		p.logger.Info("note created", "uri", note.URI, "author", note.Author)
		return Accepted(), nil
	}
	return Text(200, "Note updated"), nil
}

// handleUser re-fetches the profile from its canonical URI rather than
// trusting the delivered document; the inbox copy is only a hint that
// something changed.
func (p *Processor) handleUser(ctx context.Context, user *entity.User) (Response, error) {
	if err := p.stores.Users.RefreshRemoteUser(ctx, user.URI); err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleUser", "profile refresh failed")
	}
	return Text(200, "User refreshed"), nil
}

func (p *Processor) handleFollow(ctx context.Context, follow *entity.Follow) (Response, error) {
	author, err := p.stores.Users.RemoteUserByURI(ctx, follow.Author)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleFollow", "author lookup failed")
	}
	if author == nil {
		return Response{}, errors.NotFound("Follow author not found")
	}
	followee, err := p.stores.Users.LocalUserByURI(ctx, follow.Followee)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleFollow", "followee lookup failed")
	}
	if followee == nil {
		return Response{}, errors.NotFound("Followee not found")
	}

	rel, err := p.stores.Relationships.CreateOrGet(ctx, author.ID, followee.ID)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleFollow", "relationship upsert failed")
	}
	if rel.Following {
		return Text(200, "Already following"), nil
	}

	if followee.Locked {
		if rel.Requested {
			return Text(200, "Follow request already pending"), nil
		}
		rel.Requested = true
		if err := p.stores.Relationships.Update(ctx, rel); err != nil {
			return Response{}, errors.WrapTransient(err, "inbox", "handleFollow", "relationship update failed")
		}
		p.notify(ctx, NotificationFollowRequest, followee.ID, author.ID, "")
		return Text(200, "Follow request sent"), nil
	}

	rel.Following = true
	rel.Requested = false
	if err := p.stores.Relationships.Update(ctx, rel); err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleFollow", "relationship update failed")
	}
	p.notify(ctx, NotificationFollow, followee.ID, author.ID, "")

	if p.deliverer != nil {
		accept := p.newFollowAccept(followee.URI, author.URI)
		if err := p.deliverer.Deliver(ctx, accept, author.ID, followee.ID); err != nil {
			// The follow state is already committed; the accept will
			// reach the remote on its next retry or profile refresh.
			p.logger.Error("failed to enqueue follow accept",
				"follower", author.URI, "followee", followee.URI, "error", err)
		}
	}
	return Text(200, "Follow accepted"), nil
}

func (p *Processor) handleFollowAccept(ctx context.Context, accept *entity.FollowAccept) (Response, error) {
	author, follower, err := p.followParties(ctx, accept.Author, accept.Follower, "handleFollowAccept")
	if err != nil {
		return Response{}, err
	}

	rel, err := p.stores.Relationships.Relationship(ctx, follower.ID, author.ID)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleFollowAccept", "relationship lookup failed")
	}
	// Only a pending request can be accepted; an unsolicited accept is
	// ignored rather than rejected so replays stay harmless.
	if rel == nil || !rel.Requested {
		return Text(200, "No pending follow request"), nil
	}
	rel.Following = true
	rel.Requested = false
	if err := p.stores.Relationships.Update(ctx, rel); err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleFollowAccept", "relationship update failed")
	}
	return Text(200, "Follow request accepted"), nil
}

func (p *Processor) handleFollowReject(ctx context.Context, reject *entity.FollowReject) (Response, error) {
	author, follower, err := p.followParties(ctx, reject.Author, reject.Follower, "handleFollowReject")
	if err != nil {
		return Response{}, err
	}

	rel, err := p.stores.Relationships.Relationship(ctx, follower.ID, author.ID)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleFollowReject", "relationship lookup failed")
	}
	if rel == nil || !rel.Requested {
		return Text(200, "No pending follow request"), nil
	}
	rel.Following = false
	rel.Requested = false
	if err := p.stores.Relationships.Update(ctx, rel); err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleFollowReject", "relationship update failed")
	}
	return Text(200, "Follow request rejected"), nil
}

func (p *Processor) handleUnfollow(ctx context.Context, unfollow *entity.Unfollow) (Response, error) {
	author, err := p.stores.Users.RemoteUserByURI(ctx, unfollow.Author)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleUnfollow", "author lookup failed")
	}
	if author == nil {
		return Response{}, errors.NotFound("Unfollow author not found")
	}
	followee, err := p.stores.Users.LocalUserByURI(ctx, unfollow.Followee)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleUnfollow", "followee lookup failed")
	}
	if followee == nil {
		return Response{}, errors.NotFound("Followee not found")
	}

	rel, err := p.stores.Relationships.Relationship(ctx, author.ID, followee.ID)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleUnfollow", "relationship lookup failed")
	}
	if rel == nil || (!rel.Following && !rel.Requested) {
		return Text(200, "Not following"), nil
	}
	rel.Following = false
	rel.Requested = false
	if err := p.stores.Relationships.Update(ctx, rel); err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleUnfollow", "relationship update failed")
	}
	return Text(200, "Unfollowed"), nil
}

func (p *Processor) handleDelete(ctx context.Context, del *entity.Delete, snd sender) (Response, error) {
	// A Delete without an author field falls back to the signer.
	actorURI := del.Author
	if actorURI == "" {
		actorURI = snd.uri
	}

	switch del.DeletedType {
	case entity.DeletedTypeNote:
		actor, err := p.deleteActor(ctx, actorURI)
		if err != nil {
			return Response{}, err
		}
		note, err := p.stores.Notes.NoteByURI(ctx, del.Deleted)
		if err != nil {
			return Response{}, errors.WrapTransient(err, "inbox", "handleDelete", "note lookup failed")
		}
		// Absence and foreign ownership collapse into one answer so a
		// sender cannot probe which notes exist here.
		if note == nil || note.AuthorID != actor.ID {
			return Response{}, errors.NotFound("Note to delete not found or not owned by sender")
		}
		if err := p.stores.Notes.DeleteNote(ctx, note.ID); err != nil {
			return Response{}, errors.WrapTransient(err, "inbox", "handleDelete", "note delete failed")
		}
		return Text(200, "Note deleted"), nil

	case entity.DeletedTypeLike:
		actor, err := p.deleteActor(ctx, actorURI)
		if err != nil {
			return Response{}, err
		}
		like, err := p.stores.Likes.LikeByURI(ctx, del.Deleted)
		if err != nil {
			return Response{}, errors.WrapTransient(err, "inbox", "handleDelete", "like lookup failed")
		}
		if like == nil || like.AuthorID != actor.ID {
			return Response{}, errors.NotFound("Like to delete not found or not owned by sender")
		}
		if err := p.stores.Likes.DeleteLike(ctx, like.ID); err != nil {
			return Response{}, errors.WrapTransient(err, "inbox", "handleDelete", "like delete failed")
		}
		return Text(200, "Like deleted"), nil

	case entity.DeletedTypeUser:
		// Users may only delete themselves.
		if actorURI == "" || del.Deleted != actorURI {
			return Response{}, errors.NotFound("User to delete not found or not owned by sender")
		}
		user, err := p.stores.Users.RemoteUserByURI(ctx, del.Deleted)
		if err != nil {
			return Response{}, errors.WrapTransient(err, "inbox", "handleDelete", "user lookup failed")
		}
		if user == nil {
			return Response{}, errors.NotFound("User to delete not found or not owned by sender")
		}
		if err := p.stores.Users.DeleteRemoteUser(ctx, user.ID); err != nil {
			return Response{}, errors.WrapTransient(err, "inbox", "handleDelete", "user delete failed")
		}
		return Text(200, "User deleted"), nil

	default:
		return Response{}, errors.NewAPIErrorf(400, "unsupported_deleted_type",
			"Cannot delete entities of type %q", del.DeletedType)
	}
}

func (p *Processor) handleLike(ctx context.Context, like *entity.Like) (Response, error) {
	author, err := p.stores.Users.RemoteUserByURI(ctx, like.Author)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleLike", "author lookup failed")
	}
	if author == nil {
		return Response{}, errors.NotFound("Like author not found")
	}
	note, err := p.stores.Notes.NoteByURI(ctx, like.Liked)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleLike", "note lookup failed")
	}
	if note == nil {
		return Response{}, errors.NotFound("Liked note not found")
	}

	existing, err := p.stores.Likes.LikeByAuthorAndNote(ctx, author.ID, note.ID)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleLike", "like lookup failed")
	}
	if existing != nil {
		return Text(200, "Note liked"), nil
	}

	rec := &Like{ID: uuid.NewString(), URI: like.URI, AuthorID: author.ID, NoteID: note.ID}
	if err := p.stores.Likes.CreateLike(ctx, rec); err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleLike", "like create failed")
	}
	if note.Local {
		p.notify(ctx, NotificationFavourite, note.AuthorID, author.ID, note.ID)
	}
	return Text(200, "Note liked"), nil
}

func (p *Processor) handleReaction(ctx context.Context, reaction *entity.Reaction) (Response, error) {
	author, err := p.stores.Users.RemoteUserByURI(ctx, reaction.Author)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleReaction", "author lookup failed")
	}
	if author == nil {
		return Response{}, errors.NotFound("Reaction author not found")
	}
	note, err := p.stores.Notes.NoteByURI(ctx, reaction.Object)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleReaction", "note lookup failed")
	}
	if note == nil {
		return Response{}, errors.NotFound("Reacted note not found")
	}
	if p.stores.Reactions == nil {
		return Text(200, "Reaction ignored"), nil
	}

	existing, err := p.stores.Reactions.ReactionByURI(ctx, reaction.URI)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleReaction", "reaction lookup failed")
	}
	if existing != nil {
		return Text(200, "Reaction added"), nil
	}
	rec := &Reaction{
		ID:       uuid.NewString(),
		URI:      reaction.URI,
		AuthorID: author.ID,
		NoteID:   note.ID,
		Content:  reaction.Content,
	}
	if err := p.stores.Reactions.CreateReaction(ctx, rec); err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleReaction", "reaction create failed")
	}
	if note.Local {
		p.notify(ctx, NotificationReaction, note.AuthorID, author.ID, note.ID)
	}
	return Text(200, "Reaction added"), nil
}

func (p *Processor) handleShare(ctx context.Context, share *entity.Share) (Response, error) {
	author, err := p.stores.Users.RemoteUserByURI(ctx, share.Author)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleShare", "author lookup failed")
	}
	if author == nil {
		return Response{}, errors.NotFound("Share author not found")
	}
	note, err := p.stores.Notes.NoteByURI(ctx, share.Shared)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleShare", "note lookup failed")
	}
	if note == nil {
		return Response{}, errors.NotFound("Shared note not found")
	}
	if p.stores.Shares == nil {
		return Text(200, "Note shared"), nil
	}

	existing, err := p.stores.Shares.ShareByURI(ctx, share.URI)
	if err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleShare", "share lookup failed")
	}
	if existing != nil {
		return Text(200, "Note shared"), nil
	}
	rec := &Share{ID: uuid.NewString(), URI: share.URI, AuthorID: author.ID, NoteID: note.ID}
	if err := p.stores.Shares.CreateShare(ctx, rec); err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleShare", "share create failed")
	}
	if note.Local {
		p.notify(ctx, NotificationReblog, note.AuthorID, author.ID, note.ID)
	}
	return Text(200, "Note shared"), nil
}

func (p *Processor) handleInstanceMetadata(ctx context.Context, meta *entity.InstanceMetadata) (Response, error) {
	if err := p.stores.Instances.UpsertInstance(ctx, meta); err != nil {
		return Response{}, errors.WrapTransient(err, "inbox", "handleInstanceMetadata", "instance upsert failed")
	}
	return Text(200, "Instance metadata updated"), nil
}

// followParties resolves the remote author and local follower of an
// accept/reject. Either party missing is a 404 verdict.
func (p *Processor) followParties(ctx context.Context, authorURI, followerURI, op string) (*RemoteUser, *LocalUser, error) {
	author, err := p.stores.Users.RemoteUserByURI(ctx, authorURI)
	if err != nil {
		return nil, nil, errors.WrapTransient(err, "inbox", op, "author lookup failed")
	}
	if author == nil {
		return nil, nil, errors.NotFound("Follow author not found")
	}
	follower, err := p.stores.Users.LocalUserByURI(ctx, followerURI)
	if err != nil {
		return nil, nil, errors.WrapTransient(err, "inbox", op, "follower lookup failed")
	}
	if follower == nil {
		return nil, nil, errors.NotFound("Follower not found")
	}
	return author, follower, nil
}

func (p *Processor) deleteActor(ctx context.Context, uri string) (*RemoteUser, error) {
	if uri == "" {
		return nil, errors.NotFound("Delete author not found")
	}
	actor, err := p.stores.Users.RemoteUserByURI(ctx, uri)
	if err != nil {
		return nil, errors.WrapTransient(err, "inbox", "handleDelete", "actor lookup failed")
	}
	if actor == nil {
		return nil, errors.NotFound("Delete author not found")
	}
	return actor, nil
}

// notify records a notification; failures are logged, never fatal to the
// entity that caused them.
func (p *Processor) notify(ctx context.Context, kind, userID, accountID, noteID string) {
	n := &Notification{
		ID:        uuid.NewString(),
		Type:      kind,
		UserID:    userID,
		AccountID: accountID,
		NoteID:    noteID,
	}
	if err := p.stores.Notifications.CreateNotification(ctx, n); err != nil {
		p.logger.Error("failed to create notification", "type", kind, "user", userID, "error", err)
	}
}

func (p *Processor) newFollowAccept(followeeURI, followerURI string) *entity.FollowAccept {
	id := uuid.NewString()
	return &entity.FollowAccept{
		Base: entity.Base{
			ID:        id,
			URI:       fmt.Sprintf("https://%s/follows/%s/accept", p.fed.Domain, id),
			Type:      entity.TypeFollowAccept,
			CreatedAt: time.Now().UTC(),
		},
		Author:   followeeURI,
		Follower: followerURI,
	}
}
