package inbox

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/versia-works/federation/config"
	"github.com/versia-works/federation/entity"
	"github.com/versia-works/federation/signature"
	"github.com/versia-works/federation/trust"
)

// memStore is an in-memory implementation of every store interface, with
// per-method failure injection.
type memStore struct {
	remoteUsers map[string]*RemoteUser // by URI
	localUsers  map[string]*LocalUser  // by URI
	notes       map[string]*Note       // by URI
	rels        map[string]*Relationship
	likes       map[string]*Like     // by URI
	shares      map[string]*Share    // by URI
	reactions   map[string]*Reaction // by URI
	instances   map[string]*Instance // by host
	notifs      []*Notification
	refreshed   []string
	deleted     []string

	errOn map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		remoteUsers: map[string]*RemoteUser{},
		localUsers:  map[string]*LocalUser{},
		notes:       map[string]*Note{},
		rels:        map[string]*Relationship{},
		likes:       map[string]*Like{},
		shares:      map[string]*Share{},
		reactions:   map[string]*Reaction{},
		instances:   map[string]*Instance{},
		errOn:       map[string]error{},
	}
}

func (m *memStore) fail(method string) error { return m.errOn[method] }

func (m *memStore) RemoteUserByURI(_ context.Context, uri string) (*RemoteUser, error) {
	if err := m.fail("RemoteUserByURI"); err != nil {
		return nil, err
	}
	return m.remoteUsers[uri], nil
}

func (m *memStore) LocalUserByURI(_ context.Context, uri string) (*LocalUser, error) {
	return m.localUsers[uri], nil
}

func (m *memStore) RefreshRemoteUser(_ context.Context, uri string) error {
	if err := m.fail("RefreshRemoteUser"); err != nil {
		return err
	}
	m.refreshed = append(m.refreshed, uri)
	return nil
}

func (m *memStore) DeleteRemoteUser(_ context.Context, id string) error {
	m.deleted = append(m.deleted, "user:"+id)
	return nil
}

func (m *memStore) NoteByURI(_ context.Context, uri string) (*Note, error) {
	return m.notes[uri], nil
}

func (m *memStore) UpsertNote(_ context.Context, note *entity.Note, authorID string) (bool, error) {
	if err := m.fail("UpsertNote"); err != nil {
		return false, err
	}
	if existing, ok := m.notes[note.URI]; ok {
		existing.AuthorID = authorID
		return false, nil
	}
	m.notes[note.URI] = &Note{ID: "n-" + note.ID, URI: note.URI, AuthorID: authorID}
	return true, nil
}

func (m *memStore) DeleteNote(_ context.Context, id string) error {
	for uri, n := range m.notes {
		if n.ID == id {
			delete(m.notes, uri)
		}
	}
	m.deleted = append(m.deleted, "note:"+id)
	return nil
}

func relKey(owner, subject string) string { return owner + "|" + subject }

func (m *memStore) Relationship(_ context.Context, ownerID, subjectID string) (*Relationship, error) {
	return m.rels[relKey(ownerID, subjectID)], nil
}

func (m *memStore) CreateOrGet(_ context.Context, ownerID, subjectID string) (*Relationship, error) {
	if rel, ok := m.rels[relKey(ownerID, subjectID)]; ok {
		return rel, nil
	}
	rel := &Relationship{OwnerID: ownerID, SubjectID: subjectID}
	m.rels[relKey(ownerID, subjectID)] = rel
	return rel, nil
}

func (m *memStore) Update(_ context.Context, rel *Relationship) error {
	m.rels[relKey(rel.OwnerID, rel.SubjectID)] = rel
	return nil
}

func (m *memStore) LikeByAuthorAndNote(_ context.Context, authorID, noteID string) (*Like, error) {
	for _, l := range m.likes {
		if l.AuthorID == authorID && l.NoteID == noteID {
			return l, nil
		}
	}
	return nil, nil
}

func (m *memStore) LikeByURI(_ context.Context, uri string) (*Like, error) {
	return m.likes[uri], nil
}

func (m *memStore) CreateLike(_ context.Context, like *Like) error {
	m.likes[like.URI] = like
	return nil
}

func (m *memStore) DeleteLike(_ context.Context, id string) error {
	for uri, l := range m.likes {
		if l.ID == id {
			delete(m.likes, uri)
		}
	}
	m.deleted = append(m.deleted, "like:"+id)
	return nil
}

func (m *memStore) ShareByURI(_ context.Context, uri string) (*Share, error) {
	return m.shares[uri], nil
}

func (m *memStore) CreateShare(_ context.Context, share *Share) error {
	m.shares[share.URI] = share
	return nil
}

func (m *memStore) ReactionByURI(_ context.Context, uri string) (*Reaction, error) {
	return m.reactions[uri], nil
}

func (m *memStore) CreateReaction(_ context.Context, reaction *Reaction) error {
	m.reactions[reaction.URI] = reaction
	return nil
}

func (m *memStore) CreateNotification(_ context.Context, n *Notification) error {
	m.notifs = append(m.notifs, n)
	return nil
}

func (m *memStore) ResolveInstance(_ context.Context, host string) (*Instance, error) {
	if err := m.fail("ResolveInstance"); err != nil {
		return nil, err
	}
	if inst, ok := m.instances[host]; ok {
		return inst, nil
	}
	inst := &Instance{ID: "i-" + host, Host: host}
	m.instances[host] = inst
	return inst, nil
}

func (m *memStore) UpsertInstance(_ context.Context, meta *entity.InstanceMetadata) error {
	m.instances[meta.Host] = &Instance{ID: "i-" + meta.Host, Host: meta.Host}
	return nil
}

func (m *memStore) stores() Stores {
	return Stores{
		Users:         m,
		Notes:         m,
		Relationships: m,
		Likes:         m,
		Shares:        m,
		Reactions:     m,
		Notifications: m,
		Instances:     m,
	}
}

type fakeDeliverer struct {
	delivered []entity.Entity
	err       error
}

func (f *fakeDeliverer) Deliver(_ context.Context, ent entity.Entity, _, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, ent)
	return nil
}

const (
	aliceURI = "https://remote.example/users/alice"
	mallURI  = "https://remote.example/users/mallory"
	bobURI   = "https://local.example/users/bob"
)

type fixture struct {
	proc      *Processor
	store     *memStore
	deliverer *fakeDeliverer
	alicePriv ed25519.PrivateKey
	signer    *signature.Signer
}

func newFixture(t *testing.T, mutate func(cfg *config.Config)) *fixture {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Federation.Domain = "local.example"
	cfg.Federation.Blocked = []string{"evil.example", "*.banned.example"}
	if mutate != nil {
		mutate(cfg)
	}

	store := newMemStore()
	store.remoteUsers[aliceURI] = &RemoteUser{
		ID: "u-alice", URI: aliceURI, Host: "remote.example",
		Inbox: "https://remote.example/users/alice/inbox", PublicKey: pub,
	}
	store.localUsers[bobURI] = &LocalUser{ID: "u-bob", URI: bobURI}

	deliverer := &fakeDeliverer{}
	resolver := trust.NewResolver(cfg.Bridge, cfg.Federation.Blocked)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	proc, err := NewProcessor(store.stores(), resolver, deliverer, cfg, logger, nil)
	require.NoError(t, err)

	return &fixture{
		proc:      proc,
		store:     store,
		deliverer: deliverer,
		alicePriv: priv,
		signer:    signature.NewSigner(priv, aliceURI),
	}
}

func (f *fixture) signedJob(t *testing.T, body []byte) Job {
	t.Helper()
	req := signature.Request{Method: "POST", Path: "/inbox", Body: body}
	return Job{
		Body:     body,
		Headers:  f.signer.Sign(req),
		Method:   "POST",
		Path:     "/inbox",
		SourceIP: "203.0.113.9",
	}
}

func marshalEntity(t *testing.T, ent entity.Entity) []byte {
	t.Helper()
	b, err := json.Marshal(ent)
	require.NoError(t, err)
	return b
}

func baseFor(id, uri, wireType string) entity.Base {
	return entity.Base{
		ID:        id,
		URI:       uri,
		Type:      wireType,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testNote(id string) *entity.Note {
	return &entity.Note{
		Base:   baseFor(id, "https://remote.example/notes/"+id, entity.TypeNote),
		Author: aliceURI,
		Content: entity.ContentFormat{
			"text/plain": {Content: "hello", Remote: false},
		},
		Visibility: entity.VisibilityPublic,
	}
}

func TestProcess_NoteCreated(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.proc.Process(context.Background(), f.signedJob(t, marshalEntity(t, testNote("n1"))))

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Empty(t, resp.Body)
	require.Contains(t, f.store.notes, "https://remote.example/notes/n1")
	assert.Equal(t, "u-alice", f.store.notes["https://remote.example/notes/n1"].AuthorID)
}

func TestProcess_NoteUpdated(t *testing.T) {
	f := newFixture(t, nil)
	job := f.signedJob(t, marshalEntity(t, testNote("n1")))

	first := f.proc.Process(context.Background(), job)
	second := f.proc.Process(context.Background(), job)

	assert.Equal(t, http.StatusCreated, first.Status)
	assert.Equal(t, http.StatusOK, second.Status)
	assert.Equal(t, "Note updated", second.Body)
}

func TestProcess_NoteAuthorUnknown(t *testing.T) {
	f := newFixture(t, nil)
	note := testNote("n1")
	note.Author = "https://remote.example/users/ghost"
	// Signed by alice, authored by a user this instance has never seen.
	resp := f.proc.Process(context.Background(), f.signedJob(t, marshalEntity(t, note)))

	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Contains(t, resp.Body, "Note author not found")
	assert.Empty(t, f.store.notes)
}

func TestProcess_TamperedBody(t *testing.T) {
	f := newFixture(t, nil)
	job := f.signedJob(t, marshalEntity(t, testNote("n1")))
	job.Body = []byte(`{"tampered":true}`)

	resp := f.proc.Process(context.Background(), job)

	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Empty(t, f.store.notes)
}

func TestProcess_UnknownSigner(t *testing.T) {
	f := newFixture(t, nil)
	_, strangerPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	stranger := signature.NewSigner(strangerPriv, "https://remote.example/users/stranger")

	body := marshalEntity(t, testNote("n1"))
	req := signature.Request{Method: "POST", Path: "/inbox", Body: body}
	job := Job{Body: body, Headers: stranger.Sign(req), Method: "POST", Path: "/inbox", SourceIP: "203.0.113.9"}

	resp := f.proc.Process(context.Background(), job)

	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Contains(t, resp.Body, "unknown_signer")
}

func TestProcess_Unsigned(t *testing.T) {
	f := newFixture(t, nil)
	job := Job{Body: marshalEntity(t, testNote("n1")), Headers: http.Header{}, Method: "POST", Path: "/inbox", SourceIP: "203.0.113.9"}

	resp := f.proc.Process(context.Background(), job)

	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Contains(t, resp.Body, "missing_signature")
}

func TestProcess_UnknownEntityType(t *testing.T) {
	f := newFixture(t, nil)
	body := []byte(`{
		"id": "x1",
		"uri": "https://remote.example/x/1",
		"type": "FancyNewThing",
		"created_at": "2026-03-01T12:00:00Z"
	}`)

	resp := f.proc.Process(context.Background(), f.signedJob(t, body))

	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.JSONEq(t, `{"error":"Unknown entity type"}`, resp.Body)
}

func TestProcess_DefederatedHostGetsEmptySuccess(t *testing.T) {
	f := newFixture(t, nil)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	evilURI := "https://evil.example/users/eve"
	f.store.remoteUsers[evilURI] = &RemoteUser{ID: "u-eve", URI: evilURI, Host: "evil.example", PublicKey: pub}

	note := testNote("n1")
	note.Author = evilURI
	body := marshalEntity(t, note)
	signer := signature.NewSigner(priv, evilURI)
	req := signature.Request{Method: "POST", Path: "/inbox", Body: body}
	job := Job{Body: body, Headers: signer.Sign(req), Method: "POST", Path: "/inbox", SourceIP: "203.0.113.9"}

	resp := f.proc.Process(context.Background(), job)

	// Indistinguishable from a successful creation, and nothing stored.
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Empty(t, resp.Body)
	assert.Empty(t, f.store.notes)
}

func TestProcess_DefederatedGlob(t *testing.T) {
	f := newFixture(t, nil)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	uri := "https://sub.banned.example/users/x"
	f.store.remoteUsers[uri] = &RemoteUser{ID: "u-x", URI: uri, Host: "sub.banned.example", PublicKey: pub}

	note := testNote("n1")
	note.Author = uri
	body := marshalEntity(t, note)
	signer := signature.NewSigner(priv, uri)
	job := Job{Body: body, Headers: signer.Sign(signature.Request{Method: "POST", Path: "/inbox", Body: body}), Method: "POST", Path: "/inbox", SourceIP: "203.0.113.9"}

	resp := f.proc.Process(context.Background(), job)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Empty(t, f.store.notes)
}

func bridgeConfig(cfg *config.Config) {
	cfg.Bridge = config.BridgeConfig{
		Enabled:    true,
		Token:      "bridge-secret",
		AllowedIPs: []string{"127.0.0.1", "10.0.0.0/8"},
	}
}

func TestProcess_BridgeAuthorizedUnsigned(t *testing.T) {
	f := newFixture(t, bridgeConfig)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer bridge-secret")
	job := Job{
		Body:     marshalEntity(t, testNote("n1")),
		Headers:  headers,
		Method:   "POST",
		Path:     "/inbox",
		SourceIP: "127.0.0.1",
	}

	resp := f.proc.Process(context.Background(), job)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Contains(t, f.store.notes, "https://remote.example/notes/n1")
}

func TestProcess_BridgeWrongIP(t *testing.T) {
	f := newFixture(t, bridgeConfig)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer bridge-secret")
	job := Job{
		Body:     marshalEntity(t, testNote("n1")),
		Headers:  headers,
		Method:   "POST",
		Path:     "/inbox",
		SourceIP: "198.51.100.7",
	}

	resp := f.proc.Process(context.Background(), job)

	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.Empty(t, f.store.notes)
}

func TestProcess_BridgeWrongToken(t *testing.T) {
	f := newFixture(t, bridgeConfig)

	headers := http.Header{}
	headers.Set("Authorization", "Bearer nope")
	job := Job{Body: marshalEntity(t, testNote("n1")), Headers: headers, Method: "POST", Path: "/inbox", SourceIP: "127.0.0.1"}

	resp := f.proc.Process(context.Background(), job)

	assert.Equal(t, http.StatusUnauthorized, resp.Status)
}

func TestProcess_BridgeDefederatedAuthor(t *testing.T) {
	f := newFixture(t, bridgeConfig)

	note := testNote("n1")
	note.Author = "https://evil.example/users/eve"
	headers := http.Header{}
	headers.Set("Authorization", "Bearer bridge-secret")
	job := Job{Body: marshalEntity(t, note), Headers: headers, Method: "POST", Path: "/inbox", SourceIP: "127.0.0.1"}

	resp := f.proc.Process(context.Background(), job)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Empty(t, f.store.notes)
}

func testFollow(id string) *entity.Follow {
	return &entity.Follow{
		Base:     baseFor(id, "https://remote.example/follows/"+id, entity.TypeFollow),
		Author:   aliceURI,
		Followee: bobURI,
	}
}

func TestProcess_FollowOpenAccountAutoAccepts(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.proc.Process(context.Background(), f.signedJob(t, marshalEntity(t, testFollow("f1"))))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Follow accepted", resp.Body)

	rel := f.store.rels[relKey("u-alice", "u-bob")]
	require.NotNil(t, rel)
	assert.True(t, rel.Following)
	assert.False(t, rel.Requested)

	require.Len(t, f.store.notifs, 1)
	assert.Equal(t, NotificationFollow, f.store.notifs[0].Type)
	assert.Equal(t, "u-bob", f.store.notifs[0].UserID)

	require.Len(t, f.deliverer.delivered, 1)
	accept, ok := f.deliverer.delivered[0].(*entity.FollowAccept)
	require.True(t, ok)
	assert.Equal(t, bobURI, accept.Author)
	assert.Equal(t, aliceURI, accept.Follower)
}

func TestProcess_FollowLockedAccountRequests(t *testing.T) {
	f := newFixture(t, nil)
	f.store.localUsers[bobURI].Locked = true

	resp := f.proc.Process(context.Background(), f.signedJob(t, marshalEntity(t, testFollow("f1"))))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Follow request sent", resp.Body)

	rel := f.store.rels[relKey("u-alice", "u-bob")]
	require.NotNil(t, rel)
	assert.False(t, rel.Following)
	assert.True(t, rel.Requested)

	require.Len(t, f.store.notifs, 1)
	assert.Equal(t, NotificationFollowRequest, f.store.notifs[0].Type)
	assert.Empty(t, f.deliverer.delivered)
}

func TestProcess_FollowLockedRedeliveryNotifiesOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.store.localUsers[bobURI].Locked = true

	job := f.signedJob(t, marshalEntity(t, testFollow("f1")))
	resp := f.proc.Process(context.Background(), job)
	require.Equal(t, http.StatusOK, resp.Status)

	resp = f.proc.Process(context.Background(), job)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Follow request already pending", resp.Body)
	assert.True(t, f.store.rels[relKey("u-alice", "u-bob")].Requested)
	assert.Len(t, f.store.notifs, 1)
}

func TestProcess_FollowAlreadyFollowing(t *testing.T) {
	f := newFixture(t, nil)
	f.store.rels[relKey("u-alice", "u-bob")] = &Relationship{
		OwnerID: "u-alice", SubjectID: "u-bob", Following: true,
	}

	resp := f.proc.Process(context.Background(), f.signedJob(t, marshalEntity(t, testFollow("f1"))))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Already following", resp.Body)
	assert.Empty(t, f.store.notifs)
	assert.Empty(t, f.deliverer.delivered)
}

func TestProcess_FollowAcceptFlipsRequested(t *testing.T) {
	f := newFixture(t, nil)
	f.store.rels[relKey("u-bob", "u-alice")] = &Relationship{
		OwnerID: "u-bob", SubjectID: "u-alice", Requested: true,
	}
	accept := &entity.FollowAccept{
		Base:     baseFor("fa1", "https://remote.example/accepts/fa1", entity.TypeFollowAccept),
		Author:   aliceURI,
		Follower: bobURI,
	}

	resp := f.proc.Process(context.Background(), f.signedJob(t, marshalEntity(t, accept)))

	assert.Equal(t, http.StatusOK, resp.Status)
	rel := f.store.rels[relKey("u-bob", "u-alice")]
	assert.True(t, rel.Following)
	assert.False(t, rel.Requested)
}

func TestProcess_FollowAcceptWithoutRequestIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	accept := &entity.FollowAccept{
		Base:     baseFor("fa1", "https://remote.example/accepts/fa1", entity.TypeFollowAccept),
		Author:   aliceURI,
		Follower: bobURI,
	}

	resp := f.proc.Process(context.Background(), f.signedJob(t, marshalEntity(t, accept)))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "No pending follow request", resp.Body)
	rel := f.store.rels[relKey("u-bob", "u-alice")]
	assert.Nil(t, rel)
}

func TestProcess_FollowRejectClearsRequested(t *testing.T) {
	f := newFixture(t, nil)
	f.store.rels[relKey("u-bob", "u-alice")] = &Relationship{
		OwnerID: "u-bob", SubjectID: "u-alice", Requested: true,
	}
	reject := &entity.FollowReject{
		Base:     baseFor("fr1", "https://remote.example/rejects/fr1", entity.TypeFollowReject),
		Author:   aliceURI,
		Follower: bobURI,
	}

	resp := f.proc.Process(context.Background(), f.signedJob(t, marshalEntity(t, reject)))

	assert.Equal(t, http.StatusOK, resp.Status)
	rel := f.store.rels[relKey("u-bob", "u-alice")]
	assert.False(t, rel.Following)
	assert.False(t, rel.Requested)
}

func TestProcess_Unfollow(t *testing.T) {
	f := newFixture(t, nil)
	f.store.rels[relKey("u-alice", "u-bob")] = &Relationship{
		OwnerID: "u-alice", SubjectID: "u-bob", Following: true,
	}
	unfollow := &entity.Unfollow{
		Base:     baseFor("uf1", "https://remote.example/unfollows/uf1", entity.TypeUnfollow),
		Author:   aliceURI,
		Followee: bobURI,
	}

	resp := f.proc.Process(context.Background(), f.signedJob(t, marshalEntity(t, unfollow)))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Unfollowed", resp.Body)
	rel := f.store.rels[relKey("u-alice", "u-bob")]
	assert.False(t, rel.Following)
}

func testLike(id, noteURI string) *entity.Like {
	return &entity.Like{
		Base:   baseFor(id, "https://remote.example/likes/"+id, entity.TypeLike),
		Author: aliceURI,
		Liked:  noteURI,
	}
}

func TestProcess_LikeIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.store.notes["https://local.example/notes/n9"] = &Note{
		ID: "n-n9", URI: "https://local.example/notes/n9", AuthorID: "u-bob", Local: true,
	}

	job1 := f.signedJob(t, marshalEntity(t, testLike("l1", "https://local.example/notes/n9")))
	job2 := f.signedJob(t, marshalEntity(t, testLike("l2", "https://local.example/notes/n9")))

	resp1 := f.proc.Process(context.Background(), job1)
	resp2 := f.proc.Process(context.Background(), job2)

	assert.Equal(t, http.StatusOK, resp1.Status)
	assert.Equal(t, resp1.Status, resp2.Status)
	assert.Equal(t, resp1.Body, resp2.Body)
	assert.Len(t, f.store.likes, 1)
	assert.Len(t, f.store.notifs, 1)
	assert.Equal(t, NotificationFavourite, f.store.notifs[0].Type)
}

func TestProcess_LikeUnknownNote(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.proc.Process(context.Background(), f.signedJob(t,
		marshalEntity(t, testLike("l1", "https://local.example/notes/missing"))))

	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Contains(t, resp.Body, "Liked note not found")
}

func testDelete(deletedType, deleted string) *entity.Delete {
	return &entity.Delete{
		Base:        baseFor("d1", "https://remote.example/deletes/d1", entity.TypeDelete),
		Author:      aliceURI,
		DeletedType: deletedType,
		Deleted:     deleted,
	}
}

func TestProcess_DeleteOwnNote(t *testing.T) {
	f := newFixture(t, nil)
	f.store.notes["https://remote.example/notes/n1"] = &Note{
		ID: "n-n1", URI: "https://remote.example/notes/n1", AuthorID: "u-alice",
	}

	resp := f.proc.Process(context.Background(), f.signedJob(t,
		marshalEntity(t, testDelete(entity.DeletedTypeNote, "https://remote.example/notes/n1"))))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Note deleted", resp.Body)
	assert.Empty(t, f.store.notes)
}

func TestProcess_DeleteForeignNoteRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.store.notes["https://local.example/notes/n2"] = &Note{
		ID: "n-n2", URI: "https://local.example/notes/n2", AuthorID: "u-bob", Local: true,
	}

	resp := f.proc.Process(context.Background(), f.signedJob(t,
		marshalEntity(t, testDelete(entity.DeletedTypeNote, "https://local.example/notes/n2"))))

	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Contains(t, resp.Body, "Note to delete not found or not owned by sender")
	assert.Len(t, f.store.notes, 1)
}

func TestProcess_DeleteMissingNoteSameAnswer(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.proc.Process(context.Background(), f.signedJob(t,
		marshalEntity(t, testDelete(entity.DeletedTypeNote, "https://remote.example/notes/missing"))))

	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Contains(t, resp.Body, "Note to delete not found or not owned by sender")
}

func TestProcess_DeleteSelfUser(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.proc.Process(context.Background(), f.signedJob(t,
		marshalEntity(t, testDelete(entity.DeletedTypeUser, aliceURI))))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, f.store.deleted, "user:u-alice")
}

func TestProcess_DeleteOtherUserRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.store.remoteUsers[mallURI] = &RemoteUser{ID: "u-mallory", URI: mallURI, Host: "remote.example"}

	resp := f.proc.Process(context.Background(), f.signedJob(t,
		marshalEntity(t, testDelete(entity.DeletedTypeUser, mallURI))))

	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Empty(t, f.store.deleted)
}

func TestProcess_DeleteUnsupportedType(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.proc.Process(context.Background(), f.signedJob(t,
		marshalEntity(t, testDelete("Galaxy", "https://remote.example/galaxies/1"))))

	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Contains(t, resp.Body, "unsupported_deleted_type")
}

func TestProcess_UserTriggersRefresh(t *testing.T) {
	f := newFixture(t, nil)
	user := &entity.User{
		Base:     baseFor("u1", aliceURI, entity.TypeUser),
		Username: "alice",
		PublicKey: entity.UserPublicKey{
			Actor:     aliceURI,
			Algorithm: "ed25519",
			Key:       "dGVzdC1rZXktYnl0ZXM=",
		},
		Inbox: "https://remote.example/users/alice/inbox",
	}

	resp := f.proc.Process(context.Background(), f.signedJob(t, marshalEntity(t, user)))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, []string{aliceURI}, f.store.refreshed)
}

func TestProcess_UserRefreshFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.store.errOn["RefreshRemoteUser"] = assert.AnError
	user := &entity.User{
		Base:     baseFor("u1", aliceURI, entity.TypeUser),
		Username: "alice",
		PublicKey: entity.UserPublicKey{
			Actor:     aliceURI,
			Algorithm: "ed25519",
			Key:       "dGVzdC1rZXktYnl0ZXM=",
		},
		Inbox: "https://remote.example/users/alice/inbox",
	}

	resp := f.proc.Process(context.Background(), f.signedJob(t, marshalEntity(t, user)))

	assert.Equal(t, http.StatusInternalServerError, resp.Status)
}

func TestProcess_ShareNotifiesLocalAuthor(t *testing.T) {
	f := newFixture(t, nil)
	f.store.notes["https://local.example/notes/n9"] = &Note{
		ID: "n-n9", URI: "https://local.example/notes/n9", AuthorID: "u-bob", Local: true,
	}
	share := &entity.Share{
		Base:   baseFor("s1", "https://remote.example/shares/s1", entity.TypeShare),
		Author: aliceURI,
		Shared: "https://local.example/notes/n9",
	}

	resp := f.proc.Process(context.Background(), f.signedJob(t, marshalEntity(t, share)))

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Len(t, f.store.shares, 1)
	require.Len(t, f.store.notifs, 1)
	assert.Equal(t, NotificationReblog, f.store.notifs[0].Type)
}

func TestProcess_StoreFailureIs500(t *testing.T) {
	f := newFixture(t, nil)
	f.store.errOn["UpsertNote"] = assert.AnError

	resp := f.proc.Process(context.Background(), f.signedJob(t, marshalEntity(t, testNote("n1"))))

	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	// Internal detail is withheld from the wire response.
	assert.NotContains(t, resp.Body, assert.AnError.Error())
}

func TestProcess_InstanceResolutionFailureIs500(t *testing.T) {
	f := newFixture(t, nil)
	f.store.errOn["ResolveInstance"] = assert.AnError

	resp := f.proc.Process(context.Background(), f.signedJob(t, marshalEntity(t, testNote("n1"))))

	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Contains(t, resp.Body, "instance_resolution_failed")
}

func TestNewProcessor_RequiresCollaborators(t *testing.T) {
	_, err := NewProcessor(Stores{}, nil, nil, nil, nil, nil)
	require.Error(t, err)
}
