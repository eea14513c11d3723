// Package store provides the in-memory reference implementation of the
// persistence interfaces. It backs single-node deployments and tests;
// production deployments substitute a database-backed implementation of
// the same interfaces.
package store

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/versia-works/federation/delivery"
	"github.com/versia-works/federation/entity"
	"github.com/versia-works/federation/errors"
	"github.com/versia-works/federation/inbox"
	"github.com/versia-works/federation/signature"
	"github.com/versia-works/federation/trust"
)

// Memory is a mutex-guarded in-memory store implementing the inbox
// persistence interfaces and the delivery directory.
type Memory struct {
	mu sync.RWMutex

	remoteUsers map[string]*inbox.RemoteUser // by URI
	localUsers  map[string]*inbox.LocalUser  // by URI
	notes       map[string]*inbox.Note       // by URI
	rels        map[string]*inbox.Relationship
	likes       map[string]*inbox.Like     // by URI
	shares      map[string]*inbox.Share    // by URI
	reactions   map[string]*inbox.Reaction // by URI
	instances   map[string]*inbox.Instance // by host
	notifs      []*inbox.Notification

	signers        map[string]*signature.Signer // by local user id
	fallbackSigner *signature.Signer

	httpClient *http.Client
	logger     *slog.Logger
}

// NewMemory returns an empty store. instanceSigner is used for outbound
// deliveries whose sender has no registered signer; it may be nil.
func NewMemory(logger *slog.Logger, instanceSigner *signature.Signer) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		remoteUsers:    map[string]*inbox.RemoteUser{},
		localUsers:     map[string]*inbox.LocalUser{},
		notes:          map[string]*inbox.Note{},
		rels:           map[string]*inbox.Relationship{},
		likes:          map[string]*inbox.Like{},
		shares:         map[string]*inbox.Share{},
		reactions:      map[string]*inbox.Reaction{},
		instances:      map[string]*inbox.Instance{},
		signers:        map[string]*signature.Signer{},
		fallbackSigner: instanceSigner,
		httpClient:     &http.Client{Timeout: 15 * time.Second},
		logger:         logger.With("component", "store"),
	}
}

// Stores bundles this store for the inbox processor.
func (m *Memory) Stores() inbox.Stores {
	return inbox.Stores{
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

// AddLocalUser registers a local account with its signing key.
func (m *Memory) AddLocalUser(user *inbox.LocalUser, priv ed25519.PrivateKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localUsers[user.URI] = user
	if priv != nil {
		m.signers[user.ID] = signature.NewSigner(priv, user.URI)
	}
}

// AddRemoteUser registers a known remote actor.
func (m *Memory) AddRemoteUser(user *inbox.RemoteUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remoteUsers[user.URI] = user
}

func (m *Memory) RemoteUserByURI(_ context.Context, uri string) (*inbox.RemoteUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.remoteUsers[uri], nil
}

func (m *Memory) LocalUserByURI(_ context.Context, uri string) (*inbox.LocalUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.localUsers[uri], nil
}

// RefreshRemoteUser fetches the canonical profile document and replaces
// the cached record.
func (m *Memory) RefreshRemoteUser(ctx context.Context, uri string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return errors.WrapInvalid(err, "store", "RefreshRemoteUser", "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return errors.WrapTransient(err, "store", "RefreshRemoteUser", "profile fetch failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.WrapTransient(fmt.Errorf("HTTP %d", resp.StatusCode),
			"store", "RefreshRemoteUser", "profile fetch failed")
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.WrapTransient(err, "store", "RefreshRemoteUser", "profile read failed")
	}

	ent, err := entity.Parse(body)
	if err != nil {
		return errors.WrapInvalid(err, "store", "RefreshRemoteUser", "profile parse failed")
	}
	user, ok := ent.(*entity.User)
	if !ok {
		return errors.WrapInvalid(errors.ErrInvalidData, "store", "RefreshRemoteUser",
			"canonical document is not a User")
	}

	key, err := base64.StdEncoding.DecodeString(user.PublicKey.Key)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return errors.WrapInvalid(errors.ErrInvalidData, "store", "RefreshRemoteUser",
			"profile carries invalid key")
	}

	host, err := trust.Host(user.URI)
	if err != nil {
		return errors.WrapInvalid(err, "store", "RefreshRemoteUser", "profile uri invalid")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.remoteUsers[uri]
	id := uuid.NewString()
	if existing != nil {
		id = existing.ID
	}
	m.remoteUsers[uri] = &inbox.RemoteUser{
		ID:        id,
		URI:       user.URI,
		Inbox:     user.Inbox,
		Host:      host,
		PublicKey: key,
	}
	m.logger.Debug("remote user refreshed", "uri", uri)
	return nil
}

func (m *Memory) DeleteRemoteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for uri, u := range m.remoteUsers {
		if u.ID == id {
			delete(m.remoteUsers, uri)
		}
	}
	return nil
}

func (m *Memory) NoteByURI(_ context.Context, uri string) (*inbox.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notes[uri], nil
}

func (m *Memory) UpsertNote(_ context.Context, note *entity.Note, authorID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.notes[note.URI]; ok {
		existing.AuthorID = authorID
		return false, nil
	}
	m.notes[note.URI] = &inbox.Note{
		ID:       uuid.NewString(),
		URI:      note.URI,
		AuthorID: authorID,
	}
	return true, nil
}

func (m *Memory) DeleteNote(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for uri, n := range m.notes {
		if n.ID == id {
			delete(m.notes, uri)
		}
	}
	return nil
}

func relKey(owner, subject string) string { return owner + "|" + subject }

func (m *Memory) Relationship(_ context.Context, ownerID, subjectID string) (*inbox.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rels[relKey(ownerID, subjectID)], nil
}

func (m *Memory) CreateOrGet(_ context.Context, ownerID, subjectID string) (*inbox.Relationship, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rel, ok := m.rels[relKey(ownerID, subjectID)]; ok {
		return rel, nil
	}
	rel := &inbox.Relationship{OwnerID: ownerID, SubjectID: subjectID}
	m.rels[relKey(ownerID, subjectID)] = rel
	return rel, nil
}

func (m *Memory) Update(_ context.Context, rel *inbox.Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rels[relKey(rel.OwnerID, rel.SubjectID)] = rel
	return nil
}

func (m *Memory) LikeByAuthorAndNote(_ context.Context, authorID, noteID string) (*inbox.Like, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.likes {
		if l.AuthorID == authorID && l.NoteID == noteID {
			return l, nil
		}
	}
	return nil, nil
}

func (m *Memory) LikeByURI(_ context.Context, uri string) (*inbox.Like, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.likes[uri], nil
}

func (m *Memory) CreateLike(_ context.Context, like *inbox.Like) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.likes[like.URI] = like
	return nil
}

func (m *Memory) DeleteLike(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for uri, l := range m.likes {
		if l.ID == id {
			delete(m.likes, uri)
		}
	}
	return nil
}

func (m *Memory) ShareByURI(_ context.Context, uri string) (*inbox.Share, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shares[uri], nil
}

func (m *Memory) CreateShare(_ context.Context, share *inbox.Share) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shares[share.URI] = share
	return nil
}

func (m *Memory) ReactionByURI(_ context.Context, uri string) (*inbox.Reaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reactions[uri], nil
}

func (m *Memory) CreateReaction(_ context.Context, reaction *inbox.Reaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions[reaction.URI] = reaction
	return nil
}

func (m *Memory) CreateNotification(_ context.Context, n *inbox.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifs = append(m.notifs, n)
	return nil
}

// Notifications returns a snapshot of recorded notifications.
func (m *Memory) Notifications() []*inbox.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*inbox.Notification, len(m.notifs))
	copy(out, m.notifs)
	return out
}

// ResolveInstance returns the known instance record, creating a bare one
// on first contact.
func (m *Memory) ResolveInstance(_ context.Context, host string) (*inbox.Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[host]; ok {
		return inst, nil
	}
	inst := &inbox.Instance{ID: uuid.NewString(), Host: host}
	m.instances[host] = inst
	return inst, nil
}

func (m *Memory) UpsertInstance(_ context.Context, meta *entity.InstanceMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst := m.instances[meta.Host]
	if inst == nil {
		inst = &inbox.Instance{ID: uuid.NewString(), Host: meta.Host}
		m.instances[meta.Host] = inst
	}
	if meta.PublicKey != nil {
		if key, err := base64.StdEncoding.DecodeString(meta.PublicKey.Key); err == nil &&
			len(key) == ed25519.PublicKeySize {
			inst.PublicKey = key
		}
	}
	if meta.SharedInbox != "" {
		inst.SharedInbox = meta.SharedInbox
	}
	return nil
}

// Recipient implements delivery.Directory.
func (m *Memory) Recipient(_ context.Context, id string) (*delivery.Recipient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.remoteUsers {
		if u.ID == id {
			return &delivery.Recipient{ID: u.ID, URI: u.URI, Inbox: u.Inbox}, nil
		}
	}
	return nil, nil
}

// SignerFor implements delivery.Directory.
func (m *Memory) SignerFor(_ context.Context, senderID string) (*signature.Signer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.signers[senderID]; ok {
		return s, nil
	}
	return m.fallbackSigner, nil
}
