package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

func fixedClock() func() time.Time {
	ts := time.Unix(1768473000, 0)
	return func() time.Time { return ts }
}

// verifyFixed verifies against the same frozen clock the test signers use.
func verifyFixed(pub ed25519.PublicKey, req Request, headers http.Header) bool {
	return VerifyAt(pub, req, headers, fixedClock()(), DefaultMaxSkew)
}

func TestSignVerify_RoundTrip(t *testing.T) {
	pub, priv := testKeyPair(t)
	signer := NewSigner(priv, "https://local.example/users/alice", WithClock(fixedClock()))

	req := Request{
		Method: "POST",
		Path:   "/users/bob/inbox",
		Body:   []byte(`{"type":"Note"}`),
	}

	headers := signer.Sign(req)
	assert.True(t, verifyFixed(pub, req, headers))
}

func TestVerify_BodyTampered(t *testing.T) {
	pub, priv := testKeyPair(t)
	signer := NewSigner(priv, "https://local.example/users/alice", WithClock(fixedClock()))

	req := Request{Method: "POST", Path: "/inbox", Body: []byte(`{"a":1}`)}
	headers := signer.Sign(req)

	tampered := Request{Method: "POST", Path: "/inbox", Body: []byte(`{"a":2}`)}
	assert.False(t, verifyFixed(pub, tampered, headers))
}

func TestVerify_PathOrMethodTampered(t *testing.T) {
	pub, priv := testKeyPair(t)
	signer := NewSigner(priv, "https://local.example/users/alice", WithClock(fixedClock()))

	req := Request{Method: "POST", Path: "/inbox", Body: []byte("x")}
	headers := signer.Sign(req)

	assert.False(t, verifyFixed(pub, Request{Method: "PUT", Path: "/inbox", Body: []byte("x")}, headers))
	assert.False(t, verifyFixed(pub, Request{Method: "POST", Path: "/other", Body: []byte("x")}, headers))
}

func TestVerify_WrongKey(t *testing.T) {
	_, priv := testKeyPair(t)
	otherPub, _ := testKeyPair(t)
	signer := NewSigner(priv, "https://local.example/users/alice", WithClock(fixedClock()))

	req := Request{Method: "POST", Path: "/inbox", Body: []byte("x")}
	headers := signer.Sign(req)

	assert.False(t, verifyFixed(otherPub, req, headers))
}

func TestVerify_PartialTripleIsAbsence(t *testing.T) {
	pub, priv := testKeyPair(t)
	signer := NewSigner(priv, "https://local.example/users/alice", WithClock(fixedClock()))

	req := Request{Method: "POST", Path: "/inbox", Body: []byte("x")}

	for _, drop := range []string{HeaderSignature, HeaderSignedAt, HeaderSignedBy} {
		headers := signer.Sign(req)
		headers.Del(drop)
		assert.False(t, verifyFixed(pub, req, headers), "missing %s must fail closed", drop)
	}

	assert.False(t, verifyFixed(pub, req, http.Header{}))
}

func TestVerify_MalformedHeadersReturnFalse(t *testing.T) {
	pub, priv := testKeyPair(t)
	signer := NewSigner(priv, "https://local.example/users/alice", WithClock(fixedClock()))
	req := Request{Method: "POST", Path: "/inbox", Body: []byte("x")}

	headers := signer.Sign(req)
	headers.Set(HeaderSignature, "!!! not base64 !!!")
	assert.False(t, verifyFixed(pub, req, headers))

	headers = signer.Sign(req)
	headers.Set(HeaderSignedAt, "not-a-number")
	assert.False(t, verifyFixed(pub, req, headers))

	headers = signer.Sign(req)
	assert.False(t, verifyFixed(ed25519.PublicKey("short"), req, headers))
}

func TestSignAt_Deterministic(t *testing.T) {
	_, priv := testKeyPair(t)
	signer := NewSigner(priv, "https://local.example/users/alice")

	req := Request{Method: "POST", Path: "/inbox", Body: []byte("x")}
	ts := time.Unix(1768473000, 0)

	h1 := signer.SignAt(req, ts)
	h2 := signer.SignAt(req, ts)
	assert.Equal(t, h1.Get(HeaderSignature), h2.Get(HeaderSignature))
	assert.Equal(t, "1768473000", h1.Get(HeaderSignedAt))
}

func TestInstanceSigner_Sentinel(t *testing.T) {
	pub, priv := testKeyPair(t)
	signer := NewInstanceSigner(priv, "local.example", WithClock(fixedClock()))

	req := Request{Method: "POST", Path: "/inbox", Body: []byte("x")}
	headers := signer.Sign(req)

	assert.Equal(t, "instance local.example", headers.Get(HeaderSignedBy))
	assert.True(t, verifyFixed(pub, req, headers))

	value, host, isInstance := SignedBy(headers)
	assert.True(t, isInstance)
	assert.Equal(t, "local.example", host)
	assert.Equal(t, "instance local.example", value)
}

func TestSignedBy_UserURI(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderSignedBy, "https://remote.example/users/alice")

	value, host, isInstance := SignedBy(h)
	assert.False(t, isInstance)
	assert.Empty(t, host)
	assert.Equal(t, "https://remote.example/users/alice", value)
}

func TestVerify_TimestampOutsideSkewWindow(t *testing.T) {
	pub, priv := testKeyPair(t)
	signer := NewSigner(priv, "https://local.example/users/alice", WithClock(fixedClock()))

	req := Request{Method: "POST", Path: "/inbox", Body: []byte("x")}
	headers := signer.Sign(req)
	signedAt := fixedClock()()

	// At the boundary the signature still verifies; one second past it,
	// the otherwise valid triple is rejected as a replay.
	assert.True(t, VerifyAt(pub, req, headers, signedAt.Add(DefaultMaxSkew), DefaultMaxSkew))
	assert.False(t, VerifyAt(pub, req, headers, signedAt.Add(DefaultMaxSkew+time.Second), DefaultMaxSkew))
	assert.False(t, VerifyAt(pub, req, headers, signedAt.Add(-DefaultMaxSkew-time.Second), DefaultMaxSkew))

	// A zero window disables the check.
	assert.True(t, VerifyAt(pub, req, headers, signedAt.Add(24*time.Hour), 0))
}

func TestEscapePath_EncodedInSignable(t *testing.T) {
	pub, priv := testKeyPair(t)
	signer := NewSigner(priv, "https://local.example/users/alice", WithClock(fixedClock()))

	req := Request{Method: "POST", Path: "/users/émile/inbox", Body: []byte("x")}
	headers := signer.Sign(req)
	assert.True(t, verifyFixed(pub, req, headers))
}
