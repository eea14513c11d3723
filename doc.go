// Package federation implements the server-side core of the Versia
// federation protocol: receiving signed activity messages from remote
// instances, verifying their authenticity, and applying the resulting
// state transitions.
//
// # Architecture
//
// The core is a queue-driven pipeline. Inbound HTTP requests are captured
// by the gateway and enqueued as durable jobs; workers dequeue, authenticate
// and dispatch them; outbound events flow through a symmetric delivery
// queue that signs and POSTs entities to remote inboxes.
//
//	┌─────────────────────────────────────┐
//	│            Gateway                  │  POST /inbox
//	│   (capture request, enqueue job)    │  rate limiting
//	└─────────────────────────────────────┘
//	           ↓ publishes to
//	┌─────────────────────────────────────┐
//	│        JetStream Queues             │  FED_INBOX / FED_DELIVERY
//	│  (at-least-once, backoff, DLQ)      │  FED_DEAD
//	└─────────────────────────────────────┘
//	           ↓ consumed by
//	┌─────────────────────────────────────┐
//	│        Inbox / Delivery             │  trust resolution,
//	│          Processors                 │  entity dispatch, signing
//	└─────────────────────────────────────┘
//
// # Packages
//
//   - entity: typed wire entities with strict schema validation
//   - signature: Ed25519 request signing and verification
//   - trust: sender authentication, bridge auth, defederation
//   - inbox: the per-entity dispatch state machine
//   - delivery: signed outbound POSTs to remote inboxes
//   - queue: durable job envelopes and workers
//   - natsclient: JetStream broker client with circuit breaker
//   - gateway: inbound HTTP surface
//   - store: in-memory reference implementation of the store interfaces
//
// Persistence is an external collaborator: the inbox processor talks to
// small store interfaces and never manages transactions itself.
package federation
