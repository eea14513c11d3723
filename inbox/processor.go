// Package inbox implements the federation inbox state machine. One
// Process call takes a raw inbound request (body, headers, source IP)
// through trust resolution, signature verification, entity parsing and
// the per-type handler, and always terminates in a bounded Response.
package inbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/versia-works/federation/config"
	"github.com/versia-works/federation/entity"
	"github.com/versia-works/federation/errors"
	"github.com/versia-works/federation/metric"
	"github.com/versia-works/federation/signature"
	"github.com/versia-works/federation/trust"
)

// Job is one inbound inbox request as captured by the gateway.
type Job struct {
	Body     []byte
	Headers  http.Header
	Method   string
	Path     string
	SourceIP string
}

// sender identifies who is pushing the entity at us, established either
// from the signature headers or, for bridge-authorized requests, from
// the entity's own author field.
type sender struct {
	user     *RemoteUser // nil until resolved (instance-signed or bridge)
	uri      string
	host     string
	instance bool
	bridged  bool
}

// Processor drives one inbound request through the inbox pipeline.
type Processor struct {
	stores    Stores
	resolver  *trust.Resolver
	deliverer Deliverer
	fed       config.FederationConfig
	logger    *slog.Logger
	metrics   *metric.Metrics
	logSigs   bool
}

// NewProcessor assembles an inbox processor. deliverer may be nil, in
// which case follows to open accounts are recorded but the accept is not
// federated back (used in tests and single-user tooling).
func NewProcessor(stores Stores, resolver *trust.Resolver, deliverer Deliverer, cfg *config.Config, logger *slog.Logger, metrics *metric.Metrics) (*Processor, error) {
	if stores.Users == nil || stores.Notes == nil || stores.Relationships == nil ||
		stores.Likes == nil || stores.Notifications == nil || stores.Instances == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "inbox", "NewProcessor", "store collaborators incomplete")
	}
	if resolver == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "inbox", "NewProcessor", "trust resolver required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		stores:    stores,
		resolver:  resolver,
		deliverer: deliverer,
		fed:       cfg.Federation,
		logger:    logger.With("component", "inbox"),
		metrics:   metrics,
		logSigs:   cfg.Logging.LogSignatures,
	}, nil
}

// Process runs the full pipeline. It never returns an error to the
// caller; every failure mode is folded into the Response so the queue
// layer can distinguish soft failures (delivered verdicts) from
// infrastructure errors by status code.
func (p *Processor) Process(ctx context.Context, job Job) Response {
	start := time.Now()
	resp, entityType := p.process(ctx, job)

	if p.metrics != nil {
		p.metrics.InboxProcessed.WithLabelValues(strconv.Itoa(resp.Status)).Inc()
		if entityType != "" {
			p.metrics.InboxDuration.WithLabelValues(entityType).Observe(time.Since(start).Seconds())
		}
	}
	p.logger.Debug("inbox request processed",
		"status", resp.Status,
		"entity_type", entityType,
		"source_ip", job.SourceIP,
		"duration", time.Since(start))
	return resp
}

func (p *Processor) process(ctx context.Context, job Job) (Response, string) {
	snd, resp, ok := p.resolveSender(ctx, job)
	if !ok {
		return resp, ""
	}

	// Blocked hosts get an empty 201, indistinguishable from success,
	// so probes cannot enumerate the blocklist.
	if p.resolver.IsDefederated(snd.host) {
		if p.metrics != nil {
			p.metrics.InboxDefederated.Inc()
		}
		p.logger.Info("dropped request from defederated host", "host", snd.host)
		return Accepted(), ""
	}

	if !snd.bridged {
		if resp, ok := p.verifySignature(ctx, job, snd); !ok {
			return resp, ""
		}
	}

	ent, err := entity.Parse(job.Body)
	if err != nil {
		return p.rejectParse(err), ""
	}
	entityType := ent.EntityType()
	if p.metrics != nil {
		p.metrics.InboxReceived.WithLabelValues(entityType).Inc()
	}

	// Bridge requests carry no signature; the entity's author field is
	// the only sender assertion available, so bind the sender to it now
	// for the ownership checks downstream.
	if snd.bridged {
		if uri := authorOf(ent); uri != "" {
			snd.uri = uri
		}
	}

	resp, err = p.dispatch(ctx, ent, snd)
	if err != nil {
		p.logHandlerError(entityType, err)
		return FromError(err), entityType
	}
	return resp, entityType
}

// resolveSender establishes who is calling and on what authority. The
// returned bool is false when the pipeline must stop with the Response.
func (p *Processor) resolveSender(ctx context.Context, job Job) (sender, Response, bool) {
	snd := sender{}

	signedBy, instanceHost, isInstance := signature.SignedBy(job.Headers)
	if isInstance {
		snd.instance = true
		snd.uri = signedBy
		snd.host = instanceHost
	} else if signedBy != "" {
		host, err := trust.Host(signedBy)
		if err != nil {
			return snd, p.reject("invalid_signer", http.StatusBadRequest, "unparseable_signer",
				"Versia-Signed-By is not a valid URI"), false
		}
		snd.uri = signedBy
		snd.host = host
	}

	decision := p.resolver.Resolve(job.Headers.Get("Authorization"), job.SourceIP)
	if decision.Err != nil {
		return snd, p.reject("bridge_auth", decision.Err.Status, decision.Err.ErrorText, decision.Err.Description), false
	}
	snd.bridged = decision.BridgeAuthorized

	if snd.bridged && snd.host == "" {
		// No signature headers to go by; peek the author URI out of the
		// raw body so defederation still applies to bridged traffic.
		if uri := peekAuthor(job.Body); uri != "" {
			if host, err := trust.Host(uri); err == nil {
				snd.uri = uri
				snd.host = host
			}
		}
	}

	if !snd.bridged && snd.uri == "" {
		return snd, p.reject("unsigned", http.StatusUnauthorized, "missing_signature",
			"Request is not signed and bridge authorization is absent"), false
	}

	if snd.host != "" {
		if _, err := p.stores.Instances.ResolveInstance(ctx, snd.host); err != nil {
			p.logger.Error("sender instance resolution failed", "host", snd.host, "error", err)
			return snd, JSONError(http.StatusInternalServerError, "instance_resolution_failed",
				"Failed to resolve sender instance"), false
		}
	}
	return snd, Response{}, true
}

// verifySignature loads the signer's key and checks the request
// signature. Verification fails closed; any irregularity is a 401.
func (p *Processor) verifySignature(ctx context.Context, job Job, snd sender) (Response, bool) {
	var pub []byte
	if snd.instance {
		inst, err := p.stores.Instances.ResolveInstance(ctx, snd.host)
		if err != nil {
			return JSONError(http.StatusInternalServerError, "instance_resolution_failed",
				"Failed to resolve signing instance"), false
		}
		if inst == nil || len(inst.PublicKey) == 0 {
			return p.reject("signature", http.StatusUnauthorized, "unknown_signer",
				"No key known for signing instance"), false
		}
		pub = inst.PublicKey
	} else {
		user, err := p.stores.Users.RemoteUserByURI(ctx, snd.uri)
		if err != nil {
			return JSONError(http.StatusInternalServerError, "user_resolution_failed",
				"Failed to resolve signing user"), false
		}
		if user == nil || len(user.PublicKey) == 0 {
			return p.reject("signature", http.StatusUnauthorized, "unknown_signer",
				"No key known for signing user"), false
		}
		pub = user.PublicKey
	}

	req := signature.Request{Method: job.Method, Path: job.Path, Body: job.Body}
	if !signature.Verify(pub, req, job.Headers) {
		if p.logSigs {
			p.logger.Warn("signature verification failed",
				"signed_by", snd.uri,
				"signature", job.Headers.Get(signature.HeaderSignature),
				"signed_at", job.Headers.Get(signature.HeaderSignedAt))
		}
		return p.reject("signature", http.StatusUnauthorized, "signature_invalid",
			"Request signature verification failed"), false
	}
	return Response{}, true
}

func (p *Processor) dispatch(ctx context.Context, ent entity.Entity, snd sender) (Response, error) {
	switch e := ent.(type) {
	case *entity.Note:
		return p.handleNote(ctx, e)
	case *entity.User:
		return p.handleUser(ctx, e)
	case *entity.Follow:
		return p.handleFollow(ctx, e)
	case *entity.FollowAccept:
		return p.handleFollowAccept(ctx, e)
	case *entity.FollowReject:
		return p.handleFollowReject(ctx, e)
	case *entity.Unfollow:
		return p.handleUnfollow(ctx, e)
	case *entity.Delete:
		return p.handleDelete(ctx, e, snd)
	case *entity.Like:
		return p.handleLike(ctx, e)
	case *entity.Reaction:
		return p.handleReaction(ctx, e)
	case *entity.Share:
		return p.handleShare(ctx, e)
	case *entity.InstanceMetadata:
		return p.handleInstanceMetadata(ctx, e)
	case *entity.Collection:
		return Response{}, errors.NewAPIErrorf(http.StatusBadRequest, "unsupported_entity",
			"Collections cannot be delivered to an inbox")
	default:
		// Unreachable while the dispatch set mirrors entity.KnownTypes.
		return Response{}, errors.NewAPIErrorf(http.StatusBadRequest, "unsupported_entity",
			"No inbox handler for %q", ent.EntityType())
	}
}

func (p *Processor) rejectParse(err error) Response {
	if errors.Is(err, errors.ErrUnknownType) {
		if p.metrics != nil {
			p.metrics.InboxRejected.WithLabelValues("unknown_type").Inc()
		}
		return Response{Status: http.StatusBadRequest, Body: `{"error":"Unknown entity type"}`, JSON: true}
	}
	if p.metrics != nil {
		p.metrics.InboxRejected.WithLabelValues("invalid_entity").Inc()
	}
	return JSONError(http.StatusBadRequest, "invalid_entity", err.Error())
}

func (p *Processor) reject(reason string, status int, errText, description string) Response {
	if p.metrics != nil {
		p.metrics.InboxRejected.WithLabelValues(reason).Inc()
	}
	return JSONError(status, errText, description)
}

func (p *Processor) logHandlerError(entityType string, err error) {
	if apiErr := errors.AsAPIError(err); apiErr != nil && apiErr.Status < 500 {
		p.logger.Info("inbox handler rejected entity",
			"entity_type", entityType, "status", apiErr.Status, "error", apiErr.ErrorText)
		return
	}
	p.logger.Error("inbox handler failed", "entity_type", entityType, "error", err)
}

// authorOf pulls the acting user URI out of an entity, for the types
// that carry one.
func authorOf(ent entity.Entity) string {
	switch e := ent.(type) {
	case *entity.Note:
		return e.Author
	case *entity.Follow:
		return e.Author
	case *entity.FollowAccept:
		return e.Author
	case *entity.FollowReject:
		return e.Author
	case *entity.Unfollow:
		return e.Author
	case *entity.Delete:
		return e.Author
	case *entity.Like:
		return e.Author
	case *entity.Reaction:
		return e.Author
	case *entity.Share:
		return e.Author
	}
	return ""
}

// peekAuthor extracts author (or uri as fallback) from a raw entity
// document without full validation.
func peekAuthor(raw []byte) string {
	var peek struct {
		Author string `json:"author"`
		URI    string `json:"uri"`
	}
	if err := json.Unmarshal(raw, &peek); err != nil {
		return ""
	}
	if peek.Author != "" {
		return peek.Author
	}
	return peek.URI
}
