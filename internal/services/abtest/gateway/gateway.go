// Package gateway is the single write path for behavioral events. Every
// submission runs a short-circuit pipeline: sanitize, authorize, verify the
// experiment exists on the content, rate limit, scrub client metadata, and
// only then append to the journal.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/abtestkit/abtestkit/internal/platform/errors"
	"github.com/abtestkit/abtestkit/internal/services/abtest/domain"
	"github.com/abtestkit/abtestkit/internal/services/abtest/session"
	"github.com/abtestkit/abtestkit/internal/services/abtest/storage"
)

// ContentDirectory answers whether an experiment id is declared on a piece
// of content. The content system owns authoring; the gateway only consults
// it to refuse events for experiments that do not exist.
type ContentDirectory interface {
	HasExperiment(ctx context.Context, contentRef, experimentID string) (bool, error)
}

// RawEvent is an unsanitized tracking submission.
type RawEvent struct {
	ContentRef   string
	ExperimentID string
	Kind         string
	Variant      string
	IP           string
	UserAgent    string
}

// AuthContext carries the credentials accompanying one submission. Any one
// of the three is sufficient: an editor session token, a same-origin
// browser request, or a signed timestamp.
type AuthContext struct {
	SessionToken string
	OriginHost   string
	RefererHost  string
	Timestamp    int64
	Signature    string
}

// SubmitResult reports what happened to one submission. A rate-limited drop
// is not an error; callers report success to the client either way.
type SubmitResult struct {
	EventID           int64
	Stored            bool
	Dropped           bool
	ValidationWarning string
}

// Config wires a Gateway.
type Config struct {
	Events    storage.EventStore
	Directory ContentDirectory
	Limiter   *Limiter
	Session   session.Config
	// SiteHost is the host considered same-origin.
	SiteHost string
	// Secret signs anonymous tracking payloads.
	Secret []byte
	Now    func() time.Time
}

// Gateway validates and records tracking submissions.
type Gateway struct {
	events    storage.EventStore
	directory ContentDirectory
	limiter   *Limiter
	session   session.Config
	siteHost  string
	secret    []byte
	now       func() time.Time
}

// New returns a Gateway for the given configuration.
func New(cfg Config) (*Gateway, error) {
	if cfg.Events == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if cfg.Directory == nil {
		return nil, fmt.Errorf("content directory is required")
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewLimiter()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Gateway{
		events:    cfg.Events,
		directory: cfg.Directory,
		limiter:   cfg.Limiter,
		session:   cfg.Session,
		siteHost:  cfg.SiteHost,
		secret:    cfg.Secret,
		now:       cfg.Now,
	}, nil
}

// Submit runs one tracking submission through the ingestion pipeline.
func (g *Gateway) Submit(ctx context.Context, raw RawEvent, auth AuthContext) (SubmitResult, error) {
	if g == nil || g.events == nil {
		return SubmitResult{}, fmt.Errorf("gateway is not configured")
	}

	contentRef, experimentID, err := domain.NormalizeExperimentKey(raw.ContentRef, raw.ExperimentID)
	if err != nil {
		code := apperrors.CodeExperimentIDEmpty
		if errors.Is(err, domain.ErrEmptyContentRef) {
			code = apperrors.CodeContentRefInvalid
		}
		return SubmitResult{}, apperrors.Wrap(code, "invalid tracking payload", err)
	}

	kind, coerced := domain.NormalizeKind(raw.Kind)
	var warning string
	if coerced {
		warning = fmt.Sprintf("unrecognized event kind %q treated as impression", raw.Kind)
	}

	variant := domain.Variant(raw.Variant)
	if kind.RequiresVariant() {
		if !variant.IsValid() {
			return SubmitResult{}, apperrors.New(apperrors.CodeVariantMissing, "invalid tracking payload")
		}
	} else {
		variant = domain.VariantNone
	}

	if !g.authorized(contentRef, auth) {
		// One generic message for all three failed paths; which credential
		// was wrong is not disclosed.
		return SubmitResult{}, apperrors.New(apperrors.CodeTrackingUnauthorized, "unauthorized: session, origin, or signature required")
	}

	exists, err := g.directory.HasExperiment(ctx, contentRef, experimentID)
	if err != nil {
		return SubmitResult{}, apperrors.Wrap(apperrors.CodeStorageFault, "check experiment existence", err)
	}
	if !exists {
		return SubmitResult{}, apperrors.New(apperrors.CodeExperimentUnknown, "unknown experiment on this content")
	}

	now := g.now().UTC()
	if !g.limiter.Allow(domain.SanitizeIP(raw.IP), contentRef, experimentID, now) {
		return SubmitResult{Dropped: true, ValidationWarning: warning}, nil
	}

	eventID, err := g.events.AppendEvent(ctx, domain.Event{
		Time:         now,
		ContentRef:   contentRef,
		ExperimentID: experimentID,
		Variant:      variant,
		Kind:         kind,
		IP:           domain.SanitizeIP(raw.IP),
		UserAgent:    domain.SanitizeUserAgent(raw.UserAgent),
	})
	if err != nil {
		return SubmitResult{}, apperrors.Wrap(apperrors.CodeStorageFault, "append event", err)
	}

	return SubmitResult{EventID: eventID, Stored: true, ValidationWarning: warning}, nil
}

func (g *Gateway) authorized(contentRef string, auth AuthContext) bool {
	if auth.SessionToken != "" {
		if _, err := session.Validate(auth.SessionToken, g.session); err == nil {
			return true
		}
	}
	if g.siteHost != "" {
		if auth.OriginHost == g.siteHost || auth.RefererHost == g.siteHost {
			return true
		}
	}
	return VerifySignature(contentRef, auth.Timestamp, auth.Signature, g.secret, g.now())
}

// Shutdown releases transient ingestion state.
func (g *Gateway) Shutdown() {
	if g == nil {
		return
	}
	g.limiter.Purge()
}
