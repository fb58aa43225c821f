package mets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/amsc/pkg/models"
)

// Identifier types every bound entity must carry.
const (
	IdentifierUUID   = "UUID"
	IdentifierHandle = "hdl"
	IdentifierURI    = "URI"
)

// Resolver checks that a persistent URL resolves.
type Resolver interface {
	Resolve(ctx context.Context, url string) error
}

// IsUUID reports whether s is a canonical lower-case hyphenated UUID.
func IsUUID(s string) bool {
	if len(s) != 36 || s != strings.ToLower(s) {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// IsHandle reports whether s is a handle of the form
// "<naming authority>/<pid>". The pid of the AIP must equal accessionNo when
// one is given; every other pid must be a UUID.
func IsHandle(s, entityType, accessionNo string) bool {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return false
	}
	pid := parts[1]
	if accessionNo != "" && entityType == EntityAIP {
		return pid == accessionNo
	}
	return IsUUID(pid)
}

// ValidatePIDs checks that every entity except the objects directory has a
// metadata section id and UUID, handle and URI identifiers, and that every
// URI resolves. All violations are reported together; each wraps
// models.ErrInvalidPID.
func ValidatePIDs(ctx context.Context, doc *Document, accessionNo string, resolver Resolver) error {
	entities, err := Entities(doc)
	if err != nil {
		return err
	}

	var errs []error
	invalid := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: %s", models.ErrInvalidPID, fmt.Sprintf(format, args...)))
	}

	for _, e := range entities {
		if e.Label == "objects" {
			continue
		}
		if ID(e) == "" {
			invalid("no DMDID/ADMID for entity %s", e.Path)
		}

		if id, ok := e.Identifier(IdentifierUUID); !ok || id == "" {
			invalid("no %s identifier for entity %s", IdentifierUUID, e.Path)
		} else if !IsUUID(id) {
			invalid("identifier %s of entity %s is not a UUID", id, e.Path)
		}

		if id, ok := e.Identifier(IdentifierHandle); !ok || id == "" {
			invalid("no %s identifier for entity %s", IdentifierHandle, e.Path)
		} else if !IsHandle(id, e.Type, accessionNo) {
			invalid("identifier %s of entity %s is not a handle", id, e.Path)
		}

		purl, ok := e.Identifier(IdentifierURI)
		if !ok || purl == "" {
			invalid("no %s identifier for entity %s", IdentifierURI, e.Path)
			continue
		}
		if resolver == nil {
			continue
		}
		if err := resolver.Resolve(ctx, purl); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			invalid("PURL %s of entity %s does not resolve: %v", purl, e.Path, err)
		}
	}
	return errors.Join(errs...)
}

// HTTPResolver resolves PURLs with rate-limited GET requests; anything but a
// 200 response is a failure.
type HTTPResolver struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewHTTPResolver creates a resolver. requestsPerSecond <= 0 disables rate
// limiting.
func NewHTTPResolver(client *http.Client, requestsPerSecond int, logger arbor.ILogger) *HTTPResolver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
	return &HTTPResolver{client: client, limiter: limiter, logger: logger}
}

// Resolve implements Resolver.
func (r *HTTPResolver) Resolve(ctx context.Context, url string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	r.logger.Debug().Str("url", url).Int("status_code", resp.StatusCode).Msg("PURL resolved")
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
