package provider

import (
	"context"
	"fmt"
	"strings"

	"mediaflow/internal/domain"
	"mediaflow/internal/domain/ports/adapter"
)

var _ adapter.GenerationProvider = (*Router)(nil)

// Router picks a provider by GenerationRequest.Provider. Handles issued by a
// named provider are prefixed "name:" so later polls find their way back;
// handles from the default provider are left as the provider returned them,
// which keeps webhook lookups by raw request id working.
type Router struct {
	defaultProvider string
	byProvider      map[string]adapter.GenerationProvider
}

func NewRouter(defaultProvider string, byProvider map[string]adapter.GenerationProvider) *Router {
	m := make(map[string]adapter.GenerationProvider, len(byProvider))
	for name, p := range byProvider {
		if p != nil {
			m[strings.ToLower(name)] = p
		}
	}
	return &Router{defaultProvider: strings.ToLower(defaultProvider), byProvider: m}
}

func (r *Router) resolve(name string) (string, adapter.GenerationProvider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = r.defaultProvider
	}
	p := r.byProvider[name]
	if p == nil {
		return "", nil, fmt.Errorf("%w: provider %q is not configured", domain.ErrInvalidArgument, name)
	}
	return name, p, nil
}

// route splits a stored handle into its provider and the provider's own id.
func (r *Router) route(handle string) (adapter.GenerationProvider, string, error) {
	if i := strings.IndexByte(handle, ':'); i > 0 {
		if p := r.byProvider[handle[:i]]; p != nil && handle[:i] != r.defaultProvider {
			return p, handle[i+1:], nil
		}
	}
	_, p, err := r.resolve("")
	return p, handle, err
}

func (r *Router) Submit(ctx context.Context, req adapter.GenerationRequest) (string, error) {
	name, p, err := r.resolve(req.Provider)
	if err != nil {
		return "", err
	}
	id, err := p.Submit(ctx, req)
	if err != nil {
		return "", err
	}
	if name == r.defaultProvider {
		return id, nil
	}
	return name + ":" + id, nil
}

func (r *Router) PollStatus(ctx context.Context, handle string) (adapter.ProviderStatus, error) {
	p, id, err := r.route(handle)
	if err != nil {
		return adapter.ProviderUnknown, err
	}
	return p.PollStatus(ctx, id)
}

func (r *Router) PollResult(ctx context.Context, handle string) (string, error) {
	p, id, err := r.route(handle)
	if err != nil {
		return "", err
	}
	return p.PollResult(ctx, id)
}

// FetchArtifact tries the provider that can authenticate the URL. Artifact
// URLs carry no handle, so a Veo file URI is matched by host.
func (r *Router) FetchArtifact(ctx context.Context, artifactURL string) ([]byte, error) {
	if strings.Contains(artifactURL, "generativelanguage.googleapis.com") {
		if p := r.byProvider[veoName]; p != nil {
			return p.FetchArtifact(ctx, artifactURL)
		}
	}
	_, p, err := r.resolve("")
	if err != nil {
		return nil, err
	}
	return p.FetchArtifact(ctx, artifactURL)
}
