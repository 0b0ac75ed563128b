// router.go - Model candidate resolution and the per-candidate call loop

package ai

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oritmalki/bizmanager/internal/common"
	"github.com/oritmalki/bizmanager/internal/metrics"
)

// modelCache holds the set of currently enabled model names. The mutex only
// guards the fields, never the listing call itself: one caller refreshes
// while the rest keep using whatever the cache held before.
type modelCache struct {
	mu         sync.Mutex
	names      map[string]struct{}
	fetchedAt  time.Time
	refreshing bool
}

// ModelRouter resolves which model identifiers to try, in priority order,
// and drives a single pass over them. It never returns an error past its
// boundary: callers get text and the model that produced it, or nothing.
type ModelRouter struct {
	client      *GeminiClient
	candidates  []string
	cacheTTL    time.Duration
	callTimeout time.Duration
	listTimeout time.Duration
	cache       modelCache
}

// NewModelRouter creates a router over the configured priority list.
func NewModelRouter(client *GeminiClient, candidates []string, cacheTTL, callTimeout, listTimeout time.Duration) *ModelRouter {
	return &ModelRouter{
		client:      client,
		candidates:  candidates,
		cacheTTL:    cacheTTL,
		callTimeout: callTimeout,
		listTimeout: listTimeout,
	}
}

// resolveModelsToTry returns the configured priority list intersected with
// the cached available-model set. When the cache cannot be populated, or the
// intersection would be empty, the full configured list is returned
// unfiltered - availability filtering must never fail an extraction.
func (r *ModelRouter) resolveModelsToTry(ctx context.Context) []string {
	available := r.availableModels(ctx)
	if len(available) == 0 {
		return r.candidates
	}

	var filtered []string
	for _, name := range r.candidates {
		if _, ok := available[name]; ok {
			filtered = append(filtered, name)
		}
	}

	if len(filtered) == 0 {
		return r.candidates
	}
	return filtered
}

// availableModels returns the cached set, refreshing it lazily on expiry.
// Only one caller refreshes at a time; everyone else gets the previous set
// immediately, stale or nil, rather than queueing behind the network call.
// A failed listing call leaves the cache absent and returns nil.
func (r *ModelRouter) availableModels(ctx context.Context) map[string]struct{} {
	r.cache.mu.Lock()
	current := r.cache.names
	if current != nil && time.Since(r.cache.fetchedAt) < r.cacheTTL {
		r.cache.mu.Unlock()
		return current
	}
	if r.cache.refreshing {
		r.cache.mu.Unlock()
		return current
	}
	r.cache.refreshing = true
	r.cache.mu.Unlock()

	listCtx, cancel := context.WithTimeout(ctx, r.listTimeout)
	defer cancel()
	names, err := r.client.ListModels(listCtx)

	r.cache.mu.Lock()
	defer r.cache.mu.Unlock()
	r.cache.refreshing = false

	if err != nil || len(names) == 0 {
		r.cache.names = nil
		return nil
	}

	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	r.cache.names = set
	r.cache.fetchedAt = time.Now()
	return set
}

// Generate tries each resolved candidate once with a fixed timeout. On the
// first well-formed reply it returns the text and the producing model. On a
// retryable failure it advances to the next candidate; a terminal failure or
// exhaustion yields empty results, never an error.
func (r *ModelRouter) Generate(ctx context.Context, prompt, mimeType string, data []byte, tc *common.TaskContext) (string, string) {
	models := r.resolveModelsToTry(ctx)

	for i, model := range models {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
		text, err := r.client.GenerateContent(callCtx, model, prompt, mimeType, data)
		cancel()

		if err == nil {
			metrics.ExtractionAttempts.WithLabelValues(model, "success").Inc()
			tc.LogInfo("model %s answered (%d/%d)", model, i+1, len(models))
			return text, model
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Retryable {
			metrics.ExtractionAttempts.WithLabelValues(model, "retryable_error").Inc()
			tc.LogWarning("model %s failed, trying next candidate: %v", model, apiErr)
			continue
		}

		metrics.ExtractionAttempts.WithLabelValues(model, "terminal_error").Inc()
		tc.LogError("model %s failed terminally: %v", model, err)
		return "", ""
	}

	tc.LogWarning("all %d model candidates exhausted", len(models))
	return "", ""
}
