package domain

import "context"

type embeddingUsageKey struct{}

// EmbeddingUsage collects embedding usage for a single HTTP request.
// The handler puts a mutable pointer into the context before calling the service;
// the service records after embedding; the handler reads it for response headers.
type EmbeddingUsage struct {
	TotalTokens int
	Used        bool // true if embedding was called, even on a cache hit with 0 tokens
	Fallback    bool // true if any vector came from the hash fallback
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *EmbeddingUsage) {
	u := &EmbeddingUsage{}
	return context.WithValue(ctx, embeddingUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *EmbeddingUsage {
	u, _ := ctx.Value(embeddingUsageKey{}).(*EmbeddingUsage)
	return u
}

// Record notes one embedding result. Safe on a nil collector.
func (u *EmbeddingUsage) Record(res EmbeddingResult) {
	if u != nil {
		u.TotalTokens += res.TotalTokens
		u.Used = true
		u.Fallback = u.Fallback || res.Fallback
	}
}
