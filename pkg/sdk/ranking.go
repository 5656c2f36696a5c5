package aim3

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/aim3/internal/domain/outcome"
)

// Index embeds content and stores it with its creator's context snapshot.
// Identical content maps to the same ID and replaces the earlier entry.
func (c *Client) Index(ctx context.Context, a Artifact) (_ Indexed, err error) {
	start := time.Now()
	defer func() { c.obs.observe("index", start, err) }()

	qctx, err := contextToDomain(a.Context)
	if err != nil {
		return Indexed{}, err
	}
	res, err := c.artifacts.Index(ctx, a.Content, qctx, a.Tags, a.Type)
	if err != nil {
		return Indexed{}, fmt.Errorf("index: %w", err)
	}
	return Indexed{ID: res.ID, Dimensions: res.Dimensions, Fallback: res.Fallback}, nil
}

// Search ranks stored artifacts for the query and context.
func (c *Client) Search(ctx context.Context, req SearchRequest) (_ SearchResponse, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	domReq, err := searchRequestToDomain(req)
	if err != nil {
		return SearchResponse{}, err
	}
	resp, err := c.search.Search(ctx, &domReq)
	if err != nil {
		return SearchResponse{}, fmt.Errorf("search: %w", err)
	}
	return searchResponseFromDomain(resp), nil
}

// RecordOutcome appends an observation for the next evolution cycle.
// A zero Timestamp is set to now.
func (c *Client) RecordOutcome(ctx context.Context, o Outcome) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("record_outcome", start, err) }()

	rec := outcome.Record{Gain: o.Gain, TrustGain: o.TrustGain, Cost: o.Cost, Timestamp: o.Timestamp}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = start
	}
	rec.Timestamp = rec.Timestamp.UTC()
	if err := rec.Validate(); err != nil {
		return err //nolint:wrapcheck // field-level validation error
	}
	if err := c.outcomes.Append(ctx, rec); err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// Evolve runs one evolution cycle: reward the recent outcomes, move the
// serendipity bias and persist the new strategy.
func (c *Client) Evolve(ctx context.Context) (_ Cycle, err error) {
	start := time.Now()
	defer func() { c.obs.observe("evolve", start, err) }()

	cycle, err := c.evolver.RunOnce(ctx)
	if err != nil {
		return Cycle{}, fmt.Errorf("evolve: %w", err)
	}
	out := cycleFromDomain(cycle)
	c.obs.observeCycle(out)
	return out, nil
}

// Strategy returns the current strategy snapshot.
func (c *Client) Strategy() Strategy {
	return strategyFromDomain(c.strategy.Snapshot())
}
