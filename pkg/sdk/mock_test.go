package aim3

import (
	"context"

	"github.com/kailas-cloud/aim3/internal/domain/outcome"
	"github.com/kailas-cloud/aim3/internal/domain/query"
	"github.com/kailas-cloud/aim3/internal/domain/search/request"
	domstrategy "github.com/kailas-cloud/aim3/internal/domain/strategy"
	artifactuc "github.com/kailas-cloud/aim3/internal/usecase/artifact"
	evolutionuc "github.com/kailas-cloud/aim3/internal/usecase/evolution"
	healthuc "github.com/kailas-cloud/aim3/internal/usecase/health"
	searchuc "github.com/kailas-cloud/aim3/internal/usecase/search"
)

// --- searchUseCase mock ---

type mockSearchUC struct {
	searchFn func(ctx context.Context, req *request.Request) (*searchuc.Response, error)
}

func (m *mockSearchUC) Search(ctx context.Context, req *request.Request) (*searchuc.Response, error) {
	return m.searchFn(ctx, req)
}

// --- artifactUseCase mock ---

type mockArtifactUC struct {
	indexFn func(ctx context.Context, content string, qctx query.Context, tags []string, typ string) (artifactuc.Indexed, error)
}

func (m *mockArtifactUC) Index(
	ctx context.Context, content string, qctx query.Context, tags []string, typ string,
) (artifactuc.Indexed, error) {
	return m.indexFn(ctx, content, qctx, tags, typ)
}

// --- outcomeLog mock ---

type mockOutcomes struct {
	appended []outcome.Record
	err      error
}

func (m *mockOutcomes) Append(_ context.Context, r outcome.Record) error {
	if m.err != nil {
		return m.err
	}
	m.appended = append(m.appended, r)
	return nil
}

func (m *mockOutcomes) Recent(_ context.Context, n int) ([]outcome.Record, error) {
	return m.appended[max(0, len(m.appended)-n):], m.err
}

// --- evolver mock ---

type mockEvolver struct {
	cycle evolutionuc.Cycle
	err   error
}

func (m *mockEvolver) RunOnce(context.Context) (evolutionuc.Cycle, error) { return m.cycle, m.err }

type fixedStrategy domstrategy.State

func (f fixedStrategy) Snapshot() domstrategy.State { return domstrategy.State(f) }

type mockHealthUC struct{ report healthuc.Report }

func (m mockHealthUC) Check(context.Context) healthuc.Report { return m.report }

// --- public Embedder mock ---

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

// --- helpers ---

func testClient() *Client {
	return &Client{
		search:    &mockSearchUC{},
		artifacts: &mockArtifactUC{},
		outcomes:  &mockOutcomes{},
		strategy:  fixedStrategy(domstrategy.Default(fixedNow)),
		evolver:   &mockEvolver{},
	}
}
