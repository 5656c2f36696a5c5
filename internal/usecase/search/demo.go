package search

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/aim3/internal/domain/artifact"
	"github.com/kailas-cloud/aim3/internal/domain/scoring"
	"github.com/kailas-cloud/aim3/internal/domain/search/request"
)

const maxDemoCandidates = 10

// demoCandidates fabricates min(top_k*2, 10) descending-similarity candidates
// in the caller's environment, for showcasing ranking on an empty store.
func demoCandidates(req *request.Request, now time.Time) []artifact.Candidate {
	n := min(req.TopK()*2, maxDemoCandidates)
	qctx := req.Context()
	out := make([]artifact.Candidate, n)
	for i := range n {
		intent := scoring.Round(0.8-float64(i)*0.05, 2)
		out[i] = artifact.Candidate{
			ArtifactID: fmt.Sprintf("DEMO-%03d", i),
			Similarity: scoring.Round(0.92-float64(i)*0.04, 4),
			Metadata: artifact.Metadata{
				TrustPoints:    1200 + float64(i)*150,
				IntentLevel:    &intent,
				Environment:    qctx.Environment(),
				ArtifactType:   "demo",
				ContentPreview: fmt.Sprintf("Discovery artifact #%d", i+1),
				CreatedAt:      now.UTC(),
			},
		}
	}
	return out
}
