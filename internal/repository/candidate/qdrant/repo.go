// Package qdrant stores artifacts as points in a Qdrant collection.
package qdrant

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/artifact"
)

// pointsClient is the subset of pb.PointsClient used here.
type pointsClient interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Get(ctx context.Context, in *pb.GetPoints, opts ...grpc.CallOption) (*pb.GetResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// collectionsClient is the subset of pb.CollectionsClient used here.
type collectionsClient interface {
	CollectionExists(
		ctx context.Context, in *pb.CollectionExistsRequest, opts ...grpc.CallOption,
	) (*pb.CollectionExistsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// Repo implements the search pipeline's candidate store over Qdrant.
type Repo struct {
	conn        *grpc.ClientConn
	points      pointsClient
	collections collectionsClient
	collection  string
	dim         int
	now         func() time.Time
}

// Dial connects to Qdrant over plaintext gRPC.
func Dial(host string, port int, collection string, dim int) (*Repo, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	r := New(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, dim)
	r.conn = conn
	return r, nil
}

// New creates a repository over existing clients.
func New(points pointsClient, collections collectionsClient, collection string, dim int) *Repo {
	return &Repo{
		points:      points,
		collections: collections,
		collection:  collection,
		dim:         dim,
		now:         time.Now,
	}
}

// Close releases the gRPC connection when the repository owns one.
func (r *Repo) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

// EnsureCollection creates the cosine collection if it does not exist.
func (r *Repo) EnsureCollection(ctx context.Context) error {
	resp, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: r.collection})
	if err != nil {
		return unavailable("check collection", err)
	}
	if resp.GetResult().GetExists() {
		return nil
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(r.dim), Distance: pb.Distance_Cosine},
		}},
	})
	if err != nil {
		return unavailable("create collection", err)
	}
	return nil
}

// Ping checks that the collection is reachable.
func (r *Repo) Ping(ctx context.Context) error {
	if _, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: r.collection}); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// PointID maps an artifact ID onto the UUID namespace Qdrant requires.
func PointID(artifactID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(artifactID)).String()
}

// Upsert stores or replaces an artifact. A replaced artifact keeps its original
// sequence, so re-indexing does not move it in the tie order.
func (r *Repo) Upsert(ctx context.Context, a artifact.Artifact) error {
	emb := a.Embedding()
	if len(emb) != r.dim {
		return fmt.Errorf("upsert %s: got %d, want %d: %w", a.ID(), len(emb), r.dim, domain.ErrVectorDimMismatch)
	}

	pid := &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(a.ID())}}
	seq, err := r.storedSeq(ctx, pid)
	if err != nil {
		return err
	}
	if seq == 0 {
		seq = r.now().UnixNano()
	}

	meta := a.Metadata()
	wait := true
	_, err = r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id:      pid,
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: emb}}},
			Payload: toPayload(a.ID(), &meta, seq),
		}},
	})
	if err != nil {
		return unavailable("upsert", err)
	}
	return nil
}

// storedSeq returns the sequence of an existing point, or 0 if there is none.
func (r *Repo) storedSeq(ctx context.Context, id *pb.PointId) (int64, error) {
	resp, err := r.points.Get(ctx, &pb.GetPoints{
		CollectionName: r.collection,
		Ids:            []*pb.PointId{id},
		WithPayload: &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Include{
			Include: &pb.PayloadIncludeSelector{Fields: []string{keySeq}},
		}},
	})
	if err != nil {
		return 0, unavailable("get", err)
	}
	for _, pt := range resp.GetResult() {
		if seq := pt.GetPayload()[keySeq].GetIntegerValue(); seq > 0 {
			return seq, nil
		}
	}
	return 0, nil
}

// QueryNearest returns up to k artifacts by descending cosine similarity.
// Equal scores are ordered by upsert time.
func (r *Repo) QueryNearest(ctx context.Context, vec []float32, k int) ([]artifact.Candidate, error) {
	if k <= 0 {
		return []artifact.Candidate{}, nil
	}
	if len(vec) != r.dim {
		return nil, fmt.Errorf("query: got %d, want %d: %w", len(vec), r.dim, domain.ErrVectorDimMismatch)
	}

	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, unavailable("search", err)
	}

	type hit struct {
		c   artifact.Candidate
		seq int64
	}
	hits := make([]hit, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		id, meta, seq := fromPayload(pt.GetPayload())
		if id == "" {
			id = pt.GetId().GetUuid()
		}
		hits = append(hits, hit{
			c:   artifact.Candidate{ArtifactID: id, Similarity: float64(pt.GetScore()), Metadata: meta},
			seq: seq,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].c.Similarity != hits[j].c.Similarity {
			return hits[i].c.Similarity > hits[j].c.Similarity
		}
		return hits[i].seq < hits[j].seq
	})

	out := make([]artifact.Candidate, 0, min(k, len(hits)))
	for i := range hits {
		if len(out) == k {
			break
		}
		out = append(out, hits[i].c)
	}
	return out, nil
}

// Count returns the exact number of points in the collection.
func (r *Repo) Count(ctx context.Context) (int, error) {
	exact := true
	resp, err := r.points.Count(ctx, &pb.CountPoints{CollectionName: r.collection, Exact: &exact})
	if err != nil {
		return 0, unavailable("count", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("qdrant %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
