package qdrant

import (
	"time"

	pb "github.com/qdrant/go-client/qdrant"

	"github.com/kailas-cloud/aim3/internal/domain/artifact"
	"github.com/kailas-cloud/aim3/internal/domain/query"
)

const (
	keyArtifactID     = "artifact_id"
	keyTrustPoints    = "trust_points"
	keyIntentLevel    = "intent_level"
	keyEnvironment    = "environment"
	keyUserID         = "user_id"
	keyTags           = "tags"
	keyArtifactType   = "artifact_type"
	keyContentPreview = "content_preview"
	keyCreatedAt      = "created_at"
	keySeq            = "seq"
)

func str(s string) *pb.Value    { return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}} }
func num(f float64) *pb.Value   { return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: f}} }
func integer(n int64) *pb.Value { return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: n}} }

func toPayload(id string, m *artifact.Metadata, seq int64) map[string]*pb.Value {
	tags := make([]*pb.Value, len(m.Tags))
	for i, t := range m.Tags {
		tags[i] = str(t)
	}
	p := map[string]*pb.Value{
		keyArtifactID:     str(id),
		keyTrustPoints:    num(m.TrustPoints),
		keyEnvironment:    str(string(m.Environment)),
		keyUserID:         str(m.UserID),
		keyTags:           {Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: tags}}},
		keyArtifactType:   str(m.ArtifactType),
		keyContentPreview: str(m.ContentPreview),
		keyCreatedAt:      integer(m.CreatedAt.UnixMilli()),
		keySeq:            integer(seq),
	}
	if m.IntentLevel != nil {
		p[keyIntentLevel] = num(*m.IntentLevel)
	}
	return p
}

func fromPayload(p map[string]*pb.Value) (string, artifact.Metadata, int64) {
	m := artifact.Metadata{
		TrustPoints:    p[keyTrustPoints].GetDoubleValue(),
		Environment:    query.Environment(p[keyEnvironment].GetStringValue()),
		UserID:         p[keyUserID].GetStringValue(),
		ArtifactType:   p[keyArtifactType].GetStringValue(),
		ContentPreview: p[keyContentPreview].GetStringValue(),
	}
	if v, ok := p[keyIntentLevel]; ok {
		intent := v.GetDoubleValue()
		m.IntentLevel = &intent
	}
	for _, t := range p[keyTags].GetListValue().GetValues() {
		m.Tags = append(m.Tags, t.GetStringValue())
	}
	if ms := p[keyCreatedAt].GetIntegerValue(); ms > 0 {
		m.CreatedAt = time.UnixMilli(ms).UTC()
	}
	return p[keyArtifactID].GetStringValue(), m, p[keySeq].GetIntegerValue()
}
