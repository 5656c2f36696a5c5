package redis

import (
	"strconv"
	"strings"
	"time"

	dbredis "github.com/kailas-cloud/aim3/internal/db/redis"
	"github.com/kailas-cloud/aim3/internal/domain/artifact"
	"github.com/kailas-cloud/aim3/internal/domain/query"
)

const (
	fieldTrustPoints    = "trust_points"
	fieldIntentLevel    = "intent_level"
	fieldEnvironment    = "environment"
	fieldUserID         = "user_id"
	fieldTags           = "tags"
	fieldArtifactType   = "artifact_type"
	fieldContentPreview = "content_preview"
	fieldCreatedAt      = "created_at"
	fieldSeq            = "seq"
)

// returnFields are all metadata fields; the vector itself is never read back.
var returnFields = []string{
	fieldTrustPoints, fieldIntentLevel, fieldEnvironment, fieldUserID, fieldTags,
	fieldArtifactType, fieldContentPreview, fieldCreatedAt, fieldSeq,
}

func toHash(m *artifact.Metadata, emb []float32, seq string) map[string]string {
	fields := map[string]string{
		vectorField:         string(dbredis.VectorToBytes(emb)),
		fieldTrustPoints:    strconv.FormatFloat(m.TrustPoints, 'f', -1, 64),
		fieldEnvironment:    string(m.Environment),
		fieldUserID:         m.UserID,
		fieldTags:           strings.Join(m.Tags, ","),
		fieldArtifactType:   m.ArtifactType,
		fieldContentPreview: m.ContentPreview,
		fieldCreatedAt:      formatInt(m.CreatedAt.UnixMilli()),
		fieldSeq:            seq,
	}
	if m.IntentLevel != nil {
		fields[fieldIntentLevel] = strconv.FormatFloat(*m.IntentLevel, 'f', -1, 64)
	}
	return fields
}

// fromHash is lenient: malformed fields fall back to zero values.
func fromHash(f map[string]string) (artifact.Metadata, int64) {
	m := artifact.Metadata{
		Environment:    query.Environment(f[fieldEnvironment]),
		UserID:         f[fieldUserID],
		ArtifactType:   f[fieldArtifactType],
		ContentPreview: f[fieldContentPreview],
	}
	if v, err := strconv.ParseFloat(f[fieldTrustPoints], 64); err == nil {
		m.TrustPoints = v
	}
	if s, ok := f[fieldIntentLevel]; ok && s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			m.IntentLevel = &v
		}
	}
	if s := f[fieldTags]; s != "" {
		m.Tags = strings.Split(s, ",")
	}
	if ms, err := parseInt(f[fieldCreatedAt]); err == nil && ms > 0 {
		m.CreatedAt = time.UnixMilli(ms).UTC()
	}
	seq, _ := parseInt(f[fieldSeq])
	return m, seq
}

func formatInt(n int64) string { return strconv.FormatInt(n, 10) }

func parseInt(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }
