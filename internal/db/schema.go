package db

import (
	"errors"
	"fmt"
	"strconv"
)

// FieldKind enumerates the FT schema field kinds the artifact index uses.
type FieldKind int

const (
	// FieldTag is an exact-match TAG field.
	FieldTag FieldKind = iota
	// FieldNumeric is a NUMERIC range field.
	FieldNumeric
	// FieldVector is a FLOAT32 VECTOR field compared by cosine distance.
	FieldVector
)

// HNSWParams tunes an approximate vector field. A nil *HNSWParams means FLAT (exact).
type HNSWParams struct {
	M              int
	EFConstruction int
}

// IndexField is one SCHEMA entry of FT.CREATE.
type IndexField struct {
	Name string
	Kind FieldKind
	// Separator splits multi-valued TAG fields; empty keeps the server default.
	Separator string
	Dim       int
	HNSW      *HNSWParams
}

// Tag declares a single-valued TAG field.
func Tag(name string) IndexField { return IndexField{Name: name, Kind: FieldTag} }

// TagList declares a TAG field holding sep-joined values.
func TagList(name, sep string) IndexField {
	return IndexField{Name: name, Kind: FieldTag, Separator: sep}
}

// Numeric declares a NUMERIC field.
func Numeric(name string) IndexField { return IndexField{Name: name, Kind: FieldNumeric} }

// Vector declares a cosine VECTOR field; hnsw nil selects FLAT.
func Vector(name string, dim int, hnsw *HNSWParams) IndexField {
	return IndexField{Name: name, Kind: FieldVector, Dim: dim, HNSW: hnsw}
}

// IndexDefinition is an FT index over HASH keys sharing one prefix.
type IndexDefinition struct {
	Name   string
	Prefix string
	Fields []IndexField
}

// NewIndexDefinition validates and returns an index definition.
func NewIndexDefinition(name, prefix string, fields ...IndexField) (*IndexDefinition, error) {
	d := &IndexDefinition{Name: name, Prefix: prefix, Fields: fields}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks names, duplicates and vector dimensions. Exactly one vector field is allowed.
func (d *IndexDefinition) Validate() error {
	if !IsValidIdentifier(d.Name) {
		return fmt.Errorf("invalid index name %q", d.Name)
	}
	if len(d.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]struct{}, len(d.Fields))
	vectors := 0
	for _, f := range d.Fields {
		if f.Name == "" {
			return errors.New("field name is required")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}

		if f.Kind == FieldVector {
			vectors++
			if f.Dim <= 0 {
				return fmt.Errorf("vector field %q requires a positive dimension", f.Name)
			}
		}
	}
	if vectors > 1 {
		return errors.New("at most one vector field is supported")
	}
	return nil
}

// CreateArgs renders the arguments that follow FT.CREATE.
func (d *IndexDefinition) CreateArgs() []string {
	args := []string{d.Name, "ON", "HASH"}
	if d.Prefix != "" {
		args = append(args, "PREFIX", "1", d.Prefix)
	}
	args = append(args, "SCHEMA")
	for _, f := range d.Fields {
		args = append(args, f.args()...)
	}
	return args
}

func (f IndexField) args() []string {
	switch f.Kind {
	case FieldTag:
		if f.Separator != "" {
			return []string{f.Name, "TAG", "SEPARATOR", f.Separator}
		}
		return []string{f.Name, "TAG"}
	case FieldNumeric:
		return []string{f.Name, "NUMERIC"}
	default:
		attrs := []string{"TYPE", "FLOAT32", "DIM", strconv.Itoa(f.Dim), "DISTANCE_METRIC", "COSINE"}
		algo := "FLAT"
		if f.HNSW != nil {
			algo = "HNSW"
			if f.HNSW.M > 0 {
				attrs = append(attrs, "M", strconv.Itoa(f.HNSW.M))
			}
			if f.HNSW.EFConstruction > 0 {
				attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(f.HNSW.EFConstruction))
			}
		}
		// VECTOR <algo> <nargs> <attrs...>
		return append([]string{f.Name, "VECTOR", algo, strconv.Itoa(len(attrs))}, attrs...)
	}
}

// IsValidIdentifier reports whether s matches [a-zA-Z0-9_:-]+. Index and
// table names pass through it before reaching a command or a query.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !isDigit && r != '_' && r != ':' && r != '-' {
			return false
		}
	}
	return true
}
