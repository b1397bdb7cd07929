// Package validate checks records against JSON-Schema draft-07 documents.
// The keywords record schemas use are type, properties, required, items and
// enum, but no keyword is filtered out: schemas are compiled as full
// draft-07 by github.com/santhosh-tekuri/jsonschema/v5. It memoizes one compiled schema
// per path, mirroring the config resolver's per-instance cache.
package validate

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/staticql/staticql/internal/repository"
	"github.com/staticql/staticql/internal/value"
)

// Validator compiles and caches JSON schemas read through a repository.
type Validator struct {
	repo repository.Repository

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// New creates a Validator reading schema documents through repo.
func New(repo repository.Repository) *Validator {
	return &Validator{repo: repo, schemas: make(map[string]*jsonschema.Schema)}
}

// Validate compiles (once, then caches) the schema at path and checks rec
// against it.
func (v *Validator) Validate(ctx context.Context, path string, rec value.Value) error {
	schema, err := v.compiled(ctx, path)
	if err != nil {
		return fmt.Errorf("compile schema %s: %w", path, err)
	}

	data := toAny(rec)
	if err := schema.Validate(data); err != nil {
		return err
	}
	return nil
}

func (v *Validator) compiled(ctx context.Context, path string) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.schemas[path]; ok {
		return s, nil
	}

	raw, err := v.repo.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	if err := compiler.AddResource(path, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(path)
	if err != nil {
		return nil, err
	}

	v.schemas[path] = schema
	return schema, nil
}

// toAny converts a Value into the plain Go data jsonschema.Schema.Validate
// expects: the shape produced by encoding/json's decode-into-any (string,
// float64, bool, nil, []any, map[string]any).
func toAny(v value.Value) any {
	switch v.Kind() {
	case value.KindNull:
		return nil
	case value.KindBool:
		b, _ := v.BoolValue()
		return b
	case value.KindNumber:
		n, _ := v.NumberValue()
		return n
	case value.KindString:
		s, _ := v.StringValue()
		return s
	case value.KindArray:
		arr, _ := v.Array()
		out := make([]any, len(arr))
		for i, e := range arr {
			out[i] = toAny(e)
		}
		return out
	case value.KindObject:
		obj, _ := v.Object()
		out := make(map[string]any, len(obj))
		for k, e := range obj {
			out[k] = toAny(e)
		}
		return out
	default:
		return nil
	}
}
