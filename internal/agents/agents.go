// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package agents defines the extraction-agent capability interface, the
// schema validation applied to agent output, and the configuration-driven
// registry the extraction orchestrator dispatches through. Agents are a
// closed set registered up front; there is no runtime type inspection.
package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pdiddy/litriage/pkg/types"
)

// Agent extracts one structured result from document text. Implementations
// must honor ctx cancellation; the orchestrator applies per-task timeouts by
// cancelling it.
type Agent interface {
	ID() string
	Extract(ctx context.Context, text string, schema types.Schema) (types.ExtractionResult, error)
}

// ValidationError reports agent output that does not satisfy its schema.
// It is non-retryable: retrying will not fix malformed output.
type ValidationError struct {
	AgentID string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("agent %s: invalid output: %s", e.AgentID, e.Reason)
}

// TransientError reports an agent failure that may succeed on retry
// (e.g. a rate-limited or briefly unavailable model endpoint).
type TransientError struct {
	AgentID string
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("agent %s: transient failure: %v", e.AgentID, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a non-retryable validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient reports whether err is a retryable agent failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Validate checks an extraction result against the agent's schema: required
// fields present, value kinds correct, confidence in [0,1].
func Validate(agentID string, res types.ExtractionResult, schema types.Schema) error {
	if res.Confidence < 0 || res.Confidence > 1 {
		return &ValidationError{AgentID: agentID, Reason: fmt.Sprintf("confidence %f out of range [0,1]", res.Confidence)}
	}
	for _, field := range schema.Fields {
		val, ok := res.Payload[field.Name]
		if !ok {
			if field.Required {
				return &ValidationError{AgentID: agentID, Reason: fmt.Sprintf("missing required field %q", field.Name)}
			}
			continue
		}
		if !kindMatches(val, field.Kind) {
			return &ValidationError{AgentID: agentID, Reason: fmt.Sprintf("field %q: want %s, got %T", field.Name, field.Kind, val)}
		}
	}
	return nil
}

func kindMatches(val any, kind types.FieldKind) bool {
	switch kind {
	case types.FieldString:
		_, ok := val.(string)
		return ok
	case types.FieldNumber:
		switch val.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case types.FieldList:
		switch val.(type) {
		case []string, []any:
			return true
		}
		return false
	}
	return false
}

// Entry pairs an agent with the schema its output must satisfy.
type Entry struct {
	Agent  Agent
	Schema types.Schema
}

// Registry is the closed set of configured extraction agents.
type Registry struct {
	entries map[string]Entry
}

// NewRegistry builds a registry. Duplicate agent IDs are an error.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		id := e.Agent.ID()
		if _, dup := r.entries[id]; dup {
			return nil, fmt.Errorf("duplicate agent %q", id)
		}
		r.entries[id] = e
	}
	return r, nil
}

// Get returns the entry for an agent ID.
func (r *Registry) Get(id string) (Entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// IDs returns all registered agent IDs, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
