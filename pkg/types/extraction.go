// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// TaskState tracks an extraction task through its lifecycle.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	TaskTimedOut  TaskState = "timed_out"
)

// Terminal reports whether the state is final.
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskTimedOut
}

// ExtractionTask is one (document, agent) extraction attempt. The pair is a
// unique key: at most one task per key executes at a time, and a duplicate
// submit while the key is running or succeeded is a no-op.
type ExtractionTask struct {
	// DocumentID identifies the curated document.
	DocumentID string `json:"document_id" yaml:"document_id"`

	// AgentID identifies the extraction agent.
	AgentID string `json:"agent_id" yaml:"agent_id"`

	// State is the task's lifecycle state.
	State TaskState `json:"state" yaml:"state"`

	// Attempts counts agent invocations, including retries.
	Attempts int `json:"attempts" yaml:"attempts"`

	// Reason is a human-readable explanation for Failed or TimedOut tasks.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Key returns the task's unique "documentID/agentID" key.
func (t ExtractionTask) Key() string {
	return t.DocumentID + "/" + t.AgentID
}

// FieldKind is the value kind of a schema field.
type FieldKind string

const (
	FieldString FieldKind = "string"
	FieldNumber FieldKind = "number"
	FieldList   FieldKind = "list"
)

// SchemaField describes one field an extraction agent must produce.
type SchemaField struct {
	// Name is the payload key.
	Name string `json:"name" yaml:"name"`

	// Kind is the expected value kind: string, number, or list.
	Kind FieldKind `json:"kind" yaml:"kind"`

	// Required marks fields that must be present for the payload to
	// validate.
	Required bool `json:"required" yaml:"required"`
}

// Schema is the structured-output descriptor handed to an extraction agent.
type Schema struct {
	// Name identifies the schema (usually the agent ID).
	Name string `json:"name" yaml:"name"`

	// Fields lists the expected payload fields in order.
	Fields []SchemaField `json:"fields" yaml:"fields"`
}

// ExtractionResult is the structured output of one agent invocation. Never
// mutated after creation.
type ExtractionResult struct {
	// AgentID identifies the producing agent.
	AgentID string `json:"agent_id" yaml:"agent_id"`

	// Payload is the schema-defined key-value output.
	Payload map[string]any `json:"payload" yaml:"payload"`

	// Confidence is the agent's self-reported certainty in [0,1].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Err records an extraction failure message. Empty on success.
	Err string `json:"error,omitempty" yaml:"error,omitempty"`
}

// DocumentExtractionReport is the terminal artifact for one document, handed
// to the storage collaborator once every configured agent task has reached a
// terminal state or the global timeout elapsed.
type DocumentExtractionReport struct {
	// DocumentID identifies the curated document.
	DocumentID string `json:"document_id" yaml:"document_id"`

	// RunID is the triage run this document came from.
	RunID string `json:"run_id,omitempty" yaml:"run_id,omitempty"`

	// Results maps agent ID to that agent's result. Failed and timed-out
	// agents appear in Failures instead.
	Results map[string]ExtractionResult `json:"results" yaml:"results"`

	// Failures maps agent ID to the reason the agent's task ended Failed
	// or TimedOut.
	Failures map[string]string `json:"failures,omitempty" yaml:"failures,omitempty"`

	// Quality is the weighted average of succeeded agents' confidence,
	// weighted by configured per-agent importance. Zero when no agent
	// succeeded.
	Quality float64 `json:"quality" yaml:"quality"`

	// Complete is true only if every agent marked required succeeded.
	Complete bool `json:"complete" yaml:"complete"`

	// Missing lists required agents that did not succeed, sorted.
	Missing []string `json:"missing,omitempty" yaml:"missing,omitempty"`

	// FinishedAt is when the report was assembled.
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}
