package domain

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// TaskType classifies the kind of task performed in an engagement.
type TaskType string

const (
	TaskSimulateLogin  TaskType = "simulate_login"
	TaskSimulateBeacon TaskType = "simulate_beacon"
	TaskInventory      TaskType = "inventory"
	TaskEmitSynthetic  TaskType = "emit_synthetic"
)

// TaskState is the lifecycle state of a task.
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateApproved  TaskState = "approved"
	TaskStateExecuting TaskState = "executing"
	TaskStateCancelled TaskState = "cancelled"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
)

const (
	minTaskTTLSeconds = 1
	maxTaskTTLSeconds = 3600
)

var allowedTaskTypes = map[TaskType]struct{}{
	TaskSimulateLogin:  {},
	TaskSimulateBeacon: {},
	TaskInventory:      {},
	TaskEmitSynthetic:  {},
}

var validTaskStates = map[TaskState]struct{}{
	TaskStatePending:   {},
	TaskStateApproved:  {},
	TaskStateExecuting: {},
	TaskStateCancelled: {},
	TaskStateCompleted: {},
	TaskStateFailed:    {},
}

// Task is a typed engagement task with attribution and lifecycle metadata.
// Audit records reference tasks through their task_id and authorization fields.
type Task struct {
	ID         string            `json:"id"`
	Engagement string            `json:"engagement"`
	Type       TaskType          `json:"type"`
	CreatedAt  time.Time         `json:"created_at"`
	TTLSeconds int               `json:"ttl_seconds"`
	Operator   string            `json:"operator"`
	ApprovedBy string            `json:"approved_by"`
	State      TaskState         `json:"state"`
	Params     map[string]string `json:"params,omitempty"`
}

// SignedTask wraps a Task with an Ed25519 attestation of its approval.
// The signature covers the task, not the audit records it authorizes.
type SignedTask struct {
	Task      Task   `json:"task"`
	PublicKey []byte `json:"public_key"`
	Signature []byte `json:"signature"`
}

// NewTaskID returns a fresh ULID for task identity. Entropy comes from
// crypto/rand so IDs stay unguessable even when the timestamp is known.
func NewTaskID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

// Validate checks task invariants against the given wall-clock time.
func (t *Task) Validate(now time.Time) error {
	if t == nil {
		return NewDomainError("Task.Validate", ErrTaskInvalid, "task is nil")
	}
	if t.ID == "" {
		return NewDomainError("Task.Validate", ErrTaskInvalid, "task ID is required")
	}
	if t.Engagement == "" {
		return NewDomainError("Task.Validate", ErrTaskInvalid, "engagement is required")
	}
	if t.Operator == "" {
		return NewDomainError("Task.Validate", ErrTaskInvalid, "operator is required")
	}
	if t.ApprovedBy == "" {
		return NewDomainError("Task.Validate", ErrTaskInvalid, "approved_by is required")
	}
	if _, ok := allowedTaskTypes[t.Type]; !ok {
		return NewDomainError("Task.Validate", ErrTaskInvalid, fmt.Sprintf("unsupported task type %q", t.Type))
	}
	if _, ok := validTaskStates[t.State]; !ok {
		return NewDomainError("Task.Validate", ErrTaskInvalid, fmt.Sprintf("invalid task state %q", t.State))
	}
	if t.TTLSeconds < minTaskTTLSeconds || t.TTLSeconds > maxTaskTTLSeconds {
		return NewDomainError("Task.Validate", ErrTaskInvalid,
			fmt.Sprintf("ttl_seconds must be between %d and %d, got %d", minTaskTTLSeconds, maxTaskTTLSeconds, t.TTLSeconds))
	}
	expiry := t.CreatedAt.Add(time.Duration(t.TTLSeconds) * time.Second)
	if !now.Before(expiry) {
		return NewDomainError("Task.Validate", ErrTaskExpired,
			fmt.Sprintf("expired at %s", expiry.UTC().Format(time.RFC3339)))
	}
	return nil
}

// SignTask signs a validated task with the given Ed25519 key pair.
func SignTask(task Task, priv ed25519.PrivateKey, pub ed25519.PublicKey) (*SignedTask, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, NewDomainError("SignTask", ErrInvalidInput, "invalid private key size")
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, NewDomainError("SignTask", ErrInvalidInput, "invalid public key size")
	}
	if err := task.Validate(time.Now().UTC()); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, WrapOp("SignTask: marshal task", err)
	}
	return &SignedTask{
		Task:      task,
		PublicKey: pub,
		Signature: ed25519.Sign(priv, payload),
	}, nil
}

// VerifyTask checks the signature and re-validates the embedded task.
func VerifyTask(st *SignedTask, now time.Time) error {
	if st == nil {
		return NewDomainError("VerifyTask", ErrInvalidInput, "signed task is nil")
	}
	if len(st.PublicKey) != ed25519.PublicKeySize {
		return NewDomainError("VerifyTask", ErrTaskSignature, "invalid public key size")
	}
	if len(st.Signature) != ed25519.SignatureSize {
		return NewDomainError("VerifyTask", ErrTaskSignature, "invalid signature size")
	}
	payload, err := json.Marshal(st.Task)
	if err != nil {
		return WrapOp("VerifyTask: marshal task", err)
	}
	if !ed25519.Verify(st.PublicKey, payload, st.Signature) {
		return NewDomainError("VerifyTask", ErrTaskSignature, "signature mismatch")
	}
	return st.Task.Validate(now)
}

// GenerateTaskKeyPair generates an Ed25519 key pair for task signing.
func GenerateTaskKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}
