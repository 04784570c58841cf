package chat

import (
	"fmt"
	"slices"
	"strings"
)

type ValidationKind string

const (
	EmptyMessages       ValidationKind = "EmptyMessages"
	MalformedMessage    ValidationKind = "MalformedMessage"
	TokenBudgetExceeded ValidationKind = "TokenBudgetExceeded"
	InvalidTokenBudget  ValidationKind = "InvalidTokenBudget"
	UnsupportedModel    ValidationKind = "UnsupportedModel"
)

type ValidationError struct {
	Kind    ValidationKind
	Index   int // offending message index, -1 when not message specific
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(kind ValidationKind, index int, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: kind, Index: index, Message: fmt.Sprintf(format, args...)}
}

// Limits bounds what Validate accepts.
type Limits struct {
	DefaultModel     string
	AllowedModels    []string // empty means any model
	DefaultMaxTokens int
	MaxTokensCeiling int

	// RequireConversation rejects requests made only of system messages,
	// for providers that take the system prompt outside the message list.
	RequireConversation bool
}

// ValidatedRequest can only be produced by Validate, so holding one means the
// messages, model and token budget were checked.
type ValidatedRequest struct {
	messages  []Message
	model     string
	maxTokens int
}

func (v ValidatedRequest) Messages() []Message {
	return slices.Clone(v.messages)
}

func (v ValidatedRequest) Model() string {
	return v.model
}

func (v ValidatedRequest) MaxTokens() int {
	return v.maxTokens
}

// Validate checks req against limits. It has no side effects.
func Validate(req Request, limits Limits) (ValidatedRequest, error) {
	if len(req.Messages) == 0 {
		return ValidatedRequest{}, newValidationError(EmptyMessages, -1, "messages must contain at least one message")
	}

	for i, m := range req.Messages {
		if !m.Role.IsValid() {
			return ValidatedRequest{}, newValidationError(MalformedMessage, i, "message %d has unrecognized role %q", i, m.Role)
		}
		if strings.TrimSpace(m.Content) == "" {
			return ValidatedRequest{}, newValidationError(MalformedMessage, i, "message %d has empty content", i)
		}
	}

	if limits.RequireConversation && !slices.ContainsFunc(req.Messages, func(m Message) bool { return m.Role != RoleSystem }) {
		return ValidatedRequest{}, newValidationError(EmptyMessages, -1, "messages must contain at least one user or assistant message")
	}

	maxTokens := limits.DefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens <= 0 {
		return ValidatedRequest{}, newValidationError(InvalidTokenBudget, -1, "maxTokens must be a positive integer")
	}
	if limits.MaxTokensCeiling > 0 && maxTokens > limits.MaxTokensCeiling {
		return ValidatedRequest{}, newValidationError(TokenBudgetExceeded, -1, "maxTokens %d exceeds the limit of %d", maxTokens, limits.MaxTokensCeiling)
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = limits.DefaultModel
	}
	if len(limits.AllowedModels) > 0 && !slices.Contains(limits.AllowedModels, model) {
		return ValidatedRequest{}, newValidationError(UnsupportedModel, -1, "model %q is not supported", model)
	}

	return ValidatedRequest{
		messages:  slices.Clone(req.Messages),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}
