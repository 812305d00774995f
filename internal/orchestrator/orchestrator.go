// Package orchestrator implements the chat-turn algorithm: sanitize the
// input, create a user node, concurrently retrieve vector context and
// assemble ancestor history, verify retrieved chunks against the causal
// graph, build a prompt, stream an LLM completion back to the caller, and
// persist the resulting assistant node.
//
// The package composes TreeStore, VectorIndex, CausalFilter, Security, and
// an LLM provider the way internal/hotctx/assembler.go in the teacher repo
// composes identity/transcript/scene context: independent fetches run
// concurrently via errgroup, and a pure formatting step turns the result
// into a message list with no further I/O.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/causalfractal/contextengine/internal/causalfilter"
	"github.com/causalfractal/contextengine/internal/security"
	"github.com/causalfractal/contextengine/pkg/contextmodel"
	"github.com/causalfractal/contextengine/pkg/provider/llm"
)

// retrievalK is the number of chunks requested from VectorIndex.query, fixed
// by spec at 10.
const retrievalK = 10

// systemRoleRejectionMarker is the substring the LLM collaborator contract
// guarantees appears in an error when it rejects a "system"-role message.
const systemRoleRejectionMarker = "system message"

// charsPerToken approximates token count from character count when a
// provider-specific tokenizer result is unavailable for the persisted node.
const charsPerToken = 4

// TreeStore is the slice of the fractal conversation tree the orchestrator
// needs. Defined locally so this package depends only on the methods it
// calls, not on internal/treestore's concrete type.
type TreeStore interface {
	CreateNode(ctx context.Context, sessionID uuid.UUID, parentID *uuid.UUID, role contextmodel.Role, content string, tokens int) (uuid.UUID, error)
	CreateNodeWithID(ctx context.Context, nodeID uuid.UUID, sessionID uuid.UUID, parentID *uuid.UUID, role contextmodel.Role, content string, tokens int) (uuid.UUID, error)
	ContextChain(ctx context.Context, leafID uuid.UUID) ([]contextmodel.ContextChainEntry, error)
}

// VectorIndex is the slice of the knowledge index the orchestrator needs.
type VectorIndex interface {
	Query(ctx context.Context, text string, k int) (string, error)
}

// CausalVerifier narrows CausalFilter to the single method the orchestrator
// calls, keeping this package's fakes in tests trivial to write.
type CausalVerifier interface {
	Filter(query string, chunks []string) []string
}

// Security is the sanitize-and-classify collaborator from spec.md §6.
type Security interface {
	Check(ctx context.Context, text string) (security.CheckResult, error)
}

// CoarseGrainScheduler is the fire-and-forget scheduling hook the
// orchestrator calls after persisting an assistant node. Implementations
// (internal/coarsegrain.Grainer) must never block the caller.
type CoarseGrainScheduler interface {
	Schedule(nodeID uuid.UUID)
}

// ErrInputRejected is returned when Security.Check confirms an injection
// attempt. Callers should translate this into a 400-equivalent response and
// must not persist anything for the turn.
var ErrInputRejected = fmt.Errorf("orchestrator: input rejected by security check")

// TurnRequest carries the inputs to a single chat turn.
type TurnRequest struct {
	SessionID    uuid.UUID
	ParentNodeID *uuid.UUID
	UserContent  string

	// History is a caller-provided linear message history, used only when
	// ParentNodeID is nil. Treated as an already-assembled ancestor chain,
	// per spec.md §4.6 step 6.
	History []contextmodel.ContextChainEntry
}

// TurnHandle is returned before streaming begins so the caller (the HTTP
// transport) can set response headers ahead of the body.
type TurnHandle struct {
	SessionID        uuid.UUID
	UserNodeID       uuid.UUID
	AssistantNodeID  uuid.UUID
	Chunks           <-chan string
	// Err resolves once the stream completes. It is nil on success and when
	// the LLM fails after at least one chunk (the partial reply is kept); it
	// is non-nil when the LLM fails before any chunk, in which case a
	// trailing error sentence is also sent on the chunk stream.
	Err <-chan error
}

// Orchestrator runs the ten-step chat-turn algorithm.
type Orchestrator struct {
	tree             TreeStore
	vectors          VectorIndex
	filter           CausalVerifier
	security         Security
	llmProv          llm.Provider
	grainer          CoarseGrainScheduler
	persona          string
	temperature      float64
	maxContextTokens int
}

// Config bundles the Orchestrator's dependencies.
type Config struct {
	TreeStore      TreeStore
	VectorIndex    VectorIndex
	CausalFilter   CausalVerifier
	Security       Security
	LLM            llm.Provider
	CoarseGrainer  CoarseGrainScheduler
	SystemPersona  string
	Temperature    float64

	// MaxContextTokens is the advisory assembly budget from spec.md §6
	// ("enforcement by trimming from the oldest ancestor"). Zero or
	// negative disables trimming.
	MaxContextTokens int
}

// New constructs an Orchestrator from cfg. All fields are required except
// SystemPersona (may be empty) and Temperature (zero is a valid, greedy
// setting).
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		tree:             cfg.TreeStore,
		vectors:          cfg.VectorIndex,
		filter:           cfg.CausalFilter,
		security:         cfg.Security,
		llmProv:          cfg.LLM,
		grainer:          cfg.CoarseGrainer,
		persona:          cfg.SystemPersona,
		temperature:      cfg.Temperature,
		maxContextTokens: cfg.MaxContextTokens,
	}
}

// HandleTurn runs steps 1–10 and returns a TurnHandle whose Chunks channel
// the caller must drain to completion. The handle's node ids are valid
// immediately on return (step 3 pre-mints AssistantNodeID before any
// streaming happens), letting an HTTP handler set response headers before
// writing the body.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (*TurnHandle, error) {
	// Step 1: sanitize and classify.
	check, err := o.security.Check(ctx, req.UserContent)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: security check: %w", err)
	}
	if !check.OK {
		return nil, fmt.Errorf("%w: injection_score=%.2f sql_injection=%v", ErrInputRejected, check.InjectionScore, check.SQLInjection)
	}
	userContent := check.SanitizedText

	// Step 2: create the user node.
	userNodeID, err := o.tree.CreateNode(ctx, req.SessionID, req.ParentNodeID, contextmodel.RoleUser, userContent, estimateTokens(userContent))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: create user node: %w", err)
	}

	// Step 3: pre-mint the assistant node id.
	assistantNodeID := uuid.New()

	// Steps 4 and 6 run concurrently: retrieval has no dependency on the
	// ancestor chain and vice versa. Step 5 (verify) is sequential since it
	// consumes step 4's output.
	var (
		rawChunks string
		ancestors []contextmodel.ContextChainEntry
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		raw, err := o.vectors.Query(egCtx, userContent, retrievalK)
		if err != nil {
			// VectorQueryFailed degrades to an empty verified-context block
			// rather than failing the turn (spec.md §7).
			slog.Warn("orchestrator: vector query failed, proceeding without retrieved context", "error", err)
			return nil
		}
		rawChunks = raw
		return nil
	})
	eg.Go(func() error {
		if req.ParentNodeID == nil {
			ancestors = req.History
			return nil
		}
		chain, err := o.tree.ContextChain(egCtx, *req.ParentNodeID)
		if err != nil {
			return fmt.Errorf("orchestrator: assemble ancestors: %w", err)
		}
		ancestors = chain
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Step 5: verify retrieved chunks against the causal graph.
	candidates := causalfilter.SplitChunks(rawChunks)
	var verified []string
	if len(candidates) > 0 {
		verified = o.filter.Filter(userContent, candidates)
	}

	// Step 7: build the prompt.
	messages := BuildMessages(o.persona, verified, ancestors, userContent, o.maxContextTokens)

	chunks := make(chan string)
	errc := make(chan error, 1)
	go o.stream(context.WithoutCancel(ctx), req.SessionID, userNodeID, assistantNodeID, messages, chunks, errc)

	return &TurnHandle{
		SessionID:       req.SessionID,
		UserNodeID:      userNodeID,
		AssistantNodeID: assistantNodeID,
		Chunks:          chunks,
		Err:             errc,
	}, nil
}

// stream runs steps 8–10: it streams the completion, falling back once to a
// system-role-folded retry if the provider rejects the system role, buffers
// the response, and persists the assistant node if at least one token was
// produced. It always closes chunks and writes exactly one value to errc.
func (o *Orchestrator) stream(ctx context.Context, sessionID uuid.UUID, userNodeID, assistantNodeID uuid.UUID, messages []contextmodel.Message, chunks chan<- string, errc chan<- error) {
	defer close(chunks)
	defer close(errc)

	response, streamErr := o.runCompletion(ctx, messages, chunks)

	if response.Len() == 0 {
		if streamErr != nil {
			chunks <- fmt.Sprintf("\n[error: %s]", streamErr)
		}
		errc <- streamErr
		return
	}

	content := response.String()
	tokens := estimateTokens(content)
	if _, err := o.tree.CreateNodeWithID(ctx, assistantNodeID, sessionID, &userNodeID, contextmodel.RoleAssistant, content, tokens); err != nil {
		// The stream to the caller already completed; a persistence failure
		// here is a data-loss event that must be surfaced in server logs,
		// not retried against the now-closed response.
		slog.Error("orchestrator: failed to persist assistant node", "node_id", assistantNodeID, "error", err)
		errc <- err
		return
	}

	if o.grainer != nil {
		o.grainer.Schedule(assistantNodeID)
	}
	errc <- nil
}

// runCompletion performs step 8's streaming loop and step 10's
// system-role-rejection fallback. It returns the buffered response built so
// far (possibly partial) and the terminal error, if any.
func (o *Orchestrator) runCompletion(ctx context.Context, messages []contextmodel.Message, chunks chan<- string) (*strings.Builder, error) {
	var buf strings.Builder

	stream, err := o.llmProv.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:    messages,
		Temperature: o.temperature,
	})
	if err != nil {
		if isSystemRoleRejection(err) && buf.Len() == 0 {
			return o.runFallbackCompletion(ctx, messages, chunks)
		}
		return &buf, err
	}

	for chunk := range stream {
		if chunk.FinishReason == "error" {
			if buf.Len() == 0 && isSystemRoleRejection(fmt.Errorf("%s", chunk.Text)) {
				return o.runFallbackCompletion(ctx, messages, chunks)
			}
			return &buf, fmt.Errorf("orchestrator: llm stream error: %s", chunk.Text)
		}
		if chunk.Text != "" {
			buf.WriteString(chunk.Text)
			select {
			case chunks <- chunk.Text:
			case <-ctx.Done():
				return &buf, ctx.Err()
			}
		}
	}
	return &buf, nil
}

// runFallbackCompletion re-issues the call per step 10: the system message's
// text is folded into the first user message, and the system message itself
// is dropped from the request.
func (o *Orchestrator) runFallbackCompletion(ctx context.Context, messages []contextmodel.Message, chunks chan<- string) (*strings.Builder, error) {
	folded := foldSystemIntoFirstUser(messages)

	var buf strings.Builder
	stream, err := o.llmProv.StreamCompletion(ctx, llm.CompletionRequest{
		Messages:    folded,
		Temperature: o.temperature,
	})
	if err != nil {
		return &buf, fmt.Errorf("orchestrator: fallback completion: %w", err)
	}

	for chunk := range stream {
		if chunk.FinishReason == "error" {
			return &buf, fmt.Errorf("orchestrator: llm stream error (fallback): %s", chunk.Text)
		}
		if chunk.Text != "" {
			buf.WriteString(chunk.Text)
			select {
			case chunks <- chunk.Text:
			case <-ctx.Done():
				return &buf, ctx.Err()
			}
		}
	}
	return &buf, nil
}

func isSystemRoleRejection(err error) bool {
	return err != nil && strings.Contains(err.Error(), systemRoleRejectionMarker)
}

// foldSystemIntoFirstUser prepends the system message's content to the
// first user message and drops the standalone system message, per spec.md
// §4.6 step 10.
func foldSystemIntoFirstUser(messages []contextmodel.Message) []contextmodel.Message {
	out := make([]contextmodel.Message, 0, len(messages))
	var systemText string
	for _, m := range messages {
		if m.Role == string(contextmodel.RoleSystem) && systemText == "" {
			systemText = m.Content
			continue
		}
		out = append(out, m)
	}
	if systemText == "" {
		return out
	}
	for i, m := range out {
		if m.Role == string(contextmodel.RoleUser) {
			out[i].Content = systemText + "\n\n" + m.Content
			return out
		}
	}
	// No user message to fold into; keep the guardrail text visible by
	// reintroducing it as a user-role message, which every provider accepts.
	return append([]contextmodel.Message{{Role: string(contextmodel.RoleUser), Content: systemText}}, out...)
}

func estimateTokens(text string) int {
	return len(text) / charsPerToken
}
