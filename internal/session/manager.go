// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jeranaias/gptcli-tui/internal/budget"
	"github.com/jeranaias/gptcli-tui/internal/loop"
	"github.com/jeranaias/gptcli-tui/internal/model"
	"github.com/jeranaias/gptcli-tui/internal/storage"
	"github.com/jeranaias/gptcli-tui/internal/summary"
	"github.com/jeranaias/gptcli-tui/internal/tokens"
	"github.com/jeranaias/gptcli-tui/internal/tools"
	"github.com/jeranaias/gptcli-tui/internal/transport"
)

// =============================================================================
// SESSION
// =============================================================================

// Session is the single writer of conversation state. Every mutation
// (sending a turn, summarizing, switching models, toggling modes) goes
// through it under one lock, so history never interleaves.
type Session struct {
	mu sync.Mutex

	name         string
	modelID      string
	systemPrompt string

	trust        tools.TrustLevel
	toolsEnabled bool
	forceTools   bool
	prettyPrint  bool

	est        *tokens.Estimator
	budget     *budget.Manager
	summarizer *summary.Service
	runner     *loop.Runner
	store      *storage.Store // nil disables persistence

	summarizeModel string
	lastResponse   string
}

// Config assembles a session.
type Config struct {
	Name         string
	ModelID      string
	SystemPrompt string
	Trust        tools.TrustLevel
	ToolsEnabled bool
	CompactMode  bool
	PrettyPrint  bool

	// SummarizeModel overrides the chat model for summarization calls.
	SummarizeModel string
	Summary        summary.Config

	Completer summary.Completer
	Caller    loop.Caller
	Executor  loop.Executor
	Confirm   loop.ConfirmFunc
	Store     *storage.Store
}

// New builds a session with an empty history.
func New(cfg Config) *Session {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	est := tokens.NewEstimator(cfg.ModelID)
	mgr := budget.NewManager(est, model.NewConversation(cfg.Name))
	mgr.SetCompactMode(cfg.CompactMode)

	var summarizer *summary.Service
	if cfg.Completer != nil {
		summarizer = summary.New(est, cfg.Completer, cfg.Summary)
	}
	var runner *loop.Runner
	if cfg.Caller != nil {
		runner = loop.NewRunner(cfg.Caller, cfg.Executor, cfg.Confirm)
	}

	return &Session{
		name:           cfg.Name,
		modelID:        cfg.ModelID,
		systemPrompt:   cfg.SystemPrompt,
		trust:          cfg.Trust,
		toolsEnabled:   cfg.ToolsEnabled,
		prettyPrint:    cfg.PrettyPrint,
		est:            est,
		budget:         mgr,
		summarizer:     summarizer,
		runner:         runner,
		store:          cfg.Store,
		summarizeModel: cfg.SummarizeModel,
	}
}

// limits derives the current window limits. System prompt and tool schema
// costs come off the top before the trim ratio applies.
func (s *Session) limits() budget.Limits {
	toolTokens := 0
	if s.toolsEnabled && model.SupportsTools(s.modelID) {
		toolTokens = tools.SchemaTokens(s.est)
	}
	return budget.Limits{
		ModelID:            s.modelID,
		ContextLength:      model.ContextLengthFor(s.modelID),
		SystemPromptTokens: s.est.CountText(s.systemPrompt),
		ToolSchemaTokens:   toolTokens,
	}
}

// =============================================================================
// SENDING
// =============================================================================

// Send records the user message, assembles the window (summarizing first if
// the high-water mark was crossed), runs the tool loop, and persists the
// final assistant answer. Deltas stream to onDelta as they arrive.
func (s *Session) Send(ctx context.Context, userMsg *model.Message, onDelta func(transport.Event)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.budget.Record(userMsg)

	asm, err := s.assembleWithSummarization(ctx)
	if err != nil {
		return "", err
	}

	if s.runner == nil {
		return "", fmt.Errorf("session has no transport configured")
	}
	toolsOn := s.toolsEnabled && model.SupportsTools(s.modelID)
	res, err := s.runner.Run(ctx, asm.Messages, loop.Options{
		Model:        s.modelID,
		SystemPrompt: s.systemPrompt,
		Trust:        s.trust,
		ToolsEnabled: toolsOn,
		Force:        s.forceTools && toolsOn,
		OnDelta:      onDelta,
	})
	if err != nil {
		return "", err
	}

	assistant := model.NewAssistantMessage()
	assistant.AppendText(res.Final)
	s.budget.Record(assistant)
	s.budget.MarkAssemblySent(asm)
	assistant.MarkSent()
	s.lastResponse = res.Final
	return res.Final, nil
}

// assembleWithSummarization assembles the window, running one summarization
// pass when usage crosses the high-water mark. Summarization failures never
// block the turn; the trimmed window still fits.
func (s *Session) assembleWithSummarization(ctx context.Context) (*budget.Assembly, error) {
	limits := s.limits()
	asm, err := s.budget.Assemble(limits)
	if err != nil {
		return nil, err
	}
	if !asm.NeedsSummarization || s.summarizer == nil {
		return asm, nil
	}
	if _, err := s.summarizer.Summarize(ctx, s.budget.Conversation(), s.summarizeModelID(), false); err != nil {
		return asm, nil
	}
	reasm, err := s.budget.Assemble(limits)
	if err != nil {
		return asm, nil
	}
	return reasm, nil
}

func (s *Session) summarizeModelID() string {
	if s.summarizeModel != "" {
		return s.summarizeModel
	}
	return s.modelID
}

// =============================================================================
// SUMMARIZATION AND INSPECTION
// =============================================================================

// Summarize folds older history into a summary marker. force bypasses the
// minimum-length check.
func (s *Session) Summarize(ctx context.Context, force bool) (*summary.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summarizer == nil {
		return nil, fmt.Errorf("summarization not configured")
	}
	return s.summarizer.Summarize(ctx, s.budget.Conversation(), s.summarizeModelID(), force)
}

// SummaryHistory returns metadata for every summarization performed this
// session.
func (s *Session) SummaryHistory() []model.SummaryMeta {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summarizer == nil {
		return nil
	}
	return append([]model.SummaryMeta(nil), s.summarizer.History...)
}

// ContextReport breaks down current window usage by category with the
// top-N heaviest messages.
func (s *Session) ContextReport(topN int) *budget.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budget.UsageReport(s.limits(), topN)
}

// History returns a copy of the message list.
func (s *Session) History() []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.Message(nil), s.budget.Conversation().Messages...)
}

// LastResponse returns the final text of the most recent assistant turn.
func (s *Session) LastResponse() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponse
}

// =============================================================================
// SETTINGS
// =============================================================================

// SetModel switches the active model mid-session. History is preserved;
// cached token costs are invalidated so the next assembly re-estimates
// under the new vendor multiplier.
func (s *Session) SetModel(modelID string) error {
	if modelID == "" {
		return fmt.Errorf("empty model id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelID = modelID
	s.est.UpdateModel(modelID)
	for _, m := range s.budget.Conversation().Messages {
		m.InvalidateTokens()
	}
	return nil
}

// Model returns the active model id.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modelID
}

// SetTrust changes the tool trust level.
func (s *Session) SetTrust(level tools.TrustLevel) {
	s.mu.Lock()
	s.trust = level
	s.mu.Unlock()
}

// Trust returns the current trust level.
func (s *Session) Trust() tools.TrustLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trust
}

// SetToolsEnabled toggles the tool loop.
func (s *Session) SetToolsEnabled(on bool) {
	s.mu.Lock()
	s.toolsEnabled = on
	s.mu.Unlock()
}

// ToolsEnabled reports whether tools are offered to the model.
func (s *Session) ToolsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolsEnabled
}

// SetForceTools toggles tool-choice "required" mode.
func (s *Session) SetForceTools(on bool) {
	s.mu.Lock()
	s.forceTools = on
	s.mu.Unlock()
}

// ForceTools reports whether force mode is on.
func (s *Session) ForceTools() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forceTools
}

// SetCompactMode enables one-way attachment compaction on sent messages.
func (s *Session) SetCompactMode(on bool) {
	s.mu.Lock()
	s.budget.SetCompactMode(on)
	s.mu.Unlock()
}

// CompactMode reports whether compact mode is active.
func (s *Session) CompactMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budget.CompactMode()
}

// SetPrettyPrint toggles the glamour re-render of completed responses.
func (s *Session) SetPrettyPrint(on bool) {
	s.mu.Lock()
	s.prettyPrint = on
	s.mu.Unlock()
}

// PrettyPrint reports whether pretty printing is on.
func (s *Session) PrettyPrint() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prettyPrint
}

// Name returns the session name.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// Save persists the history under name (or the current name if empty).
func (s *Session) Save(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return fmt.Errorf("storage not configured")
	}
	if name != "" {
		s.name = name
	}
	return s.store.SaveSession(s.name, s.modelID, s.budget.Conversation().Messages)
}

// Load replaces the current history with a saved session.
func (s *Session) Load(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return fmt.Errorf("storage not configured")
	}
	rec, err := s.store.LoadSession(name)
	if err != nil {
		return err
	}
	conv := s.budget.Conversation()
	conv.Reset()
	for _, m := range rec.Messages {
		conv.Append(m)
	}
	s.name = name
	if rec.Model != "" {
		s.modelID = rec.Model
		s.est.UpdateModel(rec.Model)
	}
	s.lastResponse = conv.LastAssistantText()
	return nil
}

// Reset clears the history. Unless skipSnapshot is set (or storage is
// absent), the outgoing history is snapshotted first so /reset is
// recoverable.
func (s *Session) Reset(skipSnapshot bool) (slug string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.budget.Conversation()
	if !skipSnapshot && s.store != nil && conv.Len() > 0 {
		slug = "pre-reset-" + time.Now().Format("20060102-150405")
		if err := s.store.SaveSnapshot(slug, conv.Messages); err != nil {
			return "", fmt.Errorf("snapshot before reset: %w", err)
		}
	}
	conv.Reset()
	s.lastResponse = ""
	return slug, nil
}

// RestoreSnapshot replaces the history with a snapshot's contents.
func (s *Session) RestoreSnapshot(slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return fmt.Errorf("storage not configured")
	}
	snap, err := s.store.LoadSnapshot(slug)
	if err != nil {
		return err
	}
	conv := s.budget.Conversation()
	conv.Reset()
	for _, m := range snap.Messages {
		conv.Append(m)
	}
	s.lastResponse = conv.LastAssistantText()
	return nil
}
