// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jeranaias/gptcli-tui/internal/model"
	"github.com/jeranaias/gptcli-tui/internal/render"
	"github.com/jeranaias/gptcli-tui/internal/storage"
	"github.com/jeranaias/gptcli-tui/internal/stream"
	"github.com/jeranaias/gptcli-tui/internal/tools"
)

// =============================================================================
// GENERAL
// =============================================================================

func handleHelp(ctx *Context, args []string) (string, error) {
	reg := NewRegistry()
	byCat := reg.ByCategory()

	categories := make([]string, 0, len(byCat))
	for cat := range byCat {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, cat := range categories {
		cmds := byCat[cat]
		sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })
		sb.WriteString("\n" + cat + ":\n")
		for _, cmd := range cmds {
			usage := cmd.Usage
			if usage == "" {
				usage = cmd.Name
			}
			sb.WriteString(fmt.Sprintf("  %-40s %s\n", usage, cmd.Description))
		}
	}
	return sb.String(), nil
}

func handleExit(ctx *Context, args []string) (string, error) {
	return "", ErrExit
}

// =============================================================================
// MODEL
// =============================================================================

func handleModel(ctx *Context, args []string) (string, error) {
	if len(args) == 0 {
		id := ctx.Session.Model()
		info, known := model.Lookup(id)
		if !known {
			return fmt.Sprintf("Active model: %s (uncataloged, assuming %d context)", id, model.DefaultContextLength), nil
		}
		return fmt.Sprintf("Active model: %s (context %d, tools %v)", id, info.ContextLength, info.SupportsTools), nil
	}
	if err := ctx.Session.SetModel(args[0]); err != nil {
		return "", err
	}
	return "Switched to " + args[0], nil
}

func handleModels(ctx *Context, args []string) (string, error) {
	var sb strings.Builder
	sb.WriteString("Known models:\n")
	active := ctx.Session.Model()
	for _, id := range model.CatalogIDs() {
		info, _ := model.Lookup(id)
		marker := "  "
		if id == active {
			marker = "* "
		}
		sb.WriteString(fmt.Sprintf("%s%-32s context %-9d tools %v\n", marker, id, info.ContextLength, info.SupportsTools))
	}
	return sb.String(), nil
}

// =============================================================================
// CONVERSATION
// =============================================================================

func handleSummarize(ctx *Context, args []string) (string, error) {
	force := hasFlag(args, "--force")
	res, err := ctx.Session.Summarize(ctx.Ctx, force)
	if err != nil {
		return "", err
	}
	meta := res.Marker.Summary
	return fmt.Sprintf("Summarized %d messages: %d -> %d tokens (%.1fx, level %d)",
		meta.ReplacedCount, meta.TokensBefore, meta.TokensAfter, meta.CompressionRatio(), meta.Level), nil
}

func handleShowContext(ctx *Context, args []string) (string, error) {
	topN := 5
	for i, a := range args {
		if a == "--top" && i+1 < len(args) {
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n < 1 {
				return "", fmt.Errorf("--top wants a positive number, got %q", args[i+1])
			}
			topN = n
		}
	}
	rep := ctx.Session.ContextReport(topN)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Model: %s (context %d)\n", rep.ModelID, rep.ContextLength))
	sb.WriteString(fmt.Sprintf("Prompt budget: %d tokens, history uses %d (%.1f%%)\n",
		rep.PromptBudget, rep.HistoryTokens, rep.UsedPercent))
	sb.WriteString(fmt.Sprintf("Off the top: system %d, reserved output %d, vendor offset %d, tool schemas %d\n",
		rep.SystemPromptTokens, rep.ReservedOutput, rep.VendorOffset, rep.ToolSchemaTokens))

	if len(rep.Categories) > 0 {
		sb.WriteString("\nBy category:\n")
		for _, c := range rep.Categories {
			sb.WriteString(fmt.Sprintf("  %-14s %4d messages  %8d tokens\n", c.Name, c.Count, c.Tokens))
		}
	}
	if len(rep.Heaviest) > 0 {
		sb.WriteString("\nHeaviest messages:\n")
		for _, h := range rep.Heaviest {
			sb.WriteString(fmt.Sprintf("  #%-4d %-9s %8d tokens  %s\n", h.Seq, h.Role, h.Tokens, h.Preview))
		}
	}
	return sb.String(), nil
}

func handleShowSummary(ctx *Context, args []string) (string, error) {
	hist := ctx.Session.History()
	for i := len(hist) - 1; i >= 0; i-- {
		if hist[i].IsSummary() {
			meta := hist[i].Summary
			return fmt.Sprintf("Summary (level %d, replaces %d messages, %d -> %d tokens):\n\n%s",
				meta.Level, meta.ReplacedCount, meta.TokensBefore, meta.TokensAfter, hist[i].Text()), nil
		}
	}
	return "No summary in the current conversation.", nil
}

func handleLastResponse(ctx *Context, args []string) (string, error) {
	last := ctx.Session.LastResponse()
	if last == "" {
		return "No response yet.", nil
	}
	if hasFlag(args, "--copy") {
		if err := render.CopyToClipboard(last); err != nil {
			return "Clipboard unavailable; printing instead:\n\n" + last, nil
		}
		return "Copied last response to clipboard.", nil
	}
	return render.Markdown(last, ctx.Width), nil
}

func handleRaw(ctx *Context, args []string) (string, error) {
	last := ctx.Session.LastResponse()
	if last == "" {
		return "No response yet.", nil
	}
	return last, nil
}

func handleSaveCode(ctx *Context, args []string) (string, error) {
	if ctx.Store == nil {
		return "", fmt.Errorf("storage not configured")
	}
	last := ctx.Session.LastResponse()
	if last == "" {
		return "No response yet.", nil
	}
	blocks := stream.ExtractCodeBlocks(last)
	if len(blocks) == 0 {
		return "No code blocks in the last response.", nil
	}

	// 1-based index; default is the last block
	idx := len(blocks)
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(blocks) {
			return "", fmt.Errorf("block index must be 1..%d", len(blocks))
		}
		idx = n
	}
	block := blocks[idx-1]
	id, err := ctx.Store.SaveArtifact(ctx.Session.Name(), block.Lang, block.Code)
	if err != nil {
		return "", err
	}
	lang := block.Lang
	if lang == "" {
		lang = "text"
	}
	return fmt.Sprintf("Saved %s block %d/%d as artifact #%d", lang, idx, len(blocks), id), nil
}

func handleReset(ctx *Context, args []string) (string, error) {
	hard := hasFlag(args, "--hard")
	slug, err := ctx.Session.Reset(hard)
	if err != nil {
		return "", err
	}
	if slug == "" {
		return "Conversation cleared.", nil
	}
	return "Conversation cleared. Restore with /restore " + slug, nil
}

// =============================================================================
// TOOLS
// =============================================================================

func handleTrust(ctx *Context, args []string) (string, error) {
	if len(args) == 0 {
		return "Trust level: " + string(ctx.Session.Trust()), nil
	}
	level, ok := tools.ParseTrustLevel(args[0])
	if !ok {
		return "", fmt.Errorf("invalid trust level %q (full, read_only, none)", args[0])
	}
	ctx.Session.SetTrust(level)
	return "Trust level set to " + string(level), nil
}

func handleTools(ctx *Context, args []string) (string, error) {
	on, err := parseToggle(args, ctx.Session.ToolsEnabled())
	if err != nil {
		return "", err
	}
	ctx.Session.SetToolsEnabled(on)
	return "Tools " + onOff(on), nil
}

func handleToolForce(ctx *Context, args []string) (string, error) {
	on, err := parseToggle(args, ctx.Session.ForceTools())
	if err != nil {
		return "", err
	}
	ctx.Session.SetForceTools(on)
	return "Forced tool use " + onOff(on), nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func handleCompactMode(ctx *Context, args []string) (string, error) {
	on, err := parseToggle(args, ctx.Session.CompactMode())
	if err != nil {
		return "", err
	}
	ctx.Session.SetCompactMode(on)
	if on {
		return "Compact mode on: attachments of sent messages become placeholders (one-way).", nil
	}
	return "Compact mode off (already-compacted attachments stay compacted).", nil
}

func handlePrettyPrint(ctx *Context, args []string) (string, error) {
	on, err := parseToggle(args, ctx.Session.PrettyPrint())
	if err != nil {
		return "", err
	}
	ctx.Session.SetPrettyPrint(on)
	return "Pretty print " + onOff(on), nil
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func handleSession(ctx *Context, args []string) (string, error) {
	if ctx.Store == nil {
		return "", fmt.Errorf("storage not configured")
	}
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}
	switch sub {
	case "list":
		metas, err := ctx.Store.ListSessions()
		if err != nil {
			return "", err
		}
		return storage.FormatSessionList(metas), nil
	case "save":
		name := ""
		if len(args) > 1 {
			name = args[1]
		}
		if err := ctx.Session.Save(name); err != nil {
			return "", err
		}
		return "Saved session " + ctx.Session.Name(), nil
	case "load":
		if len(args) < 2 {
			return "", fmt.Errorf("usage: /session load <name>")
		}
		if err := ctx.Session.Load(args[1]); err != nil {
			return "", err
		}
		return fmt.Sprintf("Loaded session %s (%d messages)", args[1], len(ctx.Session.History())), nil
	case "delete":
		if len(args) < 2 {
			return "", fmt.Errorf("usage: /session delete <name>")
		}
		if err := ctx.Store.DeleteSession(args[1]); err != nil {
			return "", err
		}
		return "Deleted session " + args[1], nil
	default:
		return "", fmt.Errorf("unknown subcommand %q (list, save, load, delete)", sub)
	}
}

func handleSnapshots(ctx *Context, args []string) (string, error) {
	if ctx.Store == nil {
		return "", fmt.Errorf("storage not configured")
	}
	metas, err := ctx.Store.ListSnapshots()
	if err != nil {
		return "", err
	}
	if len(metas) == 0 {
		return "No snapshots.", nil
	}
	var sb strings.Builder
	sb.WriteString("Snapshots:\n")
	for _, m := range metas {
		sb.WriteString(fmt.Sprintf("  %-28s %s  %d messages\n",
			m.Slug, m.CreatedAt.Format("2006-01-02 15:04"), m.MessageCount))
	}
	return sb.String(), nil
}

func handleRestore(ctx *Context, args []string) (string, error) {
	if err := ctx.Session.RestoreSnapshot(args[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Restored %s (%d messages)", args[0], len(ctx.Session.History())), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

// parseToggle interprets an optional on/off argument; no argument flips
// the current state.
func parseToggle(args []string, current bool) (bool, error) {
	if len(args) == 0 {
		return !current, nil
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", args[0])
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
