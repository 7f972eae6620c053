// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"
	"strings"
)

// =============================================================================
// MODEL CAPABILITIES
// =============================================================================

// ModelInfo describes the limits and capabilities of an upstream model.
type ModelInfo struct {
	ID            string
	ContextLength int
	SupportsTools bool
	SupportsPDF   bool
}

// DefaultContextLength is assumed when a model is not in the catalog and the
// provider did not report a limit.
const DefaultContextLength = 200_000

// catalog holds limits for commonly used models. Unknown models fall back to
// DefaultContextLength; the provider's reported limit wins when available.
var catalog = map[string]ModelInfo{
	"anthropic/claude-opus-4.5":   {ContextLength: 200_000, SupportsTools: true, SupportsPDF: true},
	"anthropic/claude-sonnet-4.5": {ContextLength: 200_000, SupportsTools: true, SupportsPDF: true},
	"anthropic/claude-haiku-4.5":  {ContextLength: 200_000, SupportsTools: true, SupportsPDF: true},
	"openai/gpt-4o":               {ContextLength: 128_000, SupportsTools: true},
	"openai/gpt-4o-mini":          {ContextLength: 128_000, SupportsTools: true},
	"openai/o3":                   {ContextLength: 200_000, SupportsTools: true},
	"google/gemini-2.5-pro":       {ContextLength: 1_048_576, SupportsTools: true, SupportsPDF: true},
	"google/gemini-2.5-flash":     {ContextLength: 1_048_576, SupportsTools: true, SupportsPDF: true},
	"qwen/qwen3-coder":            {ContextLength: 262_144, SupportsTools: true},
	"deepseek/deepseek-chat":      {ContextLength: 163_840, SupportsTools: true},
}

// Lookup returns catalog info for a model id. The boolean is false for
// unknown models.
func Lookup(modelID string) (ModelInfo, bool) {
	info, ok := catalog[modelID]
	if ok {
		info.ID = modelID
	}
	return info, ok
}

// ContextLengthFor returns the catalog context length, or the default for
// unknown models.
func ContextLengthFor(modelID string) int {
	if info, ok := catalog[modelID]; ok {
		return info.ContextLength
	}
	return DefaultContextLength
}

// SupportsTools reports whether the model can receive tool schemas. Unknown
// models are assumed tool-capable; the provider rejects the field if not.
func SupportsTools(modelID string) bool {
	if info, ok := catalog[modelID]; ok {
		return info.SupportsTools
	}
	return true
}

// CatalogIDs returns the known model ids, sorted.
func CatalogIDs() []string {
	ids := make([]string, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// =============================================================================
// VENDOR DETECTION
// =============================================================================

// Vendor identifies the provider family of a model, used for token-estimate
// multipliers and context offsets.
type Vendor string

const (
	VendorOpenAI    Vendor = "openai"
	VendorAnthropic Vendor = "anthropic"
	VendorGoogle    Vendor = "google"
	VendorOther     Vendor = "other"
)

// VendorOf infers the vendor from a model id such as
// "anthropic/claude-opus-4.5" or a bare "claude-..." name.
func VendorOf(modelID string) Vendor {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "anthropic") || strings.Contains(id, "claude"):
		return VendorAnthropic
	case strings.Contains(id, "google") || strings.Contains(id, "gemini"):
		return VendorGoogle
	case strings.Contains(id, "openai") || strings.Contains(id, "gpt") || strings.HasPrefix(id, "o1") || strings.HasPrefix(id, "o3"):
		return VendorOpenAI
	default:
		return VendorOther
	}
}
