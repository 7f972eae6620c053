// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tokens estimates the token cost of text, images, documents, and
// whole messages. Estimates use the cl100k_base tokenizer with per-vendor
// correction multipliers; they are planning inputs for the budget manager,
// not billing-accurate counts. The provider's usage report is authoritative.
package tokens

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jeranaias/gptcli-tui/internal/model"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// MessageOverhead is the structural cost of one message (role field,
	// content framing) on top of its parts.
	MessageOverhead = 20

	// Image cost follows the OpenAI tile model: a flat base plus a per-tile
	// charge after downscaling to fit 2048x2048 then a 768px short side.
	imageBaseTokens = 85
	imageTileTokens = 170
	imageTileSize   = 512

	// fallbackImageTokens is charged when image dimensions cannot be read.
	fallbackImageTokens = 1105
)

// vendorMultipliers corrects cl100k_base counts for vendors with different
// tokenizers. Empirically tuned; anthropic structural overhead is covered by
// MessageOverhead, not the multiplier.
var vendorMultipliers = map[model.Vendor]float64{
	model.VendorOpenAI:    1.0,
	model.VendorAnthropic: 1.1,
	model.VendorGoogle:    1.2,
}

// =============================================================================
// ESTIMATOR
// =============================================================================

// Estimator counts tokens for a specific model. Safe for concurrent reads;
// UpdateModel must not race with estimation calls.
type Estimator struct {
	modelID    string
	vendor     model.Vendor
	multiplier float64
	enc        *tiktoken.Tiktoken
}

// NewEstimator builds an estimator for the given model id. When the
// cl100k_base tables cannot be loaded it degrades to a bytes/4 heuristic
// rather than failing: an approximate budget beats no budget.
func NewEstimator(modelID string) *Estimator {
	e := &Estimator{}
	e.setModel(modelID)
	if enc, err := tiktoken.GetEncoding("cl100k_base"); err == nil {
		e.enc = enc
	}
	return e
}

func (e *Estimator) setModel(modelID string) {
	e.modelID = modelID
	e.vendor = model.VendorOf(modelID)
	if mult, ok := vendorMultipliers[e.vendor]; ok {
		e.multiplier = mult
	} else {
		e.multiplier = 1.0
	}
}

// UpdateModel re-targets the estimator after a model switch. The encoder is
// shared across models; only the vendor correction changes.
func (e *Estimator) UpdateModel(modelID string) {
	if modelID != e.modelID {
		e.setModel(modelID)
	}
}

// Model returns the model id the estimator is calibrated for.
func (e *Estimator) Model() string { return e.modelID }

// Vendor returns the detected vendor family.
func (e *Estimator) Vendor() model.Vendor { return e.vendor }

// scale applies the vendor multiplier to a base count.
func (e *Estimator) scale(base int) int {
	return int(float64(base) * e.multiplier)
}

// =============================================================================
// TEXT
// =============================================================================

// CountText estimates the token cost of a text string.
func (e *Estimator) CountText(text string) int {
	if text == "" {
		return 0
	}
	if e.enc == nil {
		return e.scale(len(text) / 4)
	}
	return e.scale(len(e.enc.Encode(text, nil, nil)))
}

// =============================================================================
// IMAGES
// =============================================================================

// ImageTokens computes the tile-model cost for an image of the given pixel
// dimensions. detail "low" is a flat charge regardless of size.
func (e *Estimator) ImageTokens(width, height int, detail string) int {
	if detail == "low" {
		return imageBaseTokens
	}
	if width <= 0 || height <= 0 {
		return e.scale(fallbackImageTokens)
	}
	// Fit within 2048x2048.
	if width > 2048 || height > 2048 {
		r := math.Min(2048/float64(width), 2048/float64(height))
		width = int(float64(width) * r)
		height = int(float64(height) * r)
	}
	// Scale the short side down to 768.
	if width < height {
		if width > 768 {
			height = height * 768 / width
			width = 768
		}
	} else {
		if height > 768 {
			width = width * 768 / height
			height = 768
		}
	}
	tilesX := (width + imageTileSize - 1) / imageTileSize
	tilesY := (height + imageTileSize - 1) / imageTileSize
	return e.scale(imageBaseTokens + imageTileTokens*tilesX*tilesY)
}

// EstimateImageData estimates the cost of a base64 image (raw base64 or a
// full data URL). The base64 payload itself crosses the wire, so the charge
// is never below length/4 even when the tile math says less.
func (e *Estimator) EstimateImageData(data, detail string) int {
	b64 := stripDataURL(data)
	payloadTokens := len(b64) / 4

	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return e.scale(payloadTokens)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return e.scale(payloadTokens)
	}
	if detail == "" || detail == "auto" {
		detail = "high"
	}
	tile := e.ImageTokens(cfg.Width, cfg.Height, detail)
	if payloadTokens > tile {
		return e.scale(payloadTokens)
	}
	return tile
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// EstimateDocumentData estimates the cost of a base64 document attachment.
// PDFs carry extra provider-side processing, charged at 1.5x the payload.
func (e *Estimator) EstimateDocumentData(name, data string) int {
	b64 := stripDataURL(data)
	base := len(b64) / 4
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		base = base * 3 / 2
	}
	return e.scale(base)
}

func stripDataURL(data string) string {
	if i := strings.Index(data, "base64,"); i >= 0 {
		return data[i+len("base64,"):]
	}
	return data
}

// =============================================================================
// MESSAGES
// =============================================================================

// MessageTokens estimates a message's total cost, using its memoized value
// when still valid and storing the fresh estimate otherwise.
func (e *Estimator) MessageTokens(m *model.Message) int {
	if n, ok := m.CachedTokens(); ok {
		return n
	}
	total := MessageOverhead
	for i := range m.Parts {
		total += e.partTokens(&m.Parts[i])
	}
	m.SetCachedTokens(total)
	return total
}

func (e *Estimator) partTokens(p *model.ContentPart) int {
	switch p.Kind {
	case model.PartText:
		return e.CountText(p.Text)
	case model.PartImage:
		if p.Placeholder {
			return e.CountText(p.Text)
		}
		return e.EstimateImageData(p.ImageData, "auto")
	case model.PartDocument:
		if p.Placeholder {
			return e.CountText(p.Text)
		}
		return e.EstimateDocumentData(p.DocName, p.DocData)
	case model.PartToolCall:
		if p.ToolCall == nil {
			return 0
		}
		// Serialized call structure crosses the wire; roughly 3 chars/token
		// for JSON with its punctuation density.
		size := len(p.ToolCall.ID) + len(p.ToolCall.Name) + len(p.ToolCall.Arguments)
		return size / 3
	case model.PartToolResult:
		if p.ToolResult == nil {
			return 0
		}
		return e.CountText(p.ToolResult.Content) + len(p.ToolResult.CallID)/4 + 10
	default:
		return 0
	}
}

// ConversationTokens sums message costs over a slice of messages.
func (e *Estimator) ConversationTokens(msgs []*model.Message) int {
	total := 0
	for _, m := range msgs {
		total += e.MessageTokens(m)
	}
	return total
}
