// Package policy applies content policy to retrieval results before they
// leave the core: PII handling on text snippets and per-item authorization
// against channel allowlists and the entitlement window.
//
// Enforcement never fails a search. Every outcome is a transformed item set;
// detections and drops are logged for audit.
package policy

import (
	"log/slog"
	"regexp"
	"time"

	"github.com/streamharvest/streamharvest/internal/rag"
)

// Mode selects what happens to a result whose snippet contains PII.
type Mode string

// Enforcement modes.
const (
	// ModeFilter drops the matching result entirely.
	ModeFilter Mode = "filter"

	// ModeRedact keeps the result but masks the matched spans.
	ModeRedact Mode = "redact"

	// ModeAuditOnly keeps the result untouched and only logs the detection.
	ModeAuditOnly Mode = "audit_only"
)

// piiPattern pairs a detector with the label used in redaction masks and
// audit logs.
type piiPattern struct {
	kind string
	re   *regexp.Regexp
}

// Detectors for the PII classes handled at the snippet level. Matching is
// intentionally conservative: false negatives are preferable to mangling
// ordinary prose, since snippets are previews rather than records.
var piiPatterns = []piiPattern{
	{"email", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"phone", regexp.MustCompile(`\+?\d{1,3}[\s\-.]?\(?\d{2,4}\)?[\s\-.]?\d{3,4}[\s\-.]?\d{3,4}`)},
	{"ssn", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
}

// Enforcer applies PII policy and authorization to result items.
// Safe for concurrent use; it holds no per-call state.
type Enforcer struct {
	mode            Mode
	allowedChannels map[string]bool
	entitledFrom    time.Time
	logger          *slog.Logger
}

// New creates an Enforcer.
//
// allowedChannels empty means every channel is authorized. entitledFrom zero
// means no date entitlement is enforced. An unknown mode falls back to
// ModeRedact, the safest transforming default.
func New(mode Mode, allowedChannels []string, entitledFrom time.Time, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	switch mode {
	case ModeFilter, ModeRedact, ModeAuditOnly:
	default:
		mode = ModeRedact
	}

	var allowed map[string]bool
	if len(allowedChannels) > 0 {
		allowed = make(map[string]bool, len(allowedChannels))
		for _, ch := range allowedChannels {
			allowed[ch] = true
		}
	}

	return &Enforcer{
		mode:            mode,
		allowedChannels: allowed,
		entitledFrom:    entitledFrom,
		logger:          logger.With("component", "policy"),
	}
}

// Enforce applies authorization and the PII mode to items, returning the
// surviving set in the original order. Items the caller is not entitled to
// are dropped in every mode.
func (e *Enforcer) Enforce(items []rag.ResultItem) []rag.ResultItem {
	if len(items) == 0 {
		return items
	}

	out := make([]rag.ResultItem, 0, len(items))
	for _, item := range items {
		if !e.authorized(item) {
			e.logger.Info("result dropped by authorization",
				"chunk_id", item.ChunkID, "channel_id", item.ChannelID)
			continue
		}

		snippet, kinds := inspect(item.TextSnippet)
		if len(kinds) == 0 {
			out = append(out, item)
			continue
		}

		switch e.mode {
		case ModeFilter:
			e.logger.Info("result dropped by pii filter",
				"chunk_id", item.ChunkID, "kinds", kinds)
		case ModeRedact:
			e.logger.Info("result redacted",
				"chunk_id", item.ChunkID, "kinds", kinds)
			item.TextSnippet = snippet
			out = append(out, item)
		case ModeAuditOnly:
			e.logger.Info("pii detected",
				"chunk_id", item.ChunkID, "kinds", kinds)
			out = append(out, item)
		}
	}
	return out
}

// authorized reports whether the caller may see this item under the channel
// allowlist and the entitlement window. Items without a channel or publish
// date pass the corresponding check: facet-less content is not access
// controlled.
func (e *Enforcer) authorized(item rag.ResultItem) bool {
	if e.allowedChannels != nil && item.ChannelID != "" && !e.allowedChannels[item.ChannelID] {
		return false
	}
	if !e.entitledFrom.IsZero() && item.PublishedAt != nil && item.PublishedAt.Before(e.entitledFrom) {
		return false
	}
	return true
}

// inspect scans text for PII, returning the redacted form and the kinds
// found. When kinds is empty the text is returned unchanged.
func inspect(text string) (string, []string) {
	var kinds []string
	for _, p := range piiPatterns {
		if !p.re.MatchString(text) {
			continue
		}
		kinds = append(kinds, p.kind)
		text = p.re.ReplaceAllString(text, "[REDACTED:"+p.kind+"]")
	}
	return text, kinds
}
