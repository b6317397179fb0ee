package errdetect

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/madeinoz67/bank-statement-separator/internal/common"
	"github.com/madeinoz67/bank-statement-separator/internal/interfaces"
	"github.com/madeinoz67/bank-statement-separator/internal/models"
)

// Tagger applies error tags to DMS documents for runs whose detected
// errors clear the configured severity allow-list. Tagging failures are
// logged and never fail the run.
type Tagger struct {
	client interfaces.DocumentClient // nil disables tagging
	cfg    *common.Config
	logger arbor.ILogger
}

// NewTagger creates an error tagger. The client may be nil when the DMS
// integration is disabled.
func NewTagger(client interfaces.DocumentClient, cfg *common.Config, logger arbor.ILogger) *Tagger {
	return &Tagger{client: client, cfg: cfg, logger: logger}
}

// ShouldTag reports whether the detected errors warrant DMS tagging:
// tagging must be enabled, a client must exist, and at least one error
// must reach an allow-listed severity.
func (t *Tagger) ShouldTag(detected []models.ProcessingError) bool {
	if t.client == nil || !t.cfg.Errors.TaggingEnabled {
		return false
	}
	allowed := t.cfg.ErrorSeverities()
	for _, e := range detected {
		for _, s := range allowed {
			if string(e.Severity) == s {
				return true
			}
		}
	}
	return false
}

// TagDocument merges the configured error tags plus per-error type tags
// into a document's tag set.
func (t *Tagger) TagDocument(ctx context.Context, documentID int, detected []models.ProcessingError) error {
	if !t.ShouldTag(detected) {
		return nil
	}

	tags := t.errorTags(detected)
	if len(tags) == 0 {
		return nil
	}

	if err := t.client.ApplyTagsToDocument(ctx, documentID, tags); err != nil {
		t.logger.Warn().Err(err).
			Int("document_id", documentID).
			Msg("Error tagging failed")
		return err
	}

	t.logger.Info().
		Int("document_id", documentID).
		Strs("tags", tags).
		Msg("Applied error tags")
	return nil
}

// TagDocuments applies a run's error tags across its documents,
// best-effort. The first ID is the run's primary document (the DMS input
// when present); with batch tagging disabled only that one is tagged.
func (t *Tagger) TagDocuments(ctx context.Context, documentIDs []int, detected []models.ProcessingError) {
	if len(documentIDs) == 0 {
		return
	}
	if !t.cfg.Errors.BatchTagging {
		documentIDs = documentIDs[:1]
	}
	for _, id := range documentIDs {
		// Per-document failures are logged inside TagDocument.
		_ = t.TagDocument(ctx, id, detected)
	}
}

// errorTags builds the tag set: the configured static tags plus one
// derived tag per distinct error type, deduplicated.
func (t *Tagger) errorTags(detected []models.ProcessingError) []string {
	seen := make(map[string]bool)
	var tags []string

	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	for _, tag := range t.cfg.Errors.Tags {
		add(tag)
	}
	for _, e := range detected {
		if t.severityAllowed(e.Severity) {
			add(fmt.Sprintf("error:%s", strings.ReplaceAll(string(e.Type), "_", "-")))
		}
	}
	return tags
}

func (t *Tagger) severityAllowed(severity models.Severity) bool {
	for _, s := range t.cfg.ErrorSeverities() {
		if string(severity) == s {
			return true
		}
	}
	return false
}
