// Package collab defines the narrow interfaces the pipeline runner consumes.
// The scraping, generation and delivery implementations live in their own
// services; pressroom only cares about success, soft-failure or hard-failure.
package collab

import (
	"context"
	"errors"
)

// ErrNoContent is the distinguished soft-failure: the collaborator had
// nothing to work with (no new items, no draft material). It does not abort
// the pipeline; the execution finishes as partial.
var ErrNoContent = errors.New("no content available")

// IsSoft reports whether an action error degrades the run instead of
// aborting it.
func IsSoft(err error) bool {
	return errors.Is(err, ErrNoContent)
}

// ScrapeResult summarizes one content-collection pass for a workspace.
type ScrapeResult struct {
	TotalItems    int            `json:"total_items"`
	ItemsBySource map[string]int `json:"items_by_source,omitempty"`
}

// GenerateResult carries the id of the newsletter draft that was produced.
type GenerateResult struct {
	DraftID string `json:"draft_id"`
}

// GenerateSettings tunes a single generation call. Zero value means
// workspace defaults.
type GenerateSettings struct {
	Tone     string `json:"tone,omitempty"`
	MaxItems int    `json:"max_items,omitempty"`
}

// SendResult summarizes a delivery pass. In test mode the delivery service
// sends to a single verification address and reports it back.
type SendResult struct {
	SentCount     int    `json:"sent_count"`
	FailedCount   int    `json:"failed_count"`
	TestRecipient string `json:"test_recipient,omitempty"`
}

// Scraper fetches new content items for a workspace.
type Scraper interface {
	Scrape(ctx context.Context, workspaceID string) (*ScrapeResult, error)
}

// Generator produces a newsletter draft from the workspace's available
// content.
type Generator interface {
	Generate(ctx context.Context, workspaceID string, settings GenerateSettings) (*GenerateResult, error)
}

// Sender delivers a newsletter. An empty newsletterID means "the most recent
// draft"; the delivery service resolves it.
type Sender interface {
	Send(ctx context.Context, newsletterID, workspaceID string, testMode bool) (*SendResult, error)
}
