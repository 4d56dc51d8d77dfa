package ingestion

import (
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/chatvault/core"
)

// DuplicatePolicy decides what happens when an imported conversation is already stored.
type DuplicatePolicy string

const (
	// PolicySkip keeps the stored conversation untouched.
	PolicySkip DuplicatePolicy = "skip"
	// PolicyOverwrite replaces the content but keeps the labels.
	PolicyOverwrite DuplicatePolicy = "overwrite"
	// PolicyMerge appends the incoming turns the stored conversation lacks.
	PolicyMerge DuplicatePolicy = "merge"
)

// ParseDuplicatePolicy reads a policy name. An empty name means skip.
func ParseDuplicatePolicy(name string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return PolicySkip, nil
	case PolicySkip, PolicyOverwrite, PolicyMerge:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, name)
	}
}

// Action is what an import did with one conversation.
type Action string

const (
	ActionImported    Action = "imported"
	ActionSkipped     Action = "skipped"
	ActionOverwritten Action = "overwritten"
	ActionMerged      Action = "merged"
	ActionResumed     Action = "resumed"
	ActionFailed      Action = "failed"
)

// ResolveDuplicate returns the conversation to store and the action taken.
// A nil existing means the conversation is new. A merge that adds no turn
// is reported as skipped.
func ResolveDuplicate(existing, incoming *core.Conversation, policy DuplicatePolicy) (*core.Conversation, Action) {
	if existing == nil {
		return incoming, ActionImported
	}

	switch policy {
	case PolicyOverwrite:
		replaced := *incoming
		replaced.ID = existing.ID
		replaced.Tags = existing.Tags
		replaced.Categories = existing.Categories
		replaced.Summary = existing.Summary
		replaced.InsertedAt = existing.InsertedAt
		replaced.EmbeddedWith = nil
		return &replaced, ActionOverwritten

	case PolicyMerge:
		type key struct {
			role core.Role
			text string
		}
		seen := make(map[key]bool, len(existing.Turns))
		for _, turn := range existing.Turns {
			seen[key{turn.Role, turn.Text}] = true
		}

		merged := *existing
		merged.Turns = slices.Clone(existing.Turns)
		added := 0
		for _, turn := range incoming.Turns {
			k := key{turn.Role, turn.Text}
			if seen[k] {
				continue
			}
			seen[k] = true
			turn.Position = len(merged.Turns)
			merged.Turns = append(merged.Turns, turn)
			added++
		}
		if added == 0 {
			return existing, ActionSkipped
		}
		merged.EmbeddedWith = nil
		return &merged, ActionMerged

	default:
		return existing, ActionSkipped
	}
}
