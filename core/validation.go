// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"strings"
)

// ValidateConversation checks identity, turn contents, position contiguity and label sets.
func ValidateConversation(conv *Conversation) error {
	if conv == nil {
		return fmt.Errorf("%w: conversation is nil", ErrInvalidConversation)
	}

	if strings.TrimSpace(conv.ID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConversation, ErrEmptyConversationID)
	}

	if len(conv.Turns) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConversation, ErrNoTurns)
	}

	for i := range conv.Turns {
		turn := &conv.Turns[i]
		if turn.Position != i {
			return fmt.Errorf("%w: %w: turn %d has position %d", ErrInvalidConversation, ErrPositionGap, i, turn.Position)
		}
		if err := ValidateTurn(turn); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConversation, err)
		}
	}

	if err := validateLabelSet(conv.Tags); err != nil {
		return fmt.Errorf("%w: tags: %w", ErrInvalidConversation, err)
	}
	if err := validateLabelSet(conv.Categories); err != nil {
		return fmt.Errorf("%w: categories: %w", ErrInvalidConversation, err)
	}

	return nil
}

// ValidateTurn checks a single turn's role and text.
func ValidateTurn(turn *Turn) error {
	if turn == nil {
		return fmt.Errorf("%w: turn is nil", ErrInvalidTurn)
	}

	if err := ValidateRole(turn.Role); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTurn, err)
	}

	if strings.TrimSpace(turn.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTurn, ErrEmptyText)
	}

	return nil
}

func ValidateRole(role Role) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: value %d", ErrInvalidRole, role)
	}
	return nil
}

func validateLabelSet(labels []string) error {
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		key := labelKey(label)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateLabel, label)
		}
		seen[key] = struct{}{}
	}
	return nil
}
