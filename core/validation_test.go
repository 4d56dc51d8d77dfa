package core

import (
	"errors"
	"testing"
)

func validConversation() *Conversation {
	return &Conversation{
		ID:    "conv-1",
		Title: "Test",
		Turns: []Turn{
			{Role: RoleUser, Text: "What is a vector?", Position: 0},
			{Role: RoleAssistant, Text: "An ordered list of numbers.", Position: 1},
		},
	}
}

func TestValidateConversation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Conversation) *Conversation
		wantErr error
	}{
		{
			name:    "valid conversation",
			mutate:  func(c *Conversation) *Conversation { return c },
			wantErr: nil,
		},
		{
			name:    "nil conversation",
			mutate:  func(c *Conversation) *Conversation { return nil },
			wantErr: ErrInvalidConversation,
		},
		{
			name: "empty id",
			mutate: func(c *Conversation) *Conversation {
				c.ID = "  "
				return c
			},
			wantErr: ErrEmptyConversationID,
		},
		{
			name: "no turns",
			mutate: func(c *Conversation) *Conversation {
				c.Turns = nil
				return c
			},
			wantErr: ErrNoTurns,
		},
		{
			name: "position gap",
			mutate: func(c *Conversation) *Conversation {
				c.Turns[1].Position = 2
				return c
			},
			wantErr: ErrPositionGap,
		},
		{
			name: "empty turn text",
			mutate: func(c *Conversation) *Conversation {
				c.Turns[0].Text = " \n"
				return c
			},
			wantErr: ErrEmptyText,
		},
		{
			name: "invalid role",
			mutate: func(c *Conversation) *Conversation {
				c.Turns[1].Role = Role(0)
				return c
			},
			wantErr: ErrInvalidRole,
		},
		{
			name: "duplicate tags",
			mutate: func(c *Conversation) *Conversation {
				c.Tags = []string{"go", "Go"}
				return c
			},
			wantErr: ErrDuplicateLabel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConversation(tt.mutate(validConversation()))
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateConversation() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateConversation() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidConversation) {
				t.Errorf("ValidateConversation() error should wrap ErrInvalidConversation, got %v", err)
			}
		})
	}
}

func TestValidateTurn(t *testing.T) {
	if err := ValidateTurn(nil); !errors.Is(err, ErrInvalidTurn) {
		t.Errorf("ValidateTurn(nil) = %v", err)
	}
	if err := ValidateTurn(&Turn{Role: RoleAssistant, Text: "ok"}); err != nil {
		t.Errorf("ValidateTurn() unexpected error = %v", err)
	}
}

func TestValidateRole(t *testing.T) {
	for _, role := range []Role{RoleUser, RoleAssistant} {
		if err := ValidateRole(role); err != nil {
			t.Errorf("ValidateRole(%v) = %v", role, err)
		}
	}
	if err := ValidateRole(Role(3)); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("ValidateRole(3) = %v", err)
	}
}
