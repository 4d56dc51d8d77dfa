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

import "errors"

// Domain validation errors
var (
	// ErrInvalidConversation indicates a Conversation failed validation.
	ErrInvalidConversation = errors.New("invalid conversation")

	// ErrInvalidTurn indicates a Turn failed validation.
	ErrInvalidTurn = errors.New("invalid turn")

	// ErrEmptyConversationID indicates the conversation ID is empty.
	ErrEmptyConversationID = errors.New("conversation id cannot be empty")

	// ErrNoTurns indicates a conversation without any turns.
	ErrNoTurns = errors.New("conversation has no turns")

	// ErrEmptyText indicates a turn's Text field is empty.
	ErrEmptyText = errors.New("turn text cannot be empty")

	// ErrInvalidRole indicates an invalid Role value.
	ErrInvalidRole = errors.New("invalid role")

	// ErrPositionGap indicates turn positions are not contiguous from zero.
	ErrPositionGap = errors.New("turn positions must be contiguous")

	// ErrDuplicateLabel indicates a label set contains the same label twice.
	ErrDuplicateLabel = errors.New("duplicate label")
)
