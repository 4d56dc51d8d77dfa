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


// Package storage provides the storage abstraction layer for chatvault.
//
// This package defines repository interfaces that decouple storage implementation
// from ingestion and retrieval. Two backends implement them: storage/badger
// (embedded, badgerhold over BadgerDB) and storage/postgres (pgx with pgvector).
//
// # Constructor Return Type Pattern
//
// Public backend constructors return the storage.Store interface:
//
//	store, err := badger.Open(path)             // returns storage.Store
//	store, err := postgres.Open(ctx, dsn)       // returns storage.Store
//
// Internal constructors may return concrete types since they're only used within
// the implementation package and its tests.
//
// # Architecture
//
//   - ConversationRepository: conversations, labels and keyword search
//   - ChunkRepository: chunks, per-model vectors, staged vectors and nearest-neighbour search
//   - Store: both, plus Close
//
// # Embedding Versions
//
// Vectors are stored per (chunk, model). The first vector written for a model
// fixes its dimension; later writes or queries of another length fail with
// ErrDimensionMismatch. A conversation lists in EmbeddedWith the models whose
// vectors cover its current chunk set.
//
// # Errors
//
//   - ErrNotFound: the requested conversation does not exist (wrapped with its ID)
//   - ErrStoreUnavailable: the store is closed or unreachable
//   - ErrDimensionMismatch: a vector does not fit its model
package storage
