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


// Package search retrieves conversations by meaning.
//
// A Retriever embeds the query, asks the store for the nearest chunks and
// resolves them to their conversations. Each conversation contributes at most
// a configured number of hits so one long chat cannot crowd out the others.
// When fewer than k hits survive the cap, the candidate window doubles until
// k hits are found or the store runs out of chunks.
//
// Short queries can be routed to a keyword search instead, and Related finds
// the conversations closest to a stored one.
package search
