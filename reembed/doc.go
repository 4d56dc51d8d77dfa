// Package reembed rebuilds the derived data of stored conversations.
//
// A Reembedder indexes every conversation again for one embedding model,
// which is how a vault moves to a new model: vectors of other models stay in
// place and queryable until the new index is complete. A Retagger runs the
// classifier over conversations again. Both walk the store in batches and
// report progress to a writer.
package reembed
