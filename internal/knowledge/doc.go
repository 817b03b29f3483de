// Package knowledge holds the fault patterns and clarifying questions the
// diagnostic engine reasons over.
//
// Rules are loaded from YAML into an immutable, versioned Snapshot. The
// Store publishes snapshots with an atomic pointer swap so in-flight
// sessions keep the snapshot they started with; the learning loop is the
// only writer. Hand-authored rules are never mutated at runtime, learned
// rules enter only through a published snapshot.
package knowledge
