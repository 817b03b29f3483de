// Package learning mines finished diagnostic sessions for new
// symptom-to-cause patterns and publishes them as fresh knowledge
// snapshots.
//
// The loop is a batch process with a single serialized writer: the
// Scheduler runs the Miner on a ticker (or once, via the CLI), merges
// the mined candidates with earlier runs and republishes through the
// knowledge store's atomic swap. Active sessions keep the snapshot they
// started with.
package learning
