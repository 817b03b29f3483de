// Package question chooses the next clarifying question for a session.
//
// Candidates pass through four ordered skip filters (redundancy, low
// expected gain, irrelevance to the leading causes, belief saturation);
// every skip is recorded with its reason so the audit trail can explain
// why a question was never asked. Selection is deterministic: highest
// information gain wins, ties broken by lowest question ID.
package question
