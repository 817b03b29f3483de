// Package retrieval ranks repair tutorials against a diagnosis.
//
// Five stages per query: category routing (hard filter), dense vector
// search, sparse keyword search, hybrid score fusion and feedback-based
// re-ranking. Dense and sparse run in parallel under per-stage timeouts;
// losing one stage degrades gracefully to the other, losing both is a
// retryable total failure. Given identical inputs and index snapshots
// the ranking is fully deterministic, with floating-point ties broken by
// tutorial ID.
package retrieval
