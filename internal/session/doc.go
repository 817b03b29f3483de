// Package session drives the diagnostic state machine.
//
// A session moves INIT -> QUESTIONING -> {COMPLETE, UNCERTAIN}, both
// terminal. Each session pins the knowledge snapshot active at start and
// owns its belief vector exclusively; sessions never share mutable
// state. Every transition appends to an immutable audit trail that the
// learning loop later mines.
package session
