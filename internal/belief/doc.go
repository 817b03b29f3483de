// Package belief maintains the probability distribution over candidate
// root causes for a diagnostic session.
//
// The engine is pure: every operation takes the current vector and returns
// a new one, does no I/O and never blocks. Static domain rules and learned
// patterns are blended with a configurable trust factor, with learned
// patterns further damped by their observed support.
package belief
