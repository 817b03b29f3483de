// Package input defines the contracts for the external collaborators that
// turn raw user reports into structured diagnostic input.
//
// The diagnostic core never parses free text or images itself. A symptom
// extractor and an optional visual analyzer produce a ProcessedInput, and
// everything downstream works from that structure alone.
package input
