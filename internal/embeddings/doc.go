// Package embeddings generates text embeddings for the dense retrieval
// stage using local ONNX models via FastEmbed.
//
// FastEmbed requires CGO; non-CGO builds get a stub provider that fails
// with a clear error at construction time.
package embeddings
