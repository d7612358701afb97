// Package stream reconstructs a complete call response from a provider's
// chunk stream.
//
// A Reconstructor moves through four states:
//
//	INIT -> ACCUMULATING -> FINALIZED
//	                     -> FAILED
//
// No request is sent while in INIT; the first call to Next starts the
// underlying provider stream. Each chunk is normalized and returned to the
// caller while content and tool-argument deltas are accumulated. A tool call
// is handed to the caller exactly once, on the chunk where the provider
// signals it complete (ResponseChunk.CompletedTools). Once the stream is
// exhausted, CallResponse synthesizes the response a non-streaming call would
// have returned for the same output.
//
// Providers that cannot stream tool calls (Capabilities.SupportsStreamingTools
// false) degrade to emitting every tool on the chunk that carries the finish
// reason. Callers that need to know in advance inspect the capability flag.
package stream
