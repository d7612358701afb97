// Package model defines the provider adapter contract consumed by funcn and
// the provider-agnostic request shape handed to adapters.
//
// Core goals:
//   - One Adapter interface per vendor: capabilities, execute, lazy stream
//   - Raw vendor responses and chunks stay vendor-native, exposed through the
//     sealed RawResponse / RawChunk traits that only the response package reads
//   - Keep request shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockAdapter)
//
// Providers (OpenAI, Anthropic, Ollama) live in sub-packages so higher layers
// remain decoupled from vendor SDKs.
package model
