// Package core provides the foundational domain types shared by every layer
// of funcn. It defines:
//
//   - Messages (role + ordered, media-typed content parts)
//   - Tool call records and the results supplied back for them
//   - Usage accounting where unknown values stay nil instead of zero
//   - ToolContext (scoped execution surface handed to tool handlers)
//   - The error taxonomy (configuration, transport, tool execution, stream)
//
// The package keeps vendor and orchestration concerns out of scope so that
// adapters, the stream reconstructor and the tool loop can share one
// vocabulary without importing each other.
package core
