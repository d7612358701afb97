// Package agent runs the tool invocation loop.
//
// A Loop alternates between model calls and tool execution:
//
//	PROMPT -> MODEL_CALL -> (EXECUTE -> APPEND -> MODEL_CALL)* -> DONE
//
// After every model call that requests tools, each call is resolved against
// the tool registry, its arguments are validated and the handlers run
// concurrently. Results are appended to the history in the order the model
// emitted the calls, one tool message per call, and the model is called
// again. The loop ends with the first response that requests no tools.
//
// A handler failure stops the loop with a *core.ToolExecutionError; a plain
// Loop never retries. Wrap the caller in a call.Resilient to retry single
// model calls, wrap the loop with Loop.WithResilience to rerun the whole
// conversation (a policy matching core.KindToolExecution retries tool
// failures, a fallback chain moves the conversation to another provider),
// or set Options.ReportErrors to show tool failures to the model instead.
package agent
