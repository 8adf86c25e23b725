/*
Package tracing gives every aggregation decision and API request a trace id.

# Overview

Spans are lightweight: a trace id, a span id, tags and a duration. Finished
spans are queued and written through the structured logger, so a decision
can be followed across the tracker, policy and resolver log lines by its
trace_id field.

# Usage

	tracer := tracing.New("aggregated", logger)
	defer tracer.Close()

	span, ctx := tracer.StartSpan(ctx, "decide")
	span.SetTag("tab_id", string(tab.ID))
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()

	router.Use(tracing.HTTPMiddleware(tracer))

# Trace Format

Traces use HTTP headers for propagation:
- X-Trace-ID: Unique identifier for the whole flow
- X-Span-ID: Identifier for current operation
*/
package tracing
