package dataflow

import (
	"context"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/dataflow/pkg/dataflow/observability"
)

// run executes an admitted run to completion and records its outcome.
//
// The outcome is decided after Execute returns: if ctx was cancelled the
// run is aborted regardless of what Execute returned, and its outputs are
// discarded. Aborted nodes are queued so they run again on the next Start.
func (e *Engine) run(ctx context.Context, r *nodeRun) (status Status) {
	defer e.done()

	nodeID, nodeType := string(r.snap.id), string(r.snap.typ)
	logger := observability.EnrichLogger(e.logger, r.runID, nodeID, nodeType)
	ctx, span := e.spans.StartNodeSpan(ctx, nodeID, nodeType)
	observability.LogNodeStart(logger, nodeID)

	ctl := &executionController{
		Context: ctx,
		logger:  logger,
		runID:   r.runID,
		nodeID:  r.snap.id,
		progress: func(ratio float64, message string) {
			e.store.setProgress(r.node, r.runID, ratio, message)
			e.spans.AddSpanEvent(ctx, "progress",
				attribute.Float64("ratio", ratio),
				attribute.String("message", message))
		},
	}

	var res *Result
	var err error
	if r.snap.mode == ModePassthrough {
		res = passthrough(r.snap.args)
	} else {
		res, err = invoke(ctl, r.snap)
	}

	var errMsg string
	switch {
	case ctx.Err() != nil:
		status = StatusAborted
		err = &CancellationError{NodeID: r.snap.id, Cause: ctx.Err()}
	case err != nil:
		status = StatusError
		errMsg = err.Error()
		err = &NodeError{NodeID: r.snap.id, Op: "execute", Err: err}
	default:
		status = StatusSuccess
		if dw, written := e.store.applyResult(r.node, res); written {
			e.ownDataWrite(r.node, r.snap.data, dw)
		}
	}

	end := e.store.finishRun(r.node, r.runID, status, errMsg, time.Now()).EndedAt
	duration := end.Sub(r.started)

	e.metrics.RecordNodeExecution(context.WithoutCancel(ctx), nodeID, nodeType, string(status), duration)
	e.spans.EndSpanWithError(span, err)

	switch status {
	case StatusSuccess:
		observability.LogNodeComplete(logger, nodeID, float64(duration.Microseconds())/1000)
	case StatusError:
		observability.LogNodeError(logger, nodeID, err)
	case StatusAborted:
		observability.LogNodeAborted(logger, nodeID)
		e.requeue(r.node)
	}
	return status
}

// invoke calls the node type's Execute, converting a panic into a
// PanicError.
func invoke(ctl *executionController, snap runSnapshot) (res *Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = &PanicError{
				NodeID: snap.id,
				Value:  rec,
				Stack:  string(debug.Stack()),
			}
		}
	}()
	return snap.def.Execute(ctl, snap.args)
}

// passthrough copies every written input to the output of the same name.
func passthrough(args ExecuteArgs) *Result {
	res := &Result{Outputs: make(map[OutputName]any, len(args.Inputs))}
	for name, v := range args.Inputs {
		if args.Node.Output(OutputName(name)) != nil {
			res.Outputs[OutputName(name)] = v
		}
	}
	return res
}
