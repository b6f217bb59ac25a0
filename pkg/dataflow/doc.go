// Package dataflow is a reactive workflow runtime: a mutable graph of typed
// nodes and edges whose values propagate automatically, and an engine that
// re-runs node logic when a node's inputs change.
//
// # Basic Usage
//
//	store := dataflow.NewStore()
//	_ = store.CreateNodeType(dataflow.NodeType{
//	    Name:    "upper",
//	    Inputs:  []dataflow.InputSchema{{Name: "in", Type: "string"}},
//	    Outputs: []dataflow.OutputSchema{{Name: "out", Type: "string"}},
//	    Execute: func(ctl dataflow.Controller, args dataflow.ExecuteArgs) (*dataflow.Result, error) {
//	        s, _ := args.Input("in")
//	        return &dataflow.Result{Outputs: map[dataflow.OutputName]any{
//	            "out": strings.ToUpper(fmt.Sprint(s)),
//	        }}, nil
//	    },
//	})
//	_ = store.CreateNode(dataflow.NodeSpec{ID: "a", Type: "upper"})
//
//	engine := dataflow.NewEngine(store)
//	engine.Start()
//	defer engine.Close()
//
// # Graph Model
//
// Every port holds a Cell: a value plus a change counter that moves on
// every write, including writes of an equal value. Edges are identified by
// their endpoints (see EdgeIDFor), so connecting the same ports twice
// yields one edge, and an input holds at most one edge: connecting a second
// edge replaces the first.
//
// Store actions never panic on bad input. They log, leave the graph as it
// was and return a *MutationError. Integrity problems that the graph
// tolerates, such as edges pointing at deleted nodes, are reported by
// GraphErrors instead. Deleting a node does not delete its edges.
//
// # Execution
//
// The engine ticks: it copies changed outputs into connected inputs, finds
// nodes whose input or data counters moved since their last run, and runs
// them concurrently. A node that is already running is skipped and picks
// up the change once its run ends. Stopping with abort cancels every
// in-flight run; runs that end after cancellation are recorded as aborted,
// never as errors.
//
// # Observation
//
// Store.Subscribe and Store.SubscribeBatched deliver change events. The
// engine and the document autosaver are both ordinary subscribers.
package dataflow
