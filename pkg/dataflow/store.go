package dataflow

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/randalmurphal/dataflow/pkg/dataflow/event"
	"github.com/randalmurphal/dataflow/pkg/dataflow/observability"
	"github.com/randalmurphal/dataflow/pkg/dataflow/registry"
)

// Event types published by a Store. Subject is the node id, edge id or
// type name the event is about.
const (
	EventNodeCreated      event.Type = "node.created"
	EventNodeDeleted      event.Type = "node.deleted"
	EventNodeRenamed      event.Type = "node.renamed"
	EventNodeUpdated      event.Type = "node.updated"
	EventEdgeCreated      event.Type = "edge.created"
	EventEdgeDeleted      event.Type = "edge.deleted"
	EventTypeRegistered   event.Type = "type.registered"
	EventTypeDeleted      event.Type = "type.deleted"
	EventValueChanged     event.Type = "value.changed"
	EventDataChanged      event.Type = "data.changed"
	EventExecutionChanged event.Type = "execution.changed"
	EventGraphLoaded      event.Type = "graph.loaded"
)

const eventSource = "store"

// Renamed is the payload of EventNodeRenamed.
type Renamed struct {
	From NodeID `json:"from"`
	To   NodeID `json:"to"`
}

// Store is the authoritative in-memory graph. All structural changes go
// through its actions, which keep port edge references consistent with
// the edge table after every call.
//
// Actions never panic on bad caller input: they log a warning, leave the
// graph untouched and return a *MutationError that callers are free to
// ignore. Integrity problems that exist in the graph itself (dangling
// edges, unknown types) are reported as data by GraphErrors.
type Store struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Node
	order []NodeID
	edges map[EdgeID]*Edge

	types  *registry.Registry[TypeName, NodeType]
	bus    *event.LocalBus
	logger *slog.Logger
	closed bool
}

type storeConfig struct {
	logger     *slog.Logger
	bufferSize int
}

// StoreOption configures a Store.
type StoreOption func(*storeConfig)

// WithStoreLogger sets the logger used for rejected mutations.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(c *storeConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithEventBuffer sets the per-subscriber event buffer. Events that do not
// fit are dropped with a warning.
// Default: 1024
func WithEventBuffer(size int) StoreOption {
	return func(c *storeConfig) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	cfg := storeConfig{
		logger:     slog.Default(),
		bufferSize: 1024,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Store{
		nodes:  make(map[NodeID]*Node),
		edges:  make(map[EdgeID]*Edge),
		types:  registry.New[TypeName, NodeType](),
		logger: cfg.logger,
	}
	s.bus = event.NewBus(event.BusConfig{
		BufferSize:  cfg.bufferSize,
		NonBlocking: true,
		OnDrop: func(evt event.Event, subscriberID string) {
			s.logger.Warn("store event dropped",
				slog.String("event", evt.String()),
				slog.String("subscriber", subscriberID))
		},
	})
	return s
}

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// Close shuts down event delivery. The graph stays readable; further
// mutations fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.bus.Close()
}

// Subscribe registers fn for store events. With no types, fn receives every
// event. Events arrive in publish order on a dedicated goroutine.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(event.Event), types ...event.Type) (unsubscribe func()) {
	sub := s.bus.Subscribe(types, event.HandlerFunc(func(_ context.Context, evt event.Event) error {
		fn(evt)
		return nil
	}))
	if sub == nil {
		return func() {}
	}
	return sub.Unsubscribe
}

// SubscribeBatched is like Subscribe but coalesces events: fn receives all
// events published until no new event arrived for window. Unsubscribing
// delivers any pending batch before returning.
func (s *Store) SubscribeBatched(window time.Duration, fn func([]event.Event), types ...event.Type) (unsubscribe func()) {
	batcher := event.NewBatcher(window, fn)
	sub := s.bus.Subscribe(types, batcher)
	if sub == nil {
		return func() {}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			sub.Unsubscribe()
			batcher.Stop()
		})
	}
}

func (s *Store) publish(evts ...event.Event) {
	for _, evt := range evts {
		// Delivery is non-blocking; the only error is a closed bus.
		_ = s.bus.Publish(context.Background(), evt)
	}
}

func newEvent(typ event.Type, subject fmtStringer, data any) event.Event {
	return event.New(typ, eventSource, subject.String(), data)
}

type fmtStringer interface{ String() string }

// reject logs a refused mutation and returns it as an error.
func (s *Store) reject(op string, subject any, err error) error {
	merr := mutationError(op, subject, err)
	observability.LogMutationRejected(s.logger, op, merr.Subject, err)
	return merr
}

// Node returns a snapshot of the node. Port value cells and the data cell
// are shared with the live node.
func (s *Store) Node(id NodeID) (*Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return n.clone(), true
}

// Nodes returns snapshots of every node in creation order.
func (s *Store) Nodes() []*Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]*Node, 0, len(s.order))
	for _, id := range s.order {
		nodes = append(nodes, s.nodes[id].clone())
	}
	return nodes
}

// NodeIDs returns node ids in creation order.
func (s *Store) NodeIDs() []NodeID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// HasNode reports whether a node exists.
func (s *Store) HasNode(id NodeID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// Edge returns a snapshot of the edge. Its value cell is shared.
func (s *Store) Edge(id EdgeID) (*Edge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[id]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

// Edges returns snapshots of every edge ordered by id.
func (s *Store) Edges() []*Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	edges := make([]*Edge, 0, len(s.edges))
	for _, e := range s.edges {
		edges = append(edges, e.clone())
	}
	slices.SortFunc(edges, func(a, b *Edge) int { return cmp.Compare(a.ID, b.ID) })
	return edges
}

// NodeType returns a registered type definition.
func (s *Store) NodeType(name TypeName) (NodeType, bool) {
	return s.types.Get(name)
}

// NodeTypes returns every registered type ordered by name.
func (s *Store) NodeTypes() []NodeType {
	return s.types.Values()
}

// sourcePort resolves an edge's source output. Callers hold s.mu.
func (s *Store) sourcePort(e *Edge) (*Node, *Output) {
	n, ok := s.nodes[e.Source.NodeID]
	if !ok {
		return nil, nil
	}
	return n, n.Output(e.Source.Output)
}

// targetPort resolves an edge's target input. Callers hold s.mu.
func (s *Store) targetPort(e *Edge) (*Node, *Input) {
	n, ok := s.nodes[e.Target.NodeID]
	if !ok {
		return nil, nil
	}
	return n, n.Input(e.Target.Input)
}

// alive reports whether n is still the node stored under its id.
// Callers hold s.mu.
func (s *Store) alive(n *Node) bool {
	return s.nodes[n.ID] == n
}
