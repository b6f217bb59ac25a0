package document

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/randalmurphal/dataflow/pkg/dataflow"
	"github.com/randalmurphal/dataflow/pkg/dataflow/event"
)

// DefaultAutosaveWindow is the quiescence window used when none is given.
const DefaultAutosaveWindow = time.Second

// Saver persists a document snapshot.
type Saver interface {
	Save(ctx context.Context, doc *Document) error
}

// persistedEvents are the store events that change the document. Value
// and execution changes are not persisted and never trigger a save.
var persistedEvents = []event.Type{
	dataflow.EventNodeCreated,
	dataflow.EventNodeDeleted,
	dataflow.EventNodeRenamed,
	dataflow.EventNodeUpdated,
	dataflow.EventEdgeCreated,
	dataflow.EventEdgeDeleted,
	dataflow.EventDataChanged,
	dataflow.EventTypeRegistered,
	dataflow.EventGraphLoaded,
}

// Autosaver writes the store's document after edits settle. A burst of
// edits closer together than the window produces a single save.
type Autosaver struct {
	store  *dataflow.Store
	saver  Saver
	onSave func(*Document, error)

	mu          sync.Mutex
	last        *Document
	saves       int
	unsubscribe func()
	closeOnce   sync.Once
}

// AutosaveOption configures an Autosaver.
type AutosaveOption func(*Autosaver)

// OnSave is called after every save attempt with the saved snapshot.
func OnSave(fn func(doc *Document, err error)) AutosaveOption {
	return func(a *Autosaver) { a.onSave = fn }
}

// NewAutosaver starts observing s. A window of zero or less uses
// DefaultAutosaveWindow.
func NewAutosaver(s *dataflow.Store, saver Saver, window time.Duration, opts ...AutosaveOption) *Autosaver {
	if window <= 0 {
		window = DefaultAutosaveWindow
	}
	a := &Autosaver{store: s, saver: saver, last: FromStore(s)}
	for _, opt := range opts {
		opt(a)
	}
	a.unsubscribe = s.SubscribeBatched(window, func([]event.Event) {
		_ = a.save(context.Background(), false)
	}, persistedEvents...)
	return a
}

// Save writes the current document immediately.
func (a *Autosaver) Save(ctx context.Context) error {
	return a.save(ctx, true)
}

// save writes a snapshot. Unless forced, a snapshot equal to the last
// saved one is skipped.
func (a *Autosaver) save(ctx context.Context, force bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	doc := FromStore(a.store)
	if !force && reflect.DeepEqual(doc, a.last) {
		return nil
	}
	err := a.saver.Save(ctx, doc)
	a.saves++
	if err == nil {
		a.last = doc
	}
	if a.onSave != nil {
		a.onSave(doc, err)
	}
	return err
}

// Saves returns the number of save attempts so far.
func (a *Autosaver) Saves() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saves
}

// Close stops observing the store and saves any edit made since the last
// save before returning.
func (a *Autosaver) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.unsubscribe()
		err = a.save(context.Background(), false)
	})
	return err
}
