// Package hooks lets callers observe and intercept engine operations.
// Pre-hooks run synchronously and may modify the payload or cancel the
// operation by returning an error. Post-hooks are notifications and may run
// in the background.
package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/INLOpen/stampdb/core"
)

type EventType string

const (
	EventPreAppend  EventType = "PreAppend"
	EventPostAppend EventType = "PostAppend"
	EventPreDelete  EventType = "PreDelete"
	EventPostDelete EventType = "PostDelete"
	EventPreQuery   EventType = "PreQuery"
	EventPostQuery  EventType = "PostQuery"

	EventPreCheckpoint  EventType = "PreCheckpoint"
	EventPostCheckpoint EventType = "PostCheckpoint"
	EventPreCompaction  EventType = "PreCompaction"
	EventPostCompaction EventType = "PostCompaction"

	EventPostBackup EventType = "PostBackup"

	EventPostOpen  EventType = "PostOpen"
	EventPreClose  EventType = "PreClose"
	EventPostClose EventType = "PostClose"
)

// HookManager dispatches events to registered listeners.
type HookManager interface {
	Register(eventType EventType, listener HookListener)
	// Trigger runs the listeners for event in priority order. For Pre events
	// the first listener error is returned and the operation is cancelled.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for in-flight asynchronous listeners.
	Stop()
}

type HookEvent interface {
	Type() EventType
	Payload() interface{}
}

// HookListener receives events. Lower Priority values run first.
type HookListener interface {
	OnEvent(ctx context.Context, event HookEvent) error
	Priority() int
	// IsAsync requests background execution. It is ignored for Pre events.
	IsAsync() bool
}

type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// PreAppendPayload carries a pointer so listeners can rewrite the record.
type PreAppendPayload struct {
	Record *core.Record
}

func NewPreAppendEvent(payload PreAppendPayload) HookEvent {
	return &BaseEvent{eventType: EventPreAppend, payload: payload}
}

type PostAppendPayload struct {
	Record   core.Record
	Position int
	// Pending is the number of appends awaiting checkpoint after this one.
	Pending int
}

func NewPostAppendEvent(payload PostAppendPayload) HookEvent {
	return &BaseEvent{eventType: EventPostAppend, payload: payload}
}

type PreDeletePayload struct {
	Time *float64
}

func NewPreDeleteEvent(payload PreDeletePayload) HookEvent {
	return &BaseEvent{eventType: EventPreDelete, payload: payload}
}

type PostDeletePayload struct {
	Time    float64
	Deleted bool
	Error   error
}

func NewPostDeleteEvent(payload PostDeletePayload) HookEvent {
	return &BaseEvent{eventType: EventPostDelete, payload: payload}
}

type PreQueryPayload struct {
	Start *float64
	End   *float64
}

func NewPreQueryEvent(payload PreQueryPayload) HookEvent {
	return &BaseEvent{eventType: EventPreQuery, payload: payload}
}

type PostQueryPayload struct {
	Start    float64
	End      float64
	Rows     int
	Duration time.Duration
}

func NewPostQueryEvent(payload PostQueryPayload) HookEvent {
	return &BaseEvent{eventType: EventPostQuery, payload: payload}
}

type PreCheckpointPayload struct {
	Pending int
}

func NewPreCheckpointEvent(payload PreCheckpointPayload) HookEvent {
	return &BaseEvent{eventType: EventPreCheckpoint, payload: payload}
}

type PostCheckpointPayload struct {
	Records  int
	Duration time.Duration
	Error    error
}

func NewPostCheckpointEvent(payload PostCheckpointPayload) HookEvent {
	return &BaseEvent{eventType: EventPostCheckpoint, payload: payload}
}

type PreCompactionPayload struct {
	Path    string
	Records int
}

func NewPreCompactionEvent(payload PreCompactionPayload) HookEvent {
	return &BaseEvent{eventType: EventPreCompaction, payload: payload}
}

type PostCompactionPayload struct {
	Path        string
	Records     int
	BytesBefore int64
	BytesAfter  int64
	Duration    time.Duration
	Error       error
}

func NewPostCompactionEvent(payload PostCompactionPayload) HookEvent {
	return &BaseEvent{eventType: EventPostCompaction, payload: payload}
}

type PostBackupPayload struct {
	Source      string
	Destination string
	Compression core.CompressionType
	Bytes       int64
}

func NewPostBackupEvent(payload PostBackupPayload) HookEvent {
	return &BaseEvent{eventType: EventPostBackup, payload: payload}
}

type PostOpenPayload struct {
	Path      string
	Records   int
	Malformed int
	// MaxTime is the largest timestamp loaded; zero when the table is empty.
	MaxTime float64
}

func NewPostOpenEvent(payload PostOpenPayload) HookEvent {
	return &BaseEvent{eventType: EventPostOpen, payload: payload}
}

type EngineLifecyclePayload struct {
	Path string
}

func NewPreCloseEvent(payload EngineLifecyclePayload) HookEvent {
	return &BaseEvent{eventType: EventPreClose, payload: payload}
}

func NewPostCloseEvent(payload EngineLifecyclePayload) HookEvent {
	return &BaseEvent{eventType: EventPostClose, payload: payload}
}

type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager keeps listeners per event sorted by priority.
type DefaultHookManager struct {
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup
	logger    *slog.Logger
}

// NewHookManager creates a new DefaultHookManager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger,
	}
}

// Register adds a listener for a specific event type, maintaining priority order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{
		listener: listener,
		priority: listener.Priority(),
	}

	l := m.listeners[eventType]
	// Equal priorities keep registration order.
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority > item.priority
	})
	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item

	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners := m.listeners[event.Type()]
	m.mu.RUnlock()

	if len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		isListenerAsync := item.listener.IsAsync()

		if isPreHook || !isListenerAsync {
			if isPreHook && isListenerAsync {
				m.logger.Warn("Listener for Pre-hook requested async execution, but Pre-hooks are always synchronous.", "event", event.Type(), "priority", item.priority)
			}

			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				m.logger.Error("Error from synchronous post-hook listener", "event", event.Type(), "priority", item.priority, "error", err)
			}
			continue
		}

		m.wg.Add(1)
		go func(currentItem *listenerWithPriority) {
			defer m.wg.Done()
			if err := currentItem.listener.OnEvent(ctx, event); err != nil {
				m.logger.Error("Error from asynchronous post-hook listener", "event", event.Type(), "priority", currentItem.priority, "error", err)
			}
		}(item)
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
