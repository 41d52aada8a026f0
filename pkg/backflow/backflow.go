// Package backflow implements the per-project broadcast topic that
// distributes Actions to every connection observing a project. Each
// subscribed connection is both a producer (it publishes the Actions its
// intents cause) and a consumer (it receives every Action published by
// any producer, itself included).
//
// The registry is an injectable service with its own synchronized state —
// tests instantiate isolated registries, nothing is process-global.
package backflow

import (
	"sync"

	"github.com/google/uuid"

	"github.com/teamkard/teamkard/pkg/domain"
	"github.com/teamkard/teamkard/pkg/logger"
	"github.com/teamkard/teamkard/pkg/protocol"
)

// subscriberBuffer bounds each subscriber's delivery queue. On overflow
// the oldest queued action is dropped to make room — publication never
// blocks the publisher.
const subscriberBuffer = 64

// Registry maps project ids to live flows. A flow exists exactly while it
// has at least one subscriber: created on first subscribe, removed when
// the last subscription is cancelled. Both transitions happen under the
// registry lock, so a teardown can never race a re-subscribe for the
// same project — a new subscriber either joins the surviving flow or
// creates a fresh one.
type Registry struct {
	mu    sync.Mutex
	flows map[domain.ProjectID]*flow
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{flows: make(map[domain.ProjectID]*flow)}
}

// Subscribe attaches a new subscriber to the project's flow, creating the
// flow atomically if absent. Cancel the returned subscription when the
// connection stops observing the project.
func (r *Registry) Subscribe(projectID domain.ProjectID) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, ok := r.flows[projectID]
	if !ok {
		f = &flow{projectID: projectID, subs: make(map[string]*Subscription)}
		r.flows[projectID] = f
		logger.DebugCF("backflow", "Flow created", map[string]interface{}{
			"project": int64(projectID),
		})
	}

	sub := &Subscription{
		id:       uuid.NewString(),
		registry: r,
		flow:     f,
		ch:       make(chan protocol.Action, subscriberBuffer),
	}

	f.mu.Lock()
	f.subs[sub.id] = sub
	f.mu.Unlock()

	return sub
}

// unsubscribe detaches a subscriber and tears the flow down when it was
// the last one. Holding the registry lock across both steps is what makes
// last-out teardown and first-in creation mutually exclusive.
func (r *Registry) unsubscribe(f *flow, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f.mu.Lock()
	sub, ok := f.subs[id]
	if ok {
		delete(f.subs, id)
	}
	empty := len(f.subs) == 0
	f.mu.Unlock()

	if ok {
		// No publisher can be mid-send here: Publish holds the flow
		// read lock for the whole fan-out and we just held the write
		// lock. Closing wakes the consumer's forwarding loop.
		close(sub.ch)
	}

	if empty && r.flows[f.projectID] == f {
		delete(r.flows, f.projectID)
		logger.DebugCF("backflow", "Flow torn down", map[string]interface{}{
			"project": int64(f.projectID),
		})
	}
}

// NumFlows returns the number of live flows. Diagnostics and tests.
func (r *Registry) NumFlows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// NumSubscribers returns the subscriber count of a project's flow, zero
// when no flow exists.
func (r *Registry) NumSubscribers(projectID domain.ProjectID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[projectID]
	if !ok {
		return 0
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// flow is one project's broadcast topic.
type flow struct {
	projectID domain.ProjectID
	mu        sync.RWMutex
	subs      map[string]*Subscription
}

// publish fans an action out to every current subscriber. Slow consumers
// lose their oldest queued action rather than stalling the publisher.
func (f *flow) publish(action protocol.Action) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs {
		select {
		case sub.ch <- action:
		default:
			// Queue full — drop oldest and retry once.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- action:
			default:
			}
		}
	}
}

// Subscription is one connection's handle on a project flow.
type Subscription struct {
	id       string
	registry *Registry
	flow     *flow
	ch       chan protocol.Action
	once     sync.Once
}

// C is the subscriber's delivery channel. It is closed by Cancel.
func (s *Subscription) C() <-chan protocol.Action {
	return s.ch
}

// ProjectID returns the project this subscription observes.
func (s *Subscription) ProjectID() domain.ProjectID {
	return s.flow.projectID
}

// Publish broadcasts an action to every subscriber of the flow, the
// publishing subscription included.
func (s *Subscription) Publish(action protocol.Action) {
	s.flow.publish(action)
}

// Cancel detaches the subscription and closes its channel. Idempotent.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.registry.unsubscribe(s.flow, s.id)
	})
}
