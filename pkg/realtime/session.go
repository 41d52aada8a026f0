package realtime

import (
	"sync"

	"github.com/teamkard/teamkard/pkg/backflow"
	"github.com/teamkard/teamkard/pkg/domain"
	"github.com/teamkard/teamkard/pkg/protocol"
)

// ProjectSubscription is one connection's observation state for one
// project: at most one record per (connection, project) pair. The flags
// flip independently as kanban/messenger start and stop intents arrive;
// the backflow handle outlives flag flips so re-enabling observation
// never recreates the topic subscription.
type ProjectSubscription struct {
	ProjectID        domain.ProjectID
	Backflow         *backflow.Subscription
	ObserveKanban    bool
	ObserveMessenger bool
}

// Session is the authenticated state of one connection: the resolved
// user plus the ordered list of project subscriptions. Created by the
// first successful authorize intent, destroyed with the connection.
type Session struct {
	User domain.User

	mu   sync.RWMutex
	subs []*ProjectSubscription
}

// NewSession creates a session with no subscriptions.
func NewSession(user domain.User) *Session {
	return &Session{User: user}
}

// find returns the subscription for a project, nil when absent.
// Callers must hold s.mu.
func (s *Session) find(projectID domain.ProjectID) *ProjectSubscription {
	for _, sub := range s.subs {
		if sub.ProjectID == projectID {
			return sub
		}
	}
	return nil
}

// Subscription returns the subscription for a project, nil when the
// session never started observing it.
func (s *Session) Subscription(projectID domain.ProjectID) *ProjectSubscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.find(projectID)
}

// Upsert looks up or creates the subscription record for a project and
// sets the observation flag for the given domain. The registry is only
// consulted when the record does not exist yet; reports whether a new
// record (and backflow handle) was created.
func (s *Session) Upsert(projectID domain.ProjectID, d protocol.Domain, registry *backflow.Registry) (*ProjectSubscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := s.find(projectID)
	created := false
	if sub == nil {
		sub = &ProjectSubscription{
			ProjectID: projectID,
			Backflow:  registry.Subscribe(projectID),
		}
		s.subs = append(s.subs, sub)
		created = true
	}

	switch d {
	case protocol.DomainKanban:
		sub.ObserveKanban = true
	case protocol.DomainMessenger:
		sub.ObserveMessenger = true
	}
	return sub, created
}

// Stop clears the observation flag for a domain. The subscription record
// and its backflow handle stay in place so a later start is a pure flag
// flip. Returns false when the project was never subscribed.
func (s *Session) Stop(projectID domain.ProjectID, d protocol.Domain) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := s.find(projectID)
	if sub == nil {
		return false
	}
	switch d {
	case protocol.DomainKanban:
		sub.ObserveKanban = false
	case protocol.DomainMessenger:
		sub.ObserveMessenger = false
	}
	return true
}

// Observes reports whether an action for (projectID, domain) should be
// delivered to this session.
func (s *Session) Observes(projectID domain.ProjectID, d protocol.Domain) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub := s.find(projectID)
	if sub == nil {
		return false
	}
	switch d {
	case protocol.DomainKanban:
		return sub.ObserveKanban
	case protocol.DomainMessenger:
		return sub.ObserveMessenger
	default:
		return true
	}
}

// Subscriptions returns a snapshot of the subscription list, for
// disconnect cleanup.
func (s *Session) Subscriptions() []*ProjectSubscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ProjectSubscription, len(s.subs))
	copy(out, s.subs)
	return out
}
