package backflow

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamkard/teamkard/pkg/domain"
	"github.com/teamkard/teamkard/pkg/kanban"
	"github.com/teamkard/teamkard/pkg/protocol"
)

func collect(sub *Subscription, n int, timeout time.Duration) []protocol.Action {
	out := make([]protocol.Action, 0, n)
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case a, ok := <-sub.C():
			if !ok {
				return out
			}
			out = append(out, a)
		case <-deadline:
			return out
		}
	}
	return out
}

func TestSubscribeCreatesFlowOnce(t *testing.T) {
	r := NewRegistry()

	a := r.Subscribe(7)
	b := r.Subscribe(7)
	c := r.Subscribe(9)

	assert.Equal(t, 2, r.NumFlows())
	assert.Equal(t, 2, r.NumSubscribers(7))
	assert.Equal(t, 1, r.NumSubscribers(9))

	a.Cancel()
	b.Cancel()
	c.Cancel()
}

func TestPublishReachesAllSubscribersIncludingSelf(t *testing.T) {
	r := NewRegistry()
	a := r.Subscribe(3)
	b := r.Subscribe(3)
	defer a.Cancel()
	defer b.Cancel()

	a.Publish(protocol.KanbanSetState(3, &kanban.Board{ProjectID: 3}))

	got := collect(a, 1, time.Second)
	require.Len(t, got, 1, "publisher must receive its own action")
	assert.Equal(t, protocol.ActionKanbanSetState, got[0].Type)

	got = collect(b, 1, time.Second)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ProjectID(3), got[0].ProjectID)
}

func TestPublishDoesNotCrossProjects(t *testing.T) {
	r := NewRegistry()
	p3 := r.Subscribe(3)
	p4 := r.Subscribe(4)
	defer p3.Cancel()
	defer p4.Cancel()

	p3.Publish(protocol.KanbanSetState(3, &kanban.Board{ProjectID: 3}))

	require.Len(t, collect(p3, 1, time.Second), 1)
	assert.Empty(t, collect(p4, 1, 50*time.Millisecond),
		"subscriber of another project must see nothing")
}

func TestPublicationOrderPreservedPerSubscriber(t *testing.T) {
	r := NewRegistry()
	pub := r.Subscribe(1)
	obs := r.Subscribe(1)
	defer pub.Cancel()
	defer obs.Cancel()

	const n = 32
	for i := 0; i < n; i++ {
		a := protocol.KeepAlive()
		a.MessageID = int64(i) // smuggle a sequence number
		pub.Publish(a)
	}

	got := collect(obs, n, time.Second)
	require.Len(t, got, n)
	for i, a := range got {
		assert.Equal(t, int64(i), a.MessageID, "action %d out of order", i)
	}
}

func TestLastUnsubscribeTearsDownFlow(t *testing.T) {
	r := NewRegistry()
	a := r.Subscribe(5)
	b := r.Subscribe(5)

	a.Cancel()
	assert.Equal(t, 1, r.NumFlows(), "flow must survive while a subscriber remains")

	b.Cancel()
	assert.Equal(t, 0, r.NumFlows(), "last cancel must remove the flow")

	// Cancel is idempotent.
	b.Cancel()
	assert.Equal(t, 0, r.NumFlows())
}

func TestFreshFlowAfterTeardownDeliversOnlyNewActions(t *testing.T) {
	r := NewRegistry()

	old := r.Subscribe(5)
	old.Publish(protocol.KanbanSetState(5, &kanban.Board{ProjectID: 5}))
	old.Cancel()

	fresh := r.Subscribe(5)
	defer fresh.Cancel()

	assert.Empty(t, collect(fresh, 1, 50*time.Millisecond),
		"a fresh flow must not replay actions published before the subscription")

	fresh.Publish(protocol.KeepAlive())
	require.Len(t, collect(fresh, 1, time.Second), 1)
}

func TestCancelledSubscriberChannelCloses(t *testing.T) {
	r := NewRegistry()
	sub := r.Subscribe(2)
	sub.Cancel()

	_, ok := <-sub.C()
	assert.False(t, ok, "channel must be closed after cancel")
}

func TestSlowSubscriberDropsOldestNotPublisher(t *testing.T) {
	r := NewRegistry()
	slow := r.Subscribe(1)
	defer slow.Cancel()

	done := make(chan struct{})
	go func() {
		// Publish far beyond the buffer without anyone draining.
		for i := 0; i < subscriberBuffer*4; i++ {
			a := protocol.KeepAlive()
			a.MessageID = int64(i)
			slow.Publish(a)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	got := collect(slow, subscriberBuffer, time.Second)
	require.NotEmpty(t, got)
	// The newest action survives the drop-oldest policy.
	assert.Equal(t, int64(subscriberBuffer*4-1), got[len(got)-1].MessageID)
}

func TestConcurrentSubscribeUnsubscribeSameProject(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sub := r.Subscribe(11)
				sub.Publish(protocol.KeepAlive())
				sub.Cancel()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.NumFlows(), "all flows must be torn down after churn")
}

func TestManyProjectsIsolated(t *testing.T) {
	r := NewRegistry()
	subs := make([]*Subscription, 0, 8)
	for p := 1; p <= 8; p++ {
		subs = append(subs, r.Subscribe(domain.ProjectID(p)))
	}

	for i, sub := range subs {
		a := protocol.KeepAlive()
		a.MessageID = int64(i)
		sub.Publish(a)
	}

	for i, sub := range subs {
		got := collect(sub, 1, time.Second)
		require.Len(t, got, 1, fmt.Sprintf("project %d", i+1))
		assert.Equal(t, int64(i), got[0].MessageID)
	}
	for _, sub := range subs {
		sub.Cancel()
	}
}
