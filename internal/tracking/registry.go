package tracking

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"transit-tracking-service/internal/domain"
)

// Subscription is a read-only view of the topics a connection holds.
type Subscription struct {
	ConnID    string
	Topics    []domain.Topic
	CreatedAt time.Time
}

// topicSet is removed from the registry when its last member leaves; dead
// marks a set that has been removed and must not gain members.
type topicSet struct {
	mu      sync.RWMutex
	members map[string]struct{}
	dead    bool
}

type connTopics struct {
	mu        sync.Mutex
	topics    map[domain.Topic]struct{}
	createdAt time.Time
	dropped   bool
}

// Registry tracks which connection holds which topics. Locks are per topic
// and per connection; a connection lock is always taken before a topic lock.
type Registry struct {
	topics sync.Map // domain.Topic -> *topicSet
	conns  sync.Map // connID -> *connTopics
}

func NewRegistry() *Registry { return &Registry{} }

// Register creates the empty subscription record of a connection.
// Subscribe on an unregistered or dropped connection is a no-op.
func (r *Registry) Register(connID string) {
	r.conns.LoadOrStore(connID, &connTopics{
		topics:    make(map[domain.Topic]struct{}),
		createdAt: time.Now().UTC(),
	})
}

func (r *Registry) topicSet(topic domain.Topic) *topicSet {
	if ts, ok := r.topics.Load(topic); ok {
		return ts.(*topicSet)
	}
	ts, _ := r.topics.LoadOrStore(topic, &topicSet{members: make(map[string]struct{})})
	return ts.(*topicSet)
}

// Subscribe adds topic to the connection. It reports whether the topic was
// newly added; subscribing twice is not an error.
func (r *Registry) Subscribe(connID string, topic domain.Topic) bool {
	v, ok := r.conns.Load(connID)
	if !ok {
		return false
	}
	c := v.(*connTopics)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dropped {
		return false
	}
	if _, held := c.topics[topic]; held {
		return false
	}
	c.topics[topic] = struct{}{}

	for {
		ts := r.topicSet(topic)
		ts.mu.Lock()
		if ts.dead {
			ts.mu.Unlock()
			continue
		}
		ts.members[connID] = struct{}{}
		ts.mu.Unlock()
		return true
	}
}

// Unsubscribe removes topic from the connection. It reports whether the
// topic was held. Once it returns, no later SubscribersFor call lists the
// connection for that topic.
func (r *Registry) Unsubscribe(connID string, topic domain.Topic) bool {
	v, ok := r.conns.Load(connID)
	if !ok {
		return false
	}
	c := v.(*connTopics)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.topics[topic]; !held {
		return false
	}
	delete(c.topics, topic)
	r.removeMember(topic, connID)
	return true
}

func (r *Registry) removeMember(topic domain.Topic, connID string) {
	ts, ok := r.topics.Load(topic)
	if !ok {
		return
	}
	set := ts.(*topicSet)
	set.mu.Lock()
	delete(set.members, connID)
	if len(set.members) == 0 {
		set.dead = true
		r.topics.CompareAndDelete(topic, set)
	}
	set.mu.Unlock()
}

// topicCount returns the number of topics with at least one subscriber.
func (r *Registry) topicCount() int {
	n := 0
	r.topics.Range(func(_, _ any) bool { n++; return true })
	return n
}

// DropConnection removes every topic of the connection and forgets it.
// It returns the topics that were held.
func (r *Registry) DropConnection(connID string) []domain.Topic {
	v, ok := r.conns.LoadAndDelete(connID)
	if !ok {
		return nil
	}
	c := v.(*connTopics)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.dropped = true
	held := make([]domain.Topic, 0, len(c.topics))
	for topic := range c.topics {
		r.removeMember(topic, connID)
		held = append(held, topic)
	}
	clear(c.topics)
	slices.Sort(held)
	return held
}

// SubscribersFor returns a copy of the connection ids holding topic.
func (r *Registry) SubscribersFor(topic domain.Topic) []string {
	ts, ok := r.topics.Load(topic)
	if !ok {
		return nil
	}
	set := ts.(*topicSet)

	set.mu.RLock()
	defer set.mu.RUnlock()

	out := make([]string, 0, len(set.members))
	for id := range set.members {
		out = append(out, id)
	}
	return out
}

// Topics returns the sorted topics held by the connection.
func (r *Registry) Topics(connID string) []domain.Topic {
	sub, ok := r.Subscription(connID)
	if !ok {
		return nil
	}
	return sub.Topics
}

func (r *Registry) Subscription(connID string) (Subscription, bool) {
	v, ok := r.conns.Load(connID)
	if !ok {
		return Subscription{}, false
	}
	c := v.(*connTopics)

	c.mu.Lock()
	defer c.mu.Unlock()

	topics := make([]domain.Topic, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	slices.SortFunc(topics, func(a, b domain.Topic) int { return cmp.Compare(a, b) })
	return Subscription{ConnID: connID, Topics: topics, CreatedAt: c.createdAt}, true
}

// Count returns the number of registered connections and the total number
// of topic subscriptions they hold.
func (r *Registry) Count() (connections, subscriptions int) {
	r.conns.Range(func(_, v any) bool {
		c := v.(*connTopics)
		c.mu.Lock()
		subscriptions += len(c.topics)
		c.mu.Unlock()
		connections++
		return true
	})
	return connections, subscriptions
}
