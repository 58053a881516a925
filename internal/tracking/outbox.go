package tracking

import (
	"sync"
	"time"

	"transit-tracking-service/internal/domain"
)

type DeliveryKind string

const (
	DeliveryEvent    DeliveryKind = "event"
	DeliverySnapshot DeliveryKind = "snapshot"
	DeliveryResync   DeliveryKind = "resync"
	DeliveryError    DeliveryKind = "error"
)

// Delivery is one outbound message queued for a connection.
// Event points at a ChangeEvent shared by every recipient and must not be modified.
type Delivery struct {
	Seq      uint64
	Kind     DeliveryKind
	Event    *domain.ChangeEvent
	Snapshot []ActiveVehicle
	Dropped  uint64
	Message  string
	At       time.Time
}

// Outbox is the bounded outbound queue of a single connection.
//
// Enqueue never blocks: when the ring is full the oldest message is dropped.
// Sequence numbers are assigned at enqueue time so that drops show up as gaps.
type Outbox struct {
	mu          sync.Mutex
	items       []Delivery
	head        int // next read position
	size        int
	seq         uint64
	dropped     uint64 // since last drain
	totalDrops  uint64
	lastDropped uint64
	closed      bool
	ready       chan struct{}
}

func NewOutbox(capacity int) *Outbox {
	if capacity <= 0 {
		capacity = 1
	}
	return &Outbox{
		items: make([]Delivery, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Enqueue assigns the next sequence number and queues d. It returns
// domain.ErrBackpressureDrop when an older message had to be discarded and
// domain.ErrConnectionClosed after Close.
func (o *Outbox) Enqueue(d Delivery) error {
	o.mu.Lock()

	if o.closed {
		o.mu.Unlock()
		return domain.ErrConnectionClosed
	}

	var err error
	capacity := len(o.items)
	if o.size == capacity {
		oldest := o.items[o.head]
		o.items[o.head] = Delivery{}
		o.head = (o.head + 1) % capacity
		o.size--
		o.dropped++
		o.totalDrops++
		o.lastDropped = oldest.Seq
		err = domain.ErrBackpressureDrop
	}

	o.seq++
	d.Seq = o.seq
	if d.At.IsZero() {
		d.At = time.Now().UTC()
	}
	o.items[(o.head+o.size)%capacity] = d
	o.size++
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
	}
	return err
}

// Ready is signalled after Enqueue; the receiver should call Drain.
func (o *Outbox) Ready() <-chan struct{} { return o.ready }

// Drain removes and returns every queued message in FIFO order. When
// messages were dropped since the previous drain, a resync notice comes
// first. It reuses the sequence number of the newest dropped message and
// carries the drop count, keeping sequence numbers increasing.
func (o *Outbox) Drain() []Delivery {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.size == 0 && o.dropped == 0 {
		return nil
	}

	out := make([]Delivery, 0, o.size+1)
	if o.dropped > 0 {
		out = append(out, Delivery{
			Seq:     o.lastDropped,
			Kind:    DeliveryResync,
			Dropped: o.dropped,
			At:      time.Now().UTC(),
		})
		o.dropped = 0
	}

	capacity := len(o.items)
	for o.size > 0 {
		out = append(out, o.items[o.head])
		o.items[o.head] = Delivery{}
		o.head = (o.head + 1) % capacity
		o.size--
	}
	return out
}

func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.size
}

// Drops returns the number of messages dropped over the outbox lifetime.
func (o *Outbox) Drops() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.totalDrops
}

// Close discards everything queued and rejects further messages.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.closed = true
	clear(o.items)
	o.size = 0
	o.dropped = 0
}
