package eventbus

import (
	"sync"

	evbus "github.com/asaskevich/EventBus"
)

// Topic names published on the bus.
const (
	TopicSecurityEvent = "security.event"
	TopicTamper        = "security.tamper"
	TopicRateLimit     = "security.rate_limit"
)

// Bus wraps EventBus with a worker pool so publishers never block on slow
// subscribers. Constructed once at startup and injected where needed.
type Bus struct {
	bus      evbus.Bus
	workChan chan publication
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type publication struct {
	topic string
	args  []interface{}
}

// New creates a bus with the given number of delivery workers.
func New(workerNum int) *Bus {
	if workerNum <= 0 {
		workerNum = 4
	}

	b := &Bus{
		bus:      evbus.New(),
		workChan: make(chan publication, 1000),
		stopChan: make(chan struct{}),
	}
	for i := 0; i < workerNum; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopChan:
			return
		case p := <-b.workChan:
			func() {
				defer func() {
					// a panicking subscriber must not take the worker down
					_ = recover()
				}()
				b.bus.Publish(p.topic, p.args...)
			}()
		}
	}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic string, fn interface{}) error {
	return b.bus.Subscribe(topic, fn)
}

// Unsubscribe removes a handler from a topic.
func (b *Bus) Unsubscribe(topic string, fn interface{}) error {
	return b.bus.Unsubscribe(topic, fn)
}

// Publish delivers asynchronously through the worker pool. When the queue is
// full the publication is dropped rather than blocking the caller.
func (b *Bus) Publish(topic string, args ...interface{}) {
	select {
	case b.workChan <- publication{topic: topic, args: args}:
	default:
	}
}

// PublishSync delivers on the caller's goroutine.
func (b *Bus) PublishSync(topic string, args ...interface{}) {
	b.bus.Publish(topic, args...)
}

// Close stops the delivery workers.
func (b *Bus) Close() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
	})
	b.wg.Wait()
}
