package memory

import (
	"context"
	"encoding/json"
	"sync"
)

// Message is one recorded publish.
type Message struct {
	Topic     string
	EventType string
	EventID   string
	Body      []byte
}

// Publisher records publishes instead of sending them. FailSync / FailAsync
// inject send failures so tests can drive the outbox fallback.
type Publisher struct {
	mu        sync.Mutex
	messages  []Message
	FailSync  error
	FailAsync error

	// Outbox, when set, receives payloads whose async publish failed,
	// mirroring the real adapter.
	Outbox *Outbox
}

func NewPublisher() *Publisher { return &Publisher{} }

func (p *Publisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// MessagesOn filters recorded publishes by topic.
func (p *Publisher) MessagesOn(topic string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Message
	for _, m := range p.messages {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (p *Publisher) record(m Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, m)
}

func (p *Publisher) PublishRaw(_ context.Context, topic, eventID string, body []byte) error {
	if p.FailSync != nil {
		return p.FailSync
	}
	p.record(Message{Topic: topic, EventID: eventID, Body: body})
	return nil
}

func (p *Publisher) PublishSync(ctx context.Context, topic, eventID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.PublishRaw(ctx, topic, eventID, body)
}

func (p *Publisher) PublishAsync(ctx context.Context, topic, eventType, eventID string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if p.FailAsync != nil {
		if p.Outbox != nil {
			_ = p.Outbox.Enqueue(ctx, eventID, topic, eventType, body, p.FailAsync.Error())
		}
		return
	}
	p.record(Message{Topic: topic, EventType: eventType, EventID: eventID, Body: body})
}

// Outbox records enqueued payloads.
type Outbox struct {
	mu      sync.Mutex
	entries []Message
	Err     error
}

func NewOutbox() *Outbox { return &Outbox{} }

func (o *Outbox) Enqueue(_ context.Context, eventID, topic, eventType string, payload []byte, _ string) error {
	if o.Err != nil {
		return o.Err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, Message{
		Topic: topic, EventType: eventType, EventID: eventID, Body: payload,
	})
	return nil
}

func (o *Outbox) Entries() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.entries))
	copy(out, o.entries)
	return out
}
