package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/liveness-backend/internal/liveness"
	"github.com/eleven-am/liveness-backend/internal/transport"
	"github.com/redis/go-redis/v9"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySubs     = errors.New("too many event subscriptions")
)

const (
	sessionEventChannel = "liveness:session:%s:events"
	sessionOwnerKey     = "liveness:session:%s:owner"
	sessionLastKey      = "liveness:session:%s:last"

	sessionKeyTTL  = 30 * time.Minute
	maxSessionSubs = 10000
	subBufferSize  = 64
)

// PublishedEvent is a session event as it travels through Redis. Data holds
// the full JSON encoded transport.ServerEvent.
type PublishedEvent struct {
	Type string
	Data []byte
}

// Terminal reports whether no further events follow for the session.
func (e PublishedEvent) Terminal() bool {
	return e.Type == string(liveness.EventFinish) || e.Type == string(liveness.EventError)
}

// Publisher fans session events out over Redis pub/sub so that observers on
// any instance can follow a session.
type Publisher struct {
	redis  *redis.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPublisher(redisClient *redis.Client, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Publisher{
		redis:  redisClient,
		logger: logger.With("component", "publisher"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Claim records which client owns a session so observers can be authorized.
func (p *Publisher) Claim(ctx context.Context, sessionID, clientID string) error {
	key := fmt.Sprintf(sessionOwnerKey, sessionID)
	if err := p.redis.Set(ctx, key, clientID, sessionKeyTTL).Err(); err != nil {
		return fmt.Errorf("claim session: %w", err)
	}
	return nil
}

func (p *Publisher) Owner(ctx context.Context, sessionID string) (string, error) {
	owner, err := p.redis.Get(ctx, fmt.Sprintf(sessionOwnerKey, sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get session owner: %w", err)
	}
	return owner, nil
}

func (p *Publisher) Publish(ctx context.Context, event transport.ServerEvent) error {
	if event.SessionID == "" {
		return fmt.Errorf("publish %s: missing session id", event.Type)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := p.redis.TxPipeline()
	pipe.Publish(ctx, fmt.Sprintf(sessionEventChannel, event.SessionID), data)
	if (PublishedEvent{Type: event.Type}).Terminal() {
		pipe.Set(ctx, fmt.Sprintf(sessionLastKey, event.SessionID), data, sessionKeyTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	p.logger.Debug("published event", "session_id", event.SessionID, "type", event.Type)
	return nil
}

// Last returns the terminal event of a finished session, if any.
func (p *Publisher) Last(ctx context.Context, sessionID string) (*PublishedEvent, error) {
	data, err := p.redis.Get(ctx, fmt.Sprintf(sessionLastKey, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get last event: %w", err)
	}
	ev, err := decodePublished(data)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

type EventSubscription struct {
	events <-chan PublishedEvent
	cancel context.CancelFunc
}

func (s *EventSubscription) Events() <-chan PublishedEvent {
	return s.events
}

func (s *EventSubscription) Close() {
	s.cancel()
}

// Subscribe follows a session's events. The subscription is ready to receive
// when Subscribe returns; its channel closes after Close or publisher shutdown.
func (p *Publisher) Subscribe(ctx context.Context, sessionID string) (*EventSubscription, error) {
	p.mu.Lock()
	if p.subs >= maxSessionSubs {
		p.mu.Unlock()
		return nil, ErrTooManySubs
	}
	p.subs++
	p.mu.Unlock()

	subCtx, cancel := context.WithCancel(p.ctx)
	stop := context.AfterFunc(ctx, cancel)

	pubsub := p.redis.Subscribe(subCtx, fmt.Sprintf(sessionEventChannel, sessionID))
	if _, err := pubsub.Receive(subCtx); err != nil {
		stop()
		cancel()
		_ = pubsub.Close()
		p.release()
		return nil, fmt.Errorf("subscribe session events: %w", err)
	}

	events := make(chan PublishedEvent, subBufferSize)

	// ReceiveMessage does not return on cancellation; closing the pubsub
	// unblocks it.
	unblock := context.AfterFunc(subCtx, func() { _ = pubsub.Close() })

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.release()
		defer close(events)
		defer pubsub.Close()
		defer unblock()
		defer stop()

		p.receive(subCtx, pubsub, sessionID, events)
	}()

	return &EventSubscription{events: events, cancel: cancel}, nil
}

func (p *Publisher) receive(ctx context.Context, pubsub *redis.PubSub, sessionID string, out chan<- PublishedEvent) {
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("receive session event", "error", err, "session_id", sessionID)
			}
			return
		}

		ev, err := decodePublished([]byte(msg.Payload))
		if err != nil {
			p.logger.Error("decode session event", "error", err, "session_id", sessionID)
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return
		default:
			p.logger.Warn("subscriber buffer full, dropping event", "session_id", sessionID, "type", ev.Type)
		}
	}
}

func (p *Publisher) release() {
	p.mu.Lock()
	p.subs--
	p.mu.Unlock()
}

func (p *Publisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subs
}

func (p *Publisher) Close() error {
	p.cancel()
	p.wg.Wait()
	return nil
}

func decodePublished(data []byte) (PublishedEvent, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return PublishedEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return PublishedEvent{Type: head.Type, Data: data}, nil
}
