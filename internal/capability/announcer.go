// Package capability advertises loqa-ttsd workers on the bus so front-ends
// can find a model host before building against it.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/nats-io/nats.go"
)

const (
	SubjectAnnounce  = "ctrl.tts.announce"
	SubjectDiscover  = "ctrl.tts.discover"
	subjectHeartbeat = "ctrl.tts.heartbeat."
)

// WorkerInfo describes one model host.
type WorkerInfo struct {
	ID        string    `json:"id"`
	Runtime   string    `json:"runtime"`
	Backend   string    `json:"backend"`
	Device    string    `json:"device"`
	Language  string    `json:"language,omitempty"`
	Models    int       `json:"models"`
	Timestamp time.Time `json:"timestamp"`
}

// Announcer publishes the local worker's presence: once at start, on a
// heartbeat, and in answer to discovery requests.
type Announcer struct {
	info     WorkerInfo
	models   func() int
	bus      *bus.Client
	interval time.Duration
	log      *slog.Logger

	mu     sync.Mutex
	sub    *nats.Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAnnouncer assigns the worker a fresh ID. models reports the current
// number of loaded models and may be nil.
func NewAnnouncer(info WorkerInfo, models func() int, busClient *bus.Client, interval time.Duration, log *slog.Logger) *Announcer {
	info.ID = uuid.NewString()
	if models == nil {
		models = func() int { return 0 }
	}
	return &Announcer{
		info:     info,
		models:   models,
		bus:      busClient,
		interval: interval,
		log:      log.With(slog.String("component", "capability-announcer"), slog.String("worker_id", info.ID)),
	}
}

func (a *Announcer) ID() string { return a.info.ID }

func (a *Announcer) Start(ctx context.Context) error {
	sub, err := a.bus.Conn().Subscribe(SubjectDiscover, a.handleDiscover)
	if err != nil {
		return fmt.Errorf("subscribe discover: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.sub = sub
	a.cancel = cancel
	a.done = make(chan struct{})
	a.mu.Unlock()

	if err := a.publish(SubjectAnnounce); err != nil {
		a.log.Warn("failed to announce worker", slog.String("error", err.Error()))
	}
	go a.runHeartbeat(ctx)
	return nil
}

func (a *Announcer) Close() {
	a.mu.Lock()
	sub, cancel, done := a.sub, a.cancel, a.done
	a.sub, a.cancel = nil, nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if sub != nil {
		_ = sub.Drain()
	}
}

func (a *Announcer) runHeartbeat(ctx context.Context) {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.publish(subjectHeartbeat + a.info.ID); err != nil {
				a.log.Warn("failed to publish heartbeat", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Announcer) snapshot() WorkerInfo {
	info := a.info
	info.Models = a.models()
	info.Timestamp = time.Now().UTC()
	return info
}

func (a *Announcer) publish(subject string) error {
	payload, err := json.Marshal(a.snapshot())
	if err != nil {
		return err
	}
	return a.bus.Conn().Publish(subject, payload)
}

func (a *Announcer) handleDiscover(msg *nats.Msg) {
	if msg.Reply == "" {
		return
	}
	payload, err := json.Marshal(a.snapshot())
	if err != nil {
		a.log.Warn("failed to marshal worker info", slog.String("error", err.Error()))
		return
	}
	if err := msg.Respond(payload); err != nil {
		a.log.Warn("failed to answer discovery", slog.String("error", err.Error()))
	}
}

// Discover asks every worker on the bus to identify itself and collects the
// answers that arrive within wait. Results are sorted by ID.
func Discover(ctx context.Context, conn *nats.Conn, wait time.Duration) ([]WorkerInfo, error) {
	inbox := nats.NewInbox()
	sub, err := conn.SubscribeSync(inbox)
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := conn.PublishRequest(SubjectDiscover, inbox, nil); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	seen := map[string]WorkerInfo{}
	for {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			break
		}
		var info WorkerInfo
		if err := json.Unmarshal(msg.Data, &info); err != nil || info.ID == "" {
			continue
		}
		seen[info.ID] = info
	}

	workers := make([]WorkerInfo, 0, len(seen))
	for _, info := range seen {
		workers = append(workers, info)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })
	return workers, nil
}
