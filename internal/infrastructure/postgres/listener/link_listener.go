// Package listener forwards PostgreSQL notifications to in-process caches.
package listener

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/lib/pq"
)

const (
	channelName       = "institution_link_removed"
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
)

// LinkRemoved is the payload published by the institution_links delete trigger.
type LinkRemoved struct {
	LinkID string `json:"link_id"`
	UserID int64  `json:"user_id"`
}

// Forgetter drops cached state for a link.
type Forgetter interface {
	Forget(linkID string)
}

// LinkListener keeps the account snapshot cache of this instance in step with
// links removed by any instance.
type LinkListener struct {
	connStr    string
	cache      Forgetter
	shutdownCh chan struct{}
	done       chan struct{}
	started    bool
}

func NewLinkListener(connStr string, cache Forgetter) *LinkListener {
	return &LinkListener{
		connStr:    connStr,
		cache:      cache,
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins listening in a background goroutine.
func (l *LinkListener) Start(ctx context.Context) {
	l.started = true
	go l.listen(ctx)
	log.Println("Link removal listener started")
}

// Stop shuts the listener down and waits for it to exit.
func (l *LinkListener) Stop() {
	if !l.started {
		return
	}
	close(l.shutdownCh)
	<-l.done
	log.Println("Link removal listener stopped")
}

func (l *LinkListener) listen(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		default:
			l.connectAndListen(ctx)
		}

		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(reconnectInterval):
			log.Println("Reconnecting to PostgreSQL for link notifications...")
		}
	}
}

func (l *LinkListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			log.Println("Connected to PostgreSQL notification channel")
		case pq.ListenerEventDisconnected:
			log.Printf("Disconnected from PostgreSQL notification channel: %v", err)
		case pq.ListenerEventReconnected:
			log.Println("Reconnected to PostgreSQL notification channel")
		case pq.ListenerEventConnectionAttemptFailed:
			log.Printf("Connection attempt failed: %v", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(channelName); err != nil {
		log.Printf("Failed to listen on channel %s: %v", channelName, err)
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				// Connection lost. pq reconnects on its own, but any
				// notification sent in between is gone.
				continue
			}
			l.handle(n.Extra)
		case <-ping.C:
			go func() {
				if err := listener.Ping(); err != nil {
					log.Printf("Listener ping failed: %v", err)
				}
			}()
		}
	}
}

func (l *LinkListener) handle(extra string) {
	var payload LinkRemoved
	if err := json.Unmarshal([]byte(extra), &payload); err != nil {
		log.Printf("Failed to parse link notification payload: %v", err)
		return
	}
	if payload.LinkID == "" {
		return
	}
	l.cache.Forget(payload.LinkID)
}
