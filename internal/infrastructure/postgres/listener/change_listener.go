package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	reconnectInterval = 5 * time.Second
	pingInterval      = 90 * time.Second
)

// Change is the payload published by the my_transactions trigger.
type Change struct {
	Op    string `json:"op"`
	ID    string `json:"id"`
	Email string `json:"email"`
}

// ChangeListener follows a PostgreSQL NOTIFY channel and hands every change
// to a callback. It reconnects until stopped.
type ChangeListener struct {
	connStr    string
	channel    string
	onChange   func(Change)
	log        logrus.FieldLogger
	shutdownCh chan struct{}
	done       chan struct{}
}

func NewChangeListener(connStr, channel string, onChange func(Change), log logrus.FieldLogger) *ChangeListener {
	return &ChangeListener{
		connStr:    connStr,
		channel:    channel,
		onChange:   onChange,
		log:        log.WithField("channel", channel),
		shutdownCh: make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start begins listening in a background goroutine.
func (l *ChangeListener) Start(ctx context.Context) {
	go l.listen(ctx)
	l.log.Info("Change listener started")
}

// Stop shuts the listener down and waits for it to exit.
func (l *ChangeListener) Stop() {
	close(l.shutdownCh)
	<-l.done
	l.log.Info("Change listener stopped")
}

func (l *ChangeListener) listen(ctx context.Context) {
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
			l.log.Info("Reconnecting to PostgreSQL for notifications")
		}
	}
}

func (l *ChangeListener) connectAndListen(ctx context.Context) {
	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			l.log.Debug("Connected to notification channel")
		case pq.ListenerEventDisconnected:
			l.log.WithError(err).Warn("Disconnected from notification channel")
		case pq.ListenerEventReconnected:
			l.log.Info("Reconnected to notification channel")
		case pq.ListenerEventConnectionAttemptFailed:
			l.log.WithError(err).Warn("Notification connection attempt failed")
		}
	})
	defer listener.Close()

	if err := listener.Listen(l.channel); err != nil {
		l.log.WithError(err).Error("Failed to listen on channel")
		return
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.shutdownCh:
			return
		case <-ctx.Done():
			return
		case n := <-listener.Notify:
			if n == nil {
				// connection lost; pq reports nil once before reconnecting
				return
			}
			l.handle(n.Extra)
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					l.log.WithError(err).Warn("Listener ping failed")
				}
			}()
		}
	}
}

func (l *ChangeListener) handle(payload string) {
	var change Change
	if err := json.Unmarshal([]byte(payload), &change); err != nil {
		l.log.WithError(err).Warn("Failed to parse notification payload")
		return
	}
	l.onChange(change)
}
