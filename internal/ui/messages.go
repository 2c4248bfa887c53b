package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ngmaloney/dive-relay/internal/watch"
)

// Feed is the observer side of the watch channel
type Feed interface {
	ReceiveEnvelope(ctx context.Context) (watch.Envelope, error)
	Close() error
}

// Dialer opens a Feed
type Dialer func(ctx context.Context) (Feed, error)

// ObserverDialer connects to a relay endpoint such as ws://localhost:8080/watch as an observer
func ObserverDialer(endpoint string) Dialer {
	return func(ctx context.Context) (Feed, error) {
		return watch.Dial(ctx, endpoint, watch.RoleObserver, "monitor")
	}
}

// Message types for async operations

// connectedMsg is sent when the feed is open
type connectedMsg struct {
	feed Feed
}

// envelopeMsg carries one observed message
type envelopeMsg struct {
	env watch.Envelope
}

// feedClosedMsg is sent when the feed stops delivering
type feedClosedMsg struct {
	err error
}

// errMsg is a message type for errors
type errMsg struct {
	err error
}

// connect dials the relay in the background
func connect(dial Dialer) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		feed, err := dial(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return connectedMsg{feed: feed}
	}
}

// waitForEnvelope blocks until the next envelope arrives
func waitForEnvelope(feed Feed) tea.Cmd {
	return func() tea.Msg {
		env, err := feed.ReceiveEnvelope(context.Background())
		if err != nil {
			return feedClosedMsg{err: err}
		}
		return envelopeMsg{env: env}
	}
}
