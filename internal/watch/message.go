// Package watch is the WebSocket channel between the relay and paired watches
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNoWatch is returned by Send when no watch received the message because none is connected
var ErrNoWatch = errors.New("watch: no connected watch")

// Message is one path-addressed message. Data carries the payload text, usually JSON.
type Message struct {
	Path string `json:"path"`
	Data string `json:"data"`
}

// Role distinguishes watches from operator tools listening in
type Role string

const (
	RoleWatch    Role = "watch"
	RoleObserver Role = "observer"
)

// Direction of a message relative to the relay
type Direction string

const (
	Inbound  Direction = "in"
	Outbound Direction = "out"
)

// Envelope is what observers receive: a copy of a message with its route
type Envelope struct {
	Direction Direction `json:"direction"`
	NodeID    string    `json:"node_id,omitempty"`
	Path      string    `json:"path"`
	Data      string    `json:"data"`
	At        time.Time `json:"at"`
	// Delivered is the number of watches that accepted an outbound message
	Delivered int `json:"delivered"`
}

// NodeInfo describes a connected peer
type NodeInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Role        Role      `json:"role"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Sender delivers a message to every connected watch and returns how many accepted it
type Sender interface {
	Send(ctx context.Context, path string, data []byte) (int, error)
}

// Handler receives watch traffic
type Handler interface {
	NodeConnected(ctx context.Context, node NodeInfo)
	HandleMessage(ctx context.Context, node NodeInfo, msg Message)
}

// SendJSON marshals v and sends it on path
func SendJSON(ctx context.Context, s Sender, path string, v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encoding %s payload: %w", path, err)
	}
	return s.Send(ctx, path, data)
}
