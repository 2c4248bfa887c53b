package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/ngmaloney/dive-relay/internal/watch"
)

// maxTraffic is the number of envelopes kept in the list
const maxTraffic = 200

// envelopeItem wraps an Envelope for use in a list
type envelopeItem struct {
	env watch.Envelope
}

// FilterValue implements list.Item
func (e envelopeItem) FilterValue() string {
	return e.env.Path + " " + e.env.Data
}

// Title implements list.DefaultItem
func (e envelopeItem) Title() string {
	marker := inboundStyle.Render("◀ in ")
	if e.env.Direction == watch.Outbound {
		marker = outboundStyle.Render("▶ out")
	}
	return fmt.Sprintf("%s %s  %s", e.env.At.Format("15:04:05"), marker, e.env.Path)
}

// Description implements list.DefaultItem
func (e envelopeItem) Description() string {
	data := truncate(e.env.Data, 80)
	if e.env.Direction == watch.Outbound {
		return fmt.Sprintf("%d watch(es) · %s", e.env.Delivered, data)
	}
	return fmt.Sprintf("node %s · %s", shortID(e.env.NodeID), data)
}

// createTrafficList creates an empty traffic list
func createTrafficList(width, height int) list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), width, height)
	l.Title = "Watch Traffic"
	l.SetShowHelp(false)
	l.SetFilteringEnabled(true)
	return l
}

// prependEnvelope adds env at the top and drops the oldest entries past maxTraffic
func prependEnvelope(l *list.Model, env watch.Envelope) {
	l.InsertItem(0, envelopeItem{env: env})
	for len(l.Items()) > maxTraffic {
		l.RemoveItem(len(l.Items()) - 1)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
