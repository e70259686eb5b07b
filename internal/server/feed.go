package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bjarke-xyz/appstore-api/internal/domain"
	"github.com/bjarke-xyz/appstore-api/internal/metrics"
	"github.com/gorilla/websocket"
)

const (
	notifierBuffer = 64
	clientBuffer   = 16
)

// Feed fans store mutation events out to websocket clients. It implements
// domain.EventPublisher; Listen must be running for events to be delivered.
type Feed struct {
	logger *slog.Logger

	// Events are pushed to this channel by the record store
	notifier chan domain.Event

	// New client connections
	newClients chan *feedClient

	// Closed client connections
	closingClients chan *feedClient

	// Client connections registry, owned by Listen
	clients map[*feedClient]bool

	done chan struct{}
}

type feedClient struct {
	// collection restricts delivery to one collection; empty means all.
	collection string
	send       chan []byte
}

func NewFeed(logger *slog.Logger) *Feed {
	return &Feed{
		logger:         logger,
		notifier:       make(chan domain.Event, notifierBuffer),
		newClients:     make(chan *feedClient),
		closingClients: make(chan *feedClient),
		clients:        make(map[*feedClient]bool),
		done:           make(chan struct{}),
	}
}

// Publish never blocks the caller; when the broker is behind the event is dropped.
func (f *Feed) Publish(ev domain.Event) {
	select {
	case f.notifier <- ev:
	default:
		metrics.FeedEventDropped()
		f.logger.Warn("feed notifier full, dropping event", "collection", ev.Collection, "op", ev.Op, "id", ev.ID)
	}
}

// Listen runs the broker until ctx is done, then closes every client channel.
func (f *Feed) Listen(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case <-ctx.Done():
			for c := range f.clients {
				f.remove(c)
			}
			return
		case c := <-f.newClients:
			f.clients[c] = true
			metrics.FeedClientConnected()
			f.logger.Info("feed client added", "clients", len(f.clients), "collection", c.collection)
		case c := <-f.closingClients:
			if f.clients[c] {
				f.remove(c)
				f.logger.Info("feed client removed", "clients", len(f.clients))
			}
		case ev := <-f.notifier:
			payload, err := json.Marshal(ev)
			if err != nil {
				f.logger.Error("failed to encode feed event", "error", err)
				continue
			}
			for c := range f.clients {
				if c.collection != "" && c.collection != ev.Collection {
					continue
				}
				select {
				case c.send <- payload:
				default:
					metrics.FeedEventDropped()
				}
			}
		}
	}
}

func (f *Feed) remove(c *feedClient) {
	delete(f.clients, c)
	close(c.send)
	metrics.FeedClientDisconnected()
}

func (f *Feed) subscribe(ctx context.Context, collection string) (*feedClient, bool) {
	c := &feedClient{collection: collection, send: make(chan []byte, clientBuffer)}
	select {
	case f.newClients <- c:
		return c, true
	case <-f.done:
	case <-ctx.Done():
	}
	return nil, false
}

func (f *Feed) unsubscribe(c *feedClient) {
	select {
	case f.closingClients <- c:
	case <-f.done:
	}
}

const (
	readBuffSize  = 2 << 10
	writeBuffSize = 2 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  readBuffSize,
	WriteBufferSize: writeBuffSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}
