package websocket

import (
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClientClosed is returned when attempting to send to a closed client
var ErrClientClosed = errors.New("client is closed")

// ClientInterface defines the interface that clients must implement
type ClientInterface interface {
	ID() string
	OwnerAddress() string
	Send(data []byte) error
	Close() error
}

// Hub manages WebSocket connections organized by owner wallet address.
// It is safe for concurrent use
type Hub struct {
	// owners maps lowercased wallet address to a map of client ID to client
	owners map[string]map[string]ClientInterface
	mu     sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		owners: make(map[string]map[string]ClientInterface),
	}
}

// Register adds a client to the hub under its owner address
func (h *Hub) Register(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	owner := strings.ToLower(client.OwnerAddress())
	clientID := client.ID()

	if h.owners[owner] == nil {
		h.owners[owner] = make(map[string]ClientInterface)
	}

	h.owners[owner][clientID] = client

	log.Debug().
		Str("owner", owner).
		Str("client_id", clientID).
		Msg("WebSocket client registered")
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	defer h.mu.Unlock()

	owner := strings.ToLower(client.OwnerAddress())
	clientID := client.ID()

	if clients, ok := h.owners[owner]; ok {
		if _, exists := clients[clientID]; exists {
			delete(clients, clientID)

			// Clean up empty owner maps
			if len(clients) == 0 {
				delete(h.owners, owner)
			}

			log.Debug().
				Str("owner", owner).
				Str("client_id", clientID).
				Msg("WebSocket client unregistered")
		}
	}
}

// Broadcast sends an event to all clients of a specific owner
func (h *Hub) Broadcast(ownerAddress string, event Event) {
	data, err := event.ToJSON()
	if err != nil {
		log.Error().
			Err(err).
			Str("owner", ownerAddress).
			Str("event_type", event.Type).
			Msg("Failed to serialize event")
		return
	}

	owner := strings.ToLower(ownerAddress)

	h.mu.RLock()
	clients, ok := h.owners[owner]
	if !ok || len(clients) == 0 {
		h.mu.RUnlock()
		return
	}

	// Copy clients to avoid holding lock during send
	clientsCopy := make([]ClientInterface, 0, len(clients))
	for _, client := range clients {
		clientsCopy = append(clientsCopy, client)
	}
	h.mu.RUnlock()

	// Send to each client asynchronously
	for _, client := range clientsCopy {
		go func(c ClientInterface) {
			if err := c.Send(data); err != nil {
				log.Warn().
					Err(err).
					Str("owner", owner).
					Str("client_id", c.ID()).
					Msg("Failed to send to client")
			}
		}(client)
	}

	log.Debug().
		Str("owner", owner).
		Str("event_type", event.Type).
		Int("client_count", len(clientsCopy)).
		Msg("Broadcast event")
}

// ClientCount returns the number of clients connected for an owner
func (h *Hub) ClientCount(ownerAddress string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if clients, ok := h.owners[strings.ToLower(ownerAddress)]; ok {
		return len(clients)
	}
	return 0
}

// TotalClientCount returns the total number of connected clients across all owners
func (h *Hub) TotalClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.owners {
		total += len(clients)
	}
	return total
}
