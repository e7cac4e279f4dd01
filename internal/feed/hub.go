package feed

// Hub owns the set of connected pages and fans broadcast frames out to all
// of them. Private frames (notifications) go straight to one client's send
// queue instead.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run drives the hub until the process ends.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				_ = client.conn.Close()
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it rather than stall the feed.
					delete(h.clients, client)
					close(client.send)
					_ = client.conn.Close()
				}
			}
		}
	}
}

// Broadcast queues a frame for every connected page.
func (h *Hub) Broadcast(frame []byte) {
	h.broadcast <- frame
}

// Register adds a connected client.
func (h *Hub) Register(c *Client) {
	h.register <- c
}
