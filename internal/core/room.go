package core

// roomSet is the live subscriber set for one room name. It is independent of
// the persisted membership record: membership gates entry, the set tracks who
// is actually connected and subscribed. All methods are called under the
// hub's lock.
type roomSet struct {
	name    string
	clients map[*Client]struct{}
}

func newRoomSet(name string) *roomSet {
	return &roomSet{
		name:    name,
		clients: make(map[*Client]struct{}),
	}
}

// add inserts a client. Returns true if newly added; re-subscribing is a no-op.
func (r *roomSet) add(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// remove deletes a client. Returns true if removed; removing a non-subscriber
// is a no-op.
func (r *roomSet) remove(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// broadcast fans an event out to every subscribed connection.
func (r *roomSet) broadcast(ev *Event) {
	for client := range r.clients {
		client.send(ev)
	}
}

// broadcastExcept fans an event out to every subscriber but the sender.
func (r *roomSet) broadcastExcept(sender *Client, ev *Event) {
	for client := range r.clients {
		if client != sender {
			client.send(ev)
		}
	}
}

func (r *roomSet) empty() bool {
	return len(r.clients) == 0
}
