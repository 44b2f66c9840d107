package core

import (
	"sort"
	"strings"
)

// presenceEntry tracks one online user across all of their simultaneous
// connections. An entry exists iff count > 0; the display name is resolved
// once and stays stable for every connection of the user.
type presenceEntry struct {
	RosterEntry
	count int
}

// rosterLocked returns the deduplicated online list ordered by user ID.
// Caller must hold the hub lock.
func (h *Hub) rosterLocked() []RosterEntry {
	roster := make([]RosterEntry, 0, len(h.presence))
	for _, entry := range h.presence {
		roster = append(roster, entry.RosterEntry)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].UserID < roster[j].UserID })
	return roster
}

// broadcastRosterLocked pushes the current roster to every connected client.
// Holding the lock across the (non-blocking) sends keeps roster broadcasts in
// the order presence changes were applied.
func (h *Hub) broadcastRosterLocked() {
	ev := &Event{Kind: EventOnlineUsers, Roster: h.rosterLocked()}
	for client := range h.clients {
		client.send(ev)
	}
}

// DeriveDisplayName builds a friendly display name from a username: the part
// before any "@" with punctuation turned into spaces and each word
// capitalized. Used when neither the token claim nor the user directory
// provides a name.
func DeriveDisplayName(username string) string {
	local := username
	if at := strings.IndexByte(local, '@'); at > 0 {
		local = local[:at]
	}
	local = strings.Map(func(r rune) rune {
		switch r {
		case '.', '-', '_':
			return ' '
		}
		return r
	}, local)

	words := strings.Fields(local)
	for i, word := range words {
		r := []rune(word)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	if len(words) == 0 {
		return username
	}
	return strings.Join(words, " ")
}
