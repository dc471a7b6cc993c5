/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

// Ballpark room state.
//
// Each room holds the authoritative state for one game session: the
// player roster in join order, the current host, the cumulative
// scoreboard, and the round phase machine. Rooms are not safe for
// concurrent use; the caller serializes all access (the websocket
// layer holds a single server-wide mutex, matching the one-event-at-a-
// time model the game was designed around).

package game

import (
	"strings"
	"time"
)

// Player is a roster entry. Identity is the ephemeral connection id;
// a reconnect produces a new id and therefore a new player.
type Player struct {
	ID   string
	Name string
}

type Room struct {
	code        string
	players     map[string]*Player
	order       []string // join order, drives host failover
	hostID      string
	scores      map[string]int // survives leave() and lobby resets
	round       roundState
	seq         uint64 // bumped whenever the round is replaced wholesale
	promptLimit int
	cleanup     *time.Timer
}

func newRoom(code string, promptLimit int) *Room {
	r := &Room{
		code:        code,
		players:     make(map[string]*Player),
		scores:      make(map[string]int),
		promptLimit: promptLimit,
	}
	r.resetRound(PhaseIdle)
	return r
}

func (r *Room) Code() string {
	return r.code
}

func (r *Room) HostID() string {
	return r.hostID
}

func (r *Room) Empty() bool {
	return len(r.players) == 0
}

func (r *Room) PlayerCount() int {
	return len(r.players)
}

// Join registers a player under the given connection id. The first
// player to join becomes host; a later caller that explicitly requests
// host status takes the role over, which lets a recreated host tab
// reclaim its room.
func (r *Room) Join(id, name string, hostRequested bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}

	if _, exists := r.players[id]; !exists {
		r.order = append(r.order, id)
	}
	r.players[id] = &Player{ID: id, Name: name}

	if _, exists := r.scores[id]; !exists {
		r.scores[id] = 0
	}

	if r.hostID == "" || hostRequested {
		r.hostID = id
	}

	return nil
}

// Leave removes a player and reports whether the roster is now empty,
// in which case the caller schedules deferred cleanup. A departing
// host hands the role to the oldest surviving player; a departing
// chooser forfeits the pending prompt but any guessing already in
// progress continues.
func (r *Room) Leave(id string) bool {
	if _, exists := r.players[id]; !exists {
		return len(r.players) == 0
	}

	delete(r.players, id)
	for i, pid := range r.order {
		if pid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	if r.hostID == id {
		if len(r.order) > 0 {
			r.hostID = r.order[0]
		} else {
			r.hostID = ""
		}
	}

	if r.round.turnID == id {
		r.round.turnID = ""
		r.round.accepting = false
	}

	return len(r.players) == 0
}

// CancelCleanup stops any pending deferred deletion. Safe to call
// repeatedly and after the timer has fired.
func (r *Room) CancelCleanup() {
	if r.cleanup != nil {
		r.cleanup.Stop()
		r.cleanup = nil
	}
}

func (r *Room) nameFor(id string) string {
	if p, exists := r.players[id]; exists {
		return p.Name
	}
	return "(left)"
}
