/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package game

import (
	"crypto/rand"
	"time"
)

// Room codes are short enough to read out loud and type on a phone.
// The alphabet drops I and O (and all digits) to avoid 1/l/0 mixups;
// 24^4 codes is plenty for rooms that live minutes.
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	codeLength   = 4
)

// Registry owns the mapping from room code to Room and the deferred
// deletion of empty rooms. Like Room, it is caller-serialized: the
// composition root wraps every call, including the expiry hook fired
// by cleanup timers, in its own mutex.
type Registry struct {
	rooms       map[string]*Room
	grace       time.Duration
	promptLimit int
	expire      func(code string)
}

func NewRegistry(grace time.Duration, promptLimit int) *Registry {
	return &Registry{
		rooms:       make(map[string]*Room),
		grace:       grace,
		promptLimit: promptLimit,
	}
}

// OnExpire sets the hook invoked from a cleanup timer goroutine when a
// room's grace period runs out. The hook is responsible for
// re-entering the owner's critical section and calling DeleteIfEmpty.
// When unset, DeleteIfEmpty is called directly (tests).
func (reg *Registry) OnExpire(fn func(code string)) {
	reg.expire = fn
}

// CreateRoom generates a fresh unused code and inserts an empty room.
// Cleanup is armed immediately: a room nobody ever joins (a crawler
// hitting the create endpoint, a tab closed before the websocket
// connects) expires after the same grace period as one that emptied
// out. The first join cancels the timer.
func (reg *Registry) CreateRoom() *Room {
	for {
		code := newCode()
		if _, exists := reg.rooms[code]; exists {
			continue
		}

		room := newRoom(code, reg.promptLimit)
		reg.rooms[code] = room
		reg.ScheduleCleanup(code)

		return room
	}
}

func (reg *Registry) Get(code string) (*Room, bool) {
	room, exists := reg.rooms[code]
	return room, exists
}

func (reg *Registry) Len() int {
	return len(reg.rooms)
}

// ScheduleCleanup arms a one-shot deletion of the room after the grace
// period, replacing any timer already pending. The grace period
// tolerates page navigations that briefly drop every connection;
// deletion only happens if the room is still empty when the timer
// fires.
func (reg *Registry) ScheduleCleanup(code string) {
	room, exists := reg.rooms[code]
	if !exists {
		return
	}

	room.CancelCleanup()
	room.cleanup = time.AfterFunc(reg.grace, func() {
		if reg.expire != nil {
			reg.expire(code)
			return
		}
		reg.DeleteIfEmpty(code)
	})
}

// CancelCleanup disarms a pending deletion, typically because a player
// (re)joined within the grace period.
func (reg *Registry) CancelCleanup(code string) {
	if room, exists := reg.rooms[code]; exists {
		room.CancelCleanup()
	}
}

// DeleteIfEmpty removes the room only if it still has no players.
// Idempotent; safe to call for unknown codes.
func (reg *Registry) DeleteIfEmpty(code string) bool {
	room, exists := reg.rooms[code]
	if !exists || !room.Empty() {
		return false
	}

	room.CancelCleanup()
	delete(reg.rooms, code)

	return true
}

// Delete removes a room unconditionally.
func (reg *Registry) Delete(code string) {
	if room, exists := reg.rooms[code]; exists {
		room.CancelCleanup()
		delete(reg.rooms, code)
	}
}

func newCode() string {
	// bytes at or above the largest multiple of the alphabet size are
	// redrawn, keeping every symbol equally likely
	const limit = 256 - 256%len(codeAlphabet)

	out := make([]byte, 0, codeLength)
	buf := make([]byte, 1)
	for len(out) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		if int(buf[0]) >= limit {
			continue
		}
		out = append(out, codeAlphabet[int(buf[0])%len(codeAlphabet)])
	}

	return string(out)
}
