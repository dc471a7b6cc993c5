/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package game_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/ballpark/game"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"

// expiringRegistry routes cleanup timers back to the test goroutine so
// every registry call stays caller-serialized, the same way the server
// re-enters its own mutex from the expiry hook.
func expiringRegistry(grace time.Duration) (*game.Registry, chan string) {
	reg := game.NewRegistry(grace, 300)
	fired := make(chan string, 4)
	reg.OnExpire(func(code string) {
		fired <- code
	})

	return reg, fired
}

func awaitExpiry(t *testing.T, fired chan string) string {
	t.Helper()

	select {
	case code := <-fired:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup timer never fired")
		return ""
	}
}

func assertNoExpiry(t *testing.T, fired chan string, window time.Duration) {
	t.Helper()

	select {
	case code := <-fired:
		t.Fatalf("unexpected cleanup fire for %s", code)
	case <-time.After(window):
	}
}

func TestRegistry_CreateRoom(t *testing.T) {
	reg := newTestRegistry()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		room := reg.CreateRoom()
		code := room.Code()

		assert.Len(t, code, 4)
		for _, r := range code {
			assert.Contains(t, codeAlphabet, string(r))
		}

		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true

		got, ok := reg.Get(code)
		require.True(t, ok)
		assert.Same(t, room, got)
	}

	assert.Equal(t, 50, reg.Len())
}

func TestRegistry_GetUnknownCode(t *testing.T) {
	reg := newTestRegistry()

	room, ok := reg.Get("ZZZZ")
	assert.False(t, ok)
	assert.Nil(t, room)
}

func TestRegistry_NeverJoinedRoomExpires(t *testing.T) {
	reg, fired := expiringRegistry(25 * time.Millisecond)
	room := reg.CreateRoom()
	code := room.Code()

	// nobody ever joins; creation alone armed the cleanup timer
	assert.Equal(t, code, awaitExpiry(t, fired))
	assert.True(t, reg.DeleteIfEmpty(code))

	_, ok := reg.Get(code)
	assert.False(t, ok)
}

func TestRegistry_CleanupDeletesEmptyRoom(t *testing.T) {
	reg, fired := expiringRegistry(25 * time.Millisecond)
	room := reg.CreateRoom()
	code := room.Code()

	require.NoError(t, room.Join("c1", "alice", false))
	reg.CancelCleanup(code)
	require.True(t, room.Leave("c1"))

	reg.ScheduleCleanup(code)

	// deletion is deferred, not immediate
	_, ok := reg.Get(code)
	assert.True(t, ok)

	assert.Equal(t, code, awaitExpiry(t, fired))
	assert.True(t, reg.DeleteIfEmpty(code))

	_, ok = reg.Get(code)
	assert.False(t, ok)
}

func TestRegistry_RejoinCancelsCleanup(t *testing.T) {
	reg, fired := expiringRegistry(25 * time.Millisecond)
	room := reg.CreateRoom()
	code := room.Code()

	require.NoError(t, room.Join("c1", "alice", false))
	reg.CancelCleanup(code)

	ids := map[string]string{"alice": "c1"}
	startGuessing(t, room, "c1", ids, game.Answer{Value: 3})
	require.NoError(t, room.Guess("c1", 3))
	require.True(t, room.Reveal("c1"))

	require.True(t, room.Leave("c1"))
	reg.ScheduleCleanup(code)

	// a new connection joins within the grace period
	require.NoError(t, room.Join("c2", "alice", false))
	reg.CancelCleanup(code)

	assertNoExpiry(t, fired, 100*time.Millisecond)

	got, ok := reg.Get(code)
	require.True(t, ok, "room should survive a rejoin within the grace period")

	// the prior scoreboard is intact, with the old entry marked gone
	rows := got.Leaderboard()
	require.Len(t, rows, 2)
	assert.Equal(t, game.ScoreRow{Name: "(left)", Score: 1}, rows[0])
	assert.Equal(t, game.ScoreRow{Name: "alice", Score: 0}, rows[1])
}

func TestRegistry_CleanupSparesOccupiedRoom(t *testing.T) {
	reg, fired := expiringRegistry(25 * time.Millisecond)
	room := reg.CreateRoom()
	code := room.Code()

	reg.ScheduleCleanup(code)

	// the timer stays armed, but the room is occupied again at fire time
	require.NoError(t, room.Join("c1", "alice", false))

	awaitExpiry(t, fired)
	assert.False(t, reg.DeleteIfEmpty(code))

	_, ok := reg.Get(code)
	assert.True(t, ok)
}

func TestRegistry_ReschedulingReplacesTimer(t *testing.T) {
	reg, fired := expiringRegistry(75 * time.Millisecond)
	room := reg.CreateRoom()
	code := room.Code()

	reg.ScheduleCleanup(code)
	time.Sleep(25 * time.Millisecond)
	reg.ScheduleCleanup(code)

	start := time.Now()
	awaitExpiry(t, fired)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond,
		"rescheduling should restart the grace period")

	// the replaced timer must not fire a second time
	assertNoExpiry(t, fired, 150*time.Millisecond)
}

func TestRegistry_CancelCleanupIsIdempotent(t *testing.T) {
	reg, fired := expiringRegistry(25 * time.Millisecond)
	room := reg.CreateRoom()
	code := room.Code()

	reg.ScheduleCleanup(code)
	reg.CancelCleanup(code)
	reg.CancelCleanup(code)
	room.CancelCleanup()

	assertNoExpiry(t, fired, 100*time.Millisecond)

	// cancel after fire is also safe
	reg.ScheduleCleanup(code)
	awaitExpiry(t, fired)
	reg.CancelCleanup(code)

	assert.True(t, reg.DeleteIfEmpty(code))
}

func TestRegistry_DeleteIfEmpty(t *testing.T) {
	reg := newTestRegistry()
	room := reg.CreateRoom()
	code := room.Code()

	require.NoError(t, room.Join("c1", "alice", false))
	assert.False(t, reg.DeleteIfEmpty(code))

	room.Leave("c1")
	assert.True(t, reg.DeleteIfEmpty(code))
	assert.False(t, reg.DeleteIfEmpty(code))
}

func TestCodeGenerationCoversAlphabet(t *testing.T) {
	reg := newTestRegistry()

	seen := make(map[rune]bool)
	for i := 0; i < 500; i++ {
		for _, r := range reg.CreateRoom().Code() {
			seen[r] = true
		}
	}

	for _, r := range codeAlphabet {
		assert.True(t, seen[r], "symbol %c never generated", r)
	}
}

func TestCodeAlphabetExcludesConfusables(t *testing.T) {
	for _, c := range "IO01l" {
		assert.False(t, strings.ContainsRune(codeAlphabet, c))
	}
}
