// Ballpark
//
// Players join a short-lived room via a 4-character code. Each round,
// one player (the chooser) submits a free-text question; an external
// answer oracle derives a numeric answer for it; everyone else guesses
// the number, and the closest guess(es) score a point.
//
// Features:
// - WebSockets per room code: /play/:code and /play/:code/ws
// - Rooms created over HTTP: /play redirects to a fresh code
// - First player to join becomes host; a join may reclaim host status
// - Host starts rounds, rotates turns, reveals answers, resets to lobby
// - Host-only commands from non-hosts are silently ignored
// - Ties on closest guess all score; scores persist across rounds
// - Guess values are hidden from broadcasts until the reveal
// - Empty rooms linger for a grace period before deletion
// - In-browser QR button to share the current room, backed by go-qrcode

package main

import (
	"context"
	_ "embed"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/ballpark/game"
)

// Messages coming from clients
type ClientMessage struct {
	Type   string `json:"type"`             // "join", "sync", "start_game", "start_round", "next_turn", "set_prompt", "guess", "reveal", "return_to_lobby"
	Name   string `json:"name,omitempty"`   // join
	Host   bool   `json:"host,omitempty"`   // join: request host status
	Prompt string `json:"prompt,omitempty"` // set_prompt
	Value  string `json:"value,omitempty"`  // guess
}

// AckMessage answers the triggering call on its own connection.
type AckMessage struct {
	Type   string `json:"type"` // "ack"
	Event  string `json:"event"`
	Ok     bool   `json:"ok"`
	Code   string `json:"code,omitempty"`   // room code, on join
	Self   string `json:"self,omitempty"`   // this connection's id, on join
	Reason string `json:"reason,omitempty"` // failure taxonomy, when not ok
}

// RosterMessage broadcasts the current player list.
type RosterMessage struct {
	Type    string            `json:"type"` // "roster"
	Players []game.PlayerInfo `json:"players"`
}

// GameStateMessage broadcasts the full game snapshot.
type GameStateMessage struct {
	Type  string        `json:"type"` // "game_state"
	State game.Snapshot `json:"state"`
}

// RoundStartedMessage announces a new round and its chooser.
type RoundStartedMessage struct {
	Type    string `json:"type"` // "round_started"
	Chooser string `json:"chooser,omitempty"`
}

// session is the per-connection record passed into every handler.
// Nothing game-related is ever stashed on the websocket itself.
type session struct {
	id     string
	code   string
	joined bool
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan any
	closed bool // guarded by gameServer.mu
	sess   session
}

// gameServer owns the room registry and the per-room connection sets.
// A single mutex serializes every room mutation, so handlers never
// interleave; the only work done outside it is the oracle call,
// bracketed by BeginPrompt and CompletePrompt.
type gameServer struct {
	cfg      *Config
	registry *game.Registry
	oracle   game.Oracle

	mu    sync.Mutex
	conns map[string]map[*wsClient]bool
}

func newGameServer(cfg *Config, oracle game.Oracle) *gameServer {
	gs := &gameServer{
		cfg:      cfg,
		registry: game.NewRegistry(cfg.gracePeriod, cfg.promptLimit),
		oracle:   oracle,
		conns:    make(map[string]map[*wsClient]bool),
	}

	gs.registry.OnExpire(func(code string) {
		gs.mu.Lock()
		defer gs.mu.Unlock()

		if gs.registry.DeleteIfEmpty(code) {
			delete(gs.conns, code)
			logf(cfg, "ROOMS: Deleted idle room %s", code)
		}
	})

	return gs
}

// drop closes a client's send channel once and forgets it. Callers
// hold gs.mu.
func (gs *gameServer) drop(c *wsClient) {
	if !c.closed {
		c.closed = true
		close(c.send)
	}

	if clients, ok := gs.conns[c.sess.code]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(gs.conns, c.sess.code)
		}
	}
}

// trySend queues a message for one client, dropping the client if its
// buffer is full. Callers hold gs.mu.
func (gs *gameServer) trySend(c *wsClient, msg any) {
	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
		gs.drop(c)
	}
}

// broadcast fans messages out to every connection in a room. Callers
// hold gs.mu.
func (gs *gameServer) broadcast(code string, msgs ...any) {
	for c := range gs.conns[code] {
		for _, msg := range msgs {
			gs.trySend(c, msg)
		}
	}
}

// broadcastState sends the roster and full game snapshot to the whole
// room. Callers hold gs.mu.
func (gs *gameServer) broadcastState(room *game.Room) {
	snapshot := room.Snapshot()
	gs.broadcast(room.Code(),
		RosterMessage{Type: "roster", Players: snapshot.Players},
		GameStateMessage{Type: "game_state", State: snapshot},
	)
}

func ack(event string) AckMessage {
	return AckMessage{Type: "ack", Event: event, Ok: true}
}

func nack(event string, err error) AckMessage {
	return AckMessage{Type: "ack", Event: event, Ok: false, Reason: ackReason(err)}
}

// ackReason maps the game error taxonomy onto wire-level reason codes.
func ackReason(err error) string {
	switch {
	case errors.Is(err, game.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, game.ErrInvalidName):
		return "invalid_name"
	case errors.Is(err, game.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, game.ErrEmptyPrompt):
		return "empty_prompt"
	case errors.Is(err, game.ErrNotAcceptingGuesses):
		return "not_accepting_guesses"
	case errors.Is(err, game.ErrInvalidGuess):
		return "invalid_guess"
	case errors.Is(err, game.ErrNoNumericAnswer):
		return "no_numeric_answer"
	default:
		return "oracle_failure"
	}
}

func (gs *gameServer) handleMessage(c *wsClient, msg ClientMessage) {
	switch msg.Type {
	case "join":
		gs.handleJoin(c, msg)
	case "sync":
		gs.handleSync(c)
	case "start_game", "start_round", "next_turn":
		gs.handleStartRound(c)
	case "set_prompt":
		gs.handleSetPrompt(c, msg.Prompt)
	case "guess":
		gs.handleGuess(c, msg.Value)
	case "reveal":
		gs.handleReveal(c)
	case "return_to_lobby":
		gs.handleReturnToLobby(c)
	default:
		// ignore unknown types
	}
}

func (gs *gameServer) handleJoin(c *wsClient, msg ClientMessage) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	room, ok := gs.registry.Get(c.sess.code)
	if !ok {
		gs.trySend(c, nack("join", game.ErrRoomNotFound))
		return
	}

	if err := room.Join(c.sess.id, msg.Name, msg.Host); err != nil {
		gs.trySend(c, nack("join", err))
		return
	}

	gs.registry.CancelCleanup(c.sess.code)
	c.sess.joined = true

	if gs.conns[c.sess.code] == nil {
		gs.conns[c.sess.code] = make(map[*wsClient]bool)
	}
	gs.conns[c.sess.code][c] = true

	gs.trySend(c, AckMessage{
		Type:  "ack",
		Event: "join",
		Ok:    true,
		Code:  c.sess.code,
		Self:  c.sess.id,
	})
	gs.broadcastState(room)

	logf(gs.cfg, "GAMES: Player %q joined %s", strings.TrimSpace(msg.Name), c.sess.code)
}

func (gs *gameServer) handleSync(c *wsClient) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	room, ok := gs.registry.Get(c.sess.code)
	if !ok {
		gs.trySend(c, nack("sync", game.ErrRoomNotFound))
		return
	}

	snapshot := room.Snapshot()
	gs.trySend(c, RosterMessage{Type: "roster", Players: snapshot.Players})
	gs.trySend(c, GameStateMessage{Type: "game_state", State: snapshot})
}

func (gs *gameServer) handleStartRound(c *wsClient) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	room, ok := gs.registry.Get(c.sess.code)
	if !ok {
		return
	}

	// Host gating happens inside StartRound; anyone else is a no-op.
	if !room.StartRound(c.sess.id) {
		return
	}

	snapshot := room.Snapshot()
	gs.broadcast(room.Code(), RoundStartedMessage{Type: "round_started", Chooser: snapshot.Chooser})
	gs.broadcastState(room)
}

func (gs *gameServer) handleSetPrompt(c *wsClient, text string) {
	gs.mu.Lock()

	room, ok := gs.registry.Get(c.sess.code)
	if !ok {
		gs.trySend(c, nack("set_prompt", game.ErrRoomNotFound))
		gs.mu.Unlock()
		return
	}

	seq, prompt, err := room.BeginPrompt(c.sess.id, text)
	if err != nil {
		gs.trySend(c, nack("set_prompt", err))
		gs.mu.Unlock()
		return
	}

	gs.broadcastState(room)
	gs.mu.Unlock()

	go gs.resolvePrompt(c, c.sess.code, seq, prompt)
}

// resolvePrompt runs the oracle call outside the server mutex, then
// re-enters it and lets the room decide whether the response still
// applies. The room may have moved on (chooser left, next turn, lobby
// reset) while the call was in flight.
func (gs *gameServer) resolvePrompt(c *wsClient, code string, seq uint64, prompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), gs.cfg.oracleTimeout)
	defer cancel()

	answer, oracleErr := gs.oracle.Resolve(ctx, prompt)

	gs.mu.Lock()
	defer gs.mu.Unlock()

	room, ok := gs.registry.Get(code)
	if !ok {
		return
	}

	applied, err := room.CompletePrompt(seq, c.sess.id, answer, oracleErr)
	if !applied {
		return
	}

	if err != nil {
		gs.trySend(c, nack("set_prompt", err))
		gs.broadcastState(room)
		logf(gs.cfg, "GAMES: Oracle failed for %q in %s: %v", prompt, code, err)
		return
	}

	gs.trySend(c, ack("set_prompt"))
	gs.broadcastState(room)
	logf(gs.cfg, "GAMES: Guessing open in %s", code)
}

func (gs *gameServer) handleGuess(c *wsClient, raw string) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	room, ok := gs.registry.Get(c.sess.code)
	if !ok {
		gs.trySend(c, nack("guess", game.ErrRoomNotFound))
		return
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		gs.trySend(c, nack("guess", game.ErrInvalidGuess))
		return
	}

	if err := room.Guess(c.sess.id, value); err != nil {
		gs.trySend(c, nack("guess", err))
		return
	}

	gs.trySend(c, ack("guess"))
	gs.broadcastState(room)
}

func (gs *gameServer) handleReveal(c *wsClient) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	room, ok := gs.registry.Get(c.sess.code)
	if !ok {
		return
	}

	if !room.Reveal(c.sess.id) {
		return
	}

	gs.broadcastState(room)
	logf(gs.cfg, "GAMES: Revealed round in %s", c.sess.code)
}

func (gs *gameServer) handleReturnToLobby(c *wsClient) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	room, ok := gs.registry.Get(c.sess.code)
	if !ok {
		return
	}

	if !room.ReturnToLobby(c.sess.id) {
		return
	}

	gs.broadcastState(room)
}

// disconnect removes the connection and, if it had joined, its player.
// An emptied room is not deleted immediately; cleanup is scheduled so
// a page navigation can reclaim it within the grace period.
func (gs *gameServer) disconnect(c *wsClient) {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	gs.drop(c)

	if !c.sess.joined {
		return
	}

	room, ok := gs.registry.Get(c.sess.code)
	if !ok {
		return
	}

	if room.Leave(c.sess.id) {
		gs.registry.ScheduleCleanup(c.sess.code)
		logf(gs.cfg, "ROOMS: Room %s empty, cleanup scheduled", c.sess.code)
		return
	}

	gs.broadcastState(room)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWS upgrades the connection and pumps messages into the server.
// Every connection gets a fresh ephemeral id; identity does not
// survive a reconnect.
func serveWS(cfg *Config, gs *gameServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := strings.ToUpper(ps.ByName("code"))
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &wsClient{
			conn: conn,
			send: make(chan any, 8),
			sess: session{
				id:   uuid.NewString(),
				code: code,
			},
		}

		go client.writePump()
		client.readPump(gs)
	}
}

func (c *wsClient) readPump(gs *gameServer) {
	defer func() {
		gs.disconnect(c)
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		gs.handleMessage(c, msg)
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// QR handler: generates a PNG QR code for the current room URL.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:code/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

//go:embed ballpark/index.html
var indexHTML []byte

func getIndexHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write(indexHTML)
	}
}

// redirectNewRoom handles GET /path by creating a room and redirecting
// to /path/:code. The new code is the acknowledgement.
func redirectNewRoom(cfg *Config, path string, gs *gameServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		gs.mu.Lock()
		room := gs.registry.CreateRoom()
		gs.mu.Unlock()

		logf(cfg, "ROOMS: Created room %s/%s", path, room.Code())
		http.Redirect(w, r, cfg.prefix+path+"/"+room.Code(), http.StatusTemporaryRedirect)
	}
}

// registerBallparkGame sets up routes so that:
//   - $path              → creates a room, redirects to it
//   - $path/:code        → HTML client
//   - $path/:code/ws     → WebSocket for that room
//   - $path/:code/qr     → PNG QR code for that room URL
func registerBallparkGame(cfg *Config, path string, oracle game.Oracle, mux *httprouter.Router) *gameServer {
	gs := newGameServer(cfg, oracle)

	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, path, gs))

	mux.GET(cfg.prefix+path+"/:code", getIndexHandler(cfg))

	mux.GET(cfg.prefix+path+"/:code/ws", serveWS(cfg, gs))

	mux.GET(cfg.prefix+path+"/:code/qr", qrHandler)

	return gs
}
