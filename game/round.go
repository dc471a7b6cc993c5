/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package game

import (
	"math"
	"math/rand"
	"strings"
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseChoosing Phase = "choosing"
	PhaseGuessing Phase = "guessing"
	PhaseRevealed Phase = "revealed"
)

// Shown as the answer text while guesses are still open.
const hiddenAnswer = "???"

// Stored answer text after the oracle could not produce a number.
const noAnswerText = "(no usable answer)"

// roundState is the phase machine for a single round. It is replaced
// wholesale on room creation, start-round, next-turn, and
// return-to-lobby, never patched back into an earlier shape. The seq
// field identifies one incarnation so an oracle response that arrives
// after the round has been replaced can be detected and dropped.
type roundState struct {
	seq        uint64
	phase      Phase
	turnID     string
	accepting  bool
	prompt     string
	target     float64
	hasTarget  bool
	answerText string
	guesses    map[string]float64
	guessOrder []string
	revealed   bool
	winners    []string
}

func (r *Room) resetRound(phase Phase) {
	r.seq++
	r.round = roundState{
		seq:     r.seq,
		phase:   phase,
		guesses: make(map[string]float64),
	}
}

// StartRound begins a new round in the Choosing phase with a chooser
// picked uniformly at random from the roster. Host-only; calls from
// anyone else are silently ignored so stale client UI cannot disrupt a
// round in progress. Also serves as "next turn" from Revealed.
func (r *Room) StartRound(callerID string) bool {
	if r.hostID == "" || callerID != r.hostID {
		return false
	}

	r.resetRound(PhaseChoosing)
	if len(r.order) > 0 {
		r.round.turnID = r.order[rand.Intn(len(r.order))]
		r.round.accepting = true
	}

	return true
}

// ReturnToLobby resets the round to Idle. Scores are untouched; only
// deleting the room clears them.
func (r *Room) ReturnToLobby(callerID string) bool {
	if r.hostID == "" || callerID != r.hostID {
		return false
	}

	r.resetRound(PhaseIdle)

	return true
}

// BeginPrompt validates and stores the chooser's question, closing the
// prompt window before the oracle call so a double submit cannot race.
// Returns the round sequence the caller must pass back to
// CompletePrompt once the oracle resolves.
func (r *Room) BeginPrompt(id, text string) (uint64, string, error) {
	if !r.round.accepting || r.round.turnID != id {
		return 0, "", ErrNotYourTurn
	}

	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > r.promptLimit {
		text = strings.TrimSpace(string(runes[:r.promptLimit]))
	}
	if text == "" {
		return 0, "", ErrEmptyPrompt
	}

	r.round.accepting = false
	r.round.prompt = text

	return r.round.seq, text, nil
}

// CompletePrompt applies the oracle's verdict for the prompt started
// under seq. The round may have been replaced, the chooser may have
// left, or guessing may already be over by the time the oracle
// responds, so current state is rechecked before anything is touched;
// a stale response is dropped and applied is false.
//
// On success the round moves to Guessing. On failure it stays in
// Choosing with the prompt window re-armed so the same chooser can
// retry, and the classified error is returned for the submitter's ack.
func (r *Room) CompletePrompt(seq uint64, id string, ans Answer, oracleErr error) (applied bool, err error) {
	if r.round.seq != seq || r.round.phase != PhaseChoosing || r.round.turnID != id {
		return false, nil
	}

	if oracleErr == nil && !isFinite(ans.Value) {
		oracleErr = ErrNoNumericAnswer
	}
	if oracleErr != nil {
		r.round.answerText = noAnswerText
		r.round.accepting = true
		return true, oracleErr
	}

	r.round.target = ans.Value
	r.round.hasTarget = true
	r.round.answerText = strings.TrimSpace(ans.Text)
	r.round.phase = PhaseGuessing
	r.round.revealed = false
	r.round.guesses = make(map[string]float64)
	r.round.guessOrder = nil

	return true, nil
}

// Guess records a player's guess. The last guess from a connection
// overwrites any earlier one; submission order is kept for winner
// display.
func (r *Room) Guess(id string, value float64) error {
	if r.round.phase != PhaseGuessing {
		return ErrNotAcceptingGuesses
	}
	if _, exists := r.players[id]; !exists {
		return ErrNotAcceptingGuesses
	}
	if !isFinite(value) {
		return ErrInvalidGuess
	}

	if _, exists := r.round.guesses[id]; !exists {
		r.round.guessOrder = append(r.round.guessOrder, id)
	}
	r.round.guesses[id] = value

	return nil
}

// Reveal locks in guesses, awards a point to every guess tied for the
// smallest absolute error, and exposes the target. Host-only and only
// valid while guessing; otherwise a silent no-op.
func (r *Room) Reveal(callerID string) bool {
	if r.hostID == "" || callerID != r.hostID {
		return false
	}
	if r.round.phase != PhaseGuessing {
		return false
	}

	r.round.phase = PhaseRevealed
	r.round.revealed = true
	r.round.winners = nil

	if len(r.round.guessOrder) == 0 {
		return true
	}

	best := math.Inf(1)
	for _, id := range r.round.guessOrder {
		if d := math.Abs(r.round.guesses[id] - r.round.target); d < best {
			best = d
		}
	}

	for _, id := range r.round.guessOrder {
		if math.Abs(r.round.guesses[id]-r.round.target) == best {
			r.round.winners = append(r.round.winners, id)
			r.scores[id]++
		}
	}

	return true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
