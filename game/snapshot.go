/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package game

import "sort"

type PlayerInfo struct {
	Name   string `json:"name"`
	IsHost bool   `json:"is_host"`
}

type ScoreRow struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// GuessRow is one revealed guess. Rows are emitted in submission
// order, one per guessing connection, so two players sharing a display
// name (or two departed guessers) keep separate entries.
type GuessRow struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Snapshot is the full outward-facing projection of a room, broadcast
// after every mutation and on explicit sync. It is always a complete
// dump, never a delta, so a (re)joining client gets the whole truth
// from any single message.
//
// The target value and answer text are withheld until the round is
// revealed. Guess values are withheld too: while guessing, clients
// only learn who has guessed and how many guesses exist. Hiding is
// done here rather than in the client so a modified client cannot
// peek.
type Snapshot struct {
	Code            string       `json:"code"`
	Players         []PlayerInfo `json:"players"`
	Phase           Phase        `json:"phase"`
	Chooser         string       `json:"chooser,omitempty"`
	AcceptingPrompt bool         `json:"accepting_prompt"`
	Prompt          string       `json:"prompt,omitempty"`
	Target          *float64     `json:"target,omitempty"`
	Answer          string       `json:"answer,omitempty"`
	Guessed         []string     `json:"guessed,omitempty"`
	GuessCount      int          `json:"guess_count"`
	Guesses         []GuessRow   `json:"guesses,omitempty"`
	Leaderboard     []ScoreRow   `json:"leaderboard"`
	Winners         []string     `json:"winners,omitempty"`
}

func (r *Room) Snapshot() Snapshot {
	s := Snapshot{
		Code:            r.code,
		Players:         make([]PlayerInfo, 0, len(r.order)),
		Phase:           r.round.phase,
		AcceptingPrompt: r.round.accepting,
		Prompt:          r.round.prompt,
		GuessCount:      len(r.round.guessOrder),
		Leaderboard:     r.Leaderboard(),
	}

	for _, id := range r.order {
		s.Players = append(s.Players, PlayerInfo{
			Name:   r.players[id].Name,
			IsHost: id == r.hostID,
		})
	}

	if p, exists := r.players[r.round.turnID]; exists {
		s.Chooser = p.Name
	}

	for _, id := range r.round.guessOrder {
		s.Guessed = append(s.Guessed, r.nameFor(id))
	}

	switch {
	case r.round.revealed:
		if r.round.hasTarget {
			v := r.round.target
			s.Target = &v
		}
		s.Answer = r.round.answerText

		for _, id := range r.round.guessOrder {
			s.Guesses = append(s.Guesses, GuessRow{
				Name:  r.nameFor(id),
				Value: r.round.guesses[id],
			})
		}

		for _, id := range r.round.winners {
			s.Winners = append(s.Winners, r.nameFor(id))
		}
	case r.round.phase == PhaseGuessing:
		s.Answer = hiddenAnswer
	}

	return s
}

// Leaderboard projects the cumulative scoreboard, substituting a
// "(left)" placeholder for connections no longer in the roster. Sorted
// by score descending, ties by name ascending.
func (r *Room) Leaderboard() []ScoreRow {
	rows := make([]ScoreRow, 0, len(r.scores))
	for id, score := range r.scores {
		rows = append(rows, ScoreRow{Name: r.nameFor(id), Score: score})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].Name < rows[j].Name
	})

	return rows
}
