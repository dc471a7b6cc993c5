/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package game

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrInvalidName         = errors.New("invalid name")
	ErrNotYourTurn         = errors.New("not your turn")
	ErrEmptyPrompt         = errors.New("empty prompt")
	ErrNotAcceptingGuesses = errors.New("not accepting guesses")
	ErrInvalidGuess        = errors.New("invalid guess")
	ErrOracleFailure       = errors.New("answer oracle failure")
	ErrNoNumericAnswer     = errors.New("no numeric answer")
)
