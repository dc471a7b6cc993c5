/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package game

import "context"

// Answer is a resolved numeric answer along with the text it was
// extracted from, shown to players once the round is revealed.
type Answer struct {
	Value float64
	Text  string
}

// Oracle derives a numeric answer for a free-text question. Resolve
// blocks until an answer is found or the context expires; failures are
// reported as ErrOracleFailure or ErrNoNumericAnswer.
type Oracle interface {
	Resolve(ctx context.Context, prompt string) (Answer, error)
}
