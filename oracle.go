/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/Seednode/ballpark/game"
)

// answerOracle resolves free-text questions to numbers by asking a
// chat-completions endpoint and pulling the first number out of the
// reply. Failures fall back through a clarified rephrasing and then a
// plain retry before surfacing to the round state machine.
type answerOracle struct {
	client *http.Client
	url    string
	model  string
	key    string
}

func newAnswerOracle(cfg *Config) *answerOracle {
	return &answerOracle{
		client: &http.Client{Timeout: cfg.oracleTimeout},
		url:    cfg.oracleURL,
		model:  cfg.oracleModel,
		key:    cfg.oracleKey,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (o *answerOracle) Resolve(ctx context.Context, prompt string) (game.Answer, error) {
	attempts := []string{
		prompt + "\n\nAnswer with a single number.",
		prompt + "\n\nAnswer with only a number, written in digits, nothing else.",
		prompt,
	}

	var lastErr error = game.ErrNoNumericAnswer
	for _, question := range attempts {
		if ctx.Err() != nil {
			return game.Answer{}, fmt.Errorf("%w: %w", game.ErrOracleFailure, ctx.Err())
		}

		text, err := o.complete(ctx, question)
		if err != nil {
			lastErr = fmt.Errorf("%w: %w", game.ErrOracleFailure, err)
			continue
		}

		if value, ok := firstNumber(text); ok {
			return game.Answer{Value: value, Text: strings.TrimSpace(text)}, nil
		}
		lastErr = game.ErrNoNumericAnswer
	}

	return game.Answer{}, lastErr
}

func (o *answerOracle) complete(ctx context.Context, question string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "user", Content: question},
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if o.key != "" {
		req.Header.Set("Authorization", "Bearer "+o.key)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty response")
	}

	return parsed.Choices[0].Message.Content, nil
}

var numberPattern = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

// firstNumber extracts the first finite number from free text,
// tolerating thousands separators ("about 1,945 or so" → 1945).
func firstNumber(text string) (float64, bool) {
	match := numberPattern.FindString(text)
	if match == "" {
		return 0, false
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0, false
	}

	return value, true
}
