/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/ballpark/game"
)

func TestFirstNumber(t *testing.T) {
	testCases := []struct {
		name  string
		text  string
		value float64
		ok    bool
	}{
		{
			name:  "bare integer",
			text:  "1969",
			value: 1969,
			ok:    true,
		},
		{
			name:  "embedded in prose",
			text:  "The Eiffel Tower is about 330 meters tall.",
			value: 330,
			ok:    true,
		},
		{
			name:  "thousands separators",
			text:  "Roughly 1,234,567 people",
			value: 1234567,
			ok:    true,
		},
		{
			name:  "decimal",
			text:  "It weighs 2.5 tons",
			value: 2.5,
			ok:    true,
		},
		{
			name:  "negative",
			text:  "around -40 degrees",
			value: -40,
			ok:    true,
		},
		{
			name:  "first of several",
			text:  "between 10 and 20",
			value: 10,
			ok:    true,
		},
		{
			name: "no digits at all",
			text: "I cannot answer that question.",
			ok:   false,
		},
		{
			name: "empty string",
			text: "",
			ok:   false,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			value, ok := firstNumber(testCase.text)

			assert.Equal(t, testCase.ok, ok)
			if testCase.ok {
				assert.Equal(t, testCase.value, value)
			}
		})
	}
}

func chatReply(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()

	err := json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	require.NoError(t, err)
}

func testOracle(url string) *answerOracle {
	return &answerOracle{
		client: &http.Client{Timeout: 5 * time.Second},
		url:    url,
		model:  "test-model",
		key:    "test-key",
	}
}

func TestOracle_ResolveFirstTry(t *testing.T) {
	var requests []chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests = append(requests, req)

		chatReply(t, w, "1945")
	}))
	defer server.Close()

	ans, err := testOracle(server.URL).Resolve(context.Background(), "When did WW2 end?")
	require.NoError(t, err)

	assert.Equal(t, 1945.0, ans.Value)
	assert.Equal(t, "1945", ans.Text)

	require.Len(t, requests, 1)
	assert.Equal(t, "test-model", requests[0].Model)
	require.Len(t, requests[0].Messages, 1)
	assert.Contains(t, requests[0].Messages[0].Content, "When did WW2 end?")
	assert.Contains(t, requests[0].Messages[0].Content, "Answer with a single number.")
}

func TestOracle_RetriesPastNonNumericReply(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			chatReply(t, w, "That depends on what you mean.")
			return
		}
		chatReply(t, w, "42")
	}))
	defer server.Close()

	ans, err := testOracle(server.URL).Resolve(context.Background(), "How many?")
	require.NoError(t, err)

	assert.Equal(t, 42.0, ans.Value)
	assert.Equal(t, 2, calls)
}

func TestOracle_AllRepliesNonNumeric(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, "No idea, sorry.")
	}))
	defer server.Close()

	_, err := testOracle(server.URL).Resolve(context.Background(), "How many?")

	assert.ErrorIs(t, err, game.ErrNoNumericAnswer)
}

func TestOracle_ServerError(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testOracle(server.URL).Resolve(context.Background(), "How many?")

	assert.ErrorIs(t, err, game.ErrOracleFailure)
	assert.Equal(t, 3, calls)
}

func TestOracle_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"choices": []any{}}))
	}))
	defer server.Close()

	_, err := testOracle(server.URL).Resolve(context.Background(), "How many?")

	assert.ErrorIs(t, err, game.ErrOracleFailure)
}

func TestOracle_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatReply(t, w, "42")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testOracle(server.URL).Resolve(ctx, "How many?")

	assert.ErrorIs(t, err, game.ErrOracleFailure)
	assert.ErrorIs(t, err, context.Canceled)
}
