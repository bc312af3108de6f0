package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat(t *testing.T) {
	var got chatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"model": "test-model-2024",
			"choices": [{"message": {"content": "[]", "reasoning_content": "thinking"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL + "/v1/", APIKey: "secret", Model: "test-model"})
	out, err := c.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, 0.1)
	require.NoError(t, err)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 0.1, got.Temperature)
	require.Len(t, got.Messages, 1)

	assert.Equal(t, "test-model-2024", out.Model)
	assert.Equal(t, "[]", out.Content)
	assert.Equal(t, "thinking", out.Reasoning)
	assert.Equal(t, int64(15), out.Usage.Total)
}

func TestChatPlaceholderKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+placeholderKey, r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"usage":{"prompt_tokens":3,"completion_tokens":4}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL})
	out, err := c.Chat(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, out.Model)
	assert.Equal(t, int64(7), out.Usage.Total, "total derived when missing")
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"bad status", http.StatusUnauthorized, `{"error":"nope"}`, nil},
		{"no choices", http.StatusOK, `{"choices":[]}`, ErrEmptyResponse},
		{"blank content", http.StatusOK, `{"choices":[{"message":{"content":"  "}}]}`, ErrEmptyResponse},
		{"garbage", http.StatusOK, `not json`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(Config{Endpoint: srv.URL}).Chat(context.Background(), nil, 0)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`[1]`, `[1]`},
		{"```json\n[1]\n```", `[1]`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```json [2] ```  ", `[2]`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripFences(tt.input), tt.input)
	}
}

type item struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

func TestDecodeArray(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []item
		wantErr bool
	}{
		{"bare array", `[{"index":1,"name":"a"}]`, []item{{1, "a"}}, false},
		{"fenced", "```json\n[{\"index\":2,\"name\":\"b\"}]\n```", []item{{2, "b"}}, false},
		{"results key", `{"results":[{"index":1,"name":"a"}]}`, []item{{1, "a"}}, false},
		{"items key", `{"items":[{"index":3,"name":"c"}]}`, []item{{3, "c"}}, false},
		{"analysis key", `{"analysis":[{"index":4,"name":"d"}]}`, []item{{4, "d"}}, false},
		{"single object", `{"index":5,"name":"e"}`, []item{{5, "e"}}, false},
		{"prose", `I cannot help with that`, nil, true},
		{"empty", ``, nil, true},
		{"truncated", `[{"index":1`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeArray[item](tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidJSON)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeObject(t *testing.T) {
	var v struct {
		Safe   bool   `json:"safe"`
		Reason string `json:"reason"`
	}
	require.NoError(t, DecodeObject("```json\n{\"safe\":true,\"reason\":\"cache\"}\n```", &v))
	assert.True(t, v.Safe)
	assert.Equal(t, "cache", v.Reason)

	assert.ErrorIs(t, DecodeObject("nope", &v), ErrInvalidJSON)
}
