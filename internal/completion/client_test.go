// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/jeranaias/mimochat/internal/model"
)

func TestClient_StreamSendsWireContract(t *testing.T) {
	var body []byte
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		contentType = r.Header.Get("Content-Type")
		body, _ = io.ReadAll(r.Body)
		io.WriteString(w, chunk("hello")+"\n"+"data: [DONE]\n")
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL + "/v1/chat/completions"})
	rc, err := c.Stream(context.Background(), Request{
		Messages:    []model.WireMessage{{Role: "system", Content: "sys"}, {Role: "user", Content: "hi"}},
		Temperature: DefaultTemperature,
		MaxTokens:   NoTokenLimit,
	})
	require.NoError(t, err)
	defer rc.Close()

	events, err := collect(t, rc)
	require.NoError(t, err)
	assert.Equal(t, []Event{Delta("hello"), Done()}, events)

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, DefaultModel, gjson.GetBytes(body, "model").String())
	assert.Equal(t, 0.7, gjson.GetBytes(body, "temperature").Float())
	assert.Equal(t, int64(-1), gjson.GetBytes(body, "max_tokens").Int())
	assert.True(t, gjson.GetBytes(body, "stream").Bool())
	assert.Equal(t, "user", gjson.GetBytes(body, "messages.1.role").String())
	assert.Equal(t, "hi", gjson.GetBytes(body, "messages.1.content").String())
	assert.False(t, gjson.GetBytes(body, "messages.0.id").Exists())
}

func TestRequest_MaxTokensAlwaysSerialized(t *testing.T) {
	raw, err := json.Marshal(Request{Model: "m"})
	require.NoError(t, err)
	assert.True(t, gjson.GetBytes(raw, "max_tokens").Exists())
}

func TestClient_StatusError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"openai json", http.StatusBadRequest, `{"error":{"message":"model not loaded"}}`, "model not loaded"},
		{"string error", http.StatusInternalServerError, `{"error":"boom"}`, "boom"},
		{"plain text", http.StatusServiceUnavailable, "  busy\n  try later ", "busy try later"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := NewClient(Config{URL: srv.URL}).Stream(context.Background(), Request{})
			require.Error(t, err)

			var te *TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, ErrKindStatus, te.Kind)
			assert.Equal(t, tt.status, te.Status)
			assert.Contains(t, te.Error(), tt.want)

			code, ok := IsStatus(err)
			assert.True(t, ok)
			assert.Equal(t, tt.status, code)
		})
	}
}

func TestClient_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(Config{URL: url}).Stream(context.Background(), Request{})

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, ErrKindConnection, te.Kind)
	assert.Contains(t, te.Error(), "cannot reach")
}

func TestClient_CanceledContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(Config{URL: srv.URL}).Stream(ctx, Request{})
	require.Error(t, err)
	assert.True(t, IsCanceled(err))
}

func TestClient_Ping(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL + "/v1/chat/completions"})
	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, "/v1/models", path)

	srv.Close()
	assert.Error(t, c.Ping(context.Background()))
}

func TestWrapReadError(t *testing.T) {
	assert.NoError(t, WrapReadError(context.Background(), nil))

	err := WrapReadError(context.Background(), io.ErrUnexpectedEOF)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, ErrKindRead, te.Kind)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, IsCanceled(WrapReadError(ctx, io.ErrUnexpectedEOF)))
}

func TestModelsURL(t *testing.T) {
	assert.Equal(t, "http://h/v1/models", modelsURL("http://h/v1/chat/completions"))
	assert.Equal(t, "http://h/v1/models", modelsURL("http://h/v1/chat/completions/"))
	assert.Equal(t, "http://h/custom", modelsURL("http://h/custom"))
}
