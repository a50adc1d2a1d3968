package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSendPlainJSON(t *testing.T) {
	var got map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	w, err := NewWebhookSender(config.WebhookConfig{
		Enabled: true,
		URL:     srv.URL,
		Headers: []config.Header{{Key: "X-Token", Value: "secret"}},
	}, nil)
	require.NoError(t, err)

	require.NoError(t, w.Send(context.Background(), testRequest("andon-1:1")))
	assert.Equal(t, "BAG1", got["equipment_code"])
	assert.Equal(t, "sms", got["channel"])
}

func TestWebhookTemplate(t *testing.T) {
	var body []byte

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	w, err := NewWebhookSender(config.WebhookConfig{
		URL:      srv.URL,
		Template: `{"text": {{json .request.Message}}, "to": {{json (join .request.Recipients ",")}}}`,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, w.Send(context.Background(), testRequest("andon-1:1")))
	assert.JSONEq(t, `{"text": "BAG1 E-STOP", "to": "shift-lead"}`, string(body))
}

func TestWebhookTemplateErrors(t *testing.T) {
	_, err := NewWebhookSender(config.WebhookConfig{Template: "{{"}, nil)
	require.ErrorIs(t, err, errTemplateParse)

	w, err := NewWebhookSender(config.WebhookConfig{URL: "http://127.0.0.1:1", Template: "not json"}, nil)
	require.NoError(t, err)

	require.ErrorIs(t, w.Send(context.Background(), testRequest("a")), errInvalidJSON)
}

func TestWebhookCooldownAndStatus(t *testing.T) {
	calls := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 2 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		}
	}))
	defer srv.Close()

	w, err := NewWebhookSender(config.WebhookConfig{
		URL:      srv.URL,
		Cooldown: config.Duration(time.Minute),
	}, nil)
	require.NoError(t, err)

	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	req := testRequest("andon-1:1")
	require.NoError(t, w.Send(context.Background(), req))
	require.ErrorIs(t, w.Send(context.Background(), req), errWebhookCooldown)

	// another escalation step is not affected by the cooldown
	err = w.Send(context.Background(), testRequest("andon-1:2"))
	require.ErrorIs(t, err, errWebhookStatus)
	assert.Contains(t, err.Error(), "upstream down")

	now = now.Add(2 * time.Minute)
	require.NoError(t, w.Send(context.Background(), req))
	assert.Equal(t, 3, calls)
}

func TestDiscordWebhook(t *testing.T) {
	var got struct {
		Embeds []struct {
			Title  string `json:"title"`
			Color  int    `json:"color"`
			Fields []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"fields"`
		} `json:"embeds"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w, err := NewDiscordWebhook(srv.URL, time.Minute, nil)
	require.NoError(t, err)

	require.NoError(t, w.Send(context.Background(), testRequest("andon-1:1")))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "critical andon on BAG1 (level 1)", got.Embeds[0].Title)
	assert.Equal(t, DiscordColorRed, got.Embeds[0].Color)
	assert.Equal(t, "shift-lead", got.Embeds[0].Fields[3].Value)

	_, err = NewWebhookSender(config.WebhookConfig{URL: srv.URL, Preset: "slack"}, nil)
	assert.ErrorIs(t, err, errUnknownPreset)
}
