package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cheervox-labs/cheervox/internal/cheer"
	"github.com/cheervox-labs/cheervox/internal/config"
)

// Handler receives every cheer event decoded off the EventSub socket.
type Handler func(cheer.Event)

// Source maintains a Twitch EventSub websocket session subscribed to
// channel.cheer and forwards decoded events to its handler.
type Source struct {
	cfg     config.TwitchConfig
	log     *slog.Logger
	handler Handler
	http    *http.Client
	dialer  *websocket.Dialer
}

func NewSource(cfg config.TwitchConfig, handler Handler, log *slog.Logger) *Source {
	return &Source{
		cfg:     cfg,
		log:     log.With(slog.String("component", "ingest")),
		handler: handler,
		http:    &http.Client{Timeout: 15 * time.Second},
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Run connects to EventSub and processes messages until ctx is cancelled.
// Connection loss is not fatal; the source reconnects after the configured
// delay. Run only returns the ctx error.
func (s *Source) Run(ctx context.Context) error {
	url := s.cfg.EventSubURL
	reconnectDelay := time.Duration(s.cfg.ReconnectDelayMS) * time.Millisecond
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}

	for {
		nextURL, err := s.session(ctx, url)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.log.Warn("eventsub session ended",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", reconnectDelay))
		}
		if nextURL != "" {
			// Twitch asked us to move; reconnect there immediately.
			url = nextURL
			continue
		}
		url = s.cfg.EventSubURL

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// session runs one websocket connection to completion. It returns a
// non-empty URL when the server sent session_reconnect.
func (s *Source) session(ctx context.Context, url string) (string, error) {
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return "", fmt.Errorf("dial eventsub: %w", err)
	}
	defer conn.Close()

	// Drop the connection when ctx is cancelled so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	keepalive := time.Duration(s.cfg.KeepaliveTimeoutMS) * time.Millisecond
	subscribed := false

	for {
		if keepalive > 0 {
			conn.SetReadDeadline(time.Now().Add(keepalive))
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("read eventsub message: %w", err)
		}

		env, err := decodeEnvelope(data)
		if err != nil {
			s.log.Warn("bad eventsub frame", slog.String("error", err.Error()))
			continue
		}

		switch env.Metadata.MessageType {
		case msgTypeWelcome:
			if timeout := env.Payload.Session.KeepaliveTimeoutSeconds; timeout > 0 {
				// Server timeout plus slack wins over the configured one.
				keepalive = time.Duration(timeout*float64(time.Second)) + 5*time.Second
			}
			if !subscribed {
				if err := s.subscribe(ctx, env.Payload.Session.ID); err != nil {
					return "", err
				}
				subscribed = true
			}
			s.log.Info("eventsub session established", slog.String("session_id", env.Payload.Session.ID))

		case msgTypeKeepalive:
			// deadline already pushed forward above

		case msgTypeNotify:
			if env.Payload.Subscription.Type != "channel.cheer" {
				continue
			}
			ev, err := decodeCheerEvent(env.Payload.Event)
			if err != nil {
				s.log.Warn("bad cheer notification", slog.String("error", err.Error()))
				continue
			}
			s.handler(ev)

		case msgTypeReconnect:
			if u := env.Payload.Session.ReconnectURL; u != "" {
				s.log.Info("eventsub reconnect requested", slog.String("url", u))
				return u, nil
			}

		case msgTypeRevoke:
			return "", errors.New("eventsub subscription revoked")
		}
	}
}

// subscribe registers the channel.cheer subscription for this websocket
// session via the Helix API.
func (s *Source) subscribe(ctx context.Context, sessionID string) error {
	body := map[string]any{
		"type":    "channel.cheer",
		"version": "1",
		"condition": map[string]string{
			"broadcaster_user_id": s.cfg.BroadcasterID,
		},
		"transport": map[string]string{
			"method":     "websocket",
			"session_id": sessionID,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal subscription request: %w", err)
	}

	url := s.cfg.HelixURL + "/eventsub/subscriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build subscription request: %w", err)
	}
	req.Header.Set("Client-ID", s.cfg.ClientID)
	req.Header.Set("Authorization", "Bearer "+s.cfg.OAuthToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("create eventsub subscription: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("eventsub subscription rejected: status %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	s.log.Info("subscribed to channel.cheer", slog.String("broadcaster_id", s.cfg.BroadcasterID))
	return nil
}
