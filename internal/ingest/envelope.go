package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cheervox-labs/cheervox/internal/cheer"
)

// EventSub websocket message types.
const (
	msgTypeWelcome   = "session_welcome"
	msgTypeKeepalive = "session_keepalive"
	msgTypeNotify    = "notification"
	msgTypeReconnect = "session_reconnect"
	msgTypeRevoke    = "revocation"
)

// envelope is the outer frame of every EventSub websocket message.
type envelope struct {
	Metadata struct {
		MessageID   string `json:"message_id"`
		MessageType string `json:"message_type"`
	} `json:"metadata"`
	Payload struct {
		Session struct {
			ID                      string  `json:"id"`
			KeepaliveTimeoutSeconds float64 `json:"keepalive_timeout_seconds"`
			ReconnectURL            string  `json:"reconnect_url"`
		} `json:"session"`
		Subscription struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"subscription"`
		Event json.RawMessage `json:"event"`
	} `json:"payload"`
}

// cheerNotification is payload.event for channel.cheer notifications.
type cheerNotification struct {
	UserName string `json:"user_name"`
	Bits     int    `json:"bits"`
	Message  string `json:"message"`
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("decode eventsub envelope: %w", err)
	}
	return env, nil
}

// decodeCheerEvent turns a channel.cheer notification payload into a
// pipeline event. Sender names are lowercased and message text is
// sanitized before anything downstream sees it.
func decodeCheerEvent(raw json.RawMessage) (cheer.Event, error) {
	var n cheerNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		return cheer.Event{}, fmt.Errorf("decode cheer event: %w", err)
	}
	return cheer.Event{
		Sender:  strings.ToLower(n.UserName),
		Message: sanitizeMessage(n.Message),
		Bits:    n.Bits,
	}, nil
}

// sanitizeMessage drops runes outside the Latin-1 range. Cheer messages
// arrive with emoji and decorative glyphs that no voice can pronounce and
// some of which break downstream file naming.
func sanitizeMessage(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r <= 0xFF {
			b.WriteRune(r)
		}
	}
	return b.String()
}
