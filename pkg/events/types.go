// Package events delivers real-time processing, queue, and status events to
// subscribed clients over persistent WebSocket connections.
//
// Channels are a closed set. A client authenticates first, then subscribes to
// channels; the discussion channel is additionally keyed by a room id. Domain
// components publish to the in-process Bus; while at least one client is
// connected the manager bridges the Bus onto the events channel.
package events

import "fmt"

// The closed channel set.
const (
	ChannelEvents        = "events"        // processing events
	ChannelStatus        = "status"        // worker and integration health
	ChannelNotifications = "notifications" // user-directed notices
	ChannelQueue         = "queue"         // review-queue lifecycle
	ChannelDiscussion    = "discussion"    // room-keyed conversation
)

// KnownChannel reports whether the name is in the closed channel set.
func KnownChannel(name string) bool {
	switch name {
	case ChannelEvents, ChannelStatus, ChannelNotifications, ChannelQueue, ChannelDiscussion:
		return true
	}
	return false
}

// channelKey is the subscription map key: the channel name, suffixed with the
// room id for room-keyed channels.
func channelKey(channel, roomID string) string {
	if roomID == "" {
		return channel
	}
	return channel + ":" + roomID
}

// Inbound frame types.
const (
	FrameAuth        = "auth"
	FramePing        = "ping"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
)

// Outbound frame types.
const (
	FrameAuthenticated = "authenticated"
	FramePong          = "pong"
	FrameConnected     = "connected"
	FrameSubscribed    = "subscribed"
	FrameUnsubscribed  = "unsubscribed"
	FrameError         = "error"
)

// Domain broadcast types.
const (
	FrameProcessingEvent = "processing_event"
	FrameItemAdded       = "item_added"
	FrameItemUpdated     = "item_updated"
	FrameItemRemoved     = "item_removed"
	FrameStatsUpdated    = "stats_updated"
)

// StatusAuthFailure is the WebSocket close code for a failed or missing auth
// frame.
const StatusAuthFailure = 4001

// ClientFrame is the JSON structure of client → server frames.
type ClientFrame struct {
	Type    string `json:"type"`
	Token   string `json:"token,omitempty"`
	Channel string `json:"channel,omitempty"`
	RoomID  string `json:"room_id,omitempty"`
}

// ErrUnauthorized indicates a rejected auth token.
var ErrUnauthorized = fmt.Errorf("unauthorized")

// TokenVerifier authenticates the first inbound frame of a connection.
type TokenVerifier interface {
	// Verify returns the user id for a valid token, or an error.
	Verify(token string) (string, error)
}

// StaticTokenVerifier accepts a fixed token → user mapping. Suitable for
// single-user deployments.
type StaticTokenVerifier map[string]string

// Verify implements TokenVerifier.
func (v StaticTokenVerifier) Verify(token string) (string, error) {
	user, ok := v[token]
	if !ok || token == "" {
		return "", ErrUnauthorized
	}
	return user, nil
}
