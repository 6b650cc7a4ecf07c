package ws

import "time"

// Bus payload shapes for connection lifecycle and delivery-error
// events. Consumers index on channel_user_id to group a user's
// connection churn.

type wsEventBody struct {
	ChannelUserID int    `json:"channel_user_id"`
	Event         string `json:"event"`
	ConnID        string `json:"conn_id"`
	DurationMS    int64  `json:"duration_ms"`
	Reason        string `json:"reason"`
}

type wsIdentityBody struct {
	UserID   int    `json:"user_id"`
	DeviceID string `json:"device_id"`
	IP       string `json:"ip"`
}

type wsEventPayload struct {
	WS       wsEventBody    `json:"ws"`
	Identity wsIdentityBody `json:"identity"`
}

func lifecyclePayload(event string, info ConnInfo, reason string) wsEventPayload {
	return wsEventPayload{
		WS: wsEventBody{
			ChannelUserID: info.UserID,
			Event:         event,
			ConnID:        info.ConnID,
			DurationMS:    time.Since(info.ConnectedAt).Milliseconds(),
			Reason:        reason,
		},
		Identity: wsIdentityBody{
			UserID:   info.UserID,
			DeviceID: info.DeviceID,
			IP:       info.IP,
		},
	}
}
