package http

import (
	"encoding/json"
	"fmt"

	"github.com/parlorchat/parlor-server/internal/core"
	"github.com/parlorchat/parlor-server/internal/proto"
)

// inboundToCommand maps a wire event to a hub command. Unknown event types
// map to nil and are ignored; malformed payloads are errors and terminate the
// connection.
func inboundToCommand(inbound proto.Inbound) (*core.Command, error) {
	switch inbound.Type {
	case proto.InboundJoinRoom:
		var room string
		if err := json.Unmarshal(inbound.Data, &room); err != nil {
			return nil, fmt.Errorf("decode join-room: %w", err)
		}
		return &core.Command{Kind: core.CommandJoinRoom, Room: room}, nil
	case proto.InboundLeaveRoom:
		var room string
		if err := json.Unmarshal(inbound.Data, &room); err != nil {
			return nil, fmt.Errorf("decode leave-room: %w", err)
		}
		return &core.Command{Kind: core.CommandLeaveRoom, Room: room}, nil
	case proto.InboundSendMessage:
		var msg proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, fmt.Errorf("decode send-message: %w", err)
		}
		return &core.Command{Kind: core.CommandSendMessage, Room: msg.Room, Text: msg.Text}, nil
	case proto.InboundTyping:
		var typing proto.TypingData
		if len(inbound.Data) > 0 {
			if err := json.Unmarshal(inbound.Data, &typing); err != nil {
				return nil, fmt.Errorf("decode typing: %w", err)
			}
		}
		return &core.Command{Kind: core.CommandTyping, Room: typing.Room, Username: typing.Username}, nil
	default:
		return nil, nil
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventJoinedRoom:
		return proto.Outbound{
			Type: proto.OutboundJoinedRoom,
			Data: proto.JoinedRoom{Room: event.Room, Success: event.Success},
		}
	case core.EventRoomError:
		data := proto.RoomError{Message: "unknown error"}
		if event.Err != nil {
			data = proto.RoomError{Code: event.Err.Code, Message: event.Err.Message}
		}
		return proto.Outbound{Type: proto.OutboundRoomError, Data: data}
	case core.EventNewMessage:
		msg := event.Message
		var fromID int64
		if msg.FromID != nil {
			fromID = *msg.FromID
		}
		return proto.Outbound{
			Type: proto.OutboundNewMessage,
			Data: proto.NewMessage{
				ID: msg.ID,
				From: proto.Sender{
					ID:       fromID,
					Username: msg.FromUsername,
					Name:     msg.FromName,
				},
				To:        msg.Room,
				Text:      msg.Text,
				CreatedAt: msg.CreatedAt,
			},
		}
	case core.EventUserJoined:
		return proto.Outbound{
			Type: proto.OutboundUserJoined,
			Data: proto.UserJoined{DisplayName: event.DisplayName, Room: event.Room},
		}
	case core.EventUserLeft:
		return proto.Outbound{
			Type: proto.OutboundUserLeft,
			Data: proto.UserLeft{
				UserID:      event.UserID,
				DisplayName: event.DisplayName,
				RoomName:    event.Room,
				RoomID:      event.RoomID,
			},
		}
	case core.EventOnlineUsers:
		roster := make([]proto.OnlineUser, 0, len(event.Roster))
		for _, entry := range event.Roster {
			roster = append(roster, proto.OnlineUser{
				UserID:      entry.UserID,
				Username:    entry.Username,
				DisplayName: entry.DisplayName,
			})
		}
		return proto.Outbound{Type: proto.OutboundOnlineUsers, Data: roster}
	case core.EventRoomDeleted:
		return proto.Outbound{
			Type: proto.OutboundRoomDeleted,
			Data: proto.RoomDeleted{RoomID: event.RoomID, RoomName: event.Room},
		}
	case core.EventTyping:
		return proto.Outbound{
			Type: proto.OutboundTyping,
			Data: proto.Typing{Username: event.Username, Room: event.Room},
		}
	default:
		return proto.Outbound{Type: "unknown"}
	}
}
