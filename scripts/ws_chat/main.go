// Command ws_chat is a small interactive client for manual testing: it
// connects with a token, joins a room and relays stdin lines as messages.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/parlorchat/parlor-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "JWT from /api/auth/login")
	room := flag.String("room", "global", "room to join")
	flag.Parse()

	if *token == "" {
		return errors.New("a -token is required; get one from /api/auth/login")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr+"?token="+*token, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	if *room != "global" {
		payload, err := json.Marshal(*room)
		if err != nil {
			return fmt.Errorf("marshal join: %w", err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundJoinRoom, Data: payload}); err != nil {
			return fmt.Errorf("send join: %w", err)
		}
	}

	fmt.Printf("Connected to %s in room %s\n", *addr, *room)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *room)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func decode[T any](data json.RawMessage) (T, bool) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		log.Printf("unmarshal event data: %v", err)
		return v, false
	}
	return v, true
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch outbound.Type {
		case proto.OutboundNewMessage:
			if evt, ok := decode[proto.NewMessage](outbound.Data); ok {
				name := evt.From.Name
				if name == "" {
					name = evt.From.Username
				}
				fmt.Printf("[%s] %s: %s\n", evt.To, name, evt.Text)
			}
		case proto.OutboundUserJoined:
			if evt, ok := decode[proto.UserJoined](outbound.Data); ok {
				fmt.Printf("[room %s] %s joined\n", evt.Room, evt.DisplayName)
			}
		case proto.OutboundUserLeft:
			if evt, ok := decode[proto.UserLeft](outbound.Data); ok {
				fmt.Printf("[room %s] %s left\n", evt.RoomName, evt.DisplayName)
			}
		case proto.OutboundOnlineUsers:
			if roster, ok := decode[[]proto.OnlineUser](outbound.Data); ok {
				names := make([]string, 0, len(roster))
				for _, u := range roster {
					names = append(names, u.DisplayName)
				}
				fmt.Printf("online: %s\n", strings.Join(names, ", "))
			}
		case proto.OutboundRoomError:
			if evt, ok := decode[proto.RoomError](outbound.Data); ok {
				fmt.Printf("error: %s %s\n", evt.Code, evt.Message)
			}
		case proto.OutboundRoomDeleted:
			if evt, ok := decode[proto.RoomDeleted](outbound.Data); ok {
				fmt.Printf("room %s was deleted\n", evt.RoomName)
			}
		case proto.OutboundTyping:
			// Too noisy for a line-based client.
		default:
			fmt.Printf("type=%s data=%s\n", outbound.Type, outbound.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, room string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			payload, err := json.Marshal(proto.SendMessageData{Room: room, Text: text})
			if err != nil {
				log.Printf("marshal msg: %v", err)
				return
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundSendMessage, Data: payload}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
