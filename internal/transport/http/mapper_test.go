package http

import (
	"encoding/json"
	"testing"

	"github.com/parlorchat/parlor-server/internal/core"
	"github.com/parlorchat/parlor-server/internal/proto"
)

func decodeInbound(t *testing.T, raw string) proto.Inbound {
	t.Helper()

	var inbound proto.Inbound
	if err := json.Unmarshal([]byte(raw), &inbound); err != nil {
		t.Fatalf("decode frame %s: %v", raw, err)
	}
	return inbound
}

// Clients send the message body under the "text" key; a frame shaped that way
// must survive decoding with its text intact.
func TestInboundSendMessageCarriesText(t *testing.T) {
	inbound := decodeInbound(t, `{"type":"send-message","data":{"room":"global","text":"hi there"}}`)

	cmd, err := inboundToCommand(inbound)
	if err != nil {
		t.Fatalf("inboundToCommand: %v", err)
	}
	if cmd == nil || cmd.Kind != core.CommandSendMessage {
		t.Fatalf("expected send-message command, got %+v", cmd)
	}
	if cmd.Room != "global" || cmd.Text != "hi there" {
		t.Fatalf("unexpected command fields: %+v", cmd)
	}
}

func TestInboundJoinRoomIsBareString(t *testing.T) {
	cmd, err := inboundToCommand(decodeInbound(t, `{"type":"join-room","data":"team"}`))
	if err != nil {
		t.Fatalf("inboundToCommand: %v", err)
	}
	if cmd == nil || cmd.Kind != core.CommandJoinRoom || cmd.Room != "team" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestInboundUnknownTypeIgnored(t *testing.T) {
	cmd, err := inboundToCommand(decodeInbound(t, `{"type":"mystery","data":{}}`))
	if err != nil {
		t.Fatalf("unknown type should not error: %v", err)
	}
	if cmd != nil {
		t.Fatalf("unknown type should map to nil, got %+v", cmd)
	}
}
