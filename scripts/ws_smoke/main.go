package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vmelnik/chatrelay/internal/proto"
)

// Manual smoke probe: connects to a running server, joins a channel, posts a
// message and waits for both the ack and the fanned-out event.
func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "JWT from /api/login")
	channel := flag.String("channel", "", "channel id to join")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *channel == "" {
		return fmt.Errorf("-channel is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	url := *addr
	if *token != "" {
		url += "?token=" + *token
	}
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(seq int64, typ string, data any) error {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", typ, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Seq: seq, Data: raw}); err != nil {
			return fmt.Errorf("send %s: %w", typ, err)
		}
		return nil
	}

	if err := send(1, proto.InboundTypeChannelJoin, proto.ChannelData{ChannelID: *channel}); err != nil {
		return err
	}
	if err := send(2, proto.InboundTypeMessageNew, proto.MessageNewData{
		ChannelID: *channel,
		Text:      *text,
		ClientID:  "smoke-1",
	}); err != nil {
		return err
	}

	sawAck := false
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		raw, err := json.Marshal(outbound.Data)
		if err != nil {
			return fmt.Errorf("marshal outbound data: %w", err)
		}

		switch outbound.Type {
		case proto.OutboundTypeAck:
			fmt.Printf("Ack seq=%d data=%s\n", outbound.Seq, string(raw))
			if outbound.Seq == 2 {
				sawAck = true
			}
		case proto.OutboundTypeError:
			return fmt.Errorf("server error: %s (%s)", outbound.Error.Msg, outbound.Error.Code)
		case proto.OutboundTypeEvent:
			fmt.Printf("Event %s data=%s\n", outbound.Event, string(raw))
			if outbound.Event == "message:received" && sawAck {
				return nil
			}
		}
	}
}
