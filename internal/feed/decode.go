package feed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"basis-arb-bot/internal/market"

	"github.com/vmihailenco/msgpack/v5"
)

const pingPongTrID = "PINGPONG"

type FrameKind int

const (
	FrameData FrameKind = iota
	FramePing
	FrameAck
)

type Frame struct {
	Kind    FrameKind
	Message market.RawMessage
	// Note carries the broker's reply text for acks.
	Note string
}

var ErrUndecodable = errors.New("undecodable frame")

// DecodeFrame classifies one websocket payload. Binary payloads are msgpack
// envelopes; text payloads are JSON envelopes or pipe-delimited records.
func DecodeFrame(binary bool, data []byte, columns map[string][]string) (Frame, error) {
	if binary {
		var payload map[string]any
		if err := msgpack.Unmarshal(data, &payload); err != nil {
			return Frame{}, fmt.Errorf("%w: msgpack: %v", ErrUndecodable, err)
		}
		return envelopeFrame(payload)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Frame{}, ErrUndecodable
	}
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var payload map[string]any
		if err := dec.Decode(&payload); err != nil {
			return Frame{}, fmt.Errorf("%w: json: %v", ErrUndecodable, err)
		}
		return envelopeFrame(payload)
	}
	msg, ok := market.MessageFromDelimited(string(trimmed), columns)
	if !ok {
		return Frame{}, ErrUndecodable
	}
	return Frame{Kind: FrameData, Message: msg}, nil
}

func envelopeFrame(payload map[string]any) (Frame, error) {
	header, _ := payload["header"].(map[string]any)
	if trID, _ := header["tr_id"].(string); trID == pingPongTrID {
		return Frame{Kind: FramePing}, nil
	}
	if body, ok := payload["body"].(map[string]any); ok {
		if _, isReply := body["rt_cd"]; isReply {
			note, _ := body["msg1"].(string)
			return Frame{Kind: FrameAck, Note: note}, nil
		}
	}
	msg, ok := market.MessageFromEnvelope(payload)
	if !ok {
		return Frame{}, ErrUndecodable
	}
	return Frame{Kind: FrameData, Message: msg}, nil
}
