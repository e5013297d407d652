package feed

import (
	"errors"
	"testing"

	"basis-arb-bot/internal/config"

	"github.com/vmihailenco/msgpack/v5"
)

var testColumns = map[string][]string{
	"H0IFCNT0": {"futs_shrn_iscd", "bsop_hour", "mrkt_basis"},
}

func TestDecodeFramePingPong(t *testing.T) {
	frame, err := DecodeFrame(false, []byte(`{"header":{"tr_id":"PINGPONG","datetime":"20250304091500"}}`), nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Kind != FramePing {
		t.Fatalf("expected ping frame, got %v", frame.Kind)
	}
}

func TestDecodeFrameSubscriptionReply(t *testing.T) {
	data := `{"header":{"tr_id":"H0IFCNT0","tr_key":"101S12"},"body":{"rt_cd":"0","msg_cd":"OPSP0000","msg1":"SUBSCRIBE SUCCESS","output":{"iv":"x","key":"y"}}}`
	frame, err := DecodeFrame(false, []byte(data), nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Kind != FrameAck || frame.Note != "SUBSCRIBE SUCCESS" {
		t.Fatalf("unexpected frame %+v", frame)
	}
}

func TestDecodeFrameJSONRows(t *testing.T) {
	frame, err := DecodeFrame(false, []byte(`{"tr_id":"H0UPPGM0","rows":[{"nabt_smtn_ntby_qty":1800}]}`), nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Kind != FrameData || frame.Message.TrID != "H0UPPGM0" || len(frame.Message.Rows) != 1 {
		t.Fatalf("unexpected frame %+v", frame)
	}
}

func TestDecodeFramePipe(t *testing.T) {
	frame, err := DecodeFrame(false, []byte("0|H0IFCNT0|001|101S12^091500^0.27"), testColumns)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Kind != FrameData || frame.Message.Rows[0]["mrkt_basis"] != "0.27" {
		t.Fatalf("unexpected frame %+v", frame)
	}
}

func TestDecodeFrameMsgpack(t *testing.T) {
	data, err := msgpack.Marshal(map[string]any{
		"tr_id": "H0IFCNT0",
		"rows":  []any{map[string]any{"mrkt_basis": 0.31, "bsop_hour": "091501"}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	frame, err := DecodeFrame(true, data, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if frame.Kind != FrameData || frame.Message.TrID != "H0IFCNT0" || len(frame.Message.Rows) != 1 {
		t.Fatalf("unexpected frame %+v", frame)
	}
}

func TestDecodeFrameRejectsGarbage(t *testing.T) {
	cases := []struct {
		binary bool
		data   string
	}{
		{false, ""},
		{false, "{broken"},
		{false, "0|H0STCNT0|001|a^b"},
		{false, `{"foo":"bar"}`},
		{true, "\xc1"},
	}
	for _, tc := range cases {
		if _, err := DecodeFrame(tc.binary, []byte(tc.data), testColumns); !errors.Is(err, ErrUndecodable) {
			t.Fatalf("%q: expected ErrUndecodable, got %v", tc.data, err)
		}
	}
}

func TestSubscriptions(t *testing.T) {
	feed := config.FeedConfig{FuturesCode: "101S12", IndexKeys: []string{"0001", "1001"}}
	strategy := config.StrategyConfig{BasisTrID: "H0IFCNT0", NetBuyTrID: "H0UPPGM0"}
	subs := Subscriptions(feed, strategy)
	if len(subs) != 3 {
		t.Fatalf("expected 3 subscriptions, got %d", len(subs))
	}
	if subs[0] != (Subscription{TrID: "H0IFCNT0", TrKey: "101S12"}) {
		t.Fatalf("unexpected basis subscription %+v", subs[0])
	}
	if subs[2] != (Subscription{TrID: "H0UPPGM0", TrKey: "1001"}) {
		t.Fatalf("unexpected net buy subscription %+v", subs[2])
	}
}
