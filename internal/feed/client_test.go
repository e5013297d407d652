package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"basis-arb-bot/internal/config"
	"basis-arb-bot/internal/market"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func TestClientSubscribesEchoesPingAndDelivers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	subCh := make(chan map[string]any, 4)
	echoCh := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var sub map[string]any
		_ = json.Unmarshal(data, &sub)
		subCh <- sub

		ping := `{"header":{"tr_id":"PINGPONG","datetime":"20250304091500"}}`
		_ = conn.Write(ctx, websocket.MessageText, []byte(ping))
		_, echo, err := conn.Read(ctx)
		if err != nil {
			return
		}
		echoCh <- string(echo)

		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"tr_id":"H0UPPGM0","rows":[{"nabt_smtn_ntby_qty":"2000"}]}`))
		_ = conn.Write(ctx, websocket.MessageText, []byte("0|H0IFCNT0|001|101S12^091500^0.27"))
		packed, _ := msgpack.Marshal(map[string]any{"tr_id": "H0IFCNT0", "rows": []any{map[string]any{"mrkt_basis": 0.3}}})
		_ = conn.Write(ctx, websocket.MessageBinary, packed)
		_, _, _ = conn.Read(ctx)
	}))
	defer server.Close()

	cfg := config.FeedConfig{
		URL:            "ws" + strings.TrimPrefix(server.URL, "http"),
		ApprovalKey:    "approval",
		ReconnectDelay: 10 * time.Millisecond,
		Columns:        testColumns,
	}
	client := New(cfg, zap.NewNop())
	if err := client.Subscribe(ctx, Subscription{TrID: "H0IFCNT0", TrKey: "101S12"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	msgCh := make(chan market.RawMessage, 4)
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go func() {
		_ = client.Run(runCtx, func(msg market.RawMessage) { msgCh <- msg })
	}()

	select {
	case sub := <-subCh:
		header, _ := sub["header"].(map[string]any)
		body, _ := sub["body"].(map[string]any)
		input, _ := body["input"].(map[string]any)
		if header["approval_key"] != "approval" || header["tr_type"] != "1" {
			t.Fatalf("unexpected subscription header %v", header)
		}
		if input["tr_id"] != "H0IFCNT0" || input["tr_key"] != "101S12" {
			t.Fatalf("unexpected subscription input %v", input)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for subscription")
	}

	select {
	case echo := <-echoCh:
		if !strings.Contains(echo, "PINGPONG") {
			t.Fatalf("expected PINGPONG echo, got %s", echo)
		}
	case <-ctx.Done():
		t.Fatalf("timed out waiting for echo")
	}

	var got []market.RawMessage
	for len(got) < 3 {
		select {
		case msg := <-msgCh:
			got = append(got, msg)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for messages, got %d", len(got))
		}
	}
	if got[0].TrID != "H0UPPGM0" || got[1].TrID != "H0IFCNT0" || got[2].TrID != "H0IFCNT0" {
		t.Fatalf("unexpected messages %+v", got)
	}
}
