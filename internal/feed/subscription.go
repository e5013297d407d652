package feed

import (
	"basis-arb-bot/internal/config"
)

// Subscription is one realtime (tr_id, tr_key) registration.
type Subscription struct {
	TrID  string
	TrKey string
}

// Subscriptions lists the futures basis feed plus one net-buy feed per index key.
func Subscriptions(feed config.FeedConfig, strategy config.StrategyConfig) []Subscription {
	subs := []Subscription{{TrID: strategy.BasisTrID, TrKey: feed.FuturesCode}}
	for _, key := range feed.IndexKeys {
		subs = append(subs, Subscription{TrID: strategy.NetBuyTrID, TrKey: key})
	}
	return subs
}

type subscribeHeader struct {
	ApprovalKey string `json:"approval_key"`
	CustType    string `json:"custtype"`
	TrType      string `json:"tr_type"`
	ContentType string `json:"content-type"`
}

type subscribeInput struct {
	TrID  string `json:"tr_id"`
	TrKey string `json:"tr_key"`
}

type subscribeBody struct {
	Input subscribeInput `json:"input"`
}

type subscribeRequest struct {
	Header subscribeHeader `json:"header"`
	Body   subscribeBody   `json:"body"`
}

func newSubscribeRequest(approvalKey string, sub Subscription) subscribeRequest {
	return subscribeRequest{
		Header: subscribeHeader{
			ApprovalKey: approvalKey,
			CustType:    "P",
			TrType:      "1",
			ContentType: "utf-8",
		},
		Body: subscribeBody{Input: subscribeInput{TrID: sub.TrID, TrKey: sub.TrKey}},
	}
}
