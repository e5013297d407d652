package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const approvalPath = "/oauth2/Approval"

var ErrMissingCredentials = errors.New("kis app key and secret are required")

type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type ApprovalRequest struct {
	GrantType string `json:"grant_type"`
	AppKey    string `json:"appkey"`
	SecretKey string `json:"secretkey"`
}

type approvalResponse struct {
	ApprovalKey string `json:"approval_key"`
}

// ApprovalKey exchanges app credentials for a websocket approval key.
func (c *Client) ApprovalKey(ctx context.Context, appKey, appSecret string) (string, error) {
	appKey = strings.TrimSpace(appKey)
	appSecret = strings.TrimSpace(appSecret)
	if appKey == "" || appSecret == "" {
		return "", ErrMissingCredentials
	}
	var resp approvalResponse
	req := ApprovalRequest{GrantType: "client_credentials", AppKey: appKey, SecretKey: appSecret}
	if err := c.post(ctx, approvalPath, req, &resp); err != nil {
		return "", fmt.Errorf("approval key: %w", err)
	}
	if resp.ApprovalKey == "" {
		return "", errors.New("approval key: empty approval_key in response")
	}
	c.log.Info("websocket approval key issued")
	return resp.ApprovalKey, nil
}

func (c *Client) post(ctx context.Context, path string, req, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	url := c.baseURL + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
