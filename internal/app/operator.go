package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"basis-arb-bot/internal/alerts"
	"basis-arb-bot/internal/strategy"

	"go.uber.org/zap"
)

const (
	operatorOffsetKey = "ops:telegram:offset"
	operatorAuditKey  = "ops:audit:"
)

type operatorMeta struct {
	UpdateID int64
	UserID   int64
	Username string
	ChatID   int64
	Raw      string
}

type operatorAuditEvent struct {
	UpdateID     int64     `json:"update_id"`
	Time         time.Time `json:"time"`
	Action       string    `json:"action"`
	Command      string    `json:"command"`
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username,omitempty"`
	ChatID       int64     `json:"chat_id"`
	PausedBefore bool      `json:"paused_before"`
	PausedAfter  bool      `json:"paused_after"`
}

func (a *App) startOperator(ctx context.Context) {
	if a.cfg == nil || a.operator == nil || a.log == nil {
		return
	}
	if !a.cfg.Telegram.OperatorEnabled {
		return
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(a.cfg.Telegram.ChatID), 10, 64)
	if err != nil {
		a.log.Warn("telegram operator disabled: invalid chat_id", zap.Error(err))
		return
	}
	pollInterval := a.cfg.Telegram.OperatorPollInterval
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	allowedUsers := make(map[int64]struct{}, len(a.cfg.Telegram.OperatorAllowedUserIDs))
	for _, id := range a.cfg.Telegram.OperatorAllowedUserIDs {
		allowedUsers[id] = struct{}{}
	}
	go a.operatorLoop(ctx, chatID, allowedUsers, pollInterval)
}

func (a *App) operatorLoop(ctx context.Context, chatID int64, allowedUsers map[int64]struct{}, pollInterval time.Duration) {
	offset := a.loadOperatorOffset(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		updates, err := a.operator.GetUpdates(ctx, offset, pollInterval)
		if err != nil {
			a.logOperatorError(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollInterval):
			}
			continue
		}
		if a.operatorWarned {
			a.log.Info("telegram operator recovered")
			a.operatorWarned = false
		}
		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
				a.saveOperatorOffset(ctx, offset)
			}
			a.handleOperatorUpdate(ctx, upd, chatID, allowedUsers)
		}
	}
}

func (a *App) handleOperatorUpdate(ctx context.Context, upd alerts.Update, chatID int64, allowedUsers map[int64]struct{}) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || msg.From == nil {
		return
	}
	if msg.Chat.ID != chatID {
		return
	}
	if len(allowedUsers) > 0 {
		if _, ok := allowedUsers[msg.From.ID]; !ok {
			return
		}
	}
	cmd, ok := parseOperatorCommand(msg.Text)
	if !ok {
		return
	}
	meta := operatorMeta{
		UpdateID: upd.UpdateID,
		UserID:   msg.From.ID,
		Username: msg.From.Username,
		ChatID:   msg.Chat.ID,
		Raw:      msg.Text,
	}
	resp := a.handleOperatorCommand(ctx, cmd, meta)
	if resp == "" {
		return
	}
	if err := a.operator.Send(ctx, resp); err != nil {
		a.log.Warn("operator response failed", zap.Error(err))
	}
}

// parseOperatorCommand extracts the lower-cased command name, dropping any
// "@botname" suffix.
func parseOperatorCommand(text string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return "", false
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	if cmd == "" {
		return "", false
	}
	return strings.ToLower(cmd), true
}

func (a *App) handleOperatorCommand(ctx context.Context, cmd string, meta operatorMeta) string {
	switch cmd {
	case "status":
		return a.operatorStatus()
	case "pause":
		before := a.evaluator.Status().Paused
		a.evaluator.SetPaused(true)
		a.auditPause(ctx, "pause", meta, before, true)
		if before {
			return "entries already paused"
		}
		return "entries paused"
	case "resume":
		before := a.evaluator.Status().Paused
		a.evaluator.SetPaused(false)
		a.auditPause(ctx, "resume", meta, before, false)
		if !before {
			return "entries already active"
		}
		return "entries resumed"
	case "params":
		return a.operatorParams()
	case "audit":
		return a.operatorAudit(ctx)
	default:
		return operatorHelpText()
	}
}

func (a *App) operatorStatus() string {
	st := a.evaluator.Status()
	lines := []string{strategy.RenderStatus(st)}
	if st.Position.EntryTime != nil {
		lines = append(lines, fmt.Sprintf("entered_at: %s", st.Position.EntryTime.Format(time.RFC3339)))
	}
	if !st.ObservedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("last_tick: %s", st.ObservedAt.Format(time.RFC3339)))
	}
	return strings.Join(lines, "\n")
}

func (a *App) operatorParams() string {
	s := a.cfg.Strategy
	r := a.cfg.Risk
	return strings.Join([]string{
		fmt.Sprintf("basis_threshold: %.2f", s.BaseBasisThreshold),
		fmt.Sprintf("net_buy_threshold: %.0f", s.NetBuyThreshold),
		fmt.Sprintf("active_window: %s-%s %s", s.ActiveWindow.Start, s.ActiveWindow.End, s.Timezone),
		fmt.Sprintf("trend_window: %s", s.TrendWindow),
		fmt.Sprintf("max_hold: %s", r.MaxHold),
		fmt.Sprintf("loss_limit: %d", r.LossLimit),
		fmt.Sprintf("emergency_basis: %.2f", r.EmergencyBasisValue()),
	}, "\n")
}

type keyLister interface {
	Keys(ctx context.Context, prefix string, limit int) ([]string, error)
}

func (a *App) operatorAudit(ctx context.Context) string {
	lister, ok := a.store.(keyLister)
	if !ok {
		return "audit log unavailable"
	}
	keys, err := lister.Keys(ctx, operatorAuditKey, 5)
	if err != nil {
		return fmt.Sprintf("audit log failed: %v", err)
	}
	if len(keys) == 0 {
		return "no operator actions recorded"
	}
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := a.store.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var event operatorAuditEvent
		if err := json.Unmarshal([]byte(raw), &event); err != nil {
			continue
		}
		who := event.Username
		if who == "" {
			who = strconv.FormatInt(event.UserID, 10)
		}
		lines = append(lines, fmt.Sprintf("%s %s by %s", event.Time.Format(time.RFC3339), event.Action, who))
	}
	return strings.Join(lines, "\n")
}

func operatorHelpText() string {
	return strings.Join([]string{
		"commands:",
		"/status - position, latest signals and loss streak",
		"/pause - stop opening new positions",
		"/resume - allow new positions again",
		"/params - show thresholds and risk limits",
		"/audit - recent pause/resume actions",
	}, "\n")
}

func (a *App) logOperatorError(err error) {
	if a.operatorWarned {
		return
	}
	a.operatorWarned = true
	a.log.Warn("telegram operator failed", zap.Error(err))
}

func (a *App) loadOperatorOffset(ctx context.Context) int64 {
	if a.store == nil {
		return 0
	}
	raw, ok, err := a.store.Get(ctx, operatorOffsetKey)
	if err != nil || !ok {
		return 0
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

func (a *App) saveOperatorOffset(ctx context.Context, offset int64) {
	if a.store == nil {
		return
	}
	if err := a.store.Set(ctx, operatorOffsetKey, strconv.FormatInt(offset, 10)); err != nil {
		a.log.Warn("operator offset save failed", zap.Error(err))
	}
}

func (a *App) auditPause(ctx context.Context, action string, meta operatorMeta, before, after bool) {
	if a.store == nil {
		return
	}
	now := a.clock.Now().UTC()
	event := operatorAuditEvent{
		UpdateID:     meta.UpdateID,
		Time:         now,
		Action:       action,
		Command:      meta.Raw,
		UserID:       meta.UserID,
		Username:     meta.Username,
		ChatID:       meta.ChatID,
		PausedBefore: before,
		PausedAfter:  after,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	key := fmt.Sprintf("%s%d:%d", operatorAuditKey, now.UnixNano(), meta.UpdateID)
	if err := a.store.Set(ctx, key, string(payload)); err != nil {
		a.log.Warn("operator audit failed", zap.Error(err))
	}
	a.log.Info("operator command", zap.String("action", action), zap.Int64("user_id", meta.UserID), zap.Bool("paused", after))
}
