package announce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spechtlabs/go-otel-utils/otelzap"
	"go.uber.org/zap"

	"github.com/freecasterhq/freecaster-grid/pkg/grid"
)

const defaultTelegramBaseURL = "https://api.telegram.org"

// TelegramAnnouncer posts announcements to a Telegram chat via the Bot
// API sendMessage method.
type TelegramAnnouncer struct {
	me      string
	token   string
	chatID  int64
	baseURL string
	http    *http.Client
}

// TelegramOption customizes a TelegramAnnouncer.
type TelegramOption func(*TelegramAnnouncer)

// WithBaseURL overrides the Bot API endpoint, mainly for tests.
func WithBaseURL(url string) TelegramOption {
	return func(a *TelegramAnnouncer) { a.baseURL = url }
}

// NewTelegramAnnouncer creates a Telegram sink announcing as me.
func NewTelegramAnnouncer(me string, token string, chatID int64, opts ...TelegramOption) *TelegramAnnouncer {
	a := &TelegramAnnouncer{
		me:      me,
		token:   token,
		chatID:  chatID,
		baseURL: defaultTelegramBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}

	for _, opt := range opts {
		opt(a)
	}
	return a
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func (a *TelegramAnnouncer) send(ctx context.Context, text string) humane.Error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: a.chatID, Text: text})
	if err != nil {
		return humane.Wrap(err, "failed to marshal telegram message")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", a.baseURL, a.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return humane.Wrap(err, "failed to create telegram request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return humane.Wrap(err, "failed to reach telegram",
			"check network connectivity to api.telegram.org")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return humane.New(fmt.Sprintf("telegram returned status %d", resp.StatusCode),
			"verify telegram.token and telegram.chatID")
	}
	return nil
}

func (a *TelegramAnnouncer) AnnounceDeath(ctx context.Context, target grid.Node) humane.Error {
	if err := a.send(ctx, Message(a.me, target, true)); err != nil {
		otelzap.L().ErrorContext(ctx, "Telegram notification failed", zap.Error(err))
		return err
	}
	announcementsTotal.WithLabelValues("death").Inc()
	return nil
}

func (a *TelegramAnnouncer) AnnounceRecovery(ctx context.Context, target grid.Node) humane.Error {
	if err := a.send(ctx, Message(a.me, target, false)); err != nil {
		otelzap.L().ErrorContext(ctx, "Telegram notification failed", zap.Error(err))
		return err
	}
	announcementsTotal.WithLabelValues("recovery").Inc()
	return nil
}
