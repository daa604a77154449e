// Package telegram wraps the Telegram Bot API file surface used as the
// durable blob store: sending objects to a channel, resolving file
// locations and fetching bytes back.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/memohai/telecloud/internal/media"
)

// Credentials identify the bot and the channel that stores an owner's files.
type Credentials struct {
	BotToken   string
	ChannelRef string
}

// Payload is an object to send.
type Payload struct {
	Name  string
	Mime  string
	Bytes []byte
}

// SentObject is the remote reference returned by a successful send.
type SentObject struct {
	RemoteObjectID  string
	RemoteMessageID int
	ReportedSize    int64
	Class           media.Class
}

// Location is the result of a metadata lookup.
type Location struct {
	DirectURL    string
	FilePath     string
	ReportedSize int64
}

// Options configures a Client. Zero values select the public Bot API.
type Options struct {
	APIEndpoint  string
	FileEndpoint string
	HTTPClient   *http.Client
}

// Client issues Bot API calls. It holds no per-owner state; every call builds
// a short-lived bot bound to the caller's context and credential.
type Client struct {
	logger       *slog.Logger
	apiEndpoint  string
	fileEndpoint string
	httpClient   *http.Client
}

// NewClient creates a Client with the given logger and options.
func NewClient(log *slog.Logger, opts Options) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		logger:       log.With(slog.String("component", "telegram")),
		apiEndpoint:  strings.TrimSpace(opts.APIEndpoint),
		fileEndpoint: strings.TrimSpace(opts.FileEndpoint),
		httpClient:   opts.HTTPClient,
	}
	if c.apiEndpoint == "" {
		c.apiEndpoint = tgbotapi.APIEndpoint
	}
	if c.fileEndpoint == "" {
		c.fileEndpoint = tgbotapi.FileEndpoint
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	_ = tgbotapi.SetLogger(&slogBotLogger{log: c.logger})
	return c
}

// callClient binds outgoing Bot API requests to a context and remembers the
// last HTTP status so oversize rejections without a JSON body are recognized.
type callClient struct {
	ctx    context.Context
	base   *http.Client
	status int
}

func (c *callClient) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.base.Do(req.WithContext(c.ctx))
	if resp != nil {
		c.status = resp.StatusCode
	}
	return resp, err
}

func (c *Client) bot(ctx context.Context, token string) (*tgbotapi.BotAPI, *callClient) {
	call := &callClient{ctx: ctx, base: c.httpClient}
	bot := &tgbotapi.BotAPI{
		Token:  strings.TrimSpace(token),
		Buffer: 100,
		Client: call,
	}
	bot.SetAPIEndpoint(c.apiEndpoint)
	return bot, call
}

// SendObject uploads payload to the channel using the send method for class
// and returns the platform's handle for the stored object. Photos resolve to
// the largest returned resolution.
func (c *Client) SendObject(ctx context.Context, creds Credentials, payload Payload, class media.Class, caption string) (SentObject, error) {
	if len(payload.Bytes) == 0 {
		return SentObject{}, fmt.Errorf("payload is empty")
	}
	chat, err := baseChat(creds.ChannelRef)
	if err != nil {
		return SentObject{}, err
	}
	file := tgbotapi.FileBytes{Name: payloadName(payload.Name, class), Bytes: payload.Bytes}
	base := tgbotapi.BaseFile{BaseChat: chat, File: file}

	var (
		chattable tgbotapi.Chattable
		op        string
	)
	switch class {
	case media.ClassImage:
		chattable = tgbotapi.PhotoConfig{BaseFile: base, Caption: caption}
		op = "sendPhoto"
	case media.ClassVideo:
		chattable = tgbotapi.VideoConfig{BaseFile: base, Caption: caption, SupportsStreaming: true}
		op = "sendVideo"
	case media.ClassAudio:
		chattable = tgbotapi.AudioConfig{BaseFile: base, Caption: caption}
		op = "sendAudio"
	default:
		class = media.ClassDocument
		chattable = tgbotapi.DocumentConfig{BaseFile: base, Caption: caption}
		op = "sendDocument"
	}

	bot, call := c.bot(ctx, creds.BotToken)
	msg, err := bot.Send(chattable)
	if err != nil {
		c.logger.Warn("send object failed", slog.String("op", op), slog.Int("status", call.status), slog.Any("error", err))
		return SentObject{}, classifyError(ctx, op, call.status, err)
	}
	return sentObjectFromMessage(op, class, msg)
}

func sentObjectFromMessage(op string, class media.Class, msg tgbotapi.Message) (SentObject, error) {
	ref, ok := fileForClass(&msg, class)
	if !ok {
		// Telegram may store a payload under another kind (e.g. a video it
		// cannot stream comes back as a document).
		ref, ok = ExtractFile(&msg)
	}
	if !ok {
		return SentObject{}, fmt.Errorf("%s: %w: response carries no file", op, ErrRemoteRejected)
	}
	return SentObject{
		RemoteObjectID:  ref.FileID,
		RemoteMessageID: msg.MessageID,
		ReportedSize:    ref.FileSize,
		Class:           ref.Class,
	}, nil
}

// ResolveObjectLocation looks up the file path for a remote object. Objects
// above the platform's metadata ceiling fail with ErrRemoteQuotaExceeded;
// callers fall back to BuildStreamURL with the raw id.
func (c *Client) ResolveObjectLocation(ctx context.Context, botToken, remoteObjectID string) (Location, error) {
	remoteObjectID = strings.TrimSpace(remoteObjectID)
	if remoteObjectID == "" {
		return Location{}, fmt.Errorf("remote object id is required")
	}
	bot, call := c.bot(ctx, botToken)
	file, err := bot.GetFile(tgbotapi.FileConfig{FileID: remoteObjectID})
	if err != nil {
		return Location{}, classifyError(ctx, "getFile", call.status, err)
	}
	if strings.TrimSpace(file.FilePath) == "" {
		return Location{}, fmt.Errorf("getFile: %w: empty file_path", ErrRemoteRejected)
	}
	return Location{
		DirectURL:    c.BuildStreamURL(botToken, file.FilePath),
		FilePath:     file.FilePath,
		ReportedSize: int64(file.FileSize),
	}, nil
}

// BuildStreamURL returns the file-endpoint URL for a path or raw object id.
func (c *Client) BuildStreamURL(botToken, pathOrID string) string {
	return BuildStreamURL(c.fileEndpoint, botToken, pathOrID)
}

// BuildStreamURL formats endpoint, a printf template taking (token, path).
func BuildStreamURL(endpoint, botToken, pathOrID string) string {
	if endpoint == "" {
		endpoint = tgbotapi.FileEndpoint
	}
	return fmt.Sprintf(endpoint, strings.TrimSpace(botToken), strings.TrimLeft(strings.TrimSpace(pathOrID), "/"))
}

// Fetch downloads url, rejecting bodies larger than maxBytes. The returned
// error never contains the URL, which embeds the bot token.
func (c *Client) Fetch(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyError(ctx, "download", 0, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, classifyError(ctx, "download", resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode))
	}
	data, err := media.ReadAllWithLimit(resp.Body, maxBytes)
	if err != nil {
		return nil, classifyError(ctx, "download", resp.StatusCode, err)
	}
	return data, nil
}

// SendText posts a plain message to the channel and returns its message id.
func (c *Client) SendText(ctx context.Context, creds Credentials, text string) (int, error) {
	chat, err := baseChat(creds.ChannelRef)
	if err != nil {
		return 0, err
	}
	bot, call := c.bot(ctx, creds.BotToken)
	msg, err := bot.Send(tgbotapi.MessageConfig{BaseChat: chat, Text: text})
	if err != nil {
		return 0, classifyError(ctx, "sendMessage", call.status, err)
	}
	return msg.MessageID, nil
}

// SetWebhook registers url for message and channel_post updates.
func (c *Client) SetWebhook(ctx context.Context, botToken, url, secret string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("webhook url is required")
	}
	params := tgbotapi.Params{}
	params.AddNonEmpty("url", url)
	params.AddNonEmpty("secret_token", secret)
	if err := params.AddInterface("allowed_updates", []string{"message", "channel_post"}); err != nil {
		return err
	}
	bot, call := c.bot(ctx, botToken)
	if _, err := bot.MakeRequest("setWebhook", params); err != nil {
		return classifyError(ctx, "setWebhook", call.status, err)
	}
	return nil
}

// WebhookStatus is the subset of getWebhookInfo surfaced to owners.
type WebhookStatus struct {
	URL                string     `json:"url"`
	PendingUpdateCount int        `json:"pendingUpdateCount"`
	LastErrorMessage   string     `json:"lastErrorMessage,omitempty"`
	LastErrorAt        *time.Time `json:"lastErrorAt,omitempty"`
}

// WebhookInfo reports the bot's current webhook registration.
func (c *Client) WebhookInfo(ctx context.Context, botToken string) (WebhookStatus, error) {
	bot, call := c.bot(ctx, botToken)
	info, err := bot.GetWebhookInfo()
	if err != nil {
		return WebhookStatus{}, classifyError(ctx, "getWebhookInfo", call.status, err)
	}
	status := WebhookStatus{
		URL:                info.URL,
		PendingUpdateCount: info.PendingUpdateCount,
		LastErrorMessage:   info.LastErrorMessage,
	}
	if info.LastErrorDate > 0 {
		at := time.Unix(int64(info.LastErrorDate), 0).UTC()
		status.LastErrorAt = &at
	}
	return status, nil
}

// DeleteWebhook removes the bot's webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context, botToken string) error {
	bot, call := c.bot(ctx, botToken)
	if _, err := bot.MakeRequest("deleteWebhook", tgbotapi.Params{}); err != nil {
		return classifyError(ctx, "deleteWebhook", call.status, err)
	}
	return nil
}

func baseChat(target string) (tgbotapi.BaseChat, error) {
	target = strings.TrimSpace(target)
	if strings.HasPrefix(target, "@") && len(target) > 1 {
		return tgbotapi.BaseChat{ChannelUsername: target}, nil
	}
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return tgbotapi.BaseChat{}, ErrInvalidTarget
	}
	return tgbotapi.BaseChat{ChatID: chatID}, nil
}

// ValidateChannelRef reports whether target is usable as a send destination.
func ValidateChannelRef(target string) error {
	_, err := baseChat(target)
	return err
}

func payloadName(name string, class media.Class) string {
	name = strings.TrimSpace(name)
	if name != "" {
		return name
	}
	return class.String() + "." + media.InferExtension(class, "")
}

type slogBotLogger struct {
	log *slog.Logger
}

func (l *slogBotLogger) Println(v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l *slogBotLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, v...))
}
