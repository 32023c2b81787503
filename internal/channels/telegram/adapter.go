// Package telegram connects the bot to Telegram with long polling.
package telegram

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/haasonsaas/mcpbot/internal/channels"
	"github.com/haasonsaas/mcpbot/internal/observability"
	"github.com/haasonsaas/mcpbot/pkg/models"
)

// Config configures the Telegram adapter.
type Config struct {
	// Token is the bot token from BotFather.
	Token string

	// Username is the bot's username without the leading @. Messages
	// mentioning it are routed to the message handler.
	Username string

	// ServerURL overrides the Bot API endpoint.
	ServerURL string

	// PollTimeout is the long polling timeout. Defaults to one minute.
	PollTimeout time.Duration

	// RateLimit and RateBurst bound outbound messages overall; ChatRate
	// and ChatBurst bound them per chat.
	RateLimit float64
	RateBurst int
	ChatRate  float64
	ChatBurst int

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Validate checks required fields and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return channels.ErrConfig("token is required", nil)
	}
	c.Username = strings.TrimPrefix(strings.TrimSpace(c.Username), "@")
	if c.Username == "" {
		return channels.ErrConfig("username is required", nil)
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Minute
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 30 // Telegram allows about 30 messages per second
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 20
	}
	if c.ChatRate <= 0 {
		c.ChatRate = 1
	}
	if c.ChatBurst <= 0 {
		c.ChatBurst = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// HandlerFunc handles one routed event.
type HandlerFunc func(ctx context.Context, event *models.InboundEvent)

// Adapter owns the Telegram client. Lifecycle: Init, Start, then Stop and
// Close in that order.
type Adapter struct {
	config      Config
	newClient   ClientFactory
	httpClient  *http.Client
	rateLimiter *channels.RateLimiter
	logger      *slog.Logger
	metrics     *observability.Metrics

	mu       sync.RWMutex
	client   BotClient
	self     *tgmodels.User
	commands map[string]HandlerFunc
	message  HandlerFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithClientFactory replaces bot.New, mainly for tests.
func WithClientFactory(factory ClientFactory) Option {
	return func(a *Adapter) {
		if factory != nil {
			a.newClient = factory
		}
	}
}

// NewAdapter validates config and creates an adapter. No network calls
// are made until Init.
func NewAdapter(config Config, opts ...Option) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	a := &Adapter{
		config:    config,
		newClient: newBotClient,
		// Long polls hold the connection for PollTimeout.
		httpClient:  &http.Client{Timeout: config.PollTimeout + 15*time.Second},
		rateLimiter: channels.NewRateLimiter(config.RateLimit, config.RateBurst, config.ChatRate, config.ChatBurst),
		logger:      config.Logger.With("adapter", "telegram"),
		metrics:     config.Metrics,
		commands:    make(map[string]HandlerFunc),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Init creates the client and verifies the token with getMe.
func (a *Adapter) Init(ctx context.Context) error {
	opts := []bot.Option{
		bot.WithHTTPClient(a.config.PollTimeout, a.httpClient),
		bot.WithErrorsHandler(func(err error) {
			a.logger.Error("telegram polling error", "error", err)
			a.recordError(channels.ErrCodeConnection)
		}),
	}
	if a.config.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(a.config.ServerURL))
	}

	client, err := a.newClient(a.config.Token, opts...)
	if err != nil {
		a.recordError(channels.ErrCodeAuthentication)
		return channels.ErrAuthentication("failed to create bot", err)
	}
	me, err := client.GetMe(ctx)
	if err != nil {
		a.recordError(channels.ErrCodeAuthentication)
		return channels.ErrAuthentication("getMe failed", err)
	}
	if me.Username != "" && !strings.EqualFold(me.Username, a.config.Username) {
		a.logger.Warn("configured username differs from bot account",
			"configured", a.config.Username,
			"actual", me.Username)
	}

	client.RegisterHandlerMatchFunc(func(update *tgmodels.Update) bool {
		return update.Message != nil
	}, a.dispatch)

	a.mu.Lock()
	a.client = client
	a.self = me
	a.mu.Unlock()

	a.logger.Info("telegram bot initialized", "bot_id", me.ID, "username", me.Username)
	return nil
}

// Start begins long polling on a background goroutine.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	if client == nil {
		return channels.ErrInternal("bot not initialized", nil)
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		client.Start(ctx)
	}()
	a.logger.Info("telegram polling started")
	return nil
}

// Stop ends polling and waits for the polling goroutine to exit.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.logger.Info("telegram polling stopped")
		return nil
	case <-ctx.Done():
		a.recordError(channels.ErrCodeTimeout)
		return channels.ErrTimeout("stop timeout", ctx.Err())
	}
}

// Close releases the client and its idle connections. Send fails after
// Close.
func (a *Adapter) Close() error {
	a.mu.Lock()
	a.client = nil
	a.mu.Unlock()
	a.httpClient.CloseIdleConnections()
	return nil
}

// HandleCommand registers fn for /command.
func (a *Adapter) HandleCommand(command string, fn HandlerFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commands[strings.ToLower(strings.TrimPrefix(command, "/"))] = fn
}

// HandleMessage registers fn for messages that mention the bot or reply
// to it.
func (a *Adapter) HandleMessage(fn HandlerFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.message = fn
}

func (a *Adapter) dispatch(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	a.mu.RLock()
	var selfID int64
	if a.self != nil {
		selfID = a.self.ID
	}
	message := a.message
	a.mu.RUnlock()

	event := convertMessage(msg, selfID, a.config.Username)

	if name, args, ok := parseCommand(msg.Text, a.config.Username); ok {
		a.mu.RLock()
		handler := a.commands[name]
		a.mu.RUnlock()
		if handler == nil {
			a.logger.Debug("unknown command", "command", name, "chat_id", msg.Chat.ID)
			return
		}
		event.Command = name
		event.Text = args
		handler(ctx, event)
		return
	}
	if strings.HasPrefix(msg.Text, "/") {
		return
	}

	if !event.Mentions && !event.IsReply {
		return
	}
	if message == nil {
		a.logger.Warn("no message handler registered, dropping message", "chat_id", msg.Chat.ID)
		return
	}
	message(ctx, event)
}

// Send delivers one outbound message, honoring the rate limits. A single
// retry is made when Telegram answers 429 with a retry delay.
func (a *Adapter) Send(ctx context.Context, msg *models.OutboundMessage) error {
	if msg == nil || msg.ConversationID == 0 {
		a.recordError(channels.ErrCodeInvalidInput)
		return channels.ErrInvalidInput("chat id is required", nil)
	}

	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	if client == nil {
		a.recordError(channels.ErrCodeInternal)
		return channels.ErrInternal("bot not initialized", nil)
	}

	chatID := int64(msg.ConversationID)
	if err := a.rateLimiter.Wait(ctx, chatID); err != nil {
		a.recordError(channels.ErrCodeTimeout)
		return channels.ErrTimeout("rate limit wait cancelled", err)
	}

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   msg.Text,
	}
	if msg.Format == models.FormatHTML {
		params.ParseMode = tgmodels.ParseModeHTML
	}
	if msg.ReplyTo != 0 {
		params.ReplyParameters = &tgmodels.ReplyParameters{
			MessageID:                msg.ReplyTo,
			AllowSendingWithoutReply: true,
		}
	}
	if msg.ForceReply {
		params.ReplyMarkup = &tgmodels.ForceReply{ForceReply: true, Selective: true}
	}

	start := time.Now()
	sent, err := client.SendMessage(ctx, params)
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) && tooMany.RetryAfter > 0 {
		a.logger.WarnContext(ctx, "telegram rate limited, retrying", "chat_id", chatID, "retry_after", tooMany.RetryAfter)
		select {
		case <-ctx.Done():
			a.recordError(channels.ErrCodeTimeout)
			return channels.ErrTimeout("rate limit retry cancelled", ctx.Err())
		case <-time.After(time.Duration(tooMany.RetryAfter) * time.Second):
		}
		sent, err = client.SendMessage(ctx, params)
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to send message", "error", err, "chat_id", chatID)
		if errors.As(err, &tooMany) {
			a.recordError(channels.ErrCodeRateLimit)
			return channels.ErrRateLimit("telegram rate limit exceeded", err)
		}
		a.recordError(channels.ErrCodeInternal)
		return channels.ErrInternal("failed to send message", err)
	}

	if sent != nil {
		a.logger.DebugContext(ctx, "message sent",
			"chat_id", chatID,
			"message_id", sent.ID,
			"format", msg.Format,
			"latency_ms", time.Since(start).Milliseconds())
	}
	return nil
}

func (a *Adapter) recordError(code channels.ErrorCode) {
	a.metrics.RecordError("telegram", string(code))
}
