package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// BotClient is the subset of *bot.Bot the adapter uses, so tests can
// substitute a fake.
type BotClient interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	GetMe(ctx context.Context) (*models.User, error)
	RegisterHandlerMatchFunc(matchFunc bot.MatchFunc, f bot.HandlerFunc, m ...bot.Middleware) string
	Start(ctx context.Context)
}

// ClientFactory creates a BotClient. bot.New verifies the token with a
// getMe call before returning.
type ClientFactory func(token string, opts ...bot.Option) (BotClient, error)

func newBotClient(token string, opts ...bot.Option) (BotClient, error) {
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, err
	}
	return b, nil
}
