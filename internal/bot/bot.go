package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/yogaroll/internal/app"
)

// botAPI is the part of tgbotapi.BotAPI the handlers talk to.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Bot struct {
	config  *app.Config
	service *app.Service
	state   *StateStore
	api     botAPI
	tg      *tgbotapi.BotAPI
}

func New(ctx context.Context, service *app.Service) (*Bot, error) {
	config := service.Config
	if config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is not configured, set [bot] token or TELEGRAM_TOKEN")
	}

	api, err := tgbotapi.NewBotAPI(config.Bot.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	state, err := ConnectStateStore(ctx, config.Bot.RedisURL, config.BotStateTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to init bot state: %w", err)
	}

	b := newBot(service, api, state)
	b.tg = api
	return b, nil
}

func newBot(service *app.Service, api botAPI, state *StateStore) *Bot {
	return &Bot{
		config:  service.Config,
		service: service,
		state:   state,
		api:     api,
	}
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case update := <-updates:
			go b.handleUpdate(update)

		case <-sigChan:
			logger.Info.Println("Shutting down bot...")
			b.tg.StopReceivingUpdates()
			return nil
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	ctx := context.Background()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) Close() error {
	return b.state.Close()
}
