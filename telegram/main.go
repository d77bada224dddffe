package telegram

import (
	"context"
	"errors"
	"fitcoachdev/dialogue"
	"fitcoachdev/httpmiddleware"
	"fitcoachdev/logger"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxVoiceBytes = 5 << 20

var ErrInvalidChat = errors.New("session id is not a telegram chat id")

// Handler consumes events for one chat at a time, in arrival order.
type Handler interface {
	Handle(ctx context.Context, ev dialogue.Event)
}

// Transcriber turns a voice note into text. Voice notes are ignored without one.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

type TelegramConnectProps struct {
	Logger      *logger.LogMiddleware
	Token       string
	Debug       bool
	Transcriber Transcriber
	// Endpoint overrides the Bot API URL format, e.g. "http://host/bot%s/%s".
	Endpoint   string
	MaxWorkers int
}

type Telegram struct {
	logger      *logger.LogMiddleware
	bot         *tgbotapi.BotAPI
	transcriber Transcriber
	dispatcher  *dispatcher
	fileURL     func(fileID string) (string, error)
}

func Connect(ctx context.Context, args TelegramConnectProps) (*Telegram, error) {
	tracer := otel.Tracer("telegram/Connect")
	ctx, span := tracer.Start(ctx, "Connect")
	defer span.End()

	if args.Token == "" {
		return nil, fmt.Errorf("telegram bot token not set")
	}

	endpoint := args.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(args.Token, endpoint)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = args.Debug

	maxWorkers := args.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 32
	}

	span.SetAttributes(
		attribute.String("bot.username", bot.Self.UserName),
		attribute.Bool("bot.debug", args.Debug),
		attribute.Int("maxWorkers", maxWorkers),
	)

	args.Logger.Logger(ctx).Info("[Telegram] Bot connected successfully",
		zap.String("username", bot.Self.UserName),
		zap.Bool("debug", args.Debug),
		zap.Bool("voice", args.Transcriber != nil),
	)

	return &Telegram{
		logger:      args.Logger,
		bot:         bot,
		transcriber: args.Transcriber,
		dispatcher:  newDispatcher(maxWorkers),
		fileURL:     bot.GetFileDirectURL,
	}, nil
}

// Listen polls for updates until ctx is cancelled, then waits for in-flight chats to finish.
func (t *Telegram) Listen(ctx context.Context, handler Handler) {
	tracer := otel.Tracer("telegram/Listen")
	ctx, span := tracer.Start(ctx, "Listen")
	defer span.End()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)

	t.logger.Logger(ctx).Info("[Telegram] Starting message listener")

	for {
		select {
		case <-ctx.Done():
			t.logger.Logger(ctx).Info("[Telegram] Shutting down listener")
			t.bot.StopReceivingUpdates()
			t.dispatcher.wait()
			return
		case update, ok := <-updates:
			if !ok {
				t.dispatcher.wait()
				return
			}
			t.dispatch(ctx, update, handler)
		}
	}
}

func (t *Telegram) dispatch(ctx context.Context, update tgbotapi.Update, handler Handler) {
	chat := update.FromChat()
	if chat == nil {
		return
	}
	key := strconv.FormatInt(chat.ID, 10)

	t.dispatcher.submit(key, func() {
		t.handleUpdate(context.WithoutCancel(ctx), update, handler)
	})
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update, handler Handler) {
	tracer := otel.Tracer("telegram/handleUpdate")
	ctx, span := tracer.Start(ctx, "handleUpdate")
	defer span.End()

	if update.CallbackQuery != nil {
		t.ackCallback(ctx, update.CallbackQuery)
	}

	ev, ok := toEvent(update)
	if !ok && update.Message != nil && update.Message.Voice != nil {
		ev, ok = t.voiceEvent(ctx, update.Message)
	}
	if !ok {
		return
	}

	span.SetAttributes(
		attribute.String("session.id", ev.SessionID),
		attribute.Int("event.kind", int(ev.Kind)),
	)
	handler.Handle(ctx, ev)
}

// toEvent maps an update onto a dialogue event. Voice notes need I/O and are not handled here.
func toEvent(update tgbotapi.Update) (dialogue.Event, bool) {
	switch {
	case update.CallbackQuery != nil:
		query := update.CallbackQuery
		chat := update.FromChat()
		if chat == nil || query.Data == "" {
			return dialogue.Event{}, false
		}
		return dialogue.Event{
			SessionID: strconv.FormatInt(chat.ID, 10),
			Kind:      dialogue.EventSelection,
			Token:     query.Data,
		}, true

	case update.Message != nil:
		message := update.Message
		if message.Chat == nil {
			return dialogue.Event{}, false
		}
		id := strconv.FormatInt(message.Chat.ID, 10)
		if message.IsCommand() {
			return dialogue.Event{SessionID: id, Kind: dialogue.EventCommand, Command: strings.ToLower(message.Command())}, true
		}
		if message.Text == "" {
			return dialogue.Event{}, false
		}
		return dialogue.Event{SessionID: id, Kind: dialogue.EventText, Text: message.Text}, true
	}

	return dialogue.Event{}, false
}

func (t *Telegram) ackCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	callback := tgbotapi.NewCallback(query.ID, "")
	if _, err := t.bot.Request(callback); err != nil {
		t.logger.Logger(ctx).Warn("[Telegram] Failed to acknowledge callback", zap.Error(err), zap.String("data", query.Data))
	}
}

// voiceEvent transcribes a voice note into a text event.
func (t *Telegram) voiceEvent(ctx context.Context, message *tgbotapi.Message) (dialogue.Event, bool) {
	tracer := otel.Tracer("telegram/voiceEvent")
	ctx, span := tracer.Start(ctx, "voiceEvent")
	defer span.End()

	logger := t.logger.Logger(ctx).With(zap.Int64("chat_id", message.Chat.ID))

	if t.transcriber == nil {
		logger.Debug("[Telegram] Ignoring voice note, transcription disabled")
		return dialogue.Event{}, false
	}
	if message.Voice.FileSize > maxVoiceBytes {
		logger.Warn("[Telegram] Voice note too large", zap.Int("size", message.Voice.FileSize))
		return dialogue.Event{}, false
	}

	url, err := t.fileURL(message.Voice.FileID)
	if err != nil {
		span.RecordError(err)
		logger.Error("[Telegram] Could not resolve voice note", zap.Error(err))
		return dialogue.Event{}, false
	}

	audio, err := httpmiddleware.HttpRequest(httpmiddleware.HttpRequestStruct{Ctx: ctx, Method: "GET", Url: url})
	if err != nil {
		span.RecordError(err)
		logger.Error("[Telegram] Could not download voice note", zap.Error(err))
		return dialogue.Event{}, false
	}

	text, err := t.transcriber.Transcribe(ctx, audio)
	if err != nil {
		span.RecordError(err)
		logger.Warn("[Telegram] Could not transcribe voice note", zap.Error(err))
		return dialogue.Event{}, false
	}

	return dialogue.Event{
		SessionID: strconv.FormatInt(message.Chat.ID, 10),
		Kind:      dialogue.EventText,
		Text:      numberFromTranscript(text),
	}, true
}

// numberFromTranscript keeps the first run of digits of a spoken answer, so "30 minutes."
// becomes "30". Transcripts without digits are passed on trimmed.
func numberFromTranscript(text string) string {
	start := strings.IndexFunc(text, isDigit)
	if start < 0 {
		return strings.TrimSpace(text)
	}
	end := start
	for end < len(text) && isDigit(rune(text[end])) {
		end++
	}
	return text[start:end]
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Send delivers a directive to the chat named by its session id.
func (t *Telegram) Send(ctx context.Context, d dialogue.Directive) error {
	tracer := otel.Tracer("telegram/Send")
	_, span := tracer.Start(ctx, "Send")
	defer span.End()

	msg, err := buildMessage(d)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if _, err := t.bot.Send(msg); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func buildMessage(d dialogue.Directive) (tgbotapi.MessageConfig, error) {
	chatID, err := strconv.ParseInt(d.SessionID, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("%w: %q", ErrInvalidChat, d.SessionID)
	}

	msg := tgbotapi.NewMessage(chatID, d.Text)
	if d.HTML {
		msg.ParseMode = tgbotapi.ModeHTML
	}

	if len(d.Options) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(d.Options))
		for _, option := range d.Options {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(option.Label, option.Token),
			))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}

	return msg, nil
}
