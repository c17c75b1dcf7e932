package bot

import (
	"Omni/core"
	"Omni/lib/sl"
	"Omni/storage"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TgBot struct {
	conf       *core.Config
	api        *tgbotapi.BotAPI
	dispatcher *Dispatcher
	log        *slog.Logger
	httpClient *http.Client
}

func NewTgBot(conf *core.Config, log *slog.Logger) (*TgBot, error) {
	api, err := tgbotapi.NewBotAPI(conf.TelegramApiKey)
	if err != nil {
		return nil, err
	}

	return &TgBot{
		conf: conf,
		api:  api,
		log:  log.With(sl.Module("tgbot")),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// SetDispatcher set routing core
func (t *TgBot) SetDispatcher(d *Dispatcher) {
	t.dispatcher = d
	d.SetNotifier(t)
}

func (t *TgBot) Start() error {
	t.registerCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.api.GetUpdatesChan(u)

	for update := range updates {
		t.route(update)
	}

	return nil
}

// route hands every update off to its handler in a goroutine. A slow storage
// or provider call for one user must not stall the update loop for everyone
// else.
func (t *TgBot) route(update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		go t.handleSelection(update.CallbackQuery)
		return
	}
	if update.Message == nil || update.Message.From == nil {
		return
	}

	if update.Message.IsCommand() {
		go t.handleCommand(update.Message)
		return
	}

	go t.handleMessage(update.Message)
}

func (t *TgBot) Stop() {
	t.api.StopReceivingUpdates()
}

func (t *TgBot) registerCommands() {
	commands := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: "Register and pick a service"},
		tgbotapi.BotCommand{Command: "menu", Description: "Show the service menu"},
		tgbotapi.BotCommand{Command: "state", Description: "Show the selected service"},
		tgbotapi.BotCommand{Command: "stats", Description: "Show your usage counters"},
		tgbotapi.BotCommand{Command: "help", Description: "Show help message"},
	)
	if _, err := t.api.Request(commands); err != nil {
		t.log.Warn("registering commands", sl.Err(err))
	}
}

// Busy sends a chat action matched to the upcoming reply shape and repeats it
// every 5 seconds until the dispatch context is done. Failures are logged and
// never interrupt the flow.
func (t *TgBot) Busy(ctx context.Context, chatId int64, shape core.ReplyShape) {
	action := "typing"
	switch shape {
	case core.ReplyPhoto:
		action = "upload_photo"
	case core.ReplyVoice:
		action = "record_voice"
	}

	send := func() {
		if _, err := t.api.Request(tgbotapi.NewChatAction(chatId, action)); err != nil {
			t.log.Warn("sending chat action", sl.Err(err))
		}
	}
	send()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				send()
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (t *TgBot) handleCommand(incoming *tgbotapi.Message) {
	user := userFrom(incoming.From)
	chatId := incoming.Chat.ID

	if err := t.dispatcher.Register(user); err != nil {
		t.log.With(sl.User(user.UserId)).Error("registering user", sl.Err(err))
		t.plainResponse(chatId, errorResponse)
		return
	}

	switch incoming.Command() {
	case "start":
		t.plainResponse(chatId, welcomeResponse(incoming.From.FirstName))
		t.sendMenu(chatId)
	case "menu":
		t.sendMenu(chatId)
	case "state":
		capability, err := t.dispatcher.Selection(user.UserId)
		if err != nil {
			t.log.With(sl.User(user.UserId)).Error("reading selection", sl.Err(err))
			t.plainResponse(chatId, errorResponse)
			return
		}
		t.plainResponse(chatId, stateResponse(capability))
	case "stats":
		counts, err := t.dispatcher.Counts(user.UserId)
		if err != nil {
			t.log.With(sl.User(user.UserId)).Error("reading counts", sl.Err(err))
			t.plainResponse(chatId, errorResponse)
			return
		}
		t.plainResponse(chatId, statsResponse(counts))
	default:
		t.plainResponse(chatId, helpResponse())
	}
}

func (t *TgBot) handleSelection(query *tgbotapi.CallbackQuery) {
	if query.From == nil {
		return
	}

	// answer first so the client stops spinning, even when the original
	// menu message is no longer around
	if _, err := t.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		t.log.Warn("answering callback", sl.Err(err))
	}

	user := userFrom(query.From)

	capability, err := t.dispatcher.Select(user, query.Data)
	if err != nil {
		t.log.With(sl.User(user.UserId), slog.String("data", query.Data)).Error("selecting capability", sl.Err(err))
		if query.Message == nil {
			return
		}
		if unbound, ok := core.ParseTag(query.Data); ok && errors.Is(err, ErrUnavailable) {
			t.plainResponse(query.Message.Chat.ID, unavailableResponse(unbound.Descriptor()))
			return
		}
		t.plainResponse(query.Message.Chat.ID, errorResponse)
		return
	}

	if query.Message == nil {
		return
	}
	t.plainResponse(query.Message.Chat.ID, selectedResponse(capability.Descriptor()))
}

func (t *TgBot) handleMessage(incoming *tgbotapi.Message) {
	user := userFrom(incoming.From)
	chatId := incoming.Chat.ID

	payload, err := t.buildPayload(incoming)
	if err != nil {
		t.log.With(sl.User(user.UserId)).Error("building payload", sl.Err(err))
		t.plainResponse(chatId, errorResponse)
		return
	}
	if payload == nil {
		return
	}

	logText := payload.Text
	if len(logText) > 50 {
		logText = logText[:50] + "..."
	}
	t.log.With(
		sl.User(user.UserId),
		slog.String("kind", payload.Kind.String()),
		slog.String("text", logText),
	).Info("incoming message")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reply, err := t.dispatcher.Dispatch(ctx, user, chatId, payload)
	if err != nil {
		t.log.With(sl.User(user.UserId)).Error("dispatching", sl.Err(err))
		if errors.Is(err, ErrUnavailable) {
			if capability, serr := t.dispatcher.Selection(user.UserId); serr == nil && capability != core.CapNone {
				t.plainResponse(chatId, unavailableResponse(capability.Descriptor()))
				return
			}
		}
		t.plainResponse(chatId, errorResponse)
		return
	}

	t.deliver(chatId, reply)
}

// buildPayload classifies the message as text, image or audio and fetches
// media bytes. A nil payload means the content is not something we route
// (stickers, locations and so on).
func (t *TgBot) buildPayload(incoming *tgbotapi.Message) (*core.Payload, error) {
	if incoming.Text != "" {
		return &core.Payload{Kind: core.KindText, Text: strings.TrimSpace(incoming.Text)}, nil
	}

	if len(incoming.Photo) > 0 {
		// the last size is the largest
		data, err := t.downloadFile(incoming.Photo[len(incoming.Photo)-1].FileID)
		if err != nil {
			return nil, err
		}
		return &core.Payload{Kind: core.KindImage, Data: data, Name: "photo.jpg"}, nil
	}

	if incoming.Document != nil && strings.HasPrefix(incoming.Document.MimeType, "image/") {
		data, err := t.downloadFile(incoming.Document.FileID)
		if err != nil {
			return nil, err
		}
		return &core.Payload{Kind: core.KindImage, Data: data, Name: incoming.Document.FileName}, nil
	}

	if incoming.Voice != nil {
		data, err := t.downloadFile(incoming.Voice.FileID)
		if err != nil {
			return nil, err
		}
		return &core.Payload{Kind: core.KindAudio, Data: data, Name: "voice.ogg"}, nil
	}

	if incoming.Audio != nil {
		data, err := t.downloadFile(incoming.Audio.FileID)
		if err != nil {
			return nil, err
		}
		name := incoming.Audio.FileName
		if name == "" {
			name = "audio.mp3"
		}
		return &core.Payload{Kind: core.KindAudio, Data: data, Name: name}, nil
	}

	return nil, nil
}

func (t *TgBot) downloadFile(fileId string) ([]byte, error) {
	url, err := t.api.GetFileDirectURL(fileId)
	if err != nil {
		return nil, fmt.Errorf("resolving file url: %w", err)
	}

	resp, err := t.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetching file: %w", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			t.log.Warn("closing file body", sl.Err(err))
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching file: status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

func (t *TgBot) deliver(chatId int64, reply *Reply) {
	var msg tgbotapi.Chattable
	switch reply.Shape {
	case core.ReplyPhoto:
		msg = tgbotapi.NewPhoto(chatId, tgbotapi.FileURL(reply.ImageURL))
	case core.ReplyVoice:
		msg = tgbotapi.NewVoice(chatId, tgbotapi.FileBytes{Name: "speech.mp3", Bytes: reply.Audio})
	default:
		msg = tgbotapi.NewMessage(chatId, reply.Text)
	}

	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("sending reply", sl.Err(err))
	}
}

func (t *TgBot) sendMenu(chatId int64) {
	msg := tgbotapi.NewMessage(chatId, "Pick a service:")
	msg.ReplyMarkup = menuMarkup()
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("sending menu", sl.Err(err))
	}
}

// menuMarkup lays out the capability buttons two per row, callback data is
// the selection tag.
func menuMarkup() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton

	for _, capability := range core.All() {
		desc := capability.Descriptor()
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(desc.Label, desc.Tag))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (t *TgBot) plainResponse(chatId int64, text string) {
	msg := tgbotapi.NewMessage(chatId, text)
	if _, err := t.api.Send(msg); err != nil {
		t.log.Error("sending message", sl.Err(err))
	}
}

func userFrom(from *tgbotapi.User) *storage.User {
	return &storage.User{
		UserId:    from.ID,
		Username:  from.UserName,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	}
}
