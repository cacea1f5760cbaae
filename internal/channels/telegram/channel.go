// Package telegram is the Telegram message channel: outbound delivery for
// the dispatcher, the digest and the conversation engine, plus the
// inbound command surface.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/upsrelay/internal/config"
	"github.com/nextlevelbuilder/upsrelay/internal/conversation"
	"github.com/nextlevelbuilder/upsrelay/internal/mail"
	"github.com/nextlevelbuilder/upsrelay/internal/state"
	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

// botAPI is the subset of the Bot API the channel calls.
type botAPI interface {
	Username() string
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
	LeaveChat(ctx context.Context, params *telego.LeaveChatParams) error
	GetChat(ctx context.Context, params *telego.GetChatParams) (*telego.ChatFullInfo, error)
	GetChatAdministrators(ctx context.Context, params *telego.GetChatAdministratorsParams) ([]telego.ChatMember, error)
	SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error
	DeleteMyCommands(ctx context.Context, params *telego.DeleteMyCommandsParams) error
}

// MailControl is the admin handle on the IMAP poller.
type MailControl interface {
	Start(ctx context.Context) error
	Stop() error
	Status() mail.Status
}

// Channel connects the relay to Telegram.
type Channel struct {
	bot    botAPI
	tg     *telego.Bot // nil in tests; only used for long polling
	cfg    *config.Config
	cache  *state.Cache
	events store.EventLog
	mailer MailControl
	engine *conversation.Engine
	admins *adminCache
	loc    *time.Location

	startedAt time.Time
	runMu     sync.Mutex
	runCtx    context.Context
}

// New creates the bot client. mailer may be nil when IMAP is disabled.
func New(cfg *config.Config, cache *state.Cache, events store.EventLog, mailer MailControl) (*Channel, error) {
	var opts []telego.BotOption
	if cfg.Telegram.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Telegram.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid telegram proxy: %w", err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}

	bot, err := telego.NewBot(cfg.Telegram.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	c := newChannel(bot, cfg, cache, events, mailer)
	c.tg = bot
	return c, nil
}

func newChannel(bot botAPI, cfg *config.Config, cache *state.Cache, events store.EventLog, mailer MailControl) *Channel {
	loc := cfg.Location()
	if loc == nil {
		loc = time.Local
	}
	c := &Channel{
		bot:       bot,
		cfg:       cfg,
		cache:     cache,
		events:    events,
		mailer:    mailer,
		loc:       loc,
		startedAt: time.Now(),
		runCtx:    context.Background(),
	}
	c.engine = conversation.NewEngine(cache, events, c)
	c.admins = newAdminCache(c.fetchAdmins, adminCacheSize, adminCacheTTL)
	return c
}

// Name returns the channel name.
func (c *Channel) Name() string { return "telegram" }

// Run syncs the menu and processes updates until ctx is done.
func (c *Channel) Run(ctx context.Context) error {
	if c.tg == nil {
		return errors.New("telegram: bot not initialized")
	}
	c.runMu.Lock()
	c.runCtx = ctx
	c.runMu.Unlock()

	if err := c.SyncMenuCommands(ctx, DefaultMenuCommands()); err != nil {
		slog.Warn("telegram: sync menu commands failed", "error", err)
	}

	updates, err := c.tg.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        pollTimeout,
		AllowedUpdates: []string{"message", "callback_query", "my_chat_member"},
	})
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	slog.Info("telegram channel started", "bot", c.bot.Username())
	for upd := range updates {
		c.handleUpdate(ctx, upd)
	}
	slog.Info("telegram channel stopped")
	return nil
}

// longLived returns the context of Run, for work that outlives one update.
func (c *Channel) longLived() context.Context {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.runCtx
}

func (c *Channel) handleUpdate(ctx context.Context, upd telego.Update) {
	var chatID int64
	defer func() {
		if r := recover(); r != nil {
			slog.Error("telegram: panic while handling update", "update_id", upd.UpdateID, "panic", r)
			if chatID != 0 {
				_ = c.Send(ctx, chatID, msgGenericError)
			}
		}
	}()

	switch {
	case upd.Message != nil:
		chatID = upd.Message.Chat.ID
		c.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		if upd.CallbackQuery.Message != nil {
			chatID = upd.CallbackQuery.Message.GetChat().ID
		}
		c.handleCallback(ctx, upd.CallbackQuery)
	case upd.MyChatMember != nil:
		chatID = upd.MyChatMember.Chat.ID
		c.handleMembership(ctx, upd.MyChatMember)
	}
}

func (c *Channel) handleMessage(ctx context.Context, msg *telego.Message) {
	if msg.From == nil || msg.From.IsBot || msg.Text == "" {
		return
	}
	if c.handleBotCommand(ctx, msg) {
		return
	}
	if !c.engine.HandleMessage(ctx, msg.Chat.ID, msg.From.ID, msg.Text) {
		slog.Debug("telegram: message ignored", "chat_id", msg.Chat.ID, "user_id", msg.From.ID)
	}
}

func (c *Channel) handleCallback(ctx context.Context, q *telego.CallbackQuery) {
	if err := c.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: q.ID}); err != nil {
		slog.Debug("telegram: answer callback failed", "error", err)
	}
	value, ok := strings.CutPrefix(q.Data, callbackPrefix)
	if !ok || q.Message == nil {
		return
	}
	chatID := q.Message.GetChat().ID
	if !c.engine.HandleSelection(ctx, chatID, q.From.ID, value) {
		slog.Debug("telegram: selection without matching conversation", "chat_id", chatID, "user_id", q.From.ID)
	}
}

// handleMembership greets a group the bot was added to by a super admin
// and leaves any group it was added to by someone else.
func (c *Channel) handleMembership(ctx context.Context, upd *telego.ChatMemberUpdated) {
	chatID := upd.Chat.ID
	oldStatus := memberStatus(upd.OldChatMember)
	newStatus := memberStatus(upd.NewChatMember)
	c.admins.Invalidate(chatID)

	switch {
	case isGone(newStatus):
		slog.Info("telegram: bot removed from chat", "chat_id", chatID, "by", upd.From.ID)
		if _, ok := c.cache.Group(chatID); ok {
			if err := c.cache.DeleteGroup(ctx, chatID); err != nil {
				slog.Warn("telegram: delete group after removal failed", "chat_id", chatID, "error", err)
			}
		}
	case (oldStatus == "" || isGone(oldStatus)) && (newStatus == memberMember || newStatus == memberAdministrator):
		if c.cfg.IsCreator(upd.From.ID) {
			slog.Info("telegram: added to chat", "chat_id", chatID, "by", upd.From.ID)
			_ = c.Send(ctx, chatID, welcomeMessage(upd.Chat.Title))
			return
		}
		slog.Warn("telegram: added by non super admin, leaving", "chat_id", chatID, "by", upd.From.ID,
			"name", buildUserName(&upd.From))
		_ = c.Send(ctx, chatID, msgOnlyCreators)
		if err := c.bot.LeaveChat(ctx, &telego.LeaveChatParams{ChatID: tu.ID(chatID)}); err != nil {
			slog.Warn("telegram: leave chat failed", "chat_id", chatID, "error", err)
		}
	}
}

func memberStatus(m telego.ChatMember) string {
	if m == nil {
		return ""
	}
	return m.MemberStatus()
}

func isGone(status string) bool {
	return status == memberLeft || status == memberKicked
}

// Send delivers text as Markdown, retrying as plain text when Telegram
// rejects the markup. A chat that is gone yields store.ErrRecipientUnreachable;
// every other failure wraps store.ErrTransientDelivery.
func (c *Channel) Send(ctx context.Context, chatID int64, text string) error {
	return c.send(ctx, chatID, text, nil)
}

// SendChoices sends text with one inline button per choice.
func (c *Channel) SendChoices(ctx context.Context, chatID int64, text string, choices []conversation.Choice) error {
	return c.send(ctx, chatID, text, choiceKeyboard(choices))
}

func (c *Channel) send(ctx context.Context, chatID int64, text string, markup *telego.InlineKeyboardMarkup) error {
	chunks := chunkText(text, telegramMaxMessageLen)
	for i, chunk := range chunks {
		msg := tu.Message(tu.ID(chatID), chunk)
		msg.ParseMode = telego.ModeMarkdown
		if markup != nil && i == len(chunks)-1 {
			msg.ReplyMarkup = markup
		}

		_, err := c.bot.SendMessage(ctx, msg)
		if err != nil && isParseError(err) {
			slog.Debug("telegram: markdown rejected, sending plain text", "chat_id", chatID, "error", err)
			msg.ParseMode = ""
			_, err = c.bot.SendMessage(ctx, msg)
		}
		if err != nil {
			return classifySendError(err)
		}
	}
	return nil
}

func choiceKeyboard(choices []conversation.Choice) *telego.InlineKeyboardMarkup {
	rows := make([][]telego.InlineKeyboardButton, 0, len(choices))
	for _, ch := range choices {
		rows = append(rows, []telego.InlineKeyboardButton{{
			Text:         ch.Label,
			CallbackData: callbackPrefix + ch.Value,
		}})
	}
	return &telego.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func isParseError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "can't parse entities")
}

// Bot API descriptions meaning the chat is gone or the bot was removed.
// A muted bot or a chat migrated to a supergroup still exists and must
// not match.
var unreachableMarkers = []string{
	"chat not found",
	"bot was kicked",
	"bot was blocked by the user",
	"bot is not a member",
	"user is deactivated",
	"group chat was deleted",
}

// classifySendError maps a Bot API error onto the store delivery sentinels.
func classifySendError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, marker := range unreachableMarkers {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", store.ErrRecipientUnreachable, err)
		}
	}
	return fmt.Errorf("%w: %v", store.ErrTransientDelivery, err)
}

func (c *Channel) fetchAdmins(ctx context.Context, chatID int64) ([]int64, error) {
	members, err := c.bot.GetChatAdministrators(ctx, &telego.GetChatAdministratorsParams{ChatID: tu.ID(chatID)})
	if err != nil {
		return nil, fmt.Errorf("get chat administrators: %w", err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.MemberUser().ID)
	}
	return ids, nil
}

// isAdmin: super admins and configured admins everywhere, chat
// administrators inside their own group.
func (c *Channel) isAdmin(ctx context.Context, chatID, userID int64, isGroup bool) bool {
	if c.cfg.IsAdmin(userID) {
		return true
	}
	if !isGroup {
		return false
	}
	ok, err := c.admins.IsAdmin(ctx, chatID, userID)
	if err != nil {
		slog.Warn("telegram: admin lookup failed", "chat_id", chatID, "error", err)
		return false
	}
	return ok
}

func welcomeMessage(title string) string {
	if title == "" {
		title = "this chat"
	}
	return fmt.Sprintf("Hey everyone! 👋 Thanks for adding me to *%s*! 🎉\n\n"+
		"I'm here to keep you updated about the UPS status. Type /help to see what I can do.",
		escapeMarkdown(title))
}
