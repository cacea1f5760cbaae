package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/upsrelay/internal/conversation"
	"github.com/nextlevelbuilder/upsrelay/internal/cron"
	"github.com/nextlevelbuilder/upsrelay/internal/mail"
	"github.com/nextlevelbuilder/upsrelay/internal/state"
	"github.com/nextlevelbuilder/upsrelay/internal/store"
)

// commandRequest is one parsed slash command.
type commandRequest struct {
	chatID  int64
	userID  int64
	isGroup bool
	args    string
	from    *telego.User
}

type command struct {
	name        string
	description string
	admin       bool
	groupOnly   bool
	run         func(c *Channel, ctx context.Context, req commandRequest) error
}

var commandTable []command

func init() {
	commandTable = []command{
		{name: "getstate", description: "Dump the current state", admin: true, run: (*Channel).cmdGetState},
		{name: "wakebot", description: "Wake up the bot", admin: true, run: (*Channel).cmdWake},
		{name: "gotosleep", description: "Put the bot to sleep", admin: true, run: (*Channel).cmdSleep},
		{name: "getgroupid", description: "Get the group ID", admin: true, groupOnly: true, run: (*Channel).cmdGroupID},
		{name: "getgrouplist", description: "Get a list of all groups", admin: true, run: (*Channel).cmdGroupList},
		{name: "getupslist", description: "Get a list of all UPS", admin: true, run: (*Channel).cmdDeviceList},
		{name: "addups", description: "Add a new UPS", admin: true, run: startConversation(state.KindNewDevice)},
		{name: "deleteups", description: "Delete a UPS", admin: true, run: startConversation(state.KindDeleteDevice)},
		{name: "updateups", description: "Update a UPS", admin: true, run: startConversation(state.KindUpdateDevice)},
		{name: "subscribegroup", description: "Subscribe this group to a UPS", admin: true, groupOnly: true, run: startConversation(state.KindSubscribe)},
		{name: "unsubscribegroup", description: "Unsubscribe this group from a UPS", admin: true, groupOnly: true, run: startConversation(state.KindUnsubscribe)},
		{name: "deletegroup", description: "Forget a group and its subscriptions", admin: true, run: (*Channel).cmdDeleteGroup},
		{name: "startimapservice", description: "Start IMAP service", admin: true, run: (*Channel).cmdIMAPStart},
		{name: "stopimapservice", description: "Stop IMAP service", admin: true, run: (*Channel).cmdIMAPStop},
		{name: "getimapstatus", description: "Get IMAP service status", admin: true, run: (*Channel).cmdIMAPStatus},
		{name: "cancel", description: "Cancel the pending command", run: (*Channel).cmdCancel},
		{name: "whoami", description: "Get your user info", run: (*Channel).cmdWhoAmI},
		{name: "getbotstatus", description: "Get the current status of the bot", run: (*Channel).cmdBotStatus},
		{name: "getlastupsmessage", description: "Get the last message of a UPS", run: startConversation(state.KindStatusQuery)},
		{name: "gettodayupsmessage", description: "Get all messages from today", run: (*Channel).cmdToday},
		{name: "help", description: "Show available commands", run: (*Channel).cmdHelp},
	}
}

func lookupCommand(name string) (command, bool) {
	for _, cmd := range commandTable {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

// parseCommand splits "/cmd@bot args" into a lowercased name and the rest.
func parseCommand(text string) (name, args string, ok bool) {
	if len(text) == 0 || text[0] != '/' {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text, " ")
	head = strings.SplitN(head, "@", 2)[0]
	return strings.ToLower(strings.TrimPrefix(head, "/")), strings.TrimSpace(rest), true
}

// handleBotCommand checks if the message is a known bot command and handles it.
// Returns true if the message was handled as a command.
func (c *Channel) handleBotCommand(ctx context.Context, msg *telego.Message) bool {
	name, args, ok := parseCommand(msg.Text)
	if !ok {
		return false
	}
	cmd, known := lookupCommand(name)
	if !known {
		return name != ""
	}

	req := commandRequest{
		chatID:  msg.Chat.ID,
		userID:  msg.From.ID,
		isGroup: isGroupChat(msg.Chat),
		args:    args,
		from:    msg.From,
	}

	if cmd.admin && !c.isAdmin(ctx, req.chatID, req.userID, req.isGroup) {
		slog.Info("telegram: admin command refused", "command", name, "chat_id", req.chatID, "user_id", req.userID)
		return true
	}
	if !cmd.admin && c.cache.Status() == state.StatusIdle {
		_ = c.Send(ctx, req.chatID, msgSleeping)
		return true
	}
	if cmd.groupOnly && !req.isGroup {
		_ = c.Send(ctx, req.chatID, msgGroupOnly)
		return true
	}

	slog.Debug("telegram: command", "command", name, "chat_id", req.chatID, "user", buildUserName(req.from))
	if err := cmd.run(c, ctx, req); err != nil && !errors.Is(err, store.ErrConversationInProgress) {
		slog.Warn("telegram: command failed", "command", name, "chat_id", req.chatID, "error", err)
		_ = c.Send(ctx, req.chatID, conversation.FormatError(err))
	}
	return true
}

func startConversation(kind state.ConversationKind) func(*Channel, context.Context, commandRequest) error {
	return func(c *Channel, ctx context.Context, req commandRequest) error {
		return c.engine.Start(ctx, req.chatID, req.userID, kind)
	}
}

func (c *Channel) cmdGetState(ctx context.Context, req commandRequest) error {
	snap := c.cache.Snapshot()
	out, err := json.MarshalIndent(struct {
		Uptime string `json:"uptime"`
		state.Snapshot
	}{Uptime: time.Since(c.startedAt).Round(time.Second).String(), Snapshot: snap}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return c.Send(ctx, req.chatID, codeBlock(string(out)))
}

func (c *Channel) cmdWake(ctx context.Context, req commandRequest) error {
	name := escapeMarkdown(req.from.FirstName)
	switch c.cache.Status() {
	case state.StatusRunning:
		return c.Send(ctx, req.chatID, fmt.Sprintf("Hi %s, I am already awake.", name))
	case state.StatusError:
		if err := c.cache.Hydrate(ctx); err != nil {
			return err
		}
	}
	c.cache.SetStatus(state.StatusRunning)
	return c.Send(ctx, req.chatID, fmt.Sprintf("Hi %s, bot is up and running!", name))
}

func (c *Channel) cmdSleep(ctx context.Context, req commandRequest) error {
	c.cache.SetStatus(state.StatusIdle)
	return c.Send(ctx, req.chatID, fmt.Sprintf("Goodbye %s, going to sleep! 💤", escapeMarkdown(req.from.FirstName)))
}

func (c *Channel) cmdGroupID(ctx context.Context, req commandRequest) error {
	return c.Send(ctx, req.chatID, fmt.Sprintf("Group ID: `%d`", req.chatID))
}

// cmdGroupList lists subscribed groups and forgets the ones whose chat
// no longer exists.
func (c *Channel) cmdGroupList(ctx context.Context, req commandRequest) error {
	groups := c.cache.Groups()
	if len(groups) == 0 {
		return c.Send(ctx, req.chatID, "No groups subscribed")
	}

	var rows [][]string
	var pruned int
	for _, g := range groups {
		title := "?"
		chat, err := c.bot.GetChat(ctx, &telego.GetChatParams{ChatID: tu.ID(g.ChatID)})
		switch {
		case err == nil:
			title = chat.Title
		case errors.Is(classifySendError(err), store.ErrRecipientUnreachable):
			slog.Info("telegram: group chat gone, deleting", "chat_id", g.ChatID, "error", err)
			if derr := c.cache.DeleteGroup(ctx, g.ChatID); derr != nil {
				slog.Warn("telegram: delete gone group failed", "chat_id", g.ChatID, "error", derr)
			} else {
				pruned++
				continue
			}
		default:
			slog.Debug("telegram: get chat failed", "chat_id", g.ChatID, "error", err)
		}
		rows = append(rows, []string{strconv.FormatInt(g.ChatID, 10), title, strings.Join(g.DeviceIDs, ",")})
	}

	text := ""
	if len(rows) > 0 {
		text = codeBlock(renderTable([]string{"Chat ID", "Title", "UPS"}, rows))
	}
	if pruned > 0 {
		text = strings.TrimSpace(text + fmt.Sprintf("\n%d unreachable group(s) removed", pruned))
	}
	return c.Send(ctx, req.chatID, text)
}

func (c *Channel) cmdDeviceList(ctx context.Context, req commandRequest) error {
	devices := c.cache.Devices()
	if len(devices) == 0 {
		return c.Send(ctx, req.chatID, "No UPS available")
	}
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		subscribers := len(c.cache.SubscribersOf(d.ID))
		rows = append(rows, []string{d.ID, d.Location, strconv.Itoa(subscribers),
			d.CreatedAt.In(c.loc).Format("02/01/2006")})
	}
	return c.Send(ctx, req.chatID, codeBlock(renderTable([]string{"ID", "Location", "Groups", "Added"}, rows)))
}

// cmdDeleteGroup forgets the current group, or the chat id given as argument.
func (c *Channel) cmdDeleteGroup(ctx context.Context, req commandRequest) error {
	target := req.chatID
	if req.args != "" {
		id, err := strconv.ParseInt(req.args, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %q is not a chat id", store.ErrValidationFailed, req.args)
		}
		target = id
	} else if !req.isGroup {
		return c.Send(ctx, req.chatID, "Usage: /deletegroup <chat id>")
	}

	if _, ok := c.cache.Group(target); !ok {
		return c.Send(ctx, req.chatID, fmt.Sprintf("Group %d has no subscriptions", target))
	}
	if err := c.cache.DeleteGroup(ctx, target); err != nil {
		return err
	}
	return c.Send(ctx, req.chatID, fmt.Sprintf("🗑️ Group %d deleted", target))
}

func (c *Channel) cmdIMAPStart(ctx context.Context, req commandRequest) error {
	if c.mailer == nil {
		return c.Send(ctx, req.chatID, msgNoIMAP)
	}
	if err := c.mailer.Start(c.longLived()); err != nil {
		if errors.Is(err, mail.ErrAlreadyRunning) {
			return c.Send(ctx, req.chatID, "IMAP service is already running")
		}
		return err
	}
	return c.Send(ctx, req.chatID, "📬 IMAP service started")
}

func (c *Channel) cmdIMAPStop(ctx context.Context, req commandRequest) error {
	if c.mailer == nil {
		return c.Send(ctx, req.chatID, msgNoIMAP)
	}
	if err := c.mailer.Stop(); err != nil {
		if errors.Is(err, mail.ErrNotRunning) {
			return c.Send(ctx, req.chatID, "IMAP service is not running")
		}
		return err
	}
	return c.Send(ctx, req.chatID, "📭 IMAP service stopped")
}

func (c *Channel) cmdIMAPStatus(ctx context.Context, req commandRequest) error {
	if c.mailer == nil {
		return c.Send(ctx, req.chatID, msgNoIMAP)
	}
	return c.Send(ctx, req.chatID, formatIMAPStatus(c.mailer.Status(), c.loc))
}

func formatIMAPStatus(st mail.Status, loc *time.Location) string {
	var sb strings.Builder
	if st.Running {
		sb.WriteString("IMAP service: running\n")
	} else {
		sb.WriteString("IMAP service: stopped\n")
	}
	if st.LastPoll.IsZero() {
		sb.WriteString("Last poll: never\n")
	} else {
		sb.WriteString("Last poll: " + st.LastPoll.In(loc).Format("02/01/2006 15:04:05") + "\n")
	}
	fmt.Fprintf(&sb, "Accepted: %d\nRejected: %d", st.Accepted, st.Rejected)
	if st.LastError != "" {
		sb.WriteString("\nLast error: " + escapeMarkdown(st.LastError))
	}
	return sb.String()
}

func (c *Channel) cmdCancel(ctx context.Context, req commandRequest) error {
	c.engine.Cancel(ctx, req.chatID, req.userID)
	return nil
}

func (c *Channel) cmdWhoAmI(ctx context.Context, req commandRequest) error {
	out, err := json.MarshalIndent(req.from, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	return c.Send(ctx, req.chatID, codeBlock(string(out)))
}

func (c *Channel) cmdBotStatus(ctx context.Context, req commandRequest) error {
	return c.Send(ctx, req.chatID, fmt.Sprintf("Bot status: %s", c.cache.Status()))
}

// cmdToday replies with every event recorded since local midnight.
func (c *Channel) cmdToday(ctx context.Context, req commandRequest) error {
	since := cron.StartOfDay(time.Now().In(c.loc))
	recs, err := c.events.EventsSince(ctx, since)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return c.Send(ctx, req.chatID, "No UPS messages today")
	}
	parts := make([]string, 0, len(recs))
	for _, rec := range recs {
		parts = append(parts, rec.Message)
	}
	return c.Send(ctx, req.chatID, strings.Join(parts, "\n\n"))
}

func (c *Channel) cmdHelp(ctx context.Context, req commandRequest) error {
	var admin, user []string
	for _, cmd := range commandTable {
		line := "/" + cmd.name + " - " + cmd.description
		if cmd.admin {
			admin = append(admin, line)
		} else {
			user = append(user, line)
		}
	}
	text := "List of available commands:\n\n" +
		"*Admin Commands:*\n" + escapeMarkdown(strings.Join(admin, "\n")) + "\n\n" +
		"*User Commands:*\n" + escapeMarkdown(strings.Join(user, "\n"))
	return c.Send(ctx, req.chatID, text)
}

// SyncMenuCommands registers bot commands with Telegram via setMyCommands.
func (c *Channel) SyncMenuCommands(ctx context.Context, commands []telego.BotCommand) error {
	if err := c.bot.DeleteMyCommands(ctx, nil); err != nil {
		slog.Debug("deleteMyCommands failed (may not exist)", "error", err)
	}

	if len(commands) == 0 {
		return nil
	}

	if len(commands) > 100 {
		commands = commands[:100]
	}

	return c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: commands,
	})
}

// DefaultMenuCommands returns the user facing commands for the bot menu.
// Admin commands stay out of the menu and are listed by /help.
func DefaultMenuCommands() []telego.BotCommand {
	var out []telego.BotCommand
	for _, cmd := range commandTable {
		if !cmd.admin {
			out = append(out, telego.BotCommand{Command: cmd.name, Description: cmd.description})
		}
	}
	return out
}
