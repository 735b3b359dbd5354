// Package telegram bridges Telegram to the agent gateway. Tool approvals are
// rendered as inline keyboards; callback queries post the decision back
// through the approve endpoint.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"axon/internal/approval"
	"axon/internal/channel"
	"axon/internal/runner"
)

// Config configures the Telegram adapter.
type Config struct {
	Token      string
	GatewayURL string

	// AllowedUsers restricts who may talk to the bot. Empty means everyone.
	AllowedUsers []int64
}

// Adapter is the Telegram channel adapter.
type Adapter struct {
	bot      *tgbotapi.BotAPI
	client   *channel.APIClient
	sessions *channel.Sessions
	logger   zerolog.Logger

	allowedUsers map[int64]bool

	mu      sync.Mutex
	pending map[string]string // approval id -> tool name

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a Telegram adapter.
func New(config Config, logger zerolog.Logger) (*Adapter, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}

	bot, err := tgbotapi.NewBotAPI(config.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: create bot: %w", err)
	}

	allowed := make(map[int64]bool, len(config.AllowedUsers))
	for _, id := range config.AllowedUsers {
		allowed[id] = true
	}

	return &Adapter{
		bot:          bot,
		client:       channel.NewAPIClient(config.GatewayURL),
		sessions:     channel.NewSessions(),
		logger:       logger.With().Str("channel", "telegram").Logger(),
		allowedUsers: allowed,
		pending:      make(map[string]string),
		done:         make(chan struct{}),
	}, nil
}

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return "telegram" }

// Start begins long polling for updates.
func (a *Adapter) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := a.bot.GetUpdatesChan(updateConfig)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pump(ctx, updates)
	}()

	a.logger.Info().Str("username", a.bot.Self.UserName).Msg("telegram bot connected")
	return nil
}

// pump dispatches each update on its own goroutine. A turn blocks until its
// approvals resolve, so handling updates inline would hold the callback that
// carries the decision behind the very turn waiting for it.
func (a *Adapter) pump(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.handleUpdate(ctx, update)
			}()
		}
	}
}

// Stop halts polling and waits for the update loop.
func (a *Adapter) Stop(ctx context.Context) error {
	close(a.done)
	a.bot.StopReceivingUpdates()
	a.wg.Wait()
	return nil
}

func (a *Adapter) allowed(userID int64) bool {
	return len(a.allowedUsers) == 0 || a.allowedUsers[userID]
}

func (a *Adapter) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		a.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		a.handleMessage(ctx, update.Message)
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Text == "" {
		return
	}
	if !a.allowed(msg.From.ID) {
		a.send(msg.Chat.ID, "Access denied.")
		return
	}

	conversation := strconv.FormatInt(msg.From.ID, 10)

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			a.send(msg.Chat.ID,
				"Send me a message and I will forward it to the agent.\n"+
					"When a tool wants to run you get buttons to approve it.\n\n"+
					"Commands:\n/new - start a new chat\n/status - show status")
		case "new":
			a.sessions.Reset(conversation)
			a.send(msg.Chat.ID, "Started a new chat.")
		case "status":
			a.send(msg.Chat.ID, a.statusText(conversation))
		}
		return
	}

	a.runTurn(ctx, msg, conversation)
}

func (a *Adapter) statusText(conversation string) string {
	sessionID, ok := a.sessions.Get(conversation)
	display := "no active chat"
	if ok && len(sessionID) > 8 {
		display = sessionID[:8] + "..."
	} else if ok {
		display = sessionID
	}

	a.mu.Lock()
	pending := len(a.pending)
	a.mu.Unlock()

	return fmt.Sprintf("Session: %s\nPending approvals: %d", display, pending)
}

func (a *Adapter) runTurn(ctx context.Context, msg *tgbotapi.Message, conversation string) {
	thinking, thinkingErr := a.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, "Thinking..."))

	sessionID, _ := a.sessions.Get(conversation)
	events, err := a.client.Chat(ctx, sessionID, msg.Text)
	if err != nil {
		a.logger.Error().Err(err).Msg("chat request failed")
		a.send(msg.Chat.ID, "Error: could not reach the agent.")
		return
	}

	var fullText strings.Builder
	for event := range events {
		switch event.Type {
		case runner.EventText:
			fullText.WriteString(event.Content)

		case runner.EventToolRequest:
			a.sendApprovalPrompt(msg.Chat.ID, event)

		case runner.EventToolResult:
			a.clearPending(event.ApprovalID)
			result := event.Result
			if len(result) > 500 {
				result = result[:500]
			}
			a.send(msg.Chat.ID, fmt.Sprintf("Tool %s executed (%dms):\n%s", event.Tool, event.ExecutionTimeMS, result))

		case runner.EventToolRejected:
			a.clearPending(event.ApprovalID)
			a.send(msg.Chat.ID, fmt.Sprintf("Tool %s rejected.", event.Tool))

		case runner.EventDone:
			if event.SessionID != "" {
				a.sessions.Set(conversation, event.SessionID)
			}
		}
	}

	if thinkingErr == nil {
		a.bot.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, thinking.MessageID))
	}

	if text := strings.TrimSpace(fullText.String()); text != "" {
		for _, chunk := range channel.SplitText(text, channel.TelegramLimit) {
			a.send(msg.Chat.ID, chunk)
		}
	}
}

func (a *Adapter) sendApprovalPrompt(chatID int64, event runner.Event) {
	var params strings.Builder
	for key, value := range event.Params {
		fmt.Fprintf(&params, "  %s: %v\n", key, value)
	}

	text := fmt.Sprintf("%s Tool request: %s\n%s", riskEmoji(event.Risk), event.Tool, event.Description)
	if params.Len() > 0 {
		text += "\n\nParameters:\n" + params.String()
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Allow once", callbackData(event.ApprovalID, channel.ChoiceOnce)),
			tgbotapi.NewInlineKeyboardButtonData("Session", callbackData(event.ApprovalID, channel.ChoiceSession)),
			tgbotapi.NewInlineKeyboardButtonData("Deny", callbackData(event.ApprovalID, channel.ChoiceNever)),
		),
	)

	prompt := tgbotapi.NewMessage(chatID, text)
	prompt.ReplyMarkup = keyboard
	if _, err := a.bot.Send(prompt); err != nil {
		a.logger.Error().Err(err).Str("approval_id", event.ApprovalID).Msg("failed to send approval prompt")
		return
	}

	a.mu.Lock()
	a.pending[event.ApprovalID] = event.Tool
	a.mu.Unlock()
}

// clearPending retires a prompt once its request reached a terminal event,
// whoever resolved it. Events without an approval id never had a prompt.
func (a *Adapter) clearPending(approvalID string) {
	if approvalID == "" {
		return
	}
	a.mu.Lock()
	delete(a.pending, approvalID)
	a.mu.Unlock()
}

func (a *Adapter) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	a.bot.Request(tgbotapi.NewCallback(query.ID, ""))

	approvalID, decision, ok := parseCallbackData(query.Data)
	if !ok {
		return
	}

	status, err := a.client.Approve(ctx, approvalID, decision)
	if err != nil {
		a.logger.Error().Err(err).Str("approval_id", approvalID).Msg("approve request failed")
		if query.Message != nil {
			a.send(query.Message.Chat.ID, "Error submitting the decision.")
		}
		return
	}

	a.clearPending(approvalID)

	if query.Message == nil {
		return
	}

	// Remove the keyboard so the choice cannot be submitted twice.
	a.bot.Request(tgbotapi.NewEditMessageReplyMarkup(
		query.Message.Chat.ID, query.Message.MessageID,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}},
	))

	switch status {
	case approval.Resolved:
		a.send(query.Message.Chat.ID, "Decision: "+decisionLabel(decision))
	case approval.AlreadyResolved:
		a.send(query.Message.Chat.ID, "Already decided elsewhere.")
	case approval.NotFound:
		a.send(query.Message.Chat.ID, "This request already expired.")
	}
}

func (a *Adapter) send(chatID int64, text string) {
	if _, err := a.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		a.logger.Error().Err(err).Msg("failed to send message")
	}
}

func callbackData(approvalID, decision string) string {
	return fmt.Sprintf("approve:%s:%s", approvalID, decision)
}

func parseCallbackData(data string) (approvalID, decision string, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0] != "approve" || parts[1] == "" {
		return "", "", false
	}
	switch parts[2] {
	case channel.ChoiceOnce, channel.ChoiceSession, channel.ChoiceNever:
		return parts[1], parts[2], true
	}
	return "", "", false
}

func decisionLabel(decision string) string {
	switch decision {
	case channel.ChoiceOnce:
		return "allowed once"
	case channel.ChoiceSession:
		return "allowed for session"
	case channel.ChoiceNever:
		return "denied"
	}
	return decision
}

func riskEmoji(risk string) string {
	switch risk {
	case "low":
		return "🟢"
	case "high":
		return "🔴"
	case "critical":
		return "⛔"
	default:
		return "🟡"
	}
}
