// Package discord bridges Discord to the agent gateway. Tool approvals are
// rendered as an embed with three buttons; button interactions post the
// decision back through the approve endpoint.
package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"axon/internal/approval"
	"axon/internal/channel"
	"axon/internal/runner"
)

// Config configures the Discord adapter.
type Config struct {
	Token      string
	GatewayURL string

	// AllowedChannels and AllowedUsers restrict who may talk to the bot.
	// Empty means everyone.
	AllowedChannels []string
	AllowedUsers    []string
}

// Adapter is the Discord channel adapter.
type Adapter struct {
	session  *discordgo.Session
	client   *channel.APIClient
	sessions *channel.Sessions
	logger   zerolog.Logger

	allowedChannels map[string]bool
	allowedUsers    map[string]bool

	mu      sync.Mutex
	pending map[string]string // approval id -> tool name
}

// New creates a Discord adapter.
func New(config Config, logger zerolog.Logger) (*Adapter, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("discord: token is required")
	}

	session, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	return &Adapter{
		session:         session,
		client:          channel.NewAPIClient(config.GatewayURL),
		sessions:        channel.NewSessions(),
		logger:          logger.With().Str("channel", "discord").Logger(),
		allowedChannels: toSet(config.AllowedChannels),
		allowedUsers:    toSet(config.AllowedUsers),
		pending:         make(map[string]string),
	}, nil
}

// Name returns the adapter identifier.
func (a *Adapter) Name() string { return "discord" }

// Start opens the Discord gateway connection.
func (a *Adapter) Start(ctx context.Context) error {
	a.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(ctx, m)
	})
	a.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		a.handleInteraction(ctx, i)
	})

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	a.logger.Info().Msg("discord bot connected")
	return nil
}

// Stop closes the Discord gateway connection.
func (a *Adapter) Stop(ctx context.Context) error {
	return a.session.Close()
}

func (a *Adapter) allowed(userID, channelID string) bool {
	if len(a.allowedUsers) > 0 && !a.allowedUsers[userID] {
		return false
	}
	if len(a.allowedChannels) > 0 && !a.allowedChannels[channelID] {
		return false
	}
	return true
}

func (a *Adapter) handleMessage(ctx context.Context, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == a.session.State.User.ID || m.Author.Bot {
		return
	}
	content := strings.TrimSpace(m.Content)
	if content == "" {
		return
	}
	if !a.allowed(m.Author.ID, m.ChannelID) {
		return
	}

	switch content {
	case "!new":
		a.sessions.Reset(m.Author.ID)
		a.send(m.ChannelID, "Started a new chat.")
		return
	case "!status":
		a.send(m.ChannelID, a.statusText(m.Author.ID))
		return
	}
	if strings.HasPrefix(content, "!") {
		return
	}

	a.runTurn(ctx, m, content)
}

func (a *Adapter) statusText(userID string) string {
	sessionID, ok := a.sessions.Get(userID)
	display := "no active chat"
	if ok && len(sessionID) > 8 {
		display = sessionID[:8] + "..."
	} else if ok {
		display = sessionID
	}

	a.mu.Lock()
	pending := len(a.pending)
	a.mu.Unlock()

	return fmt.Sprintf("Session: `%s`\nPending approvals: %d", display, pending)
}

func (a *Adapter) runTurn(ctx context.Context, m *discordgo.MessageCreate, content string) {
	a.session.ChannelTyping(m.ChannelID)

	sessionID, _ := a.sessions.Get(m.Author.ID)
	events, err := a.client.Chat(ctx, sessionID, content)
	if err != nil {
		a.logger.Error().Err(err).Msg("chat request failed")
		a.send(m.ChannelID, "Error: could not reach the agent.")
		return
	}

	var fullText strings.Builder
	for event := range events {
		switch event.Type {
		case runner.EventText:
			fullText.WriteString(event.Content)

		case runner.EventToolRequest:
			a.sendApprovalPrompt(m.ChannelID, event)

		case runner.EventToolResult:
			a.clearPending(event.ApprovalID)
			a.sendToolResult(m.ChannelID, event)

		case runner.EventToolRejected:
			a.clearPending(event.ApprovalID)
			a.send(m.ChannelID, fmt.Sprintf("Tool `%s` rejected.", event.Tool))

		case runner.EventDone:
			if event.SessionID != "" {
				a.sessions.Set(m.Author.ID, event.SessionID)
			}
		}
	}

	if text := strings.TrimSpace(fullText.String()); text != "" {
		for _, chunk := range channel.SplitText(text, channel.DiscordLimit) {
			a.send(m.ChannelID, chunk)
		}
	}
}

func (a *Adapter) sendApprovalPrompt(channelID string, event runner.Event) {
	var params strings.Builder
	for key, value := range event.Params {
		fmt.Fprintf(&params, "  %s: %v\n", key, value)
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s Tool request: %s", riskEmoji(event.Risk), event.Tool),
		Description: event.Description,
		Color:       riskColor(event.Risk),
	}
	if params.Len() > 0 {
		embed.Fields = []*discordgo.MessageEmbedField{{
			Name:  "Parameters",
			Value: fmt.Sprintf("```\n%s```", params.String()),
		}}
	}

	components := []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Allow once",
					Style:    discordgo.SuccessButton,
					CustomID: approvalCustomID(event.ApprovalID, channel.ChoiceOnce),
				},
				discordgo.Button{
					Label:    "Allow for session",
					Style:    discordgo.PrimaryButton,
					CustomID: approvalCustomID(event.ApprovalID, channel.ChoiceSession),
				},
				discordgo.Button{
					Label:    "Deny",
					Style:    discordgo.DangerButton,
					CustomID: approvalCustomID(event.ApprovalID, channel.ChoiceNever),
				},
			},
		},
	}

	_, err := a.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	})
	if err != nil {
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

func (a *Adapter) sendToolResult(channelID string, event runner.Event) {
	result := event.Result
	if len(result) > 1500 {
		result = result[:1500]
	}
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Tool `%s` executed (%dms)", event.Tool, event.ExecutionTimeMS),
		Description: fmt.Sprintf("```\n%s\n```", result),
		Color:       0x00d4ff,
	}
	if _, err := a.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		a.logger.Error().Err(err).Msg("failed to send tool result")
	}
}

func (a *Adapter) handleInteraction(ctx context.Context, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	approvalID, decision, ok := parseApprovalCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}

	status, err := a.client.Approve(ctx, approvalID, decision)
	if err != nil {
		a.logger.Error().Err(err).Str("approval_id", approvalID).Msg("approve request failed")
		a.respond(i, "Error submitting the decision.")
		return
	}

	a.clearPending(approvalID)

	switch status {
	case approval.Resolved:
		a.disableButtons(i)
		a.respond(i, fmt.Sprintf("Decision: **%s**", decisionLabel(decision)))
	case approval.AlreadyResolved:
		a.disableButtons(i)
		a.respond(i, "Already decided elsewhere.")
	case approval.NotFound:
		a.disableButtons(i)
		a.respond(i, "This request already expired.")
	}
}

// disableButtons rewrites the prompt message without its components so the
// buttons cannot be pressed again.
func (a *Adapter) disableButtons(i *discordgo.InteractionCreate) {
	err := a.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     i.Message.Embeds,
			Components: []discordgo.MessageComponent{},
		},
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to disable approval buttons")
	}
}

func (a *Adapter) respond(i *discordgo.InteractionCreate, text string) {
	_, err := a.session.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: text,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to send interaction followup")
	}
}

func (a *Adapter) send(channelID, text string) {
	if _, err := a.session.ChannelMessageSend(channelID, text); err != nil {
		a.logger.Error().Err(err).Msg("failed to send message")
	}
}

func approvalCustomID(approvalID, decision string) string {
	return fmt.Sprintf("approve:%s:%s", approvalID, decision)
}

func parseApprovalCustomID(customID string) (approvalID, decision string, ok bool) {
	parts := strings.Split(customID, ":")
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

func riskColor(risk string) int {
	switch risk {
	case "low":
		return 0x00ff00
	case "high", "critical":
		return 0xff0000
	default:
		return 0xffaa00
	}
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = true
		}
	}
	return set
}
