// Package notification provides implementations for various notification services
package notification

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"slices"

	"github.com/raykavin/regimerun/pkg/core"
	"github.com/raykavin/regimerun/pkg/exchange"
	"github.com/raykavin/regimerun/pkg/position"
	"github.com/raykavin/regimerun/pkg/summary"
	log "github.com/sirupsen/logrus"
	tb "gopkg.in/tucnak/telebot.v2"
)

// Telegram implements the core.NotifierWithStart interface
type telegram struct {
	settings    *core.Settings
	manager     *position.Manager
	recorder    *summary.Recorder
	defaultMenu *tb.ReplyMarkup
	client      *tb.Bot
}

// Option is a function that configures a telegram instance
type Option func(telegram *telegram)

// WithRecorder wires the trade attribution recorder for /profit
func WithRecorder(recorder *summary.Recorder) Option {
	return func(t *telegram) {
		t.recorder = recorder
	}
}

// NewTelegram creates and initializes a new Telegram service
func NewTelegram(manager *position.Manager, settings *core.Settings, options ...Option) (core.NotifierWithStart, error) {
	menu := &tb.ReplyMarkup{ResizeReplyKeyboard: true}
	poller := &tb.LongPoller{Timeout: 10 * time.Second}

	userMiddleware := createAuthMiddleware(poller, settings)

	client, err := tb.NewBot(tb.Settings{
		ParseMode: tb.ModeMarkdown,
		Token:     settings.Telegram.Token,
		Poller:    userMiddleware,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	setupKeyboard(menu)
	if err := setupCommands(client); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	bot := &telegram{
		manager:     manager,
		client:      client,
		settings:    settings,
		defaultMenu: menu,
	}

	for _, option := range options {
		option(bot)
	}

	registerHandlers(client, bot)

	return bot, nil
}

// createAuthMiddleware creates a middleware to validate authorized users
func createAuthMiddleware(poller *tb.LongPoller, settings *core.Settings) *tb.MiddlewarePoller {
	return tb.NewMiddlewarePoller(poller, func(u *tb.Update) bool {
		if u.Message == nil || u.Message.Sender == nil {
			log.Error("message or sender is nil ", u)
			return false
		}

		if slices.Contains(settings.Telegram.Users, int(u.Message.Sender.ID)) {
			return true
		}

		log.Error("unauthorized user ", u.Message.Sender.ID)
		return false
	})
}

// setupKeyboard configures the reply keyboard layout
func setupKeyboard(menu *tb.ReplyMarkup) {
	var (
		statusBtn    = menu.Text("/status")
		positionsBtn = menu.Text("/positions")
		profitBtn    = menu.Text("/profit")
		helpBtn      = menu.Text("/help")
	)

	menu.Reply(
		menu.Row(statusBtn, positionsBtn),
		menu.Row(profitBtn, helpBtn),
	)
}

// setupCommands configures available bot commands
func setupCommands(client *tb.Bot) error {
	return client.SetCommands([]tb.Command{
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/status", Description: "Check engine status"},
		{Text: "/positions", Description: "List open positions"},
		{Text: "/profit", Description: "Summary of trade results per strategy"},
	})
}

// registerHandlers registers all command handlers
func registerHandlers(client *tb.Bot, bot *telegram) {
	client.Handle("/help", bot.HelpHandle)
	client.Handle("/status", bot.StatusHandle)
	client.Handle("/positions", bot.PositionsHandle)
	client.Handle("/profit", bot.ProfitHandle)
}

// Start begins the Telegram bot and notifies all authorized users
func (t *telegram) Start() {
	go t.client.Start()
	t.sendMessageWithOptions("Engine initialized.", t.defaultMenu)
}

// Notify sends a message to all authorized users
func (t *telegram) Notify(text string) {
	for _, user := range t.settings.Telegram.Users {
		_, err := t.client.Send(&tb.User{ID: int64(user)}, text)
		if err != nil {
			log.WithError(err).Error("failed to send notification")
		}
	}
}

// sendMessageWithOptions sends a message to all authorized users with additional options
func (t *telegram) sendMessageWithOptions(text string, options ...interface{}) {
	for _, user := range t.settings.Telegram.Users {
		_, err := t.client.Send(&tb.User{ID: int64(user)}, text, options...)
		if err != nil {
			log.WithError(err).Error("failed to send notification with options")
		}
	}
}

// sendMessage sends a message to a specific user
func (t *telegram) sendMessage(to *tb.User, text string, options ...interface{}) {
	_, err := t.client.Send(to, text, options...)
	if err != nil {
		log.WithError(err).Error("failed to send message")
	}
}

// HelpHandle displays available commands
func (t *telegram) HelpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		log.WithError(err).Error("failed to get commands")
		t.OnError(err)
		return
	}

	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", command.Text, command.Description))
	}

	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// StatusHandle displays the symbols under management
func (t *telegram) StatusHandle(m *tb.Message) {
	positions, err := t.manager.ActivePositions()
	if err != nil {
		t.OnError(err)
		return
	}

	t.sendMessage(m.Sender, fmt.Sprintf("Watching `%d` symbols, `%d` open positions.",
		len(t.settings.Symbols), len(positions)))
}

// PositionsHandle lists every open position with entry and protective levels
func (t *telegram) PositionsHandle(m *tb.Message) {
	positions, err := t.manager.ActivePositions()
	if err != nil {
		t.OnError(err)
		return
	}

	if len(positions) == 0 {
		t.sendMessage(m.Sender, "No open positions.")
		return
	}

	var sb strings.Builder
	for _, pos := range positions {
		fmt.Fprintf(&sb, "*%s* %s x%d\n", pos.Symbol, pos.Side, pos.Leverage)
		fmt.Fprintf(&sb, "Entry: `%.4f` Qty: `%.6f`\n", pos.AvgEntryPrice(), pos.Quantity)
		fmt.Fprintf(&sb, "SL: `%.4f` TP: `%.4f`\n", pos.StopLoss, pos.TakeProfit)
		fmt.Fprintf(&sb, "Strategy: `%s` Held: `%s`\n-----\n", pos.StrategyUsed, pos.HoldTime().Round(time.Minute))
	}

	t.sendMessage(m.Sender, sb.String())
}

// ProfitHandle shows the per-strategy trading results
func (t *telegram) ProfitHandle(m *tb.Message) {
	if t.recorder == nil {
		t.sendMessage(m.Sender, "No trade recorder configured.")
		return
	}

	report := t.recorder.String()
	if report == "" {
		t.sendMessage(m.Sender, "No trades registered.")
		return
	}

	t.sendMessage(m.Sender, fmt.Sprintf("```\n%s\n```", report))
}

// OnPosition notifies users about position lifecycle changes
func (t *telegram) OnPosition(pos core.Position) {
	var title string
	if pos.IsActive {
		title = fmt.Sprintf("🟢 POSITION OPENED - %s", pos.Symbol)
	} else {
		title = fmt.Sprintf("🔴 POSITION CLOSED - %s", pos.Symbol)
	}

	var sb strings.Builder
	sb.WriteString(title + "\n-----\n")
	fmt.Fprintf(&sb, "Side: %s x%d\n", pos.Side, pos.Leverage)
	fmt.Fprintf(&sb, "Entry: %.4f Qty: %.6f\n", pos.AvgEntryPrice(), pos.Quantity)

	if !pos.IsActive {
		fmt.Fprintf(&sb, "Exit: %.4f (%s)\n", pos.ClosedPrice, pos.ExitReason)
		fmt.Fprintf(&sb, "PnL: %.2f%% (%.4f)\n", pos.PnLPercent, pos.PnLAmount)
	}

	t.Notify(sb.String())
}

// OnError notifies users about errors
func (t *telegram) OnError(err error) {
	var sb strings.Builder
	sb.WriteString("🛑 ERROR\n")

	var orderError *exchange.OrderError
	if errors.As(err, &orderError) {
		sb.WriteString("-----\n")
		fmt.Fprintf(&sb, "Pair: %s\n", orderError.Pair)
		fmt.Fprintf(&sb, "Quantity: %.4f\n", orderError.Quantity)
		sb.WriteString("-----\n")
		sb.WriteString(orderError.Err.Error())

		t.Notify(sb.String())
		return
	}

	sb.WriteString("-----\n")
	sb.WriteString(err.Error())

	t.Notify(sb.String())
}
