package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"valwatch/internal/alerts"
	"valwatch/internal/storage"
	"valwatch/internal/transport"
	logx "valwatch/pkg/logx"
	"valwatch/pkg/tgui"
)

const (
	maxLabelLen  = 32
	nodesPerPage = 10
)

type command struct {
	name        string
	usage       string
	description string
	handle      handlerFunc
}

func (b *Bot) commandTable() map[string]command {
	list := []command{
		{name: "start", usage: "/start", description: "Register and enable every alert", handle: b.cmdStart},
		{name: "add", usage: "/add <ADNL> [label]", description: "Watch a validator node", handle: b.cmdAdd},
		{name: "label", usage: "/label <ADNL> <label>", description: "Rename a watched node", handle: b.cmdLabel},
		{name: "remove", usage: "/remove <ADNL>", description: "Stop watching a node", handle: b.cmdRemove},
		{name: "nodes", usage: "/nodes [page]", description: "List watched nodes", handle: b.cmdNodes},
		{name: "alerts", usage: "/alerts", description: "Turn alert kinds on or off", handle: b.cmdAlerts},
		{name: "help", usage: "/help", description: "Show available commands", handle: b.cmdHelp},
	}
	out := make(map[string]command, len(list))
	for _, c := range list {
		out[c.name] = c
	}
	return out
}

// Commands returns the command menu in display order.
func (b *Bot) Commands() []transport.BotCommand {
	out := make([]transport.BotCommand, 0, len(b.commands))
	for _, c := range b.commands {
		out = append(out, transport.BotCommand{Command: c.name, Description: c.description})
	}
	sort.Slice(out, func(i, j int) bool { return menuOrder(out[i].Command) < menuOrder(out[j].Command) })
	return out
}

func menuOrder(name string) int {
	for i, n := range []string{"start", "add", "nodes", "label", "remove", "alerts", "help"} {
		if n == name {
			return i
		}
	}
	return 99
}

func (b *Bot) cmdStart(ctx context.Context, req *request) error {
	if _, err := b.store.AddUserWithAlerts(ctx, req.fromID, req.username, alerts.KindIDs()); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	nodes, err := b.store.UserNodes(ctx, req.fromID)
	if err != nil {
		return err
	}
	msg := tgui.New().Title("👋", "TON validator alerts")
	if len(nodes) == 0 {
		msg.Line("I watch TON validator nodes and message you when something needs attention: fines, telemetry problems, election stakes and network complaints.").
			Blank().
			HTML(tgui.Raw("Add your first node with " + tgui.Code("/add <ADNL> [label]").String() + "."))
	} else {
		msg.Line(fmt.Sprintf("You are watching %d node(s).", len(nodes))).
			Blank().
			Line("/nodes lists them, /alerts manages notifications, /help shows everything else.")
	}
	_, err = msg.Build().Send(ctx, b.adapter, req.chat)
	return err
}

func (b *Bot) cmdHelp(ctx context.Context, req *request) error {
	msg := tgui.New().Title("ℹ️", "Commands")
	for _, c := range b.Commands() {
		usage := b.commands[c.Command].usage
		msg.HTML(tgui.Code(usage) + tgui.Esc(" - "+c.Description))
	}
	_, err := msg.Build().Send(ctx, b.adapter, req.chat)
	return err
}

func (b *Bot) cmdAdd(ctx context.Context, req *request) error {
	if !b.requireUser(ctx, req) {
		return nil
	}
	if len(req.args) == 0 {
		return b.reply(ctx, req, "Usage: /add <ADNL> [label]")
	}
	adnl, ok := parseADNL(req.args[0])
	if !ok {
		return b.reply(ctx, req, "That does not look like an ADNL address: expected 64 hex characters.")
	}
	label := strings.Join(req.args[1:], " ")
	if utf8.RuneCountInString(label) > maxLabelLen {
		return b.reply(ctx, req, fmt.Sprintf("Label is too long: at most %d characters.", maxLabelLen))
	}

	node, err := b.store.AddNode(ctx, req.fromID, adnl, label)
	switch {
	case errors.Is(err, storage.ErrNodeExists):
		return b.reply(ctx, req, "You already watch this node.")
	case errors.Is(err, storage.ErrTooManyNodes):
		return b.reply(ctx, req, fmt.Sprintf("You reached the limit of %d nodes.", storage.MaxNodesPerUser))
	case err != nil:
		return fmt.Errorf("add node: %w", err)
	}
	req.log.Info("node added", logx.String("adnl", node.ADNL))

	text := "✅ Node " + tgui.Code(alerts.ADNLText(node.ADNL, node.Label, true)).String() + " added."
	if b.probe != nil {
		sends, err := b.probe.SendsTelemetry(ctx, node.ADNL)
		if err != nil {
			req.log.Warn("telemetry probe failed", logx.String("adnl", node.ADNL), logx.Err(err))
		} else if !sends {
			text += "\n\n⚠️ This node does not send telemetry, so telemetry alerts will stay silent for it. " +
				"Enable telemetry in your validator setup to get them."
		}
	}
	return b.replyHTML(ctx, req, text, nil)
}

func (b *Bot) cmdLabel(ctx context.Context, req *request) error {
	if !b.requireUser(ctx, req) {
		return nil
	}
	if len(req.args) < 2 {
		return b.reply(ctx, req, "Usage: /label <ADNL> <label>")
	}
	adnl, ok := parseADNL(req.args[0])
	if !ok {
		return b.reply(ctx, req, "That does not look like an ADNL address: expected 64 hex characters.")
	}
	label := strings.Join(req.args[1:], " ")
	if utf8.RuneCountInString(label) > maxLabelLen {
		return b.reply(ctx, req, fmt.Sprintf("Label is too long: at most %d characters.", maxLabelLen))
	}
	err := b.store.SetNodeLabel(ctx, req.fromID, adnl, label)
	if errors.Is(err, storage.ErrNotFound) {
		return b.reply(ctx, req, "You do not watch this node.")
	}
	if err != nil {
		return fmt.Errorf("set label: %w", err)
	}
	return b.reply(ctx, req, "Label saved.")
}

func (b *Bot) cmdRemove(ctx context.Context, req *request) error {
	if !b.requireUser(ctx, req) {
		return nil
	}
	if len(req.args) != 1 {
		return b.reply(ctx, req, "Usage: /remove <ADNL>")
	}
	adnl, ok := parseADNL(req.args[0])
	if !ok {
		return b.reply(ctx, req, "That does not look like an ADNL address: expected 64 hex characters.")
	}
	err := b.store.RemoveNode(ctx, req.fromID, adnl)
	if errors.Is(err, storage.ErrNotFound) {
		return b.reply(ctx, req, "You do not watch this node.")
	}
	if err != nil {
		return fmt.Errorf("remove node: %w", err)
	}
	req.log.Info("node removed", logx.String("adnl", adnl))
	return b.reply(ctx, req, "Node removed.")
}

func (b *Bot) cmdNodes(ctx context.Context, req *request) error {
	if !b.requireUser(ctx, req) {
		return nil
	}
	page := 0
	if len(req.args) > 0 {
		if n, err := strconv.Atoi(req.args[0]); err == nil && n > 0 {
			page = n - 1
		}
	}
	msg, err := b.nodesPage(ctx, req.fromID, page)
	if err != nil {
		return err
	}
	_, err = msg.Send(ctx, b.adapter, req.chat)
	return err
}

func (b *Bot) nodesPage(ctx context.Context, userID int64, index int) (tgui.Message, error) {
	nodes, err := b.store.UserNodes(ctx, userID)
	if err != nil {
		return tgui.Message{}, err
	}
	if len(nodes) == 0 {
		return tgui.New().Line("You watch no nodes yet. Add one with /add <ADNL> [label].").Build(), nil
	}

	p := tgui.Paginate(nodes, index, nodesPerPage)
	msg := tgui.New().Title("🖥", "Your nodes").Line(p.Label()).Blank()
	for i, n := range p.Items {
		line := tgui.Esc(strconv.Itoa(p.From+i+1)+". ") + tgui.Code(n.ADNL)
		if n.Label != "" {
			line += tgui.Esc(" " + n.Label)
		}
		msg.HTML(line)
	}

	var nav []transport.Button
	if p.HasPrev {
		nav = append(nav, tgui.Btn("‹ Prev", tgui.Data("nodes", "page", strconv.Itoa(p.Index-1))))
	}
	if p.HasNext {
		nav = append(nav, tgui.Btn("Next ›", tgui.Data("nodes", "page", strconv.Itoa(p.Index+1))))
	}
	return msg.Keyboard(tgui.NewKeyboard().Row(nav...)).Build(), nil
}

func (b *Bot) cmdAlerts(ctx context.Context, req *request) error {
	if !b.requireUser(ctx, req) {
		return nil
	}
	msg, err := b.alertsMenu(ctx, req.fromID)
	if err != nil {
		return err
	}
	_, err = msg.Send(ctx, b.adapter, req.chat)
	return err
}

// alertsMenu renders every kind with a toggle button reflecting the
// user's current preference.
func (b *Bot) alertsMenu(ctx context.Context, userID int64) (tgui.Message, error) {
	prefs, err := b.store.UserAlerts(ctx, userID)
	if err != nil {
		return tgui.Message{}, err
	}
	enabled := make(map[string]bool, len(prefs))
	for _, p := range prefs {
		enabled[p.Kind] = p.Enabled
	}

	msg := tgui.New().Title("🔔", "Notifications")
	kb := tgui.NewKeyboard()
	for _, k := range alerts.Kinds() {
		msg.Blank().HTML(tgui.B(k.Name)).Line(k.Description)
		if enabled[k.ID] {
			kb.Row(tgui.Btn("🔔 "+k.Name, tgui.Data("alert", "disable", k.ID)))
		} else {
			kb.Row(tgui.Btn("🔕 "+k.Name, tgui.Data("alert", "enable", k.ID)))
		}
	}
	return msg.Keyboard(kb).Build(), nil
}

// requireUser replies with an onboarding hint when the sender never ran /start.
func (b *Bot) requireUser(ctx context.Context, req *request) bool {
	_, err := b.store.GetUser(ctx, req.fromID)
	if err == nil {
		return true
	}
	if errors.Is(err, storage.ErrNotFound) {
		_ = b.reply(ctx, req, "Send /start first.")
	} else {
		req.log.Warn("load user failed", logx.Err(err))
		_ = b.reply(ctx, req, "Something went wrong, try again later.")
	}
	return false
}

// parseADNL validates a 64-character hex address and upper-cases it.
func parseADNL(s string) (string, bool) {
	if len(s) != 64 {
		return "", false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return "", false
		}
	}
	return strings.ToUpper(s), true
}
