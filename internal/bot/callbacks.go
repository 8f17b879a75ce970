package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"valwatch/internal/alerts"
	"valwatch/internal/storage"
	"valwatch/internal/transport"
	logx "valwatch/pkg/logx"
)

// Callback actions under the "alert" namespace. disable_no_edit comes from
// the button attached to alert notices.
const (
	actionEnable        = "enable"
	actionDisable       = "disable"
	actionDisableNoEdit = "disable_no_edit"
)

type callbackFunc = handlerFunc

func (b *Bot) callbackTable() map[string]callbackFunc {
	return map[string]callbackFunc{
		"alert:" + actionEnable:        b.cbToggle(true),
		"alert:" + actionDisable:       b.cbToggle(false),
		"alert:" + actionDisableNoEdit: b.cbDisableNoEdit,
		"nodes:page":                   b.cbNodesPage,
	}
}

func (b *Bot) setAlert(ctx context.Context, req *request, enabled bool) (alerts.Kind, bool, error) {
	kind, ok := alerts.LookupKind(req.payload)
	if !ok {
		return alerts.Kind{}, false, b.toast(ctx, req, "Unknown alert")
	}
	err := b.store.SetUserAlertEnabled(ctx, req.fromID, kind.ID, enabled)
	if errors.Is(err, storage.ErrNotFound) {
		return alerts.Kind{}, false, b.toast(ctx, req, "Send /start first")
	}
	if err != nil {
		return alerts.Kind{}, false, fmt.Errorf("set alert %s: %w", kind.ID, err)
	}
	req.log.Info("alert preference changed", logx.String("kind", kind.ID), logx.Bool("enabled", enabled))
	return kind, true, nil
}

// cbToggle flips a kind from the /alerts menu and redraws the menu in place.
func (b *Bot) cbToggle(enabled bool) callbackFunc {
	return func(ctx context.Context, req *request) error {
		kind, ok, err := b.setAlert(ctx, req, enabled)
		if !ok || err != nil {
			return err
		}
		msg, err := b.alertsMenu(ctx, req.fromID)
		if err != nil {
			return err
		}
		if err := msg.Edit(ctx, b.adapter, messageRef(req)); err != nil {
			return err
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		return b.toast(ctx, req, kind.Name+" "+state)
	}
}

// cbDisableNoEdit turns a kind off from a notice. The notice text stays;
// only its button is removed.
func (b *Bot) cbDisableNoEdit(ctx context.Context, req *request) error {
	kind, ok, err := b.setAlert(ctx, req, false)
	if !ok || err != nil {
		return err
	}
	if err := b.adapter.EditButtons(ctx, messageRef(req), [][]transport.Button{}); err != nil {
		req.log.Debug("remove notice button failed", logx.Err(err))
	}
	return b.reply(ctx, req, "🔕 "+kind.Name+" alerts disabled. Turn them back on with /alerts.")
}

func (b *Bot) cbNodesPage(ctx context.Context, req *request) error {
	page, err := strconv.Atoi(req.payload)
	if err != nil {
		return b.toast(ctx, req, "Bad page")
	}
	msg, err := b.nodesPage(ctx, req.fromID, page)
	if err != nil {
		return err
	}
	return msg.Edit(ctx, b.adapter, messageRef(req))
}

func messageRef(req *request) transport.MessageRef {
	return transport.MessageRef{ChatID: req.chat.ChatID, ThreadID: req.chat.ThreadID, MessageID: req.callback.MessageID}
}
