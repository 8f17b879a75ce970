package alerts

import (
	"context"
	"fmt"
	"strings"

	"valwatch/internal/storage"
	"valwatch/internal/toncenter"
	logx "valwatch/pkg/logx"
)

// finesCheck tells users about passed complaints against their nodes in
// the past validation cycle.
type finesCheck struct{ base }

func (c *finesCheck) Run(ctx context.Context, users []storage.User) error {
	cycle, err := c.Upstream.ValidationCycle(ctx, toncenter.Past)
	if err != nil {
		return fmt.Errorf("past cycle: %w", err)
	}
	complaints, err := c.Upstream.Complaints(ctx, cycle.CycleID)
	if err != nil {
		return fmt.Errorf("complaints for cycle %d: %w", cycle.CycleID, err)
	}

	var passed []toncenter.Complaint
	for _, cm := range complaints {
		if cm.IsPassed {
			passed = append(passed, cm)
		}
	}
	if len(passed) == 0 {
		return nil
	}

	for _, u := range users {
		nodes, err := c.Store.UserNodes(ctx, u.ID)
		if err != nil {
			c.log.Warn("load nodes failed", logx.Int64("user_id", u.ID), logx.Err(err))
			continue
		}
		if len(nodes) == 0 {
			continue
		}
		byADNL := nodesByADNL(nodes)
		for _, cm := range passed {
			node, ok := byADNL[normADNL(cm.ADNLAddr)]
			if !ok {
				continue
			}
			n := Notice{
				UserID: u.ID,
				Key:    FinesKey(cycle.CycleID, node.ADNL),
				Kind:   FinesAlert,
				Text:   fineText(cycle.CycleID, node.ADNL, node.Label, Tons(cm.SuggestedFine)),
				Policy: OneShot,
			}
			if _, err := c.Informer.Inform(ctx, n); err != nil {
				c.log.Warn("inform failed", logx.Int64("user_id", u.ID), logx.String("key", n.Key), logx.Err(err))
			}
		}
	}
	return nil
}

func normADNL(adnl string) string { return strings.ToUpper(strings.TrimSpace(adnl)) }
