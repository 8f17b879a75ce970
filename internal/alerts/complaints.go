package alerts

import (
	"context"
	"fmt"
	"strconv"

	"valwatch/internal/storage"
	"valwatch/internal/toncenter"
	logx "valwatch/pkg/logx"
)

// complaintsSummaryCheck sends one network-wide digest of passed complaints
// per finished validation cycle.
type complaintsSummaryCheck struct{ base }

func (c *complaintsSummaryCheck) Run(ctx context.Context, users []storage.User) error {
	cycle, err := c.Upstream.ValidationCycle(ctx, toncenter.Past)
	if err != nil {
		return fmt.Errorf("past cycle: %w", err)
	}
	until := cycle.CycleInfo.UtimeUntil
	ready := until + int64(c.ComplaintsGrace.Seconds())
	if c.Now().Unix() < ready {
		c.log.Debug("complaints digest not ready",
			logx.Int64("cycle_id", cycle.CycleID),
			logx.Int64("ready_at", ready),
		)
		return nil
	}

	key := ComplaintsSummaryKey(cycle.CycleID)
	pending := c.pending(ctx, users, key)
	if len(pending) == 0 {
		return nil
	}

	text, err := c.digest(ctx, cycle)
	if err != nil {
		return err
	}

	for _, u := range pending {
		if _, err := c.Informer.Inform(ctx, Notice{
			UserID: u.ID,
			Key:    key,
			Kind:   ComplaintsSummary,
			Text:   text,
			Policy: OneShot,
		}); err != nil {
			c.log.Warn("inform failed", logx.Int64("user_id", u.ID), logx.String("key", key), logx.Err(err))
		}
	}
	return nil
}

// pending drops users who already received the digest so a delivered cycle
// costs no upstream calls. Users whose record cannot be read stay in the list.
func (c *complaintsSummaryCheck) pending(ctx context.Context, users []storage.User, key string) []storage.User {
	var out []storage.User
	for _, u := range users {
		done, err := c.Store.TriggeredAlertExists(ctx, u.ID, key)
		if err == nil && done {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (c *complaintsSummaryCheck) digest(ctx context.Context, cycle toncenter.ValidationCycle) (string, error) {
	complaints, err := c.Upstream.Complaints(ctx, cycle.CycleID)
	if err != nil {
		return "", fmt.Errorf("complaints for cycle %d: %w", cycle.CycleID, err)
	}

	var passed []toncenter.Complaint
	for _, cm := range complaints {
		if cm.IsPassed {
			passed = append(passed, cm)
		}
	}

	var lines []complaintLine
	if len(passed) > 0 {
		board, err := c.Upstream.Scoreboard(ctx, cycle.CycleID)
		if err != nil {
			c.log.Warn("scoreboard fetch failed; efficiency omitted", logx.Int64("cycle_id", cycle.CycleID), logx.Err(err))
		}
		indexes := make(map[string]int, len(cycle.CycleInfo.Validators))
		for _, v := range cycle.CycleInfo.Validators {
			indexes[normADNL(v.ADNLAddr)] = v.Index
		}

		// Newest complaint first.
		for i := len(passed) - 1; i >= 0; i-- {
			cm := passed[i]
			line := complaintLine{ADNL: cm.ADNLAddr, Index: "?", Efficiency: "n/a", Penalty: Tons(cm.SuggestedFine)}
			if idx, ok := indexes[normADNL(cm.ADNLAddr)]; ok {
				line.Index = strconv.Itoa(idx)
			}
			if eff, ok := toncenter.EfficiencyOf(board, cm.ADNLAddr); ok {
				line.Efficiency = fmtNum(eff)
			}
			lines = append(lines, line)
		}
	}
	return complaintsSummaryText(cycle.CycleID, cycle.CycleID, cycle.CycleInfo.UtimeUntil, lines), nil
}
