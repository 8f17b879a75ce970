package alerts

import (
	"context"
	"fmt"

	"valwatch/internal/storage"
	"valwatch/internal/toncenter"
	logx "valwatch/pkg/logx"
)

// electionsCheck follows the current election: while it is open each
// participating node gets a "stake sent" notice; once it closes, nodes that
// never joined are listed in one combined notice per user.
type electionsCheck struct{ base }

func (c *electionsCheck) Run(ctx context.Context, users []storage.User) error {
	election, err := c.Upstream.ElectionData(ctx)
	if err != nil {
		return fmt.Errorf("election data: %w", err)
	}
	participants := make(map[string]toncenter.Participant, len(election.Participants))
	for _, p := range election.Participants {
		participants[normADNL(p.ADNLAddr)] = p
	}

	for _, u := range users {
		nodes, err := c.Store.UserNodes(ctx, u.ID)
		if err != nil {
			c.log.Warn("load nodes failed", logx.Int64("user_id", u.ID), logx.Err(err))
			continue
		}
		if election.Finished {
			c.notifyAbsent(ctx, u.ID, election.ElectionID, nodes, participants)
			continue
		}
		c.notifyParticipants(ctx, u.ID, election.ElectionID, nodes, participants)
	}
	return nil
}

func (c *electionsCheck) notifyParticipants(ctx context.Context, userID, electionID int64, nodes []storage.Node, participants map[string]toncenter.Participant) {
	for _, n := range nodes {
		p, ok := participants[normADNL(n.ADNL)]
		if !ok {
			continue
		}
		c.inform(ctx, Notice{
			UserID: userID,
			Key:    StakeSentKey(electionID, n.ADNL),
			Kind:   ElectionParticipation,
			Text:   stakeSentText(electionID, n.ADNL, n.Label, Tons(p.Stake)),
			Silent: true,
			Policy: OneShot,
		})
	}
}

func (c *electionsCheck) notifyAbsent(ctx context.Context, userID, electionID int64, nodes []storage.Node, participants map[string]toncenter.Participant) {
	var absent []absentNode
	for _, n := range nodes {
		if _, ok := participants[normADNL(n.ADNL)]; ok {
			continue
		}
		absent = append(absent, absentNode{ADNL: n.ADNL, Label: n.Label})
	}
	if len(absent) == 0 {
		return
	}
	c.inform(ctx, Notice{
		UserID: userID,
		Key:    StakeNotSentKey(electionID),
		Kind:   ElectionParticipation,
		Text:   stakeNotSentText(electionID, absent),
		Silent: true,
		Policy: OneShot,
	})
}

func (c *electionsCheck) inform(ctx context.Context, n Notice) {
	if _, err := c.Informer.Inform(ctx, n); err != nil {
		c.log.Warn("inform failed", logx.Int64("user_id", n.UserID), logx.String("key", n.Key), logx.Err(err))
	}
}
