package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/messenger/internal/logger"
	"github.com/yourorg/messenger/internal/models"
	"github.com/yourorg/messenger/internal/reconcile"
)

var tailCmd = &cobra.Command{
	Use:   "tail [conversation-id]",
	Short: "Follow your conversations live",
	Long: `tail hydrates your conversation list and follows realtime updates.
With a conversation id it opens that chat and prints messages as they arrive;
without one it reports activity across all conversations.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, sess, err := authedClient()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ctrl := reconcile.NewController(c, c.FeedSource(), logger.Nop())
		if err := ctrl.Hydrate(ctx, sess.UserID); err != nil {
			return fmt.Errorf("hydrate: %w", err)
		}
		defer ctrl.Detach()

		if len(args) == 1 {
			if err := ctrl.SetActive(ctx, args[0]); err != nil {
				return fmt.Errorf("open conversation: %w", err)
			}
			return tailTimeline(ctx, ctrl, sess.Email)
		}
		return tailList(ctx, ctrl, sess.Email)
	},
}

// tailTimeline prints the open chat, then every message that arrives after.
func tailTimeline(ctx context.Context, ctrl *reconcile.Controller, selfEmail string) error {
	printed := map[string]bool{}
	render := func() {
		for _, m := range ctrl.Messages() {
			if printed[m.ID] || reconcile.IsPlaceholder(m.ID) {
				continue
			}
			printed[m.ID] = true
			printMessage(m)
		}
	}
	render()

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			render()
		}
	}
}

// tailList reports which conversation moved, using last-activity stamps.
func tailList(ctx context.Context, ctrl *reconcile.Controller, selfEmail string) error {
	seen := map[string]time.Time{}
	for _, conv := range ctrl.Conversations() {
		seen[conv.ID] = lastActivity(conv)
		fmt.Printf("%s\t%s\n", conv.ID, conv.DisplayName(selfEmail))
	}
	fmt.Println("--- waiting for activity ---")

	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			for _, conv := range ctrl.Conversations() {
				at := lastActivity(conv)
				if prev, ok := seen[conv.ID]; ok && !at.After(prev) {
					continue
				}
				seen[conv.ID] = at
				preview := ""
				if last := conv.LastMessage(); last != nil {
					preview = last.Preview()
				}
				fmt.Printf("[%s] %s: %s\n", at.Local().Format("15:04:05"), conv.DisplayName(selfEmail), preview)
			}
		}
	}
}

func lastActivity(c models.Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

func printMessage(m models.Message) {
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.Sender.Name, m.Preview())
}
