package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"evai/internal/logging"
)

var auditLimit int

// auditCmd prints the audit trail for a conversation.
var auditCmd = &cobra.Command{
	Use:   "audit [conversation-id]",
	Short: "Show the audit trail of a conversation",
	Long: `Prints the structured audit events recorded for a conversation in
today's audit log. Without an id, all events are shown.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conversationID := ""
		if len(args) > 0 {
			conversationID = args[0]
		}

		events, err := logging.ReadAuditTrail(conversationID)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			fmt.Println("no audit events recorded")
			return nil
		}

		if auditLimit > 0 && len(events) > auditLimit {
			events = events[len(events)-auditLimit:]
		}
		for _, e := range events {
			ts := time.UnixMilli(e.Timestamp).Format("15:04:05.000")
			line := fmt.Sprintf("%s  %-20s  conv=%s", ts, e.EventType, e.ConversationID)
			if e.Target != "" {
				line += "  target=" + e.Target
			}
			if e.Error != "" {
				line += "  error=" + e.Error
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 0, "show only the last N events")
}
