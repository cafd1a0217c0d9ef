package main

import (
	"context"
	"fmt"
	"time"

	mentorai "github.com/WuVi5054/mentor-ai"
	"github.com/WuVi5054/mentor-ai/pkg/catalog"
	"github.com/WuVi5054/mentor-ai/pkg/config"
	"github.com/WuVi5054/mentor-ai/pkg/relay"
	"github.com/WuVi5054/mentor-ai/pkg/transcript"
	"github.com/spf13/cobra"
)

func agentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the mentor roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			cat := catalog.Default()
			if cfg.CatalogPath != "" {
				if cat, err = catalog.Load(cfg.CatalogPath); err != nil {
					return err
				}
			}
			for _, a := range cat.List() {
				fmt.Printf("%-18s %-20s %s\n", a.ID, a.Name, a.Description)
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print persisted conversation records for the configured user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			st, err := mentorai.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			recs, err := st.History(cmd.Context(), cfg.UserID)
			if err != nil {
				return err
			}
			for _, r := range recs {
				fmt.Printf("%s  %s  %d messages  (%s)\n",
					r.CapturedAt.Format(time.RFC3339), r.ID, len(r.Entries), r.Trigger)
			}
			return nil
		},
	}
}

func testWebhookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-webhook",
		Short: "Post a sample conversation record to the configured sink",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			if cfg.Sink.URL == "" {
				return fmt.Errorf("no sink url configured")
			}

			rl, err := relay.New(relay.Config{SinkURL: cfg.Sink.URL})
			if err != nil {
				return err
			}

			userID := cfg.UserID
			if userID == "" {
				userID = "test-user-123"
			}
			rec := relay.NewRecord("test-conversation-456", userID, "stop", sampleEntries())

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := rl.Deliver(ctx, rec); err != nil {
				return err
			}
			fmt.Printf("delivered test record %s to %s\n", rec.ID, cfg.Sink.URL)
			return nil
		},
	}
}

func sampleEntries() []transcript.Entry {
	base := time.Now().UTC().Add(-time.Minute)
	return []transcript.Entry{
		{Seq: 1, Text: "Hello, this is a test message", Role: transcript.RoleUser, Timestamp: base},
		{Seq: 2, Text: "Hi there! This is a test response", Role: transcript.RoleAgent, AgentID: "mr-beast", Timestamp: base.Add(30 * time.Second)},
		{Seq: 3, Text: "Testing the webhook delivery", Role: transcript.RoleUser, Timestamp: base.Add(time.Minute)},
	}
}
