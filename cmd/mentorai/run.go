package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mentorai "github.com/WuVi5054/mentor-ai"
	"github.com/WuVi5054/mentor-ai/pkg/config"
	"github.com/WuVi5054/mentor-ai/pkg/observability"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the conversation console",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
}

func run(cfg *config.Config) error {
	log.Printf("Starting mentor-ai v%s", Version)

	observability.InitMetrics()
	observability.InitHealthChecker().RegisterCheck(observability.PingCheck())
	if err := observability.InitTracingFromEnv(); err != nil {
		log.Printf("Warning: failed to initialize tracing: %v", err)
	}

	mgr, err := mentorai.NewManager(cfg, mentorai.Options{})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	obsServer := observability.NewServer(cfg.Runtime.ObservabilityPort)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Observability server on :%d", cfg.Runtime.ObservabilityPort)
		return obsServer.Start()
	})
	g.Go(func() error {
		// Surface async session failures on the console.
		for {
			select {
			case err := <-mgr.Errors():
				printErr("session error: %v", err)
			case <-gctx.Done():
				return nil
			}
		}
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		cancel()
	}()

	console(gctx, mgr)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := mgr.Close(); err != nil {
		log.Printf("Manager shutdown error: %v", err)
	}
	if err := obsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := observability.ShutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}
	_ = g.Wait()

	log.Println("Stopped")
	return nil
}

// console runs the interactive loop. Lines starting with "/" are
// commands; anything else is recorded as a typed user turn.
func console(ctx context.Context, mgr *mentorai.Manager) {
	line := liner.NewLiner()
	defer func() { _ = line.Close() }()
	line.SetCtrlCAborts(true)

	commands := []string{"/start", "/stop", "/agents", "/active", "/transcript", "/history", "/quit"}
	line.SetCompleter(func(prefix string) (out []string) {
		for _, c := range commands {
			if strings.HasPrefix(c, prefix) {
				out = append(out, c)
			}
		}
		return out
	})

	fmt.Println("Type /agents to list mentors, /start <id> to talk, /quit to exit.")
	for ctx.Err() == nil {
		input, err := line.Prompt("> ")
		if err != nil {
			// liner.ErrPromptAborted on Ctrl-C, io.EOF on Ctrl-D
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if !strings.HasPrefix(input, "/") {
			entry := mgr.AppendUserTurn(input)
			fmt.Printf("[%d] you: %s\n", entry.Seq, entry.Text)
			continue
		}

		cmd, arg, _ := strings.Cut(input, " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "/quit", "/exit":
			return
		case "/agents":
			for _, a := range mgr.Catalog().List() {
				fmt.Printf("  %-18s %s\n", a.ID, a.Name)
			}
		case "/active":
			fmt.Printf("  %v\n", mgr.ActiveSessions())
		case "/start":
			if arg == "" {
				printErr("usage: /start <agent-id>")
				continue
			}
			if _, err := mgr.StartAgent(ctx, arg); err != nil {
				printErr("start: %v", err)
				continue
			}
			fmt.Printf("starting session with %s\n", arg)
		case "/stop":
			if arg == "" {
				printErr("usage: /stop <agent-id>")
				continue
			}
			mgr.StopAgent(arg)
		case "/transcript":
			for _, e := range mgr.Transcript() {
				who := string(e.Role)
				if e.AgentID != "" {
					who = e.AgentID
				}
				fmt.Printf("[%d] %s: %s\n", e.Seq, who, e.Text)
			}
		case "/history":
			recs, err := mgr.History(ctx)
			if err != nil {
				printErr("history: %v", err)
				continue
			}
			for _, r := range recs {
				fmt.Printf("  %s  %s  %d messages  (%s)\n",
					r.CapturedAt.Format(time.RFC3339), r.ID, len(r.Entries), r.Trigger)
			}
		default:
			printErr("unknown command %s", cmd)
		}
	}
}
