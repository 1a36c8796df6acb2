package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fathom-research/fathom/config"
	"github.com/fathom-research/fathom/internal/agent/core"
	"github.com/fathom-research/fathom/internal/agent/telemetry"
	"github.com/fathom-research/fathom/internal/contextstore"
	"github.com/fathom-research/fathom/internal/history"
	"github.com/fathom-research/fathom/internal/server"
	"github.com/fathom-research/fathom/internal/tools"
)

func main() {
	root := &cobra.Command{Use: "fathom"}
	root.AddCommand(askCMD(), serveCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type engine struct {
	cfg     *config.Config
	orch    *core.Orchestrator
	history *history.Selector
	tel     *telemetry.Telemetry
}

func buildEngine(cfgPath string) (*engine, error) {
	cfg := config.LoadConfig(cfgPath)
	tel := telemetry.NewTelemetry(cfg.Telemetry)

	provider, err := core.NewLLMProvider(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm provider: %w", err)
	}

	store, err := contextstore.NewStore(cfg.Storage, nil)
	if err != nil {
		return nil, fmt.Errorf("context store: %w", err)
	}
	index, err := contextstore.NewIndex(cfg.Tools.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("context index: %w", err)
	}

	registry, err := tools.NewRegistry(cfg.Tools, index, nil)
	if err != nil {
		return nil, err
	}
	hist, err := history.NewSelector(nil)
	if err != nil {
		return nil, err
	}

	orch := core.NewOrchestrator(cfg, provider, registry, contextstore.WithIndex(store, index), hist, tel)
	return &engine{cfg: cfg, orch: orch, history: hist, tel: tel}, nil
}

func askCMD() *cobra.Command {
	var cfgPath string
	var stream bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Run one research query and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cfgPath)
			if err != nil {
				return err
			}
			defer eng.tel.Shutdown()

			query := strings.Join(args, " ")
			ctx := cmd.Context()
			if eng.cfg.General.DefaultTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, eng.cfg.General.DefaultTimeout)
				defer cancel()
			}

			var result core.OrchestratorResult
			if stream {
				events := make(chan core.Event, 64)
				done := make(chan struct{})
				go func() {
					defer close(done)
					for ev := range events {
						printEvent(ev)
					}
				}()
				result, err = eng.orch.ProcessStream(ctx, query, events)
				<-done
			} else {
				result, err = eng.orch.Process(ctx, query)
			}
			if err != nil {
				return err
			}

			if asJSON {
				out, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}
			fmt.Println(result.Answer.Content)
			fmt.Printf("\n(%d iterations, %d tokens, $%.4f, %v)\n",
				result.Iterations, result.TokensUsed, result.CostEstimate, result.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	cmd.Flags().BoolVar(&stream, "stream", false, "print progress events while running")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

func printEvent(ev core.Event) {
	switch ev.Type {
	case core.EventThinking:
		fmt.Printf("· %v\n", ev.Data)
	case core.EventAnswer, core.EventSources, core.EventEvidence:
		// the final answer is printed after the run
	default:
		data, err := json.Marshal(ev.Data)
		if err != nil {
			data = []byte(fmt.Sprint(ev.Data))
		}
		fmt.Printf("· %s: %s\n", ev.Type, data)
	}
}

func serveCMD() *cobra.Command {
	var cfgPath string
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine(cfgPath)
			if err != nil {
				return err
			}
			defer eng.tel.Shutdown()
			if addr != "" {
				eng.cfg.Server.Address = addr
			}

			srv := server.New(eng.cfg, eng.orch, eng.history, eng.tel, nil)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-stop:
				log.Println("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
