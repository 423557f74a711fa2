// Command flux runs sample workflows against a SQLite database and prints
// their outcome.
package main

import (
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	_ "modernc.org/sqlite"

	"github.com/petrijr/flux"
	"github.com/petrijr/flux/pkg/worker"
)

type cliConfig struct {
	DBPath     string
	TracePath  string
	Scenario   string
	ConfigPath string
	Verbose    bool
	List       bool
}

// Payment is the input of the saga and retry scenarios.
type Payment struct {
	OrderID string
	Amount  int
	Fail    bool
}

func init() {
	gob.Register(Payment{})
}

func main() {
	cfg := parseFlags()

	fcfg := flux.DefaultConfig()
	if cfg.ConfigPath != "" {
		loaded, err := flux.LoadConfig(cfg.ConfigPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		fcfg = loaded
	}
	if err := fcfg.LoadFromEnv(); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	if cfg.Verbose {
		fcfg.LogLevel = "debug"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := sql.Open("sqlite", "file:"+cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	opts := []flux.Option{flux.WithConfig(fcfg)}
	if cfg.TracePath != "" {
		sink, err := flux.NewFileTraceSink(cfg.TracePath)
		if err != nil {
			log.Fatalf("Failed to open trace file: %v", err)
		}
		defer sink.Close()
		opts = append(opts, flux.WithTraceSink(sink))
		color.Blue("Trace: %s", cfg.TracePath)
	}

	var last *flux.Result
	opts = append(opts, flux.WithWorkerConfig(worker.Config{
		MaxAttempts: 3,
		Backoff:     200 * time.Millisecond,
		OnResult: func(task flux.Task, res *flux.Result, err error) {
			if err != nil {
				color.Red("Task %s failed: %v", task.Type, err)
				return
			}
			last = res
		},
	}))

	bundle, err := flux.NewSQLiteBundle(db, opts...)
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}

	n, err := flux.RecoverStuck(ctx, bundle.Engine)
	if err != nil {
		log.Fatalf("Failed to recover workflows: %v", err)
	}
	if n > 0 {
		color.Yellow("Recovered %d interrupted workflow(s)", n)
	}

	if cfg.List {
		if err := listWorkflows(ctx, bundle.Engine); err != nil {
			log.Fatalf("Failed to list workflows: %v", err)
		}
		return
	}

	if err := bundle.Worker.Register(sagaWorkflow(), approvalWorkflow(), retryWorkflow()); err != nil {
		log.Fatalf("Failed to register workflows: %v", err)
	}

	color.Cyan("Scenario: %s (db %s)", cfg.Scenario, cfg.DBPath)
	start := time.Now()

	switch cfg.Scenario {
	case "saga":
		last, err = bundle.Engine.Execute(ctx, sagaWorkflow(), Payment{OrderID: "ORD-1", Amount: 40, Fail: true})
	case "retry":
		last, err = bundle.Engine.Execute(ctx, retryWorkflow(), Payment{OrderID: "ORD-2", Amount: 15})
	case "approval":
		err = runApproval(ctx, bundle)
	default:
		color.Red("Error: unknown scenario %q", cfg.Scenario)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		color.Red("Scenario failed: %v", err)
		os.Exit(1)
	}

	showResult(last, time.Since(start))
}

func parseFlags() cliConfig {
	var cfg cliConfig
	flag.StringVar(&cfg.DBPath, "db", "flux.db", "Path to the SQLite database file")
	flag.StringVar(&cfg.TracePath, "trace", "", "Append trace events to this JSONL file (optional)")
	flag.StringVar(&cfg.Scenario, "scenario", "saga", "Scenario to run: saga, approval or retry")
	flag.StringVar(&cfg.ConfigPath, "config", "", "Path to a YAML engine config (optional)")
	flag.BoolVar(&cfg.Verbose, "v", false, "Enable debug logging")
	flag.BoolVar(&cfg.List, "list", false, "List stored workflows and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\nOptions:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	return cfg
}

// runApproval drives the approval workflow through the durable queue: the
// worker starts it, then a delayed signal completes it.
func runApproval(ctx context.Context, b *flux.WorkerBundle) error {
	if err := b.Worker.EnqueueExecute(ctx, "approval", Payment{OrderID: "ORD-3", Amount: 900}); err != nil {
		return err
	}
	if _, err := b.Worker.ProcessOne(ctx); err != nil {
		return err
	}
	if err := b.Worker.EnqueueSignalAt(ctx, lastID(ctx, b), "approve", "manager", time.Now().Add(300*time.Millisecond)); err != nil {
		return err
	}
	color.Yellow("Waiting for approval (%d pending task)", b.Pending())
	_, err := b.Worker.ProcessOne(ctx)
	return err
}

func lastID(ctx context.Context, b *flux.WorkerBundle) string {
	states, err := b.Engine.List(ctx, flux.ListFilter{Name: "approval", Status: flux.StatusSuspended})
	if err != nil || len(states) == 0 {
		return ""
	}
	return states[len(states)-1].ID
}

func sagaWorkflow() flux.WorkflowDefinition {
	return flux.New("saga").
		Step("reserve", flux.TypedStep(func(ctx context.Context, wc *flux.WorkflowContext, p Payment) error {
			wc.Data["reserved"] = p.OrderID
			return nil
		}), flux.Compensate(func(ctx context.Context, wc *flux.WorkflowContext) error {
			color.Magenta("  undo reserve %v", wc.Data["reserved"])
			return nil
		})).
		Commit("charge", flux.TypedStep(func(ctx context.Context, wc *flux.WorkflowContext, p Payment) error {
			wc.Data["charged"] = p.Amount
			return nil
		}), flux.Compensate(func(ctx context.Context, wc *flux.WorkflowContext) error {
			color.Magenta("  refund %v", wc.Data["charged"])
			return nil
		})).
		Step("ship", flux.TypedStep(func(ctx context.Context, wc *flux.WorkflowContext, p Payment) error {
			if p.Fail {
				return errors.New("no carrier available")
			}
			return nil
		})).
		MustBuild()
}

func approvalWorkflow() flux.WorkflowDefinition {
	return flux.New("approval").
		Step("submit", flux.TypedStep(func(ctx context.Context, wc *flux.WorkflowContext, p Payment) error {
			wc.Data["order"] = p.OrderID
			return nil
		})).
		Step("approve", flux.WaitForSignalStep("approve")).
		Step("release", func(ctx context.Context, wc *flux.WorkflowContext) error {
			wc.Data["approved_by"] = wc.Step("approve").Output
			return nil
		}).
		MustBuild()
}

func retryWorkflow() flux.WorkflowDefinition {
	attempts := 0
	return flux.New("retry").
		Step("call-gateway", func(ctx context.Context, wc *flux.WorkflowContext) error {
			attempts++
			if attempts < 3 {
				return fmt.Errorf("gateway unavailable (attempt %d)", attempts)
			}
			wc.Data["attempts"] = attempts
			return nil
		}, flux.WithRetries(4), flux.WithTimeout(time.Second)).
		MustBuild()
}

func showResult(res *flux.Result, elapsed time.Duration) {
	if res == nil {
		color.Red("No result")
		return
	}
	statusColor(res.Status).Printf("\nWorkflow %s (%s): %s\n", res.Name, res.ID, res.Status)
	for _, h := range res.History {
		line := fmt.Sprintf("  %-14s %-12s retries=%d", h.Name, h.Status, h.Retries)
		if h.Error != "" {
			line += " error=" + h.Error
		}
		fmt.Println(line)
	}
	if res.Error != "" {
		color.Red("Error: %s", res.Error)
	}
	fmt.Printf("Data: %v\n", res.Data)
	color.White("Elapsed: %v", elapsed.Round(time.Millisecond))
}

func listWorkflows(ctx context.Context, eng flux.Engine) error {
	states, err := eng.List(ctx, flux.ListFilter{})
	if err != nil {
		return err
	}
	if len(states) == 0 {
		color.Yellow("No workflows stored")
		return nil
	}
	for _, st := range states {
		statusColor(st.Status).Printf("%-36s %-10s %-12s step=%d %s\n",
			st.ID, st.Name, st.Status, st.CurrentStep, st.CreatedAt.Format(time.DateTime))
	}
	return nil
}

func statusColor(s flux.Status) *color.Color {
	switch s {
	case flux.StatusCompleted:
		return color.New(color.FgGreen, color.Bold)
	case flux.StatusSuspended, flux.StatusPaused:
		return color.New(color.FgYellow)
	case flux.StatusFailed, flux.StatusRolledBack:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgCyan)
	}
}
