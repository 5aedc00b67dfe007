// Forgectl inspects and manages pipeline state: the protocol document,
// recent runs, and the cost ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"siteforge/pkg/config"
	"siteforge/pkg/metrics"
	"siteforge/pkg/persistence"
	"siteforge/pkg/proto"
	"siteforge/pkg/state"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	var workDir, prometheusURL string
	flagSet := flag.NewFlagSet("forgectl", flag.ExitOnError)
	flagSet.StringVar(&workDir, "workdir", "", "Working directory (default: current directory)")
	flagSet.StringVar(&prometheusURL, "prometheus-url", "", "Prometheus server to query run totals from instead of the local database")
	flagSet.Usage = printUsage
	if err := flagSet.Parse(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	var err error
	switch command {
	case "status":
		err = runStatus(workDir)
	case "reset":
		err = runReset(workDir)
	case "runs":
		err = runRuns(workDir, prometheusURL)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Forgectl - Pipeline State Inspector\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  %s <command> [--workdir <dir>]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  status  - Print the protocol document: phase, workers, progress\n")
	fmt.Fprintf(os.Stderr, "  reset   - Reset a finished or failed document so a new run can begin\n")
	fmt.Fprintf(os.Stderr, "  runs    - List recent runs with their cost totals\n")
	fmt.Fprintf(os.Stderr, "\nFlags:\n")
	fmt.Fprintf(os.Stderr, "  --workdir <dir>         Working directory (default: current directory)\n")
	fmt.Fprintf(os.Stderr, "  --prometheus-url <url>  Query run totals from Prometheus instead of the local database\n")
}

func documentPath(workDir string) string {
	return filepath.Join(workDir, config.ProjectConfigDir, state.DefaultDocumentName)
}

// runStatus prints the current protocol document.
func runStatus(workDir string) error {
	store, err := state.NewFileStore(documentPath(workDir))
	if err != nil {
		return err
	}
	doc, err := store.Read()
	if err != nil {
		return err
	}

	fmt.Printf("Project state:  %s\n", doc.ProjectState)
	fmt.Printf("Iteration:      %d\n", doc.CurrentIteration)
	fmt.Printf("Completion:     %d%%\n", doc.CompletionPercentage)
	fmt.Printf("Updated at:     %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Println("Workers:")
	for _, w := range proto.Workers {
		line := fmt.Sprintf("  %-15s %s", w, doc.AgentStates[w])
		if msg, ok := doc.ErrorStates[w]; ok && msg != "" {
			line += fmt.Sprintf("  (%s)", msg)
		}
		fmt.Println(line)
	}
	return nil
}

// runReset returns a terminal document to its initial state.
func runReset(workDir string) error {
	store, err := state.NewFileStore(documentPath(workDir))
	if err != nil {
		return err
	}
	doc, err := store.Read()
	if err != nil {
		return err
	}

	if !doc.ProjectState.IsTerminal() {
		return fmt.Errorf("document is in state %q; only complete or error documents can be reset", doc.ProjectState)
	}

	doc.ResetForNewRun()
	if err := store.Write(doc); err != nil {
		return err
	}
	fmt.Println("Protocol document reset; the next run starts a fresh project.")
	return nil
}

// runRuns lists recent runs from the database with cost totals. When a
// Prometheus URL is given the totals come from the server's scraped series,
// with the local database as a fallback per run.
func runRuns(workDir, prometheusURL string) error {
	dbPath := filepath.Join(workDir, config.ProjectConfigDir, config.DefaultDatabaseName)
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("no run database at %s", dbPath)
	}

	db, err := persistence.InitializeDatabase(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ops := persistence.NewDatabaseOperations(db, "")
	runs, err := ops.GetRecentRuns(10)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	var query *metrics.QueryService
	if prometheusURL != "" {
		query, err = metrics.NewQueryService(prometheusURL)
		if err != nil {
			return err
		}
	}

	for _, run := range runs {
		status := run.FinalState
		if status == "" {
			status = "running"
		}
		summary, err := ops.GetRunSummary(run.ID)
		if err != nil {
			return err
		}
		plans, cost := int64(summary.PlansApplied), summary.TotalCostUSD
		if query != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			rm, err := query.GetRunMetrics(ctx, run.ID)
			cancel()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: Prometheus query for %s failed, using local totals: %v\n", run.ID, err)
			} else {
				plans, cost = rm.PlansApplied, rm.TotalCost
			}
		}
		fmt.Printf("%s  %-8s %-8s %s\n", run.StartedAt.Format("2006-01-02 15:04"), run.Mode, status, run.TargetURL)
		fmt.Printf("  %s: %d iterations, %d plans, $%.4f\n",
			run.ID, summary.Iterations, plans, cost)
	}
	return nil
}
