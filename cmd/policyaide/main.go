package main

// #region imports
import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/civic"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/config"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/orchestrator"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/report"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/trace"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/websearch"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/worker"
)

// #endregion

// #region main

func main() {
	query := flag.String("query", "", "policy question, e.g. \"ban on single-use plastic bags\"")
	policyType := flag.String("type", "evolution", "policy type: research | analysis | evolution | integrated")
	configPath := flag.String("config", "", "optional YAML config file")
	jurisdiction := flag.String("jurisdiction", "", "jurisdiction name, e.g. \"Elgin, Illinois\"")
	population := flag.String("population", "", "approximate population")
	notes := flag.String("notes", "", "free-text local context notes")
	interactive := flag.Bool("interactive", false, "gather the jurisdiction profile via prompts")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(2)
	}

	if *query == "" {
		fmt.Print("Enter your policy question: ")
		sc := bufio.NewScanner(os.Stdin)
		if sc.Scan() {
			*query = strings.TrimSpace(sc.Text())
		}
	}
	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: policyaide --query \"...\" [--jurisdiction \"...\"] [--type evolution]")
		os.Exit(2)
	}

	pt, err := parsePolicyType(*policyType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	jc := civic.JurisdictionContext{}
	civic.SetField(jc, civic.FieldJurisdiction, *jurisdiction)
	if relocated := civic.SetField(jc, civic.FieldPopulation, *population); relocated {
		log.Printf("[CLI] population %q moved to notes", *population)
	}
	if *notes != "" {
		civic.AppendNote(jc, *notes)
	}
	if *interactive {
		gatherContext(jc)
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "OPENAI_API_KEY is not set")
		os.Exit(1)
	}
	work := worker.NewGateway(apiKey, cfg.WorkerEndpoint, worker.Options{
		Model:       cfg.WorkerModel,
		SoftTimeout: cfg.SoftTimeout,
		HardTimeout: cfg.HardTimeout,
	})

	search := websearch.NewGateway(websearch.Config{
		Endpoint:   cfg.SearchEndpoint,
		APIKey:     cfg.SearchAPIKey,
		MaxResults: cfg.SearchMax,
		Timeout:    cfg.SoftTimeout,
	})

	var rec trace.Recorder
	if cfg.DisableTracing {
		rec = trace.NewNoopRecorder()
	} else {
		store, err := trace.NewStore(cfg.TraceDir, cfg.DBDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "trace store: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
		rec = store
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(cfg, work, search, rec)
	orch.SetPolicyType(pt)

	handoff, runErr := orch.Run(ctx, *query, jc)
	fmt.Println(report.RenderText(handoff))

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", runErr)
		os.Exit(1)
	}
}

func parsePolicyType(s string) (trace.PolicyType, error) {
	switch trace.PolicyType(s) {
	case trace.PolicyResearch, trace.PolicyAnalysis, trace.PolicyEvolution, trace.PolicyIntegrated:
		return trace.PolicyType(s), nil
	}
	return "", fmt.Errorf("unknown policy type %q (want research|analysis|evolution|integrated)", s)
}

// #endregion

// #region interactive

// gatherContext runs the question loop for the jurisdiction profile.
// Strictly typed answers that fail validation land in notes, never on
// the floor.
func gatherContext(jc civic.JurisdictionContext) {
	sc := bufio.NewScanner(os.Stdin)
	ask := func(prompt string) string {
		fmt.Print(prompt)
		if !sc.Scan() {
			return ""
		}
		return strings.TrimSpace(sc.Text())
	}

	if jc[civic.FieldJurisdiction] == "" {
		civic.SetField(jc, civic.FieldJurisdiction, ask("Jurisdiction type and name: "))
	}
	if jc[civic.FieldPopulation] == "" {
		civic.SetField(jc, civic.FieldPopulation, ask("Approximate population: "))
	}
	civic.SetField(jc, civic.FieldEconomicContext, ask("Major industries/economic drivers: "))
	civic.SetField(jc, civic.FieldExistingPolicies, ask("Existing related policies: "))
	civic.SetField(jc, civic.FieldPolitics, ask("Political considerations/constraints: "))
	civic.SetField(jc, civic.FieldBudget, ask("Budget limitations: "))
	civic.SetField(jc, civic.FieldLocalChallenges, ask("Unique local challenges/opportunities: "))
	civic.SetField(jc, civic.FieldStakeholders, ask("Key stakeholders: "))
	civic.SetYesNoField(jc, civic.FieldPriorAttempts, ask("Has this been attempted before? (yes/no): "))
}

// #endregion
