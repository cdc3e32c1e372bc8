package main

// #region imports
import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/replay"
	"github.com/dustinrgood/CivicAide-PolicyAide/internal/report"
)

// #endregion

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	jsonOut := flag.Bool("json", false, "print the hand-off as JSON instead of text")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [--json]")
		os.Exit(2)
	}

	fixture, err := replay.LoadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	handoff, err := replay.Run(context.Background(), fixture)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		os.Exit(1)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(handoff); err != nil {
			fmt.Fprintf(os.Stderr, "encode: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Println(report.RenderText(handoff))
	}

	if err := replay.Check(fixture, handoff); err != nil {
		fmt.Fprintf(os.Stderr, "expectation failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("All expectations met.")
}

// #endregion
