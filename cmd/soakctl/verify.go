package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fenwick-quant/soakctl/pkg/artifacts"
	"github.com/fenwick-quant/soakctl/pkg/types"
	"github.com/fenwick-quant/soakctl/pkg/verifier"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the Delta Verifier over a completed soak's artifacts",
	Long: `Verify classifies every consecutive iteration pair under --path that
proposed a tuning delta as full-apply, guard-justified partial, unjustified
fail, or signature-stuck, then reports a PASS/FAIL verdict for --mode.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().String("path", "", "Artifact tree directory (required)")
	verifyCmd.Flags().String("mode", string(verifier.ModeDefault), "Verification mode: default, strict, or soft")
	_ = verifyCmd.MarkFlagRequired("path")
}

func runVerify(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	mode, _ := cmd.Flags().GetString("mode")

	var verifyMode verifier.Mode
	switch verifier.Mode(mode) {
	case verifier.ModeDefault, verifier.ModeStrict, verifier.ModeSoft:
		verifyMode = verifier.Mode(mode)
	default:
		fmt.Fprintf(os.Stderr, "verify: unknown mode %q (want default, strict, or soft)\n", mode)
		os.Exit(2)
	}

	store, err := artifacts.New(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: cannot open artifact tree: %v\n", err)
		os.Exit(2)
	}

	summaries, err := store.ListIterationSummaries()
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: cannot list iteration summaries: %v\n", err)
		os.Exit(2)
	}
	if len(summaries) == 0 {
		fmt.Fprintf(os.Stderr, "verify: no iteration summaries found under %s\n", path)
		os.Exit(2)
	}

	result := verifier.Verify(verifyMode, summaries)
	printVerifyResult(result)

	if result.Verdict != types.VerdictPass {
		os.Exit(1)
	}
	return nil
}

func printVerifyResult(result verifier.Result) {
	fmt.Printf("Delta Verifier (%s mode): %s\n", result.Mode, result.Verdict)
	fmt.Printf("  Pairs evaluated: %d\n", len(result.Pairs))
	fmt.Printf("  Full-apply ratio: %.3f\n", result.FullApplyRatio)
	fmt.Printf("  Signature-stuck count: %d\n", result.SignatureStuckCount)
	for _, pair := range result.Pairs {
		if pair.Classification == verifier.ClassificationFull {
			continue
		}
		fmt.Printf("  iteration %d -> %d: %s %v\n", pair.IterationFrom, pair.IterationTo, pair.Classification, pair.Mismatches)
	}
}
