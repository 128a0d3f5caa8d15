// Command validate_submission runs the full validation pipeline over a
// delimited data file and prints the diagnosis summary. Unknown labels
// are printed with their closest canonical match; with -drop-unknowns the
// corrections are applied treating every unknown label as dropped.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"datavalidator/pipeline"
	"datavalidator/rules"
)

func main() {
	var (
		rulesPath    = flag.String("rules", "RuleTables.xlsx", "path to the rule workbook")
		filePath     = flag.String("file", "", "path to the submission file")
		workDir      = flag.String("workdir", ".", "directory for report and output files")
		modelName    = flag.String("model", "", "override the guessed model name")
		delimiter    = flag.String("delimiter", "", "override the guessed delimiter")
		linesToSkip  = flag.Int("skip", -1, "override the guessed number of lines to skip")
		ignoreList   = flag.String("ignore", "", "comma-separated scenarios to ignore")
		cutoff       = flag.Float64("cutoff", 0, "minimum similarity for fuzzy suggestions")
		dropUnknowns = flag.Bool("drop-unknowns", false, "apply corrections, dropping all unknown labels")
	)
	flag.Parse()

	if *filePath == "" {
		log.Fatalf("missing -file")
	}

	rs, err := rules.Load(*rulesPath, rules.WithSimilarityCutoff(*cutoff))
	if err != nil {
		log.Fatalf("Failed to load rules: %v", err)
	}

	svc := pipeline.New(rs, *workDir)
	if err := svc.NewSession(*filePath); err != nil {
		log.Fatalf("Failed to read submission: %v", err)
	}

	ent := svc.Entity
	if *delimiter != "" {
		ent.SetDelimiter(*delimiter)
		ent.GuessColumns(rs)
	}
	if *linesToSkip >= 0 {
		if err := ent.SetLinesToSkip(*linesToSkip); err != nil {
			log.Fatalf("Invalid configuration: %v", err)
		}
		ent.GuessColumns(rs)
	}
	if *modelName != "" {
		ent.ModelName = *modelName
	}
	if *ignoreList != "" {
		for _, scenario := range strings.Split(*ignoreList, ",") {
			ent.ScenariosToIgnore = append(ent.ScenariosToIgnore, strings.TrimSpace(scenario))
		}
	}

	fmt.Printf("File: %s (%d lines)\n", ent.FilePath, ent.LineCount())
	fmt.Printf("Model: %s  Delimiter: %q  Header: %v  Skip: %d\n",
		ent.ModelName, ent.Delimiter(), ent.HeaderIncluded, ent.LinesToSkip())
	fmt.Printf("Columns: scenario=%d region=%d variable=%d item=%d unit=%d year=%d value=%d\n",
		ent.ScenarioCol, ent.RegionCol, ent.VariableCol, ent.ItemCol, ent.UnitCol, ent.YearCol, ent.ValueCol)

	res, err := svc.Diagnose()
	if err != nil {
		log.Fatalf("Diagnosis failed: %v", err)
	}

	fmt.Printf("\nRows: %d structural issues, %d ignored scenario, %d duplicates, %d accepted\n",
		res.StructuralIssues, res.IgnoredScenario, res.Duplicates, res.Accepted)

	if len(res.BadLabels) > 0 {
		fmt.Println("\nBad labels (fixed automatically):")
		for _, b := range res.BadLabels {
			fmt.Printf("  %-24s %-10s -> %s\n", b.Label, b.Column, b.Fix)
		}
	}
	if len(res.UnknownLabels) > 0 {
		fmt.Println("\nUnknown labels (need a fix or an override):")
		for _, u := range res.UnknownLabels {
			fmt.Printf("  %-24s %-10s closest: %s\n", u.Label, u.Column, u.ClosestMatch)
		}
	}
	if len(res.UnknownYears) > 0 {
		fmt.Printf("\nYears missing from the year table: %s\n", strings.Join(res.UnknownYears, ", "))
	}

	if !*dropUnknowns {
		if len(res.UnknownLabels) > 0 {
			fmt.Println("\nResolve the unknown labels and re-run, or pass -drop-unknowns.")
			os.Exit(1)
		}
	}

	out, message, err := svc.Apply(res.UnknownLabels)
	if err != nil {
		log.Fatalf("Failed to apply corrections: %v", err)
	}
	if message != "" {
		fmt.Println("\n" + message)
	}
	fmt.Printf("\nProcessed %d records -> %s\n", len(out.Records), out.FilePath)
}
