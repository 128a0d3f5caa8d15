// Command check_rules verifies that a rule workbook loads and reports
// the size of every rule table.
package main

import (
	"flag"
	"fmt"
	"log"

	"datavalidator/rules"
)

func main() {
	rulesPath := flag.String("rules", "RuleTables.xlsx", "path to the rule workbook")
	flag.Parse()

	rs, err := rules.Load(*rulesPath)
	if err != nil {
		log.Fatalf("Rule workbook failed to load: %v", err)
	}

	fmt.Printf("Rule workbook OK: %s\n", *rulesPath)
	fmt.Printf("  Models:    %d\n", len(rs.Models()))
	fmt.Printf("  Scenarios: %d\n", len(rs.Scenarios()))
	fmt.Printf("  Regions:   %d\n", len(rs.Regions()))
	fmt.Printf("  Variables: %d\n", len(rs.Variables()))
	fmt.Printf("  Items:     %d\n", len(rs.Items()))
	fmt.Printf("  Units:     %d\n", len(rs.Units()))
	fmt.Printf("  Years:     %d\n", len(rs.Years()))
	fmt.Printf("  Ranges:    %d\n", rs.RangeCount())
}
