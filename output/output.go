// Package output applies user-resolved label corrections to the accepted
// rows of a diagnosed submission and produces the final processed
// dataset: eight canonical columns with the model name prepended.
package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"datavalidator/diagnosis"
	"datavalidator/rules"
	"datavalidator/submission"
)

// Canonical column order of a processed record.
const (
	ColModel = iota
	ColScenario
	ColRegion
	ColVariable
	ColItem
	ColUnit
	ColYear
	ColValue
	numColumns
)

// FilteredFile holds the rows that survive the re-validation pass.
const FilteredFile = "Filtered Output Data.csv"

const cellTrim = "'\"` "

// ConflictError reports an unknown label resolved with both a fix and an
// override; the correction stage must not run until that is resolved.
type ConflictError struct {
	Label  string
	Column string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("unknown label %q (%s) has both a fix and an override", e.Label, e.Column)
}

// Entity is the processed dataset. Numeric fields stay strings: raw
// tokens may have been fixed to non-numeric targets like "N/A".
type Entity struct {
	FilePath string
	Records  [][]string

	// Distinct label values per category, sorted; consumed by the
	// preview and reporting surfaces.
	UniqueScenarios []string
	UniqueRegions   []string
	UniqueVariables []string
	UniqueItems     []string
	UniqueUnits     []string
	UniqueYears     []string
}

// Applicator merges resolved labels into accepted rows.
type Applicator struct {
	rules *rules.Set
	dir   string
}

// NewApplicator returns an applicator writing its output files under dir.
func NewApplicator(rs *rules.Set, dir string) *Applicator {
	return &Applicator{rules: rs, dir: dir}
}

// CheckResolutions rejects unknown labels carrying both a fix and an
// override.
func CheckResolutions(unknowns []diagnosis.UnknownLabel) error {
	for _, u := range unknowns {
		if u.Override && strings.TrimSpace(u.Fix) != "" {
			return &ConflictError{Label: u.Label, Column: u.Column}
		}
	}
	return nil
}

// CountOverrides returns how many unknown labels were overridden.
// Overridden labels put a submission on the review path.
func CountOverrides(unknowns []diagnosis.UnknownLabel) int {
	n := 0
	for _, u := range unknowns {
		if u.Override {
			n++
		}
	}
	return n
}

// Apply reads the accepted-rows file, rearranges each row into canonical
// column order with the model name prepended, substitutes bad-label and
// resolved unknown-label fixes, and drops rows carrying unresolved,
// non-overridden unknown labels. The processed dataset is written to a
// timestamped file under the applicator's directory.
func (a *Applicator) Apply(ent *submission.Entity, bad []diagnosis.BadLabel, unknowns []diagnosis.UnknownLabel, acceptedPath string) (*Entity, error) {
	if err := CheckResolutions(unknowns); err != nil {
		return nil, err
	}
	if err := ent.ValidateConfig(); err != nil {
		return nil, err
	}

	subst := make(map[string]map[string]string)
	drops := make(map[string]map[string]struct{})
	for _, b := range bad {
		addFix(subst, b.Column, b.Label, b.Fix)
	}
	for _, u := range unknowns {
		switch {
		case strings.TrimSpace(u.Fix) != "":
			addFix(subst, u.Column, u.Label, u.Fix)
		case !u.Override:
			if drops[u.Column] == nil {
				drops[u.Column] = make(map[string]struct{})
			}
			drops[u.Column][u.Label] = struct{}{}
		}
	}

	in, err := os.Open(acceptedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open accepted rows: %w", err)
	}
	defer in.Close()

	out := &Entity{}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, ent.Delimiter())
		record := []string{
			ent.ModelName,
			trimCell(fields[ent.ScenarioCol-1]),
			trimCell(fields[ent.RegionCol-1]),
			trimCell(fields[ent.VariableCol-1]),
			trimCell(fields[ent.ItemCol-1]),
			trimCell(fields[ent.UnitCol-1]),
			trimCell(fields[ent.YearCol-1]),
			trimCell(fields[ent.ValueCol-1]),
		}
		for i, column := range recordColumns {
			if fix, ok := subst[column][record[i+1]]; ok {
				record[i+1] = fix
			}
		}
		if dropped(drops, record) {
			continue
		}
		out.Records = append(out.Records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accepted rows: %w", err)
	}

	out.FilePath = a.outputPath(ent)
	if err := writeRecords(out.FilePath, out.Records); err != nil {
		return nil, err
	}
	out.populateUnique()
	return out, nil
}

// recordColumns maps record positions 1..7 to label-record column names.
var recordColumns = []string{
	diagnosis.ColScenario,
	diagnosis.ColRegion,
	diagnosis.ColVariable,
	diagnosis.ColItem,
	diagnosis.ColUnit,
	diagnosis.ColYear,
	diagnosis.ColValue,
}

// Refilter re-validates the rows whose variable or unit field came from
// an unknown-label fix: those fixes were never range-checked because the
// original label was unresolvable. Surviving rows are written to the
// filtered output file. It reports whether any row was dropped.
func (a *Applicator) Refilter(out *Entity, unknowns []diagnosis.UnknownLabel) (bool, error) {
	fixed := make(map[string]struct{})
	for _, u := range unknowns {
		// A blank fix means the label was dropped, not substituted; the
		// same predicate Apply and CheckResolutions use.
		if strings.TrimSpace(u.Fix) == "" {
			continue
		}
		if u.Column == diagnosis.ColVariable || u.Column == diagnosis.ColUnit {
			fixed[u.Fix] = struct{}{}
		}
	}

	f, err := os.Create(filepath.Join(a.dir, FilteredFile))
	if err != nil {
		return false, fmt.Errorf("failed to create filtered output: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	newIssues := false
	for _, record := range out.Records {
		variable := record[ColVariable]
		unit := record[ColUnit]
		_, variableFixed := fixed[variable]
		_, unitFixed := fixed[unit]
		if variableFixed || unitFixed {
			value, err := strconv.ParseFloat(strings.TrimSpace(record[ColValue]), 64)
			min, max := a.rules.RangeFor(variable, unit)
			if err != nil || value < min || value > max {
				newIssues = true
				continue
			}
		}
		fmt.Fprintln(w, strings.Join(record, ","))
	}
	if err := w.Flush(); err != nil {
		return false, fmt.Errorf("failed to write filtered output: %w", err)
	}
	return newIssues, nil
}

// FromFiltered rebuilds the processed dataset from the filtered output
// file, writing it to a fresh timestamped file.
func (a *Applicator) FromFiltered(ent *submission.Entity) (*Entity, error) {
	in, err := os.Open(filepath.Join(a.dir, FilteredFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open filtered output: %w", err)
	}
	defer in.Close()

	out := &Entity{}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if scanner.Text() == "" {
			continue
		}
		record := strings.Split(scanner.Text(), ",")
		if len(record) != numColumns {
			return nil, fmt.Errorf("filtered output has %d columns, want %d", len(record), numColumns)
		}
		out.Records = append(out.Records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read filtered output: %w", err)
	}

	out.FilePath = a.outputPath(ent)
	if err := writeRecords(out.FilePath, out.Records); err != nil {
		return nil, err
	}
	out.populateUnique()
	return out, nil
}

// WriteOverrideInfo writes one line per overridden label (label, column,
// closest match) for the downstream review step.
func WriteOverrideInfo(path string, unknowns []diagnosis.UnknownLabel) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create override info: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, u := range unknowns {
		if u.Override {
			fmt.Fprintf(w, "%s,%s,%s\n", u.Label, u.Column, u.ClosestMatch)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write override info: %w", err)
	}
	return nil
}

// outputPath derives the processed file name from the submission file
// stem plus a timestamp.
func (a *Applicator) outputPath(ent *submission.Entity) string {
	stem := strings.TrimSuffix(filepath.Base(ent.FilePath), filepath.Ext(ent.FilePath))
	return filepath.Join(a.dir, stem+time.Now().Format("_01022006_150405")+".csv")
}

func writeRecords(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, record := range records {
		fmt.Fprintln(w, strings.Join(record, ","))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

func (e *Entity) populateUnique() {
	e.UniqueScenarios = uniqueColumn(e.Records, ColScenario)
	e.UniqueRegions = uniqueColumn(e.Records, ColRegion)
	e.UniqueVariables = uniqueColumn(e.Records, ColVariable)
	e.UniqueItems = uniqueColumn(e.Records, ColItem)
	e.UniqueUnits = uniqueColumn(e.Records, ColUnit)
	e.UniqueYears = uniqueColumn(e.Records, ColYear)
}

func uniqueColumn(records [][]string, col int) []string {
	set := make(map[string]struct{})
	for _, record := range records {
		set[record[col]] = struct{}{}
	}
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

func addFix(subst map[string]map[string]string, column, label, fix string) {
	if subst[column] == nil {
		subst[column] = make(map[string]string)
	}
	subst[column][label] = fix
}

func dropped(drops map[string]map[string]struct{}, record []string) bool {
	for i, column := range recordColumns {
		if _, drop := drops[column][record[i+1]]; drop {
			return true
		}
	}
	return false
}

func trimCell(s string) string { return strings.Trim(s, cellTrim) }
