// Package diagnosis classifies every data row of a configured submission
// into exactly one of four buckets (structural issue, ignored scenario,
// duplicate, accepted) and every distinct accepted label into correct,
// bad or unknown. Rows are streamed; only accepted-label sets and the
// duplicate occurrence counts stay in memory.
package diagnosis

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"datavalidator/rules"
	"datavalidator/submission"
)

// Row report file names, consumed by the reporting layer.
const (
	StructIssueFile     = "Rows With Structural Issue.csv"
	IgnoredScenarioFile = "Records With An Ignored Scenario.csv"
	DuplicateFile       = "Duplicate Records.csv"
	AcceptedFile        = "Accepted Records.csv"
)

const cellTrim = "'\"` "

// Engine runs the row and label checks for one rule set.
type Engine struct {
	rules *rules.Set
	dir   string
}

// NewEngine returns an engine writing its row report files under dir.
func NewEngine(rs *rules.Set, dir string) *Engine {
	return &Engine{rules: rs, dir: dir}
}

// run carries the per-run state of one diagnosis pass.
type run struct {
	engine *Engine
	entity *submission.Entity
	result *Result

	correctColumns int
	largestColumns int

	// Occurrence counts of raw lines, for duplicate detection. Grows
	// with the number of distinct rows; see the capacity test.
	occurrences map[string]int

	seenScenarios map[string]struct{}
	seenRegions   map[string]struct{}
	seenVariables map[string]struct{}
	seenItems     map[string]struct{}
	seenUnits     map[string]struct{}
	seenYears     map[string]struct{}

	badSeen     map[BadLabel]struct{}
	unknownSeen map[UnknownLabel]struct{}

	structIssues *bufio.Writer
	ignored      *bufio.Writer
	duplicates   *bufio.Writer
	accepted     *bufio.Writer
	files        []*os.File
}

// Run diagnoses the submission. The entity's configuration must have
// passed ValidateConfig. The file is scanned twice, both passes
// streaming: once to survey field counts, once to classify rows.
func (e *Engine) Run(entity *submission.Entity) (*Result, error) {
	if err := entity.ValidateConfig(); err != nil {
		return nil, err
	}

	r := &run{
		engine:        e,
		entity:        entity,
		result:        &Result{},
		occurrences:   make(map[string]int),
		seenScenarios: make(map[string]struct{}),
		seenRegions:   make(map[string]struct{}),
		seenVariables: make(map[string]struct{}),
		seenItems:     make(map[string]struct{}),
		seenUnits:     make(map[string]struct{}),
		seenYears:     make(map[string]struct{}),
		badSeen:       make(map[BadLabel]struct{}),
		unknownSeen:   make(map[UnknownLabel]struct{}),
	}

	if err := r.surveyColumns(); err != nil {
		return nil, err
	}
	if err := r.columnsInBounds(); err != nil {
		return nil, err
	}
	if err := r.classifyRows(); err != nil {
		return nil, err
	}
	r.classifyLabels()
	return r.result, nil
}

// surveyColumns finds the most frequent and the largest field count over
// the whole file. The most frequent count stands in for the field count
// of a clean row.
func (r *run) surveyColumns() error {
	in, err := r.entity.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	counts := make(map[int]int)
	scanner := newLineScanner(in)
	for scanner.Scan() {
		n := len(strings.Split(scanner.Text(), r.entity.Delimiter()))
		counts[n]++
		if n > r.largestColumns {
			r.largestColumns = n
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to survey submission file: %w", err)
	}

	bestFreq := -1
	for n, freq := range counts {
		if freq > bestFreq || (freq == bestFreq && n < r.correctColumns) {
			r.correctColumns, bestFreq = n, freq
		}
	}
	return nil
}

// columnsInBounds rejects column assignments past the field count of a
// clean row. ValidateConfig cannot see the file, so the check lives
// here; it aborts the run, not the process.
func (r *run) columnsInBounds() error {
	cols := []struct {
		name string
		col  int
	}{
		{"scenario", r.entity.ScenarioCol},
		{"region", r.entity.RegionCol},
		{"variable", r.entity.VariableCol},
		{"item", r.entity.ItemCol},
		{"unit", r.entity.UnitCol},
		{"year", r.entity.YearCol},
		{"value", r.entity.ValueCol},
	}
	for _, c := range cols {
		if c.col > r.correctColumns {
			return submission.ConfigurationError(fmt.Sprintf(
				"%s column %d is out of range: rows have %d fields", c.name, c.col, r.correctColumns))
		}
	}
	return nil
}

// classifyRows streams the file once more, routing every data row into
// exactly one bucket. Skipped and header rows consume row numbers but
// land in no bucket.
func (r *run) classifyRows() error {
	in, err := r.entity.Open()
	if err != nil {
		return err
	}
	defer in.Close()

	if err := r.openReports(); err != nil {
		return err
	}
	defer r.closeReports()

	scanner := newLineScanner(in)
	rowNum := 0
	for scanner.Scan() {
		rowNum++
		if rowNum <= r.entity.LinesToSkip() {
			continue
		}
		if rowNum == r.entity.LinesToSkip()+1 && r.entity.HeaderIncluded {
			continue
		}

		line := scanner.Text()
		row := strings.Split(line, r.entity.Delimiter())

		if r.checkStructure(rowNum, row) {
			continue
		}
		if r.checkIgnoredScenario(rowNum, row) {
			continue
		}
		if r.checkDuplicate(rowNum, line) {
			continue
		}
		if err := r.accept(rowNum, line, row); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to scan submission file: %w", err)
	}
	return r.flushReports()
}

// checkStructure reports and logs a structural issue, if any. The checks
// run in a fixed order and the first failure wins.
func (r *run) checkStructure(rowNum int, row []string) bool {
	if len(row) != r.correctColumns {
		r.logStructIssue(rowNum, row, "Mismatched number of fields")
		return true
	}

	fields := []struct {
		col    int
		reason string
	}{
		{r.entity.ScenarioCol, "Empty scenario field"},
		{r.entity.RegionCol, "Empty region field"},
		{r.entity.VariableCol, "Empty variable field"},
		{r.entity.ItemCol, "Empty item field"},
		{r.entity.UnitCol, "Empty unit field"},
	}
	for _, f := range fields {
		if row[f.col-1] == "" {
			r.logStructIssue(rowNum, row, f.reason)
			return true
		}
	}

	year := row[r.entity.YearCol-1]
	if year == "" {
		r.logStructIssue(rowNum, row, "Empty year field")
		return true
	}
	if _, err := strconv.Atoi(strings.TrimSpace(year)); err != nil {
		r.logStructIssue(rowNum, row, "Non-integer year field")
		return true
	}

	return r.checkValueStructure(rowNum, row)
}

// checkValueStructure validates the value field: substitute through the
// value-fix table when possible, resolve variable and unit to canonical
// spellings when possible, then require a number inside the registered
// range.
func (r *run) checkValueStructure(rowNum int, row []string) bool {
	value := row[r.entity.ValueCol-1]
	if fix, ok := r.engine.rules.ValueFix(value); ok {
		value = fix
	}

	variable := row[r.entity.VariableCol-1]
	if match, ok := r.engine.rules.MatchVariable(variable); ok {
		variable = match
	}
	unit := row[r.entity.UnitCol-1]
	if match, ok := r.engine.rules.MatchUnit(unit); ok {
		unit = match
	}

	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		r.logStructIssue(rowNum, row, "Non-numeric value field")
		return true
	}

	min, max := r.engine.rules.RangeFor(variable, unit)
	if parsed < min {
		r.logStructIssue(rowNum, row, fmt.Sprintf("Value for variable %s is smaller than %g %s", variable, min, unit))
		return true
	}
	if parsed > max {
		r.logStructIssue(rowNum, row, fmt.Sprintf("Value for variable %s is greater than %g %s", variable, max, unit))
		return true
	}
	return false
}

// checkIgnoredScenario matches the raw scenario field against the ignore
// list, without case normalization.
func (r *run) checkIgnoredScenario(rowNum int, row []string) bool {
	scenario := row[r.entity.ScenarioCol-1]
	for _, ignored := range r.entity.ScenariosToIgnore {
		if scenario == ignored {
			fmt.Fprintf(r.ignored, "%d,%s\n", rowNum, strings.Join(row, ","))
			r.result.IgnoredScenario++
			return true
		}
	}
	return false
}

// checkDuplicate counts raw-line occurrences; the second and later
// occurrences are duplicates.
func (r *run) checkDuplicate(rowNum int, line string) bool {
	r.occurrences[line]++
	if occ := r.occurrences[line]; occ > 1 {
		fmt.Fprintf(r.duplicates, "%d,%s,%d\n", rowNum, line, occ)
		r.result.Duplicates++
		return true
	}
	return false
}

// accept logs the row and collects its labels. A non-numeric value here
// means the structural gate is broken; that is a defect, not user error.
func (r *run) accept(rowNum int, line string, row []string) error {
	r.result.Accepted++
	fmt.Fprintln(r.accepted, line)

	r.seenScenarios[trimCell(row[r.entity.ScenarioCol-1])] = struct{}{}
	r.seenRegions[trimCell(row[r.entity.RegionCol-1])] = struct{}{}
	r.seenVariables[trimCell(row[r.entity.VariableCol-1])] = struct{}{}
	r.seenItems[trimCell(row[r.entity.ItemCol-1])] = struct{}{}
	r.seenUnits[trimCell(row[r.entity.UnitCol-1])] = struct{}{}
	r.seenYears[trimCell(row[r.entity.YearCol-1])] = struct{}{}

	value := trimCell(row[r.entity.ValueCol-1])
	if fix, ok := r.engine.rules.ValueFix(value); ok {
		if _, err := strconv.ParseFloat(strings.TrimSpace(fix), 64); err != nil {
			return fmt.Errorf("internal: non-numeric fix %q accepted for value %q at row %d", fix, value, rowNum)
		}
		r.addBad(BadLabel{Label: value, Column: ColValue, Fix: fix})
		return nil
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err != nil {
		return fmt.Errorf("internal: non-numeric value %q accepted at row %d", value, rowNum)
	}
	return nil
}

// classifyLabels diagnoses every distinct accepted label per category.
func (r *run) classifyLabels() {
	for _, scenario := range sortedKeys(r.seenScenarios) {
		r.classifySimple(scenario, ColScenario,
			r.engine.rules.MatchScenario, r.engine.rules.ClosestScenario)
	}
	for _, region := range sortedKeys(r.seenRegions) {
		r.classifyRegion(region)
	}
	for _, variable := range sortedKeys(r.seenVariables) {
		r.classifySimple(variable, ColVariable,
			r.engine.rules.MatchVariable, r.engine.rules.ClosestVariable)
	}
	for _, item := range sortedKeys(r.seenItems) {
		r.classifySimple(item, ColItem,
			r.engine.rules.MatchItem, r.engine.rules.ClosestItem)
	}
	for _, unit := range sortedKeys(r.seenUnits) {
		r.classifySimple(unit, ColUnit,
			r.engine.rules.MatchUnit, r.engine.rules.ClosestUnit)
	}
	for _, year := range sortedKeys(r.seenYears) {
		if !r.engine.rules.HasYear(year) {
			r.result.UnknownYears = append(r.result.UnknownYears, year)
		}
	}
	sort.Strings(r.result.UnknownYears)
}

// classifySimple applies the correct/bad/unknown decision shared by
// scenario, variable, item and unit labels.
func (r *run) classifySimple(label, column string, match, closest func(string) (string, bool)) {
	canonical, ok := match(label)
	if ok && canonical == label {
		return
	}
	if !ok {
		suggestion, _ := closest(label)
		r.addUnknown(UnknownLabel{Label: label, Column: column, ClosestMatch: suggestion})
		return
	}
	r.addBad(BadLabel{Label: label, Column: column, Fix: canonical})
}

// classifyRegion adds the region-fix table with precedence below a
// case-insensitive canonical match and above the unknown fallback.
func (r *run) classifyRegion(region string) {
	canonical, ok := r.engine.rules.MatchRegion(region)
	if ok && canonical == region {
		return
	}
	fix, fixOK := r.engine.rules.RegionFix(region)
	switch {
	case !ok && !fixOK:
		suggestion, _ := r.engine.rules.ClosestRegion(region)
		r.addUnknown(UnknownLabel{Label: region, Column: ColRegion, ClosestMatch: suggestion})
	case ok:
		r.addBad(BadLabel{Label: region, Column: ColRegion, Fix: canonical})
	default:
		r.addBad(BadLabel{Label: region, Column: ColRegion, Fix: fix})
	}
}

// addBad and addUnknown de-duplicate by value equality, keeping
// first-seen order.

func (r *run) addBad(label BadLabel) {
	if _, dup := r.badSeen[label]; dup {
		return
	}
	r.badSeen[label] = struct{}{}
	r.result.BadLabels = append(r.result.BadLabels, label)
}

func (r *run) addUnknown(label UnknownLabel) {
	if _, dup := r.unknownSeen[label]; dup {
		return
	}
	r.unknownSeen[label] = struct{}{}
	r.result.UnknownLabels = append(r.result.UnknownLabels, label)
}

// logStructIssue pads the row to the file's largest field count plus two
// and writes the reason in the last column.
func (r *run) logStructIssue(rowNum int, row []string, reason string) {
	r.result.StructuralIssues++
	cols := make([]string, 0, r.largestColumns+2)
	cols = append(cols, strconv.Itoa(rowNum))
	cols = append(cols, row...)
	for len(cols) < r.largestColumns+2 {
		cols = append(cols, "")
	}
	cols = cols[:r.largestColumns+2]
	cols[len(cols)-1] = reason
	fmt.Fprintln(r.structIssues, strings.Join(cols, ","))
}

func (r *run) openReports() error {
	res := r.result
	res.StructIssuePath = filepath.Join(r.engine.dir, StructIssueFile)
	res.IgnoredScenarioPath = filepath.Join(r.engine.dir, IgnoredScenarioFile)
	res.DuplicatePath = filepath.Join(r.engine.dir, DuplicateFile)
	res.AcceptedPath = filepath.Join(r.engine.dir, AcceptedFile)

	for path, w := range map[string]**bufio.Writer{
		res.StructIssuePath:     &r.structIssues,
		res.IgnoredScenarioPath: &r.ignored,
		res.DuplicatePath:       &r.duplicates,
		res.AcceptedPath:        &r.accepted,
	} {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		*w = bufio.NewWriter(f)
		r.files = append(r.files, f)
	}
	return nil
}

func (r *run) flushReports() error {
	for _, w := range []*bufio.Writer{r.structIssues, r.ignored, r.duplicates, r.accepted} {
		if err := w.Flush(); err != nil {
			return fmt.Errorf("failed to flush report file: %w", err)
		}
	}
	return nil
}

func (r *run) closeReports() {
	for _, f := range r.files {
		f.Close()
	}
	r.files = nil
}

func newLineScanner(in io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return scanner
}

func trimCell(s string) string { return strings.Trim(s, cellTrim) }

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
