package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet names required in the rule workbook.
const (
	SheetModels    = "ModelTable"
	SheetScenarios = "ScenarioTable"
	SheetRegions   = "RegionTable"
	SheetVariables = "VariableTable"
	SheetItems     = "ItemTable"
	SheetUnits     = "UnitTable"
	SheetYears     = "YearTable"
	SheetRegionFix = "RegionFixTable"
	SheetValueFix  = "ValueFixTable"
	SheetRanges    = "VariableUnitValueTable"
)

// LoadError reports a missing or malformed rule table. It is fatal: no
// diagnosis may run against a partially loaded rule set.
type LoadError struct {
	Sheet string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("rule table %q: %v", e.Sheet, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Load reads the rule workbook at path and builds the rule set.
func Load(path string, opts ...Option) (*Set, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule workbook: %w", err)
	}
	defer f.Close()

	var t Tables
	if t.Models, err = namedColumn(f, SheetModels, "Model"); err != nil {
		return nil, err
	}
	if t.Scenarios, err = namedColumn(f, SheetScenarios, "Scenario"); err != nil {
		return nil, err
	}
	if t.Regions, err = namedColumn(f, SheetRegions, "Region"); err != nil {
		return nil, err
	}
	if t.Variables, err = namedColumn(f, SheetVariables, "Variable"); err != nil {
		return nil, err
	}
	if t.Items, err = namedColumn(f, SheetItems, "Item"); err != nil {
		return nil, err
	}
	if t.Units, err = namedColumn(f, SheetUnits, "Unit"); err != nil {
		return nil, err
	}
	if t.Years, err = namedColumn(f, SheetYears, "Year"); err != nil {
		return nil, err
	}
	if t.RegionFixes, err = fixTable(f, SheetRegionFix, "Region", "Fix"); err != nil {
		return nil, err
	}
	if t.ValueFixes, err = fixTable(f, SheetValueFix, "Value", "Fix"); err != nil {
		return nil, err
	}
	if t.Ranges, err = rangeTable(f, SheetRanges); err != nil {
		return nil, err
	}
	return NewSet(t, opts...), nil
}

// namedColumn returns the non-empty cells under the given header.
func namedColumn(f *excelize.File, sheet, header string) ([]string, error) {
	rows, idx, err := sheetRows(f, sheet, header)
	if err != nil {
		return nil, err
	}
	var values []string
	for _, row := range rows[1:] {
		if idx[0] < len(row) {
			if v := strings.TrimSpace(row[idx[0]]); v != "" {
				values = append(values, v)
			}
		}
	}
	return values, nil
}

// fixTable returns a raw -> fix map from a two-column sheet.
func fixTable(f *excelize.File, sheet, rawHeader, fixHeader string) (map[string]string, error) {
	rows, idx, err := sheetRows(f, sheet, rawHeader, fixHeader)
	if err != nil {
		return nil, err
	}
	fixes := make(map[string]string)
	for _, row := range rows[1:] {
		if idx[0] >= len(row) || idx[1] >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[idx[0]])
		fix := strings.TrimSpace(row[idx[1]])
		if raw == "" {
			continue
		}
		fixes[raw] = fix
	}
	return fixes, nil
}

// rangeTable returns the (variable, unit) -> bounds map.
func rangeTable(f *excelize.File, sheet string) (map[RangeKey]Range, error) {
	rows, idx, err := sheetRows(f, sheet, "Variable", "Unit", "Minimum Value", "Maximum Value")
	if err != nil {
		return nil, err
	}
	ranges := make(map[RangeKey]Range)
	need := 0
	for _, j := range idx {
		if j+1 > need {
			need = j + 1
		}
	}
	for i, row := range rows[1:] {
		if len(row) < need {
			continue
		}
		variable := strings.TrimSpace(row[idx[0]])
		unit := strings.TrimSpace(row[idx[1]])
		if variable == "" && unit == "" {
			continue
		}
		min, err := strconv.ParseFloat(strings.TrimSpace(row[idx[2]]), 64)
		if err != nil {
			return nil, &LoadError{Sheet: sheet, Err: fmt.Errorf("row %d: bad minimum value: %w", i+2, err)}
		}
		max, err := strconv.ParseFloat(strings.TrimSpace(row[idx[3]]), 64)
		if err != nil {
			return nil, &LoadError{Sheet: sheet, Err: fmt.Errorf("row %d: bad maximum value: %w", i+2, err)}
		}
		ranges[RangeKey{Variable: variable, Unit: unit}] = Range{Min: min, Max: max}
	}
	return ranges, nil
}

// sheetRows reads a sheet and locates the given headers in its first row.
func sheetRows(f *excelize.File, sheet string, headers ...string) ([][]string, []int, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, nil, &LoadError{Sheet: sheet, Err: err}
	}
	if len(rows) == 0 {
		return nil, nil, &LoadError{Sheet: sheet, Err: fmt.Errorf("sheet is empty")}
	}
	idx := make([]int, len(headers))
	for i, header := range headers {
		idx[i] = -1
		for j, cell := range rows[0] {
			if strings.TrimSpace(cell) == header {
				idx[i] = j
				break
			}
		}
		if idx[i] == -1 {
			return nil, nil, &LoadError{Sheet: sheet, Err: fmt.Errorf("missing column %q", header)}
		}
	}
	return rows, idx, nil
}
