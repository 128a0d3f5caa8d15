package diagnosis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datavalidator/rules"
	"datavalidator/submission"
)

func diagRules() *rules.Set {
	return rules.NewSet(rules.Tables{
		Models:    []string{"AIM", "MAGNET"},
		Scenarios: []string{"SSP2_NoMt_NoCC"},
		Regions:   []string{"CAN", "WLD"},
		Variables: []string{"CONS", "PROD"},
		Items:     []string{"RIC", "WHT"},
		Units:     []string{"1000 t", "1000 t dm"},
		Years:     []string{"2010", "2020"},
		RegionFixes: map[string]string{
			"world": "WLD",
		},
		ValueFixes: map[string]string{
			"n/a": "0",
		},
		Ranges: map[rules.RangeKey]rules.Range{
			{Variable: "PROD", Unit: "1000 t"}: {Min: 0, Max: 1e9},
		},
	})
}

// configuredEntity writes lines to a file and returns an entity configured
// with comma delimiter and columns in protocol order.
func configuredEntity(t *testing.T, lines ...string) *submission.Entity {
	t.Helper()
	path := filepath.Join(t.TempDir(), "submission.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	e, err := submission.New(path)
	require.NoError(t, err)
	e.SetDelimiter(",")
	e.ModelName = "AIM"
	e.ScenarioCol, e.RegionCol, e.VariableCol = 1, 2, 3
	e.ItemCol, e.UnitCol, e.YearCol, e.ValueCol = 4, 5, 6, 7
	return e
}

func reportLines(t *testing.T, path string) []string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(content), "\n"), "\n")
}

func TestRunBucketsEveryRowExactlyOnce(t *testing.T) {
	e := configuredEntity(t,
		"SSP2_NoMt_NoCC,CAN,PROD,RIC,1000 t,2010,12.5",
		"SSP2_NoMt_NoCC,CAN,PROD,RIC,1000 t,2010,12.5",
		"too,few",
		"DROPME,CAN,PROD,RIC,1000 t,2010,1",
		"SSP2_NoMt_NoCC,CAN,PROD,,1000 t,2010,1",
		"SSP2_NoMt_NoCC,CAN,PROD,RIC,1000 t,20x0,1",
		"SSP2_NoMt_NoCC,CAN,PROD,RIC,1000 t,2010,abc",
		"SSP2_NoMt_NoCC,CAN,PROD,RIC,1000 t,2010,2000000000",
		"SSP2_NoMt_NoCC,CAN,PROD,RIC,1000 t,2010,-5",
		"SSP2_NoMt_NoCC,WLD,CONS,WHT,1000 t dm,2020,7",
	)
	e.ScenariosToIgnore = []string{"DROPME"}

	dir := t.TempDir()
	res, err := NewEngine(diagRules(), dir).Run(e)
	require.NoError(t, err)

	assert.Equal(t, 6, res.StructuralIssues)
	assert.Equal(t, 1, res.IgnoredScenario)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 10, res.DataRows())

	// All accepted labels are canonical, so the label diagnosis is clean.
	assert.Empty(t, res.BadLabels)
	assert.Empty(t, res.UnknownLabels)
	assert.Empty(t, res.UnknownYears)

	accepted := reportLines(t, res.AcceptedPath)
	require.Len(t, accepted, 2)
	assert.Equal(t, "SSP2_NoMt_NoCC,CAN,PROD,RIC,1000 t,2010,12.5", accepted[0])

	duplicates := reportLines(t, res.DuplicatePath)
	require.Len(t, duplicates, 1)
	assert.Equal(t, "2,SSP2_NoMt_NoCC,CAN,PROD,RIC,1000 t,2010,12.5,2", duplicates[0])

	ignored := reportLines(t, res.IgnoredScenarioPath)
	require.Len(t, ignored, 1)
	assert.Equal(t, "4,DROPME,CAN,PROD,RIC,1000 t,2010,1", ignored[0])

	issues := reportLines(t, res.StructIssuePath)
	require.Len(t, issues, 6)
	reasons := make([]string, 0, len(issues))
	for _, line := range issues {
		cols := strings.Split(line, ",")
		// Row number first, reason in the last of largest+2 columns.
		require.Len(t, cols, 9)
		reasons = append(reasons, cols[len(cols)-1])
	}
	assert.Equal(t, "Mismatched number of fields", reasons[0])
	assert.Equal(t, "Empty item field", reasons[1])
	assert.Equal(t, "Non-integer year field", reasons[2])
	assert.Equal(t, "Non-numeric value field", reasons[3])
	assert.Contains(t, reasons[4], "greater than")
	assert.Contains(t, reasons[5], "smaller than")
	assert.True(t, strings.HasPrefix(issues[0], "3,too,few"))
}

func TestRunValueFixPassesRangeCheck(t *testing.T) {
	e := configuredEntity(t,
		"SSP2_NoMt_NoCC,CAN,PROD,RIC,1000 t,2010,N/A",
	)

	res, err := NewEngine(diagRules(), t.TempDir()).Run(e)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Accepted)
	assert.Zero(t, res.StructuralIssues)
	require.Len(t, res.BadLabels, 1)
	assert.Equal(t, BadLabel{Label: "N/A", Column: ColValue, Fix: "0"}, res.BadLabels[0])
}

func TestRunRangeCheckResolvesCaseBeforeLookup(t *testing.T) {
	// The variable and unit are matched to their canonical spelling before
	// the range lookup, so a differently-cased pair still hits its range.
	e := configuredEntity(t,
		"SSP2_NoMt_NoCC,CAN,prod,RIC,1000 T,2010,-1",
	)

	res, err := NewEngine(diagRules(), t.TempDir()).Run(e)
	require.NoError(t, err)

	assert.Equal(t, 1, res.StructuralIssues)
	assert.Zero(t, res.Accepted)
}

func TestRunLabelClassification(t *testing.T) {
	e := configuredEntity(t,
		"ssp2_nomt_nocc,world,PRODD,RIC,kt,2077,5",
		"SSP2_NoMt_NoCC,WLDD,PROD,RIC,1000 t,2010,5",
	)

	res, err := NewEngine(diagRules(), t.TempDir()).Run(e)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)

	assert.Equal(t, []BadLabel{
		{Label: "ssp2_nomt_nocc", Column: ColScenario, Fix: "SSP2_NoMt_NoCC"},
		{Label: "world", Column: ColRegion, Fix: "WLD"},
	}, res.BadLabels)

	assert.Equal(t, []UnknownLabel{
		{Label: "WLDD", Column: ColRegion, ClosestMatch: "WLD"},
		{Label: "PRODD", Column: ColVariable, ClosestMatch: "PROD"},
		{Label: "kt", Column: ColUnit, ClosestMatch: "1000 t"},
	}, res.UnknownLabels)

	assert.Equal(t, []string{"2077"}, res.UnknownYears)
}

func TestRunDeduplicatesLabelRecords(t *testing.T) {
	e := configuredEntity(t,
		"ssp2_nomt_nocc,CAN,PROD,RIC,1000 t,2010,1",
		"ssp2_nomt_nocc,CAN,PROD,WHT,1000 t,2010,2",
		"ssp2_nomt_nocc,WLD,PROD,RIC,1000 t,2020,3",
	)

	res, err := NewEngine(diagRules(), t.TempDir()).Run(e)
	require.NoError(t, err)

	require.Len(t, res.BadLabels, 1)
	assert.Equal(t, "ssp2_nomt_nocc", res.BadLabels[0].Label)
}

func TestRunRowNumbersIncludeSkippedAndHeaderRows(t *testing.T) {
	e := configuredEntity(t,
		"generated by AIM",
		"second junk line",
		"Scenario,Region,Variable,Item,Unit,Year,Value",
		"SSP2_NoMt_NoCC,CAN,PROD,RIC,1000 t,2010,1",
		"SSP2_NoMt_NoCC,CAN,PROD,RIC,1000 t,2010,1",
		"too,few",
	)
	require.NoError(t, e.SetLinesToSkip(2))
	e.HeaderIncluded = true
	// SetLinesToSkip resets the column assignments.
	e.ScenarioCol, e.RegionCol, e.VariableCol = 1, 2, 3
	e.ItemCol, e.UnitCol, e.YearCol, e.ValueCol = 4, 5, 6, 7

	res, err := NewEngine(diagRules(), t.TempDir()).Run(e)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, res.StructuralIssues)

	duplicates := reportLines(t, res.DuplicatePath)
	require.Len(t, duplicates, 1)
	assert.True(t, strings.HasPrefix(duplicates[0], "5,"), "row numbers count skipped and header lines")

	issues := reportLines(t, res.StructIssuePath)
	require.Len(t, issues, 1)
	assert.True(t, strings.HasPrefix(issues[0], "6,too,few"))
}

func TestRunRejectsColumnPastRowFields(t *testing.T) {
	// Distinct positive assignments pass ValidateConfig, but an assignment
	// beyond the file's row width can only be caught against the file.
	e := configuredEntity(t, "SSP2_NoMt_NoCC,CAN,PROD,RIC,1000 t,2010,1")
	e.ValueCol = 9

	_, err := NewEngine(diagRules(), t.TempDir()).Run(e)
	var confErr submission.ConfigurationError
	require.ErrorAs(t, err, &confErr)
	assert.Contains(t, confErr.Error(), "value column")
}

func TestRunRejectsInvalidConfiguration(t *testing.T) {
	e := configuredEntity(t, "SSP2_NoMt_NoCC,CAN,PROD,RIC,1000 t,2010,1")
	e.ValueCol = 0

	_, err := NewEngine(diagRules(), t.TempDir()).Run(e)
	var confErr submission.ConfigurationError
	require.ErrorAs(t, err, &confErr)
}

// TestRunPartitionProperty feeds a randomized mix of clean, malformed,
// ignored and repeated rows and checks that the four bucket counts always
// sum to the number of data rows.
func TestRunPartitionProperty(t *testing.T) {
	faker := gofakeit.New(42)
	scenarios := []string{"SSP2_NoMt_NoCC", "ssp2_nomt_nocc", "DROPME"}
	regions := []string{"CAN", "WLD", "world", "Mars"}
	items := []string{"RIC", "WHT"}

	lines := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		switch faker.Number(0, 9) {
		case 0:
			lines = append(lines, faker.Word())
		case 1:
			// Repeat an earlier line verbatim when one exists.
			if len(lines) > 0 {
				lines = append(lines, lines[faker.Number(0, len(lines)-1)])
				continue
			}
			fallthrough
		default:
			lines = append(lines, fmt.Sprintf("%s,%s,PROD,%s,1000 t,%d,%.2f",
				faker.RandomString(scenarios),
				faker.RandomString(regions),
				faker.RandomString(items),
				faker.Number(2000, 2100),
				faker.Float64Range(0, 1000)))
		}
	}

	e := configuredEntity(t, lines...)
	e.ScenariosToIgnore = []string{"DROPME"}

	res, err := NewEngine(diagRules(), t.TempDir()).Run(e)
	require.NoError(t, err)

	assert.Equal(t, len(lines), res.DataRows())
	assert.Positive(t, res.Accepted)
	assert.Positive(t, res.StructuralIssues)
}
