package submission

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datavalidator/rules"
)

func guessRules() *rules.Set {
	return rules.NewSet(rules.Tables{
		Models:    []string{"AIM", "MAGNET"},
		Scenarios: []string{"SSP2_NoMt_NoCC"},
		Regions:   []string{"CAN", "WLD"},
		Variables: []string{"CONS", "PROD"},
		Items:     []string{"RIC", "WHT"},
		Units:     []string{"1000 t", "1000 t dm"},
		Years:     []string{"2010", "2020"},
	})
}

func TestGuessDelimiter(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
		ok    bool
	}{
		{
			"comma",
			[]string{"a,b,c", "d,e,f", "g,h,i"},
			",", true,
		},
		{
			"semicolon",
			[]string{"a;b;c", "d;e;f"},
			";", true,
		},
		{
			"tab beats incidental comma",
			[]string{"a\tb,x\tc", "d\te\tf", "g\th\ti"},
			"\t", true,
		},
		{
			"no candidate present",
			[]string{"one column only", "still one"},
			"", false,
		},
		{
			"inconsistent counts",
			[]string{"a,b", "c,d,e", "f", "g,h,i,j", "k,l", "m,n,o", "p", "q,r,s,t", "u,v", "w,x,y"},
			"", false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(writeSubmission(t, tt.lines...))
			require.NoError(t, err)

			ok := e.GuessDelimiter(DefaultDelimiters)
			assert.Equal(t, tt.ok, ok)
			// A failed guess leaves the configuration untouched.
			assert.Equal(t, tt.want, e.Delimiter())
		})
	}
}

func TestGuessHeader(t *testing.T) {
	tests := []struct {
		name   string
		lines  []string
		ok     bool
		header bool
	}{
		{
			"text header over numeric columns",
			[]string{"Year,Value", "2010,1.5", "2020,2.5"},
			true, true,
		},
		{
			"numeric first row",
			[]string{"2010,1.5", "2020,2.5", "2030,3.5"},
			true, false,
		},
		{
			"header breaks fixed width",
			[]string{"Region,Item", "CAN,RIC", "WLD,WHT"},
			true, true,
		},
		{
			"single row gives no evidence",
			[]string{"2010,1.5"},
			false, false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(writeSubmission(t, tt.lines...))
			require.NoError(t, err)
			e.SetDelimiter(",")

			ok := e.GuessHeader()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.header, e.HeaderIncluded)
		})
	}
}

func TestGuessLinesToSkip(t *testing.T) {
	e, err := New(writeSubmission(t,
		"submission from AIM",
		"generated 2026-01-10",
		"a,b,c",
		"d,e,f",
		"g,h,i",
	))
	require.NoError(t, err)
	e.SetDelimiter(",")

	require.True(t, e.GuessLinesToSkip())
	assert.Equal(t, 2, e.LinesToSkip())
	assert.Len(t, e.ParsedSample(), 3)
}

func TestGuessLinesToSkipNothingToSkip(t *testing.T) {
	e, err := New(writeSubmission(t, "a,b,c", "d,e,f"))
	require.NoError(t, err)
	e.SetDelimiter(",")

	require.True(t, e.GuessLinesToSkip())
	assert.Equal(t, 0, e.LinesToSkip())
}

func TestGuessLinesToSkipRefusesToDiscardSample(t *testing.T) {
	// Nineteen lines of strictly growing field counts followed by a single
	// one-field line: the modal count (one field) appears only at the very
	// end, so the guess would skip over 90% of the sample.
	lines := make([]string, 0, 20)
	for i := 1; i <= 19; i++ {
		lines = append(lines, strings.Repeat(",", i)+"x")
	}
	lines = append(lines, "single")

	e, err := New(writeSubmission(t, lines...))
	require.NoError(t, err)
	e.SetDelimiter(",")

	assert.False(t, e.GuessLinesToSkip())
	assert.Equal(t, 0, e.LinesToSkip())
}

func TestGuessColumns(t *testing.T) {
	e, err := New(writeSubmission(t,
		"AIM,SSP2_NoMt_NoCC,CAN,PROD,RIC,1000 t,2010,12.5",
		"AIM,SSP2_NoMt_NoCC,WLD,CONS,WHT,1000 t dm,2020,7",
	))
	require.NoError(t, err)
	e.SetDelimiter(",")

	require.True(t, e.GuessColumns(guessRules()))

	assert.Equal(t, "AIM", e.ModelName)
	assert.Equal(t, 2, e.ScenarioCol)
	assert.Equal(t, 3, e.RegionCol)
	assert.Equal(t, 4, e.VariableCol)
	assert.Equal(t, 5, e.ItemCol)
	assert.Equal(t, 6, e.UnitCol)
	assert.Equal(t, 7, e.YearCol)
	assert.Equal(t, 8, e.ValueCol)
	require.NoError(t, e.ValidateConfig())
}

func TestGuessColumnsFromHeaderTitles(t *testing.T) {
	e, err := New(writeSubmission(t,
		"Scenario,Region,Variable,Item,Unit,Year,Value",
		"s1,r1,v1,i1,u1,2010,1.5",
	))
	require.NoError(t, err)
	e.SetDelimiter(",")

	require.True(t, e.GuessColumns(guessRules()))
	assert.Equal(t, 1, e.ScenarioCol)
	assert.Equal(t, 5, e.UnitCol)
	assert.Equal(t, 6, e.YearCol, "year column found from the data row, not the title")
	assert.Equal(t, 7, e.ValueCol)
}

func TestGuessColumnsStripsQuotes(t *testing.T) {
	e, err := New(writeSubmission(t, `'CAN',"PROD"`))
	require.NoError(t, err)
	e.SetDelimiter(",")

	require.True(t, e.GuessColumns(guessRules()))
	assert.Equal(t, 1, e.RegionCol)
	assert.Equal(t, 2, e.VariableCol)
}

func TestGuessColumnsYearBeforeValue(t *testing.T) {
	// A four-digit integer in the plausible range reads as a year, any
	// other number as a value.
	tests := []struct {
		cell      string
		wantYear  int
		wantValue int
	}{
		{"2045", 1, 0},
		{"12.5", 0, 1},
		{"999", 0, 1},
		{"10000", 0, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("cell %s", tt.cell), func(t *testing.T) {
			e, err := New(writeSubmission(t, tt.cell))
			require.NoError(t, err)
			e.SetDelimiter(",")

			require.True(t, e.GuessColumns(guessRules()))
			assert.Equal(t, tt.wantYear, e.YearCol)
			assert.Equal(t, tt.wantValue, e.ValueCol)
		})
	}
}

func TestGuessColumnsNoEvidence(t *testing.T) {
	e, err := New(writeSubmission(t, "alpha,beta", "gamma,delta"))
	require.NoError(t, err)
	e.SetDelimiter(",")

	assert.False(t, e.GuessColumns(guessRules()))
	assert.Zero(t, e.ScenarioCol)
}
