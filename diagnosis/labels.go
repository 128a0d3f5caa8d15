package diagnosis

// Column names reported in label records and used to route fixes.
const (
	ColScenario = "Scenario"
	ColRegion   = "Region"
	ColVariable = "Variable"
	ColItem     = "Item"
	ColUnit     = "Unit"
	ColYear     = "Year"
	ColValue    = "Value"
)

// BadLabel records a label that deviates from the data protocol but can
// be corrected automatically. Two records with identical fields are the
// same entity.
type BadLabel struct {
	Label  string
	Column string
	Fix    string
}

// UnknownLabel records a label with no canonical or fix-table match; a
// human must supply a fix or explicitly override it. Fix and Override
// are mutually exclusive.
type UnknownLabel struct {
	Label        string
	Column       string
	ClosestMatch string
	Fix          string
	Override     bool
}

// Result holds the outcome of one diagnosis run.
type Result struct {
	StructuralIssues int
	IgnoredScenario  int
	Duplicates       int
	Accepted         int

	BadLabels     []BadLabel
	UnknownLabels []UnknownLabel

	// Valid-looking years missing from the year table. Informational:
	// they flag rule-table updates, not data defects.
	UnknownYears []string

	// Paths of the row report files written during the run.
	StructIssuePath     string
	IgnoredScenarioPath string
	DuplicatePath       string
	AcceptedPath        string
}

// DataRows returns the number of data rows examined: every row lands in
// exactly one of the four buckets.
func (r *Result) DataRows() int {
	return r.StructuralIssues + r.IgnoredScenario + r.Duplicates + r.Accepted
}
