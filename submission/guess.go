package submission

import (
	"strconv"
	"strings"

	"datavalidator/rules"
)

// Quote characters stripped from cell values before they are matched
// against rule tables.
const cellQuotes = "'\"`"

// GuessDelimiter sniffs the sample for the most consistently used
// candidate delimiter. It reports false and leaves the entity untouched
// when no candidate splits the sample consistently.
func (e *Entity) GuessDelimiter(candidates []string) bool {
	lines := nonEmpty(e.topSample)
	if len(lines) == 0 {
		return false
	}

	best := ""
	bestFreq := 0
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		// Frequency of the modal per-line field count; a real delimiter
		// produces the same count on nearly every line.
		counts := make(map[int]int)
		for _, line := range lines {
			counts[strings.Count(line, candidate)]++
		}
		mode, freq := 0, -1
		for n, f := range counts {
			if f > freq || (f == freq && n > mode) {
				mode, freq = n, f
			}
		}
		if mode < 1 || freq*10 < len(lines)*9 {
			continue
		}
		if freq > bestFreq {
			best, bestFreq = candidate, freq
		}
	}
	if best == "" {
		return false
	}
	e.SetDelimiter(best)
	return true
}

// GuessHeader compares the shape of the first sample row against the
// rest: columns that are numeric or of fixed width below the first row
// vote for a header when the first row breaks the pattern. It reports
// false when the sample gives no evidence either way.
func (e *Entity) GuessHeader() bool {
	rows := e.ParsedSample()
	if len(rows) < 2 {
		return false
	}

	votes, voted := 0, false
	for col := 0; col < len(rows[0]); col++ {
		allNumeric := true
		width := len(rows[1][col])
		sameWidth := true
		for _, row := range rows[1:] {
			if !isFloat(row[col]) {
				allNumeric = false
			}
			if len(row[col]) != width {
				sameWidth = false
			}
		}
		switch {
		case allNumeric:
			voted = true
			if isFloat(rows[0][col]) {
				votes--
			} else {
				votes++
			}
		case sameWidth:
			voted = true
			if len(rows[0][col]) == width {
				votes--
			} else {
				votes++
			}
		}
	}
	if !voted {
		return false
	}
	e.HeaderIncluded = votes > 0
	return true
}

// GuessLinesToSkip counts the leading sample rows whose field count
// differs from the sample's most frequent one. The guess fails, resetting
// the skip count to zero, when it would discard over 90% of the sample.
func (e *Entity) GuessLinesToSkip() bool {
	if len(e.topSample) == 0 {
		return true
	}
	rows := make([][]string, 0, len(e.topSample))
	for _, line := range e.topSample {
		rows = append(rows, e.splitLine(line))
	}
	clean := mostFrequentColumnCount(rows)

	count := 0
	for _, row := range rows {
		if len(row) == clean {
			break
		}
		count++
	}
	if count*10 > len(rows)*9 {
		e.SetLinesToSkip(0)
		return false
	}
	e.SetLinesToSkip(count)
	return true
}

// GuessColumns walks the parsed sample column by column and assigns each
// column the role suggested by the first cell that satisfies a role
// heuristic. A cell naming a known model sets the model name instead.
// It reports whether any assignment or model-name guess was made.
func (e *Entity) GuessColumns(rs *rules.Set) bool {
	rows := e.ParsedSample()
	if len(rows) == 0 || len(rows[0]) == 0 {
		return false
	}

	guessed := false
	for col := 0; col < len(rows[0]); col++ {
		for _, row := range rows {
			cell := strings.Trim(row[col], cellQuotes)
			if e.assignFromCell(rs, cell, col) {
				guessed = true
				break
			}
		}
	}
	return guessed
}

// assignFromCell applies the role heuristics in their fixed precedence
// order. The first satisfied rule wins.
func (e *Entity) assignFromCell(rs *rules.Set, cell string, col int) bool {
	switch {
	case rs.HasModel(cell):
		e.ModelName = cell
	case cell == "Scenario" || rs.HasScenario(cell):
		e.ScenarioCol = col + 1
	case cell == "Region" || rs.HasRegion(cell):
		e.RegionCol = col + 1
	case cell == "Variable" || rs.HasVariable(cell):
		e.VariableCol = col + 1
	case cell == "Item" || rs.HasItem(cell):
		e.ItemCol = col + 1
	case cell == "Unit" || rs.HasUnit(cell):
		e.UnitCol = col + 1
	default:
		if year, err := strconv.Atoi(cell); err == nil && year > 1000 && year < 9999 {
			e.YearCol = col + 1
			return true
		}
		if isFloat(cell) {
			e.ValueCol = col + 1
			return true
		}
		return false
	}
	return true
}

func isFloat(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

func nonEmpty(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
