package pipeline

import "strconv"

// Preview tables for the configuration surface: three rows of the parsed
// input sample and the projected output arrangement. The engine never
// renders; these are plain string tables for the caller to display.

const previewRows = 3

// InputPreview returns a header row plus the first sample rows. With no
// configured header row, columns are titled "Column N".
func (s *Service) InputPreview() [][]string {
	sample := s.Entity.ParsedSample()
	if len(sample) == 0 {
		return [][]string{{""}, {""}, {""}}
	}

	columns := len(sample[0])
	table := make([][]string, 0, previewRows)
	if s.Entity.HeaderIncluded {
		for _, row := range sample {
			table = append(table, append([]string(nil), row...))
			if len(table) == previewRows {
				break
			}
		}
	} else {
		header := make([]string, columns)
		for i := range header {
			header[i] = "Column " + strconv.Itoa(i+1)
		}
		table = append(table, header)
		for _, row := range sample {
			table = append(table, append([]string(nil), row...))
			if len(table) == previewRows {
				break
			}
		}
	}
	for len(table) < previewRows {
		table = append(table, make([]string, columns))
	}
	return table
}

// OutputPreview projects the current column assignments onto the input
// preview: one column per canonical output field, blank when unassigned.
func (s *Service) OutputPreview() [][]string {
	input := s.InputPreview()
	ent := s.Entity

	column := func(title string, assigned int) []string {
		col := []string{title}
		for row := 1; row < previewRows; row++ {
			if assigned == 0 || assigned > len(input[row]) {
				col = append(col, "")
			} else {
				col = append(col, input[row][assigned-1])
			}
		}
		return col
	}

	columns := [][]string{
		{"Model", ent.ModelName, ent.ModelName},
		column("Scenario", ent.ScenarioCol),
		column("Region", ent.RegionCol),
		column("Variable", ent.VariableCol),
		column("Item", ent.ItemCol),
		column("Unit", ent.UnitCol),
		column("Year", ent.YearCol),
		column("Value", ent.ValueCol),
	}

	table := make([][]string, previewRows)
	for row := range table {
		table[row] = make([]string, len(columns))
		for col := range columns {
			table[row][col] = columns[col][row]
		}
	}
	return table
}
