// Package submission models an uploaded delimited data file: its format
// configuration, column-role assignments, and a bounded in-memory sample
// used for format inference. The sample is captured once at creation and
// re-sliced in memory when the skip count changes; the file itself is only
// re-read by the streaming diagnosis pass.
package submission

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// sampleSize bounds how many leading lines are kept in memory for
// format inference.
const sampleSize = 1000

// DefaultDelimiters are the delimiter candidates offered to GuessDelimiter.
var DefaultDelimiters = []string{",", ";", "\t"}

// ConfigurationError reports an invalid submission configuration, such as
// a duplicate column assignment. It aborts the calling action only.
type ConfigurationError string

func (e ConfigurationError) Error() string { return string(e) }

// Entity is a submission being configured for diagnosis.
type Entity struct {
	FilePath          string
	ModelName         string
	HeaderIncluded    bool
	ScenariosToIgnore []string

	// Column assignments, 1-based; 0 means unassigned.
	ScenarioCol int
	RegionCol   int
	VariableCol int
	ItemCol     int
	UnitCol     int
	YearCol     int
	ValueCol    int

	delimiter   string
	linesToSkip int

	fileLineCount int
	topSample     []string
	nonSkipped    []string
	parsedSample  [][]string
}

// New captures the submission file's leading sample and line count.
// Files that are not valid UTF-8 are decoded as Windows-1251.
func New(path string) (*Entity, error) {
	e := &Entity{FilePath: path}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open submission file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(decodedReader(f))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		e.fileLineCount++
		if e.fileLineCount <= sampleSize {
			e.topSample = append(e.topSample, scanner.Text())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read submission file: %w", err)
	}
	e.nonSkipped = e.topSample
	return e, nil
}

// Open returns a reader over the submission file with the same decoding
// applied at creation time. The caller owns the returned closer.
func (e *Entity) Open() (io.ReadCloser, error) {
	f, err := os.Open(e.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open submission file: %w", err)
	}
	return &decodedFile{Reader: decodedReader(f), file: f}, nil
}

type decodedFile struct {
	io.Reader
	file *os.File
}

func (d *decodedFile) Close() error { return d.file.Close() }

// decodedReader sniffs the leading bytes and falls back to Windows-1251
// when they are not valid UTF-8.
func decodedReader(f *os.File) io.Reader {
	br := bufio.NewReaderSize(f, 64*1024)
	peeked, _ := br.Peek(2048)
	// A multi-byte rune may be cut at the peek boundary; ignore up to
	// three trailing bytes before judging validity.
	trimmed := peeked
	for i := 0; i < 3 && len(trimmed) > 0 && !utf8.Valid(trimmed); i++ {
		trimmed = trimmed[:len(trimmed)-1]
	}
	if utf8.Valid(trimmed) {
		return br
	}
	return transform.NewReader(br, charmap.Windows1251.NewDecoder())
}

// LineCount returns the total number of lines in the submission file,
// counted when the sample was captured.
func (e *Entity) LineCount() int { return e.fileLineCount }

// Delimiter returns the configured field delimiter.
func (e *Entity) Delimiter() string { return e.delimiter }

// SetDelimiter changes the field delimiter. Column-role assignments and
// the parsed sample derive from it and are reset.
func (e *Entity) SetDelimiter(delimiter string) {
	e.delimiter = delimiter
	e.resetColumns()
	e.parsedSample = nil
}

// LinesToSkip returns the number of leading lines excluded from parsing.
func (e *Entity) LinesToSkip() int { return e.linesToSkip }

// SetLinesToSkip changes the skip count and re-slices the in-memory
// sample. Column-role assignments and the parsed sample are reset.
func (e *Entity) SetLinesToSkip(n int) error {
	if n < 0 {
		return ConfigurationError("number of lines to skip cannot be negative")
	}
	e.linesToSkip = n
	e.resetColumns()
	e.parsedSample = nil
	if n >= len(e.topSample) {
		e.nonSkipped = nil
		return nil
	}
	e.nonSkipped = e.topSample[n:]
	return nil
}

// ParsedSample splits the non-skipped sample on the current delimiter and
// prunes rows whose field count differs from the sample's most frequent
// one. The result is cached until the delimiter or skip count changes.
func (e *Entity) ParsedSample() [][]string {
	if e.parsedSample != nil {
		return e.parsedSample
	}
	rows := make([][]string, 0, len(e.nonSkipped))
	for _, line := range e.nonSkipped {
		rows = append(rows, e.splitLine(line))
	}
	if len(rows) == 0 {
		e.parsedSample = rows
		return rows
	}
	clean := mostFrequentColumnCount(rows)
	pruned := rows[:0]
	for _, row := range rows {
		if len(row) == clean {
			pruned = append(pruned, row)
		}
	}
	e.parsedSample = pruned
	return pruned
}

// splitLine splits a raw line on the configured delimiter. An empty
// delimiter yields a single-field row.
func (e *Entity) splitLine(line string) []string {
	if e.delimiter == "" {
		return []string{line}
	}
	return strings.Split(line, e.delimiter)
}

// ValidateConfig checks that the submission is ready for diagnosis.
func (e *Entity) ValidateConfig() error {
	switch {
	case e.ModelName == "":
		return ConfigurationError("model name is empty")
	case e.delimiter == "":
		return ConfigurationError("delimiter is empty")
	case e.linesToSkip < 0:
		return ConfigurationError("number of lines to skip cannot be negative")
	}
	cols := map[string]int{
		"scenario": e.ScenarioCol,
		"region":   e.RegionCol,
		"variable": e.VariableCol,
		"item":     e.ItemCol,
		"unit":     e.UnitCol,
		"year":     e.YearCol,
		"value":    e.ValueCol,
	}
	for _, name := range []string{"scenario", "region", "variable", "item", "unit", "year", "value"} {
		if cols[name] <= 0 {
			return ConfigurationError(name + " column is unassigned")
		}
	}
	seen := make(map[int]struct{}, len(cols))
	for _, col := range cols {
		if _, dup := seen[col]; dup {
			return ConfigurationError("duplicate column assignments")
		}
		seen[col] = struct{}{}
	}
	return nil
}

func (e *Entity) resetColumns() {
	e.ScenarioCol = 0
	e.RegionCol = 0
	e.VariableCol = 0
	e.ItemCol = 0
	e.UnitCol = 0
	e.YearCol = 0
	e.ValueCol = 0
}

// mostFrequentColumnCount returns the modal field count over rows,
// preferring the smaller count on ties.
func mostFrequentColumnCount(rows [][]string) int {
	counts := make(map[int]int)
	for _, row := range rows {
		counts[len(row)]++
	}
	best, bestFreq := 0, -1
	for n, freq := range counts {
		if freq > bestFreq || (freq == bestFreq && n < best) {
			best, bestFreq = n, freq
		}
	}
	return best
}
