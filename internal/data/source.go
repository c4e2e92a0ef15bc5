// Package data feeds rows from CSV and JSON payload files into sessions.
package data

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"volley/internal/core"
)

// Order defines how rows are picked for each new session.
type Order string

const (
	// OrderSequential walks the rows in file order, wrapping around.
	OrderSequential Order = "sequential"
	// OrderRandom picks a random row for every session.
	OrderRandom Order = "random"
)

// Spec describes one payload file as written in a script.
type Spec struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
	// Fields names the CSV columns. When empty the first row is the header.
	Fields []string `yaml:"fields,omitempty"`
	// SkipHeader drops the first CSV row when Fields is set.
	SkipHeader bool   `yaml:"skipHeader,omitempty"`
	Delimiter  string `yaml:"delimiter,omitempty"`
	Order      Order  `yaml:"order,omitempty"`
}

// Validate reports missing or unsupported settings.
func (s Spec) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if s.Path == "" {
		errs = append(errs, errors.New("path is required"))
	}
	switch s.Order {
	case "", OrderSequential, OrderRandom:
	default:
		errs = append(errs, fmt.Errorf("unknown order %q (use sequential or random)", s.Order))
	}
	if len([]rune(s.Delimiter)) > 1 {
		errs = append(errs, fmt.Errorf("delimiter %q must be a single character", s.Delimiter))
	}
	return errors.Join(errs...)
}

// Source hands out rows of one payload file. It is safe for concurrent use.
type Source struct {
	name    string
	rows    []map[string]any
	order   Order
	counter atomic.Uint64
	mu      sync.Mutex
	rng     *rand.Rand
}

// NewSource creates a source from already loaded rows.
func NewSource(name string, rows []map[string]any, order Order) *Source {
	if order == "" {
		order = OrderSequential
	}
	return &Source{
		name:  name,
		rows:  rows,
		order: order,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

func (s *Source) Name() string { return s.name }

func (s *Source) Len() int { return len(s.rows) }

// Next returns a copy of the next row, or nil for an empty source.
func (s *Source) Next() map[string]any {
	if len(s.rows) == 0 {
		return nil
	}

	var idx int
	switch s.order {
	case OrderRandom:
		s.mu.Lock()
		idx = s.rng.IntN(len(s.rows))
		s.mu.Unlock()
	default:
		n := s.counter.Add(1) - 1
		idx = int(n % uint64(len(s.rows)))
	}

	return maps.Clone(s.rows[idx])
}

// Load reads the payload file named by spec. Relative paths resolve against
// baseDir, normally the directory of the script.
func Load(spec Spec, baseDir string) (*Source, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("payload %q: %w", spec.Name, err)
	}

	path := spec.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	var rows []map[string]any
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rows, err = loadCSV(path, spec)
	case ".json":
		rows, err = loadJSON(path)
	default:
		return nil, fmt.Errorf("payload %q: unsupported file format %q (use .csv or .json)", spec.Name, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("payload %q: loading %s: %w", spec.Name, path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("payload %q: %s has no rows", spec.Name, path)
	}

	return NewSource(spec.Name, rows, spec.Order), nil
}

func loadCSV(path string, spec Spec) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if spec.Delimiter != "" {
		reader.Comma = []rune(spec.Delimiter)[0]
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	headers := spec.Fields
	if len(headers) == 0 {
		if len(records) < 2 {
			return nil, errors.New("CSV must have a header row and at least one data row")
		}
		headers, records = records[0], records[1:]
	} else if spec.SkipHeader && len(records) > 0 {
		records = records[1:]
	}

	rows := make([]map[string]any, 0, len(records))
	for _, record := range records {
		row := make(map[string]any, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = record[i]
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func loadJSON(path string) ([]map[string]any, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("JSON must be an array of objects: %w", err)
	}
	return rows, nil
}

// Sources is the set of payloads seeded into every session.
type Sources []*Source

// LoadAll loads every spec, reporting all failures at once.
func LoadAll(specs []Spec, baseDir string) (Sources, error) {
	var (
		out  Sources
		errs []error
	)
	for _, spec := range specs {
		src, err := Load(spec, baseDir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, src)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Prepare binds one row from every source into a fresh session. Each field
// becomes a session variable, and the whole row is bound under the source
// name so ${users.email} works alongside ${email}.
func (s Sources) Prepare(sess *core.Session) {
	for _, src := range s {
		row := src.Next()
		if row == nil {
			continue
		}
		for field, value := range row {
			sess.Vars.Set(field, value)
		}
		sess.Vars.Set(src.Name(), row)
	}
}
