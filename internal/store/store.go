package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// D1 moving-average window, in samples. Fixed by the file format rather than
// configurable: consumers interpret MAD1 as "short-term trend".
const MAD1Window = 15

const (
	legacyHeader = "Time,Kudos"
	fullHeader   = "Time,Kudos,MA,D1,MAD1"
)

// Sample is one raw observation: Unix timestamp (fractional seconds) and the
// kudos balance at that moment.
type Sample struct {
	Time  float64
	Kudos int64
}

// Row is a Sample plus the derived columns. MA is always defined (the moving
// average window is left-truncated); D1 and MAD1 are undefined on the first
// row, where no previous sample exists.
type Row struct {
	Sample
	MA      float64
	D1      float64
	MAD1    float64
	HasDiff bool
}

// Store is the append-only CSV time series. One writer at a time, enforced
// externally by the instance lock; Store itself does no locking.
type Store struct {
	path     string
	maWindow int
}

func New(path string, maWindow int) *Store {
	if maWindow < 1 {
		maWindow = 1
	}
	return &Store{path: path, maWindow: maWindow}
}

func (s *Store) Path() string { return s.path }

// EnsureExists creates the store with a header-only file when absent.
// Idempotent; an existing store is never touched.
func (s *Store) EnsureExists() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.WriteFile(s.path, []byte(legacyHeader+"\n"), 0o644)
}

// Append durably adds one sample row at the end of the store. Prior rows are
// never rewritten here; derived columns for the new row appear on the next
// RecomputeDerived.
func (s *Store) Append(sample Sample) error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("append to store: %w", err)
	}
	_, werr := fmt.Fprintf(f, "%.2f,%d\n", sample.Time, sample.Kudos)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return fmt.Errorf("append to store: %w", werr)
	}
	return nil
}

// Samples reads the raw observations in order, ignoring any derived columns.
func (s *Store) Samples() ([]Sample, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var out []Sample
	first := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read store: %w", err)
		}
		if first {
			first = false
			if len(rec) > 0 && strings.EqualFold(rec[0], "Time") {
				continue
			}
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("read store: short row %v", rec)
		}
		ts, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("read store: bad timestamp %q: %w", rec[0], err)
		}
		kudos, err := strconv.ParseInt(rec[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("read store: bad kudos %q: %w", rec[1], err)
		}
		out = append(out, Sample{Time: ts, Kudos: kudos})
	}
	return out, nil
}

// RecomputeDerived re-reads the whole sample sequence, computes all derived
// columns from scratch, and atomically replaces the store. Full recomputation
// avoids persisted aggregator state and floating-point drift; a reader always
// sees either the previous or the new file, never a truncated one. Returns
// the computed rows so callers can hand them straight to consumers.
func (s *Store) RecomputeDerived() ([]Row, error) {
	samples, err := s.Samples()
	if err != nil {
		return nil, err
	}
	rows := Derive(samples, s.maWindow)

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rewrite store: %w", err)
	}
	werr := writeRows(f, rows)
	if err := f.Sync(); werr == nil {
		werr = err
	}
	if err := f.Close(); werr == nil {
		werr = err
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("rewrite store: %w", werr)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("rewrite store: %w", err)
	}
	return rows, nil
}

// Rows reads the store including stored derived columns, for consumers that
// only observe the series (chart rendering, status reporting).
func (s *Store) Rows() ([]Row, error) {
	samples, err := s.Samples()
	if err != nil {
		return nil, err
	}
	return Derive(samples, s.maWindow), nil
}

// Derive computes the derived columns for an ordered sample sequence:
//   - MA: mean kudos over the trailing maWindow samples, left-truncated when
//     fewer samples exist.
//   - D1: kudos[i] - kudos[i-1], undefined at i = 0.
//   - MAD1: mean of defined D1 values over the trailing MAD1Window samples,
//     left-truncated, undefined at i = 0.
//
// Pure function of the input; Derive(Derive-output samples) is stable, which
// makes RecomputeDerived idempotent.
func Derive(samples []Sample, maWindow int) []Row {
	if maWindow < 1 {
		maWindow = 1
	}
	rows := make([]Row, len(samples))
	var maSum float64
	var d1Sum float64
	d1Count := 0
	for i, smp := range samples {
		maSum += float64(smp.Kudos)
		if i >= maWindow {
			maSum -= float64(samples[i-maWindow].Kudos)
		}
		n := i + 1
		if n > maWindow {
			n = maWindow
		}
		rows[i] = Row{Sample: smp, MA: maSum / float64(n)}

		if i > 0 {
			d1 := float64(smp.Kudos - samples[i-1].Kudos)
			rows[i].D1 = d1
			rows[i].HasDiff = true
			d1Sum += d1
			d1Count++
			// Window of MAD1Window samples ending at i; the sample leaving
			// the window only carries a D1 value past row 0.
			if drop := i - MAD1Window; drop >= 1 {
				d1Sum -= rows[drop].D1
				d1Count--
			}
			rows[i].MAD1 = d1Sum / float64(d1Count)
		}
	}
	return rows
}

func writeRows(w io.Writer, rows []Row) error {
	if _, err := fmt.Fprintln(w, fullHeader); err != nil {
		return err
	}
	for _, r := range rows {
		d1, mad1 := "", ""
		if r.HasDiff {
			d1 = formatFloat(r.D1)
			mad1 = formatFloat(r.MAD1)
		}
		if _, err := fmt.Fprintf(w, "%.2f,%d,%s,%s,%s\n",
			r.Time, r.Kudos, formatFloat(r.MA), d1, mad1); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
