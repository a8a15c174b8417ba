package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fenwick-quant/soakctl/pkg/errs"
	"github.com/fenwick-quant/soakctl/pkg/jsonio"
	"github.com/fenwick-quant/soakctl/pkg/log"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

const (
	iterSummaryPattern = "ITER_SUMMARY_%d.json"
	tuningReportFile   = "TUNING_REPORT.json"
	snapshotFile       = "POST_SOAK_SNAPSHOT.json"
	failuresFile       = "FAILURES.md"
)

// Store is the single writer for every artifact file under dir except
// runtime_overrides.json, which pkg/tuning owns. Its methods are safe for
// concurrent use, but the engine's single-writer goroutine is expected to
// be the only caller of the write methods.
type Store struct {
	mu     sync.Mutex
	dir    string
	logger zerolog.Logger
}

// New constructs a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.WriteFailure("create artifact tree", err)
	}
	return &Store{dir: dir, logger: log.WithComponent("artifacts")}, nil
}

func (s *Store) iterSummaryPath(iteration int) string {
	return filepath.Join(s.dir, fmt.Sprintf(iterSummaryPattern, iteration))
}

// WriteIterationSummary writes summary to ITER_SUMMARY_<N>.json. The file
// is write-once: a second call for the same iteration returns an
// InvariantViolation rather than overwriting an already-published record.
func (s *Store) WriteIterationSummary(summary types.IterationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.iterSummaryPath(summary.Iteration)
	if _, err := os.Stat(path); err == nil {
		return errs.InvariantViolation(fmt.Sprintf("iteration summary %d already written", summary.Iteration), nil)
	}
	if err := jsonio.WriteAtomic(path, summary); err != nil {
		return errs.WriteFailure("write iteration summary", err)
	}
	s.logger.Debug().Int("iteration", summary.Iteration).Msg("iteration summary written")
	return nil
}

// ReadIterationSummary loads one previously written ITER_SUMMARY_<N>.json.
func (s *Store) ReadIterationSummary(iteration int) (types.IterationSummary, error) {
	var summary types.IterationSummary
	b, err := os.ReadFile(s.iterSummaryPath(iteration))
	if err != nil {
		return summary, errs.TransientIO("read iteration summary", err)
	}
	if err := json.Unmarshal(b, &summary); err != nil {
		return summary, errs.InvariantViolation("decode iteration summary", err)
	}
	return summary, nil
}

// ListIterationSummaries returns every ITER_SUMMARY_<N>.json under the
// store's directory, ordered by iteration index ascending.
func (s *Store) ListIterationSummaries() ([]types.IterationSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.TransientIO("list artifact tree", err)
	}

	var iterations []int
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "ITER_SUMMARY_") {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(e.Name(), iterSummaryPattern, &n); err == nil {
			iterations = append(iterations, n)
		}
	}
	sort.Ints(iterations)

	out := make([]types.IterationSummary, 0, len(iterations))
	for _, n := range iterations {
		summary, err := s.ReadIterationSummary(n)
		if err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

// AppendTuningReport rewrites TUNING_REPORT.json as the whole array with
// summary appended, preserving strict iteration-index order.
func (s *Store) AppendTuningReport(summary types.IterationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := s.readTuningReportLocked()
	if err != nil {
		return err
	}
	report = append(report, summary)

	path := filepath.Join(s.dir, tuningReportFile)
	if err := jsonio.WriteAtomic(path, report); err != nil {
		return errs.WriteFailure("write tuning report", err)
	}
	return nil
}

// ReadTuningReport returns the current cumulative TUNING_REPORT.json array.
func (s *Store) ReadTuningReport() ([]types.IterationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readTuningReportLocked()
}

func (s *Store) readTuningReportLocked() ([]types.IterationSummary, error) {
	path := filepath.Join(s.dir, tuningReportFile)
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.TransientIO("read tuning report", err)
	}
	var report []types.IterationSummary
	if err := json.Unmarshal(b, &report); err != nil {
		return nil, errs.InvariantViolation("decode tuning report", err)
	}
	return report, nil
}

// WriteSnapshot writes the KPI Gate's once-per-run POST_SOAK_SNAPSHOT.json.
func (s *Store) WriteSnapshot(snapshot types.PostSoakSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := filepath.Join(s.dir, snapshotFile)
	if err := jsonio.WriteAtomic(path, snapshot); err != nil {
		return errs.WriteFailure("write post-soak snapshot", err)
	}
	return nil
}

// ReadSnapshot loads a previously written POST_SOAK_SNAPSHOT.json.
func (s *Store) ReadSnapshot() (types.PostSoakSnapshot, error) {
	var snapshot types.PostSoakSnapshot
	path := filepath.Join(s.dir, snapshotFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return snapshot, errs.TransientIO("read post-soak snapshot", err)
	}
	if err := json.Unmarshal(b, &snapshot); err != nil {
		return snapshot, errs.InvariantViolation("decode post-soak snapshot", err)
	}
	return snapshot, nil
}

// AppendFailure appends one line to FAILURES.md, creating the file with a
// header on first use. It is best-effort: a failure writing the failure
// log is logged but never escalated into an iteration failure itself.
func (s *Store) AppendFailure(iteration int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, failuresFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Error().Err(err).Msg("open failures log")
		return
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		fmt.Fprintln(f, "# Soak Run Failures")
		fmt.Fprintln(f)
	}
	fmt.Fprintf(f, "- iteration %d: %s\n", iteration, reason)
}
