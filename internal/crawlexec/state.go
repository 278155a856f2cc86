package crawlexec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/designxdevelop/dxd-webflow-scraper/internal/domain"
)

// stateFileName is the resume record's fixed name within the crawl's
// output directory (spec §3, §6).
const stateFileName = ".crawl-state.json"

// stateStore guards concurrent writers to the on-disk resume record and
// keeps an in-memory mirror so workers don't re-read the file on every
// page outcome.
type stateStore struct {
	path string

	mu    sync.Mutex
	state domain.CrawlState
}

func newStateStore(outputDir string) *stateStore {
	return &stateStore{path: filepath.Join(outputDir, stateFileName)}
}

// StateFilePath returns the resume state file's path within outputDir, for
// callers that need to inspect it before the Executor runs (spec §4.5 step
// 4 "Inspect .crawl-state.json to decide whether to pass resume=true").
func StateFilePath(outputDir string) string {
	return filepath.Join(outputDir, stateFileName)
}

// ParseState decodes a resume state file's contents, returning ok=false on
// malformed JSON.
func ParseState(data []byte) (domain.CrawlState, bool) {
	var state domain.CrawlState
	if err := json.Unmarshal(data, &state); err != nil {
		return domain.CrawlState{}, false
	}
	return state, true
}

// load reads an existing state file, if any, returning whether one was
// found and parsed (spec §4.4 step 1's `resume` branch).
func (s *stateStore) load() (domain.CrawlState, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return domain.CrawlState{}, false
	}
	var loaded domain.CrawlState
	if err := json.Unmarshal(data, &loaded); err != nil {
		return domain.CrawlState{}, false
	}

	s.mu.Lock()
	s.state = loaded
	s.mu.Unlock()
	return loaded, true
}

// recordSuccess appends url to the succeeded list and persists atomically.
func (s *stateStore) recordSuccess(url string) error {
	s.mu.Lock()
	s.state.Succeeded = append(s.state.Succeeded, url)
	snapshot := s.state
	s.mu.Unlock()
	return s.persist(snapshot)
}

// recordFailure appends url to the failed list and persists atomically.
func (s *stateStore) recordFailure(url string) error {
	s.mu.Lock()
	s.state.Failed = append(s.state.Failed, url)
	snapshot := s.state
	s.mu.Unlock()
	return s.persist(snapshot)
}

// persist writes state as temp-file-then-rename so a crash never leaves a
// half-written state file (spec §6 "written atomically").
func (s *stateStore) persist(state domain.CrawlState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal crawl state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write crawl state temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename crawl state temp file: %w", err)
	}
	return nil
}
