package registry

import (
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/promptledger/promptledger"
	"github.com/promptledger/promptledger/manifest"

	"golang.org/x/sync/errgroup"
)

// Issue records one definition file or record that failed to load.
type Issue struct {
	Source string // file path of the offending record
	Err    error
}

// Store indexes prompt definitions by id with versions sorted highest first.
// Read-only after Load; safe for concurrent use without locking.
type Store struct {
	defs   map[string][]*promptledger.Definition
	issues []Issue
	logger *slog.Logger
}

// Option configures a Store during load.
type Option func(*Store)

// WithLogger sets the logger used to report skipped records during load.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Load walks dir for .yaml/.yml definition files and builds a Store.
// Files parse concurrently; indexing order is deterministic (lexical path
// order, document order within a file). Records that fail to parse or that
// duplicate an already-indexed (prompt_id, version) pair are skipped and
// reported via Issues. Returns an error only when dir itself is unusable.
func Load(dir string, opts ...Option) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("registry: prompts dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("registry: %s is not a directory", dir)
	}
	return load(os.DirFS(dir), ".", dir, opts)
}

// LoadFS is Load over an fs.FS (e.g. embed.FS), walking from root.
func LoadFS(fsys fs.FS, root string, opts ...Option) (*Store, error) {
	return load(fsys, root, "", opts)
}

type parseResult struct {
	source string
	defs   []*promptledger.Definition
	err    error
}

func load(fsys fs.FS, root, sourcePrefix string, opts []Option) (*Store, error) {
	s := &Store{
		defs:   make(map[string][]*promptledger.Definition),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	var paths []string
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || (!strings.HasSuffix(p, ".yaml") && !strings.HasSuffix(p, ".yml")) {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("registry: walk definitions: %w", err)
	}
	slices.Sort(paths)

	results := make([]parseResult, len(paths))
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range paths {
		g.Go(func() error {
			source := p
			if sourcePrefix != "" {
				source = filepath.Join(sourcePrefix, p)
			}
			defs, err := manifest.ParseFS(fsys, p)
			results[i] = parseResult{source: source, defs: defs, err: err}
			return nil
		})
	}
	_ = g.Wait() // per-file errors land in results

	for _, res := range results {
		if res.err != nil {
			s.addIssue(res.source, res.err)
			continue
		}
		for _, def := range res.defs {
			if s.lookup(def.ID, def.Version) != nil {
				s.addIssue(res.source, fmt.Errorf("%w: duplicate definition (%s, %s)",
					promptledger.ErrMalformedDefinition, def.ID, def.Version))
				continue
			}
			s.defs[def.ID] = append(s.defs[def.ID], def)
		}
	}
	for _, versions := range s.defs {
		slices.SortFunc(versions, func(a, b *promptledger.Definition) int {
			return promptledger.CompareVersions(b.Version, a.Version)
		})
	}
	return s, nil
}

func (s *Store) addIssue(source string, err error) {
	s.issues = append(s.issues, Issue{Source: source, Err: err})
	s.logger.Warn("skipping malformed definition record", "source", source, "error", err)
}

func (s *Store) lookup(id, version string) *promptledger.Definition {
	for _, d := range s.defs[id] {
		if d.Version == version {
			return d
		}
	}
	return nil
}

// Get returns the definition with the exact (id, version) pair.
// Returns ErrUnknownPrompt when no definitions exist for id, and
// ErrUnknownVersion when the id exists but the version does not.
func (s *Store) Get(id, version string) (*promptledger.Definition, error) {
	if _, ok := s.defs[id]; !ok {
		return nil, fmt.Errorf("%w: %q", promptledger.ErrUnknownPrompt, id)
	}
	d := s.lookup(id, version)
	if d == nil {
		return nil, fmt.Errorf("%w: %q version %q", promptledger.ErrUnknownVersion, id, version)
	}
	return promptledger.CloneDefinition(d), nil
}

// Resolve returns the definition for id. An empty requested version selects
// the highest semantic version registered; otherwise it is an exact Get.
func (s *Store) Resolve(id, requested string) (*promptledger.Definition, error) {
	if requested != "" {
		return s.Get(id, requested)
	}
	versions, ok := s.defs[id]
	if !ok || len(versions) == 0 {
		return nil, fmt.Errorf("%w: %q", promptledger.ErrUnknownPrompt, id)
	}
	return promptledger.CloneDefinition(versions[0]), nil
}

// Versions returns the registered version strings for id, highest first.
func (s *Store) Versions(id string) ([]string, error) {
	defs, ok := s.defs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", promptledger.ErrUnknownPrompt, id)
	}
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.Version
	}
	return out, nil
}

// IDs returns all registered prompt ids in lexical order.
func (s *Store) IDs() []string {
	return slices.Sorted(maps.Keys(s.defs))
}

// Len returns the total number of definition records indexed.
func (s *Store) Len() int {
	n := 0
	for _, defs := range s.defs {
		n += len(defs)
	}
	return n
}

// Issues returns the records skipped during load.
func (s *Store) Issues() []Issue {
	return slices.Clone(s.issues)
}
