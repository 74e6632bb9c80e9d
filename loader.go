package textmate

import (
	"encoding/json"
	"io/fs"
	"iter"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"howett.net/plist"

	"github.com/friedelschoen/go-textmate-doc/internal/logging"
)

// Loader indexes grammars by scope and file type and compiles them on first use.
// A scope always compiles to the same *Grammar, so states produced by one
// lookup stay comparable with states produced by another.
type Loader struct {
	filetypes map[string][]*GrammarJSON
	scopes    map[string]*GrammarJSON
	logger    *log.Logger
	tieBreak  TieBreak

	mu       sync.Mutex
	compiled map[*GrammarJSON]*Grammar
}

type LoaderOption func(*Loader)

func WithLogger(logger *log.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithTieBreak sets the tie-break of every grammar compiled by the loader.
func WithTieBreak(tb TieBreak) LoaderOption {
	return func(l *Loader) {
		l.tieBreak = tb
	}
}

func loadFile(pathname string) (*GrammarJSON, error) {
	content, err := os.ReadFile(pathname)
	if err != nil {
		return nil, err
	}
	var encoded GrammarJSON
	if strings.HasSuffix(pathname, ".json") {
		err = json.Unmarshal(content, &encoded)
	} else {
		_, err = plist.Unmarshal(content, &encoded)
	}
	return &encoded, err
}

func newLoader(opts []LoaderOption) *Loader {
	loader := &Loader{
		scopes:    make(map[string]*GrammarJSON),
		filetypes: make(map[string][]*GrammarJSON),
		compiled:  make(map[*GrammarJSON]*Grammar),
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(loader)
	}
	return loader
}

// NewLoader reads every grammar in paths. Unreadable files are skipped.
// The boolean reports whether at least one grammar was found.
func NewLoader(paths iter.Seq[string], opts ...LoaderOption) (*Loader, bool) {
	loader := newLoader(opts)
	for pathname := range paths {
		grm, err := loadFile(pathname)
		if err != nil {
			loader.logger.Debug("unable to load grammar", logging.FieldPath, pathname, logging.FieldError, err)
			continue
		}
		if grm.ScopeName == "" {
			loader.logger.Debug("grammar without scopeName", logging.FieldPath, pathname)
			continue
		}
		loader.Add(grm)
	}
	return loader, len(loader.scopes) > 0
}

// NewLoaderFromDirs loads the grammars in dirs, descending into
// subdirectories when walk is set. Missing directories are skipped.
func NewLoaderFromDirs(dirs []string, walk bool, opts ...LoaderOption) (*Loader, bool) {
	return NewLoader(func(yield func(string) bool) {
		for _, dir := range dirs {
			if !yieldDir(dir, walk, yield) {
				return
			}
		}
	}, opts...)
}

func NewLoaderFromDir(dir string, walk bool, opts ...LoaderOption) (*Loader, bool) {
	return NewLoaderFromDirs([]string{dir}, walk, opts...)
}

func yieldDir(dir string, walk bool, yield func(string) bool) bool {
	if walk {
		ok := true
		filepath.WalkDir(dir, func(pathname string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() {
				if !yield(pathname) {
					ok = false
					return filepath.SkipAll
				}
			}
			return nil
		})
		return ok
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return true
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			if !yield(filepath.Join(dir, entry.Name())) {
				return false
			}
		}
	}
	return true
}

// Add registers a decoded grammar. A later grammar with the same scope replaces an earlier one.
func (l *Loader) Add(grm *GrammarJSON) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.scopes[grm.ScopeName] = grm
	for _, ft := range grm.FileTypes {
		ft = strings.TrimLeft(ft, ".")
		l.filetypes[ft] = append(l.filetypes[ft], grm)
	}
}

func (l *Loader) compile(grm *GrammarJSON) (*Grammar, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if g, ok := l.compiled[grm]; ok {
		return g, nil
	}

	/* includes are resolved lazily, so compiling never calls back into the loader */
	g, err := CompileGrammar(*grm, l)
	if err != nil {
		return nil, err
	}
	l.compiled[grm] = g
	return g, nil
}

func (l *Loader) FromScope(scope string) (*Grammar, error) {
	l.mu.Lock()
	grm, ok := l.scopes[scope]
	l.mu.Unlock()
	if !ok {
		return nil, os.ErrNotExist
	}
	return l.compile(grm)
}

func (l *Loader) FromFileType(ft string, index int) (*Grammar, error) {
	l.mu.Lock()
	grms, ok := l.filetypes[strings.TrimLeft(ft, ".")]
	l.mu.Unlock()
	if !ok || index >= len(grms) {
		return nil, os.ErrNotExist
	}
	return l.compile(grms[index])
}

func (l *Loader) Scopes() iter.Seq[string] {
	return maps.Keys(l.scopes)
}

func (l *Loader) FileTypes() iter.Seq[string] {
	return maps.Keys(l.filetypes)
}

func (l *Loader) FileTypeNames() iter.Seq2[string, []string] {
	return func(yield func(string, []string) bool) {
		for ft, grms := range l.filetypes {
			var names []string
			for _, grm := range grms {
				name := grm.Name
				if name == "" {
					name = grm.ScopeName
				}
				names = append(names, name)
			}
			if !yield(ft, names) {
				return
			}
		}
	}
}
