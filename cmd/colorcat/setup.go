package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-enry/go-enry/v2"

	textmate "github.com/friedelschoen/go-textmate-doc"
	"github.com/friedelschoen/go-textmate-doc/document"
	"github.com/friedelschoen/go-textmate-doc/internal/config"
	"github.com/friedelschoen/go-textmate-doc/internal/logging"
)

var errNoGrammar = errors.New("no grammar")

func (o *options) config() (*config.Config, error) {
	pathname := o.configPath
	if pathname == "" {
		pathname = config.DefaultPath()
		if _, err := os.Stat(pathname); pathname == "" || err != nil {
			return o.apply(config.Default()), nil
		}
	}
	cfg, err := config.Load(pathname)
	if err != nil {
		return nil, err
	}
	return o.apply(cfg), nil
}

// apply lets flags override the configuration.
func (o *options) apply(cfg *config.Config) *config.Config {
	logging.SetLevel(cfg.LogLevel)
	if o.debug {
		logging.SetLevel("debug")
	}
	if o.theme != "" {
		cfg.Theme = o.theme
	}
	cfg.Verify = cfg.Verify || o.verify
	return cfg
}

func loadGrammars(cfg *config.Config) (*textmate.Loader, error) {
	tb, err := textmate.ParseTieBreak(cfg.TieBreak)
	if err != nil {
		return nil, err
	}
	loader, ok := textmate.NewLoaderFromDirs(cfg.Grammars, cfg.Walk,
		textmate.WithLogger(logging.Default()),
		textmate.WithTieBreak(tb))
	if !ok {
		return nil, fmt.Errorf("%w found in %s", errNoGrammar, strings.Join(cfg.Grammars, ", "))
	}
	return loader, nil
}

func readSource(in io.Reader, args []string) (string, []byte, error) {
	if len(args) == 0 {
		content, err := io.ReadAll(in)
		return "", content, err
	}
	content, err := os.ReadFile(args[0])
	if err != nil {
		return "", nil, fmt.Errorf("failed to load file `%s`: %w", args[0], err)
	}
	return args[0], content, nil
}

// selectGrammar picks the grammar by explicit file type, by the extension
// of name, or by the language go-enry detects for name and content.
func selectGrammar(loader *textmate.Loader, syntax, name string, content []byte) (*textmate.Grammar, error) {
	if syntax != "" {
		g, err := loader.FromFileType(syntax, 0)
		if err != nil {
			return nil, fmt.Errorf("%w for `%s`: %w", errNoGrammar, syntax, err)
		}
		return g, nil
	}
	if ext := filepath.Ext(name); ext != "" {
		if g, err := loader.FromFileType(ext, 0); err == nil {
			return g, nil
		}
	}
	lang := enry.GetLanguage(filepath.Base(name), content)
	if lang == "" {
		return nil, fmt.Errorf("%w: unable to detect the language of `%s`", errNoGrammar, name)
	}
	for _, ext := range enry.GetLanguageExtensions(lang) {
		if g, err := loader.FromFileType(ext, 0); err == nil {
			return g, nil
		}
	}
	if g, err := loader.FromScope("source." + strings.ToLower(lang)); err == nil {
		return g, nil
	}
	return nil, fmt.Errorf("%w for language %s", errNoGrammar, lang)
}

// parseEdit parses `offset:removed:text`. text may be a quoted Go string.
func parseEdit(s string) (offset, removed int, text string, err error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return 0, 0, "", fmt.Errorf("invalid edit `%s`: expected offset:removed:text", s)
	}
	if offset, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, "", fmt.Errorf("invalid edit offset `%s`: %w", parts[0], err)
	}
	if removed, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, "", fmt.Errorf("invalid edit length `%s`: %w", parts[1], err)
	}
	text = parts[2]
	if strings.HasPrefix(text, `"`) {
		if text, err = strconv.Unquote(text); err != nil {
			return 0, 0, "", fmt.Errorf("invalid edit text %s: %w", parts[2], err)
		}
	}
	return offset, removed, text, nil
}

// openDocument loads the configuration, grammar and source and applies the
// edits of the command line.
func (o *options) openDocument(in io.Reader, args []string) (*document.Document, *config.Config, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, nil, err
	}
	loader, err := loadGrammars(cfg)
	if err != nil {
		return nil, nil, err
	}
	name, content, err := readSource(in, args)
	if err != nil {
		return nil, nil, err
	}
	grammar, err := selectGrammar(loader, o.syntax, name, content)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.Default()
	doc := document.New(string(content), grammar,
		document.WithLogger(logger),
		document.WithVerify(cfg.Verify),
		document.WithRescanHandler(func(reason error) {
			logger.Warn("document was rebuilt", logging.FieldPath, name, logging.FieldError, reason)
		}))

	for _, e := range o.edits {
		offset, removed, text, err := parseEdit(e)
		if err != nil {
			return nil, nil, err
		}
		res, err := doc.Replace(offset, removed, text)
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("edit",
			logging.FieldOffset, offset,
			logging.FieldAffected, res.Affected,
			logging.FieldRetokenized, res.Retokenized,
			logging.FieldEvicted, len(res.Evicted),
			logging.FieldLines, doc.LineCount())
	}
	return doc, cfg, nil
}
