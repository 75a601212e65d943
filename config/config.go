package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.starlark.net/starlark"
	"golang.org/x/exp/slices"

	"github.com/ZacxDev/mirrortex/fs"
	"github.com/ZacxDev/mirrortex/scaffold"
)

const DefaultFile = "mirrortex.star"

// KnownCompilers are the LaTeX engines that understand the flags we pass.
var KnownCompilers = []string{"xelatex", "pdflatex", "lualatex", "latexmk"}

type Config struct {
	// Root is the source tree; Output the mirrored artifact tree.
	Root        string
	Output      string
	Tool        string
	SourceExt   string
	ArtifactExt string
	Include     string
	Exclude     []string
	Timeout     time.Duration
	TailLines   int
	MaxErrors   int

	Layout scaffold.Layout
}

// Default returns the configuration used when no config file exists.
func Default(base string) Config {
	return Config{
		Root:        base,
		Output:      filepath.Join(base, "output"),
		Tool:        "xelatex",
		SourceExt:   ".tex",
		ArtifactExt: ".pdf",
		Include:     "**/*.tex",
		TailLines:   10,
		MaxErrors:   5,
		Layout:      scaffold.DefaultLayout(),
	}
}

// IsKnownCompiler reports whether tool (a name or a path) is a known engine.
func IsKnownCompiler(tool string) bool {
	return slices.Contains(KnownCompilers, filepath.Base(tool))
}

func (c Config) Validate() error {
	switch {
	case c.Tool == "":
		return errors.New("tool must not be empty")
	case c.Root == "":
		return errors.New("root must not be empty")
	case c.Output == "":
		return errors.New("output must not be empty")
	case c.Timeout < 0:
		return errors.Errorf("timeout must not be negative, got %s", c.Timeout)
	case c.TailLines < 0 || c.MaxErrors < 0:
		return errors.New("tail_lines and max_errors must not be negative")
	}
	return nil
}

// moduleCache stores Starlark modules pulled in with load().
type moduleCache struct {
	fs      fs.FileSystem
	modules map[string]starlark.StringDict
	mutex   sync.RWMutex
}

func (mc *moduleCache) load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	filename := module
	if !filepath.IsAbs(filename) {
		filename = filepath.Join(filepath.Dir(thread.Name), filename)
	}

	mc.mutex.RLock()
	cached, ok := mc.modules[filename]
	mc.mutex.RUnlock()
	if ok {
		return cached, nil
	}

	src, err := mc.fs.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read module %s", module)
	}

	child := &starlark.Thread{Name: filename, Load: mc.load}
	globals, err := starlark.ExecFile(child, filename, src, nil)
	if err != nil {
		return nil, err
	}

	mc.mutex.Lock()
	mc.modules[filename] = globals
	mc.mutex.Unlock()

	return globals, nil
}

// Load reads a Starlark config file. A missing file is not an error: the
// defaults rooted at the working directory are returned instead. Relative
// paths in the file resolve against the file's directory.
func Load(fsys fs.FileSystem, filename string) (Config, bool, error) {
	abs, err := filepath.Abs(filename)
	if err != nil {
		return Config{}, false, errors.Wrap(err, "failed to resolve config path")
	}

	src, err := fsys.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			wd, err := os.Getwd()
			if err != nil {
				return Config{}, false, errors.Wrap(err, "failed to retrieve the current working directory")
			}
			return Default(wd), false, nil
		}
		return Config{}, false, errors.Wrapf(err, "failed to read %s", filename)
	}

	cache := &moduleCache{fs: fsys, modules: make(map[string]starlark.StringDict)}
	thread := &starlark.Thread{Name: abs, Load: cache.load}

	globals, err := starlark.ExecFile(thread, abs, src, nil)
	if err != nil {
		return Config{}, false, errors.Wrap(err, "failed to execute Starlark script")
	}

	base := filepath.Dir(abs)
	cfg := Default(base)

	if value, ok := globals["config"]; ok {
		dict, ok := value.(*starlark.Dict)
		if !ok {
			return Config{}, false, errors.New("global 'config' object is not a dictionary")
		}
		if err := parseBuild(&cfg, dict); err != nil {
			return Config{}, false, errors.Wrap(err, "failed to parse config")
		}
	}

	if value, ok := globals["layout"]; ok {
		dict, ok := value.(*starlark.Dict)
		if !ok {
			return Config{}, false, errors.New("global 'layout' object is not a dictionary")
		}
		if err := parseLayout(&cfg.Layout, dict); err != nil {
			return Config{}, false, errors.Wrap(err, "failed to parse layout")
		}
	}

	cfg.Root = resolve(base, cfg.Root)
	if cfg.Output == "" {
		cfg.Output = filepath.Join(cfg.Root, "output")
	}
	cfg.Output = resolve(base, cfg.Output)

	return cfg, true, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

func parseBuild(cfg *Config, dict *starlark.Dict) error {
	outputSet, includeSet := false, false

	for _, field := range []struct {
		key string
		dst *string
	}{
		{"root", &cfg.Root},
		{"output", &cfg.Output},
		{"tool", &cfg.Tool},
		{"source_ext", &cfg.SourceExt},
		{"artifact_ext", &cfg.ArtifactExt},
		{"include", &cfg.Include},
	} {
		value, ok, err := getStringValue(dict, field.key)
		if err != nil {
			return err
		}
		if ok {
			*field.dst = value
			switch field.key {
			case "output":
				outputSet = true
			case "include":
				includeSet = true
			}
		}
	}

	if !includeSet {
		cfg.Include = "**/*" + cfg.SourceExt
	}

	// An explicit root without an explicit output keeps output inside root.
	if !outputSet {
		cfg.Output = ""
	}

	if exclude, ok, err := getStringList(dict, "exclude"); err != nil {
		return err
	} else if ok {
		cfg.Exclude = exclude
	}

	if seconds, ok, err := getIntValue(dict, "timeout_seconds"); err != nil {
		return err
	} else if ok {
		cfg.Timeout = time.Duration(seconds) * time.Second
	}

	if n, ok, err := getIntValue(dict, "tail_lines"); err != nil {
		return err
	} else if ok {
		cfg.TailLines = n
	}

	if n, ok, err := getIntValue(dict, "max_errors"); err != nil {
		return err
	} else if ok {
		cfg.MaxErrors = n
	}

	return nil
}

func parseLayout(layout *scaffold.Layout, dict *starlark.Dict) error {
	if root, ok, err := getStringValue(dict, "curriculum_root"); err != nil {
		return err
	} else if ok {
		layout.CurriculumRoot = root
	}

	if root, ok, err := getStringValue(dict, "extra_root"); err != nil {
		return err
	} else if ok {
		layout.ExtraRoot = root
	}

	for _, field := range []struct {
		key string
		dst *[]string
	}{
		{"grades", &layout.Grades},
		{"subjects", &layout.Subjects},
		{"extras", &layout.Extras},
	} {
		list, ok, err := getStringList(dict, field.key)
		if err != nil {
			return err
		}
		if ok {
			*field.dst = list
		}
	}

	return nil
}

func getStringValue(dict *starlark.Dict, key string) (string, bool, error) {
	value, found, err := dict.Get(starlark.String(key))
	if err != nil || !found {
		return "", false, err
	}

	strValue, ok := value.(starlark.String)
	if !ok {
		return "", false, fmt.Errorf("expected string for key %s, got %s", key, value.Type())
	}

	return strValue.GoString(), true, nil
}

func getIntValue(dict *starlark.Dict, key string) (int, bool, error) {
	value, found, err := dict.Get(starlark.String(key))
	if err != nil || !found {
		return 0, false, err
	}

	intValue, ok := value.(starlark.Int)
	if !ok {
		return 0, false, fmt.Errorf("expected int for key %s, got %s", key, value.Type())
	}

	n, ok := intValue.Int64()
	if !ok {
		return 0, false, fmt.Errorf("value for key %s is out of range", key)
	}

	return int(n), true, nil
}

func getStringList(dict *starlark.Dict, key string) ([]string, bool, error) {
	value, found, err := dict.Get(starlark.String(key))
	if err != nil || !found {
		return nil, false, err
	}

	list, ok := value.(*starlark.List)
	if !ok {
		return nil, false, fmt.Errorf("expected list for key %s, got %s", key, value.Type())
	}

	result := make([]string, 0, list.Len())
	iter := list.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		str, ok := x.(starlark.String)
		if !ok {
			return nil, false, fmt.Errorf("expected string in list for key %s, got %s", key, x.Type())
		}
		result = append(result, str.GoString())
	}

	return result, true, nil
}
