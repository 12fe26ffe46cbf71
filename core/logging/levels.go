package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel parses a level name such as "warn", or its first letter such as "W".
// "V" is accepted as debug and "N" as fatal.
func ParseLevel(s string) (lvl zapcore.Level, e error) {
	if len(s) > 1 {
		if e = lvl.UnmarshalText([]byte(s)); e == nil {
			return lvl, nil
		}
	}
	switch strings.ToUpper(s) {
	case "V", "D":
		return zapcore.DebugLevel, nil
	case "I":
		return zapcore.InfoLevel, nil
	case "W":
		return zapcore.WarnLevel, nil
	case "E":
		return zapcore.ErrorLevel, nil
	case "F", "N":
		return zapcore.DPanicLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

type levelTable struct {
	mu   sync.Mutex
	def  zapcore.Level
	pkgs map[string]zap.AtomicLevel
	set  map[string]bool // packages with explicit level
}

var levels = levelTable{
	pkgs: map[string]zap.AtomicLevel{},
	set:  map[string]bool{},
}

func init() {
	if e := Configure(os.Getenv(EnvVar)); e != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", EnvVar, e)
	}
}

func (t *levelTable) get(pkg string) zap.AtomicLevel {
	t.mu.Lock()
	defer t.mu.Unlock()
	al, ok := t.pkgs[pkg]
	if !ok {
		al = zap.NewAtomicLevelAt(t.def)
		t.pkgs[pkg] = al
	}
	return al
}

// SetLevel changes the level of one package, or the default level if pkg is empty.
// Changing the default affects every package without an explicit level.
func SetLevel(pkg string, lvl zapcore.Level) {
	t := &levels
	t.mu.Lock()
	defer t.mu.Unlock()
	if pkg != "" {
		t.set[pkg] = true
		if al, ok := t.pkgs[pkg]; ok {
			al.SetLevel(lvl)
		} else {
			t.pkgs[pkg] = zap.NewAtomicLevelAt(lvl)
		}
		return
	}

	t.def = lvl
	for p, al := range t.pkgs {
		if !t.set[p] {
			al.SetLevel(lvl)
		}
	}
}

// Levels returns current level of every known package.
func Levels() map[string]zapcore.Level {
	t := &levels
	t.mu.Lock()
	defer t.mu.Unlock()
	m := make(map[string]zapcore.Level, len(t.pkgs))
	for pkg, al := range t.pkgs {
		m[pkg] = al.Level()
	}
	return m
}

// Configure applies a comma-separated level list.
// Each item is either LEVEL for the default level, or PKG=LEVEL for one package:
//
//	W,channel=D,pnic=info
//
// Valid items are applied even if some other item is invalid.
func Configure(list string) (e error) {
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		pkg, lvlText, found := strings.Cut(item, "=")
		if !found {
			pkg, lvlText = "", item
		}
		lvl, err := ParseLevel(lvlText)
		if err != nil {
			e = multierr.Append(e, err)
			continue
		}
		SetLevel(pkg, lvl)
	}
	return e
}
