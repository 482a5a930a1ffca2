// Package depfile reads Make-style dependency files as written by
// `clang -MD` and decides whether an output is stale.
package depfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Rule is one "targets: prerequisites" line.
type Rule struct {
	Targets []string
	Prereqs []string
}

// Parse reads all rules from r. Backslash-newline continues a line, "\ "
// and "\#" escape a space and a hash, and "$$" stands for "$". A colon
// followed by a path separator is part of a path (C:\x), not a rule
// separator.
func Parse(r io.Reader) ([]Rule, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\\\n", " ")

	var rules []Rule
	for n, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed[0] == '#' {
			continue
		}
		rule, err := parseLine(trimmed)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n+1, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func parseLine(line string) (Rule, error) {
	var (
		rule    Rule
		word    strings.Builder
		inWord  bool
		sepSeen bool
	)
	flush := func() {
		if !inWord {
			return
		}
		if sepSeen {
			rule.Prereqs = append(rule.Prereqs, word.String())
		} else {
			rule.Targets = append(rule.Targets, word.String())
		}
		word.Reset()
		inWord = false
	}

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == ' ' || c == '\t':
			flush()
		case c == '\\' && i+1 < len(line) && (line[i+1] == ' ' || line[i+1] == '#'):
			word.WriteByte(line[i+1])
			inWord = true
			i++
		case c == '$' && i+1 < len(line) && line[i+1] == '$':
			word.WriteByte('$')
			inWord = true
			i++
		case c == ':' && !sepSeen && (i+1 == len(line) || line[i+1] == ' ' || line[i+1] == '\t'):
			flush()
			sepSeen = true
		default:
			word.WriteByte(c)
			inWord = true
		}
	}
	flush()

	if !sepSeen {
		return Rule{}, errors.New("missing ':' separator")
	}
	if len(rule.Targets) == 0 {
		return Rule{}, errors.New("rule has no target")
	}
	return rule, nil
}

// Prerequisites returns the prerequisites recorded for output. If no rule
// names output the first rule is used, since the compiler always writes the
// object's own rule first.
func Prerequisites(rules []Rule, output string) []string {
	want := filepath.Clean(output)
	for _, r := range rules {
		for _, t := range r.Targets {
			if filepath.Clean(t) == want {
				return r.Prereqs
			}
		}
	}
	if len(rules) > 0 {
		return rules[0].Prereqs
	}
	return nil
}

// IsUpToDate reports whether output is current with respect to the
// prerequisites listed in depfile. The depfile's modification time is the
// baseline: a missing prerequisite, or one modified after the depfile, makes
// the output stale. A missing depfile or output is stale too. A depfile that
// cannot be parsed is treated as stale, as the next compile rewrites it.
func IsUpToDate(depfile, output string) (bool, error) {
	depInfo, err := os.Stat(depfile)
	if err != nil {
		return false, ignoreNotExist(err)
	}
	if _, err := os.Stat(output); err != nil {
		return false, ignoreNotExist(err)
	}

	f, err := os.Open(depfile)
	if err != nil {
		return false, err
	}
	defer f.Close()
	rules, err := Parse(f)
	if err != nil {
		return false, nil
	}

	baseline := depInfo.ModTime()
	for _, prereq := range Prerequisites(rules, output) {
		info, err := os.Stat(prereq)
		if err != nil {
			return false, ignoreNotExist(err)
		}
		if info.ModTime().After(baseline) {
			return false, nil
		}
	}
	return true, nil
}

func ignoreNotExist(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
