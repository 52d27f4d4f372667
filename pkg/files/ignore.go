package files

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ignoreRule is one line of a .gitignore file
type ignoreRule struct {
	base     string // directory holding the .gitignore
	pattern  string // normalized, slash separated
	negation bool   // starts with !
	dirOnly  bool   // ends with /
	anchored bool   // contains a slash other than a trailing one
}

// ignoreMatcher evaluates gitignore rules collected from a directory and
// its ancestors. Later rules override earlier ones, so rules from deeper
// directories win.
type ignoreMatcher struct {
	rules []ignoreRule
}

// newIgnoreMatcher loads .gitignore files from the filesystem root down to
// dir
func newIgnoreMatcher(dir string) *ignoreMatcher {
	var chain []string
	for current := dir; ; {
		chain = append(chain, current)
		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	m := &ignoreMatcher{}
	for i := len(chain) - 1; i >= 0; i-- {
		m = m.withDir(chain[i])
	}
	return m
}

// withDir returns a matcher extended with dir/.gitignore. The receiver is
// left untouched so sibling directories do not see each other's rules.
func (m *ignoreMatcher) withDir(dir string) *ignoreMatcher {
	rules := readIgnoreFile(filepath.Join(dir, ".gitignore"), dir)
	if len(rules) == 0 {
		return m
	}

	merged := make([]ignoreRule, 0, len(m.rules)+len(rules))
	merged = append(merged, m.rules...)
	merged = append(merged, rules...)
	return &ignoreMatcher{rules: merged}
}

func readIgnoreFile(file, base string) []ignoreRule {
	f, err := os.Open(file)
	if err != nil {
		return nil
	}
	defer f.Close()

	var rules []ignoreRule
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if rule, ok := parseIgnoreLine(scanner.Text(), base); ok {
			rules = append(rules, rule)
		}
	}
	return rules
}

func parseIgnoreLine(line, base string) (ignoreRule, bool) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return ignoreRule{}, false
	}

	rule := ignoreRule{base: base}
	if strings.HasPrefix(line, "!") {
		rule.negation = true
		line = line[1:]
	}
	if strings.HasPrefix(line, `\`) {
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		rule.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		rule.anchored = true
		line = strings.TrimLeft(line, "/")
	}
	if strings.Contains(line, "/") {
		rule.anchored = true
	}
	if line == "" {
		return ignoreRule{}, false
	}

	rule.pattern = line
	return rule, true
}

// ignored reports whether the absolute path is excluded
func (m *ignoreMatcher) ignored(abs string, isDir bool) bool {
	ignored := false
	for _, rule := range m.rules {
		if rule.dirOnly && !isDir {
			continue
		}
		rel, err := filepath.Rel(rule.base, abs)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
			continue
		}
		if rule.matches(filepath.ToSlash(rel)) {
			ignored = !rule.negation
		}
	}
	return ignored
}

func (r ignoreRule) matches(rel string) bool {
	if r.anchored {
		return matchSegments(strings.Split(r.pattern, "/"), strings.Split(rel, "/"))
	}
	matched, _ := path.Match(r.pattern, path.Base(rel))
	return matched
}

// matchSegments matches path segments against pattern segments, where a
// "**" segment spans zero or more path segments
func matchSegments(pattern, parts []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(parts); i++ {
				if matchSegments(rest, parts[i:]) {
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		if ok, _ := path.Match(pattern[0], parts[0]); !ok {
			return false
		}
		pattern, parts = pattern[1:], parts[1:]
	}
	return len(parts) == 0
}
