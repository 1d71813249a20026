// Package pattern applies search/replace rules to identifiers and labels.
package pattern

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Rule is a search/replace pair. A rule is active only when both
// Search and Replace are non-empty.
type Rule struct {
	Search  string
	Replace string
}

// Active reports whether the rule should be applied.
func (r Rule) Active() bool {
	return r.Search != "" && r.Replace != ""
}

// String renders the rule the way it is shown in diagnostics.
func (r Rule) String() string {
	return fmt.Sprintf("sub(%q, %q)", r.Search, r.Replace)
}

// ConfigError reports a rule or option that cannot be used.
// It is always raised before any entity is processed.
type ConfigError struct {
	Field   string // flag or field the value came from, e.g. "search"
	Value   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	var sb strings.Builder
	if e.Field != "" {
		sb.WriteString(e.Field)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Value != "" {
		fmt.Fprintf(&sb, " (%q)", e.Value)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Compiled is a ready-to-apply rule. A nil *Compiled is an inactive rule.
type Compiled struct {
	rule     Rule
	re       *regexp.Regexp
	template string
}

// Compile validates rule and prepares it for use. An inactive rule
// compiles to nil without error.
func Compile(rule Rule) (*Compiled, error) {
	return CompileField("", rule)
}

// CompileField is Compile with the originating flag name attached to errors.
func CompileField(field string, rule Rule) (*Compiled, error) {
	if !rule.Active() {
		return nil, nil
	}

	re, err := regexp.Compile(rule.Search)
	if err != nil {
		return nil, &ConfigError{Field: field, Value: rule.Search, Message: "invalid search pattern", Err: err}
	}

	template, err := translateReplacement(rule.Replace, re)
	if err != nil {
		return nil, &ConfigError{Field: field, Value: rule.Replace, Message: "invalid replacement", Err: err}
	}

	return &Compiled{rule: rule, re: re, template: template}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// package-level rules.
func MustCompile(rule Rule) *Compiled {
	c, err := Compile(rule)
	if err != nil {
		panic(err)
	}
	return c
}

// Rule returns the source rule. The zero Rule is returned for nil.
func (c *Compiled) Rule() Rule {
	if c == nil {
		return Rule{}
	}
	return c.rule
}

// Active reports whether c will substitute anything.
func (c *Compiled) Active() bool {
	return c != nil
}

// Apply substitutes every non-overlapping match of the search pattern in
// input. An empty match directly after a previous match is not
// substituted. Substitution always runs for an active rule; changed is
// decided by comparing the result with input afterwards.
func (c *Compiled) Apply(input string) (output string, changed bool) {
	if c == nil {
		return input, false
	}
	output = c.re.ReplaceAllString(input, c.template)
	return output, output != input
}

// Apply is the free-function form of (*Compiled).Apply.
func Apply(input string, rule *Compiled) (string, bool) {
	return rule.Apply(input)
}

// translateReplacement converts a backslash-style replacement
// (\1, \g<1>, \g<name>, \\, \n, \t) into a regexp expansion template.
// \0 refers to the whole match. A literal '$' is escaped so it survives
// expansion.
func translateReplacement(repl string, re *regexp.Regexp) (string, error) {
	groups := re.NumSubexp()
	names := make(map[string]bool)
	for _, name := range re.SubexpNames() {
		if name != "" {
			names[name] = true
		}
	}

	groupRef := func(n int) (string, error) {
		if n > groups {
			return "", fmt.Errorf("invalid group reference %d", n)
		}
		return "${" + strconv.Itoa(n) + "}", nil
	}

	var sb strings.Builder
	for i := 0; i < len(repl); i++ {
		ch := repl[i]
		if ch == '$' {
			sb.WriteString("$$")
			continue
		}
		if ch != '\\' {
			sb.WriteByte(ch)
			continue
		}

		if i+1 >= len(repl) {
			return "", fmt.Errorf("bad escape (end of pattern) at position %d", i)
		}
		i++
		next := repl[i]

		switch {
		case next >= '0' && next <= '9':
			// Up to two digits, like \12.
			j := i + 1
			if j < len(repl) && repl[j] >= '0' && repl[j] <= '9' {
				j++
			}
			n, _ := strconv.Atoi(repl[i:j])
			ref, err := groupRef(n)
			if err != nil {
				return "", err
			}
			sb.WriteString(ref)
			i = j - 1
		case next == 'g':
			if i+1 >= len(repl) || repl[i+1] != '<' {
				return "", fmt.Errorf("missing '<' after \\g at position %d", i-1)
			}
			end := strings.IndexByte(repl[i+2:], '>')
			if end < 0 {
				return "", fmt.Errorf("missing '>' in group reference at position %d", i-1)
			}
			ref := repl[i+2 : i+2+end]
			if ref == "" {
				return "", fmt.Errorf("missing group name at position %d", i-1)
			}
			if n, err := strconv.Atoi(ref); err == nil {
				out, err := groupRef(n)
				if err != nil {
					return "", err
				}
				sb.WriteString(out)
			} else {
				if !names[ref] {
					return "", fmt.Errorf("unknown group name %q", ref)
				}
				sb.WriteString("${" + ref + "}")
			}
			i += 2 + end
		case next == '\\':
			sb.WriteByte('\\')
		case next == 'n':
			sb.WriteByte('\n')
		case next == 't':
			sb.WriteByte('\t')
		case next == 'r':
			sb.WriteByte('\r')
		case (next >= 'a' && next <= 'z') || (next >= 'A' && next <= 'Z'):
			return "", fmt.Errorf("bad escape \\%c at position %d", next, i-1)
		default:
			// Unknown punctuation escapes are kept verbatim.
			sb.WriteByte('\\')
			sb.WriteByte(next)
		}
	}
	return sb.String(), nil
}
