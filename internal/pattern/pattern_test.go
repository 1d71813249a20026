package pattern

import (
	"errors"
	"strings"
	"testing"
)

func TestRuleActive(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		want bool
	}{
		{name: "both set", rule: Rule{Search: "old", Replace: "new"}, want: true},
		{name: "empty search", rule: Rule{Replace: "new"}, want: false},
		{name: "empty replace", rule: Rule{Search: "old"}, want: false},
		{name: "zero", rule: Rule{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Active(); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInactiveRuleLeavesInputUnchanged(t *testing.T) {
	inputs := []string{"", "light.kitchen", "Lamp", "a.b.c"}
	rules := []Rule{{}, {Search: "x"}, {Replace: "y"}}

	for _, rule := range rules {
		compiled, err := Compile(rule)
		if err != nil {
			t.Fatalf("Compile(%v): unexpected error: %v", rule, err)
		}
		if compiled != nil {
			t.Fatalf("Compile(%v): expected nil for inactive rule", rule)
		}
		for _, in := range inputs {
			out, changed := Apply(in, compiled)
			if out != in || changed {
				t.Errorf("Apply(%q, inactive) = (%q, %v), want (%q, false)", in, out, changed, in)
			}
		}
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name        string
		rule        Rule
		input       string
		want        string
		wantChanged bool
	}{
		{
			name:        "simple substitution",
			rule:        Rule{Search: "old", Replace: "new"},
			input:       "light.old_lamp",
			want:        "light.new_lamp",
			wantChanged: true,
		},
		{
			name:        "all non-overlapping matches",
			rule:        Rule{Search: "a", Replace: "b"},
			input:       "banana",
			want:        "bbnbnb",
			wantChanged: true,
		},
		{
			name:        "empty match after a match is skipped",
			rule:        Rule{Search: `(.*)`, Replace: `Kitchen \1`},
			input:       "Lamp",
			want:        "Kitchen Lamp",
			wantChanged: true,
		},
		{
			name:        "backslash zero is the whole match",
			rule:        Rule{Search: `lamp`, Replace: `\0_2`},
			input:       "light.lamp",
			want:        "light.lamp_2",
			wantChanged: true,
		},
		{
			name:        "leftmost-first",
			rule:        Rule{Search: "aa", Replace: "X"},
			input:       "aaa",
			want:        "Xa",
			wantChanged: true,
		},
		{
			name:        "whole label capture",
			rule:        Rule{Search: `^(.*)$`, Replace: `Kitchen \1`},
			input:       "Lamp",
			want:        "Kitchen Lamp",
			wantChanged: true,
		},
		{
			name:        "named group",
			rule:        Rule{Search: `^(?P<domain>\w+)\.(?P<obj>\w+)$`, Replace: `\g<domain>.main_\g<obj>`},
			input:       "light.lamp",
			want:        "light.main_lamp",
			wantChanged: true,
		},
		{
			name:        "numbered g-group followed by digits",
			rule:        Rule{Search: `(lamp)`, Replace: `\g<1>2`},
			input:       "light.lamp",
			want:        "light.lamp2",
			wantChanged: true,
		},
		{
			name:        "group followed by letters",
			rule:        Rule{Search: `(lamp)`, Replace: `\1_x`},
			input:       "light.lamp",
			want:        "light.lamp_x",
			wantChanged: true,
		},
		{
			name:        "dollar is literal",
			rule:        Rule{Search: `lamp`, Replace: `$1`},
			input:       "light.lamp",
			want:        "light.$1",
			wantChanged: true,
		},
		{
			name:        "escaped backslash",
			rule:        Rule{Search: `_`, Replace: `\\`},
			input:       "a_b",
			want:        `a\b`,
			wantChanged: true,
		},
		{
			name:        "no match",
			rule:        Rule{Search: "zzz", Replace: "y"},
			input:       "light.lamp",
			want:        "light.lamp",
			wantChanged: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled, err := Compile(tt.rule)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got, changed := compiled.Apply(tt.input)
			if got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", changed, tt.wantChanged)
			}
		})
	}
}

// A rule that matches but rewrites to the same text still runs and
// reports unchanged.
func TestApplyNoOpRuleStillSubstitutes(t *testing.T) {
	compiled := MustCompile(Rule{Search: `(lamp)`, Replace: `\1`})

	if !compiled.re.MatchString("light.lamp") {
		t.Fatal("expected the rule to match the input")
	}
	got, changed := compiled.Apply("light.lamp")
	if got != "light.lamp" {
		t.Errorf("got %q, want unchanged input", got)
	}
	if changed {
		t.Error("expected changed=false for identity substitution")
	}

	// Same rule on a non-identity match proves the substitution ran.
	swap := MustCompile(Rule{Search: `(\w+)\.(\w+)`, Replace: `\1.\2`})
	got, changed = swap.Apply("light.lamp")
	if got != "light.lamp" || changed {
		t.Errorf("got (%q, %v), want (light.lamp, false)", got, changed)
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		message string
	}{
		{name: "bad pattern", rule: Rule{Search: "(", Replace: "x"}, message: "invalid search pattern"},
		{name: "lookahead unsupported", rule: Rule{Search: "a(?=b)", Replace: "x"}, message: "invalid search pattern"},
		{name: "missing group", rule: Rule{Search: "(a)", Replace: `\2`}, message: "invalid replacement"},
		{name: "unknown name", rule: Rule{Search: "(?P<a>x)", Replace: `\g<b>`}, message: "invalid replacement"},
		{name: "unterminated g", rule: Rule{Search: "(a)", Replace: `\g<1`}, message: "invalid replacement"},
		{name: "bad letter escape", rule: Rule{Search: "a", Replace: `\q`}, message: "invalid replacement"},
		{name: "trailing backslash", rule: Rule{Search: "a", Replace: `x\`}, message: "invalid replacement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileField("search", tt.rule)
			if err == nil {
				t.Fatal("expected error")
			}
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected *ConfigError, got %T", err)
			}
			if cfgErr.Field != "search" {
				t.Errorf("Field = %q, want %q", cfgErr.Field, "search")
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("error %q should contain %q", err.Error(), tt.message)
			}
		})
	}
}

func TestCompiledRule(t *testing.T) {
	var nilRule *Compiled
	if nilRule.Active() {
		t.Error("nil rule should be inactive")
	}
	if nilRule.Rule() != (Rule{}) {
		t.Error("nil rule should report zero Rule")
	}

	rule := Rule{Search: "a", Replace: "b"}
	if got := MustCompile(rule).Rule(); got != rule {
		t.Errorf("Rule() = %v, want %v", got, rule)
	}
}
