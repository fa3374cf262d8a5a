package normalize

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"voicecheck/internal/ports"
)

const DefaultMaxPasses = 30

// ErrUnstable is returned when the rules keep rewriting the text after
// MaxPasses passes.
var ErrUnstable = errors.New("normalization rules did not converge")

// Config selects the rules applied on top of the built-in transcript rules.
// RulesFile is optional; a missing file is treated as empty.
type Config struct {
	RulesFile    string
	Rules        []string
	MaxPasses    int
	SkipDefaults bool
}

// Normalizer rewrites transcripts with deterministic substitutions until
// the text stops changing.
type Normalizer struct {
	rules     []rule
	maxPasses int
}

var _ ports.Normalizer = (*Normalizer)(nil)

func New(cfg Config) (*Normalizer, error) {
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = DefaultMaxPasses
	}

	var rules []rule
	if !cfg.SkipDefaults {
		rules = append(rules, builtinRules...)
	}

	inline, err := parseLines(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("invalid inline rule: %w", err)
	}
	rules = append(rules, inline...)

	if path := strings.TrimSpace(cfg.RulesFile); path != "" {
		fromFile, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		rules = append(rules, fromFile...)
	}

	return &Normalizer{rules: rules, maxPasses: cfg.MaxPasses}, nil
}

// Apply runs every rule in order, repeating until a full pass changes
// nothing. Surrounding whitespace is trimmed from the result.
func (n *Normalizer) Apply(text string) (string, error) {
	result := text
	for pass := 0; pass < n.maxPasses; pass++ {
		changed := false
		for _, r := range n.rules {
			if next, ok := r.apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			return strings.TrimSpace(result), nil
		}
	}
	return strings.TrimSpace(result), fmt.Errorf("%w after %d passes", ErrUnstable, n.maxPasses)
}

func loadFile(path string) ([]rule, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}
	rules, err := parseLines(strings.Split(string(contents), "\n"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return rules, nil
}

func parseLines(lines []string) ([]rule, error) {
	rules := make([]rule, 0, len(lines))
	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			r   rule
			err error
		)
		switch {
		case looksLikeRegexRule(line):
			r, err = parseRegexRule(line)
		case strings.Contains(line, "=>"):
			r, err = parseLiteralRule(line)
		default:
			err = errors.New("unsupported rule format")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}
