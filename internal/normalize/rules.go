package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// rule is one substitution. apply reports whether the text changed.
type rule interface {
	apply(input string) (string, bool)
}

// builtinRules spell hesitation sounds the way the fluency metrics count
// them and strip the bracketed sound tags speech-to-text providers emit.
var builtinRules = []rule{
	mustRegex(`s/[\[(](?:inaudible|music|noise|silence|laughter|applause|blank_audio)[\])]//g`),
	mustRegex(`s/\b(?:u+m{2,}|u{2,}m+|h?m{2,})\b/um/g`),
	mustRegex(`s/\b(?:u+h{2,}|u{2,}h+)\b/uh/g`),
	mustRegex(`s/\b(?:e+r{2,}|e{2,}r+)\b/er/g`),
	mustRegex(`s/\b(?:a+h{2,}|a{2,}h+)\b/ah/g`),
	mustRegex(`s/[ \t]+([,.!?;:])/$1/g`),
	mustRegex(`s/\s{2,}/ /g`),
}

func mustRegex(line string) rule {
	r, err := parseRegexRule(line)
	if err != nil {
		panic(fmt.Sprintf("normalize: bad builtin rule %q: %v", line, err))
	}
	return r
}

// literalRule replaces a phrase case-insensitively. Phrases that start or
// end with a word character only match at word boundaries, so "so" never
// rewrites "also".
type literalRule struct {
	re          *regexp.Regexp
	replacement string
}

func parseLiteralRule(line string) (rule, error) {
	from, to, ok := strings.Cut(line, "=>")
	if !ok {
		return nil, errors.New("invalid literal rule")
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}

	pattern := regexp.QuoteMeta(from)
	if isWordByte(from[0]) {
		pattern = `\b` + pattern
	}
	if isWordByte(from[len(from)-1]) {
		pattern += `\b`
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid literal source: %w", err)
	}
	return literalRule{re: re, replacement: to}, nil
}

func (r literalRule) apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

// regexRule is a sed-style s/pattern/replacement/flags rule. Matching is
// case-insensitive; without g only the first match is replaced.
type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func parseRegexRule(line string) (rule, error) {
	if !looksLikeRegexRule(line) {
		return nil, errors.New("regex delimiter must be non-alphanumeric")
	}
	delim := line[1]

	pattern, pos, err := parseDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := parseDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	flags := "i"
	global := false
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'i':
		case 'g':
			global = true
		case 'm', 's':
			flags += string(flag)
		case ' ':
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + flags + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexRule{re: re, replacement: replacement, global: global}, nil
}

func (r regexRule) apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

func parseDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var b strings.Builder
	escaped := false
	for i := start; i < len(line); i++ {
		c := line[i]
		switch {
		case escaped:
			b.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == delim:
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}

func looksLikeRegexRule(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordByte(line[1]) && line[1] != ' ' && line[1] != '\t'
}
