package pysrc

import (
	"fmt"
	"strings"
)

// SyntaxError describes a structural defect found by CheckSyntax.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// CheckSyntax runs a structural scan standing in for a real Python parse:
// unterminated strings, unbalanced brackets, block headers with no indented
// body, and tab/space indentation mixing. It cannot catch every invalid
// program, but it rejects the shapes a code model actually emits when it
// truncates or mangles output.
func (f *File) CheckSyntax() []SyntaxError {
	var errs []SyntaxError
	if f.Unterminated {
		line := 1
		if n := len(f.Literals); n > 0 {
			line = f.Literals[n-1].Line
		}
		errs = append(errs, SyntaxError{Line: line, Msg: "unterminated string literal"})
	}

	if e, ok := checkBrackets(f.Masked); ok {
		errs = append(errs, e)
	}
	errs = append(errs, checkBlocks(f.Masked)...)
	errs = append(errs, checkIndent(f.Masked)...)
	return errs
}

func checkBrackets(masked string) (SyntaxError, bool) {
	type open struct {
		c    byte
		line int
	}
	var stack []open
	line := 1
	for i := 0; i < len(masked); i++ {
		c := masked[i]
		switch c {
		case '\n':
			line++
		case '(', '[', '{':
			stack = append(stack, open{c, line})
		case ')', ']', '}':
			if len(stack) == 0 {
				return SyntaxError{Line: line, Msg: fmt.Sprintf("unmatched %q", c)}, true
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !bracketPair(top.c, c) {
				return SyntaxError{Line: line, Msg: fmt.Sprintf("mismatched %q closing %q opened on line %d", c, top.c, top.line)}, true
			}
		}
	}
	if len(stack) > 0 {
		top := stack[len(stack)-1]
		return SyntaxError{Line: top.line, Msg: fmt.Sprintf("unclosed %q", top.c)}, true
	}
	return SyntaxError{}, false
}

func bracketPair(open, close byte) bool {
	return (open == '(' && close == ')') || (open == '[' && close == ']') || (open == '{' && close == '}')
}

// checkBlocks flags a def/class/if/for/... header whose following
// non-blank line is not indented deeper. Headers inside unclosed brackets
// are already reported by checkBrackets, so continuation lines are not a
// concern: bracket depth is tracked and headers only count at depth zero.
func checkBlocks(masked string) []SyntaxError {
	lines := strings.Split(masked, "\n")
	var errs []SyntaxError
	depth := 0
	for i, raw := range lines {
		lineDepth := depth
		for j := 0; j < len(raw); j++ {
			switch raw[j] {
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				depth--
			}
		}
		if lineDepth != 0 {
			continue
		}
		trimmed := strings.TrimSpace(raw)
		if !strings.HasSuffix(trimmed, ":") || !isBlockHeader(trimmed) {
			continue
		}
		head := indentWidth(raw)
		found := false
		for k := i + 1; k < len(lines); k++ {
			next := strings.TrimSpace(lines[k])
			if next == "" {
				continue
			}
			if indentWidth(lines[k]) > head {
				found = true
			}
			break
		}
		if !found {
			errs = append(errs, SyntaxError{Line: i + 1, Msg: "expected an indented block"})
		}
	}
	return errs
}

var blockKeywords = []string{"def ", "class ", "if ", "elif ", "else", "for ", "while ", "try", "except", "finally", "with "}

func isBlockHeader(trimmed string) bool {
	for _, kw := range blockKeywords {
		if strings.HasPrefix(trimmed, kw) || trimmed == strings.TrimSpace(kw)+":" {
			return true
		}
	}
	return false
}

func indentWidth(line string) int {
	w := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case ' ':
			w++
		case '\t':
			w += 8
		default:
			return w
		}
	}
	return w
}

// checkIndent flags lines that mix tabs after spaces in their indentation.
func checkIndent(masked string) []SyntaxError {
	var errs []SyntaxError
	for i, line := range strings.Split(masked, "\n") {
		sawSpace := false
	scan:
		for j := 0; j < len(line); j++ {
			switch line[j] {
			case ' ':
				sawSpace = true
			case '\t':
				if sawSpace {
					errs = append(errs, SyntaxError{Line: i + 1, Msg: "inconsistent use of tabs and spaces in indentation"})
					break scan
				}
			default:
				break scan
			}
		}
	}
	return errs
}
