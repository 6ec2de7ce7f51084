package pysrc

import "strings"

// scanLiterals walks the source once, recording every string literal and
// producing the masked text used by all structural regexes. String contents
// and comments are blanked so that brackets or keywords inside prose can
// never confuse later passes.
func (f *File) scanLiterals() {
	src := f.Src
	masked := []byte(src)
	var callStack []string
	word := "" // identifier characters seen since the last non-word char

	blank := func(from, to int) {
		for i := from; i < to && i < len(masked); i++ {
			if masked[i] != '\n' {
				masked[i] = ' '
			}
		}
	}

	topCall := func() string {
		if len(callStack) == 0 {
			return ""
		}
		return callStack[len(callStack)-1]
	}

	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '#':
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				end = len(src) - i
			}
			blank(i, i+end)
			i += end
			word = ""
		case c == '\'' || c == '"':
			start := i
			prefix := trailingPrefix(word)
			start -= len(prefix)
			raw := strings.ContainsAny(prefix, "rR")
			quote := string(c)
			triple := strings.HasPrefix(src[i:], quote+quote+quote)
			if triple {
				quote = quote + quote + quote
			}
			inner, end, ok := scanString(src, i+len(quote), quote, raw)
			if !ok {
				f.Unterminated = true
				blank(start, len(src))
				f.Literals = append(f.Literals, Literal{
					Start: start, End: len(src), Value: inner, Raw: raw,
					Triple: triple, Line: lineOf(src, start), Context: topCall(),
				})
				i = len(src)
				break
			}
			f.Literals = append(f.Literals, Literal{
				Start: start, End: end, Value: inner, Raw: raw,
				Triple: triple, Line: lineOf(src, start), Context: topCall(),
			})
			blank(start, end)
			i = end
			word = ""
		case c == '(':
			callStack = append(callStack, lastComponent(word))
			word = ""
			i++
		case c == ')':
			if len(callStack) > 0 {
				callStack = callStack[:len(callStack)-1]
			}
			word = ""
			i++
		case isWordByte(c) || c == '.':
			word += string(c)
			i++
		case c == ' ' || c == '\t':
			// Whitespace between an identifier and "(" keeps the pending word.
			i++
		default:
			word = ""
			i++
		}
	}
	f.Masked = string(masked)
}

// scanString consumes a literal body and returns (inner, end offset, ok).
func scanString(src string, from int, quote string, raw bool) (string, int, bool) {
	i := from
	for i < len(src) {
		if !raw && src[i] == '\\' {
			i += 2
			continue
		}
		if strings.HasPrefix(src[i:], quote) {
			return src[from:i], i + len(quote), true
		}
		if len(quote) == 1 && src[i] == '\n' {
			// Single-quoted literals cannot span lines.
			return src[from:i], 0, false
		}
		i++
	}
	return src[from:], 0, false
}

// trailingPrefix returns the string-prefix letters ("r", "rb", "f", ...)
// immediately adjacent to the opening quote, if the pending word is only a
// prefix and not a real identifier like Text.
func trailingPrefix(word string) string {
	if word == "" || len(word) > 2 {
		return ""
	}
	for _, r := range word {
		switch r {
		case 'r', 'R', 'b', 'B', 'u', 'U', 'f', 'F':
		default:
			return ""
		}
	}
	return word
}

func lastComponent(word string) string {
	if j := strings.LastIndexByte(word, '.'); j >= 0 {
		return word[j+1:]
	}
	return word
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
