package pysrc

import (
	"regexp"
	"strconv"
	"strings"
)

// Call is one balanced call expression found in a method body.
type Call struct {
	Args       string // raw argument text between the parentheses
	ArgsMasked string // same span with string contents blanked
	Line       int
}

// Voiceover is one voiceover block's narration text.
type Voiceover struct {
	Text string
	Line int
}

func maskFragment(body string) *File {
	f := &File{Src: body}
	f.scanLiterals()
	return f
}

// Calls finds balanced invocations of name inside body. A leading "." matches
// method-call sites (".next_to"); otherwise the name must stand on a word
// boundary ("self.play", "Text").
func Calls(body, name string) []Call {
	f := maskFragment(body)
	masked := f.Masked
	var out []Call
	for from := 0; ; {
		i := strings.Index(masked[from:], name)
		if i < 0 {
			break
		}
		i += from
		from = i + len(name)
		if !strings.HasPrefix(name, ".") && i > 0 {
			prev := masked[i-1]
			if isWordByte(prev) || prev == '.' {
				continue
			}
		}
		j := i + len(name)
		for j < len(masked) && (masked[j] == ' ' || masked[j] == '\t') {
			j++
		}
		if j >= len(masked) || masked[j] != '(' {
			continue
		}
		close, ok := matchParen(masked, j)
		if !ok {
			continue
		}
		out = append(out, Call{
			Args:       body[j+1 : close],
			ArgsMasked: masked[j+1 : close],
			Line:       lineOf(body, i),
		})
		from = close
	}
	return out
}

// CountCalls counts invocations of any of the names.
func CountCalls(body string, names ...string) int {
	n := 0
	for _, name := range names {
		n += len(Calls(body, name))
	}
	return n
}

// Voiceovers extracts the narration literals of voiceover blocks.
func Voiceovers(body string) []Voiceover {
	f := maskFragment(body)
	var out []Voiceover
	for _, lit := range f.Literals {
		if lit.Context == "voiceover" {
			out = append(out, Voiceover{Text: lit.Value, Line: lit.Line})
		}
	}
	return out
}

func matchParen(masked string, open int) (int, bool) {
	depth := 0
	for i := open; i < len(masked); i++ {
		switch masked[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// KeywordFloat extracts a numeric keyword argument (e.g. run_time=1.5,
// buff=0.8) from a call's argument text. Non-numeric values such as
// tracker.duration report absence.
func KeywordFloat(argsMasked, key string) (float64, bool) {
	re := regexp.MustCompile(`(?:^|[\s,(])` + regexp.QuoteMeta(key) + `\s*=\s*([0-9]*\.?[0-9]+)`)
	m := re.FindStringSubmatch(argsMasked)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// HasKeyword reports whether a keyword argument appears at all, numeric or not.
func HasKeyword(argsMasked, key string) bool {
	re := regexp.MustCompile(`(?:^|[\s,(])` + regexp.QuoteMeta(key) + `\s*=`)
	return re.MatchString(argsMasked)
}

var (
	reDirMul = regexp.MustCompile(`^(UP|DOWN|LEFT|RIGHT)\s*\*\s*([0-9]*\.?[0-9]+)$`)
	reMulDir = regexp.MustCompile(`^([0-9]*\.?[0-9]+)\s*\*\s*(UP|DOWN|LEFT|RIGHT)$`)
)

// YCoord interprets a positional expression and returns its y component:
// DOWN*k is -k, UP*k is +k, bare UP/DOWN are +1/-1, LEFT/RIGHT contribute 0,
// ORIGIN is 0. Sums of such terms are folded. Anything else is undefined.
func YCoord(expr string) (float64, bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, false
	}
	total := 0.0
	defined := false
	for _, term := range splitTerms(expr) {
		sign := 1.0
		t := strings.TrimSpace(term)
		if strings.HasPrefix(t, "-") {
			sign = -1
			t = strings.TrimSpace(t[1:])
		} else if strings.HasPrefix(t, "+") {
			t = strings.TrimSpace(t[1:])
		}
		y, ok := termY(t)
		if !ok {
			return 0, false
		}
		total += sign * y
		defined = true
	}
	return total, defined
}

func termY(t string) (float64, bool) {
	switch t {
	case "ORIGIN":
		return 0, true
	case "UP":
		return 1, true
	case "DOWN":
		return -1, true
	case "LEFT", "RIGHT":
		return 0, true
	}
	if m := reDirMul.FindStringSubmatch(t); m != nil {
		k, _ := strconv.ParseFloat(m[2], 64)
		return dirY(m[1]) * k, true
	}
	if m := reMulDir.FindStringSubmatch(t); m != nil {
		k, _ := strconv.ParseFloat(m[1], 64)
		return dirY(m[2]) * k, true
	}
	return 0, false
}

func dirY(dir string) float64 {
	switch dir {
	case "UP":
		return 1
	case "DOWN":
		return -1
	}
	return 0
}

// splitTerms splits on top-level + and - (never inside parentheses and never
// the sign of the leading term).
func splitTerms(expr string) []string {
	var terms []string
	depth := 0
	start := 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case '+', '-':
			if depth == 0 && strings.TrimSpace(expr[start:i]) != "" && !isOperatorTail(expr[:i]) {
				if expr[i] == '-' {
					terms = append(terms, expr[start:i])
					start = i // keep the sign with the term
				} else {
					terms = append(terms, expr[start:i])
					start = i + 1
				}
			}
		}
	}
	terms = append(terms, expr[start:])
	return terms
}

// isOperatorTail reports whether the text before the sign ends in another
// operator, which would make the sign unary rather than a term separator.
func isOperatorTail(before string) bool {
	t := strings.TrimRight(before, " \t")
	if t == "" {
		return true
	}
	switch t[len(t)-1] {
	case '*', '/', '(', '[', ',', '+', '-':
		return true
	}
	return false
}
