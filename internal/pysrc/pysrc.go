// Package pysrc is a lightweight structural scanner for generated scene
// source. It does not attempt to fully parse or type-check Python; it exposes
// exactly the facts the validator's passes need: string literals with their
// enclosing call, class and method boundaries, and balanced call argument
// spans. See the validator for how these facts are consumed.
package pysrc

import (
	"regexp"
	"strings"
)

// Literal is one string literal occurrence in the source.
type Literal struct {
	Start, End int    // byte offsets including prefix and quotes
	Value      string // inner text
	Raw        bool   // r"" prefix
	Triple     bool
	Line       int    // 1-based line of the opening quote
	Context    string // innermost call the literal is an argument of ("Text", "MathTex", "voiceover", ...)
}

// Class is a top-level class declaration.
type Class struct {
	Name string
	Base string
	Line int
}

// Method is a def inside the first class.
type Method struct {
	Name  string
	Index int // N for animation_N methods, -1 otherwise
	Line  int
	Body  string // raw source of the body, header line excluded
}

// File is the scanned view of one source text.
type File struct {
	Src          string
	Masked       string // literals and comments blanked with spaces
	Literals     []Literal
	Classes      []Class
	Methods      []Method // methods of the first class, in declaration order
	Unterminated bool     // an unterminated string literal was found
}

var (
	reClass  = regexp.MustCompile(`(?m)^class\s+(\w+)\s*\(\s*([\w.]+)\s*\)\s*:`)
	reMethod = regexp.MustCompile(`(?m)^([ \t]+)def\s+(\w+)\s*\(`)
	reAnimN  = regexp.MustCompile(`^animation_(\d+)$`)
)

// Parse scans the source into a File. It never fails; structural defects are
// reported by the validator checks instead.
func Parse(src string) *File {
	f := &File{Src: src}
	f.scanLiterals()
	f.scanClasses()
	f.scanMethods()
	return f
}

func (f *File) scanClasses() {
	for _, m := range reClass.FindAllStringSubmatchIndex(f.Masked, -1) {
		f.Classes = append(f.Classes, Class{
			Name: f.Src[m[2]:m[3]],
			Base: f.Src[m[4]:m[5]],
			Line: lineOf(f.Src, m[0]),
		})
	}
}

func (f *File) scanMethods() {
	if len(f.Classes) == 0 {
		return
	}
	matches := reMethod.FindAllStringSubmatchIndex(f.Masked, -1)
	for i, m := range matches {
		name := f.Src[m[4]:m[5]]
		bodyStart := m[0]
		// Body runs to the next def at any indent or to the next class, or EOF.
		bodyEnd := len(f.Src)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		if c := reClass.FindStringIndex(f.Masked[bodyStart+1:]); c != nil && bodyStart+1+c[0] < bodyEnd {
			bodyEnd = bodyStart + 1 + c[0]
		}
		idx := -1
		if am := reAnimN.FindStringSubmatch(name); am != nil {
			idx = atoiSafe(am[1])
		}
		// Skip the header line itself.
		body := f.Src[bodyStart:bodyEnd]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		} else {
			body = ""
		}
		f.Methods = append(f.Methods, Method{
			Name:  name,
			Index: idx,
			Line:  lineOf(f.Src, m[0]),
			Body:  body,
		})
	}
}

// AnimationMethods returns the animation_N methods in declaration order.
func (f *File) AnimationMethods() []Method {
	var out []Method
	for _, m := range f.Methods {
		if m.Index >= 0 {
			out = append(out, m)
		}
	}
	return out
}

// Method returns the named method of the first class.
func (f *File) Method(name string) (Method, bool) {
	for _, m := range f.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return Method{}, false
}

func lineOf(src string, offset int) int {
	return strings.Count(src[:offset], "\n") + 1
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}
