package validator

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"sceneforge/internal/pysrc"
)

// charsPerSecond approximates GTTS speaking rate for duration estimates.
const charsPerSecond = 35.0

var (
	reHeadingAssign = regexp.MustCompile(`self\.(\w+)\s*=\s*(?:Text|Tex|MathTex|Title)\(`)
	reToEdgeUp      = regexp.MustCompile(`\.to_edge\(\s*UP`)
)

// Check 8: a heading stored on self in the first animation method and never
// removed collides with later top-of-frame content.
func checkPersistentHeading(f *pysrc.File, res *Result) {
	anims := f.AnimationMethods()
	if len(anims) < 2 {
		return
	}
	first := anims[0]
	firstMasked := maskOf(first.Body)

	m := reHeadingAssign.FindStringSubmatchIndex(firstMasked)
	if m == nil {
		return
	}
	attr := firstMasked[m[2]:m[3]]
	// Only a heading pinned to the top can collide there.
	stmt := statementAt(firstMasked, m[0])
	if !reToEdgeUp.MatchString(stmt) && !movesToTop(stmt) {
		return
	}

	var offenders []string
	for _, later := range anims[1:] {
		laterMasked := maskOf(later.Body)
		if removesAttr(laterMasked, attr) {
			return
		}
		if reToEdgeUp.MatchString(laterMasked) || anyMoveToTop(later.Body) {
			offenders = append(offenders, later.Name)
		}
	}
	if len(offenders) == 0 {
		return
	}

	more := ""
	if len(offenders) > 3 {
		more = " and more"
		offenders = offenders[:3]
	}
	res.addError("Persistent title detected: title created in '%s' (line %d) is never removed, but new content at top is shown in %s%s. "+
		"This will cause overlaps. Add 'if hasattr(self, \"%s\"): self.play(FadeOut(self.%s))' before showing new top content.",
		first.Name, first.Line, methodList(offenders), more, attr, attr)
}

func removesAttr(masked, attr string) bool {
	target := "self." + attr
	for _, pat := range []string{"FadeOut(" + target, "self.remove(" + target, "self.clear()"} {
		if strings.Contains(masked, pat) {
			return true
		}
	}
	return false
}

func movesToTop(stmt string) bool {
	for _, c := range pysrc.Calls(stmt, ".move_to") {
		if y, ok := pysrc.YCoord(firstArg(c.ArgsMasked)); ok && y > 0 {
			return true
		}
	}
	return false
}

func anyMoveToTop(body string) bool {
	for _, c := range pysrc.Calls(body, ".move_to") {
		if y, ok := pysrc.YCoord(firstArg(c.ArgsMasked)); ok && y > 0 {
			return true
		}
	}
	return false
}

// Check 9: narration seconds vs. animation seconds per method.
func checkDurationMatch(f *pysrc.File, res *Result) {
	for _, m := range f.AnimationMethods() {
		voice := narrationSeconds(m.Body)
		if voice == 0 {
			continue
		}
		anim := animationSeconds(m.Body)
		longest := voice
		if anim > longest {
			longest = anim
		}
		if longest == 0 {
			continue
		}
		mismatch := (voice - anim) / longest
		if mismatch < 0 {
			mismatch = -mismatch
		}
		switch {
		case mismatch > 0.7:
			res.addError("%s(): narration lasts ~%.0fs but animations total ~%.0fs - the screen will freeze or rush. Add run_time= to self.play calls or rebalance the narration.",
				m.Name, voice, anim)
		case mismatch > 0.4:
			res.addWarning("%s(): narration (~%.0fs) and animation time (~%.0fs) diverge - consider matching run_time to the voiceover.",
				m.Name, voice, anim)
		}
	}
}

func narrationSeconds(body string) float64 {
	total := 0
	for _, vo := range pysrc.Voiceovers(body) {
		total += utf8.RuneCountInString(strings.TrimSpace(vo.Text))
	}
	return float64(total) / charsPerSecond
}

func animationSeconds(body string) float64 {
	total := 0.0
	for _, c := range pysrc.Calls(body, "self.play") {
		if rt, ok := pysrc.KeywordFloat(c.ArgsMasked, "run_time"); ok {
			total += rt
		} else {
			total += 1.0
		}
	}
	return total
}

var visualConstructors = []string{
	"Text(", "MarkupText(", "Paragraph(", "Tex(", "MathTex(", "Title(",
	"Circle(", "Square(", "Rectangle(", "RoundedRectangle(", "Triangle(",
	"Polygon(", "RegularPolygon(", "Ellipse(", "Arc(", "Line(", "Arrow(",
	"DoubleArrow(", "Dot(", "Brace(", "SurroundingRectangle(",
	"VGroup(", "Group(", "NumberPlane(", "Axes(", "ThreeDAxes(",
	"NumberLine(", "Table(", "Matrix(", "Code(",
}

var backgroundConstructors = []string{"NumberPlane(", "Axes(", "ThreeDAxes(", "NumberLine(", "Grid("}

// Check 10: enough on screen for how long the method runs.
func checkVisualDensity(f *pysrc.File, res *Result) {
	for _, m := range f.AnimationMethods() {
		masked := maskOf(m.Body)
		count := 0
		for _, v := range visualConstructors {
			count += countConstructor(masked, v)
		}
		if count == 0 {
			res.addError("%s(): no visual elements constructed - the animation renders a black screen. Create Text, shapes, or a diagram before playing.",
				m.Name)
			continue
		}
		if min := densityMinimum(methodSeconds(m.Body)); count < min {
			res.addWarning("%s(): only %d visual element(s) for its duration - viewers see a sparse frame; aim for at least %d.",
				m.Name, count, min)
		}
		if m.Index == 0 {
			hasBackground := false
			for _, b := range backgroundConstructors {
				if countConstructor(masked, b) > 0 {
					hasBackground = true
					break
				}
			}
			if !hasBackground {
				res.addWarning("animation_0(): no background element (NumberPlane, Axes, or grid) - the opening frame looks empty.")
			}
		}
	}
}

// methodSeconds is the effective duration used for density and activity
// tiers: the longer of narration and summed run_time.
func methodSeconds(body string) float64 {
	voice := narrationSeconds(body)
	anim := animationSeconds(body)
	if voice > anim {
		return voice
	}
	return anim
}

func densityMinimum(seconds float64) int {
	switch {
	case seconds < 3:
		return 1
	case seconds <= 8:
		return 2
	default:
		return 3
	}
}

func countConstructor(masked, name string) int {
	n := 0
	for from := 0; ; {
		i := strings.Index(masked[from:], name)
		if i < 0 {
			return n
		}
		i += from
		from = i + len(name)
		if i > 0 {
			if c := masked[i-1]; c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
				continue
			}
		}
		n++
	}
}

var treeKeywords = []string{"tree", "node", "diagram", "graph", "branch"}

// Check 11: spacing hazards around next_to and middle-zone move_to.
func checkPositioning(f *pysrc.File, res *Result) {
	for _, m := range f.AnimationMethods() {
		for _, c := range pysrc.Calls(m.Body, ".next_to") {
			buff, present := pysrc.KeywordFloat(c.ArgsMasked, "buff")
			switch {
			case !present && !pysrc.HasKeyword(c.ArgsMasked, "buff"):
				res.addWarning("%s(): next_to without buff= uses the 0.25 default, which crowds elements. Pass buff=0.8 or more.", m.Name)
			case present && buff < 0.5:
				res.addError("%s(): next_to with buff=%.2g will overlap adjacent elements. Use buff=0.8 or more.", m.Name, buff)
			case present && buff < 0.8:
				res.addWarning("%s(): next_to with buff=%.2g is tight - elements may touch. Prefer buff=0.8.", m.Name, buff)
			}
		}

		if !hasTreeContent(m.Body) {
			continue
		}
		for _, c := range pysrc.Calls(m.Body, ".move_to") {
			y, ok := pysrc.YCoord(firstArg(c.ArgsMasked))
			if ok && y != 0 && y > -2.0 && y < 2.0 {
				res.addWarning("%s(): move_to places an element at y=%.2g inside the middle zone while a tree/diagram is drawn there - likely overlap. Move it to the top or bottom.",
					m.Name, y)
			}
		}
	}
}

func hasTreeContent(body string) bool {
	lower := strings.ToLower(maskOf(body))
	for _, kw := range treeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Check 12: the method actually animates as much as it runs.
func checkActivityBudget(f *pysrc.File, res *Result) {
	for _, m := range f.AnimationMethods() {
		plays := len(pysrc.Calls(m.Body, "self.play"))
		adds := len(pysrc.Calls(m.Body, "self.add"))
		if plays == 0 {
			res.addError("%s(): no self.play calls - the segment is a static frame with narration over it. Animate the content you construct.", m.Name)
			continue
		}
		if min := densityMinimum(methodSeconds(m.Body)); plays < min {
			res.addWarning("%s(): only %d play call(s) for its duration - the scene will feel frozen; aim for at least %d.",
				m.Name, plays, min)
		}
		if adds >= 3 && adds > plays*2 {
			res.addWarning("%s(): %d self.add calls vs %d self.play calls - elements pop in without animation. Prefer FadeIn/Write via self.play.",
				m.Name, adds, plays)
		}
	}
}

// helpers shared by the layout checks

func maskOf(body string) string {
	return pysrc.Parse(body).Masked
}

func firstArg(argsMasked string) string {
	depth := 0
	for i := 0; i < len(argsMasked); i++ {
		switch argsMasked[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				return strings.TrimSpace(argsMasked[:i])
			}
		}
	}
	return strings.TrimSpace(argsMasked)
}

func statementAt(masked string, offset int) string {
	start := strings.LastIndexByte(masked[:offset], '\n') + 1
	end := len(masked)
	if nl := strings.IndexByte(masked[offset:], '\n'); nl >= 0 {
		end = offset + nl
	}
	return masked[start:end]
}
