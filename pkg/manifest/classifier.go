package manifest

import (
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
)

const homePrefix = "/home/"

// appSlot is the classifier's (application, type) outcome, flattened to
// two indices into the classifier's interned name tables.
type appSlot struct {
	app  int
	typ  int
}

type regexpRule struct {
	re   *regexp.Regexp
	slot appSlot
}

// classifier is a manifest's path lookup structure, built once at load
// time from every application's file-types declarations.
type classifier struct {
	appNames  []string
	typeNames []string
	typeIndex map[PathType]int

	roots   []string  // one per application, in declaration order
	exact   map[string]appSlot
	regexps []regexpRule
}

func newClassifier() *classifier {
	return &classifier{
		typeIndex: make(map[PathType]int),
		exact:     make(map[string]appSlot),
	}
}

func (c *classifier) internApp(name string) int {
	for i, n := range c.appNames {
		if n == name {
			return i
		}
	}
	c.appNames = append(c.appNames, name)
	c.roots = append(c.roots, "")
	return len(c.appNames) - 1
}

func (c *classifier) internType(t PathType) int {
	if i, ok := c.typeIndex[t]; ok {
		return i
	}
	i := len(c.typeNames)
	c.typeNames = append(c.typeNames, string(t))
	c.typeIndex[t] = i
	return i
}

// buildClassifier constructs a classifier from a manifest's validated
// applications, deriving one root per application and compiling every
// file-types pattern into the exact-path hash or the regexp list.
func buildClassifier(apps []Application) *classifier {
	c := newClassifier()
	for _, app := range apps {
		ai := c.internApp(app.Name)
		c.roots[ai] = appRoot(app.Execute)

		for typ, patterns := range app.FileTypes {
			ti := c.internType(typ)
			for _, pat := range patterns {
				slot := appSlot{app: ai, typ: ti}
				if isGlob(pat) {
					re, err := compileGlob(pat)
					if err != nil {
						continue
					}
					c.regexps = append(c.regexps, regexpRule{re: re, slot: slot})
				} else {
					c.exact[pat] = slot
				}
			}
		}
	}
	return c
}

// isGlob reports whether pattern contains any glob metacharacter, per
// the original source's exact set.
func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// compileGlob turns a shell-style glob into an anchored regexp. Only the
// metacharacters the manifest format recognises are translated; anything
// else is treated literally.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			j := strings.IndexByte(pattern[i:], ']')
			if j < 0 {
				b.WriteString(regexp.QuoteMeta(pattern[i:]))
				i = len(pattern)
				break
			}
			b.WriteString(pattern[i : i+j+1])
			i += j
		case '{':
			j := strings.IndexByte(pattern[i:], '}')
			if j < 0 {
				b.WriteString(regexp.QuoteMeta(pattern[i:]))
				i = len(pattern)
				break
			}
			alts := strings.Split(pattern[i+1:i+j], ",")
			b.WriteByte('(')
			for k, alt := range alts {
				if k > 0 {
					b.WriteByte('|')
				}
				b.WriteString(regexp.QuoteMeta(alt))
			}
			b.WriteByte(')')
			i += j
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

// appRoot derives an application's filesystem root from its argv list.
//
// Scans every argv entry (not just execute[0]) for one that starts
// under /home/: the original source picked this up as a hack for
// per-user-installed applications whose real executable lives deeper
// in the argv list than position zero, and it carries forward here.
// Whichever argv entry is selected then has get_app_root's directory
// derivation applied: the entry's directory, with a trailing "bin"
// path component stripped so "/opt/foo/bin" resolves to "/opt/foo".
func appRoot(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	arg0 := argv[0]
	for _, a := range argv {
		if strings.HasPrefix(a, homePrefix) {
			arg0 = a
			break
		}
	}
	return rootFromArg0(arg0)
}

func rootFromArg0(arg0 string) string {
	dir := filepath.Dir(arg0)
	if filepath.Base(dir) == "bin" {
		dir = filepath.Dir(dir)
	}
	return dir
}

// Classify resolves path to an (application, type) pair in three
// stages: exact-path hash, then first-match regexp (declaration order,
// not longest match — a known limitation the original source shares),
// then root fallback by file mode.
func (c *classifier) Classify(path string) (app string, typ PathType, ok bool) {
	if slot, found := c.exact[path]; found {
		return c.appNames[slot.app], PathType(c.typeNames[slot.typ]), true
	}
	for _, r := range c.regexps {
		if r.re.MatchString(path) {
			return c.appNames[r.slot.app], PathType(c.typeNames[r.slot.typ]), true
		}
	}
	return c.rootFallback(path)
}

// rootFallback classifies path by file mode, then matches it against
// application roots by longest declared-root prefix terminated by a
// path separator or end-of-string. If no root matches, it falls back
// to application 0, matching the original source's "let's hope there's
// only one app" behavior for unrooted paths.
func (c *classifier) rootFallback(path string) (app string, typ PathType, ok bool) {
	if len(c.appNames) == 0 {
		return "", "", false
	}
	var st syscall.Stat_t
	if err := syscall.Lstat(path, &st); err != nil {
		return "", "", false
	}
	typ = fallbackType(st.Mode)

	best := -1
	bestLen := -1
	for i, root := range c.roots {
		if root == "" || !strings.HasPrefix(path, root) {
			continue
		}
		rest := path[len(root):]
		if rest != "" && rest[0] != '/' {
			continue
		}
		if len(root) > bestLen {
			best = i
			bestLen = len(root)
		}
	}
	if best < 0 {
		best = 0
	}
	return c.appNames[best], typ, true
}

const (
	sIXUSR = 0100
	sIXGRP = 0010
	sIXOTH = 0001
	sIRUSR = 0400
	sIWUSR = 0200
	sIRGRP = 0040
	sIWGRP = 0020
	sIROTH = 0004
	sIWOTH = 0002
)

func fallbackType(mode uint32) PathType {
	rwPublic := uint32(sIRGRP | sIWGRP | sIROTH | sIWOTH)
	roPublic := uint32(sIRGRP | sIROTH)
	rwPackage := uint32(sIRGRP | sIWGRP)
	roPackage := uint32(sIRGRP)

	if mode&(sIXUSR|sIXGRP|sIXOTH) != 0 {
		switch {
		case mode&sIROTH != 0:
			return TypePublicRO
		case mode&sIRGRP != 0:
			return TypeRO
		default:
			return TypePrivate
		}
	}
	switch {
	case mode&rwPublic == rwPublic:
		return TypePublic
	case mode&roPublic == roPublic:
		return TypePublicRO
	case mode&rwPackage == rwPackage:
		return TypeRW
	case mode&roPackage == roPackage:
		return TypeRO
	default:
		return TypePrivate
	}
}
