// Package transform implements an ESM→CJS transformer: it accepts
// arbitrary (often minified, bundler-emitted) ESM source and produces a
// functionally equivalent CommonJS body suitable for execution inside a
// synchronous function wrapper with require/exports/module injected.
//
// The masking-then-rewrite shape mirrors the caching dev-transform pattern
// in other_examples' esmdev.go (transCache keyed by resolved path, transform
// on first request) generalized from "call an external bundler" to "run a
// hand-rolled scanner", since pulling in a full JS parser for this would be
// a heavier dependency than the problem warrants.
package transform

import (
	"fmt"
	"regexp"
	"strings"
)

// Transform converts esmSource into CommonJS-compatible body text. Source
// that contains no import/export syntax comes back unchanged, except that
// const/let declarations of the wrapper's parameter names (module, require,
// process, ...) become var, as fixupCollisions does for every source.
func Transform(esmSource string) (string, error) {
	src := normalizeLineEndings(esmSource)
	src = rewriteImportMeta(src)

	masked, literals := maskLiterals(src)
	masked = breakMinifiedStatements(masked)

	imp := &importState{}
	var trailingExports []string
	masked, trailingExports = rewriteImports(masked, trailingExports, imp)
	masked, trailingExports = rewriteExports(masked, trailingExports, imp)
	masked = rewriteDynamicImport(masked)
	masked = fixupCollisions(masked)

	if len(trailingExports) > 0 {
		masked += "\n" + strings.Join(trailingExports, "\n") + "\n"
	}

	return unmask(masked, literals), nil
}

func normalizeLineEndings(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

var importMetaPropRe = regexp.MustCompile(`import\.meta\.(url|dirname|filename|require|resolve)\b`)
var bareImportMetaRe = regexp.MustCompile(`import\.meta\b`)

// rewriteImportMeta replaces import.meta.* with the wrapper-injected
// parameter names; bare import.meta last so its
// regex doesn't also eat the property-access occurrences.
func rewriteImportMeta(s string) string {
	s = importMetaPropRe.ReplaceAllStringFunc(s, func(m string) string {
		prop := importMetaPropRe.FindStringSubmatch(m)[1]
		switch prop {
		case "url":
			return "__importMetaUrl"
		case "dirname":
			return "__dirname"
		case "filename":
			return "__filename"
		case "require":
			return "require"
		case "resolve":
			return "__importMetaResolve"
		}
		return m
	})
	return bareImportMetaRe.ReplaceAllString(s, "__importMeta")
}

// maskLiterals replaces every string, template, and regex literal with a
// placeholder "__LIFO_S<n>__" (quote preserved) so later regex-driven
// rewrites never match import/export-shaped text living inside a string.
// The scanner tracks line comments, block comments, quote state, and
// template ${...} brace depth.
func maskLiterals(s string) (string, []string) {
	var out strings.Builder
	var literals []string
	n := len(s)
	i := 0

	isRegexContext := func(before string) bool {
		trimmed := strings.TrimRight(before, " \t\n")
		if trimmed == "" {
			return true
		}
		last := trimmed[len(trimmed)-1]
		switch last {
		case '(', ',', '=', ':', '[', '!', '&', '|', '?', '{', ';', '+', '-', '*', '%', '<', '>':
			return true
		}
		for _, kw := range []string{"return", "typeof", "instanceof", "in", "of", "new", "delete", "void", "throw", "case", "do", "else", "yield", "await"} {
			if strings.HasSuffix(trimmed, kw) {
				return true
			}
		}
		return false
	}

	for i < n {
		c := s[i]

		if c == '/' && i+1 < n && s[i+1] == '/' {
			j := strings.IndexByte(s[i:], '\n')
			if j < 0 {
				out.WriteString(s[i:])
				i = n
			} else {
				out.WriteString(s[i : i+j])
				i += j
			}
			continue
		}
		if c == '/' && i+1 < n && s[i+1] == '*' {
			j := strings.Index(s[i+2:], "*/")
			if j < 0 {
				out.WriteString(s[i:])
				i = n
			} else {
				end := i + 2 + j + 2
				out.WriteString(s[i:end])
				i = end
			}
			continue
		}

		if c == '\'' || c == '"' {
			start := i
			i++
			for i < n && s[i] != c {
				if s[i] == '\\' && i+1 < n {
					i += 2
					continue
				}
				i++
			}
			if i < n {
				i++
			}
			literal := s[start:i]
			literals = append(literals, literal)
			fmt.Fprintf(&out, "\"__LIFO_S%d__\"", len(literals)-1)
			continue
		}

		if c == '`' {
			start := i
			i++
			depth := 0
			for i < n {
				if s[i] == '\\' && i+1 < n {
					i += 2
					continue
				}
				if s[i] == '$' && i+1 < n && s[i+1] == '{' {
					depth++
					i += 2
					continue
				}
				if depth > 0 && s[i] == '}' {
					depth--
					i++
					continue
				}
				if depth == 0 && s[i] == '`' {
					i++
					break
				}
				i++
			}
			literal := s[start:i]
			literals = append(literals, literal)
			fmt.Fprintf(&out, "\"__LIFO_S%d__\"", len(literals)-1)
			continue
		}

		if c == '/' && isRegexContext(out.String()) {
			start := i
			j := i + 1
			inClass := false
			ok := false
			for j < n {
				if s[j] == '\\' && j+1 < n {
					j += 2
					continue
				}
				if s[j] == '[' {
					inClass = true
				} else if s[j] == ']' {
					inClass = false
				} else if s[j] == '/' && !inClass {
					ok = true
					j++
					break
				} else if s[j] == '\n' {
					break
				}
				j++
			}
			if ok {
				for j < n && isIdentChar(s[j]) {
					j++
				}
				literal := s[start:j]
				literals = append(literals, literal)
				fmt.Fprintf(&out, "\"__LIFO_S%d__\"", len(literals)-1)
				i = j
				continue
			}
		}

		out.WriteByte(c)
		i++
	}

	return out.String(), literals
}

func isIdentChar(b byte) bool {
	return b == '$' || b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func unmask(s string, literals []string) string {
	for i, lit := range literals {
		placeholder := fmt.Sprintf("\"__LIFO_S%d__\"", i)
		s = strings.Replace(s, placeholder, lit, 1)
	}
	return s
}

var minifiedImportExportRe = regexp.MustCompile(`;\s*(import|export)\b`)

// breakMinifiedStatements inserts a newline after any ';' immediately
// preceding import/export, so line-anchored rewrite regexes below still
// match inside minified bundles.
func breakMinifiedStatements(s string) string {
	return minifiedImportExportRe.ReplaceAllString(s, ";\n$1")
}

var (
	importDefaultAndNamedRe = regexp.MustCompile(`(?m)^\s*import\s+([A-Za-z_$][\w$]*)\s*,\s*\{([^}]*)\}\s*from\s*(['"][^'"]+['"]|"__LIFO_S\d+__");?`)
	importDefaultAndStarRe  = regexp.MustCompile(`(?m)^\s*import\s+([A-Za-z_$][\w$]*)\s*,\s*\*\s*as\s+([A-Za-z_$][\w$]*)\s*from\s*(['"][^'"]+['"]|"__LIFO_S\d+__");?`)
	importNamedRe           = regexp.MustCompile(`(?m)^\s*import\s*\{([^}]*)\}\s*from\s*(['"][^'"]+['"]|"__LIFO_S\d+__");?`)
	importStarRe            = regexp.MustCompile(`(?m)^\s*import\s*\*\s*as\s+([A-Za-z_$][\w$]*)\s*from\s*(['"][^'"]+['"]|"__LIFO_S\d+__");?`)
	importDefaultRe         = regexp.MustCompile(`(?m)^\s*import\s+([A-Za-z_$][\w$]*)\s*from\s*(['"][^'"]+['"]|"__LIFO_S\d+__");?`)
	importBareRe            = regexp.MustCompile(`(?m)^\s*import\s*(['"][^'"]+['"]|"__LIFO_S\d+__");?`)
)

// importState counts generated __impN reference names within a single
// Transform call, avoiding shared mutable package state across concurrent
// calls.
type importState struct{ n int }

func (st *importState) next() string {
	st.n++
	return fmt.Sprintf("__imp%d", st.n)
}

func rewriteImports(s string, trailing []string, imp *importState) (string, []string) {

	s = importDefaultAndNamedRe.ReplaceAllStringFunc(s, func(m string) string {
		g := importDefaultAndNamedRe.FindStringSubmatch(m)
		name, specs, mod := g[1], g[2], g[3]
		ref := imp.next()
		destructure := rewriteSpecList(specs)
		return fmt.Sprintf("const %s = require(%s); const %s = %s.default || %s; const {%s} = %s;",
			ref, mod, name, ref, ref, destructure, ref)
	})

	s = importDefaultAndStarRe.ReplaceAllStringFunc(s, func(m string) string {
		g := importDefaultAndStarRe.FindStringSubmatch(m)
		name, star, mod := g[1], g[2], g[3]
		ref := imp.next()
		return fmt.Sprintf("const %s = require(%s); const %s = %s.default || %s; const %s = %s;",
			ref, mod, name, ref, ref, star, ref)
	})

	s = importNamedRe.ReplaceAllStringFunc(s, func(m string) string {
		g := importNamedRe.FindStringSubmatch(m)
		specs, mod := g[1], g[2]
		ref := imp.next()
		destructure := rewriteSpecList(specs)
		return fmt.Sprintf("const %s = require(%s); const {%s} = %s;", ref, mod, destructure, ref)
	})

	s = importStarRe.ReplaceAllStringFunc(s, func(m string) string {
		g := importStarRe.FindStringSubmatch(m)
		name, mod := g[1], g[2]
		return fmt.Sprintf("const %s = require(%s);", name, mod)
	})

	s = importDefaultRe.ReplaceAllStringFunc(s, func(m string) string {
		g := importDefaultRe.FindStringSubmatch(m)
		name, mod := g[1], g[2]
		return fmt.Sprintf("const %s = require(%s);", name, mod)
	})

	s = importBareRe.ReplaceAllStringFunc(s, func(m string) string {
		g := importBareRe.FindStringSubmatch(m)
		mod := g[1]
		return fmt.Sprintf("require(%s);", mod)
	})

	return s, trailing
}

// rewriteSpecList turns "a, b as c" into "a, b: c" for destructuring, and
// "a as b" export specs are handled the same way by callers that need the
// inverse mapping.
func rewriteSpecList(specs string) string {
	parts := strings.Split(specs, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if idx := strings.Index(p, " as "); idx >= 0 {
			local := strings.TrimSpace(p[:idx])
			alias := strings.TrimSpace(p[idx+4:])
			out = append(out, fmt.Sprintf("%s: %s", local, alias))
		} else {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

var (
	exportStarFromRe   = regexp.MustCompile(`(?m)^\s*export\s*\*\s*from\s*(['"][^'"]+['"]|"__LIFO_S\d+__");?`)
	exportNamedFromRe  = regexp.MustCompile(`(?m)^\s*export\s*\{([^}]*)\}\s*from\s*(['"][^'"]+['"]|"__LIFO_S\d+__");?`)
	exportDefaultRe    = regexp.MustCompile(`(?m)^\s*export\s+default\s+`)
	exportDeclRe       = regexp.MustCompile(`(?m)^\s*export\s+(const|let|var)\s+([A-Za-z_$][\w$]*)`)
	exportFuncClassRe  = regexp.MustCompile(`(?m)^\s*export\s+(async\s+function|function|class)\s+([A-Za-z_$][\w$]*)`)
	exportBareListRe   = regexp.MustCompile(`(?m)^\s*export\s*\{([^}]*)\}\s*;?\s*$`)
	exportEmptyMarkRe  = regexp.MustCompile(`(?m)^\s*export\s*\{\s*\}\s*;?`)
)

func rewriteExports(s string, trailing []string, imp *importState) (string, []string) {
	s = exportEmptyMarkRe.ReplaceAllString(s, "")

	s = exportStarFromRe.ReplaceAllStringFunc(s, func(m string) string {
		g := exportStarFromRe.FindStringSubmatch(m)
		mod := g[1]
		ref := imp.next()
		return fmt.Sprintf(`const %s = require(%s); for (const __k in %s) { if (__k !== 'default') Object.defineProperty(exports, __k, {get(){return %s[__k]}, enumerable:true, configurable:true}); }`, ref, mod, ref, ref)
	})

	s = exportNamedFromRe.ReplaceAllStringFunc(s, func(m string) string {
		g := exportNamedFromRe.FindStringSubmatch(m)
		specs, mod := g[1], g[2]
		ref := imp.next()
		var getters []string
		for _, p := range strings.Split(specs, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			local, alias := p, p
			if idx := strings.Index(p, " as "); idx >= 0 {
				local = strings.TrimSpace(p[:idx])
				alias = strings.TrimSpace(p[idx+4:])
			}
			getters = append(getters, fmt.Sprintf(`Object.defineProperty(exports, %q, {get(){return %s.%s}, enumerable:true, configurable:true});`, alias, ref, local))
		}
		return fmt.Sprintf("const %s = require(%s); %s", ref, mod, strings.Join(getters, " "))
	})

	hasNamedExports := exportDeclRe.MatchString(s) || exportFuncClassRe.MatchString(s) || exportBareListRe.MatchString(s)

	s = exportDefaultRe.ReplaceAllStringFunc(s, func(string) string {
		if hasNamedExports {
			return "exports.default = "
		}
		return "module.exports = "
	})

	s = exportDeclRe.ReplaceAllStringFunc(s, func(m string) string {
		g := exportDeclRe.FindStringSubmatch(m)
		kind, name := g[1], g[2]
		trailing = append(trailing, fmt.Sprintf("exports.%s = %s;", name, name))
		return fmt.Sprintf("%s %s", kind, name)
	})

	s = exportFuncClassRe.ReplaceAllStringFunc(s, func(m string) string {
		g := exportFuncClassRe.FindStringSubmatch(m)
		kind, name := g[1], g[2]
		trailing = append(trailing, fmt.Sprintf("exports.%s = %s;", name, name))
		return fmt.Sprintf("%s %s", kind, name)
	})

	s = exportBareListRe.ReplaceAllStringFunc(s, func(m string) string {
		g := exportBareListRe.FindStringSubmatch(m)
		specs := g[1]
		for _, p := range strings.Split(specs, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			local, alias := p, p
			if idx := strings.Index(p, " as "); idx >= 0 {
				local = strings.TrimSpace(p[:idx])
				alias = strings.TrimSpace(p[idx+4:])
			}
			trailing = append(trailing, fmt.Sprintf("exports.%s = %s;", alias, local))
		}
		return ""
	})

	return s, trailing
}

var (
	dynamicImportLiteralRe = regexp.MustCompile(`import\(\s*(['"][^'"]+['"]|"__LIFO_S\d+__")\s*\)`)
	dynamicImportRe        = regexp.MustCompile(`\bimport\s*\(`)
)

// rewriteDynamicImport handles import('literal') and import(expr) forms
// skipping occurrences that are actually a method
// call on `.import(` or a class method definition `import(x){`.
func rewriteDynamicImport(s string) string {
	s = dynamicImportLiteralRe.ReplaceAllString(s, "Promise.resolve(require($1))")

	var out strings.Builder
	i := 0
	for {
		loc := dynamicImportRe.FindStringIndex(s[i:])
		if loc == nil {
			out.WriteString(s[i:])
			break
		}
		start := i + loc[0]
		if start > 0 && s[start-1] == '.' {
			out.WriteString(s[i : start+loc[1]-loc[0]])
			i = start + (loc[1] - loc[0])
			continue
		}
		parenStart := start + loc[1] - loc[0] - 1
		depth := 1
		j := parenStart + 1
		for j < len(s) && depth > 0 {
			switch s[j] {
			case '(':
				depth++
			case ')':
				depth--
			}
			j++
		}
		if depth != 0 {
			out.WriteString(s[i:j])
			i = j
			continue
		}
		after := strings.TrimLeft(s[j:], " \t")
		if strings.HasPrefix(after, "{") {
			out.WriteString(s[i:j])
			i = j
			continue
		}
		expr := s[parenStart+1 : j-1]
		out.WriteString(s[i:start])
		out.WriteString(fmt.Sprintf("Promise.resolve().then(()=>require(%s))", expr))
		i = j
	}
	return out.String()
}

var wrapperParamNames = []string{"__dirname", "__filename", "exports", "require", "module", "console", "process", "Buffer", "global"}

// fixupCollisions replaces const/let declarations of identifiers that
// collide with the wrapper's injected parameter names with var, since
// those names are already function parameters.
func fixupCollisions(s string) string {
	for _, name := range wrapperParamNames {
		re := regexp.MustCompile(`\b(const|let)(\s+` + regexp.QuoteMeta(name) + `\b)`)
		s = re.ReplaceAllString(s, "var$2")
	}
	return s
}
