package interp

import (
	"fmt"
	"strings"
)

type tokKind int

const (
	tEOF tokKind = iota
	tNEWLINE
	tINDENT
	tDEDENT
	tNAME
	tINT
	tFLOAT
	tSTRING
	tFSTRING
	tBYTES
	tOP
	tKEYWORD
)

type token struct {
	kind tokKind
	lit  string
	ival int64
	fval float64
	line int
}

var keywords = map[string]bool{
	"def": true, "return": true, "if": true, "elif": true, "else": true,
	"while": true, "for": true, "in": true, "break": true, "continue": true,
	"pass": true, "and": true, "or": true, "not": true, "True": true,
	"False": true, "None": true, "lambda": true, "import": true, "from": true,
	"class": true, "global": true, "nonlocal": true, "try": true,
	"except": true, "finally": true, "raise": true, "with": true, "as": true,
	"yield": true, "assert": true, "del": true, "is": true,
}

// lex tokenizes source into a flat token stream with synthetic
// INDENT/DEDENT/NEWLINE tokens, Python-style.
func lex(src string) ([]token, error) {
	var toks []token
	indents := []int{0}
	lines := strings.Split(src, "\n")
	parenDepth := 0
	lineNo := 0

	pendingBlank := true // suppress NEWLINE/INDENT tracking before first real line

	for li := 0; li < len(lines); li++ {
		lineNo = li + 1
		raw := lines[li]

		// join continuation lines ending in backslash
		for strings.HasSuffix(raw, "\\") && li+1 < len(lines) {
			raw = raw[:len(raw)-1] + lines[li+1]
			li++
		}

		line := raw
		// strip full-line comments/blank only when not inside parens
		trimmed := strings.TrimLeft(line, " \t")
		if parenDepth == 0 {
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
		}

		indent := len(line) - len(trimmed)
		if parenDepth == 0 {
			if !pendingBlank {
				toks = append(toks, token{kind: tNEWLINE, line: lineNo})
			}
			if indent > indents[len(indents)-1] {
				indents = append(indents, indent)
				toks = append(toks, token{kind: tINDENT, line: lineNo})
			} else {
				for indent < indents[len(indents)-1] {
					indents = indents[:len(indents)-1]
					toks = append(toks, token{kind: tDEDENT, line: lineNo})
				}
				if indent != indents[len(indents)-1] {
					return nil, fmt.Errorf("line %d: inconsistent indentation", lineNo)
				}
			}
		}
		pendingBlank = false

		rest := line[indent:]
		lineToks, newDepth, err := lexLine(rest, lineNo, parenDepth)
		if err != nil {
			return nil, err
		}
		parenDepth = newDepth
		toks = append(toks, lineToks...)
	}

	if !pendingBlank {
		toks = append(toks, token{kind: tNEWLINE, line: lineNo})
	}
	for len(indents) > 1 {
		indents = indents[:len(indents)-1]
		toks = append(toks, token{kind: tDEDENT, line: lineNo})
	}
	toks = append(toks, token{kind: tEOF, line: lineNo})
	return toks, nil
}

var multiCharOps = []string{
	"**=", "//=", ">>=", "<<=",
	"==", "!=", "<=", ">=", "->", "**", "//", "+=", "-=", "*=", "/=",
	"%=", "&=", "|=", "^=", "<<", ">>", ":=",
}

func lexLine(s string, lineNo int, parenDepth int) ([]token, int, error) {
	var toks []token
	i := 0
	n := len(s)
	for i < n {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '#':
			i = n
		case c == '(' || c == '[' || c == '{':
			parenDepth++
			toks = append(toks, token{kind: tOP, lit: string(c), line: lineNo})
			i++
		case c == ')' || c == ']' || c == '}':
			if parenDepth > 0 {
				parenDepth--
			}
			toks = append(toks, token{kind: tOP, lit: string(c), line: lineNo})
			i++
		case isDigit(c):
			j := i
			isFloat := false
			for j < n && (isDigit(s[j]) || s[j] == '.' || s[j] == '_' || s[j] == 'e' || s[j] == 'E') {
				if s[j] == '.' || s[j] == 'e' || s[j] == 'E' {
					isFloat = true
				}
				j++
			}
			lit := strings.ReplaceAll(s[i:j], "_", "")
			if isFloat {
				toks = append(toks, token{kind: tFLOAT, lit: lit, line: lineNo})
			} else {
				toks = append(toks, token{kind: tINT, lit: lit, line: lineNo})
			}
			i = j
		case isAlpha(c) || c == '_':
			j := i
			for j < n && (isAlpha(s[j]) || isDigit(s[j]) || s[j] == '_') {
				j++
			}
			word := s[i:j]
			// string prefixes
			if (word == "f" || word == "b" || word == "rb" || word == "fr" || word == "r") && j < n && (s[j] == '"' || s[j] == '\'') {
				str, nj, err := lexString(s, j, lineNo)
				if err != nil {
					return nil, 0, err
				}
				switch word {
				case "f", "fr":
					toks = append(toks, token{kind: tFSTRING, lit: str, line: lineNo})
				case "b", "rb":
					toks = append(toks, token{kind: tBYTES, lit: str, line: lineNo})
				default:
					toks = append(toks, token{kind: tSTRING, lit: str, line: lineNo})
				}
				i = nj
				continue
			}
			if keywords[word] {
				toks = append(toks, token{kind: tKEYWORD, lit: word, line: lineNo})
			} else {
				toks = append(toks, token{kind: tNAME, lit: word, line: lineNo})
			}
			i = j
		case c == '"' || c == '\'':
			str, nj, err := lexString(s, i, lineNo)
			if err != nil {
				return nil, 0, err
			}
			toks = append(toks, token{kind: tSTRING, lit: str, line: lineNo})
			i = nj
		default:
			matched := false
			for _, op := range multiCharOps {
				if strings.HasPrefix(s[i:], op) {
					toks = append(toks, token{kind: tOP, lit: op, line: lineNo})
					i += len(op)
					matched = true
					break
				}
			}
			if matched {
				continue
			}
			toks = append(toks, token{kind: tOP, lit: string(c), line: lineNo})
			i++
		}
	}
	return toks, parenDepth, nil
}

// lexString handles both ''' triple-quoted (single line only, since our
// input model is line-oriented) and regular quoted strings with \n \t \r
// \\ \' \" \0 escapes. Any other escape, \xHH included, is kept verbatim
// (backslash and following character).
func lexString(s string, start int, lineNo int) (string, int, error) {
	quote := s[start]
	i := start + 1
	triple := false
	if i+1 < len(s) && s[i] == quote && s[i+1] == quote {
		triple = true
		i += 2
	}
	var sb strings.Builder
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			esc := s[i+1]
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '\'':
				sb.WriteByte('\'')
			case '"':
				sb.WriteByte('"')
			case '0':
				sb.WriteByte(0)
			default:
				sb.WriteByte('\\')
				sb.WriteByte(esc)
			}
			i += 2
			continue
		}
		if triple {
			if s[i] == quote && i+2 < len(s)+1 && i+1 < len(s) && s[i+1] == quote && i+2 < len(s) && s[i+2] == quote {
				return sb.String(), i + 3, nil
			}
		} else if s[i] == quote {
			return sb.String(), i + 1, nil
		}
		sb.WriteByte(s[i])
		i++
	}
	if triple {
		return sb.String(), i, nil
	}
	return "", 0, fmt.Errorf("line %d: unterminated string literal", lineNo)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
