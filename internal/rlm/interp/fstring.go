package interp

import "fmt"

// parseFString splits an f-string's already-unescaped body into literal
// text segments and `{expr}` segments, parsing each expression segment
// with its own sub-parser.
func parseFString(body string, line int) (Node, error) {
	var parts []Node
	var lit []byte
	i := 0
	for i < len(body) {
		c := body[i]
		if c == '{' {
			if i+1 < len(body) && body[i+1] == '{' {
				lit = append(lit, '{')
				i += 2
				continue
			}
			if len(lit) > 0 {
				parts = append(parts, &StrLit{Val: string(lit)})
				lit = nil
			}
			depth := 1
			j := i + 1
			for j < len(body) && depth > 0 {
				switch body[j] {
				case '{':
					depth++
				case '}':
					depth--
					if depth == 0 {
						continue
					}
				}
				j++
			}
			if depth != 0 {
				return nil, fmt.Errorf("line %d: unterminated f-string expression", line)
			}
			exprSrc := body[i+1 : j]
			// allow an optional !r / !s conversion and :spec suffix, both ignored
			for k := 0; k < len(exprSrc); k++ {
				if exprSrc[k] == '!' || exprSrc[k] == ':' {
					exprSrc = exprSrc[:k]
					break
				}
			}
			sub := &parser{}
			toks, err := lex(exprSrc + "\n")
			if err != nil {
				return nil, err
			}
			sub.toks = toks
			expr, err := sub.parseExprList()
			if err != nil {
				return nil, err
			}
			parts = append(parts, expr)
			i = j + 1
			continue
		}
		if c == '}' && i+1 < len(body) && body[i+1] == '}' {
			lit = append(lit, '}')
			i += 2
			continue
		}
		lit = append(lit, c)
		i++
	}
	if len(lit) > 0 {
		parts = append(parts, &StrLit{Val: string(lit)})
	}
	return &FString{Parts: parts}, nil
}
