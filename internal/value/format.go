package value

import "strings"

// Display renders v the way `display` prints it: strings and chars raw.
func Display(v Value) string {
	var sb strings.Builder
	format(&sb, v, false)
	return sb.String()
}

// Write renders v in its read-back form: strings quoted, chars as #'c.
func Write(v Value) string {
	var sb strings.Builder
	format(&sb, v, true)
	return sb.String()
}

func format(sb *strings.Builder, v Value, quoted bool) {
	switch v.Kind {
	case KindNil:
		sb.WriteString("()")
	case KindInteger, KindFloat:
		sb.WriteString(v.Num.String())
	case KindBool:
		if v.B {
			sb.WriteString("#t")
		} else {
			sb.WriteString("#f")
		}
	case KindChar:
		if quoted {
			sb.WriteString("#'")
		}
		sb.WriteRune(v.Ch)
	case KindString:
		if quoted {
			sb.WriteByte('"')
			sb.WriteString(v.Str)
			sb.WriteByte('"')
		} else {
			sb.WriteString(v.Str)
		}
	case KindSymbol:
		sb.WriteString(v.Str)
	case KindPair:
		sb.WriteByte('(')
		cur := v
		for {
			format(sb, cur.Pair.First, quoted)
			rest := cur.Pair.Rest
			if rest.Kind == KindNil {
				break
			}
			if rest.Kind != KindPair {
				sb.WriteString(" . ")
				format(sb, rest, quoted)
				break
			}
			sb.WriteByte(' ')
			cur = rest
		}
		sb.WriteByte(')')
	case KindProcedure:
		name := "anonymous"
		if v.Proc != nil && v.Proc.Name != "" {
			name = v.Proc.Name
		}
		if v.Proc.IsBuiltin() {
			sb.WriteString("#<builtin " + name + ">")
		} else {
			sb.WriteString("#<procedure " + name + ">")
		}
	default:
		sb.WriteString("#<unknown>")
	}
}
