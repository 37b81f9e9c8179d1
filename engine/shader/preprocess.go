package shader

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spaghettifunk/lumen/engine/core"
)

type condFrame struct {
	parentActive bool
	taken        bool
	active       bool
	line         int
}

// Preprocess resolves #define, #undef, #ifdef, #ifndef, #else and #endif
// against defines. Lines in inactive branches are blanked rather than
// dropped so compiler diagnostics keep their line numbers.
func Preprocess(source string, defines []string) (string, error) {
	defined := make(map[string]bool, len(defines))
	for _, d := range defines {
		name, _, _ := strings.Cut(d, "=")
		defined[name] = true
	}

	var out strings.Builder
	var stack []condFrame
	active := true

	scanner := bufio.NewScanner(strings.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		directive, arg := parseDirective(line)

		switch directive {
		case "ifdef", "ifndef":
			cond := defined[arg]
			if directive == "ifndef" {
				cond = !cond
			}
			stack = append(stack, condFrame{parentActive: active, taken: cond, active: active && cond, line: lineNo})
			active = active && cond
		case "else":
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: #else without #ifdef: %w", lineNo, core.ErrShaderCompile)
			}
			top := &stack[len(stack)-1]
			top.active = top.parentActive && !top.taken
			top.taken = true
			active = top.active
		case "endif":
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: #endif without #ifdef: %w", lineNo, core.ErrShaderCompile)
			}
			active = stack[len(stack)-1].parentActive
			stack = stack[:len(stack)-1]
		case "define":
			if active {
				name, _, _ := strings.Cut(arg, " ")
				defined[name] = true
			}
		case "undef":
			if active {
				delete(defined, arg)
			}
		default:
			if active {
				out.WriteString(line)
			}
		}
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("preprocess: %w", err)
	}
	if len(stack) != 0 {
		return "", fmt.Errorf("line %d: unterminated #ifdef: %w", stack[len(stack)-1].line, core.ErrShaderCompile)
	}
	return out.String(), nil
}

// parseDirective recognizes the conditional directives only; #version and
// anything else pass through untouched.
func parseDirective(line string) (string, string) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", ""
	}
	fields := strings.Fields(strings.TrimSpace(trimmed[1:]))
	if len(fields) == 0 {
		return "", ""
	}
	switch fields[0] {
	case "ifdef", "ifndef", "define", "undef":
		if len(fields) < 2 {
			return "", ""
		}
		return fields[0], strings.Join(fields[1:], " ")
	case "else", "endif":
		return fields[0], ""
	}
	return "", ""
}
