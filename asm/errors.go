package asm

import (
	"fmt"
	"strings"
)

// SourceError is a diagnostic at a line and column of assembler source.
// Source is optional; without it the error cannot quote its line.
type SourceError struct {
	Message string
	Pos     Position
	File    string
	Source  string
}

func (e *SourceError) Error() string {
	if e.Pos.Line == 0 {
		return e.Message
	}
	return e.location() + ": " + e.Message
}

func (e *SourceError) location() string {
	loc := fmt.Sprintf("%d:%d", e.Pos.Line, e.Pos.Column)
	if e.File != "" {
		loc = e.File + ":" + loc
	}
	return loc
}

// line returns the source line the error points at.
func (e *SourceError) line() (string, bool) {
	if e.Source == "" || e.Pos.Line == 0 {
		return "", false
	}
	lines := strings.Split(e.Source, "\n")
	if e.Pos.Line > len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[e.Pos.Line-1], "\r"), true
}

// Annotated returns the error followed by its source line and a marker
// under the operand at the error column.
func (e *SourceError) Annotated() string {
	line, ok := e.line()
	if !ok {
		return e.Error() + "\n"
	}
	return fmt.Sprintf("%s\n\t%s\n\t%s\n", e.Error(), line, markOperand(nil, line, e.Pos.Column))
}

func operandEnd(c byte) bool {
	return c == ' ' || c == '\t' || c == ',' || c == '#'
}

// markOperand overlays onto marks a caret at column col of line and
// tildes under the rest of the operand starting there. Tabs before the
// operand are kept so the marker lines up with the line as printed.
func markOperand(marks []byte, line string, col int) []byte {
	start := min(max(col, 1), len(line)+1) - 1
	end := start + 1
	for end < len(line) && !operandEnd(line[end]) {
		end++
	}

	for len(marks) < end {
		i := len(marks)
		if i < len(line) && line[i] == '\t' {
			marks = append(marks, '\t')
		} else {
			marks = append(marks, ' ')
		}
	}
	for i := start; i < end; i++ {
		if i == start {
			marks[i] = '^'
		} else if marks[i] != '^' {
			marks[i] = '~'
		}
	}
	return marks
}

// SourceErrors is the list of errors found in one assembler source, in
// source order.
type SourceErrors []*SourceError

func (el SourceErrors) Error() string {
	switch len(el) {
	case 0:
		return "no errors"
	case 1:
		return el[0].Error()
	}
	return fmt.Sprintf("%s (+%d more)", el[0].Error(), len(el)-1)
}

// Annotated returns every error with its source line. Errors on the same
// line share one quote of it and one marker line.
func (el SourceErrors) Annotated() string {
	var sb strings.Builder
	for i := 0; i < len(el); {
		j := i + 1
		for j < len(el) && el[j].File == el[i].File && el[j].Pos.Line == el[i].Pos.Line && el[i].Pos.Line != 0 {
			j++
		}

		line, ok := el[i].line()
		var marks []byte
		for _, e := range el[i:j] {
			sb.WriteString(e.Error())
			sb.WriteByte('\n')
			if ok {
				marks = markOperand(marks, line, e.Pos.Column)
			}
		}
		if ok {
			fmt.Fprintf(&sb, "\t%s\n\t%s\n", line, marks)
		}
		i = j
	}
	return sb.String()
}
