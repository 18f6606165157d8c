package asm

import (
	"testing"
)

func TestSourceErrorAnnotated(t *testing.T) {
	const src = "\tx = eidx\n\ty = frob x, 1\n\tz = add y, w\n"

	tests := []struct {
		name string
		err  *SourceError
		want string
	}{
		{
			"opcode",
			&SourceError{Message: `unknown opcode "frob"`, Pos: Position{Line: 2, Column: 6}, File: "a.vir", Source: src},
			"a.vir:2:6: unknown opcode \"frob\"\n\t\ty = frob x, 1\n\t\t    ^~~~\n",
		},
		{
			"last operand",
			&SourceError{Message: `value "w" used before it is written`, Pos: Position{Line: 3, Column: 13}, Source: src},
			"3:13: value \"w\" used before it is written\n\t\tz = add y, w\n\t\t           ^\n",
		},
		{
			"past the end",
			&SourceError{Message: "expected operand", Pos: Position{Line: 1, Column: 10}, Source: src},
			"1:10: expected operand\n\t\tx = eidx\n\t\t        ^\n",
		},
		{
			"no source",
			&SourceError{Message: "no stage", Pos: Position{Line: 1, Column: 1}, File: "a.vir"},
			"a.vir:1:1: no stage\n",
		},
		{
			"no position",
			&SourceError{Message: "empty program", Source: src},
			"empty program\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Annotated(); got != tt.want {
				t.Errorf("Annotated() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestSourceErrorsAnnotated(t *testing.T) {
	const src = "\tz = add y, w\n\tq = bogus 2\n"
	errs := SourceErrors{
		{Message: `value "y" used before it is written`, Pos: Position{Line: 1, Column: 10}, File: "b.vir", Source: src},
		{Message: `value "w" used before it is written`, Pos: Position{Line: 1, Column: 13}, File: "b.vir", Source: src},
		{Message: `unknown opcode "bogus"`, Pos: Position{Line: 2, Column: 6}, File: "b.vir", Source: src},
	}

	want := "b.vir:1:10: value \"y\" used before it is written\n" +
		"b.vir:1:13: value \"w\" used before it is written\n" +
		"\t\tz = add y, w\n" +
		"\t\t        ^  ^\n" +
		"b.vir:2:6: unknown opcode \"bogus\"\n" +
		"\t\tq = bogus 2\n" +
		"\t\t    ^~~~~\n"
	if got := errs.Annotated(); got != want {
		t.Errorf("Annotated() =\n%s\nwant\n%s", got, want)
	}

	if got, want := errs.Error(), `b.vir:1:10: value "y" used before it is written (+2 more)`; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if got := (SourceErrors{}).Error(); got != "no errors" {
		t.Errorf("empty Error() = %q", got)
	}
}
