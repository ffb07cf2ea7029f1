package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{"config parse", CodeConfigParse, "Invalid configuration file", CategoryConfig},
		{"unknown store", CodeUnknownStore, "Unknown snapshot store", CategoryStore},
		{"connect", CodeConnect, "Cannot connect to live endpoint", CategoryTransport},
		{"unknown code", "L999", "Unknown error", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestErrorString(t *testing.T) {
	err := New(CodeConfigInvalid).WithField("server.heartbeatInterval").Wrap(fmt.Errorf("must be positive"))
	want := "L003: Invalid configuration value (server.heartbeatInterval): must be positive"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
	if got := Newf(CategoryCLI, "flag %q", "addr").Error(); got != `flag "addr"` {
		t.Fatalf("Newf().Error() = %q", got)
	}
}

func TestUnwrapAndIs(t *testing.T) {
	err := fmt.Errorf("load: %w", New(CodeConfigRead).Wrap(fs.ErrPermission))
	if !stderrors.Is(err, fs.ErrPermission) {
		t.Fatal("errors.Is did not reach the wrapped cause")
	}
	if !stderrors.Is(err, New(CodeConfigRead)) {
		t.Fatal("errors.Is did not match by code")
	}
	if stderrors.Is(err, New(CodeConfigParse)) {
		t.Fatal("errors.Is matched a different code")
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, CodeListen) != nil {
		t.Fatal("FromError(nil) != nil")
	}
	orig := New(CodeUnknownKind)
	if got := FromError(fmt.Errorf("wrap: %w", orig), CodeListen); got != orig {
		t.Fatal("FromError did not return the existing *Error")
	}
	cause := stderrors.New("address in use")
	got := FromError(cause, CodeListen)
	if got.Code != CodeListen || got.Wrapped != cause {
		t.Fatalf("FromError() = %+v", got)
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	out := New(CodeUnknownStore).
		WithField("store.backend").
		Wrap(stderrors.New(`"redis"`)).
		WithSuggestion("use memory, sqlite or s3").
		Format()

	for _, want := range []string{
		"ERROR L010: Unknown snapshot store (store.backend)",
		"The store backend must be one of: memory, sqlite, s3.",
		`Cause: "redis"`,
		"Hint: use memory, sqlite or s3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Error("Format() has ANSI codes with colors disabled")
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("aaa bbb ccc ddd", 7)
	if len(lines) != 2 || lines[0] != "aaa bbb" || lines[1] != "ccc ddd" {
		t.Fatalf("wrapText() = %q", lines)
	}
	if wrapText("", 10) != nil {
		t.Fatal("wrapText(\"\") != nil")
	}
}
