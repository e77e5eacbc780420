package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseVerify,
				Kind:   KindTypeMismatch,
				Method: "Program.Main",
				Path:   []string{"if", "then", "call"},
				Type:   "string",
				Detail: "expected int32",
			},
			contains: []string{"[verify]", "type_mismatch", "Program.Main", "if.then.call", "string", "expected int32"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseVerify,
				Kind:  KindStackUnderflow,
			},
			contains: []string{"[verify]", "stack_underflow"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseCompile,
				Kind:   KindInternal,
				Detail: "internal compiler error",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[compile]", "internal", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := StackUnderflow(1, 0)
	err := Internal("M", cause)

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}

	var target *Error
	if !errors.As(err.Cause, &target) || !target.IsVerification() {
		t.Errorf("cause should be a verification error, got %v", err.Cause)
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseVerify,
		Kind:  KindStackMismatch,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseVerify, Kind: KindStackMismatch}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseFlush, Kind: KindStackMismatch}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseVerify, Kind: KindStackUnderflow}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(Internal("M", err), &Error{Phase: PhaseVerify, Kind: KindStackMismatch}) {
		t.Error("errors.Is should see through the internal wrapper")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLower, KindUnsupported).
		Path("binary", "left").
		Method("C.F").
		Type("bool").
		Value(42).
		Cause(cause).
		Detail("operator %s on %s", "shl", "bool").
		Build()

	if err.Phase != PhaseLower {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseLower)
	}
	if err.Kind != KindUnsupported {
		t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
	}
	if len(err.Path) != 2 || err.Path[0] != "binary" {
		t.Errorf("Path = %v", err.Path)
	}
	if err.Method != "C.F" || err.Type != "bool" || err.Value != 42 {
		t.Errorf("Method=%q Type=%q Value=%v", err.Method, err.Type, err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "operator shl on bool" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		err   *Error
		phase Phase
		kind  Kind
		name  string
	}{
		{StackUnderflow(2, 1), PhaseVerify, KindStackUnderflow, "StackUnderflow"},
		{StackMismatch("if/else", 1, 2), PhaseVerify, KindStackMismatch, "StackMismatch"},
		{TypeMismatch(nil, "int32", "string"), PhaseVerify, KindTypeMismatch, "TypeMismatch"},
		{Unsupported(PhaseLower, "x"), PhaseLower, KindUnsupported, "Unsupported"},
		{InvalidScope("continue at method scope"), PhaseVerify, KindInvalidScope, "InvalidScope"},
		{InvalidState(PhaseEmit, "flushed"), PhaseEmit, KindInvalidState, "InvalidState"},
		{UnresolvedLabels(2, []string{"branch", "switch"}), PhaseFlush, KindUnresolvedLabel, "UnresolvedLabels"},
		{InvalidData(PhaseParse, nil, "bad"), PhaseParse, KindInvalidData, "InvalidData"},
		{NotFound(PhaseParse, "method", "Main"), PhaseParse, KindNotFound, "NotFound"},
		{ParseFailed("ir", errors.New("eof")), PhaseParse, KindInvalidData, "ParseFailed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase || tt.err.Kind != tt.kind {
				t.Errorf("got [%s] %s, want [%s] %s", tt.err.Phase, tt.err.Kind, tt.phase, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}

	if !strings.Contains(StackUnderflow(2, 1).Detail, "depth 1") {
		t.Errorf("StackUnderflow detail = %q", StackUnderflow(2, 1).Detail)
	}
	if UnresolvedLabels(3, nil).Value != 3 {
		t.Error("UnresolvedLabels should carry the count")
	}
}
