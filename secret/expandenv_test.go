package secret

import (
	"errors"
	"reflect"
	"testing"
)

func TestExpandEnvStrict_MissingVarErrors(t *testing.T) {
	t.Setenv("PRESENT", "ok")

	_, err := ExpandEnvStrict("a=${PRESENT} b=${MISSING_B} c=${MISSING_A} d=${MISSING_B}")
	if !errors.Is(err, ErrMissingEnv) {
		t.Fatalf("err = %v, want ErrMissingEnv", err)
	}
	var me *MissingEnvError
	if !errors.As(err, &me) {
		t.Fatalf("err = %T, want *MissingEnvError", err)
	}
	if !reflect.DeepEqual(me.Keys, []string{"MISSING_A", "MISSING_B"}) {
		t.Errorf("Keys = %v", me.Keys)
	}
}

func TestExpandEnvStrict_DollarEscape(t *testing.T) {
	t.Setenv("X", "y")

	out, err := ExpandEnvStrict("$$${X}")
	if err != nil {
		t.Fatalf("ExpandEnvStrict() error = %v", err)
	}
	if out != "$y" {
		t.Fatalf("ExpandEnvStrict() = %q, want %q", out, "$y")
	}
}

func TestExpandEnvStrict_PlainPassThrough(t *testing.T) {
	out, err := ExpandEnvStrict("https://api.example/v1")
	if err != nil || out != "https://api.example/v1" {
		t.Errorf("ExpandEnvStrict() = (%q, %v)", out, err)
	}
}
