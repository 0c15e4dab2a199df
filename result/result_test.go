package result

import (
	"errors"
	"strconv"
	"testing"
)

func TestOk(t *testing.T) {
	values := []any{0, "", "value", 42, nil, struct{}{}}

	for _, v := range values {
		r := Ok[any, error](v)
		if !r.IsSuccess() {
			t.Errorf("Ok(%v).IsSuccess() = false, want true", v)
		}
		if r.IsFailure() {
			t.Errorf("Ok(%v).IsFailure() = true, want false", v)
		}
		if r.Value() != v {
			t.Errorf("Ok(%v).Value() = %v", v, r.Value())
		}
		if r.Err() != nil {
			t.Errorf("Ok(%v).Err() = %v, want nil", v, r.Err())
		}
	}
}

func TestFail(t *testing.T) {
	failures := []error{errors.New("boom"), nil}

	for _, e := range failures {
		r := Fail[int, error](e)
		if !r.IsFailure() {
			t.Errorf("Fail(%v).IsFailure() = false, want true", e)
		}
		if r.IsSuccess() {
			t.Errorf("Fail(%v).IsSuccess() = true, want false", e)
		}
		if r.Err() != e {
			t.Errorf("Fail(%v).Err() = %v", e, r.Err())
		}
		if r.Value() != 0 {
			t.Errorf("Fail(%v).Value() = %d, want zero", e, r.Value())
		}
	}
}

func TestZeroResultIsFailure(t *testing.T) {
	var r Result[string, string]
	if r.IsSuccess() {
		t.Error("zero Result should not be a success")
	}
	if r.Value() != "" || r.Err() != "" {
		t.Errorf("zero Result holds %q / %q, want zero values", r.Value(), r.Err())
	}
}

func TestGet(t *testing.T) {
	v, e := Ok[string, string]("a").Get()
	if v != "a" || e != "" {
		t.Errorf("Get() = (%q, %q), want (a, \"\")", v, e)
	}

	v, e = Fail[string, string]("bad").Get()
	if v != "" || e != "bad" {
		t.Errorf("Get() = (%q, %q), want (\"\", bad)", v, e)
	}
}

func TestMap(t *testing.T) {
	r := Map(Ok[int, string](7), strconv.Itoa)
	if !r.IsSuccess() || r.Value() != "7" {
		t.Errorf("Map(Ok(7)) = %+v, want Ok(\"7\")", r)
	}

	called := false
	f := Map(Fail[int, string]("nope"), func(i int) string {
		called = true
		return ""
	})
	if called {
		t.Error("Map should not call fn on failure")
	}
	if !f.IsFailure() || f.Err() != "nope" {
		t.Errorf("Map(Fail) = %+v, want Fail(nope)", f)
	}
}
