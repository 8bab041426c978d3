package engine

import "testing"

func noopFactory(Context, Params) (Strategy, error) {
	return &stubStrategy{}, nil
}

func TestRegistryRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register("", noopFactory, nil); err == nil {
		t.Fatal("expected error for empty name")
	}

	if err := reg.Register("x", nil, nil); err == nil {
		t.Fatal("expected error for nil factory")
	}

	if err := reg.Register("x", noopFactory, nil); err != nil {
		t.Fatal(err)
	}

	if err := reg.Register("x", noopFactory, nil); err == nil {
		t.Fatal("expected error for duplicate name")
	}
}

func TestRegistryNamesSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		reg.MustRegister(name, noopFactory, nil)
	}

	names := reg.Names()
	want := []string{"alpha", "mid", "zeta"}

	if len(names) != len(want) {
		t.Fatalf("names: got %v want %v", names, want)
	}

	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names: got %v want %v", names, want)
		}
	}
}

func TestRegistryLookupMissing(t *testing.T) {
	reg := NewRegistry()
	if reg.Lookup("missing") != nil {
		t.Fatal("expected nil factory for unknown name")
	}
}

func TestRegistryDefaults(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister("with", noopFactory, func() Params {
		return Params{Num: map[string]float64{"k": 7}}
	})
	reg.MustRegister("without", noopFactory, nil)

	defaults := reg.Defaults()

	if got := defaults["with"].GetNum("k", 0); got != 7 {
		t.Fatalf("defaults[with]: got %v want 7", got)
	}

	if defaults["without"].Num != nil {
		t.Fatal("defaults[without] should be empty")
	}
}
