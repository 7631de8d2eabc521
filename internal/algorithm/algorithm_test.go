package algorithm

import (
	"errors"
	"testing"
	"time"
)

func TestValidID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		id   string
		want bool
	}{
		{"denoise-v1", true},
		{"x1_", true},
		{"abc", true},
		{"ab", false},
		{"Denoise", false},
		{"-denoise", false},
		{"has space", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidID(tc.id); got != tc.want {
			t.Errorf("ValidID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a, err := New(Spec{ID: "denoise-v1", ImageRef: "registry/denoise:1"}, now)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.Status != StatusRegistered {
		t.Fatalf("expected REGISTERED, got %s", a.Status)
	}
	if a.CPU != DefaultCPU || a.Memory != DefaultMemory || a.DesiredCount != DefaultDesiredCount {
		t.Fatalf("defaults not applied: %+v", a)
	}
	if len(a.Command) != 1 || a.Command[0] != "/app/worker.sh" {
		t.Fatalf("expected default command, got %v", a.Command)
	}
	if a.Env == nil {
		t.Fatal("expected non-nil env map")
	}
}

func TestNewRejectsInvalidSpec(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cases := []Spec{
		{ImageRef: "img"},
		{ID: "denoise-v1"},
		{ID: "BAD ID", ImageRef: "img"},
		{ID: "denoise-v1", ImageRef: "img", CPU: -1},
	}
	for _, spec := range cases {
		if _, err := New(spec, now); !errors.Is(err, ErrInvalidSpec) {
			t.Errorf("New(%+v) error = %v, want ErrInvalidSpec", spec, err)
		}
	}
}

func TestUpdateApplyTo(t *testing.T) {
	t.Parallel()

	a, err := New(Spec{ID: "denoise-v1", ImageRef: "registry/denoise:1"}, time.Now())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	img := "registry/denoise:2"
	cpu := 2048
	u := Update{ImageRef: &img, CPU: &cpu, Env: map[string]string{"MODE": "fast"}}
	if u.IsZero() {
		t.Fatal("update should not be zero")
	}
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	u.ApplyTo(&a)
	if a.ImageRef != img || a.CPU != cpu || a.Env["MODE"] != "fast" {
		t.Fatalf("update not applied: %+v", a)
	}
	if a.Memory != DefaultMemory {
		t.Fatalf("unset field changed: %+v", a)
	}
	if (Update{}).IsZero() != true {
		t.Fatal("empty update must be zero")
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	a, _ := New(Spec{
		ID:       "denoise-v1",
		ImageRef: "img",
		Env:      map[string]string{"K": "v"},
		Tags:     []string{"ct"},
	}, time.Now())
	cp := a.Clone()
	cp.Env["K"] = "changed"
	cp.Tags[0] = "changed"
	if a.Env["K"] != "v" || a.Tags[0] != "ct" {
		t.Fatalf("clone aliases original: %+v", a)
	}
}
