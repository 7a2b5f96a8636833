package model

import (
	"math/big"
	"testing"
)

func TestProtocolTag_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "short", in: "test/0.0.1", want: "test/0.0.1"},
		{name: "empty", in: "", want: ""},
		{name: "truncated", in: "0123456789012345678901234567890123456789", want: "01234567890123456789012345678901"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProtocolName(ProtocolTag(tt.in))
			if got != tt.want {
				t.Fatalf("ProtocolName(ProtocolTag(%q)) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestOracle_SetAndHas(t *testing.T) {
	o := &Oracle{}
	if o.Has(Generator) || o.Has(Validator) {
		t.Fatal("fresh oracle should hold no role")
	}

	o.Set(Generator, true, big.NewInt(10))
	if !o.Has(Generator) {
		t.Fatal("expected generator membership")
	}
	if o.Has(Validator) {
		t.Fatal("validator membership should be unaffected")
	}
	if o.Stake(Generator).Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected stake: %s", o.Stake(Generator))
	}

	// returned stake is a copy
	o.Stake(Generator).SetInt64(99)
	if o.GeneratorStake.Int64() != 10 {
		t.Fatal("Stake leaked internal pointer")
	}

	o.Set(Generator, false, nil)
	if o.Has(Generator) {
		t.Fatal("expected generator membership cleared")
	}
	if o.Stake(Generator).Sign() != 0 {
		t.Fatal("expected zero stake after clearing")
	}

	var nilOracle *Oracle
	if nilOracle.Has(Validator) {
		t.Fatal("nil oracle must not hold roles")
	}
}

func TestParseOracleKind(t *testing.T) {
	for _, k := range []OracleKind{Generator, Validator} {
		got, err := ParseOracleKind(k.String())
		if err != nil {
			t.Fatalf("ParseOracleKind(%q): %v", k.String(), err)
		}
		if got != k {
			t.Fatalf("got %v want %v", got, k)
		}
	}
	if _, err := ParseOracleKind("oracle"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if OracleKind(7).Valid() {
		t.Fatal("unknown kind reported valid")
	}
}

func TestTaskStatus_String(t *testing.T) {
	want := map[TaskStatus]string{
		StatusNone:              "None",
		StatusPendingGeneration: "PendingGeneration",
		StatusPendingValidation: "PendingValidation",
		StatusCompleted:         "Completed",
	}
	for s, name := range want {
		if s.String() != name {
			t.Fatalf("%d.String() = %q, want %q", s, s.String(), name)
		}
	}
}

func TestFeeRates_CloneIsDeep(t *testing.T) {
	r := FeeRates{Platform: big.NewInt(1), Generation: big.NewInt(2)}
	c := r.Clone()
	c.Platform.SetInt64(100)
	if r.Platform.Int64() != 1 {
		t.Fatal("Clone shares Platform pointer")
	}
	if c.Validation == nil || c.Validation.Sign() != 0 {
		t.Fatal("nil rate should clone to zero")
	}
}

func TestTask_CloneIsDeep(t *testing.T) {
	task := &Task{Input: []byte("in"), GeneratorFee: big.NewInt(2)}
	c := task.Clone()
	c.Input[0] = 'X'
	c.GeneratorFee.SetInt64(9)
	if string(task.Input) != "in" || task.GeneratorFee.Int64() != 2 {
		t.Fatal("Task.Clone shares memory with the original")
	}
	if c.PlatformFee == nil || c.PlatformFee.Sign() != 0 {
		t.Fatal("nil fee not cloned as zero")
	}
}

func TestValidation_CloneIsDeep(t *testing.T) {
	v := &Validation{Scores: []*big.Int{big.NewInt(1), big.NewInt(2)}}
	c := v.Clone()
	c.Scores[0].SetInt64(5)
	if v.Scores[0].Int64() != 1 {
		t.Fatal("Validation.Clone shares scores with the original")
	}
}
