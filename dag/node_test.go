package dag

import (
	"context"
	"testing"
)

func TestProduct(t *testing.T) {
	t.Run("cartesian order matches odometer, last sequence fastest", func(t *testing.T) {
		combos, err := Product(
			[]any{1, 2, 3},
			[]any{"a", "b", "c"},
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := [][2]any{
			{1, "a"}, {1, "b"}, {1, "c"},
			{2, "a"}, {2, "b"}, {2, "c"},
			{3, "a"}, {3, "b"}, {3, "c"},
		}
		if len(combos) != len(want) {
			t.Fatalf("expected %d combos, got %d", len(want), len(combos))
		}
		for i, c := range combos {
			if c[0] != want[i][0] || c[1] != want[i][1] {
				t.Errorf("combo %d = %v, want %v", i, c, want[i])
			}
		}
	})

	t.Run("empty sequence yields zero combos", func(t *testing.T) {
		combos, err := Product([]any{1, 2}, []any{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(combos) != 0 {
			t.Errorf("expected 0 combos, got %d", len(combos))
		}
	})

	t.Run("no sequences is an error", func(t *testing.T) {
		if _, err := Product(); err == nil {
			t.Error("expected error for zero sequences")
		}
	})
}

func TestZip(t *testing.T) {
	t.Run("truncates to shortest sequence", func(t *testing.T) {
		combos, err := Zip(
			[]any{1, 2, 3},
			[]any{"a", "b"},
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(combos) != 2 {
			t.Fatalf("expected 2 combos, got %d", len(combos))
		}
		if combos[0][0] != 1 || combos[0][1] != "a" {
			t.Errorf("combo 0 = %v", combos[0])
		}
		if combos[1][0] != 2 || combos[1][1] != "b" {
			t.Errorf("combo 1 = %v", combos[1])
		}
	})
}

func TestNode_Invoke_RecoversPanic(t *testing.T) {
	n := NewNode("boom", func(ctx context.Context, args map[string]any) (any, error) {
		panic("kaboom")
	})

	_, err := n.invoke(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error from recovered panic, got nil")
	}
}

func TestNode_DefaultPolicy(t *testing.T) {
	n := NewNode("n", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, nil
	})

	if n.IsAsync() || n.OffloadsToWorker() || n.IsSoloRace() || n.IsSecret() || n.HasLoopVars() {
		t.Errorf("expected every default policy flag false, got %+v", n)
	}
}

func TestNode_Options(t *testing.T) {
	n := NewNode("n", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, nil
	}, Async(), OffloadToWorker(), SoloRace(), Secret())

	if !n.IsAsync() {
		t.Error("expected IsAsync true")
	}
	if !n.OffloadsToWorker() {
		t.Error("expected OffloadsToWorker true")
	}
	if !n.IsSoloRace() {
		t.Error("expected IsSoloRace true")
	}
	if !n.IsSecret() {
		t.Error("expected IsSecret true")
	}
}

func TestConst(t *testing.T) {
	n := Const("answer", 42)
	v, err := n.invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("expected 42, got %v", v)
	}
}

func TestSecretConst_IsSecret(t *testing.T) {
	n := SecretConst("token", "abc123")
	if !n.IsSecret() {
		t.Error("expected SecretConst node to be flagged secret")
	}
}
