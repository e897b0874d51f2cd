package journey

import "testing"

func assertStateShape(t *testing.T, primary, secondary string) {
	t.Helper()
	if len(primary) != len(secondary) {
		t.Fatalf("primary/secondary length mismatch: %d vs %d", len(primary), len(secondary))
	}
	for i := range primary {
		filled := primary[i] != '#'
		marked := secondary[i] == '1'
		if filled != marked {
			t.Fatalf("position %d: primary=%q secondary=%q not aligned", i, primary[i], secondary[i])
		}
		if !filled && secondary[i] != '0' {
			t.Fatalf("position %d: expected secondary '0' for empty cell, got %q", i, secondary[i])
		}
	}
}

func TestGenerateState_Shape(t *testing.T) {
	primary, secondary := generateState(185, 0.1)
	assertStateShape(t, primary, secondary)
}

func TestMutateState_PreservesShapeUnderRepeatedMutation(t *testing.T) {
	primary, secondary := generateState(185, 0.1)
	for i := 0; i < 1000; i++ {
		primary, secondary = mutateState(primary, secondary)
		assertStateShape(t, primary, secondary)
	}
}

func TestMutateState_ChangesAtMostFivePositions(t *testing.T) {
	primary, secondary := generateState(50, 0.1)
	for i := 0; i < 100; i++ {
		next, nextSecondary := mutateState(primary, secondary)
		changed := 0
		for j := range primary {
			if primary[j] != next[j] {
				changed++
			}
		}
		if changed < 1 || changed > 5 {
			t.Fatalf("expected between 1 and 5 changed positions, got %d", changed)
		}
		primary, secondary = next, nextSecondary
	}
}

func TestCompleteState_FillsEveryPosition(t *testing.T) {
	primary, secondary := completeState(185)
	assertStateShape(t, primary, secondary)
	for i := range primary {
		if primary[i] == '#' {
			t.Fatalf("position %d: expected filled cell, got '#'", i)
		}
		if secondary[i] != '1' {
			t.Fatalf("position %d: expected secondary '1', got %q", i, secondary[i])
		}
	}
}

func TestMutateState_SingleCellNeverPanics(t *testing.T) {
	primary, secondary := generateState(1, 0.1)
	for i := 0; i < 20; i++ {
		primary, secondary = mutateState(primary, secondary)
		assertStateShape(t, primary, secondary)
	}
}
