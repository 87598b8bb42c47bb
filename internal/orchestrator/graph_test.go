package orchestrator

import "testing"

func indexOf(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i
		}
	}
	return -1
}

func TestTopoSortRespectsDependencies(t *testing.T) {
	order, err := topoSort(splitStageGraph())
	if err != nil {
		t.Fatalf("topoSort: %v", err)
	}
	for _, dep := range []string{"silence", "transcribe", "diarize"} {
		if indexOf(order, dep) > indexOf(order, "segment") {
			t.Errorf("expected %q before segment, got order %v", dep, order)
		}
	}
	if indexOf(order, "segment") > indexOf(order, "validate") {
		t.Errorf("expected segment before validate, got %v", order)
	}
	if indexOf(order, "validate") > indexOf(order, "align") {
		t.Errorf("expected validate before align, got %v", order)
	}
}

func TestTopoSortIsDeterministic(t *testing.T) {
	first, err := topoSort(splitStageGraph())
	if err != nil {
		t.Fatalf("topoSort: %v", err)
	}
	second, err := topoSort(splitStageGraph())
	if err != nil {
		t.Fatalf("topoSort: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("length mismatch: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("order differs at %d: %v vs %v", i, first, second)
		}
	}
}

func TestTopoSortDetectsCycle(t *testing.T) {
	_, err := topoSort([]stageNode{
		{name: "a", dependsOn: []string{"b"}},
		{name: "b", dependsOn: []string{"a"}},
	})
	if err == nil {
		t.Fatal("expected a cycle error")
	}
}

func TestTopoSortRejectsUnknownDependency(t *testing.T) {
	_, err := topoSort([]stageNode{
		{name: "a", dependsOn: []string{"missing"}},
	})
	if err == nil {
		t.Fatal("expected an unknown-dependency error")
	}
}
