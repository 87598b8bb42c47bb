package operator

import "testing"

func TestHashOptionsIsStableAcrossMapKeyOrder(t *testing.T) {
	a := map[string]any{"threshold": -40, "language": "sl"}
	b := map[string]any{"language": "sl", "threshold": -40}

	hashA, err := HashOptions(a)
	if err != nil {
		t.Fatalf("HashOptions: %v", err)
	}
	hashB, err := HashOptions(b)
	if err != nil {
		t.Fatalf("HashOptions: %v", err)
	}
	if hashA != hashB {
		t.Errorf("expected identical hashes regardless of map order, got %s vs %s", hashA, hashB)
	}
}

func TestHashOptionsDiffersOnValueChange(t *testing.T) {
	hashA, err := HashOptions(map[string]any{"threshold": -40})
	if err != nil {
		t.Fatalf("HashOptions: %v", err)
	}
	hashB, err := HashOptions(map[string]any{"threshold": -35})
	if err != nil {
		t.Fatalf("HashOptions: %v", err)
	}
	if hashA == hashB {
		t.Error("expected different hashes for different option values")
	}
}

func TestAlreadyDoneFalseWhenNoOutputs(t *testing.T) {
	done, err := AlreadyDone(func(string, ...string) (bool, error) { return true, nil }, nil, nil)
	if err != nil {
		t.Fatalf("AlreadyDone: %v", err)
	}
	if done {
		t.Error("expected AlreadyDone to be false with no declared outputs")
	}
}

func TestAlreadyDoneTrueWhenAllOutputsFresh(t *testing.T) {
	done, err := AlreadyDone(func(string, ...string) (bool, error) { return true, nil },
		[]string{"out.json"}, []string{"in.json"})
	if err != nil {
		t.Fatalf("AlreadyDone: %v", err)
	}
	if !done {
		t.Error("expected AlreadyDone to be true when every output is fresh")
	}
}

func TestAlreadyDoneFalseWhenAnyOutputStale(t *testing.T) {
	calls := 0
	newerThan := func(path string, _ ...string) (bool, error) {
		calls++
		return path != "stale.json", nil
	}
	done, err := AlreadyDone(newerThan, []string{"fresh.json", "stale.json"}, []string{"in.json"})
	if err != nil {
		t.Fatalf("AlreadyDone: %v", err)
	}
	if done {
		t.Error("expected AlreadyDone to be false when one output is stale")
	}
}
