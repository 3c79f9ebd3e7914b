package exp

import "testing"

func TestRefInfoRoundTrip(t *testing.T) {
	cases := []RefInfo{
		{BaselineSHA: "1a2b3c4", ExpSHA: "d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3"},
		{BaselineSHA: "0000000", ExpSHA: "abc123", Checkpoint: true},
	}
	for _, want := range cases {
		got, ok := ParseRef(want.Ref())
		if !ok {
			t.Fatalf("ParseRef(%q) not ok", want.Ref())
		}
		if got != want {
			t.Errorf("round trip: got %+v, want %+v", got, want)
		}
	}
}

func TestParseRefRejects(t *testing.T) {
	bad := []string{
		"refs/heads/main",
		"refs/braid/stash",
		"refs/braid/exec/HEAD",
		"refs/braid/exec/1a2b3c4-abc123",  // nested under exec
		"refs/braid/1a2b3c-abc123",        // 6-hex baseline
		"refs/braid/1a2b3c4-",             // empty exp hash
		"refs/braid/1a2b3c4-ABC123",       // uppercase hex
		"refs/braid/1a2b3c4-abc123-stale", // unknown suffix
	}
	for _, ref := range bad {
		if info, ok := ParseRef(ref); ok {
			t.Errorf("ParseRef(%q) = %+v, want rejection", ref, info)
		}
	}
}

func TestRefInfoName(t *testing.T) {
	info := RefInfo{BaselineSHA: "1a2b3c4", ExpSHA: "abc123", Checkpoint: true}
	if got, want := info.Name(), "1a2b3c4-abc123-checkpoint"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
}
