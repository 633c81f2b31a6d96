package analyses

import "testing"

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"analysis":  ModeAnalysis,
		" ANALYSIS": ModeAnalysis,
		"job_desc":  ModeJobDesc,
		"JOB_MATCH": ModeJobDesc,
	}
	for raw, want := range cases {
		got, err := ParseMode(raw)
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseMode(%q) = %q, want %q", raw, got, want)
		}
	}
	for _, raw := range []string{"", "ats", "rewrite"} {
		if _, err := ParseMode(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
