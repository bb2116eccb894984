package depgraph

import (
	"strings"
	"testing"

	"github.com/quarrydev/quarry/pkg/gem"
	"github.com/quarrydev/quarry/pkg/source"
)

func testIndex(t *testing.T) *gem.Index {
	t.Helper()
	src, err := source.Parse("https://rubygems.org")
	if err != nil {
		t.Fatal(err)
	}
	b := gem.NewBuilder(src)
	err = b.AddAll([]gem.RawEntry{
		{Name: "rails", Version: "7.1.2", DepsKnown: true, Dependencies: []gem.RawDependency{
			{Name: "rack", Requirements: ">= 2.2.4"},
			{Name: "thor", Requirements: "~> 1.0"},
		}},
		{Name: "rack", Version: "3.0.8", DepsKnown: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	return b.Index()
}

func TestToDOT(t *testing.T) {
	dot := ToDOT(testIndex(t), Options{})

	for _, want := range []string{
		`"rails" [label="rails"];`,
		`"rack" [label="rack"];`,
		`"rails" -> "rack";`,
		`"rails" -> "thor";`,
		// thor was never fetched, so its node is dashed.
		`"thor" [style="rounded,dashed"];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}

func TestToDOTDetailed(t *testing.T) {
	dot := ToDOT(testIndex(t), Options{Detailed: true})
	if !strings.Contains(dot, "rack\\n3.0.8") {
		t.Errorf("detailed label missing version:\n%s", dot)
	}
}
