package filing

import "testing"

func TestParseType(t *testing.T) {
	tests := []struct {
		in   string
		want Type
		ok   bool
	}{
		{"10-K", Type10K, true},
		{"10k", Type10K, true},
		{"10 K", Type10K, true},
		{"10-Q", Type10Q, true},
		{"10q", Type10Q, true},
		{"8-K", Type8K, true},
		{"8k", Type8K, true},
		{"S-1", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseType(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSectionTextExcludesTables(t *testing.T) {
	s := Section{
		Blocks: []Block{
			{Kind: TextBlock, Text: "Our business faces risks."},
			{Kind: TableBlock, Text: "Year | Revenue"},
			{Kind: TextBlock, Text: "See item 7 for details."},
		},
	}
	want := "Our business faces risks.\n\nSee item 7 for details."
	if got := s.Text(); got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
	tables := s.Tables()
	if len(tables) != 1 || tables[0] != "Year | Revenue" {
		t.Errorf("Tables() = %v", tables)
	}
}

func TestSectionTextEmpty(t *testing.T) {
	s := Section{Blocks: []Block{{Kind: TableBlock, Text: "only a table"}}}
	if got := s.Text(); got != "" {
		t.Errorf("Text() = %q, want empty", got)
	}
}

func TestLookupItem(t *testing.T) {
	tests := []struct {
		ft       Type
		code     string
		wantName string
		wantOK   bool
	}{
		{Type10K, "1A", "Item 1A - Risk Factors", true},
		{Type10K, "7", "Item 7 - MD&A", true},
		{Type10Q, "P1-2", "Part I Item 2 - MD&A", true},
		{Type8K, "2.02", "Item 2.02 - Earnings Results", true},
		{Type10K, "99", "", false},
	}
	for _, tt := range tests {
		info, ok := LookupItem(tt.ft, tt.code)
		if ok != tt.wantOK {
			t.Errorf("LookupItem(%s, %s) ok = %v, want %v", tt.ft, tt.code, ok, tt.wantOK)
			continue
		}
		if ok && info.Name != tt.wantName {
			t.Errorf("LookupItem(%s, %s).Name = %q, want %q", tt.ft, tt.code, info.Name, tt.wantName)
		}
	}
}

func TestItemCategoriesAreValid(t *testing.T) {
	for _, ft := range Types() {
		for code, info := range Items(ft) {
			if info.Category == "" {
				t.Errorf("%s item %s has no category", ft, code)
				continue
			}
			if !ValidCategory(info.Category) && info.Category != CategoryGeneral {
				t.Errorf("%s item %s has unknown category %q", ft, code, info.Category)
			}
		}
	}
}
