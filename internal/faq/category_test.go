package faq

import "testing"

func TestMatchCategory(t *testing.T) {
	tests := []struct {
		text     string
		want     Category
		wantHits int
	}{
		{"איך להגדיל מכירות והכנסות", Sales, 2},
		{"קמפיין פרסום בפייסבוק", Marketing, 3},
		{"מה המחיר של המוצר?", Products, 2},
		{"לקוח שלח תלונה", Customers, 2},
		{"יש באג אחרי העדכון", Technical, 2},
		{"תן לי דוח ביצועים", Analytics, 2},
		{"בוקר טוב", General, 0},
		// One hit each: sales wins by table order.
		{"מבצע מוצר", Sales, 1},
	}
	for _, tt := range tests {
		got, hits := MatchCategory(tt.text)
		if got != tt.want || hits != tt.wantHits {
			t.Errorf("MatchCategory(%q) = %s/%d, want %s/%d", tt.text, got, hits, tt.want, tt.wantHits)
		}
	}
}

func TestParseCategoryAndIntent(t *testing.T) {
	for _, c := range Categories {
		if got, err := ParseCategory(string(c)); err != nil || got != c {
			t.Errorf("ParseCategory(%q) = %q, %v", c, got, err)
		}
	}
	if _, err := ParseCategory("shipping"); err == nil {
		t.Error("expected error for unknown category")
	}
	if got, _ := ParseIntent(""); got != IntentGeneral {
		t.Errorf("ParseIntent(\"\") = %q, want general", got)
	}
	if _, err := ParseIntent("upsell"); err == nil {
		t.Error("expected error for unknown intent")
	}
}
