package extract

import "testing"

func TestRule_Apply(t *testing.T) {
	tests := []struct {
		name   string
		rule   Rule
		text   string
		want   string
		wantOK bool
	}{
		{"colon delimiter", Rule{Field: "Age", Keyword: "Age"}, "Age: 42\n", "42", true},
		{"whitespace delimiter", Rule{Field: "Age", Keyword: "Age"}, "Age 42\nName: x", "42", true},
		{"space before colon", Rule{Field: "Age", Keyword: "Age"}, "Age : 42\n", "42", true},
		{"keyword absent", Rule{Field: "Age", Keyword: "Age"}, "Weight: 70\n", "", false},
		{"case sensitive", Rule{Field: "Age", Keyword: "Age"}, "AGE: 42\n", "", false},
		{"first occurrence wins", Rule{Field: "Age", Keyword: "Age"}, "Age: 42\nAge: 50\n", "42", true},
		{"value runs to line end", Rule{Field: "Name", Keyword: "Name"}, "Name: Ada King\nAge: 1", "Ada King", true},
		{"no terminator", Rule{Field: "HNR", Keyword: "HNR"}, "HNR 21.03", "21.03", true},
		{"empty capture", Rule{Field: "Age", Keyword: "Age"}, "Age:\nName: x", "", true},
		{"first token drops units", Rule{Field: "Hemoglobin", Keyword: "Hemoglobin", FirstToken: true}, "Hemoglobin: 13.5 g/dL\n", "13.5", true},
		{"substring label captures garbage", Rule{Field: "Age", Keyword: "Age"}, "Age of onset: 30\nAge: 42\n", "of onset: 30", true},
		{"keyword inside longer word", Rule{Field: "Age", Keyword: "Age"}, "Agent: Smith\n", "Smith", true},
		{"custom terminator", Rule{Field: "BMI", Keyword: "BMI", Terminator: ";"}, "BMI: 26.6; Age: 31", "26.6", true},
		{"custom delimiter", Rule{Field: "BMI", Keyword: "BMI", Delimiters: "="}, "BMI=26.6\n", "26.6", true},
		{"empty keyword never matches", Rule{Field: "BMI"}, "BMI: 1", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.rule.Apply(tt.text)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Apply(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestScrape_FirstMatchingRulePerField(t *testing.T) {
	rules := []Rule{
		{Field: "Glucose", Keyword: "GLUCOSE, RANDOM", FirstToken: true},
		{Field: "Glucose", Keyword: "Glucose", FirstToken: true},
	}
	rec := Scrape("Glucose (fasting): 90\nGLUCOSE, RANDOM: 140 mg/dL\n", rules)
	if v, _ := rec.Get("Glucose"); v != "140" {
		t.Errorf("Glucose = %q, want value from the earlier rule", v)
	}
	rec = Scrape("Glucose: 90\n", rules)
	if v, _ := rec.Get("Glucose"); v != "90" {
		t.Errorf("Glucose = %q, want fallback rule", v)
	}
}

func TestScrape_DefaultRules(t *testing.T) {
	text := "Lab Report\nName: Ada\nAge: 42 years\nSex: F\nHemoglobin 13.2 g/dL\nMDVP:Fo(Hz): 119.992\nMDVP:Shimmer(dB): 0.426\n"
	rec := Scrape(text, DefaultRules())
	want := map[string]string{
		"Name":         "Ada",
		"Age":          "42",
		"Gender":       "F",
		"Hemoglobin":   "13.2",
		"MDVP_Fo":      "119.992",
		"MDVP_Shimmer": "0.426", // the dB column, not the ratio: prefix match
	}
	for field, w := range want {
		if got, _ := rec.Get(field); got != w {
			t.Errorf("%s = %q, want %q", field, got, w)
		}
	}
	if _, ok := rec.Get("Glucose"); ok {
		t.Error("Glucose should be absent")
	}
}
