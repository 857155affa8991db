package header

import (
	"reflect"
	"testing"
)

var nonLatin = []string{"ar", "ru", "zh", "am", "ti", "my", "ka", "uk", "ps", "fa", "ku", "hy", "th", "km", "lo"}

func TestCodeHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		level   int
		want    []string
	}{
		{"standard", []string{"ADM0_EN", "ADM1_EN", "ADM1_PCODE", "F_TL"}, 1, []string{"ADM1_PCODE"}},
		{"admin prefix no underscore", []string{"admin2code", "admin2Name_en"}, 2, []string{"admin2code"}},
		{"admin prefix pcode", []string{"admin1Pcode"}, 1, []string{"admin1Pcode"}},
		{"other level ignored", []string{"ADM1_PCODE", "ADM2_PCODE"}, 2, []string{"ADM2_PCODE"}},
		{"level 10 is not level 1", []string{"ADM10_PCODE"}, 1, nil},
		{"missing", []string{"ADM1_EN", "T_TL"}, 1, nil},
		{"ambiguous", []string{"ADM1_PCODE", "ADM1_PCODE_OLD"}, 1, []string{"ADM1_PCODE", "ADM1_PCODE_OLD"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CodeHeaders(tt.headers, tt.level)
			if !reflect.DeepEqual(got.Headers, tt.want) {
				t.Errorf("CodeHeaders = %v, want %v", got.Headers, tt.want)
			}
		})
	}
}

func TestCodeHeaders_Outcome(t *testing.T) {
	if got := CodeHeaders([]string{"F_TL"}, 1).Outcome(); got != None {
		t.Errorf("outcome = %v, want none", got)
	}
	m := CodeHeaders([]string{"ADM1_PCODE", "adm1code"}, 1)
	if m.Outcome() != Many || m.Count() != 2 || m.Header() != "" {
		t.Errorf("ambiguous match = %+v (outcome %v)", m, m.Outcome())
	}
}

func TestNameHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers []string
		level   int
		want    []string
	}{
		{"single name", []string{"ADM1_NAME", "ADM1_PCODE"}, 1, []string{"ADM1_NAME"}},
		{"single language", []string{"ADM1_FR", "ADM1_PCODE"}, 1, []string{"ADM1_FR"}},
		{"fused name", []string{"admin1Name"}, 1, []string{"admin1Name"}},
		{"name_n form", []string{"name_2", "name1"}, 2, []string{"name_2"}},
		{"english wins", []string{"ADM1_FR", "ADM1_EN", "ADM1_AR"}, 1, []string{"ADM1_EN"}},
		{"latin over arabic", []string{"ADM1_AR", "ADM1_FR"}, 1, []string{"ADM1_FR"}},
		{"latin over name", []string{"ADM1_NAME", "ADM1_ES"}, 1, []string{"ADM1_ES"}},
		{"several latin stay ambiguous", []string{"ADM1_FR", "ADM1_ES", "ADM1_AR"}, 1, []string{"ADM1_FR", "ADM1_ES"}},
		{"two english fall through", []string{"ADM1_EN", "admin1Name_en"}, 1, []string{"ADM1_EN", "admin1Name_en"}},
		{"only non latin", []string{"ADM1_AR", "ADM1_RU"}, 1, []string{"ADM1_AR", "ADM1_RU"}},
		{"pcode is not a name", []string{"ADM1_PCODE"}, 1, nil},
		{"reference name is not a name", []string{"ADM1_REF"}, 1, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NameHeaders(tt.headers, tt.level, nonLatin)
			if !reflect.DeepEqual(got.Headers, tt.want) {
				t.Errorf("NameHeaders = %v, want %v", got.Headers, tt.want)
			}
		})
	}
}

func TestClassifyAdmin(t *testing.T) {
	headers := []string{"ADM0_EN", "ADM0_PCODE", "ADM1_EN", "ADM1_PCODE", "ADM2_EN", "ADM2_PCODE", "ADM3_EN", "ADM3_PCODE", "T_TL"}
	ah := ClassifyAdmin(headers, 3, nonLatin)
	if len(ah.Codes) != 3 || len(ah.Names) != 3 {
		t.Fatalf("levels = %d codes, %d names, want 3 each", len(ah.Codes), len(ah.Names))
	}
	for l := 1; l <= 3; l++ {
		if ah.Codes[l].Outcome() != One || ah.Names[l].Outcome() != One {
			t.Errorf("level %d: codes %v names %v", l, ah.Codes[l].Headers, ah.Names[l].Headers)
		}
	}
	if got := ah.Codes[2].Header(); got != "ADM2_PCODE" {
		t.Errorf("level 2 code = %q", got)
	}
}

func TestClassify(t *testing.T) {
	headers := []string{"ADM0_EN", "ADM0_PCODE", "ADM1_FR", "ADM1_PCODE", "year", "F_TL", "M_TL", "T_TL", "F_4045"}
	c := Classify(headers, 1, nonLatin)

	wantPop := []string{"F_TL", "M_TL", "T_TL", "F_4045"}
	if !reflect.DeepEqual(c.Population, wantPop) {
		t.Errorf("Population = %v, want %v", c.Population, wantPop)
	}
	wantUnrecognized := []string{"ADM0_EN", "ADM0_PCODE", "year"}
	if !reflect.DeepEqual(c.Unrecognized, wantUnrecognized) {
		t.Errorf("Unrecognized = %v, want %v", c.Unrecognized, wantUnrecognized)
	}
}

func TestResourceYears(t *testing.T) {
	tests := []struct {
		name string
		want []int
	}{
		{"caf_admpop_adm1_2015_v2.csv", []int{2015}},
		{"cod_admpop_adm0_2020.csv", []int{2020}},
		{"pop_2015_2019_adm2.csv", []int{2015, 2019}},
		{"adm1_20150101.csv", nil},
		{"adm1_1999.csv", nil},
		{"adm1.csv", nil},
	}
	for _, tt := range tests {
		if got := ResourceYears(tt.name); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ResourceYears(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	if y, ok := ResourceYear("pop_2015_2019_adm2.csv"); !ok || y != 2015 {
		t.Errorf("ResourceYear = %d, %v, want 2015, true", y, ok)
	}
	if _, ok := ResourceYear("adm2.csv"); ok {
		t.Error("ResourceYear(adm2.csv) should find nothing")
	}
}
