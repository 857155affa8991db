package normalize

import "testing"

func TestFoldAccents(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{"Nana Mambéré", "Nana Mambere"},
		{"Ombella M'Poko", "Ombella M'Poko"},
		{"Haute-Kotto", "Haute-Kotto"},
		{"Ñoño", "Nono"},
		{"Kasaï-Oriental", "Kasai-Oriental"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := FoldAccents(tt.input); got != tt.want {
			t.Errorf("FoldAccents(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRepairLatin1(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		// UTF-8 bytes read as latin-1.
		{"Nana MambÃ©rÃ©", "Nana Mambéré"},
		{"KasaÃ¯", "Kasaï"},
		// Genuine latin-1 text decodes to invalid UTF-8 and is kept.
		{"Mambéré", "Mambéré"},
		{"Bimbo", "Bimbo"},
		// Runes outside latin-1 mean the text was never mis-decoded.
		{"بانغي Bangui", "بانغي Bangui"},
		{"MambÃ©rÃ© Ōita", "MambÃ©rÃ© Ōita"},
	}
	for _, tt := range tests {
		if got := RepairLatin1(tt.input); got != tt.want {
			t.Errorf("RepairLatin1(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestForEncoding(t *testing.T) {
	tests := []struct {
		enc, input, want string
	}{
		{"utf-8", "MambÃ©rÃ©", "MambÃ©rÃ©"},
		{"UTF8", "Mambéré", "Mambéré"},
		{"", "Mambéré", "Mambéré"},
		{"latin-1", "MambÃ©rÃ©", "Mambere"},
		{"latin-1", "Mambéré", "Mambere"},
		{"windows-1252", "Bimbo", "Bimbo"},
		{"utf_8", "Mambéré", "Mambéré"},
		{"ISO_8859_1", "MambÃ©rÃ©", "Mambere"},
		{"windows-1252", "Mambéré", "Mambere"},
		{"windows-1256", "دمشق", "دمشق"},
		{"windows-1256", "بانغي Bangui", "بانغي Bangui"},
	}
	for _, tt := range tests {
		if got := ForEncoding(tt.enc)(tt.input); got != tt.want {
			t.Errorf("ForEncoding(%q)(%q) = %q, want %q", tt.enc, tt.input, got, tt.want)
		}
	}
}

func TestEncodingNames(t *testing.T) {
	tests := []struct {
		enc          string
		utf8, latin1 bool
	}{
		{"", true, false},
		{"UTF-8", true, false},
		{"utf_8", true, false},
		{" utf-8-sig ", true, false},
		{"latin-1", false, true},
		{"ISO_8859_1", false, true},
		{"l1", false, true},
		{"windows-1252", false, false},
		{"windows-1256", false, false},
	}
	for _, tt := range tests {
		if got := IsUTF8(tt.enc); got != tt.utf8 {
			t.Errorf("IsUTF8(%q) = %v, want %v", tt.enc, got, tt.utf8)
		}
		if got := IsLatin1(tt.enc); got != tt.latin1 {
			t.Errorf("IsLatin1(%q) = %v, want %v", tt.enc, got, tt.latin1)
		}
	}
}

func TestHasNonLatin(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"Nana Mambéré", false},
		{"Kasaï-Oriental 2", false},
		{"", false},
		{"دمشق", true},
		{"بانغي Bangui", true},
		{"Москва", true},
	}
	for _, tt := range tests {
		if got := HasNonLatin(tt.input); got != tt.want {
			t.Errorf("HasNonLatin(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}
