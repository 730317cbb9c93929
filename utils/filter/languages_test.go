package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguages(t *testing.T) {
	tests := []struct {
		title string
		want  []string
	}{
		{"Foo.FRENCH.1080p", []string{"fr"}},
		{"Foo.2020.VOSTFR.WEB", []string{"fr"}},
		{"Foo.VFF.1080p", []string{"fr"}},
		{"Pelicula.LATINO.1080p", []string{"es"}},
		{"Film.GERMAN.DL.1080p", []string{"de"}},
		{"Foo.ITA.ENG.1080p", []string{"it", "en"}},
		{"Film.Dublado.720p", []string{"pt"}},
		{"Serial.Lektor.PL", []string{"pl"}},
		{"Foo.1080p.WEB.x264", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, DetectLanguages(tt.title))
		})
	}
}

func TestMatchesLanguagesEnglishOnly(t *testing.T) {
	selected := []string{"en"}
	tests := []struct {
		title string
		pass  bool
	}{
		{"Foo.FRENCH.1080p", false},
		{"Foo.1080p", true},
		{"Foo.MULTI.VOSTFR", false},
		{"Foo.ENG.1080p", true},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := MatchesLanguages(tt.title, selected); got != tt.pass {
				t.Errorf("MatchesLanguages(%q, en) = %v, want %v", tt.title, got, tt.pass)
			}
		})
	}
}

func TestMatchesLanguagesNoneSelected(t *testing.T) {
	for _, title := range []string{"Foo.FRENCH.1080p", "Foo.1080p", "Foo.MULTI"} {
		if !MatchesLanguages(title, nil) {
			t.Errorf("empty selection must pass all titles, rejected %q", title)
		}
	}
}

func TestMatchesLanguagesMixedSelection(t *testing.T) {
	// fr selected without en: keep French-tagged, drop plain-English titles.
	if !MatchesLanguages("Foo.FRENCH.1080p", []string{"fr"}) {
		t.Error("French title should pass a fr selection")
	}
	if MatchesLanguages("Foo.1080p", []string{"fr"}) {
		t.Error("untagged title should be dropped when only fr is selected")
	}
	// fr+en: both pass.
	if !MatchesLanguages("Foo.FRENCH.1080p", []string{"fr", "en"}) {
		t.Error("French title should pass a fr+en selection")
	}
	if !MatchesLanguages("Foo.1080p", []string{"fr", "en"}) {
		t.Error("untagged title should pass a fr+en selection")
	}
}

// Growing a selection that includes English never shrinks the kept set.
func TestLanguageMonotonicity(t *testing.T) {
	titles := []string{
		"Foo.FRENCH.1080p",
		"Foo.1080p",
		"Foo.GERMAN.720p",
		"Foo.ITA.2160p",
		"Foo.SPANISH.LATINO.1080p",
	}
	small := FilterByLanguages(titles, []string{"en", "fr"})
	large := FilterByLanguages(titles, []string{"en", "fr", "de"})

	kept := make(map[string]struct{}, len(large))
	for _, title := range large {
		kept[title] = struct{}{}
	}
	for _, title := range small {
		if _, ok := kept[title]; !ok {
			t.Errorf("title %q kept by subset selection but dropped by superset", title)
		}
	}
}
