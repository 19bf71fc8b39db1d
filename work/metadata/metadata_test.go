package metadata

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"InterstellarNov 5, 24", "Interstellar"},
		{"Good•Movie", "Good"},
		{"Interstellar", "Interstellar"},
		{"The MatrixDec 31, 99", "The Matrix"},
		{"DuneMarch 1, 24", "Dune"},
		{"GoodMovie", "Good Movie"},
		{"  spaced   out  ", "spaced out"},
		{"", ""},
		{"•everything after", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"InterstellarNov 5, 24",
		"Good•Movie",
		"GoodMovie",
		"Plain Title",
		"OppenheimerJul 21, 23 • HD",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestRecordFromResult(t *testing.T) {
	rec := recordFromResult(searchResult{
		Title:       "Interstellar",
		ReleaseDate: "2014-11-05",
		VoteAverage: 8.4,
		PosterPath:  "/abc.jpg",
	}, "https://api.themoviedb.org/3")

	if rec.Title != "Interstellar" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.Year != 2014 {
		t.Errorf("Year = %d, want 2014", rec.Year)
	}
	if rec.Rating != 8.4 {
		t.Errorf("Rating = %v, want 8.4", rec.Rating)
	}
	if rec.PosterURL != "https://image.tmdb.org/t/p/w500/abc.jpg" {
		t.Errorf("PosterURL = %q", rec.PosterURL)
	}
}

func TestRecordFromResultMissingDate(t *testing.T) {
	rec := recordFromResult(searchResult{Title: "X", ReleaseDate: ""}, "")
	if rec.Year != 0 {
		t.Errorf("Year = %d, want 0 for missing release date", rec.Year)
	}
}

func TestPosterURLPassthrough(t *testing.T) {
	abs := "https://cdn.example/poster.jpg"
	if got := posterURL("https://lookup.example", abs); got != abs {
		t.Errorf("posterURL rewrote an absolute URL: %q", got)
	}
	if got := posterURL("https://lookup.example", "/p.jpg"); got != "/p.jpg" {
		t.Errorf("posterURL = %q, want untouched path for unknown host", got)
	}
}
