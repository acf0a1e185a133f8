package models

import "testing"

const hash = "abcdef0123456789abcdef0123456789abcdef01"

func TestInfoHash(t *testing.T) {
	tests := []struct {
		magnet string
		want   string
	}{
		{"magnet:?xt=urn:btih:" + hash + "&dn=x&tr=udp%3A%2F%2Fa", hash},
		{"magnet:?xt=urn:btih:ABCDEF0123456789ABCDEF0123456789ABCDEF01", hash},
		{"magnet:?xt=urn:btih:short", ""},
		{"http://not-a-magnet", ""},
		{"", ""},
	}
	for _, tc := range tests {
		rec := MagnetRecord{Magnet: tc.magnet}
		if got := rec.InfoHash(); got != tc.want {
			t.Errorf("InfoHash(%q) = %q, want %q", tc.magnet, got, tc.want)
		}
	}
}

func TestEpisodeMatches(t *testing.T) {
	tests := []struct {
		name    string
		rec     MagnetRecord
		season  int
		episode int
		want    bool
	}{
		{"no narrowing matches everything", MagnetRecord{Season: 9, Episode: 9}, 0, 0, true},
		{"explicit fields match", MagnetRecord{Season: 2, Episode: 5}, 2, 5, true},
		{"explicit fields mismatch", MagnetRecord{Season: 2, Episode: 6}, 2, 5, false},
		{"compound id match", MagnetRecord{ContentID: "tt1:2:5"}, 2, 5, true},
		{"compound id mismatch", MagnetRecord{ContentID: "tt1:2:6"}, 2, 5, false},
		{"no episode info never matches narrowed query", MagnetRecord{ContentID: "tt1"}, 2, 5, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rec.EpisodeMatches(tc.season, tc.episode); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSplitCompoundID(t *testing.T) {
	if s, e, ok := SplitCompoundID("tt0903747:2:5"); !ok || s != 2 || e != 5 {
		t.Fatalf("got %d/%d/%v", s, e, ok)
	}
	if s, e, ok := SplitCompoundID("kitsu:1376:1:12"); !ok || s != 1 || e != 12 {
		t.Fatalf("got %d/%d/%v", s, e, ok)
	}
	for _, bad := range []string{"tt0903747", "kitsu:1376", "tt1:0:5", "tt1:x:y", ""} {
		if _, _, ok := SplitCompoundID(bad); ok {
			t.Fatalf("SplitCompoundID(%q) unexpectedly ok", bad)
		}
	}
}
