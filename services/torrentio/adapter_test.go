package torrentio

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"magnetar/config"
	"magnetar/models"
)

type fakeTransport struct {
	urls []string
	body []byte
	err  error
}

func (f *fakeTransport) Get(_ context.Context, url string) ([]byte, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

type fakeSink struct {
	name     string
	appended chan []models.MagnetRecord
}

func newFakeSink(name string) *fakeSink {
	return &fakeSink{name: name, appended: make(chan []models.MagnetRecord, 1)}
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Append(records []models.MagnetRecord) error {
	f.appended <- records
	return nil
}

func testSearchSettings() map[string]config.SearchSettings {
	return config.DefaultSettings().Search
}

const (
	descHashA = "abcdef0123456789abcdef0123456789abcdef01"
	descHashB = "0123456789abcdef0123456789abcdef01234567"
)

func TestBuildURL(t *testing.T) {
	a := NewAdapter("", &fakeTransport{}, testSearchSettings(), nil)

	id := models.ContentIdentifier{Raw: "tt0111161", Scheme: models.SchemeIMDB}
	got := a.buildURL(id, models.TypeMovie, TierSpanish)
	want := "https://torrentio.strem.fun/providers=mejortorrent,wolfmax4k,cinecalidad|sort=seeders|qualityfilter=scr,cam,unknown|limit=15|lang=spanish/stream/movie/tt0111161.json"
	if got != want {
		t.Fatalf("movie url:\n got %s\nwant %s", got, want)
	}

	epID := models.ContentIdentifier{Raw: "tt0903747:2:5", Scheme: models.SchemeIMDB, Season: 2, Episode: 5}
	got = a.buildURL(epID, models.TypeSeries, TierSpanish)
	if !strings.Contains(got, "/stream/series/tt0903747:2:5.json") {
		t.Fatalf("series url missing episode path, got %s", got)
	}

	// English tier swaps the provider set regardless of content type.
	got = a.buildURL(id, models.TypeMovie, TierEnglish)
	if !strings.Contains(got, "providers=yts,eztv,thepiratebay,1337x,rarbg,torrentgalaxy") || !strings.Contains(got, "lang=english") {
		t.Fatalf("english url has wrong options: %s", got)
	}

	// Anime rides the series stream path.
	animeID := models.ContentIdentifier{Raw: "kitsu:1376", Scheme: models.SchemeKitsu}
	got = a.buildURL(animeID, models.TypeAnime, TierSpanish)
	if !strings.Contains(got, "/stream/series/kitsu:1376.json") || !strings.Contains(got, "providers=nyaasi,horriblesubs") {
		t.Fatalf("anime url wrong: %s", got)
	}
}

func TestSearchNormalizesAndDeduplicates(t *testing.T) {
	body := `{"streams":[
		{"name":"Torrentio\n1080p","title":"Movie.Name.2023.1080p.WEB-DL\n💾 2.1 GB\n👤 42\n⚙️ ProviderX","infoHash":"` + descHashA + `","fileIdx":1},
		{"name":"Torrentio\n1080p","title":"Movie.Name.2023.1080p.WEB-DL duplicate","infoHash":"` + descHashA + `"},
		{"name":"Torrentio\n720p","title":"Movie.Name.2023.720p\n💾 900 MB\n👤 7","infoHash":"` + descHashB + `"},
		{"name":"Broken","title":"No hash here"}
	]}`
	transport := &fakeTransport{body: []byte(body)}
	sink := newFakeSink(config.BucketAggregator)
	a := NewAdapter("", transport, testSearchSettings(), map[string]Sink{config.BucketAggregator: sink})

	id := models.ContentIdentifier{Raw: "tt0111161", Scheme: models.SchemeIMDB}
	records, err := a.Search(context.Background(), id, models.TypeMovie, TierSpanish)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (dedupe + skip hashless)", len(records))
	}

	first := records[0]
	if first.ContentID != "tt0111161" || first.IMDBID != "tt0111161" || first.IDType != "imdb" {
		t.Fatalf("identity fields wrong: %+v", first)
	}
	if first.Quality != models.Quality1080p || first.Size != "2.1 GB" || first.Seeders != 42 {
		t.Fatalf("extracted fields wrong: %+v", first)
	}
	if first.Provider != "ProviderX" || first.Peers != 12 || first.FileIdx != 1 {
		t.Fatalf("extracted fields wrong: %+v", first)
	}
	if first.Source != "spanish" {
		t.Fatalf("source = %q, want spanish", first.Source)
	}
	if first.InfoHash() != descHashA {
		t.Fatalf("hash = %q", first.InfoHash())
	}

	// Persistence runs in the background against the aggregator bucket.
	select {
	case persisted := <-sink.appended:
		if len(persisted) != 2 {
			t.Fatalf("persisted %d records, want 2", len(persisted))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("records never persisted")
	}
}

func TestSearchTransportError(t *testing.T) {
	wantErr := errors.New("proxy down")
	a := NewAdapter("", &fakeTransport{err: wantErr}, testSearchSettings(), nil)

	_, err := a.Search(context.Background(), models.ContentIdentifier{Raw: "tt1", Scheme: models.SchemeIMDB}, models.TypeMovie, TierSpanish)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestSearchBadJSON(t *testing.T) {
	a := NewAdapter("", &fakeTransport{body: []byte("<html>blocked</html>")}, testSearchSettings(), nil)
	if _, err := a.Search(context.Background(), models.ContentIdentifier{Raw: "tt1", Scheme: models.SchemeIMDB}, models.TypeMovie, TierSpanish); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDetectType(t *testing.T) {
	a := NewAdapter("", &fakeTransport{}, testSearchSettings(), nil)
	tests := []struct {
		id        models.ContentIdentifier
		requested models.ContentType
		want      models.ContentType
	}{
		{models.ContentIdentifier{Raw: "tt1", Scheme: models.SchemeIMDB}, models.TypeAuto, models.TypeMovie},
		{models.ContentIdentifier{Raw: "tt1:1:2", Scheme: models.SchemeIMDB, Season: 1, Episode: 2}, models.TypeAuto, models.TypeSeries},
		{models.ContentIdentifier{Raw: "kitsu:1376", Scheme: models.SchemeKitsu}, models.TypeAuto, models.TypeAnime},
		{models.ContentIdentifier{Raw: "mal:5114", Scheme: models.SchemeMAL}, models.TypeAuto, models.TypeAnime},
		// Explicit request always wins.
		{models.ContentIdentifier{Raw: "kitsu:1376", Scheme: models.SchemeKitsu}, models.TypeSeries, models.TypeSeries},
	}
	for _, tc := range tests {
		if got := a.DetectType(tc.id, tc.requested); got != tc.want {
			t.Errorf("DetectType(%q, %s) = %s, want %s", tc.id.Raw, tc.requested, got, tc.want)
		}
	}
}

func TestBucketFor(t *testing.T) {
	tests := []struct {
		contentType models.ContentType
		tier        Tier
		want        string
	}{
		{models.TypeMovie, TierSpanish, config.BucketAggregator},
		{models.TypeSeries, TierSpanish, config.BucketAggregator},
		{models.TypeAnime, TierSpanish, config.BucketAnime},
		{models.TypeAnime, TierEnglish, config.BucketAnime},
		{models.TypeMovie, TierEnglish, config.BucketEnglish},
	}
	for _, tc := range tests {
		if got := BucketFor(tc.contentType, tc.tier); got != tc.want {
			t.Errorf("BucketFor(%s, %s) = %s, want %s", tc.contentType, tc.tier, got, tc.want)
		}
	}
}
