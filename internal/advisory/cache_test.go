package advisory

import (
	"context"
	"errors"
	"testing"

	"MinoriAI/internal/entity"
)

type countingFetch struct {
	calls map[string]int
	fail  map[string]int
}

func newCountingFetch() *countingFetch {
	return &countingFetch{calls: map[string]int{}, fail: map[string]int{}}
}

func (f *countingFetch) fetch(_ context.Context, crop entity.Crop, label string) (Answer, error) {
	f.calls[label]++
	if f.fail[label] > 0 {
		f.fail[label]--
		return Answer{}, errors.New("upstream timeout")
	}
	return Answer{Text: "treat " + label, Known: true}, nil
}

func (f *countingFetch) total() int {
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func TestGetOrFetchFetchesEachKeyOnce(t *testing.T) {
	cache := NewSolutionCache()
	f := newCountingFetch()
	ctx := context.Background()

	for _, label := range []string{"a", "a", "b", "a", "b", "c"} {
		key := KeyByCropAndLabel.Key(entity.CropWheat, label)
		entry, _, err := cache.GetOrFetch(ctx, key, entity.CropWheat, f.fetch)
		if err != nil {
			t.Fatalf("GetOrFetch(%s): %v", label, err)
		}
		if entry.Text != "treat "+label {
			t.Errorf("entry for %s = %q", label, entry.Text)
		}
	}

	if f.total() != 3 {
		t.Fatalf("expected 3 fetches, got %d", f.total())
	}
	for _, label := range []string{"a", "b", "c"} {
		if f.calls[label] != 1 {
			t.Errorf("label %s fetched %d times", label, f.calls[label])
		}
	}
	stats := cache.Stats()
	if stats.Entries != 3 || stats.Hits != 3 || stats.Misses != 3 || stats.Fetches != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestGetOrFetchFailureIsNotCached(t *testing.T) {
	cache := NewSolutionCache()
	f := newCountingFetch()
	f.fail["leaf_blight"] = 1
	ctx := context.Background()
	key := Key{Crop: entity.CropRice, Label: "leaf_blight"}

	_, _, err := cache.GetOrFetch(ctx, key, entity.CropRice, f.fetch)
	if !errors.Is(err, ErrAdvisoryFetch) {
		t.Fatalf("expected ErrAdvisoryFetch, got %v", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("failed fetch must not be cached")
	}

	entry, cached, err := cache.GetOrFetch(ctx, key, entity.CropRice, f.fetch)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if cached {
		t.Error("retried entry should not be reported as cached")
	}
	if entry.Text != "treat leaf_blight" || f.calls["leaf_blight"] != 2 {
		t.Errorf("unexpected entry %q after %d calls", entry.Text, f.calls["leaf_blight"])
	}

	_, cached, _ = cache.GetOrFetch(ctx, key, entity.CropRice, f.fetch)
	if !cached || f.calls["leaf_blight"] != 2 {
		t.Errorf("third lookup should hit the cache")
	}
	if cache.Stats().Failures != 1 {
		t.Errorf("expected 1 failure, got %d", cache.Stats().Failures)
	}
}

func TestUnknownPolicy(t *testing.T) {
	unknown := func(context.Context, entity.Crop, string) (Answer, error) {
		return Answer{Text: UnknownText, Known: false}, nil
	}
	ctx := context.Background()
	key := Key{Crop: entity.CropWheat, Label: "loose_smut"}

	cached := NewSolutionCache()
	if _, _, err := cached.GetOrFetch(ctx, key, entity.CropWheat, unknown); err != nil {
		t.Fatal(err)
	}
	if cached.Len() != 1 {
		t.Errorf("CacheUnknown should store the answer")
	}

	retry := NewSolutionCache(WithUnknownPolicy(RetryUnknown))
	entry, _, err := retry.GetOrFetch(ctx, key, entity.CropWheat, unknown)
	if err != nil {
		t.Fatal(err)
	}
	if entry.Known || entry.Text != UnknownText {
		t.Errorf("unexpected entry %+v", entry)
	}
	if retry.Len() != 0 {
		t.Errorf("RetryUnknown should not store the answer")
	}
}

func TestKeyByLabelSharesAcrossCrops(t *testing.T) {
	cache := NewSolutionCache()
	f := newCountingFetch()
	ctx := context.Background()

	for _, crop := range entity.Crops() {
		if _, _, err := cache.GetOrFetch(ctx, KeyByLabel.Key(crop, "brown_spot"), crop, f.fetch); err != nil {
			t.Fatal(err)
		}
	}
	if f.total() != 1 {
		t.Fatalf("label-only keys should share one fetch, got %d", f.total())
	}
}

func TestIsUnknownAnswer(t *testing.T) {
	cases := map[string]bool{
		"I don't know.":                       true,
		"  i dont know anything about this":   true,
		"\"I do not know\"":                   true,
		"I don’t know":                        true,
		"Spray tricyclazole 75 WP at 0.6 g/l": false,
		"":                                    false,
	}
	for text, want := range cases {
		if got := IsUnknownAnswer(text); got != want {
			t.Errorf("IsUnknownAnswer(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestHumanizeLabel(t *testing.T) {
	if got := HumanizeLabel("Leaf_Blight"); got != "leaf blight" {
		t.Errorf("got %q", got)
	}
	if got := HumanizeLabel("  yellow__rust "); got != "yellow rust" {
		t.Errorf("got %q", got)
	}
}
