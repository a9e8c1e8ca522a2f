package pipeline

import (
	"reflect"
	"testing"

	"github.com/aeshef/knowledge-bot/internal/vocab"
)

func testVocab() *vocab.Vocabulary {
	return vocab.NewVocabulary(
		[]string{"status", "media"},
		map[string][]string{
			"status": {"inbox", "in-progress", "done"},
		},
		map[string]map[string][]string{
			"idea": {
				"media": {"photo", "video"},
			},
		},
		map[string]map[string]string{
			"media": {
				"фото":       "photo",
				"video clip": "video",
			},
		},
	)
}

func TestNormalizeTagsFreeNamespace(t *testing.T) {
	voc := testVocab()
	got := NormalizeTags([]string{"Topic/Machine Learning", "note/Идея"}, "knowledge", voc)
	want := []string{"note/ideya", "topic/machine-learning"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeTags = %v, want %v", got, want)
	}
}

func TestNormalizeTagsControlledMatch(t *testing.T) {
	voc := testVocab()
	got := NormalizeTags([]string{"status/In Progress", "status/nonsense"}, "knowledge", voc)
	want := []string{"status/in-progress"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeTags = %v, want %v", got, want)
	}
}

func TestNormalizeTagsControlledNeverInvents(t *testing.T) {
	voc := testVocab()
	got := NormalizeTags([]string{"status/archived", "status/", "status"}, "knowledge", voc)
	if len(got) != 0 {
		t.Fatalf("expected no tags, got %v", got)
	}
}

func TestNormalizeTagsSynonyms(t *testing.T) {
	voc := testVocab()
	// media is controlled with a per-type list on idea; the synonym table
	// maps the Cyrillic spelling onto the canonical value first.
	got := NormalizeTags([]string{"media/Фото", "media/Video Clip"}, "idea", voc)
	want := []string{"media/photo", "media/video"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeTags = %v, want %v", got, want)
	}
}

func TestNormalizeTagsControlledWithoutListDrops(t *testing.T) {
	voc := testVocab()
	// media has no allowed list for type knowledge, so every media tag is
	// dropped rather than passed through.
	got := NormalizeTags([]string{"media/photo"}, "knowledge", voc)
	if len(got) != 0 {
		t.Fatalf("expected no tags, got %v", got)
	}
}

func TestNormalizeTagsDedupeAndOrder(t *testing.T) {
	voc := testVocab()
	got := NormalizeTags([]string{"topic/ml", "topic/ai", "topic/AI", "topic/ai"}, "knowledge", voc)
	want := []string{"topic/ai", "topic/ml"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NormalizeTags = %v, want %v", got, want)
	}
}

func TestNormalizeTagsIdempotent(t *testing.T) {
	voc := testVocab()
	in := []string{"status/In Progress", "topic/Глубокое Обучение", "media/Фото"}
	once := NormalizeTags(in, "idea", voc)
	twice := NormalizeTags(once, "idea", voc)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("not idempotent: first %v, second %v", once, twice)
	}
}

func TestNormalizeTagsEmptyInput(t *testing.T) {
	voc := testVocab()
	if got := NormalizeTags(nil, "knowledge", voc); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
	if got := NormalizeTags([]string{"", "   ", "/value", "ns/"}, "knowledge", voc); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}
