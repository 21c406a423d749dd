package concepts

import (
	"strings"
	"testing"
)

func Test_Detector_DetectByCategory(t *testing.T) {
	t.Parallel()
	d := MustDefaultDetector()

	text := "The heart pumps blood through the aorta. During systole, blood pressure rises."
	got := d.Detect(text)

	if len(got["anatomy"]) == 0 {
		t.Fatal("want anatomy matches for heart/aorta")
	}
	if len(got["physiology"]) == 0 {
		t.Fatal("want physiology matches for systole/blood pressure")
	}
	if _, ok := got["pharmacology"]; ok {
		t.Errorf("no pharmacology terms present, got %v", got["pharmacology"])
	}
}

func Test_Detector_DetectIsCaseInsensitiveAndUnique(t *testing.T) {
	t.Parallel()
	d := MustDefaultDetector()

	got := d.Detect("Heart heart HEART")
	if len(got["anatomy"]) != 1 || got["anatomy"][0] != "heart" {
		t.Errorf("want single lowercased term, got %v", got["anatomy"])
	}
}

func Test_Detector_DensityEmptyText(t *testing.T) {
	t.Parallel()
	d := MustDefaultDetector()

	if got := d.Density(""); got != 0 {
		t.Errorf("empty text density: want 0, got %f", got)
	}
	if got := d.Density("the quick brown fox"); got != 0 {
		t.Errorf("non-medical text density: want 0, got %f", got)
	}
}

func Test_Detector_DensityCappedAtOne(t *testing.T) {
	t.Parallel()
	d := MustDefaultDetector()

	// Short, concept-dense text blows past 1 per 100 words before the cap.
	got := d.Density("heart lung kidney liver brain")
	if got != 1.0 {
		t.Errorf("dense text should cap at 1.0, got %f", got)
	}
}

func Test_Detector_DensityProportional(t *testing.T) {
	t.Parallel()
	d := MustDefaultDetector()

	// One concept in 200 filler words: 0.5 per 100 words.
	text := "heart " + strings.Repeat("filler ", 199)
	got := d.Density(text)
	if got < 0.45 || got > 0.55 {
		t.Errorf("want density near 0.5, got %f", got)
	}
}

func Test_Detector_IsBoundary(t *testing.T) {
	t.Parallel()
	d := MustDefaultDetector()

	tests := []struct {
		name   string
		before string
		after  string
		want   bool
	}{
		{
			name:   "topic shift is a boundary",
			before: "The heart and aorta drive circulation during systole.",
			after:  "The nephron and glomerulus perform filtration and reabsorption.",
			want:   true,
		},
		{
			name:   "same topic is not a boundary",
			before: "The heart contracts during systole.",
			after:  "The heart relaxes after systole ends.",
			want:   false,
		},
		{
			name:   "no concepts on either side is not a boundary",
			before: "This sentence has no relevant terms.",
			after:  "Neither does this one.",
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := d.IsBoundary(tt.before, tt.after); got != tt.want {
				t.Errorf("IsBoundary = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_NewDetector_RejectsBadPattern(t *testing.T) {
	t.Parallel()

	_, err := NewDetector(Vocabulary{"broken": {`(`}})
	if err == nil {
		t.Fatal("want error for invalid pattern")
	}
}

func Test_Flatten_MergesAndSorts(t *testing.T) {
	t.Parallel()

	got := Flatten(map[string][]string{
		"a": {"zeta", "alpha"},
		"b": {"alpha", "mid"},
	})
	want := []string{"alpha", "mid", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v, got %v", want, got)
		}
	}
}
