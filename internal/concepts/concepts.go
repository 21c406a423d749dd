// Package concepts detects medical terminology in text. The detector
// drives the semantic chunker: concept density influences chunk sizing and
// concept-set divergence marks topic boundaries.
package concepts

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Vocabulary maps a concept category (anatomy, physiology, ...) to the
// regular expression sources that match terms in that category. Patterns
// are compiled case-insensitive with word boundaries left to the pattern
// author.
type Vocabulary map[string][]string

// DefaultVocabulary returns the built-in physiology vocabulary. Callers
// with a different corpus can supply their own Vocabulary instead.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		"anatomy": {
			`\b(?:heart|atrium|atria|ventricle|ventricles|aorta|artery|arteries|vein|veins|capillary|capillaries)\b`,
			`\b(?:lung|lungs|alveoli|alveolus|bronchi|bronchus|trachea|diaphragm|pleura)\b`,
			`\b(?:brain|cerebrum|cerebellum|brainstem|hypothalamus|thalamus|cortex|medulla|pons)\b`,
			`\b(?:kidney|kidneys|nephron|nephrons|glomerulus|glomeruli|tubule|tubules|ureter|bladder)\b`,
			`\b(?:liver|pancreas|stomach|intestine|intestines|duodenum|jejunum|ileum|colon|esophagus)\b`,
			`\b(?:muscle|muscles|myocardium|sarcomere|neuron|neurons|axon|dendrite|synapse|ganglion)\b`,
			`\b(?:bone|bones|skeleton|cartilage|tendon|ligament|joint|joints|vertebrae)\b`,
		},
		"physiology": {
			`\b(?:homeostasis|metabolism|metabolic|osmosis|diffusion|filtration|reabsorption|secretion)\b`,
			`\b(?:systole|systolic|diastole|diastolic|cardiac output|stroke volume|preload|afterload)\b`,
			`\b(?:ventilation|respiration|perfusion|oxygenation|gas exchange|tidal volume|vital capacity)\b`,
			`\b(?:action potential|depolarization|repolarization|refractory|membrane potential|conduction)\b`,
			`\b(?:hormone|hormones|hormonal|endocrine|insulin|glucagon|cortisol|thyroxine|adrenaline|epinephrine)\b`,
			`\b(?:blood pressure|heart rate|pulse|vasoconstriction|vasodilation|autoregulation)\b`,
			`\b(?:glycolysis|gluconeogenesis|oxidative phosphorylation|krebs cycle|atp)\b`,
		},
		"pathology": {
			`\b(?:hypertension|hypotension|hypoxia|hypoxemia|ischemia|ischemic|infarction|infarct)\b`,
			`\b(?:arrhythmia|arrhythmias|fibrillation|tachycardia|bradycardia|murmur|stenosis)\b`,
			`\b(?:edema|inflammation|inflammatory|necrosis|fibrosis|atrophy|hypertrophy|hyperplasia)\b`,
			`\b(?:diabetes|diabetic|hyperglycemia|hypoglycemia|acidosis|alkalosis|anemia|anaemia)\b`,
			`\b(?:failure|insufficiency|obstruction|embolism|thrombosis|aneurysm|lesion)\b`,
		},
		"pharmacology": {
			`\b(?:agonist|agonists|antagonist|antagonists|receptor|receptors|ligand|ligands)\b`,
			`\b(?:beta.?blocker|beta.?blockers|ace inhibitor|ace inhibitors|diuretic|diuretics|statin|statins)\b`,
			`\b(?:pharmacokinetics|pharmacodynamics|bioavailability|half.?life|clearance|dosage|dose)\b`,
			`\b(?:anticoagulant|anticoagulants|analgesic|analgesics|anesthetic|antibiotic|antibiotics)\b`,
		},
	}
}

// Detector finds vocabulary terms in text and scores their density.
type Detector struct {
	// patterns holds the compiled vocabulary, keyed by category.
	patterns map[string][]*regexp.Regexp
	// categories is the sorted category list, for deterministic output.
	categories []string
}

// NewDetector compiles vocab into a Detector. Returns an error naming the
// first pattern that fails to compile.
func NewDetector(vocab Vocabulary) (*Detector, error) {
	d := &Detector{patterns: make(map[string][]*regexp.Regexp, len(vocab))}
	for category, sources := range vocab {
		for _, src := range sources {
			re, err := regexp.Compile(`(?i)` + src)
			if err != nil {
				return nil, fmt.Errorf("concepts: compile pattern %q for %s: %w", src, category, err)
			}
			d.patterns[category] = append(d.patterns[category], re)
		}
		d.categories = append(d.categories, category)
	}
	sort.Strings(d.categories)
	return d, nil
}

// MustDefaultDetector builds a Detector from DefaultVocabulary.
// The built-in patterns are covered by tests, so compilation cannot fail.
func MustDefaultDetector() *Detector {
	d, err := NewDetector(DefaultVocabulary())
	if err != nil {
		panic(err)
	}
	return d
}

// Detect returns the unique matched terms per category, lowercased and
// sorted. Categories with no matches are omitted.
func (d *Detector) Detect(text string) map[string][]string {
	out := make(map[string][]string)
	for _, category := range d.categories {
		seen := make(map[string]struct{})
		for _, re := range d.patterns[category] {
			for _, m := range re.FindAllString(text, -1) {
				seen[strings.ToLower(m)] = struct{}{}
			}
		}
		if len(seen) == 0 {
			continue
		}
		terms := make([]string, 0, len(seen))
		for term := range seen {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		out[category] = terms
	}
	return out
}

// Flatten merges a Detect result into one sorted, de-duplicated term list.
func Flatten(byCategory map[string][]string) []string {
	seen := make(map[string]struct{})
	for _, terms := range byCategory {
		for _, t := range terms {
			seen[t] = struct{}{}
		}
	}
	flat := make([]string, 0, len(seen))
	for t := range seen {
		flat = append(flat, t)
	}
	sort.Strings(flat)
	return flat
}

// Density scores how concept-rich text is: unique matched terms per 100
// words, capped at 1.0. Empty text scores 0.
func (d *Detector) Density(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	matches := 0
	for _, terms := range d.Detect(text) {
		matches += len(terms)
	}
	density := float64(matches) * 100 / float64(words)
	if density > 1.0 {
		return 1.0
	}
	return density
}

// IsBoundary reports whether two adjacent text windows talk about
// sufficiently different concepts to count as a topic boundary. The test
// is Jaccard overlap of the flattened concept sets below 0.5. Two windows
// with no concepts at all are not a boundary.
func (d *Detector) IsBoundary(before, after string) bool {
	a := Flatten(d.Detect(before))
	b := Flatten(d.Detect(after))
	if len(a) == 0 && len(b) == 0 {
		return false
	}
	return jaccard(a, b) < 0.5
}

// jaccard computes |a∩b| / |a∪b| for two sorted term slices.
func jaccard(a, b []string) float64 {
	union := make(map[string]struct{}, len(a)+len(b))
	inA := make(map[string]struct{}, len(a))
	for _, t := range a {
		union[t] = struct{}{}
		inA[t] = struct{}{}
	}
	both := 0
	for _, t := range b {
		if _, ok := inA[t]; ok {
			both++
		}
		union[t] = struct{}{}
	}
	if len(union) == 0 {
		return 0
	}
	return float64(both) / float64(len(union))
}
