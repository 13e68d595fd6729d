package policy

import (
	"testing"
	"time"
)

func TestMergeLayers_EmptyYieldsZeroValue(t *testing.T) {
	d := mergeLayers("M")
	if d.Active() {
		t.Fatal("no layers should produce an inactive descriptor")
	}
}

func TestMergeLayers_HigherPrecedenceWinsScalarFields(t *testing.T) {
	low := layer{provenance: ProvenanceAttribute, set: fieldDuration, partial: Descriptor{Duration: time.Minute}}
	high := layer{provenance: ProvenanceOverride, set: fieldDuration, partial: Descriptor{Duration: 5 * time.Minute}}

	d := mergeLayers("M", low, high)
	if d.Duration != 5*time.Minute {
		t.Fatalf("Duration = %v, want 5m (last layer wins)", d.Duration)
	}
	if d.Provenance != ProvenanceOverride {
		t.Fatalf("Provenance = %v, want override", d.Provenance)
	}
}

func TestMergeLayers_UnsetFieldFallsThrough(t *testing.T) {
	low := layer{provenance: ProvenanceAttribute, set: fieldDuration | fieldVersion,
		partial: Descriptor{Duration: time.Minute, Version: 3}}
	high := layer{provenance: ProvenanceOverride, set: fieldDuration,
		partial: Descriptor{Duration: 2 * time.Minute}}

	d := mergeLayers("M", low, high)
	if d.Version != 3 {
		t.Fatalf("Version = %d, want 3 (override didn't set it, should fall through)", d.Version)
	}
}

func TestMergeLayers_TagsUnionWithoutDuplicates(t *testing.T) {
	low := layer{partial: Descriptor{Tags: []string{"a", "shared"}}}
	high := layer{partial: Descriptor{Tags: []string{"shared", "b"}}}

	d := mergeLayers("M", low, high)
	seen := map[string]int{}
	for _, tag := range d.Tags {
		seen[tag]++
	}
	for _, want := range []string{"a", "b", "shared"} {
		if seen[want] != 1 {
			t.Errorf("tag %q appears %d times, want exactly 1", want, seen[want])
		}
	}
	if len(d.Tags) != 3 {
		t.Fatalf("Tags = %v, want 3 unique entries", d.Tags)
	}
}

func TestMergeLayers_MetadataMergesKeys(t *testing.T) {
	low := layer{set: fieldMetadata, partial: Descriptor{Metadata: map[string]string{"team": "payments"}}}
	high := layer{set: fieldMetadata, partial: Descriptor{Metadata: map[string]string{"env": "prod"}}}

	d := mergeLayers("M", low, high)
	if d.Metadata["team"] != "payments" || d.Metadata["env"] != "prod" {
		t.Fatalf("Metadata = %v, want both keys merged", d.Metadata)
	}
}
