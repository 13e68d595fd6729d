package policy

// fieldSet is a bitmask of which Descriptor fields a partial layer
// explicitly set. Tags is deliberately not part of the mask: tags are
// always unioned across every layer that supplies any, never replaced
// (spec-mandated coherency rule — a default/group tag must never be
// silently dropped by a higher-precedence layer).
type fieldSet uint16

const (
	fieldDuration fieldSet = 1 << iota
	fieldSlidingExtension
	fieldRefreshThreshold
	fieldVersion
	fieldStampedeMode
	fieldKeyGenerator
	fieldMetadata
	fieldCancelSafeFactory
)

// layer is one partial contribution to a method's Descriptor, paired
// with the mask of fields it actually set.
type layer struct {
	provenance Provenance
	set        fieldSet
	partial    Descriptor
}

func (l layer) has(f fieldSet) bool { return l.set&f != 0 }

// mergeLayers folds layers in ascending precedence order (the caller is
// responsible for ordering: attribute, fluent, file, override). A
// field set at a higher-precedence layer replaces the lower; tags union
// across all layers regardless of precedence.
func mergeLayers(methodID string, layers ...layer) Descriptor {
	out := Descriptor{MethodID: methodID}
	tagSeen := make(map[string]struct{})

	for _, l := range layers {
		if l.has(fieldDuration) {
			out.Duration = l.partial.Duration
		}
		if l.has(fieldSlidingExtension) {
			out.SlidingExtension = l.partial.SlidingExtension
		}
		if l.has(fieldRefreshThreshold) {
			out.RefreshThreshold = l.partial.RefreshThreshold
		}
		if l.has(fieldVersion) {
			out.Version = l.partial.Version
		}
		if l.has(fieldStampedeMode) {
			out.StampedeMode = l.partial.StampedeMode
		}
		if l.has(fieldKeyGenerator) {
			out.KeyGenerator = l.partial.KeyGenerator
		}
		if l.has(fieldCancelSafeFactory) {
			out.CancelSafeFactory = l.partial.CancelSafeFactory
		}
		if l.has(fieldMetadata) && len(l.partial.Metadata) > 0 {
			if out.Metadata == nil {
				out.Metadata = make(map[string]string, len(l.partial.Metadata))
			}
			for k, v := range l.partial.Metadata {
				out.Metadata[k] = v
			}
		}

		for _, tag := range l.partial.Tags {
			if _, dup := tagSeen[tag]; dup {
				continue
			}
			tagSeen[tag] = struct{}{}
			out.Tags = append(out.Tags, tag)
		}

		if l.set != 0 || len(l.partial.Tags) > 0 {
			out.Provenance = l.provenance
		}
	}

	return out
}
