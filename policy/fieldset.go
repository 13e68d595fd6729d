package policy

import "time"

// fieldSetBuilder accumulates a fieldSet bitmask describing which fields
// of a partial Descriptor a caller explicitly set. Kept separate from
// Descriptor itself because "zero value" and "not set" must be
// distinguishable per field (e.g. a layer may explicitly set Duration to
// 0 to disable caching, which differs from not mentioning Duration at
// all).
type fieldSetBuilder struct {
	mask fieldSet
}

// NewFieldSet starts an empty field-set builder.
func NewFieldSet() fieldSetBuilder { return fieldSetBuilder{} }

func (b fieldSetBuilder) Duration(time.Duration) fieldSetBuilder {
	b.mask |= fieldDuration
	return b
}

func (b fieldSetBuilder) SlidingExtension(time.Duration) fieldSetBuilder {
	b.mask |= fieldSlidingExtension
	return b
}

func (b fieldSetBuilder) RefreshThreshold(RefreshThreshold) fieldSetBuilder {
	b.mask |= fieldRefreshThreshold
	return b
}

func (b fieldSetBuilder) Version(int) fieldSetBuilder {
	b.mask |= fieldVersion
	return b
}

func (b fieldSetBuilder) StampedeMode(StampedeMode) fieldSetBuilder {
	b.mask |= fieldStampedeMode
	return b
}

func (b fieldSetBuilder) KeyGenerator(string) fieldSetBuilder {
	b.mask |= fieldKeyGenerator
	return b
}

func (b fieldSetBuilder) Metadata(map[string]string) fieldSetBuilder {
	b.mask |= fieldMetadata
	return b
}

func (b fieldSetBuilder) CancelSafeFactory(bool) fieldSetBuilder {
	b.mask |= fieldCancelSafeFactory
	return b
}
