package style

// FeatureFilter lets a tile decoder skip layers and features that no style
// rule could ever use, before any geometry is parsed. The filter must stay
// conservative: skipping something a rule would have matched is a
// correctness bug, keeping something no rule matches only costs time.
type FeatureFilter interface {
	WantsLayer(layer string) bool
	WantsPointFeature(layer string) bool
	WantsLineFeature(layer string) bool
	WantsPolygonFeature(layer string) bool
	// WantsKind prunes by feature classification tags. The base policy
	// never prunes on kind; implementations may override.
	WantsKind(kind string) bool
}

// evaluatorFilter derives its answers from a compiled Evaluator's layer and
// technique-kind indices.
type evaluatorFilter struct {
	ev *Evaluator
}

// NewFeatureFilter builds the standard filter over a compiled style set.
func NewFeatureFilter(ev *Evaluator) FeatureFilter {
	return &evaluatorFilter{ev: ev}
}

func (f *evaluatorFilter) WantsLayer(layer string) bool {
	return f.ev.WantsLayer(layer)
}

func (f *evaluatorFilter) WantsPointFeature(layer string) bool {
	return f.ev.WantsFeature(layer, KindPoint)
}

func (f *evaluatorFilter) WantsLineFeature(layer string) bool {
	return f.ev.WantsFeature(layer, KindLine)
}

func (f *evaluatorFilter) WantsPolygonFeature(layer string) bool {
	return f.ev.WantsFeature(layer, KindPolygon)
}

// WantsKind always accepts; kind tags cannot be ruled out without
// evaluating when conditions.
func (f *evaluatorFilter) WantsKind(string) bool { return true }
