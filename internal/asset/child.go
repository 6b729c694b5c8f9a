package asset

// ChildSpec describes a child asset emitted by a transformer stage.
type ChildSpec struct {
	Type           string
	Content        *Content
	AST            *AST
	Map            []byte
	Dependencies   []Dependency
	ConnectedFiles []ConnectedFile
	Symbols        map[string]string
	IsIsolated     bool
	// SideEffects overrides the inherited flag when non-nil.
	SideEffects *bool
	Meta        map[string]any
}

// NewChild constructs a child asset from a transformer result. The child's
// id base combines the parent id with the child type; environment and the
// side-effects default are inherited from the parent.
func (a *Asset) NewChild(spec ChildSpec) *Asset {
	sideEffects := a.sideEffects
	if spec.SideEffects != nil {
		sideEffects = *spec.SideEffects
	}

	child := New(Options{
		IDBase:      a.id + ":" + spec.Type,
		FilePath:    a.filePath,
		Type:        spec.Type,
		Environment: a.environment,
		Content:     spec.Content,
		ContentHash: a.contentHash,
		SideEffects: sideEffects,
		InputFS:     a.inputFS,
	})
	child.ast = spec.AST
	child.mapBytes = spec.Map

	child.deps = append(child.deps, a.deps...)
	child.deps = append(child.deps, spec.Dependencies...)
	child.connected = append(child.connected, a.connected...)
	for _, cf := range spec.ConnectedFiles {
		child.AddConnectedFile(cf)
	}
	for exported, local := range spec.Symbols {
		child.symbols[exported] = local
	}
	child.isIsolated = spec.IsIsolated
	for k, v := range spec.Meta {
		child.meta[k] = v
	}
	return child
}
