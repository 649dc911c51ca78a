package holiday

// Catalog is the merged, immutable set of builtin and custom holidays.
//
// Merge rules:
//   - a custom definition with the same ID as a builtin replaces it outright;
//   - a custom definition whose first day in a year equals a builtin's first
//     day in that year shadows the builtin for that year.
//
// Later custom definitions win over earlier ones with the same ID.
type Catalog struct {
	builtin []Definition
	custom  []Definition
}

// NewCatalog merges custom definitions over the builtin table.
func NewCatalog(custom ...Definition) *Catalog {
	byID := make(map[string]int, len(custom))
	merged := make([]Definition, 0, len(custom))
	for _, d := range custom {
		if d.Source == "" {
			d.Source = SourceCustom
		}
		if i, ok := byID[d.ID]; ok {
			merged[i] = d
			continue
		}
		byID[d.ID] = len(merged)
		merged = append(merged, d)
	}

	c := &Catalog{custom: merged}
	for _, b := range builtins {
		if _, replaced := byID[b.ID]; !replaced {
			c.builtin = append(c.builtin, b)
		}
	}
	return c
}

// Resolve is the pure form of (*Catalog).Resolve.
func Resolve(date Date, custom []Definition) []Occurrence {
	return NewCatalog(custom...).Resolve(date)
}

// Resolve returns every holiday observed on date, ordered by first day then ID.
func (c *Catalog) Resolve(date Date) []Occurrence {
	var out []Occurrence
	for _, d := range c.all() {
		occ, ok := d.occurrenceOn(date)
		if !ok || c.shadowed(d, occ.Start()) {
			continue
		}
		out = append(out, occ)
	}
	sortOccurrences(out)
	return out
}

// Definitions returns all effective definitions, builtins first.
func (c *Catalog) Definitions() []Definition {
	return c.all()
}

// Lookup finds a definition by ID.
func (c *Catalog) Lookup(id string) (Definition, bool) {
	for _, d := range c.all() {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

func (c *Catalog) all() []Definition {
	out := make([]Definition, 0, len(c.builtin)+len(c.custom))
	out = append(out, c.builtin...)
	return append(out, c.custom...)
}

func (c *Catalog) shadowed(d Definition, start Date) bool {
	if d.Source != SourceBuiltin {
		return false
	}
	for _, cd := range c.custom {
		if s, ok := cd.StartIn(start.Year); ok && s == start {
			return true
		}
	}
	return false
}
