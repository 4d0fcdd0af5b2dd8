package metadata

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError describes one problem found while building the registry.
type ValidationError struct {
	Entity string
	// Member is the column or relation name, if any.
	Member  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Member != "" {
		return fmt.Sprintf("%s.%s: %s", e.Entity, e.Member, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Entity, e.Message)
}

// ValidationResult holds the results of metadata validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// Err returns the validation errors joined, or nil.
func (r *ValidationResult) Err() error {
	if !r.HasErrors() {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return fmt.Errorf("metadata: invalid entities: %w", errors.Join(errs...))
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	write := func(title string, es []*ValidationError) {
		if len(es) == 0 {
			return
		}
		sb.WriteString(title)
		sb.WriteString(":\n")
		for _, e := range es {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			sb.WriteString("\n")
		}
	}
	write("Errors", r.Errors)
	write("Warnings", r.Warnings)
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

func (r *ValidationResult) errorf(entity, member, format string, args ...any) {
	r.Errors = append(r.Errors, &ValidationError{Entity: entity, Member: member, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) warnf(entity, member, format string, args ...any) {
	r.Warnings = append(r.Warnings, &ValidationError{Entity: entity, Member: member, Message: fmt.Sprintf(format, args...)})
}

// validate checks an entity after its relations were resolved.
func validate(m *EntityMetadata, r *ValidationResult) {
	if len(m.primary) == 0 {
		r.errorf(m.Name, "", "no primary column")
	}
	versions, generated := 0, 0
	for _, c := range m.Columns {
		if c.Generation.DatabaseAssigned() {
			generated++
		}
		if c.Version {
			versions++
			if c.Nullable {
				r.warnf(m.Name, c.Name, "version column is nullable")
			}
		}
		if c.Primary && c.Nullable {
			r.errorf(m.Name, c.Name, "primary column cannot be nullable")
		}
		if c.Generation == RowID && len(m.primary) > 1 {
			r.errorf(m.Name, c.Name, "rowid generation requires a single primary column")
		}
		if c.Accessor == nil && c.relation == nil {
			r.errorf(m.Name, c.Name, "column has no accessor")
		}
	}
	if versions > 1 {
		r.errorf(m.Name, "", "more than one version column")
	}
	if generated > 1 {
		r.errorf(m.Name, "", "more than one database-generated column")
	}
	for _, rel := range m.Relations {
		if rel.Accessor == nil {
			r.warnf(m.Name, rel.Name, "relation has no accessor and is never traversed")
		}
		if rel.Kind == ManyToOne && rel.Cascade.Any(CascadeRemove) {
			r.warnf(m.Name, rel.Name, "many-to-one relation cascades remove to a shared parent")
		}
		if rel.Orphan == OrphanNullify && rel.Kind == OneToMany && rel.inverse != nil && !rel.inverse.Nullable {
			r.warnf(m.Name, rel.Name, "orphans are nullified but %s.%s is not nullable", rel.target.Name, rel.inverse.Name)
		}
	}
}
