package etl

import "github.com/taicho/postgres-to-mongo/pkg/models"

// validateUnit checks the declaration of a unit before defaults are applied.
func validateUnit(u *unit, label string) error {
	if len(u.embedPath) > 1 && u.OnPersist == nil {
		return newConfigError(label, "deep sub document embeds are not supported without OnPersist")
	}
	if u.hasEmbed && u.ToCollection == "" {
		return newConfigError(label, "embeds require toCollection")
	}
	if u.hasEmbed && u.EmbedSourceIDColumn == "" {
		return newConfigError(label, "embeds require embedSourceIdColumn")
	}
	return nil
}

func validateColumn(u *unit, name string, col *models.ColumnTranslation) error {
	switch col.Kind {
	case models.ColumnTranslated:
		if col.Translator == nil {
			return newConfigError(u.label(), "column %q is translated but has no translator", name)
		}
		return validateTranslator(u, name, col.Translator)
	default:
		if col.Translator != nil {
			return newConfigError(u.label(), "column %q declares a translator but is %s", name, col.Kind)
		}
	}
	return nil
}

func validateTranslator(u *unit, name string, t *models.Translator) error {
	if t.SourceCollection == "" {
		return newConfigError(u.label(), "translator of column %q requires sourceCollection", name)
	}
	if t.SourceIDField == "" && (t.Query == nil || t.Projection == nil) {
		return newConfigError(u.label(), "translator of column %q: query and projection must be specified if no sourceIdField is provided", name)
	}
	if t.Projection != nil && t.Processor == nil {
		return newConfigError(u.label(), "translator of column %q: a custom projection requires a processor", name)
	}
	return nil
}
