// Package docgen emits a human-readable manifest of a resolved config's
// sources, schemas, relations, and indexed fields. It is a navigation aid
// for anyone inspecting a generated index tree: a heading per source,
// listing its pattern, schema, indexed fields, and relations.
package docgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/staticql/staticql/internal/config"
)

// Generate renders an INDEX.md-style manifest describing every source
// resolved by cfg: its file pattern, schema reference, indexed fields,
// and relations.
func Generate(cfg *config.Resolver) string {
	var b strings.Builder

	b.WriteString("# Index manifest\n\n")
	b.WriteString("Generated from the resolved source configuration. Do not edit by hand.\n\n")

	names := make([]string, 0, len(cfg.Sources()))
	for _, src := range cfg.Sources() {
		names = append(names, src.Name)
	}
	sort.Strings(names)

	for _, name := range names {
		src, err := cfg.Source(name)
		if err != nil {
			continue
		}
		writeSource(&b, src)
	}

	return b.String()
}

func writeSource(b *strings.Builder, src config.Source) {
	fmt.Fprintf(b, "## %s\n\n", src.Name)
	fmt.Fprintf(b, "- Pattern: `%s`\n", src.Pattern)
	fmt.Fprintf(b, "- Type: `%s`\n", src.Type)
	if src.Schema != "" {
		fmt.Fprintf(b, "- Schema: `%s`\n", src.Schema)
	}

	if len(src.Indexes) > 0 {
		fields := make([]string, 0, len(src.Indexes))
		for f := range src.Indexes {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		b.WriteString("- Indexed fields:\n")
		for _, f := range fields {
			fmt.Fprintf(b, "  - `%s`\n", f)
		}
	}

	if len(src.Relations) > 0 {
		keys := make([]string, 0, len(src.Relations))
		for k := range src.Relations {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("- Relations:\n")
		for _, k := range keys {
			rel := src.Relations[k]
			kind := string(rel.Kind)
			if rel.Kind.IsThrough() {
				fmt.Fprintf(b, "  - `%s` → `%s` (%s, through `%s`)\n", k, rel.To, kind, rel.Through)
			} else {
				fmt.Fprintf(b, "  - `%s` → `%s` (%s)\n", k, rel.To, kind)
			}
		}
	}

	b.WriteString("\n")
}
