package commands

import (
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/admin/internal/cli/ui"
	"github.com/conduit-lang/admin/internal/orm/schema"
)

func newInspectCommand(flags *globalFlags) *cobra.Command {
	var routes bool
	cmd := &cobra.Command{
		Use:   "inspect [entity]",
		Short: "Show the entity registry",
		Long: `Without arguments, list every registered entity. With an entity name,
show its fields, relationships and the entities that reference it.`,
		Example: `  admin inspect
  admin inspect Book
  admin inspect --routes`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer app.shutdown()

			out := cmd.OutOrStdout()
			switch {
			case routes:
				printRoutes(out, app, flags.noColor)
				return nil
			case len(args) == 0:
				printEntities(out, app.Registry, flags.noColor)
				return nil
			}

			meta, err := app.Registry.Get(args[0])
			if err != nil {
				ui.EntityNotFound(args[0], app.Registry.Names(), flags.noColor).Write(cmd.ErrOrStderr())
				return err
			}
			printEntity(out, app.Registry, meta, flags.noColor)
			return nil
		},
	}
	cmd.Flags().BoolVar(&routes, "routes", false, "list the admin API routes")
	return cmd
}

func printEntities(w io.Writer, reg *schema.Registry, noColor bool) {
	ui.Header(w, "Entities", noColor)
	table := ui.NewTable(w, noColor, "NAME", "TABLE", "FIELDS", "RELATIONSHIPS", "VERSIONED")
	for _, meta := range reg.All() {
		table.AddRow(meta.Name, meta.TableName,
			strconv.Itoa(len(meta.Fields)),
			strconv.Itoa(len(meta.Relationships)),
			yesNo(meta.VersionField != ""))
	}
	table.Render()

	stats := reg.Stats()
	fmt.Fprintf(w, "\n%d entities, %d fields, %d relationships\n",
		stats.TotalEntities, stats.TotalFields, stats.TotalRelationships)
}

func printEntity(w io.Writer, reg *schema.Registry, meta *schema.EntityMetadata, noColor bool) {
	ui.Header(w, meta.DisplayName(), noColor)
	kv := ui.NewKeyValueTable(w, noColor)
	kv.AddRow("Entity", meta.Name)
	kv.AddRow("Table", meta.TableName)
	kv.AddRow("Primary key", meta.PrimaryKey)
	kv.AddRow("Version field", meta.VersionField)
	kv.AddRow("Documentation", meta.Documentation)
	kv.Render()

	fmt.Fprintln(w)
	fields := ui.NewTable(w, noColor, "FIELD", "TYPE", "COLUMN", "CONSTRAINTS")
	for _, f := range meta.Fields {
		fields.AddRow(f.Name, f.Type.String(), f.Column, constraints(f))
	}
	fields.Render()

	if len(meta.Relationships) > 0 {
		fmt.Fprintln(w)
		rels := ui.NewTable(w, noColor, "RELATIONSHIP", "KIND", "TARGET", "VIA", "CASCADE", "FETCH")
		for _, r := range meta.Relationships {
			rels.AddRow(r.Name, r.Kind.String(), r.Target, via(r), r.Cascade.String(), r.Fetch.String())
		}
		rels.Render()
	}

	if deps := reg.Dependents(meta.Name); len(deps) > 0 {
		fmt.Fprintln(w)
		table := ui.NewTable(w, noColor, "REFERENCED BY", "RELATIONSHIP", "ON DELETE")
		for _, d := range deps {
			table.AddRow(d.Entity.Name, d.Relationship.Name, d.Policy().String())
		}
		table.Render()
	}
}

func printRoutes(w io.Writer, app *App, noColor bool) {
	base := app.Config.Admin.BasePath
	ui.Header(w, "Routes under "+base, noColor)
	if !app.Config.Admin.Enabled {
		fmt.Fprintln(w, "admin is disabled")
		return
	}
	table := ui.NewTable(w, noColor, "METHOD", "PATH", "NAME")
	for _, r := range app.AdminHandler().Routes() {
		table.AddRow(r.Method, path.Join(base, r.Pattern), r.Name)
	}
	table.Render()
}

func constraints(f *schema.FieldMetadata) string {
	var parts []string
	add := func(ok bool, s string) {
		if ok {
			parts = append(parts, s)
		}
	}
	add(f.PrimaryKey, "primary key")
	add(f.Auto, "auto")
	add(f.Version, "version")
	add(f.Unique, "unique")
	add(f.Required(), "required")
	add(f.Nullable, "nullable")
	add(f.MinLength > 0, fmt.Sprintf("min length %d", f.MinLength))
	add(f.MaxLength > 0, fmt.Sprintf("max length %d", f.MaxLength))
	if f.Min != nil {
		parts = append(parts, "min "+strconv.FormatFloat(*f.Min, 'g', -1, 64))
	}
	if f.Max != nil {
		parts = append(parts, "max "+strconv.FormatFloat(*f.Max, 'g', -1, 64))
	}
	add(f.Pattern != nil, "pattern")
	add(len(f.EnumValues) > 0, "one of "+strings.Join(f.EnumValues, "|"))
	add(f.IsForeignKey(), "references "+f.ForeignKeyOf)
	add(f.Hints.Hidden, "hidden")
	add(f.Hints.ReadOnly, "read-only")
	return strings.Join(parts, ", ")
}

func via(r *schema.RelationshipMetadata) string {
	switch {
	case r.Through != "":
		return r.Through
	case r.MappedBy != "":
		return "mapped by " + r.MappedBy
	default:
		return r.ForeignKey
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
