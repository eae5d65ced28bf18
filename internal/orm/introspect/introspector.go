package introspect

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/conduit-lang/admin/internal/orm/convert"
	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/schema"
)

// Options configures an Introspector
type Options struct {
	Logger *zap.Logger
	// Once makes a second Introspect call fail with ImmutableStateError
	Once bool
}

// Introspector turns descriptors into entity metadata
type Introspector struct {
	logger *zap.Logger
	once   bool
	done   atomic.Bool
}

// New creates an Introspector
func New(opts Options) *Introspector {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Introspector{logger: logger, once: opts.Once}
}

// Introspect describes every candidate and resolves the resulting entities.
// Names, fields and primary keys are collected first so relationships can
// reference entities declared later in the list.
func (i *Introspector) Introspect(ctx context.Context, candidates []Describable) ([]*schema.EntityMetadata, error) {
	if i.once && i.done.Swap(true) {
		return nil, &errs.ImmutableStateError{Op: "introspect"}
	}

	descriptors := make([]*Descriptor, 0, len(candidates))
	entities := make([]*schema.EntityMetadata, 0, len(candidates))
	byName := make(map[string]*schema.EntityMetadata, len(candidates))

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d, err := c.Describe()
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(d.Name) == "" {
			return nil, errs.Schemaf("", "", "entity descriptor has no name")
		}
		if _, dup := byName[d.Name]; dup {
			return nil, errs.Schemaf(d.Name, "", "entity is declared more than once")
		}

		e, err := buildFields(d)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
		entities = append(entities, e)
		byName[d.Name] = e
	}

	r := &resolver{entities: byName}
	for idx, d := range descriptors {
		if err := r.declare(entities[idx], d.Relationships); err != nil {
			return nil, err
		}
	}
	for _, e := range entities {
		if err := r.resolveForeignKeys(e); err != nil {
			return nil, err
		}
	}
	for _, e := range entities {
		if err := r.resolveInverse(e); err != nil {
			return nil, err
		}
	}
	for _, e := range entities {
		if err := r.resolveJoins(e); err != nil {
			return nil, err
		}
	}

	for _, e := range entities {
		i.logger.Debug("introspected entity",
			zap.String("entity", e.Name),
			zap.String("table", e.TableName),
			zap.Int("fields", len(e.Fields)),
			zap.Int("relationships", len(e.Relationships)),
		)
	}
	return entities, nil
}

// Bootstrap introspects the candidates and returns the frozen registry
func (i *Introspector) Bootstrap(ctx context.Context, candidates []Describable) (*schema.Registry, error) {
	entities, err := i.Introspect(ctx, candidates)
	if err != nil {
		return nil, err
	}
	registry, err := schema.Build(entities...)
	if err != nil {
		return nil, err
	}
	i.logger.Info("metadata registry frozen", zap.Int("entities", registry.Count()))
	return registry, nil
}

func buildFields(d *Descriptor) (*schema.EntityMetadata, error) {
	e := schema.NewEntityMetadata(d.Name)
	if d.Table != "" {
		e.TableName = d.Table
	}
	e.Label = d.Label
	e.Documentation = d.Documentation

	keys := 0
	for _, fd := range d.Fields {
		f, err := buildField(d.Name, fd)
		if err != nil {
			return nil, err
		}
		if e.HasField(f.Name) {
			return nil, errs.Schemaf(d.Name, f.Name, "field is declared more than once")
		}
		if f.PrimaryKey {
			keys++
		}
		e.AddField(f)
	}

	switch keys {
	case 0:
		return nil, errs.Schemaf(d.Name, "", "no primary key field declared")
	case 1:
		return e, nil
	default:
		return nil, errs.Schemaf(d.Name, "", "%d primary key candidates, exactly one is required", keys)
	}
}

func buildField(entity string, fd FieldDecl) (*schema.FieldMetadata, error) {
	if strings.TrimSpace(fd.Name) == "" {
		return nil, errs.Schemaf(entity, "", "field declaration has no name")
	}
	ft, err := schema.ParseFieldType(fd.Type)
	if err != nil {
		return nil, errs.Schemaf(entity, fd.Name, "%v", err)
	}
	if fd.Nullable && (fd.Required || fd.PrimaryKey) {
		return nil, errs.Schemaf(entity, fd.Name, "field cannot be both nullable and required")
	}

	f := &schema.FieldMetadata{
		Name:       fd.Name,
		Column:     fd.Column,
		Type:       ft,
		Nullable:   !fd.Required && !fd.PrimaryKey && !fd.Version,
		MaxLength:  fd.MaxLength,
		MinLength:  fd.MinLength,
		Min:        fd.Min,
		Max:        fd.Max,
		Unique:     fd.Unique,
		PrimaryKey: fd.PrimaryKey,
		Auto:       fd.Auto,
		Version:    fd.Version,
		Hints: schema.DisplayHints{
			Label:    fd.Label,
			Order:    fd.Order,
			Hidden:   fd.Hidden,
			ReadOnly: fd.ReadOnly,
			Widget:   fd.Widget,
			HelpText: fd.HelpText,
		},
	}

	for _, v := range fd.Enum {
		if v = strings.TrimSpace(v); v != "" {
			f.EnumValues = append(f.EnumValues, v)
		}
	}

	if fd.Pattern != "" {
		re, err := regexp.Compile(fd.Pattern)
		if err != nil {
			return nil, errs.Schemaf(entity, fd.Name, "invalid pattern: %v", err)
		}
		f.Pattern = re
	}

	if fd.Default != "" {
		def, err := convert.Value(ft, fd.Default)
		if err != nil {
			return nil, errs.Schemaf(entity, fd.Name, "invalid default: %v", err)
		}
		f.Default = def
	}

	return f, nil
}

type resolver struct {
	entities map[string]*schema.EntityMetadata
}

// declare parses relationship declarations and infers ownership
func (r *resolver) declare(e *schema.EntityMetadata, decls []RelationDecl) error {
	for _, rd := range decls {
		if strings.TrimSpace(rd.Name) == "" {
			return errs.Schemaf(e.Name, "", "relationship declaration has no name")
		}
		if _, dup := e.Relationship(rd.Name); dup || e.HasField(rd.Name) {
			return errs.Schemaf(e.Name, rd.Name, "name is declared more than once")
		}

		kind, err := schema.ParseRelationKind(rd.Kind)
		if err != nil {
			return errs.Schemaf(e.Name, rd.Name, "%v", err)
		}
		cascade, err := schema.ParseCascadePolicy(rd.Cascade)
		if err != nil {
			return errs.Schemaf(e.Name, rd.Name, "%v", err)
		}
		fetch, err := schema.ParseFetchPolicy(rd.Fetch)
		if err != nil {
			return errs.Schemaf(e.Name, rd.Name, "%v", err)
		}
		if _, ok := r.entities[rd.Target]; !ok {
			return errs.Schemaf(e.Name, rd.Name, "relationship target %s is not a registered entity", rd.Target)
		}

		rel := &schema.RelationshipMetadata{
			Name:             rd.Name,
			Kind:             kind,
			Target:           rd.Target,
			ForeignKey:       rd.ForeignKey,
			MappedBy:         rd.MappedBy,
			Through:          rd.Through,
			ThroughOwnerKey:  rd.ThroughOwnerKey,
			ThroughTargetKey: rd.ThroughTargetKey,
			Required:         rd.Required,
			Cascade:          cascade,
			Fetch:            fetch,
		}

		switch kind {
		case schema.ManyToOne:
			if rd.MappedBy != "" {
				return errs.Schemaf(e.Name, rd.Name, "many-to-one is always the owning side and cannot be mapped_by")
			}
			rel.Owning = true
		case schema.OneToOne, schema.ManyToMany:
			rel.Owning = rd.MappedBy == ""
		case schema.OneToMany:
			if rd.ForeignKey != "" {
				return errs.Schemaf(e.Name, rd.Name, "one-to-many is the inverse side; declare the foreign key on %s", rd.Target)
			}
		}

		e.AddRelationship(rel)
	}
	return nil
}

// resolveForeignKeys links or synthesizes the key field of owning to-one
// relationships
func (r *resolver) resolveForeignKeys(e *schema.EntityMetadata) error {
	for _, rel := range e.Relationships {
		if !rel.CarriesForeignKey() {
			continue
		}
		target := r.entities[rel.Target]
		pk := target.PrimaryKeyField()

		if rel.ForeignKey == "" {
			rel.ForeignKey = rel.Name + "_id"
		}

		fk, exists := e.Field(rel.ForeignKey)
		if !exists {
			fk = &schema.FieldMetadata{
				Name: rel.ForeignKey,
				Type: pk.Type,
				Hints: schema.DisplayHints{
					Label:  schema.Humanize(rel.Name),
					Widget: "select",
				},
			}
			e.AddField(fk)
		} else if fk.IsForeignKey() && fk.ForeignKeyOf != rel.Name {
			return errs.Schemaf(e.Name, fk.Name, "field is already the foreign key of %s", fk.ForeignKeyOf)
		}

		if fk.PrimaryKey {
			return errs.Schemaf(e.Name, fk.Name, "primary key cannot be a foreign key")
		}
		if !schema.KeyTypesCompatible(fk.Type, pk.Type) {
			return errs.Schemaf(e.Name, fk.Name, "foreign key type %s is incompatible with %s.%s (%s)",
				fk.Type, target.Name, pk.Name, pk.Type)
		}

		fk.ForeignKeyOf = rel.Name
		fk.Nullable = !rel.Required
		if rel.Kind == schema.OneToOne {
			fk.Unique = true
		}
	}
	return nil
}

// resolveInverse infers mapped_by for inverse relationships declared without
// one, when the target has exactly one owning relationship back
func (r *resolver) resolveInverse(e *schema.EntityMetadata) error {
	for _, rel := range e.Relationships {
		if rel.Owning || rel.Kind == schema.ManyToMany || rel.MappedBy != "" {
			continue
		}

		target := r.entities[rel.Target]
		var candidates []string
		for _, back := range target.Relationships {
			if back.CarriesForeignKey() && back.Target == e.Name {
				candidates = append(candidates, back.Name)
			}
		}
		if len(candidates) != 1 {
			return errs.Schemaf(e.Name, rel.Name,
				"cannot infer mapped_by: %s has %d relationships back to %s", target.Name, len(candidates), e.Name)
		}
		rel.MappedBy = candidates[0]
	}
	return nil
}

// resolveJoins fills in the join entity and keys of many-to-many
// relationships. Inverse sides copy them from the owning side.
func (r *resolver) resolveJoins(e *schema.EntityMetadata) error {
	for _, rel := range e.Relationships {
		if rel.Kind != schema.ManyToMany {
			continue
		}

		if !rel.Owning {
			owning, ok := r.entities[rel.Target].Relationship(rel.MappedBy)
			if !ok || owning.Kind != schema.ManyToMany || !owning.Owning {
				return errs.Schemaf(e.Name, rel.Name, "mapped_by %q is not an owning many-to-many on %s", rel.MappedBy, rel.Target)
			}
			if rel.Through == "" {
				rel.Through = owning.Through
			}
		}

		if rel.Through == "" {
			return errs.Schemaf(e.Name, rel.Name, "many-to-many relationship requires a join entity")
		}
		through, ok := r.entities[rel.Through]
		if !ok {
			return errs.Schemaf(e.Name, rel.Name, "join entity %s is not a registered entity", rel.Through)
		}

		if rel.ThroughOwnerKey == "" || rel.ThroughTargetKey == "" {
			if e.Name == rel.Target {
				return errs.Schemaf(e.Name, rel.Name, "self-referencing many-to-many needs explicit join keys")
			}
			var err error
			if rel.ThroughOwnerKey == "" {
				if rel.ThroughOwnerKey, err = joinKey(through, e.Name); err != nil {
					return errs.Schemaf(e.Name, rel.Name, "%v", err)
				}
			}
			if rel.ThroughTargetKey == "" {
				if rel.ThroughTargetKey, err = joinKey(through, rel.Target); err != nil {
					return errs.Schemaf(e.Name, rel.Name, "%v", err)
				}
			}
		}
	}
	return nil
}

// joinKey finds the single foreign key of a join entity that references target
func joinKey(through *schema.EntityMetadata, target string) (string, error) {
	var keys []string
	for _, rel := range through.Relationships {
		if rel.CarriesForeignKey() && rel.Target == target {
			keys = append(keys, rel.ForeignKey)
		}
	}
	if len(keys) != 1 {
		return "", fmt.Errorf("join entity %s has %d foreign keys to %s, expected one", through.Name, len(keys), target)
	}
	return keys[0], nil
}
