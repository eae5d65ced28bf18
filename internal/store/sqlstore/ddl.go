package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/admin/internal/orm/schema"
)

// CreateTableSQL renders the CREATE TABLE statement of an entity. Foreign
// keys reference the target's primary key; cascades are applied by the
// executor, except that primary-key updates propagate for update policies.
func CreateTableSQL(d Dialect, reg *schema.Registry, entity *schema.EntityMetadata) (string, error) {
	var defs []string

	for _, f := range entity.Fields {
		def := d.Quote(f.Column) + " " + d.ColumnType(f)
		if f.PrimaryKey {
			switch {
			case f.Auto && d.Name == SQLite.Name && f.Type.IsInteger():
				def += " PRIMARY KEY AUTOINCREMENT"
			case f.Auto && d.Name == MySQL.Name && f.Type.IsInteger():
				def += " AUTO_INCREMENT PRIMARY KEY"
			default:
				def += " PRIMARY KEY"
			}
		} else {
			if !f.Nullable {
				def += " NOT NULL"
			}
			if f.Unique {
				def += " UNIQUE"
			}
		}
		defs = append(defs, def)
	}

	for _, rel := range entity.Relationships {
		if !rel.CarriesForeignKey() {
			continue
		}
		target, err := reg.Get(rel.Target)
		if err != nil {
			return "", err
		}
		fk, ok := entity.Field(rel.ForeignKey)
		if !ok {
			return "", fmt.Errorf("%s.%s: foreign key field %s missing", entity.Name, rel.Name, rel.ForeignKey)
		}
		ref := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			d.Quote(fk.Column), d.Quote(target.TableName), d.Quote(target.PrimaryKeyField().Column))
		if policyOf(reg, entity.Name, rel) == schema.CascadeUpdate {
			ref += " ON UPDATE CASCADE"
		}
		defs = append(defs, ref)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		d.Quote(entity.TableName), strings.Join(defs, ",\n  ")), nil
}

// policyOf returns the effective cascade policy of an owning relationship
func policyOf(reg *schema.Registry, entity string, rel *schema.RelationshipMetadata) schema.CascadePolicy {
	for _, dep := range reg.Dependents(rel.Target) {
		if dep.Entity.Name == entity && dep.Relationship.Name == rel.Name {
			return dep.Policy()
		}
	}
	return rel.Cascade
}

// Migrate creates the tables of every registered entity, referenced tables
// first
func (s *Store) Migrate(ctx context.Context, reg *schema.Registry) error {
	order, err := reg.DependencyOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		entity, err := reg.Get(name)
		if err != nil {
			return err
		}
		stmt, err := CreateTableSQL(s.dialect, reg, entity)
		if err != nil {
			return err
		}
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", entity.TableName, err)
		}
		s.logger.Info("table ready", zap.String("entity", name), zap.String("table", entity.TableName))
	}
	return nil
}
