package introspect

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/schema"
)

// Struct tag keys read by FromStruct
const (
	FieldTag    = "admin"
	RelationTag = "rel"
	ColumnTag   = "db"
)

var (
	timeType = reflect.TypeOf(time.Time{})
	uuidType = reflect.TypeOf(uuid.UUID{})
	byteType = reflect.TypeOf([]byte(nil))
)

// FromStruct returns a Describable that reads an entity declaration from the
// struct tags of v, which must be a struct or a pointer to one.
//
//	type Book struct {
//		ID       int64   `json:"id" admin:"pk,auto"`
//		Title    string  `json:"title" admin:"required,max=200"`
//		ISBN     string  `json:"isbn" admin:"unique"`
//		Author   *Author `json:"author" rel:"many_to_one,required"`
//		Version  int64   `json:"version" admin:"version"`
//	}
//
// The entity name is the struct name unless the type has an EntityName()
// method; the table name comes from a TableName() method when present.
// Field names come from the json tag, falling back to the snake_case Go name.
func FromStruct(v interface{}) Describable {
	return &structDescriber{value: v}
}

type structDescriber struct {
	value interface{}
}

func (s *structDescriber) Describe() (*Descriptor, error) {
	t := reflect.TypeOf(s.value)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, errs.Schemaf("", "", "%T is not a struct", s.value)
	}

	d := &Descriptor{Name: t.Name()}
	if named, ok := s.value.(interface{ EntityName() string }); ok {
		d.Name = named.EntityName()
	}
	if tabled, ok := s.value.(interface{ TableName() string }); ok {
		d.Table = tabled.TableName()
	}

	if err := collectStructFields(d, t); err != nil {
		return nil, err
	}
	return d, nil
}

func collectStructFields(d *Descriptor, t reflect.Type) error {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}

		fieldTag, hasFieldTag := sf.Tag.Lookup(FieldTag)
		if fieldTag == "-" {
			continue
		}

		if relTag, ok := sf.Tag.Lookup(RelationTag); ok {
			rel, err := parseRelationTag(d.Name, sf, relTag)
			if err != nil {
				return err
			}
			d.Relationships = append(d.Relationships, rel)
			continue
		}

		// Embedded structs without their own tag contribute their fields
		if sf.Anonymous && !hasFieldTag {
			et := sf.Type
			if et.Kind() == reflect.Ptr {
				et = et.Elem()
			}
			if et.Kind() == reflect.Struct && et != timeType {
				if err := collectStructFields(d, et); err != nil {
					return err
				}
				continue
			}
		}

		field, err := parseFieldTag(d.Name, sf, fieldTag)
		if err != nil {
			return err
		}
		d.Fields = append(d.Fields, field)
	}
	return nil
}

type tagOption struct {
	key   string
	value string
}

func splitTag(tag string) []tagOption {
	var opts []tagOption
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		opts = append(opts, tagOption{key: strings.ToLower(strings.TrimSpace(key)), value: strings.TrimSpace(value)})
	}
	return opts
}

func parseFieldTag(entity string, sf reflect.StructField, tag string) (FieldDecl, error) {
	decl := FieldDecl{
		Name:   structFieldName(sf),
		Column: sf.Tag.Get(ColumnTag),
	}
	opts := splitTag(tag)

	// The type must be known before min/max can be read as lengths or bounds
	for _, opt := range opts {
		switch opt.key {
		case "type":
			decl.Type = opt.value
		case "enum":
			decl.Enum = strings.Split(opt.value, "|")
		}
	}
	if decl.Type == "" {
		if len(decl.Enum) > 0 {
			decl.Type = schema.TypeEnum.String()
		} else {
			inferred, ok := goFieldType(sf.Type)
			if !ok {
				return decl, errs.Schemaf(entity, decl.Name, "unsupported Go type %s", sf.Type)
			}
			decl.Type = inferred.String()
		}
	}
	ft, err := schema.ParseFieldType(decl.Type)
	if err != nil {
		return decl, errs.Schemaf(entity, decl.Name, "%v", err)
	}

	for _, opt := range opts {
		var perr error
		switch opt.key {
		case "type", "enum":
		case "pk", "primary_key":
			decl.PrimaryKey = true
		case "auto":
			decl.Auto = true
		case "required":
			decl.Required = true
		case "nullable":
			decl.Nullable = true
		case "unique":
			decl.Unique = true
		case "version":
			decl.Version = true
		case "max":
			if ft.Kind() == schema.KindString {
				decl.MaxLength, perr = strconv.Atoi(opt.value)
			} else {
				decl.Max, perr = parseBound(opt.value)
			}
		case "min":
			if ft.Kind() == schema.KindString {
				decl.MinLength, perr = strconv.Atoi(opt.value)
			} else {
				decl.Min, perr = parseBound(opt.value)
			}
		case "maxlen":
			decl.MaxLength, perr = strconv.Atoi(opt.value)
		case "minlen":
			decl.MinLength, perr = strconv.Atoi(opt.value)
		case "pattern":
			decl.Pattern = opt.value
		case "default":
			decl.Default = opt.value
		case "column":
			decl.Column = opt.value
		case "label":
			decl.Label = opt.value
		case "order":
			decl.Order, perr = strconv.Atoi(opt.value)
		case "hidden":
			decl.Hidden = true
		case "readonly", "read_only":
			decl.ReadOnly = true
		case "widget":
			decl.Widget = opt.value
		case "help":
			decl.HelpText = opt.value
		default:
			return decl, errs.Schemaf(entity, decl.Name, "unknown %s tag option %q", FieldTag, opt.key)
		}
		if perr != nil {
			return decl, errs.Schemaf(entity, decl.Name, "invalid %s value %q", opt.key, opt.value)
		}
	}

	return decl, nil
}

func parseRelationTag(entity string, sf reflect.StructField, tag string) (RelationDecl, error) {
	decl := RelationDecl{Name: structFieldName(sf)}
	opts := splitTag(tag)
	if len(opts) == 0 {
		return decl, errs.Schemaf(entity, decl.Name, "%s tag needs a relationship kind", RelationTag)
	}
	decl.Kind = opts[0].key

	for _, opt := range opts[1:] {
		switch opt.key {
		case "target":
			decl.Target = opt.value
		case "fk", "foreign_key":
			decl.ForeignKey = opt.value
		case "mapped_by":
			decl.MappedBy = opt.value
		case "through":
			decl.Through = opt.value
		case "owner_key":
			decl.ThroughOwnerKey = opt.value
		case "target_key":
			decl.ThroughTargetKey = opt.value
		case "required":
			decl.Required = true
		case "cascade":
			decl.Cascade = opt.value
		case "fetch":
			decl.Fetch = opt.value
		case "eager":
			decl.Fetch = schema.FetchEager.String()
		default:
			return decl, errs.Schemaf(entity, decl.Name, "unknown %s tag option %q", RelationTag, opt.key)
		}
	}

	if decl.Target == "" {
		t := sf.Type
		for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct || t.Name() == "" {
			return decl, errs.Schemaf(entity, decl.Name, "cannot infer relationship target from %s", sf.Type)
		}
		decl.Target = t.Name()
	}
	return decl, nil
}

func structFieldName(sf reflect.StructField) string {
	if name, _, _ := strings.Cut(sf.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return schema.ToSnakeCase(sf.Name)
}

func parseBound(s string) (*float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// goFieldType maps a Go type to the field type it is stored as
func goFieldType(t reflect.Type) (schema.FieldType, bool) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t {
	case timeType:
		return schema.TypeTimestamp, true
	case uuidType:
		return schema.TypeUUID, true
	case byteType:
		return schema.TypeBinary, true
	}

	switch t.Kind() {
	case reflect.String:
		return schema.TypeString, true
	case reflect.Bool:
		return schema.TypeBool, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint8, reflect.Uint16:
		return schema.TypeInt, true
	case reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return schema.TypeBigInt, true
	case reflect.Float32, reflect.Float64:
		return schema.TypeFloat, true
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return schema.TypeBinary, true
		}
	}
	return 0, false
}
