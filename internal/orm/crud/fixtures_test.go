package crud

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/store"
	"github.com/conduit-lang/admin/internal/store/memory"
)

func serial() *schema.FieldMetadata {
	return &schema.FieldMetadata{Name: "id", Type: schema.TypeInt, PrimaryKey: true, Auto: true}
}

// bookstore describes Book and Author as in the admin documentation, plus
// the entities needed to exercise every cascade policy
func bookstore(t *testing.T) *schema.Registry {
	t.Helper()

	country := schema.NewEntityMetadata("Country")
	country.AddField(&schema.FieldMetadata{Name: "code", Type: schema.TypeString, PrimaryKey: true, MaxLength: 2})
	country.AddField(&schema.FieldMetadata{Name: "name", Type: schema.TypeString})

	publisher := schema.NewEntityMetadata("Publisher")
	publisher.AddField(serial())
	publisher.AddField(&schema.FieldMetadata{Name: "name", Type: schema.TypeString})
	publisher.AddField(&schema.FieldMetadata{Name: "country_code", Type: schema.TypeString, Nullable: true, ForeignKeyOf: "country"})
	publisher.AddRelationship(&schema.RelationshipMetadata{
		Name: "country", Kind: schema.ManyToOne, Target: "Country", Owning: true, ForeignKey: "country_code",
	})

	author := schema.NewEntityMetadata("Author")
	author.AddField(serial())
	author.AddField(&schema.FieldMetadata{Name: "name", Type: schema.TypeString, MaxLength: 100})
	author.AddField(&schema.FieldMetadata{Name: "country_code", Type: schema.TypeString, Nullable: true, ForeignKeyOf: "country"})
	author.AddRelationship(&schema.RelationshipMetadata{
		Name: "country", Kind: schema.ManyToOne, Target: "Country", Owning: true,
		ForeignKey: "country_code", Cascade: schema.CascadeUpdate,
	})
	author.AddRelationship(&schema.RelationshipMetadata{
		Name: "books", Kind: schema.OneToMany, Target: "Book", MappedBy: "author",
	})

	book := schema.NewEntityMetadata("Book")
	book.AddField(serial())
	book.AddField(&schema.FieldMetadata{Name: "title", Type: schema.TypeString, MaxLength: 200})
	book.AddField(&schema.FieldMetadata{Name: "isbn", Type: schema.TypeString, Nullable: true, Unique: true})
	book.AddField(&schema.FieldMetadata{Name: "status", Type: schema.TypeEnum, EnumValues: []string{"draft", "published"}, Default: "draft"})
	book.AddField(&schema.FieldMetadata{Name: "author_id", Type: schema.TypeInt, ForeignKeyOf: "author"})
	book.AddField(&schema.FieldMetadata{Name: "version", Type: schema.TypeInt, Version: true})
	book.AddRelationship(&schema.RelationshipMetadata{
		Name: "author", Kind: schema.ManyToOne, Target: "Author", Owning: true,
		ForeignKey: "author_id", Required: true, Fetch: schema.FetchEager,
	})
	book.AddRelationship(&schema.RelationshipMetadata{
		Name: "tags", Kind: schema.ManyToMany, Target: "Tag", Owning: true,
		Through: "BookTag", ThroughOwnerKey: "book_id", ThroughTargetKey: "tag_id",
	})

	review := schema.NewEntityMetadata("Review")
	review.AddField(serial())
	review.AddField(&schema.FieldMetadata{Name: "body", Type: schema.TypeText})
	review.AddField(&schema.FieldMetadata{Name: "book_id", Type: schema.TypeInt, Nullable: true, ForeignKeyOf: "book"})
	review.AddField(&schema.FieldMetadata{Name: "edited_at", Type: schema.TypeTimestamp, Version: true})
	review.AddRelationship(&schema.RelationshipMetadata{
		Name: "book", Kind: schema.ManyToOne, Target: "Book", Owning: true,
		ForeignKey: "book_id", Cascade: schema.CascadeSetNull,
	})

	tag := schema.NewEntityMetadata("Tag")
	tag.AddField(serial())
	tag.AddField(&schema.FieldMetadata{Name: "label", Type: schema.TypeString, Unique: true})

	bookTag := schema.NewEntityMetadata("BookTag")
	bookTag.AddField(serial())
	bookTag.AddField(&schema.FieldMetadata{Name: "book_id", Type: schema.TypeInt, ForeignKeyOf: "book"})
	bookTag.AddField(&schema.FieldMetadata{Name: "tag_id", Type: schema.TypeInt, ForeignKeyOf: "tag"})
	bookTag.AddRelationship(&schema.RelationshipMetadata{
		Name: "book", Kind: schema.ManyToOne, Target: "Book", Owning: true,
		ForeignKey: "book_id", Required: true, Cascade: schema.CascadeDelete,
	})
	bookTag.AddRelationship(&schema.RelationshipMetadata{
		Name: "tag", Kind: schema.ManyToOne, Target: "Tag", Owning: true,
		ForeignKey: "tag_id", Required: true, Cascade: schema.CascadeDelete,
	})

	reg, err := schema.Build(country, publisher, author, book, review, tag, bookTag)
	require.NoError(t, err)
	return reg
}

var clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type env struct {
	reg   *schema.Registry
	store *memory.Store
	exec  *Executor
	ctx   context.Context
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	reg := bookstore(t)
	st := memory.New()
	if opts.Builder == nil {
		opts.Builder = query.NewBuilder(query.Options{DefaultLimit: 5, MaxLimit: 10})
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return clock }
	}
	opts.Logger = zap.NewNop()
	return &env{reg: reg, store: st, exec: New(reg, st, opts), ctx: context.Background()}
}

// seed inserts a row directly, bypassing the executor
func (e *env) seed(t *testing.T, entity string, row store.Row) interface{} {
	t.Helper()
	meta, err := e.reg.Get(entity)
	require.NoError(t, err)
	key, err := e.store.Insert(e.ctx, meta.Storage(), row)
	require.NoError(t, err)
	return key
}

func (e *env) count(t *testing.T, entity string) int {
	t.Helper()
	meta, err := e.reg.Get(entity)
	require.NoError(t, err)
	return e.store.Len(meta.TableName)
}
