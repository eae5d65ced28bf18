package relationships

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/store"
	"github.com/conduit-lang/admin/internal/store/memory"
)

func id() *schema.FieldMetadata {
	return &schema.FieldMetadata{Name: "id", Type: schema.TypeInt, PrimaryKey: true, Auto: true}
}

func library(t *testing.T) *schema.Registry {
	t.Helper()

	author := schema.NewEntityMetadata("Author")
	author.AddField(id())
	author.AddField(&schema.FieldMetadata{Name: "name", Type: schema.TypeString})
	author.AddRelationship(&schema.RelationshipMetadata{
		Name: "books", Kind: schema.OneToMany, Target: "Book", MappedBy: "author",
	})
	author.AddRelationship(&schema.RelationshipMetadata{
		Name: "profile", Kind: schema.OneToOne, Target: "Profile", MappedBy: "author", Fetch: schema.FetchEager,
	})

	profile := schema.NewEntityMetadata("Profile")
	profile.AddField(id())
	profile.AddField(&schema.FieldMetadata{Name: "bio", Type: schema.TypeText})
	profile.AddField(&schema.FieldMetadata{Name: "author_id", Type: schema.TypeInt, Unique: true, ForeignKeyOf: "author"})
	profile.AddRelationship(&schema.RelationshipMetadata{
		Name: "author", Kind: schema.OneToOne, Target: "Author", Owning: true, ForeignKey: "author_id", Required: true,
	})

	book := schema.NewEntityMetadata("Book")
	book.AddField(id())
	book.AddField(&schema.FieldMetadata{Name: "title", Type: schema.TypeString})
	book.AddField(&schema.FieldMetadata{Name: "author_id", Type: schema.TypeInt, Nullable: true, ForeignKeyOf: "author"})
	book.AddRelationship(&schema.RelationshipMetadata{
		Name: "author", Kind: schema.ManyToOne, Target: "Author", Owning: true, ForeignKey: "author_id",
		Cascade: schema.CascadeSetNull, Fetch: schema.FetchEager,
	})
	book.AddRelationship(&schema.RelationshipMetadata{
		Name: "tags", Kind: schema.ManyToMany, Target: "Tag", Owning: true,
		Through: "BookTag", ThroughOwnerKey: "book_id", ThroughTargetKey: "tag_id",
	})

	tag := schema.NewEntityMetadata("Tag")
	tag.AddField(id())
	tag.AddField(&schema.FieldMetadata{Name: "label", Type: schema.TypeString})

	bookTag := schema.NewEntityMetadata("BookTag")
	bookTag.AddField(id())
	bookTag.AddField(&schema.FieldMetadata{Name: "book_id", Type: schema.TypeInt, ForeignKeyOf: "book"})
	bookTag.AddField(&schema.FieldMetadata{Name: "tag_id", Type: schema.TypeInt, ForeignKeyOf: "tag"})
	bookTag.AddRelationship(&schema.RelationshipMetadata{
		Name: "book", Kind: schema.ManyToOne, Target: "Book", Owning: true, ForeignKey: "book_id", Required: true,
		Cascade: schema.CascadeDelete,
	})
	bookTag.AddRelationship(&schema.RelationshipMetadata{
		Name: "tag", Kind: schema.ManyToOne, Target: "Tag", Owning: true, ForeignKey: "tag_id", Required: true,
		Cascade: schema.CascadeDelete,
	})

	reg, err := schema.Build(author, profile, book, tag, bookTag)
	require.NoError(t, err)
	return reg
}

type fixture struct {
	reg      *schema.Registry
	store    *memory.Store
	resolver *Resolver
	ctx      context.Context
}

func newFixture(t *testing.T) *fixture {
	reg := library(t)
	st := memory.New()
	return &fixture{
		reg:      reg,
		store:    st,
		resolver: NewResolver(reg, st, query.NewBuilder(query.Options{DefaultLimit: 2, MaxLimit: 3})),
		ctx:      context.Background(),
	}
}

func (f *fixture) insert(t *testing.T, entity string, row store.Row) interface{} {
	t.Helper()
	meta, err := f.reg.Get(entity)
	require.NoError(t, err)
	key, err := f.store.Insert(f.ctx, meta.Storage(), row)
	require.NoError(t, err)
	return key
}

func (f *fixture) instance(t *testing.T, entity string, key interface{}) *Instance {
	t.Helper()
	meta, err := f.reg.Get(entity)
	require.NoError(t, err)
	rows, err := f.store.Query(f.ctx, &query.Plan{
		Entity: entity,
		Table:  meta.Storage(),
		Where:  []query.Predicate{query.Eq(meta.PrimaryKey, key)},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	return NewInstance(meta, rows[0])
}

func TestResolver_ToOne(t *testing.T) {
	f := newFixture(t)
	herbert := f.insert(t, "Author", store.Row{"name": "Frank Herbert"})
	f.insert(t, "Profile", store.Row{"bio": "Wrote Dune", "author_id": herbert})
	dune := f.insert(t, "Book", store.Row{"title": "Dune", "author_id": herbert})
	orphan := f.insert(t, "Book", store.Row{"title": "Anonymous", "author_id": nil})

	t.Run("owning side", func(t *testing.T) {
		res, err := f.resolver.Resolve(f.ctx, f.instance(t, "Book", dune), "author", query.QuerySpec{})
		require.NoError(t, err)
		require.NotNil(t, res.One)
		assert.Nil(t, res.Many)
		assert.Equal(t, "Frank Herbert", res.One.Get("name"))
		assert.Equal(t, herbert, res.One.Key)
	})

	t.Run("null foreign key", func(t *testing.T) {
		res, err := f.resolver.Resolve(f.ctx, f.instance(t, "Book", orphan), "author", query.QuerySpec{})
		require.NoError(t, err)
		assert.Nil(t, res.One)
	})

	t.Run("inverse one-to-one", func(t *testing.T) {
		res, err := f.resolver.Resolve(f.ctx, f.instance(t, "Author", herbert), "profile", query.QuerySpec{})
		require.NoError(t, err)
		require.NotNil(t, res.One)
		assert.Equal(t, "Wrote Dune", res.One.Get("bio"))
	})

	t.Run("inverse one-to-one without a record", func(t *testing.T) {
		other := f.insert(t, "Author", store.Row{"name": "Ursula K. Le Guin"})
		res, err := f.resolver.Resolve(f.ctx, f.instance(t, "Author", other), "profile", query.QuerySpec{})
		require.NoError(t, err)
		assert.Nil(t, res.One)
	})
}

func TestResolver_OneToManyPaginates(t *testing.T) {
	f := newFixture(t)
	herbert := f.insert(t, "Author", store.Row{"name": "Frank Herbert"})
	other := f.insert(t, "Author", store.Row{"name": "Ursula K. Le Guin"})
	for _, title := range []string{"Dune", "Dune Messiah", "Children of Dune", "God Emperor of Dune"} {
		f.insert(t, "Book", store.Row{"title": title, "author_id": herbert})
	}
	f.insert(t, "Book", store.Row{"title": "The Dispossessed", "author_id": other})

	inst := f.instance(t, "Author", herbert)

	res, err := f.resolver.Resolve(f.ctx, inst, "books", query.QuerySpec{})
	require.NoError(t, err)
	require.NotNil(t, res.Many)
	assert.Nil(t, res.One)
	assert.Equal(t, int64(4), res.Many.Total)
	assert.Len(t, res.Many.Items, 2, "default limit applies")
	assert.True(t, res.Many.HasMore())

	res, err = f.resolver.Resolve(f.ctx, inst, "books", query.QuerySpec{Limit: 50, Sort: query.ParseSort("title")})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Many.Limit, "limit is capped")
	require.Len(t, res.Many.Items, 3)
	assert.Equal(t, "Children of Dune", res.Many.Items[0].Get("title"))

	res, err = f.resolver.Resolve(f.ctx, inst, "books", query.QuerySpec{
		Offset:  2,
		Limit:   3,
		Filters: []query.Filter{{Field: "title", Op: "contains", Value: "dune"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Many.Total)
	assert.Len(t, res.Many.Items, 2)
	assert.False(t, res.Many.HasMore())
}

func TestResolver_ManyToMany(t *testing.T) {
	f := newFixture(t)
	dune := f.insert(t, "Book", store.Row{"title": "Dune", "author_id": nil})
	other := f.insert(t, "Book", store.Row{"title": "Solaris", "author_id": nil})

	var tags []interface{}
	for _, label := range []string{"classic", "desert", "politics", "space"} {
		tags = append(tags, f.insert(t, "Tag", store.Row{"label": label}))
	}
	for _, tag := range tags[:3] {
		f.insert(t, "BookTag", store.Row{"book_id": dune, "tag_id": tag})
	}
	f.insert(t, "BookTag", store.Row{"book_id": other, "tag_id": tags[3]})

	res, err := f.resolver.Resolve(f.ctx, f.instance(t, "Book", dune), "tags", query.QuerySpec{
		Sort:  query.ParseSort("-label"),
		Limit: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Many.Total)

	var labels []interface{}
	for _, item := range res.Many.Items {
		labels = append(labels, item.Get("label"))
	}
	assert.Equal(t, []interface{}{"politics", "desert", "classic"}, labels)
}

func TestResolver_IsPure(t *testing.T) {
	f := newFixture(t)
	herbert := f.insert(t, "Author", store.Row{"name": "Frank Herbert"})
	f.insert(t, "Book", store.Row{"title": "Dune", "author_id": herbert})
	inst := f.instance(t, "Author", herbert)

	h, err := f.resolver.Handle(inst, "books")
	require.NoError(t, err)
	assert.False(t, h.Loaded)

	first, err := f.resolver.ResolveHandle(f.ctx, h, query.QuerySpec{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Many.Total)
	assert.False(t, h.Loaded, "handle is not modified")
	assert.Nil(t, h.Result)
	assert.Nil(t, inst.Relations)

	f.insert(t, "Book", store.Row{"title": "Dune Messiah", "author_id": herbert})

	second, err := f.resolver.ResolveHandle(f.ctx, h, query.QuerySpec{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Many.Total, "results are not cached")
	assert.Equal(t, int64(1), first.Many.Total)
}

func TestResolver_Attach(t *testing.T) {
	f := newFixture(t)
	herbert := f.insert(t, "Author", store.Row{"name": "Frank Herbert"})
	f.insert(t, "Profile", store.Row{"bio": "Wrote Dune", "author_id": herbert})
	dune := f.insert(t, "Book", store.Row{"title": "Dune", "author_id": herbert})

	book := f.instance(t, "Book", dune)
	require.NoError(t, f.resolver.Attach(f.ctx, book))
	require.Len(t, book.Relations, 2)

	author := book.Relations["author"]
	assert.True(t, author.Loaded)
	assert.Equal(t, herbert, author.Ref)
	require.NotNil(t, author.Result.One)
	assert.Equal(t, "Frank Herbert", author.Result.One.Get("name"))
	assert.Nil(t, author.Result.One.Relations, "eager loading stops at one level")

	tags := book.Relations["tags"]
	assert.False(t, tags.Loaded)
	assert.Nil(t, tags.Result)
	assert.Equal(t, "Tag", tags.Target)

	writer := f.instance(t, "Author", herbert)
	require.NoError(t, f.resolver.Attach(f.ctx, writer))
	assert.True(t, writer.Relations["profile"].Loaded)
	assert.False(t, writer.Relations["books"].Loaded)
}

func TestResolver_UnknownRelationship(t *testing.T) {
	f := newFixture(t)
	key := f.insert(t, "Tag", store.Row{"label": "classic"})

	_, err := f.resolver.Resolve(f.ctx, f.instance(t, "Tag", key), "books", query.QuerySpec{})
	assert.True(t, errs.IsInvalidQuery(err), "got %v", err)

	_, err = f.resolver.Resolve(f.ctx, &Instance{Entity: "Missing"}, "books", query.QuerySpec{})
	assert.True(t, errs.IsNotFound(err), "got %v", err)
}

func TestResolver_InvalidSpec(t *testing.T) {
	f := newFixture(t)
	herbert := f.insert(t, "Author", store.Row{"name": "Frank Herbert"})

	_, err := f.resolver.Resolve(f.ctx, f.instance(t, "Author", herbert), "books", query.QuerySpec{
		Filters: []query.Filter{{Field: "pages", Op: "eq", Value: 1}},
	})
	assert.True(t, errs.IsInvalidQuery(err), "got %v", err)
}
