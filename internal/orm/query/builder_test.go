package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/admin/internal/orm/errs"
	"github.com/conduit-lang/admin/internal/orm/schema"
)

// Helper function to create a test entity
func bookEntity() *schema.EntityMetadata {
	e := schema.NewEntityMetadata("Book")
	e.AddField(&schema.FieldMetadata{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true, Auto: true})
	e.AddField(&schema.FieldMetadata{Name: "title", Type: schema.TypeString, MaxLength: 200})
	e.AddField(&schema.FieldMetadata{Name: "year", Type: schema.TypeInt, Nullable: true})
	e.AddField(&schema.FieldMetadata{Name: "status", Type: schema.TypeEnum, EnumValues: []string{"draft", "published"}})
	e.AddField(&schema.FieldMetadata{Name: "available", Type: schema.TypeBool})
	e.AddField(&schema.FieldMetadata{Name: "published_at", Type: schema.TypeTimestamp, Nullable: true})
	e.AddField(&schema.FieldMetadata{Name: "cover", Type: schema.TypeBinary, Nullable: true})
	e.AddField(&schema.FieldMetadata{Name: "ref", Type: schema.TypeUUID, Nullable: true})
	e.AddField(&schema.FieldMetadata{Name: "author_id", Type: schema.TypeBigInt, ForeignKeyOf: "author"})
	e.AddRelationship(&schema.RelationshipMetadata{
		Name: "author", Kind: schema.ManyToOne, Target: "Author", Owning: true, ForeignKey: "author_id",
	})
	e.AddRelationship(&schema.RelationshipMetadata{
		Name: "tags", Kind: schema.ManyToMany, Target: "Tag", Owning: true, Through: "BookTag",
	})
	return e
}

func TestNewBuilder_Limits(t *testing.T) {
	tests := []struct {
		name        string
		opts        Options
		wantDefault int
		wantMax     int
	}{
		{"zero options", Options{}, DefaultLimit, MaxLimit},
		{"custom", Options{DefaultLimit: 10, MaxLimit: 50}, 10, 50},
		{"default above max", Options{DefaultLimit: 80, MaxLimit: 50}, 50, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, max := NewBuilder(tt.opts).Limits()
			assert.Equal(t, tt.wantDefault, def)
			assert.Equal(t, tt.wantMax, max)
		})
	}
}

func TestBuild_Pagination(t *testing.T) {
	b := NewBuilder(Options{DefaultLimit: 20, MaxLimit: 100})

	plan, err := b.Build(bookEntity(), QuerySpec{})
	require.NoError(t, err)
	assert.Equal(t, 20, plan.Limit)
	assert.Equal(t, 0, plan.Offset)

	plan, err = b.Build(bookEntity(), QuerySpec{Limit: 500, Offset: 40})
	require.NoError(t, err)
	assert.Equal(t, 100, plan.Limit)
	assert.Equal(t, 40, plan.Offset)

	_, err = b.Build(bookEntity(), QuerySpec{Offset: -1})
	assert.True(t, errs.IsInvalidQuery(err))
}

func TestBuild_Order(t *testing.T) {
	b := NewBuilder(Options{})

	plan, err := b.Build(bookEntity(), QuerySpec{Sort: ParseSort("-year,title,-year")})
	require.NoError(t, err)
	assert.Equal(t, []OrderTerm{
		{Field: "year", Desc: true},
		{Field: "title"},
		{Field: "id"},
	}, plan.Order)

	plan, err = b.Build(bookEntity(), QuerySpec{Sort: []SortField{{Field: "id", Desc: true}}})
	require.NoError(t, err)
	assert.Equal(t, []OrderTerm{{Field: "id", Desc: true}}, plan.Order)

	// Relationship names sort by their foreign key
	plan, err = b.Build(bookEntity(), QuerySpec{Sort: []SortField{{Field: "author"}}})
	require.NoError(t, err)
	assert.Equal(t, "author_id", plan.Order[0].Field)

	_, err = b.Build(bookEntity(), QuerySpec{Sort: []SortField{{Field: "cover"}}})
	assert.True(t, errs.IsInvalidQuery(err))

	_, err = b.Build(bookEntity(), QuerySpec{Sort: []SortField{{Field: "rating"}}})
	assert.True(t, errs.IsInvalidQuery(err))
}

func TestBuild_Filters(t *testing.T) {
	b := NewBuilder(Options{})

	t.Run("coerces values", func(t *testing.T) {
		plan, err := b.Build(bookEntity(), QuerySpec{Filters: []Filter{
			{Field: "year", Op: "gte", Value: "1965"},
			{Field: "available", Op: "eq", Value: "true"},
			{Field: "author", Value: float64(3)},
		}})
		require.NoError(t, err)
		require.Len(t, plan.Where, 3)
		assert.Equal(t, Predicate{Field: "year", Op: OpGreaterThanOrEqual, Value: int64(1965)}, plan.Where[0])
		assert.Equal(t, Predicate{Field: "available", Op: OpEqual, Value: true}, plan.Where[1])
		assert.Equal(t, Predicate{Field: "author_id", Op: OpEqual, Value: int64(3)}, plan.Where[2])
	})

	t.Run("set and range operands", func(t *testing.T) {
		plan, err := b.Build(bookEntity(), QuerySpec{Filters: []Filter{
			{Field: "year", Op: "in", Value: "1965, 1969"},
			{Field: "status", Op: "not_in", Value: []interface{}{"draft"}},
			{Field: "published_at", Op: "between", Value: []string{"2020-01-01", "2021-01-01"}},
		}})
		require.NoError(t, err)
		assert.Equal(t, []interface{}{int64(1965), int64(1969)}, plan.Where[0].Values)
		assert.Equal(t, []interface{}{"draft"}, plan.Where[1].Values)
		require.Len(t, plan.Where[2].Values, 2)
		assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), plan.Where[2].Values[0])
	})

	t.Run("null equality", func(t *testing.T) {
		plan, err := b.Build(bookEntity(), QuerySpec{Filters: []Filter{
			{Field: "year", Op: "eq", Value: nil},
			{Field: "year", Op: "ne"},
			{Field: "cover", Op: "is_not_null"},
		}})
		require.NoError(t, err)
		assert.Equal(t, OpIsNull, plan.Where[0].Op)
		assert.Equal(t, OpIsNotNull, plan.Where[1].Op)
		assert.Equal(t, OpIsNotNull, plan.Where[2].Op)
	})

	invalid := []struct {
		name   string
		filter Filter
	}{
		{"unknown field", Filter{Field: "rating", Op: "eq", Value: 1}},
		{"to-many relationship", Filter{Field: "tags", Op: "eq", Value: 1}},
		{"unknown operator", Filter{Field: "title", Op: "regex", Value: "x"}},
		{"substring on number", Filter{Field: "year", Op: "contains", Value: "19"}},
		{"substring on uuid", Filter{Field: "ref", Op: "starts_with", Value: "a"}},
		{"ordering on boolean", Filter{Field: "available", Op: "gt", Value: true}},
		{"ordering on enum", Filter{Field: "status", Op: "lt", Value: "draft"}},
		{"binary equality", Filter{Field: "cover", Op: "eq", Value: "AA=="}},
		{"bad number", Filter{Field: "year", Op: "eq", Value: "nineteen"}},
		{"between one value", Filter{Field: "year", Op: "between", Value: "1965"}},
		{"enum non-member", Filter{Field: "status", Op: "eq", Value: "lost"}},
		{"ordering without value", Filter{Field: "year", Op: "gt"}},
		{"semi-join from request", Filter{Field: "id", Op: "in_plan"}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.Build(bookEntity(), QuerySpec{Filters: []Filter{tt.filter}})
			require.Error(t, err)
			assert.True(t, errs.IsInvalidQuery(err), err.Error())
		})
	}
}

func TestBuild_Search(t *testing.T) {
	plan, err := NewBuilder(Options{}).Build(bookEntity(), QuerySpec{Search: " dune "})
	require.NoError(t, err)
	require.Len(t, plan.Where, 1)

	search := plan.Where[0]
	assert.Equal(t, OpAny, search.Op)
	require.Len(t, search.Group, 1)
	assert.Equal(t, Predicate{Field: "title", Op: OpContains, Value: "dune"}, search.Group[0])

	tag := schema.NewEntityMetadata("Counter")
	tag.AddField(&schema.FieldMetadata{Name: "id", Type: schema.TypeInt, PrimaryKey: true})
	_, err = NewBuilder(Options{}).Build(tag, QuerySpec{Search: "x"})
	assert.True(t, errs.IsInvalidQuery(err))
}

func TestBuild_Projection(t *testing.T) {
	b := NewBuilder(Options{})

	plan, err := b.Build(bookEntity(), QuerySpec{})
	require.NoError(t, err)
	assert.NotContains(t, plan.Columns, "cover")
	assert.Len(t, plan.Columns, len(bookEntity().Fields)-1)
	assert.Equal(t, "id", plan.Columns[0])

	plan, err = b.Build(bookEntity(), QuerySpec{Fields: []string{"cover"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "cover"}, plan.Columns)

	plan, err = b.Build(bookEntity(), QuerySpec{Fields: []string{"title", "author", "title"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "title", "author_id"}, plan.Columns)
	assert.True(t, plan.HasColumn("author_id"))
	assert.False(t, plan.HasColumn("year"))

	_, err = b.Build(bookEntity(), QuerySpec{Fields: []string{"nope"}})
	assert.True(t, errs.IsInvalidQuery(err))
}

func TestPlan_Unbounded(t *testing.T) {
	plan, err := NewBuilder(Options{}).Build(bookEntity(), QuerySpec{
		Filters: []Filter{{Field: "year", Op: "gt", Value: 1900}},
		Offset:  10,
		Limit:   5,
	})
	require.NoError(t, err)

	count := plan.Unbounded()
	assert.Nil(t, count.Order)
	assert.Zero(t, count.Limit)
	assert.Zero(t, count.Offset)
	assert.Equal(t, plan.Where, count.Where)
	assert.Equal(t, 5, plan.Limit, "original plan is untouched")
}
