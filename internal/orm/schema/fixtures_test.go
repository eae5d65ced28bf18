package schema

func idField() *FieldMetadata {
	return &FieldMetadata{Name: "id", Type: TypeInt, PrimaryKey: true, Auto: true}
}

func authorEntity() *EntityMetadata {
	e := NewEntityMetadata("Author")
	e.AddField(idField())
	e.AddField(&FieldMetadata{Name: "name", Type: TypeString, MaxLength: 100})
	e.AddRelationship(&RelationshipMetadata{
		Name:     "books",
		Kind:     OneToMany,
		Target:   "Book",
		MappedBy: "author",
	})
	return e
}

func bookEntity() *EntityMetadata {
	e := NewEntityMetadata("Book")
	e.AddField(idField())
	e.AddField(&FieldMetadata{Name: "title", Type: TypeString, MaxLength: 200})
	e.AddField(&FieldMetadata{Name: "isbn", Type: TypeString, Unique: true})
	e.AddField(&FieldMetadata{Name: "author_id", Type: TypeInt, ForeignKeyOf: "author"})
	e.AddField(&FieldMetadata{Name: "version", Type: TypeInt, Version: true})
	e.AddRelationship(&RelationshipMetadata{
		Name:       "author",
		Kind:       ManyToOne,
		Target:     "Author",
		Owning:     true,
		ForeignKey: "author_id",
		Required:   true,
	})
	e.AddRelationship(&RelationshipMetadata{
		Name:             "tags",
		Kind:             ManyToMany,
		Target:           "Tag",
		Owning:           true,
		Through:          "BookTag",
		ThroughOwnerKey:  "book_id",
		ThroughTargetKey: "tag_id",
	})
	return e
}

func tagEntity() *EntityMetadata {
	e := NewEntityMetadata("Tag")
	e.AddField(idField())
	e.AddField(&FieldMetadata{Name: "label", Type: TypeString})
	return e
}

func bookTagEntity() *EntityMetadata {
	e := NewEntityMetadata("BookTag")
	e.AddField(idField())
	e.AddField(&FieldMetadata{Name: "book_id", Type: TypeInt, ForeignKeyOf: "book"})
	e.AddField(&FieldMetadata{Name: "tag_id", Type: TypeInt, ForeignKeyOf: "tag"})
	e.AddRelationship(&RelationshipMetadata{
		Name: "book", Kind: ManyToOne, Target: "Book", Owning: true, ForeignKey: "book_id", Required: true,
		Cascade: CascadeDelete,
	})
	e.AddRelationship(&RelationshipMetadata{
		Name: "tag", Kind: ManyToOne, Target: "Tag", Owning: true, ForeignKey: "tag_id", Required: true,
		Cascade: CascadeDelete,
	})
	return e
}

func bookstore() []*EntityMetadata {
	return []*EntityMetadata{authorEntity(), bookEntity(), tagEntity(), bookTagEntity()}
}
