package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Excluded references the incoming row inside an ON CONFLICT DO UPDATE clause.
func Excluded(column string) any {
	return sqlbuilder.Raw(fmt.Sprintf("EXCLUDED.%s", column))
}

type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{
		sqlbuilder.PostgreSQL.NewInsertBuilder(),
	}
}

func (b *InsertBuilder) OnConflict(columns ...string) *UpdateBuilder {
	ub := NewUpdateBuilder()
	b.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE %s", strings.Join(columns, ", "), b.Var(ub)))

	return ub
}

func (b *InsertBuilder) OnConflictDoNothing() *InsertBuilder {
	b.SQL("ON CONFLICT DO NOTHING")
	return b
}

func (b *InsertBuilder) InsertInto(table string) *InsertBuilder {
	return &InsertBuilder{b.InsertBuilder.InsertInto(table)}
}

func (b *InsertBuilder) Cols(col ...string) *InsertBuilder {
	return &InsertBuilder{b.InsertBuilder.Cols(col...)}
}

func (b *InsertBuilder) Values(value ...interface{}) *InsertBuilder {
	return &InsertBuilder{b.InsertBuilder.Values(value...)}
}

func (b *InsertBuilder) Returning(col ...string) *InsertBuilder {
	return &InsertBuilder{b.InsertBuilder.Returning(col...)}
}

func (b *InsertBuilder) Build() (sql string, args []interface{}) {
	return b.InsertBuilder.Build()
}

type UpdateBuilder struct {
	*sqlbuilder.UpdateBuilder
}

func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{sqlbuilder.PostgreSQL.NewUpdateBuilder()}
}

type DeleteBuilder struct {
	*sqlbuilder.DeleteBuilder
}

func NewDeleteBuilder() *DeleteBuilder {
	return &DeleteBuilder{sqlbuilder.PostgreSQL.NewDeleteBuilder()}
}

type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{sqlbuilder.PostgreSQL.NewSelectBuilder()}
}
