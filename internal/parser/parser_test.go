package parser

import (
	"testing"

	"entremets/internal/ast"
	"github.com/stretchr/testify/require"
)

func TestParseLostUpdateSpec(t *testing.T) {
	src := `
init {
	create table users (id, age)
	insert into users (id, age) values (1, 10)
}
process "p0" {
	let $a = select age from users where id = 1
	update users set age = $a * 2 where id = 1
}
process "p1" {
	let $b = select age from users where id = 1
	update users set age = $b + 1 where id = 1
}
property "lost_update" = eventually(age in {21, 22})
`
	spec, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, spec.Init, 2)
	require.Len(t, spec.Processes, 2)
	require.Len(t, spec.Properties, 1)
	require.Equal(t, "p0", spec.Processes[0].Name)
	require.Equal(t, ast.Eventually, spec.Properties[0].Op)
}

func TestParseTransactionAndForUpdate(t *testing.T) {
	src := `
init { create table accounts (id, balance) }
process "p0" {
	transaction read_committed do {
		select * from accounts where id = 1 for update
		update accounts set balance = balance + 1 where id = 1
	}
}
property "p" = always(true)
`
	spec, err := Parse(src)
	require.NoError(t, err)
	txn, ok := spec.Processes[0].Body[0].(*ast.TransactionStmt)
	require.True(t, ok)
	require.Equal(t, "read_committed", txn.Isolation)
	sel, ok := txn.Body[0].(*ast.SQLStmt).SQL.(*ast.SelectStmt)
	require.True(t, ok)
	require.True(t, sel.ForUpdate)
}

func TestParseIfElseAndAbortAndLatch(t *testing.T) {
	src := `
init { create table t (id) }
process "p0" {
	if ($x = 1) {
		abort
	} else {
		latch
	}
}
property "p" = never(false)
`
	spec, err := Parse(src)
	require.NoError(t, err)
	ifStmt, ok := spec.Processes[0].Body[0].(*ast.IfStmt)
	require.True(t, ok)
	require.IsType(t, &ast.AbortStmt{}, ifStmt.Then[0])
	require.IsType(t, &ast.LatchStmt{}, ifStmt.Else[0])
}

func TestParseForeignKeyAndUniqueIndex(t *testing.T) {
	src := `
init {
	create table users (id)
	create table comments (id, user_id)
	create unique index on users (id)
	alter table comments add constraint foreign key (user_id) references users (id)
}
process "p0" { abort }
property "p" = always(true)
`
	spec, err := Parse(src)
	require.NoError(t, err)
	require.IsType(t, &ast.CreateUniqueIndexStmt{}, spec.Init[2])
	require.IsType(t, &ast.AlterTableAddForeignKeyStmt{}, spec.Init[3])
}

func TestParseRejectsMissingProperty(t *testing.T) {
	src := `
init { create table t (id) }
process "p0" { abort }
`
	_, err := Parse(src)
	require.Error(t, err)
}
