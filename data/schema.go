package data

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

type column struct {
	name     string
	typ      reflect.Type
	nullable bool
}

var timeType = reflect.TypeOf(time.Time{})

// columnsOf lists the db-tagged fields of an entity struct, descending into
// embedded structs the way sqlx maps them.
func columnsOf(t reflect.Type) []column {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var out []column
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("db")
		if tag == "-" {
			continue
		}
		ft := f.Type
		if f.Anonymous && tag == "" && deref(ft).Kind() == reflect.Struct && deref(ft) != timeType {
			out = append(out, columnsOf(ft)...)
			continue
		}
		if tag == "" {
			continue
		}
		out = append(out, column{
			name:     strings.Split(tag, ",")[0],
			typ:      deref(ft),
			nullable: ft.Kind() == reflect.Pointer,
		})
	}
	return out
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func columnNames(cols []column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

// createTableSQL renders CREATE TABLE IF NOT EXISTS for e.
func createTableSQL(e Entity, driver string) string {
	cols := columnsOf(reflect.TypeOf(e))
	defs := make([]string, 0, len(cols))
	for _, c := range cols {
		def := c.name + " " + sqlType(c.typ, driver)
		switch {
		case c.name == "id":
			def += " PRIMARY KEY"
		case !c.nullable:
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", e.TableName(), strings.Join(defs, ", "))
}

func sqlType(t reflect.Type, driver string) string {
	postgres := driver == "postgres"
	if t == timeType {
		if postgres {
			return "TIMESTAMPTZ"
		}
		return "TIMESTAMP"
	}
	switch t.Kind() {
	case reflect.Bool:
		return "BOOLEAN"
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64, reflect.Uint32:
		return "BIGINT"
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return "INTEGER"
	case reflect.Float32, reflect.Float64:
		if postgres {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			if postgres {
				return "BYTEA"
			}
			return "BLOB"
		}
	}
	return "TEXT"
}
