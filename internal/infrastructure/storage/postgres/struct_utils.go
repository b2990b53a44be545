package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns lists the "db" tags of T in field order, descending into
// embedded structs. Repositories call it once to build their SELECT lists.
//
//	columns := ExtractDBColumns[stock.Movement]()
//	// ["id", "organization_id", "stock_item_id", "quantity", ...]
func ExtractDBColumns[T any]() []string {
	var zero T
	var cols []string
	for _, f := range metadataFor(reflect.TypeOf(zero)).fields {
		cols = append(cols, f.dbTag)
	}
	return cols
}

type fieldInfo struct {
	index []int
	dbTag string
}

type typeMetadata struct {
	fields []fieldInfo
}

var typeCache sync.Map // map[reflect.Type]*typeMetadata

func metadataFor(t reflect.Type) *typeMetadata {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{}
	if t.Kind() == reflect.Struct {
		collectFields(t, nil, meta)
	}
	typeCache.Store(t, meta)
	return meta
}

func collectFields(t reflect.Type, prefix []int, meta *typeMetadata) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int{}, prefix...), i)

		if field.Anonymous {
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				collectFields(ft, index, meta)
			}
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		meta.fields = append(meta.fields, fieldInfo{index: index, dbTag: tag})
	}
}

// StructToMap converts a struct to a column map using "db" tags, for
// squirrel SetMap inserts. Nil embedded pointers are skipped.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := metadataFor(rv.Type())
	res := make(map[string]any, len(meta.fields))
	for _, fi := range meta.fields {
		fv, err := rv.FieldByIndexErr(fi.index)
		if err != nil {
			continue
		}
		res[fi.dbTag] = fv.Interface()
	}
	return res
}
