package bigquery

import (
	"strings"

	bq "cloud.google.com/go/bigquery"
)

// Field modes
const (
	ModeNullable = "NULLABLE"
	ModeRequired = "REQUIRED"
	ModeRepeated = "REPEATED"
)

// Field describes one column of a load schema. Nested fields are only
// meaningful for RECORD columns.
type Field struct {
	Name   string
	Type   string
	Mode   string
	Fields []Field
}

// F is shorthand for a nullable field.
func F(name, typ string) Field {
	return Field{Name: name, Type: typ}
}

// Record is a RECORD field holding fields.
func Record(name string, repeated bool, fields ...Field) Field {
	mode := ModeNullable
	if repeated {
		mode = ModeRepeated
	}
	return Field{Name: name, Type: "RECORD", Mode: mode, Fields: fields}
}

var typeAliases = map[string]bq.FieldType{
	"STRING":    bq.StringFieldType,
	"INT64":     bq.IntegerFieldType,
	"INTEGER":   bq.IntegerFieldType,
	"FLOAT64":   bq.FloatFieldType,
	"FLOAT":     bq.FloatFieldType,
	"BOOL":      bq.BooleanFieldType,
	"BOOLEAN":   bq.BooleanFieldType,
	"NUMERIC":   bq.NumericFieldType,
	"TIMESTAMP": bq.TimestampFieldType,
	"DATE":      bq.DateFieldType,
	"RECORD":    bq.RecordFieldType,
	"STRUCT":    bq.RecordFieldType,
}

// ToSchema converts fields into a BigQuery schema.
func ToSchema(fields []Field) bq.Schema {
	schema := make(bq.Schema, 0, len(fields))
	for _, f := range fields {
		typ, ok := typeAliases[strings.ToUpper(f.Type)]
		if !ok {
			typ = bq.FieldType(strings.ToUpper(f.Type))
		}
		fs := &bq.FieldSchema{
			Name:     f.Name,
			Type:     typ,
			Repeated: strings.EqualFold(f.Mode, ModeRepeated),
			Required: strings.EqualFold(f.Mode, ModeRequired),
		}
		if len(f.Fields) > 0 {
			fs.Schema = ToSchema(f.Fields)
		}
		schema = append(schema, fs)
	}
	return schema
}
