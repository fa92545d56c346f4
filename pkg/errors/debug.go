package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// entityKeys maps error detail keys onto the log field they are copied to, so
// a rejected operation can be traced back to the request or quote it touched.
var entityKeys = map[string]string{
	"request_id":      "request_id",
	"quote_id":        "quote_id",
	"client_quote_id": "client_quote_id",
	"status":          "entity_status",
	"from":            "transition_from",
	"to":              "transition_to",
	"version":         "entity_version",
}

// ErrorDump flattens an error for structured logs.
type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`
	Retryable  bool   `json:"retryable,omitempty"`

	Chain    []string       `json:"chain,omitempty"`
	Entities map[string]any `json:"entities,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGClass      string `json:"pg_class,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

// Fields returns the dump as logger fields. Empty values are left out.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error": d.TopMessage}
	if d.Code != "" {
		fields["error_code"] = d.Code
		fields["retryable"] = d.Retryable
	}
	if len(d.Chain) > 0 {
		fields["error_chain"] = d.Chain
	}
	for k, v := range d.Entities {
		fields[k] = v
	}
	if d.PGCode != "" {
		fields["pg_code"] = d.PGCode
		fields["pg_class"] = d.PGClass
		fields["pg_constraint"] = d.PGConstraint
		fields["pg_table"] = d.PGTable
		fields["pg_column"] = d.PGColumn
		fields["pg_detail"] = d.PGDetail
		fields["pg_message"] = d.PGMessage
	}
	return fields
}

// Dump walks the chain of err and collects the typed code, the entity ids in
// its details and any postgres diagnostics.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
		d.Retryable = MetadataFor(te.Code()).Retryable
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
		if te, ok := e.(*Error); ok {
			d.Entities = collectEntities(d.Entities, te.Details())
		}
	}

	var pgxErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgxErr):
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGColumn = pgxErr.ColumnName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
	case errors.As(err, &pqErr):
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
	}
	if len(d.PGCode) >= 2 {
		d.PGClass = d.PGCode[:2]
	}
	return d
}

// collectEntities adds the entity ids found in details to into. Keys already
// present are kept, so the outermost error wins.
func collectEntities(into map[string]any, details any) map[string]any {
	var src map[string]any
	switch v := details.(type) {
	case map[string]any:
		src = v
	case map[string]string:
		src = make(map[string]any, len(v))
		for k, s := range v {
			src[k] = s
		}
	default:
		return into
	}
	for key, field := range entityKeys {
		v, ok := src[key]
		if !ok {
			continue
		}
		if into == nil {
			into = map[string]any{}
		}
		if _, seen := into[field]; !seen {
			into[field] = fmt.Sprint(v)
		}
	}
	return into
}
