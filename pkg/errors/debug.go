package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// GatewayFailure is implemented by payment gateway errors so they can be
// dumped without this package importing the gateway.
type GatewayFailure interface {
	GatewayFailure() (op string, httpStatus int, code string)
}

// ErrorDump flattens an error chain into log fields.
type ErrorDump struct {
	TopMessage string
	Code       Code
	Chain      []string

	PGCode       string
	PGConstraint string
	PGTable      string
	PGColumn     string
	PGDetail     string

	GatewayOp     string
	GatewayStatus int
	GatewayCode   string
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var gw GatewayFailure
	if errors.As(err, &gw) {
		d.GatewayOp, d.GatewayStatus, d.GatewayCode = gw.GatewayFailure()
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
	case errors.As(err, &pqErr):
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGColumn = pqErr.Column
		d.PGDetail = pqErr.Detail
	}
	return d
}

// Fields returns the populated parts of the dump keyed for structured logs.
func (d ErrorDump) Fields() map[string]any {
	fields := map[string]any{"error": d.TopMessage}
	if d.Code != "" {
		fields["error_code"] = d.Code
	}
	if len(d.Chain) > 1 {
		fields["error_chain"] = d.Chain
	}
	set := func(key, value string) {
		if value != "" {
			fields[key] = value
		}
	}
	set("pg_code", d.PGCode)
	set("pg_constraint", d.PGConstraint)
	set("pg_table", d.PGTable)
	set("pg_column", d.PGColumn)
	set("pg_detail", d.PGDetail)
	set("gateway_op", d.GatewayOp)
	set("gateway_code", d.GatewayCode)
	if d.GatewayStatus != 0 {
		fields["gateway_status"] = d.GatewayStatus
	}
	return fields
}
