package odoo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-bridge/attendance"
	"github.com/warp/attendance-bridge/odoo"
)

// storeServer routes execute_kw calls by model and method.
func storeServer(t *testing.T, routes map[string]func(rpcCall) string) (*fakeOdoo, *odoo.Store) {
	t.Helper()
	srv := newFakeOdoo(t, func(c rpcCall) string {
		if c.Method == "authenticate" {
			return ok(xInt(2))
		}
		if c.Method == "version" {
			return ok(xStruct(map[string]string{"server_version": xString("17.0")}))
		}
		if h, found := routes[c.Model()+"."+c.Op()]; found {
			return h(c)
		}
		return fault(odoo.FaultApplication, "no route for "+c.Model()+"."+c.Op())
	})
	return srv, odoo.NewStore(newClient(t, srv.URL), nil)
}

func TestStore_ListEmployees(t *testing.T) {
	_, st := storeServer(t, map[string]func(rpcCall) string{
		"hr.employee.search_read": func(rpcCall) string {
			return ok(xArray(
				xStruct(map[string]string{"id": xInt(7), "name": xString("Luis"), "registration_number": xString("45")}),
				xStruct(map[string]string{"id": xInt(8), "name": xString("Ana"), "registration_number": xFalse()}),
			))
		},
	})

	emps, err := st.ListEmployees(context.Background())
	require.NoError(t, err)
	require.Len(t, emps, 2)
	assert.Equal(t, attendance.Employee{ID: 7, Name: "Luis", RegistrationNumber: "45"}, emps[0])
	assert.Empty(t, emps[1].RegistrationNumber)
}

func TestStore_OpenSpans_DecodesRecords(t *testing.T) {
	srv, st := storeServer(t, map[string]func(rpcCall) string{
		"hr.attendance.search_read": func(rpcCall) string {
			return ok(xArray(attendanceRecord(31, 7, "2024-05-01 11:00:00", "")))
		},
	})

	spans, err := st.OpenSpans(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, attendance.SpanID(31), spans[0].ID)
	assert.Equal(t, attendance.EmployeeID(7), spans[0].EmployeeID)
	assert.Equal(t, time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC), spans[0].CheckIn)
	assert.True(t, spans[0].IsOpen())

	body := srv.Calls()[1].Body
	assert.Contains(t, body, "<string>check_out</string>")
	assert.Contains(t, body, "<string>check_in desc</string>")
}

func TestStore_CreateSpan(t *testing.T) {
	srv, st := storeServer(t, map[string]func(rpcCall) string{
		"hr.attendance.create": func(rpcCall) string { return ok(xInt(55)) },
	})

	id, err := st.CreateSpan(context.Background(), 7, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, attendance.SpanID(55), id)
	assert.Contains(t, srv.Calls()[1].Body, "<string>2024-03-10 12:00:00</string>")
}

func TestStore_CreateSpan_ConflictFault(t *testing.T) {
	// GIVEN: Odoo refuses the check-in because one is already open
	// WHEN: CreateSpan
	// THEN: WriteRejected carrying the open-since text from the fault
	tests := []struct {
		name    string
		message string
		since   string
	}{
		{"english", "Cannot create new attendance record for Luis, the employee hasn't checked out since 05/01/2024 08:00:00", "05/01/2024 08:00:00"},
		{"spanish", "No se puede crear un nuevo registro de asistencia para Luis, el empleado no ha registrado su salida desde 01/05/2024 08:00:00.\nNone", "01/05/2024 08:00:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, st := storeServer(t, map[string]func(rpcCall) string{
				"hr.attendance.create": func(rpcCall) string { return fault(odoo.FaultWarning, tt.message) },
			})

			_, err := st.CreateSpan(context.Background(), 7, time.Now())
			assert.ErrorIs(t, err, attendance.ErrWriteRejected)

			var rej *attendance.WriteRejectedError
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tt.since, rej.OpenSince)
			assert.Equal(t, attendance.EmployeeID(7), rej.EmployeeID)
		})
	}
}

func TestStore_CreateSpan_OtherFault(t *testing.T) {
	_, st := storeServer(t, map[string]func(rpcCall) string{
		"hr.attendance.create": func(rpcCall) string { return fault(odoo.FaultAccessError, "You are not allowed to create attendances") },
	})

	_, err := st.CreateSpan(context.Background(), 7, time.Now())
	assert.ErrorIs(t, err, attendance.ErrStoreFault)
	assert.False(t, attendance.IsConflict(err))
	assert.False(t, attendance.IsRetryable(err))
}

func TestStore_CloseSpan(t *testing.T) {
	srv, st := storeServer(t, map[string]func(rpcCall) string{
		"hr.attendance.search_count": func(rpcCall) string { return ok(xInt(1)) },
		"hr.attendance.write":        func(rpcCall) string { return ok(xTrue()) },
	})

	err := st.CloseSpan(context.Background(), 31, time.Date(2024, 5, 1, 19, 20, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, srv.CountOp("write"))
	assert.Contains(t, srv.Calls()[2].Body, "<string>2024-05-01 19:20:00</string>")
}

func TestStore_CloseSpan_AlreadyClosed(t *testing.T) {
	srv, st := storeServer(t, map[string]func(rpcCall) string{
		"hr.attendance.search_count": func(rpcCall) string { return ok(xInt(0)) },
	})

	err := st.CloseSpan(context.Background(), 31, time.Now())
	assert.ErrorIs(t, err, attendance.ErrSpanNotFound)
	assert.Zero(t, srv.CountOp("write"))
}

func TestStore_CloseSpan_DeletedBetweenCheckAndWrite(t *testing.T) {
	_, st := storeServer(t, map[string]func(rpcCall) string{
		"hr.attendance.search_count": func(rpcCall) string { return ok(xInt(1)) },
		"hr.attendance.write": func(rpcCall) string {
			return fault(odoo.FaultApplication, "Record does not exist or has been deleted.\n(Record: hr.attendance(31,), User: 2)")
		},
	})

	err := st.CloseSpan(context.Background(), 31, time.Now())
	assert.ErrorIs(t, err, attendance.ErrSpanNotFound)
}

func TestStore_StaleOpenSpans_SkipsBadRecords(t *testing.T) {
	_, st := storeServer(t, map[string]func(rpcCall) string{
		"hr.attendance.search_read": func(rpcCall) string {
			return ok(xArray(
				attendanceRecord(1, 7, "2024-04-30 09:00:00", ""),
				attendanceRecord(2, 8, "not a date", ""),
			))
		},
	})

	spans, err := st.StaleOpenSpans(context.Background(), time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, attendance.SpanID(1), spans[0].ID)
}

func TestStore_SpansBetween(t *testing.T) {
	_, st := storeServer(t, map[string]func(rpcCall) string{
		"hr.attendance.search_read": func(rpcCall) string {
			return ok(xArray(attendanceRecord(1, 7, "2024-05-01 11:00:00", "2024-05-01 19:00:00")))
		},
	})

	spans, err := st.SpansBetween(context.Background(), 7,
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, 8*time.Hour, spans[0].Duration())
}

func TestStore_Ping(t *testing.T) {
	_, st := storeServer(t, nil)
	assert.NoError(t, st.Ping(context.Background()))
}

func TestStore_ThroughGateway(t *testing.T) {
	// The gateway keeps the store's conflict classification.
	_, st := storeServer(t, map[string]func(rpcCall) string{
		"hr.attendance.create": func(rpcCall) string {
			return fault(odoo.FaultWarning, "the employee hasn't checked out since 2024-05-01 08:00:00")
		},
	})
	gw := attendance.NewGateway(st, nil)

	_, err := gw.OpenSpan(context.Background(), 7, time.Now())
	assert.ErrorIs(t, err, attendance.ErrWriteRejected)
	assert.False(t, attendance.IsRetryable(err))
}
