package odoo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-bridge/attendance"
	"github.com/warp/attendance-bridge/odoo"
)

func newClient(t *testing.T, url string) *odoo.Client {
	t.Helper()
	c, err := odoo.NewClient(odoo.Config{
		URL:           url,
		DB:            "prod",
		Username:      "bridge@example.com",
		Password:      "secret",
		CommonTimeout: time.Second,
		ObjectTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_AuthenticatesOnceAndCachesUID(t *testing.T) {
	// GIVEN: A server accepting the credentials with uid 7
	// WHEN: Three object calls are made
	// THEN: authenticate is called once and every call carries the session
	srv := newFakeOdoo(t, func(c rpcCall) string {
		switch c.Method {
		case "authenticate":
			return ok(xInt(7))
		case "execute_kw":
			return ok(xInt(3))
		}
		return fault(1, "unexpected "+c.Method)
	})
	c := newClient(t, srv.URL)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		n, err := c.SearchCount(ctx, "hr.attendance", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	}

	assert.Equal(t, 1, srv.CountOp("authenticate"))
	calls := srv.Calls()
	assert.Equal(t, "/xmlrpc/2/common", calls[0].Path)
	assert.Equal(t, []string{"prod", "bridge@example.com", "secret"}, calls[0].Strings)
	assert.Equal(t, "/xmlrpc/2/object", calls[1].Path)
	assert.Equal(t, "hr.attendance", calls[1].Model())
	assert.Equal(t, "search_count", calls[1].Op())
	assert.Contains(t, calls[1].Body, "<int>7</int>")
}

func TestClient_BadCredentials(t *testing.T) {
	srv := newFakeOdoo(t, func(c rpcCall) string { return ok(xFalse()) })
	c := newClient(t, srv.URL)

	_, err := c.Authenticate(context.Background())
	assert.ErrorIs(t, err, odoo.ErrAuthenticationFailed)
	assert.ErrorIs(t, err, attendance.ErrStoreUnavailable)
}

func TestClient_ReauthenticatesOnAccessDenied(t *testing.T) {
	// GIVEN: The first object call is rejected with an access-denied fault
	// WHEN: ExecuteKw
	// THEN: The client logs in again and the retried call succeeds
	denied := false
	srv := newFakeOdoo(t, func(c rpcCall) string {
		switch c.Method {
		case "authenticate":
			return ok(xInt(7))
		case "execute_kw":
			if !denied {
				denied = true
				return fault(odoo.FaultAccessDenied, "Access Denied")
			}
			return ok(xInt(42))
		}
		return fault(1, "unexpected")
	})
	c := newClient(t, srv.URL)

	id, err := c.Create(context.Background(), "hr.attendance", map[string]any{"employee_id": int64(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, 2, srv.CountOp("authenticate"))
}

func TestClient_AccessDeniedTwiceIsReturned(t *testing.T) {
	srv := newFakeOdoo(t, func(c rpcCall) string {
		if c.Method == "authenticate" {
			return ok(xInt(7))
		}
		return fault(odoo.FaultAccessDenied, "Access Denied")
	})
	c := newClient(t, srv.URL)

	err := c.Write(context.Background(), "hr.attendance", []int64{1}, map[string]any{"check_out": "2024-05-01 10:00:00"})
	var f *odoo.Fault
	require.ErrorAs(t, err, &f)
	assert.Equal(t, odoo.FaultAccessDenied, f.Code)
	assert.ErrorIs(t, err, attendance.ErrStoreFault)
	assert.Equal(t, 2, srv.CountOp("execute_kw"))
}

func TestClient_Unreachable(t *testing.T) {
	srv := newFakeOdoo(t, func(rpcCall) string { return "" })
	url := srv.URL
	srv.Close()
	c := newClient(t, url)

	_, err := c.SearchRead(context.Background(), "hr.employee", nil, odoo.SearchReadOptions{})
	assert.ErrorIs(t, err, attendance.ErrStoreUnavailable)
	assert.True(t, attendance.IsRetryable(err))
}

func TestClient_TimeoutIsUnavailable(t *testing.T) {
	// GIVEN: A server slower than the caller's deadline
	// WHEN: A call is made
	// THEN: It fails with ErrStoreUnavailable wrapping the deadline
	release := make(chan struct{})
	srv := newFakeOdoo(t, func(rpcCall) string {
		<-release
		return ok(xInt(7))
	})
	defer close(release)
	c := newClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Authenticate(ctx)
	assert.ErrorIs(t, err, attendance.ErrStoreUnavailable)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_CreateAcceptsListReply(t *testing.T) {
	srv := newFakeOdoo(t, func(c rpcCall) string {
		if c.Method == "authenticate" {
			return ok(xInt(7))
		}
		return ok(xArray(xInt(99)))
	})
	c := newClient(t, srv.URL)

	id, err := c.Create(context.Background(), "hr.attendance", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)
}

func TestNewClient_RequiresURLAndDB(t *testing.T) {
	_, err := odoo.NewClient(odoo.Config{URL: "http://localhost:8069"}, nil)
	assert.Error(t, err)
}
