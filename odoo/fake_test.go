package odoo_test

import (
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// rpcCall is one decoded request seen by the fake server.
type rpcCall struct {
	Path   string
	Method string
	// Strings holds the top-level string params in order. For execute_kw
	// that is db, password, model, method.
	Strings []string
	Body    string
}

// Model returns the execute_kw model name.
func (c rpcCall) Model() string {
	if len(c.Strings) < 3 {
		return ""
	}
	return c.Strings[2]
}

// Op returns the execute_kw method name.
func (c rpcCall) Op() string {
	if len(c.Strings) < 4 {
		return ""
	}
	return c.Strings[3]
}

type xmlParam struct {
	String *string `xml:"value>string"`
}

type methodCall struct {
	MethodName string     `xml:"methodName"`
	Params     []xmlParam `xml:"params>param"`
}

// fakeOdoo answers XML-RPC calls with a scripted handler.
type fakeOdoo struct {
	*httptest.Server

	mu     sync.Mutex
	calls  []rpcCall
	handle func(rpcCall) string
}

func newFakeOdoo(t *testing.T, handle func(rpcCall) string) *fakeOdoo {
	t.Helper()
	f := &fakeOdoo{handle: handle}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var mc methodCall
		require.NoError(t, xml.Unmarshal(body, &mc))
		call := rpcCall{Path: r.URL.Path, Method: mc.MethodName, Body: string(body)}
		for _, p := range mc.Params {
			if p.String != nil {
				call.Strings = append(call.Strings, *p.String)
			}
		}

		f.mu.Lock()
		f.calls = append(f.calls, call)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "text/xml")
		_, _ = io.WriteString(w, f.handle(call))
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeOdoo) Calls() []rpcCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rpcCall(nil), f.calls...)
}

func (f *fakeOdoo) CountOp(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method || c.Op() == method {
			n++
		}
	}
	return n
}

// =============================================================================
// XML-RPC RESPONSE BUILDERS
// =============================================================================

func ok(value string) string {
	return `<?xml version="1.0"?><methodResponse><params><param><value>` + value + `</value></param></params></methodResponse>`
}

func fault(code int, message string) string {
	return `<?xml version="1.0"?><methodResponse><fault><value><struct>` +
		`<member><name>faultCode</name><value><int>` + fmt.Sprint(code) + `</int></value></member>` +
		`<member><name>faultString</name><value><string>` + html.EscapeString(message) + `</string></value></member>` +
		`</struct></value></fault></methodResponse>`
}

func xInt(n int64) string     { return fmt.Sprintf("<int>%d</int>", n) }
func xString(s string) string { return "<string>" + html.EscapeString(s) + "</string>" }
func xFalse() string          { return "<boolean>0</boolean>" }
func xTrue() string           { return "<boolean>1</boolean>" }

func xArray(values ...string) string {
	var b strings.Builder
	b.WriteString("<array><data>")
	for _, v := range values {
		b.WriteString("<value>" + v + "</value>")
	}
	b.WriteString("</data></array>")
	return b.String()
}

func xStruct(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("<struct>")
	for _, k := range keys {
		b.WriteString("<member><name>" + k + "</name><value>" + fields[k] + "</value></member>")
	}
	b.WriteString("</struct>")
	return b.String()
}

func attendanceRecord(id, employee int64, checkIn, checkOut string) string {
	out := xFalse()
	if checkOut != "" {
		out = xString(checkOut)
	}
	return xStruct(map[string]string{
		"id":          xInt(id),
		"employee_id": xArray(xInt(employee), xString("Employee")),
		"check_in":    xString(checkIn),
		"check_out":   out,
	})
}
