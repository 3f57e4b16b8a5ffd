package queue

import (
    "encoding/json"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/stretchr/testify/require"
)

func TestPassLogHandleAppends(t *testing.T) {
    dir := t.TempDir()
    sink := PassLog{Dir: dir}

    ev := PassIssuedEvent{
        PassCode: "ESUMMIT-0A1B2C3D", PassType: "Quantum Pass", UserID: 7,
        Email: "u@x.io", Price: "999", Currency: "INR", OrderID: "ord_1",
        Source: "verify", IssuedAt: "2026-01-02T03:04:05Z",
    }
    body, err := json.Marshal(ev)
    require.NoError(t, err)
    require.NoError(t, sink.Handle(body))
    require.NoError(t, sink.Handle(body))

    data, err := os.ReadFile(filepath.Join(dir, "pass.log"))
    require.NoError(t, err)
    lines := strings.Split(strings.TrimSpace(string(data)), "\n")
    require.Len(t, lines, 2)
    require.Contains(t, lines[0], "pass=ESUMMIT-0A1B2C3D")
    require.Contains(t, lines[0], `type="Quantum Pass"`)
    require.Contains(t, lines[0], "order=ord_1")
}

func TestPassLogHandleRejectsGarbage(t *testing.T) {
    require.Error(t, PassLog{Dir: t.TempDir()}.Handle([]byte("not json")))
}

func TestFormatLineWithoutOrder(t *testing.T) {
    line := FormatLine(PassIssuedEvent{PassCode: "ESUMMIT-1", Source: "claim"})
    require.Contains(t, line, "order=-")
    require.True(t, strings.HasSuffix(line, "\n"))
}
