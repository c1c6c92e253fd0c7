package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewTableTo(&buf, "NODE", "PORT").Flush()
	if buf.Len() != 0 {
		t.Errorf("empty table printed %q", buf.String())
	}
}

func TestTable_Rows(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "NODE", "PORT", "NAME")
	tbl.Row("1", "1", "eth1")
	tbl.Row("1", "22", "")
	tbl.Row("2")
	tbl.Flush()

	want := strings.Join([]string{
		"NODE  PORT  NAME",
		"----  ----  ----",
		"1     1     eth1",
		"1     22    -",
		"2     -     -",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("table output:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestTable_Prefix(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTableTo(&buf, "KIND", "VALUE").WithPrefix("  ")
	tbl.Row("mtu", "9000")
	tbl.Flush()

	for _, line := range strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n") {
		if !strings.HasPrefix(line, "  ") {
			t.Errorf("line %q lacks the prefix", line)
		}
	}
}
