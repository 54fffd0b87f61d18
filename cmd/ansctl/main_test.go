package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/incident-service/internal/config"
)

func testCLI(t *testing.T) (*cli, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	holidays := filepath.Join(dir, "holidays.yaml")
	table := "version: cli-test\ntimezone: UTC\nyears:\n  2025: [\"01-01\", \"03-24\"]\n"
	if err := os.WriteFile(holidays, []byte(table), 0o600); err != nil {
		t.Fatal(err)
	}
	out := &bytes.Buffer{}
	return &cli{
		out:    out,
		logger: zaptest.NewLogger(t),
		cfg: &config.Config{
			Store:  config.StoreConfig{Driver: config.StoreDriverSQLite},
			SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "cli.db")},
			SLA:    config.SLAConfig{HolidaysFile: holidays, StartHour: 8, EndHour: 18},
		},
	}, out
}

func run(t *testing.T, c *cli, args ...string) error {
	t.Helper()
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	return root.Execute()
}

func TestPrioritiesCommand(t *testing.T) {
	c, out := testCLI(t)
	if err := run(t, c, "priorities"); err != nil {
		t.Fatalf("priorities: %v", err)
	}
	for _, want := range []string{"CRITICAL", "LOW", "24"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDeadlineCommand(t *testing.T) {
	c, out := testCLI(t)
	err := run(t, c, "deadline", "--json", "--priority", "crítica", "--created", "2025-03-10 09:00", "--now", "2025-03-10 10:30")
	if err != nil {
		t.Fatalf("deadline: %v", err)
	}
	var res deadlineResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode %s: %v", out, err)
	}
	if res.Priority != "CRITICAL" || res.Deadline.Format("2006-01-02 15:04") != "2025-03-10 11:00" {
		t.Errorf("result = %+v", res)
	}
	if res.Risk != "AT_RISK" || res.Label != "0h 30m" {
		t.Errorf("risk = %s label = %s", res.Risk, res.Label)
	}

	if err := run(t, c, "deadline", "--priority", "someday", "--created", "2025-03-10 09:00"); err == nil {
		t.Error("expected unknown priority error")
	}
}

func TestHolidaysCommand(t *testing.T) {
	c, out := testCLI(t)
	if err := run(t, c, "holidays", "--year", "2025"); err != nil {
		t.Fatalf("holidays: %v", err)
	}
	if !strings.Contains(out.String(), "2025-03-24") || !strings.Contains(out.String(), "cli-test") {
		t.Errorf("output:\n%s", out)
	}
	if err := run(t, c, "holidays", "--year", "2031"); err == nil {
		t.Error("expected uncovered year error")
	}
}

func TestImportExportCommands(t *testing.T) {
	c, out := testCLI(t)
	src := filepath.Join(t.TempDir(), "form.csv")
	csvBody := "Id,Fecha hora de creacion,Descripción de la solicitud,Prioridad del Caso,Estado proveedor\n" +
		"5,10/3/2025 9:00,Reporte de ventas vacío,Bajo,Pendiente\n" +
		",fecha mala,otro,Bajo,\n"
	if err := os.WriteFile(src, []byte(csvBody), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := run(t, c, "import", src); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out.String(), "imported 1, skipped 0, failed 1") {
		t.Errorf("import output:\n%s", out)
	}

	out.Reset()
	dst := filepath.Join(t.TempDir(), "export.csv")
	if err := run(t, c, "export", "-o", dst); err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "INC-0005,") || !strings.Contains(out.String(), "exported 1 tickets") {
		t.Errorf("export file:\n%s\noutput: %s", raw, out)
	}
}
