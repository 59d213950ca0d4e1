package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/pachat/internal/config"
	"github.com/hyperjump/pachat/internal/convert"
	"github.com/hyperjump/pachat/internal/models"
	"github.com/hyperjump/pachat/internal/session"
)

type recordingStore struct {
	docs  map[string][]*models.IndexedDocument
	calls int
	fail  map[string]error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{docs: make(map[string][]*models.IndexedDocument), fail: make(map[string]error)}
}

func (s *recordingStore) Upsert(_ context.Context, name string, docs []*models.IndexedDocument) error {
	s.calls++
	if err := s.fail[name]; err != nil {
		return err
	}
	s.docs[name] = append(s.docs[name], docs...)
	return nil
}

type fixture struct {
	dir     string
	scripts string
	cfg     config.ConvertConfig
	store   *recordingStore
	orch    *Orchestrator
	sess    *session.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{dir: dir, scripts: filepath.Join(dir, "scripts"), store: newRecordingStore(), sess: session.New("test")}
	require.NoError(t, os.MkdirAll(f.scripts, 0755))

	var cfg config.Config
	cfg.Convert.Interpreter = "sh"
	cfg.Convert.ScriptDir = f.scripts
	cfg.Convert.UploadDir = filepath.Join(dir, "upload")
	cfg.Convert.OutputDir = filepath.Join(dir, "out")
	cfg.Convert.PageScripts = []string{"split.sh", "panum.sh"}
	config.ApplyDefaults(&cfg)
	f.cfg = cfg.Convert

	runner := convert.NewScriptRunner("sh", f.scripts)
	f.orch = NewOrchestrator(runner, f.store, f.cfg)
	return f
}

func (f *fixture) script(t *testing.T, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.scripts, name), []byte(body), 0755))
}

func (f *fixture) input(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

// pagedScripts installs split.sh (writes page images) and panum.sh (writes the PA map).
func (f *fixture) pagedScripts(t *testing.T, pages int, paMap string) {
	t.Helper()
	l := convert.NewLayout(f.cfg)
	pagesDir := filepath.Dir(l.PageImageDir("x.pdf"))
	var split strings.Builder
	fmt.Fprintf(&split, "stem=$(basename \"$1\" .pdf)\nmkdir -p %q/$stem\n", pagesDir)
	for i := 1; i <= pages; i++ {
		fmt.Fprintf(&split, "echo png > %q/$stem/page_%d.png\n", pagesDir, i)
	}
	f.script(t, "split.sh", split.String())
	mapDir := filepath.Dir(l.PageMapFile("x.pdf"))
	f.script(t, "panum.sh", fmt.Sprintf("stem=$(basename \"$1\" .pdf)\nmkdir -p %q\ncat > %q/${stem}_pa_number.txt <<'MAP'\n%sMAP\n",
		mapDir, mapDir, paMap))
}

func TestIngest_pagedDocument(t *testing.T) {
	f := newFixture(t)
	f.pagedScripts(t, 2, "--- page_1 ---\nPA1000001\n--- page_2 ---\nnone\n")
	path := f.input(t, "report.pdf", []byte("%PDF-1.4"))

	report, err := f.orch.Ingest(context.Background(), f.sess, path)
	require.NoError(t, err)
	assert.Equal(t, models.PipelinePaged, report.Kind)
	assert.Equal(t, 1, report.Count)
	require.Len(t, report.Steps, 2)
	assert.True(t, report.Steps[0].OK)

	pages := f.store.docs[models.CollectionPages]
	require.Len(t, pages, 1)
	assert.Equal(t, "PA1000001", pages[0].MetaString(models.MetaPANumber))
	assert.Equal(t, "report.pdf", pages[0].MetaString(models.MetaPDFFilename))
	assert.Equal(t, "page_1.png", filepath.Base(pages[0].MetaString(models.MetaImagePath)))
	assert.True(t, f.sess.IsProcessed("report.pdf"))
	assert.Equal(t, "report.pdf", f.sess.CurrentPDF())

	_, err = f.orch.Ingest(context.Background(), f.sess, path)
	assert.True(t, errors.Is(err, models.ErrDuplicate))
}

// pdfWithPages builds a valid PDF with n empty pages.
func pdfWithPages(n int) []byte {
	objs := []string{"<< /Type /Catalog /Pages 2 0 R >>"}
	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", i+3)
	}
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i := 0; i < n; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return []byte(b.String())
}

func TestIngest_pageCountMismatchWarns(t *testing.T) {
	f := newFixture(t)
	f.pagedScripts(t, 2, "--- page_1 ---\nPA1000001\n--- page_2 ---\nPA1000002\n")
	path := f.input(t, "three.pdf", pdfWithPages(3))

	report, err := f.orch.Ingest(context.Background(), f.sess, path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count)
	require.Len(t, report.Warnings, 1)
	assert.Equal(t, "the PDF has 3 page(s) but 2 page image(s) were produced", report.Warnings[0])

	// Matching counts and unreadable PDFs produce no warning.
	ok, err := f.orch.Ingest(context.Background(), session.New("other"), f.input(t, "two.pdf", pdfWithPages(2)))
	require.NoError(t, err)
	assert.Empty(t, ok.Warnings)
	stub, err := f.orch.Ingest(context.Background(), session.New("third"), f.input(t, "stub.pdf", []byte("%PDF-1.4")))
	require.NoError(t, err)
	assert.Empty(t, stub.Warnings)
}

func TestIngest_pagedNoIdentifiersStoresNothing(t *testing.T) {
	f := newFixture(t)
	f.pagedScripts(t, 1, "--- page_1 ---\nNone\n")
	path := f.input(t, "blank.pdf", []byte("%PDF-1.4"))

	report, err := f.orch.Ingest(context.Background(), f.sess, path)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Count)
	assert.Zero(t, f.store.calls, "empty batch must not call upsert")
	assert.False(t, f.sess.IsProcessed("blank.pdf"))
}

func TestIngest_pagedFailFast(t *testing.T) {
	f := newFixture(t)
	f.script(t, "split.sh", "echo 'cannot split' >&2\nexit 1\n")
	f.script(t, "panum.sh", "echo should-not-run > /dev/null\n")
	path := f.input(t, "a.pdf", []byte("%PDF-1.4"))

	report, err := f.orch.Ingest(context.Background(), f.sess, path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrToolFailure))
	require.Len(t, report.Steps, 1)
	assert.False(t, report.Steps[0].OK)
	assert.Equal(t, "cannot split", report.Steps[0].Output)
	assert.False(t, f.sess.IsProcessed("a.pdf"))

	// A missing step aborts too.
	f2 := newFixture(t)
	f2.script(t, "panum.sh", "exit 0\n")
	_, err = f2.orch.Ingest(context.Background(), f2.sess, f2.input(t, "b.pdf", []byte("x")))
	assert.True(t, errors.Is(err, models.ErrMissingFile))
}

func TestIngest_pagedMissingSideCar(t *testing.T) {
	f := newFixture(t)
	f.script(t, "split.sh", "exit 0\n")
	f.script(t, "panum.sh", "exit 0\n")
	_, err := f.orch.Ingest(context.Background(), f.sess, f.input(t, "a.pdf", []byte("x")))
	assert.True(t, errors.Is(err, models.ErrMissingFile))
}

func writeWorkbook(t *testing.T, path string, sheets ...string) {
	t.Helper()
	wb := excelize.NewFile()
	for _, s := range sheets {
		_, err := wb.NewSheet(s)
		require.NoError(t, err)
	}
	require.NoError(t, wb.SaveAs(path))
	require.NoError(t, wb.Close())
}

func (f *fixture) sheetScripts(t *testing.T, listJSON, specJSON string) {
	t.Helper()
	l := convert.NewLayout(f.cfg)
	listDir := filepath.Dir(l.APIListFile("x.xlsx"))
	specDir := filepath.Dir(l.APISpecFile("x.xlsx"))
	f.script(t, config.ScriptAPIList, fmt.Sprintf("stem=$(basename \"$1\" .xlsx)\nmkdir -p %q\ncat > %q/$stem.json <<'JSON'\n%s\nJSON\n", listDir, listDir, listJSON))
	f.script(t, config.ScriptAPISpec, fmt.Sprintf("stem=$(basename \"$1\" .xlsx)\nmkdir -p %q\ncat > %q/$stem.json <<'JSON'\n%s\nJSON\n", specDir, specDir, specJSON))
}

func TestIngest_structuredSheet(t *testing.T) {
	f := newFixture(t)
	f.sheetScripts(t,
		`{"API리스트": [{"sheet_name": "API리스트", "data": [{"API ID": "CMM001", "사용화면아이디\n(없으면 비화면 API)": "PA1201001"}]}]}`,
		`{"API명세서": [{"설명": {"API ID": "CMM001"}}, {"설명": {"API ID": "CMM002"}}]}`)
	path := filepath.Join(f.dir, "api.xlsx")
	writeWorkbook(t, path, "API리스트", "API명세서")

	report, err := f.orch.Ingest(context.Background(), f.sess, path)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Count)
	assert.Len(t, report.Steps, 2)
	require.Len(t, f.store.docs[models.CollectionAPIList], 1)
	assert.Equal(t, "PA1201001", f.store.docs[models.CollectionAPIList][0].MetaString(models.MetaPANumber))
	assert.Len(t, f.store.docs[models.CollectionAPISpec], 2)
	assert.True(t, f.sess.IsProcessed("api.xlsx"))
}

func TestIngest_structuredSheetPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.sheetScripts(t,
		`{"API리스트": [{"sheet_name": "API리스트", "data": [{"API ID": "CMM001"}]}]}`,
		`{"API명세서": [{"설명": {"API ID": "CMM001"}}]}`)
	f.store.fail[models.CollectionAPISpec] = errors.New("disk full")
	path := filepath.Join(f.dir, "api.xlsx")
	writeWorkbook(t, path, "API리스트", "API명세서")

	_, err := f.orch.Ingest(context.Background(), f.sess, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	// The list rows written before the failure are kept.
	assert.Len(t, f.store.docs[models.CollectionAPIList], 1)
	assert.False(t, f.sess.IsProcessed("api.xlsx"))
}

func TestIngest_structuredSheetScriptFailure(t *testing.T) {
	f := newFixture(t)
	f.script(t, config.ScriptDBTable, "echo 'bad table sheet' >&2\nexit 2\n")
	path := filepath.Join(f.dir, "schema.xlsx")
	writeWorkbook(t, path, "DB_TABLE")

	_, err := f.orch.Ingest(context.Background(), f.sess, path)
	var toolErr *models.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, 2, toolErr.ExitCode)
	assert.Zero(t, f.store.calls)
}

func TestIngest_diagram(t *testing.T) {
	f := newFixture(t)
	f.script(t, config.ScriptConvertUML, "echo 'PNG Path: /out/UML2IMG/order.png'\necho 'Title Code: ORD001'\necho \"DB Tables: ['TB_ORDER', 'TB_ITEM']\"\n")
	path := f.input(t, "order.puml", []byte("@startuml\n@enduml\n"))

	report, err := f.orch.Ingest(context.Background(), f.sess, path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Count)
	docs := f.store.docs[models.CollectionUML]
	require.Len(t, docs, 1)
	assert.Equal(t, "UML Diagram for API ID: ORD001", docs[0].Text)
	assert.Equal(t, []interface{}{"TB_ORDER", "TB_ITEM"}, docs[0].Metadata[models.MetaDBName])
	assert.Equal(t, "order.puml", docs[0].MetaString(models.MetaSourceFile))
	assert.True(t, f.sess.IsProcessed("order.puml"))
}

func TestIngest_diagramIncompleteOutput(t *testing.T) {
	f := newFixture(t)
	f.script(t, config.ScriptConvertUML, "echo 'PNG Path: /out/a.png'\n")
	_, err := f.orch.Ingest(context.Background(), f.sess, f.input(t, "a.puml", []byte("x")))
	assert.True(t, errors.Is(err, models.ErrParse))
	assert.Zero(t, f.store.calls)
}

// gateRunner blocks every run until release is closed, then fails.
type gateRunner struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateRunner) Run(ctx context.Context, script, _ string) (*convert.Output, error) {
	g.entered <- struct{}{}
	<-g.release
	return nil, &models.ToolError{Script: script, ExitCode: 1, Stderr: "boom"}
}

func TestIngest_concurrentSameFile(t *testing.T) {
	f := newFixture(t)
	gate := &gateRunner{entered: make(chan struct{}, 1), release: make(chan struct{})}
	orch := NewOrchestrator(gate, f.store, f.cfg)
	path := f.input(t, "flow.puml", []byte("@startuml\n@enduml\n"))

	done := make(chan error, 1)
	go func() {
		_, err := orch.Ingest(context.Background(), f.sess, path)
		done <- err
	}()
	<-gate.entered

	_, err := orch.Ingest(context.Background(), f.sess, path)
	assert.True(t, errors.Is(err, models.ErrDuplicate), "second ingestion of a running file is refused, got %v", err)

	close(gate.release)
	require.Error(t, <-done)
	assert.False(t, f.sess.IsProcessed("flow.puml"))

	// The failed run released the name, so the file can be retried.
	_, err = orch.Ingest(context.Background(), f.sess, path)
	<-gate.entered
	assert.False(t, errors.Is(err, models.ErrDuplicate))
}

func TestIngest_unsupportedType(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Ingest(context.Background(), f.sess, f.input(t, "notes.docx", []byte("x")))
	assert.True(t, errors.Is(err, models.ErrUnsupportedType))

	_, err = f.orch.SaveUpload("notes.txt", bytes.NewReader([]byte("x")))
	assert.True(t, errors.Is(err, models.ErrUnsupportedType))
	_, statErr := os.Stat(filepath.Join(f.cfg.UploadDir, "notes.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSaveUpload(t *testing.T) {
	f := newFixture(t)
	path, err := f.orch.SaveUpload("../../etc/Screens.PDF", bytes.NewReader([]byte("pdf bytes")))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.cfg.UploadDir, "Screens.PDF"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(data))
}

func TestIngestDirectory(t *testing.T) {
	f := newFixture(t)
	f.script(t, config.ScriptConvertUML, "echo 'PNG Path: /out/a.png'\necho 'Title Code: A1'\necho 'DB Tables: []'\n")
	inbox := filepath.Join(f.dir, "inbox")
	require.NoError(t, os.MkdirAll(inbox, 0755))
	for _, name := range []string{"a.puml", "b.puml", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(inbox, name), []byte("x"), 0644))
	}

	reports, err := f.orch.IngestDirectory(context.Background(), f.sess, inbox)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "a.puml", reports[0].File)
	assert.Len(t, f.store.docs[models.CollectionUML], 2)
}
