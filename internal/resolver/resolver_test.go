package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/pachat/internal/collection"
	"github.com/hyperjump/pachat/internal/config"
	"github.com/hyperjump/pachat/internal/embedding"
	"github.com/hyperjump/pachat/internal/keyword"
	"github.com/hyperjump/pachat/internal/models"
	"github.com/hyperjump/pachat/internal/storage"
)

var testLimits = config.ResolverConfig{PageLimit: 10, APIListLimit: 5, APISpecLimit: 5, DiagramLimit: 5, RelatedLimit: 3}

type env struct {
	dir   string
	store *collection.Store
	res   *Resolver
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	st, err := storage.NewSQLiteStorage(filepath.Join(dir, "pachat.db"))
	require.NoError(t, err)
	kw, err := keyword.NewBleveIndex("")
	require.NoError(t, err)
	store, err := collection.Open(context.Background(), st, embedding.NewMockEmbedder(16), collection.WithKeywordIndex(kw))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return &env{dir: dir, store: store, res: New(store, testLimits)}
}

func (e *env) image(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte("png"), 0644))
	return path
}

func (e *env) put(t *testing.T, name string, docs ...*models.IndexedDocument) {
	t.Helper()
	require.NoError(t, e.store.Upsert(context.Background(), name, docs))
}

func listRow(pa, apiID string) *models.IndexedDocument {
	return models.APIListEntry{
		APIID:            apiID,
		ScreenIdentifier: pa,
		RawFields:        []models.Field{{Key: "API ID", Value: apiID}, {Key: "API명", Value: "login"}},
		SheetName:        "API리스트",
		SourceFile:       "api.xlsx",
	}.Document()
}

func spec(apiID, raw string) *models.IndexedDocument {
	return models.APISpecEntry{APIID: apiID, RawSpec: []byte(raw), SheetName: "API명세서", SourceFile: "api.xlsx"}.Document()
}

func TestResolve_allPaths(t *testing.T) {
	e := newEnv(t)
	img := e.image(t, "page_1.png")
	png := e.image(t, "login.png")
	e.put(t, models.CollectionPages,
		models.PageRecord{PageNumber: 1, Identifier: "PA1201001", ImagePath: img, SourceFilename: "spec.pdf"}.Document(),
		models.PageRecord{PageNumber: 2, Identifier: "PA1201001", ImagePath: filepath.Join(e.dir, "gone.png"), SourceFilename: "spec.pdf"}.Document())
	e.put(t, models.CollectionAPIList, listRow("PA1201001", "CMM001"))
	e.put(t, models.CollectionAPISpec, spec("CMM001", `{"설명":{"API ID":"CMM001","b":1}}`))
	e.put(t, models.CollectionUML, models.DiagramRecord{Identifier: "CMM001", ReferencedTables: []string{"TB_USER"}, ImagePath: png, SourceFilename: "login.puml"}.Document())

	b, err := e.res.Resolve(context.Background(), "PA1201001 spec.pdf")
	require.NoError(t, err)
	require.Len(t, b.Images, 1, "missing image files are skipped")
	assert.Equal(t, img, b.Images[0].Path)
	assert.Equal(t, "PA1201001 in spec.pdf", b.Images[0].Caption)
	assert.Equal(t, "API ID: CMM001\nAPI명: login", b.APIList)
	assert.Equal(t, "CMM001", b.APIID)
	assert.Equal(t, "{\n    \"설명\": {\n        \"API ID\": \"CMM001\",\n        \"b\": 1\n    }\n}", b.APISpec)
	require.NotNil(t, b.Diagram)
	assert.Equal(t, png, b.Diagram.Path)
	assert.Empty(t, b.Related)

	out := b.Render()
	assert.True(t, strings.HasPrefix(out, "spec.pdf: PA number PA1201001, 1 image(s) and API information:\nAPI ID: CMM001"))
	assert.Contains(t, out, "API specification:\n{")
	assert.True(t, strings.HasSuffix(out, "UML Diagram:\n![UML Diagram]("+png+")"))
}

func TestResolve_pathARequiresExactFilename(t *testing.T) {
	e := newEnv(t)
	e.put(t, models.CollectionPages,
		models.PageRecord{PageNumber: 1, Identifier: "PA1201001", ImagePath: e.image(t, "p.png"), SourceFilename: "other.pdf"}.Document())
	e.put(t, models.CollectionAPIList, listRow("PA1201001", "CMM001"))

	b, err := e.res.Resolve(context.Background(), "PA1201001 spec.pdf")
	require.NoError(t, err)
	assert.True(t, b.Empty())
	assert.Empty(t, b.APIID, "no API ID is recovered when path A does not match")
}

func TestResolve_pathARequiresAPIList(t *testing.T) {
	e := newEnv(t)
	e.put(t, models.CollectionPages,
		models.PageRecord{PageNumber: 1, Identifier: "PA1", ImagePath: e.image(t, "p.png"), SourceFilename: "a.pdf"}.Document())

	b, err := e.res.Resolve(context.Background(), "PA1 a.pdf")
	require.NoError(t, err)
	assert.True(t, b.Empty())
}

func TestResolve_noDataScenario(t *testing.T) {
	e := newEnv(t)
	b, err := e.res.Resolve(context.Background(), "what is PA1000001 in report.pdf")
	require.NoError(t, err)
	assert.True(t, b.Empty())
	assert.Equal(t, models.NoDataMessage, b.Render())
}

func TestResolve_recoveredAPIIDOverridesTyped(t *testing.T) {
	e := newEnv(t)
	e.put(t, models.CollectionPages,
		models.PageRecord{PageNumber: 1, Identifier: "PA1", ImagePath: e.image(t, "p.png"), SourceFilename: "a.pdf"}.Document())
	e.put(t, models.CollectionAPIList, listRow("PA1", "REAL01"))
	e.put(t, models.CollectionAPISpec, spec("REAL01", `{"x":1}`), spec("TYPED01", `{"y":2}`))

	b, err := e.res.Resolve(context.Background(), "PA1 a.pdf API ID: TYPED01")
	require.NoError(t, err)
	assert.Equal(t, "REAL01", b.APIID)
	assert.Equal(t, "{\n    \"x\": 1\n}", b.APISpec)
}

func TestResolve_specFirstMatchOnly(t *testing.T) {
	e := newEnv(t)
	e.put(t, models.CollectionAPISpec, spec("CMM001", `{"n":1}`))
	e.put(t, models.CollectionAPISpec, spec("CMM001", `{"n":2}`))

	b, err := e.res.Resolve(context.Background(), "API ID: CMM001")
	require.NoError(t, err)
	assert.Contains(t, []string{"{\n    \"n\": 1\n}", "{\n    \"n\": 2\n}"}, b.APISpec)
	assert.NotContains(t, b.APISpec, "}\n{", "specifications are never concatenated")
}

func TestResolve_malformedSpec(t *testing.T) {
	e := newEnv(t)
	e.put(t, models.CollectionAPISpec, spec("BAD01", `{"unterminated":`))

	b, err := e.res.Resolve(context.Background(), "API ID: BAD01")
	require.NoError(t, err)
	assert.Equal(t, SpecParseFailed, b.APISpec)
}

func TestResolve_diagramNeedsExistingImage(t *testing.T) {
	e := newEnv(t)
	e.put(t, models.CollectionUML, models.DiagramRecord{Identifier: "ORD001", ImagePath: filepath.Join(e.dir, "missing.png")}.Document())

	b, err := e.res.Resolve(context.Background(), "API ID: ORD001")
	require.NoError(t, err)
	assert.Nil(t, b.Diagram)
	assert.True(t, b.Empty())
}

func TestResolve_hangulFilename(t *testing.T) {
	e := newEnv(t)
	img := e.image(t, "page_3.png")
	e.put(t, models.CollectionPages,
		models.PageRecord{PageNumber: 3, Identifier: "PA1201001", ImagePath: img, SourceFilename: "화면설계서.pdf"}.Document())
	e.put(t, models.CollectionAPIList, listRow("PA1201001", "CMM001"))

	b, err := e.res.Resolve(context.Background(), "PA1201001 화면설계서.pdf 보여줘")
	require.NoError(t, err)
	assert.Equal(t, "화면설계서.pdf", b.Filename)
	require.Len(t, b.Images, 1)
	assert.Equal(t, "PA1201001 in 화면설계서.pdf", b.Images[0].Caption)
	assert.Equal(t, "CMM001", b.APIID)
	assert.False(t, b.Empty())
}

func TestResolve_relatedHints(t *testing.T) {
	e := newEnv(t)
	e.put(t, models.CollectionAPIList, listRow("PA7", "LOGIN01"))

	b, err := e.res.Resolve(context.Background(), "login01")
	require.NoError(t, err)
	assert.True(t, b.Empty())
	require.NotEmpty(t, b.Related)
	assert.Equal(t, models.CollectionAPIList, b.Related[0].Collection)
	assert.Contains(t, b.Render(), "Related entries:")

	// Hints are only offered when the message carried no identifier.
	b, err = e.res.Resolve(context.Background(), "API ID: NOPE login01")
	require.NoError(t, err)
	assert.Empty(t, b.Related)
}

func TestFormatSpec(t *testing.T) {
	assert.Equal(t, "[\n    1,\n    2\n]", FormatSpec(" [1,2] "))
	assert.Equal(t, SpecParseFailed, FormatSpec(""))
	assert.Equal(t, SpecParseFailed, FormatSpec("not json"))
}

type failingCollections struct{}

func (failingCollections) QueryText(context.Context, string, string, models.Where, int) ([]*models.IndexedDocument, error) {
	return nil, errors.New("embedder down")
}

func (failingCollections) Search(context.Context, string, int) ([]models.RelatedDocument, error) {
	return nil, errors.New("index closed")
}

func TestResolve_readErrors(t *testing.T) {
	r := New(failingCollections{}, testLimits)
	_, err := r.Resolve(context.Background(), "API ID: CMM001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedder down")

	// A failing keyword index only loses the hints.
	b, err := r.Resolve(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, b.Empty())
}
