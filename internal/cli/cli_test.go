package cli

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aretw0/callflow/internal/config"
	"github.com/aretw0/callflow/internal/gate"
	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/adapters/memory"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/dsl"
	"github.com/aretw0/callflow/pkg/observability"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var acmeDoc = string(dsl.New("greet").
	Subject("name", "Ana Souza").
	Subject("company", "Acme").
	Add("greet").Label("Greeting").Say("Hi").Branch("Interested", "pitch").Done().
	Add("pitch").Label("Pitch").Say("Here's the deal").Done().
	MustJSON())

const indexDoc = `{"leads":[
  {"slug":"acme","name":"Ana Souza","company":"Acme","title":"CTO","location":"Recife"},
  {"slug":"globex","name":"Bruno Lima","company":"Globex","location":"Natal"}
]}`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Collection = "sales"
	cfg.Store.Backend = config.BackendMemory
	cfg.CredentialsPath = filepath.Join(t.TempDir(), "credentials.json")
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, opts ...BackendOption) *App {
	t.Helper()
	app, err := NewApp(context.Background(), cfg, logging.NewNop(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func seed(t *testing.T, app *App) {
	t.Helper()
	ctx := context.Background()
	for key, body := range map[string]string{
		"sales/leads/acme": acmeDoc,
		"sales/index":      indexDoc,
	} {
		_, err := app.Backend.Store.Put(ctx, ports.PutRequest{Key: key, Body: []byte(body), Credential: "secret"})
		require.NoError(t, err)
	}
}

func TestOpenBackend_UnknownBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = "floppy"

	_, err := OpenBackend(context.Background(), cfg)
	assert.ErrorContains(t, err, `unknown store backend "floppy"`)
}

func TestOpenBackend_WriteAuth(t *testing.T) {
	ctx := context.Background()

	t.Run("plain tokens", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.WriteTokens = []string{"secret"}
		b, err := OpenBackend(ctx, cfg, WithWriteAuth())
		require.NoError(t, err)

		_, err = b.Store.Put(ctx, ports.PutRequest{Key: "k", Body: []byte("{}"), Credential: "nope"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
		_, err = b.Store.Put(ctx, ports.PutRequest{Key: "k", Body: []byte("{}"), Credential: "secret"})
		assert.NoError(t, err)
	})

	t.Run("hashes and tokens together", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.WriteTokens = []string{"plain"}
		cfg.WriteTokenHashes = []string{gate.HashSHA256("hashed")}
		b, err := OpenBackend(ctx, cfg, WithWriteAuth())
		require.NoError(t, err)

		_, err = b.Store.Put(ctx, ports.PutRequest{Key: "a", Body: []byte("{}"), Credential: "hashed"})
		assert.NoError(t, err)
		_, err = b.Store.Put(ctx, ports.PutRequest{Key: "b", Body: []byte("{}"), Credential: "plain"})
		assert.NoError(t, err)
		_, err = b.Store.Put(ctx, ports.PutRequest{Key: "c", Body: []byte("{}"), Credential: "other"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("not enforced for clients", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.WriteTokens = []string{"secret"}
		b, err := OpenBackend(ctx, cfg)
		require.NoError(t, err)

		_, err = b.Store.Put(ctx, ports.PutRequest{Key: "k", Body: []byte("{}")})
		assert.NoError(t, err)
	})
}

func TestOpenBackend_EncryptedFileStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Store.Backend = config.BackendFile
	cfg.Store.Dir = t.TempDir()
	cfg.EncryptionKey = base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("k"), 32))

	metrics := observability.NewMetrics()
	b, err := OpenBackend(ctx, cfg, WithMetrics(metrics))
	require.NoError(t, err)

	_, err = b.Store.Put(ctx, ports.PutRequest{Key: "sales/leads/acme", Body: []byte(acmeDoc)})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(cfg.Store.Dir, "sales", "leads", "acme.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "__encrypted__")
	assert.NotContains(t, string(raw), "Ana Souza")

	obj, err := b.Store.Get(ctx, "sales/leads/acme")
	require.NoError(t, err)
	assert.JSONEq(t, acmeDoc, string(obj.Body))
}

func TestOpenBackend_LoamStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Backend = config.BackendLoam
	cfg.Store.Dir = t.TempDir()
	app := newTestApp(t, cfg)
	seed(t, app)

	var out bytes.Buffer
	require.NoError(t, RunList(context.Background(), app, "acme", &out))
	assert.Contains(t, out.String(), "Ana Souza")

	doc, err := app.Document(context.Background(), "acme")
	require.NoError(t, err)
	assert.True(t, doc.Flow.Navigable())
}

func TestEnsureUnlocked(t *testing.T) {
	t.Run("second attempt", func(t *testing.T) {
		var out bytes.Buffer
		creds := memory.NewCredentials("")
		p := NewPrompter(strings.NewReader("0000\n123456789\n"), &out)

		require.NoError(t, EnsureUnlocked(gate.New("", creds), p))
		assert.Contains(t, out.String(), "Wrong PIN")
		ok, _ := creds.Unlocked()
		assert.True(t, ok)
	})

	t.Run("already unlocked", func(t *testing.T) {
		creds := memory.NewCredentials("")
		require.NoError(t, creds.SetUnlocked(true))
		p := NewPrompter(strings.NewReader(""), &bytes.Buffer{})

		assert.NoError(t, EnsureUnlocked(gate.New("", creds), p))
	})

	t.Run("too many attempts", func(t *testing.T) {
		p := NewPrompter(strings.NewReader("1\n2\n3\n123456789\n"), &bytes.Buffer{})
		assert.ErrorIs(t, EnsureUnlocked(gate.New("", memory.NewCredentials("")), p), gate.ErrWrongPIN)
	})
}

func TestPrompter_RequestCredential(t *testing.T) {
	p := NewPrompter(strings.NewReader("tok\n\n"), &bytes.Buffer{})

	token, err := p.RequestCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	_, err = p.RequestCredential(context.Background())
	assert.ErrorIs(t, err, domain.ErrCredentialRequired)
}

func TestNormalizeLocation(t *testing.T) {
	tests := map[string]string{
		"acme":            "lead/acme",
		"acme/pitch":      "lead/acme/pitch",
		"lead/acme/pitch": "lead/acme/pitch",
		"#lead/acme":      "lead/acme",
		"":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeLocation(in), in)
	}
}

func TestRunList(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	seed(t, app)

	var out bytes.Buffer
	require.NoError(t, RunList(context.Background(), app, "", &out))
	assert.Contains(t, out.String(), "Acme\n")
	assert.Contains(t, out.String(), "Globex\n")
	assert.Contains(t, out.String(), "CTO · Recife")

	out.Reset()
	require.NoError(t, RunList(context.Background(), app, "natal", &out))
	assert.NotContains(t, out.String(), "Ana Souza")
	assert.Contains(t, out.String(), "Bruno Lima")

	out.Reset()
	require.NoError(t, RunList(context.Background(), app, "nobody", &out))
	assert.Equal(t, "No leads found\n", out.String())
}

func TestRunGraph(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	seed(t, app)

	var out bytes.Buffer
	require.NoError(t, RunGraph(context.Background(), app, "acme/pitch", &out))
	assert.Contains(t, out.String(), `n_greet -- "Interested" --> n_pitch`)
	assert.Contains(t, out.String(), "class n_greet visited;")
	assert.Contains(t, out.String(), "class n_pitch current;")

	err := RunGraph(context.Background(), app, "ghost", &out)
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestRunOpen_Plain(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	seed(t, app)

	var out bytes.Buffer
	in := strings.NewReader("123456789\n1\nq\n")
	err := RunOpen(context.Background(), app, OpenOptions{Location: "acme", Plain: true}, in, &out)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Opened 'acme'")
	assert.Contains(t, out.String(), "Greeting > Pitch")
	assert.Contains(t, out.String(), "Bye!")
}

func TestRunOpen_PicksFromIndex(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	seed(t, app)
	require.NoError(t, app.Creds.SetUnlocked(true))

	var out bytes.Buffer
	err := RunOpen(context.Background(), app, OpenOptions{Plain: true}, strings.NewReader("acme\nq\n"), &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Bruno Lima")
	assert.Contains(t, out.String(), "Opened 'acme'")
}

func TestRunOpen_MissingLead(t *testing.T) {
	app := newTestApp(t, testConfig(t))
	require.NoError(t, app.Creds.SetUnlocked(true))

	err := RunOpen(context.Background(), app, OpenOptions{Location: "ghost", Plain: true}, strings.NewReader(""), &bytes.Buffer{})
	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
}

func TestRunSeed(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, testConfig(t))

	var out bytes.Buffer
	require.NoError(t, RunSeed(ctx, app, &out))
	assert.Contains(t, out.String(), "Created lead 'demo'.")
	assert.Contains(t, out.String(), "Indexed 1 leads.")

	out.Reset()
	require.NoError(t, RunSeed(ctx, app, &out))
	assert.Contains(t, out.String(), "Lead 'demo' already exists.")

	out.Reset()
	require.NoError(t, RunList(ctx, app, "demo corp", &out))
	assert.Contains(t, out.String(), "Jordan Reyes")
	assert.Contains(t, out.String(), "(512) 555-0142")

	out.Reset()
	require.NoError(t, RunGraph(ctx, app, "demo", &out))
	assert.Contains(t, out.String(), `n_opener(("Opener<br/><small>opener</small>"))`)
	assert.Contains(t, out.String(), `n_wrap(["Wrap up<br/><small>wrap</small>"])`)
}

func TestRunReindex_PicksUpNewLeads(t *testing.T) {
	ctx := context.Background()
	app := newTestApp(t, testConfig(t))
	seed(t, app)

	var out bytes.Buffer
	require.NoError(t, RunReindex(ctx, app, &out))
	assert.Contains(t, out.String(), "Indexed 1 leads.")

	out.Reset()
	require.NoError(t, RunList(ctx, app, "", &out))
	assert.Contains(t, out.String(), "Ana Souza")
	assert.NotContains(t, out.String(), "Bruno Lima")
}
