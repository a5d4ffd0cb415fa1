package syncer_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/callflow/pkg/adapters/memory"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const key = "sales/leads/acme"

type fakeSource struct {
	mu         sync.Mutex
	body       []byte
	dirty      bool
	generation uint64
	version    string
	onSnapshot func()
}

func (f *fakeSource) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

func (f *fakeSource) Snapshot() (syncer.Snapshot, error) {
	if f.onSnapshot != nil {
		f.onSnapshot()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return syncer.Snapshot{Key: key, Body: f.body, Generation: f.generation}, nil
}

func (f *fakeSource) Commit(generation uint64, version string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.version = version
	if generation != f.generation {
		return false
	}
	f.dirty = false
	return true
}

func (f *fakeSource) edit(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body = []byte(body)
	f.dirty = true
	f.generation++
}

// countingStore records every call that reaches the backend.
type countingStore struct {
	ports.DocumentStore
	versions int
	puts     int
	putErr   error

	// beforePut runs inside Put after the version was read.
	beforePut func()
}

func (c *countingStore) Version(ctx context.Context, k string) (string, error) {
	c.versions++
	return c.DocumentStore.Version(ctx, k)
}

func (c *countingStore) Put(ctx context.Context, req ports.PutRequest) (string, error) {
	c.puts++
	if c.beforePut != nil {
		c.beforePut()
	}
	if c.putErr != nil {
		return "", c.putErr
	}
	return c.DocumentStore.Put(ctx, req)
}

func newStore() (*memory.Store, *countingStore) {
	mem := memory.NewStore()
	mem.Seed(key, []byte(`{"flow":{"start":"greet","nodes":{}}}`))
	return mem, &countingStore{DocumentStore: mem}
}

// pause blocks the next Put until release is closed and signals entered once it is reached.
func pause(store *countingStore) (entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	store.beforePut = func() {
		close(entered)
		<-release
	}
	return entered, release
}

func TestSave_NotDirtyIsNoop(t *testing.T) {
	_, store := newStore()
	creds := memory.NewCredentials("")
	prompted := 0
	s := syncer.New(store, creds, syncer.WithPrompter(ports.PrompterFunc(func(context.Context) (string, error) {
		prompted++
		return "tok", nil
	})))

	res, err := s.Save(context.Background(), &fakeSource{})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, store.versions+store.puts)
	assert.Zero(t, prompted)
	assert.Equal(t, syncer.StateClean, s.State(false))
}

func TestSave_SuccessClearsDirty(t *testing.T) {
	mem, store := newStore()
	s := syncer.New(store, memory.NewCredentials("tok"))
	src := &fakeSource{}
	src.edit(`{"flow":{"start":"pitch","nodes":{}}}`)

	res, err := s.Save(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.Clean)
	assert.False(t, src.Dirty())
	assert.Equal(t, domain.ContentVersion(src.body), res.Version)
	assert.False(t, res.ExitEditMode)

	obj, err := mem.Get(context.Background(), key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"flow":{"start":"pitch","nodes":{}}}`, string(obj.Body))

	res, err = s.Save(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.Skipped, "second save without edits is a no-op")
	assert.Equal(t, 1, store.puts)
}

func TestSave_CreatesMissingDocumentWithoutPrecondition(t *testing.T) {
	store := &countingStore{DocumentStore: memory.NewStore()}
	s := syncer.New(store, memory.NewCredentials("tok"))
	src := &fakeSource{}
	src.edit(`{}`)

	_, err := s.Save(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, src.Dirty())
}

func TestSave_StaleVersionConflicts(t *testing.T) {
	mem, store := newStore()
	s := syncer.New(store, memory.NewCredentials("tok"))
	src := &fakeSource{}
	src.edit(`{"flow":{"start":"mine","nodes":{}}}`)

	// Another session saves between our version read and our write.
	store.beforePut = func() {
		mem.Seed(key, []byte(`{"flow":{"start":"other","nodes":{}}}`))
	}

	_, err := s.Save(context.Background(), src)
	require.Error(t, err)

	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.True(t, src.Dirty(), "failed save keeps edits")
	assert.Equal(t, `{"flow":{"start":"mine","nodes":{}}}`, string(src.body))
	assert.Equal(t, syncer.StateError, s.State(src.Dirty()))

	obj, _ := mem.Get(context.Background(), key)
	assert.Contains(t, string(obj.Body), "other", "concurrent write is not clobbered")
}

func TestSave_UnauthorizedPurgesCredential(t *testing.T) {
	_, store := newStore()
	store.putErr = domain.ErrUnauthorized
	creds := memory.NewCredentials("expired")
	var events []domain.EventType
	s := syncer.New(store, creds, syncer.WithObserver(func(e domain.Event) {
		events = append(events, e.Type)
	}))
	src := &fakeSource{}
	src.edit(`{}`)

	_, err := s.Save(context.Background(), src)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	token, _ := creds.Credential()
	assert.Empty(t, token)
	assert.True(t, src.Dirty())
	assert.Contains(t, events, domain.EventCredentialPurged)
}

func TestSave_OtherFailuresKeepCredential(t *testing.T) {
	_, store := newStore()
	store.putErr = errors.New("network down")
	creds := memory.NewCredentials("tok")
	s := syncer.New(store, creds)
	src := &fakeSource{}
	src.edit(`{}`)

	_, err := s.Save(context.Background(), src)
	assert.EqualError(t, err, "network down")

	token, _ := creds.Credential()
	assert.Equal(t, "tok", token)
}

func TestSave_MissingCredentialPromptsOnceAndResumes(t *testing.T) {
	_, store := newStore()
	creds := memory.NewCredentials("")
	prompted := 0
	s := syncer.New(store, creds, syncer.WithPrompter(ports.PrompterFunc(func(context.Context) (string, error) {
		prompted++
		return "fresh", nil
	})))
	src := &fakeSource{}
	src.edit(`{}`)

	_, err := s.Save(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, prompted)
	assert.Equal(t, 1, store.puts, "the suspended save runs exactly once")

	token, _ := creds.Credential()
	assert.Equal(t, "fresh", token)
}

func TestSave_CancelledPromptFails(t *testing.T) {
	_, store := newStore()
	s := syncer.New(store, memory.NewCredentials(""), syncer.WithPrompter(ports.PrompterFunc(func(context.Context) (string, error) {
		return "", domain.ErrCredentialRequired
	})))
	src := &fakeSource{}
	src.edit(`{}`)

	_, err := s.Save(context.Background(), src)
	assert.ErrorIs(t, err, domain.ErrCredentialRequired)
	assert.Zero(t, store.puts)
	assert.True(t, src.Dirty())
}

func TestSave_RejectsOverlappingSave(t *testing.T) {
	_, store := newStore()
	entered, release := pause(store)
	s := syncer.New(store, memory.NewCredentials("tok"))
	src := &fakeSource{}
	src.edit(`{}`)

	done := make(chan error)
	go func() {
		_, err := s.Save(context.Background(), src)
		done <- err
	}()

	<-entered
	_, err := s.Save(context.Background(), src)
	assert.ErrorIs(t, err, domain.ErrSaveInFlight)
	assert.Equal(t, syncer.StateSaving, s.State(true))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, store.puts)
}

func TestSave_EditDuringSaveStaysDirty(t *testing.T) {
	_, store := newStore()
	entered, release := pause(store)
	s := syncer.New(store, memory.NewCredentials("tok"), syncer.WithExitEditOnSave(true))
	src := &fakeSource{}
	src.edit(`{"v":1}`)

	done := make(chan syncer.Result)
	go func() {
		res, _ := s.Save(context.Background(), src)
		done <- res
	}()

	<-entered
	src.edit(`{"v":2}`)
	close(release)

	res := <-done
	assert.False(t, res.Clean)
	assert.True(t, res.ExitEditMode)
	assert.True(t, src.Dirty())
	assert.Equal(t, syncer.StateDirty, s.State(src.Dirty()))
}

func TestStaticCredential(t *testing.T) {
	creds := syncer.NewStaticCredential("tok")

	got, err := creds.Credential()
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	unlocked, err := creds.Unlocked()
	require.NoError(t, err)
	assert.True(t, unlocked)

	require.NoError(t, creds.ClearCredential())
	got, _ = creds.Credential()
	assert.Empty(t, got)

	require.NoError(t, creds.SetCredential("next"))
	got, _ = creds.Credential()
	assert.Equal(t, "next", got)
}
