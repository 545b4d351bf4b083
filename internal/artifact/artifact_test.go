package artifact

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxr-association-engine/internal/domain"
)

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, store domain.ArtifactStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Load(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)

	require.NoError(t, store.Save(ctx, "rules", []byte(`{"version":1}`)))
	data, err := store.Load(ctx, "rules")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(data))

	// Latest save wins
	require.NoError(t, store.Save(ctx, "rules", []byte(`{"version":2}`)))
	data, err = store.Load(ctx, "rules")
	require.NoError(t, err)
	assert.Equal(t, `{"version":2}`, string(data))

	assert.Error(t, store.Save(ctx, "../escape", []byte("x")))
	_, err = store.Load(ctx, "")
	assert.Error(t, err)
	assert.Contains(t, store.Location("rules"), "rules")
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"rule_store", "features-v2", "model.2024"} {
		assert.NoError(t, ValidateName(name), name)
	}
	for _, name := range []string{"", ".hidden", "a/b", `a\b`, strings.Repeat("x", 200)} {
		assert.Error(t, ValidateName(name), name)
	}
}

func TestFileStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "artifacts")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)

	assert.Equal(t, filepath.Join(dir, "rules.json"), store.Location("rules"))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStore_ConcurrentSaveAndLoad(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	small := []byte(strings.Repeat("a", 1024))
	large := []byte(strings.Repeat("b", 256*1024))
	require.NoError(t, store.Save(ctx, "rules", small))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			payload := small
			if i%2 == 0 {
				payload = large
			}
			assert.NoError(t, store.Save(ctx, "rules", payload))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			data, err := store.Load(ctx, "rules")
			if assert.NoError(t, err) {
				// Never a torn write
				assert.True(t, len(data) == len(small) || len(data) == len(large))
			}
		}
	}()
	wg.Wait()
}

func TestSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "db", "artifacts.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
	assert.Equal(t, "sqlite://"+dbPath+"#rules", store.Location("rules"))
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "artifacts.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "rules", []byte("persisted")))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	data, err := reopened.Load(context.Background(), "rules")
	require.NoError(t, err)
	assert.Equal(t, "persisted", string(data))
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	return db, mock
}

func TestPostgresStore_Save(t *testing.T) {
	db, mock := setupMockDB(t)
	mock.ExpectPing()
	store, err := NewPostgresStore(db, "postgres://db")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO rule_artifacts").
		WithArgs("rules", []byte("payload"), 7, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectClose()

	require.NoError(t, store.Save(context.Background(), "rules", []byte("payload")))
	require.NoError(t, store.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Load(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	mock.ExpectPing()
	store, err := NewPostgresStore(db, "postgres://db")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT data FROM rule_artifacts WHERE name = \\$1").
		WithArgs("rules").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte("payload")))
	mock.ExpectQuery("SELECT data FROM rule_artifacts WHERE name = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT data FROM rule_artifacts WHERE name = \\$1").
		WithArgs("broken").
		WillReturnError(errors.New("connection reset"))

	data, err := store.Load(context.Background(), "rules")
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrArtifactNotFound)

	_, err = store.Load(context.Background(), "broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrArtifactNotFound)

	assert.Equal(t, "postgres://db/rule_artifacts/rules", store.Location("rules"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil, "")
	assert.Error(t, err)
}

func TestPostgresStore_PingFailure(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("refused"))

	_, err := NewPostgresStore(db, "")
	assert.Error(t, err)
}

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("TEST_REDIS_URL not set, skipping Redis tests")
	}

	store, err := NewRedisStore(context.Background(), redisURL, 0)
	require.NoError(t, err)
	defer store.Close()
	defer store.client.Del(context.Background(), redisKey("rules"))

	exerciseStore(t, store)
}

func TestRedisStore_Location(t *testing.T) {
	store := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: "cache:6379"}), 0)
	defer store.Close()

	assert.Equal(t, "redis://cache:6379/cxr:artifact:rules", store.Location("rules"))
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not-a-url", 0)
	assert.Error(t, err)
}

// fakeS3 is an in-memory ObjectAPI.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	failGet error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.failGet != nil {
		return nil, f.failGet
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func TestS3Store(t *testing.T) {
	fake := newFakeS3()
	store := NewS3StoreWithClient(fake, "models", "cxr/prod")

	exerciseStore(t, store)

	assert.Equal(t, "s3://models/cxr/prod/rules.json", store.Location("rules"))
	_, ok := fake.objects["models/cxr/prod/rules.json"]
	assert.True(t, ok)
}

func TestS3Store_GetFailure(t *testing.T) {
	fake := newFakeS3()
	fake.failGet = errors.New("access denied")
	store := NewS3StoreWithClient(fake, "models", "")

	_, err := store.Load(context.Background(), "rules")

	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrArtifactNotFound)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{})
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(context.Background(), &domain.Config{Artifact: domain.ArtifactConfig{Path: dir}})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, store)

	store, err = Open(context.Background(), &domain.Config{Artifact: domain.ArtifactConfig{
		Backend:    BackendSQLite,
		SQLitePath: filepath.Join(dir, "a.db"),
	}})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(context.Background(), &domain.Config{Artifact: domain.ArtifactConfig{Backend: "ftp"}})
	assert.Error(t, err)
}
