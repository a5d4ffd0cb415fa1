package s3_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"

	"github.com/aretw0/callflow/pkg/adapters/s3"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports/tests"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real endpoint (e.g. a local MinIO) when configured.
func TestS3Store_Contract(t *testing.T) {
	endpoint := os.Getenv("CALLFLOW_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("CALLFLOW_TEST_S3_ENDPOINT not set")
	}

	store, err := s3.New(context.Background(), s3.Config{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("CALLFLOW_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("CALLFLOW_TEST_S3_SECRET_KEY"),
		Bucket:    "callflow-test",
		Prefix:    "contract",
	})
	require.NoError(t, err)

	tests.RunDocumentStoreContract(t, store)
}

const accessDenied = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>AccessDenied</Code><Message>Access Denied</Message><RequestId>1</RequestId></Error>`

func TestS3Store_ListStopsOnError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(accessDenied))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	client, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("key", "secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)

	store := s3.NewFromClient(client, "callflow", "sales")
	keys, err := store.List(context.Background(), "leads/")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Nil(t, keys)
	assert.Positive(t, calls.Load())
}
