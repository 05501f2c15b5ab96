package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBucket struct {
	mu          sync.Mutex
	path        string
	contentType string
	body        []byte
	status      int
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.path = r.URL.Path
	b.contentType = r.Header.Get("Content-Type")
	b.body, _ = io.ReadAll(r.Body)

	if b.status != 0 && b.status != http.StatusOK {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(b.status)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func newTestStorage(t *testing.T, bucket *fakeBucket) (*R2Storage, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	st, err := NewR2Storage(context.Background(), R2Config{
		AccessKeyID:     "key",
		AccessKeySecret: "secret",
		BucketName:      "exports",
		Endpoint:        srv.URL,
	})
	require.NoError(t, err)
	return st, srv
}

func TestNewR2Storage_NotConfigured(t *testing.T) {
	st, err := NewR2Storage(context.Background(), R2Config{BucketName: "exports"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Nil(t, st)
}

func TestPut(t *testing.T) {
	bucket := &fakeBucket{}
	st, _ := newTestStorage(t, bucket)

	err := st.Put(context.Background(), "exports/ledger/2026-10-18/a.csv", []byte("id,amount\n"), "text/csv")
	require.NoError(t, err)

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	assert.Equal(t, "/exports/exports/ledger/2026-10-18/a.csv", bucket.path)
	assert.Equal(t, "text/csv", bucket.contentType)
	assert.Contains(t, string(bucket.body), "id,amount")
}

func TestPut_APIError(t *testing.T) {
	st, _ := newTestStorage(t, &fakeBucket{status: http.StatusForbidden})

	err := st.Put(context.Background(), "k.csv", []byte("x"), "text/csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestPresignGet(t *testing.T) {
	st, srv := newTestStorage(t, &fakeBucket{})

	raw, err := st.PresignGet(context.Background(), "exports/ledger/x.csv", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	base, _ := url.Parse(srv.URL)
	assert.Equal(t, base.Host, u.Host)
	assert.Equal(t, "/exports/exports/ledger/x.csv", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}
