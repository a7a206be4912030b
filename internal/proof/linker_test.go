package proof

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"regdesk/internal/payment/models"
	"regdesk/internal/platform/config"
)

func newTestLinker(t *testing.T) *Linker {
	t.Helper()
	l, err := New(context.Background(), config.ProofConfig{
		Bucket:          "proofs",
		Endpoint:        "http://localhost:9000",
		Region:          "auto",
		AccessKeyID:     "test",
		SecretAccessKey: "secret",
		URLTTL:          5 * time.Minute,
	})
	require.NoError(t, err)
	require.NotNil(t, l)
	return l
}

func TestNewWithoutBucket(t *testing.T) {
	l, err := New(context.Background(), config.ProofConfig{})
	require.NoError(t, err)
	assert.Nil(t, l)
}

func TestURLPresignsObjectKey(t *testing.T) {
	raw, err := newTestLinker(t).URL(context.Background(), "submissions/txn1.png")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/proofs/submissions/txn1.png", u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "300", u.Query().Get("X-Amz-Expires"))
}

func TestURLPassThrough(t *testing.T) {
	l := newTestLinker(t)
	ctx := context.Background()

	got, err := l.URL(ctx, models.NewFreeMarker())
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = l.URL(ctx, "https://cdn.example.org/p.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.org/p.png", got)
}
