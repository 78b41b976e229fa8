package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oonrumail/emailguard/objectstore"
	"github.com/oonrumail/emailguard/testutil"
)

func newService() (*Service, *testutil.FakeCatalog, *testutil.FakeObjectStore) {
	catalog := testutil.NewFakeCatalog()
	objects := testutil.NewFakeObjectStore()
	svc := New(catalog, objects, "test-secret", objectstore.RecordKey, objectstore.ExportKey, nil)
	return svc, catalog, objects
}

func TestStoreAndVerify_RoundTrip(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	rec, err := svc.Store(ctx, []byte("hello world"), map[string]string{"fromDomain": "example.com"})
	require.NoError(t, err)
	require.Equal(t, "example.com", rec.FromDomain)

	result, err := svc.Verify(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, result.IsValid)
	require.Equal(t, rec.HashSHA256, result.Calculated)
}

func TestVerify_MissingObjectIsInvalid(t *testing.T) {
	svc, _, objects := newService()
	ctx := context.Background()

	rec, err := svc.Store(ctx, []byte("hello world"), nil)
	require.NoError(t, err)
	require.NoError(t, objects.Delete(ctx, objectstore.RecordKey(rec.ID)))

	result, err := svc.Verify(ctx, rec.ID)
	require.NoError(t, err)
	require.False(t, result.IsValid)
	require.Empty(t, result.Calculated)
}

func TestDeleteRecord_CascadesToObject(t *testing.T) {
	svc, catalog, objects := newService()
	ctx := context.Background()

	rec, err := svc.Store(ctx, []byte("payload"), nil)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRecord(ctx, rec.ID))

	_, err = catalog.Get(ctx, rec.ID)
	require.Error(t, err)
	_, err = objects.Get(ctx, objectstore.RecordKey(rec.ID))
	require.Error(t, err)
}

func TestGetRaw_ReturnsStoredBytes(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	rec, err := svc.Store(ctx, []byte("original bytes"), nil)
	require.NoError(t, err)

	data, err := svc.GetRaw(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("original bytes"), data)

	_, err = svc.GetRaw(ctx, "no-such-id")
	require.Error(t, err)
}

func TestPresignAndDownload_RoundTrip(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	rec, err := svc.Store(ctx, []byte("payload"), nil)
	require.NoError(t, err)

	token, err := svc.Presign(rec.ID, time.Minute)
	require.NoError(t, err)

	data, id, err := svc.Download(ctx, token)
	require.NoError(t, err)
	require.Equal(t, rec.ID, id)
	require.Equal(t, []byte("payload"), data)
}

func TestDownload_ExpiredTokenRejected(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	rec, err := svc.Store(ctx, []byte("payload"), nil)
	require.NoError(t, err)

	token, err := svc.Presign(rec.ID, -time.Minute)
	require.NoError(t, err)

	_, _, err = svc.Download(ctx, token)
	require.ErrorIs(t, err, ErrExpiredToken)
}

func TestDownload_WrongSecretRejected(t *testing.T) {
	catalog := testutil.NewFakeCatalog()
	objects := testutil.NewFakeObjectStore()
	svcA := New(catalog, objects, "secret-a", objectstore.RecordKey, objectstore.ExportKey, nil)
	svcB := New(catalog, objects, "secret-b", objectstore.RecordKey, objectstore.ExportKey, nil)
	ctx := context.Background()

	rec, err := svcA.Store(ctx, []byte("payload"), nil)
	require.NoError(t, err)

	token, err := svcA.Presign(rec.ID, time.Minute)
	require.NoError(t, err)

	_, _, err = svcB.Download(ctx, token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestPrepareExport_OneShotDeletesAfterRead(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	rec, err := svc.Store(ctx, []byte("payload"), nil)
	require.NoError(t, err)

	token, err := svc.PrepareExport(ctx, rec.ID, "json", time.Minute)
	require.NoError(t, err)

	export, err := svc.DownloadExport(ctx, token)
	require.NoError(t, err)
	require.Equal(t, rec.ID, export.RecordID)
	require.Equal(t, "json", export.Format)

	_, err = svc.DownloadExport(ctx, token)
	require.Error(t, err)
}

func TestPrepareExport_EMLFormatPassesThroughRawBytes(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()

	rec, err := svc.Store(ctx, []byte("raw message bytes"), nil)
	require.NoError(t, err)

	token, err := svc.PrepareExport(ctx, rec.ID, "eml", time.Minute)
	require.NoError(t, err)

	export, err := svc.DownloadExport(ctx, token)
	require.NoError(t, err)
	require.Equal(t, []byte("raw message bytes"), export.Data)
	require.Equal(t, rec.ID+".eml", export.Filename)
}
