package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-quill/internal/cache"
	"github.com/23skdu/longbow-quill/internal/client"
	"github.com/23skdu/longbow-quill/internal/encoding"
)

type mockForwarder struct {
	mock.Mock
}

func (m *mockForwarder) Forward(ctx context.Context, record arrow.RecordBatch) error {
	return m.Called(ctx, record).Error(0)
}

func newTestEncoder(t *testing.T) *encoding.Encoder {
	t.Helper()
	enc, err := encoding.New([]string{"This ain't funny.", "Don't?"}, encoding.Options{})
	require.NoError(t, err)
	return enc
}

func postCBOR(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := cbor.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestServer_Encode(t *testing.T) {
	enc := newTestEncoder(t)
	vc := cache.NewMapCache(0)
	srv := NewServer(enc, nil, vc, 16)
	h := srv.Handler()

	rr := postCBOR(t, h, "/encode", []string{"This ain't funny.", "Don't?", "Unknown!"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, cborContentType, rr.Header().Get("Content-Type"))

	var got [][]int64
	require.NoError(t, cbor.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, [][]int64{{5, 6, 7, 8, 9}, {10, 7, 11}, {1, 1}}, got)
	assert.Equal(t, 3, vc.Size())

	// Served from the cache the second time.
	rr = postCBOR(t, h, "/encode", []string{"Don't?"})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, cbor.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, [][]int64{{10, 7, 11}}, got)
}

func TestServer_EncodeEmpty(t *testing.T) {
	srv := NewServer(newTestEncoder(t), nil, nil, 16)
	rr := postCBOR(t, srv.Handler(), "/encode", []string{})
	require.Equal(t, http.StatusOK, rr.Code)

	var got [][]int64
	require.NoError(t, cbor.Unmarshal(rr.Body.Bytes(), &got))
	assert.Empty(t, got)
}

func TestServer_EncodeWithForwarding(t *testing.T) {
	fwd := &mockForwarder{}
	fwd.On("Forward", mock.Anything, mock.MatchedBy(func(rec arrow.RecordBatch) bool {
		return rec.NumRows() == 2 && rec.NumCols() == 2
	})).Return(nil).Once()

	srv := NewServer(newTestEncoder(t), fwd, nil, 16)
	rr := postCBOR(t, srv.Handler(), "/encode", []string{"test", "test"})

	assert.Equal(t, http.StatusOK, rr.Code)
	fwd.AssertExpectations(t)
}

func TestServer_EncodeErrors(t *testing.T) {
	srv := NewServer(newTestEncoder(t), nil, nil, 2)
	h := srv.Handler()

	t.Run("MethodNotAllowed", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/encode", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})

	t.Run("BadCBOR", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/encode", bytes.NewReader([]byte{0xff})))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("TooLarge", func(t *testing.T) {
		rr := postCBOR(t, h, "/encode", []string{"a", "b", "c"})
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})
}

func TestServer_Busy(t *testing.T) {
	srv := NewServer(newTestEncoder(t), nil, nil, 1)
	require.NoError(t, srv.sem.Acquire(context.Background(), 1))
	defer srv.sem.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data, err := cbor.Marshal([]string{"a"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/encode", bytes.NewReader(data)).WithContext(ctx)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestServer_RequestID(t *testing.T) {
	h := NewServer(newTestEncoder(t), nil, nil, 16).Handler()

	rr := postCBOR(t, h, "/encode", []string{"a"})
	_, err := uuid.Parse(rr.Header().Get("X-Request-ID"))
	assert.NoError(t, err)

	id := uuid.NewString()
	data, _ := cbor.Marshal([]string{"a"})
	req := httptest.NewRequest(http.MethodPost, "/encode", bytes.NewReader(data))
	req.Header.Set("X-Request-ID", id)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, id, rr.Header().Get("X-Request-ID"))
}

func TestServer_Decode(t *testing.T) {
	h := NewServer(newTestEncoder(t), nil, nil, 16).Handler()

	rr := postCBOR(t, h, "/decode", [][]int64{{5, 6, 7, 8, 9}, {10, 7, 11}})
	require.Equal(t, http.StatusOK, rr.Code)
	var texts []string
	require.NoError(t, cbor.Unmarshal(rr.Body.Bytes(), &texts))
	assert.Equal(t, []string{"This ai n't funny .", "Do n't ?"}, texts)

	rr = postCBOR(t, h, "/decode", [][]int64{{99}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_Vocab(t *testing.T) {
	enc := newTestEncoder(t)
	h := NewServer(enc, nil, nil, 16).Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/vocab", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "en", rr.Header().Get("X-Quill-Language"))

	var vocab []string
	require.NoError(t, cbor.Unmarshal(rr.Body.Bytes(), &vocab))
	assert.Equal(t, enc.Vocab(), vocab)
}

func TestServer_Health(t *testing.T) {
	h := NewServer(newTestEncoder(t), nil, nil, 16).Handler()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestServer_EncodeArrow(t *testing.T) {
	h := NewServer(newTestEncoder(t), nil, nil, 16).Handler()
	pool := memory.NewGoAllocator()

	schema := arrow.NewSchema([]arrow.Field{{Name: "text", Type: arrow.BinaryTypes.String}}, nil)
	b := array.NewStringBuilder(pool)
	defer b.Release()
	b.AppendValues([]string{"Don't?", "This ain't funny."}, nil)
	arr := b.NewArray()
	defer arr.Release()
	rec := array.NewRecordBatch(schema, []arrow.Array{arr}, 2)
	defer rec.Release()

	var body bytes.Buffer
	w := ipc.NewWriter(&body, ipc.WithSchema(schema))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/encode/arrow", &body))
	require.Equal(t, http.StatusOK, rr.Code)

	reader, err := ipc.NewReader(rr.Body)
	require.NoError(t, err)
	defer reader.Release()
	require.True(t, reader.Next())
	vectors, err := client.VectorsFromRecord(reader.Record())
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{10, 7, 11}, {5, 6, 7, 8, 9}}, vectors)
	assert.False(t, reader.Next())
}

func TestServer_EncodeArrowBadStream(t *testing.T) {
	h := NewServer(newTestEncoder(t), nil, nil, 16).Handler()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/encode/arrow", bytes.NewReader([]byte("not arrow"))))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_BuildRecordLogsFailure(t *testing.T) {
	srv := NewServer(newTestEncoder(t), nil, nil, 16)

	var logs bytes.Buffer
	ctx := zerolog.New(&logs).WithContext(context.Background())

	rec := srv.buildRecord(ctx, []string{"a", "b"}, [][]int64{{1}})
	assert.Nil(t, rec)
	assert.Contains(t, logs.String(), "Failed to build record batch")
	assert.Contains(t, logs.String(), "2 texts for 1 vectors")

	logs.Reset()
	assert.Nil(t, srv.buildRecord(ctx, nil, nil))
	assert.Empty(t, logs.String())
}
