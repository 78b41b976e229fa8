package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLookupTXT(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/dns-json")
		w.Write([]byte(`{"Status":0,"Answer":[{"name":"sel._domainkey.example.com","type":16,"TTL":300,"data":"\"v=DKIM1; k=rsa; p=ABC\""}]}`))
	}))
	defer srv.Close()

	r := New(srv.URL, 2*time.Second, nil)
	records, err := r.LookupTXT(context.Background(), "sel._domainkey.example.com")
	require.NoError(t, err)
	require.Equal(t, []string{"v=DKIM1; k=rsa; p=ABC"}, records)
}

func TestLookupTXT_DedupesConcurrentRequests(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(20 * time.Millisecond)
		w.Write([]byte(`{"Status":0,"Answer":[{"name":"example.com","type":16,"TTL":300,"data":"\"hello\""}]}`))
	}))
	defer srv.Close()

	r := New(srv.URL, 2*time.Second, nil)

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			_, _ = r.LookupTXT(context.Background(), "example.com")
			done <- struct{}{}
		}()
	}
	for i := 0; i < 5; i++ {
		<-done
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestLookupTXT_CachesAfterFirstCall(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"Status":0,"Answer":[{"name":"example.com","type":16,"TTL":300,"data":"\"hello\""}]}`))
	}))
	defer srv.Close()

	r := New(srv.URL, 2*time.Second, nil)
	_, err := r.LookupTXT(context.Background(), "example.com")
	require.NoError(t, err)
	_, err = r.LookupTXT(context.Background(), "example.com")
	require.NoError(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
