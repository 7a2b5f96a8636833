package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
)

var rawPrefix = cid.Prefix{Version: 1, Codec: cid.Raw, MhType: mh.SHA2_256, MhLength: -1}

// kuboServer emulates the version, add and cat commands of the Kubo RPC API.
type kuboServer struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	tamper bool
}

func (k *kuboServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/version"):
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"Version": "0.36.0", "Commit": "", "Repo": "16", "System": "amd64/linux", "Golang": "go1.24"})
	case strings.HasSuffix(r.URL.Path, "/add"):
		mr, err := r.MultipartReader()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		part, err := mr.NextPart()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(part)
		c, err := rawPrefix.Sum(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		k.mu.Lock()
		k.blobs[c.String()] = data
		k.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"Name": c.String(), "Hash": c.String(), "Size": "1"})
	case strings.HasSuffix(r.URL.Path, "/cat"):
		k.mu.Lock()
		data, ok := k.blobs[r.URL.Query().Get("arg")]
		tamper := k.tamper
		k.mu.Unlock()
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{"Message": "not found", "Code": 0, "Type": "error"})
			return
		}
		if tamper {
			data = append([]byte("x"), data...)
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write(data)
	default:
		http.NotFound(w, r)
	}
}

func newKubo(t *testing.T) (*kuboServer, IPFSBackend) {
	t.Helper()
	k := &kuboServer{blobs: make(map[string][]byte)}
	srv := httptest.NewServer(k)
	t.Cleanup(srv.Close)

	api, err := NewIPFSClient(srv.URL)
	if err != nil {
		t.Fatalf("NewIPFSClient: %v", err)
	}
	return k, newIPFSBackend(api)
}

func TestIPFS_UploadAndFetch(t *testing.T) {
	_, backend := newKubo(t)
	ctx := context.Background()
	payload := []byte(`{"task":1}`)

	uri, err := backend.Upload(ctx, payload)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	want, _ := rawPrefix.Sum(payload)
	if uri != IpfsPrefix+want.String() {
		t.Fatalf("uri = %q, want %q", uri, IpfsPrefix+want.String())
	}

	got, err := backend.Fetch(ctx, uri)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("content = %q", got)
	}
}

func TestIPFS_FetchDetectsTampering(t *testing.T) {
	k, backend := newKubo(t)
	ctx := context.Background()

	uri, err := backend.Upload(ctx, []byte("original"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	k.mu.Lock()
	k.tamper = true
	k.mu.Unlock()
	if _, err := backend.Fetch(ctx, uri); !errors.Is(err, ErrContentMismatch) {
		t.Fatalf("expected ErrContentMismatch, got %v", err)
	}
}

func TestIPFS_FetchRejectsInvalidCID(t *testing.T) {
	_, backend := newKubo(t)
	if _, err := backend.Fetch(context.Background(), "not-a-cid"); err == nil {
		t.Fatal("expected error for invalid cid")
	}
}

func TestVerify_SkipsNonRawCodecs(t *testing.T) {
	c, err := cid.Prefix{Version: 1, Codec: cid.DagProtobuf, MhType: mh.SHA2_256, MhLength: -1}.Sum([]byte("node"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if err := verify(c, []byte("file bytes")); err != nil {
		t.Fatalf("verify(dag-pb) = %v", err)
	}
}
